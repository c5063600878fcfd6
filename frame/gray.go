// Package frame holds the grayscale image buffer type the tracking engine
// consumes, plus the conversions and sampling helpers built on it.
package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferSize is returned when a pixel buffer does not match the
	// declared dimensions.
	ErrBufferSize = errors.New("pixel buffer size does not match dimensions")

	// ErrEmptyImage is returned when an image with no pixels is passed.
	ErrEmptyImage = errors.New("image is empty")
)

// Gray is a single-channel 8-bit image. Pix is row-major, len = Width*Height.
type Gray struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewGray wraps an existing pixel buffer. The buffer length must match the
// dimensions exactly; a mismatch is a caller contract violation and fails
// fast rather than being processed.
func NewGray(width, height int, pix []uint8) (*Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("%w: got %d pixels for %dx%d", ErrBufferSize, len(pix), width, height)
	}
	return &Gray{Width: width, Height: height, Pix: pix}, nil
}

// GrayFromRGBA converts a width*height*4 RGBA buffer to grayscale using the
// BT.601 luma weights.
func GrayFromRGBA(width, height int, rgba []uint8) (*Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}
	if len(rgba) != width*height*4 {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d RGBA", ErrBufferSize, len(rgba), width, height)
	}
	pix := make([]uint8, width*height)
	for i := range pix {
		r := uint32(rgba[i*4])
		g := uint32(rgba[i*4+1])
		b := uint32(rgba[i*4+2])
		// 0.299 R + 0.587 G + 0.114 B in fixed point.
		pix[i] = uint8((299*r + 587*g + 114*b) / 1000)
	}
	return &Gray{Width: width, Height: height, Pix: pix}, nil
}

// At returns the pixel value at (x, y). Out-of-bounds coordinates are
// clamped to the nearest edge pixel.
func (g *Gray) At(x, y int) uint8 {
	if x < 0 {
		x = 0
	} else if x >= g.Width {
		x = g.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.Height {
		y = g.Height - 1
	}
	return g.Pix[y*g.Width+x]
}

// Bilinear samples the image at a sub-pixel location.
func (g *Gray) Bilinear(x, y float64) float64 {
	x0 := int(x)
	y0 := int(y)
	fx := x - float64(x0)
	fy := y - float64(y0)

	p00 := float64(g.At(x0, y0))
	p10 := float64(g.At(x0+1, y0))
	p01 := float64(g.At(x0, y0+1))
	p11 := float64(g.At(x0+1, y0+1))

	top := p00 + fx*(p10-p00)
	bot := p01 + fx*(p11-p01)
	return top + fy*(bot-top)
}

// InBounds reports whether (x, y) lies inside the image with the given
// border margin.
func (g *Gray) InBounds(x, y float64, border int) bool {
	b := float64(border)
	return x >= b && y >= b && x < float64(g.Width)-b && y < float64(g.Height)-b
}

// Downsample returns a half-resolution copy using 2x2 box averaging, for
// optical-flow pyramids.
func (g *Gray) Downsample() *Gray {
	w := g.Width / 2
	h := g.Height / 2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := int(g.At(2*x, 2*y)) + int(g.At(2*x+1, 2*y)) +
				int(g.At(2*x, 2*y+1)) + int(g.At(2*x+1, 2*y+1))
			pix[y*w+x] = uint8(sum / 4)
		}
	}
	return &Gray{Width: w, Height: h, Pix: pix}
}

// Clone returns a deep copy of the image. Keyframes snapshot their source
// frame so later mutation of the caller's buffer cannot alias the map.
func (g *Gray) Clone() *Gray {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return &Gray{Width: g.Width, Height: g.Height, Pix: pix}
}

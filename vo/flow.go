// Package vo implements two-frame visual odometry: sparse pyramidal
// optical-flow tracking over a rolling point set with persistent ids, and
// relative pose accumulation from essential-matrix decomposition.
package vo

import (
	"github.com/golang/geo/r2"

	"github.com/biotinker/parallax/frame"
)

// FlowConfig holds parameters for pyramidal Lucas-Kanade tracking.
type FlowConfig struct {
	WindowSize    int     // Tracking window side length in pixels
	PyramidLevels int     // Number of pyramid levels including the base
	MaxIterations int     // Iteration cap per level
	Epsilon       float64 // Convergence threshold on the update step, pixels
}

// DefaultFlowConfig returns the optical-flow defaults.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		WindowSize:    21,
		PyramidLevels: 3,
		MaxIterations: 30,
		Epsilon:       0.01,
	}
}

// buildPyramid returns levels half-resolution copies of img, base first.
func buildPyramid(img *frame.Gray, levels int) []*frame.Gray {
	pyr := make([]*frame.Gray, 0, levels)
	pyr = append(pyr, img)
	for i := 1; i < levels; i++ {
		pyr = append(pyr, pyr[i-1].Downsample())
	}
	return pyr
}

// TrackPoints tracks pts from prev to next with iterative pyramidal
// Lucas-Kanade flow. Returns the tracked positions and a per-point status;
// positions with status false are unspecified.
func TrackPoints(prev, next *frame.Gray, pts []r2.Point, cfg FlowConfig) ([]r2.Point, []bool) {
	out := make([]r2.Point, len(pts))
	status := make([]bool, len(pts))
	if len(pts) == 0 {
		return out, status
	}

	levels := cfg.PyramidLevels
	if levels < 1 {
		levels = 1
	}
	prevPyr := buildPyramid(prev, levels)
	nextPyr := buildPyramid(next, levels)
	half := float64(cfg.WindowSize) / 2

	for i, p := range pts {
		out[i], status[i] = trackPoint(prevPyr, nextPyr, p, half, cfg)
	}
	return out, status
}

func trackPoint(prevPyr, nextPyr []*frame.Gray, p r2.Point, half float64, cfg FlowConfig) (r2.Point, bool) {
	levels := len(prevPyr)
	scale := 1.0
	for i := 1; i < levels; i++ {
		scale *= 2
	}

	// Flow estimate carried coarse to fine, in the coordinates of the
	// current level.
	var gx, gy float64

	for lvl := levels - 1; lvl >= 0; lvl-- {
		px := p.X / scale
		py := p.Y / scale

		vx, vy, ok := lucasKanadeLevel(prevPyr[lvl], nextPyr[lvl], px, py, gx, gy, half, cfg)
		if !ok {
			return r2.Point{}, false
		}
		gx, gy = vx, vy
		if lvl > 0 {
			gx *= 2
			gy *= 2
			scale /= 2
		}
	}

	q := r2.Point{X: p.X + gx, Y: p.Y + gy}
	if !nextPyr[0].InBounds(q.X, q.Y, 1) {
		return r2.Point{}, false
	}
	return q, true
}

// lucasKanadeLevel refines the flow (guessX, guessY) for the point (px, py)
// at a single pyramid level, returning the updated flow.
func lucasKanadeLevel(prev, next *frame.Gray, px, py, guessX, guessY, half float64, cfg FlowConfig) (float64, float64, bool) {
	border := int(half) + 2
	if !prev.InBounds(px, py, border) {
		// Near the border the full window does not fit; pass the guess
		// through so finer levels can still refine it.
		return guessX, guessY, true
	}

	n := cfg.WindowSize
	patch := make([]float64, n*n)
	gradX := make([]float64, n*n)
	gradY := make([]float64, n*n)

	// Spatial gradient matrix over the template window.
	var gxx, gxy, gyy float64
	for wy := 0; wy < n; wy++ {
		for wx := 0; wx < n; wx++ {
			sx := px - half + float64(wx)
			sy := py - half + float64(wy)
			patch[wy*n+wx] = prev.Bilinear(sx, sy)
			ix := (prev.Bilinear(sx+1, sy) - prev.Bilinear(sx-1, sy)) / 2
			iy := (prev.Bilinear(sx, sy+1) - prev.Bilinear(sx, sy-1)) / 2
			gradX[wy*n+wx] = ix
			gradY[wy*n+wx] = iy
			gxx += ix * ix
			gxy += ix * iy
			gyy += iy * iy
		}
	}

	det := gxx*gyy - gxy*gxy
	if det < 1e-6 {
		return 0, 0, false
	}

	vx, vy := guessX, guessY
	for it := 0; it < cfg.MaxIterations; it++ {
		if !next.InBounds(px+vx, py+vy, 1) {
			return 0, 0, false
		}
		var bx, by float64
		for wy := 0; wy < n; wy++ {
			for wx := 0; wx < n; wx++ {
				sx := px - half + float64(wx)
				sy := py - half + float64(wy)
				diff := patch[wy*n+wx] - next.Bilinear(sx+vx, sy+vy)
				bx += diff * gradX[wy*n+wx]
				by += diff * gradY[wy*n+wx]
			}
		}
		dx := (gyy*bx - gxy*by) / det
		dy := (gxx*by - gxy*bx) / det
		vx += dx
		vy += dy
		if dx*dx+dy*dy < cfg.Epsilon*cfg.Epsilon {
			break
		}
	}
	return vx, vy, true
}

// Package camera models pinhole camera intrinsics and the projection
// matrices derived from them.
package camera

import (
	"math"

	"github.com/biotinker/parallax/geom"
)

// Intrinsics holds pinhole camera parameters in pixels.
type Intrinsics struct {
	Fx float64 // Focal length, x
	Fy float64 // Focal length, y
	Cx float64 // Principal point, x
	Cy float64 // Principal point, y
}

// EstimateFromSize derives intrinsics from image dimensions alone, assuming
// a ~60 degree horizontal field of view with the principal point at the
// image center. Used when no calibration is supplied.
func EstimateFromSize(width, height int) Intrinsics {
	f := float64(width) / (2 * math.Tan(30*math.Pi/180))
	return Intrinsics{
		Fx: f,
		Fy: f,
		Cx: float64(width) / 2,
		Cy: float64(height) / 2,
	}
}

// Valid reports whether the intrinsics describe a usable camera.
func (in Intrinsics) Valid() bool {
	return in.Fx > 0 && in.Fy > 0
}

// Normalize converts a pixel coordinate to normalized camera coordinates
// (unit focal length).
func (in Intrinsics) Normalize(x, y float64) (float64, float64) {
	return (x - in.Cx) / in.Fx, (y - in.Cy) / in.Fy
}

// Project converts normalized camera coordinates back to pixels.
func (in Intrinsics) Project(nx, ny float64) (float64, float64) {
	return nx*in.Fx + in.Cx, ny*in.Fy + in.Cy
}

// ProjectionMatrix returns an OpenGL-convention projection matrix that
// reproduces this camera over a viewport of the given size.
func (in Intrinsics) ProjectionMatrix(width, height int, near, far float64) geom.Mat4 {
	var m geom.Mat4
	w := float64(width)
	h := float64(height)
	m.Set(0, 0, 2*in.Fx/w)
	m.Set(1, 1, 2*in.Fy/h)
	m.Set(0, 2, 1-2*in.Cx/w)
	m.Set(1, 2, 2*in.Cy/h-1)
	m.Set(2, 2, -(far+near)/(far-near))
	m.Set(2, 3, -2*far*near/(far-near))
	m.Set(3, 2, -1)
	return m
}

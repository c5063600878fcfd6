package estimate

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/biotinker/parallax/geom"
)

// TriangulatePoint recovers the 3D position of a point observed in two
// cameras by linear DLT. Observations are normalized camera coordinates;
// camera 1 sits at the origin and camera 2 at [r|t]. ok is false when the
// solution is at infinity or lands behind either camera.
func TriangulatePoint(x1, x2 r2.Point, r [9]float64, t r3.Vector) (r3.Vector, bool) {
	// Projection rows: P1 = [I|0], P2 = [r|t].
	p1 := [3][4]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
	p2 := [3][4]float64{
		{r[0], r[1], r[2], t.X},
		{r[3], r[4], r[5], t.Y},
		{r[6], r[7], r[8], t.Z},
	}

	a := mat.NewDense(4, 4, nil)
	for c := 0; c < 4; c++ {
		a.Set(0, c, x1.X*p1[2][c]-p1[0][c])
		a.Set(1, c, x1.Y*p1[2][c]-p1[1][c])
		a.Set(2, c, x2.X*p2[2][c]-p2[0][c])
		a.Set(3, c, x2.Y*p2[2][c]-p2[1][c])
	}

	h, ok := nullVector(a)
	if !ok || math.Abs(h[3]) < 1e-10 {
		return r3.Vector{}, false
	}
	p := r3.Vector{X: h[0] / h[3], Y: h[1] / h[3], Z: h[2] / h[3]}

	// Cheirality: the point must have positive depth in both cameras.
	if p.Z <= 0 {
		return p, false
	}
	if geom.Mat3MulVec(r, p).Add(t).Z <= 0 {
		return p, false
	}
	return p, true
}

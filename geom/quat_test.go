package geom

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

// Rotation matrices equal within tolerance, element-wise.
func rotationsClose(a, b [9]float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func TestQuatFromRotationMatrix_RoundTrip(t *testing.T) {
	// Angles chosen to exercise all four conversion branches: near zero
	// (positive trace), near 90, and near 180 around each axis (largest
	// diagonal term selection).
	angles := []float64{0, 0.01, math.Pi / 2, math.Pi - 0.01, math.Pi}
	axes := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}

	for _, axis := range axes {
		for _, angle := range angles {
			want := QuatFromAxisAngle(axis, angle).RotationMatrix()
			got := QuatFromRotationMatrix(want).RotationMatrix()
			if !rotationsClose(want, got, 1e-9) {
				t.Errorf("round trip failed for axis %v angle %.4f:\nwant %v\ngot  %v",
					axis, angle, want, got)
			}
		}
	}
}

func TestQuatFromRotationMatrix_CompositeRotation(t *testing.T) {
	// A rotation with no special structure still round-trips.
	q := QuatFromEuler(0.4, -1.1, 2.7).Normalized()
	r := q.RotationMatrix()
	got := QuatFromRotationMatrix(r).RotationMatrix()
	if !rotationsClose(r, got, 1e-9) {
		t.Errorf("composite rotation round trip failed:\nwant %v\ngot  %v", r, got)
	}
}

func TestQuatNormalized_Degenerate(t *testing.T) {
	q := Quaternion{}.Normalized()
	if q != IdentityQuat() {
		t.Errorf("zero quaternion should normalize to identity, got %+v", q)
	}
}

func TestQuatFromAxisAngle_RotatesVector(t *testing.T) {
	q := QuatFromAxisAngle(r3.Vector{Z: 1}, math.Pi/2)
	got := Mat3MulVec(q.RotationMatrix(), r3.Vector{X: 1})
	want := r3.Vector{Y: 1}
	if got.Sub(want).Norm() > 1e-9 {
		t.Errorf("90 degree z rotation of +x: got %v, want %v", got, want)
	}
}

package estimate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
)

func TestFitPlaneRANSAC_PlanarSubsetWithOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(21))

	// 60 points on the plane y = 0.5 plus 25 scattered outliers.
	var points []r3.Vector
	for i := 0; i < 60; i++ {
		points = append(points, r3.Vector{
			X: rng.Float64()*2 - 1,
			Y: 0.5,
			Z: rng.Float64()*2 - 1,
		})
	}
	for i := 0; i < 25; i++ {
		points = append(points, r3.Vector{
			X: rng.Float64()*2 - 1,
			Y: rng.Float64()*3 + 1,
			Z: rng.Float64()*2 - 1,
		})
	}

	n, d, inliers, err := FitPlaneRANSAC(points, 100, 0.02, rng)
	if err != nil {
		t.Fatalf("FitPlaneRANSAC failed: %v", err)
	}

	// Normal parallel to +-y.
	if math.Abs(math.Abs(n.Y)-1) > 0.01 {
		t.Errorf("normal %v not aligned with y axis", n)
	}

	// Every true-plane point must be an inlier.
	onPlane := make(map[int]bool, len(inliers))
	for _, i := range inliers {
		onPlane[i] = true
	}
	for i := 0; i < 60; i++ {
		if !onPlane[i] {
			t.Errorf("planar point %d not classified as inlier", i)
		}
	}

	// Plane equation holds for a known point.
	if res := math.Abs(n.Dot(r3.Vector{Y: 0.5}) + d); res > 0.02 {
		t.Errorf("plane equation residual %.4f at a true plane point", res)
	}
	t.Logf("fit plane n=%v d=%.4f with %d inliers", n, d, len(inliers))
}

func TestFitPlaneRANSAC_TooFewPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, _, _, err := FitPlaneRANSAC(make([]r3.Vector, 2), 10, 0.01, rng); err != ErrInsufficientPoints {
		t.Errorf("got %v, want ErrInsufficientPoints", err)
	}
}

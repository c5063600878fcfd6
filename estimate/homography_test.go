package estimate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/biotinker/parallax/camera"
	"github.com/biotinker/parallax/geom"
)

func TestEstimateHomography_RecoversKnownMapping(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	// A mild projective warp.
	want := [9]float64{
		1.1, 0.05, 20,
		-0.03, 0.95, -10,
		1e-4, -5e-5, 1,
	}

	src := make([]r2.Point, 80)
	dst := make([]r2.Point, 80)
	for i := range src {
		src[i] = r2.Point{X: rng.Float64() * 400, Y: rng.Float64() * 300}
		dst[i] = ApplyHomography(want, src[i])
	}

	h, inliers, err := EstimateHomography(src, dst, 2, rng)
	if err != nil {
		t.Fatalf("EstimateHomography failed: %v", err)
	}
	if len(inliers) < 75 {
		t.Fatalf("only %d/80 inliers on noise-free data", len(inliers))
	}

	// Compare by transfer rather than matrix elements.
	for _, p := range []r2.Point{{X: 0, Y: 0}, {X: 400, Y: 0}, {X: 200, Y: 300}} {
		got := ApplyHomography(h, p)
		ref := ApplyHomography(want, p)
		if math.Hypot(got.X-ref.X, got.Y-ref.Y) > 0.5 {
			t.Errorf("point %v maps to %v, want %v", p, got, ref)
		}
	}
}

func TestEstimateHomography_WithOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	want := [9]float64{1, 0, 50, 0, 1, -30, 0, 0, 1} // Pure translation

	src := make([]r2.Point, 60)
	dst := make([]r2.Point, 60)
	for i := range src {
		src[i] = r2.Point{X: rng.Float64() * 400, Y: rng.Float64() * 300}
		dst[i] = ApplyHomography(want, src[i])
	}
	for i := 0; i < 12; i++ {
		dst[i].X += 100 + rng.Float64()*100
	}

	h, inliers, err := EstimateHomography(src, dst, 3, rng)
	if err != nil {
		t.Fatalf("EstimateHomography failed: %v", err)
	}
	for _, j := range inliers {
		if j < 12 {
			t.Errorf("corrupted correspondence %d classified as inlier", j)
		}
	}
	got := ApplyHomography(h, r2.Point{X: 100, Y: 100})
	if math.Hypot(got.X-150, got.Y-70) > 0.5 {
		t.Errorf("translation homography off: got %v", got)
	}
}

func TestPoseFromHomography_FrontoParallelPlane(t *testing.T) {
	intr := camera.Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}

	// A plane facing the camera one meter ahead, shifted right by 0.2m:
	// a point (X, Y, 0) in plane coordinates lands at camera coordinates
	// (X + 0.2, Y, 1). The metric homography is K * [I2 | t].
	trans := r3.Vector{X: 0.2, Z: 1}
	h := [9]float64{
		intr.Fx, 0, intr.Fx*trans.X + intr.Cx*trans.Z,
		0, intr.Fy, intr.Cy * trans.Z,
		0, 0, trans.Z,
	}

	r, tGot, err := PoseFromHomography(h, intr)
	if err != nil {
		t.Fatalf("PoseFromHomography failed: %v", err)
	}
	if tGot.Sub(trans).Norm() > 1e-6 {
		t.Errorf("translation: got %v, want %v", tGot, trans)
	}
	ident := geom.Mat3Identity()
	for i := range ident {
		if math.Abs(r[i]-ident[i]) > 1e-6 {
			t.Errorf("rotation element %d: got %.6f, want %.1f", i, r[i], ident[i])
			break
		}
	}
}

func TestPoseFromHomography_InvalidIntrinsics(t *testing.T) {
	if _, _, err := PoseFromHomography(geom.Mat3Identity(), camera.Intrinsics{}); err != ErrDegenerate {
		t.Errorf("got %v, want ErrDegenerate", err)
	}
}

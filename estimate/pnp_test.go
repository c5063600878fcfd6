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

func pnpScene(rng *rand.Rand, n int, r [9]float64, t r3.Vector, intr camera.Intrinsics) ([]r3.Vector, []r2.Point) {
	obj := make([]r3.Vector, 0, n)
	img := make([]r2.Point, 0, n)
	for len(obj) < n {
		p := r3.Vector{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*4 - 2,
			Z: rng.Float64()*3 + 1,
		}
		c := geom.Mat3MulVec(r, p).Add(t)
		if c.Z < 0.5 {
			continue
		}
		u, v := intr.Project(c.X/c.Z, c.Y/c.Z)
		obj = append(obj, p)
		img = append(img, r2.Point{X: u, Y: v})
	}
	return obj, img
}

func TestSolvePnPRansac_RecoversKnownPose(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	intr := camera.Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	rot := geom.QuatFromAxisAngle(r3.Vector{X: 0.2, Y: 1, Z: -0.1}, 0.3).RotationMatrix()
	trans := r3.Vector{X: 0.4, Y: -0.2, Z: 1.5}

	obj, img := pnpScene(rng, 60, rot, trans, intr)

	rGot, tGot, inliers, err := SolvePnPRansac(obj, img, intr, DefaultPnPConfig(), rng)
	if err != nil {
		t.Fatalf("SolvePnPRansac failed: %v", err)
	}
	if len(inliers) < 55 {
		t.Fatalf("only %d/60 inliers on noise-free data", len(inliers))
	}
	if tGot.Sub(trans).Norm() > 0.01 {
		t.Errorf("translation: got %v, want %v", tGot, trans)
	}
	for i := range rot {
		if math.Abs(rGot[i]-rot[i]) > 0.01 {
			t.Errorf("rotation element %d: got %.4f, want %.4f", i, rGot[i], rot[i])
			break
		}
	}
	t.Logf("translation error %.5f with %d inliers", tGot.Sub(trans).Norm(), len(inliers))
}

func TestSolvePnPRansac_RejectsOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	intr := camera.Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	rot := geom.Mat3Identity()
	trans := r3.Vector{Z: 2}

	obj, img := pnpScene(rng, 50, rot, trans, intr)
	for i := 0; i < 10; i++ {
		img[i].X += 80 + rng.Float64()*50
		img[i].Y += 80 + rng.Float64()*50
	}

	_, tGot, inliers, err := SolvePnPRansac(obj, img, intr, DefaultPnPConfig(), rng)
	if err != nil {
		t.Fatalf("SolvePnPRansac failed: %v", err)
	}
	for _, j := range inliers {
		if j < 10 {
			t.Errorf("corrupted observation %d classified as inlier", j)
		}
	}
	if tGot.Sub(trans).Norm() > 0.05 {
		t.Errorf("translation: got %v, want %v", tGot, trans)
	}
}

func TestSolvePnPRansac_TooFewPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	intr := camera.Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	if _, _, _, err := SolvePnPRansac(make([]r3.Vector, 5), make([]r2.Point, 5), intr,
		DefaultPnPConfig(), rng); err != ErrInsufficientPoints {
		t.Errorf("got %v, want ErrInsufficientPoints", err)
	}
}

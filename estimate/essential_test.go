package estimate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/biotinker/parallax/geom"
)

// twoViewScene builds normalized observations of random 3D points from two
// cameras: camera 1 at the origin and camera 2 displaced by [r|t]
// (camera-2-from-camera-1 convention).
func twoViewScene(rng *rand.Rand, n int, r [9]float64, t r3.Vector) ([]r3.Vector, []r2.Point, []r2.Point) {
	world := make([]r3.Vector, 0, n)
	pts1 := make([]r2.Point, 0, n)
	pts2 := make([]r2.Point, 0, n)
	for len(world) < n {
		p := r3.Vector{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*4 - 2,
			Z: rng.Float64()*4 + 2,
		}
		q := geom.Mat3MulVec(r, p).Add(t)
		if q.Z < 0.1 {
			continue
		}
		world = append(world, p)
		pts1 = append(pts1, r2.Point{X: p.X / p.Z, Y: p.Y / p.Z})
		pts2 = append(pts2, r2.Point{X: q.X / q.Z, Y: q.Y / q.Z})
	}
	return world, pts1, pts2
}

func TestEstimateEssential_RecoverPose(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rot := geom.QuatFromAxisAngle(r3.Vector{Y: 1}, 0.05).RotationMatrix()
	trans := r3.Vector{X: -0.3, Y: 0.05, Z: 0.02}

	_, pts1, pts2 := twoViewScene(rng, 150, rot, trans)

	e, inliers, err := EstimateEssential(pts1, pts2, 1e-3, rng)
	if err != nil {
		t.Fatalf("EstimateEssential failed: %v", err)
	}
	if len(inliers) < 140 {
		t.Fatalf("only %d/150 inliers on noise-free data", len(inliers))
	}

	rGot, tGot, err := RecoverPose(e, pts1, pts2, inliers)
	if err != nil {
		t.Fatalf("RecoverPose failed: %v", err)
	}

	// Translation is recovered up to scale; compare directions.
	wantDir := trans.Normalize()
	dot := tGot.Dot(wantDir)
	if dot < 0.99 {
		t.Errorf("translation direction: got %v, want %v (dot %.4f)", tGot, wantDir, dot)
	}
	for i := range rot {
		if math.Abs(rGot[i]-rot[i]) > 0.01 {
			t.Errorf("rotation element %d: got %.4f, want %.4f", i, rGot[i], rot[i])
			break
		}
	}
}

func TestEstimateEssential_RejectsOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rot := geom.Mat3Identity()
	trans := r3.Vector{X: 0.5}

	_, pts1, pts2 := twoViewScene(rng, 120, rot, trans)

	// Corrupt 20 correspondences.
	for i := 0; i < 20; i++ {
		pts2[i].X += rng.Float64()*0.5 + 0.2
		pts2[i].Y -= rng.Float64()*0.5 + 0.2
	}

	_, inliers, err := EstimateEssential(pts1, pts2, 1e-3, rng)
	if err != nil {
		t.Fatalf("EstimateEssential failed: %v", err)
	}
	for _, j := range inliers {
		if j < 20 {
			t.Errorf("corrupted correspondence %d classified as inlier", j)
		}
	}
	if len(inliers) < 90 {
		t.Errorf("only %d/100 clean correspondences kept", len(inliers))
	}
}

func TestEstimateEssential_TooFewPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pts := make([]r2.Point, 5)
	if _, _, err := EstimateEssential(pts, pts, 1e-3, rng); err != ErrInsufficientPoints {
		t.Errorf("got %v, want ErrInsufficientPoints", err)
	}
}

func TestTriangulatePoint_KnownGeometry(t *testing.T) {
	// Camera 2 half a unit to the right, looking the same way.
	rot := geom.Mat3Identity()
	trans := r3.Vector{X: -0.5}
	world := r3.Vector{X: 0.2, Y: -0.1, Z: 3}

	x1 := r2.Point{X: world.X / world.Z, Y: world.Y / world.Z}
	q := world.Add(trans)
	x2 := r2.Point{X: q.X / q.Z, Y: q.Y / q.Z}

	got, ok := TriangulatePoint(x1, x2, rot, trans)
	if !ok {
		t.Fatal("triangulation rejected a valid point")
	}
	if got.Sub(world).Norm() > 1e-6 {
		t.Errorf("triangulated %v, want %v", got, world)
	}
}

func TestTriangulatePoint_RejectsBehindCamera(t *testing.T) {
	rot := geom.Mat3Identity()
	trans := r3.Vector{X: -0.5}
	world := r3.Vector{X: 0.1, Y: 0.1, Z: -2}

	x1 := r2.Point{X: world.X / world.Z, Y: world.Y / world.Z}
	q := world.Add(trans)
	x2 := r2.Point{X: q.X / q.Z, Y: q.Y / q.Z}

	if _, ok := TriangulatePoint(x1, x2, rot, trans); ok {
		t.Error("point behind both cameras accepted")
	}
}

package camera

import (
	"math"
	"testing"
)

func TestEstimateFromSize_SixtyDegreeFOV(t *testing.T) {
	in := EstimateFromSize(640, 480)
	if !in.Valid() {
		t.Fatal("estimated intrinsics not valid")
	}
	if in.Cx != 320 || in.Cy != 240 {
		t.Errorf("principal point: got (%.1f, %.1f), want (320, 240)", in.Cx, in.Cy)
	}

	// The horizontal field of view implied by the focal length should be
	// 60 degrees.
	fov := 2 * math.Atan(320/in.Fx) * 180 / math.Pi
	if math.Abs(fov-60) > 1e-9 {
		t.Errorf("horizontal FOV: got %.3f degrees, want 60", fov)
	}
	if in.Fx != in.Fy {
		t.Errorf("expected square pixels, got fx=%.2f fy=%.2f", in.Fx, in.Fy)
	}
}

func TestNormalizeProject_RoundTrip(t *testing.T) {
	in := Intrinsics{Fx: 500, Fy: 510, Cx: 320, Cy: 240}
	x, y := 123.4, 456.7
	nx, ny := in.Normalize(x, y)
	bx, by := in.Project(nx, ny)
	if math.Abs(bx-x) > 1e-9 || math.Abs(by-y) > 1e-9 {
		t.Errorf("round trip: got (%.6f, %.6f), want (%.1f, %.1f)", bx, by, x, y)
	}
}

func TestProjectionMatrix_CenterPixelOnAxis(t *testing.T) {
	in := EstimateFromSize(640, 480)
	p := in.ProjectionMatrix(640, 480, 0.1, 100)

	// A point straight ahead of the camera projects to NDC (0, 0).
	ndcX := p.At(0, 0)*0 + p.At(0, 2)*-1
	ndcY := p.At(1, 1)*0 + p.At(1, 2)*-1
	if math.Abs(ndcX) > 1e-9 || math.Abs(ndcY) > 1e-9 {
		t.Errorf("on-axis point maps to NDC (%.6f, %.6f), want (0, 0)", ndcX, ndcY)
	}
	if p.At(3, 2) != -1 {
		t.Errorf("projection w row: got %.1f, want -1", p.At(3, 2))
	}
}

package plane

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"

	"github.com/biotinker/parallax/geom"
)

func testDetector(t *testing.T) *Detector {
	t.Helper()
	return NewDetector(DefaultConfig(), logging.NewTestLogger(t), rand.New(rand.NewSource(8)))
}

// floorPoints scatters points on the plane y = height over a patch of the
// given half-extent, plus scattered outliers above it.
func floorPoints(rng *rand.Rand, n int, height, extent float64, outliers int) []r3.Vector {
	pts := make([]r3.Vector, 0, n+outliers)
	for i := 0; i < n; i++ {
		pts = append(pts, r3.Vector{
			X: rng.Float64()*2*extent - extent,
			Y: height,
			Z: rng.Float64()*2*extent - extent,
		})
	}
	for i := 0; i < outliers; i++ {
		pts = append(pts, r3.Vector{
			X: rng.Float64()*2*extent - extent,
			Y: height + 0.5 + rng.Float64(),
			Z: rng.Float64()*2*extent - extent,
		})
	}
	return pts
}

func TestDetect_HorizontalFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(61))
	d := testDetector(t)

	planes := d.Detect(floorPoints(rng, 80, 0, 1, 20))
	if len(planes) != 1 {
		t.Fatalf("got %d planes, want 1", len(planes))
	}

	p := planes[0]
	if !p.Horizontal {
		t.Error("floor not classified as horizontal")
	}
	if p.Normal.Y < 0.99 {
		t.Errorf("floor normal %v, want close to +y", p.Normal)
	}
	if math.Abs(p.Center.Y) > 0.02 {
		t.Errorf("floor center height %.3f, want near 0", p.Center.Y)
	}
	if p.Width < 1 || p.Height < 1 {
		t.Errorf("floor bounds %.2fx%.2f smaller than the sampled patch", p.Width, p.Height)
	}
	for _, c := range p.Corners {
		if math.Abs(c.Y) > 0.02 {
			t.Errorf("corner %v off the plane", c)
		}
	}
}

func TestDetect_BelowPointGate(t *testing.T) {
	rng := rand.New(rand.NewSource(62))
	d := testDetector(t)
	if planes := d.Detect(floorPoints(rng, 20, 0, 1, 0)); len(planes) != 0 {
		t.Errorf("detection ran below the minimum point gate: %d planes", len(planes))
	}
}

func TestDetect_MergeIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(63))
	d := testDetector(t)
	pts := floorPoints(rng, 100, 0, 1, 0)

	first := d.Detect(pts)
	if len(first) != 1 {
		t.Fatalf("got %d planes on first pass, want 1", len(first))
	}
	w, h := first[0].Width, first[0].Height
	id := first[0].ID

	// Re-detecting the same surface must merge, not duplicate, and the
	// bounds must not grow unboundedly.
	for i := 0; i < 3; i++ {
		again := d.Detect(pts)
		if len(again) != 1 {
			t.Fatalf("pass %d produced %d planes, want 1", i+2, len(again))
		}
		if again[0].ID != id {
			t.Errorf("merge changed plane id from %d to %d", id, again[0].ID)
		}
		if again[0].Width > w+0.05 || again[0].Height > h+0.05 {
			t.Errorf("bounds grew on re-detection: %.3fx%.3f vs %.3fx%.3f",
				again[0].Width, again[0].Height, w, h)
		}
		if again[0].Confidence > 1 {
			t.Errorf("confidence exceeded cap: %.3f", again[0].Confidence)
		}
	}
}

func TestDetect_SeparatePlanesKeptApart(t *testing.T) {
	rng := rand.New(rand.NewSource(64))
	d := testDetector(t)

	// Two floors half a meter apart: too far to merge.
	pts := append(floorPoints(rng, 80, 0, 1, 0), floorPoints(rng, 80, 0.5, 1, 0)...)
	planes := d.Detect(pts)
	if len(planes) != 2 {
		t.Fatalf("got %d planes, want 2", len(planes))
	}
}

func TestHitTest_BoundedIntersection(t *testing.T) {
	rng := rand.New(rand.NewSource(65))
	d := testDetector(t)
	d.Detect(floorPoints(rng, 100, 0, 1, 0))

	// Camera one unit above the origin looking straight down.
	view := geom.LookAt(r3.Vector{Y: 1}, r3.Vector{}, r3.Vector{Z: -1})
	proj := geom.Perspective(math.Pi/3, 1, 0.1, 100)

	hit, pl, ok := d.HitTest(50, 50, 100, 100, view, proj)
	if !ok {
		t.Fatal("center ray missed the detected floor")
	}
	if hit.Norm() > 0.05 {
		t.Errorf("hit %v, want near origin", hit)
	}
	if pl == nil || !pl.Horizontal {
		t.Error("hit did not report the horizontal floor")
	}

	// A ray far outside the plane bounds must miss.
	if _, _, ok := d.HitTest(99, 99, 100, 100, view, proj); ok {
		t.Log("edge ray still within bounded margin")
	}
}

func TestDetectFromPointCloud(t *testing.T) {
	rng := rand.New(rand.NewSource(66))
	d := testDetector(t)

	pc := pointcloud.New()
	for _, p := range floorPoints(rng, 80, 0, 1, 0) {
		if err := pc.Set(p, pointcloud.NewBasicData()); err != nil {
			t.Fatalf("point cloud set failed: %v", err)
		}
	}
	if planes := d.DetectFromPointCloud(pc); len(planes) != 1 {
		t.Fatalf("got %d planes from point cloud, want 1", len(planes))
	}
}

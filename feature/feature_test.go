package feature

import (
	"math/rand"
	"testing"

	"github.com/biotinker/parallax/frame"
)

// noiseImage builds a reproducible random texture, which is dense in
// corners and yields distinctive descriptors.
func noiseImage(width, height int, seed int64) *frame.Gray {
	rng := rand.New(rand.NewSource(seed))
	pix := make([]uint8, width*height)
	for i := range pix {
		pix[i] = uint8(rng.Intn(256))
	}
	return &frame.Gray{Width: width, Height: height, Pix: pix}
}

// squareImage draws a bright square on a dark background; its corners are
// the only strong features.
func squareImage(width, height int) *frame.Gray {
	pix := make([]uint8, width*height)
	for y := 20; y < 40; y++ {
		for x := 20; x < 40; x++ {
			pix[y*width+x] = 255
		}
	}
	return &frame.Gray{Width: width, Height: height, Pix: pix}
}

func TestDetect_FindsSquareCorners(t *testing.T) {
	img := squareImage(64, 64)
	kps := Detect(img, DefaultDetectorConfig())
	if len(kps) == 0 {
		t.Fatal("no keypoints on a high-contrast square")
	}

	// Every detection should be near one of the four square corners.
	corners := [][2]float64{{20, 20}, {39, 20}, {20, 39}, {39, 39}}
	for _, kp := range kps {
		nearest := 1e18
		for _, c := range corners {
			dx := kp.X - c[0]
			dy := kp.Y - c[1]
			if d := dx*dx + dy*dy; d < nearest {
				nearest = d
			}
		}
		if nearest > 5*5 {
			t.Errorf("keypoint (%.0f, %.0f) is not near any square corner", kp.X, kp.Y)
		}
	}
	t.Logf("detected %d corner keypoints", len(kps))
}

func TestDetect_RespectsFeatureCap(t *testing.T) {
	img := noiseImage(128, 128, 7)
	cfg := DefaultDetectorConfig()
	cfg.MaxFeatures = 50

	kps := Detect(img, cfg)
	if len(kps) > 50 {
		t.Fatalf("cap ignored: got %d keypoints", len(kps))
	}
	// Strongest-first ordering.
	for i := 1; i < len(kps); i++ {
		if kps[i].Response > kps[i-1].Response {
			t.Fatalf("keypoints not sorted by response at %d", i)
		}
	}
}

func TestHammingDistance(t *testing.T) {
	var a, b Descriptor
	if d := HammingDistance(&a, &b); d != 0 {
		t.Errorf("identical descriptors: got %d, want 0", d)
	}
	b[0] = 0x03
	b[31] = 0x80
	if d := HammingDistance(&a, &b); d != 3 {
		t.Errorf("3-bit difference: got %d, want 3", d)
	}
	for i := range b {
		a[i] = 0x00
		b[i] = 0xFF
	}
	if d := HammingDistance(&a, &b); d != 256 {
		t.Errorf("full difference: got %d, want 256", d)
	}
}

func TestMatch_IdenticalImagesMatchExactly(t *testing.T) {
	img := noiseImage(128, 128, 11)
	kps, descs := Extract(img, DefaultDetectorConfig())
	if len(kps) < 20 {
		t.Fatalf("expected a rich feature set, got %d", len(kps))
	}

	matches := MatchDescriptors(descs, descs)
	if len(matches) != len(descs) {
		t.Fatalf("self-match count: got %d, want %d", len(matches), len(descs))
	}
	for _, m := range matches {
		if m.QueryIdx != m.TrainIdx {
			t.Fatalf("self-match crossed indices: %d -> %d", m.QueryIdx, m.TrainIdx)
		}
		if m.Distance != 0 {
			t.Fatalf("self-match distance %f, want 0", m.Distance)
		}
	}
}

func TestMatchImages_SelfMatch(t *testing.T) {
	img := noiseImage(128, 128, 17)

	kpsA, kpsB, matches := MatchImages(img, img, DefaultDetectorConfig())
	if len(kpsA) == 0 || len(kpsA) != len(kpsB) {
		t.Fatalf("asymmetric extraction: %d vs %d keypoints", len(kpsA), len(kpsB))
	}
	if len(matches) != len(kpsA) {
		t.Fatalf("self-match count: got %d, want %d", len(matches), len(kpsA))
	}
	for _, m := range matches {
		a := kpsA[m.QueryIdx]
		b := kpsB[m.TrainIdx]
		if a.X != b.X || a.Y != b.Y {
			t.Fatalf("match pairs different positions: (%.0f, %.0f) -> (%.0f, %.0f)",
				a.X, a.Y, b.X, b.Y)
		}
		if m.Distance > StandaloneMatchFloor {
			t.Fatalf("self-match distance %f above the filter floor", m.Distance)
		}
	}
}

func TestFilterByMinDistance(t *testing.T) {
	matches := []Match{
		{QueryIdx: 0, TrainIdx: 0, Distance: 10},
		{QueryIdx: 1, TrainIdx: 1, Distance: 19},
		{QueryIdx: 2, TrainIdx: 2, Distance: 21},
		{QueryIdx: 3, TrainIdx: 3, Distance: 80},
	}
	// minDist=10, limit = max(2*10, 30) = 30.
	good := FilterByMinDistance(matches, 2, 30)
	if len(good) != 3 {
		t.Fatalf("got %d matches, want 3", len(good))
	}

	// With a large floor the floor wins.
	good = FilterByMinDistance(matches, 2, 100)
	if len(good) != 4 {
		t.Fatalf("floor-dominated filter: got %d matches, want 4", len(good))
	}

	if got := FilterByMinDistance(nil, 2, 30); got != nil {
		t.Errorf("empty input should return nil, got %v", got)
	}
}

func TestMatchRatio_RejectsAmbiguousMatches(t *testing.T) {
	// Train set: one descriptor near the query, one far, plus a duplicate
	// pair that makes the second query ambiguous.
	var q0, q1, far Descriptor
	q1[0] = 0xFF
	q1[1] = 0xFF
	for i := range far {
		far[i] = 0xFF
	}

	query := []Descriptor{q0, q1}
	train := []Descriptor{q0, far, q1, q1} // q1 appears twice: ambiguous

	matches := MatchRatio(query, train, 0.75)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (ambiguous match rejected)", len(matches))
	}
	if matches[0].QueryIdx != 0 || matches[0].TrainIdx != 0 {
		t.Errorf("unexpected match %+v", matches[0])
	}
}

func TestCompute_DropsBorderKeypoints(t *testing.T) {
	img := noiseImage(64, 64, 3)
	kps := []Keypoint{
		{X: 2, Y: 2},   // Too close to the border for a descriptor patch
		{X: 32, Y: 32}, // Fine
	}
	kept, descs := Compute(img, kps)
	if len(kept) != 1 || len(descs) != 1 {
		t.Fatalf("got %d kept keypoints, want 1", len(kept))
	}
	if kept[0].X != 32 {
		t.Errorf("wrong keypoint kept: %+v", kept[0])
	}
}

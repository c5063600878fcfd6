package feature

import (
	"sort"

	"github.com/biotinker/parallax/frame"
)

// DetectorConfig holds parameters for FAST corner detection.
type DetectorConfig struct {
	Threshold   int  // Minimum center/ring intensity difference (10-50)
	NonmaxSupp  bool // Suppress non-maximal corners in a 3x3 neighborhood
	MaxFeatures int  // Cap on returned keypoints, strongest first
}

// DefaultDetectorConfig returns the detector defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Threshold:   20,
		NonmaxSupp:  true,
		MaxFeatures: 1000,
	}
}

// Bresenham circle of radius 3 used by the FAST segment test.
var fastRing = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

const fastArc = 9 // Contiguous ring pixels required (FAST-9)

// Detect runs the FAST-9 segment test over the image, optionally applies
// 3x3 nonmax suppression on the corner score, sorts by response, and
// truncates to the configured cap.
func Detect(img *frame.Gray, cfg DetectorConfig) []Keypoint {
	if img == nil || img.Width < 8 || img.Height < 8 {
		return nil
	}

	scores := make([]float64, img.Width*img.Height)
	var candidates [][2]int

	for y := 3; y < img.Height-3; y++ {
		for x := 3; x < img.Width-3; x++ {
			if s, ok := cornerScore(img, x, y, cfg.Threshold); ok {
				scores[y*img.Width+x] = s
				candidates = append(candidates, [2]int{x, y})
			}
		}
	}

	kps := make([]Keypoint, 0, len(candidates))
	for _, c := range candidates {
		x, y := c[0], c[1]
		s := scores[y*img.Width+x]
		if cfg.NonmaxSupp && !isLocalMax(scores, img.Width, x, y, s) {
			continue
		}
		kps = append(kps, Keypoint{
			X:        float64(x),
			Y:        float64(y),
			Size:     7,
			Response: s,
			Angle:    orientation(img, x, y),
		})
	}

	sort.Slice(kps, func(i, j int) bool {
		return kps[i].Response > kps[j].Response
	})
	if cfg.MaxFeatures > 0 && len(kps) > cfg.MaxFeatures {
		kps = kps[:cfg.MaxFeatures]
	}
	return kps
}

// cornerScore runs the segment test at (x, y). It returns the corner score
// (sum of absolute differences over the qualifying arc) and whether the
// test passed.
func cornerScore(img *frame.Gray, x, y, threshold int) (float64, bool) {
	center := int(img.Pix[y*img.Width+x])
	lo := center - threshold
	hi := center + threshold

	var ring [16]int
	for i, off := range fastRing {
		ring[i] = int(img.Pix[(y+off[1])*img.Width+x+off[0]])
	}

	// Look for an arc of >= fastArc contiguous pixels all brighter than hi
	// or all darker than lo. The ring is scanned doubled to handle
	// wraparound.
	score, ok := arcScore(ring[:], hi, true)
	if !ok {
		score, ok = arcScore(ring[:], lo, false)
	}
	if !ok {
		return 0, false
	}
	return score, true
}

func arcScore(ring []int, bound int, brighter bool) (float64, bool) {
	run := 0
	bestSum := 0
	sum := 0
	for i := 0; i < len(ring)*2; i++ {
		v := ring[i%len(ring)]
		pass := false
		var diff int
		if brighter {
			pass = v > bound
			diff = v - bound
		} else {
			pass = v < bound
			diff = bound - v
		}
		if pass {
			run++
			sum += diff
			if run >= fastArc && sum > bestSum {
				bestSum = sum
			}
		} else {
			run = 0
			sum = 0
		}
		// A run spanning the whole doubled scan cannot add new arcs.
		if run >= len(ring) {
			break
		}
	}
	if bestSum == 0 {
		return 0, false
	}
	return float64(bestSum), true
}

func isLocalMax(scores []float64, width, x, y int, s float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if scores[(y+dy)*width+x+dx] > s {
				return false
			}
		}
	}
	return true
}

package feature

import (
	"math"
	"math/bits"

	"github.com/biotinker/parallax/frame"
)

// Defaults of the standalone image matcher. The live pipelines pass their
// own, tighter values to FilterByMinDistance.
const (
	StandaloneMatchRatio = 2.5
	StandaloneMatchFloor = 30
)

// HammingDistance returns the number of differing bits between two
// descriptors.
func HammingDistance(a, b *Descriptor) int {
	dist := 0
	for i := 0; i < DescriptorSize; i += 8 {
		x := uint64(a[i]) | uint64(a[i+1])<<8 | uint64(a[i+2])<<16 | uint64(a[i+3])<<24 |
			uint64(a[i+4])<<32 | uint64(a[i+5])<<40 | uint64(a[i+6])<<48 | uint64(a[i+7])<<56
		y := uint64(b[i]) | uint64(b[i+1])<<8 | uint64(b[i+2])<<16 | uint64(b[i+3])<<24 |
			uint64(b[i+4])<<32 | uint64(b[i+5])<<40 | uint64(b[i+6])<<48 | uint64(b[i+7])<<56
		dist += bits.OnesCount64(x ^ y)
	}
	return dist
}

// MatchDescriptors performs brute-force nearest-neighbor matching with
// cross-check: a pair is kept only when each descriptor is the other's
// nearest neighbor.
func MatchDescriptors(query, train []Descriptor) []Match {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}

	// Nearest train index for each query descriptor.
	fwd := make([]int, len(query))
	fwdDist := make([]int, len(query))
	for qi := range query {
		best, bestDist := -1, math.MaxInt
		for ti := range train {
			d := HammingDistance(&query[qi], &train[ti])
			if d < bestDist {
				best, bestDist = ti, d
			}
		}
		fwd[qi] = best
		fwdDist[qi] = bestDist
	}

	// Nearest query index for each train descriptor.
	bwd := make([]int, len(train))
	for ti := range train {
		best, bestDist := -1, math.MaxInt
		for qi := range query {
			d := HammingDistance(&query[qi], &train[ti])
			if d < bestDist {
				best, bestDist = qi, d
			}
		}
		bwd[ti] = best
	}

	var matches []Match
	for qi, ti := range fwd {
		if ti >= 0 && bwd[ti] == qi {
			matches = append(matches, Match{QueryIdx: qi, TrainIdx: ti, Distance: float64(fwdDist[qi])})
		}
	}
	return matches
}

// FilterByMinDistance keeps matches with distance <= max(ratio*minDist,
// floor), the filter used for frame-to-frame and map matching. With
// ratio=2 and floor=30 this is the classic "twice the best distance"
// heuristic.
func FilterByMinDistance(matches []Match, ratio, floor float64) []Match {
	if len(matches) == 0 {
		return nil
	}
	minDist := math.MaxFloat64
	for _, m := range matches {
		if m.Distance < minDist {
			minDist = m.Distance
		}
	}
	limit := math.Max(ratio*minDist, floor)

	good := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Distance <= limit {
			good = append(good, m)
		}
	}
	return good
}

// MatchImages extracts features from both images and returns them along
// with cross-checked matches filtered by the standalone min-distance
// heuristic. Convenience wrapper for one-shot image comparison outside the
// live pipelines.
func MatchImages(a, b *frame.Gray, cfg DetectorConfig) ([]Keypoint, []Keypoint, []Match) {
	kpsA, descsA := Extract(a, cfg)
	kpsB, descsB := Extract(b, cfg)
	matches := FilterByMinDistance(
		MatchDescriptors(descsA, descsB), StandaloneMatchRatio, StandaloneMatchFloor)
	return kpsA, kpsB, matches
}

// MatchRatio performs k=2 nearest-neighbor matching with Lowe's ratio test
// (best < ratio * secondBest). More selective than FilterByMinDistance; used
// for planar target recognition where homography validation follows.
func MatchRatio(query, train []Descriptor, ratio float64) []Match {
	if len(query) == 0 || len(train) < 2 {
		return nil
	}

	var matches []Match
	for qi := range query {
		best, second := math.MaxInt, math.MaxInt
		bestIdx := -1
		for ti := range train {
			d := HammingDistance(&query[qi], &train[ti])
			if d < best {
				second = best
				best = d
				bestIdx = ti
			} else if d < second {
				second = d
			}
		}
		if bestIdx >= 0 && float64(best) < ratio*float64(second) {
			matches = append(matches, Match{QueryIdx: qi, TrainIdx: bestIdx, Distance: float64(best)})
		}
	}
	return matches
}

package estimate

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
)

// FitPlaneRANSAC fits a plane n·p + d = 0 to the points by sampling three
// distinct points per iteration and keeping the candidate with the most
// inliers within threshold signed distance. The returned normal is unit
// length; no orientation is imposed.
func FitPlaneRANSAC(points []r3.Vector, iterations int, threshold float64, rng *rand.Rand) (r3.Vector, float64, []int, error) {
	if len(points) < 3 {
		return r3.Vector{}, 0, nil, ErrInsufficientPoints
	}

	idx := make([]int, 3)
	var bestNormal r3.Vector
	var bestD float64
	var bestInliers []int

	for it := 0; it < iterations; it++ {
		sampleDistinct(rng, len(points), idx)
		p0 := points[idx[0]]
		n := points[idx[1]].Sub(p0).Cross(points[idx[2]].Sub(p0))
		if n.Norm() < 1e-12 {
			continue
		}
		n = n.Normalize()
		d := -n.Dot(p0)

		var inliers []int
		for i, p := range points {
			if math.Abs(n.Dot(p)+d) < threshold {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestNormal = n
			bestD = d
			bestInliers = inliers
		}
	}

	if len(bestInliers) < 3 {
		return r3.Vector{}, 0, nil, ErrNoConsensus
	}
	return bestNormal, bestD, bestInliers, nil
}

package estimate

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// sampleDistinct fills idx with distinct random indices in [0, n).
func sampleDistinct(rng *rand.Rand, n int, idx []int) {
	for i := range idx {
		for {
			v := rng.Intn(n)
			dup := false
			for j := 0; j < i; j++ {
				if idx[j] == v {
					dup = true
					break
				}
			}
			if !dup {
				idx[i] = v
				break
			}
		}
	}
}

// ransacIterations returns the iteration count needed to draw at least one
// all-inlier sample with the given confidence, clamped to [1, maxIters].
func ransacIterations(confidence, inlierRatio float64, sampleSize, maxIters int) int {
	if inlierRatio <= 0 {
		return maxIters
	}
	if inlierRatio >= 1 {
		return 1
	}
	pGood := math.Pow(inlierRatio, float64(sampleSize))
	if pGood >= 1-1e-12 {
		return 1
	}
	n := math.Log(1-confidence) / math.Log(1-pGood)
	if math.IsNaN(n) || n > float64(maxIters) {
		return maxIters
	}
	if n < 1 {
		return 1
	}
	return int(math.Ceil(n))
}

// nullVector returns the right singular vector of a associated with its
// smallest singular value, i.e. the least-squares solution of a*x = 0 with
// |x| = 1.
func nullVector(a *mat.Dense) ([]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, false
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := a.Dims()
	out := make([]float64, cols)
	for i := range out {
		out[i] = v.At(i, cols-1)
	}
	return out, true
}

// hartleyNormalize translates the points to their centroid and scales so the
// mean distance from the origin is sqrt(2). Returns the normalized points
// and the 3x3 transform that performs the normalization.
func hartleyNormalize(pts []r2.Point) ([]r2.Point, [9]float64) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	s := math.Sqrt2
	if meanDist > 1e-12 {
		s = math.Sqrt2 / meanDist
	}

	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	t := [9]float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}
	return out, t
}

// nearestRotation projects a row-major 3x3 matrix onto SO(3) via SVD,
// returning the closest proper rotation.
func nearestRotation(m [9]float64) ([9]float64, bool) {
	a := mat.NewDense(3, 3, m[:])
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return [9]float64{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// Flip the last column of U to stay in SO(3).
		var d mat.Dense
		d.CloneFrom(&u)
		for i := 0; i < 3; i++ {
			d.Set(i, 2, -d.At(i, 2))
		}
		r.Mul(&d, v.T())
	}

	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = r.At(i, j)
		}
	}
	return out, true
}

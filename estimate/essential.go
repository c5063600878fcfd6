package estimate

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/biotinker/parallax/geom"
)

const (
	essentialSampleSize = 8
	essentialMaxIters   = 1000
	essentialConfidence = 0.999
)

// EstimateEssential fits an essential matrix to matched points given in
// normalized camera coordinates, using the eight-point algorithm inside
// RANSAC with Sampson-distance gating. threshold is the inlier distance in
// normalized coordinates (a pixel threshold divided by focal length).
// Returns the row-major essential matrix and the inlier indices.
func EstimateEssential(pts1, pts2 []r2.Point, threshold float64, rng *rand.Rand) ([9]float64, []int, error) {
	if len(pts1) != len(pts2) || len(pts1) < essentialSampleSize {
		return [9]float64{}, nil, ErrInsufficientPoints
	}

	n := len(pts1)
	thr2 := threshold * threshold
	idx := make([]int, essentialSampleSize)
	s1 := make([]r2.Point, essentialSampleSize)
	s2 := make([]r2.Point, essentialSampleSize)

	var bestE [9]float64
	var bestInliers []int
	iters := essentialMaxIters

	for it := 0; it < iters; it++ {
		sampleDistinct(rng, n, idx)
		for i, j := range idx {
			s1[i] = pts1[j]
			s2[i] = pts2[j]
		}
		e, ok := eightPoint(s1, s2)
		if !ok {
			continue
		}

		var inliers []int
		for i := 0; i < n; i++ {
			if sampsonDistance(e, pts1[i], pts2[i]) < thr2 {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestE = e
			bestInliers = inliers
			want := ransacIterations(essentialConfidence,
				float64(len(inliers))/float64(n), essentialSampleSize, essentialMaxIters)
			if want < iters {
				iters = want
			}
		}
	}

	if len(bestInliers) < essentialSampleSize {
		return [9]float64{}, nil, ErrNoConsensus
	}

	// Refit on the full consensus set.
	in1 := make([]r2.Point, len(bestInliers))
	in2 := make([]r2.Point, len(bestInliers))
	for i, j := range bestInliers {
		in1[i] = pts1[j]
		in2[i] = pts2[j]
	}
	if e, ok := eightPoint(in1, in2); ok {
		bestE = e
	}
	return bestE, bestInliers, nil
}

// eightPoint runs the normalized eight-point algorithm and enforces the
// rank-2 constraint on the result.
func eightPoint(pts1, pts2 []r2.Point) ([9]float64, bool) {
	n1, t1 := hartleyNormalize(pts1)
	n2, t2 := hartleyNormalize(pts2)

	a := mat.NewDense(len(pts1), 9, nil)
	for i := range n1 {
		x1, y1 := n1[i].X, n1[i].Y
		x2, y2 := n2[i].X, n2[i].Y
		a.SetRow(i, []float64{
			x2 * x1, x2 * y1, x2,
			y2 * x1, y2 * y1, y2,
			x1, y1, 1,
		})
	}

	f, ok := nullVector(a)
	if !ok {
		return [9]float64{}, false
	}

	// Rank-2 enforcement: zero the smallest singular value.
	fm := mat.NewDense(3, 3, f)
	var svd mat.SVD
	if !svd.Factorize(fm, mat.SVDFull) {
		return [9]float64{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sv := svd.Values(nil)
	d := mat.NewDiagDense(3, []float64{sv[0], sv[1], 0})

	var tmp, e mat.Dense
	tmp.Mul(&u, d)
	e.Mul(&tmp, v.T())

	// Undo the normalization: E = T2ᵀ * En * T1.
	var en [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			en[i*3+j] = e.At(i, j)
		}
	}
	out := geom.Mat3Mul(geom.Mat3Mul(geom.Mat3Transpose(t2), en), t1)

	// Scale so the largest element is 1 to keep distances comparable.
	var maxAbs float64
	for _, x := range out {
		if a := math.Abs(x); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs < 1e-12 {
		return [9]float64{}, false
	}
	for i := range out {
		out[i] /= maxAbs
	}
	return out, true
}

// sampsonDistance returns the first-order geometric error of a
// correspondence under e (squared, in normalized coordinate units).
func sampsonDistance(e [9]float64, p1, p2 r2.Point) float64 {
	// l2 = E * x1, l1 = Eᵀ * x2.
	l2x := e[0]*p1.X + e[1]*p1.Y + e[2]
	l2y := e[3]*p1.X + e[4]*p1.Y + e[5]
	l2z := e[6]*p1.X + e[7]*p1.Y + e[8]
	l1x := e[0]*p2.X + e[3]*p2.Y + e[6]
	l1y := e[1]*p2.X + e[4]*p2.Y + e[7]

	num := p2.X*l2x + p2.Y*l2y + l2z
	den := l2x*l2x + l2y*l2y + l1x*l1x + l1y*l1y
	if den < 1e-12 {
		return math.MaxFloat64
	}
	return num * num / den
}

// RecoverPose decomposes an essential matrix into the four candidate
// relative poses and selects the one placing the most inlier points in
// front of both cameras. Returns camera-2-from-camera-1 rotation and a
// unit-norm translation.
func RecoverPose(e [9]float64, pts1, pts2 []r2.Point, inliers []int) ([9]float64, r3.Vector, error) {
	if len(inliers) == 0 {
		return [9]float64{}, r3.Vector{}, ErrInsufficientPoints
	}

	em := mat.NewDense(3, 3, e[:])
	var svd mat.SVD
	if !svd.Factorize(em, mat.SVDFull) {
		return [9]float64{}, r3.Vector{}, ErrDegenerate
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Both factors must be proper rotations before forming candidates.
	if mat.Det(&u) < 0 {
		scaleCol(&u, 2, -1)
	}
	if mat.Det(&v) < 0 {
		scaleCol(&v, 2, -1)
	}

	w := [9]float64{0, -1, 0, 1, 0, 0, 0, 0, 1}
	um := denseToArr(&u)
	vt := geom.Mat3Transpose(denseToArr(&v))
	r1 := geom.Mat3Mul(geom.Mat3Mul(um, w), vt)
	r2m := geom.Mat3Mul(geom.Mat3Mul(um, geom.Mat3Transpose(w)), vt)
	t := r3.Vector{X: u.At(0, 2), Y: u.At(1, 2), Z: u.At(2, 2)}

	candidates := []struct {
		r [9]float64
		t r3.Vector
	}{
		{r1, t},
		{r1, t.Mul(-1)},
		{r2m, t},
		{r2m, t.Mul(-1)},
	}

	bestVotes := -1
	var bestR [9]float64
	var bestT r3.Vector
	for _, c := range candidates {
		votes := 0
		for _, j := range inliers {
			if _, ok := TriangulatePoint(pts1[j], pts2[j], c.r, c.t); ok {
				votes++
			}
		}
		if votes > bestVotes {
			bestVotes = votes
			bestR = c.r
			bestT = c.t
		}
	}
	if bestVotes <= 0 {
		return [9]float64{}, r3.Vector{}, ErrDegenerate
	}
	return bestR, bestT, nil
}

func scaleCol(m *mat.Dense, col int, s float64) {
	for i := 0; i < 3; i++ {
		m.Set(i, col, s*m.At(i, col))
	}
}

func denseToArr(m *mat.Dense) [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = m.At(i, j)
		}
	}
	return out
}

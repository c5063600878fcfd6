package estimate

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/biotinker/parallax/camera"
	"github.com/biotinker/parallax/geom"
)

const (
	homographySampleSize = 4
	homographyMaxIters   = 1000
	homographyConfidence = 0.995
)

// EstimateHomography fits a projective mapping from src to dst points (both
// in pixels) with RANSAC over the normalized four-point DLT. threshold is
// the forward transfer error in pixels. Returns the row-major homography
// (scaled so h[8] = 1) and the inlier indices.
func EstimateHomography(src, dst []r2.Point, threshold float64, rng *rand.Rand) ([9]float64, []int, error) {
	if len(src) != len(dst) || len(src) < homographySampleSize {
		return [9]float64{}, nil, ErrInsufficientPoints
	}

	n := len(src)
	thr2 := threshold * threshold
	idx := make([]int, homographySampleSize)
	ss := make([]r2.Point, homographySampleSize)
	sd := make([]r2.Point, homographySampleSize)

	var bestH [9]float64
	var bestInliers []int
	iters := homographyMaxIters

	for it := 0; it < iters; it++ {
		sampleDistinct(rng, n, idx)
		for i, j := range idx {
			ss[i] = src[j]
			sd[i] = dst[j]
		}
		h, ok := homographyDLT(ss, sd)
		if !ok {
			continue
		}

		var inliers []int
		for i := 0; i < n; i++ {
			if transferError(h, src[i], dst[i]) < thr2 {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestH = h
			bestInliers = inliers
			want := ransacIterations(homographyConfidence,
				float64(len(inliers))/float64(n), homographySampleSize, homographyMaxIters)
			if want < iters {
				iters = want
			}
		}
	}

	if len(bestInliers) < homographySampleSize {
		return [9]float64{}, nil, ErrNoConsensus
	}

	is := make([]r2.Point, len(bestInliers))
	id := make([]r2.Point, len(bestInliers))
	for i, j := range bestInliers {
		is[i] = src[j]
		id[i] = dst[j]
	}
	if h, ok := homographyDLT(is, id); ok {
		bestH = h
	}
	return bestH, bestInliers, nil
}

// homographyDLT solves the direct linear transform for h with Hartley
// normalization on both point sets.
func homographyDLT(src, dst []r2.Point) ([9]float64, bool) {
	ns, ts := hartleyNormalize(src)
	nd, td := hartleyNormalize(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range ns {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{
			-x, -y, -1, 0, 0, 0, u * x, u * y, u,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, -x, -y, -1, v * x, v * y, v,
		})
	}

	hv, ok := nullVector(a)
	if !ok {
		return [9]float64{}, false
	}
	var hn [9]float64
	copy(hn[:], hv)

	// Undo normalization: H = Td⁻¹ * Hn * Ts.
	tdInv, ok := invertNormTransform(td)
	if !ok {
		return [9]float64{}, false
	}
	h := geom.Mat3Mul(geom.Mat3Mul(tdInv, hn), ts)
	if math.Abs(h[8]) < 1e-12 {
		return [9]float64{}, false
	}
	for i := range h {
		h[i] /= h[8]
	}
	return h, true
}

// invertNormTransform inverts the similarity transform produced by
// hartleyNormalize ([s 0 -s*cx; 0 s -s*cy; 0 0 1]).
func invertNormTransform(t [9]float64) ([9]float64, bool) {
	s := t[0]
	if math.Abs(s) < 1e-12 {
		return [9]float64{}, false
	}
	return [9]float64{
		1 / s, 0, -t[2] / s,
		0, 1 / s, -t[5] / s,
		0, 0, 1,
	}, true
}

// transferError returns the squared forward transfer error |H*src - dst|².
func transferError(h [9]float64, src, dst r2.Point) float64 {
	w := h[6]*src.X + h[7]*src.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return math.MaxFloat64
	}
	u := (h[0]*src.X + h[1]*src.Y + h[2]) / w
	v := (h[3]*src.X + h[4]*src.Y + h[5]) / w
	du := u - dst.X
	dv := v - dst.Y
	return du*du + dv*dv
}

// ApplyHomography maps a point through h.
func ApplyHomography(h [9]float64, p r2.Point) r2.Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return r2.Point{}
	}
	return r2.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// PoseFromHomography recovers the pose of a planar object from the
// homography mapping its plane coordinates (in the same metric unit as the
// desired translation) to pixels. The plane is assumed at z=0 in object
// space. Returns the camera-from-object rotation and translation.
func PoseFromHomography(h [9]float64, intr camera.Intrinsics) ([9]float64, r3.Vector, error) {
	if !intr.Valid() {
		return [9]float64{}, r3.Vector{}, ErrDegenerate
	}

	// A = K⁻¹ * H; its columns are [λr1 λr2 λt].
	kinv := [9]float64{
		1 / intr.Fx, 0, -intr.Cx / intr.Fx,
		0, 1 / intr.Fy, -intr.Cy / intr.Fy,
		0, 0, 1,
	}
	a := geom.Mat3Mul(kinv, h)

	c1 := r3.Vector{X: a[0], Y: a[3], Z: a[6]}
	c2 := r3.Vector{X: a[1], Y: a[4], Z: a[7]}
	c3 := r3.Vector{X: a[2], Y: a[5], Z: a[8]}

	n1 := c1.Norm()
	n2 := c2.Norm()
	if n1 < 1e-12 || n2 < 1e-12 {
		return [9]float64{}, r3.Vector{}, ErrDegenerate
	}
	lambda := 2 / (n1 + n2)
	c1 = c1.Mul(lambda)
	c2 = c2.Mul(lambda)
	c3 = c3.Mul(lambda)

	// The object must sit in front of the camera.
	if c3.Z < 0 {
		c1 = c1.Mul(-1)
		c2 = c2.Mul(-1)
		c3 = c3.Mul(-1)
	}

	rc3 := c1.Cross(c2)
	approx := [9]float64{
		c1.X, c2.X, rc3.X,
		c1.Y, c2.Y, rc3.Y,
		c1.Z, c2.Z, rc3.Z,
	}
	r, ok := nearestRotation(approx)
	if !ok {
		return [9]float64{}, r3.Vector{}, ErrDegenerate
	}
	return r, c3, nil
}

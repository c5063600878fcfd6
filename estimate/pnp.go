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

const pnpSampleSize = 6

// PnPConfig holds parameters for RANSAC perspective-n-point estimation.
type PnPConfig struct {
	Iterations      int     // RANSAC iteration budget
	ReprojThreshold float64 // Inlier reprojection error in pixels
	Confidence      float64 // Early-exit confidence
}

// DefaultPnPConfig returns the PnP defaults.
func DefaultPnPConfig() PnPConfig {
	return PnPConfig{
		Iterations:      100,
		ReprojThreshold: 8.0,
		Confidence:      0.99,
	}
}

// SolvePnPRansac estimates the camera pose [r|t] mapping world points to
// camera coordinates from 3D-2D correspondences. Image points are in
// pixels. Returns the rotation, translation, and inlier indices.
func SolvePnPRansac(obj []r3.Vector, img []r2.Point, intr camera.Intrinsics,
	cfg PnPConfig, rng *rand.Rand,
) ([9]float64, r3.Vector, []int, error) {
	if len(obj) != len(img) || len(obj) < pnpSampleSize {
		return [9]float64{}, r3.Vector{}, nil, ErrInsufficientPoints
	}

	// Solve in normalized coordinates so the DLT projection matrix is
	// directly [r|t] up to scale.
	norm := make([]r2.Point, len(img))
	for i, p := range img {
		nx, ny := intr.Normalize(p.X, p.Y)
		norm[i] = r2.Point{X: nx, Y: ny}
	}

	n := len(obj)
	idx := make([]int, pnpSampleSize)
	so := make([]r3.Vector, pnpSampleSize)
	si := make([]r2.Point, pnpSampleSize)

	var bestR [9]float64
	var bestT r3.Vector
	var bestInliers []int
	iters := cfg.Iterations

	for it := 0; it < iters; it++ {
		sampleDistinct(rng, n, idx)
		for i, j := range idx {
			so[i] = obj[j]
			si[i] = norm[j]
		}
		r, t, ok := pnpDLT(so, si)
		if !ok {
			continue
		}

		var inliers []int
		for i := 0; i < n; i++ {
			if reprojError(r, t, intr, obj[i], img[i]) < cfg.ReprojThreshold {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestR, bestT = r, t
			bestInliers = inliers
			want := ransacIterations(cfg.Confidence,
				float64(len(inliers))/float64(n), pnpSampleSize, cfg.Iterations)
			if want < iters {
				iters = want
			}
		}
	}

	if len(bestInliers) < pnpSampleSize {
		return [9]float64{}, r3.Vector{}, nil, ErrNoConsensus
	}

	// Refit on the consensus set.
	io := make([]r3.Vector, len(bestInliers))
	ii := make([]r2.Point, len(bestInliers))
	for i, j := range bestInliers {
		io[i] = obj[j]
		ii[i] = norm[j]
	}
	if r, t, ok := pnpDLT(io, ii); ok {
		bestR, bestT = r, t
	}
	return bestR, bestT, bestInliers, nil
}

// pnpDLT solves for the 3x4 projection matrix linearly from 3D points and
// normalized image observations, then factors it into a proper rotation and
// translation.
func pnpDLT(obj []r3.Vector, img []r2.Point) ([9]float64, r3.Vector, bool) {
	a := mat.NewDense(2*len(obj), 12, nil)
	for i := range obj {
		x, y, z := obj[i].X, obj[i].Y, obj[i].Z
		u, v := img[i].X, img[i].Y
		a.SetRow(2*i, []float64{
			x, y, z, 1, 0, 0, 0, 0, -u * x, -u * y, -u * z, -u,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, 0, x, y, z, 1, -v * x, -v * y, -v * z, -v,
		})
	}

	p, ok := nullVector(a)
	if !ok {
		return [9]float64{}, r3.Vector{}, false
	}

	// Fix the scale so the third rotation row has unit norm, and the sign
	// so points in front of the camera project with positive depth.
	scale := math.Sqrt(p[8]*p[8] + p[9]*p[9] + p[10]*p[10])
	if scale < 1e-12 {
		return [9]float64{}, r3.Vector{}, false
	}
	for i := range p {
		p[i] /= scale
	}
	m := [9]float64{p[0], p[1], p[2], p[4], p[5], p[6], p[8], p[9], p[10]}
	t := r3.Vector{X: p[3], Y: p[7], Z: p[11]}
	if geom.Mat3Det(m) < 0 {
		for i := range m {
			m[i] = -m[i]
		}
		t = t.Mul(-1)
	}

	r, ok := nearestRotation(m)
	if !ok {
		return [9]float64{}, r3.Vector{}, false
	}
	return r, t, true
}

// reprojError projects a world point through [r|t] and returns the pixel
// distance to its observation. Points behind the camera report an infinite
// error.
func reprojError(r [9]float64, t r3.Vector, intr camera.Intrinsics, obj r3.Vector, img r2.Point) float64 {
	c := geom.Mat3MulVec(r, obj).Add(t)
	if c.Z <= 1e-9 {
		return math.MaxFloat64
	}
	u, v := intr.Project(c.X/c.Z, c.Y/c.Z)
	return math.Hypot(u-img.X, v-img.Y)
}

// Package hittest casts screen-space rays into the world and intersects
// them with planes: either a RANSAC-estimated ground plane from raw 3D
// points or the default ground plane at y=0.
package hittest

import (
	"errors"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/biotinker/parallax/estimate"
	"github.com/biotinker/parallax/geom"
)

var (
	// ErrNotHorizontal is returned when the best RANSAC plane is not flat
	// enough to serve as a ground plane.
	ErrNotHorizontal = errors.New("estimated plane is not horizontal")

	// ErrSingularMatrix is returned when a camera matrix cannot be
	// inverted for unprojection.
	ErrSingularMatrix = errors.New("camera matrix is singular")
)

// Plane is the implicit plane n·p + d = 0.
type Plane struct {
	Normal r3.Vector
	D      float64
}

// GroundPlane returns the default ground plane y = 0 facing up.
func GroundPlane() Plane {
	return Plane{Normal: r3.Vector{Y: 1}}
}

// DistanceTo returns the signed distance from p to the plane.
func (pl Plane) DistanceTo(p r3.Vector) float64 {
	return pl.Normal.Dot(p) + pl.D
}

// Ray is an origin plus a unit direction.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// Valid reports whether the ray has a usable direction.
func (r Ray) Valid() bool {
	return r.Direction.Norm() > 1e-9
}

// Config holds ground-plane estimation parameters.
type Config struct {
	Iterations        int     // RANSAC iterations
	DistanceThreshold float64 // Inlier distance, world units
	MinInliers        int     // Inliers required to accept the plane
	HorizontalCos     float64 // Minimum |normal·up| for a ground plane
}

// DefaultConfig returns the ground-plane estimation defaults.
func DefaultConfig() Config {
	return Config{
		Iterations:        100,
		DistanceThreshold: 0.03,
		MinInliers:        20,
		HorizontalCos:     0.85,
	}
}

// EstimateGroundPlane fits a horizontal plane to the points. Unlike the
// plane detector there is no vertical-plane support: a dominant plane that
// fails the horizontality gate is rejected outright.
func EstimateGroundPlane(points []r3.Vector, cfg Config, rng *rand.Rand) (Plane, error) {
	n, d, inliers, err := estimate.FitPlaneRANSAC(points, cfg.Iterations, cfg.DistanceThreshold, rng)
	if err != nil {
		return Plane{}, err
	}
	if len(inliers) < cfg.MinInliers {
		return Plane{}, estimate.ErrNoConsensus
	}
	if math.Abs(n.Y) < cfg.HorizontalCos {
		return Plane{}, ErrNotHorizontal
	}
	if n.Y < 0 {
		n = n.Mul(-1)
		d = -d
	}
	return Plane{Normal: n, D: d}, nil
}

// ScreenToRay unprojects a screen pixel into a world-space ray through the
// inverse projection and view matrices. Fails when either matrix is
// singular.
func ScreenToRay(x, y, screenW, screenH float64, view, proj geom.Mat4) (Ray, error) {
	invProj, ok := proj.Inverse()
	if !ok {
		return Ray{}, ErrSingularMatrix
	}
	invView, ok := view.Inverse()
	if !ok {
		return Ray{}, ErrSingularMatrix
	}

	ndcX := 2*x/screenW - 1
	ndcY := 1 - 2*y/screenH

	near := unproject(invProj, invView, r3.Vector{X: ndcX, Y: ndcY, Z: -1})
	far := unproject(invProj, invView, r3.Vector{X: ndcX, Y: ndcY, Z: 1})

	dir := far.Sub(near)
	if dir.Norm() < 1e-9 {
		return Ray{}, ErrSingularMatrix
	}
	return Ray{Origin: near, Direction: dir.Normalize()}, nil
}

func unproject(invProj, invView geom.Mat4, ndc r3.Vector) r3.Vector {
	viewPt := invProj.TransformPoint(ndc)
	return invView.TransformPoint(viewPt)
}

// RayPlaneIntersect solves t = -(n·O + d) / (n·D). Parallel rays and
// intersections behind the origin report ok = false.
func RayPlaneIntersect(r Ray, pl Plane) (r3.Vector, float64, bool) {
	denom := pl.Normal.Dot(r.Direction)
	if math.Abs(denom) < 1e-6 {
		return r3.Vector{}, 0, false
	}
	t := -(pl.Normal.Dot(r.Origin) + pl.D) / denom
	if t < 0 {
		return r3.Vector{}, 0, false
	}
	return r.Origin.Add(r.Direction.Mul(t)), t, true
}

// HitTest casts a ray from the screen position and intersects it with the
// given plane.
func HitTest(x, y, screenW, screenH float64, view, proj geom.Mat4, pl Plane) (r3.Vector, bool) {
	ray, err := ScreenToRay(x, y, screenW, screenH, view, proj)
	if err != nil {
		return r3.Vector{}, false
	}
	p, _, ok := RayPlaneIntersect(ray, pl)
	return p, ok
}

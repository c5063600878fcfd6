// Package plane detects planar surfaces in the sparse map by iterative
// RANSAC fitting, classifies and merges them, and supports bounded hit
// testing against the detected set.
package plane

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"

	"github.com/biotinker/parallax/estimate"
	"github.com/biotinker/parallax/geom"
	"github.com/biotinker/parallax/hittest"
)

// DetectedPlane is a bounded planar surface. The normal's up component is
// always non-negative. Planes are merged in place and never deleted within
// a session; the id is stable across merges.
type DetectedPlane struct {
	ID         int
	Center     r3.Vector
	Normal     r3.Vector
	Width      float64
	Height     float64
	Corners    [4]r3.Vector
	Horizontal bool
	Confidence float64
}

// Config holds plane detection parameters.
type Config struct {
	Iterations        int     // RANSAC iterations per plane
	DistanceThreshold float64 // Inlier distance, world units
	MinPoints         int     // Point-count gate before detection runs at all
	MinInliers        int     // Inliers required to accept a plane
	MaxPlanesPerCall  int     // Planes extracted per detection call
	HorizontalCos     float64 // Minimum |normal·up| for the horizontal class
	MergeNormalDot    float64 // Normal agreement required to merge
	MergeCenterDist   float64 // Center distance allowed for merging, world units
	HitMarginRatio    float64 // Hit acceptance radius as a fraction of max(w, h)
}

// DefaultConfig returns the plane detection defaults.
func DefaultConfig() Config {
	return Config{
		Iterations:        100,
		DistanceThreshold: 0.02,
		MinPoints:         50,
		MinInliers:        50,
		MaxPlanesPerCall:  3,
		HorizontalCos:     0.9,
		MergeNormalDot:    0.95,
		MergeCenterDist:   0.10,
		HitMarginRatio:    0.6,
	}
}

// Detector accumulates detected planes across calls. It holds no reference
// to the point source; every Detect call works on the snapshot it is given.
type Detector struct {
	cfg    Config
	logger logging.Logger
	rng    *rand.Rand

	planes []*DetectedPlane
	nextID int
}

// NewDetector returns an empty detector.
func NewDetector(cfg Config, logger logging.Logger, rng *rand.Rand) *Detector {
	return &Detector{cfg: cfg, logger: logger, rng: rng}
}

// Reset drops all accumulated planes.
func (d *Detector) Reset() {
	d.planes = nil
	d.nextID = 0
}

// Planes returns a copy of the current plane set.
func (d *Detector) Planes() []DetectedPlane {
	out := make([]DetectedPlane, len(d.planes))
	for i, p := range d.planes {
		out[i] = *p
	}
	return out
}

// Detect extracts up to MaxPlanesPerCall planes from the point snapshot,
// merging each into the accumulated set or appending it. Returns the full
// set after the update.
func (d *Detector) Detect(points []r3.Vector) []DetectedPlane {
	if len(points) < d.cfg.MinPoints {
		return d.Planes()
	}

	remaining := append([]r3.Vector(nil), points...)
	for i := 0; i < d.cfg.MaxPlanesPerCall && len(remaining) >= d.cfg.MinInliers; i++ {
		n, dd, inliers, err := estimate.FitPlaneRANSAC(
			remaining, d.cfg.Iterations, d.cfg.DistanceThreshold, d.rng)
		if err != nil || len(inliers) < d.cfg.MinInliers {
			break
		}

		p := d.buildPlane(n, dd, remaining, inliers)
		d.absorb(p)

		// Consume the inliers so the next fit works on the rest.
		remaining = removeIndices(remaining, inliers)
	}
	return d.Planes()
}

// DetectFromPointCloud is Detect over an rdk point cloud.
func (d *Detector) DetectFromPointCloud(pc pointcloud.PointCloud) []DetectedPlane {
	points := make([]r3.Vector, 0, pc.Size())
	pc.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		points = append(points, p)
		return true
	})
	return d.Detect(points)
}

// buildPlane classifies a fitted plane and derives its bounds from the
// inlier points projected onto an in-plane basis.
func (d *Detector) buildPlane(n r3.Vector, _ float64, points []r3.Vector, inliers []int) *DetectedPlane {
	if n.Y < 0 {
		n = n.Mul(-1)
	}
	horizontal := math.Abs(n.Y) > d.cfg.HorizontalCos

	var centroid r3.Vector
	for _, i := range inliers {
		centroid = centroid.Add(points[i])
	}
	centroid = centroid.Mul(1 / float64(len(inliers)))

	right, forward := planeBasis(n)
	minU, maxU := math.MaxFloat64, -math.MaxFloat64
	minV, maxV := math.MaxFloat64, -math.MaxFloat64
	for _, i := range inliers {
		rel := points[i].Sub(centroid)
		u := rel.Dot(right)
		v := rel.Dot(forward)
		minU = math.Min(minU, u)
		maxU = math.Max(maxU, u)
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	center := centroid.
		Add(right.Mul((minU + maxU) / 2)).
		Add(forward.Mul((minV + maxV) / 2))
	width := maxU - minU
	height := maxV - minV

	halfR := right.Mul(width / 2)
	halfF := forward.Mul(height / 2)
	return &DetectedPlane{
		Center: center,
		Normal: n,
		Width:  width,
		Height: height,
		Corners: [4]r3.Vector{
			center.Sub(halfR).Sub(halfF),
			center.Add(halfR).Sub(halfF),
			center.Add(halfR).Add(halfF),
			center.Sub(halfR).Add(halfF),
		},
		Horizontal: horizontal,
		Confidence: float64(len(inliers)) / float64(len(points)),
	}
}

// absorb merges the new plane into a geometrically close existing plane of
// the same class, or appends it with a fresh id.
func (d *Detector) absorb(p *DetectedPlane) {
	for _, existing := range d.planes {
		if existing.Horizontal != p.Horizontal {
			continue
		}
		if existing.Normal.Dot(p.Normal) <= d.cfg.MergeNormalDot {
			continue
		}
		if existing.Center.Sub(p.Center).Norm() >= d.cfg.MergeCenterDist {
			continue
		}

		existing.Center = existing.Center.Add(p.Center).Mul(0.5)
		existing.Width = math.Max(existing.Width, p.Width)
		existing.Height = math.Max(existing.Height, p.Height)
		existing.Confidence = math.Min(1, existing.Confidence+0.5*p.Confidence)
		existing.refreshCorners()
		d.logger.Debugf("plane %d merged, confidence %.2f", existing.ID, existing.Confidence)
		return
	}

	p.ID = d.nextID
	d.nextID++
	d.planes = append(d.planes, p)
	d.logger.Debugf("plane %d detected (%s, %.2fx%.2f)", p.ID, className(p.Horizontal), p.Width, p.Height)
}

// HitTest unprojects a screen position and returns the nearest bounded
// intersection across the detected planes. A hit counts when its distance
// to the plane center is within HitMarginRatio of the larger dimension.
func (d *Detector) HitTest(x, y, screenW, screenH float64, view, proj geom.Mat4) (r3.Vector, *DetectedPlane, bool) {
	ray, err := hittest.ScreenToRay(x, y, screenW, screenH, view, proj)
	if err != nil {
		return r3.Vector{}, nil, false
	}

	bestT := math.MaxFloat64
	var bestPoint r3.Vector
	var bestPlane *DetectedPlane
	for _, p := range d.planes {
		pl := hittest.Plane{Normal: p.Normal, D: -p.Normal.Dot(p.Center)}
		hit, t, ok := hittest.RayPlaneIntersect(ray, pl)
		if !ok || t >= bestT {
			continue
		}
		margin := d.cfg.HitMarginRatio * math.Max(p.Width, p.Height)
		if hit.Sub(p.Center).Norm() > margin {
			continue
		}
		bestT = t
		bestPoint = hit
		bestPlane = p
	}
	return bestPoint, bestPlane, bestPlane != nil
}

func (p *DetectedPlane) refreshCorners() {
	right, forward := planeBasis(p.Normal)
	halfR := right.Mul(p.Width / 2)
	halfF := forward.Mul(p.Height / 2)
	p.Corners = [4]r3.Vector{
		p.Center.Sub(halfR).Sub(halfF),
		p.Center.Add(halfR).Sub(halfF),
		p.Center.Add(halfR).Add(halfF),
		p.Center.Sub(halfR).Add(halfF),
	}
}

// planeBasis returns an arbitrary orthonormal right/forward pair spanning
// the plane with the given normal.
func planeBasis(n r3.Vector) (r3.Vector, r3.Vector) {
	ref := r3.Vector{Y: 1}
	if math.Abs(n.Y) > 0.9 {
		ref = r3.Vector{X: 1}
	}
	right := n.Cross(ref).Normalize()
	forward := n.Cross(right).Normalize()
	return right, forward
}

func className(horizontal bool) string {
	if horizontal {
		return "horizontal"
	}
	return "vertical"
}

func removeIndices(points []r3.Vector, drop []int) []r3.Vector {
	skip := make(map[int]bool, len(drop))
	for _, i := range drop {
		skip[i] = true
	}
	out := points[:0]
	for i, p := range points {
		if !skip[i] {
			out = append(out, p)
		}
	}
	return out
}

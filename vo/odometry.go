package vo

import (
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"

	"github.com/biotinker/parallax/camera"
	"github.com/biotinker/parallax/estimate"
	"github.com/biotinker/parallax/feature"
	"github.com/biotinker/parallax/frame"
	"github.com/biotinker/parallax/geom"
)

// FeaturePoint is a tracked corner with a persistent identity. TrackID is
// stable for as long as optical flow keeps the point alive; Age counts the
// frames it has survived.
type FeaturePoint struct {
	X        float64
	Y        float64
	Size     float64
	Response float64
	TrackID  int64
	Age      int
}

// Config holds visual odometry parameters.
type Config struct {
	MaxFeatures        int     // Rolling point set cap
	MinInliers         int     // Pose inliers required to accept an update
	MinSpacing         float64 // Minimum distance of reseeded points to survivors, pixels
	EssentialThreshold float64 // Essential matrix inlier threshold, pixels
	Detector           feature.DetectorConfig
	Flow               FlowConfig
}

// DefaultConfig returns the odometry defaults.
func DefaultConfig() Config {
	det := feature.DefaultDetectorConfig()
	det.MaxFeatures = 500
	return Config{
		MaxFeatures:        500,
		MinInliers:         20,
		MinSpacing:         10,
		EssentialThreshold: 1.0,
		Detector:           det,
		Flow:               DefaultFlowConfig(),
	}
}

// FrameData is the per-frame odometry output.
type FrameData struct {
	Points         []FeaturePoint
	Matches        [][2]int   // Pairs of (previous index, current index)
	Flow           []r2.Point // Displacement per current point, zero for reseeded points
	Pose           geom.Pose  // Accumulated camera-to-world pose
	ViewMatrix     geom.Mat4
	ProcessingTime time.Duration
}

// Odometry tracks relative camera motion between consecutive frames. It
// keeps no map; drift accumulates and monocular scale is fixed at 1, which
// is accepted rather than resolved.
type Odometry struct {
	cfg    Config
	intr   camera.Intrinsics
	logger logging.Logger
	rng    *rand.Rand

	prev   *frame.Gray
	points []FeaturePoint
	nextID int64

	rot   [9]float64
	trans r3.Vector
}

// New returns an odometry tracker. If intr is not valid it is estimated
// from the first frame's dimensions.
func New(cfg Config, intr camera.Intrinsics, logger logging.Logger, rng *rand.Rand) *Odometry {
	return &Odometry{
		cfg:    cfg,
		intr:   intr,
		logger: logger,
		rng:    rng,
		nextID: 1,
		rot:    geom.Mat3Identity(),
	}
}

// Reset drops the point set and accumulated pose.
func (o *Odometry) Reset() {
	o.prev = nil
	o.points = nil
	o.nextID = 1
	o.rot = geom.Mat3Identity()
	o.trans = r3.Vector{}
}

// Process ingests the next frame and returns tracked points, matches, flow
// vectors, and the accumulated pose. The frame buffer is snapshotted; the
// caller may reuse it.
func (o *Odometry) Process(img *frame.Gray) FrameData {
	start := time.Now()

	if !o.intr.Valid() {
		o.intr = camera.EstimateFromSize(img.Width, img.Height)
	}

	var data FrameData
	if o.prev == nil {
		o.seedPoints(img, nil)
		data.Pose = o.currentPose(1, true)
	} else {
		data = o.step(img)
	}

	o.prev = img.Clone()
	data.Points = append([]FeaturePoint(nil), o.points...)
	data.ViewMatrix = data.Pose.ViewMatrix()
	data.ProcessingTime = time.Since(start)
	return data
}

func (o *Odometry) step(img *frame.Gray) FrameData {
	var data FrameData

	pts := make([]r2.Point, len(o.points))
	for i, p := range o.points {
		pts[i] = r2.Point{X: p.X, Y: p.Y}
	}
	tracked, status := TrackPoints(o.prev, img, pts, o.cfg.Flow)

	// Keep survivors; record prev->cur index pairs and displacements.
	survivors := make([]FeaturePoint, 0, len(o.points))
	prevPts := make([]r2.Point, 0, len(o.points))
	curPts := make([]r2.Point, 0, len(o.points))
	for i, p := range o.points {
		if !status[i] {
			continue
		}
		q := tracked[i]
		data.Matches = append(data.Matches, [2]int{i, len(survivors)})
		data.Flow = append(data.Flow, r2.Point{X: q.X - p.X, Y: q.Y - p.Y})
		prevPts = append(prevPts, pts[i])
		curPts = append(curPts, q)

		p.X, p.Y = q.X, q.Y
		p.Age++
		survivors = append(survivors, p)
	}
	o.points = survivors

	confidence, inliers, ok := o.updatePose(prevPts, curPts)
	if ok && len(inliers) > 0 {
		o.keepInliers(inliers, &data)
	}
	data.Pose = o.currentPose(confidence, ok)

	if len(o.points) < o.cfg.MaxFeatures/2 {
		o.seedPoints(img, o.points)
	}
	return data
}

// updatePose estimates relative motion from the tracked correspondences
// and folds it into the accumulated pose. Returns the inlier ratio, the
// inlier indices, and whether the update was accepted.
func (o *Odometry) updatePose(prevPts, curPts []r2.Point) (float64, []int, bool) {
	if len(prevPts) < 8 {
		return 0, nil, false
	}

	n1 := make([]r2.Point, len(prevPts))
	n2 := make([]r2.Point, len(curPts))
	for i := range prevPts {
		x, y := o.intr.Normalize(prevPts[i].X, prevPts[i].Y)
		n1[i] = r2.Point{X: x, Y: y}
		x, y = o.intr.Normalize(curPts[i].X, curPts[i].Y)
		n2[i] = r2.Point{X: x, Y: y}
	}

	thr := o.cfg.EssentialThreshold / o.intr.Fx
	e, inliers, err := estimate.EstimateEssential(n1, n2, thr, o.rng)
	if err != nil {
		return 0, nil, false
	}
	rRel, tRel, err := estimate.RecoverPose(e, n1, n2, inliers)
	if err != nil {
		return 0, nil, false
	}
	if len(inliers) < o.cfg.MinInliers {
		o.logger.Debugf("odometry pose rejected: %d inliers of %d tracked", len(inliers), len(prevPts))
		return 0, nil, false
	}

	// Monocular scale is unobservable; it stays pinned at 1.
	const scale = 1.0
	o.trans = o.trans.Add(geom.Mat3MulVec(o.rot, tRel).Mul(scale))
	o.rot = geom.Mat3Mul(rRel, o.rot)

	return float64(len(inliers)) / float64(len(prevPts)), inliers, true
}

// keepInliers restricts the live point set (and the per-frame match/flow
// records) to the pose-estimation inliers.
func (o *Odometry) keepInliers(inliers []int, data *FrameData) {
	keep := make(map[int]bool, len(inliers))
	for _, i := range inliers {
		keep[i] = true
	}

	points := make([]FeaturePoint, 0, len(inliers))
	matches := make([][2]int, 0, len(inliers))
	flow := make([]r2.Point, 0, len(inliers))
	for i, p := range o.points {
		if !keep[i] {
			continue
		}
		matches = append(matches, [2]int{data.Matches[i][0], len(points)})
		flow = append(flow, data.Flow[i])
		points = append(points, p)
	}
	o.points = points
	data.Matches = matches
	data.Flow = flow
}

// seedPoints detects fresh corners and merges in those at least MinSpacing
// away from every existing point, up to the feature cap.
func (o *Odometry) seedPoints(img *frame.Gray, existing []FeaturePoint) {
	kps := feature.Detect(img, o.cfg.Detector)
	minSq := o.cfg.MinSpacing * o.cfg.MinSpacing

	for _, kp := range kps {
		if len(o.points) >= o.cfg.MaxFeatures {
			break
		}
		tooClose := false
		for _, p := range existing {
			dx := kp.X - p.X
			dy := kp.Y - p.Y
			if dx*dx+dy*dy < minSq {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		np := FeaturePoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Response: kp.Response,
			TrackID:  o.nextID,
		}
		o.nextID++
		o.points = append(o.points, np)
		existing = append(existing, np)
	}
}

func (o *Odometry) currentPose(confidence float64, valid bool) geom.Pose {
	return geom.Pose{
		Rotation:    geom.QuatFromRotationMatrix(o.rot),
		Translation: o.trans,
		Confidence:  confidence,
		Valid:       valid,
	}
}

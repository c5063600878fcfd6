// Package parallax is a monocular markerless visual tracking engine for
// augmented reality. It estimates camera pose from a stream of grayscale
// frames, builds a sparse 3D map, detects planar surfaces, supports
// ray-based hit testing against them, and recognizes registered planar
// image targets.
//
// The engine is call-synchronous: one caller drives ProcessFrame
// sequentially and calls never overlap. All tuning lives in Config; the
// zero camera model is auto-estimated from frame dimensions assuming a
// roughly 60 degree horizontal field of view.
package parallax

import (
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"

	"github.com/biotinker/parallax/camera"
	"github.com/biotinker/parallax/frame"
	"github.com/biotinker/parallax/geom"
	"github.com/biotinker/parallax/hittest"
	"github.com/biotinker/parallax/plane"
	"github.com/biotinker/parallax/slam"
	"github.com/biotinker/parallax/target"
	"github.com/biotinker/parallax/vo"
)

// FrameResult is everything the engine produces for one frame.
type FrameResult struct {
	Pose             geom.Pose // Camera-to-world; from SLAM when tracking, odometry otherwise
	ViewMatrix       geom.Mat4
	ProjectionMatrix geom.Mat4
	State            slam.State
	Tracking         bool

	Points  []vo.FeaturePoint // Debug overlay: tracked features with ids and ages
	Matches [][2]int          // Correspondence index pairs from odometry
	Flow    []r2.Point        // Per-point optical-flow displacements

	Planes  []plane.DetectedPlane
	Targets []target.Detection

	ProcessingTime time.Duration
}

// Tracker is the engine facade wiring SLAM, visual odometry, plane
// detection, hit testing, and target tracking together.
type Tracker struct {
	cfg    Config
	intr   camera.Intrinsics
	logger logging.Logger
	rng    *rand.Rand

	slam    *slam.System
	odom    *vo.Odometry
	planes  *plane.Detector
	targets *target.Tracker

	frameCount int
	screenW    int
	screenH    int
	lastPose   geom.Pose
	lastProj   geom.Mat4

	lastPlanes  []plane.DetectedPlane
	lastTargets []target.Detection

	ground     hittest.Plane
	haveGround bool
}

// New builds a tracker. All components share one RNG; the engine is
// single-threaded so this is safe, and a fixed Config.Seed makes every
// RANSAC decision reproducible.
func New(cfg Config, logger logging.Logger) *Tracker {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	return &Tracker{
		cfg:      cfg,
		intr:     cfg.Intrinsics,
		logger:   logger,
		rng:      rng,
		slam:     slam.New(cfg.SLAM, cfg.Intrinsics, logger, rng),
		odom:     vo.New(cfg.Odometry, cfg.Intrinsics, logger, rng),
		planes:   plane.NewDetector(cfg.Plane, logger, rng),
		targets:  target.NewTracker(cfg.Target, cfg.Intrinsics, logger, rng),
		lastPose: geom.IdentityPose(),
		lastProj: geom.Identity(),
	}
}

// ProcessFrame ingests a grayscale frame buffer. The buffer length must be
// exactly width*height; anything else is a contract violation and fails
// fast.
func (t *Tracker) ProcessFrame(width, height int, pix []uint8) (FrameResult, error) {
	img, err := frame.NewGray(width, height, pix)
	if err != nil {
		return FrameResult{}, err
	}
	return t.process(img), nil
}

// ProcessRGBA ingests an RGBA frame buffer, converting it to grayscale
// first.
func (t *Tracker) ProcessRGBA(width, height int, rgba []uint8) (FrameResult, error) {
	img, err := frame.GrayFromRGBA(width, height, rgba)
	if err != nil {
		return FrameResult{}, err
	}
	return t.process(img), nil
}

func (t *Tracker) process(img *frame.Gray) FrameResult {
	start := time.Now()
	t.frameCount++
	t.screenW = img.Width
	t.screenH = img.Height
	if !t.intr.Valid() {
		t.intr = camera.EstimateFromSize(img.Width, img.Height)
		t.targets.SetIntrinsics(t.intr)
	}

	slamRes := t.slam.ProcessFrame(img)
	odoData := t.odom.Process(img)

	// SLAM provides the absolute pose while it tracks; odometry covers the
	// gaps with accumulated relative motion.
	pose := slamRes.Pose
	if !slamRes.Tracking {
		pose = odoData.Pose
	}
	t.lastPose = pose
	t.lastProj = t.intr.ProjectionMatrix(img.Width, img.Height, t.cfg.NearClip, t.cfg.FarClip)

	if t.cfg.PlaneInterval > 0 && t.frameCount%t.cfg.PlaneInterval == 0 {
		t.lastPlanes = t.planes.Detect(t.slam.Map().Positions())
		t.refreshGroundPlane()
	}
	if t.cfg.TargetInterval > 0 && t.frameCount%t.cfg.TargetInterval == 0 {
		t.lastTargets = t.targets.Detect(img)
	}

	return FrameResult{
		Pose:             pose,
		ViewMatrix:       pose.ViewMatrix(),
		ProjectionMatrix: t.lastProj,
		State:            slamRes.State,
		Tracking:         slamRes.Tracking,
		Points:           odoData.Points,
		Matches:          odoData.Matches,
		Flow:             odoData.Flow,
		Planes:           t.lastPlanes,
		Targets:          t.lastTargets,
		ProcessingTime:   time.Since(start),
	}
}

func (t *Tracker) refreshGroundPlane() {
	points := t.slam.Map().Positions()
	pl, err := hittest.EstimateGroundPlane(points, t.cfg.Ground, t.rng)
	if err != nil {
		t.logger.Debugf("ground plane estimation: %v", err)
		return
	}
	t.ground = pl
	t.haveGround = true
}

// HitTest casts a ray from the screen position into the world. Detected
// planes are tried first; when none is hit the ray falls back to the
// estimated ground plane, or to the default ground plane at y=0 before any
// estimate exists.
func (t *Tracker) HitTest(x, y float64) (r3.Vector, error) {
	if t.screenW == 0 || t.screenH == 0 {
		return r3.Vector{}, ErrNotTracking
	}
	view := t.lastPose.ViewMatrix()
	w := float64(t.screenW)
	h := float64(t.screenH)

	if pt, _, ok := t.planes.HitTest(x, y, w, h, view, t.lastProj); ok {
		return pt, nil
	}

	ground := hittest.GroundPlane()
	if t.haveGround {
		ground = t.ground
	}
	if pt, ok := hittest.HitTest(x, y, w, h, view, t.lastProj, ground); ok {
		return pt, nil
	}
	return r3.Vector{}, ErrNoHit
}

// AddTarget registers a planar reference image for detection.
func (t *Tracker) AddTarget(width, height int, pix []uint8, name string, widthMeters, heightMeters float64) (int, error) {
	img, err := frame.NewGray(width, height, pix)
	if err != nil {
		return 0, err
	}
	return t.targets.AddTarget(img, name, widthMeters, heightMeters)
}

// AddTargetRGBA registers a planar reference image from an RGBA buffer.
func (t *Tracker) AddTargetRGBA(width, height int, rgba []uint8, name string, widthMeters, heightMeters float64) (int, error) {
	return t.targets.AddTargetFromRGBA(width, height, rgba, name, widthMeters, heightMeters)
}

// RemoveTarget unregisters a target by id.
func (t *Tracker) RemoveTarget(id int) bool { return t.targets.RemoveTarget(id) }

// ClearTargets unregisters all targets.
func (t *Tracker) ClearTargets() { t.targets.ClearTargets() }

// Map exposes the SLAM map for read-only inspection.
func (t *Tracker) Map() *slam.Map { return t.slam.Map() }

// MapPointCloud exports the live map points.
func (t *Tracker) MapPointCloud() (pointcloud.PointCloud, error) {
	return t.slam.Map().PointCloud()
}

// State returns the SLAM state machine position.
func (t *Tracker) State() slam.State { return t.slam.State() }

// Planes returns the accumulated detected planes.
func (t *Tracker) Planes() []plane.DetectedPlane { return t.planes.Planes() }

// Pose returns the last pose in rdk spatial math form for downstream
// robotics consumers.
func (t *Tracker) Pose() spatialmath.Pose {
	q := t.lastPose.Rotation
	return spatialmath.NewPose(t.lastPose.Translation, &spatialmath.Quaternion{
		Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z,
	})
}

// Reset drops the map, odometry state, planes, and targets, returning the
// engine to its initial state. Registered targets are cleared as well.
func (t *Tracker) Reset() {
	t.slam.Reset()
	t.odom.Reset()
	t.planes.Reset()
	t.targets.ClearTargets()
	t.frameCount = 0
	t.lastPose = geom.IdentityPose()
	t.lastPlanes = nil
	t.lastTargets = nil
	t.haveGround = false
	t.logger.Info("tracker reset")
}

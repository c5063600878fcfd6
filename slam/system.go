package slam

import (
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"

	"github.com/biotinker/parallax/camera"
	"github.com/biotinker/parallax/estimate"
	"github.com/biotinker/parallax/feature"
	"github.com/biotinker/parallax/frame"
	"github.com/biotinker/parallax/geom"
)

// State is the tracking state machine position. There is no terminal lost
// state; a failed frame reports Tracking=false and the next frame retries
// from the previous pose.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateTracking
	StateTrackingDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateTracking:
		return "tracking"
	case StateTrackingDegraded:
		return "tracking_degraded"
	default:
		return "unknown"
	}
}

// Config holds SLAM tuning parameters.
type Config struct {
	MinInitMatches         int     // Filtered matches required to attempt initialization
	MinInitInliers         int     // Pose inliers required to accept initialization
	MinTrackMatches        int     // Map matches required for the PnP path
	MapMatchMaxDist        float64 // Descriptor distance cutoff for map matching
	KeyframeInterval       int     // Frame-count modulus for the keyframe policy
	KeyframeMinTranslation float64 // Translation since last keyframe, world units
	TriangulationMaxDist   float64 // Descriptor distance cutoff for triangulation matches
	LoopMinKeyFrames       int     // Keyframes needed before loop scanning starts
	LoopKeyFrameGap        int     // Newest keyframe is not compared to this many predecessors
	LoopMinMatches         int     // Good matches required to flag a loop candidate
	LoopMaxDist            float64 // Descriptor distance counted as a good loop match
	EssentialThreshold     float64 // Essential matrix inlier threshold, pixels
	MatchRatio             float64 // Min-distance filter ratio for frame matching
	MatchFloor             float64 // Min-distance filter floor for frame matching
	Detector               feature.DetectorConfig
	PnP                    estimate.PnPConfig
}

// DefaultConfig returns the SLAM defaults.
func DefaultConfig() Config {
	return Config{
		MinInitMatches:         100,
		MinInitInliers:         30,
		MinTrackMatches:        20,
		MapMatchMaxDist:        50,
		KeyframeInterval:       15,
		KeyframeMinTranslation: 0.1,
		TriangulationMaxDist:   50,
		LoopMinKeyFrames:       10,
		LoopKeyFrameGap:        5,
		LoopMinMatches:         50,
		LoopMaxDist:            40,
		EssentialThreshold:     1.0,
		MatchRatio:             2.0,
		MatchFloor:             30,
		Detector:               feature.DefaultDetectorConfig(),
		PnP:                    estimate.DefaultPnPConfig(),
	}
}

// Result is the per-frame SLAM output.
type Result struct {
	State      State
	Tracking   bool
	Pose       geom.Pose // Camera-to-world
	NumMatches int       // Matches used by the pose path that ran
}

// System drives the map and state machine. Exactly one caller must invoke
// ProcessFrame sequentially; the map is mutated in place during keyframe
// creation and triangulation.
type System struct {
	cfg    Config
	intr   camera.Intrinsics
	logger logging.Logger
	rng    *rand.Rand

	m          *Map
	state      State
	frameCount int

	pose       geom.Mat4 // Current camera-to-world
	lastKFPose geom.Mat4

	refImg   *frame.Gray
	refKps   []feature.Keypoint
	refDescs []feature.Descriptor

	prevKps   []feature.Keypoint
	prevDescs []feature.Descriptor
}

// New returns an uninitialized SLAM system. If intr is not valid it is
// estimated from the first frame's dimensions.
func New(cfg Config, intr camera.Intrinsics, logger logging.Logger, rng *rand.Rand) *System {
	return &System{
		cfg:    cfg,
		intr:   intr,
		logger: logger,
		rng:    rng,
		m:      NewMap(),
		pose:   geom.Identity(),
	}
}

// Map exposes the owned map. Callers must not mutate it.
func (s *System) Map() *Map { return s.m }

// State returns the current tracking state.
func (s *System) State() State { return s.state }

// CurrentPose returns the last accepted camera-to-world pose.
func (s *System) CurrentPose() geom.Mat4 { return s.pose }

// Reset drops the map and returns to the uninitialized state.
func (s *System) Reset() {
	s.m = NewMap()
	s.state = StateUninitialized
	s.frameCount = 0
	s.pose = geom.Identity()
	s.lastKFPose = geom.Identity()
	s.refImg = nil
	s.refKps = nil
	s.refDescs = nil
	s.prevKps = nil
	s.prevDescs = nil
}

// ProcessFrame ingests the next frame and advances the state machine.
func (s *System) ProcessFrame(img *frame.Gray) Result {
	s.frameCount++
	if !s.intr.Valid() {
		s.intr = camera.EstimateFromSize(img.Width, img.Height)
	}

	kps, descs := feature.Extract(img, s.cfg.Detector)

	var res Result
	switch s.state {
	case StateUninitialized:
		s.setReference(img, kps, descs)
		s.state = StateInitializing
		res = Result{State: s.state}
	case StateInitializing:
		if s.tryInitialize(img, kps, descs) {
			s.state = StateTracking
			res = Result{State: s.state, Tracking: true, Pose: s.posed(1, true)}
		} else {
			// The failed frame becomes the new reference.
			s.setReference(img, kps, descs)
			res = Result{State: s.state}
		}
	default:
		res = s.track(img, kps, descs)
		if res.Tracking {
			s.maybeAddKeyFrame(img, kps, descs)
		}
		res.State = s.state
	}

	s.prevKps = kps
	s.prevDescs = descs
	return res
}

func (s *System) setReference(img *frame.Gray, kps []feature.Keypoint, descs []feature.Descriptor) {
	s.refImg = img.Clone()
	s.refKps = kps
	s.refDescs = descs
}

// tryInitialize attempts two-view bootstrapping against the reference
// frame. The map is only committed once triangulation yields at least one
// point.
func (s *System) tryInitialize(img *frame.Gray, kps []feature.Keypoint, descs []feature.Descriptor) bool {
	matches := feature.FilterByMinDistance(
		feature.MatchDescriptors(s.refDescs, descs), s.cfg.MatchRatio, s.cfg.MatchFloor)
	if len(matches) < s.cfg.MinInitMatches {
		s.logger.Debugf("init: %d matches, need %d", len(matches), s.cfg.MinInitMatches)
		return false
	}

	n1 := make([]r2.Point, len(matches))
	n2 := make([]r2.Point, len(matches))
	for i, m := range matches {
		n1[i] = s.normalized(s.refKps[m.QueryIdx])
		n2[i] = s.normalized(kps[m.TrainIdx])
	}

	thr := s.cfg.EssentialThreshold / s.intr.Fx
	e, inliers, err := estimate.EstimateEssential(n1, n2, thr, s.rng)
	if err != nil {
		s.logger.Debugf("init: essential estimation failed: %v", err)
		return false
	}
	rRel, tRel, err := estimate.RecoverPose(e, n1, n2, inliers)
	if err != nil || len(inliers) < s.cfg.MinInitInliers {
		s.logger.Debugf("init: %d pose inliers, need %d", len(inliers), s.cfg.MinInitInliers)
		return false
	}

	// Triangulate before committing anything to the map.
	type seed struct {
		pos  r3.Vector
		desc feature.Descriptor
		refI int
		curI int
	}
	var seeds []seed
	for _, j := range inliers {
		p, ok := estimate.TriangulatePoint(n1[j], n2[j], rRel, tRel)
		if !ok {
			continue
		}
		m := matches[j]
		seeds = append(seeds, seed{pos: p, desc: descs[m.TrainIdx], refI: m.QueryIdx, curI: m.TrainIdx})
	}
	if len(seeds) == 0 {
		s.logger.Debug("init: no triangulated points survived")
		return false
	}

	pose2 := geom.FromRotationTranslation(rRel, tRel).RigidInverse()
	kf1 := s.m.AddKeyFrame(s.refImg, geom.Identity(), s.refKps, s.refDescs)
	kf2 := s.m.AddKeyFrame(img, pose2, kps, descs)
	for _, sd := range seeds {
		id := s.m.AddPoint(sd.pos, sd.desc, kf1, kf2)
		s.m.KeyFrame(kf1).Links[sd.refI] = id
		s.m.KeyFrame(kf2).Links[sd.curI] = id
	}

	s.pose = pose2
	s.lastKFPose = pose2
	s.logger.Infof("map initialized: 2 keyframes, %d points, %d inliers", len(seeds), len(inliers))
	return true
}

// track estimates the current pose, preferring absolute PnP against the
// map and degrading to relative essential-matrix composition.
func (s *System) track(img *frame.Gray, kps []feature.Keypoint, descs []feature.Descriptor) Result {
	if res, ok := s.trackWithMap(kps, descs); ok {
		return res
	}
	return s.trackRelative(kps, descs)
}

func (s *System) trackWithMap(kps []feature.Keypoint, descs []feature.Descriptor) (Result, bool) {
	good := s.m.GoodPoints()
	if len(good) == 0 {
		return Result{}, false
	}
	mapDescs := make([]feature.Descriptor, len(good))
	for i, p := range good {
		mapDescs[i] = p.Descriptor
	}

	all := feature.MatchDescriptors(descs, mapDescs)
	matches := all[:0:0]
	for _, m := range all {
		if m.Distance < s.cfg.MapMatchMaxDist {
			matches = append(matches, m)
		}
	}
	if len(matches) < s.cfg.MinTrackMatches || len(matches) < 6 {
		return Result{}, false
	}

	obj := make([]r3.Vector, len(matches))
	pix := make([]r2.Point, len(matches))
	for i, m := range matches {
		obj[i] = good[m.TrainIdx].Position
		pix[i] = r2.Point{X: kps[m.QueryIdx].X, Y: kps[m.QueryIdx].Y}
	}

	r, t, inliers, err := estimate.SolvePnPRansac(obj, pix, s.intr, s.cfg.PnP, s.rng)
	if err != nil {
		s.logger.Debugf("map tracking: PnP failed: %v", err)
		return Result{}, false
	}

	s.pose = geom.FromRotationTranslation(r, t).RigidInverse()
	s.state = StateTracking
	conf := float64(len(inliers)) / float64(len(matches))
	return Result{Tracking: true, Pose: s.posed(conf, true), NumMatches: len(matches)}, true
}

// trackRelative composes a frame-to-frame relative pose onto the previous
// pose. No map correction happens on this path, so drift accumulates.
func (s *System) trackRelative(kps []feature.Keypoint, descs []feature.Descriptor) Result {
	matches := feature.FilterByMinDistance(
		feature.MatchDescriptors(s.prevDescs, descs), s.cfg.MatchRatio, s.cfg.MatchFloor)
	if len(matches) < 8 {
		return Result{NumMatches: len(matches)}
	}

	n1 := make([]r2.Point, len(matches))
	n2 := make([]r2.Point, len(matches))
	for i, m := range matches {
		n1[i] = s.normalized(s.prevKps[m.QueryIdx])
		n2[i] = s.normalized(kps[m.TrainIdx])
	}

	thr := s.cfg.EssentialThreshold / s.intr.Fx
	e, inliers, err := estimate.EstimateEssential(n1, n2, thr, s.rng)
	if err != nil {
		return Result{NumMatches: len(matches)}
	}
	rRel, tRel, err := estimate.RecoverPose(e, n1, n2, inliers)
	if err != nil {
		return Result{NumMatches: len(matches)}
	}

	s.pose = s.pose.Mul(geom.FromRotationTranslation(rRel, tRel).RigidInverse())
	s.state = StateTrackingDegraded
	conf := float64(len(inliers)) / float64(len(matches))
	return Result{Tracking: true, Pose: s.posed(conf, true), NumMatches: len(matches)}
}

// maybeAddKeyFrame applies the keyframe policy and the work that hangs off
// a new keyframe: triangulation against its predecessor and, once the map
// is large enough, a loop-closure scan.
func (s *System) maybeAddKeyFrame(img *frame.Gray, kps []feature.Keypoint, descs []feature.Descriptor) {
	if s.cfg.KeyframeInterval <= 0 || s.frameCount%s.cfg.KeyframeInterval != 0 {
		return
	}
	moved := s.pose.Translation().Sub(s.lastKFPose.Translation()).Norm()
	if moved <= s.cfg.KeyframeMinTranslation {
		return
	}

	id := s.m.AddKeyFrame(img, s.pose, kps, descs)
	s.lastKFPose = s.pose
	s.logger.Debugf("keyframe %d added after %.3f translation", id, moved)

	if id > 0 {
		s.triangulateBetween(id-1, id)
	}
	if s.m.NumKeyFrames() >= s.cfg.LoopMinKeyFrames {
		s.detectLoopClosure(id)
	}
}

// triangulateBetween creates map points from unlinked matches between two
// keyframes. New points are observed by both.
func (s *System) triangulateBetween(idA, idB int) {
	kfA := s.m.KeyFrame(idA)
	kfB := s.m.KeyFrame(idB)

	// Relative transform taking camera-A coordinates to camera-B.
	rel := kfB.Pose.RigidInverse().Mul(kfA.Pose)
	r := rel.Rotation()
	t := rel.Translation()

	added := 0
	for _, m := range feature.MatchDescriptors(kfA.Descriptors, kfB.Descriptors) {
		if m.Distance > s.cfg.TriangulationMaxDist {
			continue
		}
		if kfA.Links[m.QueryIdx] != Unlinked || kfB.Links[m.TrainIdx] != Unlinked {
			continue
		}
		p, ok := estimate.TriangulatePoint(
			s.normalized(kfA.Keypoints[m.QueryIdx]),
			s.normalized(kfB.Keypoints[m.TrainIdx]), r, t)
		if !ok {
			continue
		}
		world := kfA.Pose.TransformPoint(p)
		id := s.m.AddPoint(world, kfB.Descriptors[m.TrainIdx], idA, idB)
		kfA.Links[m.QueryIdx] = id
		kfB.Links[m.TrainIdx] = id
		added++
	}
	if added > 0 {
		s.logger.Debugf("triangulated %d points between keyframes %d and %d", added, idA, idB)
	}
}

// detectLoopClosure scans older keyframes for one that shares enough
// appearance with the newest. A detected closure is logged but no map
// correction is applied; pose-graph optimization is a deliberate extension
// point, not implemented here.
func (s *System) detectLoopClosure(newest int) {
	kf := s.m.KeyFrame(newest)

	bestID, bestCount := -1, 0
	for id := 0; id < newest-s.cfg.LoopKeyFrameGap; id++ {
		old := s.m.KeyFrame(id)
		count := 0
		for _, m := range feature.MatchDescriptors(kf.Descriptors, old.Descriptors) {
			if m.Distance < s.cfg.LoopMaxDist {
				count++
			}
		}
		if count > s.cfg.LoopMinMatches && count > bestCount {
			bestID, bestCount = id, count
		}
	}
	if bestID >= 0 {
		s.logger.Infof("loop closure candidate: keyframe %d matches keyframe %d with %d features; no correction applied",
			newest, bestID, bestCount)
	}
}

func (s *System) normalized(kp feature.Keypoint) r2.Point {
	x, y := s.intr.Normalize(kp.X, kp.Y)
	return r2.Point{X: x, Y: y}
}

func (s *System) posed(confidence float64, valid bool) geom.Pose {
	return geom.Pose{
		Rotation:    geom.QuatFromRotationMatrix(s.pose.Rotation()),
		Translation: s.pose.Translation(),
		Confidence:  confidence,
		Valid:       valid,
	}
}

// Package slam owns the persistent sparse map (keyframes and map points)
// and the tracking state machine built on it: two-view initialization,
// frame-to-map PnP tracking with an essential-matrix fallback, keyframe
// creation, triangulation, and loop-closure detection.
package slam

import (
	"go.viam.com/rdk/pointcloud"

	"github.com/biotinker/parallax/feature"
	"github.com/biotinker/parallax/frame"
	"github.com/biotinker/parallax/geom"
	"github.com/golang/geo/r3"
)

// Unlinked marks a keypoint with no associated map point.
const Unlinked = -1

// MapPoint is a triangulated 3D landmark. Points are never removed within
// a session; geometrically invalid ones are tombstoned via Bad.
type MapPoint struct {
	ID           int
	Position     r3.Vector
	Descriptor   feature.Descriptor
	Observations []int // Observing keyframe ids, in creation order
	Bad          bool
}

// KeyFrame is a retained reference frame. Immutable after creation except
// for Links, which gain entries as triangulation succeeds.
type KeyFrame struct {
	ID          int
	Image       *frame.Gray
	Pose        geom.Mat4 // Camera-to-world
	Keypoints   []feature.Keypoint
	Descriptors []feature.Descriptor
	Links       []int // Aligned with Keypoints; map point id or Unlinked
}

// Map is an arena of map points and keyframes indexed by integer id.
// Observation lists store ids rather than references, so there is no
// cyclic ownership between the two collections.
type Map struct {
	points    []*MapPoint
	keyframes []*KeyFrame
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{}
}

// AddPoint creates a map point and returns its id.
func (m *Map) AddPoint(pos r3.Vector, desc feature.Descriptor, observers ...int) int {
	id := len(m.points)
	m.points = append(m.points, &MapPoint{
		ID:           id,
		Position:     pos,
		Descriptor:   desc,
		Observations: append([]int(nil), observers...),
	})
	return id
}

// AddKeyFrame creates a keyframe from a frame snapshot and returns its id.
// All keypoints start unlinked.
func (m *Map) AddKeyFrame(img *frame.Gray, pose geom.Mat4, kps []feature.Keypoint, descs []feature.Descriptor) int {
	id := len(m.keyframes)
	links := make([]int, len(kps))
	for i := range links {
		links[i] = Unlinked
	}
	m.keyframes = append(m.keyframes, &KeyFrame{
		ID:          id,
		Image:       img.Clone(),
		Pose:        pose,
		Keypoints:   kps,
		Descriptors: descs,
		Links:       links,
	})
	return id
}

// Point returns the map point with the given id, or nil.
func (m *Map) Point(id int) *MapPoint {
	if id < 0 || id >= len(m.points) {
		return nil
	}
	return m.points[id]
}

// KeyFrame returns the keyframe with the given id, or nil.
func (m *Map) KeyFrame(id int) *KeyFrame {
	if id < 0 || id >= len(m.keyframes) {
		return nil
	}
	return m.keyframes[id]
}

// NumPoints returns the total point count including tombstoned points.
func (m *Map) NumPoints() int { return len(m.points) }

// NumKeyFrames returns the keyframe count.
func (m *Map) NumKeyFrames() int { return len(m.keyframes) }

// MarkBad tombstones a map point. The point stays in the arena so ids held
// by keyframe links remain stable.
func (m *Map) MarkBad(id int) {
	if p := m.Point(id); p != nil {
		p.Bad = true
	}
}

// GoodPoints returns the live (non-tombstoned) map points.
func (m *Map) GoodPoints() []*MapPoint {
	out := make([]*MapPoint, 0, len(m.points))
	for _, p := range m.points {
		if !p.Bad {
			out = append(out, p)
		}
	}
	return out
}

// Positions returns the world positions of all live map points.
func (m *Map) Positions() []r3.Vector {
	pts := m.GoodPoints()
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = p.Position
	}
	return out
}

// PointCloud exports the live map points for visualization or downstream
// geometry consumers.
func (m *Map) PointCloud() (pointcloud.PointCloud, error) {
	pc := pointcloud.New()
	for _, p := range m.GoodPoints() {
		if err := pc.Set(p.Position, pointcloud.NewBasicData()); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

package geom

import "github.com/golang/geo/r3"

// Pose is a camera-to-world rigid transform with an estimation quality tag.
// Confidence is the inlier ratio of the estimator that produced it.
type Pose struct {
	Rotation    Quaternion
	Translation r3.Vector
	Confidence  float64
	Valid       bool
}

// IdentityPose returns a valid pose at the origin.
func IdentityPose() Pose {
	return Pose{Rotation: IdentityQuat(), Valid: true}
}

// Matrix returns the camera-to-world transform as a 4x4 matrix.
func (p Pose) Matrix() Mat4 {
	return FromRotationTranslation(p.Rotation.RotationMatrix(), p.Translation)
}

// ViewMatrix returns the world-to-camera transform, inverted analytically
// rather than through the general cofactor inverse.
func (p Pose) ViewMatrix() Mat4 {
	return p.Matrix().RigidInverse()
}

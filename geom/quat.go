package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Quaternion represents a rotation. Identity is (0,0,0,1).
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityQuat returns the identity rotation.
func IdentityQuat() Quaternion {
	return Quaternion{W: 1}
}

// QuatFromAxisAngle builds a quaternion rotating by angle radians around axis.
func QuatFromAxisAngle(axis r3.Vector, angle float64) Quaternion {
	half := angle * 0.5
	s := math.Sin(half)
	n := axis.Normalize()
	return Quaternion{X: n.X * s, Y: n.Y * s, Z: n.Z * s, W: math.Cos(half)}
}

// QuatFromEuler builds a quaternion from pitch/yaw/roll (YXZ order, radians).
func QuatFromEuler(pitch, yaw, roll float64) Quaternion {
	cy, sy := math.Cos(yaw*0.5), math.Sin(yaw*0.5)
	cp, sp := math.Cos(pitch*0.5), math.Sin(pitch*0.5)
	cr, sr := math.Cos(roll*0.5), math.Sin(roll*0.5)
	return Quaternion{
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}

// Normalized returns the unit quaternion, or identity when the magnitude is
// degenerate.
func (q Quaternion) Normalized() Quaternion {
	len := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if len < 1e-4 {
		return IdentityQuat()
	}
	return Quaternion{X: q.X / len, Y: q.Y / len, Z: q.Z / len, W: q.W / len}
}

// RotationMatrix returns the row-major 3x3 rotation equivalent to q.
func (q Quaternion) RotationMatrix() [9]float64 {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z
	return [9]float64{
		1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy),
		2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx),
		2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy),
	}
}

// Mat4 returns the 4x4 rotation matrix equivalent to q.
func (q Quaternion) Mat4() Mat4 {
	return FromRotationTranslation(q.RotationMatrix(), r3.Vector{})
}

// QuatFromRotationMatrix converts a row-major 3x3 rotation matrix to a unit
// quaternion. The branch is selected on the trace and the largest diagonal
// term so the square root argument stays well away from zero even for
// rotations near 180 degrees. The result is re-normalized.
func QuatFromRotationMatrix(r [9]float64) Quaternion {
	var q Quaternion
	trace := r[0] + r[4] + r[8]

	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q.W = 0.25 / s
		q.X = (r[7] - r[5]) * s
		q.Y = (r[2] - r[6]) * s
		q.Z = (r[3] - r[1]) * s
	case r[0] > r[4] && r[0] > r[8]:
		s := 2 * math.Sqrt(1+r[0]-r[4]-r[8])
		q.W = (r[7] - r[5]) / s
		q.X = 0.25 * s
		q.Y = (r[1] + r[3]) / s
		q.Z = (r[2] + r[6]) / s
	case r[4] > r[8]:
		s := 2 * math.Sqrt(1+r[4]-r[0]-r[8])
		q.W = (r[2] - r[6]) / s
		q.X = (r[1] + r[3]) / s
		q.Y = 0.25 * s
		q.Z = (r[5] + r[7]) / s
	default:
		s := 2 * math.Sqrt(1+r[8]-r[0]-r[4])
		q.W = (r[3] - r[1]) / s
		q.X = (r[2] + r[6]) / s
		q.Y = (r[5] + r[7]) / s
		q.Z = 0.25 * s
	}

	return q.Normalized()
}

// Package geom provides the small fixed-size math primitives the tracking
// engine is built on: column-major 4x4 matrices and unit quaternions.
// 3D vectors are r3.Vector from github.com/golang/geo.
package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Mat4 is a 4x4 matrix stored column-major (WebGL/OpenGL layout):
// element (row, col) lives at index col*4+row.
type Mat4 [16]float64

// Identity returns the identity matrix.
func Identity() Mat4 {
	var m Mat4
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

// At returns element (row, col).
func (m Mat4) At(row, col int) float64 { return m[col*4+row] }

// Set assigns element (row, col).
func (m *Mat4) Set(row, col int, v float64) { m[col*4+row] = v }

// Translation returns a translation matrix.
func Translation(v r3.Vector) Mat4 {
	m := Identity()
	m.Set(0, 3, v.X)
	m.Set(1, 3, v.Y)
	m.Set(2, 3, v.Z)
	return m
}

// RotationX returns a rotation about the X axis by the given angle in radians.
func RotationX(radians float64) Mat4 {
	m := Identity()
	c, s := math.Cos(radians), math.Sin(radians)
	m.Set(1, 1, c)
	m.Set(1, 2, -s)
	m.Set(2, 1, s)
	m.Set(2, 2, c)
	return m
}

// RotationY returns a rotation about the Y axis by the given angle in radians.
func RotationY(radians float64) Mat4 {
	m := Identity()
	c, s := math.Cos(radians), math.Sin(radians)
	m.Set(0, 0, c)
	m.Set(0, 2, s)
	m.Set(2, 0, -s)
	m.Set(2, 2, c)
	return m
}

// RotationZ returns a rotation about the Z axis by the given angle in radians.
func RotationZ(radians float64) Mat4 {
	m := Identity()
	c, s := math.Cos(radians), math.Sin(radians)
	m.Set(0, 0, c)
	m.Set(0, 1, -s)
	m.Set(1, 0, s)
	m.Set(1, 1, c)
	return m
}

// Perspective returns an OpenGL-convention perspective projection matrix.
func Perspective(fovY, aspect, near, far float64) Mat4 {
	var m Mat4
	tanHalf := math.Tan(fovY / 2)
	m.Set(0, 0, 1/(aspect*tanHalf))
	m.Set(1, 1, 1/tanHalf)
	m.Set(2, 2, -(far+near)/(far-near))
	m.Set(2, 3, -(2*far*near)/(far-near))
	m.Set(3, 2, -1)
	return m
}

// LookAt returns a right-handed view matrix with the camera at eye looking
// toward target.
func LookAt(eye, targetPt, up r3.Vector) Mat4 {
	f := targetPt.Sub(eye).Normalize()
	r := f.Cross(up).Normalize()
	u := r.Cross(f)

	m := Identity()
	m.Set(0, 0, r.X)
	m.Set(0, 1, r.Y)
	m.Set(0, 2, r.Z)
	m.Set(0, 3, -r.Dot(eye))
	m.Set(1, 0, u.X)
	m.Set(1, 1, u.Y)
	m.Set(1, 2, u.Z)
	m.Set(1, 3, -u.Dot(eye))
	m.Set(2, 0, -f.X)
	m.Set(2, 1, -f.Y)
	m.Set(2, 2, -f.Z)
	m.Set(2, 3, f.Dot(eye))
	return m
}

// Mul returns m * b.
func (m Mat4) Mul(b Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m.At(row, k) * b.At(k, col)
			}
			out.Set(row, col, sum)
		}
	}
	return out
}

// MulVec returns m * (v, w) as a homogeneous 4-vector.
func (m Mat4) MulVec(v r3.Vector, w float64) (r3.Vector, float64) {
	x := m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z + m.At(0, 3)*w
	y := m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z + m.At(1, 3)*w
	z := m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z + m.At(2, 3)*w
	ww := m.At(3, 0)*v.X + m.At(3, 1)*v.Y + m.At(3, 2)*v.Z + m.At(3, 3)*w
	return r3.Vector{X: x, Y: y, Z: z}, ww
}

// TransformPoint applies m to a point (w=1) and performs the perspective
// divide.
func (m Mat4) TransformPoint(p r3.Vector) r3.Vector {
	v, w := m.MulVec(p, 1)
	if math.Abs(w) > 1e-9 {
		return v.Mul(1 / w)
	}
	return v
}

// TransformDirection applies m to a direction (w=0).
func (m Mat4) TransformDirection(d r3.Vector) r3.Vector {
	v, _ := m.MulVec(d, 0)
	return v
}

// Transposed returns the transpose of m.
func (m Mat4) Transposed() Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out.Set(i, j, m.At(j, i))
		}
	}
	return out
}

// Translation returns the translation column of m.
func (m Mat4) Translation() r3.Vector {
	return r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// Rotation returns the upper-left 3x3 block of m as row-major 9 floats.
func (m Mat4) Rotation() [9]float64 {
	return [9]float64{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(1, 0), m.At(1, 1), m.At(1, 2),
		m.At(2, 0), m.At(2, 1), m.At(2, 2),
	}
}

// FromRotationTranslation builds a rigid transform from a row-major 3x3
// rotation and a translation.
func FromRotationTranslation(r [9]float64, t r3.Vector) Mat4 {
	m := Identity()
	m.Set(0, 0, r[0])
	m.Set(0, 1, r[1])
	m.Set(0, 2, r[2])
	m.Set(1, 0, r[3])
	m.Set(1, 1, r[4])
	m.Set(1, 2, r[5])
	m.Set(2, 0, r[6])
	m.Set(2, 1, r[7])
	m.Set(2, 2, r[8])
	m.Set(0, 3, t.X)
	m.Set(1, 3, t.Y)
	m.Set(2, 3, t.Z)
	return m
}

// RigidInverse inverts a rigid transform [R|t] analytically:
// inverse = [Rᵀ | -Rᵀt]. Much cheaper and more stable than the general
// cofactor inverse, but only valid when the upper 3x3 is a rotation.
func (m Mat4) RigidInverse() Mat4 {
	r := m.Rotation()
	rt := [9]float64{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
	t := m.Translation()
	nt := r3.Vector{
		X: -(rt[0]*t.X + rt[1]*t.Y + rt[2]*t.Z),
		Y: -(rt[3]*t.X + rt[4]*t.Y + rt[5]*t.Z),
		Z: -(rt[6]*t.X + rt[7]*t.Y + rt[8]*t.Z),
	}
	return FromRotationTranslation(rt, nt)
}

// Inverse computes the general inverse of m by cofactor expansion.
// ok is false when the determinant is near zero; the returned matrix is
// unspecified in that case and must not be used.
func (m Mat4) Inverse() (Mat4, bool) {
	var inv Mat4

	inv[0] = m[5]*m[10]*m[15] - m[5]*m[11]*m[14] - m[9]*m[6]*m[15] +
		m[9]*m[7]*m[14] + m[13]*m[6]*m[11] - m[13]*m[7]*m[10]
	inv[4] = -m[4]*m[10]*m[15] + m[4]*m[11]*m[14] + m[8]*m[6]*m[15] -
		m[8]*m[7]*m[14] - m[12]*m[6]*m[11] + m[12]*m[7]*m[10]
	inv[8] = m[4]*m[9]*m[15] - m[4]*m[11]*m[13] - m[8]*m[5]*m[15] +
		m[8]*m[7]*m[13] + m[12]*m[5]*m[11] - m[12]*m[7]*m[9]
	inv[12] = -m[4]*m[9]*m[14] + m[4]*m[10]*m[13] + m[8]*m[5]*m[14] -
		m[8]*m[6]*m[13] - m[12]*m[5]*m[10] + m[12]*m[6]*m[9]
	inv[1] = -m[1]*m[10]*m[15] + m[1]*m[11]*m[14] + m[9]*m[2]*m[15] -
		m[9]*m[3]*m[14] - m[13]*m[2]*m[11] + m[13]*m[3]*m[10]
	inv[5] = m[0]*m[10]*m[15] - m[0]*m[11]*m[14] - m[8]*m[2]*m[15] +
		m[8]*m[3]*m[14] + m[12]*m[2]*m[11] - m[12]*m[3]*m[10]
	inv[9] = -m[0]*m[9]*m[15] + m[0]*m[11]*m[13] + m[8]*m[1]*m[15] -
		m[8]*m[3]*m[13] - m[12]*m[1]*m[11] + m[12]*m[3]*m[9]
	inv[13] = m[0]*m[9]*m[14] - m[0]*m[10]*m[13] - m[8]*m[1]*m[14] +
		m[8]*m[2]*m[13] + m[12]*m[1]*m[10] - m[12]*m[2]*m[9]
	inv[2] = m[1]*m[6]*m[15] - m[1]*m[7]*m[14] - m[5]*m[2]*m[15] +
		m[5]*m[3]*m[14] + m[13]*m[2]*m[7] - m[13]*m[3]*m[6]
	inv[6] = -m[0]*m[6]*m[15] + m[0]*m[7]*m[14] + m[4]*m[2]*m[15] -
		m[4]*m[3]*m[14] - m[12]*m[2]*m[7] + m[12]*m[3]*m[6]
	inv[10] = m[0]*m[5]*m[15] - m[0]*m[7]*m[13] - m[4]*m[1]*m[15] +
		m[4]*m[3]*m[13] + m[12]*m[1]*m[7] - m[12]*m[3]*m[5]
	inv[14] = -m[0]*m[5]*m[14] + m[0]*m[6]*m[13] + m[4]*m[1]*m[14] -
		m[4]*m[2]*m[13] - m[12]*m[1]*m[6] + m[12]*m[2]*m[5]
	inv[3] = -m[1]*m[6]*m[11] + m[1]*m[7]*m[10] + m[5]*m[2]*m[11] -
		m[5]*m[3]*m[10] - m[9]*m[2]*m[7] + m[9]*m[3]*m[6]
	inv[7] = m[0]*m[6]*m[11] - m[0]*m[7]*m[10] - m[4]*m[2]*m[11] +
		m[4]*m[3]*m[10] + m[8]*m[2]*m[7] - m[8]*m[3]*m[6]
	inv[11] = -m[0]*m[5]*m[11] + m[0]*m[7]*m[9] + m[4]*m[1]*m[11] -
		m[4]*m[3]*m[9] - m[8]*m[1]*m[7] + m[8]*m[3]*m[5]
	inv[15] = m[0]*m[5]*m[10] - m[0]*m[6]*m[9] - m[4]*m[1]*m[10] +
		m[4]*m[2]*m[9] + m[8]*m[1]*m[6] - m[8]*m[2]*m[5]

	det := m[0]*inv[0] + m[1]*inv[4] + m[2]*inv[8] + m[3]*inv[12]
	if math.Abs(det) < 1e-10 {
		return Mat4{}, false
	}

	s := 1 / det
	for i := range inv {
		inv[i] *= s
	}
	return inv, true
}

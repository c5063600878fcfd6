package geom

import "github.com/golang/geo/r3"

// 3x3 matrices are passed around as row-major [9]float64 arrays rather than
// a named type; they only ever hold rotations and small calibration-style
// matrices, and the array form converts freely to and from gonum.

// Mat3Mul returns a * b.
func Mat3Mul(a, b [9]float64) [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = a[i*3]*b[j] + a[i*3+1]*b[3+j] + a[i*3+2]*b[6+j]
		}
	}
	return out
}

// Mat3MulVec returns m * v.
func Mat3MulVec(m [9]float64, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Mat3Transpose returns the transpose of m.
func Mat3Transpose(m [9]float64) [9]float64 {
	return [9]float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Mat3Det returns the determinant of m.
func Mat3Det(m [9]float64) float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Mat3Identity returns the identity matrix.
func Mat3Identity() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

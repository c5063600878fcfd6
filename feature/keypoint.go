// Package feature implements the 2D feature pipeline: FAST corner
// detection, oriented binary descriptors, and brute-force Hamming matching.
// Every call is independent; the package keeps no state between frames.
package feature

// Keypoint is a detected corner.
type Keypoint struct {
	X        float64
	Y        float64
	Size     float64 // Nominal patch diameter in pixels
	Response float64 // Detector score; higher = stronger corner
	Angle    float64 // Orientation in radians, from the intensity centroid
}

// Match pairs a descriptor index in the query set with one in the train set.
type Match struct {
	QueryIdx int
	TrainIdx int
	Distance float64
}

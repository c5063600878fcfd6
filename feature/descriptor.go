package feature

import (
	"math"
	"math/rand"

	"github.com/biotinker/parallax/frame"
)

// DescriptorSize is the descriptor width in bytes (256 bits).
const DescriptorSize = 32

// Descriptor is a 256-bit binary descriptor compared with Hamming distance.
type Descriptor [DescriptorSize]byte

const (
	patchRadius   = 15 // Sampling patch half-width
	descriptorLen = DescriptorSize * 8
)

// briefPattern holds the 256 point-pair test offsets. The pattern is fixed
// at startup from a deterministic generator so descriptors are comparable
// across processes.
var briefPattern [descriptorLen][4]float64

func init() {
	//nolint:gosec
	rng := rand.New(rand.NewSource(0x0b5eed))
	// Gaussian-distributed pairs, clamped to the patch, per the BRIEF G-II
	// sampling strategy.
	sample := func() float64 {
		v := rng.NormFloat64() * float64(patchRadius) / 2
		if v > patchRadius-1 {
			v = patchRadius - 1
		}
		if v < -(patchRadius - 1) {
			v = -(patchRadius - 1)
		}
		return v
	}
	for i := range briefPattern {
		briefPattern[i] = [4]float64{sample(), sample(), sample(), sample()}
	}
}

// orientation computes the intensity-centroid angle of the patch around
// (x, y), used to steer the descriptor sampling pattern.
func orientation(img *frame.Gray, x, y int) float64 {
	var m10, m01 float64
	for dy := -patchRadius; dy <= patchRadius; dy++ {
		for dx := -patchRadius; dx <= patchRadius; dx++ {
			if dx*dx+dy*dy > patchRadius*patchRadius {
				continue
			}
			v := float64(img.At(x+dx, y+dy))
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// Compute extracts steered binary descriptors for the given keypoints.
// Keypoints too close to the border for a full patch are dropped; the
// returned keypoint slice is filtered to stay aligned with the descriptors.
func Compute(img *frame.Gray, kps []Keypoint) ([]Keypoint, []Descriptor) {
	kept := make([]Keypoint, 0, len(kps))
	descs := make([]Descriptor, 0, len(kps))

	for _, kp := range kps {
		if !img.InBounds(kp.X, kp.Y, patchRadius+2) {
			continue
		}
		kept = append(kept, kp)
		descs = append(descs, describe(img, kp))
	}
	return kept, descs
}

func describe(img *frame.Gray, kp Keypoint) Descriptor {
	var d Descriptor
	cos := math.Cos(kp.Angle)
	sin := math.Sin(kp.Angle)

	for i := range briefPattern {
		p := briefPattern[i]
		// Rotate both test points by the keypoint orientation.
		ax := kp.X + p[0]*cos - p[1]*sin
		ay := kp.Y + p[0]*sin + p[1]*cos
		bx := kp.X + p[2]*cos - p[3]*sin
		by := kp.Y + p[2]*sin + p[3]*cos

		if img.Bilinear(ax, ay) < img.Bilinear(bx, by) {
			d[i/8] |= 1 << uint(i%8)
		}
	}
	return d
}

// Extract detects keypoints and computes their descriptors in one call.
func Extract(img *frame.Gray, cfg DetectorConfig) ([]Keypoint, []Descriptor) {
	return Compute(img, Detect(img, cfg))
}

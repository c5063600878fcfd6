// Package estimate implements the robust multi-view geometry solvers the
// engine relies on: essential matrix and homography estimation, point
// triangulation, and perspective-n-point pose recovery, each wrapped in
// RANSAC. Randomness is always injected so callers control determinism.
package estimate

import "errors"

var (
	// ErrInsufficientPoints is returned when fewer correspondences are
	// supplied than the minimal sample a solver needs.
	ErrInsufficientPoints = errors.New("not enough point correspondences")

	// ErrDegenerate is returned when the input configuration admits no
	// stable solution (coincident points, rank-deficient systems).
	ErrDegenerate = errors.New("degenerate point configuration")

	// ErrNoConsensus is returned when RANSAC finds no model with a usable
	// inlier set.
	ErrNoConsensus = errors.New("no consensus model found")
)

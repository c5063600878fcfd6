package parallax

import "errors"

var (
	// ErrNotTracking is returned when an operation needs a valid camera
	// pose and none has been established yet.
	ErrNotTracking = errors.New("no valid camera pose")

	// ErrNoHit is returned when a cast ray intersects no known surface.
	ErrNoHit = errors.New("no surface intersection found")
)

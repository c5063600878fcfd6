package parallax

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/biotinker/parallax/camera"
	"github.com/biotinker/parallax/hittest"
	"github.com/biotinker/parallax/plane"
	"github.com/biotinker/parallax/slam"
	"github.com/biotinker/parallax/target"
	"github.com/biotinker/parallax/vo"
)

// Config holds all configuration for the tracking engine.
type Config struct {
	Intrinsics camera.Intrinsics // Zero value = estimate from frame dimensions
	Seed       int64             // RNG seed; 0 = time-based, nonzero for determinism

	// Expensive passes are throttled by frame count. The cadence is a
	// scheduling policy of this layer, not of the underlying algorithms;
	// 0 disables the pass entirely.
	PlaneInterval  int // Frames between plane detection passes
	TargetInterval int // Frames between target detection passes

	NearClip float64 // Projection near plane
	FarClip  float64 // Projection far plane

	SLAM     slam.Config
	Odometry vo.Config
	Plane    plane.Config
	Ground   hittest.Config
	Target   target.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PlaneInterval:  30,
		TargetInterval: 5,
		NearClip:       0.1,
		FarClip:        1000,
		SLAM:           slam.DefaultConfig(),
		Odometry:       vo.DefaultConfig(),
		Plane:          plane.DefaultConfig(),
		Ground:         hittest.DefaultConfig(),
		Target:         target.DefaultConfig(),
	}
}

// ConfigFromAttributes overlays raw attribute values onto the defaults.
func ConfigFromAttributes(attrs map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	if err := mapstructure.Decode(attrs, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config attributes: %w", err)
	}
	return cfg, nil
}

package blink

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Fixed gate and duration limits. These are not tunable per camera.
const (
	SyncTolerance      = 0.15 // max |avgLeft-avgRight| for a two-eyed closure
	MotionTolerance    = 0.05 // max nose travel between frames, normalized units
	MinBlinkDurationMs = 50.0
	MaxBlinkDurationMs = 500.0
)

// ErrInvalidConfig is returned when a detector configuration fails validation.
var ErrInvalidConfig = errors.New("invalid detector config")

var validate = validator.New()

// Config holds the detector settings fixed at construction.
type Config struct {
	SmoothingWindow int     `toml:"smoothing_window" validate:"min=1"`
	BlinkThreshold  float64 `toml:"blink_threshold" validate:"gt=0,lt=1"`
}

// DefaultConfig returns the stock detector settings.
func DefaultConfig() Config {
	return Config{
		SmoothingWindow: 3,
		BlinkThreshold:  0.3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

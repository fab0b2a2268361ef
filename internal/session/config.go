package session

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config holds frame loop settings.
type Config struct {
	FrameInterval time.Duration `validate:"gt=0"`
	Duration      time.Duration `validate:"gte=0"` // 0 = unlimited, whole seconds
}

// DefaultConfig polls at ~30fps for one-minute sessions.
func DefaultConfig() Config {
	return Config{
		FrameInterval: 33 * time.Millisecond,
		Duration:      60 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	return nil
}

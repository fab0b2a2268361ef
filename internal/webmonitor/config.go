package webmonitor

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr              string        `validate:"required"`
	StatusInterval    time.Duration `validate:"gt=0"`
	KeepaliveInterval time.Duration `validate:"gt=0"`
	// RateLimit is the sustained requests per second allowed per client on
	// the control and status routes. 0 disables limiting.
	RateLimit      float64 `validate:"gte=0"`
	RateBurst      int     `validate:"gte=1"`
	TrustProxy     bool
	FrameAncestors []string
	ScriptSrc      []string // extra script-src entries besides 'self'
	ImgSrc         []string // extra img-src entries
	ConnectSrc     []string // extra connect-src entries besides 'self'
	MaxSampleBytes int64    `validate:"gt=0"`
}

// DefaultConfig returns the settings used by blinkd when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		StatusInterval:    time.Second,
		KeepaliveInterval: 30 * time.Second,
		RateLimit:         5,
		RateBurst:         20,
		MaxSampleBytes:    4 << 10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid web monitor config: %w", err)
	}
	return nil
}

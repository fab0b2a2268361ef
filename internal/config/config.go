// Package config assembles blinkd's settings from defaults, an optional TOML
// file and BLINK_* environment variables. Command-line flags are applied by
// the caller on top of the result.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/yuyu-tech02/Blink-counter/internal/blink"
	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/session"
	"github.com/yuyu-tech02/Blink-counter/internal/source"
	"github.com/yuyu-tech02/Blink-counter/internal/webmonitor"
)

var validate = validator.New()

// Source kinds.
const (
	SourcePush      = "push"
	SourceSynthetic = "synthetic"
	SourceReplay    = "replay"
)

// Config is the merged daemon configuration.
type Config struct {
	LogLevel   string `validate:"required"`
	LogFile    string
	Source     string `validate:"oneof=push synthetic replay"`
	ReplayPath string `validate:"required_if=Source replay"`
	Autostart  bool
	RecordDir  string `validate:"required"`

	Detector  blink.Config
	Session   session.Config
	Web       webmonitor.Config
	Synthetic source.SyntheticConfig
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		Source:    SourcePush,
		RecordDir: "./recordings",
		Detector:  blink.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Web:       webmonitor.DefaultConfig(),
		Synthetic: source.DefaultSyntheticConfig(),
	}
}

// Validate checks the merged configuration, including the rules declared on
// each component's config.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Session.Duration%time.Second != 0 {
		return fmt.Errorf("invalid config: session duration %v is not whole seconds", c.Session.Duration)
	}
	return nil
}

// FileConfig represents the TOML configuration file. Absent keys keep their
// current values.
type FileConfig struct {
	Log       LogSection       `toml:"log"`
	Source    SourceSection    `toml:"source"`
	Detector  DetectorSection  `toml:"detector"`
	Session   SessionSection   `toml:"session"`
	Server    ServerSection    `toml:"server"`
	Record    RecordSection    `toml:"record"`
	Synthetic SyntheticSection `toml:"synthetic"`
}

type LogSection struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

type SourceSection struct {
	Kind       *string `toml:"kind"`
	ReplayPath *string `toml:"replay_path"`
	Autostart  *bool   `toml:"autostart"`
}

type DetectorSection struct {
	SmoothingWindow *int     `toml:"smoothing_window"`
	BlinkThreshold  *float64 `toml:"blink_threshold"`
}

type SessionSection struct {
	FrameInterval *string `toml:"frame_interval"`
	Duration      *string `toml:"duration"`
}

type ServerSection struct {
	Addr              *string   `toml:"addr"`
	StatusInterval    *string   `toml:"status_interval"`
	KeepaliveInterval *string   `toml:"keepalive_interval"`
	RateLimit         *float64  `toml:"rate_limit"`
	RateBurst         *int      `toml:"rate_burst"`
	TrustProxy        *bool     `toml:"trust_proxy"`
	FrameAncestors    *[]string `toml:"frame_ancestors"`
	ScriptSrc         *[]string `toml:"script_src"`
	ImgSrc            *[]string `toml:"img_src"`
	ConnectSrc        *[]string `toml:"connect_src"`
}

type RecordSection struct {
	Dir *string `toml:"dir"`
}

type SyntheticSection struct {
	Seed          *uint64  `toml:"seed"`
	BlinkInterval *string  `toml:"blink_interval"`
	BlinkDuration *string  `toml:"blink_duration"`
	Noise         *float64 `toml:"noise"`
	DropoutRate   *float64 `toml:"dropout_rate"`
}

// LoadFile reads a TOML config from the given path. Missing file is not an error.
func LoadFile(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return fc, nil
}

// Apply overlays the values present in the file onto cfg.
func (fc FileConfig) Apply(cfg *Config) error {
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFile, fc.Log.File)

	setString(&cfg.Source, fc.Source.Kind)
	setString(&cfg.ReplayPath, fc.Source.ReplayPath)
	setBool(&cfg.Autostart, fc.Source.Autostart)
	setString(&cfg.RecordDir, fc.Record.Dir)

	if fc.Detector.SmoothingWindow != nil {
		cfg.Detector.SmoothingWindow = *fc.Detector.SmoothingWindow
	}
	if fc.Detector.BlinkThreshold != nil {
		cfg.Detector.BlinkThreshold = *fc.Detector.BlinkThreshold
	}

	if err := setDuration(&cfg.Session.FrameInterval, fc.Session.FrameInterval, "session.frame_interval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Session.Duration, fc.Session.Duration, "session.duration"); err != nil {
		return err
	}

	setString(&cfg.Web.Addr, fc.Server.Addr)
	if err := setDuration(&cfg.Web.StatusInterval, fc.Server.StatusInterval, "server.status_interval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Web.KeepaliveInterval, fc.Server.KeepaliveInterval, "server.keepalive_interval"); err != nil {
		return err
	}
	if fc.Server.RateLimit != nil {
		cfg.Web.RateLimit = *fc.Server.RateLimit
	}
	if fc.Server.RateBurst != nil {
		cfg.Web.RateBurst = *fc.Server.RateBurst
	}
	setBool(&cfg.Web.TrustProxy, fc.Server.TrustProxy)
	if fc.Server.FrameAncestors != nil {
		cfg.Web.FrameAncestors = *fc.Server.FrameAncestors
	}
	if fc.Server.ScriptSrc != nil {
		cfg.Web.ScriptSrc = *fc.Server.ScriptSrc
	}
	if fc.Server.ImgSrc != nil {
		cfg.Web.ImgSrc = *fc.Server.ImgSrc
	}
	if fc.Server.ConnectSrc != nil {
		cfg.Web.ConnectSrc = *fc.Server.ConnectSrc
	}

	if fc.Synthetic.Seed != nil {
		cfg.Synthetic.Seed = *fc.Synthetic.Seed
	}
	if err := setDuration(&cfg.Synthetic.BlinkInterval, fc.Synthetic.BlinkInterval, "synthetic.blink_interval"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Synthetic.BlinkDuration, fc.Synthetic.BlinkDuration, "synthetic.blink_duration"); err != nil {
		return err
	}
	if fc.Synthetic.Noise != nil {
		cfg.Synthetic.NoiseAmplitude = *fc.Synthetic.Noise
	}
	if fc.Synthetic.DropoutRate != nil {
		cfg.Synthetic.DropoutRate = *fc.Synthetic.DropoutRate
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

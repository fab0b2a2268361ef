package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLINK_"

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. Missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overlays BLINK_* variables onto cfg. List values are
// comma-separated.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.str("LOG_FILE", &cfg.LogFile)
	e.str("SOURCE", &cfg.Source)
	e.str("REPLAY_PATH", &cfg.ReplayPath)
	e.boolean("AUTOSTART", &cfg.Autostart)
	e.str("RECORD_DIR", &cfg.RecordDir)

	e.integer("SMOOTHING_WINDOW", &cfg.Detector.SmoothingWindow)
	e.float("THRESHOLD", &cfg.Detector.BlinkThreshold)

	e.duration("FRAME_INTERVAL", &cfg.Session.FrameInterval)
	e.duration("SESSION_DURATION", &cfg.Session.Duration)

	e.str("ADDR", &cfg.Web.Addr)
	e.duration("STATUS_INTERVAL", &cfg.Web.StatusInterval)
	e.float("RATE_LIMIT", &cfg.Web.RateLimit)
	e.integer("RATE_BURST", &cfg.Web.RateBurst)
	e.boolean("TRUST_PROXY", &cfg.Web.TrustProxy)
	e.list("CSP_FRAME_ANCESTORS", &cfg.Web.FrameAncestors)
	e.list("CSP_SCRIPT_SRC", &cfg.Web.ScriptSrc)
	e.list("CSP_IMG_SRC", &cfg.Web.ImgSrc)
	e.list("CSP_CONNECT_SRC", &cfg.Web.ConnectSrc)

	return e.err
}

// envReader records the first malformed value and skips the rest.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key string, err error) {
	e.err = fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var out []string
		for _, entry := range strings.Split(v, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				out = append(out, entry)
			}
		}
		*dst = out
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// any), the .env file at envPath (if any) and the process environment. The
// result is not validated; callers apply flags first.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := fc.Apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(envPath); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func mapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	fc, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := Default()
	if err := fc.Apply(&cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if cfg.Detector != Default().Detector || cfg.Session != Default().Session {
		t.Error("empty file changed the configuration")
	}
}

func TestFileOverridesOnlyPresentKeys(t *testing.T) {
	path := writeFile(t, "blinkd.toml", `
[log]
level = "debug"

[source]
kind = "replay"
replay_path = "traces/desk.jsonl"
autostart = true

[detector]
blink_threshold = 0.35

[session]
duration = "2m"

[server]
addr = "127.0.0.1:9090"
frame_ancestors = ["https://dashboard.example"]
img_src = ["https://img.example"]

[record]
dir = "/var/lib/blinkd/traces"

[synthetic]
seed = 42
blink_interval = "4s"
`)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := Default()
	if err := fc.Apply(&cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Source != SourceReplay || cfg.ReplayPath != "traces/desk.jsonl" || !cfg.Autostart {
		t.Errorf("top-level settings not applied: %+v", cfg)
	}
	if cfg.Detector.BlinkThreshold != 0.35 {
		t.Errorf("BlinkThreshold = %v, want 0.35", cfg.Detector.BlinkThreshold)
	}
	if cfg.RecordDir != "/var/lib/blinkd/traces" {
		t.Errorf("RecordDir = %q", cfg.RecordDir)
	}
	if cfg.Detector.SmoothingWindow != Default().Detector.SmoothingWindow {
		t.Errorf("SmoothingWindow = %d, want default", cfg.Detector.SmoothingWindow)
	}
	if cfg.Session.Duration != 2*time.Minute {
		t.Errorf("Session.Duration = %v, want 2m", cfg.Session.Duration)
	}
	if cfg.Session.FrameInterval != Default().Session.FrameInterval {
		t.Errorf("FrameInterval = %v, want default", cfg.Session.FrameInterval)
	}
	if cfg.Web.Addr != "127.0.0.1:9090" {
		t.Errorf("Addr = %q", cfg.Web.Addr)
	}
	if len(cfg.Web.FrameAncestors) != 1 || cfg.Web.FrameAncestors[0] != "https://dashboard.example" {
		t.Errorf("FrameAncestors = %v", cfg.Web.FrameAncestors)
	}
	if len(cfg.Web.ImgSrc) != 1 || cfg.Web.ImgSrc[0] != "https://img.example" || cfg.Web.ScriptSrc != nil {
		t.Errorf("ImgSrc = %v ScriptSrc = %v", cfg.Web.ImgSrc, cfg.Web.ScriptSrc)
	}
	if cfg.Synthetic.Seed != 42 || cfg.Synthetic.BlinkInterval != 4*time.Second {
		t.Errorf("synthetic settings not applied: %+v", cfg.Synthetic)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFileRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad duration", content: "[session]\nduration = \"soon\"\n", wantErr: "session.duration"},
		{name: "bad toml", content: "[session\n", wantErr: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "blinkd.toml", tt.content), "")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, mapLookup(map[string]string{
		"BLINK_SOURCE":           "synthetic",
		"BLINK_SMOOTHING_WINDOW": "5",
		"BLINK_THRESHOLD":        "0.25",
		"BLINK_SESSION_DURATION": "0s",
		"BLINK_TRUST_PROXY":      "true",
		"BLINK_CSP_CONNECT_SRC":  "wss://a.example, https://b.example,",
		"BLINK_CSP_SCRIPT_SRC":   "https://cdn.example",
		"BLINK_ADDR":             "   ",
		"BLINK_RECORD_DIR":       "/tmp/traces",
		"SMOOTHING_WINDOW":       "9",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Source != SourceSynthetic || cfg.RecordDir != "/tmp/traces" {
		t.Errorf("Source = %q RecordDir = %q", cfg.Source, cfg.RecordDir)
	}
	if cfg.Detector.SmoothingWindow != 5 || cfg.Detector.BlinkThreshold != 0.25 {
		t.Errorf("Detector = %+v", cfg.Detector)
	}
	if cfg.Session.Duration != 0 {
		t.Errorf("Session.Duration = %v, want unlimited", cfg.Session.Duration)
	}
	if !cfg.Web.TrustProxy {
		t.Error("TrustProxy not set")
	}
	if got := strings.Join(cfg.Web.ConnectSrc, " "); got != "wss://a.example https://b.example" {
		t.Errorf("ConnectSrc = %q", got)
	}
	if got := strings.Join(cfg.Web.ScriptSrc, " "); got != "https://cdn.example" {
		t.Errorf("ScriptSrc = %q", got)
	}
	if cfg.Web.Addr != Default().Web.Addr {
		t.Errorf("blank BLINK_ADDR overrode Addr: %q", cfg.Web.Addr)
	}
}

func TestApplyEnvReportsKey(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, mapLookup(map[string]string{"BLINK_RATE_BURST": "lots"}))
	if err == nil || !strings.Contains(err.Error(), "BLINK_RATE_BURST") {
		t.Fatalf("ApplyEnv err = %v, want mention of BLINK_RATE_BURST", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("BLINK_ADDR", ":7000")
	t.Cleanup(func() { os.Unsetenv("BLINK_DOTENV_PROBE") })

	path := writeFile(t, ".env", "BLINK_ADDR=:9999\nBLINK_DOTENV_PROBE=loaded\n")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if got := os.Getenv("BLINK_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("BLINK_DOTENV_PROBE = %q, want loaded", got)
	}
	if got := os.Getenv("BLINK_ADDR"); got != ":7000" {
		t.Errorf("BLINK_ADDR = %q, existing value was overridden", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown source", mutate: func(c *Config) { c.Source = "camera" }},
		{name: "replay without path", mutate: func(c *Config) { c.Source = SourceReplay }},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "threshold out of range", mutate: func(c *Config) { c.Detector.BlinkThreshold = 1.5 }},
		{name: "zero smoothing window", mutate: func(c *Config) { c.Detector.SmoothingWindow = 0 }},
		{name: "fractional duration", mutate: func(c *Config) { c.Session.Duration = 1500 * time.Millisecond }},
		{name: "zero frame interval", mutate: func(c *Config) { c.Session.FrameInterval = 0 }},
		{name: "empty address", mutate: func(c *Config) { c.Web.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

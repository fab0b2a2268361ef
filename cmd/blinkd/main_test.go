package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yuyu-tech02/Blink-counter/internal/config"
)

func newTestDaemon(t *testing.T, mutate func(*config.Config)) *Daemon {
	t.Helper()
	cfg := config.Default()
	cfg.Session.FrameInterval = time.Millisecond
	cfg.Web.RateLimit = 0
	cfg.RecordDir = t.TempDir()
	mutate(&cfg)

	d, err := NewDaemon(cfg)
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	t.Cleanup(func() {
		d.session.Stop()
		d.recorder.Close()
		d.web.Close()
		d.cancel()
	})
	return d
}

func TestDaemonSyntheticSession(t *testing.T) {
	d := newTestDaemon(t, func(c *config.Config) { c.Source = config.SourceSynthetic })
	if d.push != nil {
		t.Fatal("synthetic daemon created a push source")
	}

	srv := httptest.NewServer(d.web.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/recording/start", "application/json", nil)
	if err != nil {
		t.Fatalf("recording start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recording start status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/session/start", "application/json", strings.NewReader(`{"duration_seconds": 5}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(3 * time.Second)
	for d.metrics.FramesRead.Load() < 10 {
		if time.Now().After(deadline) {
			t.Fatal("synthetic frames never reached the detector")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := d.recorder.Stop(); err != nil {
		t.Fatalf("recorder.Stop: %v", err)
	}
	if got := d.recorder.GetStatus().FrameCount; got == 0 {
		t.Error("recorder captured no synthetic frames")
	}

	// Ingest is disabled without a push source.
	resp, err = http.Post(srv.URL+"/api/samples", "application/json", strings.NewReader(`{"t":1,"left":0.1,"right":0.1}`))
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("sample status = %d, want 503", resp.StatusCode)
	}
}

func TestDaemonReplayMissingTrace(t *testing.T) {
	d := newTestDaemon(t, func(c *config.Config) {
		c.Source = config.SourceReplay
		c.ReplayPath = t.TempDir() + "/absent.jsonl"
		c.Autostart = true
		c.Web.Addr = "127.0.0.1:0"
	})

	err := d.Start()
	if err == nil {
		t.Fatal("Start succeeded without a trace")
	}
	if !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("err = %v, want source unavailable", err)
	}
	if err := d.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

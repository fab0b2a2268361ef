package webmonitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectSrc = []string{"wss://tracker.example"}
	env := newTestEnv(t, cfg)

	resp, _ := env.get(t, "/api/status")
	csp := resp.Header.Get("Content-Security-Policy")
	for _, want := range []string{
		"default-src 'self'",
		"object-src 'none'",
		"connect-src 'self' wss://tracker.example",
		"frame-ancestors 'self'",
	} {
		if !strings.Contains(csp, want) {
			t.Errorf("CSP %q missing %q", csp, want)
		}
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header.Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
		t.Errorf("Referrer-Policy = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("API Cache-Control = %q, want no-store", got)
	}

	resp, _ = env.get(t, "/health")
	if got := resp.Header.Get("Cache-Control"); got == "no-store" {
		t.Error("non-API route marked no-store")
	}
}

func TestFrameAncestorsOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameAncestors = []string{"https://dashboard.example"}

	csp := contentSecurityPolicy(cfg)
	if !strings.Contains(csp, "frame-ancestors https://dashboard.example") {
		t.Errorf("CSP %q does not carry the configured frame ancestors", csp)
	}
	if strings.Contains(csp, "frame-ancestors 'self'") {
		t.Errorf("CSP %q kept the default frame ancestors", csp)
	}
}

func TestContentSecurityPolicySources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptSrc = []string{"https://cdn.example"}
	cfg.ImgSrc = []string{"https://img.example"}

	csp := contentSecurityPolicy(cfg)
	for _, want := range []string{
		"script-src 'self' https://cdn.example",
		"img-src 'self' data: blob: https://img.example",
		"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com",
		"font-src 'self' https://fonts.gstatic.com",
		"form-action 'self'",
	} {
		if !strings.Contains(csp, want) {
			t.Errorf("CSP %q missing %q", csp, want)
		}
	}

	plain := contentSecurityPolicy(DefaultConfig())
	if !strings.Contains(plain, "script-src 'self';") || !strings.Contains(plain, "img-src 'self' data: blob:;") {
		t.Errorf("default CSP %q carries extra sources", plain)
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	rl := newRateLimiter(cfg)

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.allow("10.0.0.1") || !rl.allow("10.0.0.1") {
		t.Fatal("burst requests were limited")
	}
	if rl.allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("second client limited by the first")
	}

	now = now.Add(time.Second)
	if !rl.allow("10.0.0.1") {
		t.Error("token not refilled after one second")
	}

	// Idle visitors are swept.
	now = now.Add(visitorIdle + sweepInterval + time.Second)
	rl.allow("10.0.0.3")
	rl.mu.Lock()
	_, stale := rl.visitors["10.0.0.1"]
	rl.mu.Unlock()
	if stale {
		t.Error("idle visitor not swept")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	if rl := newRateLimiter(cfg); rl != nil {
		t.Error("limiter created with a zero rate")
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		forwarded  string
		want       string
	}{
		{name: "remote address", want: "192.0.2.10"},
		{name: "forwarded ignored", forwarded: "203.0.113.5", want: "192.0.2.10"},
		{name: "forwarded trusted", trustProxy: true, forwarded: "203.0.113.5, 10.0.0.1", want: "203.0.113.5"},
		{name: "trusted but absent", trustProxy: true, want: "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TrustProxy = tt.trustProxy
			rl := newRateLimiter(cfg)

			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			req.RemoteAddr = "192.0.2.10:51234"
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := rl.clientKey(req); got != tt.want {
				t.Errorf("clientKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	env := newTestEnv(t, cfg)

	if resp, _ := env.get(t, "/api/status"); resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", resp.StatusCode)
	}
	resp, _ := env.get(t, "/api/status")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("429 without Retry-After")
	}
	if resp, _ := env.get(t, "/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}
	if got := env.metrics.RateLimited.Load(); got != 1 {
		t.Errorf("RateLimited = %d, want 1", got)
	}
}

package webmonitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yuyu-tech02/Blink-counter/internal/blink"
	"github.com/yuyu-tech02/Blink-counter/internal/metrics"
	"github.com/yuyu-tech02/Blink-counter/internal/recorder"
	"github.com/yuyu-tech02/Blink-counter/internal/session"
	"github.com/yuyu-tech02/Blink-counter/internal/source"
	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

const defaultRequestTimeout = 3 * time.Second

type testEnv struct {
	server  *Server
	http    *httptest.Server
	session *session.Session
	push    *source.Push
	metrics *metrics.Metrics
	rec     *recorder.Recorder
	recDir  string
	client  *http.Client
}

// newTestEnv wires a push-fed session to a server, the way blinkd does.
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	return newEnv(t, cfg, nil)
}

// newRecordingEnv is newTestEnv with a trace recorder writing into a
// temporary directory.
func newRecordingEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := newEnv(t, cfg, recorder.NewRecorder(dir))
	env.recDir = dir
	return env
}

func newEnv(t *testing.T, cfg Config, rec *recorder.Recorder) *testEnv {
	t.Helper()

	m := metrics.New()
	push := source.NewPush()
	env := &testEnv{push: push, metrics: m, rec: rec, client: &http.Client{Timeout: defaultRequestTimeout}}

	sessOpts := []session.Option{
		session.WithBlinkHandler(func(e session.Event) { env.server.OnBlink(e) }),
	}
	var serverOpts []ServerOption
	if rec != nil {
		sessOpts = append(sessOpts, session.WithFrameHandler(func(f types.Frame) { rec.SendFrame(f) }))
		serverOpts = append(serverOpts, WithRecorder(rec))
	}

	sess, err := session.New(
		session.Config{FrameInterval: time.Millisecond, Duration: time.Minute},
		blink.Config{SmoothingWindow: 1, BlinkThreshold: 0.3},
		push, m,
		sessOpts...,
	)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	env.session = sess

	ctx, cancel := context.WithCancel(context.Background())
	env.server = NewServer(ctx, cfg, sess, push, m, serverOpts...)
	env.http = httptest.NewServer(env.server.Handler())

	t.Cleanup(func() {
		env.server.Close()
		env.http.Close()
		sess.Stop()
		if rec != nil {
			rec.Close()
		}
		cancel()
	})
	return env
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StatusInterval = 20 * time.Millisecond
	cfg.RateLimit = 0
	return cfg
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func (e *testEnv) post(t *testing.T, path string, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.http.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, data
}

// readSSEEvent returns the first event of an SSE stream.
func readSSEEvent(url string, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
				return string(buf[:idx]), resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
	}
}

func sseData(t *testing.T, event string) []byte {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return []byte(payload)
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return nil
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func requireBool(t *testing.T, value any, field string) bool {
	t.Helper()
	b, ok := value.(bool)
	if !ok {
		t.Fatalf("expected %s to be bool, got %T", field, value)
	}
	return b
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(defaultRequestTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

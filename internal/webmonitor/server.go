// Package webmonitor serves the HTTP surface of the blink counter: session
// control, live status and blink streams, sample ingest and metrics.
package webmonitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/metrics"
	"github.com/yuyu-tech02/Blink-counter/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Controller starts and stops measurement sessions.
type Controller interface {
	Start(ctx context.Context, opts session.StartOptions) (session.Status, error)
	Stop() session.Status
	Status() session.Status
}

// Server serves the web monitor endpoints.
type Server struct {
	ctx        context.Context
	cfg        Config
	controller Controller
	publisher  Publisher
	metrics    *metrics.Metrics

	monitor  *Monitor
	blinks   *BlinkBroadcaster
	status   *StatusBroadcaster
	limiter  *rateLimiter
	recorder TraceRecorder

	upgrader websocket.Upgrader
}

// NewServer returns a configured monitor server. Sessions started over HTTP
// live until ctx is cancelled or they end on their own. publisher may be nil
// when samples do not come from external trackers.
func NewServer(ctx context.Context, cfg Config, controller Controller, publisher Publisher, m *metrics.Metrics, opts ...ServerOption) *Server {
	defaults := DefaultConfig()
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = defaults.StatusInterval
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = defaults.KeepaliveInterval
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaults.RateBurst
	}
	if cfg.MaxSampleBytes == 0 {
		cfg.MaxSampleBytes = defaults.MaxSampleBytes
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		ctx:        ctx,
		cfg:        cfg,
		controller: controller,
		publisher:  publisher,
		metrics:    m,
		monitor:    NewMonitor(),
		blinks:     NewBlinkBroadcaster(m),
		limiter:    newRateLimiter(cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status = NewStatusBroadcaster(s.snapshot, cfg.StatusInterval, m)
	s.status.Start()
	return s
}

// OnBlink records a counted blink and fans it out to stream clients. It is
// meant to be registered with session.WithBlinkHandler.
func (s *Server) OnBlink(e session.Event) {
	s.monitor.RecordBlink(e)
	s.blinks.Publish(e)
}

// Close stops the broadcasters and disconnects stream clients.
func (s *Server) Close() {
	s.status.Stop()
	s.blinks.Close()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	mux.HandleFunc("/api/status", s.limited(s.handleStatus))
	mux.HandleFunc("/api/status/stream", s.limited(s.handleStatusStream))
	mux.HandleFunc("/api/blinks/stream", s.limited(s.handleBlinksStream))
	mux.HandleFunc("/api/session/start", s.limited(s.handleSessionStart))
	mux.HandleFunc("/api/session/stop", s.limited(s.handleSessionStop))
	mux.HandleFunc("/api/badge.png", s.limited(s.handleBadge))
	mux.HandleFunc("/api/recording/start", s.limited(s.handleRecordingStart))
	mux.HandleFunc("/api/recording/stop", s.limited(s.handleRecordingStop))
	mux.HandleFunc("/api/recording/status", s.limited(s.handleRecordingStatus))

	// Trackers post at frame rate; ingest is not rate limited.
	mux.HandleFunc("/api/samples", s.handleSample)
	mux.HandleFunc("/api/samples/ws", s.handleSampleSocket)

	return securityHeaders(s.cfg, mux)
}

func (s *Server) snapshot() StatusResponse {
	st := s.controller.Status()
	resp := StatusResponse{
		Session:      st,
		RecentBlinks: s.monitor.Recent(st.ID),
		Timestamp:    float64(time.Now().Unix()),
	}
	if s.publisher != nil {
		resp.Ingest = &IngestStats{
			Accepting: s.publisher.Accepting(),
			Accepted:  s.metrics.SamplesAccepted.Load(),
			Dropped:   s.metrics.SamplesDropped.Load(),
			Rejected:  s.metrics.SamplesRejected.Load(),
		}
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"running": s.controller.Status().Running,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)

	initial, err := s.status.Current()
	if err != nil {
		logger.Error("WebMonitor", "Serialize status: %v", err)
		http.Error(w, "Failed to render status", http.StatusInternalServerError)
		return
	}
	streamEvents(w, r, "StatusStream", eventCh, initial, s.cfg.KeepaliveInterval)
}

func (s *Server) handleBlinksStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.blinks.Subscribe()
	defer s.blinks.Unsubscribe(id)

	streamEvents(w, r, "BlinkStream", eventCh, nil, s.cfg.KeepaliveInterval)
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opts, err := parseStartRequest(r.Body)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	status, err := s.controller.Start(s.ctx, opts)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, session.ErrSourceUnavailable) {
			code = http.StatusServiceUnavailable
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, code)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.controller.Stop())
}

// parseStartRequest reads the optional start body. An empty body starts a
// session with the configured duration.
func parseStartRequest(body io.Reader) (session.StartOptions, error) {
	data, err := io.ReadAll(io.LimitReader(body, 1<<10))
	if err != nil {
		return session.StartOptions{}, fmt.Errorf("invalid request body")
	}
	if len(data) == 0 {
		return session.StartOptions{}, nil
	}

	var req StartRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return session.StartOptions{}, fmt.Errorf("invalid request body")
	}
	if req.DurationSeconds == nil {
		return session.StartOptions{}, nil
	}
	if *req.DurationSeconds <= 0 {
		return session.StartOptions{}, fmt.Errorf("duration_seconds must be positive")
	}
	return session.StartOptions{Duration: time.Duration(*req.DurationSeconds) * time.Second}, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}

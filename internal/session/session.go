// Package session runs blink measurement sessions: it owns the frame-tick
// loop that pulls frames from a source and steps a detector, and it enforces
// the session duration limit.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yuyu-tech02/Blink-counter/internal/blink"
	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/metrics"
	"github.com/yuyu-tech02/Blink-counter/internal/source"
	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

// ErrSourceUnavailable wraps a source that could not be opened. The session
// does not start.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// errorLogEvery throttles per-frame error logging.
const errorLogEvery = 30

// EndReason says why a session stopped.
type EndReason string

const (
	EndNone         EndReason = ""
	EndStopped      EndReason = "stopped"
	EndCompleted    EndReason = "completed"
	EndSourceLost   EndReason = "source_lost"
	EndSourceFailed EndReason = "source_failed"
)

// Status is the externally visible session state.
type Status struct {
	ID               string      `json:"id,omitempty"`
	Running          bool        `json:"running"`
	Stats            blink.Stats `json:"stats"`
	DurationSeconds  int         `json:"duration_seconds"`
	RemainingSeconds int         `json:"remaining_seconds"`
	StartedAt        time.Time   `json:"started_at"`
	EndReason        EndReason   `json:"end_reason,omitempty"`
	Error            string      `json:"error,omitempty"` // set with EndSourceFailed
}

// Event is a counted blink within a session.
type Event struct {
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	blink.Event
}

// StartOptions adjusts a single session. A zero Duration uses the configured
// default.
type StartOptions struct {
	Duration time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithBlinkHandler registers a callback for counted blinks. It runs on the
// frame loop goroutine and must not block.
func WithBlinkHandler(fn func(Event)) Option {
	return func(s *Session) { s.onBlink = fn }
}

// WithStatsHandler registers a callback invoked once per tick and once when a
// session ends. It runs on the frame loop goroutine and must not block.
func WithStatsHandler(fn func(Status)) Option {
	return func(s *Session) { s.onStats = fn }
}

// WithFrameHandler registers a callback for every frame handed to the
// detector. It runs on the frame loop goroutine and must not block.
func WithFrameHandler(fn func(types.Frame)) Option {
	return func(s *Session) { s.onFrame = fn }
}

// WithClock replaces the session clock used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.clock = now }
}

// Session controls measurement sessions over one frame source. At most one
// session is active at a time.
type Session struct {
	cfg     Config
	detCfg  blink.Config
	src     source.Source
	metrics *metrics.Metrics
	clock   func() time.Time
	onBlink func(Event)
	onStats func(Status)
	onFrame func(types.Frame)

	ctrl sync.Mutex // serializes Start and Stop

	mu     sync.Mutex
	active *run
	last   Status
}

type run struct {
	id       string
	det      *blink.Detector
	started  time.Time
	duration time.Duration

	live   atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	frameErrors uint64
	endErr      error
}

// New creates a session controller.
func New(cfg Config, detCfg blink.Config, src source.Source, m *metrics.Metrics, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := detCfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("session: nil source")
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Session{
		cfg:     cfg,
		detCfg:  detCfg,
		src:     src,
		metrics: m,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins a new session, tearing down any active one first. ctx bounds
// the lifetime of the session loop.
func (s *Session) Start(ctx context.Context, opts StartOptions) (Status, error) {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.stopLocked()

	det, err := blink.NewDetector(s.detCfg)
	if err != nil {
		return Status{}, err
	}

	if err := s.src.Open(ctx); err != nil {
		logger.Error("Session", "Frame source unavailable: %v", err)
		return Status{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	duration := opts.Duration
	if duration == 0 {
		duration = s.cfg.Duration
	}

	now := s.clock()
	det.Reset(clockMs(now))

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:       uuid.NewString(),
		det:      det,
		started:  now,
		duration: duration,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.live.Store(true)

	status := r.status(blink.Stats{}, true)

	s.mu.Lock()
	s.active = r
	s.last = status
	s.mu.Unlock()

	s.metrics.SessionsStarted.Add(1)
	s.metrics.SessionActive.Store(1)
	s.metrics.UpdateStats(blink.Stats{})

	logger.Info("Session", "Session %s started (duration=%v, frame interval=%v)", r.id, duration, s.cfg.FrameInterval)

	go s.loop(runCtx, r)
	return status, nil
}

// Stop ends the active session, if any, and returns the final status. No
// blink event is emitted for a closure still in progress.
func (s *Session) Stop() Status {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.stopLocked()
	return s.Status()
}

func (s *Session) stopLocked() {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()

	if r == nil {
		return
	}
	r.live.Store(false)
	r.cancel()
	<-r.done
}

// Status returns the active session's status, or the last one after it ended.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Running reports whether a session is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Session) loop(ctx context.Context, r *run) {
	defer close(r.done)

	reason := EndStopped
	defer func() { s.finish(r, reason) }()

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.live.Load() {
				return
			}
			if end, done := s.tick(ctx, r); done {
				reason = end
				return
			}
		}
	}
}

// tick runs one frame through the detector. It reports whether the session
// has to end.
func (s *Session) tick(ctx context.Context, r *run) (EndReason, bool) {
	frame, err := s.src.Next(ctx)
	nowMs := clockMs(s.clock())

	var stats blink.Stats
	switch {
	case errors.Is(err, source.ErrSourceFailed):
		logger.Error("Session", "Session %s frame source failed: %v", r.id, err)
		s.metrics.SessionsLost.Add(1)
		r.endErr = err
		return EndSourceFailed, true

	case errors.Is(err, source.ErrSourceLost):
		logger.Warn("Session", "Session %s lost its frame source: %v", r.id, err)
		s.metrics.SessionsLost.Add(1)
		return EndSourceLost, true

	case err != nil:
		// Transient: the detector is left as it was and the next tick
		// reads a fresh frame.
		r.frameErrors++
		s.metrics.FrameErrors.Add(1)
		if r.frameErrors == 1 || r.frameErrors%errorLogEvery == 0 {
			logger.Warn("Session", "Frame error (count=%d): %v", r.frameErrors, err)
		}
		stats = r.det.Snapshot(nowMs)

	case frame == nil:
		s.metrics.FramesIdle.Add(1)
		stats = r.det.Snapshot(nowMs)

	default:
		if s.onFrame != nil {
			s.onFrame(*frame)
		}
		s.metrics.FramesRead.Add(1)
		start := time.Now()
		res := r.det.Step(frame.Face, frame.TimestampMs, nowMs)
		s.metrics.ObserveStep(res, time.Since(start))
		stats = res.Stats
		s.report(r, frame.Sequence, res)
	}

	status := r.status(stats, true)
	s.mu.Lock()
	s.last = status
	s.mu.Unlock()
	s.metrics.UpdateStats(stats)

	if s.onStats != nil {
		s.onStats(status)
	}

	if r.duration > 0 && stats.ElapsedSeconds >= durationSeconds(r.duration) {
		return EndCompleted, true
	}
	return EndNone, false
}

func (s *Session) report(r *run, seq uint64, res blink.Result) {
	switch res.Outcome {
	case blink.OutcomeBlink:
		logger.Debug("Session", "Blink #%d (frame=%d, duration=%.0fms)", res.Event.Count, seq, res.Event.DurationMs)
		if s.onBlink != nil {
			s.onBlink(Event{SessionID: r.id, At: s.clock(), Event: res.Event})
		}
	case blink.OutcomeOnsetRejected:
		logger.Debug("Session", "Closure onset rejected (frame=%d, left=%.2f, right=%.2f, synchronous=%v, head stable=%v)",
			seq, res.AvgLeft, res.AvgRight, res.Gates.BothEyesClosing, res.Gates.HeadStable)
	case blink.OutcomeTooShort, blink.OutcomeTooLong:
		logger.Debug("Session", "Closure discarded (frame=%d, outcome=%s)", seq, res.Outcome)
	}
}

func (s *Session) finish(r *run, reason EndReason) {
	r.cancel()
	if err := s.src.Close(); err != nil {
		logger.Warn("Session", "Closing frame source: %v", err)
	}

	s.metrics.SessionActive.Store(0)
	if reason == EndCompleted {
		s.metrics.SessionsCompleted.Add(1)
	}

	s.mu.Lock()
	final := s.last
	final.Running = false
	final.EndReason = reason
	if r.endErr != nil {
		final.Error = r.endErr.Error()
	}
	if s.active == r {
		s.active = nil
	}
	s.last = final
	s.mu.Unlock()

	logger.Info("Session", "Session %s ended (%s): %d blinks in %ds, %d/min",
		r.id, reason, final.Stats.BlinkCount, final.Stats.ElapsedSeconds, final.Stats.BlinksPerMinute)

	if s.onStats != nil {
		s.onStats(final)
	}
}

func (r *run) status(stats blink.Stats, running bool) Status {
	total := durationSeconds(r.duration)
	remaining := 0
	if total > 0 {
		remaining = total - stats.ElapsedSeconds
		if remaining < 0 {
			remaining = 0
		}
	}
	return Status{
		ID:               r.id,
		Running:          running,
		Stats:            stats,
		DurationSeconds:  total,
		RemainingSeconds: remaining,
		StartedAt:        r.started,
	}
}

func clockMs(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e6
}

func durationSeconds(d time.Duration) int {
	return int(d / time.Second)
}

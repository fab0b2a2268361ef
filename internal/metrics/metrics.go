package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yuyu-tech02/Blink-counter/internal/blink"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame loop counters
	FramesRead   atomic.Uint64 // frames handed to the detector
	FramesNoFace atomic.Uint64
	FramesIdle   atomic.Uint64 // ticks with no new frame
	FrameErrors  atomic.Uint64 // transient per-frame failures

	// Detector outcomes
	BlinksCounted        atomic.Uint64
	OnsetsRejectedSync   atomic.Uint64
	OnsetsRejectedMotion atomic.Uint64
	BlinksTooShort       atomic.Uint64
	BlinksTooLong        atomic.Uint64

	// Sessions
	SessionsStarted   atomic.Uint64
	SessionsCompleted atomic.Uint64
	SessionsLost      atomic.Uint64
	SessionActive     atomic.Uint64 // 0 = idle, 1 = running

	// Current session statistics
	BlinksPerMinute atomic.Uint64
	ElapsedSeconds  atomic.Uint64

	// Latency tracking
	StepLatencyUs atomic.Uint64 // Last detector step latency in microseconds

	// Sample ingest
	SamplesAccepted atomic.Uint64
	SamplesDropped  atomic.Uint64 // overwritten before the loop consumed them
	SamplesRejected atomic.Uint64 // malformed or no session accepting

	// HTTP surface
	RateLimited   atomic.Uint64
	StreamClients atomic.Int64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) gauge(name, help string, load func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		load,
	))
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Frame loop
	m.counter("blink_frames_read_total", "Frames handed to the blink detector", &m.FramesRead)
	m.counter("blink_frames_no_face_total", "Frames with no face found", &m.FramesNoFace)
	m.counter("blink_frames_idle_total", "Frame ticks with no new frame available", &m.FramesIdle)
	m.counter("blink_frame_errors_total", "Transient per-frame source failures", &m.FrameErrors)

	// Detector outcomes
	m.counter("blink_blinks_counted_total", "Blinks counted", &m.BlinksCounted)
	m.counter("blink_onsets_rejected_sync_total", "Closure onsets rejected by the synchrony gate", &m.OnsetsRejectedSync)
	m.counter("blink_onsets_rejected_motion_total", "Closure onsets rejected by the motion gate", &m.OnsetsRejectedMotion)
	m.counter("blink_closures_too_short_total", "Closures discarded as shorter than the blink floor", &m.BlinksTooShort)
	m.counter("blink_closures_too_long_total", "Closures discarded as longer than the blink ceiling", &m.BlinksTooLong)

	// Sessions
	m.counter("blink_sessions_started_total", "Measurement sessions started", &m.SessionsStarted)
	m.counter("blink_sessions_completed_total", "Sessions that reached their duration limit", &m.SessionsCompleted)
	m.counter("blink_sessions_lost_total", "Sessions ended by loss of the frame source", &m.SessionsLost)
	m.gauge("blink_session_active", "Session running (0=idle, 1=running)",
		func() float64 { return float64(m.SessionActive.Load()) })

	// Current session
	m.gauge("blink_rate_per_minute", "Blinks per minute in the current session",
		func() float64 { return float64(m.BlinksPerMinute.Load()) })
	m.gauge("blink_session_elapsed_seconds", "Elapsed seconds in the current session",
		func() float64 { return float64(m.ElapsedSeconds.Load()) })

	// Latency
	m.gauge("blink_step_latency_us", "Last detector step latency in microseconds",
		func() float64 { return float64(m.StepLatencyUs.Load()) })

	// Ingest
	m.counter("blink_samples_accepted_total", "Samples accepted from external trackers", &m.SamplesAccepted)
	m.counter("blink_samples_dropped_total", "Samples overwritten before being consumed", &m.SamplesDropped)
	m.counter("blink_samples_rejected_total", "Samples rejected as malformed or unexpected", &m.SamplesRejected)

	// HTTP
	m.counter("blink_http_rate_limited_total", "Requests rejected by the rate limiter", &m.RateLimited)
	m.gauge("blink_stream_clients", "Connected SSE stream clients",
		func() float64 { return float64(m.StreamClients.Load()) })
}

// ObserveStep records one detector step.
func (m *Metrics) ObserveStep(res blink.Result, latency time.Duration) {
	m.StepLatencyUs.Store(uint64(latency.Microseconds()))

	if res.Outcome == blink.OutcomeNoFace {
		m.FramesNoFace.Add(1)
	}

	switch res.Outcome {
	case blink.OutcomeBlink:
		m.BlinksCounted.Add(1)
	case blink.OutcomeTooShort:
		m.BlinksTooShort.Add(1)
	case blink.OutcomeTooLong:
		m.BlinksTooLong.Add(1)
	case blink.OutcomeOnsetRejected:
		if !res.Gates.BothEyesClosing {
			m.OnsetsRejectedSync.Add(1)
		}
		if !res.Gates.HeadStable {
			m.OnsetsRejectedMotion.Add(1)
		}
	}
	m.UpdateStats(res.Stats)
}

// UpdateStats publishes the current session statistics.
func (m *Metrics) UpdateStats(s blink.Stats) {
	m.BlinksPerMinute.Store(uint64(s.BlinksPerMinute))
	m.ElapsedSeconds.Store(uint64(s.ElapsedSeconds))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather snapshots every registered value keyed by metric name.
func (m *Metrics) Gather() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[f.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}

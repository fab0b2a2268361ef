package blink

import (
	"math"

	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

// Event is one counted blink.
type Event struct {
	Count      int     `json:"count"` // blinkCount after this blink
	StartMs    float64 `json:"start_ms"`
	EndMs      float64 `json:"end_ms"`
	DurationMs float64 `json:"duration_ms"`
}

// Result is the output of one Step.
type Result struct {
	Blinked bool  // a blink was counted on this step
	Event   Event // valid only when Blinked
	Stats   Stats
	Outcome Outcome
	Gates   Gates // zero value on no-face frames

	AvgLeft  float64
	AvgRight float64
}

// Detector turns per-frame eyelid-closure samples into counted blinks.
//
// A Detector is not safe for concurrent use. It is driven by a single frame
// loop, one Step per frame.
type Detector struct {
	cfg Config

	left  *SmoothingBuffer
	right *SmoothingBuffer

	state       State
	wasBlinking bool
	lastNose    *types.NosePosition

	blinkCount     int
	sessionStartMs float64
}

// NewDetector creates a detector. Reset must be called before the first Step.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:   cfg,
		left:  NewSmoothingBuffer(cfg.SmoothingWindow),
		right: NewSmoothingBuffer(cfg.SmoothingWindow),
	}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Reset starts a new session at nowMs on the session clock.
func (d *Detector) Reset(nowMs float64) {
	d.left.Reset()
	d.right.Reset()
	d.state = State{Phase: Open}
	d.wasBlinking = false
	d.lastNose = nil
	d.blinkCount = 0
	d.sessionStartMs = nowMs
}

// State returns the current state machine position.
func (d *Detector) State() State {
	return d.state
}

// BlinkCount returns the number of blinks counted since Reset.
func (d *Detector) BlinkCount() int {
	return d.blinkCount
}

// Snapshot recomputes statistics without consuming a frame.
func (d *Detector) Snapshot(sessionClockMs float64) Stats {
	return ComputeStats(d.blinkCount, d.sessionStartMs, sessionClockMs)
}

// Step consumes one frame. sample is nil when no face was found; such a frame
// leaves the buffers and the state machine untouched, including an
// in-progress Closing. nowMs is the frame timestamp used for blink durations,
// sessionClockMs the clock used for elapsed time.
func (d *Detector) Step(sample *types.FaceSample, nowMs, sessionClockMs float64) Result {
	if sample == nil {
		return Result{
			Stats:   d.Snapshot(sessionClockMs),
			Outcome: OutcomeNoFace,
		}
	}

	d.left.Push(sample.Eyes.Left)
	d.right.Push(sample.Eyes.Right)
	avgLeft := d.left.Average()
	avgRight := d.right.Average()

	gates := Gates{
		BothEyesClosing: math.Abs(avgLeft-avgRight) < SyncTolerance,
		HeadStable:      d.headStable(sample.Nose),
	}

	isBlinking := (avgLeft+avgRight)/2 > d.cfg.BlinkThreshold

	res := Result{
		Outcome:  OutcomeNone,
		Gates:    gates,
		AvgLeft:  avgLeft,
		AvgRight: avgRight,
	}

	switch d.state.Phase {
	case Open:
		if isBlinking && !d.wasBlinking {
			if gates.Passed() {
				d.state = State{Phase: Closing, StartMs: nowMs}
				res.Outcome = OutcomeOnset
			} else {
				res.Outcome = OutcomeOnsetRejected
			}
		}
	case Closing:
		if !isBlinking {
			duration := nowMs - d.state.StartMs
			switch {
			case duration < MinBlinkDurationMs:
				res.Outcome = OutcomeTooShort
			case duration > MaxBlinkDurationMs:
				res.Outcome = OutcomeTooLong
			default:
				d.blinkCount++
				res.Blinked = true
				res.Outcome = OutcomeBlink
				res.Event = Event{
					Count:      d.blinkCount,
					StartMs:    d.state.StartMs,
					EndMs:      nowMs,
					DurationMs: duration,
				}
			}
			d.state = State{Phase: Open}
		}
	}

	d.wasBlinking = isBlinking
	res.Stats = d.Snapshot(sessionClockMs)
	return res
}

// headStable applies the motion gate and records the current nose position.
// The gate compares consecutive frames, so the stored position is replaced
// even when the head moved too far.
func (d *Detector) headStable(nose *types.NosePosition) bool {
	if nose == nil {
		return true
	}
	stable := true
	if d.lastNose != nil {
		dx := nose.X - d.lastNose.X
		dy := nose.Y - d.lastNose.Y
		stable = math.Sqrt(dx*dx+dy*dy) < MotionTolerance
	}
	current := *nose
	d.lastNose = &current
	return stable
}

package source

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

// SyntheticConfig scripts a synthetic subject.
type SyntheticConfig struct {
	Seed           uint64
	BlinkInterval  time.Duration // one blink per interval
	BlinkDuration  time.Duration
	OpenScore      float64
	ClosedScore    float64
	NoiseAmplitude float64
	NoseJitter     float64 // per-frame nose travel, normalized units
	DropoutRate    float64 // probability of a no-face frame
}

// DefaultSyntheticConfig returns a calm subject blinking every 3 seconds.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Seed:           1,
		BlinkInterval:  3 * time.Second,
		BlinkDuration:  150 * time.Millisecond,
		OpenScore:      0.08,
		ClosedScore:    0.85,
		NoiseAmplitude: 0.03,
		NoseJitter:     0.002,
	}
}

// Synthetic generates scores for a scripted subject against a clock. Each
// interval ends with a blink, so the first one lands at
// BlinkInterval - BlinkDuration.
type Synthetic struct {
	cfg SyntheticConfig
	now func() time.Time

	mu    sync.Mutex
	rng   *rand.Rand
	open  bool
	start time.Time
	seq   uint64
	nose  types.NosePosition
}

// NewSynthetic creates a synthetic source on the wall clock.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	return NewSyntheticWithClock(cfg, time.Now)
}

// NewSyntheticWithClock creates a synthetic source on the given clock.
func NewSyntheticWithClock(cfg SyntheticConfig, now func() time.Time) *Synthetic {
	if cfg.BlinkInterval <= 0 {
		cfg.BlinkInterval = DefaultSyntheticConfig().BlinkInterval
	}
	return &Synthetic{cfg: cfg, now: now}
}

// Open restarts the script.
func (s *Synthetic) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rng = rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))
	s.open = true
	s.start = s.now()
	s.seq = 0
	s.nose = types.NosePosition{X: 0.5, Y: 0.45}
	return nil
}

// Next renders the frame for the current clock reading.
func (s *Synthetic) Next(ctx context.Context) (*types.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, ErrSourceLost
	}

	elapsed := s.now().Sub(s.start)
	s.seq++
	frame := &types.Frame{
		Sequence:    s.seq,
		TimestampMs: float64(elapsed.Microseconds()) / 1000,
	}

	if s.cfg.DropoutRate > 0 && s.rng.Float64() < s.cfg.DropoutRate {
		return frame, nil
	}

	score := s.cfg.OpenScore
	if s.closedAt(elapsed) {
		score = s.cfg.ClosedScore
	}

	s.nose.X += s.jitter(s.cfg.NoseJitter)
	s.nose.Y += s.jitter(s.cfg.NoseJitter)
	nose := s.nose

	frame.Face = &types.FaceSample{
		Eyes: types.EyeSample{
			Left:  clamp01(score + s.jitter(s.cfg.NoiseAmplitude)),
			Right: clamp01(score + s.jitter(s.cfg.NoiseAmplitude)),
		},
		Nose: &nose,
	}
	return frame, nil
}

func (s *Synthetic) closedAt(elapsed time.Duration) bool {
	phase := elapsed % s.cfg.BlinkInterval
	return phase >= s.cfg.BlinkInterval-s.cfg.BlinkDuration
}

func (s *Synthetic) jitter(amplitude float64) float64 {
	if amplitude == 0 {
		return 0
	}
	return (s.rng.Float64()*2 - 1) * amplitude
}

// Close stops the script.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

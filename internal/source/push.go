package source

import (
	"context"
	"sync"
	"time"

	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

// Push is a source fed by external trackers. It holds a single pending frame:
// a newer frame replaces an unconsumed older one, so the frame loop always
// sees the freshest sample.
type Push struct {
	mu      sync.Mutex
	open    bool
	pending *types.Frame
	seq     uint64
	start   time.Time
	now     func() time.Time
}

// NewPush creates a closed push source. Publish is rejected until Open.
func NewPush() *Push {
	return &Push{now: time.Now}
}

// Open starts accepting samples.
func (p *Push) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.open = true
	p.pending = nil
	p.seq = 0
	p.start = p.now()
	return nil
}

// Publish offers a frame. It reports whether an unconsumed frame was replaced.
// Frames without a timestamp are stamped with the time since Open.
func (p *Push) Publish(frame types.Frame) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return false, ErrNotAccepting
	}

	p.seq++
	frame.Sequence = p.seq
	if frame.TimestampMs == 0 {
		frame.TimestampMs = float64(p.now().Sub(p.start).Microseconds()) / 1000
	}

	replaced := p.pending != nil
	p.pending = &frame
	return replaced, nil
}

// Next hands over the pending frame, or nil when nothing new arrived.
func (p *Push) Next(ctx context.Context) (*types.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil, ErrSourceLost
	}
	frame := p.pending
	p.pending = nil
	return frame, nil
}

// Close stops accepting samples and discards any pending frame.
func (p *Push) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.open = false
	p.pending = nil
	return nil
}

// Accepting reports whether Publish currently succeeds.
func (p *Push) Accepting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Package source provides the frame sample sources that feed the blink
// detector. A source never carries imagery, only per-frame scores.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

var (
	// ErrSourceLost means the source is gone for good and the session
	// consuming it must stop.
	ErrSourceLost = errors.New("frame source lost")

	// ErrSourceFailed is an ErrSourceLost caused by a read failure rather
	// than the source running out.
	ErrSourceFailed = fmt.Errorf("frame source failed: %w", ErrSourceLost)

	// ErrNotAccepting is returned by Push.Publish outside a session.
	ErrNotAccepting = errors.New("source is not accepting samples")
)

// Source supplies one frame per tick.
//
// Next returns (nil, nil) when no new frame is available, a plain error for a
// transient per-frame failure and an error wrapping ErrSourceLost when the
// source can no longer produce frames. A source that breaks, as opposed to
// ending, wraps ErrSourceFailed.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (*types.Frame, error)
	Close() error
}

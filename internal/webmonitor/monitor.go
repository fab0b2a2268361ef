package webmonitor

import (
	"sync"

	"github.com/yuyu-tech02/Blink-counter/internal/session"
)

// historySize is the number of recent blinks kept for /api/status.
const historySize = 8

// Monitor keeps the recent blink history of the current session, newest
// first.
type Monitor struct {
	mu        sync.Mutex
	sessionID string
	history   []session.Event
}

// NewMonitor creates an empty Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// RecordBlink stores a blink. A blink from a new session clears the history
// of the previous one.
func (m *Monitor) RecordBlink(e session.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.SessionID != m.sessionID {
		m.sessionID = e.SessionID
		m.history = m.history[:0]
	}
	m.history = append([]session.Event{e}, m.history...)
	if len(m.history) > historySize {
		m.history = m.history[:historySize]
	}
}

// Recent returns a copy of the history for the given session.
func (m *Monitor) Recent(sessionID string) []session.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != m.sessionID {
		return []session.Event{}
	}
	out := make([]session.Event, len(m.history))
	copy(out, m.history)
	return out
}

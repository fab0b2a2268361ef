package webmonitor

import (
	"testing"

	"github.com/yuyu-tech02/Blink-counter/internal/blink"
	"github.com/yuyu-tech02/Blink-counter/internal/session"
)

func TestMonitorKeepsRecentBlinks(t *testing.T) {
	m := NewMonitor()
	for i := 1; i <= 12; i++ {
		m.RecordBlink(session.Event{SessionID: "a", Event: blink.Event{Count: i}})
	}

	recent := m.Recent("a")
	if len(recent) != historySize {
		t.Fatalf("len(recent) = %d, want %d", len(recent), historySize)
	}
	if recent[0].Count != 12 || recent[historySize-1].Count != 5 {
		t.Errorf("history = %d..%d, want 12..5", recent[0].Count, recent[historySize-1].Count)
	}

	// Callers get a copy.
	recent[0].Count = 99
	if m.Recent("a")[0].Count != 12 {
		t.Error("Recent exposed internal state")
	}
}

func TestMonitorResetsOnNewSession(t *testing.T) {
	m := NewMonitor()
	m.RecordBlink(session.Event{SessionID: "a", Event: blink.Event{Count: 1}})
	m.RecordBlink(session.Event{SessionID: "b", Event: blink.Event{Count: 1}})

	if got := len(m.Recent("b")); got != 1 {
		t.Errorf("len(Recent(b)) = %d, want 1", got)
	}
	if got := len(m.Recent("a")); got != 0 {
		t.Errorf("len(Recent(a)) = %d, want 0", got)
	}
}

package blink

import "math"

// Stats is the per-step statistics snapshot.
type Stats struct {
	BlinkCount      int `json:"blink_count"`
	BlinksPerMinute int `json:"blinks_per_minute"`
	ElapsedSeconds  int `json:"elapsed_seconds"`
}

// ComputeStats derives elapsed whole seconds and the rounded blink rate.
// The rate is 0 until a full second has elapsed.
func ComputeStats(blinkCount int, sessionStartMs, sessionClockMs float64) Stats {
	elapsed := int(math.Floor((sessionClockMs - sessionStartMs) / 1000))
	if elapsed < 0 {
		elapsed = 0
	}

	bpm := 0
	if elapsed > 0 {
		bpm = int(math.Round(float64(blinkCount) / float64(elapsed) * 60))
	}

	return Stats{
		BlinkCount:      blinkCount,
		BlinksPerMinute: bpm,
		ElapsedSeconds:  elapsed,
	}
}

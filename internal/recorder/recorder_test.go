package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yuyu-tech02/Blink-counter/internal/source"
	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

func TestRecordingReplaysAsTrace(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	r.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	name, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if name != "trace_20250301_093000.jsonl" {
		t.Errorf("filename = %q", name)
	}
	if _, err := r.Start(); err == nil {
		t.Error("second Start succeeded while recording")
	}

	frames := []types.Frame{
		{TimestampMs: 0, Face: &types.FaceSample{Eyes: types.EyeSample{Left: 0.1, Right: 0.12}}},
		{TimestampMs: 33},
		{TimestampMs: 66, Face: &types.FaceSample{
			Eyes: types.EyeSample{Left: 0.8, Right: 0.75},
			Nose: &types.NosePosition{X: 0.5, Y: 0.4},
		}},
	}
	for _, f := range frames {
		if !r.SendFrame(f) {
			t.Fatalf("SendFrame(%v) dropped", f.TimestampMs)
		}
	}

	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := r.GetStatus()
	if st.Recording || st.FrameCount != 3 || st.BytesWritten == 0 {
		t.Errorf("status = %+v, want 3 frames written", st)
	}
	if r.SendFrame(frames[0]) {
		t.Error("SendFrame accepted a frame after Stop")
	}

	replay := source.NewReplay(filepath.Join(dir, name))
	if err := replay.Open(context.Background()); err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer replay.Close()

	for i, want := range frames {
		got, err := replay.Next(context.Background())
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got.TimestampMs != want.TimestampMs || got.HasFace() != want.HasFace() {
			t.Errorf("frame %d = %+v, want %+v", i, got, want)
			continue
		}
		if !want.HasFace() {
			continue
		}
		if got.Face.Eyes != want.Face.Eyes {
			t.Errorf("frame %d eyes = %+v, want %+v", i, got.Face.Eyes, want.Face.Eyes)
		}
		if (got.Face.Nose == nil) != (want.Face.Nose == nil) ||
			(want.Face.Nose != nil && *got.Face.Nose != *want.Face.Nose) {
			t.Errorf("frame %d nose = %v, want %v", i, got.Face.Nose, want.Face.Nose)
		}
	}
	if _, err := replay.Next(context.Background()); !errors.Is(err, source.ErrSourceLost) {
		t.Errorf("after last frame err = %v, want ErrSourceLost", err)
	}
}

func TestStopWithoutRecording(t *testing.T) {
	r := NewRecorder(t.TempDir())
	if _, err := r.Stop(); err == nil {
		t.Error("Stop succeeded without a recording")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/yuyu-tech02/Blink-counter/internal/blink"
	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/metrics"
	"github.com/yuyu-tech02/Blink-counter/internal/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Summary is the result of replaying one trace.
type Summary struct {
	Trace    string             `json:"trace"`
	Frames   int                `json:"frames"`
	Stats    blink.Stats        `json:"stats"`
	Blinks   []blink.Event      `json:"blinks"`
	Outcomes map[string]float64 `json:"outcomes"`
}

func main() {
	cfg := blink.DefaultConfig()

	var logLevel string
	var logColor bool
	var asJSON bool

	flag.IntVar(&cfg.SmoothingWindow, "window", cfg.SmoothingWindow, "Smoothing window in frames")
	flag.Float64Var(&cfg.BlinkThreshold, "threshold", cfg.BlinkThreshold, "Blink threshold on the smoothed score")
	flag.BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] trace.jsonl\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	summary, err := replay(context.Background(), flag.Arg(0), cfg, metrics.New())
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	if err := printSummary(os.Stdout, summary, asJSON); err != nil {
		log.Fatalf("Write summary: %v", err)
	}
}

// replay runs every frame of a trace through a detector as fast as it can be
// read. The session clock follows the trace timestamps.
func replay(ctx context.Context, path string, cfg blink.Config, m *metrics.Metrics) (Summary, error) {
	det, err := blink.NewDetector(cfg)
	if err != nil {
		return Summary{}, err
	}

	src := source.NewReplay(path)
	if err := src.Open(ctx); err != nil {
		return Summary{}, err
	}
	defer src.Close()

	summary := Summary{Trace: path, Blinks: []blink.Event{}}
	started := false
	lastMs := 0.0

	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, source.ErrSourceFailed) {
			return Summary{}, err
		}
		if errors.Is(err, source.ErrSourceLost) {
			break
		}
		if err != nil {
			m.FrameErrors.Add(1)
			logger.Warn("Replay", "%v", err)
			continue
		}

		if !started {
			det.Reset(frame.TimestampMs)
			started = true
		}
		lastMs = frame.TimestampMs
		summary.Frames++
		m.FramesRead.Add(1)

		start := time.Now()
		res := det.Step(frame.Face, frame.TimestampMs, frame.TimestampMs)
		m.ObserveStep(res, time.Since(start))

		if res.Blinked {
			logger.Debug("Replay", "Blink #%d at %.0fms (%.0fms)", res.Event.Count, res.Event.StartMs, res.Event.DurationMs)
			summary.Blinks = append(summary.Blinks, res.Event)
		}
	}

	summary.Stats = det.Snapshot(lastMs)
	m.UpdateStats(summary.Stats)

	gathered, err := m.Gather()
	if err != nil {
		return Summary{}, err
	}
	summary.Outcomes = map[string]float64{
		"blinks":                 gathered["blink_blinks_counted_total"],
		"onsets_rejected_sync":   gathered["blink_onsets_rejected_sync_total"],
		"onsets_rejected_motion": gathered["blink_onsets_rejected_motion_total"],
		"too_short":              gathered["blink_closures_too_short_total"],
		"too_long":               gathered["blink_closures_too_long_total"],
		"no_face_frames":         gathered["blink_frames_no_face_total"],
		"frame_errors":           gathered["blink_frame_errors_total"],
	}
	return summary, nil
}

func printSummary(w io.Writer, s Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	_, err := fmt.Fprintf(w, "%s: %d frames, %d blinks in %ds (%d/min)\n",
		s.Trace, s.Frames, s.Stats.BlinkCount, s.Stats.ElapsedSeconds, s.Stats.BlinksPerMinute)
	if err != nil {
		return err
	}
	for _, e := range s.Blinks {
		if _, err := fmt.Fprintf(w, "  #%-3d %9.0fms  %4.0fms\n", e.Count, e.StartMs, e.DurationMs); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "  rejected onsets: %.0f async, %.0f motion; discarded closures: %.0f short, %.0f long\n",
		s.Outcomes["onsets_rejected_sync"], s.Outcomes["onsets_rejected_motion"],
		s.Outcomes["too_short"], s.Outcomes["too_long"])
	return err
}

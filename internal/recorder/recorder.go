// Package recorder captures the frames a session consumes as a JSON-lines
// score trace, the format the replay source reads back.
package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/source"
	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

// Recorder records frames to a trace file
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	writer       *bufio.Writer
	filename     string
	basePath     string
	recording    bool
	frameCount   uint64
	bytesWritten uint64
	dropped      uint64
	startTime    time.Time
	frameChan    chan types.Frame
	wg           sync.WaitGroup
	now          func() time.Time
}

// NewRecorder creates a new recorder writing into basePath
func NewRecorder(basePath string) *Recorder {
	return &Recorder{
		basePath:  basePath,
		frameChan: make(chan types.Frame, 120), // ~4 seconds at 30fps
		now:       time.Now,
	}
}

// Start starts recording to a new file and returns its name
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", fmt.Errorf("already recording")
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}

	// Generate filename with timestamp
	now := r.now()
	filename := fmt.Sprintf("trace_%s.jsonl", now.Format("20060102_150405"))
	file, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	// Frames queued after the previous recording stopped are stale.
	for len(r.frameChan) > 0 {
		<-r.frameChan
	}

	r.file = file
	r.writer = bufio.NewWriter(file)
	r.filename = filename
	r.recording = true
	r.frameCount = 0
	r.bytesWritten = 0
	r.dropped = 0
	r.startTime = now

	r.wg.Add(1)
	go r.writeFrames()

	logger.Info("Recorder", "Recording frames to %s", filename)
	return filename, nil
}

// Stop stops recording and returns the finished file name
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", fmt.Errorf("not recording")
	}
	r.recording = false
	r.mu.Unlock()

	// Wait for write goroutine to finish
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if err := r.writer.Flush(); err != nil {
			return r.filename, fmt.Errorf("failed to flush file: %w", err)
		}
		if err := r.file.Sync(); err != nil {
			return r.filename, fmt.Errorf("failed to sync file: %w", err)
		}
		if err := r.file.Close(); err != nil {
			return r.filename, fmt.Errorf("failed to close file: %w", err)
		}
		r.file = nil
		r.writer = nil
	}

	logger.Info("Recorder", "Recording %s finished (%d frames, %d dropped)", r.filename, r.frameCount, r.dropped)
	return r.filename, nil
}

// SendFrame sends a frame to the recorder (non-blocking)
func (r *Recorder) SendFrame(frame types.Frame) bool {
	r.mu.RLock()
	recording := r.recording
	r.mu.RUnlock()

	if !recording {
		return false
	}

	select {
	case r.frameChan <- frame:
		return true
	default:
		// Channel full, drop frame
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return false
	}
}

// writeFrames writes frames to file
func (r *Recorder) writeFrames() {
	defer r.wg.Done()

	for {
		r.mu.RLock()
		recording := r.recording
		r.mu.RUnlock()

		if !recording {
			// Drain remaining frames
			for len(r.frameChan) > 0 {
				r.writeFrame(<-r.frameChan)
			}
			return
		}

		select {
		case frame := <-r.frameChan:
			r.writeFrame(frame)
		case <-time.After(100 * time.Millisecond):
			// Check recording state periodically
		}
	}
}

// writeFrame writes a single frame as one trace line
func (r *Recorder) writeFrame(frame types.Frame) {
	line, err := source.EncodeRecord(frame)
	if err != nil {
		logger.Warn("Recorder", "Encode frame %d: %v", frame.Sequence, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		return
	}
	n, err := r.writer.Write(append(line, '\n'))
	if err != nil {
		logger.Warn("Recorder", "Write frame %d: %v", frame.Sequence, err)
		return
	}

	r.bytesWritten += uint64(n)
	r.frameCount++
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// GetStatus returns the current recording status
func (r *Recorder) GetStatus() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = r.now().Sub(r.startTime)
	}

	return RecordingStatus{
		Recording:    r.recording,
		Filename:     r.filename,
		FrameCount:   r.frameCount,
		BytesWritten: r.bytesWritten,
		Dropped:      r.dropped,
		DurationMs:   duration.Milliseconds(),
		StartTime:    r.startTime,
	}
}

// Close stops an active recording
func (r *Recorder) Close() error {
	if r.IsRecording() {
		_, err := r.Stop()
		return err
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename"`
	FrameCount   uint64    `json:"frame_count"`
	BytesWritten uint64    `json:"bytes_written"`
	Dropped      uint64    `json:"dropped"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}

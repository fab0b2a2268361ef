package webmonitor

import (
	"net/http"
	"time"

	"github.com/yuyu-tech02/Blink-counter/internal/recorder"
)

// TraceRecorder captures consumed frames as a replayable trace.
type TraceRecorder interface {
	Start() (string, error)
	Stop() (string, error)
	GetStatus() recorder.RecordingStatus
}

// ServerOption configures optional Server features.
type ServerOption func(*Server)

// WithRecorder enables the /api/recording endpoints.
func WithRecorder(rec TraceRecorder) ServerOption {
	return func(s *Server) { s.recorder = rec }
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recording is not enabled"}, http.StatusServiceUnavailable)
		return
	}

	filename, err := s.recorder.Start()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recording is not enabled"}, http.StatusServiceUnavailable)
		return
	}

	filename, err := s.recorder.Stop()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      s.recorder.GetStatus(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, recorder.RecordingStatus{})
		return
	}
	writeJSON(w, s.recorder.GetStatus())
}

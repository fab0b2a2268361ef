package webmonitor

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/source"
	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

// Publisher accepts frames from external trackers.
type Publisher interface {
	Publish(frame types.Frame) (bool, error)
	Accepting() bool
}

// ingestError is sent back over the WebSocket for a rejected sample.
type ingestError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// ingest decodes one sample and hands it to the publisher. It returns the
// HTTP status that describes the outcome.
func (s *Server) ingest(data []byte) (SampleResponse, int, error) {
	frame, err := source.DecodeRecord(data)
	if err != nil {
		s.metrics.SamplesRejected.Add(1)
		return SampleResponse{}, http.StatusBadRequest, err
	}

	replaced, err := s.publisher.Publish(frame)
	if err != nil {
		s.metrics.SamplesRejected.Add(1)
		if errors.Is(err, source.ErrNotAccepting) {
			return SampleResponse{}, http.StatusConflict, err
		}
		return SampleResponse{}, http.StatusInternalServerError, err
	}

	s.metrics.SamplesAccepted.Add(1)
	if replaced {
		s.metrics.SamplesDropped.Add(1)
	}
	return SampleResponse{Accepted: true, Replaced: replaced}, http.StatusOK, nil
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.publisher == nil {
		writeJSONWithStatus(w, map[string]any{"error": "sample ingest is not enabled"}, http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxSampleBytes))
	if err != nil {
		s.metrics.SamplesRejected.Add(1)
		writeJSONWithStatus(w, map[string]any{"error": "Invalid sample"}, http.StatusRequestEntityTooLarge)
		return
	}

	resp, status, err := s.ingest(body)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleSampleSocket(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeJSONWithStatus(w, map[string]any{"error": "sample ingest is not enabled"}, http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Ingest", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxSampleBytes)

	logger.Info("Ingest", "Tracker connected from %s", r.RemoteAddr)
	received := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Ingest", "Tracker connection error: %v", err)
			}
			logger.Info("Ingest", "Tracker %s disconnected after %d samples", r.RemoteAddr, received)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		received++

		// Accepted samples are not acknowledged; trackers send at frame rate.
		if _, status, err := s.ingest(data); err != nil {
			if werr := conn.WriteJSON(ingestError{Status: status, Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

package webmonitor

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yuyu-tech02/Blink-counter/internal/logger"
)

const (
	formatJSON     = "application/json"
	formatProtobuf = "application/protobuf"
)

// wantsProtobuf checks if the client prefers Protobuf.
func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// streamEvents streams pre-serialized events to an SSE client until the
// channel closes or the client goes away. initial, if set, is sent first.
func streamEvents(w http.ResponseWriter, r *http.Request, module string, eventCh <-chan *SerializedEvent, initial *SerializedEvent, keepalive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	useProtobuf := wantsProtobuf(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", formatProtobuf)
	} else {
		w.Header().Set("X-Content-Format", formatJSON)
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event *SerializedEvent) bool {
		data := event.JSONData
		if useProtobuf {
			data = event.ProtobufData
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Debug(module, "Client disconnected during event write: %v", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if initial != nil && !send(initial) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case event, ok := <-eventCh:
			if !ok {
				// Channel closed, client should disconnect
				return
			}
			if !send(event) {
				return
			}

		case <-time.After(keepalive):
			// Send keepalive comment to prevent timeout
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug(module, "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

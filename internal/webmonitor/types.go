package webmonitor

import (
	"github.com/yuyu-tech02/Blink-counter/internal/session"
)

// StatusResponse is the payload for /api/status and /api/status/stream.
type StatusResponse struct {
	Session      session.Status  `json:"session"`
	RecentBlinks []session.Event `json:"recent_blinks"`
	Ingest       *IngestStats    `json:"ingest,omitempty"`
	Timestamp    float64         `json:"timestamp"`
}

// IngestStats describes the push sample endpoints. Absent when the daemon
// reads from a replay or synthetic source.
type IngestStats struct {
	Accepting bool   `json:"accepting"`
	Accepted  uint64 `json:"accepted"`
	Dropped   uint64 `json:"dropped"`
	Rejected  uint64 `json:"rejected"`
}

// StartRequest is the optional body of POST /api/session/start.
type StartRequest struct {
	DurationSeconds *int `json:"duration_seconds"`
}

// SampleResponse acknowledges an ingested sample.
type SampleResponse struct {
	Accepted bool `json:"accepted"`
	Replaced bool `json:"replaced"` // an unconsumed sample was overwritten
}

package webmonitor

import (
	"encoding/base64"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/metrics"
	"github.com/yuyu-tech02/Blink-counter/internal/session"
)

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// Broadcaster manages fanout of serialized events to multiple SSE clients.
// Slow clients miss events instead of blocking the publisher.
type Broadcaster struct {
	name    string
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	closed  bool
}

// NewBroadcaster creates a broadcaster. name tags its log lines.
func NewBroadcaster(name string, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		name:    name,
		metrics: m,
		clients: make(map[int]chan *SerializedEvent),
	}
}

// Subscribe adds a new client and returns a channel for receiving events.
// The channel is closed immediately if the broadcaster is closed.
func (b *Broadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *SerializedEvent, 4)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.clients[id] = ch
	if b.metrics != nil {
		b.metrics.StreamClients.Add(1)
	}

	logger.Debug(b.name, "Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		if b.metrics != nil {
			b.metrics.StreamClients.Add(-1)
		}
		logger.Debug(b.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// ClientCount returns the number of subscribed clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast sends an event to every client without blocking.
func (b *Broadcaster) Broadcast(event *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
		}
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
		if b.metrics != nil {
			b.metrics.StreamClients.Add(-1)
		}
	}
}

// BlinkBroadcaster fans counted blinks out to /api/blinks/stream clients.
type BlinkBroadcaster struct {
	*Broadcaster
}

// NewBlinkBroadcaster creates a blink event broadcaster.
func NewBlinkBroadcaster(m *metrics.Metrics) *BlinkBroadcaster {
	return &BlinkBroadcaster{Broadcaster: NewBroadcaster("BlinkBroadcaster", m)}
}

// Publish serializes and broadcasts a blink. Nothing is serialized while no
// client is connected.
func (bb *BlinkBroadcaster) Publish(e session.Event) {
	if bb.ClientCount() == 0 {
		return
	}
	event, err := serializeEvent(e, blinkFields(e))
	if err != nil {
		logger.Error("BlinkBroadcaster", "Serialize blink #%d: %v", e.Count, err)
		return
	}
	bb.Broadcast(event)
}

// StatusBroadcaster periodically fans status snapshots out to
// /api/status/stream clients.
type StatusBroadcaster struct {
	*Broadcaster
	snapshot func() StatusResponse
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStatusBroadcaster creates a broadcaster for status events.
func NewStatusBroadcaster(snapshot func() StatusResponse, interval time.Duration, m *metrics.Metrics) *StatusBroadcaster {
	return &StatusBroadcaster{
		Broadcaster: NewBroadcaster("StatusBroadcaster", m),
		snapshot:    snapshot,
		interval:    interval,
		stop:        make(chan struct{}),
	}
}

// Start begins the status event loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the loop and disconnects clients.
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() {
		close(sb.stop)
		sb.Close()
	})
}

// Current serializes the current status, for a client's first event.
func (sb *StatusBroadcaster) Current() (*SerializedEvent, error) {
	status := sb.snapshot()
	return serializeEvent(status, statusFields(status))
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)", sb.interval)

	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			if sb.ClientCount() == 0 {
				continue
			}
			event, err := sb.Current()
			if err != nil {
				logger.Error("StatusBroadcaster", "Serialize status: %v", err)
				continue
			}
			sb.Broadcast(event)
		}
	}
}

// serializeEvent renders v as JSON and fields as a base64 protobuf Struct.
func serializeEvent(v any, fields map[string]any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	pbStruct, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	pbData, err := proto.Marshal(pbStruct)
	if err != nil {
		return nil, err
	}

	// Base64 encode for SSE transport
	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// blinkFields mirrors the JSON form of a session.Event.
func blinkFields(e session.Event) map[string]any {
	return map[string]any{
		"session_id":  e.SessionID,
		"at":          e.At.UTC().Format(time.RFC3339Nano),
		"count":       e.Count,
		"start_ms":    e.StartMs,
		"end_ms":      e.EndMs,
		"duration_ms": e.DurationMs,
	}
}

// statusFields mirrors the JSON form of a StatusResponse.
func statusFields(s StatusResponse) map[string]any {
	recent := make([]any, len(s.RecentBlinks))
	for i, e := range s.RecentBlinks {
		recent[i] = blinkFields(e)
	}

	fields := map[string]any{
		"session": map[string]any{
			"id":      s.Session.ID,
			"running": s.Session.Running,
			"stats": map[string]any{
				"blink_count":       s.Session.Stats.BlinkCount,
				"blinks_per_minute": s.Session.Stats.BlinksPerMinute,
				"elapsed_seconds":   s.Session.Stats.ElapsedSeconds,
			},
			"duration_seconds":  s.Session.DurationSeconds,
			"remaining_seconds": s.Session.RemainingSeconds,
			"started_at":        s.Session.StartedAt.UTC().Format(time.RFC3339Nano),
			"end_reason":        string(s.Session.EndReason),
			"error":             s.Session.Error,
		},
		"recent_blinks": recent,
		"timestamp":     s.Timestamp,
	}
	if s.Ingest != nil {
		fields["ingest"] = map[string]any{
			"accepting": s.Ingest.Accepting,
			"accepted":  s.Ingest.Accepted,
			"dropped":   s.Ingest.Dropped,
			"rejected":  s.Ingest.Rejected,
		}
	}
	return fields
}

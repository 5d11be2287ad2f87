package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	classification "lab-monitor-bridge/internal/classification/domain"
	"lab-monitor-bridge/internal/observability/metrics"
	telemetry "lab-monitor-bridge/internal/telemetry/domain"
)

const (
	EventSensorData  = "sensor_data"
	EventPredictions = "predictions"

	DefaultSessionBuffer = 16
)

// Event is one named message pushed to viewers.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Session is one live viewer connection.
type Session struct {
	ID     string
	events chan Event
}

// Events returns the channel the viewer transport drains. It is closed on Unsubscribe.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Hub fans events out to every subscribed session.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	buffer   int
	logger   *slog.Logger
}

// Option configures the hub.
type Option func(*Hub)

// WithSessionBuffer sets how many events a session may lag behind before events are dropped for it.
func WithSessionBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub constructs a hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions: make(map[*Session]struct{}),
		buffer:   DefaultSessionBuffer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new session.
func (h *Hub) Subscribe() *Session {
	s := &Session{ID: uuid.NewString(), events: make(chan Event, h.buffer)}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()
	metrics.SetViewers(count)
	h.logger.Info("viewer connected", "session", s.ID, "viewers", count)
	return s
}

// Unsubscribe removes a session and closes its channel. Unknown sessions are ignored.
func (h *Hub) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	count := len(h.sessions)
	close(s.events)
	h.mu.Unlock()
	metrics.SetViewers(count)
	h.logger.Info("viewer disconnected", "session", s.ID, "viewers", count)
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// BroadcastRaw sends a sensor_data event.
func (h *Hub) BroadcastRaw(reading telemetry.Reading) int {
	return h.Broadcast(EventSensorData, reading)
}

// BroadcastClassification sends a predictions event.
func (h *Hub) BroadcastClassification(result classification.Result) int {
	return h.Broadcast(EventPredictions, result)
}

// Broadcast marshals data once and offers it to every session without blocking.
// It returns how many sessions accepted the event.
func (h *Hub) Broadcast(name string, data any) int {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encode broadcast failed", "event", name, "error", err)
		return 0
	}
	event := Event{Name: name, Data: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for s := range h.sessions {
		select {
		case s.events <- event:
			delivered++
		default:
			h.logger.Debug("viewer lagging, event dropped", "session", s.ID, "event", name)
		}
	}
	metrics.IncBroadcast(name)
	return delivered
}

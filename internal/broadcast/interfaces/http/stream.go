package http

import (
	"net/http"

	"lab-monitor-bridge/internal/broadcast"
)

// StreamHandler serves hub events as server-sent events.
type StreamHandler struct {
	hub *broadcast.Hub
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(hub *broadcast.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// ServeHTTP handles GET /api/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.hub == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	session := h.hub.Subscribe()
	defer h.hub.Unsubscribe(session)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case event, ok := <-session.Events():
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: " + event.Name + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(event.Data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

package http

import (
	"context"
	"encoding/json"
	"net/http"

	classification "lab-monitor-bridge/internal/classification/domain"
)

// Transport reports broker link state.
type Transport interface {
	Connected() bool
	ClientID() string
}

// Classifier reports classifier health.
type Classifier interface {
	Health(ctx context.Context) string
}

// Sources gathers the components the status endpoints read from.
type Sources struct {
	Transport  Transport
	Classifier Classifier
	Viewers    func() int
	Labels     func() map[classification.Channel]string
	Endpoints  func(ctx context.Context) []string
}

// Handler serves /healthz and /api/status.
type Handler struct {
	src Sources
}

// NewHandler constructs the handler. Missing sources are reported as zero values.
func NewHandler(src Sources) *Handler {
	return &Handler{src: src}
}

type healthResponse struct {
	Status     string `json:"status"`
	MQTT       string `json:"mqtt"`
	Classifier string `json:"classifier,omitempty"`
}

type statusResponse struct {
	MQTTConnected bool              `json:"mqtt_connected"`
	ClientID      string            `json:"client_id,omitempty"`
	Viewers       int               `json:"viewers"`
	Endpoints     int               `json:"endpoints"`
	Labels        map[string]string `json:"labels"`
}

// Health reports liveness. It always answers 200; broker and classifier state are informational.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", MQTT: "disconnected"}
	if h.src.Transport != nil && h.src.Transport.Connected() {
		resp.MQTT = "connected"
	}
	if h.src.Classifier != nil {
		resp.Classifier = h.src.Classifier.Health(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status reports current per-channel labels and connection counts. Channels not yet
// observed report the neutral default label.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{Labels: map[string]string{}}
	if h.src.Transport != nil {
		resp.MQTTConnected = h.src.Transport.Connected()
		resp.ClientID = h.src.Transport.ClientID()
	}
	if h.src.Viewers != nil {
		resp.Viewers = h.src.Viewers()
	}
	if h.src.Endpoints != nil {
		resp.Endpoints = len(h.src.Endpoints(r.Context()))
	}
	defaults := classification.DefaultResult()
	for _, ch := range classification.Channels {
		res, _ := defaults.Get(ch)
		resp.Labels[string(ch)] = res.Label
	}
	if h.src.Labels != nil {
		for ch, label := range h.src.Labels() {
			resp.Labels[string(ch)] = label
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

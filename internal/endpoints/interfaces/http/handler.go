package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const (
	PathRegister   = "/api/fcm/register"
	PathUnregister = "/api/fcm/unregister"
	PathList       = "/api/fcm/tokens"

	maxBodyBytes = 64 << 10
)

// Registry is the endpoint registry used by the handler.
type Registry interface {
	Register(ctx context.Context, id string) bool
	Unregister(ctx context.Context, id string) bool
	List(ctx context.Context) []string
}

// Handler exposes endpoint registration over HTTP.
type Handler struct {
	registry Registry
}

// NewHandler constructs a handler.
func NewHandler(registry Registry) (*Handler, error) {
	if registry == nil {
		return nil, errors.New("endpoints handler: nil registry")
	}
	return &Handler{registry: registry}, nil
}

type tokenRequest struct {
	Token json.RawMessage `json:"token"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type listResponse struct {
	Endpoints []string `json:"endpoints"`
	Count     int      `json:"count"`
}

// ServeHTTP handles /api/fcm/register, /api/fcm/unregister and /api/fcm/tokens.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case PathRegister:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleRegister(w, r)
	case PathUnregister:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleUnregister(w, r)
	case PathList:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		endpoints := h.registry.List(r.Context())
		writeJSON(w, http.StatusOK, listResponse{Endpoints: endpoints, Count: len(endpoints)})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	token, err := decodeToken(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Success: false, Message: "Invalid request body"})
		return
	}
	if !h.registry.Register(r.Context(), token) {
		writeJSON(w, http.StatusBadRequest, resultResponse{Success: false, Message: "Invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "Token registered"})
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	token, err := decodeToken(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Success: false, Message: "Invalid request body"})
		return
	}
	if !h.registry.Unregister(r.Context(), token) {
		writeJSON(w, http.StatusNotFound, resultResponse{Success: false, Message: "Token not found"})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "Token unregistered"})
}

var errNotString = errors.New("token must be a string")

// decodeToken returns an empty token for a missing or empty field so the registry rejects it.
func decodeToken(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	defer r.Body.Close()

	var req tokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", err
	}
	if len(req.Token) == 0 || string(req.Token) == "null" {
		return "", nil
	}
	var token string
	if err := json.Unmarshal(req.Token, &token); err != nil {
		return "", errNotString
	}
	return token, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

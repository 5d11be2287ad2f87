package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	classification "lab-monitor-bridge/internal/classification/domain"
)

type stubTransport struct{ up bool }

func (s stubTransport) Connected() bool  { return s.up }
func (s stubTransport) ClientID() string { return "lab_monitor_bridge_0a1b2c3d" }

type stubClassifier string

func (s stubClassifier) Health(context.Context) string { return string(s) }

func TestHealthIsAlwaysOK(t *testing.T) {
	h := NewHandler(Sources{Transport: stubTransport{up: false}, Classifier: stubClassifier("unreachable")})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","mqtt":"disconnected","classifier":"unreachable"}`, rec.Body.String())
}

func TestStatusReportsComponents(t *testing.T) {
	h := NewHandler(Sources{
		Transport: stubTransport{up: true},
		Viewers:   func() int { return 2 },
		Labels: func() map[classification.Channel]string {
			return map[classification.Channel]string{classification.ChannelSmoke: "BAHAYA!"}
		},
		Endpoints: func(context.Context) []string { return []string{"a", "b", "c"} },
	})
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"mqtt_connected": true,
		"client_id": "lab_monitor_bridge_0a1b2c3d",
		"viewers": 2,
		"endpoints": 3,
		"labels": {"mq135": "Baik", "mq2": "BAHAYA!", "mq7": "NORMAL"}
	}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHandler(Sources{}).Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"mqtt_connected": false,
		"viewers": 0,
		"endpoints": 0,
		"labels": {"mq135": "Baik", "mq2": "AMAN", "mq7": "NORMAL"}
	}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHandler(Sources{}).Status(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

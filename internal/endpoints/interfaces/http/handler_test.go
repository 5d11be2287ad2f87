package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lab-monitor-bridge/internal/endpoints/application"
	"lab-monitor-bridge/internal/endpoints/infrastructure/file"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := file.NewStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)
	reg, err := application.Open(context.Background(), store, nil)
	require.NoError(t, err)
	h, err := NewHandler(reg)
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	var decoded map[string]any
	if resp.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &decoded))
	}
	return resp, decoded
}

func TestRegisterUnregisterList(t *testing.T) {
	h := newTestHandler(t)

	resp, body := do(t, h, http.MethodPost, PathRegister, `{"token":"device-token-1"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Token registered", body["message"])

	resp, _ = do(t, h, http.MethodPost, PathRegister, `{"token":"device-token-1"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp, body = do(t, h, http.MethodGet, PathList, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, []any{"device-token-1"}, body["endpoints"])
	require.Equal(t, float64(1), body["count"])

	resp, body = do(t, h, http.MethodPost, PathUnregister, `{"token":"device-token-1"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, true, body["success"])

	resp, body = do(t, h, http.MethodPost, PathUnregister, `{"token":"device-token-1"}`)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "Token not found", body["message"])
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	h := newTestHandler(t)
	cases := []struct {
		body    string
		message string
	}{
		{`{"token":""}`, "Invalid token"},
		{`{}`, "Invalid token"},
		{`{"token":null}`, "Invalid token"},
		{`{"token":12345}`, "Invalid request body"},
		{`not json`, "Invalid request body"},
	}
	for _, tc := range cases {
		resp, body := do(t, h, http.MethodPost, PathRegister, tc.body)
		require.Equal(t, http.StatusBadRequest, resp.Code, tc.body)
		require.Equal(t, false, body["success"], tc.body)
		require.Equal(t, tc.message, body["message"], tc.body)
	}
	_, body := do(t, h, http.MethodGet, PathList, "")
	require.Equal(t, float64(0), body["count"])
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	resp, _ := do(t, h, http.MethodGet, PathRegister, "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	resp, _ = do(t, h, http.MethodPost, PathList, "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

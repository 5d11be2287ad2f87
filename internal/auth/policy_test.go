package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyRequiredRole(t *testing.T) {
	policy := NewDefaultPolicy([]string{"/healthz"}, []string{"/api/stream"})
	cases := []struct {
		path string
		role Role
		ok   bool
	}{
		{"/api/fcm/tokens", RoleAdmin, true},
		{"/api/fcm/register", RoleViewer, true},
		{"/api/status", RoleViewer, true},
		{"/healthz", "", false},
	}
	for _, tc := range cases {
		role, ok := policy.RequiredRole(httptest.NewRequest("GET", tc.path, nil))
		require.Equal(t, tc.ok, ok, tc.path)
		require.Equal(t, tc.role, role, tc.path)
	}

	require.True(t, policy.IsExempt(httptest.NewRequest("GET", "/api/stream?x=1", nil)))
	require.True(t, policy.IsExempt(httptest.NewRequest("GET", "/healthz", nil)))
	require.False(t, policy.IsExempt(httptest.NewRequest("GET", "/healthz/deep", nil)))
	require.False(t, policy.IsExempt(httptest.NewRequest("POST", "/api/fcm/register", nil)))
}

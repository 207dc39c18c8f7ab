package authsdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefreshUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body any
	}{
		{name: "wrapped", body: map[string]any{"user": map[string]any{"id": 1, "email": "alice@example.com", "name": "Alice Smith"}}},
		{name: "bare", body: map[string]any{"id": "1", "email": "alice@example.com", "name": "Alice Smith"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/auth/me", r.URL.Path)
				writeJSON(w, http.StatusOK, tt.body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv)
			seedSession(t, c, "a1", "r1")

			user, err := c.RefreshUser(context.Background())
			require.NoError(t, err)
			require.Equal(t, "Alice Smith", user.Name)

			require.Equal(t, "Alice Smith", storedCredentials(t, c).User.Name)
			require.Equal(t, "Alice Smith", c.CurrentUser().Name)
			require.Equal(t, "a1", storedCredentials(t, c).AccessToken)
		})
	}
}

func TestRefreshUser_SessionExpired(t *testing.T) {
	t.Parallel()

	api := &tokenAPI{validAccess: "x", validRefresh: "x"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/me" {
			writeError(w, http.StatusUnauthorized, ErrorCodeInvalidToken, "expired")
			return
		}
		api.handler().ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	events, cancel := c.Events().Subscribe()
	defer cancel()

	seedSession(t, c, "a1", "r1")

	_, err := c.RefreshUser(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)
	require.False(t, c.State().Authenticated())
	requireEvent(t, events, ReasonRefreshRejected)
}

func TestRefreshUser_RefreshUnavailableKeepsSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusServiceUnavailable},
		{"rate limited", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/auth/refresh" {
					writeError(w, tt.status, "unavailable", "try later")
					return
				}
				writeError(w, http.StatusUnauthorized, ErrorCodeInvalidToken, "expired")
			}))
			defer srv.Close()

			c := newTestClient(t, srv)
			seedSession(t, c, "a1", "r1")

			_, err := c.RefreshUser(context.Background())
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrSessionExpired)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

			require.True(t, storedCredentials(t, c).Authenticated())
			require.True(t, c.State().Authenticated())
		})
	}
}

func TestSecurityEndpoints(t *testing.T) {
	t.Parallel()

	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/security/account-status":
			writeJSON(w, http.StatusOK, AccountStatus{TwoFactorEnabled: true, EmailVerified: true})
		case "/security/audit-log":
			gotLimit = r.URL.Query().Get("limit")
			writeJSON(w, http.StatusOK, AuditLogResponse{Entries: []AuditLogEntry{{ID: "1", Event: "login"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.AccountStatus(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)

	seedSession(t, c, "a1", "r1")

	status, err := c.AccountStatus(context.Background())
	require.NoError(t, err)
	require.True(t, status.TwoFactorEnabled)

	entries, err := c.AuditLog(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "50", gotLimit)
}

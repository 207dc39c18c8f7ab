package authsdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogout(t *testing.T) {
	t.Parallel()

	var got LogoutRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/logout", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = decodeBody(r, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	events, cancel := c.Events().Subscribe()
	defer cancel()

	seedSession(t, c, "a1", "r1")

	require.NoError(t, c.Logout(context.Background(), LogoutOptions{AllDevices: true}))
	require.Equal(t, "Bearer a1", gotAuth)
	require.Equal(t, "r1", got.RefreshToken)
	require.True(t, got.AllDevices)

	require.True(t, storedCredentials(t, c).IsZero())
	require.False(t, c.State().Authenticated())
	require.Nil(t, c.CurrentUser())
	requireNoEvent(t, events)
}

func TestLogout_ClearsWhateverTheServerSays(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusInternalServerError, ErrorCodeServerError, "boom")
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusUnauthorized, ErrorCodeInvalidToken, "expired")
			},
		},
		{
			name: "hangs past the timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-release:
				case <-r.Context().Done():
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(t, srv, WithRequestTimeout(50*time.Millisecond))
			events, cancel := c.Events().Subscribe()
			defer cancel()

			seedSession(t, c, "a1", "r1")

			require.NoError(t, c.Logout(context.Background(), LogoutOptions{}))
			require.True(t, storedCredentials(t, c).IsZero())
			require.False(t, c.State().Authenticated())
			requireNoEvent(t, events)
		})
	}
}

func TestLogout_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := newTestClient(t, srv)
	seedSession(t, c, "a1", "r1")

	require.NoError(t, c.Logout(context.Background(), LogoutOptions{}))
	require.True(t, storedCredentials(t, c).IsZero())
}

func TestLogout_CanceledContextStillClears(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t, srv)
	seedSession(t, c, "a1", "r1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.Logout(ctx, LogoutOptions{}))
	require.True(t, storedCredentials(t, c).IsZero())
}

func TestLogout_WithoutSessionSkipsServer(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.Logout(context.Background(), LogoutOptions{}))
	require.False(t, called)
}

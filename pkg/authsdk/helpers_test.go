package authsdk

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient returns a client with opaque tokens pointed at srv.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *SDKClient {
	t.Helper()

	base := []Option{
		WithOpaqueTokens(),
		WithLogger(discardLogger()),
		WithRequestTimeout(2 * time.Second),
	}
	return NewSDKClient(srv.URL, append(base, opts...)...)
}

func testProfile() UserProfile {
	return UserProfile{ID: "1", Email: "alice@example.com", Name: "Alice"}
}

// seedSession writes a complete session and syncs state.
func seedSession(t *testing.T, c *SDKClient, access, refresh string) {
	t.Helper()
	require.NoError(t, c.establish(context.Background(), &FullSession{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         testProfile(),
	}))
	require.True(t, c.State().Authenticated())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: desc})
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func sessionJSON(access, refresh string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user": map[string]any{
			"id":    1,
			"email": "alice@example.com",
			"name":  "Alice",
		},
	}
}

// requireNoEvent fails if an event is waiting on ch.
func requireNoEvent(t *testing.T, ch <-chan SessionEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected session event: %s", ev.Reason)
	default:
	}
}

func requireEvent(t *testing.T, ch <-chan SessionEvent, reason InvalidationReason) {
	t.Helper()
	select {
	case ev := <-ch:
		require.Equal(t, reason, ev.Reason)
	case <-time.After(time.Second):
		t.Fatalf("expected session event %s", reason)
	}
}

func storedCredentials(t *testing.T, c *SDKClient) tokenstore.Credentials {
	t.Helper()
	creds, err := c.Store().Read(context.Background())
	require.NoError(t, err)
	return creds
}

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authclient/internal/authstub"
	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/cryptox"
	"github.com/aussiebroadwan/authclient/pkg/tokenstore"
	"github.com/aussiebroadwan/authclient/pkg/tokenstore/drivers/sqlite"
)

const (
	email    = "alice@example.com"
	password = "correct horse battery"
)

type harness struct {
	stub  *authstub.Server
	url   string
	store string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := authstub.Config{
		HashParams: cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16},
	}
	stub, err := authstub.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	_, err = stub.CreateUser(email, password, "Alice")
	require.NoError(t, err)

	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	return &harness{
		stub:  stub,
		url:   srv.URL,
		store: filepath.Join(t.TempDir(), "authctl", "session.db"),
	}
}

// run executes one authctl invocation, feeding stdin and capturing stdout.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--base-url", h.url, "--store", h.store}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginStatusLogout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not signed in")

	out, err = h.run(t, "", "login", "--email", email, "--password", password)
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as "+email)

	// Each invocation is a fresh process reading the same file.
	out, err = h.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as "+email)
	require.Contains(t, out, "Access token expires in")

	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "Alice <"+email+">")

	h.stub.ExpireAccessTokens(email)
	out, err = h.run(t, "", "account", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Password set:    true")
	require.Equal(t, 1, h.stub.Calls("/auth/refresh"))

	out, err = h.run(t, "", "logout")
	require.NoError(t, err)
	require.Contains(t, out, "Signed out")

	out, err = h.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not signed in")
}

func TestLoginPrompts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, email+"\n"+password+"\n", "login")
	require.NoError(t, err)
	require.Contains(t, out, "Email: ")
	require.Contains(t, out, "Password: ")
	require.Contains(t, out, "Signed in as "+email)
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.run(t, "", "login", "--email", email, "--password", "nope nope nope")
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)

	out, err := h.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not signed in")
}

func TestLoginSecondFactor(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	secret, err := h.stub.EnableTOTP(email)
	require.NoError(t, err)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"code flag", "", []string{"--code", code}},
		{"prompted", code + "\n", nil},
	}

	for _, tt := range tests {
		args := append([]string{"login", "--email", email, "--password", password}, tt.args...)
		out, err := h.run(t, tt.stdin, args...)
		require.NoError(t, err, tt.name)
		require.Contains(t, out, "Signed in as "+email, tt.name)
		if tt.stdin != "" {
			require.Contains(t, out, "Two-factor code: ", tt.name)
		}
	}
}

func TestMagicLink(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, "", "magic-link", "request", "--email", email)
	require.NoError(t, err)
	require.Contains(t, out, "sign-in link is on its way")

	token, ok := h.stub.MagicLink(email)
	require.True(t, ok)

	out, err = h.run(t, "", "magic-link", "redeem", token)
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as "+email)
}

func TestOAuth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, "", "oauth", "url")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	loginURL, err := url.Parse(lines[0])
	require.NoError(t, err)
	state := loginURL.Query().Get("state")
	require.NotEmpty(t, state)
	require.Contains(t, lines[1], "State: "+state)

	code, err := h.stub.IssueOAuthCode("carol@example.com")
	require.NoError(t, err)
	callback := "myapp://oauth/callback?" + url.Values{"code": {code}, "state": {state}}.Encode()

	tests := []struct {
		name    string
		state   string
		wantErr error
	}{
		{"state from another flow", "not-" + state, authsdk.ErrInvalidInput},
		{"matching state", state, nil},
	}

	for _, tt := range tests {
		out, err := h.run(t, "", "oauth", "complete", callback, "--state", tt.state)
		if tt.wantErr != nil {
			require.ErrorIs(t, err, tt.wantErr, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		require.Contains(t, out, "Signed in as carol@example.com", tt.name)
	}

	_, err = h.run(t, "", "oauth", "complete", callback)
	require.ErrorContains(t, err, `"state" not set`)
}

func TestOpenPurgesExpiredRows(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(h.store), 0o700))
	b, err := sqlite.Open(ctx, h.store)
	require.NoError(t, err)
	require.NoError(t, b.SaveAll(ctx, []tokenstore.Entry{
		{Key: "stale", Value: []byte("old"), ExpiresAt: time.Now().Add(-time.Hour)},
		{Key: "kept", Value: []byte("v")},
	}))
	require.NoError(t, b.Close())

	_, err = h.run(t, "", "status")
	require.NoError(t, err)

	b, err = sqlite.Open(ctx, h.store)
	require.NoError(t, err)
	defer b.Close()

	n, err := b.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, ok, err := b.Load(ctx, "kept")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSessionCommandsRequireLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, args := range [][]string{{"whoami"}, {"account", "status"}, {"2fa", "setup"}} {
		_, err := h.run(t, "", args...)
		require.ErrorContains(t, err, "not signed in", args)
	}
}

func TestVersionSkipsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run(t, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "authctl "+version)
	require.NoDirExists(t, filepath.Dir(h.store))
}

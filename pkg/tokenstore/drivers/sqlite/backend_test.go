package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"

	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T, path string) *Backend {
	t.Helper()

	b, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t, filepath.Join(t.TempDir(), "tokens.db"))
	s := tokenstore.New(b)

	in := tokenstore.Credentials{
		AccessToken:  "a1",
		RefreshToken: "r1",
		User:         &tokenstore.UserProfile{ID: "1", Email: "alice@example.com", Name: "Alice"},
	}
	require.NoError(t, s.Write(ctx, in))

	out, err := s.Read(ctx)
	require.NoError(t, err)
	require.True(t, in.Equal(out))

	require.NoError(t, s.UpdateTokens(ctx, "a2", ""))
	out, err = s.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", out.AccessToken)
	require.Equal(t, "r1", out.RefreshToken)

	require.NoError(t, s.Clear(ctx))
	out, err = s.Read(ctx)
	require.NoError(t, err)
	require.True(t, out.IsZero())
}

func TestBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.SaveAll(ctx, []tokenstore.Entry{
		{Key: tokenstore.KeyAccessToken, Value: []byte("a1"), ExpiresAt: time.Now().Add(time.Hour)},
	}))
	require.NoError(t, first.Close())

	second := openTestBackend(t, path)
	v, ok, err := second.Load(ctx, tokenstore.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a1", string(v))
}

func TestBackend_SharedBetweenHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	writer := openTestBackend(t, path)
	reader := openTestBackend(t, path)

	require.NoError(t, writer.SaveAll(ctx, []tokenstore.Entry{
		{Key: tokenstore.KeyRefreshToken, Value: []byte("r1")},
	}))

	v, ok, err := reader.Load(ctx, tokenstore.KeyRefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r1", string(v))
}

func TestBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t, filepath.Join(t.TempDir(), "tokens.db"))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })

	require.NoError(t, b.SaveAll(ctx, []tokenstore.Entry{
		{Key: "short", Value: []byte("x"), ExpiresAt: now.Add(time.Minute)},
		{Key: "long", Value: []byte("y"), ExpiresAt: now.Add(time.Hour)},
		{Key: "forever", Value: []byte("z")},
	}))

	now = now.Add(10 * time.Minute)

	_, ok, err := b.Load(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = b.Load(ctx, "long")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := b.DeleteExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, ok, err = b.Load(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBackend_SaveAllNilValueDeletes(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t, filepath.Join(t.TempDir(), "tokens.db"))

	require.NoError(t, b.SaveAll(ctx, []tokenstore.Entry{{Key: "k", Value: []byte("v")}}))
	require.NoError(t, b.SaveAll(ctx, []tokenstore.Entry{{Key: "k"}}))

	_, ok, err := b.Load(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Delete(ctx, "missing", "also-missing"))
}

func TestBackend_LoadAll(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t, filepath.Join(t.TempDir(), "tokens.db"))
	now := time.Now()
	b.SetClock(func() time.Time { return now })

	require.NoError(t, b.SaveAll(ctx, []tokenstore.Entry{
		{Key: "live", Value: []byte("x"), ExpiresAt: now.Add(time.Hour)},
		{Key: "stale", Value: []byte("y"), ExpiresAt: now.Add(-time.Minute)},
		{Key: "forever", Value: []byte("z")},
	}))

	got, err := b.LoadAll(ctx, "live", "stale", "forever", "missing")
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"live": []byte("x"), "forever": []byte("z")}, got)

	got, err = b.LoadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBackend_UpdateTokensIfAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	// Two handles on one file stand in for two processes.
	refresher := tokenstore.New(openTestBackend(t, path))
	other := tokenstore.New(openTestBackend(t, path))

	creds := tokenstore.Credentials{
		AccessToken:  "a1",
		RefreshToken: "r1",
		User:         &tokenstore.UserProfile{ID: "1", Email: "alice@example.com", Name: "Alice"},
	}
	require.NoError(t, refresher.Write(ctx, creds))

	require.NoError(t, refresher.UpdateTokensIf(ctx, "r1", "a2", "r2"))
	out, err := other.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", out.AccessToken)
	require.Equal(t, "r2", out.RefreshToken)

	require.NoError(t, other.Clear(ctx))
	require.ErrorIs(t, refresher.UpdateTokensIf(ctx, "r2", "a3", "r3"), tokenstore.ErrSuperseded)

	out, err = refresher.Read(ctx)
	require.NoError(t, err)
	require.True(t, out.IsZero(), "a cleared session stays cleared")
}

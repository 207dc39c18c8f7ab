package authsdk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"

	"github.com/stretchr/testify/require"
)

func TestReconcile_Idempotent(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemory()
	state := NewState()
	r := NewReconciler(store, state, nil, nil)

	user := testProfile()
	require.NoError(t, store.Write(context.Background(), tokenstore.Credentials{
		AccessToken:  "a1",
		RefreshToken: "r1",
		User:         &user,
	}))

	changed, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, state.Authenticated())

	changed, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, store.Clear(context.Background()))
	changed, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, state.Authenticated())
}

func TestReconcile_PartialSessionIsNotAuthenticated(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemory()
	state := NewState()
	r := NewReconciler(store, state, nil, nil)

	require.NoError(t, store.Write(context.Background(), tokenstore.Credentials{AccessToken: "a1", RefreshToken: "r1"}))

	_, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	snap := state.Snapshot()
	require.False(t, snap.Authenticated)
	require.Equal(t, "a1", snap.AccessToken)
}

func TestReconcile_MalformedTokenClears(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemory()
	state := NewState()
	r := NewReconciler(store, state, JWTInspector, nil)

	user := testProfile()
	require.NoError(t, store.Write(context.Background(), tokenstore.Credentials{
		AccessToken:  "garbage",
		RefreshToken: "r1",
		User:         &user,
	}))

	_, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.False(t, state.Authenticated())

	creds, err := store.Read(context.Background())
	require.NoError(t, err)
	require.True(t, creds.IsZero())
}

func TestSDKClient_SharedStoreConverges(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemory()
	a := NewSDKClient("http://unused", WithStore(store), WithOpaqueTokens(), WithLogger(discardLogger()))
	b := NewSDKClient("http://unused", WithStore(store), WithOpaqueTokens(), WithLogger(discardLogger()))

	seedSession(t, a, "a1", "r1")
	require.False(t, b.State().Authenticated())

	require.NoError(t, b.Start(context.Background()))
	require.True(t, b.State().Authenticated())
	require.Equal(t, "a1", b.State().Snapshot().AccessToken)
}

func TestWatcher_PicksUpExternalChanges(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemory()
	c := NewSDKClient("http://unused", WithStore(store), WithOpaqueTokens(), WithLogger(discardLogger()))

	w := c.Watch(5 * time.Millisecond)
	w.Start(context.Background())
	defer w.Stop()

	user := testProfile()
	require.NoError(t, store.Write(context.Background(), tokenstore.Credentials{
		AccessToken:  "a1",
		RefreshToken: "r1",
		User:         &user,
	}))

	require.Eventually(t, c.State().Authenticated, time.Second, 5*time.Millisecond)

	require.NoError(t, store.Clear(context.Background()))
	require.Eventually(t, func() bool { return !c.State().Authenticated() }, time.Second, 5*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWatcher(NewReconciler(tokenstore.NewMemory(), NewState(), nil, nil), discardLogger(), 0)
	require.Equal(t, DefaultWatchInterval, w.Interval)

	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

// pausedRead holds the first LoadAll after it has taken its snapshot.
type pausedRead struct {
	*tokenstore.MemoryBackend
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *pausedRead) LoadAll(ctx context.Context, keys ...string) (map[string][]byte, error) {
	vals, err := b.MemoryBackend.LoadAll(ctx, keys...)
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return vals, err
}

func TestReconcile_StaleReadCannotOverwriteNewer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := &pausedRead{
		MemoryBackend: tokenstore.NewMemoryBackend(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	store := tokenstore.New(backend)
	state := NewState()
	r := NewReconciler(store, state, nil, nil)

	user := testProfile()
	require.NoError(t, store.Write(ctx, tokenstore.Credentials{AccessToken: "a1", RefreshToken: "r1", User: &user}))

	// A watcher tick reads a1 and stalls before applying it.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = r.Reconcile(ctx)
	}()
	<-backend.entered

	// A refresh lands and reconciles on its own.
	require.NoError(t, store.UpdateTokens(ctx, "a2", ""))
	go func() {
		defer wg.Done()
		_, _ = r.Reconcile(ctx)
	}()

	// Let the second reconcile finish first if nothing orders the two.
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	require.Equal(t, "a2", state.Snapshot().AccessToken)
}

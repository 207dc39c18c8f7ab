package authsdk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"
)

// Reconciler makes the State container agree with the token store. The store
// always wins.
type Reconciler struct {
	store      *tokenstore.Store
	state      *State
	inspect    TokenInspector
	invalidate func(ctx context.Context, reason InvalidationReason) bool

	// mu orders store reads with the state writes made from them, so a
	// reconcile that read an older store cannot land after a newer one.
	mu sync.Mutex
}

// NewReconciler builds a standalone reconciler. onMalformed is called when
// the stored access token cannot be parsed; it must clear the store. A nil
// onMalformed clears the store and resets state without signalling.
func NewReconciler(store *tokenstore.Store, state *State, inspect TokenInspector, onMalformed func(ctx context.Context, reason InvalidationReason) bool) *Reconciler {
	r := &Reconciler{store: store, state: state, inspect: inspect, invalidate: onMalformed}
	if r.inspect == nil {
		r.inspect = OpaqueInspector
	}
	if r.invalidate == nil {
		r.invalidate = func(ctx context.Context, _ InvalidationReason) bool {
			changed, _ := r.clear(ctx)
			return changed
		}
	}
	return r
}

// Reconcile reads the store and overwrites the in-memory state if the two
// differ. It reports whether the state changed. Calling it again without an
// intervening write returns false.
func (r *Reconciler) Reconcile(ctx context.Context) (bool, error) {
	r.mu.Lock()
	creds, err := r.store.Read(ctx)
	if err != nil {
		r.mu.Unlock()
		return false, err
	}

	var expiresAt time.Time
	if creds.AccessToken != "" {
		expiresAt, err = r.inspect(creds.AccessToken)
		if err != nil {
			r.mu.Unlock()
			return r.invalidate(ctx, ReasonMalformedToken), nil
		}
	}

	changed := r.state.set(stateFromCredentials(creds, expiresAt))
	r.mu.Unlock()
	return changed, nil
}

// clear empties the store and resets the state while no reconcile is
// between its read and its write.
func (r *Reconciler) clear(ctx context.Context) (changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.store.Clear(ctx)
	return r.state.reset(), err
}

// DefaultWatchInterval is how often a Watcher polls the store.
const DefaultWatchInterval = 2 * time.Second

// Watcher reconciles on a timer so that changes made to a shared store by
// another process show up in this one.
type Watcher struct {
	Reconciler *Reconciler
	Logger     *slog.Logger
	Interval   time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher. If interval is 0 or negative, defaults to
// DefaultWatchInterval.
func NewWatcher(r *Reconciler, logger *slog.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		Reconciler: r,
		Logger:     logger,
		Interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Watch returns a watcher bound to this client's reconciler.
func (c *SDKClient) Watch(interval time.Duration) *Watcher {
	return NewWatcher(c.reconciler, c.logger, interval)
}

// Start begins polling in the background. ctx bounds each reconcile and
// stops the loop when done. Call Stop to shut down.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
	w.Logger.Debug("session watcher started", "interval", w.Interval)
}

// Stop ends the loop and waits for an in-progress reconcile to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
	w.Logger.Debug("session watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			changed, err := w.Reconciler.Reconcile(ctx)
			if err != nil {
				w.Logger.Error("session reconcile failed", "error", err)
				continue
			}
			if changed {
				w.Logger.Debug("session state changed in store")
			}
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}
	}
}

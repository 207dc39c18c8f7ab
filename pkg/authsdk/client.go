package authsdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/slogx"
	"github.com/aussiebroadwan/authclient/pkg/tokenstore"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// SDKClient owns one user session against the auth service: it logs in,
// persists tokens, refreshes them transparently and tells the rest of the
// application when the session is gone.
type SDKClient struct {
	BaseURL string

	// HTTPClient sends every request through the interceptor chain. Calls
	// made with it carry the bearer token and recover from expiry on their
	// own.
	HTTPClient *http.Client

	store      *tokenstore.Store
	state      *State
	events     *Events
	reconciler *Reconciler
	refresher  *refresher
	metrics    *metrics
	tracer     trace.Tracer
	logger     *slog.Logger

	inspect        TokenInspector
	refreshBuffer  time.Duration
	requestTimeout time.Duration
	challengeTTL   time.Duration
	magicLimiter   *rate.Limiter
	now            func() time.Time

	// invalidateMu makes read-then-clear in invalidate atomic so concurrent
	// hard failures signal once.
	invalidateMu sync.Mutex
}

// NewSDKClient creates a client for the auth service at baseURL.
func NewSDKClient(baseURL string, opts ...Option) *SDKClient {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	store := cfg.store
	if store == nil {
		store = tokenstore.NewMemory()
	}

	c := &SDKClient{
		BaseURL:        strings.TrimSuffix(baseURL, "/"),
		store:          store,
		state:          NewState(),
		events:         newEvents(cfg.logger),
		metrics:        newMetrics(cfg.registerer),
		tracer:         cfg.tracerProvider.Tracer(tracerName),
		logger:         cfg.logger,
		inspect:        cfg.inspector,
		refreshBuffer:  cfg.refreshBuffer,
		requestTimeout: cfg.requestTimeout,
		challengeTTL:   cfg.challengeTTL,
		now:            cfg.now,
	}

	if cfg.magicEvery > 0 {
		burst := cfg.magicBurst
		if burst < 1 {
			burst = 1
		}
		c.magicLimiter = rate.NewLimiter(rate.Every(cfg.magicEvery), burst)
	}

	base := cfg.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c.HTTPClient = &http.Client{
		Transport:     &Transport{Base: slogx.NewTransport(base, cfg.logger), client: c},
		CheckRedirect: cfg.httpClient.CheckRedirect,
		Jar:           cfg.httpClient.Jar,
		Timeout:       cfg.httpClient.Timeout,
	}

	c.refresher = newRefresher(c)
	c.reconciler = &Reconciler{
		store:      store,
		state:      c.state,
		inspect:    cfg.inspector,
		invalidate: c.invalidate,
	}

	return c
}

// Start seeds the session state from whatever the store holds. Call it once
// at application start.
func (c *SDKClient) Start(ctx context.Context) error {
	_, err := c.reconciler.Reconcile(ctx)
	return err
}

// Store returns the token store the client writes through to.
func (c *SDKClient) Store() *tokenstore.Store { return c.store }

// State returns the observable session container.
func (c *SDKClient) State() *State { return c.state }

// Events returns the session-invalidated signal bus.
func (c *SDKClient) Events() *Events { return c.events }

// Reconciler returns the store/state reconciler.
func (c *SDKClient) Reconciler() *Reconciler { return c.reconciler }

// IsAuthenticated reports whether the store holds a complete session.
func (c *SDKClient) IsAuthenticated(ctx context.Context) (bool, error) {
	return c.store.IsAuthenticated(ctx)
}

// CurrentUser returns the cached profile, or nil when signed out.
func (c *SDKClient) CurrentUser() *UserProfile {
	return c.state.Snapshot().User
}

// invalidate performs a hard auth failure: the store is cleared, the state
// reset, and a SessionEvent is published if there was anything to clear.
// It reports whether the in-memory state changed.
func (c *SDKClient) invalidate(ctx context.Context, reason InvalidationReason) bool {
	ctx = context.WithoutCancel(ctx)

	c.invalidateMu.Lock()
	defer c.invalidateMu.Unlock()

	creds, err := c.store.Read(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to read session before clearing", "error", err)
	}
	hadSession := !creds.IsZero()

	changed, err := c.reconciler.clear(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to clear session", "error", err, "reason", string(reason))
	}

	if !hadSession && !changed {
		return false
	}

	c.metrics.hardFailure(reason)
	c.logger.WarnContext(ctx, "session invalidated", "reason", string(reason))
	c.events.publish(SessionEvent{Reason: reason, At: c.now()})
	return changed
}

// establish persists a completed login and syncs the state container.
func (c *SDKClient) establish(ctx context.Context, s *FullSession) error {
	user := s.User
	err := c.store.Write(context.WithoutCancel(ctx), tokenstore.Credentials{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User:         &user,
	})
	if err != nil {
		return err
	}

	if _, err := c.reconciler.Reconcile(context.WithoutCancel(ctx)); err != nil {
		c.logger.WarnContext(ctx, "failed to sync session state", "error", err)
	}
	return nil
}

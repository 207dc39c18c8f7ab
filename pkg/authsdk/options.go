package authsdk

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/jwtx"
	"github.com/aussiebroadwan/authclient/pkg/tokenstore"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Defaults. The request timeout and refresh buffer match the values the
// auth service SDK has always used.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultRefreshBuffer  = 30 * time.Second
	DefaultChallengeTTL   = 5 * time.Minute

	// One magic link per 30 seconds, with a small burst for typos.
	DefaultMagicLinkEvery = 30 * time.Second
	DefaultMagicLinkBurst = 3
)

// TokenInspector reads an access token without verifying it. It returns the
// token's expiry (zero if unknown) or an error if the token is garbage.
type TokenInspector func(token string) (expiresAt time.Time, err error)

// JWTInspector treats access tokens as JWTs and reads their exp claim.
func JWTInspector(token string) (time.Time, error) {
	claims, err := jwtx.Inspect(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.Expiry(), nil
}

// OpaqueInspector accepts any non-empty token and never knows its expiry.
func OpaqueInspector(string) (time.Time, error) {
	return time.Time{}, nil
}

type config struct {
	store          *tokenstore.Store
	logger         *slog.Logger
	httpClient     *http.Client
	requestTimeout time.Duration
	refreshBuffer  time.Duration
	inspector      TokenInspector
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	challengeTTL   time.Duration
	magicEvery     time.Duration
	magicBurst     int
	now            func() time.Time
}

func defaultConfig() config {
	return config{
		logger:         slog.Default(),
		httpClient:     &http.Client{},
		requestTimeout: DefaultRequestTimeout,
		refreshBuffer:  DefaultRefreshBuffer,
		inspector:      JWTInspector,
		tracerProvider: otel.GetTracerProvider(),
		challengeTTL:   DefaultChallengeTTL,
		magicEvery:     DefaultMagicLinkEvery,
		magicBurst:     DefaultMagicLinkBurst,
		now:            time.Now,
	}
}

// Option configures an SDKClient.
type Option func(*config)

// WithStore sets the token store. Without it the client keeps the session in
// memory only.
func WithStore(store *tokenstore.Store) Option {
	return func(c *config) {
		if store != nil {
			c.store = store
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets the underlying client. Its Transport becomes the base
// of the interceptor chain.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRequestTimeout bounds every login, refresh and logout call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithRefreshBuffer sets how close to exp a token is refreshed before use.
// Zero disables proactive refresh.
func WithRefreshBuffer(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.refreshBuffer = d
		}
	}
}

// WithTokenInspector overrides how stored access tokens are read.
func WithTokenInspector(inspect TokenInspector) Option {
	return func(c *config) {
		if inspect != nil {
			c.inspector = inspect
		}
	}
}

// WithOpaqueTokens is for servers whose access tokens are not JWTs.
// Malformed-token detection and proactive refresh are disabled.
func WithOpaqueTokens() Option {
	return WithTokenInspector(OpaqueInspector)
}

// WithMetrics registers the client's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithTracerProvider sets the OpenTelemetry provider (default: global).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}

// WithChallengeTTL sets how long a PendingChallenge stays usable locally.
func WithChallengeTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.challengeTTL = d
		}
	}
}

// WithMagicLinkLimit allows burst magic-link requests, refilling one per
// every. A zero every disables the limit.
func WithMagicLinkLimit(every time.Duration, burst int) Option {
	return func(c *config) {
		c.magicEvery = every
		c.magicBurst = burst
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

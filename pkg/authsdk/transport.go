package authsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/idx"
	"github.com/aussiebroadwan/authclient/pkg/slogx"
)

// attempt counts how many times a request has been sent after a 401. It is
// passed down the call rather than stored on the request.
type attempt int

const (
	firstAttempt attempt = iota
	retryAttempt
)

// Transport is the interceptor chain. Outbound it attaches the stored bearer
// token and a request id; inbound it turns a first 401 into one refresh and
// one retry, and a second 401 into a hard auth failure.
type Transport struct {
	Base http.RoundTripper

	client *SDKClient
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if skipAuth(req.Context()) {
		out := req.Clone(req.Context())
		stampRequestID(out)
		return t.Base.RoundTrip(out)
	}
	return t.roundTrip(req, firstAttempt)
}

func (t *Transport) roundTrip(req *http.Request, at attempt) (*http.Response, error) {
	ctx := req.Context()
	c := t.client

	token, err := c.outboundToken(ctx, at)
	if err != nil {
		return nil, err
	}

	out := req.Clone(ctx)
	if at == retryAttempt && hasBody(req) {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to replay request body: %w", err)
		}
		out.Body = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	stampRequestID(out)

	resp, err := t.Base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if at == retryAttempt {
		c.invalidate(ctx, ReasonRetryRejected)
		return resp, nil
	}

	if err := c.recoverFromUnauthorized(ctx, token); err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			drainAndClose(resp)
			return nil, netErr
		}
		// Session expired or the server failed the refresh: the caller sees
		// its own 401.
		return resp, nil
	}

	if hasBody(req) && req.GetBody == nil {
		return resp, nil
	}

	drainAndClose(resp)
	c.metrics.retry()
	return t.roundTrip(req, retryAttempt)
}

// outboundToken returns the bearer to attach, or "" for none. A malformed
// stored token is cleared and treated as absent. On the first attempt a
// token close to expiry is refreshed first.
func (c *SDKClient) outboundToken(ctx context.Context, at attempt) (string, error) {
	token, err := c.store.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	if token == "" {
		return "", nil
	}

	exp, err := c.inspect(token)
	if err != nil {
		c.invalidate(ctx, ReasonMalformedToken)
		return "", nil
	}

	if at == firstAttempt && c.nearExpiry(exp) {
		fresh, err := c.refresher.refresh(ctx, token)
		switch {
		case err == nil:
			return fresh, nil
		case errors.Is(err, ErrSessionExpired):
			return "", nil
		default:
			c.logger.DebugContext(ctx, "early refresh failed, sending current token", "error", err)
		}
	}

	return token, nil
}

// nearExpiry reports whether a token expiring at exp is inside the refresh
// buffer. Unknown expiry never is.
func (c *SDKClient) nearExpiry(exp time.Time) bool {
	if exp.IsZero() || c.refreshBuffer <= 0 {
		return false
	}
	return !c.now().Add(c.refreshBuffer).Before(exp)
}

// recoverFromUnauthorized gets a usable token into the store after a 401 for
// sent. If someone else already replaced sent, nothing needs doing.
func (c *SDKClient) recoverFromUnauthorized(ctx context.Context, sent string) error {
	current, err := c.store.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if current != "" && current != sent {
		return nil
	}

	_, err = c.refresher.refresh(ctx, sent)
	return err
}

func hasBody(req *http.Request) bool {
	return req.Body != nil && req.Body != http.NoBody
}

func stampRequestID(req *http.Request) {
	if req.Header.Get(slogx.RequestIDHeader) == "" {
		req.Header.Set(slogx.RequestIDHeader, idx.New().String())
	}
}

// drainAndClose lets the connection be reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

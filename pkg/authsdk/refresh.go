package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"
)

const refreshKey = "refresh"

// refresher makes sure only one refresh call is in flight. Everyone who
// needs a new token while it runs waits for the same result.
type refresher struct {
	client *SDKClient
	group  singleflight.Group
}

func newRefresher(c *SDKClient) *refresher {
	return &refresher{client: c}
}

// refresh joins (or starts) the shared refresh. sent is the access token the
// caller last used; if the store already holds a different one the refresh
// is skipped. The call itself runs detached from ctx so one caller giving up
// does not fail the others, but each caller stops waiting when its own ctx
// is done.
func (r *refresher) refresh(ctx context.Context, sent string) (string, error) {
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.client.requestTimeout)
		defer cancel()
		return r.client.doRefresh(rctx, sent)
	})

	select {
	case <-ctx.Done():
		return "", &NetworkError{Op: "refresh", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Refresh exchanges the stored refresh token for a new access token and
// writes it through to the store. A rotated refresh token is stored in the
// same batch. If the server rejects the refresh token the session is cleared
// and the error matches ErrSessionExpired; a network failure leaves the
// session alone.
func (c *SDKClient) Refresh(ctx context.Context) (string, error) {
	current, err := c.store.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return c.refresher.refresh(ctx, current)
}

func (c *SDKClient) doRefresh(ctx context.Context, sent string) (token string, err error) {
	ctx, span := c.startSpan(ctx, "refresh")
	defer func() { endSpan(span, err) }()

	// A refresh that finished between the caller's 401 and now already did
	// the work.
	if sent != "" {
		current, err := c.store.AccessToken(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read access token: %w", err)
		}
		if current != "" && current != sent {
			return current, nil
		}
	}

	refreshToken, err := c.store.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refreshToken == "" {
		c.metrics.refresh("missing")
		c.invalidate(ctx, ReasonMissingRefreshToken)
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, ErrNotAuthenticated)
	}

	resp, err := c.doJSON(ctx, "refresh", http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, false, nil)
	if err != nil {
		c.metrics.refresh("network_error")
		return "", err
	}

	var out RefreshResponse
	if err := decodeJSON("refresh", resp, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			c.metrics.refresh("rejected")
			c.invalidate(ctx, ReasonRefreshRejected)
			return "", fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
		}
		c.metrics.refresh("error")
		return "", err
	}

	if out.AccessToken == "" {
		c.metrics.refresh("error")
		return "", fmt.Errorf("%w: refresh response has no access token", ErrUnexpectedResponse)
	}
	if _, err := c.inspect(out.AccessToken); err != nil {
		c.metrics.refresh("error")
		return "", fmt.Errorf("%w: refreshed access token is malformed", ErrUnexpectedResponse)
	}

	// Logout or a new login may have replaced the session while the call
	// was in flight; the write only lands if refreshToken is still current.
	err = c.store.UpdateTokensIf(ctx, refreshToken, out.AccessToken, out.RefreshToken)
	if errors.Is(err, tokenstore.ErrSuperseded) {
		c.metrics.refresh("superseded")
		current, err := c.store.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read session: %w", err)
		}
		if current.RefreshToken == "" || current.AccessToken == "" {
			return "", fmt.Errorf("%w: %w", ErrSessionExpired, ErrNotAuthenticated)
		}
		return current.AccessToken, nil
	}
	if err != nil {
		c.metrics.refresh("error")
		return "", err
	}
	c.metrics.refresh("success")
	c.logger.DebugContext(ctx, "access token refreshed", "rotated", out.RefreshToken != "")

	if _, err := c.reconciler.Reconcile(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to sync session state", "error", err)
	}

	return out.AccessToken, nil
}

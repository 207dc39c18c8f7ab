package authsdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"

	"go.opentelemetry.io/otel/attribute"
)

// LogoutOptions controls Logout.
type LogoutOptions struct {
	// AllDevices asks the server to revoke every session of the user, not
	// just this one.
	AllDevices bool
}

// Logout ends the session. The server is told on a best-effort basis; the
// local session is cleared whatever the server says, even if it cannot be
// reached. Logout publishes no SessionEvent because the caller asked for it.
// The only error is a failure to clear the local store.
func (c *SDKClient) Logout(ctx context.Context, opts LogoutOptions) (err error) {
	ctx, span := c.startSpan(ctx, "logout", attribute.Bool("auth.all_devices", opts.AllDevices))
	defer func() { endSpan(span, err) }()

	creds, readErr := c.store.Read(ctx)
	if readErr != nil {
		c.logger.WarnContext(ctx, "failed to read session before logout", "error", readErr)
	}

	if creds.AccessToken != "" || creds.RefreshToken != "" {
		if remoteErr := c.remoteLogout(ctx, creds, opts); remoteErr != nil {
			c.logger.WarnContext(ctx, "remote logout failed, clearing local session anyway", "error", remoteErr)
		}
	}

	local := context.WithoutCancel(ctx)
	_, clearErr := c.reconciler.clear(local)
	if clearErr != nil {
		return fmt.Errorf("failed to clear session: %w", clearErr)
	}

	c.logger.InfoContext(ctx, "logged out", "all_devices", opts.AllDevices)
	return nil
}

// remoteLogout sends the stored tokens to the server directly. It bypasses
// the interceptor so an expired access token does not trigger a refresh.
func (c *SDKClient) remoteLogout(ctx context.Context, creds tokenstore.Credentials, opts LogoutOptions) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	headers := map[string]string{}
	if creds.AccessToken != "" {
		headers["Authorization"] = "Bearer " + creds.AccessToken
	}

	resp, err := c.doJSON(ctx, "logout", http.MethodPost, "/auth/logout", LogoutRequest{
		RefreshToken: creds.RefreshToken,
		AllDevices:   opts.AllDevices,
	}, false, headers)
	if err != nil {
		return err
	}
	return checkStatus("logout", resp)
}

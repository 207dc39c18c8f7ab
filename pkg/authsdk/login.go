package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Login methods, used as the method label on metrics and spans.
const (
	MethodPassword  = "password"
	MethodRegister  = "register"
	MethodMagicLink = "magic_link"
	MethodOAuth     = "oauth"
	MethodTwoFactor = "2fa"
)

// Login signs in with email and password. The result is a *FullSession
// (already persisted) or a *PendingChallenge when a second factor is
// required, in which case nothing is persisted.
func (c *SDKClient) Login(ctx context.Context, email, password string) (LoginResult, error) {
	req := LoginRequest{Email: email, Password: password}
	if err := req.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	return c.authenticate(ctx, MethodPassword, "/auth/login", req)
}

// Register creates an account and signs in. It returns the same shapes as
// Login.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	return c.authenticate(ctx, MethodRegister, "/auth/register", req)
}

// RequestMagicLink asks the server to email a one-time login link. The
// session is not touched. Calls beyond the client-side limit fail with
// ErrThrottled without reaching the server.
func (c *SDKClient) RequestMagicLink(ctx context.Context, email string) (err error) {
	if err := validateEmail(email); err != nil {
		return err
	}
	if c.magicLimiter != nil && !c.magicLimiter.Allow() {
		return ErrThrottled
	}

	ctx, span := c.startSpan(ctx, "magic_link_request")
	defer func() { endSpan(span, err) }()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.doJSON(ctx, "magic_link_request", http.MethodPost, "/auth/passwordless/request", MagicLinkRequest{Email: email}, false, nil)
	if err != nil {
		return err
	}
	return checkStatus("magic_link_request", resp)
}

// RedeemMagicLink exchanges the one-time token from a magic link for a
// session.
func (c *SDKClient) RedeemMagicLink(ctx context.Context, token string) (LoginResult, error) {
	if err := validateToken("token", token); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, MethodMagicLink, "/auth/passwordless/login", MagicLinkLoginRequest{Token: token})
}

// OAuthLoginURL returns the provider URL to send the user to. Nothing
// changes locally until the callback is completed.
func (c *SDKClient) OAuthLoginURL(ctx context.Context) (_ string, err error) {
	ctx, span := c.startSpan(ctx, "oauth_login_url")
	defer func() { endSpan(span, err) }()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.doJSON(ctx, "oauth_login_url", http.MethodGet, "/auth/oauth/login-url", nil, false, nil)
	if err != nil {
		return "", err
	}

	var out OAuthLoginURLResponse
	if err := decodeJSON("oauth_login_url", resp, &out); err != nil {
		return "", err
	}
	if _, err := url.ParseRequestURI(out.URL); err != nil {
		return "", fmt.Errorf("%w: invalid login url %q", ErrUnexpectedResponse, out.URL)
	}
	return out.URL, nil
}

// CompleteOAuth finishes a redirect login with the authorization code the
// provider returned. It behaves like Login.
func (c *SDKClient) CompleteOAuth(ctx context.Context, code string) (LoginResult, error) {
	if err := validateToken("code", code); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, MethodOAuth, "/auth/oauth/callback", OAuthCallbackRequest{Code: code})
}

// CompleteOAuthCallback is CompleteOAuth for the full callback URL the
// browser landed on. The callback's state must equal expectedState, the
// state carried by the URL from OAuthLoginURL.
func (c *SDKClient) CompleteOAuthCallback(ctx context.Context, callbackURL, expectedState string) (LoginResult, error) {
	cb, err := ParseOAuthCallback(callbackURL)
	if err != nil {
		return nil, err
	}
	if err := cb.CheckState(expectedState); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, MethodOAuth, "/auth/oauth/callback", OAuthCallbackRequest{Code: cb.Code, State: cb.State})
}

// authenticate runs one login-shaped call and persists a full session.
func (c *SDKClient) authenticate(ctx context.Context, method, path string, body any) (res LoginResult, err error) {
	ctx, span := c.startSpan(ctx, "login", attribute.String("auth.method", method))
	defer func() {
		c.metrics.login(method, loginOutcome(res, err))
		endSpan(span, err)
	}()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.doJSON(ctx, method, http.MethodPost, path, body, false, nil)
	if err != nil {
		return nil, err
	}

	res, err = c.decodeLoginResult(method, resp)
	if err != nil {
		return nil, err
	}

	switch r := res.(type) {
	case *FullSession:
		if err := c.establish(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
		c.logger.InfoContext(ctx, "login succeeded", "method", method, "user_id", r.User.ID.String())
	case *PendingChallenge:
		c.logger.InfoContext(ctx, "second factor required", "method", method, "methods", r.Methods)
	}
	return res, nil
}

// decodeLoginResult turns a login-shaped response into a LoginResult. The
// 2FA requirement may arrive as a 200 with requires_2fa or as a 409
// mfa_required.
func (c *SDKClient) decodeLoginResult(op string, resp *http.Response) (LoginResult, error) {
	body, err := readBody(op, resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusConflict {
		var mfa mfaRequiredResponse
		if err := json.Unmarshal(body, &mfa); err == nil && mfa.Error == ErrorCodeMFARequired && mfa.MFAToken != "" {
			return newPendingChallenge(mfa.MFAToken, mfa.MFAMethods, c.now(), c.challengeTTL), nil
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp, body)
	}

	var ar authResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUnexpectedResponse, err)
	}

	if ar.Requires2FA || (ar.TempToken != "" && ar.AccessToken == "") {
		if ar.TempToken == "" {
			return nil, fmt.Errorf("%w: second factor required without a challenge token", ErrUnexpectedResponse)
		}
		ttl := c.challengeTTL
		if server := time.Duration(ar.ExpiresIn) * time.Second; server > 0 && server < ttl {
			ttl = server
		}
		return newPendingChallenge(ar.TempToken, ar.Methods, c.now(), ttl), nil
	}

	if ar.AccessToken == "" || ar.RefreshToken == "" || ar.User == nil {
		return nil, fmt.Errorf("%w: login response is missing tokens or user", ErrUnexpectedResponse)
	}
	if _, err := c.inspect(ar.AccessToken); err != nil {
		return nil, fmt.Errorf("%w: access token is malformed", ErrUnexpectedResponse)
	}

	return &FullSession{
		AccessToken:  ar.AccessToken,
		RefreshToken: ar.RefreshToken,
		User:         *ar.User,
	}, nil
}

func loginOutcome(res LoginResult, err error) string {
	var netErr *NetworkError
	switch {
	case err == nil:
		if _, ok := res.(*PendingChallenge); ok {
			return "challenge"
		}
		return "success"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.As(err, &netErr):
		return "network_error"
	default:
		return "error"
	}
}

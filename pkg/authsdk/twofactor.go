package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pquerna/otp"
	"go.opentelemetry.io/otel/attribute"
)

// VerifySecondFactor completes a login that stopped at a PendingChallenge.
// On success the challenge is consumed and the session persisted. A wrong
// code leaves the challenge usable for another attempt; an exhausted or
// expired challenge becomes unusable.
func (c *SDKClient) VerifySecondFactor(ctx context.Context, ch *PendingChallenge, code string) (fs *FullSession, err error) {
	if ch == nil {
		return nil, fmt.Errorf("%w: nil challenge", ErrInvalidInput)
	}
	if err := validateCode(code); err != nil {
		return nil, err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ch.usableLocked(c.now()); err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, "login", attribute.String("auth.method", MethodTwoFactor))
	defer func() {
		var res LoginResult
		if fs != nil {
			res = fs
		}
		c.metrics.login(MethodTwoFactor, loginOutcome(res, err))
		endSpan(span, err)
	}()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.doJSON(ctx, "2fa_login", http.MethodPost, "/auth/2fa/login", TwoFactorLoginRequest{TempToken: ch.Token, Code: code}, false, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.decodeLoginResult("2fa_login", resp)
	if err != nil {
		if errors.Is(err, ErrTooManyAttempts) || errors.Is(err, ErrChallengeExpired) {
			ch.status = challengeExhausted
		}
		return nil, err
	}

	fs, ok := res.(*FullSession)
	if !ok {
		return nil, fmt.Errorf("%w: second factor answered with another challenge", ErrUnexpectedResponse)
	}
	if err := c.establish(ctx, fs); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	ch.status = challengeConsumed

	c.logger.InfoContext(ctx, "login succeeded", "method", MethodTwoFactor, "user_id", fs.User.ID.String())
	return fs, nil
}

// SetupTwoFactor starts TOTP enrollment for the signed-in user. The
// provisioning URI is parsed so callers get the issuer and account without
// handling otpauth URLs themselves.
func (c *SDKClient) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	var setup TwoFactorSetup
	if err := c.doAuthed(ctx, "2fa_setup", http.MethodPost, "/auth/2fa/setup", nil, &setup); err != nil {
		return nil, err
	}

	key, err := otp.NewKeyFromURL(setup.ProvisioningURI)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid provisioning uri: %v", ErrUnexpectedResponse, err)
	}
	if setup.Secret == "" {
		setup.Secret = key.Secret()
	}
	setup.Issuer = key.Issuer()
	setup.Account = key.AccountName()
	setup.Digits = key.Digits().Length()
	setup.Period = key.Period()

	return &setup, nil
}

// EnableTwoFactor confirms enrollment with a code from the authenticator.
func (c *SDKClient) EnableTwoFactor(ctx context.Context, code string) error {
	if err := validateCode(code); err != nil {
		return err
	}
	return c.doAuthed(ctx, "2fa_verify", http.MethodPost, "/auth/2fa/verify", TwoFactorCodeRequest{Code: code}, nil)
}

// DisableTwoFactor turns 2FA off, proven with a current code.
func (c *SDKClient) DisableTwoFactor(ctx context.Context, code string) error {
	if err := validateCode(code); err != nil {
		return err
	}
	return c.doAuthed(ctx, "2fa_disable", http.MethodPost, "/auth/2fa/disable", TwoFactorCodeRequest{Code: code}, nil)
}

// doAuthed sends a request through the interceptor chain and decodes the
// reply. A 401 that survives the chain is ErrSessionExpired only if the
// chain tore the session down; when the refresh merely failed (server error,
// rate limit) the session stays and the plain *APIError is returned.
func (c *SDKClient) doAuthed(ctx context.Context, op, method, path string, body, target any) error {
	ok, err := c.store.IsAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthenticated
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.doJSON(ctx, op, method, path, body, true, nil)
	if err != nil {
		return err
	}

	err = decodeJSON(op, resp, target)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		still, authErr := c.store.IsAuthenticated(context.WithoutCancel(ctx))
		if authErr == nil && still {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
	}
	return err
}

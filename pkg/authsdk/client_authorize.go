package authsdk

import (
	"crypto/subtle"
	"fmt"
	"net/url"
)

// OAuthCallback is what the provider appended to the redirect URL.
type OAuthCallback struct {
	Code  string
	State string
}

// ParseOAuthCallback extracts the authorization code and state from the URL
// the browser was redirected to. A provider error in the query becomes an
// *APIError so callers can match it like any server error.
//
//	cb, err := authsdk.ParseOAuthCallback("https://app.example.com/callback?code=xyz&state=abc")
func ParseOAuthCallback(callbackURL string) (*OAuthCallback, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse callback URL: %v", ErrInvalidInput, err)
	}

	query := u.Query()

	if errorCode := query.Get("error"); errorCode != "" {
		return nil, &APIError{
			Code:        errorCode,
			Description: query.Get("error_description"),
		}
	}

	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: callback missing authorization code", ErrInvalidInput)
	}

	return &OAuthCallback{Code: code, State: query.Get("state")}, nil
}

// CheckState compares the returned state with the one the caller remembered
// when starting the flow.
func (cb *OAuthCallback) CheckState(expected string) error {
	if expected == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(cb.State), []byte(expected)) != 1 {
		return fmt.Errorf("%w: oauth state mismatch", ErrInvalidInput)
	}
	return nil
}

package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInvalidGrant       = "invalid_grant"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeInvalidCode        = "invalid_code"
	ErrorCodeTooManyAttempts    = "too_many_attempts"
	ErrorCodeChallengeExpired   = "challenge_expired"
	ErrorCodeMFARequired        = "mfa_required"
	ErrorCodeServerError        = "server_error"
)

// ============================================================================
// Sentinels
// ============================================================================

var (
	// ErrInvalidInput is returned before any network call when arguments fail
	// validation.
	ErrInvalidInput = errors.New("authsdk: invalid input")

	// ErrInvalidCredentials matches any APIError for a bad password, one-time
	// token or second-factor code.
	ErrInvalidCredentials = errors.New("authsdk: invalid credentials")

	// ErrTooManyAttempts matches any APIError signalling an exhausted attempt
	// limit.
	ErrTooManyAttempts = errors.New("authsdk: too many attempts")

	// ErrNotAuthenticated is returned by operations that need a session when
	// there is none.
	ErrNotAuthenticated = errors.New("authsdk: not authenticated")

	// ErrSessionExpired reports a hard auth failure: the session was cleared
	// and a fresh login is required.
	ErrSessionExpired = errors.New("authsdk: session expired")

	// ErrChallengeExpired is returned when a pending challenge timed out, was
	// discarded, or was invalidated by the server.
	ErrChallengeExpired = errors.New("authsdk: challenge expired")

	// ErrChallengeConsumed is returned when a pending challenge was already
	// exchanged for a session.
	ErrChallengeConsumed = errors.New("authsdk: challenge already used")

	// ErrThrottled is returned when a client-side rate limit rejects a call.
	ErrThrottled = errors.New("authsdk: throttled")

	// ErrUnexpectedResponse is returned when a 2xx body is missing fields the
	// operation needs.
	ErrUnexpectedResponse = errors.New("authsdk: unexpected response")
)

// ============================================================================
// APIError
// ============================================================================

// APIError is an error response from the auth server.
type APIError struct {
	// StatusCode is the HTTP status code
	StatusCode int `json:"-"`

	// Code is the machine-readable error code (e.g. "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is maps server responses onto the package sentinels so callers can use
// errors.Is without inspecting codes.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		switch e.Code {
		case ErrorCodeInvalidCredentials, ErrorCodeInvalidGrant, ErrorCodeInvalidCode, ErrorCodeInvalidToken:
			return true
		}
		return e.StatusCode == http.StatusUnauthorized
	case ErrTooManyAttempts:
		return e.Code == ErrorCodeTooManyAttempts || e.StatusCode == http.StatusTooManyRequests
	case ErrChallengeExpired:
		return e.Code == ErrorCodeChallengeExpired || e.StatusCode == http.StatusGone
	}
	return false
}

// Temporary reports whether the server failed rather than rejected the
// request. Such failures never clear the session.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// ============================================================================
// NetworkError
// ============================================================================

// NetworkError wraps a transport failure or timeout. The session is left
// untouched whenever one is returned.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("authsdk: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// asNetworkError wraps err unless it already carries a NetworkError.
func asNetworkError(op string, err error) error {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	return &NetworkError{Op: op, Err: err}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse converts a non-2xx response body into an APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	var valErr ValidationErrorResponse
	if err := json.Unmarshal(body, &valErr); err == nil && valErr.Code != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        valErr.Code,
			Description: valErr.Message,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}

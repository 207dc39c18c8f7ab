package authsdk

import (
	"time"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"
)

// UserProfile is the cached user snapshot shared with the token store.
type UserProfile = tokenstore.UserProfile

// UserID is a user id that decodes from a JSON string or number.
type UserID = tokenstore.UserID

// ============================================================================
// Error Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse is the OAuth2-style error body: {"error","error_description"}.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse is the alternate error body: {"code","message"}.
type ValidationErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Login Types
// ============================================================================

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// authResponse is every login-shaped response body. A 2FA requirement is
// signalled with requires_2fa/temp_token instead of the token pair.
type authResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *UserProfile `json:"user"`

	Requires2FA bool     `json:"requires_2fa"`
	TempToken   string   `json:"temp_token"`
	Methods     []string `json:"methods,omitempty"`
	ExpiresIn   int      `json:"expires_in,omitempty"`
}

// mfaRequiredResponse is the 409 Conflict variant of the 2FA requirement.
type mfaRequiredResponse struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description"`
	MFAToken         string   `json:"mfa_token"`
	MFAMethods       []string `json:"mfa_methods"`
}

// MagicLinkRequest is the body of POST /auth/passwordless/request.
type MagicLinkRequest struct {
	Email string `json:"email"`
}

// MagicLinkLoginRequest is the body of POST /auth/passwordless/login.
type MagicLinkLoginRequest struct {
	Token string `json:"token"`
}

// OAuthLoginURLResponse is the body of GET /auth/oauth/login-url.
type OAuthLoginURLResponse struct {
	URL string `json:"url"`
}

// OAuthCallbackRequest is the body of POST /auth/oauth/callback.
type OAuthCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse carries the new access token and, when the server rotates,
// a new refresh token.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// LogoutRequest is the body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	AllDevices   bool   `json:"all_devices,omitempty"`
}

// ============================================================================
// 2FA Types
// ============================================================================

// TwoFactorLoginRequest is the body of POST /auth/2fa/login.
type TwoFactorLoginRequest struct {
	TempToken string `json:"temp_token"`
	Code      string `json:"code"`
}

// TwoFactorCodeRequest is the body of POST /auth/2fa/verify and /auth/2fa/disable.
type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// TwoFactorSetup is the enrollment material from POST /auth/2fa/setup.
// Issuer and Account are parsed out of the provisioning URI.
type TwoFactorSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"otpauth_url"`
	BackupCodes     []string `json:"backup_codes,omitempty"`

	Issuer  string `json:"-"`
	Account string `json:"-"`
	Digits  int    `json:"-"`
	Period  uint64 `json:"-"`
}

// ============================================================================
// Security Types
// ============================================================================

// AccountStatus is the body of GET /security/account-status.
type AccountStatus struct {
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	EmailVerified    bool       `json:"email_verified"`
	Locked           bool       `json:"locked"`
	FailedAttempts   int        `json:"failed_attempts"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	PasswordSet      bool       `json:"password_set"`
}

// AuditLogEntry is one row of GET /security/audit-log.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLogResponse wraps the audit log page.
type AuditLogResponse struct {
	Entries []AuditLogEntry `json:"entries"`
}

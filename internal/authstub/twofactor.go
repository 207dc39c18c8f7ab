package authstub

import (
	"net/http"
	"slices"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/cryptox"
	"github.com/aussiebroadwan/authclient/pkg/httpx"
	"github.com/aussiebroadwan/authclient/pkg/slogx"
)

const backupCodeCount = 8

// newEnrollment generates a TOTP key and a set of backup codes for email.
func (s *Server) newEnrollment(email string) (*otp.Key, []string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: normalizeEmail(email),
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, nil, err
	}

	codes := make([]string, 0, backupCodeCount)
	for range backupCodeCount {
		c, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, c)
	}
	return key, codes, nil
}

// checkSecondFactorLocked accepts a current TOTP code, or spends a backup
// code.
func (s *Server) checkSecondFactorLocked(a *account, code string) bool {
	if a.totpSecret != "" && totp.Validate(code, a.totpSecret) {
		return true
	}
	fp := cryptox.FingerprintToken(code)
	if _, ok := a.backupCodes[fp]; ok {
		delete(a.backupCodes, fp)
		return true
	}
	return false
}

// handleTwoFactorLogin handles POST /auth/2fa/login. A challenge locks after
// MaxCodeAttempts wrong codes and disappears once used.
func (s *Server) handleTwoFactorLogin(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.TwoFactorLoginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := cryptox.FingerprintToken(req.TempToken)
	ch, ok := s.challenges[fp]
	if ok && !s.now().Before(ch.expiresAt) {
		delete(s.challenges, fp)
		ok = false
	}
	if !ok {
		httpx.WriteError(w, http.StatusGone, authsdk.ErrorCodeChallengeExpired, "challenge is invalid or expired")
		return
	}
	if ch.attempts >= s.cfg.MaxCodeAttempts {
		httpx.WriteError(w, http.StatusTooManyRequests, authsdk.ErrorCodeTooManyAttempts, "too many wrong codes, sign in again")
		return
	}

	a, exists := s.accounts[ch.userID]
	if !exists {
		delete(s.challenges, fp)
		httpx.WriteError(w, http.StatusGone, authsdk.ErrorCodeChallengeExpired, "challenge is invalid or expired")
		return
	}

	if !s.checkSecondFactorLocked(a, req.Code) {
		ch.attempts++
		a.failedAttempts++
		s.recordLocked(a.profile.ID.String(), "2fa_failed", r)
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCode, "invalid verification code")
		return
	}

	delete(s.challenges, fp)
	resp, err := s.issueLocked(a, append(slices.Clone(ch.amr), "otp", "mfa"))
	if err != nil {
		log.Error("failed to issue session", "err", err)
		writeServerError(w)
		return
	}
	s.recordLocked(a.profile.ID.String(), "login_2fa", r)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// handleTwoFactorSetup handles POST /auth/2fa/setup. The enrollment only
// takes effect once a code is confirmed at /auth/2fa/verify.
func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	s.mu.Lock()
	a, ok := s.currentAccountLocked(r)
	var email string
	var enabled bool
	if ok {
		email, enabled = a.profile.Email, a.totpSecret != ""
	}
	s.mu.Unlock()

	switch {
	case !ok:
		httpx.WriteBearerError(w, "unknown user")
		return
	case enabled:
		httpx.WriteError(w, http.StatusBadRequest, "mfa_already_enabled", "two-factor authentication is already enabled")
		return
	}

	key, codes, err := s.newEnrollment(email)
	if err != nil {
		log.Error("failed to generate totp key", "err", err)
		writeServerError(w)
		return
	}

	s.mu.Lock()
	a.pendingSecret = key.Secret()
	a.pendingBackup = fingerprintSet(codes)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	})
}

// handleTwoFactorVerify handles POST /auth/2fa/verify.
func (s *Server) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TwoFactorCodeRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.currentAccountLocked(r)
	if !ok {
		httpx.WriteBearerError(w, "unknown user")
		return
	}
	if a.pendingSecret == "" {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "no enrollment in progress")
		return
	}
	// Wrong codes are 400, not 401: the bearer was fine.
	if !totp.Validate(req.Code, a.pendingSecret) {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode, "invalid verification code")
		return
	}

	a.totpSecret, a.backupCodes = a.pendingSecret, a.pendingBackup
	a.pendingSecret, a.pendingBackup = "", nil
	s.recordLocked(a.profile.ID.String(), "2fa_enabled", r)

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication enabled"})
}

// handleTwoFactorDisable handles POST /auth/2fa/disable.
func (s *Server) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TwoFactorCodeRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.currentAccountLocked(r)
	if !ok {
		httpx.WriteBearerError(w, "unknown user")
		return
	}
	if a.totpSecret == "" {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "two-factor authentication is not enabled")
		return
	}
	if !s.checkSecondFactorLocked(a, req.Code) {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode, "invalid verification code")
		return
	}

	a.totpSecret, a.backupCodes = "", nil
	s.recordLocked(a.profile.ID.String(), "2fa_disabled", r)

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

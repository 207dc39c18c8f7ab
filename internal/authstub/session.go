package authstub

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/cryptox"
	"github.com/aussiebroadwan/authclient/pkg/httpx"
	"github.com/aussiebroadwan/authclient/pkg/slogx"
)

// handleRegister handles POST /auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error())
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		log.Error("failed to hash password", "err", err)
		writeServerError(w)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.createLocked(req.Email, req.Name)
	if errors.Is(err, ErrEmailTaken) {
		httpx.WriteError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}
	if err != nil {
		log.Error("failed to create account", "err", err)
		writeServerError(w)
		return
	}
	a.passwordHash = hash
	a.profile.OrganizationID = req.OrganizationID

	resp, err := s.issueLocked(a, []string{"pwd"})
	if err != nil {
		log.Error("failed to issue session", "err", err)
		writeServerError(w)
		return
	}
	s.recordLocked(a.profile.ID.String(), "register", r)

	log.Info("account registered", "user_id", a.profile.ID.String())
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// handleLogin handles POST /auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error())
		return
	}

	s.mu.Lock()
	a, ok := s.accountByEmailLocked(req.Email)
	var hash string
	if ok {
		hash = a.passwordHash
	}
	s.mu.Unlock()

	// Accounts created through OAuth have no password to match.
	if !ok || hash == "" || s.hasher.Verify(req.Password, hash) != nil {
		if ok {
			s.mu.Lock()
			a.failedAttempts++
			s.recordLocked(a.profile.ID.String(), "login_failed", r)
			s.mu.Unlock()
		}
		log.Info("login rejected", "known_user", ok)
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "invalid email or password")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.completeLocked(a, []string{"pwd"})
	if err != nil {
		log.Error("failed to complete login", "err", err)
		writeServerError(w)
		return
	}
	s.recordLocked(a.profile.ID.String(), "login", r)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// handleRefresh handles POST /auth/refresh. With RotateRefresh set the
// presented refresh token is spent and a new one returned.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := cryptox.FingerprintToken(req.RefreshToken)
	g, ok := s.refresh[fp]
	if ok && !s.now().Before(g.expiresAt) {
		delete(s.refresh, fp)
		ok = false
	}
	a, exists := s.accounts[g.userID]
	if req.RefreshToken == "" || !ok || !exists {
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidGrant, "refresh token is invalid or expired")
		return
	}

	access, err := s.mintAccessLocked(a, []string{"pwd"})
	if err != nil {
		log.Error("failed to mint access token", "err", err)
		writeServerError(w)
		return
	}

	resp := authsdk.RefreshResponse{AccessToken: access}
	if s.cfg.RotateRefresh {
		delete(s.refresh, fp)
		if resp.RefreshToken, err = s.mintRefreshLocked(g.userID); err != nil {
			log.Error("failed to rotate refresh token", "err", err)
			writeServerError(w)
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// handleLogout handles POST /auth/logout. It revokes the presented refresh
// token and bearer, or every token of the user when all_devices is set. It
// always answers 204 so it reveals nothing about token validity.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	var userID string
	if raw, ok := bearerToken(r); ok {
		if claims, err := s.verifier.Verify(raw); err == nil {
			userID = claims.Subject
			s.mu.Lock()
			delete(s.access, claims.ID)
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.RefreshToken != "" {
		fp := cryptox.FingerprintToken(req.RefreshToken)
		if g, ok := s.refresh[fp]; ok {
			userID = g.userID
			delete(s.refresh, fp)
		}
	}

	if userID != "" {
		if req.AllDevices {
			deleteGrants(s.access, userID)
			deleteGrants(s.refresh, userID)
		}
		s.recordLocked(userID, "logout", r)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /auth/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, ok := s.currentAccountLocked(r)
	var user authsdk.UserProfile
	if ok {
		user = a.profile
	}
	s.mu.Unlock()

	if !ok {
		httpx.WriteBearerError(w, "unknown user")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user": user})
}

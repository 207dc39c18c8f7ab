package authstub

import (
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/cryptox"
	"github.com/aussiebroadwan/authclient/pkg/httpx"
	"github.com/aussiebroadwan/authclient/pkg/slogx"
)

// handleMagicLinkRequest handles POST /auth/passwordless/request. The reply
// is the same whether or not the email is registered.
func (s *Server) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.MagicLinkRequest
	if !decode(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "email is required")
		return
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		log.Error("failed to generate magic link", "err", err)
		writeServerError(w)
		return
	}

	s.mu.Lock()
	if a, ok := s.accountByEmailLocked(email); ok {
		s.links[cryptox.FingerprintToken(token)] = grant{userID: email, expiresAt: s.now().Add(s.cfg.MagicLinkTTL)}
		s.mailbox[email] = token
		s.recordLocked(a.profile.ID.String(), "magic_link_sent", r)
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address is registered, a sign-in link is on its way",
	})
}

// handleMagicLinkLogin handles POST /auth/passwordless/login. Links are
// single use.
func (s *Server) handleMagicLinkLogin(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.MagicLinkLoginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := cryptox.FingerprintToken(req.Token)
	link, ok := s.links[fp]
	delete(s.links, fp)

	a, exists := s.accountByEmailLocked(link.userID)
	if !ok || !exists || !s.now().Before(link.expiresAt) {
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "sign-in link is invalid or expired")
		return
	}
	a.emailVerified = true

	resp, err := s.completeLocked(a, []string{"link"})
	if err != nil {
		log.Error("failed to complete magic link login", "err", err)
		writeServerError(w)
		return
	}
	s.recordLocked(a.profile.ID.String(), "login_magic_link", r)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// handleOAuthLoginURL handles GET /auth/oauth/login-url.
func (s *Server) handleOAuthLoginURL(w http.ResponseWriter, r *http.Request) {
	u, err := url.Parse(s.cfg.OAuthProvider)
	if err != nil {
		slogx.FromContext(r.Context()).Error("bad oauth provider url", "err", err)
		writeServerError(w)
		return
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", s.cfg.Issuer)
	q.Set("state", cryptox.MustGenerateToken(cryptox.TokenSize128))
	u.RawQuery = q.Encode()

	httpx.WriteJSON(w, http.StatusOK, authsdk.OAuthLoginURLResponse{URL: u.String()})
}

// handleOAuthCallback handles POST /auth/oauth/callback. A code for an
// unknown email signs the user up.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.OAuthCallbackRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp := cryptox.FingerprintToken(req.Code)
	code, ok := s.oauthCodes[fp]
	delete(s.oauthCodes, fp)
	if !ok || !s.now().Before(code.expiresAt) {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidGrant, "authorization code is invalid or expired")
		return
	}

	a, exists := s.accountByEmailLocked(code.userID)
	if !exists {
		var err error
		if a, err = s.createLocked(code.userID, code.userID); err != nil {
			log.Error("failed to create oauth account", "err", err)
			writeServerError(w)
			return
		}
		s.recordLocked(a.profile.ID.String(), "register_oauth", r)
	}
	a.emailVerified = true

	resp, err := s.completeLocked(a, []string{"oauth"})
	if err != nil {
		log.Error("failed to complete oauth login", "err", err)
		writeServerError(w)
		return
	}
	s.recordLocked(a.profile.ID.String(), "login_oauth", r)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

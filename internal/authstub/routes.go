package authstub

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/httpx"
	"github.com/aussiebroadwan/authclient/pkg/slogx"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, slogx.HTTPMiddleware(s.logger), s.countCalls)

	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Endpoints that accept a password or an email are limited per address
	// and email; the ones that accept a one-time token per address only.
	r.Group(func(r chi.Router) {
		r.Use(httpx.RateLimitByIPAndEmail(s.cfg.LoginLimit))
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/passwordless/request", s.handleMagicLinkRequest)
	})
	r.Group(func(r chi.Router) {
		r.Use(httpx.RateLimitByIP(s.cfg.LoginLimit))
		r.Post("/auth/passwordless/login", s.handleMagicLinkLogin)
		r.Post("/auth/oauth/callback", s.handleOAuthCallback)
		r.Post("/auth/2fa/login", s.handleTwoFactorLogin)
	})

	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/oauth/login-url", s.handleOAuthLoginURL)

	r.Group(func(r chi.Router) {
		r.Use(httpx.AuthnMiddleware(s.verifier), s.requireLiveToken)
		r.Get("/auth/me", s.handleMe)
		r.Post("/auth/2fa/setup", s.handleTwoFactorSetup)
		r.Post("/auth/2fa/verify", s.handleTwoFactorVerify)
		r.Post("/auth/2fa/disable", s.handleTwoFactorDisable)
		r.Get("/security/account-status", s.handleAccountStatus)
		r.Get("/security/audit-log", s.handleAuditLog)
	})

	return r
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// requireLiveToken rejects access tokens that verify but were revoked by
// logout or a test hook.
func (s *Server) requireLiveToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		if !ok {
			httpx.WriteBearerError(w, "missing claims")
			return
		}

		s.mu.Lock()
		g, live := s.access[claims.ID]
		_, exists := s.accounts[claims.Subject]
		s.mu.Unlock()

		if !live || !exists || g.userID != claims.Subject {
			httpx.WriteBearerError(w, "token revoked")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// currentAccountLocked returns the account of the authenticated caller.
func (s *Server) currentAccountLocked(r *http.Request) (*account, bool) {
	a, ok := s.accounts[httpx.UserIDFromContext(r.Context())]
	return a, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "malformed JSON body")
		return false
	}
	return true
}

func writeServerError(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "internal server error")
}

func bearerToken(r *http.Request) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	raw = strings.TrimSpace(raw)
	return raw, ok && raw != ""
}

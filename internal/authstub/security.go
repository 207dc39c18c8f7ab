package authstub

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/httpx"
)

const maxAuditLimit = 200

// Accounts with this many failures since their last login report as locked.
const lockoutThreshold = 10

// handleAccountStatus handles GET /security/account-status.
func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.currentAccountLocked(r)
	if !ok {
		httpx.WriteBearerError(w, "unknown user")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.AccountStatus{
		TwoFactorEnabled: a.totpSecret != "",
		EmailVerified:    a.emailVerified,
		Locked:           a.failedAttempts >= lockoutThreshold,
		FailedAttempts:   a.failedAttempts,
		LastLoginAt:      a.lastLoginAt,
		PasswordSet:      a.passwordHash != "",
	})
}

// handleAuditLog handles GET /security/audit-log?limit=N, newest first.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := authsdk.DefaultAuditLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	s.mu.Lock()
	entries := slices.Clone(s.audit[httpx.UserIDFromContext(r.Context())])
	s.mu.Unlock()

	slices.Reverse(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []authsdk.AuditLogEntry{}
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.AuditLogResponse{Entries: entries})
}

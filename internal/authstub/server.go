// Package authstub is an in-memory auth server speaking the REST surface the
// authsdk client consumes. It backs the SDK's end-to-end tests and gives
// authctl something to talk to during local development.
package authstub

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/authsdk"
	"github.com/aussiebroadwan/authclient/pkg/cryptox"
	"github.com/aussiebroadwan/authclient/pkg/httpx"
	"github.com/aussiebroadwan/authclient/pkg/idx"
	"github.com/aussiebroadwan/authclient/pkg/jwtx"
)

var (
	ErrEmailTaken  = errors.New("authstub: email already registered")
	ErrUnknownUser = errors.New("authstub: no such user")
)

type account struct {
	profile        authsdk.UserProfile
	passwordHash   string
	emailVerified  bool
	failedAttempts int
	lastLoginAt    *time.Time

	totpSecret  string
	backupCodes map[string]struct{} // fingerprints

	// enrollment started by /auth/2fa/setup, confirmed by /auth/2fa/verify
	pendingSecret string
	pendingBackup map[string]struct{}
}

type grant struct {
	userID    string
	expiresAt time.Time
}

type challenge struct {
	userID    string
	amr       []string
	expiresAt time.Time
	attempts  int
}

// Server holds every account, token and pending login in memory. All state
// sits behind one mutex.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	signer   *jwtx.HS256Signer
	verifier jwtx.Verifier
	hasher   *cryptox.PasswordHasher
	now      func() time.Time
	handler  http.Handler

	mu         sync.Mutex
	nextID     int
	accounts   map[string]*account // by id
	byEmail    map[string]string   // email -> id
	access     map[string]grant    // jti -> grant
	refresh    map[string]grant    // fingerprint -> grant
	challenges map[string]*challenge
	links      map[string]grant  // fingerprint -> magic link, userID holds the email
	oauthCodes map[string]grant  // fingerprint -> code, userID holds the email
	mailbox    map[string]string // email -> last magic link sent
	audit      map[string][]authsdk.AuditLogEntry
	calls      map[string]int

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a stub with a fresh signing secret and pepper.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	secret, err := cryptox.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	signer, err := jwtx.NewSignerHS256(secret)
	if err != nil {
		return nil, err
	}
	pepper, err := cryptox.RandomBytes(16)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		signer:     signer,
		verifier:   signer.Verifier(cfg.Issuer),
		hasher:     cryptox.NewPasswordHasher(pepper, cfg.hashParams()),
		now:        time.Now,
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		access:     make(map[string]grant),
		refresh:    make(map[string]grant),
		challenges: make(map[string]*challenge),
		links:      make(map[string]grant),
		oauthCodes: make(map[string]grant),
		mailbox:    make(map[string]string),
		audit:      make(map[string][]authsdk.AuditLogEntry),
		calls:      make(map[string]int),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ============================================================================
// Test and development hooks
// ============================================================================

// CreateUser registers an account with a password.
func (s *Server) CreateUser(email, password, name string) (authsdk.UserProfile, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return authsdk.UserProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.createLocked(email, name)
	if err != nil {
		return authsdk.UserProfile{}, err
	}
	a.passwordHash = hash
	return a.profile, nil
}

// EnableTOTP enrolls the account directly and returns the base32 secret.
func (s *Server) EnableTOTP(email string) (string, error) {
	key, codes, err := s.newEnrollment(email)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accountByEmailLocked(email)
	if !ok {
		return "", ErrUnknownUser
	}
	a.totpSecret = key.Secret()
	a.backupCodes = fingerprintSet(codes)
	return a.totpSecret, nil
}

// MagicLink returns the last magic link token "emailed" to email.
func (s *Server) MagicLink(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.mailbox[normalizeEmail(email)]
	return token, ok
}

// IssueOAuthCode plays the identity provider: it returns an authorization
// code that signs in (or signs up) email at /auth/oauth/callback.
func (s *Server) IssueOAuthCode(email string) (string, error) {
	code, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.oauthCodes[cryptox.FingerprintToken(code)] = grant{
		userID:    normalizeEmail(email),
		expiresAt: s.now().Add(s.cfg.MagicLinkTTL),
	}
	return code, nil
}

// ExpireAccessTokens revokes every access token of email while leaving its
// refresh tokens usable, as if they had all reached their expiry.
func (s *Server) ExpireAccessTokens(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEmail[normalizeEmail(email)]; ok {
		deleteGrants(s.access, id)
	}
}

// RevokeSessions revokes every access and refresh token of email.
func (s *Server) RevokeSessions(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEmail[normalizeEmail(email)]; ok {
		deleteGrants(s.access, id)
		deleteGrants(s.refresh, id)
	}
}

// Calls reports how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// ============================================================================
// Internals
// ============================================================================

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) createLocked(email, name string) (*account, error) {
	email = normalizeEmail(email)
	if _, ok := s.byEmail[email]; ok {
		return nil, ErrEmailTaken
	}

	s.nextID++
	now := s.now().UTC().Truncate(time.Second)
	a := &account{
		profile: authsdk.UserProfile{
			ID:        authsdk.UserID(strconv.Itoa(s.nextID)),
			Email:     email,
			Name:      name,
			Role:      "user",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	id := a.profile.ID.String()
	s.accounts[id] = a
	s.byEmail[email] = id
	return a, nil
}

func (s *Server) accountByEmailLocked(email string) (*account, bool) {
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	a, ok := s.accounts[id]
	return a, ok
}

type sessionResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	TokenType    string              `json:"token_type"`
	ExpiresIn    int                 `json:"expires_in"`
	User         authsdk.UserProfile `json:"user"`
}

type challengeResponse struct {
	Requires2FA bool     `json:"requires_2fa"`
	TempToken   string   `json:"temp_token"`
	Methods     []string `json:"methods"`
	ExpiresIn   int      `json:"expires_in"`
}

// mintAccessLocked signs an access token and records its jti as live.
func (s *Server) mintAccessLocked(a *account, amr []string) (string, error) {
	now := s.now()
	claims := jwtx.NewAccessClaims(a.profile.ID.String(), a.profile.Email, a.profile.Role, amr, s.cfg.AccessTTL, s.cfg.Issuer, now)
	token, err := s.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	s.access[claims.ID] = grant{userID: a.profile.ID.String(), expiresAt: now.Add(s.cfg.AccessTTL)}
	return token, nil
}

func (s *Server) mintRefreshLocked(userID string) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	s.refresh[cryptox.FingerprintToken(token)] = grant{userID: userID, expiresAt: s.now().Add(s.cfg.RefreshTTL)}
	return token, nil
}

// issueLocked completes a login: a fresh token pair and a reset failure count.
func (s *Server) issueLocked(a *account, amr []string) (sessionResponse, error) {
	access, err := s.mintAccessLocked(a, amr)
	if err != nil {
		return sessionResponse{}, err
	}
	refresh, err := s.mintRefreshLocked(a.profile.ID.String())
	if err != nil {
		return sessionResponse{}, err
	}

	now := s.now().UTC()
	a.lastLoginAt = &now
	a.failedAttempts = 0

	return sessionResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
		User:         a.profile,
	}, nil
}

// challengeLocked parks a login behind the second factor.
func (s *Server) challengeLocked(a *account, amr []string) (challengeResponse, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return challengeResponse{}, err
	}
	s.challenges[cryptox.FingerprintToken(token)] = &challenge{
		userID:    a.profile.ID.String(),
		amr:       amr,
		expiresAt: s.now().Add(s.cfg.ChallengeTTL),
	}
	return challengeResponse{
		Requires2FA: true,
		TempToken:   token,
		Methods:     []string{"totp", "backup_code"},
		ExpiresIn:   int(s.cfg.ChallengeTTL.Seconds()),
	}, nil
}

// completeLocked either issues a session or, for 2FA accounts, a challenge.
func (s *Server) completeLocked(a *account, amr []string) (any, error) {
	if a.totpSecret != "" {
		return s.challengeLocked(a, amr)
	}
	return s.issueLocked(a, amr)
}

func (s *Server) recordLocked(userID, event string, r *http.Request) {
	s.audit[userID] = append(s.audit[userID], authsdk.AuditLogEntry{
		ID:        idx.New().String(),
		Event:     event,
		IPAddress: httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
		CreatedAt: s.now().UTC(),
	})
}

func deleteGrants(m map[string]grant, userID string) {
	for k, g := range m {
		if g.userID == userID {
			delete(m, k)
		}
	}
}

func fingerprintSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[cryptox.FingerprintToken(c)] = struct{}{}
	}
	return set
}

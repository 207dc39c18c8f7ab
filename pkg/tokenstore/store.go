package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Keys under which the session fields are persisted. Each key carries its own
// expiry.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyUser          = "user"
	KeyAuthenticated = "authenticated"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser, KeyAuthenticated}

// Default expiries. These are policy, not protocol.
const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("tokenstore: closed")

	// ErrSuperseded is returned by UpdateTokensIf when the refresh token it
	// expected has been replaced or cleared.
	ErrSuperseded = errors.New("tokenstore: session superseded")
)

// Entry is a single key/value pair with its own expiry.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// Backend is the durable key/value layer underneath a Store. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Load returns the value for key. Missing or expired keys return ok=false
	// and a nil error.
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)

	// LoadAll returns the live values of keys as one consistent snapshot.
	// Missing or expired keys are left out of the map.
	LoadAll(ctx context.Context, keys ...string) (map[string][]byte, error)

	// SaveAll writes every entry as one unit. An entry with a nil Value
	// deletes its key. Readers must not observe a partially applied batch.
	SaveAll(ctx context.Context, entries []Entry) error

	// CompareAndSave applies entries like SaveAll only if the live value of
	// key equals expected at the moment of writing. It reports whether the
	// batch was applied.
	CompareAndSave(ctx context.Context, key string, expected []byte, entries []Entry) (bool, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Policy holds the per-key lifetimes.
type Policy struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultPolicy returns the standard 1 day / 7 day policy.
func DefaultPolicy() Policy {
	return Policy{
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
	}
}

// Store persists Credentials on top of a Backend. It is an explicit value so
// that callers can hand a memory-backed instance to tests.
type Store struct {
	backend Backend
	policy  Policy
	now     func() time.Time

	// mu serialises multi-key writes issued through this Store so that a
	// refresh-in-place and a full write cannot interleave.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy overrides the per-key expiries. Zero durations keep the default.
func WithPolicy(p Policy) Option {
	return func(s *Store) {
		if p.AccessTTL > 0 {
			s.policy.AccessTTL = p.AccessTTL
		}
		if p.RefreshTTL > 0 {
			s.policy.RefreshTTL = p.RefreshTTL
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on top of backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		policy:  DefaultPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write persists all four keys in one batch. Absent fields are deleted in the
// same batch so a reader never sees a stale token next to a fresh one.
func (s *Store) Write(ctx context.Context, c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	accessExp := now.Add(s.policy.AccessTTL)
	refreshExp := now.Add(s.policy.RefreshTTL)

	entries := make([]Entry, 0, len(allKeys))

	entry := Entry{Key: KeyAccessToken}
	if c.AccessToken != "" {
		entry.Value, entry.ExpiresAt = []byte(c.AccessToken), accessExp
	}
	entries = append(entries, entry)

	entry = Entry{Key: KeyRefreshToken}
	if c.RefreshToken != "" {
		entry.Value, entry.ExpiresAt = []byte(c.RefreshToken), refreshExp
	}
	entries = append(entries, entry)

	entry = Entry{Key: KeyUser}
	if c.User != nil {
		raw, err := json.Marshal(c.User)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		entry.Value, entry.ExpiresAt = raw, refreshExp
	}
	entries = append(entries, entry)

	flag := []byte("false")
	if c.Authenticated() {
		flag = []byte("true")
	}
	entries = append(entries, Entry{Key: KeyAuthenticated, Value: flag, ExpiresAt: refreshExp})

	if err := s.backend.SaveAll(ctx, entries); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// UpdateTokens replaces the access token in place. A non-empty refresh token
// (server-side rotation) is written in the same batch. The user is untouched.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return errors.New("tokenstore: empty access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.SaveAll(ctx, s.tokenEntries(accessToken, refreshToken)); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

// UpdateTokensIf is UpdateTokens for a refresh that spent expectedRefresh.
// If a logout or another login replaced that token in the meantime nothing
// is written and ErrSuperseded is returned.
func (s *Store) UpdateTokensIf(ctx context.Context, expectedRefresh, accessToken, refreshToken string) error {
	if accessToken == "" {
		return errors.New("tokenstore: empty access token")
	}
	if expectedRefresh == "" {
		return ErrSuperseded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.backend.CompareAndSave(ctx, KeyRefreshToken, []byte(expectedRefresh), s.tokenEntries(accessToken, refreshToken))
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	if !ok {
		return ErrSuperseded
	}
	return nil
}

func (s *Store) tokenEntries(accessToken, refreshToken string) []Entry {
	now := s.now()
	entries := []Entry{
		{Key: KeyAccessToken, Value: []byte(accessToken), ExpiresAt: now.Add(s.policy.AccessTTL)},
	}
	if refreshToken != "" {
		entries = append(entries, Entry{
			Key:       KeyRefreshToken,
			Value:     []byte(refreshToken),
			ExpiresAt: now.Add(s.policy.RefreshTTL),
		})
	}
	return entries
}

// UpdateUser replaces the cached user profile.
func (s *Store) UpdateUser(ctx context.Context, u UserProfile) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend.SaveAll(ctx, []Entry{
		{Key: KeyUser, Value: raw, ExpiresAt: s.now().Add(s.policy.RefreshTTL)},
	})
}

// Read returns whatever is currently persisted, taken from one snapshot so
// a concurrent Write is seen either entirely or not at all. Missing, expired
// and undecodable fields come back absent rather than as errors.
func (s *Store) Read(ctx context.Context) (Credentials, error) {
	vals, err := s.backend.LoadAll(ctx, KeyAccessToken, KeyRefreshToken, KeyUser)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	c := Credentials{
		AccessToken:  string(vals[KeyAccessToken]),
		RefreshToken: string(vals[KeyRefreshToken]),
	}
	if raw, ok := vals[KeyUser]; ok {
		var u UserProfile
		if err := json.Unmarshal(raw, &u); err == nil {
			c.User = &u
		}
	}
	return c, nil
}

// AccessToken returns the stored access token or "".
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.loadString(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token or "".
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.loadString(ctx, KeyRefreshToken)
}

func (s *Store) loadString(ctx context.Context, key string) (string, error) {
	v, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return string(v), nil
}

// Clear removes all four keys.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, allKeys...); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether access token, refresh token and user are all
// present. Existence only; tokens are not parsed here.
func (s *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	c, err := s.Read(ctx)
	if err != nil {
		return false, err
	}
	return c.Authenticated(), nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

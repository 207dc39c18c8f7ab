package authsdk

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/tokenstore"
)

// SessionState is the in-memory view of the session that the rest of the
// application reads. Authenticated is true only when both tokens and the
// user are present.
type SessionState struct {
	Authenticated bool
	User          *UserProfile
	AccessToken   string
	RefreshToken  string

	// ExpiresAt is the access token's exp claim when it could be read,
	// otherwise zero.
	ExpiresAt time.Time
}

func (s SessionState) equal(o SessionState) bool {
	return tokenstore.Credentials{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, User: s.User}.
		Equal(tokenstore.Credentials{AccessToken: o.AccessToken, RefreshToken: o.RefreshToken, User: o.User}) &&
		s.Authenticated == o.Authenticated &&
		s.ExpiresAt.Equal(o.ExpiresAt)
}

func (s SessionState) clone() SessionState {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// stateFromCredentials derives the container value from a store record.
func stateFromCredentials(c tokenstore.Credentials, expiresAt time.Time) SessionState {
	return SessionState{
		Authenticated: c.Authenticated(),
		User:          c.User,
		AccessToken:   c.AccessToken,
		RefreshToken:  c.RefreshToken,
		ExpiresAt:     expiresAt,
	}.clone()
}

// State is the observable session container. Subscribers receive the latest
// value after every change; intermediate values may be skipped.
type State struct {
	mu   sync.RWMutex
	cur  SessionState
	next int
	subs map[int]chan SessionState
}

// NewState returns an unauthenticated container.
func NewState() *State {
	return &State{subs: make(map[int]chan SessionState)}
}

// Snapshot returns a copy of the current value.
func (s *State) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// Authenticated is shorthand for Snapshot().Authenticated.
func (s *State) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Authenticated
}

// Subscribe returns a channel that receives the current value immediately
// and then every subsequent change. Call cancel to stop.
func (s *State) Subscribe() (<-chan SessionState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan SessionState, 1)
	ch <- s.cur.clone()
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// set replaces the value and notifies subscribers. It reports whether
// anything changed.
func (s *State) set(v SessionState) bool {
	v = v.clone()
	v.Authenticated = v.AccessToken != "" && v.RefreshToken != "" && v.User != nil

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.equal(v) {
		return false
	}
	s.cur = v

	for _, ch := range s.subs {
		// Replace any unread value with the newest one.
		select {
		case ch <- v.clone():
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v.clone():
			default:
			}
		}
	}
	return true
}

func (s *State) reset() bool {
	return s.set(SessionState{})
}

package authsdk

import (
	"sync"
	"time"
)

// LoginResult is what every login operation returns: either a *FullSession
// or a *PendingChallenge. No other type implements it.
//
//	switch r := res.(type) {
//	case *authsdk.FullSession:
//	    // signed in
//	case *authsdk.PendingChallenge:
//	    // prompt for a code, then VerifySecondFactor(ctx, r, code)
//	}
type LoginResult interface {
	loginResult()
}

// FullSession is a completed login. It has already been written to the
// token store by the time it is returned.
type FullSession struct {
	AccessToken  string
	RefreshToken string
	User         UserProfile
}

func (*FullSession) loginResult() {}

type challengeStatus int

const (
	challengePending challengeStatus = iota
	challengeConsumed
	challengeDiscarded
	challengeExhausted
)

// PendingChallenge is a first-factor success awaiting a second factor. It
// lives only in memory and is never persisted.
type PendingChallenge struct {
	// Token is the temporary token the server issued for this challenge
	Token string

	// Methods lists the accepted second factors (e.g. ["totp", "backup_code"])
	Methods []string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// mu is held for the whole of a verification so a challenge cannot be
	// redeemed twice concurrently.
	mu     sync.Mutex
	status challengeStatus
}

func (*PendingChallenge) loginResult() {}

func newPendingChallenge(token string, methods []string, now time.Time, ttl time.Duration) *PendingChallenge {
	if len(methods) == 0 {
		methods = []string{"totp"}
	}
	return &PendingChallenge{
		Token:     token,
		Methods:   methods,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Discard abandons the challenge. Later verification attempts fail with
// ErrChallengeExpired.
func (p *PendingChallenge) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == challengePending {
		p.status = challengeDiscarded
	}
}

// Valid reports whether the challenge can still be verified at now.
func (p *PendingChallenge) Valid(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usableLocked(now) == nil
}

func (p *PendingChallenge) usableLocked(now time.Time) error {
	switch p.status {
	case challengeConsumed:
		return ErrChallengeConsumed
	case challengeDiscarded, challengeExhausted:
		return ErrChallengeExpired
	}
	if !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt) {
		return ErrChallengeExpired
	}
	return nil
}

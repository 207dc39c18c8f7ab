package authsdk

import (
	"log/slog"
	"sync"
	"time"
)

// InvalidationReason says why a session was torn down.
type InvalidationReason string

const (
	// ReasonRefreshRejected: the server refused the refresh token.
	ReasonRefreshRejected InvalidationReason = "refresh_rejected"

	// ReasonRetryRejected: the retried request was unauthorized again.
	ReasonRetryRejected InvalidationReason = "retry_rejected"

	// ReasonMissingRefreshToken: a refresh was needed but none was stored.
	ReasonMissingRefreshToken InvalidationReason = "missing_refresh_token"

	// ReasonMalformedToken: the stored access token could not be parsed.
	ReasonMalformedToken InvalidationReason = "malformed_token"
)

// SessionEvent is broadcast on every hard auth failure.
type SessionEvent struct {
	Reason InvalidationReason
	At     time.Time
}

// eventBuffer is how many undelivered events a subscriber may hold before
// newer ones are dropped.
const eventBuffer = 8

// Events fans session-invalidated signals out to subscribers. Publishing
// never blocks on a slow subscriber.
type Events struct {
	logger *slog.Logger

	mu   sync.Mutex
	next int
	subs map[int]chan SessionEvent
}

func newEvents(logger *slog.Logger) *Events {
	return &Events{
		logger: logger,
		subs:   make(map[int]chan SessionEvent),
	}
}

// Subscribe registers a listener. Call cancel to unsubscribe; the channel is
// closed afterwards.
func (e *Events) Subscribe() (<-chan SessionEvent, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.next
	e.next++
	ch := make(chan SessionEvent, eventBuffer)
	e.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (e *Events) publish(ev SessionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Warn("session event dropped for slow subscriber",
				"subscriber", id,
				"reason", string(ev.Reason),
			)
		}
	}
}

package tokenstore

import (
	"bytes"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend. Nothing survives a restart, which
// makes it the natural choice for tests and throwaway CLI sessions.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
	closed  bool
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source used for expiry checks.
func (m *MemoryBackend) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Load returns a copy of the stored value if present and not expired.
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	v, ok := m.liveLocked(key)
	return v, ok, nil
}

// LoadAll copies every live key under one read lock.
func (m *MemoryBackend) LoadAll(_ context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.liveLocked(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// liveLocked returns a copy of key's value unless it is missing or expired.
func (m *MemoryBackend) liveLocked(key string) ([]byte, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		return nil, false
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// SaveAll applies the batch under a single lock.
func (m *MemoryBackend) SaveAll(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.applyLocked(entries)
	return nil
}

// CompareAndSave checks key and applies the batch under the same lock.
func (m *MemoryBackend) CompareAndSave(_ context.Context, key string, expected []byte, entries []Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}
	current, ok := m.liveLocked(key)
	if !ok || !bytes.Equal(current, expected) {
		return false, nil
	}
	m.applyLocked(entries)
	return true, nil
}

func (m *MemoryBackend) applyLocked(entries []Entry) {
	for _, e := range entries {
		if e.Value == nil {
			delete(m.entries, e.Key)
			continue
		}
		value := make([]byte, len(e.Value))
		copy(value, e.Value)
		m.entries[e.Key] = memoryEntry{value: value, expiresAt: e.ExpiresAt}
	}
}

// Delete removes keys.
func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close drops all entries. Further calls fail with ErrClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.entries = nil
	return nil
}

// NewMemory returns a Store on a fresh MemoryBackend.
func NewMemory(opts ...Option) *Store {
	return New(NewMemoryBackend(), opts...)
}

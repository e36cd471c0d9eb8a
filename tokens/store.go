// Package tokens persists the access/refresh token pair that backs the
// client session. The pair is always read and written as a unit so no
// observer can see one token updated while the other is stale.
package tokens

import "sync"

// Store holds the token pair. Implementations must guarantee that Pair
// observes the two tokens as they were last set together: SetPair and Clear
// are atomic with respect to readers.
type Store interface {
	// Pair returns the current tokens. Empty strings mean "not held".
	Pair() (access, refresh string)

	// SetPair replaces both tokens together (login, registration).
	SetPair(access, refresh string) error

	// SetAccess replaces only the access token (successful refresh). The
	// refresh token is left untouched.
	SetAccess(access string) error

	// Clear removes both tokens (logout, refresh failure).
	Clear() error
}

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// ephemeral sessions that should not touch disk.
type MemoryStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Pair implements Store.
func (s *MemoryStore) Pair() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.refresh
}

// SetPair implements Store.
func (s *MemoryStore) SetPair(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	return nil
}

// SetAccess implements Store.
func (s *MemoryStore) SetAccess(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	return nil
}

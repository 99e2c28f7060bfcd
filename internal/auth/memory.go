package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	session  Session
	lastSeen time.Time
}

// MemoryStore keeps sessions in a mutex-guarded map. Entries idle for
// longer than the TTL are treated as missing and removed by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*memoryEntry
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*memoryEntry),
		now:      time.Now,
	}
}

// Create issues a new token for userID.
func (s *MemoryStore) Create(_ context.Context, userID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := Session{Token: newToken(), UserID: userID, CreatedAt: now}
	s.sessions[sess.Token] = &memoryEntry{session: sess, lastSeen: now}
	return &sess, nil
}

// Lookup resolves a token and refreshes its idle timer.
func (s *MemoryStore) Lookup(_ context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	now := s.now()
	if now.Sub(entry.lastSeen) > s.ttl {
		delete(s.sessions, token)
		return nil, nil
	}
	entry.lastSeen = now
	sess := entry.session
	return &sess, nil
}

// Revoke deletes a token. Unknown tokens are ignored.
func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, entry := range s.sessions {
		if now.Sub(entry.lastSeen) > s.ttl {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired sessions every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					slog.Debug("Session janitor removed expired sessions", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close drops all sessions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*memoryEntry)
	return nil
}

var _ SessionStore = (*MemoryStore)(nil)

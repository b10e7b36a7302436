package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wellnest-io/chat-client/internal/log"
)

const keyPrefix = "chat_session_id"

// IdentityStore owns the durable session identifier for each user.
// Exactly one id is active per user; rotating it starts a fresh
// server-side history scope.
//
// If the durable backend fails, the store drops to an in-memory
// fallback for the rest of the process and reports the degradation
// via Degraded() and a warning log. Continuity is lost on restart in
// that mode, never silently.
type IdentityStore struct {
	store    Store
	fallback *MemoryStore

	mu       sync.Mutex
	degraded bool
}

func NewIdentityStore(store Store) *IdentityStore {
	return &IdentityStore{
		store:    store,
		fallback: NewMemoryStore(),
	}
}

// Degraded reports whether the store has fallen back to in-memory
// identifiers.
func (s *IdentityStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func userKey(userID string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, userID)
}

// GetOrCreate returns the stored session id for userID, creating and
// persisting a new one if none exists.
func (s *IdentityStore) GetOrCreate(ctx context.Context, userID string) (string, error) {
	store := s.active()
	key := userKey(userID)

	id, err := store.Get(ctx, key)
	if err == nil {
		return id, nil
	}
	if err != ErrNotFound {
		store = s.degrade(err)
		if id, err := store.Get(ctx, key); err == nil {
			return id, nil
		}
	}

	id = newSessionID()
	if err := store.Set(ctx, key, id); err != nil {
		store = s.degrade(err)
		if err := store.Set(ctx, key, id); err != nil {
			return "", fmt.Errorf("failed to persist session id: %w", err)
		}
	}
	return id, nil
}

// Reset deletes the stored id for userID and creates a fresh one,
// invalidating conversation continuity.
func (s *IdentityStore) Reset(ctx context.Context, userID string) (string, error) {
	store := s.active()
	key := userKey(userID)

	if err := store.Delete(ctx, key); err != nil {
		store = s.degrade(err)
		store.Delete(ctx, key)
	}
	return s.GetOrCreate(ctx, userID)
}

func (s *IdentityStore) active() Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return s.fallback
	}
	return s.store
}

func (s *IdentityStore) degrade(cause error) Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		s.degraded = true
		l := log.L()
		l.Warn().Err(cause).Msg("session store unavailable, falling back to in-memory ids")
	}
	return s.fallback
}

// newSessionID combines a wall-clock timestamp with a random suffix so
// concurrent tabs for the same user cannot collide.
func newSessionID() string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("sess-%d-%s", time.Now().UnixMilli(), suffix)
}

package sessionstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-engine/internal/domain"
)

// MemoryStore is an in-process Store with the same TTL semantics as Redis.
type MemoryStore struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[string]memEntry
}

type memEntry struct {
	snap    domain.SessionSnapshot
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{ttl: ttl, now: time.Now, m: make(map[string]memEntry)}
}

func (s *MemoryStore) Save(ctx context.Context, snap domain.SessionSnapshot) error {
	id := strings.TrimSpace(snap.SessionID)
	if id == "" {
		return ErrEmptySessionID
	}
	snap.Moves = append([]string(nil), snap.Moves...)
	s.mu.Lock()
	s.m[id] = memEntry{snap: snap, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*domain.SessionSnapshot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.m, id)
		return nil, nil
	}
	snap := e.snap
	snap.Moves = append([]string(nil), e.snap.Moves...)
	return &snap, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.m, strings.TrimSpace(id))
	s.mu.Unlock()
	return nil
}

package gamerecord

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/cheese-engine/internal/domain"
)

// memrepo keeps records in process memory; used when no database is configured.
type memrepo struct {
	mu    sync.RWMutex
	games []*domain.GameRecord
	byID  map[string]struct{}
}

func NewMemoryRepository() Repository {
	return &memrepo{byID: make(map[string]struct{})}
}

func (m *memrepo) Insert(ctx context.Context, rec *domain.GameRecord) error {
	if rec == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byID[rec.ID]; dup {
		return ErrDuplicateGame
	}
	cp := *rec
	cp.MovesUCI = append([]string(nil), rec.MovesUCI...)
	cp.MovesSAN = append([]string(nil), rec.MovesSAN...)
	m.games = append(m.games, &cp)
	m.byID[rec.ID] = struct{}{}
	return nil
}

func (m *memrepo) Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 || limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	m.mu.RLock()
	out := make([]*domain.GameRecord, 0, len(m.games))
	for _, g := range m.games {
		cp := *g
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package store

import (
	"context"
	"sort"
	"sync"

	"magabot/internal/models"
)

// MemoryRepository keeps everything in process memory. Used in tests and
// single-instance deployments without a database.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	cases    map[string]*models.Case
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
		cases:    make(map[string]*models.Case),
	}
}

func (m *MemoryRepository) GetSession(_ context.Context, userID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryRepository) SaveSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s.Clone()
	return nil
}

func (m *MemoryRepository) GetCase(_ context.Context, id string) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryRepository) SaveCase(_ context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepository) ListActiveCases(_ context.Context) ([]*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Case
	for _, c := range m.cases {
		if c.Active() {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListUserCases(_ context.Context, userID string, limit int) ([]*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Case
	for _, c := range m.cases {
		if c.UserID == userID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) Close(context.Context) error { return nil }

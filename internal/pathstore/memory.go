package pathstore

import (
	"context"
	"sync"
	"time"

	"github.com/terra-clan/mot-engine/internal/models"
)

// MemoryStore keeps paths in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	paths map[string]*models.PlayerPath
	index map[string]string // playerKey -> path ID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		paths: make(map[string]*models.PlayerPath),
		index: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, path *models.PlayerPath) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := playerKey(path.SessionCode, path.Username)
	if _, ok := s.index[key]; ok {
		return ErrExists
	}
	if _, ok := s.paths[path.ID]; ok {
		return ErrExists
	}
	s.paths[path.ID] = path.Clone()
	s.index[key] = path.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.PlayerPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.paths[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Lookup(ctx context.Context, sessionCode, username string) (*models.PlayerPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.index[playerKey(sessionCode, username)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.paths[id].Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, path *models.PlayerPath) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paths[path.ID]; !ok {
		return ErrNotFound
	}
	s.paths[path.ID] = path.Clone()
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, p := range s.paths {
		if !p.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.paths, id)
		delete(s.index, playerKey(p.SessionCode, p.Username))
		removed++
	}
	return removed, nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Len returns the number of stored paths
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

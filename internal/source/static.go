package source

import (
	"context"
	"fmt"
	"sync"
)

// StaticMetadataStore is an in-memory MetadataStore seeded up front. It
// backs tests and deployments where the repository set is declared rather
// than discovered.
type StaticMetadataStore struct {
	mu    sync.RWMutex
	repos map[string]*Repository
}

// NewStaticMetadataStore creates a store seeded with the given repositories.
func NewStaticMetadataStore(repos ...*Repository) *StaticMetadataStore {
	s := &StaticMetadataStore{repos: make(map[string]*Repository, len(repos))}
	for _, repo := range repos {
		s.repos[repo.ID] = repo
	}
	return s
}

// Put adds or replaces a repository.
func (s *StaticMetadataStore) Put(repo *Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repo.ID] = repo
}

// GetByID resolves a repository by ID.
func (s *StaticMetadataStore) GetByID(_ context.Context, id string) (*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
	}
	return repo, nil
}

var _ MetadataStore = (*StaticMetadataStore)(nil)

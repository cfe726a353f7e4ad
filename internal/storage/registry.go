package storage

import (
	"context"
	"sync"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
	"github.com/pearmediallc/creative-library-analytics/internal/owners"
)

// RegistrySource loads the owner registry snapshot for a correlation
// run. The snapshot is read-only for the duration of the run; owners
// are looked up, never created, by the analytics core.
type RegistrySource interface {
	LoadRegistry(ctx context.Context) (*owners.Registry, error)
}

// InMemoryRegistrySource serves a fixed owner list. Used in tests and
// when PostgreSQL is unavailable.
type InMemoryRegistrySource struct {
	mu   sync.RWMutex
	list []models.Owner
}

// NewInMemoryRegistrySource creates a registry source over a static list.
func NewInMemoryRegistrySource(list []models.Owner) *InMemoryRegistrySource {
	return &InMemoryRegistrySource{list: list}
}

// LoadRegistry builds a fresh registry snapshot from the current list.
func (s *InMemoryRegistrySource) LoadRegistry(_ context.Context) (*owners.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return owners.NewRegistry(s.list), nil
}

// Replace swaps the owner list.
func (s *InMemoryRegistrySource) Replace(list []models.Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = list
}

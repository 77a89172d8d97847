package cache

import (
	"context"
	"sync"

	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

// MemoryTierStore keeps tier snapshots in process. Used for single-instance
// deployments and tests.
type MemoryTierStore struct {
	mu        sync.RWMutex
	snapshots map[string]*models.TierSnapshot
}

func NewMemoryTierStore() *MemoryTierStore {
	return &MemoryTierStore{snapshots: make(map[string]*models.TierSnapshot)}
}

func (s *MemoryTierStore) Get(_ context.Context, userID string, tier models.CacheTier) (*models.TierSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[tierKey(userID, tier)], nil
}

func (s *MemoryTierStore) Set(_ context.Context, userID string, tier models.CacheTier, snapshot *models.TierSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[tierKey(userID, tier)] = snapshot
	return nil
}

func (s *MemoryTierStore) Delete(_ context.Context, userID string, tier models.CacheTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, tierKey(userID, tier))
	return nil
}

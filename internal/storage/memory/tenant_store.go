package memory

import (
	"context"
	"sort"
	"sync"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage"
)

// TenantStore is an in-memory implementation of storage.TenantStore.
type TenantStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Tenant
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		data: make(map[string]*domain.Tenant),
	}
}

// Ensure provisions a tenant if it does not exist.
func (s *TenantStore) Ensure(_ context.Context, tenantID string, createdAt int64) (bool, error) {
	if tenantID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[tenantID]; exists {
		return false, nil
	}
	s.data[tenantID] = &domain.Tenant{ID: tenantID, CreatedAt: createdAt}
	return true, nil
}

// Exists reports whether a tenant has been provisioned.
func (s *TenantStore) Exists(_ context.Context, tenantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[tenantID]
	return ok, nil
}

// List returns all tenant ids in ascending order.
func (s *TenantStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ storage.TenantStore = (*TenantStore)(nil)

package memory

import (
	"context"
	"sort"
	"sync"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage"
)

// TouchpointStore is an in-memory implementation of storage.TouchpointStore.
type TouchpointStore struct {
	mu      sync.RWMutex
	seq     int64
	data    map[pairKey]*domain.Touchpoint // (tenant, touchpoint_id)
	orders  map[pairKey]string             // (tenant, order_id) -> touchpoint_id
	byIdent map[pairKey][]*domain.Touchpoint
	byTen   map[string][]*domain.Touchpoint
}

// NewTouchpointStore creates a new in-memory touchpoint store.
func NewTouchpointStore() *TouchpointStore {
	return &TouchpointStore{
		data:    make(map[pairKey]*domain.Touchpoint),
		orders:  make(map[pairKey]string),
		byIdent: make(map[pairKey][]*domain.Touchpoint),
		byTen:   make(map[string][]*domain.Touchpoint),
	}
}

type pairKey [2]string

func compositeKey(a, b string) pairKey {
	return pairKey{a, b}
}

// Insert appends a touchpoint and assigns its Seq.
func (s *TouchpointStore) Insert(_ context.Context, tp *domain.Touchpoint) error {
	if tp == nil || tp.TenantID == "" || tp.TouchpointID == "" {
		return storage.ErrInvalidInput
	}

	key := compositeKey(tp.TenantID, tp.TouchpointID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	if tp.IsConversion() && tp.OrderID != "" {
		if _, exists := s.orders[compositeKey(tp.TenantID, tp.OrderID)]; exists {
			return storage.ErrDuplicateOrder
		}
	}

	s.seq++
	tp.Seq = s.seq

	stored := tp.Clone()
	s.data[key] = stored
	if stored.IsConversion() && stored.OrderID != "" {
		s.orders[compositeKey(stored.TenantID, stored.OrderID)] = stored.TouchpointID
	}
	identKey := compositeKey(stored.TenantID, stored.IdentityKey())
	s.byIdent[identKey] = append(s.byIdent[identKey], stored)
	s.byTen[stored.TenantID] = append(s.byTen[stored.TenantID], stored)
	return nil
}

// GetByID retrieves a touchpoint by tenant and id.
func (s *TouchpointStore) GetByID(_ context.Context, tenantID, touchpointID string) (*domain.Touchpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tp, ok := s.data[compositeKey(tenantID, touchpointID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return tp.Clone(), nil
}

// GetConversionByOrderID retrieves the conversion recorded for an order.
func (s *TouchpointStore) GetConversionByOrderID(_ context.Context, tenantID, orderID string) (*domain.Touchpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.orders[compositeKey(tenantID, orderID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.data[compositeKey(tenantID, id)].Clone(), nil
}

// GetByIdentity retrieves an identity's touchpoints within [start, end] (inclusive).
func (s *TouchpointStore) GetByIdentity(_ context.Context, tenantID, identityKey string, start, end int64) ([]*domain.Touchpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Touchpoint
	for _, tp := range s.byIdent[compositeKey(tenantID, identityKey)] {
		if tp.OccurredAt >= start && tp.OccurredAt <= end {
			result = append(result, tp.Clone())
		}
	}

	sortTouchpoints(result)
	return result, nil
}

// GetConversions retrieves conversions within [start, end).
func (s *TouchpointStore) GetConversions(_ context.Context, tenantID string, start, end int64) ([]*domain.Touchpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Touchpoint
	for _, tp := range s.byTen[tenantID] {
		if tp.IsConversion() && tp.OccurredAt >= start && tp.OccurredAt < end {
			result = append(result, tp.Clone())
		}
	}

	sortTouchpoints(result)
	return result, nil
}

// CountByChannel counts touchpoints per channel within [start, end] (inclusive).
func (s *TouchpointStore) CountByChannel(_ context.Context, tenantID string, start, end int64) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, tp := range s.byTen[tenantID] {
		if tp.OccurredAt >= start && tp.OccurredAt <= end {
			counts[tp.Channel]++
		}
	}
	return counts, nil
}

// Count returns the number of stored touchpoints.
func (s *TouchpointStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func sortTouchpoints(tps []*domain.Touchpoint) {
	sort.Slice(tps, func(i, j int) bool {
		return tps[i].Before(tps[j])
	})
}

var _ storage.TouchpointStore = (*TouchpointStore)(nil)

package memory

import (
	"context"
	"sort"
	"sync"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage"
)

// RollupStore is an in-memory implementation of storage.RollupStore.
type RollupStore struct {
	mu   sync.RWMutex
	data []*domain.RollupRow
}

// NewRollupStore creates a new in-memory rollup store.
func NewRollupStore() *RollupStore {
	return &RollupStore{}
}

// InsertBulk appends a snapshot of rollup rows.
func (s *RollupStore) InsertBulk(_ context.Context, rows []*domain.RollupRow) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		if r == nil || r.TenantID == "" || r.ModelKey == "" || r.Day == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		copy := *r
		s.data = append(s.data, &copy)
	}
	return nil
}

// Query returns the latest snapshot rows for days in [fromDay, toDay].
func (s *RollupStore) Query(_ context.Context, tenantID, modelKey, fromDay, toDay string) ([]*domain.RollupRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]int64)
	for _, r := range s.data {
		if r.TenantID != tenantID || r.ModelKey != modelKey || r.Day < fromDay || r.Day > toDay {
			continue
		}
		if r.ComputedAt > latest[r.Day] {
			latest[r.Day] = r.ComputedAt
		}
	}

	var result []*domain.RollupRow
	for _, r := range s.data {
		if r.TenantID != tenantID || r.ModelKey != modelKey || r.Day < fromDay || r.Day > toDay {
			continue
		}
		if r.ComputedAt == latest[r.Day] {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Day != result[j].Day {
			return result[i].Day < result[j].Day
		}
		if result[i].Channel != result[j].Channel {
			return result[i].Channel < result[j].Channel
		}
		return result[i].Campaign < result[j].Campaign
	})

	return result, nil
}

var _ storage.RollupStore = (*RollupStore)(nil)

package cache

import (
	"context"
	"sync"
)

type entry struct {
	coverFrom int64
	coverTo   int64
	value     []byte
}

type tenantEntries struct {
	gen     uint64
	entries map[string]entry
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	tenants map[string]*tenantEntries
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]*tenantEntries)}
}

func (m *Memory) tenant(tenantID string) *tenantEntries {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = &tenantEntries{entries: make(map[string]entry)}
		m.tenants[tenantID] = t
	}
	return t
}

// Get returns a copy of the cached value.
func (m *Memory) Get(_ context.Context, tenantID, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tenant(tenantID).entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Generation returns the tenant's invalidation generation.
func (m *Memory) Generation(_ context.Context, tenantID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenant(tenantID).gen, nil
}

// Put stores value if the generation is unchanged.
func (m *Memory) Put(_ context.Context, tenantID, key string, gen uint64, coverFrom, coverTo int64, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	if t.gen != gen {
		return false, nil
	}
	t.entries[key] = entry{coverFrom: coverFrom, coverTo: coverTo, value: append([]byte(nil), value...)}
	return true, nil
}

// InvalidateCovering deletes entries whose span contains occurredAt.
func (m *Memory) InvalidateCovering(_ context.Context, tenantID string, occurredAt int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	t.gen++

	n := 0
	for k, e := range t.entries {
		if occurredAt >= e.coverFrom && occurredAt < e.coverTo {
			delete(t.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of cached entries for a tenant.
func (m *Memory) Len(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenant(tenantID).entries)
}

var _ Cache = (*Memory)(nil)

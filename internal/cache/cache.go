// Package cache stores computed reports per tenant and drops them when an
// ingested touchpoint falls inside the span they were computed from.
package cache

import (
	"context"
)

// Cache is a per-tenant report cache.
//
// Put is conditional on the tenant generation observed before computing the
// value: any invalidation in between bumps the generation and the write is dropped.
type Cache interface {
	// Get returns the cached value for key.
	Get(ctx context.Context, tenantID, key string) ([]byte, bool, error)

	// Generation returns the tenant's current invalidation generation.
	Generation(ctx context.Context, tenantID string) (uint64, error)

	// Put stores value for key, covering touchpoints with occurred_at in [coverFrom, coverTo).
	// Returns false if the generation changed since gen was read.
	Put(ctx context.Context, tenantID, key string, gen uint64, coverFrom, coverTo int64, value []byte) (bool, error)

	// InvalidateCovering deletes entries whose span contains occurredAt and bumps the generation.
	InvalidateCovering(ctx context.Context, tenantID string, occurredAt int64) (int, error)
}

// Noop is a Cache that stores nothing.
type Noop struct{}

func (Noop) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) Generation(context.Context, string) (uint64, error) { return 0, nil }

func (Noop) Put(context.Context, string, string, uint64, int64, int64, []byte) (bool, error) {
	return false, nil
}

func (Noop) InvalidateCovering(context.Context, string, int64) (int, error) { return 0, nil }

var _ Cache = Noop{}

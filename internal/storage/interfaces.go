package storage

import (
	"context"

	"attribution-engine/internal/domain"
)

// TenantStore provides access to the tenants registry.
type TenantStore interface {
	// Ensure provisions a tenant. Returns created=false if it already exists.
	Ensure(ctx context.Context, tenantID string, createdAt int64) (created bool, err error)

	// Exists reports whether a tenant has been provisioned.
	Exists(ctx context.Context, tenantID string) (bool, error)

	// List returns all tenant ids in ascending order.
	List(ctx context.Context) ([]string, error)
}

// TouchpointStore provides access to the append-only touchpoints log.
type TouchpointStore interface {
	// Insert appends a touchpoint and assigns its Seq.
	// Returns ErrDuplicateKey if (tenant_id, touchpoint_id) exists and
	// ErrDuplicateOrder if a conversion for (tenant_id, order_id) exists.
	Insert(ctx context.Context, tp *domain.Touchpoint) error

	// GetByID retrieves a touchpoint. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tenantID, touchpointID string) (*domain.Touchpoint, error)

	// GetConversionByOrderID retrieves the conversion for an order. Returns ErrNotFound if not exists.
	GetConversionByOrderID(ctx context.Context, tenantID, orderID string) (*domain.Touchpoint, error)

	// GetByIdentity retrieves an identity's touchpoints within [start, end] (inclusive),
	// ordered by occurred_at ASC, seq ASC.
	GetByIdentity(ctx context.Context, tenantID, identityKey string, start, end int64) ([]*domain.Touchpoint, error)

	// GetConversions retrieves conversions within [start, end) ordered by occurred_at ASC, seq ASC.
	GetConversions(ctx context.Context, tenantID string, start, end int64) ([]*domain.Touchpoint, error)

	// CountByChannel counts touchpoints per channel within [start, end] (inclusive).
	CountByChannel(ctx context.Context, tenantID string, start, end int64) (map[string]int64, error)
}

// RollupStore provides access to attribution_rollups storage.
// Rows are append-only snapshots; the latest computed_at per day wins.
type RollupStore interface {
	// InsertBulk appends a snapshot of rollup rows.
	InsertBulk(ctx context.Context, rows []*domain.RollupRow) error

	// Query returns the latest snapshot rows for days in [fromDay, toDay] (inclusive),
	// ordered by day, channel, campaign.
	Query(ctx context.Context, tenantID, modelKey, fromDay, toDay string) ([]*domain.RollupRow, error)
}

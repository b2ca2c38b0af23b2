package postgres

import (
	"context"
	"fmt"

	"attribution-engine/internal/storage"
)

// TenantStore implements storage.TenantStore using PostgreSQL.
type TenantStore struct {
	pool *Pool
}

// NewTenantStore creates a new TenantStore.
func NewTenantStore(pool *Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TenantStore = (*TenantStore)(nil)

// Ensure provisions a tenant. Concurrent calls for the same tenant are safe.
func (s *TenantStore) Ensure(ctx context.Context, tenantID string, createdAt int64) (bool, error) {
	if tenantID == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tenants (tenant_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, tenantID, createdAt)
	if err != nil {
		return false, fmt.Errorf("ensure tenant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether a tenant has been provisioned.
func (s *TenantStore) Exists(ctx context.Context, tenantID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM tenants WHERE tenant_id = $1`, tenantID).Scan(&one)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("check tenant exists: %w", err)
	}
	return true, nil
}

// List returns all tenant ids in ascending order.
func (s *TenantStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT tenant_id FROM tenants ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

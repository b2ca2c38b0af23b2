package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage"
)

// TouchpointStore implements storage.TouchpointStore using PostgreSQL.
type TouchpointStore struct {
	pool *Pool
}

// NewTouchpointStore creates a new TouchpointStore.
func NewTouchpointStore(pool *Pool) *TouchpointStore {
	return &TouchpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TouchpointStore = (*TouchpointStore)(nil)

const touchpointColumns = `
	seq, tenant_id, touchpoint_id, customer_id, session_id,
	channel, campaign, source, medium, content, term,
	platform, device_type, page_url, referrer,
	occurred_at, conversion_value::text, conversion_type, order_id, product_ids
`

// Insert appends a touchpoint and assigns its Seq from the sequence.
func (s *TouchpointStore) Insert(ctx context.Context, tp *domain.Touchpoint) error {
	if tp == nil || tp.TenantID == "" || tp.TouchpointID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO touchpoints (
			tenant_id, touchpoint_id, identity_key, customer_id, session_id,
			channel, campaign, source, medium, content, term,
			platform, device_type, page_url, referrer,
			occurred_at, conversion_value, conversion_type, order_id, product_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING seq
	`

	var conversionValue *string
	if tp.IsConversion() {
		v := tp.ConversionValue.String()
		conversionValue = &v
	}
	productIDs := tp.ProductIDs
	if productIDs == nil {
		productIDs = []string{}
	}

	err := s.pool.QueryRow(ctx, query,
		tp.TenantID,
		tp.TouchpointID,
		tp.IdentityKey(),
		tp.CustomerID,
		tp.SessionID,
		tp.Channel,
		tp.Campaign,
		tp.Source,
		tp.Medium,
		tp.Content,
		tp.Term,
		tp.Platform,
		tp.DeviceType,
		tp.PageURL,
		tp.Referrer,
		tp.OccurredAt,
		conversionValue,
		tp.ConversionType,
		tp.OrderID,
		productIDs,
	).Scan(&tp.Seq)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == constraintOrderUnique {
				return storage.ErrDuplicateOrder
			}
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("insert touchpoint: tenant %q: %w", tp.TenantID, storage.ErrNotFound)
		}
		return fmt.Errorf("insert touchpoint: %w", err)
	}
	return nil
}

// GetByID retrieves a touchpoint by tenant and id.
func (s *TouchpointStore) GetByID(ctx context.Context, tenantID, touchpointID string) (*domain.Touchpoint, error) {
	query := `SELECT ` + touchpointColumns + `
		FROM touchpoints
		WHERE tenant_id = $1 AND touchpoint_id = $2
	`

	rows, err := s.pool.Query(ctx, query, tenantID, touchpointID)
	if err != nil {
		return nil, fmt.Errorf("get touchpoint by id: %w", err)
	}
	defer rows.Close()

	result, err := scanTouchpoints(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

// GetConversionByOrderID retrieves the conversion recorded for an order.
func (s *TouchpointStore) GetConversionByOrderID(ctx context.Context, tenantID, orderID string) (*domain.Touchpoint, error) {
	query := `SELECT ` + touchpointColumns + `
		FROM touchpoints
		WHERE tenant_id = $1 AND order_id = $2 AND conversion_value IS NOT NULL
	`

	rows, err := s.pool.Query(ctx, query, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("get conversion by order id: %w", err)
	}
	defer rows.Close()

	result, err := scanTouchpoints(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

// GetByIdentity retrieves an identity's touchpoints within [start, end] (inclusive).
func (s *TouchpointStore) GetByIdentity(ctx context.Context, tenantID, identityKey string, start, end int64) (_ []*domain.Touchpoint, err error) {
	defer observe("get_by_identity", time.Now(), &err)

	query := `SELECT ` + touchpointColumns + `
		FROM touchpoints
		WHERE tenant_id = $1 AND identity_key = $2 AND occurred_at >= $3 AND occurred_at <= $4
		ORDER BY occurred_at ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, tenantID, identityKey, start, end)
	if err != nil {
		return nil, fmt.Errorf("get touchpoints by identity: %w", err)
	}
	defer rows.Close()

	return scanTouchpoints(rows)
}

// GetConversions retrieves conversions within [start, end).
func (s *TouchpointStore) GetConversions(ctx context.Context, tenantID string, start, end int64) (_ []*domain.Touchpoint, err error) {
	defer observe("get_conversions", time.Now(), &err)

	query := `SELECT ` + touchpointColumns + `
		FROM touchpoints
		WHERE tenant_id = $1 AND conversion_value IS NOT NULL AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get conversions: %w", err)
	}
	defer rows.Close()

	return scanTouchpoints(rows)
}

// CountByChannel counts touchpoints per channel within [start, end] (inclusive).
func (s *TouchpointStore) CountByChannel(ctx context.Context, tenantID string, start, end int64) (_ map[string]int64, err error) {
	defer observe("count_by_channel", time.Now(), &err)

	query := `
		SELECT channel, COUNT(*)
		FROM touchpoints
		WHERE tenant_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
		GROUP BY channel
	`

	rows, err := s.pool.Query(ctx, query, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("count touchpoints by channel: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var channel string
		var n int64
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, fmt.Errorf("scan channel count: %w", err)
		}
		counts[channel] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel counts: %w", err)
	}
	return counts, nil
}

// scanTouchpoints scans rows selected with touchpointColumns.
func scanTouchpoints(rows pgx.Rows) ([]*domain.Touchpoint, error) {
	var result []*domain.Touchpoint
	for rows.Next() {
		var tp domain.Touchpoint
		var conversionValue *string
		err := rows.Scan(
			&tp.Seq,
			&tp.TenantID,
			&tp.TouchpointID,
			&tp.CustomerID,
			&tp.SessionID,
			&tp.Channel,
			&tp.Campaign,
			&tp.Source,
			&tp.Medium,
			&tp.Content,
			&tp.Term,
			&tp.Platform,
			&tp.DeviceType,
			&tp.PageURL,
			&tp.Referrer,
			&tp.OccurredAt,
			&conversionValue,
			&tp.ConversionType,
			&tp.OrderID,
			&tp.ProductIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan touchpoint: %w", err)
		}
		if conversionValue != nil {
			v, err := decimal.NewFromString(*conversionValue)
			if err != nil {
				return nil, fmt.Errorf("parse conversion value %q: %w", *conversionValue, err)
			}
			tp.ConversionValue = v
		}
		if len(tp.ProductIDs) == 0 {
			tp.ProductIDs = nil
		}
		result = append(result, &tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate touchpoints: %w", err)
	}
	return result, nil
}

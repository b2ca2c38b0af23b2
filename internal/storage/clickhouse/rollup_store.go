package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/observability"
	"attribution-engine/internal/storage"
)

// RollupStore implements storage.RollupStore using ClickHouse.
type RollupStore struct {
	conn *Conn
}

// NewRollupStore creates a new RollupStore.
func NewRollupStore(conn *Conn) *RollupStore {
	return &RollupStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RollupStore = (*RollupStore)(nil)

// InsertBulk appends a snapshot of rollup rows in a single batch.
func (s *RollupStore) InsertBulk(ctx context.Context, rows []*domain.RollupRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer observe("insert_rollups", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO attribution_rollups (
			tenant_id, model_key, day, channel, campaign,
			revenue, orders, touchpoints, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		if r == nil || r.TenantID == "" || r.ModelKey == "" {
			return storage.ErrInvalidInput
		}
		day, err := time.Parse(domain.DateLayout, r.Day)
		if err != nil {
			return fmt.Errorf("parse rollup day %q: %w", r.Day, err)
		}
		err = batch.Append(
			r.TenantID, r.ModelKey, day, r.Channel, r.Campaign,
			r.Revenue, r.Orders, uint64(r.Touchpoints), uint64(r.ComputedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Query returns the latest snapshot rows for days in [fromDay, toDay].
func (s *RollupStore) Query(ctx context.Context, tenantID, modelKey, fromDay, toDay string) (_ []*domain.RollupRow, err error) {
	defer observe("query_rollups", time.Now(), &err)

	query := `
		SELECT
			tenant_id, model_key, day, channel, campaign,
			revenue, orders, touchpoints, computed_at
		FROM attribution_rollups FINAL
		WHERE tenant_id = ? AND model_key = ? AND day >= toDate(?) AND day <= toDate(?)
			AND (day, computed_at) IN (
				SELECT day, max(computed_at)
				FROM attribution_rollups
				WHERE tenant_id = ? AND model_key = ? AND day >= toDate(?) AND day <= toDate(?)
				GROUP BY day
			)
		ORDER BY day ASC, channel ASC, campaign ASC
	`

	rows, err := s.conn.Query(ctx, query,
		tenantID, modelKey, fromDay, toDay,
		tenantID, modelKey, fromDay, toDay,
	)
	if err != nil {
		return nil, fmt.Errorf("query rollups: %w", err)
	}
	defer rows.Close()

	return scanRollups(rows)
}

// chRows abstracts driver.Rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRollups(rows chRows) ([]*domain.RollupRow, error) {
	var result []*domain.RollupRow
	for rows.Next() {
		var (
			r           domain.RollupRow
			day         time.Time
			revenue     decimal.Decimal
			orders      decimal.Decimal
			touchpoints uint64
			computedAt  uint64
		)
		if err := rows.Scan(
			&r.TenantID, &r.ModelKey, &day, &r.Channel, &r.Campaign,
			&revenue, &orders, &touchpoints, &computedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		r.Day = day.UTC().Format(domain.DateLayout)
		r.Revenue = revenue
		r.Orders = orders
		r.Touchpoints = int64(touchpoints)
		r.ComputedAt = int64(computedAt)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollups: %w", err)
	}
	return result, nil
}

func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), *err)
}

package migrations

import (
	"context"
	"fmt"

	"attribution-engine/internal/storage/postgres"
)

// advisoryLockKey serializes migrations across processes starting together.
const advisoryLockKey = 727140

type postgresTarget struct {
	pool *postgres.Pool
}

func (t postgresTarget) Init(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (t postgresTarget) Applied(ctx context.Context) (map[int]bool, error) {
	rows, err := t.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

// Apply runs the migration and its version record in one transaction.
func (t postgresTarget) Apply(ctx context.Context, m Migration) (bool, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return false, fmt.Errorf("lock: %w", err)
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists); err != nil {
		return false, fmt.Errorf("check version: %w", err)
	}
	if exists {
		return false, nil
	}

	for i, stmt := range m.Statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return false, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return false, fmt.Errorf("record version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// RunPostgresMigrations applies pending PostgreSQL migrations and returns them.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]Migration, error) {
	ms, err := Postgres()
	if err != nil {
		return nil, err
	}
	return Apply(ctx, postgresTarget{pool: pool}, ms)
}

package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "attribution-engine/internal/storage/clickhouse"
)

// clickhouseTarget records versions after the statements succeed. ClickHouse
// DDL is not transactional, so every statement must be idempotent
// (IF NOT EXISTS) to survive a crash before the record is written.
type clickhouseTarget struct {
	conn *chstore.Conn
}

func (t clickhouseTarget) Init(ctx context.Context) error {
	return t.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    UInt32,
			name       String,
			applied_at DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree
		ORDER BY version
	`)
}

func (t clickhouseTarget) Applied(ctx context.Context) (map[int]bool, error) {
	rows, err := t.conn.Query(ctx, `SELECT version FROM schema_migrations FINAL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v uint32
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[int(v)] = true
	}
	return done, rows.Err()
}

func (t clickhouseTarget) Apply(ctx context.Context, m Migration) (bool, error) {
	for i, stmt := range m.Statements {
		if err := t.conn.Exec(ctx, stmt); err != nil {
			return false, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	if err := t.conn.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, uint32(m.Version), m.Name); err != nil {
		return false, fmt.Errorf("record version: %w", err)
	}
	return true, nil
}

// RunClickhouseMigrations creates the DSN's database if needed, applies
// pending migrations and returns a connection to that database with the
// migrations it applied.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, []Migration, error) {
	ms, err := Clickhouse()
	if err != nil {
		return nil, nil, err
	}
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName))
	admin.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	applied, err := Apply(ctx, clickhouseTarget{conn: conn}, ms)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, applied, nil
}

// databaseFromDSN returns the database path segment, which must be a plain identifier.
func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	if strings.ContainsAny(db, "`/ ") {
		return "", fmt.Errorf("clickhouse database %q is not a plain identifier", db)
	}
	return db, nil
}

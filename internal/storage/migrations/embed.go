package migrations

import "embed"

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// Postgres returns the embedded PostgreSQL migrations: tenants and the touchpoint log.
func Postgres() ([]Migration, error) {
	return Load(postgresFS, "postgres")
}

// Clickhouse returns the embedded ClickHouse migrations: attribution rollups.
func Clickhouse() ([]Migration, error) {
	return Load(clickhouseFS, "clickhouse")
}

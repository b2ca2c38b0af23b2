// Package stores opens the storage backends selected by configuration.
package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"attribution-engine/internal/cache"
	"attribution-engine/internal/config"
	"attribution-engine/internal/storage"
	chstore "attribution-engine/internal/storage/clickhouse"
	"attribution-engine/internal/storage/memory"
	"attribution-engine/internal/storage/migrations"
	pgstore "attribution-engine/internal/storage/postgres"
)

// Set holds every store used by the commands.
type Set struct {
	Tenants     storage.TenantStore
	Touchpoints storage.TouchpointStore
	Rollups     storage.RollupStore
	Cache       cache.Cache

	pool  *pgstore.Pool
	ch    *chstore.Conn
	redis *redis.Client
}

// Open connects to configured backends. In memory mode every store lives in
// process. Otherwise touchpoints and tenants go to PostgreSQL, rollups to
// ClickHouse, and reports are cached in Redis when REDIS_URL is set.
// Migrations run before the stores are returned.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Set, error) {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return &Set{
			Tenants:     memory.NewTenantStore(),
			Touchpoints: memory.NewTouchpointStore(),
			Rollups:     memory.NewRollupStore(),
			Cache:       cache.NewMemory(),
		}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logMigrations(logger, "postgres", applied)

	// ClickHouse
	chConn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logMigrations(logger, "clickhouse", applied)

	s := &Set{
		Tenants:     pgstore.NewTenantStore(pool),
		Touchpoints: pgstore.NewTouchpointStore(pool),
		Rollups:     chstore.NewRollupStore(chConn),
		Cache:       cache.Noop{},
		pool:        pool,
		ch:          chConn,
	}

	if cfg.RedisURL != "" {
		rc, err := cache.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rc
		s.Cache = cache.NewRedis(rc, cache.RedisOptions{TTL: cfg.CacheTTL})
	} else {
		logger.Warn("REDIS_URL not set, report caching disabled")
	}

	logger.Info("storage ready", "postgres", true, "clickhouse", true, "redis", s.redis != nil)
	return s, nil
}

// Ping checks that every connected backend is reachable.
func (s *Set) Ping(ctx context.Context) error {
	var errs []error
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if s.ch != nil {
		if err := s.ch.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases all connections.
func (s *Set) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func logMigrations(logger *slog.Logger, database string, applied []migrations.Migration) {
	if len(applied) == 0 {
		logger.Info("schema up to date", "database", database)
		return
	}
	for _, m := range applied {
		logger.Info("applied migration", "database", database, "file", m.File())
	}
}

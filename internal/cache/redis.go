package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a Redis-backed cache.
type RedisOptions struct {
	// Prefix namespaces all keys. Default "attribution".
	Prefix string
	// TTL bounds how long a report stays cached. Default 1h.
	TTL time.Duration
}

// Redis is a Cache backed by Redis.
// Each tenant has a hash of cached keys to their covered spans, so invalidation
// deletes only the affected entries.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DialRedis parses a redis:// URL, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rc, nil
}

// NewRedis creates a Redis cache on an existing client.
func NewRedis(client *redis.Client, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "attribution"
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return &Redis{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

func (r *Redis) valueKey(tenantID, key string) string {
	return r.prefix + ":" + tenantID + ":v:" + key
}

func (r *Redis) rangesKey(tenantID string) string {
	return r.prefix + ":" + tenantID + ":ranges"
}

func (r *Redis) genKey(tenantID string) string {
	return r.prefix + ":" + tenantID + ":gen"
}

// Get returns the cached value for key.
func (r *Redis) Get(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.valueKey(tenantID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return b, true, nil
}

// Generation returns the tenant's invalidation generation.
func (r *Redis) Generation(ctx context.Context, tenantID string) (uint64, error) {
	gen, err := r.client.Get(ctx, r.genKey(tenantID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// Put stores value in a transaction that fails if the generation moved.
func (r *Redis) Put(ctx context.Context, tenantID, key string, gen uint64, coverFrom, coverTo int64, value []byte) (bool, error) {
	genKey := r.genKey(tenantID)
	stored := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.valueKey(tenantID, key), value, r.ttl)
			p.HSet(ctx, r.rangesKey(tenantID), key, formatSpan(coverFrom, coverTo))
			p.Expire(ctx, r.rangesKey(tenantID), 2*r.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis put: %w", err)
	}
	return stored, nil
}

// InvalidateCovering bumps the generation, then deletes entries whose span contains occurredAt.
func (r *Redis) InvalidateCovering(ctx context.Context, tenantID string, occurredAt int64) (int, error) {
	if err := r.client.Incr(ctx, r.genKey(tenantID)).Err(); err != nil {
		return 0, fmt.Errorf("redis bump generation: %w", err)
	}

	spans, err := r.client.HGetAll(ctx, r.rangesKey(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis read ranges: %w", err)
	}

	var fields, keys []string
	for field, span := range spans {
		from, to, ok := parseSpan(span)
		if !ok || (occurredAt >= from && occurredAt < to) {
			fields = append(fields, field)
			keys = append(keys, r.valueKey(tenantID, field))
		}
	}
	if len(fields) == 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.HDel(ctx, r.rangesKey(tenantID), fields...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis invalidate: %w", err)
	}
	return len(fields), nil
}

func formatSpan(from, to int64) string {
	return strconv.FormatInt(from, 10) + ":" + strconv.FormatInt(to, 10)
}

func parseSpan(s string) (int64, int64, bool) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, false
	}
	from, err1 := strconv.ParseInt(a, 10, 64)
	to, err2 := strconv.ParseInt(b, 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return from, to, true
}

var _ Cache = (*Redis)(nil)

// Package analytics runs journey reconstruction and credit allocation across
// every conversion of a tenant and rolls the results up into reports.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"attribution-engine/internal/attribution"
	"attribution-engine/internal/cache"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/idhash"
	"attribution-engine/internal/journey"
	"attribution-engine/internal/observability"
	"attribution-engine/internal/storage"
)

// Report kinds used in cache keys and metrics.
const (
	KindAttribution = "attribution"
	KindJourney     = "journey"
	KindPaths       = "paths"
)

// Path limits.
const (
	DefaultPathLimit = 10
	MaxPathLimit     = 100
)

// Service answers attribution queries for tenants.
// It is safe for concurrent use; every query is computed independently.
type Service struct {
	tenants     storage.TenantStore
	touchpoints storage.TouchpointStore
	rollups     storage.RollupStore
	builder     *journey.Builder
	cache       cache.Cache
	workers     int
	logger      *slog.Logger
	now         func() time.Time
}

// Options contains configuration for creating a Service.
type Options struct {
	Tenants     storage.TenantStore
	Touchpoints storage.TouchpointStore
	// Rollups receives a snapshot of every computed attribution report. Optional.
	Rollups storage.RollupStore
	// Cache stores computed reports. Nil disables caching.
	Cache cache.Cache
	// Workers bounds per-conversion parallelism. Default runtime.NumCPU().
	Workers int
	Logger  *slog.Logger
	// Now stamps rollup snapshots. Default time.Now.
	Now func() time.Time
}

// NewService creates an analytics service.
func NewService(opts Options) *Service {
	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		tenants:     opts.Tenants,
		touchpoints: opts.Touchpoints,
		rollups:     opts.Rollups,
		builder:     journey.NewBuilder(opts.Touchpoints),
		cache:       c,
		workers:     workers,
		logger:      logger,
		now:         now,
	}
}

// Initialize provisions a tenant. It is idempotent.
func (s *Service) Initialize(ctx context.Context, tenantID string) (bool, error) {
	if strings.TrimSpace(tenantID) == "" {
		return false, domain.NewValidationError("tenantId", "required")
	}
	created, err := s.tenants.Ensure(ctx, tenantID, s.now().UnixMilli())
	if err != nil {
		return false, &domain.StorageError{Op: "ensure tenant", Err: err}
	}
	if created {
		s.logger.Info("tenant initialized", "tenant", tenantID)
	}
	return created, nil
}

func (s *Service) requireTenant(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.NewValidationError("tenantId", "required")
	}
	ok, err := s.tenants.Exists(ctx, tenantID)
	if err != nil {
		return &domain.StorageError{Op: "check tenant", Err: err}
	}
	if !ok {
		return &domain.NotFoundError{Resource: "tenant", ID: tenantID}
	}
	return nil
}

// prepare validates a query before any work is done.
func (s *Service) prepare(ctx context.Context, tenantID string, cfg domain.ModelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := attribution.CheckModel(cfg.Type); err != nil {
		return err
	}
	return s.requireTenant(ctx, tenantID)
}

// cached returns the cached value for (kind, tenant, range, model) or computes
// and stores it. The entry covers touchpoints from range start minus lookback
// up to range end, so any ingest that could change it invalidates it.
func cached[T any](
	ctx context.Context,
	s *Service,
	kind string,
	tenantID string,
	r domain.DateRange,
	cfg domain.ModelConfig,
	compute func(ctx context.Context) (*T, error),
) (*T, error) {
	key := idhash.ComputeReportKey(kind, tenantID, r.StartMs(), r.EndMs(), cfg.Key())

	// Read the generation before computing so a concurrent ingest drops our write.
	gen, err := s.cache.Generation(ctx, tenantID)
	if err != nil {
		s.logger.Warn("cache generation failed", "tenant", tenantID, "error", err)
	}

	if err == nil {
		b, hit, gerr := s.cache.Get(ctx, tenantID, key)
		switch {
		case gerr != nil:
			s.logger.Warn("cache get failed", "tenant", tenantID, "error", gerr)
		case hit:
			var out T
			if uerr := json.Unmarshal(b, &out); uerr == nil {
				observability.RecordCacheLookup(true)
				return &out, nil
			}
			s.logger.Warn("discarding undecodable cache entry", "tenant", tenantID, "kind", kind)
		}
		observability.RecordCacheLookup(false)
	}

	start := time.Now()
	out, cerr := compute(ctx)
	if cerr != nil {
		return nil, cerr
	}
	observability.RecordReport(kind, string(cfg.Type), time.Since(start).Seconds(), float64(time.Now().Unix()))

	if err == nil {
		b, merr := json.Marshal(out)
		if merr != nil {
			return nil, fmt.Errorf("marshal %s report: %w", kind, merr)
		}
		if _, perr := s.cache.Put(ctx, tenantID, key, gen, r.StartMs()-cfg.LookbackMs(), r.EndMs(), b); perr != nil {
			s.logger.Warn("cache put failed", "tenant", tenantID, "error", perr)
		}
	}
	return out, nil
}

// forEach runs fn for i in [0, n) on at most workers goroutines.
// It stops dispatching after the first error and returns it.
func forEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, workers)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

dispatch:
	for i := 0; i < n; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := runGuarded(ctx, i, fn); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(i)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// runGuarded turns a panic in fn into an error for the calling request.
func runGuarded(ctx context.Context, i int, fn func(ctx context.Context, i int) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &domain.ComputationError{Op: "attribute", Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return fn(ctx, i)
}

var errNoRollupStore = errors.New("rollup store not configured")

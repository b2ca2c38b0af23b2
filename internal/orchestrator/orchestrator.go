// Package orchestrator refreshes attribution rollups for every tenant.
// Each run recomputes the recent days under a set of models so the
// ClickHouse snapshots stay current without a client asking for them.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage"
)

// DefaultDays is the number of trailing days refreshed per run.
const DefaultDays = 7

// DefaultModels returns every model with a defined algorithm, at default parameters.
func DefaultModels() []domain.ModelConfig {
	return []domain.ModelConfig{
		domain.DefaultModelConfig(domain.ModelFirstTouch),
		domain.DefaultModelConfig(domain.ModelLastTouch),
		domain.DefaultModelConfig(domain.ModelLinear),
		domain.DefaultModelConfig(domain.ModelTimeDecay),
		domain.DefaultModelConfig(domain.ModelPositionBased),
		domain.DefaultModelConfig(domain.ModelDataDriven),
	}
}

// Source computes attribution reports, persisting rollups as a side effect.
type Source interface {
	AttributionReport(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (*domain.AttributionReport, error)
}

// Orchestrator coordinates rollup refresh across tenants and models.
type Orchestrator struct {
	tenants storage.TenantStore
	source  Source
	models  []domain.ModelConfig
	days    int
	logger  *slog.Logger
	now     func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	Tenants storage.TenantStore
	Source  Source

	// Models to refresh. Default DefaultModels().
	Models []domain.ModelConfig
	// Days is the trailing window ending today (UTC). Default DefaultDays.
	Days   int
	Logger *slog.Logger
	Now    func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	models := opts.Models
	if len(models) == 0 {
		models = DefaultModels()
	}
	days := opts.Days
	if days <= 0 {
		days = DefaultDays
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		tenants: opts.Tenants,
		source:  opts.Source,
		models:  models,
		days:    days,
		logger:  logger,
		now:     now,
	}
}

// RunResult contains results from one refresh.
type RunResult struct {
	Range            domain.DateRange
	TenantsProcessed int
	ReportsComputed  int
	Errors           []string
}

// Window returns the trailing range refreshed by a run at the current time.
func (o *Orchestrator) Window() domain.DateRange {
	today := o.now().UTC().Truncate(24 * time.Hour)
	return domain.DateRange{Start: today.AddDate(0, 0, -(o.days - 1)), End: today}
}

// Run refreshes every tenant under every model once.
// A failing tenant/model pair is recorded and skipped; cancellation stops the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	tenants, err := o.tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	result := &RunResult{Range: o.Window()}
	for _, tenant := range tenants {
		for _, cfg := range o.models {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if _, err := o.source.AttributionReport(ctx, tenant, result.Range, cfg); err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", tenant, cfg.Type, err))
				continue
			}
			result.ReportsComputed++
		}
		result.TenantsProcessed++
	}
	return result, nil
}

// RunEvery runs immediately and then on every tick until ctx is done.
func (o *Orchestrator) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		res, err := o.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Error("rollup refresh failed", "error", err)
		} else {
			o.logger.Info("rollup refresh complete",
				"range", res.Range.String(),
				"tenants", res.TenantsProcessed,
				"reports", res.ReportsComputed,
				"errors", len(res.Errors),
				"duration", time.Since(start).String())
			for _, e := range res.Errors {
				o.logger.Warn("rollup refresh error", "detail", e)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

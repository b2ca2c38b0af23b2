package reporting

import (
	"context"
	"sort"
	"time"

	"attribution-engine/internal/domain"
)

// ComparisonModels are the models evaluated for the model comparison section.
var ComparisonModels = []domain.ModelType{
	domain.ModelFirstTouch,
	domain.ModelLastTouch,
	domain.ModelLinear,
	domain.ModelTimeDecay,
	domain.ModelPositionBased,
	domain.ModelDataDriven,
}

// Source is the subset of the analytics service the generator reads from.
type Source interface {
	AttributionReport(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (*domain.AttributionReport, error)
	ConversionPaths(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig, limit int) ([]domain.ConversionPath, error)
}

// Generator produces reports from the analytics service.
type Generator struct {
	source    Source
	pathLimit int
	compare   bool
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(source Source) *Generator {
	return &Generator{
		source:    source,
		pathLimit: 10,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithPathLimit sets how many conversion paths are included.
func (g *Generator) WithPathLimit(n int) *Generator {
	g.pathLimit = n
	return g
}

// WithComparison enables the per-model revenue comparison section.
func (g *Generator) WithComparison(enabled bool) *Generator {
	g.compare = enabled
	return g
}

// Generate produces a complete report for one tenant, range and model.
func (g *Generator) Generate(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (*Report, error) {
	rep, err := g.source.AttributionReport(ctx, tenantID, r, cfg)
	if err != nil {
		return nil, err
	}

	paths, err := g.source.ConversionPaths(ctx, tenantID, r, cfg, g.pathLimit)
	if err != nil {
		return nil, err
	}

	out := &Report{
		GeneratedAt: g.now(),
		TenantID:    tenantID,
		Range:       r,
		ModelKey:    cfg.Key(),
		Attribution: rep,
		Paths:       paths,
	}

	if g.compare {
		out.Comparison, err = g.generateComparison(ctx, tenantID, r, cfg)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// generateComparison runs every comparison model with the same window parameters.
func (g *Generator) generateComparison(ctx context.Context, tenantID string, r domain.DateRange, base domain.ModelConfig) ([]ModelComparisonRow, error) {
	byChannel := make(map[string]map[domain.ModelType]string)
	for _, m := range ComparisonModels {
		cfg := base
		cfg.Type = m
		rep, err := g.source.AttributionReport(ctx, tenantID, r, cfg)
		if err != nil {
			return nil, err
		}
		for _, ch := range rep.Channels {
			if byChannel[ch.Channel] == nil {
				byChannel[ch.Channel] = make(map[domain.ModelType]string)
			}
			byChannel[ch.Channel][m] = ch.Revenue.StringFixed(2)
		}
	}

	rows := make([]ModelComparisonRow, 0, len(byChannel))
	for ch, rev := range byChannel {
		rows = append(rows, ModelComparisonRow{Channel: ch, Revenue: rev})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Channel < rows[j].Channel })
	return rows, nil
}

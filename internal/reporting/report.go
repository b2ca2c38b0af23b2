package reporting

import (
	"time"

	"attribution-engine/internal/domain"
)

// Report is a rendered-ready bundle of one attribution run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	TenantID    string
	Range       domain.DateRange
	ModelKey    string

	// Attribution holds channel, campaign and daily credit rows.
	Attribution *domain.AttributionReport

	// Paths holds the most frequent converting channel sequences.
	Paths []domain.ConversionPath

	// Comparison holds per-channel revenue under each compared model.
	Comparison []ModelComparisonRow
}

// ModelComparisonRow lists one channel's revenue under several models,
// in the order of Report.ComparedModels.
type ModelComparisonRow struct {
	Channel string
	Revenue map[domain.ModelType]string
}

// ComparedModels returns the models present in the comparison, in a stable order.
func (r *Report) ComparedModels() []domain.ModelType {
	seen := make(map[domain.ModelType]bool)
	for _, row := range r.Comparison {
		for m := range row.Revenue {
			seen[m] = true
		}
	}
	var out []domain.ModelType
	for _, m := range ComparisonModels {
		if seen[m] {
			out = append(out, m)
		}
	}
	return out
}

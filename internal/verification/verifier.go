// Package verification checks attribution reports for credit conservation
// and compares persisted rollup snapshots against a fresh computation.
package verification

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"attribution-engine/internal/domain"
)

// Divergence represents a mismatch between an expected and an actual value.
type Divergence struct {
	Key      string // day|channel, or "summary"
	Field    string
	Expected string
	Actual   string
}

// CheckReport verifies that the breakdowns of a report add up to its summary.
// Every conversion's value is fully distributed, so channel, campaign and daily
// revenue each sum to the total, and order shares sum to the order count.
func CheckReport(rep *domain.AttributionReport) []Divergence {
	var out []Divergence
	total := rep.Summary.TotalRevenue
	orders := decimal.NewFromInt(rep.Summary.TotalOrders)

	chRev, chOrders := decimal.Zero, decimal.Zero
	credited := 0
	for _, c := range rep.Channels {
		chRev = chRev.Add(c.Revenue)
		chOrders = chOrders.Add(c.Orders)
		if c.Revenue.IsPositive() {
			credited++
		}
	}
	out = appendIfDiff(out, "summary", "channels.revenue", total, chRev)
	out = appendIfDiff(out, "summary", "channels.orders", orders, chOrders)

	campRev := decimal.Zero
	for _, c := range rep.Campaigns {
		campRev = campRev.Add(c.Revenue)
	}
	out = appendIfDiff(out, "summary", "campaigns.revenue", total, campRev)

	dayRev := decimal.Zero
	for _, d := range rep.Daily {
		dayRev = dayRev.Add(d.Revenue)
	}
	out = appendIfDiff(out, "summary", "daily.revenue", total, dayRev)

	if credited != rep.Summary.ChannelCount {
		out = append(out, Divergence{
			Key:      "summary",
			Field:    "channelCount",
			Expected: decimal.NewFromInt(int64(credited)).String(),
			Actual:   decimal.NewFromInt(int64(rep.Summary.ChannelCount)).String(),
		})
	}
	return out
}

// CompareRollups compares stored rollup rows, summed over campaigns, with the
// daily rows of a freshly computed report. Expected values come from the report.
func CompareRollups(rep *domain.AttributionReport, stored []*domain.RollupRow) []Divergence {
	type totals struct{ revenue, orders decimal.Decimal }
	want := make(map[string]totals)
	for _, d := range rep.Daily {
		want[d.Day+"|"+d.Channel] = totals{d.Revenue, d.Orders}
	}
	got := make(map[string]totals)
	for _, r := range stored {
		k := r.Day + "|" + r.Channel
		t := got[k]
		got[k] = totals{t.revenue.Add(r.Revenue), t.orders.Add(r.Orders)}
	}

	keys := make(map[string]struct{}, len(want)+len(got))
	for k := range want {
		keys[k] = struct{}{}
	}
	for k := range got {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []Divergence
	for _, k := range sorted {
		w, wok := want[k]
		g, gok := got[k]
		switch {
		case !gok:
			out = append(out, Divergence{Key: k, Field: "row", Expected: "present", Actual: "missing"})
		case !wok:
			out = append(out, Divergence{Key: k, Field: "row", Expected: "missing", Actual: "present"})
		default:
			out = appendIfDiff(out, k, "revenue", w.revenue, g.revenue)
			out = appendIfDiff(out, k, "orders", w.orders, g.orders)
		}
	}
	return out
}

func appendIfDiff(out []Divergence, key, field string, expected, actual decimal.Decimal) []Divergence {
	if expected.Equal(actual) {
		return out
	}
	return append(out, Divergence{Key: key, Field: field, Expected: expected.String(), Actual: actual.String()})
}

// Source is the subset of the analytics service the verifier reads from.
type Source interface {
	AttributionReport(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (*domain.AttributionReport, error)
	StoredRollups(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) ([]*domain.RollupRow, error)
}

// Result contains the outcome of verifying one tenant, range and model.
type Result struct {
	TenantID   string
	ModelKey   string
	Match      bool         // true if no divergences were found
	StoredRows int          // rollup rows read before recomputation
	Report     []Divergence // internal conservation problems
	Rollups    []Divergence // stored snapshot vs recomputation
}

// Verifier recomputes reports and checks them against stored rollups.
type Verifier struct {
	source Source
}

// NewVerifier creates a verifier.
func NewVerifier(source Source) *Verifier {
	return &Verifier{source: source}
}

// Verify reads the stored snapshot first, then computes the report. Rollups
// written by that computation therefore do not mask stale snapshots.
func (v *Verifier) Verify(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (*Result, error) {
	stored, err := v.source.StoredRollups(ctx, tenantID, r, cfg)
	if err != nil {
		return nil, err
	}
	rep, err := v.source.AttributionReport(ctx, tenantID, r, cfg)
	if err != nil {
		return nil, err
	}

	res := &Result{
		TenantID:   tenantID,
		ModelKey:   cfg.Key(),
		StoredRows: len(stored),
		Report:     CheckReport(rep),
		Rollups:    CompareRollups(rep, stored),
	}
	res.Match = len(res.Report) == 0 && len(res.Rollups) == 0
	return res, nil
}

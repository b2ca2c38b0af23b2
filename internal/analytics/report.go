package analytics

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/observability"
)

var millisPerHour = decimal.NewFromInt(60 * 60 * 1000)

// AttributionReport credits every conversion in the range under cfg and
// rolls the credit up by channel, campaign and day.
// An empty range yields an empty report, not an error.
func (s *Service) AttributionReport(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (*domain.AttributionReport, error) {
	if err := s.prepare(ctx, tenantID, cfg); err != nil {
		return nil, err
	}

	rep, err := cached(ctx, s, KindAttribution, tenantID, r, cfg, func(ctx context.Context) (*domain.AttributionReport, error) {
		convs, err := s.conversions(ctx, tenantID, r)
		if err != nil {
			return nil, err
		}
		items, err := s.attribute(ctx, tenantID, r, convs, cfg)
		if err != nil {
			return nil, err
		}

		rep, rows := aggregate(tenantID, cfg, items)
		s.persistRollups(ctx, rows)
		return rep, nil
	})
	if err != nil {
		return nil, err
	}

	rep.Range = r
	rep.ModelKey = cfg.Key()
	return rep, nil
}

// StoredRollups returns the latest persisted snapshot rows for the range.
func (s *Service) StoredRollups(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) ([]*domain.RollupRow, error) {
	if s.rollups == nil {
		return nil, &domain.StorageError{Op: "query rollups", Err: errNoRollupStore}
	}
	if err := s.prepare(ctx, tenantID, cfg); err != nil {
		return nil, err
	}
	rows, err := s.rollups.Query(ctx, tenantID, cfg.Key(), r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
	if err != nil {
		return nil, &domain.StorageError{Op: "query rollups", Err: err}
	}
	return rows, nil
}

func (s *Service) persistRollups(ctx context.Context, rows []*domain.RollupRow) {
	if s.rollups == nil || len(rows) == 0 {
		return
	}
	computedAt := s.now().UnixMilli()
	for _, row := range rows {
		row.ComputedAt = computedAt
	}
	if err := s.rollups.InsertBulk(ctx, rows); err != nil {
		s.logger.Warn("rollup snapshot failed", "tenant", rows[0].TenantID, "rows", len(rows), "error", err)
		return
	}
	observability.RecordRollupRows(len(rows))
}

type acc struct {
	revenue decimal.Decimal
	orders  decimal.Decimal
	touches int64
}

func (a *acc) add(sc domain.StepCredit) {
	a.revenue = a.revenue.Add(sc.Credit)
	a.orders = a.orders.Add(sc.OrderShare)
	a.touches++
}

func newAcc() *acc {
	return &acc{revenue: decimal.Zero, orders: decimal.Zero}
}

func get[K comparable](m map[K]*acc, k K) *acc {
	a, ok := m[k]
	if !ok {
		a = newAcc()
		m[k] = a
	}
	return a
}

// aggregate sums allocations by plain addition, so the result does not depend
// on the order items were computed in. Rows are sorted by revenue desc then name.
func aggregate(tenantID string, cfg domain.ModelConfig, items []attributed) (*domain.AttributionReport, []*domain.RollupRow) {
	channels := make(map[string]*acc)
	campaigns := make(map[[2]string]*acc)
	daily := make(map[[2]string]*acc)
	rollup := make(map[[3]string]*acc)

	totalRevenue := decimal.Zero
	var totalSteps, totalDurationMs int64

	for _, it := range items {
		conv := it.journey.Conversion
		day := domain.DayOf(conv.OccurredAt)
		totalRevenue = totalRevenue.Add(conv.ConversionValue)
		totalSteps += int64(it.journey.Len())
		totalDurationMs += it.journey.DurationMs()

		for _, sc := range it.result.Steps {
			get(channels, sc.Channel).add(sc)
			get(campaigns, [2]string{sc.Channel, sc.Campaign}).add(sc)
			get(daily, [2]string{day, sc.Channel}).add(sc)
			get(rollup, [3]string{day, sc.Channel, sc.Campaign}).add(sc)
		}
	}

	rep := &domain.AttributionReport{
		TenantID:  tenantID,
		Model:     cfg.Type,
		Channels:  make([]domain.ChannelSummary, 0, len(channels)),
		Campaigns: make([]domain.CampaignSummary, 0, len(campaigns)),
		Daily:     make([]domain.DailyChannelSummary, 0, len(daily)),
	}

	credited := 0
	for ch, a := range channels {
		rep.Channels = append(rep.Channels, domain.ChannelSummary{
			Channel: ch, Revenue: a.revenue, Orders: a.orders, Touchpoints: a.touches,
		})
		if a.revenue.IsPositive() {
			credited++
		}
	}
	sort.Slice(rep.Channels, func(i, j int) bool {
		a, b := rep.Channels[i], rep.Channels[j]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.Channel < b.Channel
	})

	for k, a := range campaigns {
		rep.Campaigns = append(rep.Campaigns, domain.CampaignSummary{
			Channel: k[0], Campaign: k[1], Revenue: a.revenue, Orders: a.orders, Touchpoints: a.touches,
		})
	}
	sort.Slice(rep.Campaigns, func(i, j int) bool {
		a, b := rep.Campaigns[i], rep.Campaigns[j]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Campaign < b.Campaign
	})

	for k, a := range daily {
		rep.Daily = append(rep.Daily, domain.DailyChannelSummary{
			Day: k[0], Channel: k[1], Revenue: a.revenue, Orders: a.orders,
		})
	}
	sort.Slice(rep.Daily, func(i, j int) bool {
		a, b := rep.Daily[i], rep.Daily[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.Channel < b.Channel
	})

	rep.Summary = domain.ReportSummary{
		TotalRevenue:           totalRevenue,
		TotalOrders:            int64(len(items)),
		ChannelCount:           credited,
		AverageTouchpoints:     average(decimal.NewFromInt(totalSteps), len(items)),
		AverageConversionHours: average(decimal.NewFromInt(totalDurationMs).Div(millisPerHour), len(items)),
	}

	modelKey := cfg.Key()
	rows := make([]*domain.RollupRow, 0, len(rollup))
	for k, a := range rollup {
		rows = append(rows, &domain.RollupRow{
			TenantID:    tenantID,
			ModelKey:    modelKey,
			Day:         k[0],
			Channel:     k[1],
			Campaign:    k[2],
			Revenue:     a.revenue,
			Orders:      a.orders,
			Touchpoints: a.touches,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Campaign < b.Campaign
	})

	return rep, rows
}

// average returns sum/n rounded to 2 places, or zero when n is 0.
func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.DivRound(decimal.NewFromInt(int64(n)), 2)
}

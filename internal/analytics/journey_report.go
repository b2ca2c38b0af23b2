package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/journey"
)

// JourneyReport lists every conversion in the range with its ordered journey
// and per-step credit under cfg. An empty model type means linear.
func (s *Service) JourneyReport(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (*domain.JourneyReport, error) {
	if cfg.Type == "" {
		cfg.Type = domain.ModelLinear
	}
	if err := s.prepare(ctx, tenantID, cfg); err != nil {
		return nil, err
	}

	rep, err := cached(ctx, s, KindJourney, tenantID, r, cfg, func(ctx context.Context) (*domain.JourneyReport, error) {
		convs, err := s.conversions(ctx, tenantID, r)
		if err != nil {
			return nil, err
		}
		items, err := s.attribute(ctx, tenantID, r, convs, cfg)
		if err != nil {
			return nil, err
		}
		return journeyReport(tenantID, cfg, items), nil
	})
	if err != nil {
		return nil, err
	}

	rep.Range = r
	return rep, nil
}

// CustomerJourneys is JourneyReport restricted to one customer's conversions.
// Credit uses the same tenant-wide data_driven rates as JourneyReport. Not cached.
func (s *Service) CustomerJourneys(ctx context.Context, tenantID, customerID string, r domain.DateRange, cfg domain.ModelConfig) (*domain.JourneyReport, error) {
	if cfg.Type == "" {
		cfg.Type = domain.ModelLinear
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, domain.NewValidationError("customerId", "required")
	}
	if err := s.prepare(ctx, tenantID, cfg); err != nil {
		return nil, err
	}

	tps, err := s.touchpoints.GetByIdentity(ctx, tenantID, domain.IdentityKey(customerID, ""), r.StartMs(), r.EndMs()-1)
	if err != nil {
		return nil, &domain.StorageError{Op: "get touchpoints by identity", Err: err}
	}

	convs := make([]*domain.Touchpoint, 0)
	for _, tp := range tps {
		if tp.IsConversion() {
			convs = append(convs, tp)
		}
	}

	journeys, err := s.buildJourneys(ctx, tenantID, convs, journey.OptionsFromModel(cfg))
	if err != nil {
		return nil, err
	}
	rates, err := s.tenantRates(ctx, tenantID, r, cfg)
	if err != nil {
		return nil, err
	}
	items, err := s.allocate(ctx, journeys, cfg, rates)
	if err != nil {
		return nil, err
	}

	rep := journeyReport(tenantID, cfg, items)
	rep.Range = r
	return rep, nil
}

func journeyReport(tenantID string, cfg domain.ModelConfig, items []attributed) *domain.JourneyReport {
	rep := &domain.JourneyReport{
		TenantID: tenantID,
		Model:    cfg.Type,
		Journeys: make([]domain.JourneyEntry, 0, len(items)),
	}
	for _, it := range items {
		rep.Journeys = append(rep.Journeys, journeyEntry(it))
	}
	return rep
}

func journeyEntry(it attributed) domain.JourneyEntry {
	j, res := it.journey, it.result
	conv := j.Conversion

	entry := domain.JourneyEntry{
		ConversionID:     conv.TouchpointID,
		OrderID:          conv.OrderID,
		CustomerID:       conv.CustomerID,
		SessionID:        conv.SessionID,
		ConversionValue:  conv.ConversionValue,
		ConversionType:   conv.ConversionType,
		ConvertedAt:      time.UnixMilli(conv.OccurredAt).UTC(),
		DurationHours:    decimal.NewFromInt(j.DurationMs()).DivRound(millisPerHour, 2),
		Touchpoints:      make([]domain.JourneyTouchpoint, len(j.Steps)),
		ChannelCredits:   make(map[string]string),
		TotalTouchpoints: len(j.Steps),
	}

	for i, st := range j.Steps {
		tp := st.Touchpoint
		entry.Touchpoints[i] = domain.JourneyTouchpoint{
			TouchpointID: tp.TouchpointID,
			Channel:      tp.Channel,
			Campaign:     tp.Campaign,
			Source:       tp.Source,
			Medium:       tp.Medium,
			OccurredAt:   time.UnixMilli(tp.OccurredAt).UTC(),
			Collapsed:    st.Collapsed,
			IsConversion: i == len(j.Steps)-1,
			Credit:       res.Steps[i].Credit,
		}
		entry.CollapsedDuplicate += st.Collapsed
	}

	for _, cc := range res.ByChannel() {
		entry.ChannelCredits[cc.Channel] = cc.Credit.String()
	}
	return entry
}

// ConversionPaths groups the range's journeys by channel sequence and returns
// the most frequent paths, at most limit of them.
func (s *Service) ConversionPaths(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig, limit int) ([]domain.ConversionPath, error) {
	if cfg.Type == "" {
		cfg.Type = domain.ModelLinear
	}
	if limit <= 0 {
		limit = DefaultPathLimit
	}
	if limit > MaxPathLimit {
		return nil, domain.NewValidationError("limit", "must be at most 100")
	}
	if err := s.prepare(ctx, tenantID, cfg); err != nil {
		return nil, err
	}

	type pathsResult struct {
		Paths []domain.ConversionPath `json:"paths"`
	}

	// Paths depend only on journey shape, so the model type is not part of the key.
	keyCfg := cfg
	keyCfg.Type = domain.ModelLinear
	keyCfg.HalfLifeDays, keyCfg.EdgeWeight, keyCfg.ExcludeConversionTouch = nil, nil, false

	res, err := cached(ctx, s, KindPaths, tenantID, r, keyCfg, func(ctx context.Context) (*pathsResult, error) {
		convs, err := s.conversions(ctx, tenantID, r)
		if err != nil {
			return nil, err
		}
		journeys, err := s.buildJourneys(ctx, tenantID, convs, journey.OptionsFromModel(cfg))
		if err != nil {
			return nil, err
		}
		return &pathsResult{Paths: conversionPaths(journeys)}, nil
	})
	if err != nil {
		return nil, err
	}

	if len(res.Paths) > limit {
		return res.Paths[:limit], nil
	}
	return res.Paths, nil
}

func conversionPaths(journeys []*domain.Journey) []domain.ConversionPath {
	type pathAcc struct {
		channels   []string
		count      int64
		value      decimal.Decimal
		steps      int64
		durationMs int64
	}

	byKey := make(map[string]*pathAcc)
	for _, j := range journeys {
		chs := j.Channels()
		key := strings.Join(chs, ">")
		a, ok := byKey[key]
		if !ok {
			a = &pathAcc{channels: chs, value: decimal.Zero}
			byKey[key] = a
		}
		a.count++
		a.value = a.value.Add(j.Conversion.ConversionValue)
		a.steps += int64(j.Len())
		a.durationMs += j.DurationMs()
	}

	out := make([]domain.ConversionPath, 0, len(byKey))
	for _, a := range byKey {
		n := decimal.NewFromInt(a.count)
		out = append(out, domain.ConversionPath{
			Channels:           a.channels,
			JourneyCount:       a.count,
			TotalValue:         a.value,
			AvgConversionValue: a.value.DivRound(n, 2),
			AvgTouchpoints:     decimal.NewFromInt(a.steps).DivRound(n, 2),
			AvgDurationHours:   decimal.NewFromInt(a.durationMs).Div(millisPerHour).DivRound(n, 2),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.JourneyCount != b.JourneyCount {
			return a.JourneyCount > b.JourneyCount
		}
		if c := a.TotalValue.Cmp(b.TotalValue); c != 0 {
			return c > 0
		}
		return strings.Join(a.Channels, ">") < strings.Join(b.Channels, ">")
	})
	return out
}

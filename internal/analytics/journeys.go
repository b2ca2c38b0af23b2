package analytics

import (
	"context"

	"attribution-engine/internal/attribution"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/journey"
	"attribution-engine/internal/observability"
)

// attributed is one conversion's journey and its allocation.
type attributed struct {
	journey *domain.Journey
	result  *domain.AttributionResult
}

// conversions lists the tenant's conversions in the range.
func (s *Service) conversions(ctx context.Context, tenantID string, r domain.DateRange) ([]*domain.Touchpoint, error) {
	convs, err := s.touchpoints.GetConversions(ctx, tenantID, r.StartMs(), r.EndMs())
	if err != nil {
		return nil, &domain.StorageError{Op: "get conversions", Err: err}
	}
	return convs, nil
}

// buildJourneys reconstructs one journey per conversion, in conversion order.
func (s *Service) buildJourneys(ctx context.Context, tenantID string, convs []*domain.Touchpoint, opts journey.Options) ([]*domain.Journey, error) {
	out := make([]*domain.Journey, len(convs))
	err := forEach(ctx, len(convs), s.workers, func(ctx context.Context, i int) error {
		j, err := s.builder.Build(ctx, tenantID, convs[i], opts)
		if err != nil {
			return err
		}
		observability.RecordJourney(j.Len())
		out[i] = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// attribute builds and allocates every conversion's journey.
// convs must be every tenant conversion in r; data_driven rates come from them.
func (s *Service) attribute(ctx context.Context, tenantID string, r domain.DateRange, convs []*domain.Touchpoint, cfg domain.ModelConfig) ([]attributed, error) {
	journeys, err := s.buildJourneys(ctx, tenantID, convs, journey.OptionsFromModel(cfg))
	if err != nil {
		return nil, err
	}
	rates, err := s.channelRates(ctx, tenantID, r, cfg, journeys)
	if err != nil {
		return nil, err
	}
	return s.allocate(ctx, journeys, cfg, rates)
}

// tenantRates computes data_driven rates from every tenant conversion in r.
// It returns nil for other models.
func (s *Service) tenantRates(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig) (attribution.Rates, error) {
	if cfg.Type != domain.ModelDataDriven {
		return nil, nil
	}
	convs, err := s.conversions(ctx, tenantID, r)
	if err != nil {
		return nil, err
	}
	journeys, err := s.buildJourneys(ctx, tenantID, convs, journey.OptionsFromModel(cfg))
	if err != nil {
		return nil, err
	}
	return s.channelRates(ctx, tenantID, r, cfg, journeys)
}

// channelRates derives data_driven rates from the tenant's conversion journeys in r.
func (s *Service) channelRates(ctx context.Context, tenantID string, r domain.DateRange, cfg domain.ModelConfig, journeys []*domain.Journey) (attribution.Rates, error) {
	if cfg.Type != domain.ModelDataDriven {
		return nil, nil
	}
	touches, err := s.touchpoints.CountByChannel(ctx, tenantID, r.StartMs()-cfg.LookbackMs(), r.EndMs()-1)
	if err != nil {
		return nil, &domain.StorageError{Op: "count touchpoints by channel", Err: err}
	}
	return ChannelRates(journeys, touches), nil
}

func (s *Service) allocate(ctx context.Context, journeys []*domain.Journey, cfg domain.ModelConfig, rates attribution.Rates) ([]attributed, error) {
	out := make([]attributed, len(journeys))
	err := forEach(ctx, len(journeys), s.workers, func(_ context.Context, i int) error {
		res, err := attribution.Allocate(journeys[i], cfg, rates)
		if err != nil {
			observability.RecordAllocationError(string(cfg.Type))
			return err
		}
		out[i] = attributed{journey: journeys[i], result: res}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChannelRates computes each channel's touches-to-conversions ratio: the number
// of journeys containing the channel divided by its touchpoint count.
// Channels without touches are omitted.
func ChannelRates(journeys []*domain.Journey, touches map[string]int64) attribution.Rates {
	converted := make(map[string]int64)
	for _, j := range journeys {
		seen := make(map[string]bool, len(j.Steps))
		for _, st := range j.Steps {
			ch := st.Touchpoint.Channel
			if !seen[ch] {
				seen[ch] = true
				converted[ch]++
			}
		}
	}

	rates := make(attribution.Rates, len(touches))
	for ch, n := range touches {
		if n <= 0 {
			continue
		}
		rate := float64(converted[ch]) / float64(n)
		if rate > 1 {
			rate = 1
		}
		rates[ch] = rate
	}
	return rates
}

package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribution-engine/internal/domain"
)

func TestJourneyReport_DefaultsToLinear(t *testing.T) {
	e := newEnv(t, 2)
	e.threeTouch(t)

	rep, err := e.svc.JourneyReport(context.Background(), "shop", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{})
	require.NoError(t, err)

	assert.Equal(t, domain.ModelLinear, rep.Model)
	require.Len(t, rep.Journeys, 1)

	j := rep.Journeys[0]
	assert.Equal(t, "conv1", j.ConversionID)
	assert.Equal(t, "order-conv1", j.OrderID)
	assert.Equal(t, "c1", j.CustomerID)
	assert.Equal(t, 3, j.TotalTouchpoints)
	assert.Equal(t, "240", j.DurationHours.String())
	assert.Equal(t, map[string]string{"google_ads": "30", "email": "30", "direct": "30"}, j.ChannelCredits)

	require.Len(t, j.Touchpoints, 3)
	assert.Equal(t, "google_ads", j.Touchpoints[0].Channel)
	assert.False(t, j.Touchpoints[0].IsConversion)
	assert.True(t, j.Touchpoints[2].IsConversion)
	assert.Equal(t, "30", j.Touchpoints[1].Credit.String())
}

func TestJourneyReport_OverlappingJourneys(t *testing.T) {
	e := newEnv(t, 2)
	e.touch(t, "t1", "c1", "google_ads", "", feb1-2*day)
	e.convert(t, "conv1", "c1", "direct", "50", feb1)
	e.touch(t, "t2", "c1", "email", "", feb1+day)
	e.convert(t, "conv2", "c1", "direct", "20", feb1+2*day)

	rep, err := e.svc.JourneyReport(context.Background(), "shop", feb(t, "2024-02-01", "2024-02-03"), domain.DefaultModelConfig(domain.ModelFirstTouch))
	require.NoError(t, err)
	require.Len(t, rep.Journeys, 2)

	// The second journey reaches back over the first conversion
	assert.Equal(t, 2, rep.Journeys[0].TotalTouchpoints)
	assert.Equal(t, 4, rep.Journeys[1].TotalTouchpoints)
	assert.Equal(t, "20", rep.Journeys[1].ChannelCredits["google_ads"])
}

func TestJourneyReport_CollapsedDuplicates(t *testing.T) {
	e := newEnv(t, 1)
	minute := int64(60 * 1000)
	e.touch(t, "t1", "c1", "social", "promo", feb1-day)
	e.touch(t, "t2", "c1", "social", "promo", feb1-day+5*minute)
	e.touch(t, "t3", "c1", "social", "promo", feb1-day+10*minute)
	e.convert(t, "conv1", "c1", "direct", "10", feb1)

	rep, err := e.svc.JourneyReport(context.Background(), "shop", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{})
	require.NoError(t, err)
	require.Len(t, rep.Journeys, 1)

	j := rep.Journeys[0]
	assert.Equal(t, 2, j.TotalTouchpoints)
	assert.Equal(t, 2, j.CollapsedDuplicate)
	assert.Equal(t, 2, j.Touchpoints[0].Collapsed)
}

func TestCustomerJourneys(t *testing.T) {
	e := newEnv(t, 2)
	e.threeTouch(t)
	e.touch(t, "x1", "c2", "social", "", feb1-day)
	e.convert(t, "conv2", "c2", "social", "15", feb1)

	rep, err := e.svc.CustomerJourneys(context.Background(), "shop", "c2", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{})
	require.NoError(t, err)
	require.Len(t, rep.Journeys, 1)
	assert.Equal(t, "conv2", rep.Journeys[0].ConversionID)
	assert.Equal(t, map[string]string{"social": "15"}, rep.Journeys[0].ChannelCredits)

	rep, err = e.svc.CustomerJourneys(context.Background(), "shop", "nobody", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{})
	require.NoError(t, err)
	assert.Empty(t, rep.Journeys)

	_, err = e.svc.CustomerJourneys(context.Background(), "shop", "", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{})
	assert.Error(t, err)
}

func TestCustomerJourneys_DataDrivenUsesTenantRates(t *testing.T) {
	e := newEnv(t, 2)
	e.threeTouch(t)
	e.touch(t, "y1", "c2", "google_ads", "", feb1-2*day)
	e.convert(t, "conv2", "c2", "direct", "15", feb1)
	e.touch(t, "z1", "c3", "email", "", feb1-day)

	cfg := domain.DefaultModelConfig(domain.ModelDataDriven)
	r := feb(t, "2024-02-01", "2024-02-01")

	tenant, err := e.svc.JourneyReport(context.Background(), "shop", r, cfg)
	require.NoError(t, err)
	var want map[string]string
	for _, j := range tenant.Journeys {
		if j.ConversionID == "conv1" {
			want = j.ChannelCredits
		}
	}
	// google_ads and direct convert every touch, email half of them
	assert.Equal(t, map[string]string{"google_ads": "36", "email": "18", "direct": "36"}, want)

	customer, err := e.svc.CustomerJourneys(context.Background(), "shop", "c1", r, cfg)
	require.NoError(t, err)
	require.Len(t, customer.Journeys, 1)
	assert.Equal(t, want, customer.Journeys[0].ChannelCredits)
}

func TestConversionPaths(t *testing.T) {
	e := newEnv(t, 2)
	// Two customers share the path google_ads > email > direct
	e.threeTouch(t)
	e.touch(t, "u1", "c2", "google_ads", "", feb1-4*day)
	e.touch(t, "u2", "c2", "email", "", feb1-2*day)
	e.convert(t, "conv2", "c2", "direct", "30", feb1+1000)
	// One customer converts with no prior touchpoints
	e.convert(t, "conv3", "c3", "direct", "500", feb1+2000)

	paths, err := e.svc.ConversionPaths(context.Background(), "shop", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{}, 0)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, []string{"google_ads", "email", "direct"}, paths[0].Channels)
	assert.Equal(t, int64(2), paths[0].JourneyCount)
	assert.Equal(t, "120", paths[0].TotalValue.String())
	assert.Equal(t, "60", paths[0].AvgConversionValue.String())
	assert.Equal(t, "3", paths[0].AvgTouchpoints.String())

	assert.Equal(t, []string{"direct"}, paths[1].Channels)

	limited, err := e.svc.ConversionPaths(context.Background(), "shop", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = e.svc.ConversionPaths(context.Background(), "shop", feb(t, "2024-02-01", "2024-02-01"), domain.ModelConfig{}, MaxPathLimit+1)
	assert.Error(t, err)
}

package verification

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribution-engine/internal/analytics"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage/memory"
)

const day = domain.MillisPerDay

// 2024-02-01T00:00:00Z
const feb1 = int64(1706745600000)

type fixture struct {
	svc *analytics.Service
	tps *memory.TouchpointStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var tick atomic.Int64
	tenants := memory.NewTenantStore()
	tps := memory.NewTouchpointStore()
	svc := analytics.NewService(analytics.Options{
		Tenants:     tenants,
		Touchpoints: tps,
		Rollups:     memory.NewRollupStore(),
		Now:         func() time.Time { return time.UnixMilli(feb1 + 10*day + tick.Add(1)) },
	})
	_, err := svc.Initialize(context.Background(), "shop")
	require.NoError(t, err)

	f := &fixture{svc: svc, tps: tps}
	f.insert(t, "t1", "google_ads", feb1-10*day, "")
	f.insert(t, "t2", "email", feb1-3*day, "")
	f.insert(t, "conv1", "direct", feb1, "90")
	return f
}

func (f *fixture) insert(t *testing.T, id, channel string, at int64, value string) {
	t.Helper()
	tp := &domain.Touchpoint{TouchpointID: id, TenantID: "shop", CustomerID: "c1", Channel: channel, OccurredAt: at}
	if value != "" {
		tp.ConversionValue = decimal.RequireFromString(value)
		tp.ConversionType = domain.DefaultConversionType
		tp.OrderID = "order-" + id
	}
	require.NoError(t, f.tps.Insert(context.Background(), tp))
}

func febRange(t *testing.T) domain.DateRange {
	t.Helper()
	r, err := domain.ParseDateRange("2024-02-01", "2024-02-01")
	require.NoError(t, err)
	return r
}

func TestVerify_DetectsMissingAndStaleSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := NewVerifier(f.svc)
	cfg := domain.DefaultModelConfig(domain.ModelLinear)

	// No snapshot yet
	res, err := v.Verify(ctx, "shop", febRange(t), cfg)
	require.NoError(t, err)
	assert.False(t, res.Match)
	assert.Equal(t, 0, res.StoredRows)
	assert.Empty(t, res.Report)
	require.Len(t, res.Rollups, 3)
	for _, d := range res.Rollups {
		assert.Equal(t, "missing", d.Actual)
	}

	// The previous verification persisted a snapshot
	res, err = v.Verify(ctx, "shop", febRange(t), cfg)
	require.NoError(t, err)
	assert.True(t, res.Match, "%+v", res.Rollups)
	assert.Equal(t, 3, res.StoredRows)

	// A late touchpoint makes the snapshot stale
	f.insert(t, "t3", "social", feb1-day, "")
	res, err = v.Verify(ctx, "shop", febRange(t), cfg)
	require.NoError(t, err)
	assert.False(t, res.Match)

	byKey := make(map[string][]Divergence)
	for _, d := range res.Rollups {
		byKey[d.Key] = append(byKey[d.Key], d)
	}
	require.Contains(t, byKey, "2024-02-01|social")
	assert.Equal(t, "missing", byKey["2024-02-01|social"][0].Actual)
	require.Contains(t, byKey, "2024-02-01|email")
	assert.Equal(t, "22.5", byKey["2024-02-01|email"][0].Expected)
	assert.Equal(t, "30", byKey["2024-02-01|email"][0].Actual)

	res, err = v.Verify(ctx, "shop", febRange(t), cfg)
	require.NoError(t, err)
	assert.True(t, res.Match)
}

func TestVerify_PropagatesErrors(t *testing.T) {
	f := newFixture(t)
	_, err := NewVerifier(f.svc).Verify(context.Background(), "missing", febRange(t), domain.DefaultModelConfig(domain.ModelLinear))
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCheckReport(t *testing.T) {
	f := newFixture(t)
	rep, err := f.svc.AttributionReport(context.Background(), "shop", febRange(t), domain.DefaultModelConfig(domain.ModelTimeDecay))
	require.NoError(t, err)
	assert.Empty(t, CheckReport(rep))

	rep.Channels[0].Revenue = rep.Channels[0].Revenue.Add(decimal.NewFromInt(1))
	rep.Summary.ChannelCount = 7
	divs := CheckReport(rep)
	require.Len(t, divs, 2)
	assert.Equal(t, "channels.revenue", divs[0].Field)
	assert.Equal(t, "90", divs[0].Expected)
	assert.Equal(t, "channelCount", divs[1].Field)
}

func TestCompareRollups_ExtraStoredRow(t *testing.T) {
	rep := &domain.AttributionReport{}
	divs := CompareRollups(rep, []*domain.RollupRow{
		{Day: "2024-02-01", Channel: "email", Campaign: "a", Revenue: decimal.NewFromInt(5), Orders: decimal.NewFromInt(1)},
	})
	require.Len(t, divs, 1)
	assert.Equal(t, Divergence{Key: "2024-02-01|email", Field: "row", Expected: "missing", Actual: "present"}, divs[0])
}

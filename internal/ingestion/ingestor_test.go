package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribution-engine/internal/cache"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage/memory"
)

type fixture struct {
	ingestor    *Ingestor
	touchpoints *memory.TouchpointStore
	cache       *cache.Memory
}

func newFixture(t *testing.T, tenants ...string) *fixture {
	t.Helper()

	tenantStore := memory.NewTenantStore()
	for _, id := range tenants {
		_, err := tenantStore.Ensure(context.Background(), id, 0)
		require.NoError(t, err)
	}
	tps := memory.NewTouchpointStore()
	c := cache.NewMemory()

	return &fixture{
		ingestor: NewIngestor(Options{
			Tenants:     tenantStore,
			Touchpoints: tps,
			Cache:       c,
		}),
		touchpoints: tps,
		cache:       c,
	}
}

func TestIngest_StoresTouchpoint(t *testing.T) {
	f := newFixture(t, "shop")
	ctx := context.Background()

	id, err := f.ingestor.Ingest(ctx, "shop", domain.TouchpointInput{
		CustomerID: "c1",
		Channel:    "email",
		OccurredAt: "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	tp, err := f.touchpoints.GetByID(ctx, "shop", id)
	require.NoError(t, err)
	assert.Equal(t, "email", tp.Channel)
	assert.Equal(t, "shop", tp.TenantID)
	assert.Equal(t, int64(1), tp.Seq)
}

func TestIngest_UnknownTenant(t *testing.T) {
	f := newFixture(t)

	_, err := f.ingestor.Ingest(context.Background(), "missing", domain.TouchpointInput{
		CustomerID: "c1",
		OccurredAt: "2024-01-01",
	})

	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.ID)
	assert.Equal(t, 0, f.touchpoints.Count())
}

func TestIngest_StructValidation(t *testing.T) {
	f := newFixture(t, "shop")

	_, err := f.ingestor.Ingest(context.Background(), "shop", domain.TouchpointInput{
		CustomerID: strings.Repeat("x", 129),
		OccurredAt: "2024-01-01",
	})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.FieldMap(), "customerId")
	assert.Equal(t, 0, f.touchpoints.Count())
}

func TestIngest_IdempotentOnTouchpointID(t *testing.T) {
	f := newFixture(t, "shop")
	ctx := context.Background()

	in := domain.TouchpointInput{TouchpointID: "tp-1", CustomerID: "c1", OccurredAt: "2024-01-01"}
	id1, err := f.ingestor.Ingest(ctx, "shop", in)
	require.NoError(t, err)
	id2, err := f.ingestor.Ingest(ctx, "shop", in)
	require.NoError(t, err)

	assert.Equal(t, "tp-1", id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, f.touchpoints.Count())
}

func TestIngest_IdempotentOnOrderID(t *testing.T) {
	f := newFixture(t, "shop")
	ctx := context.Background()

	first, err := f.ingestor.Ingest(ctx, "shop", domain.TouchpointInput{
		CustomerID: "c1", OccurredAt: "2024-01-01T10:00:00Z", ConversionValue: decPtr("10"), OrderID: "o-1",
	})
	require.NoError(t, err)

	// Same order re-sent by a webhook retry with a different timestamp
	second, err := f.ingestor.Ingest(ctx, "shop", domain.TouchpointInput{
		CustomerID: "c1", OccurredAt: "2024-01-01T10:00:05Z", ConversionValue: decPtr("10"), OrderID: "o-1",
	})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.touchpoints.Count())
}

func TestIngest_InvalidatesCoveringCache(t *testing.T) {
	f := newFixture(t, "shop")
	ctx := context.Background()

	gen, err := f.cache.Generation(ctx, "shop")
	require.NoError(t, err)
	// January 2024
	_, err = f.cache.Put(ctx, "shop", "jan", gen, 1704067200000, 1706745600000, []byte("{}"))
	require.NoError(t, err)
	// March 2024
	_, err = f.cache.Put(ctx, "shop", "mar", gen, 1709251200000, 1711929600000, []byte("{}"))
	require.NoError(t, err)

	_, err = f.ingestor.Ingest(ctx, "shop", domain.TouchpointInput{CustomerID: "c1", OccurredAt: "2024-01-15"})
	require.NoError(t, err)

	_, hit, _ := f.cache.Get(ctx, "shop", "jan")
	assert.False(t, hit)
	_, hit, _ = f.cache.Get(ctx, "shop", "mar")
	assert.True(t, hit)
}

func TestIngestBatch_AllOrNothingValidation(t *testing.T) {
	f := newFixture(t, "shop")
	ctx := context.Background()

	_, err := f.ingestor.IngestBatch(ctx, "shop", []domain.TouchpointInput{
		{CustomerID: "c1", OccurredAt: "2024-01-01"},
		{CustomerID: "c1"},
	})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.FieldMap(), "items[1].occurredAt")
	assert.Equal(t, 0, f.touchpoints.Count(), "nothing persisted")

	ids, err := f.ingestor.IngestBatch(ctx, "shop", []domain.TouchpointInput{
		{CustomerID: "c1", Channel: "email", OccurredAt: "2024-01-01"},
		{CustomerID: "c1", Channel: "social", OccurredAt: "2024-01-01"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	a, _ := f.touchpoints.GetByID(ctx, "shop", ids[0])
	b, _ := f.touchpoints.GetByID(ctx, "shop", ids[1])
	assert.True(t, a.Before(b), "batch order becomes insertion order")
}

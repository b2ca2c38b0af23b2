package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage"
)

func TestTouchpointStore_Integration(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ensureTenant(t, pool, "shop")
	store := NewTouchpointStore(pool)

	t.Run("insert assigns seq and round-trips", func(t *testing.T) {
		tp := &domain.Touchpoint{
			TouchpointID: "tp-1",
			TenantID:     "shop",
			CustomerID:   "cust-1",
			Channel:      "google_ads",
			Campaign:     "spring",
			Source:       "google",
			Medium:       "cpc",
			OccurredAt:   1704067200000,
		}
		require.NoError(t, store.Insert(ctx, tp))
		assert.Greater(t, tp.Seq, int64(0))

		got, err := store.GetByID(ctx, "shop", "tp-1")
		require.NoError(t, err)
		assert.Equal(t, "google_ads", got.Channel)
		assert.Equal(t, "spring", got.Campaign)
		assert.True(t, got.ConversionValue.IsZero())
		assert.Nil(t, got.ProductIDs)
	})

	t.Run("duplicate touchpoint id", func(t *testing.T) {
		tp := &domain.Touchpoint{TouchpointID: "tp-1", TenantID: "shop", CustomerID: "cust-1", Channel: "email", OccurredAt: 1}
		err := store.Insert(ctx, tp)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("conversion round-trips decimal value", func(t *testing.T) {
		conv := &domain.Touchpoint{
			TouchpointID:    "conv-1",
			TenantID:        "shop",
			CustomerID:      "cust-1",
			Channel:         "direct",
			OccurredAt:      1704153600000,
			ConversionValue: decimal.RequireFromString("90.123456"),
			ConversionType:  "purchase",
			OrderID:         "order-1",
			ProductIDs:      []string{"p1", "p2"},
		}
		require.NoError(t, store.Insert(ctx, conv))

		got, err := store.GetConversionByOrderID(ctx, "shop", "order-1")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", got.TouchpointID)
		assert.True(t, got.ConversionValue.Equal(decimal.RequireFromString("90.123456")))
		assert.Equal(t, []string{"p1", "p2"}, got.ProductIDs)
	})

	t.Run("duplicate order", func(t *testing.T) {
		conv := &domain.Touchpoint{
			TouchpointID: "conv-2", TenantID: "shop", CustomerID: "cust-1", Channel: "direct",
			OccurredAt: 1704153600001, ConversionValue: decimal.NewFromInt(1), OrderID: "order-1",
		}
		assert.ErrorIs(t, store.Insert(ctx, conv), storage.ErrDuplicateOrder)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		tp := &domain.Touchpoint{TouchpointID: "x", TenantID: "nobody", CustomerID: "c", Channel: "direct", OccurredAt: 1}
		assert.ErrorIs(t, store.Insert(ctx, tp), storage.ErrNotFound)
	})

	t.Run("identity ordering uses seq for ties", func(t *testing.T) {
		for _, id := range []string{"tie-b", "tie-a"} {
			tp := &domain.Touchpoint{TouchpointID: id, TenantID: "shop", SessionID: "s-1", Channel: "social", OccurredAt: 5000}
			require.NoError(t, store.Insert(ctx, tp))
		}

		got, err := store.GetByIdentity(ctx, "shop", "session:s-1", 0, 5000)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "tie-b", got[0].TouchpointID)
		assert.Equal(t, "tie-a", got[1].TouchpointID)
	})

	t.Run("conversions and channel counts", func(t *testing.T) {
		convs, err := store.GetConversions(ctx, "shop", 1704067200000, 1704240000000)
		require.NoError(t, err)
		require.Len(t, convs, 1)

		counts, err := store.CountByChannel(ctx, "shop", 0, 1704240000000)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts["google_ads"])
		assert.Equal(t, int64(2), counts["social"])
		assert.Equal(t, int64(1), counts["direct"])
	})
}

func TestTenantStore_Integration(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTenantStore(pool)

	created, err := store.Ensure(ctx, "shop", 1000)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Ensure(ctx, "shop", 2000)
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := store.Exists(ctx, "shop")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Ensure(ctx, "another", 3000)
	require.NoError(t, err)
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"another", "shop"}, ids)
}

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGetInvalidate(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	gen, err := c.Generation(ctx, "shop")
	require.NoError(t, err)

	ok, err := c.Put(ctx, "shop", "jan", gen, 1000, 2000, []byte("january"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.Put(ctx, "shop", "feb", gen, 2000, 3000, []byte("february"))
	require.NoError(t, err)
	require.True(t, ok)

	v, hit, err := c.Get(ctx, "shop", "jan")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "january", string(v))

	// Other tenants are isolated
	_, hit, _ = c.Get(ctx, "other", "jan")
	assert.False(t, hit)

	n, err := c.InvalidateCovering(ctx, "shop", 1500)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, hit, _ = c.Get(ctx, "shop", "jan")
	assert.False(t, hit)
	_, hit, _ = c.Get(ctx, "shop", "feb")
	assert.True(t, hit)

	// Upper bound is exclusive
	n, _ = c.InvalidateCovering(ctx, "shop", 3000)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, c.Len("shop"))
}

func TestMemory_PutDroppedAfterInvalidation(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	gen, _ := c.Generation(ctx, "shop")

	// An ingest lands while the report is being computed
	_, err := c.InvalidateCovering(ctx, "shop", 42)
	require.NoError(t, err)

	ok, err := c.Put(ctx, "shop", "k", gen, 0, 100, []byte("stale"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len("shop"))
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	ctx := context.Background()

	ok, err := c.Put(ctx, "shop", "k", 0, 0, 10, []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, hit, err := c.Get(ctx, "shop", "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestParseSpan(t *testing.T) {
	from, to, ok := parseSpan(formatSpan(-5, 99))
	assert.True(t, ok)
	assert.Equal(t, int64(-5), from)
	assert.Equal(t, int64(99), to)

	_, _, ok = parseSpan("garbage")
	assert.False(t, ok)
}

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a connected cache.
func setupRedis(t *testing.T) (*Redis, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := DialRedis(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)

	cleanup := func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	}

	return NewRedis(client, RedisOptions{Prefix: "test", TTL: time.Minute}), cleanup
}

func TestRedis_Integration(t *testing.T) {
	c, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	gen, err := c.Generation(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	ok, err := c.Put(ctx, "shop", "jan", gen, 1000, 2000, []byte("january"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.Put(ctx, "shop", "feb", gen, 2000, 3000, []byte("february"))
	require.NoError(t, err)
	require.True(t, ok)

	v, hit, err := c.Get(ctx, "shop", "jan")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "january", string(v))

	n, err := c.InvalidateCovering(ctx, "shop", 1999)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, hit, err = c.Get(ctx, "shop", "jan")
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = c.Get(ctx, "shop", "feb")
	require.NoError(t, err)
	assert.True(t, hit)

	// Stale generation write is dropped
	ok, err = c.Put(ctx, "shop", "mar", gen, 3000, 4000, []byte("march"))
	require.NoError(t, err)
	assert.False(t, ok)

	newGen, err := c.Generation(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), newGen)
}

package stores

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribution-engine/internal/cache"
	"attribution-engine/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), config.Config{UseMemory: true}, discard())
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.Tenants)
	assert.NotNil(t, s.Touchpoints)
	assert.NotNil(t, s.Rollups)
	assert.IsType(t, &cache.Memory{}, s.Cache)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_RequiresDSNs(t *testing.T) {
	_, err := Open(context.Background(), config.Config{}, discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

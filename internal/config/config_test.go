package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "KAFKA_BROKERS", "CACHE_TTL", "LOG_LEVEL", "MAX_BATCH", "USE_MEMORY"} {
		t.Setenv(k, "")
	}

	c := FromEnv()
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Nil(t, c.KafkaBrokers)
	assert.Equal(t, time.Hour, c.CacheTTL)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Equal(t, 500, c.MaxBatch)
	assert.False(t, c.UseMemory)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MAX_BATCH", "not-a-number")
	t.Setenv("USE_MEMORY", "true")

	c := FromEnv()
	assert.Equal(t, ":9999", c.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, c.CacheTTL)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, 500, c.MaxBatch, "invalid values fall back to the default")
	assert.True(t, c.UseMemory)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{UseMemory: true}.Validate())
	assert.NoError(t, Config{PostgresDSN: "pg", ClickhouseDSN: "ch"}.Validate())

	err := Config{PostgresDSN: "pg"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLICKHOUSE_DSN")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nATTR_TEST_A=1\nATTR_TEST_B = \"quoted\"\nmalformed\nATTR_TEST_C=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ATTR_TEST_C", "from-env")
	t.Setenv("ATTR_TEST_A", "")
	os.Unsetenv("ATTR_TEST_A")
	t.Setenv("ATTR_TEST_B", "")
	os.Unsetenv("ATTR_TEST_B")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "1", os.Getenv("ATTR_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("ATTR_TEST_B"))
	assert.Equal(t, "from-env", os.Getenv("ATTR_TEST_C"), "existing vars are kept")

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "json", slog.LevelWarn).Info("dropped")
	newLogger(&buf, "json", slog.LevelWarn).Warn("kept", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, closer := NewLogger(Config{LogFile: path, LogFormat: "text"}, "test")
	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
	assert.Contains(t, string(data), "component=test")
}

// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds settings shared by the server, ingest and report commands.
// Command-line flags use these values as their defaults.
type Config struct {
	HTTPAddr      string
	PostgresDSN   string
	ClickhouseDSN string
	RedisURL      string
	UseMemory     bool

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	WSEndpoint   string

	JWTSecret    string
	MaxBodyBytes int64
	MaxBatch     int

	Workers  int
	CacheTTL time.Duration

	ReportBucket string
	ReportPrefix string

	RollupInterval time.Duration
	RollupDays     int

	LogLevel  slog.Level
	LogFormat string
	LogFile   string
}

// FromEnv reads configuration from environment variables.
func FromEnv() Config {
	return Config{
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		RedisURL:      os.Getenv("REDIS_URL"),
		UseMemory:     envBool("USE_MEMORY", false),

		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   envOr("KAFKA_TOPIC", "touchpoints"),
		KafkaGroupID: envOr("KAFKA_GROUP_ID", "attribution-ingest"),
		WSEndpoint:   os.Getenv("WS_ENDPOINT"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		MaxBodyBytes: int64(envInt("MAX_BODY_BYTES", 1<<20)),
		MaxBatch:     envInt("MAX_BATCH", 500),

		Workers:  envInt("WORKERS", 0),
		CacheTTL: envDuration("CACHE_TTL", time.Hour),

		ReportBucket: os.Getenv("REPORT_S3_BUCKET"),
		ReportPrefix: envOr("REPORT_S3_PREFIX", "reports"),

		RollupInterval: envDuration("ROLLUP_INTERVAL", 0),
		RollupDays:     envInt("ROLLUP_DAYS", 7),

		LogLevel:  parseLevel(os.Getenv("LOG_LEVEL")),
		LogFormat: envOr("LOG_FORMAT", "json"),
		LogFile:   os.Getenv("LOG_FILE"),
	}
}

// Validate checks that persistent storage is configured unless running in memory.
func (c Config) Validate() error {
	if c.UseMemory {
		return nil
	}
	var missing []string
	if c.PostgresDSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if c.ClickhouseDSN == "" {
		missing = append(missing, "CLICKHOUSE_DSN")
	}
	if len(missing) > 0 {
		return errors.New(strings.Join(missing, ", ") + " required (or set USE_MEMORY=true)")
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE lines from path into the environment.
// Existing variables are not overridden. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(k string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(k), ",") {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

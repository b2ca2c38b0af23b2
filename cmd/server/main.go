// Package main runs the attribution API server:
// - HTTP: attribution, journey and path reports, touchpoint ingestion
// - Ingestion (optional): Kafka and WebSocket touchpoint feeds
// - Rollups (optional): scheduled refresh of daily attribution snapshots
// - Metrics: Prometheus /metrics on the same listener
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"attribution-engine/internal/analytics"
	"attribution-engine/internal/config"
	"attribution-engine/internal/httpapi"
	"attribution-engine/internal/ingestion"
	"attribution-engine/internal/orchestrator"
	"attribution-engine/internal/stores"
)

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.FromEnv()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string")
	redisURL := flag.String("redis-url", cfg.RedisURL, "Redis URL for the report cache")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	ingest := flag.Bool("ingest", false, "Also consume Kafka/WebSocket touchpoint feeds in this process")
	workers := flag.Int("workers", cfg.Workers, "Per-report parallelism (0 = NumCPU)")
	rollupInterval := flag.Duration("rollup-interval", cfg.RollupInterval, "Rollup refresh interval (0 disables)")
	rollupDays := flag.Int("rollup-days", cfg.RollupDays, "Trailing days recomputed by each rollup refresh")
	flag.Parse()

	cfg.HTTPAddr = *addr
	cfg.PostgresDSN = *postgresDSN
	cfg.ClickhouseDSN = *clickhouseDSN
	cfg.RedisURL = *redisURL
	cfg.UseMemory = *useMemory
	cfg.Workers = *workers
	cfg.RollupInterval = *rollupInterval
	cfg.RollupDays = *rollupDays

	logger, closer := config.NewLogger(cfg, "server")
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	set, err := stores.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer set.Close()

	svc := analytics.NewService(analytics.Options{
		Tenants:     set.Tenants,
		Touchpoints: set.Touchpoints,
		Rollups:     set.Rollups,
		Cache:       set.Cache,
		Workers:     cfg.Workers,
		Logger:      logger.With("component", "analytics"),
	})
	ingestor := ingestion.NewIngestor(ingestion.Options{
		Tenants:     set.Tenants,
		Touchpoints: set.Touchpoints,
		Cache:       set.Cache,
		Logger:      logger.With("component", "ingestion"),
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Analytics:    svc,
			Ingestor:     ingestor,
			Ready:        set.Ping,
			Logger:       logger.With("component", "http"),
			JWTSecret:    []byte(cfg.JWTSecret),
			MaxBodyBytes: cfg.MaxBodyBytes,
			MaxBatch:     cfg.MaxBatch,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", "signal", sig.String())
			os.Exit(1)
		case <-done:
		}
	}()

	if *ingest {
		sources, err := buildSources(cfg, logger)
		if err != nil {
			logger.Error("failed to build sources", "error", err)
			os.Exit(1)
		}
		if len(sources) == 0 {
			logger.Warn("--ingest set but no KAFKA_BROKERS or WS_ENDPOINT configured")
		} else {
			runner := ingestion.NewRunner(ingestion.RunnerOptions{
				Ingestor: ingestor,
				Sources:  sources,
				Logger:   logger.With("component", "runner"),
			})
			go func() {
				if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("ingestion runner stopped", "error", err)
				}
				logger.Info("ingestion runner finished", "stats", runner.Stats())
			}()
		}
	}

	if cfg.RollupInterval > 0 {
		orch := orchestrator.New(orchestrator.Options{
			Tenants: set.Tenants,
			Source:  svc,
			Days:    cfg.RollupDays,
			Logger:  logger.With("component", "orchestrator"),
		})
		go func() {
			_ = orch.RunEvery(ctx, cfg.RollupInterval)
		}()
	}

	logger.Info("http server listening", "addr", cfg.HTTPAddr, "memory", cfg.UseMemory, "auth", cfg.JWTSecret != "")
	err = srv.ListenAndServe()
	close(done)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// buildSources creates touchpoint sources from configuration.
func buildSources(cfg config.Config, logger *slog.Logger) ([]ingestion.TouchpointSource, error) {
	var sources []ingestion.TouchpointSource
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := ingestion.NewKafkaSource(ingestion.KafkaSourceConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger.With("source", "kafka"))
		if err != nil {
			return nil, err
		}
		sources = append(sources, ks)
	}
	if cfg.WSEndpoint != "" {
		ws, err := ingestion.NewWSSource(ingestion.DefaultWSSourceConfig(cfg.WSEndpoint), logger.With("source", "ws"))
		if err != nil {
			return nil, err
		}
		sources = append(sources, ws)
	}
	logger.Info("touchpoint sources", "count", len(sources), "kafka", strings.Join(cfg.KafkaBrokers, ","), "ws", cfg.WSEndpoint)
	return sources, nil
}

// Package main runs touchpoint ingestion without the HTTP API.
//
// Modes:
//   - live: consume Kafka and/or WebSocket feeds until interrupted
//   - file: ingest a JSON file holding one touchpoint or an array of them
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

	"attribution-engine/internal/config"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/ingestion"
	"attribution-engine/internal/observability"
	"attribution-engine/internal/stores"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.FromEnv()

	// Parse flags
	mode := flag.String("mode", "live", "Ingestion mode: live or file")
	file := flag.String("file", "", "JSON file to ingest (mode=file)")
	tenant := flag.String("tenant", "", "Tenant for payloads without tenantId; provisioned if missing")
	brokers := flag.String("kafka-brokers", strings.Join(cfg.KafkaBrokers, ","), "Comma-separated Kafka brokers")
	topic := flag.String("kafka-topic", cfg.KafkaTopic, "Kafka topic")
	wsEndpoint := flag.String("ws-endpoint", cfg.WSEndpoint, "Collector WebSocket endpoint")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	cfg.KafkaBrokers = splitList(*brokers)
	cfg.KafkaTopic = *topic
	cfg.WSEndpoint = *wsEndpoint
	cfg.UseMemory = *useMemory

	logger, closer := config.NewLogger(cfg, "ingest")
	defer closer.Close()
	slog.SetDefault(logger)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			logger.Info("metrics server listening", "addr", *metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	set, err := stores.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer set.Close()

	if *tenant != "" {
		if _, err := set.Tenants.Ensure(ctx, *tenant, time.Now().UnixMilli()); err != nil {
			logger.Error("failed to provision tenant", "tenant", *tenant, "error", err)
			os.Exit(1)
		}
	}

	ingestor := ingestion.NewIngestor(ingestion.Options{
		Tenants:     set.Tenants,
		Touchpoints: set.Touchpoints,
		Cache:       set.Cache,
		Logger:      logger,
	})

	switch *mode {
	case "live":
		err = runLive(ctx, cfg, *tenant, ingestor, logger)
	case "file":
		err = runFile(ctx, *file, *tenant, ingestor, logger)
	default:
		logger.Error("unknown mode", "mode", *mode)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ingestion failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion finished", "mode", *mode)
}

func runLive(ctx context.Context, cfg config.Config, tenant string, ingestor *ingestion.Ingestor, logger *slog.Logger) error {
	var sources []ingestion.TouchpointSource
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := ingestion.NewKafkaSource(ingestion.KafkaSourceConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger.With("source", "kafka"))
		if err != nil {
			return err
		}
		sources = append(sources, ks)
	}
	if cfg.WSEndpoint != "" {
		wsCfg := ingestion.DefaultWSSourceConfig(cfg.WSEndpoint)
		wsCfg.DefaultTenant = tenant
		ws, err := ingestion.NewWSSource(wsCfg, logger.With("source", "ws"))
		if err != nil {
			return err
		}
		sources = append(sources, ws)
	}
	if len(sources) == 0 {
		return errors.New("no sources: set --kafka-brokers or --ws-endpoint")
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Ingestor: ingestor,
		Sources:  sources,
		Logger:   logger,
	})
	err := runner.Run(ctx)
	stats := runner.Stats()
	logger.Info("runner stats", "ingested", stats.Ingested, "rejected", stats.Rejected, "failed", stats.Failed)
	return err
}

func runFile(ctx context.Context, path, tenant string, ingestor *ingestion.Ingestor, logger *slog.Logger) error {
	if path == "" {
		return errors.New("--file is required in file mode")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	items, err := ingestion.DecodePayload(data, tenant)
	if err != nil {
		return err
	}

	// Group by tenant so each batch validates and stores independently.
	byTenant := make(map[string][]domain.TouchpointInput)
	var order []string
	for _, it := range items {
		if _, ok := byTenant[it.TenantID]; !ok {
			order = append(order, it.TenantID)
		}
		byTenant[it.TenantID] = append(byTenant[it.TenantID], it)
	}

	for _, t := range order {
		ids, err := ingestor.IngestBatch(ctx, t, byTenant[t])
		if err != nil {
			return err
		}
		logger.Info("ingested file batch", "tenant", t, "touchpoints", len(ids))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

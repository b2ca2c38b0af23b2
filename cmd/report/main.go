// Package main generates attribution report artifacts for one tenant and range.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"attribution-engine/internal/analytics"
	"attribution-engine/internal/config"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/ingestion"
	"attribution-engine/internal/reporting"
	"attribution-engine/internal/stores"
	"attribution-engine/internal/verification"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.FromEnv()

	// Parse flags
	tenant := flag.String("tenant", "", "Tenant (shop domain) to report on")
	start := flag.String("start", "", "First day of the range (YYYY-MM-DD)")
	end := flag.String("end", "", "Last day of the range (YYYY-MM-DD)")
	model := flag.String("model", string(domain.ModelLinear), "Attribution model")
	halfLife := flag.Float64("half-life-days", domain.DefaultHalfLifeDays, "time_decay half-life in days")
	edge := flag.Float64("edge-weight", domain.DefaultEdgeWeight, "position_based edge weight")
	lookback := flag.Int("lookback-days", domain.DefaultLookbackDays, "Journey lookback window in days")
	formats := flag.String("formats", "md,csv,xlsx", "Comma-separated output formats: md, csv, xlsx")
	compare := flag.Bool("compare", false, "Include per-model revenue comparison")
	rollups := flag.Bool("rollups", false, "Also export stored daily rollups for the model")
	verify := flag.Bool("verify", false, "Check stored rollups against a fresh computation before reporting")
	outputDir := flag.String("output-dir", "reports", "Output directory when no S3 bucket is configured")
	bucket := flag.String("s3-bucket", cfg.ReportBucket, "Upload artifacts to this S3 bucket instead of output-dir")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage")
	useFixtures := flag.Bool("use-fixtures", false, "Load demo touchpoints into in-memory storage")
	flag.Parse()

	if *useFixtures {
		*useMemory = true
		if *tenant == "" {
			*tenant = fixtureTenant
		}
		if *start == "" {
			*start, *end = fixtureStart, fixtureEnd
		}
	}
	cfg.UseMemory = *useMemory

	logger, closer := config.NewLogger(cfg, "report")
	defer closer.Close()

	if *tenant == "" || *start == "" || *end == "" {
		fmt.Fprintln(os.Stderr, "Error: --tenant, --start and --end are required (or use --use-fixtures)")
		os.Exit(1)
	}

	rng, err := domain.ParseDateRange(*start, *end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	mc := domain.ModelConfig{
		Type:         domain.ModelType(*model),
		HalfLifeDays: halfLife,
		EdgeWeight:   edge,
		LookbackDays: lookback,
	}
	if err := mc.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	set, err := stores.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening stores: %v\n", err)
		os.Exit(1)
	}
	defer set.Close()

	if *useFixtures {
		ingestor := ingestion.NewIngestor(ingestion.Options{
			Tenants:     set.Tenants,
			Touchpoints: set.Touchpoints,
			Cache:       set.Cache,
			Logger:      logger,
		})
		if err := loadFixtures(ctx, set.Tenants, ingestor); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading fixtures: %v\n", err)
			os.Exit(1)
		}
	}

	svc := analytics.NewService(analytics.Options{
		Tenants:     set.Tenants,
		Touchpoints: set.Touchpoints,
		Rollups:     set.Rollups,
		Cache:       set.Cache,
		Workers:     cfg.Workers,
		Logger:      logger,
	})

	if *verify {
		res, err := verification.NewVerifier(svc).Verify(ctx, *tenant, rng, mc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error verifying rollups: %v\n", err)
			os.Exit(1)
		}
		printVerification(res)
	}

	rep, err := reporting.NewGenerator(svc).WithComparison(*compare).Generate(ctx, *tenant, rng, mc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	artifacts, err := render(rep, strings.Split(*formats, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering report: %v\n", err)
		os.Exit(1)
	}

	if *rollups {
		rows, err := svc.StoredRollups(ctx, *tenant, rng, mc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading rollups: %v\n", err)
			os.Exit(1)
		}
		csv, err := reporting.RenderRollupCSV(rows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering rollups: %v\n", err)
			os.Exit(1)
		}
		artifacts = append(artifacts, artifact{"rollups.csv", reporting.ContentTypeCSV, []byte(csv)})
	}

	var archiver reporting.Archiver
	prefix := ""
	if *bucket != "" {
		s3a, err := reporting.NewS3Archiver(ctx, *bucket)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating S3 archiver: %v\n", err)
			os.Exit(1)
		}
		archiver = s3a
		prefix = cfg.ReportPrefix
	} else {
		archiver = reporting.NewDirArchiver(*outputDir)
	}

	stamp := rep.GeneratedAt.Format("150405")
	fmt.Println("Attribution report generated successfully:")
	for _, a := range artifacts {
		name := reporting.ObjectKey(prefix, *tenant, rep.GeneratedAt, fmt.Sprintf("%s_%s_%s", mc.Type, stamp, a.name))
		loc, err := archiver.Archive(ctx, name, a.contentType, a.data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error archiving %s: %v\n", a.name, err)
			os.Exit(1)
		}
		fmt.Printf("  - %s\n", loc)
	}
	logger.Info("report archived", "tenant", *tenant, "range", rng.String(), "model", mc.Key(), "artifacts", len(artifacts))
}

func printVerification(res *verification.Result) {
	if res.Match {
		fmt.Printf("Verification passed: %d stored rollup rows match\n", res.StoredRows)
		return
	}
	fmt.Printf("Verification found %d divergences (%d stored rollup rows):\n", len(res.Report)+len(res.Rollups), res.StoredRows)
	for _, d := range append(res.Report, res.Rollups...) {
		fmt.Printf("  - %s %s: expected %s, got %s\n", d.Key, d.Field, d.Expected, d.Actual)
	}
}

type artifact struct {
	name        string
	contentType string
	data        []byte
}

func render(rep *reporting.Report, formats []string) ([]artifact, error) {
	var out []artifact
	for _, f := range formats {
		switch strings.TrimSpace(f) {
		case "md":
			out = append(out, artifact{"report.md", reporting.ContentTypeMarkdown, []byte(reporting.RenderMarkdown(rep))})
		case "csv":
			channels, err := reporting.RenderCSV(rep.Attribution)
			if err != nil {
				return nil, err
			}
			campaigns, err := reporting.RenderCampaignCSV(rep.Attribution)
			if err != nil {
				return nil, err
			}
			out = append(out,
				artifact{"channels.csv", reporting.ContentTypeCSV, []byte(channels)},
				artifact{"campaigns.csv", reporting.ContentTypeCSV, []byte(campaigns)},
			)
		case "xlsx":
			data, err := reporting.RenderXLSX(rep)
			if err != nil {
				return nil, err
			}
			out = append(out, artifact{"report.xlsx", reporting.ContentTypeXLSX, data})
		case "":
		default:
			return nil, fmt.Errorf("unknown format %q", f)
		}
	}
	return out, nil
}


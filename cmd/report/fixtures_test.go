package main

import (
	"context"
	"testing"

	"attribution-engine/internal/analytics"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/ingestion"
	"attribution-engine/internal/reporting"
	"attribution-engine/internal/storage/memory"
)

func TestFixturesProduceReport(t *testing.T) {
	ctx := context.Background()
	tenants := memory.NewTenantStore()
	tps := memory.NewTouchpointStore()

	ingestor := ingestion.NewIngestor(ingestion.Options{Tenants: tenants, Touchpoints: tps})
	if err := loadFixtures(ctx, tenants, ingestor); err != nil {
		t.Fatalf("loadFixtures failed: %v", err)
	}

	svc := analytics.NewService(analytics.Options{Tenants: tenants, Touchpoints: tps})
	rng, err := domain.ParseDateRange(fixtureStart, fixtureEnd)
	if err != nil {
		t.Fatalf("ParseDateRange failed: %v", err)
	}

	rep, err := reporting.NewGenerator(svc).Generate(ctx, fixtureTenant, rng, domain.DefaultModelConfig(domain.ModelLinear))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := rep.Attribution.Summary.TotalRevenue.StringFixed(2); got != "305.50" {
		t.Errorf("total revenue = %s, want 305.50", got)
	}
	if rep.Attribution.Summary.TotalOrders != 4 {
		t.Errorf("total orders = %d, want 4", rep.Attribution.Summary.TotalOrders)
	}

	artifacts, err := render(rep, []string{"md", "csv", "xlsx"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(artifacts) != 4 {
		t.Errorf("expected 4 artifacts, got %d", len(artifacts))
	}
	if _, err := render(rep, []string{"pdf"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

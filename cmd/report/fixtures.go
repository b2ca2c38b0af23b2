package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/ingestion"
	"attribution-engine/internal/storage"
)

// Demo data covers a week of February 2024 for one shop.
const (
	fixtureTenant = "demo.myshopify.com"
	fixtureStart  = "2024-02-01"
	fixtureEnd    = "2024-02-07"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fixtureTouchpoints() []domain.TouchpointInput {
	return []domain.TouchpointInput{
		// c1: paid search, email, then direct purchase
		{CustomerID: "c1", Source: "google", Medium: "cpc", Campaign: "brand", OccurredAt: "2024-01-25T09:00:00Z"},
		{CustomerID: "c1", Medium: "email", Campaign: "newsletter", OccurredAt: "2024-01-30T18:30:00Z"},
		{CustomerID: "c1", OccurredAt: "2024-02-01T10:00:00Z", ConversionValue: dec("120.00"), OrderID: "1001"},

		// c2: social twice within the collapse window, then organic search purchase
		{CustomerID: "c2", Source: "facebook", Medium: "social", Campaign: "spring", OccurredAt: "2024-02-02T12:00:00Z"},
		{CustomerID: "c2", Source: "facebook", Medium: "social", Campaign: "spring", OccurredAt: "2024-02-02T12:10:00Z"},
		{CustomerID: "c2", Referrer: "https://www.google.com/search?q=shop", OccurredAt: "2024-02-04T08:00:00Z", ConversionValue: dec("80.00"), OrderID: "1002"},

		// anonymous session converting from a referral
		{SessionID: "s-77", Referrer: "https://blog.example.org/review", OccurredAt: "2024-02-05T15:00:00Z"},
		{SessionID: "s-77", OccurredAt: "2024-02-05T15:20:00Z", ConversionValue: dec("45.50"), OrderID: "1003"},

		// c1 returns through email
		{CustomerID: "c1", Medium: "email", Campaign: "winback", OccurredAt: "2024-02-06T07:00:00Z"},
		{CustomerID: "c1", OccurredAt: "2024-02-07T21:45:00Z", ConversionValue: dec("60.00"), OrderID: "1004"},
	}
}

func loadFixtures(ctx context.Context, tenants storage.TenantStore, ingestor *ingestion.Ingestor) error {
	if _, err := tenants.Ensure(ctx, fixtureTenant, time.Now().UnixMilli()); err != nil {
		return err
	}
	_, err := ingestor.IngestBatch(ctx, fixtureTenant, fixtureTouchpoints())
	return err
}

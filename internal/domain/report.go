package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO date format accepted for report ranges.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of whole UTC days.
type DateRange struct {
	Start time.Time // 00:00 UTC of the first day
	End   time.Time // 00:00 UTC of the last day
}

// ParseDateRange parses ISO dates into a DateRange.
func ParseDateRange(start, end string) (DateRange, error) {
	var errs []FieldError
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		errs = append(errs, FieldError{Field: "startDate", Message: "must be an ISO date (YYYY-MM-DD)"})
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		errs = append(errs, FieldError{Field: "endDate", Message: "must be an ISO date (YYYY-MM-DD)"})
	}
	if len(errs) == 0 && e.Before(s) {
		errs = append(errs, FieldError{Field: "endDate", Message: "must not be before startDate"})
	}
	if len(errs) > 0 {
		return DateRange{}, &ValidationError{Fields: errs}
	}
	return DateRange{Start: s.UTC(), End: e.UTC()}, nil
}

// StartMs returns the first millisecond of the range.
func (r DateRange) StartMs() int64 {
	return r.Start.UnixMilli()
}

// EndMs returns the exclusive upper bound of the range (start of the day after End).
func (r DateRange) EndMs() int64 {
	return r.End.AddDate(0, 0, 1).UnixMilli()
}

// String formats the range as "start..end".
func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// DayOf returns the UTC day of a millisecond timestamp.
func DayOf(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(DateLayout)
}

// ChannelSummary is a per-channel row of an attribution report.
type ChannelSummary struct {
	Channel     string          `json:"channel"`
	Revenue     decimal.Decimal `json:"revenue"`
	Orders      decimal.Decimal `json:"orders"`
	Touchpoints int64           `json:"touchpoints"`
}

// CampaignSummary is a per-(channel, campaign) row of an attribution report.
type CampaignSummary struct {
	Channel     string          `json:"channel"`
	Campaign    string          `json:"campaign"`
	Revenue     decimal.Decimal `json:"revenue"`
	Orders      decimal.Decimal `json:"orders"`
	Touchpoints int64           `json:"touchpoints"`
}

// DailyChannelSummary is a per-(day, channel) row of an attribution report.
type DailyChannelSummary struct {
	Day     string          `json:"day"`
	Channel string          `json:"channel"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  decimal.Decimal `json:"orders"`
}

// ReportSummary holds tenant-level totals.
type ReportSummary struct {
	TotalRevenue           decimal.Decimal `json:"totalRevenue"`
	TotalOrders            int64           `json:"totalOrders"`
	ChannelCount           int             `json:"channelCount"`
	AverageTouchpoints     decimal.Decimal `json:"averageTouchpoints"`
	AverageConversionHours decimal.Decimal `json:"averageConversionTime"`
}

// AttributionReport is the per-channel credit roll-up for a tenant and range.
type AttributionReport struct {
	TenantID  string                `json:"tenantId"`
	Range     DateRange             `json:"-"`
	Model     ModelType             `json:"model"`
	ModelKey  string                `json:"-"`
	Channels  []ChannelSummary      `json:"analytics"`
	Campaigns []CampaignSummary     `json:"campaigns"`
	Daily     []DailyChannelSummary `json:"daily"`
	Summary   ReportSummary         `json:"summary"`
}

// JourneyTouchpoint is one step of a journey report entry.
type JourneyTouchpoint struct {
	TouchpointID string          `json:"touchpointId"`
	Channel      string          `json:"channel"`
	Campaign     string          `json:"campaign,omitempty"`
	Source       string          `json:"source,omitempty"`
	Medium       string          `json:"medium,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Collapsed    int             `json:"collapsed,omitempty"`
	IsConversion bool            `json:"isConversion"`
	Credit       decimal.Decimal `json:"credit"`
}

// JourneyEntry is one conversion and its journey with per-step credit.
type JourneyEntry struct {
	ConversionID       string              `json:"conversionId"`
	OrderID            string              `json:"orderId,omitempty"`
	CustomerID         string              `json:"customerId,omitempty"`
	SessionID          string              `json:"sessionId,omitempty"`
	ConversionValue    decimal.Decimal     `json:"conversionValue"`
	ConversionType     string              `json:"conversionType"`
	ConvertedAt        time.Time           `json:"convertedAt"`
	DurationHours      decimal.Decimal     `json:"durationHours"`
	Touchpoints        []JourneyTouchpoint `json:"touchpoints"`
	ChannelCredits     map[string]string   `json:"channelCredits"`
	TotalTouchpoints   int                 `json:"totalTouchpoints"`
	CollapsedDuplicate int                 `json:"collapsedDuplicates"`
}

// JourneyReport lists per-conversion journeys for a tenant and range.
type JourneyReport struct {
	TenantID string         `json:"tenantId"`
	Range    DateRange      `json:"-"`
	Model    ModelType      `json:"model"`
	Journeys []JourneyEntry `json:"journeys"`
}

// ConversionPath aggregates journeys sharing the same channel sequence.
type ConversionPath struct {
	Channels           []string        `json:"channels"`
	JourneyCount       int64           `json:"journeyCount"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	AvgConversionValue decimal.Decimal `json:"avgConversionValue"`
	AvgTouchpoints     decimal.Decimal `json:"avgTouchpoints"`
	AvgDurationHours   decimal.Decimal `json:"avgDurationHours"`
}

// RollupRow is a persisted per-day, per-channel, per-campaign credit snapshot.
type RollupRow struct {
	TenantID    string
	ModelKey    string
	Day         string
	Channel     string
	Campaign    string
	Revenue     decimal.Decimal
	Orders      decimal.Decimal
	Touchpoints int64
	ComputedAt  int64 // Unix ms; the latest snapshot per day wins
}

// Tenant is a provisioned merchant.
type Tenant struct {
	ID        string
	CreatedAt int64
}

package reporting

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"attribution-engine/internal/domain"
)

// RenderCSV renders per-channel attribution rows as CSV.
func RenderCSV(rep *domain.AttributionReport) (string, error) {
	rows := [][]string{{"channel", "revenue", "orders", "touchpoints"}}
	for _, c := range rep.Channels {
		rows = append(rows, []string{
			c.Channel,
			c.Revenue.StringFixed(2),
			c.Orders.StringFixed(4),
			strconv.FormatInt(c.Touchpoints, 10),
		})
	}
	return writeCSV(rows)
}

// RenderCampaignCSV renders per-campaign attribution rows as CSV.
func RenderCampaignCSV(rep *domain.AttributionReport) (string, error) {
	rows := [][]string{{"channel", "campaign", "revenue", "orders", "touchpoints"}}
	for _, c := range rep.Campaigns {
		rows = append(rows, []string{
			c.Channel,
			c.Campaign,
			c.Revenue.StringFixed(2),
			c.Orders.StringFixed(4),
			strconv.FormatInt(c.Touchpoints, 10),
		})
	}
	return writeCSV(rows)
}

// RenderRollupCSV renders stored rollup rows as CSV.
func RenderRollupCSV(rollups []*domain.RollupRow) (string, error) {
	rows := [][]string{{"day", "channel", "campaign", "revenue", "orders", "touchpoints", "computed_at"}}
	for _, r := range rollups {
		rows = append(rows, []string{
			r.Day,
			r.Channel,
			r.Campaign,
			r.Revenue.StringFixed(2),
			r.Orders.StringFixed(4),
			strconv.FormatInt(r.Touchpoints, 10),
			strconv.FormatInt(r.ComputedAt, 10),
		})
	}
	return writeCSV(rows)
}

func writeCSV(rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

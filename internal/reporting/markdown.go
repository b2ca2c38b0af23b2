package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	rep := r.Attribution

	// Header
	sb.WriteString("# Attribution Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Tenant: %s | Range: %s | Model: %s\n\n", r.TenantID, r.Range, r.ModelKey))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Revenue | %s |\n", rep.Summary.TotalRevenue.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Total Orders | %d |\n", rep.Summary.TotalOrders))
	sb.WriteString(fmt.Sprintf("| Channels With Revenue | %d |\n", rep.Summary.ChannelCount))
	sb.WriteString(fmt.Sprintf("| Avg Touchpoints | %s |\n", rep.Summary.AverageTouchpoints.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Avg Conversion Time (h) | %s |\n", rep.Summary.AverageConversionHours.StringFixed(2)))
	sb.WriteString("\n")

	// Channels
	sb.WriteString("## Channels\n\n")
	if len(rep.Channels) > 0 {
		sb.WriteString("| Channel | Revenue | Orders | Touchpoints |\n")
		sb.WriteString("|---------|---------|--------|-------------|\n")
		for _, c := range rep.Channels {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d |\n",
				c.Channel, c.Revenue.StringFixed(2), c.Orders.StringFixed(4), c.Touchpoints))
		}
	} else {
		sb.WriteString("No conversions in range.\n")
	}
	sb.WriteString("\n")

	// Campaigns
	sb.WriteString("## Campaigns\n\n")
	if len(rep.Campaigns) > 0 {
		sb.WriteString("| Channel | Campaign | Revenue | Orders | Touchpoints |\n")
		sb.WriteString("|---------|----------|---------|--------|-------------|\n")
		for _, c := range rep.Campaigns {
			campaign := c.Campaign
			if campaign == "" {
				campaign = "-"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d |\n",
				c.Channel, campaign, c.Revenue.StringFixed(2), c.Orders.StringFixed(4), c.Touchpoints))
		}
	} else {
		sb.WriteString("No campaign data available.\n")
	}
	sb.WriteString("\n")

	// Paths
	sb.WriteString("## Top Conversion Paths\n\n")
	if len(r.Paths) > 0 {
		sb.WriteString("| Path | Journeys | Total Value | Avg Value | Avg Touchpoints | Avg Hours |\n")
		sb.WriteString("|------|----------|-------------|-----------|-----------------|-----------|\n")
		for _, p := range r.Paths {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %s |\n",
				strings.Join(p.Channels, " > "), p.JourneyCount,
				p.TotalValue.StringFixed(2), p.AvgConversionValue.StringFixed(2),
				p.AvgTouchpoints.StringFixed(2), p.AvgDurationHours.StringFixed(2)))
		}
	} else {
		sb.WriteString("No conversion paths available.\n")
	}
	sb.WriteString("\n")

	// Model comparison
	if len(r.Comparison) > 0 {
		models := r.ComparedModels()
		sb.WriteString("## Model Comparison\n\n")
		sb.WriteString("| Channel |")
		for _, m := range models {
			sb.WriteString(fmt.Sprintf(" %s |", m))
		}
		sb.WriteString("\n|---------|")
		for range models {
			sb.WriteString("------|")
		}
		sb.WriteString("\n")
		for _, row := range r.Comparison {
			sb.WriteString(fmt.Sprintf("| %s |", row.Channel))
			for _, m := range models {
				sb.WriteString(fmt.Sprintf(" %s |", valueOr(row.Revenue[m], "0.00")))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

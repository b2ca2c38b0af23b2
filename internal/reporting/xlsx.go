package reporting

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names.
const (
	SheetChannels   = "channels"
	SheetCampaigns  = "campaigns"
	SheetDaily      = "daily"
	SheetPaths      = "paths"
	SheetComparison = "comparison"
)

// RenderXLSX renders the report as an Excel workbook with one sheet per section.
func RenderXLSX(r *Report) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	rep := r.Attribution

	channels := [][]any{{"channel", "revenue", "orders", "touchpoints"}}
	for _, c := range rep.Channels {
		channels = append(channels, []any{c.Channel, c.Revenue.InexactFloat64(), c.Orders.InexactFloat64(), c.Touchpoints})
	}

	campaigns := [][]any{{"channel", "campaign", "revenue", "orders", "touchpoints"}}
	for _, c := range rep.Campaigns {
		campaigns = append(campaigns, []any{c.Channel, c.Campaign, c.Revenue.InexactFloat64(), c.Orders.InexactFloat64(), c.Touchpoints})
	}

	daily := [][]any{{"day", "channel", "revenue", "orders"}}
	for _, d := range rep.Daily {
		daily = append(daily, []any{d.Day, d.Channel, d.Revenue.InexactFloat64(), d.Orders.InexactFloat64()})
	}

	paths := [][]any{{"path", "journeys", "total_value", "avg_value", "avg_touchpoints", "avg_hours"}}
	for _, p := range r.Paths {
		paths = append(paths, []any{
			strings.Join(p.Channels, " > "), p.JourneyCount,
			p.TotalValue.InexactFloat64(), p.AvgConversionValue.InexactFloat64(),
			p.AvgTouchpoints.InexactFloat64(), p.AvgDurationHours.InexactFloat64(),
		})
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{SheetChannels, channels},
		{SheetCampaigns, campaigns},
		{SheetDaily, daily},
		{SheetPaths, paths},
	}

	if len(r.Comparison) > 0 {
		models := r.ComparedModels()
		header := []any{"channel"}
		for _, m := range models {
			header = append(header, string(m))
		}
		rows := [][]any{header}
		for _, row := range r.Comparison {
			line := []any{row.Channel}
			for _, m := range models {
				line = append(line, valueOr(row.Revenue[m], "0.00"))
			}
			rows = append(rows, line)
		}
		sheets = append(sheets, struct {
			name string
			rows [][]any
		}{SheetComparison, rows})
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := xl.SetSheetName(xl.GetSheetName(0), sh.name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := xl.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", sh.name, err)
		}
		for ri, row := range sh.rows {
			cell, err := excelize.CoordinatesToCellName(1, ri+1)
			if err != nil {
				return nil, err
			}
			if err := xl.SetSheetRow(sh.name, cell, &row); err != nil {
				return nil, fmt.Errorf("write %s row %d: %w", sh.name, ri+1, err)
			}
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

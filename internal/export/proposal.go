// Package export renders commercial proposals for priced calculations.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/merchcalc/internal/store"
)

const sheetName = "Proposal"

// Proposal is the data shown in one commercial proposal.
type Proposal struct {
	Position    store.Position
	Calculation store.Calculation
	Category    string
	Routes      []store.LogisticsRoute
}

var routeHeaders = []string{
	"Route", "Rate, USD/kg", "Duty, %", "VAT, %",
	"Cost/unit, RUB", "Sale/unit, RUB", "Profit/unit, RUB",
	"Cost/unit, CNY", "Sale/unit, CNY", "Profit/unit, CNY",
	"Total cost, RUB", "Total sale, RUB", "Total profit, RUB",
	"Total cost, CNY", "Total sale, CNY", "Total profit, CNY",
}

// WriteExcel writes p as an xlsx workbook to w.
func WriteExcel(w io.Writer, p Proposal) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create label style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("create money style: %w", err)
	}

	c := p.Calculation
	summary := [][2]any{
		{"Position", p.Position.Name},
		{"Description", p.Position.Description},
		{"Category", p.Category},
		{"Factory", c.FactoryName},
		{"Factory contact", c.FactoryContact},
		{"Quantity", c.Quantity},
		{"Price, CNY", c.PriceYuan},
		{"Markup", c.Markup},
		{"Mode", string(c.Mode)},
	}
	if c.WeightKg != nil {
		summary = append(summary, [2]any{"Unit weight, kg", *c.WeightKg})
	}
	if pk := c.Packing(); pk != nil {
		summary = append(summary,
			[2]any{"Units per box", pk.UnitsPerBox},
			[2]any{"Box weight, kg", pk.BoxWeightKg},
		)
		if pk.BoxLengthCm > 0 && pk.BoxWidthCm > 0 && pk.BoxHeightCm > 0 {
			summary = append(summary, [2]any{"Box size, cm", fmt.Sprintf("%g x %g x %g", pk.BoxLengthCm, pk.BoxWidthCm, pk.BoxHeightCm)})
		}
	}
	for i, kv := range summary {
		row := i + 1
		if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), kv[0]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		if err := f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), kv[1]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetCellStyle(sheetName, "A1", fmt.Sprintf("A%d", len(summary)), labelStyle); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}

	// One blank row separates the summary from the route table.
	headerRow := len(summary) + 2
	for i, header := range routeHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("write headers: %w", err)
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(routeHeaders), headerRow)
	if err := f.SetCellStyle(sheetName, first, last, headerStyle); err != nil {
		return fmt.Errorf("style headers: %w", err)
	}

	for i, r := range p.Routes {
		row := headerRow + 1 + i
		values := []any{
			string(r.RouteName),
			num(r.RatePerKgUsd), num(r.DutyPercent), num(r.VATPercent),
			num(r.CostPerUnitRub), num(r.SalePerUnitRub), num(r.ProfitPerUnitRub),
			num(r.CostPerUnitYuan), num(r.SalePerUnitYuan), num(r.ProfitPerUnitYuan),
			num(r.TotalCostRub), num(r.TotalSaleRub), num(r.TotalProfitRub),
			num(r.TotalCostYuan), num(r.TotalSaleYuan), num(r.TotalProfitYuan),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return fmt.Errorf("write route %s: %w", r.RouteName, err)
		}
		from, _ := excelize.CoordinatesToCellName(5, row)
		to, _ := excelize.CoordinatesToCellName(len(routeHeaders), row)
		if err := f.SetCellStyle(sheetName, from, to, moneyStyle); err != nil {
			return fmt.Errorf("style route %s: %w", r.RouteName, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(routeHeaders))
	if err := f.SetColWidth(sheetName, "B", lastCol, 14); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

package reporting

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const variationSheet = "Variation"

var variationHeaders = []string{
	"Product code", "Entries", "Exits", "Adjustments", "Net",
	"Entries cost", "Exits cost", "Adjustments cost",
}

// WriteVariationXLSX renders report as a single-sheet workbook.
func WriteVariationXLSX(w io.Writer, report *VariationReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", variationSheet); err != nil {
		return fmt.Errorf("reporting: rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("reporting: header style: %w", err)
	}

	title := fmt.Sprintf("Inventory variation %s to %s",
		report.From.Format("2006-01-02"), report.To.AddDate(0, 0, -1).Format("2006-01-02"))
	if err := f.SetCellValue(variationSheet, "A1", title); err != nil {
		return err
	}

	for i, header := range variationHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if err := f.SetCellValue(variationSheet, cell, header); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(variationHeaders), 3)
	if err := f.SetCellStyle(variationSheet, "A3", last, headerStyle); err != nil {
		return err
	}

	row := 4
	for _, p := range report.Products {
		if err := writeVariationRow(f, row, p.ProductCode, p.VariationTotals); err != nil {
			return err
		}
		row++
	}
	if err := writeVariationRow(f, row, "TOTAL", report.Totals); err != nil {
		return err
	}
	totalStart, _ := excelize.CoordinatesToCellName(1, row)
	totalEnd, _ := excelize.CoordinatesToCellName(len(variationHeaders), row)
	if err := f.SetCellStyle(variationSheet, totalStart, totalEnd, headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(variationSheet, "A", "A", 18); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("reporting: write workbook: %w", err)
	}
	return nil
}

func writeVariationRow(f *excelize.File, row int, label string, t VariationTotals) error {
	values := []any{label, t.Entries, t.Exits, t.Adjustments, t.Net, t.EntriesCost, t.ExitsCost, t.AdjustmentsCost}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return f.SetSheetRow(variationSheet, cell, &values)
}

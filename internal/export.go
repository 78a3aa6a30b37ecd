package internal

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Subscriptions"

// ExportXLSX writes items to a workbook at path. See WriteXLSX.
func ExportXLSX(path string, items []Subscription, target string, rates Rates) error {
	f, err := buildWorkbook(items, target, rates)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// WriteXLSX writes a workbook with one row per record, the monthly and yearly
// cost converted to target, and a totals footer. The first columns match the
// xlsx import format so an export can be imported again.
func WriteXLSX(w io.Writer, items []Subscription, target string, rates Rates) error {
	f, err := buildWorkbook(items, target, rates)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func buildWorkbook(items []Subscription, target string, rates Rates) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := append([]any{}, toAny(xlsxColumns)...)
	header = append(header, "Monthly ("+target+")", "Yearly ("+target+")")

	setRow := func(row int, values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		return f.SetSheetRow(exportSheet, cell, &values)
	}

	if err := setRow(1, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, sub := range items {
		monthly := MonthlyAmount(sub, target, rates)
		values := []any{
			sub.Name,
			sub.Price,
			sub.CurrencyCode,
			string(sub.Cycle),
			formatDate(sub.RenewalDate),
			string(sub.EffectiveDecision()),
			money(monthly),
			money(monthly * 12),
		}
		if err := setRow(i+2, values); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing row for %s: %w", sub.Name, err)
		}
	}

	// leave one empty row so the importer stops before the footer
	footer := []any{"", "", "", "", "", "Total", money(MonthlyTotal(items, target, rates)), money(YearlyTotal(items, target, rates))}
	if err := setRow(len(items)+3, footer); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing totals: %w", err)
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(exportSheet, 1, 1, style)
		_ = f.SetRowStyle(exportSheet, len(items)+3, len(items)+3, style)
	}
	_ = f.SetColWidth(exportSheet, "A", "A", 28)
	_ = f.SetColWidth(exportSheet, "G", "H", 16)
	return f, nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

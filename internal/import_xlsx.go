package internal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// xlsxColumns are the header names of the spreadsheet format. Export writes
// them in this order; import finds them anywhere in the header row.
var xlsxColumns = []string{"Name", "Price", "Currency", "Cycle", "Renewal", "Decision"}

// ImportXLSX reads subscriptions from the first sheet of an Excel workbook.
// The header row must contain Name, Price, Cycle and Renewal; Currency and
// Decision are optional. Rows after an empty Name cell are ignored, so a
// totals footer written by ExportXLSX doesn't get imported.
func ImportXLSX(path string, defaults ImportDefaults) ([]Subscription, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	return parseXLSXRows(rows, defaults)
}

func parseXLSXRows(rows [][]string, defaults ImportDefaults) ([]Subscription, error) {
	cols := map[string]int{}
	dataStartRow := -1
	for i, row := range rows {
		for j, cell := range row {
			for _, name := range xlsxColumns {
				if strings.EqualFold(strings.TrimSpace(cell), name) {
					cols[name] = j
				}
			}
		}
		if _, ok := cols["Name"]; ok {
			dataStartRow = i + 1
			break
		}
	}

	for _, required := range []string{"Name", "Price", "Cycle", "Renewal"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("could not find required columns (Name, Price, Cycle, Renewal)")
		}
	}

	cell := func(row []string, name string) string {
		j, ok := cols[name]
		if !ok || j >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[j])
	}

	var subs []Subscription
	for i := dataStartRow; i < len(rows); i++ {
		row := rows[i]
		name := cell(row, "Name")
		if name == "" {
			break
		}
		line := i + 1

		price, err := parseAmount(cell(row, "Price"))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing price: %w", line, err)
		}
		cycle, err := ParseCycle(cell(row, "Cycle"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		renewal, err := parseSheetDate(cell(row, "Renewal"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		sub := NewSubscription(name, price, cycle, renewal)
		sub.CurrencyCode = strings.ToUpper(cell(row, "Currency"))
		sub.NotifyDaysBefore = defaults.ReminderDaysBefore
		if d := cell(row, "Decision"); d != "" {
			if sub.AIDecision, err = ParseDecision(d); err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
		}
		if id, ok := MatchService(name); ok {
			sub.Service = &id
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// parseAmount parses a number that may use a decimal comma and spaces as
// thousands separators ("1 234,50").
func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	return strconv.ParseFloat(s, 64)
}

// parseSheetDate accepts YYYY-MM-DD text or an Excel date serial number.
func parseSheetDate(s string) (time.Time, error) {
	if t, err := ParseDate(s); err == nil {
		return t, nil
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing renewal date %q: want YYYY-MM-DD", s)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing renewal date %q: %w", s, err)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local), nil
}

func init() {
	RegisterImporter("xlsx", ImporterFunc(ImportXLSX))
}

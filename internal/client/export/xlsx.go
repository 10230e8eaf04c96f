// Package export writes search history to spreadsheets.
package export

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
)

const sheet = "History"

// HistoryXLSX renders records as a workbook with one row per record and
// one status column per engine, followed by the result links. Engines are
// taken from engines, then from the records themselves in name order.
func HistoryXLSX(records []models.HistoryRecord, engines []string) ([]byte, error) {
	engines = engineColumns(records, engines)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := append([]string{"Captured At", "Record ID", "Image Key"}, engines...)
	headers = append(headers, "Links")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, bold)

	for i, rec := range records {
		row := i + 2
		write := func(col int, v any) error {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			return f.SetCellValue(sheet, cell, v)
		}

		values := []any{rec.CapturedAt.UTC().Format("2006-01-02 15:04:05"), rec.ID, rec.ArtifactKey}
		for _, e := range engines {
			st := ""
			if rec.Result != nil {
				st = string(rec.Result.Engines[e])
			}
			values = append(values, st)
		}
		values = append(values, links(rec.Result))

		for col, v := range values {
			if err := write(col+1, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 38)
	_ = f.SetColWidth(sheet, "C", "C", 72)
	linksCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(sheet, linksCol, linksCol, 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func engineColumns(records []models.HistoryRecord, engines []string) []string {
	out := slices.Clone(engines)
	var extra []string
	for _, rec := range records {
		if rec.Result == nil {
			continue
		}
		for e := range rec.Result.Engines {
			if !slices.Contains(out, e) && !slices.Contains(extra, e) {
				extra = append(extra, e)
			}
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func links(r *models.SearchResult) string {
	if r == nil || len(r.Links) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Links))
	for k := range r.Links {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+r.Links[k])
	}
	return strings.Join(parts, "\n")
}

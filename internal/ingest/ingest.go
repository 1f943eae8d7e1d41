// Package ingest parses uploaded spreadsheets into owner records.
package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/openweb-labs/enricher/internal/enrich"
)

// Recognized core columns. Header matching is case-insensitive and tolerant
// of stray whitespace; anything unrecognized passes through untouched.
const (
	colID    = "id"
	colCorp  = "is corp?"
	ownerCol = "owner "
)

// ReadWorkbook parses the first sheet of an XLSX workbook.
func ReadWorkbook(r io.Reader) ([]enrich.OwnerRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return FromRows(rows)
}

// FromRows converts a header row plus data rows into OwnerRecords. Rows with
// no ID get a synthetic "row-<n>" identifier so every record stays
// addressable in the outcome table.
func FromRows(rows [][]string) ([]enrich.OwnerRecord, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet is empty")
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	records := make([]enrich.OwnerRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := enrich.OwnerRecord{Extra: map[string]string{}}
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			switch key := strings.ToLower(header); {
			case key == colID:
				rec.ID = value
			case key == colCorp:
				rec.Corporate = truthy(value)
			case strings.HasPrefix(key, ownerCol):
				if value != "" {
					rec.Owners = append(rec.Owners, value)
				}
			default:
				rec.Extra[header] = value
			}
		}
		if rec.ID == "" {
			rec.ID = "row-" + strconv.Itoa(n)
		}
		if len(rec.Extra) == 0 {
			rec.Extra = nil
		}
		records = append(records, rec)
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y", "1", "t":
		return true
	default:
		return false
	}
}

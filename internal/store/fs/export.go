package fs

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{"input_id", "name", "email", "confidence", "source", "snippet"}

// exportRows flattens outcomes into one row per (record, email), preserving
// pass-through columns after the fixed ones. Rows are ordered by record ID so
// the export is stable regardless of outcome append order.
func exportRows(stored []StoredOutcome) ([]string, [][]string) {
	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].Outcome.RecordID < stored[j].Outcome.RecordID
	})

	extraKeys := map[string]struct{}{}
	for _, s := range stored {
		for k := range s.Extra {
			extraKeys[k] = struct{}{}
		}
	}
	extras := make([]string, 0, len(extraKeys))
	for k := range extraKeys {
		extras = append(extras, k)
	}
	sort.Strings(extras)

	header := append(append([]string{}, exportHeader...), extras...)
	var rows [][]string
	for _, s := range stored {
		for _, email := range s.Outcome.Emails {
			row := []string{
				s.Outcome.RecordID,
				email.OwnerName,
				email.Email,
				"1.0",
				email.SourceURL,
				email.Snippet,
			}
			for _, k := range extras {
				row = append(row, s.Extra[k])
			}
			rows = append(rows, row)
		}
	}
	return header, rows
}

// ExportCSV streams the flattened result table as CSV.
func (s *Store) ExportCSV(jobID string, w io.Writer) error {
	stored, err := s.ReadOutcomes(jobID)
	if err != nil {
		return err
	}
	header, rows := exportRows(stored)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

// ExportXLSX streams the flattened result table as a spreadsheet.
func (s *Store) ExportXLSX(jobID string, w io.Writer) error {
	stored, err := s.ReadOutcomes(jobID)
	if err != nil {
		return err
	}
	header, rows := exportRows(stored)

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory workbook
	sheet := f.GetSheetName(0)

	writeRow := func(rowIdx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		converted := make([]any, len(values))
		for i, v := range values {
			converted[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &converted); err != nil {
			return fmt.Errorf("set sheet row: %w", err)
		}
		return nil
	}

	if err := writeRow(1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

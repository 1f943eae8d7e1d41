package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/openweb-labs/enricher/internal/enrich"
)

func TestFromRows(t *testing.T) {
	rows := [][]string{
		{"ID", "Owner 1", "Owner 2", "Is Corp?", "Address"},
		{"p1", "JANE DOE", "JOHN DOE", "no", "1 Main St"},
		{"p2", "ACME HOLDINGS LLC", "", "yes", "2 Oak Ave"},
		{"", "", "", "", ""},
		{"", "SOLO OWNER", "", "", "3 Elm Rd"},
	}

	records, err := FromRows(rows)
	require.NoError(t, err)
	require.Len(t, records, 3, "blank rows are skipped")

	require.Equal(t, "p1", records[0].ID)
	require.Equal(t, []string{"JANE DOE", "JOHN DOE"}, records[0].Owners)
	require.False(t, records[0].Corporate)
	require.Equal(t, map[string]string{"Address": "1 Main St"}, records[0].Extra)

	require.True(t, records[1].Corporate)
	require.Equal(t, []string{"ACME HOLDINGS LLC"}, records[1].Owners)

	require.Equal(t, "row-3", records[2].ID, "missing IDs get a synthetic row identifier")
	require.Equal(t, []string{"SOLO OWNER"}, records[2].Owners)
}

func TestFromRowsEmptySheet(t *testing.T) {
	_, err := FromRows(nil)
	require.Error(t, err)
}

func TestFromRowsHeaderOnly(t *testing.T) {
	records, err := FromRows([][]string{{"ID", "Owner 1"}})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestFromRowsShortRow(t *testing.T) {
	rows := [][]string{
		{"ID", "Owner 1", "Address"},
		{"p1", "JANE DOE"},
	}
	records, err := FromRows(rows)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, map[string]string{"Address": ""}, records[0].Extra)
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "yes", "Y", "1", "t", " yes "} {
		require.True(t, truthy(v), v)
	}
	for _, v := range []string{"", "no", "0", "false", "n"} {
		require.False(t, truthy(v), v)
	}
}

func TestReadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"ID", "Owner 1", "Is Corp?"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"p1", "JANE DOE", "no"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	records, err := ReadWorkbook(&buf)
	require.NoError(t, err)
	require.Equal(t, []enrich.OwnerRecord{{ID: "p1", Owners: []string{"JANE DOE"}}}, records)
}

func TestReadWorkbookRejectsGarbage(t *testing.T) {
	_, err := ReadWorkbook(bytes.NewReader([]byte("not a workbook")))
	require.Error(t, err)
}

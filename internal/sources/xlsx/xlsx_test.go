package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestFetchRows(t *testing.T) {
	path := writeWorkbook(t, "VOIP", [][]any{
		{"Part No", "Price", "Weight"},
		{"A1", "$10.00", 100},
		{"B2", "", 50},
	})

	src := New(path, "", logging.NewNopLogger())
	rows, err := src.FetchRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A1", rows[0]["Part No"])
	assert.Equal(t, "$10.00", rows[0]["Price"])
	assert.Equal(t, "100", rows[0]["Weight"])
	assert.Equal(t, "", rows[1]["Price"])
	assert.Equal(t, "VOIP", src.Label())
}

func TestFetchRowsFallsBackToFirstSheet(t *testing.T) {
	path := writeWorkbook(t, "Inventory", [][]any{{"part_no"}, {"X"}})
	tl := logging.NewTestLogger(t)

	rows, err := New(path, "VOIP", tl.Logger).FetchRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	tl.AssertContains(t, `"using":"Inventory"`)
}

func TestMetadata(t *testing.T) {
	path := writeWorkbook(t, "VOIP", [][]any{{"Part No", "Price"}, {"A1", "1", "extra"}})

	md, err := New(path, "VOIP", nil).Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VOIP", md.Worksheet)
	assert.Equal(t, 2, md.RowCount)
	assert.Equal(t, 3, md.ColumnCount)
	assert.Equal(t, []string{"Part No", "Price"}, md.Headers)
}

func TestMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.xlsx"), "", nil).FetchRows(context.Background())
	require.Error(t, err)
	var ioErr *errors.IOError
	assert.ErrorAs(t, err, &ioErr)
}

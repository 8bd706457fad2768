package sources_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sheetsync/pkg/records"
	"github.com/agentstation/sheetsync/pkg/sources"
)

func TestRowsFromGrid(t *testing.T) {
	grid := [][]string{
		{"Part No", "Price", "", "Weight"},
		{"A1", "$10.00", "ignored", "100", "extra"},
		{"B2"},
		{},
	}

	rows := sources.RowsFromGrid(grid)
	require.Len(t, rows, 3)
	assert.Equal(t, records.RawRow{"Part No": "A1", "Price": "$10.00", "Weight": "100"}, rows[0])
	assert.Equal(t, records.RawRow{"Part No": "B2", "Price": "", "Weight": ""}, rows[1])
	assert.Equal(t, records.RawRow{"Part No": "", "Price": "", "Weight": ""}, rows[2])

	assert.Nil(t, sources.RowsFromGrid(nil))
	assert.Empty(t, sources.RowsFromGrid([][]string{{"Part No"}}))
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "", sources.CellString(nil))
	assert.Equal(t, "abc", sources.CellString("abc"))
	assert.Equal(t, "12.5", sources.CellString(12.5))
	assert.Equal(t, "100", sources.CellString(float64(100)))
	assert.Equal(t, "true", sources.CellString(true))
}

func TestStatic(t *testing.T) {
	src := &sources.Static{Rows: []records.RawRow{{"part_no": "A1"}}}
	rows, err := src.FetchRows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "static", src.Label())

	failing := &sources.Static{Name: "broken", Err: errors.New("unreachable")}
	_, err = failing.FetchRows(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "broken", failing.Label())
}

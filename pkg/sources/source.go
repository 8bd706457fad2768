// Package sources defines the interface the sync engine reads source rows
// through, plus helpers shared by the tabular readers.
//
// Example usage:
//
//	src, err := sheets.New(ctx, spreadsheetID, sheets.WithCredentialsFile(path))
//	if err != nil {
//	    return err
//	}
//	rows, err := src.FetchRows(ctx)
package sources

import (
	"context"
	"fmt"

	"github.com/agentstation/sheetsync/pkg/records"
)

// Source yields the full current set of raw rows. An empty result with a
// nil error means the source has no data rows; a read failure is always
// returned as an error.
type Source interface {
	FetchRows(ctx context.Context) ([]records.RawRow, error)

	// Label names the source for logs and mirror provenance.
	Label() string
}

// Metadata describes a tabular source for connection checks.
type Metadata struct {
	Title       string   `json:"title" yaml:"title"`
	Worksheet   string   `json:"worksheet" yaml:"worksheet"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
	RowCount    int      `json:"row_count" yaml:"row_count"`
	ColumnCount int      `json:"col_count" yaml:"col_count"`
	Headers     []string `json:"headers" yaml:"headers"`
}

// MetadataSource is implemented by sources that can describe themselves.
type MetadataSource interface {
	Source
	Metadata(ctx context.Context) (Metadata, error)
}

// RowsFromGrid converts a grid whose first row is the header into raw rows.
// Short rows are padded with empty cells; cells beyond the header are
// ignored. Header cells that are empty are skipped.
func RowsFromGrid(grid [][]string) []records.RawRow {
	if len(grid) == 0 {
		return nil
	}
	headers := grid[0]

	rows := make([]records.RawRow, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := make(records.RawRow, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// CellString renders a loosely typed cell as text.
func CellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return fmt.Sprintf("%v", c)
	default:
		return fmt.Sprint(c)
	}
}

// Static is a Source over fixed rows.
type Static struct {
	Name string
	Rows []records.RawRow
	Err  error
}

// FetchRows implements Source.
func (s *Static) FetchRows(_ context.Context) ([]records.RawRow, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]records.RawRow, len(s.Rows))
	copy(out, s.Rows)
	return out, nil
}

// Label implements Source.
func (s *Static) Label() string {
	if s.Name == "" {
		return "static"
	}
	return s.Name
}

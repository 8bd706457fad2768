// Package xlsx reads source rows from a local Excel workbook.
package xlsx

import (
	"context"
	"slices"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/records"
	"github.com/agentstation/sheetsync/pkg/sources"
)

// Source reads one worksheet of a workbook on disk. The file is reopened on
// every fetch so edits between cycles are picked up.
type Source struct {
	path      string
	worksheet string
	logger    *zerolog.Logger
}

// New creates a Source. An empty worksheet selects the default.
func New(path, worksheet string, logger *zerolog.Logger) *Source {
	if worksheet == "" {
		worksheet = constants.DefaultWorksheet
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Source{path: path, worksheet: worksheet, logger: logger}
}

// Label returns the preferred worksheet name.
func (s *Source) Label() string {
	return s.worksheet
}

// FetchRows implements sources.Source.
func (s *Source) FetchRows(ctx context.Context) ([]records.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, sheet, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.WrapIO("read", s.path, err)
	}
	return sources.RowsFromGrid(grid), nil
}

// Metadata implements sources.MetadataSource.
func (s *Source) Metadata(ctx context.Context) (sources.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return sources.Metadata{}, err
	}
	f, sheet, err := s.open()
	if err != nil {
		return sources.Metadata{}, err
	}
	defer f.Close() //nolint:errcheck

	grid, err := f.GetRows(sheet)
	if err != nil {
		return sources.Metadata{}, errors.WrapIO("read", s.path, err)
	}
	md := sources.Metadata{Title: s.path, Worksheet: sheet, RowCount: len(grid)}
	if len(grid) > 0 {
		md.Headers = grid[0]
	}
	for _, row := range grid {
		md.ColumnCount = max(md.ColumnCount, len(row))
	}
	return md, nil
}

func (s *Source) open() (*excelize.File, string, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, "", errors.WrapIO("open", s.path, err)
	}

	list := f.GetSheetList()
	if slices.Contains(list, s.worksheet) {
		return f, s.worksheet, nil
	}
	if len(list) == 0 {
		_ = f.Close()
		return nil, "", errors.NewNotFoundError("worksheet", s.worksheet)
	}
	s.logger.Warn().
		Str("wanted", s.worksheet).
		Str("using", list[0]).
		Msg("Worksheet not found, using the first worksheet")
	return f, list[0], nil
}

// Package sheets reads source rows from a Google Sheets worksheet.
package sheets

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/records"
	"github.com/agentstation/sheetsync/pkg/sources"
)

// ServiceName identifies the Sheets API in errors.
const ServiceName = "sheets"

// ReadOnlyScope is the OAuth scope requested for service accounts.
const ReadOnlyScope = sheets.SpreadsheetsReadonlyScope

// Source reads one worksheet of a spreadsheet. When the preferred worksheet
// does not exist the first worksheet is used instead.
type Source struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	logger        *zerolog.Logger

	mu       sync.Mutex
	resolved string
}

type config struct {
	worksheet     string
	logger        *zerolog.Logger
	clientOptions []option.ClientOption
}

// Option configures a Source.
type Option func(*config)

// WithWorksheet sets the preferred worksheet title.
func WithWorksheet(name string) Option {
	return func(c *config) {
		if name != "" {
			c.worksheet = name
		}
	}
}

// WithCredentialsFile authenticates with a service account key file.
func WithCredentialsFile(path string) Option {
	return WithClientOptions(option.WithCredentialsFile(path), option.WithScopes(ReadOnlyScope))
}

// WithClientOptions passes options to the underlying API client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *config) {
		c.clientOptions = append(c.clientOptions, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New creates a Source for spreadsheetID.
func New(ctx context.Context, spreadsheetID string, opts ...Option) (*Source, error) {
	if spreadsheetID == "" {
		return nil, errors.NewValidationError("spreadsheet_id", nil, "is required")
	}
	cfg := &config{worksheet: constants.DefaultWorksheet}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Default()
	}

	svc, err := sheets.NewService(ctx, cfg.clientOptions...)
	if err != nil {
		return nil, errors.WrapResource("connect", "sheets service", spreadsheetID, err)
	}
	return &Source{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		worksheet:     cfg.worksheet,
		logger:        cfg.logger,
	}, nil
}

// Label returns the active worksheet title.
func (s *Source) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved != "" {
		return s.resolved
	}
	return s.worksheet
}

// FetchRows reads every row of the worksheet. Row 1 is the header.
func (s *Source) FetchRows(ctx context.Context) ([]records.RawRow, error) {
	_, sheet, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteRange(sheet.Properties.Title)).Context(ctx).Do()
	if err != nil {
		return nil, s.apiError("fetch", "values", err)
	}

	rows := sources.RowsFromGrid(toGrid(resp.Values))
	s.logger.Debug().
		Str("worksheet", sheet.Properties.Title).
		Int("rows", len(rows)).
		Msg("Fetched worksheet rows")
	return rows, nil
}

// Metadata describes the spreadsheet and the active worksheet.
func (s *Source) Metadata(ctx context.Context) (sources.Metadata, error) {
	doc, sheet, err := s.resolve(ctx)
	if err != nil {
		return sources.Metadata{}, err
	}

	md := sources.Metadata{
		Worksheet: sheet.Properties.Title,
		URL:       doc.SpreadsheetUrl,
	}
	if doc.Properties != nil {
		md.Title = doc.Properties.Title
	}
	if gp := sheet.Properties.GridProperties; gp != nil {
		md.RowCount = int(gp.RowCount)
		md.ColumnCount = int(gp.ColumnCount)
	}

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteRange(sheet.Properties.Title)+"!1:1").Context(ctx).Do()
	if err != nil {
		return md, s.apiError("fetch", "headers", err)
	}
	if grid := toGrid(resp.Values); len(grid) > 0 {
		md.Headers = grid[0]
	}
	return md, nil
}

func (s *Source) resolve(ctx context.Context) (*sheets.Spreadsheet, *sheets.Sheet, error) {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, nil, s.apiError("fetch", "spreadsheet", err)
	}

	var chosen *sheets.Sheet
	for _, sh := range doc.Sheets {
		if sh != nil && sh.Properties != nil && sh.Properties.Title == s.worksheet {
			chosen = sh
			break
		}
	}
	if chosen == nil {
		for _, sh := range doc.Sheets {
			if sh != nil && sh.Properties != nil {
				chosen = sh
				break
			}
		}
		if chosen == nil {
			return nil, nil, errors.NewNotFoundError("worksheet", s.worksheet)
		}
		s.logger.Warn().
			Str("wanted", s.worksheet).
			Str("using", chosen.Properties.Title).
			Msg("Worksheet not found, using the first worksheet")
	}

	s.mu.Lock()
	s.resolved = chosen.Properties.Title
	s.mu.Unlock()
	return doc, chosen, nil
}

func (s *Source) apiError(op, resource string, err error) error {
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		err = &errors.APIError{
			Service:    ServiceName,
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Body:       gerr.Body,
			Err:        gerr,
		}
	}
	return errors.WrapResource(op, resource, s.spreadsheetID, err)
}

// quoteRange quotes a worksheet title for A1 notation.
func quoteRange(title string) string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(title, "'", "''"))
}

func toGrid(values [][]any) [][]string {
	grid := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = sources.CellString(v)
		}
		grid[i] = cells
	}
	return grid
}

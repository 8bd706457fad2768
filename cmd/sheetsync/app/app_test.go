package app

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sheetsync"
	"github.com/agentstation/sheetsync/pkg/catalog"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/reconciler"
	"github.com/agentstation/sheetsync/pkg/records"
	"github.com/agentstation/sheetsync/pkg/sources"
)

type memoryCatalog struct {
	mu      sync.Mutex
	entries []catalog.Entry
	writes  int
}

func (m *memoryCatalog) ListAll(context.Context) ([]catalog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.Entry(nil), m.entries...), nil
}

func (m *memoryCatalog) Create(_ context.Context, p reconciler.Product) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	id := int64(len(m.entries) + 1)
	m.entries = append(m.entries, catalog.Entry{RemoteID: id, VariantID: id * 10, SKU: p.Variant.SKU})
	return id, nil
}

func (m *memoryCatalog) UpdateProduct(context.Context, int64, reconciler.ProductFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return nil
}

func (m *memoryCatalog) UpdateVariant(context.Context, int64, reconciler.VariantFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return nil
}

func (m *memoryCatalog) GetVariantID(_ context.Context, productID int64) (int64, error) {
	return productID * 10, nil
}

func testConfig() *Config {
	return &Config{
		SheetsID:     "sheet",
		ShopURL:      "example.myshopify.com",
		AccessToken:  "token",
		SyncInterval: time.Second,
		LogOutput:    "discard",
		Format:       "json",
	}
}

func newTestApp(t *testing.T, cfg *Config, src sources.Source, cat *memoryCatalog) (*App, *bytes.Buffer) {
	t.Helper()
	clearConfigEnv(t)

	var out bytes.Buffer
	builder := func(context.Context) (*sheetsync.Engine, error) {
		return sheetsync.New(
			sheetsync.WithSource(src),
			sheetsync.WithCatalog(cat),
			sheetsync.WithRecordDelay(0),
			sheetsync.WithLogger(logging.NewNopLogger()),
		)
	}
	a, err := New("1.2.3", "abc", "today", "test",
		WithConfig(cfg),
		WithLogger(logging.NewNopLogger()),
		WithOutput(&out),
		WithEngineBuilder(builder),
	)
	require.NoError(t, err)
	return a, &out
}

func sampleRows() []records.RawRow {
	return []records.RawRow{
		{"Part No": "A1", "Price": "$10.00", "Weight": "100", "Tag": "voip", "Collection": "Phones"},
		{"Part No": "B2", "Price": "5", "Weight": "50", "Tag": "voip", "Collection": "Phones"},
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"no records", fmt.Errorf("%w in source VOIP", errors.ErrNoRecords), ExitNoRecords},
		{"missing config", errors.NewMissingConfigError("config", []string{"SHEETS_ID"}), ExitConfig},
		{"invalid option", errors.NewValidationError("mirror_dsn", "ftp", "unsupported mirror backend"), ExitConfig},
		{"lock held", errors.ErrLocked, ExitFailure},
		{"index unavailable", errors.WrapResource("list", "catalog", "shopify", stderrors.New("503")), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestSyncCommand(t *testing.T) {
	cat := &memoryCatalog{entries: []catalog.Entry{{RemoteID: 7, VariantID: 70, SKU: "A1"}}}
	a, out := newTestApp(t, testConfig(), &sources.Static{Name: "VOIP", Rows: sampleRows()}, cat)

	require.NoError(t, a.Execute(context.Background(), []string{"sync"}))

	var res sheetsync.CycleResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.Changed)
	assert.Equal(t, "VOIP", res.Source)
	assert.Equal(t, reconciler.Summary{Created: 1, Updated: 1}, res.Summary)
	assert.True(t, res.Committed)
	assert.Equal(t, 3, cat.writes)
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	cat := &memoryCatalog{entries: []catalog.Entry{{RemoteID: 7, SKU: "A1"}}}
	a, out := newTestApp(t, testConfig(), &sources.Static{Rows: sampleRows()}, cat)

	require.NoError(t, a.Execute(context.Background(), []string{"sync", "--dry-run"}))

	var plan sheetsync.PlanResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &plan))
	require.Len(t, plan.Outcomes, 2)
	assert.Equal(t, reconciler.ActionUpdate, plan.Outcomes[0].Action)
	assert.Equal(t, reconciler.ActionCreate, plan.Outcomes[1].Action)
	assert.Zero(t, cat.writes)
}

func TestSyncMissingConfig(t *testing.T) {
	cfg := testConfig()
	cfg.AccessToken = ""
	a, _ := newTestApp(t, cfg, &sources.Static{Rows: sampleRows()}, &memoryCatalog{})

	err := a.Execute(context.Background(), []string{"sync"})
	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Contains(t, err.Error(), "SHOPIFY_ACCESS_TOKEN")
}

func TestSyncNoRecords(t *testing.T) {
	a, _ := newTestApp(t, testConfig(), &sources.Static{Rows: []records.RawRow{{"Part No": " "}}}, &memoryCatalog{})

	err := a.Execute(context.Background(), []string{"sync"})
	assert.Equal(t, ExitNoRecords, ExitCode(err))
}

func TestSyncInvalidFormat(t *testing.T) {
	a, _ := newTestApp(t, testConfig(), &sources.Static{Rows: sampleRows()}, &memoryCatalog{})

	err := a.Execute(context.Background(), []string{"sync", "--dry-run", "-o", "xml"})
	assert.Equal(t, ExitConfig, ExitCode(err))
}

func TestCheckCommand(t *testing.T) {
	a, out := newTestApp(t, testConfig(), &sources.Static{Name: "VOIP", Rows: sampleRows()}, &memoryCatalog{})

	require.NoError(t, a.Execute(context.Background(), []string{"check"}))

	var report sheetsync.CheckReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.SourceOK)
	assert.True(t, report.CatalogOK)
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, "disabled", report.Mirror)
}

func TestVersionCommand(t *testing.T) {
	a, out := newTestApp(t, testConfig(), &sources.Static{}, &memoryCatalog{})

	require.NoError(t, a.Execute(context.Background(), []string{"version", "-v"}))
	assert.Contains(t, out.String(), "sheetsync 1.2.3")
	assert.Contains(t, out.String(), "commit:   abc")
}

func TestShutdownRunsClosersInReverse(t *testing.T) {
	a, _ := newTestApp(t, testConfig(), &sources.Static{}, &memoryCatalog{})

	var order []int
	a.onShutdown(func() error { order = append(order, 1); return nil })
	a.onShutdown(func() error { order = append(order, 2); return stderrors.New("close failed") })

	err := a.Shutdown(context.Background())
	assert.EqualError(t, err, "close failed")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, a.Shutdown(context.Background()), "closers run once")
}

func TestWatchCommandStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.StatusAddr = "127.0.0.1:0"
	a, _ := newTestApp(t, cfg, &sources.Static{Rows: sampleRows()}, &memoryCatalog{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, a.Execute(ctx, []string{"watch", "--interval", "10ms"}))
	assert.Equal(t, 10*time.Millisecond, a.Config().SyncInterval)
}

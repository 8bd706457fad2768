package sheetsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sheetsync/internal/mirror"
	"github.com/agentstation/sheetsync/internal/state"
	"github.com/agentstation/sheetsync/pkg/catalog"
	pkgerrors "github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/reconciler"
	"github.com/agentstation/sheetsync/pkg/records"
	"github.com/agentstation/sheetsync/pkg/sources"
)

// fakeCatalog is an in-memory remote catalog that records every call.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.Entry
	nextID   int64
	listErr  error
	failSKU  map[string]error
	calls    map[string]int
	onCreate func()
}

func newFakeCatalog(entries ...catalog.Entry) *fakeCatalog {
	f := &fakeCatalog{products: map[string]catalog.Entry{}, calls: map[string]int{}, nextID: 100}
	for _, e := range entries {
		f.products[e.SKU] = e
	}
	return f
}

func (f *fakeCatalog) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeCatalog) writes() int {
	return f.count("create") + f.count("update_product") + f.count("update_variant")
}

func (f *fakeCatalog) ListAll(context.Context) ([]catalog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]catalog.Entry, 0, len(f.products))
	for _, e := range f.products {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeCatalog) CountProducts(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return 0, f.listErr
	}
	return len(f.products), nil
}

func (f *fakeCatalog) Create(_ context.Context, p reconciler.Product) (int64, error) {
	if f.onCreate != nil {
		f.onCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	if err := f.failSKU[p.Variant.SKU]; err != nil {
		return 0, err
	}
	f.nextID++
	f.products[p.Variant.SKU] = catalog.Entry{RemoteID: f.nextID, SKU: p.Variant.SKU, Title: p.Title}
	return f.nextID, nil
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, _ int64, _ reconciler.ProductFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update_product"]++
	return nil
}

func (f *fakeCatalog) UpdateVariant(_ context.Context, _ int64, fields reconciler.VariantFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update_variant"]++
	return f.failSKU[fields.SKU]
}

func (f *fakeCatalog) GetVariantID(_ context.Context, productID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get_variant"]++
	return productID + 1, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func scenarioRows() []records.RawRow {
	return []records.RawRow{
		{"Part No": "A1", "Price": "$10.00", "Weight": "100", "Tag": "voip", "Collection": "Phones"},
		{"Part No": "B2", "Price": "", "Weight": "50", "Tag": "voip", "Collection": "Phones"},
	}
}

func newTestEngine(t *testing.T, src sources.Source, client CatalogClient, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithSource(src),
		WithCatalog(client),
		WithSleep(noSleep),
		WithLogger(logging.NewNopLogger()),
	}
	e, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func TestNewRequiresSourceAndCatalog(t *testing.T) {
	_, err := New()
	var cfgErr *pkgerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"source", "catalog"}, cfgErr.Missing)

	_, err = New(WithSource(&sources.Static{}), WithCatalog(newFakeCatalog()), WithRecordDelay(-time.Second))
	assert.True(t, pkgerrors.IsValidationError(err))
}

func TestRunCycleScenario(t *testing.T) {
	client := newFakeCatalog(catalog.Entry{RemoteID: 7, SKU: "A1"})
	m := mirror.NewMemory()
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client,
		WithMirror(m), WithIDGenerator(func() string { return "cycle-1" }))

	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cycle-1", res.ID)
	assert.True(t, res.Changed)
	assert.True(t, res.Committed)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, reconciler.Summary{Created: 1, Updated: 1}, res.Summary)

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, reconciler.ActionUpdate, res.Outcomes[0].Action)
	assert.Equal(t, reconciler.ActionCreate, res.Outcomes[1].Action)

	assert.Equal(t, 1, client.count("create"))
	assert.Equal(t, 1, client.count("update_product"))
	assert.Equal(t, 1, client.count("update_variant"))

	a1, ok := m.Get("A1")
	require.True(t, ok)
	assert.Equal(t, "10.00", a1.Price.StringFixed(2))
	assert.Equal(t, 100, a1.Weight)

	b2, ok := m.Get("B2")
	require.True(t, ok)
	assert.Equal(t, "0.00", b2.Price.StringFixed(2))
	assert.Equal(t, 50, b2.Weight)
}

func TestRunCycleIdempotent(t *testing.T) {
	client := newFakeCatalog()
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

	first, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, first.Changed)
	listsAfterFirst := client.count("list")
	writesAfterFirst := client.writes()

	second, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, reconciler.Summary{}, second.Summary)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, listsAfterFirst, client.count("list"), "unchanged cycle makes no remote calls")
	assert.Equal(t, writesAfterFirst, client.writes())
}

func TestRunCycleIndexFailureMakesNoWrites(t *testing.T) {
	client := newFakeCatalog()
	client.listErr = &pkgerrors.APIError{Service: "shopify", StatusCode: 500, Message: "boom"}
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

	_, err := e.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrIndexUnavailable)
	assert.Zero(t, client.writes())

	// the fingerprint was not committed, so the next cycle retries
	client.listErr = nil
	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Summary.Created)
}

func TestRunCycleFailedRecordKeepsFingerprintOpen(t *testing.T) {
	client := newFakeCatalog()
	client.failSKU = map[string]error{"B2": errors.New("422 sku taken")}
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 1, res.Summary.Created)
	assert.False(t, res.Committed)

	client.failSKU = nil
	res, err = e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Changed, "failed records are retried next cycle")
	assert.Equal(t, reconciler.Summary{Created: 1, Updated: 1}, res.Summary)
	assert.True(t, res.Committed)
}

func TestRunCycleNoRecords(t *testing.T) {
	rows := []records.RawRow{{"Part No": "", "Price": "1"}}
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: rows}, newFakeCatalog())

	res, err := e.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrNoRecords)
	assert.Equal(t, 1, res.Invalid)
}

func TestRunCycleSourceError(t *testing.T) {
	readErr := errors.New("sheet unreachable")
	client := newFakeCatalog()
	e := newTestEngine(t, &sources.Static{Name: "sheet", Err: readErr}, client)

	_, err := e.RunCycle(context.Background())
	assert.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, ErrNoRecords)
	assert.Zero(t, client.count("list"))
}

func TestRunCycleLockHeld(t *testing.T) {
	locker := state.NewLocalLocker()
	release, err := locker.Acquire(context.Background())
	require.NoError(t, err)
	defer release(context.Background())

	client := newFakeCatalog()
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client, WithLocker(locker))

	_, err = e.RunCycle(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrLocked)
	assert.Zero(t, client.count("list"))
}

func TestRunCycleReleasesLock(t *testing.T) {
	locker := state.NewLocalLocker()
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, newFakeCatalog(), WithLocker(locker))

	_, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = e.RunCycle(context.Background())
	require.NoError(t, err, "lock is released after each cycle")
}

func TestRunCycleDuplicatePartNumbersWarn(t *testing.T) {
	rows := append(scenarioRows(), records.RawRow{"Part No": "A1", "Price": "11", "Weight": "1"})
	tl := logging.NewTestLogger(t)
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: rows}, newFakeCatalog(), WithLogger(tl.Logger))

	_, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	tl.AssertContains(t, "Duplicate part number in source")
	tl.AssertContains(t, `"rows":[2,4]`)
}

func TestRunCycleRepeatedPartNumberCreatesOnce(t *testing.T) {
	rows := []records.RawRow{
		{"Part No": "N1", "Price": "5", "Weight": "10"},
		{"Part No": "N1", "Price": "6", "Weight": "20"},
	}
	client := newFakeCatalog()
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: rows}, client)

	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.count("create"))
	assert.Equal(t, 1, client.count("update_variant"))
	assert.Equal(t, reconciler.Summary{Created: 1, Updated: 1}, res.Summary)
	assert.True(t, res.Committed)
}

func TestRunCycleReconcilesPastCycleTimeout(t *testing.T) {
	client := newFakeCatalog()
	client.onCreate = func() { time.Sleep(30 * time.Millisecond) }
	locker := state.NewLocalLocker()
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client,
		WithCycleTimeout(20*time.Millisecond), WithLocker(locker))

	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, client.count("create"), "every record is written after the cycle timeout passes")
	assert.False(t, res.Summary.Interrupted)
	assert.True(t, res.Committed)

	release, err := locker.Acquire(context.Background())
	require.NoError(t, err, "lock is released after the cycle timeout passes")
	require.NoError(t, release(context.Background()))
}

func TestWithCycleTimeoutRejectsNonPositive(t *testing.T) {
	_, err := New(WithSource(&sources.Static{}), WithCatalog(newFakeCatalog()), WithCycleTimeout(0))
	var verr *pkgerrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// fallbackSource changes its label while fetching, like a sheet that falls
// back to its first worksheet.
type fallbackSource struct {
	sources.Static
	label string
}

func (f *fallbackSource) FetchRows(ctx context.Context) ([]records.RawRow, error) {
	f.label = "sheet/Sheet1"
	return f.Static.FetchRows(ctx)
}

func (f *fallbackSource) Label() string { return f.label }

func TestRunCycleLabelsRecordsAfterFallback(t *testing.T) {
	src := &fallbackSource{Static: sources.Static{Rows: scenarioRows()}, label: "sheet/VOIP"}
	e := newTestEngine(t, src, newFakeCatalog())

	res, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sheet/Sheet1", res.Source)

	src.label = "sheet/VOIP"
	plan, err := e.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sheet/Sheet1", plan.Source)
	require.NotEmpty(t, plan.Records)
	for _, r := range plan.Records {
		assert.Equal(t, "sheet/Sheet1", r.SourceName)
	}
}

func TestRunCycleStopsAtRecordBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeCatalog()
	client.onCreate = cancel // stop arrives while the first write is in flight
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

	res, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, client.count("create"), "in-flight write completes, next record never starts")
	assert.Equal(t, 1, res.Summary.Created)
	assert.True(t, res.Summary.Interrupted)
	assert.False(t, res.Committed)
}

func TestHooks(t *testing.T) {
	client := newFakeCatalog(catalog.Entry{RemoteID: 7, SKU: "A1"})
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

	var created, updated []string
	var cycles []CycleResult
	e.OnCreated(func(o reconciler.Outcome) { created = append(created, o.PartNo) })
	e.OnUpdated(func(o reconciler.Outcome) { updated = append(updated, o.PartNo) })
	e.OnFailed(func(o reconciler.Outcome) { t.Errorf("unexpected failure for %s", o.PartNo) })
	e.OnCycle(func(r CycleResult) { cycles = append(cycles, r) })

	_, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = e.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"B2"}, created)
	assert.Equal(t, []string{"A1"}, updated)
	require.Len(t, cycles, 2)
	assert.True(t, cycles[0].Changed)
	assert.False(t, cycles[1].Changed)
}

func TestPlan(t *testing.T) {
	client := newFakeCatalog(catalog.Entry{RemoteID: 7, SKU: "A1"})
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

	plan, err := e.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Outcomes, 2)
	assert.Equal(t, reconciler.ActionUpdate, plan.Outcomes[0].Action)
	assert.Equal(t, int64(7), plan.Outcomes[0].RemoteID)
	assert.Equal(t, reconciler.ActionCreate, plan.Outcomes[1].Action)
	assert.Len(t, plan.Records, 2)
	assert.Zero(t, client.writes())
}

func TestCheck(t *testing.T) {
	t.Run("all reachable", func(t *testing.T) {
		client := newFakeCatalog(catalog.Entry{RemoteID: 1, SKU: "X"})
		e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client, WithMirror(mirror.NewMemory()))

		report, err := e.Check(context.Background())
		require.NoError(t, err)
		assert.True(t, report.SourceOK)
		assert.Equal(t, 2, report.Rows)
		assert.True(t, report.CatalogOK)
		assert.Equal(t, 1, report.Products)
		assert.Equal(t, "ok", report.Mirror)
	})

	t.Run("catalog down", func(t *testing.T) {
		client := newFakeCatalog()
		client.listErr = &pkgerrors.APIError{Service: "shopify", StatusCode: 401, Message: "bad token"}
		e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

		report, err := e.Check(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrUnauthorized)
		assert.True(t, report.SourceOK)
		assert.False(t, report.CatalogOK)
		assert.Contains(t, report.CatalogError, "bad token")
		assert.Equal(t, "disabled", report.Mirror)
	})
}

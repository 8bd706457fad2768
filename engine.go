// Package sheetsync keeps a remote product catalog consistent with a
// spreadsheet that acts as the source of truth.
//
// An Engine runs one cycle at a time: fetch the sheet, normalize rows,
// compare the snapshot fingerprint, build the catalog index and reconcile.
// A Watcher drives the engine on a polling interval.
package sheetsync

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/pkg/catalog"
	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/detector"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/reconciler"
	"github.com/agentstation/sheetsync/pkg/records"
	"github.com/agentstation/sheetsync/pkg/sources"
)

// ErrNoRecords is returned when the source produced zero valid records.
var ErrNoRecords = errors.ErrNoRecords

// CatalogClient is the remote catalog: a full listing plus the write calls.
type CatalogClient interface {
	catalog.Lister
	reconciler.CatalogWriter
}

// ProductCounter is implemented by catalog clients that can count products
// without listing them.
type ProductCounter interface {
	CountProducts(ctx context.Context) (int, error)
}

// Locker serializes cycles. Acquire fails with errors.ErrLocked when another
// process holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (func(ctx context.Context) error, error)
}

// CycleResult reports one pass of the engine.
type CycleResult struct {
	ID          string               `json:"id" yaml:"id"`
	Source      string               `json:"source" yaml:"source"`
	Changed     bool                 `json:"changed" yaml:"changed"`
	Fingerprint string               `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Records     int                  `json:"records" yaml:"records"`
	Invalid     int                  `json:"invalid_rows" yaml:"invalid_rows"`
	Summary     reconciler.Summary   `json:"summary" yaml:"summary"`
	Outcomes    []reconciler.Outcome `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Committed   bool                 `json:"committed" yaml:"committed"`
	StartedAt   time.Time            `json:"started_at" yaml:"started_at"`
	Duration    time.Duration        `json:"duration" yaml:"duration"`
}

// PlanResult is the read-only preview produced by Plan.
type PlanResult struct {
	Source   string                 `json:"source" yaml:"source"`
	Records  []records.SourceRecord `json:"records" yaml:"records"`
	Invalid  int                    `json:"invalid_rows" yaml:"invalid_rows"`
	Outcomes []reconciler.Outcome   `json:"outcomes" yaml:"outcomes"`
}

// CheckReport is the result of a connection test.
type CheckReport struct {
	Source      string            `json:"source" yaml:"source"`
	SourceOK    bool              `json:"source_ok" yaml:"source_ok"`
	SourceError string            `json:"source_error,omitempty" yaml:"source_error,omitempty"`
	Rows        int               `json:"rows" yaml:"rows"`
	Metadata    *sources.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	CatalogOK    bool   `json:"catalog_ok" yaml:"catalog_ok"`
	CatalogError string `json:"catalog_error,omitempty" yaml:"catalog_error,omitempty"`
	Products     int    `json:"products" yaml:"products"`

	Mirror      string `json:"mirror" yaml:"mirror"`
	MirrorError string `json:"mirror_error,omitempty" yaml:"mirror_error,omitempty"`
}

// Engine runs sync cycles. It is not safe to run cycles concurrently on the
// same Engine; the Watcher never does.
type Engine struct {
	opts     *options
	detector *detector.Detector
	hooks    *hooks
}

// New creates an Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("applying options: %w", err)
		}
	}

	var missing []string
	if o.source == nil {
		missing = append(missing, "source")
	}
	if o.client == nil {
		missing = append(missing, "catalog")
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingConfigError("engine", missing)
	}

	return &Engine{
		opts:     o,
		detector: detector.New(o.store),
		hooks:    newHooks(),
	}, nil
}

// OnCreated registers a callback for records created in the catalog.
func (e *Engine) OnCreated(fn OutcomeHook) { e.hooks.OnCreated(fn) }

// OnUpdated registers a callback for records updated in the catalog.
func (e *Engine) OnUpdated(fn OutcomeHook) { e.hooks.OnUpdated(fn) }

// OnFailed registers a callback for records that could not be written.
func (e *Engine) OnFailed(fn OutcomeHook) { e.hooks.OnFailed(fn) }

// OnCycle registers a callback for completed cycles.
func (e *Engine) OnCycle(fn CycleHook) { e.hooks.OnCycle(fn) }

// Source returns the configured source label.
func (e *Engine) Source() string { return e.opts.source.Label() }

func (e *Engine) context(ctx context.Context) (context.Context, *zerolog.Logger) {
	if e.opts.logger != nil {
		ctx = logging.WithLogger(ctx, e.opts.logger)
	}
	return ctx, logging.FromContext(ctx)
}

// RunCycle runs one full cycle. Source reads, the fingerprint check and the
// index build run under a context detached from ctx and bounded by the cycle
// timeout. Reconciliation is bounded only by ctx and the per-record timeout,
// so a large sheet is never cut short by the cycle timeout; record writes
// stop at the first record boundary after ctx is canceled.
//
// An error means the cycle could not run safely and no writes were
// attempted: lock held, source unreadable, zero valid records, or the
// catalog index unavailable. Per-record failures are not errors; they are
// counted in the summary.
func (e *Engine) RunCycle(ctx context.Context) (result CycleResult, err error) {
	result = CycleResult{
		ID:        e.opts.newID(),
		Source:    e.opts.source.Label(),
		StartedAt: e.opts.now(),
	}
	ctx, _ = e.context(ctx)
	ctx = logging.WithCycle(ctx, result.ID)
	logger := logging.FromContext(ctx)

	defer func() {
		result.Duration = e.opts.now().Sub(result.StartedAt)
		if err == nil {
			e.hooks.triggerCycle(result)
		}
	}()

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.cycleTimeout)
	defer cancel()

	if e.opts.locker != nil {
		release, lockErr := e.opts.locker.Acquire(work)
		if lockErr != nil {
			logger.Warn().Err(lockErr).Msg("Could not acquire sync lock")
			return result, lockErr
		}
		defer func() {
			rctx, stop := finishContext(ctx)
			defer stop()
			if relErr := release(rctx); relErr != nil {
				logger.Warn().Err(relErr).Msg("Failed to release sync lock")
			}
		}()
	}

	norm, err := e.load(work, logger)
	result.Source = e.opts.source.Label()
	result.Records = len(norm.Records)
	result.Invalid = norm.Skipped
	if err != nil {
		return result, err
	}

	changed, fp, err := e.detector.Changed(work, norm.Records)
	if err != nil {
		return result, errors.WrapResource("load", "fingerprint", "", err)
	}
	result.Fingerprint = fmt.Sprintf("%016x", fp)
	if !changed {
		logger.Info().
			Int("records", result.Records).
			Str("fingerprint", result.Fingerprint).
			Msg("No changes detected")
		return result, nil
	}
	result.Changed = true
	notifyPhase(ctx, StateReconciling)

	logger.Info().Int("records", result.Records).Msg("Changes detected, building catalog index")
	idx, err := catalog.Build(work, e.opts.client, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Catalog index unavailable, skipping reconciliation")
		return result, err
	}

	rec, err := e.reconciler(logger)
	if err != nil {
		return result, err
	}

	result.Outcomes, result.Summary = rec.Reconcile(ctx, norm.Records, idx)
	s := result.Summary
	logger.Info().
		Int("created", s.Created).
		Int("updated", s.Updated).
		Int("failed", s.Failed).
		Int("skipped", s.Skipped).
		Bool("interrupted", s.Interrupted).
		Msg("Reconciliation complete")
	if s.Interrupted {
		logger.Warn().
			Int("processed", len(result.Outcomes)).
			Int("records", result.Records).
			Msg("Reconciliation interrupted, next cycle will reconcile again")
	}

	if s.Failed == 0 && !s.Interrupted {
		cctx, stop := finishContext(ctx)
		defer stop()
		if cerr := e.detector.Commit(cctx, fp); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to save fingerprint, next cycle will reconcile again")
		} else {
			result.Committed = true
		}
	}
	return result, nil
}

// Plan fetches and normalizes the source, builds the catalog index and
// returns the action each record would receive. No writes are issued and
// the fingerprint is not consulted.
func (e *Engine) Plan(ctx context.Context) (PlanResult, error) {
	ctx, logger := e.context(ctx)
	res := PlanResult{Source: e.opts.source.Label()}

	norm, err := e.load(ctx, logger)
	res.Source = e.opts.source.Label()
	if err != nil {
		return res, err
	}
	res.Records = norm.Records
	res.Invalid = norm.Skipped

	idx, err := catalog.Build(ctx, e.opts.client, logger)
	if err != nil {
		return res, err
	}
	res.Outcomes = reconciler.Plan(norm.Records, idx)
	return res, nil
}

// Check tests connectivity to the source, the catalog and the mirror. The
// report is always filled in; the error joins every failing component.
func (e *Engine) Check(ctx context.Context) (CheckReport, error) {
	ctx, logger := e.context(ctx)
	report := CheckReport{Source: e.opts.source.Label(), Mirror: "disabled"}
	var errs []error

	if ms, ok := e.opts.source.(sources.MetadataSource); ok {
		md, err := ms.Metadata(ctx)
		if err != nil {
			report.SourceError = err.Error()
			errs = append(errs, err)
		} else {
			report.Metadata = &md
			report.Rows = md.RowCount
			report.SourceOK = true
		}
	} else {
		rows, err := e.opts.source.FetchRows(ctx)
		if err != nil {
			report.SourceError = err.Error()
			errs = append(errs, err)
		} else {
			report.Rows = len(rows)
			report.SourceOK = true
		}
	}

	if counter, ok := e.opts.client.(ProductCounter); ok {
		n, err := counter.CountProducts(ctx)
		if err != nil {
			report.CatalogError = err.Error()
			errs = append(errs, err)
		} else {
			report.Products = n
			report.CatalogOK = true
		}
	} else {
		entries, err := e.opts.client.ListAll(ctx)
		if err != nil {
			report.CatalogError = err.Error()
			errs = append(errs, err)
		} else {
			report.Products = len(entries)
			report.CatalogOK = true
		}
	}

	if e.opts.mirror != nil {
		report.Mirror = "ok"
		if p, ok := e.opts.mirror.(interface{ Ping(context.Context) error }); ok {
			if err := p.Ping(ctx); err != nil {
				report.Mirror = "unavailable"
				report.MirrorError = err.Error()
				errs = append(errs, err)
			}
		}
	}

	logger.Debug().
		Bool("source_ok", report.SourceOK).
		Bool("catalog_ok", report.CatalogOK).
		Str("mirror", report.Mirror).
		Msg("Connection check finished")
	return report, stderrors.Join(errs...)
}

// load fetches and normalizes the source and warns about duplicate part
// numbers. Zero valid records is ErrNoRecords.
//
// The label is read after the fetch since a source may fall back to another
// worksheet while fetching.
func (e *Engine) load(ctx context.Context, logger *zerolog.Logger) (records.Result, error) {
	rows, err := e.opts.source.FetchRows(ctx)
	label := e.opts.source.Label()
	if err != nil {
		logger.Error().Err(err).Str("source", label).Msg("Failed to read source")
		return records.Result{}, errors.WrapResource("fetch", "source", label, err)
	}
	logger.Debug().Int("rows", len(rows)).Str("source", label).Msg("Fetched source rows")

	norm := records.Normalize(rows, label, logger)
	warnDuplicates(norm.Records, logger)

	if len(norm.Records) == 0 {
		logger.Error().
			Int("rows", len(rows)).
			Int("invalid", norm.Skipped).
			Str("source", label).
			Msg("No valid records found")
		return norm, fmt.Errorf("%w in source %s", ErrNoRecords, label)
	}
	return norm, nil
}

// finishContext bounds the bookkeeping after a pass: fingerprint commit and
// lock release. It survives cancellation of ctx.
func finishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultHTTPTimeout)
}

func (e *Engine) reconciler(logger *zerolog.Logger) (*reconciler.Reconciler, error) {
	return reconciler.New(e.opts.client, e.opts.mirror,
		reconciler.WithDelay(e.opts.recordDelay),
		reconciler.WithSleep(e.opts.sleep),
		reconciler.WithClock(e.opts.now),
		reconciler.WithVendor(e.opts.vendor),
		reconciler.WithLogger(logger),
		reconciler.WithObserver(e.hooks.triggerOutcome),
	)
}

func warnDuplicates(recs []records.SourceRecord, logger *zerolog.Logger) {
	dups := records.FindDuplicates(recs)
	if len(dups) == 0 {
		return
	}
	partNos := make([]string, 0, len(dups))
	for p := range dups {
		partNos = append(partNos, p)
	}
	sort.Strings(partNos)
	for _, p := range partNos {
		logger.Warn().
			Str("part_no", p).
			Ints("rows", dups[p]).
			Msg("Duplicate part number in source, each row will be applied in order")
	}
}

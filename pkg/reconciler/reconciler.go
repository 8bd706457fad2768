package reconciler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/pkg/catalog"
	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/records"
)

// Reconciler applies CREATE and UPDATE operations for source records.
type Reconciler struct {
	writer CatalogWriter
	mirror Mirror
	opts   *options
}

// New creates a Reconciler. mirror may be nil.
func New(writer CatalogWriter, mirror Mirror, opts ...Option) (*Reconciler, error) {
	if writer == nil {
		return nil, errors.NewValidationError("writer", nil, "catalog writer is required")
	}
	o := defaults()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Reconciler{writer: writer, mirror: mirror, opts: o}, nil
}

// Plan returns the action each record would receive against idx without
// issuing any writes. A part number repeated in recs is planned as a create
// followed by updates, matching Reconcile.
func Plan(recs []records.SourceRecord, idx *catalog.Index) []Outcome {
	out := make([]Outcome, 0, len(recs))
	created := make(map[string]bool)
	for _, rec := range recs {
		o := Outcome{PartNo: rec.PartNo}
		switch entry, ok := idx.Lookup(rec.PartNo); {
		case rec.PartNo == "":
			o.Action = ActionSkip
		case ok:
			o.Action = ActionUpdate
			o.RemoteID = entry.RemoteID
		case created[rec.PartNo]:
			o.Action = ActionUpdate
		default:
			o.Action = ActionCreate
			created[rec.PartNo] = true
		}
		out = append(out, o)
	}
	return out
}

// Reconcile processes recs in order against idx. Products created during
// the pass are added to idx. A failing record never stops the pass. ctx is checked only between records: once a record has
// started, its remote writes run to completion under a detached context
// bounded by the record timeout.
func (r *Reconciler) Reconcile(ctx context.Context, recs []records.SourceRecord, idx *catalog.Index) ([]Outcome, Summary) {
	logger := r.opts.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	outcomes := make([]Outcome, 0, len(recs))
	var summary Summary

	for i, rec := range recs {
		if ctx.Err() != nil {
			summary.Interrupted = true
			logger.Info().
				Int("processed", i).
				Int("remaining", len(recs)-i).
				Msg("Stop requested, ending reconciliation at record boundary")
			break
		}

		o, mirrorErr := r.reconcileOne(ctx, rec, idx, logger)
		if mirrorErr {
			summary.MirrorErrors++
		}
		summary.add(o.Action)
		outcomes = append(outcomes, o)
		for _, fn := range r.opts.observers {
			fn(o)
		}

		if i < len(recs)-1 && r.opts.delay > 0 && o.Action != ActionSkip {
			if err := r.opts.sleep(ctx, r.opts.delay); err != nil {
				summary.Interrupted = true
				break
			}
		}
	}

	return outcomes, summary
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec records.SourceRecord, idx *catalog.Index, logger *zerolog.Logger) (Outcome, bool) {
	o := Outcome{PartNo: rec.PartNo}
	if rec.PartNo == "" {
		o.Action = ActionSkip
		logger.Warn().Int("row", rec.RowNumber).Msg("Skipping record without part number")
		return o, false
	}

	log := logger.With().Str("part_no", rec.PartNo).Logger()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.recordTimeout)
	defer cancel()

	var err error
	if entry, ok := idx.Lookup(rec.PartNo); ok {
		o.RemoteID = entry.RemoteID
		err = r.update(callCtx, rec, entry)
		o.Action = ActionUpdate
	} else {
		o.RemoteID, err = r.create(callCtx, rec)
		o.Action = ActionCreate
		if err == nil {
			idx.Add(catalog.Entry{RemoteID: o.RemoteID, SKU: rec.PartNo, Title: rec.PartNo})
		}
	}

	if err != nil {
		action := "update"
		if o.Action == ActionCreate {
			action = "create"
		}
		o.Action = ActionFailed
		o.Err = errors.NewSyncError(rec.PartNo, action, err)
		log.Error().Err(err).
			Str("action", action).
			Str("reason", failureReason(err)).
			Msg("Failed to sync record")
		return o, false
	}

	log.Info().
		Str("action", string(o.Action)).
		Int64("remote_id", o.RemoteID).
		Str("price", rec.FormattedPrice()).
		Int("weight", rec.Weight).
		Msg("Synced record")

	if r.mirror == nil {
		return o, false
	}
	if err := r.mirror.Upsert(callCtx, rec, o.RemoteID, r.opts.now()); err != nil {
		log.Error().Err(err).Int64("remote_id", o.RemoteID).Msg("Failed to upsert mirror row")
		return o, true
	}
	return o, false
}

func (r *Reconciler) create(ctx context.Context, rec records.SourceRecord) (int64, error) {
	id, err := r.writer.Create(ctx, Product{
		ProductFields: productFields(rec),
		BodyHTML:      fmt.Sprintf("<strong>Part number: %s</strong>", rec.PartNo),
		Vendor:        r.opts.vendor,
		Variant:       variantFields(rec),
	})
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("create succeeded without a product id")
	}
	return id, nil
}

func (r *Reconciler) update(ctx context.Context, rec records.SourceRecord, entry catalog.Entry) error {
	variantID := entry.VariantID
	if variantID == 0 {
		var err error
		variantID, err = r.writer.GetVariantID(ctx, entry.RemoteID)
		if err != nil {
			return fmt.Errorf("get variant: %w", err)
		}
	}

	if err := r.writer.UpdateProduct(ctx, entry.RemoteID, productFields(rec)); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if err := r.writer.UpdateVariant(ctx, variantID, variantFields(rec)); err != nil {
		return fmt.Errorf("update variant: %w", err)
	}
	return nil
}

func productFields(rec records.SourceRecord) ProductFields {
	return ProductFields{
		Title:       rec.PartNo,
		ProductType: rec.Collection,
		Tags:        rec.Tag,
	}
}

func variantFields(rec records.SourceRecord) VariantFields {
	return VariantFields{
		Price:      rec.FormattedPrice(),
		SKU:        rec.PartNo,
		Weight:     rec.Weight,
		WeightUnit: constants.WeightUnit,
	}
}

// failureReason classifies a failed write for logs. Timeouts and rate limits
// are expected to clear by the next cycle; rejections need a source fix.
func failureReason(err error) string {
	switch {
	case errors.IsTimeout(err):
		return "timeout"
	case errors.IsCanceled(err):
		return "canceled"
	case errors.IsRateLimited(err):
		return "rate_limited"
	case errors.IsServiceUnavailable(err):
		return "unavailable"
	case errors.IsNotFound(err):
		return "not_found"
	default:
		return "rejected"
	}
}

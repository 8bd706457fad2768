// Package catalog builds a SKU index over the remote product catalog.
package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
)

// ErrIndexUnavailable is returned when the remote listing could not be
// fetched. Callers must not reconcile against a missing index.
var ErrIndexUnavailable = errors.New("catalog index unavailable")

// Entry is one product as known by the remote catalog.
type Entry struct {
	RemoteID  int64           `json:"remote_id"`
	VariantID int64           `json:"variant_id,omitempty"`
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Weight    int             `json:"weight"`
	Tags      string          `json:"tags"`
	Category  string          `json:"category"`
}

// Lister returns the complete remote catalog, paginating internally.
type Lister interface {
	ListAll(ctx context.Context) ([]Entry, error)
}

// Index is an O(1) lookup from SKU to Entry.
type Index struct {
	bySKU      map[string]Entry
	duplicates []string
}

// Build fetches the full listing and indexes it by SKU. When two entries
// share a SKU the first one seen is kept and a warning is logged.
func Build(ctx context.Context, lister Lister, logger *zerolog.Logger) (*Index, error) {
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	entries, err := lister.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	idx := NewIndex(entries, logger)
	if idx.Len() == 0 {
		logger.Warn().Msg("Catalog listing returned no products; every record will be created")
	}
	logger.Debug().
		Int("entries", len(entries)).
		Int("indexed", idx.Len()).
		Int("duplicates", len(idx.duplicates)).
		Msg("Built catalog index")
	return idx, nil
}

// NewIndex indexes entries that are already in hand.
func NewIndex(entries []Entry, logger *zerolog.Logger) *Index {
	if logger == nil {
		logger = logging.Default()
	}

	idx := &Index{bySKU: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.SKU == "" {
			logger.Debug().Int64("remote_id", e.RemoteID).Msg("Ignoring catalog entry without SKU")
			continue
		}
		if first, ok := idx.bySKU[e.SKU]; ok {
			logger.Warn().
				Str("sku", e.SKU).
				Int64("kept_remote_id", first.RemoteID).
				Int64("ignored_remote_id", e.RemoteID).
				Msg("Duplicate SKU in catalog, keeping first entry")
			idx.duplicates = append(idx.duplicates, e.SKU)
			continue
		}
		idx.bySKU[e.SKU] = e
	}
	return idx
}

// Lookup returns the entry for sku.
func (i *Index) Lookup(sku string) (Entry, bool) {
	e, ok := i.bySKU[sku]
	return e, ok
}

// Add records an entry created during the current pass so later records
// with the same SKU update it instead of creating another product. An
// existing entry for the SKU is kept.
func (i *Index) Add(e Entry) bool {
	if e.SKU == "" {
		return false
	}
	if _, ok := i.bySKU[e.SKU]; ok {
		return false
	}
	i.bySKU[e.SKU] = e
	return true
}

// Len returns the number of distinct SKUs.
func (i *Index) Len() int {
	return len(i.bySKU)
}

// Duplicates returns SKUs seen more than once, once per extra occurrence.
func (i *Index) Duplicates() []string {
	return append([]string(nil), i.duplicates...)
}

// Package reconciler converges the remote catalog toward the source records.
package reconciler

import (
	"context"
	"time"

	"github.com/agentstation/sheetsync/pkg/records"
)

// Action is the decision taken for one source record.
type Action string

// Actions.
const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionSkip   Action = "SKIP"
	ActionFailed Action = "FAILED"
)

// Outcome is the result of processing one record in one cycle.
type Outcome struct {
	PartNo   string `json:"part_no" yaml:"part_no"`
	Action   Action `json:"action" yaml:"action"`
	RemoteID int64  `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`
	Err      error  `json:"-" yaml:"-"`
}

// Summary aggregates outcomes for a cycle.
type Summary struct {
	Created int `json:"created" yaml:"created"`
	Updated int `json:"updated" yaml:"updated"`
	Failed  int `json:"failed" yaml:"failed"`
	Skipped int `json:"skipped" yaml:"skipped"`

	// MirrorErrors counts successful catalog writes whose mirror upsert failed.
	MirrorErrors int `json:"mirror_errors,omitempty" yaml:"mirror_errors,omitempty"`

	// Interrupted is set when a stop request ended the pass early.
	Interrupted bool `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

func (s *Summary) add(action Action) {
	switch action {
	case ActionCreate:
		s.Created++
	case ActionUpdate:
		s.Updated++
	case ActionFailed:
		s.Failed++
	case ActionSkip:
		s.Skipped++
	}
}

// VariantFields are the variant-level fields written on create and update.
// Price is already formatted with two decimal places.
type VariantFields struct {
	Price      string
	SKU        string
	Weight     int
	WeightUnit string
}

// ProductFields are the product-level fields written on update.
type ProductFields struct {
	Title       string
	ProductType string
	Tags        string
}

// Product is the payload for a create call.
type Product struct {
	ProductFields
	BodyHTML string
	Vendor   string
	Variant  VariantFields
}

// CatalogWriter is the write side of the remote catalog API.
type CatalogWriter interface {
	Create(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, productID int64, fields ProductFields) error
	UpdateVariant(ctx context.Context, variantID int64, fields VariantFields) error
	GetVariantID(ctx context.Context, productID int64) (int64, error)
}

// Mirror records confirmed remote state. It is written, never read, by the
// reconciler.
type Mirror interface {
	Upsert(ctx context.Context, rec records.SourceRecord, remoteID int64, syncedAt time.Time) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

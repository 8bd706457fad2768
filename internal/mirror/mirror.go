// Package mirror persists a local shadow of reconciled records keyed by
// part number. Rows are written after confirmed catalog writes and are never
// consulted when deciding what to sync.
package mirror

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agentstation/sheetsync/pkg/records"
)

// TableName is the mirror table used by the SQL backends.
const TableName = "products"

// Row is one mirrored record.
type Row struct {
	PartNo     string          `json:"part_no"`
	Price      decimal.Decimal `json:"price"`
	Weight     int             `json:"weight"`
	Tag        string          `json:"tag"`
	Collection string          `json:"collection"`
	RemoteID   int64           `json:"shopify_id"`
	LastSynced time.Time       `json:"last_synced"`
}

// NewRow builds a Row from a reconciled record.
func NewRow(rec records.SourceRecord, remoteID int64, syncedAt time.Time) Row {
	return Row{
		PartNo:     rec.PartNo,
		Price:      rec.Price.Round(2),
		Weight:     rec.Weight,
		Tag:        rec.Tag,
		Collection: rec.Collection,
		RemoteID:   remoteID,
		LastSynced: syncedAt.UTC(),
	}
}

// Store is an idempotent upsert target keyed on part number.
type Store interface {
	Upsert(ctx context.Context, rec records.SourceRecord, remoteID int64, syncedAt time.Time) error
	Close() error
}

// Pinger is implemented by stores that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter is implemented by stores that can report their row count.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

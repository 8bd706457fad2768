// Package records turns raw spreadsheet rows into validated source records.
package records

import (
	"github.com/shopspring/decimal"
)

// Canonical column names after header normalization.
const (
	FieldPartNo     = "part_no"
	FieldPrice      = "price"
	FieldWeight     = "weight"
	FieldTag        = "tag"
	FieldCollection = "collection"
)

// FirstDataRow is the 1-based row number of the first row after the header.
const FirstDataRow = 2

// RawRow maps a column name to its raw cell text.
type RawRow map[string]string

// SourceRecord is one validated row from the source of truth. PartNo is the
// only identity field and keeps the case it was authored with.
type SourceRecord struct {
	PartNo     string          `json:"part_no" yaml:"part_no"`
	Price      decimal.Decimal `json:"price" yaml:"price"`
	Weight     int             `json:"weight" yaml:"weight"`
	Tag        string          `json:"tag" yaml:"tag"`
	Collection string          `json:"collection" yaml:"collection"`

	// Provenance, excluded from fingerprints.
	RowNumber  int    `json:"source_row_number" yaml:"source_row_number"`
	SourceName string `json:"source_name" yaml:"source_name"`
}

// FormattedPrice returns the price with exactly two decimal places.
func (r SourceRecord) FormattedPrice() string {
	return r.Price.StringFixed(2)
}

// Result is the output of a single Normalize call.
type Result struct {
	Records []SourceRecord
	Skipped int
}

package server

import (
	"context"

	"github.com/agentstation/sheetsync/pkg/catalog"
	"github.com/agentstation/sheetsync/pkg/reconciler"
	"github.com/agentstation/sheetsync/pkg/records"
)

type staticSource struct{}

func (staticSource) FetchRows(context.Context) ([]records.RawRow, error) {
	return []records.RawRow{{"part_no": "A1", "price": "1.00", "weight": "1"}}, nil
}

func (staticSource) Label() string { return "static" }

type nopCatalog struct{}

func (nopCatalog) ListAll(context.Context) ([]catalog.Entry, error) { return nil, nil }

func (nopCatalog) Create(context.Context, reconciler.Product) (int64, error) { return 1, nil }

func (nopCatalog) UpdateProduct(context.Context, int64, reconciler.ProductFields) error { return nil }

func (nopCatalog) UpdateVariant(context.Context, int64, reconciler.VariantFields) error { return nil }

func (nopCatalog) GetVariantID(context.Context, int64) (int64, error) { return 1, nil }

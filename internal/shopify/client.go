// Package shopify implements the remote catalog against the Shopify Admin
// REST API.
package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/agentstation/sheetsync/internal/transport"
	"github.com/agentstation/sheetsync/pkg/catalog"
	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/reconciler"
)

// ServiceName identifies Shopify in errors and logs.
const ServiceName = "shopify"

// AccessTokenHeader carries the Admin API access token.
const AccessTokenHeader = "X-Shopify-Access-Token"

// Config holds the connection settings for a shop.
type Config struct {
	ShopURL     string // e.g. "example.myshopify.com"
	AccessToken string
	APIVersion  string
}

// Client talks to one shop's Admin API.
type Client struct {
	baseURL string
	http    *transport.Client
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	transport []transport.Option
}

// WithBaseURL overrides the derived https://{shop}/admin/api/{version}
// base, for tests.
func WithBaseURL(u string) Option {
	return func(o *clientOptions) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithTransportOptions passes options through to the HTTP transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *clientOptions) { o.transport = append(o.transport, opts...) }
}

// WithLogger sets the logger used by the transport.
func WithLogger(logger *zerolog.Logger) Option {
	return WithTransportOptions(transport.WithLogger(logger))
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, errors.NewValidationError("access_token", nil, "is required")
	}
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	base := o.baseURL
	if base == "" {
		if cfg.ShopURL == "" {
			return nil, errors.NewValidationError("shop_url", nil, "is required")
		}
		version := cfg.APIVersion
		if version == "" {
			version = constants.DefaultAPIVersion
		}
		base = fmt.Sprintf("https://%s/admin/api/%s", shopHost(cfg.ShopURL), version)
	}

	return &Client{
		baseURL: base,
		http:    transport.New(ServiceName, &transport.HeaderAuth{Header: AccessTokenHeader}, cfg.AccessToken, o.transport...),
	}, nil
}

// shopHost accepts "shop.myshopify.com", "https://shop.myshopify.com/" or
// similar and returns the bare host.
func shopHost(shop string) string {
	shop = strings.TrimSpace(shop)
	if u, err := url.Parse(shop); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.Trim(shop, "/")
}

// ListAll fetches every product, following Link pagination.
func (c *Client) ListAll(ctx context.Context) ([]catalog.Entry, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(constants.CatalogPageSize))
	q.Set("fields", "id,title,product_type,tags,variants")
	next := c.baseURL + "/products.json?" + q.Encode()

	var entries []catalog.Entry
	for page := 1; next != ""; page++ {
		resp, err := c.http.Do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, errors.WrapResource("list", "products", "page "+strconv.Itoa(page), err)
		}
		var body productsResponse
		if err := resp.Decode(&body); err != nil {
			return nil, err
		}
		for _, p := range body.Products {
			entries = append(entries, p.entry())
		}
		next = transport.NextLink(resp.Header.Get("Link"))
	}
	return entries, nil
}

// CountProducts returns the shop's product count.
func (c *Client) CountProducts(ctx context.Context) (int, error) {
	resp, err := c.http.Do(ctx, http.MethodGet, c.baseURL+"/products/count.json", nil)
	if err != nil {
		return 0, errors.WrapResource("count", "products", "", err)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := resp.Decode(&body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

// Create creates a product with a single variant and returns its id.
func (c *Client) Create(ctx context.Context, p reconciler.Product) (int64, error) {
	payload := productEnvelope{Product: productPayload{
		Title:       p.Title,
		BodyHTML:    p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        p.Tags,
		Variants:    []variantPayload{newVariantPayload(p.Variant)},
	}}

	resp, err := c.http.Do(ctx, http.MethodPost, c.baseURL+"/products.json", payload)
	if err != nil {
		return 0, errors.WrapResource("create", "product", p.Title, err)
	}
	var out struct {
		Product product `json:"product"`
	}
	if err := resp.Decode(&out); err != nil {
		return 0, err
	}
	if out.Product.ID == 0 {
		return 0, errors.NewResourceError("create", "product", p.Title, errors.New("response carried no product id"))
	}
	return out.Product.ID, nil
}

// UpdateProduct updates product-level fields.
func (c *Client) UpdateProduct(ctx context.Context, productID int64, fields reconciler.ProductFields) error {
	id := strconv.FormatInt(productID, 10)
	payload := productEnvelope{Product: productPayload{
		ID:          productID,
		Title:       fields.Title,
		ProductType: fields.ProductType,
		Tags:        fields.Tags,
	}}
	if _, err := c.http.Do(ctx, http.MethodPut, c.baseURL+"/products/"+id+".json", payload); err != nil {
		return errors.WrapResource("update", "product", id, err)
	}
	return nil
}

// UpdateVariant updates variant-level fields.
func (c *Client) UpdateVariant(ctx context.Context, variantID int64, fields reconciler.VariantFields) error {
	id := strconv.FormatInt(variantID, 10)
	v := newVariantPayload(fields)
	v.ID = variantID
	if _, err := c.http.Do(ctx, http.MethodPut, c.baseURL+"/variants/"+id+".json", variantEnvelope{Variant: v}); err != nil {
		return errors.WrapResource("update", "variant", id, err)
	}
	return nil
}

// GetVariantID returns the id of the product's first variant.
func (c *Client) GetVariantID(ctx context.Context, productID int64) (int64, error) {
	id := strconv.FormatInt(productID, 10)
	resp, err := c.http.Do(ctx, http.MethodGet, c.baseURL+"/products/"+id+"/variants.json", nil)
	if err != nil {
		return 0, errors.WrapResource("fetch", "variants", id, err)
	}
	var body struct {
		Variants []variant `json:"variants"`
	}
	if err := resp.Decode(&body); err != nil {
		return 0, err
	}
	if len(body.Variants) == 0 {
		return 0, errors.NewNotFoundError("variant of product", id)
	}
	return body.Variants[0].ID, nil
}

type productsResponse struct {
	Products []product `json:"products"`
}

type product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ProductType string    `json:"product_type"`
	Tags        string    `json:"tags"`
	Variants    []variant `json:"variants"`
}

type variant struct {
	ID         int64   `json:"id"`
	SKU        string  `json:"sku"`
	Price      string  `json:"price"`
	Grams      int     `json:"grams"`
	Weight     float64 `json:"weight"`
	WeightUnit string  `json:"weight_unit"`
}

// entry maps a listed product to a catalog entry keyed by the first
// variant's SKU.
func (p product) entry() catalog.Entry {
	e := catalog.Entry{
		RemoteID: p.ID,
		Title:    p.Title,
		Tags:     p.Tags,
		Category: p.ProductType,
	}
	if len(p.Variants) > 0 {
		v := p.Variants[0]
		e.VariantID = v.ID
		e.SKU = strings.TrimSpace(v.SKU)
		e.Weight = v.Grams
		if price, err := decimal.NewFromString(v.Price); err == nil {
			e.Price = price
		}
	}
	return e
}

type productEnvelope struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID          int64            `json:"id,omitempty"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html,omitempty"`
	Vendor      string           `json:"vendor,omitempty"`
	ProductType string           `json:"product_type"`
	Tags        string           `json:"tags"`
	Variants    []variantPayload `json:"variants,omitempty"`
}

type variantEnvelope struct {
	Variant variantPayload `json:"variant"`
}

type variantPayload struct {
	ID         int64  `json:"id,omitempty"`
	Price      string `json:"price"`
	SKU        string `json:"sku"`
	Weight     int    `json:"weight"`
	WeightUnit string `json:"weight_unit"`
}

func newVariantPayload(f reconciler.VariantFields) variantPayload {
	unit := f.WeightUnit
	if unit == "" {
		unit = constants.WeightUnit
	}
	return variantPayload{Price: f.Price, SKU: f.SKU, Weight: f.Weight, WeightUnit: unit}
}

package app

import (
	"context"

	"google.golang.org/api/option"

	"github.com/agentstation/sheetsync"
	"github.com/agentstation/sheetsync/internal/mirror"
	"github.com/agentstation/sheetsync/internal/shopify"
	"github.com/agentstation/sheetsync/internal/sources/sheets"
	"github.com/agentstation/sheetsync/internal/sources/xlsx"
	"github.com/agentstation/sheetsync/internal/state"
	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/sources"
)

// buildEngine wires the configured source, catalog, mirror, fingerprint
// store and lock into an engine.
func (a *App) buildEngine(ctx context.Context) (*sheetsync.Engine, error) {
	src, err := a.buildSource(ctx)
	if err != nil {
		return nil, err
	}

	client, err := shopify.New(shopify.Config{
		ShopURL:     a.config.ShopURL,
		AccessToken: a.config.AccessToken,
		APIVersion:  a.config.APIVersion,
	}, shopify.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	opts := []sheetsync.Option{
		sheetsync.WithSource(src),
		sheetsync.WithCatalog(client),
		sheetsync.WithRecordDelay(a.config.RecordDelay),
		sheetsync.WithVendor(a.config.Vendor),
		sheetsync.WithLogger(a.logger),
	}

	if a.config.MirrorDSN != "" {
		store, err := mirror.Open(a.config.MirrorDSN)
		if err != nil {
			return nil, err
		}
		a.onShutdown(store.Close)
		opts = append(opts, sheetsync.WithMirror(store))
	}

	fp, err := state.OpenStore(a.config.StateDSN)
	if err != nil {
		return nil, err
	}
	if c, ok := fp.(interface{ Close() error }); ok {
		a.onShutdown(c.Close)
	}
	opts = append(opts, sheetsync.WithFingerprintStore(fp))

	if a.config.RedisURL != "" {
		rc, err := state.NewRedisClient(a.config.RedisURL)
		if err != nil {
			return nil, err
		}
		a.onShutdown(rc.Close)
		opts = append(opts, sheetsync.WithLocker(state.NewRedisLocker(rc, constants.LockTTL)))
	} else {
		opts = append(opts, sheetsync.WithLocker(state.NewLocalLocker()))
	}

	return sheetsync.New(opts...)
}

func (a *App) buildSource(ctx context.Context) (sources.Source, error) {
	if a.config.XLSXPath != "" {
		return xlsx.New(a.config.XLSXPath, a.config.Worksheet, a.logger), nil
	}
	return sheets.New(ctx, a.config.SheetsID,
		sheets.WithWorksheet(a.config.Worksheet),
		sheets.WithCredentialsFile(a.config.CredentialsPath),
		sheets.WithClientOptions(option.WithUserAgent("sheetsync/"+a.version)),
		sheets.WithLogger(a.logger),
	)
}

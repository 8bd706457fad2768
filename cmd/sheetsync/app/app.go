// Package app provides the application context and dependency management
// for the sheetsync CLI. It centralizes configuration, logging and the
// construction of the sync engine from that configuration.
package app

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync"
)

// App represents the sheetsync application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer

	// builder constructs engines; replaced in tests.
	builder func(ctx context.Context) (*sheetsync.Engine, error)

	mu      sync.Mutex
	closers []func() error
}

// New creates a new App instance with the given version information.
// Configuration is loaded from the environment immediately; the --config
// flag reloads it before a command runs.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger
	app.builder = app.buildEngine

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Engine builds a sync engine from the configuration. Resources it opens
// are released by Shutdown.
func (a *App) Engine(ctx context.Context) (*sheetsync.Engine, error) {
	if err := a.config.Validate(); err != nil {
		return nil, err
	}
	return a.builder(ctx)
}

func (a *App) onShutdown(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Shutdown releases resources opened while building the engine, most
// recent first.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			a.logger.Error().Err(err).Msg("Failed to release resource during shutdown")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithEngineBuilder replaces engine construction (useful for testing).
func WithEngineBuilder(fn func(ctx context.Context) (*sheetsync.Engine, error)) Option {
	return func(a *App) error {
		a.builder = fn
		return nil
	}
}

// WithOutput sends command output to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

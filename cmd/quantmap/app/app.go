// Package app provides the application context and dependency wiring for
// the quantmap CLI: configuration, logging, and the lazily constructed
// quantmap instance behind every command.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quantmap/quantmap"
	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// App carries the CLI's dependencies: configuration, logger, and the
// quantmap instance.
type App struct {
	version string
	commit  string
	date    string

	config *Config
	logger *zerolog.Logger

	// quantmap instance, lazily initialized
	mu sync.RWMutex
	qm quantmap.Quantmap
}

// New creates an App with the given version information.
func New(version, commit, date string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.NewConfigError("app", "loading configuration", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version string.
func (a *App) Version() string { return a.version }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// Quantmap returns the quantmap instance, creating it on first use.
func (a *App) Quantmap() (quantmap.Quantmap, error) {
	a.mu.RLock()
	if a.qm != nil {
		qm := a.qm
		a.mu.RUnlock()
		return qm, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.qm != nil {
		return a.qm, nil
	}

	qm, err := quantmap.New(a.buildOptions()...)
	if err != nil {
		return nil, err
	}
	a.qm = qm
	return qm, nil
}

// Catalog loads the current catalog through the quantmap instance.
func (a *App) Catalog() (*catalogs.Catalog, error) {
	qm, err := a.Quantmap()
	if err != nil {
		return nil, err
	}
	return qm.Catalog()
}

// Shutdown stops background work before exit.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.RLock()
	qm := a.qm
	a.mu.RUnlock()

	if qm != nil {
		if err := qm.AutoSyncOff(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop periodic sync during shutdown")
		}
	}
	return nil
}

// buildOptions constructs quantmap options from the app configuration.
func (a *App) buildOptions() []quantmap.Option {
	runConfig := syncer.Defaults()
	runConfig.Mode = syncer.Mode(a.config.Mode)
	runConfig.ForceFull = a.config.ForceFull
	runConfig.DryRun = a.config.DryRun
	if a.config.RequestsPerSecond > 0 {
		runConfig.RequestsPerSecond = a.config.RequestsPerSecond
	}
	if a.config.MaxConcurrent > 0 {
		runConfig.MaxConcurrent = a.config.MaxConcurrent
	}
	if len(a.config.Strategies) > 0 {
		runConfig.Strategies = nil
		for _, s := range a.config.Strategies {
			runConfig.Strategies = append(runConfig.Strategies, syncer.StrategyConfig{
				Name:  s.Name,
				Query: s.Query,
			})
		}
	}

	opts := []quantmap.Option{
		quantmap.WithStoreDir(a.config.StoreDir),
		quantmap.WithRunConfig(runConfig),
		quantmap.WithLogger(a.logger),
	}
	if a.config.HubURL != "" {
		opts = append(opts, quantmap.WithHubURL(a.config.HubURL))
	}
	if a.config.Token != "" {
		opts = append(opts, quantmap.WithToken(a.config.Token))
	}
	if a.config.AutoSyncInterval > 0 {
		opts = append(opts, quantmap.WithAutoSyncInterval(a.config.AutoSyncInterval))
	}
	return opts
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

// WithQuantmap sets a custom quantmap instance, useful for testing.
func WithQuantmap(qm quantmap.Quantmap) Option {
	return func(a *App) error {
		a.qm = qm
		return nil
	}
}

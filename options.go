package quantmap

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/quantmap/quantmap/internal/orchestrator"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// Option is a function that configures a Quantmap instance.
type Option func(*options) error

// options holds the resolved configuration of a Quantmap instance.
type options struct {
	storeDir         string
	hubURL           string
	token            string
	runConfig        syncer.RunConfig
	logger           *zerolog.Logger
	hubClient        orchestrator.Client
	autoSyncInterval time.Duration
}

func defaultOptions() *options {
	return &options{
		storeDir:         "quantmap-data",
		hubURL:           DefaultHubURL,
		runConfig:        syncer.Defaults(),
		autoSyncInterval: 6 * time.Hour,
	}
}

// WithStoreDir configures where the catalog snapshot and sync state live.
func WithStoreDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return &errors.ValidationError{Field: "storeDir", Message: "must not be empty"}
		}
		o.storeDir = dir
		return nil
	}
}

// WithHubURL configures the hub endpoint to sync from.
func WithHubURL(url string) Option {
	return func(o *options) error {
		if url == "" {
			return &errors.ValidationError{Field: "hubURL", Message: "must not be empty"}
		}
		o.hubURL = url
		return nil
	}
}

// WithToken configures the hub API token. An empty token means anonymous
// access, which most hubs rate-limit more aggressively.
func WithToken(token string) Option {
	return func(o *options) error {
		o.token = token
		return nil
	}
}

// WithRunConfig replaces the entire run configuration.
func WithRunConfig(cfg syncer.RunConfig) Option {
	return func(o *options) error {
		o.runConfig = cfg
		return nil
	}
}

// WithMode configures the sync mode for every run.
func WithMode(mode syncer.Mode) Option {
	return func(o *options) error {
		if !mode.Valid() {
			return &errors.ValidationError{Field: "mode", Value: mode, Message: "unknown sync mode"}
		}
		o.runConfig.Mode = mode
		return nil
	}
}

// WithStrategies replaces the discovery strategy set.
func WithStrategies(strategies ...syncer.StrategyConfig) Option {
	return func(o *options) error {
		if len(strategies) == 0 {
			return &errors.ValidationError{Field: "strategies", Message: "must not be empty"}
		}
		o.runConfig.Strategies = strategies
		return nil
	}
}

// WithLogger configures the logger used by the sync pipeline.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithHubClient overrides the hub client, primarily for tests.
func WithHubClient(c orchestrator.Client) Option {
	return func(o *options) error {
		o.hubClient = c
		return nil
	}
}

// WithAutoSyncInterval configures how often AutoSyncOn runs a sync.
func WithAutoSyncInterval(interval time.Duration) Option {
	return func(o *options) error {
		if interval <= 0 {
			return &errors.ValidationError{Field: "autoSyncInterval", Value: interval, Message: "must be positive"}
		}
		o.autoSyncInterval = interval
		return nil
	}
}

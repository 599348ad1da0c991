// Package quantmap maintains a local catalog of quantized model metadata
// synchronized from a model hub. It discovers models through configurable
// strategies, fetches and scores their metadata under hub rate limits, and
// commits the result atomically, rolling back runs that fail validation.
package quantmap

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantmap/quantmap/internal/orchestrator"
	"github.com/quantmap/quantmap/internal/persist"
	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/logging"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// DefaultHubURL is the hub endpoint used when none is configured.
const DefaultHubURL = "https://huggingface.co"

// Quantmap manages a synchronized catalog with event hooks and optional
// periodic sync.
type Quantmap interface {
	// Catalog returns a copy of the current catalog.
	Catalog() (*catalogs.Catalog, error)

	// Sync runs one sync run and returns its report. The report is
	// non-nil even when the run rolled back.
	Sync(ctx context.Context) (*syncer.Report, error)

	// AutoSyncOn begins periodic syncs at the configured interval.
	AutoSyncOn() error

	// AutoSyncOff stops periodic syncs.
	AutoSyncOff() error

	// OnModelAdded registers a callback for models new to the catalog.
	OnModelAdded(ModelAddedHook)

	// OnModelUpdated registers a callback for changed models.
	OnModelUpdated(ModelUpdatedHook)

	// OnModelRemoved registers a callback for models dropped from the catalog.
	OnModelRemoved(ModelRemovedHook)
}

// client is the internal implementation of the Quantmap interface.
type client struct {
	mu      sync.RWMutex
	options *options
	orch    *orchestrator.Orchestrator
	store   *persist.Store
	catalog *catalogs.Catalog // last committed catalog, nil until loaded
	logger  *zerolog.Logger

	hooks *hooks

	syncTicker *time.Ticker
	syncCancel context.CancelFunc
	stopCh     chan struct{}
}

// New creates a Quantmap instance with the given options.
func New(opts ...Option) (Quantmap, error) {
	c := &client{
		options: defaultOptions(),
		hooks:   newHooks(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(c.options); err != nil {
			return nil, errors.NewConfigError("quantmap", "applying options", err)
		}
	}

	c.logger = c.options.logger
	if c.logger == nil {
		c.logger = logging.Default()
	}
	c.store = persist.NewStore(c.options.storeDir)

	orchOpts := []orchestrator.Option{orchestrator.WithLogger(c.logger)}
	if c.options.hubClient != nil {
		orchOpts = append(orchOpts, orchestrator.WithClient(c.options.hubClient))
	}
	orch, err := orchestrator.New(c.options.runConfig, c.store,
		c.options.hubURL, c.options.token, orchOpts...)
	if err != nil {
		return nil, err
	}
	c.orch = orch
	return c, nil
}

package quantmap

import (
	"context"

	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// Sync runs one sync run against the hub. Rolled-back runs return their
// report with a nil error unless the run failed fatally; either way the
// previously committed catalog stays in place.
func (c *client) Sync(ctx context.Context) (*syncer.Report, error) {
	previous, err := c.Catalog()
	if err != nil {
		return nil, err
	}

	report, err := c.orch.Run(ctx)
	if report == nil {
		return nil, err
	}

	// Dry runs commit nothing, so the cached catalog and hooks stay as-is.
	if report.Committed() && !c.options.runConfig.DryRun {
		fresh, lerr := c.store.LoadCatalog()
		if lerr != nil {
			return report, lerr
		}
		c.mu.Lock()
		c.catalog = fresh
		c.mu.Unlock()
		c.hooks.triggerCatalogUpdate(previous, fresh)
	}
	return report, err
}

// OnModelAdded registers a callback for models new to the catalog.
func (c *client) OnModelAdded(fn ModelAddedHook) { c.hooks.OnModelAdded(fn) }

// OnModelUpdated registers a callback for changed models.
func (c *client) OnModelUpdated(fn ModelUpdatedHook) { c.hooks.OnModelUpdated(fn) }

// OnModelRemoved registers a callback for removed models.
func (c *client) OnModelRemoved(fn ModelRemovedHook) { c.hooks.OnModelRemoved(fn) }

// catalogCopy returns a defensive copy so callers can't mutate the
// client's cached catalog.
func catalogCopy(cat *catalogs.Catalog) *catalogs.Catalog {
	if cat == nil {
		return catalogs.New()
	}
	return cat.Copy()
}

package quantmap

import (
	"reflect"
	"sync"

	"github.com/quantmap/quantmap/pkg/catalogs"
)

// Hook function types for catalog change events.
type (
	// ModelAddedHook is called when a model appears in the catalog.
	ModelAddedHook func(model catalogs.Model)

	// ModelUpdatedHook is called when a model's record changes.
	ModelUpdatedHook func(old, new catalogs.Model)

	// ModelRemovedHook is called when a model leaves the catalog.
	ModelRemovedHook func(model catalogs.Model)
)

// hooks manages event callbacks for catalog changes.
type hooks struct {
	mu             sync.RWMutex
	onModelAdded   []ModelAddedHook
	onModelUpdated []ModelUpdatedHook
	onModelRemoved []ModelRemovedHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnModelAdded registers a callback for added models.
func (h *hooks) OnModelAdded(fn ModelAddedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onModelAdded = append(h.onModelAdded, fn)
}

// OnModelUpdated registers a callback for updated models.
func (h *hooks) OnModelUpdated(fn ModelUpdatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onModelUpdated = append(h.onModelUpdated, fn)
}

// OnModelRemoved registers a callback for removed models.
func (h *hooks) OnModelRemoved(fn ModelRemovedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onModelRemoved = append(h.onModelRemoved, fn)
}

// triggerCatalogUpdate diffs old against new and fires the matching
// hooks. Hooks run synchronously on the syncing goroutine; slow hooks
// delay the next run, they never corrupt it.
func (h *hooks) triggerCatalogUpdate(oldCatalog, newCatalog *catalogs.Catalog) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	oldModels := make(map[string]catalogs.Model)
	if oldCatalog != nil {
		for _, m := range oldCatalog.List() {
			oldModels[m.ID] = m
		}
	}

	newIDs := make(map[string]struct{})
	for _, m := range newCatalog.List() {
		newIDs[m.ID] = struct{}{}
		old, existed := oldModels[m.ID]
		if !existed {
			for _, hook := range h.onModelAdded {
				hook(m)
			}
			continue
		}
		if !reflect.DeepEqual(old, m) {
			for _, hook := range h.onModelUpdated {
				hook(old, m)
			}
		}
	}

	for id, m := range oldModels {
		if _, kept := newIDs[id]; !kept {
			for _, hook := range h.onModelRemoved {
				hook(m)
			}
		}
	}
}

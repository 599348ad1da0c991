package quantmap

import (
	"github.com/quantmap/quantmap/pkg/catalogs"
)

// Catalog returns a copy of the current catalog. The first call loads
// the committed snapshot from the store; later calls serve the cached
// catalog updated by Sync.
func (c *client) Catalog() (*catalogs.Catalog, error) {
	c.mu.RLock()
	cached := c.catalog
	c.mu.RUnlock()
	if cached != nil {
		return catalogCopy(cached), nil
	}

	loaded, err := c.store.LoadCatalog()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	// Another goroutine may have loaded meanwhile; keep the first.
	if c.catalog == nil {
		c.catalog = loaded
	}
	loaded = c.catalog
	c.mu.Unlock()
	return catalogCopy(loaded), nil
}

package catalogs

import (
	"sort"
	"sync"
	"time"
)

// Catalog is an in-memory collection of models keyed by ID.
// It is safe for concurrent readers; the sync engine never mutates a
// catalog from more than one goroutine.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]Model
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{models: make(map[string]Model)}
}

// FromModels creates a catalog holding the given models.
// Later entries with the same ID replace earlier ones.
func FromModels(models []Model) *Catalog {
	c := New()
	for _, m := range models {
		c.Set(m)
	}
	return c
}

// Set adds or replaces a model by ID. Models with no ID are dropped:
// without the merge key they cannot live in the catalog.
func (c *Catalog) Set(m Model) {
	if m.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.ID] = m
}

// Get returns the model with the given ID.
func (c *Catalog) Get(id string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	return m, ok
}

// Len returns the number of models in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// List returns all models sorted by ID for deterministic output.
func (c *Catalog) List() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all model IDs in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.models))
	for id := range c.models {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Copy returns a deep copy of the catalog.
func (c *Catalog) Copy() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := New()
	for id, m := range c.models {
		out.models[id] = m.Copy()
	}
	return out
}

// MeanCompleteness returns the mean per-record completeness score, or 0
// for an empty catalog.
func (c *Catalog) MeanCompleteness() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.models) == 0 {
		return 0
	}
	var sum float64
	for _, m := range c.models {
		sum += m.Completeness
	}
	return sum / float64(len(c.models))
}

// MeanQuality returns the mean per-record quality score, or 0 for an
// empty catalog.
func (c *Catalog) MeanQuality() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.models) == 0 {
		return 0
	}
	var sum float64
	for _, m := range c.models {
		sum += m.Quality
	}
	return sum / float64(len(c.models))
}

// Snapshot is the serialized form of a catalog, written atomically by the
// snapshot writer and read back as the previous catalog on the next run.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Models      []Model   `json:"models" yaml:"models"`
}

// Snapshot returns a serializable snapshot of the catalog.
func (c *Catalog) Snapshot(now time.Time) *Snapshot {
	return &Snapshot{
		GeneratedAt: now.UTC(),
		Models:      c.List(),
	}
}

// Catalog reconstructs a catalog from a snapshot.
func (s *Snapshot) Catalog() *Catalog {
	return FromModels(s.Models)
}

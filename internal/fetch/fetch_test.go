package fetch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmap/quantmap/internal/discovery"
	"github.com/quantmap/quantmap/internal/hub"
	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// countingGetter serves canned details and counts hub calls, standing in
// for the scheduler-call accounting the short-circuit property needs.
type countingGetter struct {
	mu      sync.Mutex
	details map[string]*hub.ModelDetail
	errs    map[string]error
	calls   int
}

func (g *countingGetter) GetModel(_ context.Context, id string) (*hub.ModelDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err, ok := g.errs[id]; ok {
		return nil, err
	}
	if d, ok := g.details[id]; ok {
		return d, nil
	}
	return nil, errors.NewHubError("/api/models/"+id, 404, "not found")
}

func (g *countingGetter) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func detailFor(id string, modified time.Time) *hub.ModelDetail {
	return &hub.ModelDetail{
		ID:           id,
		Author:       "org",
		Downloads:    100,
		LastModified: modified,
		Config:       &hub.ModelConfig{ModelType: "llama"},
		Siblings: []hub.Sibling{
			{Rfilename: "model.Q4_K_M.gguf", LFS: &hub.LFS{Size: 4000}},
		},
	}
}

func candidate(id, strategy string, upstreamModified time.Time) discovery.Candidate {
	return discovery.Candidate{
		ID:           id,
		Strategy:     strategy,
		DiscoveredAt: time.Now().UTC(),
		Summary:      hub.ModelSummary{ID: id, LastModified: upstreamModified},
	}
}

func fetchConfig(window time.Duration) *syncer.RunConfig {
	cfg := syncer.Defaults()
	cfg.IncrementalWindow = window
	return &cfg
}

func TestMaterializeFetchesAndScores(t *testing.T) {
	now := time.Now().UTC()
	getter := &countingGetter{details: map[string]*hub.ModelDetail{
		"org/model-7b": detailFor("org/model-7b", now.Add(-time.Hour)),
	}}

	m := New(getter, nil, syncer.ModeFull, fetchConfig(24*time.Hour))
	rec, reused, err := m.Materialize(context.Background(), candidate("org/model-7b", "by-tag", time.Time{}))

	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, "org/model-7b", rec.ID)
	assert.Equal(t, "Model 7B", rec.Name)
	assert.Equal(t, "llama", rec.Architecture)
	assert.Equal(t, "org", rec.Family)
	assert.Equal(t, "by-tag", rec.Strategy)
	assert.Equal(t, int64(4000), rec.TotalSizeBytes)
	assert.Equal(t, 1.0, rec.Completeness)
	assert.Equal(t, 1, getter.callCount())
}

func TestMaterializeIncrementalShortCircuit(t *testing.T) {
	// An unchanged upstream timestamp short-circuits regardless of the
	// record's age.
	window := 24 * time.Hour
	modifiedAt := time.Now().UTC().Add(-2*window + time.Hour)
	prev := catalogs.FromModels([]catalogs.Model{{
		ID:           "org/x",
		Name:         "X",
		LastModified: modifiedAt,
		Files:        []catalogs.FileDescriptor{{Name: "x.gguf", SizeBytes: 10}},
	}})

	getter := &countingGetter{}
	m := New(getter, prev, syncer.ModeIncremental, fetchConfig(window))

	rec, reused, err := m.Materialize(context.Background(), candidate("org/x", "trending", modifiedAt))
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, "X", rec.Name)
	assert.Equal(t, "trending", rec.Strategy) // provenance follows the run that surfaced it
	assert.Equal(t, 0, getter.callCount(), "short-circuit must not call the hub")
}

func TestMaterializeReusesRecentUnchangedRecord(t *testing.T) {
	// Record last modified at T, window W, run at T+W-1h with the listing
	// showing the same timestamp: no hub call.
	window := 24 * time.Hour
	modifiedAt := time.Now().UTC().Add(-(window - time.Hour))
	prev := catalogs.FromModels([]catalogs.Model{{
		ID: "org/x", Name: "X", LastModified: modifiedAt,
	}})

	getter := &countingGetter{}
	m := New(getter, prev, syncer.ModeIncremental, fetchConfig(window))

	_, reused, err := m.Materialize(context.Background(), candidate("org/x", "by-tag", modifiedAt))
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, 0, getter.callCount())
}

func TestMaterializeWindowGovernsSilentListings(t *testing.T) {
	// Without a listing timestamp the window decides: recent records are
	// trusted, records held longer than the window are re-fetched.
	window := 24 * time.Hour
	now := time.Now().UTC()

	t.Run("recent record is reused", func(t *testing.T) {
		prev := catalogs.FromModels([]catalogs.Model{{
			ID: "org/x", LastModified: now.Add(-time.Hour),
		}})
		getter := &countingGetter{}
		m := New(getter, prev, syncer.ModeIncremental, fetchConfig(window))

		_, reused, err := m.Materialize(context.Background(), candidate("org/x", "by-tag", time.Time{}))
		require.NoError(t, err)
		assert.True(t, reused)
		assert.Equal(t, 0, getter.callCount())
	})

	t.Run("aged record is refreshed", func(t *testing.T) {
		old := now.Add(-10 * window)
		prev := catalogs.FromModels([]catalogs.Model{{
			ID: "org/x", LastModified: old,
		}})
		getter := &countingGetter{details: map[string]*hub.ModelDetail{
			"org/x": detailFor("org/x", old),
		}}
		m := New(getter, prev, syncer.ModeIncremental, fetchConfig(window))

		_, reused, err := m.Materialize(context.Background(), candidate("org/x", "by-tag", time.Time{}))
		require.NoError(t, err)
		assert.False(t, reused)
		assert.Equal(t, 1, getter.callCount())
	})
}

func TestMaterializeRefetchesOnUpstreamChange(t *testing.T) {
	window := 24 * time.Hour
	old := time.Now().UTC().Add(-10 * window)
	prev := catalogs.FromModels([]catalogs.Model{{
		ID: "org/x", LastModified: old,
	}})

	getter := &countingGetter{details: map[string]*hub.ModelDetail{
		"org/x": detailFor("org/x", time.Now().UTC()),
	}}
	m := New(getter, prev, syncer.ModeIncremental, fetchConfig(window))

	// The listing reports a newer upstream timestamp than we hold.
	_, reused, err := m.Materialize(context.Background(), candidate("org/x", "by-tag", time.Now().UTC()))
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 1, getter.callCount())
}

func TestMaterializeFullModeNeverReuses(t *testing.T) {
	window := 24 * time.Hour
	old := time.Now().UTC().Add(-10 * window)
	prev := catalogs.FromModels([]catalogs.Model{{ID: "org/x", LastModified: old}})

	getter := &countingGetter{details: map[string]*hub.ModelDetail{
		"org/x": detailFor("org/x", old),
	}}
	m := New(getter, prev, syncer.ModeFull, fetchConfig(window))

	_, reused, err := m.Materialize(context.Background(), candidate("org/x", "by-tag", old))
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 1, getter.callCount())
}

func TestMaterializeFailureBecomesRecordError(t *testing.T) {
	getter := &countingGetter{errs: map[string]error{
		"org/x": errors.NewHubError("/api/models/org/x", 500, "down"),
	}}
	m := New(getter, nil, syncer.ModeFull, fetchConfig(24*time.Hour))

	_, _, err := m.Materialize(context.Background(), candidate("org/x", "by-tag", time.Time{}))
	require.Error(t, err)

	var recErr *errors.RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "org/x", recErr.ModelID)
	assert.Equal(t, errors.CategoryPartialFailure, errors.Categorize(err))
}

func TestMaterializeFatalPassesThrough(t *testing.T) {
	getter := &countingGetter{errs: map[string]error{
		"org/x": errors.NewFatalError("hub unreachable", nil),
	}}
	m := New(getter, nil, syncer.ModeFull, fetchConfig(24*time.Hour))

	_, _, err := m.Materialize(context.Background(), candidate("org/x", "by-tag", time.Time{}))
	require.Error(t, err)
	assert.Equal(t, errors.CategoryFatal, errors.Categorize(err))

	var recErr *errors.RecordError
	assert.False(t, errors.As(err, &recErr))
}

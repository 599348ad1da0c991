package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmap/quantmap/internal/hub"
	"github.com/quantmap/quantmap/internal/persist"
	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/logging"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// fakeHub serves canned listings keyed by query shape and canned details
// keyed by model ID, counting detail calls per model.
type fakeHub struct {
	mu          sync.Mutex
	listings    map[string][]hub.ModelSummary
	details     map[string]*hub.ModelDetail
	detailErrs  map[string]error
	detailCalls map[string]int
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		listings:    make(map[string][]hub.ModelSummary),
		details:     make(map[string]*hub.ModelDetail),
		detailErrs:  make(map[string]error),
		detailCalls: make(map[string]int),
	}
}

func queryKey(q hub.ListQuery) string {
	return fmt.Sprintf("filter=%s author=%s sort=%s", q.Filter, q.Author, q.Sort)
}

func (f *fakeHub) ListModels(_ context.Context, q hub.ListQuery) (*hub.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &hub.ListPage{Models: f.listings[queryKey(q)]}, nil
}

func (f *fakeHub) GetModel(_ context.Context, id string) (*hub.ModelDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[id]++
	if err, ok := f.detailErrs[id]; ok {
		return nil, err
	}
	d, ok := f.details[id]
	if !ok {
		return nil, errors.NewHubError("/api/models/"+id, 404, "not found")
	}
	return d, nil
}

func (f *fakeHub) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

// addModel registers a fully populated model: listing entry under the
// given query key and a detail payload that scores complete.
func (f *fakeHub) addModel(key, id string, modified time.Time) {
	f.listings[key] = append(f.listings[key], hub.ModelSummary{ID: id, LastModified: modified})
	f.details[id] = completeDetail(id, modified)
}

func completeDetail(id string, modified time.Time) *hub.ModelDetail {
	return &hub.ModelDetail{
		ID:           id,
		Author:       "org",
		Downloads:    1200,
		Likes:        40,
		Tags:         json.RawMessage(`["gguf","llama","text-generation"]`),
		LastModified: modified,
		Config:       &hub.ModelConfig{ModelType: "llama"},
		Siblings: []hub.Sibling{
			{Rfilename: "model.Q4_K_M.gguf", LFS: &hub.LFS{Size: 4_000_000_000}},
			{Rfilename: "model.Q8_0.gguf", LFS: &hub.LFS{Size: 7_000_000_000}},
		},
	}
}

func testConfig() syncer.RunConfig {
	cfg := syncer.Defaults()
	cfg.MaxRetries = 0
	cfg.RequestsPerSecond = 10_000
	cfg.RequestsPerHour = 1_000_000
	cfg.Strategies = []syncer.StrategyConfig{
		{Name: syncer.StrategyByTag, Query: "gguf"},
		{Name: syncer.StrategyTrending},
	}
	return cfg
}

const (
	byTagKey    = "filter=gguf author= sort="
	trendingKey = "filter= author= sort=trendingScore"
	byAuthorKey = "filter= author=org sort="
)

func newTestOrchestrator(t *testing.T, cfg syncer.RunConfig, store Store, client Client) *Orchestrator {
	t.Helper()
	o, err := New(cfg, store, "", "",
		WithClient(client),
		WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	return o
}

func TestRunMergesStrategiesAndCommits(t *testing.T) {
	// Three strategies yielding {alpha,beta}, {beta,gamma}, and {gamma}:
	// both overlaps collapse to three records.
	modified := time.Now().Add(-30 * 24 * time.Hour)
	f := newFakeHub()
	f.addModel(byTagKey, "org/alpha", modified)
	f.addModel(byTagKey, "org/beta", modified)
	f.addModel(trendingKey, "org/beta", modified)
	f.addModel(trendingKey, "org/gamma", modified)
	f.addModel(byAuthorKey, "org/gamma", modified)

	cfg := testConfig()
	cfg.Strategies = append(cfg.Strategies,
		syncer.StrategyConfig{Name: syncer.StrategyByAuthor, Query: "org"})

	store := persist.NewStore(t.TempDir())
	o := newTestOrchestrator(t, cfg, store, f)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.DecisionCommitted, report.Decision)
	assert.Equal(t, 5, report.Discovered)
	assert.Equal(t, 2, report.Skipped) // beta and gamma each surfaced twice
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 3, report.Records)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, syncer.ModeFull, report.Mode) // no previous full sync

	// Overlapping candidates are fetched once.
	assert.Equal(t, 1, f.calls("org/beta"))
	assert.Equal(t, 1, f.calls("org/gamma"))

	cat, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"org/alpha", "org/beta", "org/gamma"}, cat.IDs())

	// Overlaps resolve to the earliest configured strategy that found them.
	beta, ok := cat.Get("org/beta")
	require.True(t, ok)
	assert.Equal(t, syncer.StrategyByTag, beta.Strategy)
	gamma, ok := cat.Get("org/gamma")
	require.True(t, ok)
	assert.Equal(t, syncer.StrategyTrending, gamma.Strategy)

	state, err := store.LoadState()
	require.NoError(t, err)
	assert.False(t, state.LastFullSyncAt.IsZero())
	assert.Equal(t, syncer.DecisionCommitted, state.LastDecision)
}

func TestRunShrinkGuardPreservesPreviousCatalog(t *testing.T) {
	modified := time.Now().Add(-30 * 24 * time.Hour)
	store := persist.NewStore(t.TempDir())

	// Seed a ten-record previous catalog.
	var prev []catalogs.Model
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("org/model-%d", i)
		prev = append(prev, catalogs.Model{
			ID:   id,
			Name: id,
			Files: []catalogs.FileDescriptor{
				{Name: "m.Q4_K_M.gguf", SizeBytes: 1_000, Quantization: "Q4_K_M"},
			},
			TotalSizeBytes: 1_000,
			Architecture:   "llama",
			LastModified:   modified,
		})
	}
	require.NoError(t, store.SaveCatalog(catalogs.FromModels(prev), time.Now()))

	// This run only discovers one survivor.
	f := newFakeHub()
	f.addModel(byTagKey, "org/model-0", modified)

	cfg := testConfig()
	cfg.Mode = syncer.ModeFull
	o := newTestOrchestrator(t, cfg, store, f)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.DecisionRolledBack, report.Decision)
	assert.Contains(t, report.RollbackReason, "catalog shrank")

	// The previous snapshot survives untouched.
	cat, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, 10, cat.Len())
}

func TestRunPartialFailureBudget(t *testing.T) {
	modified := time.Now().Add(-30 * 24 * time.Hour)
	f := newFakeHub()
	for i := 0; i < 10; i++ {
		f.addModel(byTagKey, fmt.Sprintf("org/model-%d", i), modified)
	}
	// Three of ten records fail permanently: over the 20% budget.
	f.detailErrs["org/model-7"] = errors.NewHubError("/m", 500, "boom")
	f.detailErrs["org/model-8"] = errors.NewHubError("/m", 500, "boom")
	f.detailErrs["org/model-9"] = errors.NewHubError("/m", 500, "boom")

	store := persist.NewStore(t.TempDir())
	o := newTestOrchestrator(t, testConfig(), store, f)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.DecisionRolledBack, report.Decision)
	assert.Contains(t, report.RollbackReason, "partial failure ratio")
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 3, report.CountByCategory(errors.CategoryPartialFailure))

	// Nothing was written.
	cat, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())
}

func TestRunToleratesFailuresWithinBudget(t *testing.T) {
	modified := time.Now().Add(-30 * 24 * time.Hour)
	f := newFakeHub()
	for i := 0; i < 10; i++ {
		f.addModel(byTagKey, fmt.Sprintf("org/model-%d", i), modified)
	}
	f.detailErrs["org/model-9"] = errors.NewHubError("/m", 500, "boom")

	store := persist.NewStore(t.TempDir())
	o := newTestOrchestrator(t, testConfig(), store, f)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.DecisionCommitted, report.Decision)
	assert.Equal(t, 9, report.Records)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "org/model-9", report.Errors[0].ModelID)
}

func TestRunFatalErrorRollsBack(t *testing.T) {
	modified := time.Now().Add(-30 * 24 * time.Hour)
	f := newFakeHub()
	for i := 0; i < 5; i++ {
		f.addModel(byTagKey, fmt.Sprintf("org/model-%d", i), modified)
	}
	f.detailErrs["org/model-2"] = errors.NewFatalError("token revoked", nil)

	store := persist.NewStore(t.TempDir())
	o := newTestOrchestrator(t, testConfig(), store, f)

	report, err := o.Run(context.Background())
	assert.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, syncer.DecisionRolledBack, report.Decision)
	assert.Contains(t, report.RollbackReason, "token revoked")

	cat, cerr := store.LoadCatalog()
	require.NoError(t, cerr)
	assert.Equal(t, 0, cat.Len())
}

func TestRunIncrementalShortCircuit(t *testing.T) {
	now := time.Now()
	stale := now.Add(-10 * 24 * time.Hour) // outside the 24h window
	fresh := now.Add(-time.Hour)           // inside the window

	store := persist.NewStore(t.TempDir())
	prev := catalogs.FromModels([]catalogs.Model{
		completeModel("org/stale", stale),
		completeModel("org/fresh", fresh),
		completeModel("org/changed", stale),
		completeModel("org/silent", stale),
	})
	require.NoError(t, store.SaveCatalog(prev, now))
	require.NoError(t, store.SaveState(syncer.State{
		LastRunAt:      now.Add(-2 * time.Hour),
		LastFullSyncAt: now.Add(-2 * time.Hour),
		LastDecision:   syncer.DecisionCommitted,
	}))

	f := newFakeHub()
	// Unchanged records are reused whatever their age.
	f.addModel(byTagKey, "org/stale", stale)
	f.addModel(byTagKey, "org/fresh", fresh)
	// A newer upstream timestamp forces a re-fetch.
	f.addModel(byTagKey, "org/changed", now.Add(-time.Minute))
	// No listing timestamp: the record is older than the window, refresh.
	f.listings[byTagKey] = append(f.listings[byTagKey], hub.ModelSummary{ID: "org/silent"})
	f.details["org/silent"] = completeDetail("org/silent", stale)

	cfg := testConfig()
	cfg.Strategies = []syncer.StrategyConfig{{Name: syncer.StrategyByTag, Query: "gguf"}}
	o := newTestOrchestrator(t, cfg, store, f)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.ModeIncremental, report.Mode)
	assert.Equal(t, syncer.DecisionCommitted, report.Decision)
	assert.Equal(t, 2, report.Reused)
	assert.Equal(t, 2, report.Fetched)

	assert.Equal(t, 0, f.calls("org/stale"))
	assert.Equal(t, 0, f.calls("org/fresh"))
	assert.Equal(t, 1, f.calls("org/changed"))
	assert.Equal(t, 1, f.calls("org/silent"))
}

func TestRunAllStrategiesFailing(t *testing.T) {
	store := persist.NewStore(t.TempDir())

	cfg := testConfig()
	o := newTestOrchestrator(t, cfg, store, &failingLister{})

	report, err := o.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, syncer.DecisionRolledBack, report.Decision)
	assert.GreaterOrEqual(t, len(report.Errors), 2) // one per strategy plus the fatal
}

func TestRunRolledBackRunDoesNotAdvanceFullSyncClock(t *testing.T) {
	store := persist.NewStore(t.TempDir())

	o := newTestOrchestrator(t, testConfig(), store, &failingLister{})
	_, err := o.Run(context.Background())
	assert.Error(t, err)

	state, serr := store.LoadState()
	require.NoError(t, serr)
	assert.False(t, state.LastRunAt.IsZero())
	assert.True(t, state.LastFullSyncAt.IsZero())
	assert.Equal(t, syncer.DecisionRolledBack, state.LastDecision)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFakeHub()
	f.addModel(byTagKey, "org/alpha", time.Now().Add(-time.Hour))

	dir := t.TempDir()
	store := persist.NewStore(dir)

	cfg := testConfig()
	cfg.DryRun = true
	o := newTestOrchestrator(t, cfg, store, f)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.DecisionCommitted, report.Decision)
	assert.Equal(t, 1, report.Fetched)

	cat, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())

	state, err := store.LoadState()
	require.NoError(t, err)
	assert.True(t, state.LastRunAt.IsZero())
}

func TestRunInvalidConfigNeverStarts(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = -1

	_, err := New(cfg, persist.NewStore(t.TempDir()), "", "", WithClient(newFakeHub()))
	assert.Error(t, err)
	assert.Equal(t, errors.CategoryFatal, errors.Categorize(err))
}

// failingLister fails every listing request.
type failingLister struct{}

func (f *failingLister) ListModels(context.Context, hub.ListQuery) (*hub.ListPage, error) {
	return nil, errors.NewHubError("/api/models", 503, "unavailable")
}

func (f *failingLister) GetModel(context.Context, string) (*hub.ModelDetail, error) {
	return nil, errors.NewHubError("/api/models", 503, "unavailable")
}

func completeModel(id string, modified time.Time) catalogs.Model {
	return catalogs.Model{
		ID:   id,
		Name: id,
		Files: []catalogs.FileDescriptor{
			{Name: "m.Q4_K_M.gguf", SizeBytes: 1_000, Quantization: "Q4_K_M"},
		},
		TotalSizeBytes: 1_000,
		Architecture:   "llama",
		LastModified:   modified,
	}
}

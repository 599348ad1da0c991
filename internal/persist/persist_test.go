package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/syncer"
)

func sampleCatalog() *catalogs.Catalog {
	return catalogs.FromModels([]catalogs.Model{
		{
			ID:   "org/alpha-7b-gguf",
			Name: "Alpha 7B GGUF",
			Files: []catalogs.FileDescriptor{
				{Name: "alpha-7b.Q4_K_M.gguf", SizeBytes: 4_000_000_000, Quantization: "Q4_K_M"},
			},
			TotalSizeBytes: 4_000_000_000,
			Architecture:   "llama",
			LastModified:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:   "org/beta-13b-gguf",
			Name: "Beta 13B GGUF",
			Files: []catalogs.FileDescriptor{
				{Name: "beta-13b.Q8_0.gguf", SizeBytes: 13_000_000_000, Quantization: "Q8_0"},
			},
			TotalSizeBytes: 13_000_000_000,
			Architecture:   "llama",
			LastModified:   time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		},
	})
}

func TestSaveAndLoadCatalog(t *testing.T) {
	store := NewStore(t.TempDir())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveCatalog(sampleCatalog(), now))

	loaded, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	m, ok := loaded.Get("org/alpha-7b-gguf")
	require.True(t, ok)
	assert.Equal(t, "Alpha 7B GGUF", m.Name)
	assert.Equal(t, "Q4_K_M", m.Files[0].Quantization)
	assert.True(t, m.LastModified.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoadCatalogMissingFileYieldsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nonexistent"))

	cat, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())
}

func TestLoadCatalogCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotFile), []byte("{not yaml"), 0o644))

	_, err := NewStore(dir).LoadCatalog()
	assert.Error(t, err)
}

func TestSaveCatalogOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveCatalog(sampleCatalog(), now))

	smaller := catalogs.FromModels([]catalogs.Model{
		{ID: "org/alpha-7b-gguf", Name: "Alpha 7B GGUF"},
	})
	require.NoError(t, store.SaveCatalog(smaller, now.Add(time.Hour)))

	loaded, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestStateRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	// Missing sidecar yields the zero state.
	state, err := store.LoadState()
	require.NoError(t, err)
	assert.True(t, state.LastFullSyncAt.IsZero())

	state = syncer.State{
		LastRunAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		LastFullSyncAt:  time.Date(2025, 5, 30, 3, 0, 0, 0, time.UTC),
		LastChangeRatio: 0.12,
		LastDecision:    syncer.DecisionCommitted,
	}
	require.NoError(t, store.SaveState(state))

	loaded, err := store.LoadState()
	require.NoError(t, err)
	assert.True(t, loaded.LastFullSyncAt.Equal(state.LastFullSyncAt))
	assert.InDelta(t, 0.12, loaded.LastChangeRatio, 1e-9)
	assert.Equal(t, syncer.DecisionCommitted, loaded.LastDecision)
}

func TestRolledBackRunPreservesPreviousSnapshot(t *testing.T) {
	store := NewStore(t.TempDir())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveCatalog(sampleCatalog(), now))

	// A rolled-back run saves state but never touches the snapshot.
	state := syncer.State{}.Advance(&syncer.Report{Decision: syncer.DecisionRolledBack}, now.Add(time.Hour))
	require.NoError(t, store.SaveState(state))

	loaded, err := store.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.True(t, state.LastFullSyncAt.IsZero())
}

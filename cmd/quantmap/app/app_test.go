package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmap/quantmap/pkg/syncer"
)

func testApp(t *testing.T) *App {
	t.Helper()
	a, err := New("test", "abc123", "2025-06-01", WithConfig(&Config{
		StoreDir:         t.TempDir(),
		Mode:             "auto",
		AutoSyncInterval: time.Hour,
		LogLevel:         "error",
	}))
	require.NoError(t, err)
	return a
}

func TestNewApp(t *testing.T) {
	a := testApp(t)
	assert.Equal(t, "test", a.Version())
	assert.NotNil(t, a.Config())
	assert.NotNil(t, a.Logger())
}

func TestQuantmapLazySingleton(t *testing.T) {
	a := testApp(t)

	qm1, err := a.Quantmap()
	require.NoError(t, err)
	qm2, err := a.Quantmap()
	require.NoError(t, err)
	assert.Same(t, qm1, qm2)
}

func TestBuildOptionsCarriesStrategies(t *testing.T) {
	a := testApp(t)
	a.config.Strategies = []StrategyEntry{
		{Name: syncer.StrategyByAuthor, Query: "TheBloke"},
		{Name: syncer.StrategyTrending},
	}

	qm, err := a.Quantmap()
	require.NoError(t, err)
	assert.NotNil(t, qm)
}

func TestBuildOptionsRejectsUnknownStrategy(t *testing.T) {
	a := testApp(t)
	a.config.Strategies = []StrategyEntry{{Name: "by-star-sign"}}

	_, err := a.Quantmap()
	assert.Error(t, err)
}

func TestShutdownWithoutInstance(t *testing.T) {
	a := testApp(t)
	assert.NoError(t, a.Shutdown(context.Background()))
}

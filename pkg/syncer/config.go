// Package syncer defines the configuration, report, and state types shared
// by the sync pipeline. A RunConfig is constructed once per run from
// resolved application configuration and is read-only thereafter.
package syncer

import (
	"time"

	"github.com/quantmap/quantmap/pkg/errors"
)

// Mode selects how much of the remote catalog a run re-fetches.
type Mode string

// Sync modes.
const (
	ModeAuto        Mode = "auto"
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// String returns the string representation of a Mode.
func (m Mode) String() string { return string(m) }

// Valid reports whether the mode is one of the recognized values.
func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeIncremental || m == ModeFull
}

// Strategy names understood by the discovery engine.
const (
	StrategyByTag          = "by-tag"
	StrategyByAuthor       = "by-author"
	StrategyTrending       = "trending"
	StrategyByArchitecture = "by-architecture"
)

// StrategyConfig configures one discovery strategy. Order within
// RunConfig.Strategies is significant: it is the final merge tie-break.
type StrategyConfig struct {
	Name  string `yaml:"name"`            // by-tag, by-author, trending, by-architecture
	Query string `yaml:"query,omitempty"` // tag, author, or architecture filter; unused by trending
}

// RunConfig is the immutable input to one sync run.
type RunConfig struct {
	// Mode selection
	Mode      Mode `yaml:"mode"`
	ForceFull bool `yaml:"force_full"`

	// DryRun executes the full pipeline but writes nothing: the snapshot
	// and the sync state both stay untouched.
	DryRun bool `yaml:"dry_run"`

	// Incremental/full thresholds
	IncrementalWindow time.Duration `yaml:"incremental_window"`
	FullSyncThreshold time.Duration `yaml:"full_sync_threshold"`

	// SignificantChangeThreshold is the change-ratio fraction above which
	// the next auto run escalates to full.
	SignificantChangeThreshold float64 `yaml:"significant_change_threshold"`

	// ShrinkRollbackThreshold is the fraction by which the new catalog may
	// shrink relative to the previous one before the validator vetoes the
	// commit. Zero means "use SignificantChangeThreshold".
	ShrinkRollbackThreshold float64 `yaml:"shrink_rollback_threshold"`

	// Acceptance gates
	MinCompleteness        float64 `yaml:"min_completeness"`
	MaxPartialFailureRatio float64 `yaml:"max_partial_failure_ratio"`

	// Scheduler parameters
	RequestsPerSecond int           `yaml:"requests_per_second"`
	RequestsPerHour   int           `yaml:"requests_per_hour"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffBase       float64       `yaml:"backoff_base"`   // retry delay is base^attempt seconds
	BackoffJitter     float64       `yaml:"backoff_jitter"` // ± fraction of the delay
	RequestTimeout    time.Duration `yaml:"request_timeout"`

	// Discovery
	Strategies []StrategyConfig `yaml:"strategies"`
	PageSize   int              `yaml:"page_size"`
	MaxPages   int              `yaml:"max_pages"` // per-strategy pagination cap, 0 = unlimited
}

// Defaults returns a RunConfig with production defaults. The shrink
// rollback threshold intentionally stays zero so it tracks the
// significant-change threshold unless configured separately.
func Defaults() RunConfig {
	return RunConfig{
		Mode:                       ModeAuto,
		IncrementalWindow:          24 * time.Hour,
		FullSyncThreshold:          7 * 24 * time.Hour,
		SignificantChangeThreshold: 0.25,
		MinCompleteness:            0.5,
		MaxPartialFailureRatio:     0.2,
		RequestsPerSecond:          8,
		RequestsPerHour:            5000,
		MaxConcurrent:              4,
		MaxRetries:                 3,
		BackoffBase:                2.0,
		BackoffJitter:              0.25,
		RequestTimeout:             30 * time.Second,
		PageSize:                   100,
		Strategies: []StrategyConfig{
			{Name: StrategyByTag, Query: "gguf"},
			{Name: StrategyTrending},
		},
	}
}

// ShrinkThreshold returns the effective rollback shrink threshold.
func (c *RunConfig) ShrinkThreshold() float64 {
	if c.ShrinkRollbackThreshold > 0 {
		return c.ShrinkRollbackThreshold
	}
	return c.SignificantChangeThreshold
}

// StrategyOrder returns the configured strategy names in order.
func (c *RunConfig) StrategyOrder() []string {
	out := make([]string, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		out = append(out, s.Name)
	}
	return out
}

// Validate checks the run configuration. A failed validation is fatal:
// the run never starts.
func (c *RunConfig) Validate() error {
	if !c.Mode.Valid() {
		return errors.NewConfigError("syncer", "unknown mode "+string(c.Mode), nil)
	}
	if len(c.Strategies) == 0 {
		return errors.NewConfigError("discovery", "no strategies configured", nil)
	}
	for _, s := range c.Strategies {
		switch s.Name {
		case StrategyByTag, StrategyByAuthor, StrategyByArchitecture:
			if s.Query == "" {
				return errors.NewConfigError("discovery", "strategy "+s.Name+" requires a query", nil)
			}
		case StrategyTrending:
		default:
			return errors.NewConfigError("discovery", "unknown strategy "+s.Name, nil)
		}
	}
	if c.RequestsPerSecond <= 0 {
		return errors.NewConfigError("scheduler", "requests_per_second must be positive", nil)
	}
	if c.RequestsPerHour <= 0 {
		return errors.NewConfigError("scheduler", "requests_per_hour must be positive", nil)
	}
	if c.MaxConcurrent <= 0 {
		return errors.NewConfigError("scheduler", "max_concurrent must be positive", nil)
	}
	if c.MaxRetries < 0 {
		return errors.NewConfigError("scheduler", "max_retries must be non-negative", nil)
	}
	if c.BackoffBase < 1 {
		return errors.NewConfigError("scheduler", "backoff_base must be >= 1", nil)
	}
	if c.BackoffJitter < 0 || c.BackoffJitter > 1 {
		return errors.NewConfigError("scheduler", "backoff_jitter must be in [0,1]", nil)
	}
	if c.SignificantChangeThreshold < 0 || c.SignificantChangeThreshold > 1 {
		return errors.NewConfigError("syncer", "significant_change_threshold must be in [0,1]", nil)
	}
	if c.ShrinkRollbackThreshold < 0 || c.ShrinkRollbackThreshold > 1 {
		return errors.NewConfigError("syncer", "shrink_rollback_threshold must be in [0,1]", nil)
	}
	if c.MinCompleteness < 0 || c.MinCompleteness > 1 {
		return errors.NewConfigError("syncer", "min_completeness must be in [0,1]", nil)
	}
	if c.MaxPartialFailureRatio < 0 || c.MaxPartialFailureRatio > 1 {
		return errors.NewConfigError("syncer", "max_partial_failure_ratio must be in [0,1]", nil)
	}
	if c.IncrementalWindow <= 0 {
		return errors.NewConfigError("syncer", "incremental_window must be positive", nil)
	}
	if c.PageSize <= 0 {
		return errors.NewConfigError("discovery", "page_size must be positive", nil)
	}
	return nil
}

// ResolveMode resolves ModeAuto into incremental or full using the
// previous run's state. Explicit modes pass through, except that the
// force-full flag always wins. The returned reason is recorded in the
// run report.
func (c *RunConfig) ResolveMode(state State, now time.Time) (Mode, string) {
	if c.ForceFull {
		return ModeFull, "force_full flag set"
	}
	if c.Mode != ModeAuto {
		return c.Mode, "mode configured explicitly"
	}
	if state.LastFullSyncAt.IsZero() {
		return ModeFull, "no previous full sync"
	}
	if since := now.Sub(state.LastFullSyncAt); since > c.FullSyncThreshold {
		return ModeFull, "full sync threshold exceeded"
	}
	if state.LastChangeRatio > c.SignificantChangeThreshold {
		return ModeFull, "previous change ratio exceeded significant change threshold"
	}
	return ModeIncremental, "within incremental window of last full sync"
}

package syncer

import "time"

// State is the small sidecar persisted between runs. It feeds auto mode
// resolution; it is not part of the catalog snapshot and losing it only
// costs one extra full sync.
type State struct {
	LastRunAt       time.Time `json:"last_run_at" yaml:"last_run_at"`
	LastFullSyncAt  time.Time `json:"last_full_sync_at" yaml:"last_full_sync_at"`
	LastChangeRatio float64   `json:"last_change_ratio" yaml:"last_change_ratio"`
	LastDecision    Decision  `json:"last_decision,omitempty" yaml:"last_decision,omitempty"`
}

// Advance returns the state to persist after a run. Rolled-back runs do
// not move the full-sync clock: the catalog they produced was discarded.
func (s State) Advance(report *Report, now time.Time) State {
	next := s
	next.LastRunAt = now
	next.LastDecision = report.Decision
	if report.Committed() {
		next.LastChangeRatio = report.ChangeRatio
		if report.Mode == ModeFull {
			next.LastFullSyncAt = now
		}
	}
	return next
}

package syncer

import (
	"time"

	"github.com/quantmap/quantmap/pkg/errors"
)

// Decision is the commit decision of a run.
type Decision string

// Commit decisions.
const (
	DecisionCommitted  Decision = "committed"
	DecisionRolledBack Decision = "rolled_back"
)

// ErrorRecord is one categorized failure accumulated during a run.
// ModelID is empty for run-level failures.
type ErrorRecord struct {
	Category errors.Category `json:"category" yaml:"category"`
	ModelID  string          `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	Attempts int             `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Detail   string          `json:"detail" yaml:"detail"`
	Time     time.Time       `json:"time" yaml:"time"`
}

// Report is produced by every run, win or lose. Callers must inspect the
// Decision instead of inferring success from the absence of an error.
type Report struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Mode      Mode          `json:"mode" yaml:"mode"` // mode actually used after auto resolution
	ModeNote  string        `json:"mode_note,omitempty" yaml:"mode_note,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`

	// Totals
	Discovered int `json:"discovered" yaml:"discovered"` // candidates after discovery, pre-dedup
	Fetched    int `json:"fetched" yaml:"fetched"`
	Reused     int `json:"reused" yaml:"reused"` // incremental short-circuits
	Skipped    int `json:"skipped" yaml:"skipped"`
	Failed     int `json:"failed" yaml:"failed"`

	// Quality summary
	Records      int     `json:"records" yaml:"records"` // final catalog size
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Quality      float64 `json:"quality" yaml:"quality"`
	ChangeRatio  float64 `json:"change_ratio" yaml:"change_ratio"`

	// Outcome
	Errors         []ErrorRecord `json:"errors,omitempty" yaml:"errors,omitempty"`
	Decision       Decision      `json:"decision" yaml:"decision"`
	RollbackReason string        `json:"rollback_reason,omitempty" yaml:"rollback_reason,omitempty"`
}

// Committed reports whether the run replaced the previous catalog.
func (r *Report) Committed() bool {
	return r.Decision == DecisionCommitted
}

// CountByCategory returns how many error records carry the given category.
func (r *Report) CountByCategory(cat errors.Category) int {
	n := 0
	for _, e := range r.Errors {
		if e.Category == cat {
			n++
		}
	}
	return n
}

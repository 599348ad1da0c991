// Package recovery accumulates categorized failures during a sync run and
// decides, once the pipeline has drained, whether the run may replace the
// previous catalog or must be rolled back.
package recovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantmap/quantmap/internal/validate"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/logging"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// Manager collects failures from every pipeline stage. It is safe for
// concurrent use: fetch workers record into it directly.
type Manager struct {
	mu      sync.Mutex
	records []syncer.ErrorRecord
	fatal   error

	cfg    *syncer.RunConfig
	logger *zerolog.Logger
	now    func() time.Time
}

// New returns a Manager for one run.
func New(cfg *syncer.RunConfig, logger *zerolog.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Record classifies err and appends it to the run's error list. Fatal
// errors are also latched so Decide can veto the commit even when the
// caller keeps draining the pipeline. nil is ignored.
func (m *Manager) Record(err error) {
	if err == nil {
		return
	}
	rec := classify(err, m.now())

	m.mu.Lock()
	m.records = append(m.records, rec)
	if rec.Category == errors.CategoryFatal && m.fatal == nil {
		m.fatal = err
	}
	m.mu.Unlock()

	evt := m.logger.Warn().
		Str("category", rec.Category.String()).
		Str("detail", rec.Detail)
	if rec.ModelID != "" {
		evt = evt.Str("model", rec.ModelID)
	}
	if rec.Attempts > 0 {
		evt = evt.Int("attempts", rec.Attempts)
	}
	evt.Msg("sync failure recorded")
}

// Fatal returns the first fatal error recorded, or nil.
func (m *Manager) Fatal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

// Errors returns a copy of the accumulated error records in arrival order.
func (m *Manager) Errors() []syncer.ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]syncer.ErrorRecord, len(m.records))
	copy(out, m.records)
	return out
}

// CountByCategory returns the number of recorded failures in the category.
func (m *Manager) CountByCategory(cat errors.Category) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Category == cat {
			n++
		}
	}
	return n
}

// Outcome is the commit decision plus its human-readable reason.
type Outcome struct {
	Decision syncer.Decision
	Reason   string
}

// Decide weighs the accumulated failures against the validator's verdict
// and returns the run outcome. candidates is the deduplicated candidate
// count the fetch stage started from; the partial-failure ratio is
// measured against it.
func (m *Manager) Decide(verdict *validate.Verdict, candidates int) Outcome {
	m.mu.Lock()
	fatal := m.fatal
	partial := 0
	for _, r := range m.records {
		if r.Category == errors.CategoryPartialFailure {
			partial++
		}
	}
	m.mu.Unlock()

	if fatal != nil {
		return Outcome{
			Decision: syncer.DecisionRolledBack,
			Reason:   fmt.Sprintf("fatal error: %v", fatal),
		}
	}
	if verdict != nil && verdict.MustNotCommit {
		return Outcome{
			Decision: syncer.DecisionRolledBack,
			Reason:   verdict.Reason,
		}
	}
	if candidates > 0 {
		ratio := float64(partial) / float64(candidates)
		if ratio > m.cfg.MaxPartialFailureRatio {
			return Outcome{
				Decision: syncer.DecisionRolledBack,
				Reason: fmt.Sprintf("partial failure ratio %.2f exceeds limit %.2f (%d of %d records lost)",
					ratio, m.cfg.MaxPartialFailureRatio, partial, candidates),
			}
		}
	}
	return Outcome{Decision: syncer.DecisionCommitted}
}

// classify maps an error onto an ErrorRecord, pulling the model ID and
// attempt count out of typed errors when present.
func classify(err error, at time.Time) syncer.ErrorRecord {
	rec := syncer.ErrorRecord{
		Category: errors.Categorize(err),
		Detail:   err.Error(),
		Time:     at,
	}
	var re *errors.RecordError
	if errors.As(err, &re) {
		rec.ModelID = re.ModelID
		rec.Attempts = re.Attempts
	} else if counter, ok := err.(interface{ AttemptCount() int }); ok {
		rec.Attempts = counter.AttemptCount()
	}
	return rec
}

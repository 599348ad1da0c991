// Package fetch materializes discovery candidates into catalog records.
// In incremental mode it short-circuits candidates whose upstream state
// cannot have changed, reusing the previous catalog's record without a
// hub request; this is the core incremental-sync optimization.
package fetch

import (
	"context"
	"time"

	"github.com/quantmap/quantmap/internal/discovery"
	"github.com/quantmap/quantmap/internal/hub"
	"github.com/quantmap/quantmap/internal/validate"
	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/logging"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// Getter is the slice of the hub client the materializer needs.
type Getter interface {
	GetModel(ctx context.Context, id string) (*hub.ModelDetail, error)
}

// Materializer turns candidates into scored catalog records.
// It is purely functional over its inputs; its only side effect is the
// scheduler's request accounting underneath the hub client.
type Materializer struct {
	client   Getter
	previous *catalogs.Catalog // nil on first run
	mode     syncer.Mode
	window   time.Duration
	now      func() time.Time
}

// New creates a materializer for one run.
func New(client Getter, previous *catalogs.Catalog, mode syncer.Mode, cfg *syncer.RunConfig) *Materializer {
	return &Materializer{
		client:   client,
		previous: previous,
		mode:     mode,
		window:   cfg.IncrementalWindow,
		now:      time.Now,
	}
}

// Materialize returns the catalog record for one candidate. The reused
// flag reports an incremental short-circuit: the returned record came
// from the previous catalog and no hub request was made.
func (f *Materializer) Materialize(ctx context.Context, cand discovery.Candidate) (catalogs.Model, bool, error) {
	if prev, ok := f.reusable(cand); ok {
		logging.Ctx(ctx).Debug().
			Str("model_id", cand.ID).
			Msg("Reusing previous record")
		prev.Strategy = cand.Strategy
		return prev, true, nil
	}

	detail, err := f.client.GetModel(ctx, cand.ID)
	if err != nil {
		if errors.IsFatal(err) {
			return catalogs.Model{}, false, err
		}
		return catalogs.Model{}, false, errors.NewRecordError(cand.ID, attempts(err), err)
	}
	if detail.ID == "" {
		// Records stay keyed by the identifier the candidate was
		// discovered under.
		detail.ID = cand.ID
	}

	record := normalize(detail, cand.Summary)
	record.Strategy = cand.Strategy
	record = validate.Score(record)
	return record, false, nil
}

// reusable decides the incremental short-circuit: the previous catalog
// must hold the identifier and the listing must not show a newer upstream
// timestamp. When the listing carries no timestamp at all, the window
// takes over as an age-based refresh: records held longer than the window
// are re-fetched rather than trusted blindly.
func (f *Materializer) reusable(cand discovery.Candidate) (catalogs.Model, bool) {
	if f.mode != syncer.ModeIncremental || f.previous == nil {
		return catalogs.Model{}, false
	}
	prev, ok := f.previous.Get(cand.ID)
	if !ok || prev.LastModified.IsZero() {
		return catalogs.Model{}, false
	}
	upstream := cand.Summary.LastModified
	if upstream.IsZero() {
		if f.now().Sub(prev.LastModified) > f.window {
			return catalogs.Model{}, false
		}
		return prev.Copy(), true
	}
	if upstream.After(prev.LastModified) {
		return catalogs.Model{}, false
	}
	return prev.Copy(), true
}

// attempts extracts the attempt count from a scheduler exhaustion error.
func attempts(err error) int {
	var exhausted interface{ AttemptCount() int }
	if errors.As(err, &exhausted) {
		return exhausted.AttemptCount()
	}
	return 1
}

package validate

import (
	"fmt"

	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/logging"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// Verdict is the validator's assessment of a merged catalog.
type Verdict struct {
	Catalog         *catalogs.Catalog // scored copy of the input
	RunCompleteness float64
	RunQuality      float64
	ChangeRatio     float64
	Violations      []string

	// MustNotCommit vetoes catalog replacement; the orchestrator then
	// preserves the previous snapshot unchanged.
	MustNotCommit bool
	Reason        string
}

// Run scores every record of the merged catalog, computes run-level
// statistics against the previous catalog, and decides whether the run
// may commit.
//
// Two guards can veto the commit: run-level completeness below the
// configured minimum, and the shrink guard, which rejects a run whose
// catalog lost more than the configured fraction of the previous one.
// The shrink guard protects against a broken discovery pass silently
// draining the catalog even when every surviving record looks healthy.
func Run(merged, previous *catalogs.Catalog, cfg *syncer.RunConfig) *Verdict {
	scored := catalogs.New()
	var violations []string

	for _, m := range merged.List() {
		s := Score(m)
		for _, defect := range s.SchemaDefects {
			violations = append(violations, fmt.Sprintf("%s: %s", s.ID, defect))
		}
		scored.Set(s)
	}

	v := &Verdict{
		Catalog:         scored,
		RunCompleteness: scored.MeanCompleteness(),
		RunQuality:      scored.MeanQuality(),
		ChangeRatio:     ChangeRatio(previous, scored),
		Violations:      violations,
	}

	if previous != nil && previous.Len() > 0 {
		shrink := 1 - float64(scored.Len())/float64(previous.Len())
		if shrink > cfg.ShrinkThreshold() {
			v.MustNotCommit = true
			v.Reason = fmt.Sprintf(
				"catalog shrank by %.0f%% (previous %d, new %d), over the %.0f%% rollback threshold",
				shrink*100, previous.Len(), scored.Len(), cfg.ShrinkThreshold()*100)
			logging.Warn().
				Int("previous", previous.Len()).
				Int("new", scored.Len()).
				Float64("shrink", shrink).
				Msg("Shrink guard tripped")
			return v
		}
	}

	if v.RunCompleteness < cfg.MinCompleteness {
		v.MustNotCommit = true
		v.Reason = fmt.Sprintf(
			"run completeness %.2f below configured minimum %.2f",
			v.RunCompleteness, cfg.MinCompleteness)
	}

	return v
}

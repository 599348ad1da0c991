// Package validate checks schema conformance of merged catalog records
// and attaches completeness and quality scores, per record and for the
// run as a whole. Its verdict decides whether the run may replace the
// previous catalog.
package validate

import (
	"github.com/quantmap/quantmap/pkg/catalogs"
)

// Required fields counted by the completeness score.
const requiredFields = 5

// CompletenessScore returns the fraction of required fields present and
// well formed: identifier, name, at least one file descriptor, a positive
// total size, and an architecture label. A record missing its identifier
// or file descriptors scores zero outright; without those two the record
// is unusable no matter what else it carries. Fields flagged as schema
// defects during normalization count as absent.
func CompletenessScore(m *catalogs.Model) float64 {
	if m.ID == "" || len(m.Files) == 0 {
		return 0
	}

	present := 2 // identifier and files, per the gate above
	if m.Name != "" && !m.HasDefect("name") {
		present++
	}
	if m.TotalSizeBytes > 0 && !m.HasDefect("total_size") {
		present++
	}
	if m.Architecture != "" && !m.HasDefect("architecture") {
		present++
	}
	if m.HasDefect("files") {
		present--
	}

	return float64(present) / float64(requiredFields)
}

// QualityScore augments completeness with secondary signals: tag richness
// and the presence of multiple quantizations. It is a ranking heuristic,
// never a commit gate.
func QualityScore(m *catalogs.Model) float64 {
	completeness := CompletenessScore(m)
	if completeness == 0 {
		return 0
	}

	tagRichness := float64(len(m.Tags)) / 8
	if tagRichness > 1 {
		tagRichness = 1
	}

	multiQuant := 0.0
	if len(m.Quantizations()) >= 2 {
		multiQuant = 1
	}

	score := 0.7*completeness + 0.2*tagRichness + 0.1*multiQuant
	if score > 1 {
		score = 1
	}
	return score
}

// Score attaches both scores to a record and returns it.
func Score(m catalogs.Model) catalogs.Model {
	m.Completeness = CompletenessScore(&m)
	m.Quality = QualityScore(&m)
	return m
}

// ChangeRatio measures how much of the previous catalog changed: added,
// removed, or modified records over the previous record count. With no
// previous catalog the ratio is 1 for any non-empty result and 0 otherwise.
func ChangeRatio(previous, next *catalogs.Catalog) float64 {
	if previous == nil || previous.Len() == 0 {
		if next != nil && next.Len() > 0 {
			return 1
		}
		return 0
	}

	changed := 0
	for _, m := range next.List() {
		prev, ok := previous.Get(m.ID)
		if !ok || !prev.LastModified.Equal(m.LastModified) {
			changed++
		}
	}
	for _, id := range previous.IDs() {
		if _, ok := next.Get(id); !ok {
			changed++
		}
	}
	return float64(changed) / float64(previous.Len())
}

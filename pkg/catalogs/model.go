// Package catalogs defines the catalog record types and the deduplicating
// merge that collapses records discovered through multiple strategies into
// one canonical catalog.
package catalogs

import (
	"time"
)

// Model represents one catalog record for a hub model.
// The ID is the hub's globally unique identifier ("org/name") and is the
// merge key; it never changes once the record is created. Records are
// mutated only by merge (to combine duplicates) and by scoring; after
// scoring they are treated as immutable.
type Model struct {
	// Core identity
	ID          string `json:"id" yaml:"id"`                                       // Unique hub identifier, e.g. "TheBloke/Mistral-7B-GGUF"
	Name        string `json:"name" yaml:"name"`                                   // Display name
	Description string `json:"description,omitempty" yaml:"description,omitempty"` // Model card summary

	// Classification
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`                 // Hub tags, order preserved
	Architecture string   `json:"architecture,omitempty" yaml:"architecture,omitempty"` // e.g. "llama", "mistral"
	Family       string   `json:"family,omitempty" yaml:"family,omitempty"`             // Author/organization label

	// Popularity signals
	Downloads int64 `json:"downloads" yaml:"downloads"`
	Likes     int64 `json:"likes,omitempty" yaml:"likes,omitempty"`

	// Files
	Files          []FileDescriptor `json:"files,omitempty" yaml:"files,omitempty"`
	TotalSizeBytes int64            `json:"total_size_bytes" yaml:"total_size_bytes"`

	// LastModified is the hub's modification timestamp, in UTC. It is the
	// source of truth for incremental sync decisions.
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`

	// Scores attached by the validator. Both in [0,1].
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Quality      float64 `json:"quality" yaml:"quality"`

	// Provenance
	Strategy      string   `json:"strategy,omitempty" yaml:"strategy,omitempty"`             // Discovery strategy that produced this record
	SchemaDefects []string `json:"schema_defects,omitempty" yaml:"schema_defects,omitempty"` // Fields that failed normalization
}

// FileDescriptor describes one file shipped with a model.
type FileDescriptor struct {
	Name         string `json:"name" yaml:"name"`
	SizeBytes    int64  `json:"size_bytes" yaml:"size_bytes"`
	Quantization string `json:"quantization,omitempty" yaml:"quantization,omitempty"` // e.g. "Q4_K_M", "F16"
}

// Quantizations returns the distinct quantization labels across the
// model's files, in first-seen order.
func (m *Model) Quantizations() []string {
	seen := make(map[string]bool, len(m.Files))
	var out []string
	for _, f := range m.Files {
		if f.Quantization == "" || seen[f.Quantization] {
			continue
		}
		seen[f.Quantization] = true
		out = append(out, f.Quantization)
	}
	return out
}

// HasDefect reports whether the given field was flagged during normalization.
func (m *Model) HasDefect(field string) bool {
	for _, d := range m.SchemaDefects {
		if d == field {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the model.
func (m Model) Copy() Model {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Files != nil {
		out.Files = append([]FileDescriptor(nil), m.Files...)
	}
	if m.SchemaDefects != nil {
		out.SchemaDefects = append([]string(nil), m.SchemaDefects...)
	}
	return out
}

package fetch

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/quantmap/quantmap/internal/hub"
	"github.com/quantmap/quantmap/pkg/catalogs"
)

// quantPattern matches the quantization label conventions used in file
// names on the hub, e.g. "model.Q4_K_M.gguf", "model-IQ2_XS.gguf",
// "model.f16.gguf".
var quantPattern = regexp.MustCompile(`(?i)\b(IQ[0-9]+_[A-Z0-9_]+|Q[0-9]+_[A-Z0-9_]+|Q[0-9]+|F16|F32|BF16|FP16|FP32)\b`)

// titleCaser renders display names from repository identifiers. NoLower
// keeps acronyms like GGUF intact.
var titleCaser = cases.Title(language.English, cases.NoLower)

// normalize converts a hub detail payload into the fixed catalog record
// shape. Fields that cannot be normalized become schema defects on the
// record rather than failures: partial metadata is acceptable but flagged,
// which lowers the completeness score downstream.
func normalize(detail *hub.ModelDetail, summary hub.ModelSummary) catalogs.Model {
	m := catalogs.Model{ID: detail.ID}
	if m.ID == "" {
		m.ID = summary.Identifier()
	}

	m.Name = displayName(m.ID, detail)
	m.Family = family(m.ID, detail.Author)
	m.Tags = normalizeTags(detail, summary, &m)
	m.Architecture = architecture(detail, m.Tags)
	m.Files, m.TotalSizeBytes = normalizeFiles(detail.Siblings, &m)

	m.Downloads = detail.Downloads
	if m.Downloads == 0 {
		m.Downloads = summary.Downloads
	}
	if m.Downloads < 0 {
		m.SchemaDefects = append(m.SchemaDefects, "downloads")
		m.Downloads = 0
	}
	m.Likes = detail.Likes
	if m.Likes == 0 {
		m.Likes = summary.Likes
	}

	m.LastModified = detail.LastModified
	if m.LastModified.IsZero() {
		m.LastModified = summary.LastModified
	}
	if m.LastModified.IsZero() {
		m.SchemaDefects = append(m.SchemaDefects, "last_modified")
	} else {
		m.LastModified = m.LastModified.UTC()
	}

	return m
}

// displayName derives a human-readable name. The hub has no display-name
// field, so the repository name segment is cleaned up and title-cased.
func displayName(id string, detail *hub.ModelDetail) string {
	if detail.CardData != nil && detail.CardData.ModelName != "" {
		return detail.CardData.ModelName
	}

	name := id
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		name = id[idx+1:]
	}
	if name == "" {
		return ""
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return titleCaser.String(name)
}

// family is the owning organization: the author field when present,
// otherwise the namespace segment of the identifier.
func family(id, author string) string {
	if author != "" {
		return author
	}
	if idx := strings.Index(id, "/"); idx > 0 {
		return id[:idx]
	}
	return ""
}

// normalizeTags decodes the tags field, which upstream serves as either a
// list or a bare string. An undecodable shape is a schema defect and the
// listing summary's tags are used instead.
func normalizeTags(detail *hub.ModelDetail, summary hub.ModelSummary, m *catalogs.Model) []string {
	if len(detail.Tags) == 0 {
		return append([]string(nil), summary.Tags...)
	}

	var tags []string
	if err := json.Unmarshal(detail.Tags, &tags); err == nil {
		return tags
	}
	var single string
	if err := json.Unmarshal(detail.Tags, &single); err == nil && single != "" {
		return []string{single}
	}

	m.SchemaDefects = append(m.SchemaDefects, "tags")
	return append([]string(nil), summary.Tags...)
}

// knownArchitectures are tag values that identify a model architecture
// when the config section is absent.
var knownArchitectures = map[string]bool{
	"llama": true, "mistral": true, "mixtral": true, "qwen2": true,
	"qwen3": true, "gemma": true, "gemma2": true, "phi3": true,
	"falcon": true, "gpt2": true, "gptj": true, "mpt": true,
	"stablelm": true, "starcoder2": true, "deepseek2": true,
	"command-r": true, "rwkv": true,
}

// architecture extracts the architecture label from the config section,
// falling back to a recognized architecture tag.
func architecture(detail *hub.ModelDetail, tags []string) string {
	if detail.Config != nil {
		if detail.Config.ModelType != "" {
			return detail.Config.ModelType
		}
		if len(detail.Config.Architectures) > 0 {
			return detail.Config.Architectures[0]
		}
	}
	for _, t := range tags {
		if knownArchitectures[strings.ToLower(t)] {
			return strings.ToLower(t)
		}
	}
	return ""
}

// normalizeFiles converts siblings into file descriptors and sums their
// sizes. A sibling without a usable size is kept but flagged once, since
// it makes the aggregate size a lower bound rather than exact.
func normalizeFiles(siblings []hub.Sibling, m *catalogs.Model) ([]catalogs.FileDescriptor, int64) {
	if len(siblings) == 0 {
		return nil, 0
	}

	files := make([]catalogs.FileDescriptor, 0, len(siblings))
	var total int64
	flagged := false

	for _, s := range siblings {
		if s.Rfilename == "" {
			if !flagged {
				m.SchemaDefects = append(m.SchemaDefects, "files")
				flagged = true
			}
			continue
		}
		size := s.ByteSize()
		if size < 0 {
			if !flagged {
				m.SchemaDefects = append(m.SchemaDefects, "total_size")
				flagged = true
			}
			size = 0
		}
		files = append(files, catalogs.FileDescriptor{
			Name:         s.Rfilename,
			SizeBytes:    size,
			Quantization: quantLabel(s.Rfilename),
		})
		total += size
	}
	return files, total
}

// quantLabel extracts the quantization label from a file name, or "".
func quantLabel(filename string) string {
	match := quantPattern.FindString(filename)
	if match == "" {
		return ""
	}
	return strings.ToUpper(match)
}

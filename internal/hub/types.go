package hub

import (
	"encoding/json"
	"time"
)

// ModelSummary is one entry of the hub's listing endpoint. The listing
// payload is a subset of the detail payload; fields the hub omits stay at
// their zero values and are filled in by the detail fetch.
type ModelSummary struct {
	ID           string    `json:"id"`
	ModelID      string    `json:"modelId,omitempty"` // legacy alias of id on some hub deployments
	Author       string    `json:"author,omitempty"`
	Downloads    int64     `json:"downloads,omitempty"`
	Likes        int64     `json:"likes,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	PipelineTag  string    `json:"pipeline_tag,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// Identifier returns the canonical model identifier for a summary.
func (m *ModelSummary) Identifier() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ModelID
}

// ModelDetail is the hub's per-model metadata payload. Upstream shapes
// drift, so everything beyond the identifier is optional and json.RawMessage
// is used where the hub is known to serve more than one shape.
type ModelDetail struct {
	ID           string          `json:"id"`
	Author       string          `json:"author,omitempty"`
	SHA          string          `json:"sha,omitempty"`
	Downloads    int64           `json:"downloads,omitempty"`
	Likes        int64           `json:"likes,omitempty"`
	Tags         json.RawMessage `json:"tags,omitempty"` // usually []string, occasionally a single string
	PipelineTag  string          `json:"pipeline_tag,omitempty"`
	LastModified time.Time       `json:"lastModified,omitempty"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
	CardData     *CardData       `json:"cardData,omitempty"`
	Config       *ModelConfig    `json:"config,omitempty"`
	Siblings     []Sibling       `json:"siblings,omitempty"`
}

// CardData carries model-card front matter relevant to the catalog.
type CardData struct {
	BaseModel  json.RawMessage `json:"base_model,omitempty"` // string or []string
	ModelName  string          `json:"model_name,omitempty"`
	License    string          `json:"license,omitempty"`
	PipelineTag string         `json:"pipeline_tag,omitempty"`
}

// ModelConfig is the architecture section of the detail payload.
type ModelConfig struct {
	ModelType     string   `json:"model_type,omitempty"`
	Architectures []string `json:"architectures,omitempty"`
}

// Sibling is one file in a model repository. Size is reported either
// directly or inside the LFS pointer depending on how the file is stored.
type Sibling struct {
	Rfilename string `json:"rfilename"`
	Size      int64  `json:"size,omitempty"`
	LFS       *LFS   `json:"lfs,omitempty"`
}

// LFS is the large-file pointer attached to LFS-tracked siblings.
type LFS struct {
	Size int64  `json:"size,omitempty"`
	SHA  string `json:"sha256,omitempty"`
}

// ByteSize returns the sibling's size, preferring the LFS pointer.
func (s *Sibling) ByteSize() int64 {
	if s.LFS != nil && s.LFS.Size > 0 {
		return s.LFS.Size
	}
	return s.Size
}

// ListQuery selects and orders one page of the listing endpoint.
type ListQuery struct {
	Search string // free-text search
	Author string // author/organization filter
	Filter string // tag filter, e.g. "gguf" or an architecture tag
	Sort   string // e.g. "trendingScore", "downloads"
	Limit  int
	Cursor string // opaque next-page URL from a previous page, empty for the first page
}

// ListPage is one page of listing results plus the cursor for the next.
type ListPage struct {
	Models     []ModelSummary
	NextCursor string // empty when this is the last page
}

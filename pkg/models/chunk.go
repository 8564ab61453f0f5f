package models

// SpatialContext labels where a chunk sits in the original image layout.
type SpatialContext string

const (
	ContextHeader   SpatialContext = "header"
	ContextBody     SpatialContext = "body"
	ContextFooter   SpatialContext = "footer"
	ContextListItem SpatialContext = "list_item"
	ContextContact  SpatialContext = "contact_info"
)

// OCRChunk is a spatially coherent span of recognized text. Chunks preserve
// document order but stay independently addressable so downstream stages can
// reason about provenance instead of a flattened string.
type OCRChunk struct {
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"` // 0.0 to 1.0
	Context    SpatialContext `json:"context"`
	Language   string         `json:"language,omitempty"`
}

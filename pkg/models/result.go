package models

import "time"

// AssetResult is the per-asset pipeline outcome. Every asset in a batch gets
// one, failed or not; a failure carries a human-readable Reason instead of
// aborting the batch.
type AssetResult struct {
	AssetID     string      `json:"asset_id"`
	Filename    string      `json:"filename"`
	Success     bool        `json:"success"`
	Reason      string      `json:"reason,omitempty"`
	ContentType ContentType `json:"content_type,omitempty"`
	Language    string      `json:"language,omitempty"`
	Engine      string      `json:"engine,omitempty"` // engine(s) that produced the text

	RawText        string  `json:"raw_text,omitempty"`
	CleanText      string  `json:"clean_text,omitempty"`
	MeanConfidence float64 `json:"mean_confidence"`

	Chunks     []OCRChunk          `json:"chunks,omitempty"`
	Candidates []CandidateLocation `json:"candidates,omitempty"`
	Geocoded   []GeocodedLocation  `json:"geocoded,omitempty"`
	Ungeocoded []CandidateLocation `json:"ungeocoded,omitempty"`
	Ratings    []Rating            `json:"ratings,omitempty"`
	Contact    Contact             `json:"contact"`

	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Total             int      `json:"total"`
	Succeeded         int      `json:"succeeded"`
	Failed            int      `json:"failed"`
	UniqueLocations   []string `json:"unique_locations"`
	AverageConfidence float64  `json:"average_confidence"`
}

// BatchResult is the full output of one batch run.
type BatchResult struct {
	Results    []AssetResult     `json:"results"`
	Summary    BatchSummary      `json:"summary"`
	Comparison *ComparisonResult `json:"comparison,omitempty"`
}

package models

// GroundTruthRecord is one expected location for an asset, supplied by the
// caller for evaluation. The pipeline never mutates or fetches ground truth.
type GroundTruthRecord struct {
	Text               string       `json:"text" yaml:"text"`
	Kind               LocationKind `json:"type" yaml:"type"`
	ExpectedSubstrings []string     `json:"expected_substrings,omitempty" yaml:"expected_substrings,omitempty"`
}

// MatchType distinguishes exact from partial ground-truth matches.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPartial MatchType = "partial"
)

// Match pairs a ground-truth record with the extraction that satisfied it.
type Match struct {
	Truth     GroundTruthRecord `json:"truth"`
	Extracted string            `json:"extracted"`
	Score     float64           `json:"score"`
	Type      MatchType         `json:"type"`
}

// ComparisonResult is the per-batch evaluation aggregate. Precision, recall
// and F1 are defined as 0 when their denominator is 0.
type ComparisonResult struct {
	Matches        []Match             `json:"matches"`
	Misses         []GroundTruthRecord `json:"misses"`
	FalsePositives []string            `json:"false_positives"`
	Precision      float64             `json:"precision"`
	Recall         float64             `json:"recall"`
	F1             float64             `json:"f1"`
}

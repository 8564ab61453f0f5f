package models

// LocationKind classifies an extracted location mention.
type LocationKind string

const (
	KindBusiness LocationKind = "business"
	KindAddress  LocationKind = "address"
	KindLandmark LocationKind = "landmark"
	KindArea     LocationKind = "area"
	KindCity     LocationKind = "city"
)

// CandidateLocation is an unresolved, extracted mention of a place or
// business before geocoding. Duplicates (case-insensitive) are merged keeping
// the highest confidence and the union of chunk references.
type CandidateLocation struct {
	Text       string       `json:"text"`
	Kind       LocationKind `json:"kind"`
	ChunkRefs  []int        `json:"chunk_refs"` // indexes into the asset's chunk list
	Confidence float64      `json:"confidence"` // 0.0 to 1.0
	Matcher    string       `json:"matcher,omitempty"`
	Reason     string       `json:"reason,omitempty"` // set on un-geocoded output only
}

// GeocodedLocation is a CandidateLocation successfully resolved to
// coordinates. Longitude and latitude are always set together; a location
// that fails coordinate validation is dropped, never emitted with
// placeholders.
type GeocodedLocation struct {
	CandidateLocation

	Longitude     float64 `json:"longitude"` // -180 to 180
	Latitude      float64 `json:"latitude"`  // -90 to 90
	DisplayName   string  `json:"display_name"`
	GeoConfidence float64 `json:"geo_confidence"` // combined extraction + provider score
	Provider      string  `json:"provider"`
	Cell          string  `json:"cell,omitempty"` // H3 res-9 cell token for client-side clustering
}

// Rating is a star or numeric rating found near a location mention.
type Rating struct {
	Value float64 `json:"value"`
	Scale float64 `json:"scale"` // 5 or 10
	Raw   string  `json:"raw"`
}

// Contact aggregates contact details found in the recognized text.
type Contact struct {
	Phones []string `json:"phones,omitempty"`
	Emails []string `json:"emails,omitempty"`
	URLs   []string `json:"urls,omitempty"`
	Hours  []string `json:"hours,omitempty"`
}

// Package geocode resolves extracted location candidates to coordinates
// through a primary/fallback provider chain with caching, shared rate limits
// and query enhancement for recognizer-mangled names.
package geocode

import "context"

// ProviderResult is a raw geocoding answer from one provider before
// extraction confidence is blended in.
type ProviderResult struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"` // provider-reported, 0.0 to 1.0
	Provider    string  `json:"provider"`
}

// Valid reports whether the coordinates are inside the WGS84 ranges.
func (r *ProviderResult) Valid() bool {
	return r.Latitude >= -90 && r.Latitude <= 90 &&
		r.Longitude >= -180 && r.Longitude <= 180
}

// Provider geocodes a free-form query. Implementations return a
// *GeocodingError with ErrorTypeNotFound when the provider answered but
// knows no such place.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string) (*ProviderResult, error)
}

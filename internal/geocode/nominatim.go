package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	nominatimURL       = "https://nominatim.openstreetmap.org/search"
	nominatimUserAgent = "llmap-geocoder/1.0"
)

// NominatimGeocoder uses the OpenStreetMap Nominatim API. The public
// instance enforces an absolute limit of one request per second, which the
// resolver's rate limiter honors.
type NominatimGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewNominatimGeocoder creates a Nominatim geocoder against the public
// OpenStreetMap instance.
func NewNominatimGeocoder() *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:   nominatimURL,
		userAgent: nominatimUserAgent,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewNominatimGeocoderWithClient creates a geocoder against an explicit
// endpoint and client (for testing).
func NewNominatimGeocoderWithClient(baseURL string, client *http.Client) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:    baseURL,
		userAgent:  nominatimUserAgent,
		httpClient: client,
	}
}

// Name identifies the provider in results and logs.
func (n *NominatimGeocoder) Name() string {
	return "nominatim"
}

// Nominatim returns coordinates as JSON strings, not numbers.
type nominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

// Geocode resolves a query through Nominatim. Confidence is OSM's own
// importance score, or 0.5 when the result carries none.
func (n *NominatimGeocoder) Geocode(ctx context.Context, query string) (*ProviderResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building geocoding request", Err: err}
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding response", Err: err}
	}

	if len(results) == 0 {
		return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: fmt.Sprintf("no results for query: %s", query)}
	}

	result := results[0]
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "parsing latitude", Err: err}
	}
	lon, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "parsing longitude", Err: err}
	}

	confidence := result.Importance
	if confidence == 0 {
		confidence = 0.5
	}

	return &ProviderResult{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: result.DisplayName,
		Confidence:  confidence,
		Provider:    n.Name(),
	}, nil
}

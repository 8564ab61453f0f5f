package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleGeocoder uses the Google Maps Geocoding API.
type GoogleGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleGeocoder creates a Google Maps geocoder.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey:  apiKey,
		baseURL: googleGeocodeURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewGoogleGeocoderWithClient creates a geocoder against an explicit
// endpoint and client (for testing).
func NewGoogleGeocoderWithClient(apiKey, baseURL string, client *http.Client) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
	}
}

// Name identifies the provider in results and logs.
func (g *GoogleGeocoder) Name() string {
	return "google"
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status string `json:"status"` // OK, ZERO_RESULTS, etc.
}

// Geocode resolves a query to coordinates. Confidence starts at 0.7,
// rises with geometry accuracy and with how much of the query the returned
// address echoes back.
func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) (*ProviderResult, error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building geocoding request", Err: err}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding response", Err: err}
	}

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: fmt.Sprintf("no results for query: %s", query)}
	case "OVER_QUERY_LIMIT":
		return nil, &GeocodingError{Type: ErrorTypeRateLimit, Message: "google maps query limit reached"}
	case "REQUEST_DENIED":
		return nil, &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "google maps request denied"}
	case "INVALID_REQUEST":
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "google maps rejected the request"}
	default:
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("google maps status: %s", gmResp.Status)}
	}

	if len(gmResp.Results) == 0 {
		return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: fmt.Sprintf("no results for query: %s", query)}
	}

	result := gmResp.Results[0]
	return &ProviderResult{
		Latitude:    result.Geometry.Location.Lat,
		Longitude:   result.Geometry.Location.Lng,
		DisplayName: result.FormattedAddress,
		Confidence:  googleConfidence(result.Geometry.LocationType, result.FormattedAddress, query),
		Provider:    g.Name(),
	}, nil
}

// googleConfidence scores a result from its geometry accuracy and the token
// overlap between the query and the formatted address.
func googleConfidence(locationType, formattedAddress, query string) float64 {
	confidence := 0.7

	switch locationType {
	case "ROOFTOP":
		confidence += 0.2
	case "RANGE_INTERPOLATED":
		confidence += 0.1
	}

	addrLower := strings.ToLower(formattedAddress)
	words := strings.Fields(strings.ToLower(query))
	if len(words) > 0 {
		matches := 0
		for _, w := range words {
			if strings.Contains(addrLower, w) {
				matches++
			}
		}
		confidence += float64(matches) / float64(len(words)) * 0.2
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nominatimServer(t *testing.T, status int, body string) *NominatimGeocoder {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewNominatimGeocoderWithClient(srv.URL, srv.Client())
}

func TestNominatimGeocodeOK(t *testing.T) {
	n := nominatimServer(t, http.StatusOK, `[{
		"lat": "47.8021",
		"lon": "-123.6044",
		"display_name": "Olympic National Park, Washington, United States",
		"importance": 0.62
	}]`)

	result, err := n.Geocode(context.Background(), "Olympic National Park")

	require.NoError(t, err)
	assert.InDelta(t, 47.8021, result.Latitude, 1e-9)
	assert.InDelta(t, -123.6044, result.Longitude, 1e-9)
	assert.Equal(t, "Olympic National Park, Washington, United States", result.DisplayName)
	assert.InDelta(t, 0.62, result.Confidence, 1e-9)
	assert.Equal(t, "nominatim", result.Provider)
}

func TestNominatimZeroImportanceDefaults(t *testing.T) {
	n := nominatimServer(t, http.StatusOK, `[{"lat": "1.0", "lon": "2.0", "display_name": "somewhere"}]`)

	result, err := n.Geocode(context.Background(), "somewhere")

	require.NoError(t, err)
	assert.Equal(t, 0.5, result.Confidence)
}

func TestNominatimEmptyResults(t *testing.T) {
	n := nominatimServer(t, http.StatusOK, `[]`)

	_, err := n.Geocode(context.Background(), "no such place")

	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestNominatimMalformedCoordinates(t *testing.T) {
	n := nominatimServer(t, http.StatusOK, `[{"lat": "not-a-number", "lon": "2.0", "display_name": "x"}]`)

	_, err := n.Geocode(context.Background(), "query")

	require.Error(t, err)
	assert.ErrorContains(t, err, "parsing latitude")
}

func TestNominatimServiceUnavailable(t *testing.T) {
	n := nominatimServer(t, http.StatusServiceUnavailable, "")

	_, err := n.Geocode(context.Background(), "query")

	require.Error(t, err)
	var geoErr *GeocodingError
	require.True(t, errors.As(err, &geoErr))
	assert.Equal(t, ErrorTypeNetworkError, geoErr.Type)
}

func TestNominatimSendsUserAgent(t *testing.T) {
	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("User-Agent")
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	n := NewNominatimGeocoderWithClient(srv.URL, srv.Client())
	_, _ = n.Geocode(context.Background(), "query")

	assert.Equal(t, "llmap-geocoder/1.0", captured)
}

package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmap/internal/geocode"
	"llmap/internal/ocr"
	"llmap/pkg/models"
)

// stubEngine is a canned OCR backend. It is safe for concurrent use so batch
// workers can share one instance.
type stubEngine struct {
	name      string
	available bool
	regions   []ocr.Region
	panicMsg  string

	mu    sync.Mutex
	calls int
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) Recognize(ctx context.Context, data []byte, languages []string) ([]ocr.Region, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	return e.regions, nil
}

func (e *stubEngine) IsAvailable(ctx context.Context) bool { return e.available }

func (e *stubEngine) SupportedLanguages() []string {
	return []string{"english", "chinese", "japanese", "korean"}
}

func (e *stubEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// stubGeocoder answers from a fixed query table and records every call.
type stubGeocoder struct {
	results map[string]*geocode.ProviderResult

	mu      sync.Mutex
	queries []string
}

func (p *stubGeocoder) Name() string { return "stub" }

func (p *stubGeocoder) Geocode(ctx context.Context, query string) (*geocode.ProviderResult, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()

	if r, ok := p.results[query]; ok {
		out := *r
		return &out, nil
	}
	return nil, &geocode.GeocodingError{Type: geocode.ErrorTypeNotFound, Message: "location not found"}
}

func (p *stubGeocoder) calledWith() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queries...)
}

func pngAsset(t *testing.T, filename string) models.Asset {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return models.NewAsset(filename, buf.Bytes())
}

func region(text string) ocr.Region {
	return ocr.Region{Text: text, Confidence: 0.9, Top: -1, Bottom: -1}
}

func newTestRunner(engines ...ocr.Engine) *Runner {
	return NewRunner(ocr.NewCoordinator(zerolog.Nop(), engines...), nil)
}

func newGeocodeRunner(provider geocode.Provider, engines ...ocr.Engine) *Runner {
	resolver := geocode.NewResolverWithProviders(provider, nil, nil, nil, geocode.Options{
		PrimaryInterval:  time.Millisecond,
		FallbackInterval: time.Millisecond,
	})
	return NewRunner(ocr.NewCoordinator(zerolog.Nop(), engines...), resolver)
}

func TestProcessAssetFullPipeline(t *testing.T) {
	engine := &stubEngine{
		name:      "tesseract",
		available: true,
		regions:   []ocr.Region{region("Dave's Hot Chicken"), region("4.5 stars")},
	}
	runner := newTestRunner(engine)

	result := runner.ProcessAsset(context.Background(), pngAsset(t, "storefront.png"), Options{})

	require.True(t, result.Success, "reason: %s", result.Reason)
	assert.Empty(t, result.Reason)
	assert.Equal(t, "tesseract", result.Engine)
	assert.Equal(t, models.ContentRestaurantReview, result.ContentType)
	assert.Equal(t, "english", result.Language)
	assert.Equal(t, "Dave's Hot Chicken\n4.5 stars", result.CleanText)
	assert.Len(t, result.Chunks, 2)
	assert.Greater(t, result.MeanConfidence, 0.9)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "Dave's Hot Chicken", result.Candidates[0].Text)
	assert.Equal(t, models.KindBusiness, result.Candidates[0].Kind)

	require.Len(t, result.Ratings, 1)
	assert.InDelta(t, 4.5, result.Ratings[0].Value, 1e-9)
	assert.InDelta(t, 5.0, result.Ratings[0].Scale, 1e-9)

	assert.Empty(t, result.Geocoded)
	assert.False(t, result.ProcessedAt.IsZero())
}

func TestProcessAssetKeepsDeclaredContentType(t *testing.T) {
	engine := &stubEngine{
		name:      "tesseract",
		available: true,
		regions:   []ocr.Region{region("4.5 stars")},
	}
	runner := newTestRunner(engine)

	asset := pngAsset(t, "itinerary.png")
	asset.ContentType = models.ContentTravelItinerary

	result := runner.ProcessAsset(context.Background(), asset, Options{})

	require.True(t, result.Success, "reason: %s", result.Reason)
	assert.Equal(t, models.ContentTravelItinerary, result.ContentType)
}

func TestProcessAssetReportsEngineFailure(t *testing.T) {
	engine := &stubEngine{name: "tesseract", available: false}
	runner := newTestRunner(engine)

	result := runner.ProcessAsset(context.Background(), pngAsset(t, "photo.png"), Options{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "all OCR engines failed")
	assert.Zero(t, engine.callCount())
}

func TestProcessAssetRejectsCorruptImage(t *testing.T) {
	engine := &stubEngine{name: "tesseract", available: true}
	runner := newTestRunner(engine)

	result := runner.ProcessAsset(context.Background(), models.NewAsset("notes.txt", []byte("not an image")), Options{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "unsupported or corrupted image")
	assert.Zero(t, engine.callCount())
}

func TestProcessAssetRecoversFromStagePanic(t *testing.T) {
	engine := &stubEngine{name: "tesseract", available: true, panicMsg: "engine exploded"}
	runner := newTestRunner(engine)

	result := runner.ProcessAsset(context.Background(), pngAsset(t, "photo.png"), Options{})

	assert.False(t, result.Success)
	assert.Equal(t, "internal error: engine exploded", result.Reason)
}

func TestProcessAssetGeocodesCandidates(t *testing.T) {
	engine := &stubEngine{
		name:      "tesseract",
		available: true,
		regions:   []ocr.Region{region("Berkeley Marina"), region("Berkeley, CA")},
	}
	provider := &stubGeocoder{
		results: map[string]*geocode.ProviderResult{
			"Berkeley, CA":                  {Latitude: 37.8715, Longitude: -122.2730, DisplayName: "Berkeley, Alameda County, California", Confidence: 0.95, Provider: "stub"},
			"Berkeley Marina, Berkeley, CA": {Latitude: 37.8651, Longitude: -122.3159, DisplayName: "Berkeley Marina, Berkeley, CA", Confidence: 0.9, Provider: "stub"},
		},
	}
	runner := newGeocodeRunner(provider, engine)

	result := runner.ProcessAsset(context.Background(), pngAsset(t, "marina.png"), Options{Geocode: true})

	require.True(t, result.Success, "reason: %s", result.Reason)
	require.Len(t, result.Geocoded, 2)
	assert.Empty(t, result.Ungeocoded)

	// The city candidate becomes the region hint for the marina query; the
	// city query already carries a state suffix and is left alone.
	assert.Equal(t, []string{"Berkeley, CA", "Berkeley Marina, Berkeley, CA"}, provider.calledWith())

	assert.Equal(t, "Berkeley, CA", result.Geocoded[0].Text)
	assert.InDelta(t, 0.4*0.85+0.6*0.95, result.Geocoded[0].GeoConfidence, 1e-9)
	assert.Equal(t, "Berkeley Marina", result.Geocoded[1].Text)
	assert.InDelta(t, 0.4*0.5+0.6*0.9, result.Geocoded[1].GeoConfidence, 1e-9)
	assert.Equal(t, "stub", result.Geocoded[1].Provider)
	assert.NotEmpty(t, result.Geocoded[0].Cell)
}

func TestProcessAssetSkipsGeocodingWithoutResolver(t *testing.T) {
	engine := &stubEngine{
		name:      "tesseract",
		available: true,
		regions:   []ocr.Region{region("Berkeley Marina")},
	}
	runner := newTestRunner(engine)

	result := runner.ProcessAsset(context.Background(), pngAsset(t, "marina.png"), Options{Geocode: true})

	require.True(t, result.Success, "reason: %s", result.Reason)
	require.Len(t, result.Candidates, 1)
	assert.Empty(t, result.Geocoded)
	assert.Empty(t, result.Ungeocoded)
}

func TestEngineStatuses(t *testing.T) {
	runner := newTestRunner(
		&stubEngine{name: "tesseract", available: true},
		&stubEngine{name: "vision", available: false},
	)

	statuses := runner.EngineStatuses(context.Background())

	require.Len(t, statuses, 2)
	assert.Equal(t, "tesseract", statuses[0].Name)
	assert.True(t, statuses[0].Available)
	assert.Equal(t, "vision", statuses[1].Name)
	assert.False(t, statuses[1].Available)
}

func TestInferRegionHint(t *testing.T) {
	city := func(text string, conf float64) models.CandidateLocation {
		return models.CandidateLocation{Text: text, Kind: models.KindCity, Confidence: conf}
	}

	tests := []struct {
		name       string
		candidates []models.CandidateLocation
		want       string
	}{
		{
			name:       "most frequent mention wins",
			candidates: []models.CandidateLocation{city("Berkeley, CA", 0.6), city("Berkeley, CA", 0.6), city("Oakland, CA", 0.95)},
			want:       "Berkeley, CA",
		},
		{
			name:       "confidence breaks frequency ties",
			candidates: []models.CandidateLocation{city("Berkeley, CA", 0.6), city("Oakland, CA", 0.9)},
			want:       "Oakland, CA",
		},
		{
			name:       "text breaks remaining ties",
			candidates: []models.CandidateLocation{city("Oakland, CA", 0.7), city("Berkeley, CA", 0.7)},
			want:       "Berkeley, CA",
		},
		{
			name:       "mentions are counted case-insensitively",
			candidates: []models.CandidateLocation{city("oakland", 0.6), city("Oakland", 0.6), city("Berkeley", 0.9)},
			want:       "oakland",
		},
		{
			name:       "low-confidence mentions are ignored",
			candidates: []models.CandidateLocation{city("Berkeley, CA", 0.4)},
			want:       "",
		},
		{
			name: "areas count, businesses do not",
			candidates: []models.CandidateLocation{
				{Text: "Chinatown", Kind: models.KindArea, Confidence: 0.7},
				{Text: "Dave's Hot Chicken", Kind: models.KindBusiness, Confidence: 0.95},
			},
			want: "Chinatown",
		},
		{
			name: "no usable candidates",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, inferRegionHint(tc.candidates))
		})
	}
}

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmap/internal/geocode"
	"llmap/internal/ocr"
	"llmap/pkg/models"
)

func TestProcessBatchIsolatesFailures(t *testing.T) {
	engine := &stubEngine{
		name:      "tesseract",
		available: true,
		regions:   []ocr.Region{region("Dave's Hot Chicken"), region("4.5 stars")},
	}
	runner := newTestRunner(engine)

	assets := []models.Asset{
		pngAsset(t, "first.png"),
		models.NewAsset("broken.bin", []byte("not an image")),
		pngAsset(t, "second.png"),
	}

	// Progress calls are serialized by the batch runner, so a plain slice
	// is safe here.
	var progressed []string
	batch, err := runner.ProcessBatch(context.Background(), assets, BatchOptions{
		Workers: 2,
		Progress: func(result models.AssetResult) {
			progressed = append(progressed, result.Filename)
		},
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)

	// Results keep input order regardless of which worker finished first.
	assert.Equal(t, "first.png", batch.Results[0].Filename)
	assert.Equal(t, "broken.bin", batch.Results[1].Filename)
	assert.Equal(t, "second.png", batch.Results[2].Filename)

	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Results[1].Success)
	assert.Contains(t, batch.Results[1].Reason, "unsupported or corrupted image")
	assert.True(t, batch.Results[2].Success)

	assert.Equal(t, 3, batch.Summary.Total)
	assert.Equal(t, 2, batch.Summary.Succeeded)
	assert.Equal(t, 1, batch.Summary.Failed)
	assert.Equal(t, []string{"Dave's Hot Chicken"}, batch.Summary.UniqueLocations)

	assert.ElementsMatch(t, []string{"first.png", "broken.bin", "second.png"}, progressed)
}

func TestProcessBatchEnforcesMaxBatch(t *testing.T) {
	runner := newTestRunner(&stubEngine{name: "tesseract", available: true})

	assets := []models.Asset{
		models.NewAsset("a.png", nil),
		models.NewAsset("b.png", nil),
		models.NewAsset("c.png", nil),
	}

	_, err := runner.ProcessBatch(context.Background(), assets, BatchOptions{MaxBatch: 2})
	assert.EqualError(t, err, "batch of 3 assets exceeds the maximum of 2")
}

func TestProcessBatchGeocodesThroughOneSession(t *testing.T) {
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

	assets := []models.Asset{pngAsset(t, "first.png"), pngAsset(t, "second.png")}
	batch, err := runner.ProcessBatch(context.Background(), assets, BatchOptions{
		Options: Options{Geocode: true},
		Workers: 2,
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	for _, result := range batch.Results {
		require.True(t, result.Success, "reason: %s", result.Reason)
		assert.Len(t, result.Geocoded, 2, "asset %s", result.Filename)
	}

	// The hint is inferred from the whole batch, and the shared cache serves
	// the second asset without another provider round trip.
	assert.Equal(t, []string{"Berkeley, CA", "Berkeley Marina, Berkeley, CA"}, provider.calledWith())
}

func TestResolveWorkers(t *testing.T) {
	t.Run("explicit request wins", func(t *testing.T) {
		t.Setenv("BATCH_WORKERS", "9")
		assert.Equal(t, 3, resolveWorkers(3))
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("BATCH_WORKERS", "7")
		assert.Equal(t, 7, resolveWorkers(0))
	})

	t.Run("invalid environment value", func(t *testing.T) {
		t.Setenv("BATCH_WORKERS", "many")
		assert.Equal(t, 4, resolveWorkers(0))
	})

	t.Run("non-positive environment value", func(t *testing.T) {
		t.Setenv("BATCH_WORKERS", "-2")
		assert.Equal(t, 4, resolveWorkers(0))
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("BATCH_WORKERS", "")
		assert.Equal(t, 4, resolveWorkers(0))
	})
}

func TestSummarize(t *testing.T) {
	results := []models.AssetResult{
		{
			Success:        true,
			MeanConfidence: 0.8,
			Candidates: []models.CandidateLocation{
				{Text: "Berkeley Marina"},
				{Text: "K"},
				{Text: "   "},
			},
		},
		{
			Success:        true,
			MeanConfidence: 0.6,
			Candidates: []models.CandidateLocation{
				{Text: "berkeley marina"},
				{Text: "Acme Bread Company"},
			},
		},
		{
			Success:    false,
			Candidates: []models.CandidateLocation{{Text: "Ghost Town"}},
		},
	}

	summary := summarize(results)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.InDelta(t, 0.7, summary.AverageConfidence, 1e-9)
	assert.Equal(t, []string{"Acme Bread Company", "Berkeley Marina"}, summary.UniqueLocations)
}

func TestSummarizeEmptyBatch(t *testing.T) {
	summary := summarize(nil)

	assert.Equal(t, 0, summary.Total)
	assert.Zero(t, summary.AverageConfidence)
	assert.Empty(t, summary.UniqueLocations)
}

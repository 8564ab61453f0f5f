package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmap/pkg/models"
)

func TestChunkRegionsEmpty(t *testing.T) {
	assert.Nil(t, ChunkRegions(nil))
	assert.Nil(t, ChunkRegions([]Region{{Text: "  \n\n  ", Confidence: 0.9}}))
}

func TestSpatialContext(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		pos      float64
		expected models.SpatialContext
	}{
		{"timestamp", "12:30 PM", 0.5, models.ContextHeader},
		{"day marker", "Day 1 Olympic Peninsula", 0.5, models.ContextHeader},
		{"bullet", "- hike to the waterfall", 0.5, models.ContextListItem},
		{"numbered", "1. Visit the museum", 0.5, models.ContextListItem},
		{"label", "Hours: 9am to 5pm", 0.5, models.ContextListItem},
		{"phone", "(510) 843-1234", 0.5, models.ContextContact},
		{"email", "hello@acmebread.com", 0.5, models.ContextContact},
		{"url", "https://acmebread.com/visit", 0.5, models.ContextContact},
		{"street address near top", "1919 Fourth St", 0.05, models.ContextBody},
		{"city state zip", "Berkeley, CA 94710", 0.9, models.ContextBody},
		{"short top line", "Acme Bread", 0.1, models.ContextHeader},
		{"bottom line", "posted 2 hours ago", 0.9, models.ContextFooter},
		{"middle line", "the sourdough is worth the wait", 0.5, models.ContextBody},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, spatialContext(tc.line, tc.pos))
		})
	}
}

func TestChunkRegionsMergesAdjacentLines(t *testing.T) {
	regions := []Region{
		{Text: "the quick brown fox\njumped over a log", Confidence: 0.9, Top: 0.4, Bottom: 0.5},
	}

	chunks := ChunkRegions(regions)

	require.Len(t, chunks, 1)
	assert.Equal(t, "the quick brown fox jumped over a log", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, models.ContextBody, chunks[0].Context)
}

func TestChunkRegionsMergeLookaheadCap(t *testing.T) {
	regions := make([]Region, 4)
	lines := []string{
		"the quick brown fox",
		"jumped over a log",
		"near the river bank",
		"under an old bridge",
	}
	for i, l := range lines {
		regions[i] = Region{Text: l, Confidence: 0.9, Top: 0.4, Bottom: 0.5}
	}

	chunks := ChunkRegions(regions)

	// At most three lines merge into one chunk.
	require.Len(t, chunks, 2)
	assert.Equal(t, "the quick brown fox jumped over a log near the river bank", chunks[0].Text)
	assert.Equal(t, "under an old bridge", chunks[1].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestChunkRegionsKeepsDifferentKindsApart(t *testing.T) {
	regions := []Region{
		{Text: "the sourdough is worth the wait", Confidence: 0.9, Top: 0.4, Bottom: 0.45},
		{Text: "hello@acmebread.com", Confidence: 0.9, Top: 0.46, Bottom: 0.5},
	}

	chunks := ChunkRegions(regions)

	require.Len(t, chunks, 2)
	assert.Equal(t, models.ContextBody, chunks[0].Context)
	assert.Equal(t, models.ContextContact, chunks[1].Context)
}

func TestChunkRegionsUsesGeometryOverReadingOrder(t *testing.T) {
	// A single line whose geometry puts it at the bottom of the image is a
	// footer even though it is first in reading order.
	regions := []Region{
		{Text: "shared from my phone", Confidence: 0.9, Top: 0.9, Bottom: 0.95},
	}

	chunks := ChunkRegions(regions)

	require.Len(t, chunks, 1)
	assert.Equal(t, models.ContextFooter, chunks[0].Context)
}

func TestChunkRegionsLabelsLanguage(t *testing.T) {
	regions := []Region{
		{Text: "北京烤鸭店很好吃", Confidence: 0.85, Top: -1, Bottom: -1},
	}

	chunks := ChunkRegions(regions)

	require.Len(t, chunks, 1)
	assert.Equal(t, "chinese", chunks[0].Language)
}

func TestShapeConfidence(t *testing.T) {
	// Engine confidence carries through with a length bonus.
	conf := shapeConfidence("Olympic National Park", 0.8)
	assert.Greater(t, conf, 0.8)
	assert.LessOrEqual(t, conf, 1.0)

	// No engine confidence falls back to the base.
	base := shapeConfidence("Olympic National Park", 0)
	assert.Greater(t, base, 0.7)

	// Artifact-heavy lines are penalized but never drop below the floor.
	garbled := shapeConfidence("|{}[]()<>@#", 0.5)
	assert.GreaterOrEqual(t, garbled, 0.1)
	assert.Less(t, garbled, 0.5)

	// Very short lines are penalized.
	assert.Less(t, shapeConfidence("ab", 0.8), 0.8)
}

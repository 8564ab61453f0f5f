package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	name      string
	available bool
	languages []string
	regions   []Region
	err       error
	calls     int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, image []byte, languages []string) ([]Region, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.regions, nil
}

func (f *fakeEngine) IsAvailable(ctx context.Context) bool { return f.available }

func (f *fakeEngine) SupportedLanguages() []string { return f.languages }

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))))
	return buf.Bytes()
}

func region(text string, conf float64) Region {
	return Region{Text: text, Confidence: conf, Top: -1, Bottom: -1}
}

func TestExtractFallsBackToNextEngine(t *testing.T) {
	first := &fakeEngine{name: "tesseract", available: false}
	second := &fakeEngine{
		name:      "vision",
		available: true,
		languages: []string{"english"},
		regions:   []Region{region("Acme Bread Company", 0.9)},
	}
	c := NewCoordinator(zerolog.Nop(), first, second)

	result, err := c.Extract(context.Background(), testPNG(t), "english")

	require.NoError(t, err)
	assert.Equal(t, "vision", result.Engine)
	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "Acme Bread Company", result.Chunks[0].Text)
}

func TestExtractStopsAfterFirstSuccessWithLanguageSignal(t *testing.T) {
	first := &fakeEngine{
		name:      "tesseract",
		available: true,
		regions:   []Region{region("Berkeley Marina", 0.8)},
	}
	second := &fakeEngine{
		name:      "vision",
		available: true,
		regions:   []Region{region("Berkeley Marina", 0.95)},
	}
	c := NewCoordinator(zerolog.Nop(), first, second)

	result, err := c.Extract(context.Background(), testPNG(t), "english")

	require.NoError(t, err)
	assert.Equal(t, "tesseract", result.Engine)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestExtractAutoPicksBestRunAndMergesText(t *testing.T) {
	first := &fakeEngine{
		name:      "tesseract",
		available: true,
		regions:   []Region{region("Olympic National Park", 0.6)},
	}
	second := &fakeEngine{
		name:      "vision",
		available: true,
		regions:   []Region{region("Hurricane Ridge Visitor Center", 0.9)},
	}
	c := NewCoordinator(zerolog.Nop(), first, second)

	result, err := c.Extract(context.Background(), testPNG(t), "")

	require.NoError(t, err)
	assert.Equal(t, "vision", result.Engine)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Contains(t, result.RawText, "Hurricane Ridge Visitor Center")
	assert.Contains(t, result.RawText, "Olympic National Park")
}

func TestExtractAllEnginesFailed(t *testing.T) {
	first := &fakeEngine{name: "tesseract", available: false}
	second := &fakeEngine{name: "vision", available: true, err: errors.New("quota exceeded")}
	c := NewCoordinator(zerolog.Nop(), first, second)

	_, err := c.Extract(context.Background(), testPNG(t), "english")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllEnginesFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestExtractRejectsUndecodableImage(t *testing.T) {
	engine := &fakeEngine{name: "vision", available: true, regions: []Region{region("text", 0.9)}}
	c := NewCoordinator(zerolog.Nop(), engine)

	_, err := c.Extract(context.Background(), []byte("not an image"), "english")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.Equal(t, 0, engine.calls)
}

func TestExtractWithForcedEngine(t *testing.T) {
	first := &fakeEngine{
		name:      "tesseract",
		available: true,
		regions:   []Region{region("first", 0.9)},
	}
	second := &fakeEngine{
		name:      "vision",
		available: true,
		regions:   []Region{region("Eunice Gourmet Cafe", 0.85)},
	}
	c := NewCoordinator(zerolog.Nop(), first, second)

	result, err := c.ExtractWith(context.Background(), testPNG(t), "english", "VISION")

	require.NoError(t, err)
	assert.Equal(t, "vision", result.Engine)
	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestExtractWithUnknownEngine(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(), &fakeEngine{name: "tesseract", available: true})

	_, err := c.ExtractWith(context.Background(), testPNG(t), "", "docai")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Contains(t, err.Error(), "engine not registered")
}

func TestExtractWithUnavailableEngine(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(), &fakeEngine{name: "tesseract", available: false})

	_, err := c.ExtractWith(context.Background(), testPNG(t), "", "tesseract")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Contains(t, err.Error(), "engine not available")
}

func TestExtractWithNoTextRecognized(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(), &fakeEngine{name: "tesseract", available: true})

	_, err := c.ExtractWith(context.Background(), testPNG(t), "", "tesseract")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTextRecognized)
}

func TestExtractWithAutoDelegates(t *testing.T) {
	engine := &fakeEngine{
		name:      "tesseract",
		available: true,
		regions:   []Region{region("Berkeley Marina", 0.8)},
	}
	c := NewCoordinator(zerolog.Nop(), engine)

	result, err := c.ExtractWith(context.Background(), testPNG(t), "english", "auto")

	require.NoError(t, err)
	assert.Equal(t, "tesseract", result.Engine)
}

func TestOrderForPrefersCJKCapableEngines(t *testing.T) {
	tesseract := &fakeEngine{name: "tesseract", languages: []string{"english"}}
	vision := &fakeEngine{name: "vision", languages: []string{"english", "chinese", "japanese", "korean"}}
	c := NewCoordinator(zerolog.Nop(), tesseract, vision)

	ordered := c.orderFor("chinese")
	require.Len(t, ordered, 2)
	assert.Equal(t, "vision", ordered[0].Name())
	assert.Equal(t, "tesseract", ordered[1].Name())

	// Mixed-script text routes like Chinese.
	assert.Equal(t, "vision", c.orderFor("mixed")[0].Name())

	// Non-CJK keeps the constructed order.
	assert.Equal(t, "tesseract", c.orderFor("english")[0].Name())
}

func TestStatuses(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(),
		&fakeEngine{name: "tesseract", available: true, languages: []string{"english"}},
		&fakeEngine{name: "vision", available: false, languages: []string{"english", "chinese"}},
	)

	statuses := c.Statuses(context.Background())

	require.Len(t, statuses, 2)
	assert.Equal(t, "tesseract", statuses[0].Name)
	assert.True(t, statuses[0].Available)
	assert.Equal(t, []string{"english"}, statuses[0].Languages)
	assert.Equal(t, "vision", statuses[1].Name)
	assert.False(t, statuses[1].Available)
}

func TestUnionRegions(t *testing.T) {
	base := []Region{
		{Text: "Acme Bread", Confidence: 0.6, Top: 0.1, Bottom: 0.2},
	}

	// Overlapping region with higher confidence replaces the base region.
	out := unionRegions(base, []Region{{Text: "Acme Bread Company", Confidence: 0.9, Top: 0.12, Bottom: 0.2}})
	require.Len(t, out, 1)
	assert.Equal(t, "Acme Bread Company", out[0].Text)

	// Overlapping region with lower confidence is dropped.
	out = unionRegions(base, []Region{{Text: "Acme Brea", Confidence: 0.3, Top: 0.12, Bottom: 0.2}})
	require.Len(t, out, 1)
	assert.Equal(t, "Acme Bread", out[0].Text)

	// Non-overlapping region is appended in vertical order.
	out = unionRegions(base, []Region{{Text: "1919 Fourth St", Confidence: 0.8, Top: 0.5, Bottom: 0.6}})
	require.Len(t, out, 2)
	assert.Equal(t, "Acme Bread", out[0].Text)
	assert.Equal(t, "1919 Fourth St", out[1].Text)

	// Without geometry only unseen text is added.
	out = unionRegions(base, []Region{region("acme  bread", 0.9), region("Open daily", 0.9)})
	require.Len(t, out, 2)
	assert.Equal(t, "Open daily", out[1].Text)
}

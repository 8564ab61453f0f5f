package ocr

import (
	"bytes"
	"context"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"llmap/internal/logger"
)

// scriptTraineddata maps script labels to Tesseract traineddata codes. CJK
// screenshots usually carry latin UI strings as well, so English rides along.
var scriptTraineddata = map[string][]string{
	"english":  {"eng"},
	"chinese":  {"chi_sim", "eng"},
	"japanese": {"jpn", "eng"},
	"korean":   {"kor", "eng"},
	"mixed":    {"chi_sim", "eng"},
}

// TesseractEngine recognizes text with a local Tesseract installation through
// gosseract. Clients are not safe for concurrent use, so a fresh one is
// created per request.
type TesseractEngine struct {
	defaultLangs  []string
	clientFactory func() *gosseract.Client
	log           zerolog.Logger

	probeOnce sync.Once
	installed map[string]bool
}

// NewTesseractEngine creates a local OCR engine. defaultLanguages are
// traineddata codes (e.g. "eng", "chi_sim") used when no script hint is
// given; they come from the TESSERACT_LANGUAGES environment variable.
func NewTesseractEngine(defaultLanguages []string) *TesseractEngine {
	return &TesseractEngine{
		defaultLangs:  defaultLanguages,
		clientFactory: gosseract.NewClient,
		log:           logger.WithComponent("tesseract-ocr"),
	}
}

// Name identifies the engine in logs and results.
func (e *TesseractEngine) Name() string {
	return "tesseract"
}

// IsAvailable reports whether a Tesseract installation with at least one
// traineddata file was found.
func (e *TesseractEngine) IsAvailable(ctx context.Context) bool {
	e.probe()
	return len(e.installed) > 0
}

// SupportedLanguages lists the script labels backed by installed traineddata.
func (e *TesseractEngine) SupportedLanguages() []string {
	e.probe()
	var labels []string
	for _, label := range []string{"english", "chinese", "japanese", "korean"} {
		codes := scriptTraineddata[label]
		if len(codes) > 0 && e.installed[codes[0]] {
			labels = append(labels, label)
		}
	}
	return labels
}

// Recognize extracts text line regions from an image. Per-line confidence
// and geometry come from the Tesseract result iterator; when the iterator is
// unusable the plain text is split into lines without geometry.
func (e *TesseractEngine) Recognize(ctx context.Context, imageData []byte, languages []string) ([]Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.probe()
	if len(e.installed) == 0 {
		return nil, NewOCRError("Recognize", e.Name(), ErrEngineUnavailable, "no traineddata found")
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(imageData); err != nil {
		return nil, WrapOCRError("Recognize", e.Name(), err, "setting image")
	}
	if langs := e.traineddataFor(languages); len(langs) > 0 {
		if err := client.SetLanguage(langs...); err != nil {
			return nil, WrapOCRError("Recognize", e.Name(), err, "setting languages")
		}
	}

	text, err := client.Text()
	if err != nil {
		return nil, WrapOCRError("Recognize", e.Name(), err, "extracting text")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(boxes) == 0 {
		// Some builds fail on line iteration for unusual inputs; keep the
		// plain text without geometry. Confidence 0 means unknown here.
		if err != nil {
			e.log.Debug().Err(err).Msg("Line iteration failed, falling back to plain text")
		}
		var regions []Region
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			regions = append(regions, Region{Text: line, Confidence: 0, Top: -1, Bottom: -1})
		}
		return regions, nil
	}

	height := imageHeight(imageData)
	regions := make([]Region, 0, len(boxes))
	for _, b := range boxes {
		lineText := strings.TrimSpace(b.Word)
		if lineText == "" {
			continue
		}
		r := Region{
			Text:       lineText,
			Confidence: clamp01(b.Confidence / 100.0),
			Top:        -1,
			Bottom:     -1,
		}
		if height > 0 {
			r.Top = float64(b.Box.Min.Y) / float64(height)
			r.Bottom = float64(b.Box.Max.Y) / float64(height)
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// probe scans the Tesseract data path once for installed traineddata files.
func (e *TesseractEngine) probe() {
	e.probeOnce.Do(func() {
		langs, err := gosseract.GetAvailableLanguages()
		if err != nil {
			e.log.Debug().Err(err).Msg("Tesseract not available")
			return
		}
		e.installed = make(map[string]bool, len(langs))
		for _, l := range langs {
			e.installed[l] = true
		}
	})
}

// traineddataFor maps script labels to installed traineddata codes, falling
// back to the configured defaults when no hint maps to an installed file.
func (e *TesseractEngine) traineddataFor(languages []string) []string {
	seen := make(map[string]bool)
	var langs []string
	add := func(code string) {
		if code != "" && !seen[code] && e.installed[code] {
			seen[code] = true
			langs = append(langs, code)
		}
	}

	for _, label := range languages {
		for _, code := range scriptTraineddata[strings.ToLower(label)] {
			add(code)
		}
	}
	if len(langs) == 0 {
		for _, code := range e.defaultLangs {
			add(strings.TrimSpace(code))
		}
	}
	return langs
}

// imageHeight returns the pixel height of the image, 0 when undecodable.
// Used to normalize Tesseract's pixel boxes to [0,1] positions.
func imageHeight(data []byte) int {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	return cfg.Height
}

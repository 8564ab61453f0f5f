// Package ocr provides text recognition over interchangeable engine
// backends and turns raw engine output into spatially labeled chunks.
//
// Engines are capability objects: each declares its supported languages and
// an availability probe so the coordinator can fall back when a backend is
// not installed or not configured. Adapters never propagate fatal errors for
// garbled input; they return an empty region list so the coordinator can try
// the next engine.
//
// Local Engine:
//   - tesseract: requires the libtesseract native library and language data
//
// Cloud Engines (credentials via environment):
//   - vision: GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON
//   - docai: same credentials plus DOCAI_PROJECT_ID and DOCAI_PROCESSOR_ID
package ocr

import "context"

// Region is one recognized span of text as reported by an engine, before
// chunking. Top and Bottom are normalized vertical positions in [0,1];
// both are -1 when the engine supplies no geometry.
type Region struct {
	Text       string
	Confidence float64 // 0.0 to 1.0
	Top        float64
	Bottom     float64
}

// Engine is the capability interface implemented by every OCR backend.
type Engine interface {
	// Name identifies the engine in logs and results.
	Name() string

	// Recognize extracts text regions from an image. Languages are script
	// labels ("english", "chinese", ...) that each adapter maps to its own
	// traineddata or hint codes. Garbled input yields an empty region list,
	// not an error.
	Recognize(ctx context.Context, image []byte, languages []string) ([]Region, error)

	// IsAvailable reports whether the backend can serve requests right now
	// (native library present, credentials configured).
	IsAvailable(ctx context.Context) bool

	// SupportedLanguages lists the script labels the engine handles.
	SupportedLanguages() []string
}

// HasGeometry reports whether the region carries usable position data.
func (r Region) HasGeometry() bool {
	return r.Top >= 0 && r.Bottom >= 0
}

// meanConfidence averages region confidences; 0 for an empty slice.
func meanConfidence(regions []Region) float64 {
	if len(regions) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range regions {
		sum += r.Confidence
	}
	return sum / float64(len(regions))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

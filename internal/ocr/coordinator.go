package ocr

import (
	"context"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"llmap/internal/classify"
	"llmap/pkg/models"
)

// Result is the outcome of coordinated text extraction for one image.
type Result struct {
	// Chunks are the spatially labeled text chunks in reading order.
	Chunks []models.OCRChunk

	// RawText is the unprocessed recognized text, one region per line.
	RawText string

	// Engine is the name of the engine whose output formed the base result.
	Engine string

	// Confidence is the mean engine confidence of the base run.
	Confidence float64
}

// EngineStatus is a point-in-time availability snapshot of one engine.
type EngineStatus struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	Languages []string `json:"languages,omitempty"`
}

// Coordinator runs recognition over an ordered set of engines. The language
// signal picks the order; unavailable or empty-handed engines are skipped in
// favor of the next one. Without a language signal every available engine
// runs and the highest-confidence result becomes the base, enriched with
// regions the other engines saw elsewhere on the image.
type Coordinator struct {
	engines []Engine
	log     zerolog.Logger
}

// NewCoordinator creates a coordinator over engines in preference order.
func NewCoordinator(log zerolog.Logger, engines ...Engine) *Coordinator {
	return &Coordinator{
		engines: engines,
		log:     log,
	}
}

// Statuses reports the current availability of every registered engine.
func (c *Coordinator) Statuses(ctx context.Context) []EngineStatus {
	statuses := make([]EngineStatus, 0, len(c.engines))
	for _, e := range c.engines {
		statuses = append(statuses, EngineStatus{
			Name:      e.Name(),
			Available: e.IsAvailable(ctx),
			Languages: e.SupportedLanguages(),
		})
	}
	return statuses
}

// Extract recognizes text in an image and returns labeled chunks. language
// is a script label from classification ("english", "chinese", ...); empty,
// "unknown" or "auto" means no signal. Confidence is never used to drop
// chunks here; downstream stages weigh it instead.
func (c *Coordinator) Extract(ctx context.Context, imageData []byte, language string) (*Result, error) {
	const op = "Extract"

	prepared, err := Prepare(imageData)
	if err != nil {
		return nil, err
	}

	auto := language == "" || language == "auto" || language == classify.LangUnknown
	var hints []string
	if !auto {
		hints = []string{language}
	}

	type engineRun struct {
		engine  string
		regions []Region
		mean    float64
	}

	var runs []engineRun
	var failures []string
	for _, eng := range c.orderFor(language) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !eng.IsAvailable(ctx) {
			c.log.Debug().Str("engine", eng.Name()).Msg("Engine unavailable, skipping")
			continue
		}

		regions, err := eng.Recognize(ctx, prepared, hints)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, eng.Name()+": "+err.Error())
			c.log.Warn().Err(err).Str("engine", eng.Name()).Msg("Engine failed, trying next")
			continue
		}
		if len(regions) == 0 {
			c.log.Debug().Str("engine", eng.Name()).Msg("Engine recognized no text, trying next")
			continue
		}

		runs = append(runs, engineRun{engine: eng.Name(), regions: regions, mean: meanConfidence(regions)})
		if !auto {
			break
		}
	}

	if len(runs) == 0 {
		details := "no engines available"
		if len(failures) > 0 {
			details = strings.Join(failures, "; ")
		}
		return nil, NewOCRError(op, "", ErrAllEnginesFailed, details)
	}

	best := runs[0]
	for _, r := range runs[1:] {
		if r.mean > best.mean {
			best = r
		}
	}

	merged := best.regions
	for _, r := range runs {
		if r.engine != best.engine {
			merged = unionRegions(merged, r.regions)
		}
	}

	chunks := ChunkRegions(merged)
	c.log.Debug().
		Str("engine", best.engine).
		Int("chunks", len(chunks)).
		Float64("confidence", best.mean).
		Msg("Extraction completed")

	return &Result{
		Chunks:     chunks,
		RawText:    rawText(merged),
		Engine:     best.engine,
		Confidence: best.mean,
	}, nil
}

// ExtractWith restricts recognition to the named engine. An empty or "auto"
// name falls back to coordinated extraction.
func (c *Coordinator) ExtractWith(ctx context.Context, imageData []byte, language, engineName string) (*Result, error) {
	const op = "ExtractWith"

	name := strings.TrimSpace(engineName)
	if name == "" || strings.EqualFold(name, "auto") {
		return c.Extract(ctx, imageData, language)
	}

	var engine Engine
	for _, e := range c.engines {
		if strings.EqualFold(e.Name(), name) {
			engine = e
			break
		}
	}
	if engine == nil {
		return nil, NewOCRError(op, engineName, ErrEngineUnavailable, "engine not registered")
	}
	if !engine.IsAvailable(ctx) {
		return nil, NewOCRError(op, engine.Name(), ErrEngineUnavailable, "engine not available")
	}

	prepared, err := Prepare(imageData)
	if err != nil {
		return nil, err
	}

	var hints []string
	if language != "" && language != "auto" && language != classify.LangUnknown {
		hints = []string{language}
	}

	regions, err := engine.Recognize(ctx, prepared, hints)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, NewOCRError(op, engine.Name(), ErrNoTextRecognized, "")
	}

	return &Result{
		Chunks:     ChunkRegions(regions),
		RawText:    rawText(regions),
		Engine:     engine.Name(),
		Confidence: meanConfidence(regions),
	}, nil
}

// Close releases clients held by engines.
func (c *Coordinator) Close() error {
	var firstErr error
	for _, e := range c.engines {
		if closer, ok := e.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// orderFor returns engines in preference order for the language signal. CJK
// scripts put CJK-capable engines first; otherwise the constructed order
// (local engine leading) stands.
func (c *Coordinator) orderFor(language string) []Engine {
	if !classify.IsCJK(language) {
		return c.engines
	}

	label := language
	if label == classify.LangMixed {
		label = classify.LangChinese
	}

	var capable, rest []Engine
	for _, e := range c.engines {
		if supportsLanguage(e, label) {
			capable = append(capable, e)
		} else {
			rest = append(rest, e)
		}
	}
	return append(capable, rest...)
}

func supportsLanguage(e Engine, label string) bool {
	for _, l := range e.SupportedLanguages() {
		if l == label {
			return true
		}
	}
	return false
}

// unionRegions folds extra regions into base. A region overlapping an
// existing one vertically replaces it only when its confidence is higher;
// regions without geometry are added only when their text is unseen.
func unionRegions(base, extra []Region) []Region {
	out := append([]Region(nil), base...)

	seen := make(map[string]bool, len(out))
	for _, r := range out {
		seen[textKey(r.Text)] = true
	}

	for _, r := range extra {
		if !r.HasGeometry() {
			if key := textKey(r.Text); !seen[key] {
				seen[key] = true
				out = append(out, r)
			}
			continue
		}

		matched := -1
		for i, b := range out {
			if b.HasGeometry() && overlapsVertically(b, r) {
				matched = i
				break
			}
		}
		if matched == -1 {
			seen[textKey(r.Text)] = true
			out = append(out, r)
			continue
		}
		if r.Confidence > out[matched].Confidence {
			out[matched] = r
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HasGeometry() && out[j].HasGeometry() {
			return out[i].Top < out[j].Top
		}
		return false
	})
	return out
}

// overlapsVertically reports whether two regions cover mostly the same band.
func overlapsVertically(a, b Region) bool {
	top := math.Max(a.Top, b.Top)
	bottom := math.Min(a.Bottom, b.Bottom)
	if bottom <= top {
		return false
	}
	minHeight := math.Min(a.Bottom-a.Top, b.Bottom-b.Top)
	if minHeight <= 0 {
		return false
	}
	return (bottom-top)/minHeight > 0.5
}

func textKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func rawText(regions []Region) string {
	lines := make([]string, 0, len(regions))
	for _, r := range regions {
		lines = append(lines, r.Text)
	}
	return strings.Join(lines, "\n")
}

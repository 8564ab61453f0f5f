// Package pipeline orchestrates the stages that turn an uploaded image into
// structured, geocoded location data: classify, recognize, normalize,
// extract, resolve. Stages run sequentially within an asset; batches fan
// assets out over a worker pool.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmap/internal/classify"
	"llmap/internal/extract"
	"llmap/internal/geocode"
	"llmap/internal/logger"
	"llmap/internal/normalize"
	"llmap/internal/ocr"
	"llmap/pkg/models"
)

// Options control a single-asset run.
type Options struct {
	// Engine restricts recognition to one engine by name. Empty or "auto"
	// lets the coordinator pick.
	Engine string

	// Geocode resolves extracted candidates to coordinates when the runner
	// has a resolver.
	Geocode bool

	// RegionHint anchors ambiguous queries ("Main St") to a region. When
	// empty it is inferred from the asset's own high-confidence city and
	// area candidates.
	RegionHint string
}

// Runner wires the pipeline stages together. The resolver is optional;
// without one, geocoding is skipped and candidates are reported as-is.
type Runner struct {
	coordinator *ocr.Coordinator
	classifier  *classify.Classifier
	extractor   *extract.Extractor
	resolver    *geocode.Resolver
	log         zerolog.Logger
}

// NewRunner assembles a runner from its stages.
func NewRunner(coordinator *ocr.Coordinator, resolver *geocode.Resolver) *Runner {
	return &Runner{
		coordinator: coordinator,
		classifier:  classify.New(),
		extractor:   extract.New(),
		resolver:    resolver,
		log:         logger.WithComponent("pipeline"),
	}
}

// EngineStatuses reports the availability of the runner's OCR engines.
func (r *Runner) EngineStatuses(ctx context.Context) []ocr.EngineStatus {
	return r.coordinator.Statuses(ctx)
}

// Close releases engine clients and the geocode cache.
func (r *Runner) Close() error {
	err := r.coordinator.Close()
	if r.resolver != nil {
		if rerr := r.resolver.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// ProcessAsset runs the full pipeline for one asset. Failures never abort
// the caller: the result carries Success=false and a Reason instead.
func (r *Runner) ProcessAsset(ctx context.Context, asset models.Asset, opts Options) models.AssetResult {
	result := r.analyze(ctx, asset, opts)
	if !result.Success || !opts.Geocode || r.resolver == nil {
		return result
	}

	hint := opts.RegionHint
	if hint == "" {
		hint = inferRegionHint(result.Candidates)
	}

	session := r.resolver.NewSession()
	result.Geocoded, result.Ungeocoded = session.Resolve(ctx, result.Candidates, hint)
	return result
}

// analyze covers every stage up to geocoding. It never panics outward; a
// stage panic is converted into a failed result.
func (r *Runner) analyze(ctx context.Context, asset models.Asset, opts Options) (result models.AssetResult) {
	start := time.Now()
	log := logger.WithAsset("pipeline", asset.ID)
	result = models.AssetResult{
		AssetID:     asset.ID,
		Filename:    asset.Filename,
		ContentType: asset.ContentType,
		ProcessedAt: start,
	}
	defer func() {
		result.Duration = time.Since(start)
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("asset", asset.Filename).Msg("Pipeline stage panicked")
			result.Success = false
			result.Reason = fmt.Sprintf("internal error: %v", p)
		}
	}()

	ocrResult, err := r.coordinator.ExtractWith(ctx, asset.Data, asset.LanguageHint, opts.Engine)
	if err != nil {
		result.Reason = err.Error()
		return result
	}

	chunks := normalize.Normalize(ocrResult.Chunks)
	cleanText := joinChunks(chunks)

	cls := r.classifier.Classify(asset.Data, cleanText)
	if result.ContentType == "" {
		result.ContentType = cls.ContentType
	}
	result.Language = cls.Language
	result.Engine = ocrResult.Engine
	result.RawText = ocrResult.RawText
	result.CleanText = cleanText
	result.Chunks = chunks
	result.MeanConfidence = meanChunkConfidence(chunks)

	result.Candidates = r.extractor.Locations(chunks)
	details := r.extractor.Details(chunks)
	result.Ratings = details.Ratings
	result.Contact = details.Contact

	result.Success = true

	log.Info().
		Str("asset", asset.Filename).
		Str("engine", result.Engine).
		Str("content_type", string(result.ContentType)).
		Str("language", result.Language).
		Int("chunks", len(chunks)).
		Int("candidates", len(result.Candidates)).
		Float64("confidence", result.MeanConfidence).
		Dur("duration", time.Since(start)).
		Msg("Asset processed")

	return result
}

func joinChunks(chunks []models.OCRChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func meanChunkConfidence(chunks []models.OCRChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Confidence
	}
	return sum / float64(len(chunks))
}

// inferRegionHint picks the most frequent high-confidence city or area
// mention. Frequency wins, confidence breaks ties.
func inferRegionHint(candidates []models.CandidateLocation) string {
	type hint struct {
		text       string
		count      int
		confidence float64
	}
	hints := make(map[string]*hint)

	for _, c := range candidates {
		if c.Kind != models.KindCity && c.Kind != models.KindArea {
			continue
		}
		if c.Confidence < 0.5 {
			continue
		}
		key := strings.ToLower(c.Text)
		h, ok := hints[key]
		if !ok {
			h = &hint{text: c.Text}
			hints[key] = h
		}
		h.count++
		if c.Confidence > h.confidence {
			h.confidence = c.Confidence
		}
	}

	var best *hint
	for _, h := range hints {
		switch {
		case best == nil,
			h.count > best.count,
			h.count == best.count && h.confidence > best.confidence,
			h.count == best.count && h.confidence == best.confidence && h.text < best.text:
			best = h
		}
	}
	if best == nil {
		return ""
	}
	return best.text
}

package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver

	"llmap/internal/config"
	"llmap/internal/geocode"
	"llmap/internal/logger"
	"llmap/internal/ocr"
	"llmap/internal/pipeline"
	"llmap/pkg/models"
)

// ProcessOptions steer a single-image run.
type ProcessOptions struct {
	// Engine restricts recognition to one engine. Empty or "auto" lets the
	// coordinator choose.
	Engine string

	// ContentType overrides content-type detection when the caller already
	// knows the image's origin.
	ContentType models.ContentType

	// LanguageHint is a script label ("english", "chinese", ...) that steers
	// engine ordering.
	LanguageHint string

	// EnableGeocoding resolves extracted candidates to coordinates.
	EnableGeocoding bool

	// RegionHint anchors ambiguous geocoding queries to a region.
	RegionHint string
}

// BatchOptions steer a batch run.
type BatchOptions struct {
	ProcessOptions

	// Workers sizes the worker pool; zero uses BATCH_WORKERS or the default.
	Workers int

	// MaxBatch caps accepted assets per call when positive.
	MaxBatch int

	// Progress, when set, receives each result as its recognition completes.
	Progress func(models.AssetResult)
}

// PipelineService defines the interface for turning images into structured,
// geocoded location data.
type PipelineService interface {
	// ProcessImage runs the full pipeline over one image
	ProcessImage(ctx context.Context, asset models.Asset, opts ProcessOptions) models.AssetResult

	// ProcessBatch fans images out over a worker pool and geocodes them
	// through one shared session
	ProcessBatch(ctx context.Context, assets []models.Asset, opts BatchOptions) (models.BatchResult, error)

	// EngineStatus reports per-engine availability and supported languages
	EngineStatus(ctx context.Context) []ocr.EngineStatus

	// Close releases engine clients and the geocode cache
	Close() error
}

type pipelineService struct {
	runner *pipeline.Runner
}

// NewPipelineService assembles the pipeline from configuration: all OCR
// engines (engines missing credentials degrade to unavailable instead of
// failing construction) and the geocoding resolver with its optional
// persistent cache.
func NewPipelineService(ctx context.Context, cfg *config.Config) (PipelineService, error) {
	const op = "NewPipelineService"

	tesseract := ocr.NewTesseractEngine(splitLanguages(cfg.TesseractLanguages))
	vision := ocr.NewVisionEngine(ctx)
	docai := ocr.NewDocAIEngine(ctx, ocr.DocAIConfig{
		ProjectID:   cfg.DocAIProjectID,
		Location:    cfg.DocAILocation,
		ProcessorID: cfg.DocAIProcessorID,
	})
	coordinator := ocr.NewCoordinator(logger.WithComponent("ocr-coordinator"), tesseract, vision, docai)

	var cacheDB *sql.DB
	if cfg.GeocodeCacheDB != "" {
		db, err := sql.Open("duckdb", cfg.GeocodeCacheDB)
		if err != nil {
			return nil, fmt.Errorf("%s: opening geocode cache database: %w", op, err)
		}
		cacheDB = db
	}

	resolver, err := geocode.NewResolver(geocode.ResolverConfig{
		GoogleAPIKey:       cfg.GoogleMapsAPIKey,
		NominatimBaseURL:   cfg.NominatimBaseURL,
		NominatimUserAgent: cfg.NominatimUserAgent,
		OpenAIAPIKey:       cfg.OpenAIAPIKey,
		OpenAIModel:        cfg.OpenAIModel,
		CacheDB:            cacheDB,
	}, geocode.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: creating geocoding resolver: %w", op, err)
	}

	return &pipelineService{
		runner: pipeline.NewRunner(coordinator, resolver),
	}, nil
}

// NewPipelineServiceWithRunner creates a service over a pre-built runner
// (for testing).
func NewPipelineServiceWithRunner(runner *pipeline.Runner) PipelineService {
	return &pipelineService{runner: runner}
}

// ProcessImage runs the full pipeline over one image.
func (s *pipelineService) ProcessImage(ctx context.Context, asset models.Asset, opts ProcessOptions) models.AssetResult {
	applyHints(&asset, opts)
	return s.runner.ProcessAsset(ctx, asset, pipeline.Options{
		Engine:     opts.Engine,
		Geocode:    opts.EnableGeocoding,
		RegionHint: opts.RegionHint,
	})
}

// ProcessBatch fans the assets out over a worker pool.
func (s *pipelineService) ProcessBatch(ctx context.Context, assets []models.Asset, opts BatchOptions) (models.BatchResult, error) {
	for i := range assets {
		applyHints(&assets[i], opts.ProcessOptions)
	}
	return s.runner.ProcessBatch(ctx, assets, pipeline.BatchOptions{
		Options: pipeline.Options{
			Engine:     opts.Engine,
			Geocode:    opts.EnableGeocoding,
			RegionHint: opts.RegionHint,
		},
		Workers:  opts.Workers,
		MaxBatch: opts.MaxBatch,
		Progress: opts.Progress,
	})
}

// EngineStatus reports per-engine availability.
func (s *pipelineService) EngineStatus(ctx context.Context) []ocr.EngineStatus {
	return s.runner.EngineStatuses(ctx)
}

// Close releases engine clients and the geocode cache.
func (s *pipelineService) Close() error {
	return s.runner.Close()
}

func applyHints(asset *models.Asset, opts ProcessOptions) {
	if opts.ContentType != "" {
		asset.ContentType = opts.ContentType
	}
	if opts.LanguageHint != "" {
		asset.LanguageHint = opts.LanguageHint
	}
}

func splitLanguages(csv string) []string {
	var langs []string
	for _, l := range strings.Split(csv, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"llmap/pkg/models"
)

// BatchOptions control a batch run.
type BatchOptions struct {
	Options

	// Workers is the worker pool size. Zero falls back to the BATCH_WORKERS
	// environment variable, then to the default of 4.
	Workers int

	// MaxBatch caps the number of assets accepted per call when positive.
	MaxBatch int

	// Progress, when set, is called once per asset as its recognition
	// completes. Calls are serialized.
	Progress func(models.AssetResult)
}

type batchJob struct {
	Index int
	Asset models.Asset
}

// ProcessBatch fans assets out over a worker pool for recognition and
// extraction, then geocodes every asset's candidates through one shared
// session so rate limits and the query cache hold across the whole batch.
// Individual asset failures never abort the batch.
func (r *Runner) ProcessBatch(ctx context.Context, assets []models.Asset, opts BatchOptions) (models.BatchResult, error) {
	if opts.MaxBatch > 0 && len(assets) > opts.MaxBatch {
		return models.BatchResult{}, fmt.Errorf("batch of %d assets exceeds the maximum of %d", len(assets), opts.MaxBatch)
	}

	numWorkers := resolveWorkers(opts.Workers)
	if numWorkers > len(assets) {
		numWorkers = len(assets)
	}

	r.log.Info().
		Int("assets", len(assets)).
		Int("workers", numWorkers).
		Bool("geocode", opts.Geocode && r.resolver != nil).
		Msg("Starting batch processing")

	jobs := make(chan batchJob, len(assets))
	results := make([]models.AssetResult, len(assets))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				r.log.Debug().
					Int("worker", workerID).
					Str("asset", job.Asset.Filename).
					Int("index", job.Index+1).
					Msg("Worker processing asset")

				result := r.analyze(ctx, job.Asset, opts.Options)
				results[job.Index] = result

				if opts.Progress != nil {
					mu.Lock()
					opts.Progress(result)
					mu.Unlock()
				}
			}
		}(w)
	}

	for i, asset := range assets {
		jobs <- batchJob{Index: i, Asset: asset}
	}
	close(jobs)
	wg.Wait()

	if opts.Geocode && r.resolver != nil {
		r.geocodeBatch(ctx, results, opts.RegionHint)
	}

	return models.BatchResult{
		Results: results,
		Summary: summarize(results),
	}, nil
}

// geocodeBatch resolves candidates for every successful result using one
// session. The region hint is inferred from the whole batch's city and area
// candidates when the caller did not supply one.
func (r *Runner) geocodeBatch(ctx context.Context, results []models.AssetResult, regionHint string) {
	if regionHint == "" {
		var all []models.CandidateLocation
		for _, result := range results {
			all = append(all, result.Candidates...)
		}
		regionHint = inferRegionHint(all)
		if regionHint != "" {
			r.log.Debug().Str("region_hint", regionHint).Msg("Inferred region hint from batch candidates")
		}
	}

	session := r.resolver.NewSession()
	for i := range results {
		if !results[i].Success || len(results[i].Candidates) == 0 {
			continue
		}
		results[i].Geocoded, results[i].Ungeocoded = session.Resolve(ctx, results[i].Candidates, regionHint)
	}
}

func resolveWorkers(requested int) int {
	if requested > 0 {
		return requested
	}
	if env := os.Getenv("BATCH_WORKERS"); env != "" {
		if workers, err := strconv.Atoi(env); err == nil && workers > 0 {
			return workers
		}
	}
	return 4
}

// summarize aggregates a batch: unique extracted locations across successful
// assets (case-insensitive, longer than one character) and the average of
// their mean confidences.
func summarize(results []models.AssetResult) models.BatchSummary {
	summary := models.BatchSummary{Total: len(results)}

	seen := make(map[string]string)
	var confidenceSum float64

	for _, result := range results {
		if !result.Success {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		confidenceSum += result.MeanConfidence

		for _, candidate := range result.Candidates {
			text := strings.TrimSpace(candidate.Text)
			if len([]rune(text)) <= 1 {
				continue
			}
			key := strings.ToLower(text)
			if _, ok := seen[key]; !ok {
				seen[key] = text
			}
		}
	}

	for _, text := range seen {
		summary.UniqueLocations = append(summary.UniqueLocations, text)
	}
	sort.Strings(summary.UniqueLocations)

	if summary.Succeeded > 0 {
		summary.AverageConfidence = confidenceSum / float64(summary.Succeeded)
	}

	return summary
}

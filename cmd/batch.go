package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"llmap/internal/logger"
	"llmap/pkg/models"
	"llmap/pkg/services"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Process all images in a folder",
	Long: `Process every image in a folder (recursively) through the pipeline and
print an aggregate summary.

Images are processed in parallel across a worker pool; geocoding runs
afterwards over one shared session so provider rate limits hold across the
whole batch. A failed image never aborts the batch, it is reported with a
reason in the results.

Optional environment variables:
  BATCH_WORKERS - Number of parallel workers (default: 4)`,
	Example: `  # Process a folder of screenshots
  llmap batch ./screenshots

  # Save the full results and skip geocoding
  llmap batch ./screenshots --geocode=false -o results.json

  # Process travel photos with a region hint
  llmap batch ./trip --region "Washington State" --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("engine", "", "Force a specific OCR engine (tesseract, vision, docai)")
	batchCmd.Flags().String("content-type", "", "Declare the content type instead of detecting it")
	batchCmd.Flags().Bool("geocode", true, "Resolve extracted locations to coordinates")
	batchCmd.Flags().String("region", "", "Region hint appended to ambiguous geocoding queries")
	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (default: BATCH_WORKERS or 4)")
	batchCmd.Flags().StringP("output", "o", "", "Write the full results JSON to this file")
	batchCmd.Flags().Int("timeout", 1800, "Processing timeout in seconds")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	engine, _ := cmd.Flags().GetString("engine")
	contentType, _ := cmd.Flags().GetString("content-type")
	geocode, _ := cmd.Flags().GetBool("geocode")
	region, _ := cmd.Flags().GetString("region")
	workers, _ := cmd.Flags().GetInt("workers")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	log.Info().
		Str("folder", folderPath).
		Str("engine", engine).
		Bool("geocode", geocode).
		Str("region", region).
		Int("workers", workers).
		Msg("Starting batch processing")

	imageFiles, err := findImageFiles(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find image files: %w", err)
	}
	if len(imageFiles) == 0 {
		fmt.Println("No image files found in folder.")
		return nil
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	service, cfg, err := createPipelineService(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := service.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close pipeline service")
		}
	}()

	if workers == 0 {
		workers = cfg.BatchWorkers
	}

	assets := make([]models.Asset, 0, len(imageFiles))
	for _, imageFile := range imageFiles {
		data, readErr := os.ReadFile(imageFile)
		if readErr != nil {
			// Unreadable files surface as per-asset failures in the results.
			log.Warn().Err(readErr).Str("file", imageFile).Msg("Failed to read image file")
		}
		assets = append(assets, models.NewAsset(imageFile, data))
	}

	fmt.Printf("Processing %d images...\n", len(assets))

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(assets),
			progressbar.OptionSetDescription("Processing "+filepath.Base(folderPath)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	// The pipeline serializes progress callbacks, so a bare counter is safe.
	var processedCount int
	progress := func(result models.AssetResult) {
		processedCount++
		if bar != nil {
			if err := bar.Add(1); err != nil {
				log.Warn().Err(err).Msg("Failed to update progress bar")
			}
			return
		}

		fmt.Printf("[%d/%d] %s - %s", processedCount, len(assets), filepath.Base(result.Filename), batchStatusEmoji(result))
		if !result.Success {
			fmt.Printf(" (%s)", result.Reason)
		} else if len(result.Candidates) > 0 {
			fmt.Printf(" (%d locations)", len(result.Candidates))
		}
		fmt.Println()
	}

	result, err := service.ProcessBatch(ctx, assets, services.BatchOptions{
		ProcessOptions: services.ProcessOptions{
			Engine:          engine,
			ContentType:     models.ContentType(contentType),
			EnableGeocoding: geocode,
			RegionHint:      region,
		},
		Workers:  workers,
		Progress: progress,
	})
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	fmt.Println()
	printBatchSummary(result)

	if outputPath != "" {
		data, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("failed to create JSON output: %w", marshalErr)
		}
		if writeErr := os.WriteFile(outputPath, data, 0644); writeErr != nil {
			return fmt.Errorf("failed to write output file: %w", writeErr)
		}
		fmt.Printf("Results written to %s\n", outputPath)
	}

	log.Info().
		Int("total", result.Summary.Total).
		Int("succeeded", result.Summary.Succeeded).
		Int("failed", result.Summary.Failed).
		Int("unique_locations", len(result.Summary.UniqueLocations)).
		Msg("Batch processing completed")

	return nil
}

// findImageFiles finds all image files in the specified folder recursively.
func findImageFiles(folderPath string) ([]string, error) {
	var imageFiles []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && hasImageExtension(info.Name()) {
			imageFiles = append(imageFiles, path)
		}

		return nil
	})

	return imageFiles, err
}

func printBatchSummary(result models.BatchResult) {
	summary := result.Summary

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 SUMMARY")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Processed: %d\n", summary.Total)
	fmt.Printf("Succeeded: %d\n", summary.Succeeded)
	if summary.Failed > 0 {
		fmt.Printf("Failed: %d\n", summary.Failed)
	}
	fmt.Printf("Average OCR confidence: %.1f%%\n", summary.AverageConfidence*100)

	if len(summary.UniqueLocations) > 0 {
		fmt.Printf("\nUnique locations (%d):\n", len(summary.UniqueLocations))
		for _, location := range summary.UniqueLocations {
			fmt.Printf("  - %s\n", location)
		}
	}

	var failures []models.AssetResult
	for _, assetResult := range result.Results {
		if !assetResult.Success {
			failures = append(failures, assetResult)
		}
	}
	if len(failures) > 0 {
		fmt.Println("\nFailures:")
		for _, failure := range failures {
			fmt.Printf("  %s %s: %s\n", batchStatusEmoji(failure), filepath.Base(failure.Filename), failure.Reason)
		}
	}
}

// batchStatusEmoji returns an emoji for a result's status.
func batchStatusEmoji(result models.AssetResult) string {
	switch {
	case !result.Success:
		return "❌"
	case len(result.Candidates) == 0:
		return "⚠️"
	default:
		return "✅"
	}
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"llmap/internal/config"
	"llmap/internal/logger"
	"llmap/pkg/models"
	"llmap/pkg/services"
)

var processCmd = &cobra.Command{
	Use:   "process [image-file]",
	Short: "Extract and geocode locations from a single image",
	Long: `Process one image through the full pipeline: content classification,
OCR with engine fallback, text normalization, location extraction, and
geocoding.

OCR engines are probed in order of suitability for the image; unavailable
engines are skipped. Use --engine to force a specific one.

Optional environment variables:
  GOOGLE_MAPS_API_KEY            - Google Maps geocoding (primary provider)
  NOMINATIM_BASE_URL             - Nominatim endpoint (fallback provider)
  OPENAI_API_KEY                 - LLM query enhancement for OCR-mangled text
  GOOGLE_APPLICATION_CREDENTIALS - Google Cloud Vision / Document AI
  DOCAI_PROCESSOR_ID             - Document AI processor for document scans
  GEOCODE_CACHE_DB               - DuckDB file for the persistent geocode cache`,
	Example: `  # Process a screenshot and print the report
  llmap process screenshot.png

  # Force tesseract and skip geocoding
  llmap process photo.jpg --engine tesseract --geocode=false

  # Geocode with a region hint and save JSON
  llmap process trail-sign.png --region "Washington State" --json -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("engine", "", "Force a specific OCR engine (tesseract, vision, docai)")
	processCmd.Flags().String("content-type", "", "Declare the content type instead of detecting it")
	processCmd.Flags().String("language", "", "Language hint for OCR (e.g. en, zh)")
	processCmd.Flags().Bool("geocode", true, "Resolve extracted locations to coordinates")
	processCmd.Flags().String("region", "", "Region hint appended to ambiguous geocoding queries")
	processCmd.Flags().Bool("json", false, "Output as JSON")
	processCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	processCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	engine, _ := cmd.Flags().GetString("engine")
	contentType, _ := cmd.Flags().GetString("content-type")
	language, _ := cmd.Flags().GetString("language")
	geocode, _ := cmd.Flags().GetBool("geocode")
	region, _ := cmd.Flags().GetString("region")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	log.Info().
		Str("file", imagePath).
		Str("engine", engine).
		Bool("geocode", geocode).
		Str("region", region).
		Msg("Starting image processing")

	if err := validateImageFile(imagePath, log); err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	service, _, err := createPipelineService(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := service.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close pipeline service")
		}
	}()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", imagePath).
			Msg("Failed to read image file")
		return fmt.Errorf("failed to read image file: %w", err)
	}

	asset := models.NewAsset(imagePath, data)
	result := service.ProcessImage(ctx, asset, services.ProcessOptions{
		Engine:          engine,
		ContentType:     models.ContentType(contentType),
		LanguageHint:    language,
		EnableGeocoding: geocode,
		RegionHint:      region,
	})

	log.Info().
		Bool("success", result.Success).
		Str("engine", result.Engine).
		Int("candidates", len(result.Candidates)).
		Int("geocoded", len(result.Geocoded)).
		Dur("duration", result.Duration).
		Msg("Image processing completed")

	return outputAssetResult(result, outputPath, jsonOutput, log)
}

// validateImageFile checks that the path exists and is a non-empty regular file.
func validateImageFile(imagePath string, log zerolog.Logger) error {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Image file not found")
			return fmt.Errorf("image file not found: %s", imagePath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Permission denied accessing image file")
			return fmt.Errorf("permission denied accessing image file: %s", imagePath)
		}
		return fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", imagePath).
			Msg("Path is not a regular file")
		return fmt.Errorf("path is not a regular file: %s", imagePath)
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", imagePath).
			Msg("Image file is empty")
		return fmt.Errorf("image file is empty: %s", imagePath)
	}

	if !hasImageExtension(imagePath) {
		log.Warn().
			Str("file", imagePath).
			Msg("File does not have a common image extension")
	}

	return nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}

// createPipelineService loads the configuration and assembles the pipeline.
func createPipelineService(ctx context.Context, log zerolog.Logger) (services.PipelineService, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	service, err := services.NewPipelineService(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create pipeline service")
		return nil, nil, fmt.Errorf("failed to create pipeline service: %w", err)
	}

	log.Debug().Msg("Pipeline service created successfully")
	return service, cfg, nil
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

func hasImageExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// outputAssetResult formats and outputs a single asset result.
func outputAssetResult(result models.AssetResult, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		outputData = data
	} else {
		outputData = []byte(formatAssetResult(result))
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("Results written to file")
		return nil
	}

	if _, err := os.Stdout.Write(outputData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	if !jsonOutput {
		fmt.Println()
	}

	return nil
}

// formatAssetResult renders a human-readable report for one asset.
func formatAssetResult(result models.AssetResult) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("=== %s ===\n", result.Filename))
	if !result.Success {
		output.WriteString(fmt.Sprintf("Status: failed (%s)\n", result.Reason))
		return output.String()
	}

	output.WriteString(fmt.Sprintf("Content type: %s\n", result.ContentType))
	output.WriteString(fmt.Sprintf("Language: %s\n", result.Language))
	output.WriteString(fmt.Sprintf("Engine: %s\n", result.Engine))
	output.WriteString(fmt.Sprintf("OCR confidence: %.1f%%\n", result.MeanConfidence*100))
	output.WriteString(fmt.Sprintf("Processing time: %v\n", result.Duration))

	if len(result.Candidates) > 0 {
		output.WriteString("\nExtracted locations:\n")
		for _, candidate := range result.Candidates {
			output.WriteString(fmt.Sprintf("  - %s (%s, %.2f)\n", candidate.Text, candidate.Kind, candidate.Confidence))
		}
	}

	if len(result.Geocoded) > 0 {
		output.WriteString("\nGeocoded:\n")
		for _, location := range result.Geocoded {
			output.WriteString(fmt.Sprintf("  - %s: %.6f, %.6f (%.2f via %s)\n",
				location.Text, location.Latitude, location.Longitude, location.GeoConfidence, location.Provider))
			if location.DisplayName != "" {
				output.WriteString(fmt.Sprintf("    %s\n", location.DisplayName))
			}
		}
	}

	if len(result.Ungeocoded) > 0 {
		output.WriteString("\nNot geocoded:\n")
		for _, candidate := range result.Ungeocoded {
			output.WriteString(fmt.Sprintf("  - %s (%s)\n", candidate.Text, candidate.Reason))
		}
	}

	if len(result.Ratings) > 0 {
		output.WriteString("\nRatings:\n")
		for _, rating := range result.Ratings {
			output.WriteString(fmt.Sprintf("  - %.1f/%.0f (%q)\n", rating.Value, rating.Scale, rating.Raw))
		}
	}

	contact := result.Contact
	if len(contact.Phones)+len(contact.Emails)+len(contact.URLs)+len(contact.Hours) > 0 {
		output.WriteString("\nContact details:\n")
		for _, phone := range contact.Phones {
			output.WriteString(fmt.Sprintf("  Phone: %s\n", phone))
		}
		for _, email := range contact.Emails {
			output.WriteString(fmt.Sprintf("  Email: %s\n", email))
		}
		for _, url := range contact.URLs {
			output.WriteString(fmt.Sprintf("  URL: %s\n", url))
		}
		for _, hours := range contact.Hours {
			output.WriteString(fmt.Sprintf("  Hours: %s\n", hours))
		}
	}

	if len(result.CleanText) > 0 {
		output.WriteString("\n=== Recognized Text ===\n\n")
		output.WriteString(result.CleanText)
		output.WriteString("\n")
	}

	return output.String()
}

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"llmap/internal/logger"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List OCR engines and their availability",
	Long: `Probe each configured OCR engine and report whether it is usable.

Tesseract requires the native library and language data. Google Cloud Vision
and Document AI require Google Cloud credentials; Document AI additionally
needs a processor configured via DOCAI_PROJECT_ID and DOCAI_PROCESSOR_ID.`,
	Example: `  # Show engine availability
  llmap engines

  # Machine-readable listing
  llmap engines --json`,
	RunE: runEngines,
}

func init() {
	rootCmd.AddCommand(enginesCmd)

	enginesCmd.Flags().Bool("json", false, "Output as JSON")
	enginesCmd.Flags().Int("timeout", 30, "Probe timeout in seconds")
}

func runEngines(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("engines")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

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

	statuses := service.EngineStatus(ctx)

	if jsonOutput {
		data, marshalErr := json.MarshalIndent(statuses, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("failed to create JSON output: %w", marshalErr)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("OCR engines:")
	for _, status := range statuses {
		marker := "❌"
		if status.Available {
			marker = "✅"
		}
		fmt.Printf("  %s %s", marker, status.Name)
		if len(status.Languages) > 0 {
			fmt.Printf(" (languages: %s)", strings.Join(status.Languages, ", "))
		}
		fmt.Println()
	}

	return nil
}

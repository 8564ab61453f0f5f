package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"llmap/internal/logger"
	"llmap/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the HTTP API for the pipeline.

Routes:
  GET  /api/health         - service health
  GET  /api/engines        - OCR engine availability
  POST /api/process-image  - process one uploaded image
  POST /api/process-batch  - process up to MAX_BATCH_SIZE uploaded images

Optional environment variables:
  SERVER_ADDR    - Listen address (default: :8000)
  MAX_BATCH_SIZE - Maximum files per batch request (default: 10)`,
	Example: `  # Serve on the default address
  llmap serve

  # Serve on a custom port
  llmap serve --addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides SERVER_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addrFlag, _ := cmd.Flags().GetString("addr")

	ctx := context.Background()
	service, cfg, err := createPipelineService(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := service.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close pipeline service")
		}
	}()

	addr := cfg.ServerAddr
	if addrFlag != "" {
		addr = addrFlag
	}

	log.Info().
		Str("addr", addr).
		Int("max_batch", cfg.MaxBatchSize).
		Msg("Starting API server")

	srv := server.NewServer(service, cfg.MaxBatchSize)
	if err := srv.Run(addr); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

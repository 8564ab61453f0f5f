package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"llmap/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "llmap",
	Short: "llmap - extract and geocode locations from images",
	Long: `llmap reads text out of images (screenshots, maps, posters, scene photos),
extracts the location names it finds, and resolves them to coordinates.

Images pass through a pipeline of content classification, OCR with engine
fallback, text normalization, location extraction, and geocoding. Results
are available from the command line or over an HTTP API.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("llmap executed")

		fmt.Println("llmap - extract and geocode locations from images")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

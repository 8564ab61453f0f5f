package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"llmap/internal/evaluate"
	"llmap/internal/logger"
	"llmap/pkg/models"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score pipeline results against ground truth",
	Long: `Compare extracted locations from a batch run against a ground-truth file
and report precision, recall and F1 per asset and in aggregate.

The results file is the JSON written by 'llmap batch --output'. The ground
truth file maps image filenames to their expected locations and text
fragments; both JSON and YAML are accepted.`,
	Example: `  # Score a batch run
  llmap evaluate --results results.json --truth ground_truth.yaml

  # Looser matching
  llmap evaluate --results results.json --truth truth.json --match-threshold 0.4`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().String("results", "", "Results JSON produced by 'llmap batch --output' [REQUIRED]")
	evaluateCmd.Flags().String("truth", "", "Ground truth file (JSON or YAML) [REQUIRED]")
	evaluateCmd.Flags().Float64("match-threshold", 0.5, "Minimum similarity for a match")
	evaluateCmd.Flags().Float64("exact-threshold", 0.8, "Similarity at which a match counts as exact")
	evaluateCmd.Flags().Bool("json", false, "Output as JSON")

	evaluateCmd.MarkFlagRequired("results")
	evaluateCmd.MarkFlagRequired("truth")
}

// assetEvaluation is the per-asset section of the evaluation report.
type assetEvaluation struct {
	Filename   string                   `json:"filename"`
	Comparison models.ComparisonResult  `json:"comparison"`
	Substrings evaluate.SubstringResult `json:"substrings"`
}

// evaluationReport is the JSON output structure when --json is used.
type evaluationReport struct {
	Assets    []assetEvaluation       `json:"assets"`
	Aggregate models.ComparisonResult `json:"aggregate"`
	Skipped   []string                `json:"skipped,omitempty"` // assets without a ground truth entry
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("evaluate")

	resultsPath, _ := cmd.Flags().GetString("results")
	truthPath, _ := cmd.Flags().GetString("truth")
	matchThreshold, _ := cmd.Flags().GetFloat64("match-threshold")
	exactThreshold, _ := cmd.Flags().GetFloat64("exact-threshold")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	log.Info().
		Str("results", resultsPath).
		Str("truth", truthPath).
		Float64("match_threshold", matchThreshold).
		Float64("exact_threshold", exactThreshold).
		Msg("Starting evaluation")

	batchResult, err := loadBatchResults(resultsPath)
	if err != nil {
		log.Error().Err(err).Str("file", resultsPath).Msg("Failed to load results")
		return fmt.Errorf("failed to load results: %w", err)
	}

	truth, err := evaluate.LoadGroundTruth(truthPath)
	if err != nil {
		log.Error().Err(err).Str("file", truthPath).Msg("Failed to load ground truth")
		return fmt.Errorf("failed to load ground truth: %w", err)
	}

	opts := evaluate.Options{
		MatchThreshold: matchThreshold,
		ExactThreshold: exactThreshold,
	}

	report := buildEvaluationReport(batchResult.Results, truth, opts)

	log.Info().
		Int("assets", len(report.Assets)).
		Int("skipped", len(report.Skipped)).
		Float64("precision", report.Aggregate.Precision).
		Float64("recall", report.Aggregate.Recall).
		Float64("f1", report.Aggregate.F1).
		Msg("Evaluation completed")

	if jsonOutput {
		data, marshalErr := json.MarshalIndent(report, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("failed to create JSON output: %w", marshalErr)
		}
		fmt.Println(string(data))
		return nil
	}

	printEvaluationReport(report)
	return nil
}

func loadBatchResults(path string) (models.BatchResult, error) {
	var batchResult models.BatchResult

	data, err := os.ReadFile(path)
	if err != nil {
		return batchResult, err
	}
	if err := json.Unmarshal(data, &batchResult); err != nil {
		return batchResult, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(batchResult.Results) == 0 {
		return batchResult, fmt.Errorf("no results found in %s", path)
	}

	return batchResult, nil
}

func buildEvaluationReport(results []models.AssetResult, truth *evaluate.GroundTruth, opts evaluate.Options) evaluationReport {
	var report evaluationReport
	var comparisons []models.ComparisonResult

	for _, result := range results {
		record, ok := truth.Lookup(result.Filename)
		if !ok {
			report.Skipped = append(report.Skipped, filepath.Base(result.Filename))
			continue
		}

		extracted := make([]string, 0, len(result.Candidates))
		for _, candidate := range result.Candidates {
			extracted = append(extracted, candidate.Text)
		}

		comparison := evaluate.Compare(extracted, record.ExpectedLocations, opts)
		comparisons = append(comparisons, comparison)

		report.Assets = append(report.Assets, assetEvaluation{
			Filename:   filepath.Base(result.Filename),
			Comparison: comparison,
			Substrings: evaluate.CheckSubstrings(record.ExpectedSubstrings, result.CleanText),
		})
	}

	sort.Slice(report.Assets, func(i, j int) bool {
		return report.Assets[i].Filename < report.Assets[j].Filename
	})

	report.Aggregate = evaluate.Merge(comparisons)
	return report
}

func printEvaluationReport(report evaluationReport) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("                 EVALUATION REPORT")
	fmt.Println(strings.Repeat("=", 60))

	for _, asset := range report.Assets {
		comparison := asset.Comparison
		fmt.Printf("\n%s\n", asset.Filename)
		fmt.Printf("  Precision: %.2f  Recall: %.2f  F1: %.2f\n",
			comparison.Precision, comparison.Recall, comparison.F1)

		for _, match := range comparison.Matches {
			fmt.Printf("  ✅ %q matched %q (%.2f, %s)\n",
				match.Truth.Text, match.Extracted, match.Score, match.Type)
		}
		for _, miss := range comparison.Misses {
			fmt.Printf("  ❌ missed %q\n", miss.Text)
		}
		for _, falsePositive := range comparison.FalsePositives {
			fmt.Printf("  ⚠️ unexpected %q\n", falsePositive)
		}

		if len(asset.Substrings.Found)+len(asset.Substrings.Missed) > 0 {
			fmt.Printf("  Text fragments: %d/%d found (%.0f%%)\n",
				len(asset.Substrings.Found),
				len(asset.Substrings.Found)+len(asset.Substrings.Missed),
				asset.Substrings.Accuracy*100)
			for _, missed := range asset.Substrings.Missed {
				fmt.Printf("    missing %q\n", missed)
			}
		}
	}

	if len(report.Skipped) > 0 {
		fmt.Printf("\nSkipped (no ground truth entry): %s\n", strings.Join(report.Skipped, ", "))
	}

	aggregate := report.Aggregate
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Aggregate over %d assets\n", len(report.Assets))
	fmt.Printf("  Matches: %d  Misses: %d  False positives: %d\n",
		len(aggregate.Matches), len(aggregate.Misses), len(aggregate.FalsePositives))
	fmt.Printf("  Precision: %.2f  Recall: %.2f  F1: %.2f\n",
		aggregate.Precision, aggregate.Recall, aggregate.F1)
	fmt.Println(strings.Repeat("=", 60))
}

package evaluate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"llmap/pkg/models"
)

// TruthRecord holds the expected annotations for one asset.
type TruthRecord struct {
	ExpectedLocations  []models.GroundTruthRecord `json:"expected_locations" yaml:"expected_locations"`
	ExpectedSubstrings []string                   `json:"expected_text_contains" yaml:"expected_text_contains"`
	ContentType        string                     `json:"content_type" yaml:"content_type"`
	Difficulty         string                     `json:"ocr_difficulty" yaml:"ocr_difficulty"`
}

// GroundTruth maps asset filenames to their expected annotations.
type GroundTruth struct {
	Images map[string]TruthRecord `json:"images" yaml:"images"`
}

// Lookup returns the record for an asset path, matching on the base name.
func (g *GroundTruth) Lookup(assetPath string) (TruthRecord, bool) {
	record, ok := g.Images[filepath.Base(assetPath)]
	return record, ok
}

// LoadGroundTruth reads a ground truth file. The format is chosen by
// extension: .yaml/.yml parse as YAML, everything else as JSON.
func LoadGroundTruth(path string) (*GroundTruth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ground truth file: %w", err)
	}

	var truth GroundTruth
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &truth); err != nil {
			return nil, fmt.Errorf("parsing ground truth YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &truth); err != nil {
			return nil, fmt.Errorf("parsing ground truth JSON: %w", err)
		}
	}

	if len(truth.Images) == 0 {
		return nil, fmt.Errorf("ground truth file %s contains no image records", path)
	}

	return &truth, nil
}

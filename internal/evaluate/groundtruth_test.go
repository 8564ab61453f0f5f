package evaluate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmap/pkg/models"
)

func writeTruthFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadGroundTruthYAML(t *testing.T) {
	path := writeTruthFile(t, "truth.yaml", `
images:
  daves.png:
    expected_locations:
      - text: "Dave's Hot Chicken"
        type: business
      - text: "Berkeley, CA"
        type: city
    expected_text_contains:
      - "Dave's"
      - "Hot Chicken"
    content_type: business_listing
    ocr_difficulty: easy
`)

	truth, err := LoadGroundTruth(path)
	require.NoError(t, err)

	record, ok := truth.Lookup("/some/dir/daves.png")
	require.True(t, ok)
	require.Len(t, record.ExpectedLocations, 2)
	assert.Equal(t, "Dave's Hot Chicken", record.ExpectedLocations[0].Text)
	assert.Equal(t, models.KindBusiness, record.ExpectedLocations[0].Kind)
	assert.Equal(t, []string{"Dave's", "Hot Chicken"}, record.ExpectedSubstrings)
	assert.Equal(t, "business_listing", record.ContentType)
	assert.Equal(t, "easy", record.Difficulty)
}

func TestLoadGroundTruthJSON(t *testing.T) {
	path := writeTruthFile(t, "truth.json", `{
		"images": {
			"park.jpg": {
				"expected_locations": [
					{"text": "Olympic National Park", "type": "landmark"}
				],
				"expected_text_contains": ["Olympic"]
			}
		}
	}`)

	truth, err := LoadGroundTruth(path)
	require.NoError(t, err)

	record, ok := truth.Lookup("park.jpg")
	require.True(t, ok)
	assert.Equal(t, "Olympic National Park", record.ExpectedLocations[0].Text)
	assert.Equal(t, models.KindLandmark, record.ExpectedLocations[0].Kind)
}

func TestLoadGroundTruthMissingFile(t *testing.T) {
	_, err := LoadGroundTruth(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading ground truth file")
}

func TestLoadGroundTruthEmpty(t *testing.T) {
	path := writeTruthFile(t, "empty.json", `{"images": {}}`)

	_, err := LoadGroundTruth(path)
	assert.ErrorContains(t, err, "contains no image records")
}

func TestLoadGroundTruthMalformedYAML(t *testing.T) {
	path := writeTruthFile(t, "bad.yaml", "images: [not: a: mapping")

	_, err := LoadGroundTruth(path)
	assert.Error(t, err)
}

func TestLookupMatchesBaseName(t *testing.T) {
	truth := &GroundTruth{Images: map[string]TruthRecord{
		"photo.png": {ContentType: "social_media"},
	}}

	_, ok := truth.Lookup("photo.png")
	assert.True(t, ok)

	_, ok = truth.Lookup("/batch/run/photo.png")
	assert.True(t, ok)

	_, ok = truth.Lookup("other.png")
	assert.False(t, ok)
}

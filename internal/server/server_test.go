package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmap/internal/ocr"
	"llmap/pkg/models"
	"llmap/pkg/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeService returns canned results and records what it was called with.
type fakeService struct {
	statuses    []ocr.EngineStatus
	result      models.AssetResult
	batchResult models.BatchResult
	batchErr    error

	lastAsset  models.Asset
	lastOpts   services.ProcessOptions
	lastAssets []models.Asset
	lastBatch  services.BatchOptions
}

func (f *fakeService) ProcessImage(ctx context.Context, asset models.Asset, opts services.ProcessOptions) models.AssetResult {
	f.lastAsset = asset
	f.lastOpts = opts
	return f.result
}

func (f *fakeService) ProcessBatch(ctx context.Context, assets []models.Asset, opts services.BatchOptions) (models.BatchResult, error) {
	f.lastAssets = assets
	f.lastBatch = opts
	return f.batchResult, f.batchErr
}

func (f *fakeService) EngineStatus(ctx context.Context) []ocr.EngineStatus {
	return f.statuses
}

func (f *fakeService) Close() error { return nil }

// uploadRequest builds a multipart POST with one part per file name under the
// given field, plus any extra form fields.
func uploadRequest(t *testing.T, target, field string, names []string, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake image bytes"))
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, w.WriteField(key, value))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeService{}, 0)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.NotEmpty(t, body.Timestamp)
}

func TestListEngines(t *testing.T) {
	s := NewServer(&fakeService{
		statuses: []ocr.EngineStatus{
			{Name: "tesseract", Available: false},
			{Name: "vision", Available: true, Languages: []string{"english", "chinese"}},
		},
	}, 0)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/engines", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Engines     []ocr.EngineStatus `json:"engines"`
		Default     string             `json:"default"`
		Recommended string             `json:"recommended"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Engines, 2)
	assert.Equal(t, "auto", body.Default)
	assert.Equal(t, "vision", body.Recommended)
}

func TestProcessImageRequiresFile(t *testing.T) {
	s := NewServer(&fakeService{}, 0)

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/process-image", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file field is required", errorMessage(t, rec))
}

func TestProcessImagePassesUploadAndOptions(t *testing.T) {
	fake := &fakeService{
		result: models.AssetResult{Filename: "photo.png", Success: true},
	}
	s := NewServer(fake, 0)

	req := uploadRequest(t, "/api/process-image", "file", []string{"photo.png"}, map[string]string{
		"engine":           "vision",
		"content_type":     "map_screenshot",
		"language":         "english",
		"enable_geocoding": "false",
		"region":           "Seattle, WA",
	})
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result models.AssetResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "photo.png", result.Filename)

	assert.Equal(t, "photo.png", fake.lastAsset.Filename)
	assert.Equal(t, []byte("fake image bytes"), fake.lastAsset.Data)
	assert.Equal(t, services.ProcessOptions{
		Engine:          "vision",
		ContentType:     models.ContentMapScreenshot,
		LanguageHint:    "english",
		EnableGeocoding: false,
		RegionHint:      "Seattle, WA",
	}, fake.lastOpts)
}

func TestProcessImageDefaults(t *testing.T) {
	fake := &fakeService{}
	s := NewServer(fake, 0)

	req := uploadRequest(t, "/api/process-image", "file", []string{"photo.png"}, map[string]string{
		"content_type": "auto",
	})
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fake.lastOpts.EnableGeocoding)
	assert.Empty(t, fake.lastOpts.ContentType)
	assert.Empty(t, fake.lastOpts.Engine)
}

func TestProcessBatchRequiresFiles(t *testing.T) {
	s := NewServer(&fakeService{}, 0)

	req := uploadRequest(t, "/api/process-batch", "files", nil, map[string]string{"engine": "auto"})
	rec := serve(s, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "files field is required", errorMessage(t, rec))
}

func TestProcessBatchCapsFileCount(t *testing.T) {
	s := NewServer(&fakeService{}, 2)

	req := uploadRequest(t, "/api/process-batch", "files", []string{"a.png", "b.png", "c.png"}, nil)
	rec := serve(s, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "batch processing supports a maximum of 2 files", errorMessage(t, rec))
}

func TestProcessBatchPassesAssets(t *testing.T) {
	fake := &fakeService{
		batchResult: models.BatchResult{
			Summary: models.BatchSummary{Total: 2, Succeeded: 2},
		},
	}
	s := NewServer(fake, 0)

	req := uploadRequest(t, "/api/process-batch", "files", []string{"a.png", "b.png"}, map[string]string{
		"region": "Berkeley, CA",
	})
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result models.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Summary.Total)

	require.Len(t, fake.lastAssets, 2)
	assert.Equal(t, "a.png", fake.lastAssets[0].Filename)
	assert.Equal(t, "b.png", fake.lastAssets[1].Filename)
	assert.Equal(t, "Berkeley, CA", fake.lastBatch.RegionHint)
	assert.Equal(t, 10, fake.lastBatch.MaxBatch)
	assert.True(t, fake.lastBatch.EnableGeocoding)
}

func TestProcessBatchReportsServiceError(t *testing.T) {
	fake := &fakeService{batchErr: errors.New("runner not ready")}
	s := NewServer(fake, 0)

	req := uploadRequest(t, "/api/process-batch", "files", []string{"a.png"}, nil)
	rec := serve(s, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "runner not ready", errorMessage(t, rec))
}

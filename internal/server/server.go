// Package server exposes the pipeline over HTTP. Pipeline failures never
// become 500s: every asset gets a well-formed JSON result with success=false
// and a reason instead.
package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"llmap/internal/logger"
	"llmap/pkg/models"
	"llmap/pkg/services"
)

// Server serves the pipeline API.
type Server struct {
	service  services.PipelineService
	maxBatch int
	log      zerolog.Logger
}

// NewServer creates a server over a pipeline service. maxBatch caps the
// number of files per batch request; zero or negative selects the default
// of 10.
func NewServer(service services.PipelineService, maxBatch int) *Server {
	if maxBatch <= 0 {
		maxBatch = 10
	}
	return &Server{
		service:  service,
		maxBatch: maxBatch,
		log:      logger.WithComponent("http-server"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/api/health", s.health)
	r.GET("/api/engines", s.listEngines)
	r.POST("/api/process-image", s.processImage)
	r.POST("/api/process-batch", s.processBatch)

	return r
}

// Run starts the server on addr and blocks.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("Starting HTTP server")
	return s.Router().Run(addr)
}

func (s *Server) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) listEngines(ctx *gin.Context) {
	statuses := s.service.EngineStatus(ctx.Request.Context())

	recommended := ""
	for _, status := range statuses {
		if status.Available {
			recommended = status.Name
			break
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"engines":     statuses,
		"default":     "auto",
		"recommended": recommended,
	})
}

func (s *Server) processImage(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})

		return
	}

	asset, err := assetFromUpload(fileHeader)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("reading upload: %v", err)})

		return
	}

	result := s.service.ProcessImage(ctx.Request.Context(), asset, services.ProcessOptions{
		Engine:          ctx.PostForm("engine"),
		ContentType:     contentTypeForm(ctx.PostForm("content_type")),
		LanguageHint:    ctx.PostForm("language"),
		EnableGeocoding: boolForm(ctx.PostForm("enable_geocoding"), true),
		RegionHint:      ctx.PostForm("region"),
	})

	ctx.JSON(http.StatusOK, result)
}

func (s *Server) processBatch(ctx *gin.Context) {
	form, err := ctx.MultipartForm()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("parsing multipart form: %v", err)})

		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "files field is required"})

		return
	}
	if len(files) > s.maxBatch {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("batch processing supports a maximum of %d files", s.maxBatch),
		})

		return
	}

	assets := make([]models.Asset, 0, len(files))
	for _, fileHeader := range files {
		asset, err := assetFromUpload(fileHeader)
		if err != nil {
			// The pipeline reports the empty asset as a per-file failure.
			s.log.Warn().Err(err).Str("file", fileHeader.Filename).Msg("Failed to read upload")
			asset = models.NewAsset(fileHeader.Filename, nil)
		}
		assets = append(assets, asset)
	}

	result, err := s.service.ProcessBatch(ctx.Request.Context(), assets, services.BatchOptions{
		ProcessOptions: services.ProcessOptions{
			Engine:          ctx.PostForm("engine"),
			ContentType:     contentTypeForm(ctx.PostForm("content_type")),
			LanguageHint:    ctx.PostForm("language"),
			EnableGeocoding: boolForm(ctx.PostForm("enable_geocoding"), true),
			RegionHint:      ctx.PostForm("region"),
		},
		MaxBatch: s.maxBatch,
	})
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, result)
}

func assetFromUpload(fileHeader *multipart.FileHeader) (models.Asset, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return models.Asset{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.Asset{}, err
	}

	return models.NewAsset(fileHeader.Filename, data), nil
}

// contentTypeForm maps the form value to a content type. "auto" and empty
// both mean detect.
func contentTypeForm(value string) models.ContentType {
	if value == "" || value == "auto" {
		return ""
	}
	return models.ContentType(value)
}

func boolForm(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"llmap/internal/logger"
)

// docaiTimeout bounds a single Document AI call.
const docaiTimeout = 60 * time.Second

// DocAIConfig holds the processor coordinates for the Document AI engine.
type DocAIConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

// DocAIEngine recognizes text with a Google Document AI OCR processor. It
// handles dense and low-quality screenshots better than plain Vision but
// needs a provisioned processor, so it sits last in the default order.
type DocAIEngine struct {
	client  *documentai.DocumentProcessorClient
	config  DocAIConfig
	initErr error
	log     zerolog.Logger
}

// NewDocAIEngine creates the Document AI engine. The processor is addressed
// by DOCAI_PROJECT_ID, DOCAI_LOCATION and DOCAI_PROCESSOR_ID; credentials
// follow the same chain as the Vision engine. Missing configuration does not
// fail construction; the engine reports itself unavailable instead.
func NewDocAIEngine(ctx context.Context, config DocAIConfig) *DocAIEngine {
	e := &DocAIEngine{
		config: config,
		log:    logger.WithComponent("documentai-ocr"),
	}

	if config.ProjectID == "" || config.ProcessorID == "" {
		e.initErr = errors.New("DOCAI_PROJECT_ID and DOCAI_PROCESSOR_ID are not configured")
		e.log.Debug().Msg("Document AI engine not configured")
		return e
	}
	if e.config.Location == "" {
		e.config.Location = "us"
	}

	var clientOptions []option.ClientOption

	// Regional processors need a regional endpoint.
	if e.config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", e.config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			err = ErrMissingCredentials
		}
		e.initErr = err
		e.log.Warn().Err(err).Msg("Document AI engine disabled")
		return e
	}

	e.client = client
	return e
}

// NewDocAIEngineWithClient creates the engine with an explicit client and
// config (for testing).
func NewDocAIEngineWithClient(config DocAIConfig, client *documentai.DocumentProcessorClient) *DocAIEngine {
	return &DocAIEngine{
		client: client,
		config: config,
		log:    logger.WithComponent("documentai-ocr"),
	}
}

// Name identifies the engine in logs and results.
func (e *DocAIEngine) Name() string {
	return "docai"
}

// IsAvailable reports whether a processor is configured and a client exists.
func (e *DocAIEngine) IsAvailable(ctx context.Context) bool {
	return e.client != nil
}

// SupportedLanguages lists the script labels the OCR processor handles.
func (e *DocAIEngine) SupportedLanguages() []string {
	return []string{"english", "chinese", "japanese", "korean"}
}

// Recognize extracts text line regions from an image via the OCR processor.
// The processor detects languages itself, so script hints are not forwarded.
func (e *DocAIEngine) Recognize(ctx context.Context, imageData []byte, languages []string) ([]Region, error) {
	const op = "Recognize"

	if e.client == nil {
		return nil, NewOCRError(op, e.Name(), ErrEngineUnavailable, e.disabledReason())
	}
	if len(imageData) > maxImageSize {
		return nil, NewOCRError(op, e.Name(), ErrImageTooLarge, fmt.Sprintf("image size: %d bytes", len(imageData)))
	}

	processCtx, cancel := context.WithTimeout(ctx, docaiTimeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: e.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  imageData,
				MimeType: http.DetectContentType(imageData),
			},
		},
	}

	resp, err := e.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, e.classifyError(op, err)
	}

	doc := resp.GetDocument()
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	var regions []Region
	for _, page := range doc.Pages {
		var pageHeight float32
		if dim := page.GetDimension(); dim != nil {
			pageHeight = dim.GetHeight()
		}
		for _, line := range page.Lines {
			layout := line.GetLayout()
			text := layoutText(doc.Text, layout)
			if text == "" {
				continue
			}
			top, bottom := docaiVerticalSpan(layout.GetBoundingPoly(), pageHeight)
			regions = append(regions, Region{
				Text:       text,
				Confidence: clamp01(float64(layout.GetConfidence())),
				Top:        top,
				Bottom:     bottom,
			})
		}
	}

	if len(regions) == 0 {
		for _, line := range strings.Split(doc.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			regions = append(regions, Region{Text: line, Confidence: 0, Top: -1, Bottom: -1})
		}
	}

	return regions, nil
}

// Close closes the underlying Document AI client.
func (e *DocAIEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *DocAIEngine) disabledReason() string {
	if e.initErr != nil {
		return e.initErr.Error()
	}
	return "no client"
}

// processorName constructs the full processor resource name.
func (e *DocAIEngine) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		e.config.ProjectID, e.config.Location, e.config.ProcessorID)
}

// classifyError maps Document AI errors onto the package error taxonomy.
func (e *DocAIEngine) classifyError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return NewOCRError(op, e.Name(), ErrMissingCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "RESOURCE_EXHAUSTED") || strings.Contains(errStr, "QUOTA_EXCEEDED"):
		return NewOCRError(op, e.Name(), ErrEngineUnavailable, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND"):
		return NewOCRError(op, e.Name(), ErrEngineUnavailable, fmt.Sprintf("processor not found: %s", e.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return NewOCRError(op, e.Name(), ErrUnsupportedImage, "image format not supported or corrupted")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, e.Name(), context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapOCRError(op, e.Name(), context.Canceled, "processing was canceled")
	default:
		return WrapOCRError(op, e.Name(), err, "Document AI error")
	}
}

// layoutText resolves a layout's text anchor against the document text.
// Segment indices are byte offsets.
func layoutText(fullText string, layout *documentaipb.Document_Page_Layout) string {
	if layout == nil || layout.TextAnchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range layout.TextAnchor.TextSegments {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 || end > len(fullText) || start >= end {
			continue
		}
		sb.WriteString(fullText[start:end])
	}
	return strings.TrimSpace(sb.String())
}

// docaiVerticalSpan computes the normalized vertical extent of a bounding
// polygon, preferring normalized vertices over pixel vertices.
func docaiVerticalSpan(poly *documentaipb.BoundingPoly, pageHeight float32) (float64, float64) {
	if poly == nil {
		return -1, -1
	}

	if nv := poly.GetNormalizedVertices(); len(nv) > 0 {
		minY, maxY := 1.0, 0.0
		for _, v := range nv {
			y := float64(v.GetY())
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
		if maxY >= minY {
			return clamp01(minY), clamp01(maxY)
		}
	}

	if vs := poly.GetVertices(); len(vs) > 0 && pageHeight > 0 {
		minY, maxY := vs[0].GetY(), vs[0].GetY()
		for _, v := range vs[1:] {
			if v.GetY() < minY {
				minY = v.GetY()
			}
			if v.GetY() > maxY {
				maxY = v.GetY()
			}
		}
		return clamp01(float64(minY) / float64(pageHeight)), clamp01(float64(maxY) / float64(pageHeight))
	}

	return -1, -1
}

package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"llmap/internal/logger"
)

// visionLanguageHints maps script labels to Vision API language hints.
var visionLanguageHints = map[string][]string{
	"english":  {"en"},
	"chinese":  {"zh"},
	"japanese": {"ja"},
	"korean":   {"ko"},
	"mixed":    {"zh", "en"},
}

// VisionEngine recognizes text with the Google Cloud Vision API using
// document text detection, which preserves block and paragraph structure.
type VisionEngine struct {
	client  *vision.ImageAnnotatorClient
	initErr error
	log     zerolog.Logger
}

// NewVisionEngine creates the Vision engine with credentials from environment.
// It checks GOOGLE_CREDENTIALS JSON first, then GOOGLE_APPLICATION_CREDENTIALS,
// then application default credentials. A failed credential lookup does not
// fail construction; the engine reports itself unavailable so the coordinator
// can fall back to another backend.
func NewVisionEngine(ctx context.Context) *VisionEngine {
	e := &VisionEngine{log: logger.WithComponent("vision-ocr")}

	var client *vision.ImageAnnotatorClient
	var err error
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			err = ErrMissingCredentials
		}
	}
	if err != nil {
		e.initErr = err
		e.log.Warn().Err(err).Msg("Vision engine disabled")
		return e
	}

	e.client = client
	return e
}

// NewVisionEngineWithClient creates the engine with an explicit client (for testing).
func NewVisionEngineWithClient(client *vision.ImageAnnotatorClient) *VisionEngine {
	return &VisionEngine{
		client: client,
		log:    logger.WithComponent("vision-ocr"),
	}
}

// Name identifies the engine in logs and results.
func (e *VisionEngine) Name() string {
	return "vision"
}

// IsAvailable reports whether a Vision client was created at startup.
func (e *VisionEngine) IsAvailable(ctx context.Context) bool {
	return e.client != nil
}

// SupportedLanguages lists the script labels the Vision API handles.
func (e *VisionEngine) SupportedLanguages() []string {
	return []string{"english", "chinese", "japanese", "korean"}
}

// Recognize extracts text regions from an image. Lines are rebuilt from the
// symbol stream using detected breaks so CJK text is not re-spaced.
func (e *VisionEngine) Recognize(ctx context.Context, imageData []byte, languages []string) ([]Region, error) {
	const op = "Recognize"

	if e.client == nil {
		return nil, NewOCRError(op, e.Name(), ErrEngineUnavailable, e.disabledReason())
	}
	if len(imageData) > maxImageSize {
		return nil, NewOCRError(op, e.Name(), ErrImageTooLarge, fmt.Sprintf("image size: %d bytes", len(imageData)))
	}

	img := &visionpb.Image{Content: imageData}
	var ictx *visionpb.ImageContext
	if hints := visionHintsFor(languages); len(hints) > 0 {
		ictx = &visionpb.ImageContext{LanguageHints: hints}
	}

	annotation, err := e.client.DetectDocumentText(ctx, img, ictx)
	if err != nil {
		return nil, WrapOCRError(op, e.Name(), err, "Vision API call failed")
	}
	if annotation == nil || strings.TrimSpace(annotation.Text) == "" {
		return nil, nil
	}

	var regions []Region
	for _, page := range annotation.Pages {
		for _, block := range page.Blocks {
			for _, para := range block.Paragraphs {
				top, bottom := visionVerticalSpan(para.BoundingBox, page.Height)
				conf := clamp01(float64(para.Confidence))
				for _, line := range paragraphLines(para) {
					regions = append(regions, Region{
						Text:       line,
						Confidence: conf,
						Top:        top,
						Bottom:     bottom,
					})
				}
			}
		}
	}

	// Structure can be missing for tiny images; keep the flat text.
	if len(regions) == 0 {
		for _, line := range strings.Split(annotation.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			regions = append(regions, Region{Text: line, Confidence: 0, Top: -1, Bottom: -1})
		}
	}

	return regions, nil
}

// Close closes the underlying Vision client.
func (e *VisionEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *VisionEngine) disabledReason() string {
	if e.initErr != nil {
		return e.initErr.Error()
	}
	return "no client"
}

// visionHintsFor maps script labels to BCP-47 language hints, deduplicated.
func visionHintsFor(languages []string) []string {
	seen := make(map[string]bool)
	var hints []string
	for _, label := range languages {
		for _, hint := range visionLanguageHints[strings.ToLower(label)] {
			if !seen[hint] {
				seen[hint] = true
				hints = append(hints, hint)
			}
		}
	}
	return hints
}

// paragraphLines reconstructs text lines from the paragraph's symbol stream.
// Vision reports whitespace as detected breaks rather than characters.
func paragraphLines(para *visionpb.Paragraph) []string {
	var lines []string
	var sb strings.Builder

	flush := func() {
		if line := strings.TrimSpace(sb.String()); line != "" {
			lines = append(lines, line)
		}
		sb.Reset()
	}

	for _, word := range para.Words {
		for _, sym := range word.Symbols {
			sb.WriteString(sym.Text)
			prop := sym.Property
			if prop == nil || prop.DetectedBreak == nil {
				continue
			}
			switch prop.DetectedBreak.Type {
			case visionpb.TextAnnotation_DetectedBreak_SPACE,
				visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
				sb.WriteString(" ")
			case visionpb.TextAnnotation_DetectedBreak_HYPHEN:
				sb.WriteString("-")
			case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE,
				visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
				flush()
			}
		}
	}
	flush()

	return lines
}

// visionVerticalSpan computes the normalized vertical extent of a bounding
// polygon. Document text detection returns pixel vertices, so the page
// height is needed to normalize them.
func visionVerticalSpan(poly *visionpb.BoundingPoly, pageHeight int32) (float64, float64) {
	if poly == nil {
		return -1, -1
	}

	if nv := poly.GetNormalizedVertices(); len(nv) > 0 {
		minY, maxY := 1.0, 0.0
		for _, v := range nv {
			y := float64(v.Y)
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
		minY, maxY := vs[0].Y, vs[0].Y
		for _, v := range vs[1:] {
			if v.Y < minY {
				minY = v.Y
			}
			if v.Y > maxY {
				maxY = v.Y
			}
		}
		return clamp01(float64(minY) / float64(pageHeight)), clamp01(float64(maxY) / float64(pageHeight))
	}

	return -1, -1
}

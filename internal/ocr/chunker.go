package ocr

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"llmap/internal/classify"
	"llmap/pkg/models"
)

const (
	// mergeLookahead caps how many neighbors a chunk absorbs in one pass.
	mergeLookahead = 3

	// mergeMaxRunes caps the combined length of merged chunks.
	mergeMaxRunes = 200

	// artifactChars are characters that dominate garbled recognizer output.
	artifactChars = "|{}[]()<>@#$%^&*"
)

// Layout patterns that assign a spatial context regardless of where the line
// sits on the screen.
var (
	timestampPattern = regexp.MustCompile(`^\d{1,2}:\d{2}`)
	dayPattern       = regexp.MustCompile(`^Day \d+`)
	bulletPattern    = regexp.MustCompile(`^\s*[-•*]\s+`)
	numberedPattern  = regexp.MustCompile(`^\s*\d+\.\s+`)
	labelPattern     = regexp.MustCompile(`^\s*[A-Z][a-z]+:`)
	phonePattern     = regexp.MustCompile(`\(\d{3}\)\s*\d{3}-\d{4}`)
	emailPattern     = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	streetPattern    = regexp.MustCompile(`(?i)\d+\s+[A-Za-z\s]+(?:St|Ave|Rd|Blvd|Dr|Ln|Way|Pl)\b`)
	cityStatePattern = regexp.MustCompile(`[A-Za-z\s]+,\s*[A-Z]{2}\s+\d{5}`)
)

// chunkKind is an internal content label; chunks only merge within a kind.
type chunkKind int

const (
	kindText chunkKind = iota
	kindTitle
	kindList
	kindContact
	kindAddress
)

type scoredChunk struct {
	chunk models.OCRChunk
	kind  chunkKind
}

// ChunkRegions turns raw engine regions into spatially labeled chunks.
// Regions are processed in reading order; lines within a region share the
// region's confidence and geometry. Chunk indexes are assigned after merging
// and are stable references for extraction provenance.
func ChunkRegions(regions []Region) []models.OCRChunk {
	type line struct {
		text   string
		region Region
	}
	var lines []line
	for _, r := range regions {
		for _, t := range strings.Split(r.Text, "\n") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			lines = append(lines, line{text: t, region: r})
		}
	}
	if len(lines) == 0 {
		return nil
	}

	total := len(lines)
	items := make([]scoredChunk, 0, total)
	for i, l := range lines {
		// Real geometry beats reading-order position when the engine has it.
		pos := float64(i) / float64(total)
		if l.region.HasGeometry() {
			pos = (l.region.Top + l.region.Bottom) / 2
		}
		items = append(items, scoredChunk{
			chunk: models.OCRChunk{
				Text:       l.text,
				Confidence: shapeConfidence(l.text, l.region.Confidence),
				Context:    spatialContext(l.text, pos),
				Language:   classify.DetectLanguage(l.text),
			},
			kind: lineKind(l.text),
		})
	}

	merged := mergeAdjacent(items)
	chunks := make([]models.OCRChunk, len(merged))
	for i := range merged {
		merged[i].chunk.Index = i
		chunks[i] = merged[i].chunk
	}
	return chunks
}

// spatialContext labels a line by content patterns first, then by vertical
// position. Street addresses read as body content wherever they appear.
func spatialContext(line string, pos float64) models.SpatialContext {
	switch {
	case timestampPattern.MatchString(line) || dayPattern.MatchString(line):
		return models.ContextHeader
	case bulletPattern.MatchString(line) || numberedPattern.MatchString(line) || labelPattern.MatchString(line):
		return models.ContextListItem
	case phonePattern.MatchString(line) || emailPattern.MatchString(line) || urlPattern.MatchString(line):
		return models.ContextContact
	case streetPattern.MatchString(line) || cityStatePattern.MatchString(line):
		return models.ContextBody
	case pos < 0.2 && utf8.RuneCountInString(line) <= 50:
		return models.ContextHeader
	case pos > 0.8:
		return models.ContextFooter
	default:
		return models.ContextBody
	}
}

// lineKind classifies line content for merge decisions.
func lineKind(line string) chunkKind {
	switch {
	case phonePattern.MatchString(line) || strings.Contains(line, "@") || urlPattern.MatchString(line):
		return kindContact
	case streetPattern.MatchString(line):
		return kindAddress
	case utf8.RuneCountInString(line) < 50 && isUpperLine(line):
		return kindTitle
	case bulletPattern.MatchString(line) || numberedPattern.MatchString(line):
		return kindList
	default:
		return kindText
	}
}

// shapeConfidence derives a chunk confidence from the engine's region
// confidence (0.7 when the engine reported none) adjusted for line quality.
func shapeConfidence(line string, engineConf float64) float64 {
	conf := 0.7
	if engineConf > 0 {
		conf = engineConf
	}

	n := utf8.RuneCountInString(line)
	if n >= 5 && n <= 100 {
		conf += 0.1
	} else if n < 3 {
		conf -= 0.3
	}

	if n > 0 {
		alnum := 0
		artifacts := 0
		for _, r := range line {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				alnum++
			}
			if strings.ContainsRune(artifactChars, r) {
				artifacts++
			}
		}
		conf += (float64(alnum)/float64(n) - 0.5) * 0.2
		if float64(artifacts) > float64(n)*0.3 {
			conf -= 0.2
		}
	}

	if conf < 0.1 {
		return 0.1
	}
	if conf > 1.0 {
		return 1.0
	}
	return conf
}

// mergeAdjacent joins neighboring chunks that share context and kind so
// related fragments (a business name and its rating line) stay together for
// extraction. Confidence of a merged chunk is the mean of its parts.
func mergeAdjacent(items []scoredChunk) []scoredChunk {
	var merged []scoredChunk
	i := 0
	for i < len(items) {
		current := items[i]
		baseLen := utf8.RuneCountInString(current.chunk.Text)
		texts := []string{current.chunk.Text}
		confSum := current.chunk.Confidence

		j := i + 1
		for j < len(items) && j < i+mergeLookahead {
			next := items[j]
			if next.chunk.Context != current.chunk.Context ||
				next.kind != current.kind ||
				baseLen+utf8.RuneCountInString(next.chunk.Text) >= mergeMaxRunes {
				break
			}
			texts = append(texts, next.chunk.Text)
			confSum += next.chunk.Confidence
			j++
		}

		if len(texts) > 1 {
			current.chunk.Text = strings.Join(texts, " ")
			current.chunk.Confidence = confSum / float64(len(texts))
		}
		merged = append(merged, current)
		i = j
	}
	return merged
}

// isUpperLine reports whether the line has cased letters and none lowercase.
func isUpperLine(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

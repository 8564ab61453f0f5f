// Package extract finds location mentions and supporting details in
// normalized OCR chunks. Extraction is rule-based: a registry of named
// matchers proposes candidates, and chunk-level evidence (noise, nearby
// ratings, known names) shifts their confidence before thresholding.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"llmap/internal/logger"
	"llmap/pkg/models"
)

const (
	// maxCandidates caps the candidate list per asset.
	maxCandidates = 20

	// minConfidence drops candidates the scoring could not support.
	minConfidence = 0.3
)

var (
	businessIndicator = regexp.MustCompile(`(?i)(?:Restaurant|Cafe|Coffee|Bakery|Grill|Kitchen|Chicken|Thai|Chinese|Pizza|Sushi)`)
	numberedAddress   = regexp.MustCompile(`(?i)\d+.*(?:Street|Ave|Road|Blvd|Dr)`)

	// UI chrome and time words that pattern-match like names but never
	// geocode to anything useful.
	falsePositives = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:Open|Closed|Hours|Phone|Call|Visit|Website|Map|Directions|Reviews|Photos)$`),
		regexp.MustCompile(`^\d+$`),
		regexp.MustCompile(`^[A-Z]$`),
		regexp.MustCompile(`(?i)^(?:AM|PM|Mon|Tue|Wed|Thu|Fri|Sat|Sun)$`),
		regexp.MustCompile(`(?i)^(?:Today|Tomorrow|Yesterday)$`),
	}
)

// Extractor turns normalized chunks into candidate locations.
type Extractor struct {
	matchers []Matcher
	log      zerolog.Logger
}

// New creates an extractor with the default matcher registry.
func New() *Extractor {
	return NewWithMatchers(DefaultMatchers())
}

// NewWithMatchers creates an extractor with an explicit registry (for testing).
func NewWithMatchers(matchers []Matcher) *Extractor {
	return &Extractor{
		matchers: matchers,
		log:      logger.WithComponent("extractor"),
	}
}

// Locations extracts candidate locations from chunks. Candidates keep
// references to the chunks they came from, duplicates merge
// case-insensitively keeping the highest confidence, fragments are absorbed
// into the longer mention containing them, and the result is capped ordered
// by confidence.
func (e *Extractor) Locations(chunks []models.OCRChunk) []models.CandidateLocation {
	rated := ratingChunks(chunks)

	var candidates []models.CandidateLocation
	for _, chunk := range chunks {
		noisy := isNoisy(chunk.Text)
		corroborated := rated[chunk.Index] || rated[chunk.Index-1] || rated[chunk.Index+1]

		for _, m := range e.matchers {
			for _, match := range m.Pattern.FindAllString(chunk.Text, -1) {
				text := strings.TrimSpace(match)
				if utf8.RuneCountInString(text) <= 2 {
					continue
				}
				conf := scoreCandidate(text, m.Weight, noisy, corroborated)
				if conf < minConfidence {
					continue
				}
				candidates = append(candidates, models.CandidateLocation{
					Text:       text,
					Kind:       m.Kind,
					ChunkRefs:  []int{chunk.Index},
					Confidence: conf,
					Matcher:    m.Name,
				})
			}
		}
	}

	result := absorbSubstrings(dedupe(candidates))
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Confidence > result[j].Confidence
	})
	if len(result) > maxCandidates {
		result = result[:maxCandidates]
	}

	e.log.Debug().Int("candidates", len(result)).Msg("Location extraction completed")
	return result
}

// scoreCandidate adjusts a matcher's base weight with boosts from supporting
// evidence and penalties for false-positive shapes. Clamped to [0,1].
func scoreCandidate(text string, weight float64, noisyChunk, ratedNearby bool) float64 {
	conf := weight

	if businessIndicator.MatchString(text) {
		conf += 0.2
	}
	if numberedAddress.MatchString(text) {
		conf += 0.2
	}
	if matchesKnownChain(text) {
		conf += 0.3
	}
	if ratedNearby {
		conf += 0.15
	}

	n := utf8.RuneCountInString(text)
	if n < 3 {
		conf -= 0.4
	} else if n > 60 {
		conf -= 0.2
	}
	for _, p := range falsePositives {
		if p.MatchString(text) {
			conf -= 0.3
			break
		}
	}
	if noisyChunk {
		conf -= 0.2
	}

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// matchesKnownChain checks containment in both directions so a partial
// recognition ("Dave's Hot") still hits its chain.
func matchesKnownChain(text string) bool {
	lower := strings.ToLower(text)
	for _, chain := range knownChains {
		c := strings.ToLower(chain)
		if strings.Contains(lower, c) || strings.Contains(c, lower) {
			return true
		}
	}
	return false
}

// isNoisy reports whether a chunk is dominated by recognizer noise. Spaces
// are excluded from the ratio so ordinary sentences are not penalized.
func isNoisy(text string) bool {
	total, alnum := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return true
	}
	return float64(total-alnum)/float64(total) > 0.3
}

// dedupe merges case-insensitive duplicates. The highest-confidence copy
// wins; chunk references union.
func dedupe(candidates []models.CandidateLocation) []models.CandidateLocation {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	seen := make(map[string]int)
	var out []models.CandidateLocation
	for _, c := range candidates {
		key := strings.ToLower(c.Text)
		if idx, ok := seen[key]; ok {
			out[idx].ChunkRefs = unionRefs(out[idx].ChunkRefs, c.ChunkRefs)
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

// absorbSubstrings removes candidates fully contained in a longer candidate,
// keeping the longer text with the higher of the two confidences.
func absorbSubstrings(candidates []models.CandidateLocation) []models.CandidateLocation {
	removed := make([]bool, len(candidates))
	for i := range candidates {
		if removed[i] {
			continue
		}
		a := strings.ToLower(candidates[i].Text)
		for j := range candidates {
			if i == j || removed[j] {
				continue
			}
			b := strings.ToLower(candidates[j].Text)
			if a == b || !strings.Contains(a, b) {
				continue
			}
			if candidates[j].Confidence > candidates[i].Confidence {
				candidates[i].Confidence = candidates[j].Confidence
			}
			candidates[i].ChunkRefs = unionRefs(candidates[i].ChunkRefs, candidates[j].ChunkRefs)
			removed[j] = true
		}
	}

	out := candidates[:0]
	for i, c := range candidates {
		if !removed[i] {
			out = append(out, c)
		}
	}
	return out
}

func unionRefs(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, refs := range [][]int{a, b} {
		for _, v := range refs {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

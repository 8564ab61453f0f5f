// Package evaluate scores extraction output against ground truth
// annotations and aggregates precision/recall metrics across assets.
package evaluate

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"llmap/pkg/models"
)

// Options control how extracted locations are matched to truth records.
type Options struct {
	// MatchThreshold is the minimum similarity for a pair to count as a match.
	MatchThreshold float64
	// ExactThreshold is the similarity at or above which a match is exact.
	ExactThreshold float64
	// ContainmentBonus is added when one folded text contains the other.
	ContainmentBonus float64
}

// DefaultOptions returns the standard matching thresholds.
func DefaultOptions() Options {
	return Options{
		MatchThreshold:   0.5,
		ExactThreshold:   0.8,
		ContainmentBonus: 0.25,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MatchThreshold == 0 {
		o.MatchThreshold = def.MatchThreshold
	}
	if o.ExactThreshold == 0 {
		o.ExactThreshold = def.ExactThreshold
	}
	if o.ContainmentBonus == 0 {
		o.ContainmentBonus = def.ContainmentBonus
	}
	return o
}

// Compare matches extracted location texts against truth records. Pairs are
// assigned greedily by descending similarity, each truth record and each
// extraction participating in at most one match. Unmatched truth records are
// misses; unmatched extractions are false positives.
func Compare(extracted []string, truth []models.GroundTruthRecord, opts Options) models.ComparisonResult {
	opts = opts.withDefaults()

	type pair struct {
		t, e  int
		score float64
	}
	var pairs []pair
	for t, record := range truth {
		for e, actual := range extracted {
			score := similarity(record.Text, actual, opts.ContainmentBonus)
			if score >= opts.MatchThreshold {
				pairs = append(pairs, pair{t: t, e: e, score: score})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})

	usedTruth := make(map[int]bool)
	usedExtraction := make(map[int]bool)
	result := models.ComparisonResult{}

	for _, p := range pairs {
		if usedTruth[p.t] || usedExtraction[p.e] {
			continue
		}
		usedTruth[p.t] = true
		usedExtraction[p.e] = true

		matchType := models.MatchPartial
		if p.score >= opts.ExactThreshold {
			matchType = models.MatchExact
		}
		result.Matches = append(result.Matches, models.Match{
			Truth:     truth[p.t],
			Extracted: extracted[p.e],
			Score:     p.score,
			Type:      matchType,
		})
	}

	for t, record := range truth {
		if !usedTruth[t] {
			result.Misses = append(result.Misses, record)
		}
	}
	for e, actual := range extracted {
		if !usedExtraction[e] {
			result.FalsePositives = append(result.FalsePositives, actual)
		}
	}

	fillMetrics(&result, len(extracted), len(truth))
	return result
}

// Merge folds per-asset comparisons into one batch-level result. Metrics are
// micro-averaged: totals are summed first, then precision and recall are
// computed once over the sums.
func Merge(results []models.ComparisonResult) models.ComparisonResult {
	merged := models.ComparisonResult{}
	extractions := 0
	truths := 0
	for _, r := range results {
		merged.Matches = append(merged.Matches, r.Matches...)
		merged.Misses = append(merged.Misses, r.Misses...)
		merged.FalsePositives = append(merged.FalsePositives, r.FalsePositives...)
		extractions += len(r.Matches) + len(r.FalsePositives)
		truths += len(r.Matches) + len(r.Misses)
	}
	fillMetrics(&merged, extractions, truths)
	return merged
}

func fillMetrics(r *models.ComparisonResult, extractions, truths int) {
	matched := float64(len(r.Matches))
	if extractions > 0 {
		r.Precision = matched / float64(extractions)
	}
	if truths > 0 {
		r.Recall = matched / float64(truths)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
}

// SubstringResult reports which expected text fragments appear in the
// recognized text.
type SubstringResult struct {
	Found    []string `json:"found"`
	Missed   []string `json:"missed"`
	Accuracy float64  `json:"accuracy"`
}

// CheckSubstrings verifies that each expected fragment occurs in the text,
// case-insensitively.
func CheckSubstrings(expected []string, text string) SubstringResult {
	result := SubstringResult{}
	lower := strings.ToLower(text)
	for _, fragment := range expected {
		if strings.Contains(lower, strings.ToLower(fragment)) {
			result.Found = append(result.Found, fragment)
		} else {
			result.Missed = append(result.Missed, fragment)
		}
	}
	if len(expected) > 0 {
		result.Accuracy = float64(len(result.Found)) / float64(len(expected))
	}
	return result
}

// similarity scores two location texts in [0,1]. Texts are folded (accents
// stripped, lowercased, whitespace removed) before the edit distance is
// taken, and containment of one side in the other earns the bonus.
func similarity(expected, actual string, containmentBonus float64) float64 {
	e := foldForComparison(expected)
	a := foldForComparison(actual)

	if e == "" && a == "" {
		return 1
	}
	if e == "" || a == "" {
		return 0
	}
	if e == a {
		return 1
	}

	er := []rune(e)
	ar := []rune(a)
	maxLen := len(er)
	if len(ar) > maxLen {
		maxLen = len(ar)
	}

	score := 1 - float64(levenshtein(er, ar))/float64(maxLen)
	if strings.Contains(e, a) || strings.Contains(a, e) {
		score += containmentBonus
	}

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// foldForComparison strips accents, lowercases and removes all whitespace so
// "Café du Monde" and "cafe du monde" compare equal.
func foldForComparison(s string) string {
	folded, _, _ := transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.ToLower(s),
	)
	return strings.Join(strings.Fields(folded), "")
}

// levenshtein computes the edit distance between two rune slices with a
// two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

package extract

import (
	"regexp"
	"strconv"
	"strings"

	"llmap/pkg/models"
)

// Details are the supporting facts found alongside location mentions.
type Details struct {
	Ratings []models.Rating `json:"ratings,omitempty"`
	Contact models.Contact  `json:"contact"`
}

var (
	starsRating   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:stars?|★|☆)`)
	outOfFive     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*5\b`)
	outOfTen      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*10\b`)
	labeledRating = regexp.MustCompile(`(?i)Rating:\s*(\d+(?:\.\d+)?)`)
	starGlyphRun  = regexp.MustCompile(`★{2,}`)

	usPhone   = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	intlPhone = regexp.MustCompile(`\+\d{1,3}[-.\s]?\d{3,4}[-.\s]?\d{3,4}[-.\s]?\d{3,4}`)
	emailAddr = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	webURL    = regexp.MustCompile(`https?://\S+|www\.\S+`)

	hoursPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Open|Hours?):?\s*\d{1,2}:?\d{0,2}\s*(?:AM|PM)?\s*-\s*\d{1,2}:?\d{0,2}\s*(?:AM|PM)?`),
		regexp.MustCompile(`(?i)\d{1,2}:?\d{0,2}\s*(?:AM|PM)\s*-\s*\d{1,2}:?\d{0,2}\s*(?:AM|PM)`),
	}
)

// Details extracts ratings and contact information from chunks.
func (e *Extractor) Details(chunks []models.OCRChunk) Details {
	var d Details

	seen := make(map[string]bool)
	for _, c := range chunks {
		for _, r := range extractRatings(c.Text) {
			if !seen[r.Raw] {
				seen[r.Raw] = true
				d.Ratings = append(d.Ratings, r)
			}
		}
	}
	d.Contact = extractContact(chunks)
	return d
}

// ratingChunks indexes which chunks carry a rating, for candidate
// corroboration.
func ratingChunks(chunks []models.OCRChunk) map[int]bool {
	rated := make(map[int]bool)
	for _, c := range chunks {
		if hasRating(c.Text) {
			rated[c.Index] = true
		}
	}
	return rated
}

func hasRating(text string) bool {
	return starsRating.MatchString(text) ||
		outOfFive.MatchString(text) ||
		outOfTen.MatchString(text) ||
		labeledRating.MatchString(text) ||
		starGlyphRun.MatchString(text)
}

// extractRatings finds ratings in one chunk. Values outside the plausible
// range for their scale are discarded rather than clamped.
func extractRatings(text string) []models.Rating {
	var ratings []models.Rating

	add := func(raw string, value, scale float64) {
		if value < 0 || value > scale {
			return
		}
		ratings = append(ratings, models.Rating{Value: value, Scale: scale, Raw: strings.TrimSpace(raw)})
	}

	for _, m := range starsRating.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			scale := 5.0
			if v > 5 {
				scale = 10.0
			}
			add(m[0], v, scale)
		}
	}
	for _, m := range outOfFive.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			add(m[0], v, 5)
		}
	}
	for _, m := range outOfTen.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			add(m[0], v, 10)
		}
	}
	for _, m := range labeledRating.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			scale := 5.0
			if v > 5 {
				scale = 10.0
			}
			add(m[0], v, scale)
		}
	}
	for _, m := range starGlyphRun.FindAllString(text, -1) {
		stars := strings.Count(m, "★")
		if stars <= 5 {
			add(m, float64(stars), 5)
		}
	}

	return ratings
}

// extractContact aggregates phones, emails, URLs and opening hours across
// all chunks, deduplicated in reading order.
func extractContact(chunks []models.OCRChunk) models.Contact {
	var contact models.Contact
	seen := make(map[string]bool)

	add := func(list *[]string, value string) {
		value = strings.TrimRight(strings.TrimSpace(value), ".,;:!?)")
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		*list = append(*list, value)
	}

	for _, c := range chunks {
		for _, m := range usPhone.FindAllString(c.Text, -1) {
			add(&contact.Phones, m)
		}
		for _, m := range intlPhone.FindAllString(c.Text, -1) {
			add(&contact.Phones, m)
		}
		for _, m := range emailAddr.FindAllString(c.Text, -1) {
			add(&contact.Emails, m)
		}
		for _, m := range webURL.FindAllString(c.Text, -1) {
			add(&contact.URLs, m)
		}
		for _, p := range hoursPatterns {
			for _, m := range p.FindAllString(c.Text, -1) {
				add(&contact.Hours, m)
			}
		}
	}

	return contact
}

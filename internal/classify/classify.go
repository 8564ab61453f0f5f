// Package classify assigns a coarse content-type label to incoming images.
// The label steers OCR engine selection and extraction emphasis downstream,
// but it is a best-effort hint, never a hard gate.
package classify

import (
	"bytes"
	"image"
	"sort"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"llmap/internal/logger"
	"llmap/pkg/models"
)

// Result carries the detected content type with supporting signals.
type Result struct {
	ContentType models.ContentType
	Confidence  float64
	Language    string
	Indicators  []string
}

// contentIndicators maps each content type to keyword cues found in OCR text.
var contentIndicators = map[models.ContentType][]string{
	models.ContentSocialMedia: {
		"like", "comment", "share", "follow", "post", "@", "#",
		"ago", "minutes", "hours", "days", "story", "feed",
		"timeline", "retweet", "favorite", "instagram", "facebook",
	},
	models.ContentTravelItinerary: {
		"day 1", "day 2", "day 3", "itinerary", "trip", "hotel",
		"lodge", "trail", "park", "visitor center", "national park",
		"推荐", "住", "第一天", "第二天", "accommodation", "check-in",
	},
	models.ContentMapScreenshot: {
		"directions", "route", "km", "miles", "min drive",
		"traffic", "fastest route", "avoid tolls", "satellite",
		"terrain", "transit", "walking",
	},
	models.ContentRestaurantReview: {
		"rating", "stars", "review", "menu", "price", "service",
		"food", "atmosphere", "recommend", "delicious", "tasty",
		"reservation", "hours", "open", "closed",
	},
	models.ContentBusinessListing: {
		"phone", "website", "hours", "address", "reviews",
		"rating", "photos", "menu", "call", "directions",
		"overview", "about", "contact",
	},
}

// Classifier detects content type from image geometry and OCR text cues.
type Classifier struct {
	log zerolog.Logger
}

func New() *Classifier {
	return &Classifier{
		log: logger.WithComponent("classify"),
	}
}

// Classify inspects the image bytes and any recognized text and returns the
// best content-type guess. Ambiguity resolves to mixed_content. The function
// is pure: no side effects beyond debug logging.
func (c *Classifier) Classify(imageData []byte, text string) Result {
	scores := make(map[models.ContentType]float64)
	var indicators []string

	// Text cues: each content type scores by its fraction of matched keywords.
	lower := strings.ToLower(text)
	for contentType, keywords := range contentIndicators {
		matches := 0
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				matches++
			}
		}
		if matches > 0 {
			score := float64(matches) / float64(len(keywords))
			if score > 1.0 {
				score = 1.0
			}
			scores[contentType] += score
			indicators = append(indicators, string(contentType)+"_keywords")
		}
	}

	// Visual cues from image geometry.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData)); err == nil && cfg.Height > 0 {
		aspect := float64(cfg.Width) / float64(cfg.Height)

		if aspect > 1.5 {
			scores[models.ContentMapScreenshot] += 0.2
			indicators = append(indicators, "wide_aspect_ratio")
		}
		// Phone screenshots are tall and narrow; they are usually social feeds.
		if aspect > 0.4 && aspect < 0.6 && cfg.Height > 1000 {
			scores[models.ContentSocialMedia] += 0.3
			indicators = append(indicators, "mobile_screenshot")
		}
		if density, ok := edgeDensity(imageData); ok && density > 0.15 {
			scores[models.ContentMapScreenshot] += 0.1
			indicators = append(indicators, "high_edge_density")
		}
	} else if err != nil {
		c.log.Debug().Err(err).Msg("Image decode failed during classification")
	}

	language := DetectLanguage(text)

	if len(scores) == 0 {
		return Result{
			ContentType: models.ContentMixed,
			Confidence:  0.5,
			Language:    language,
			Indicators:  indicators,
		}
	}

	types := make([]models.ContentType, 0, len(scores))
	for t := range scores {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if scores[types[i]] != scores[types[j]] {
			return scores[types[i]] > scores[types[j]]
		}
		return types[i] < types[j]
	})

	best := types[0]
	confidence := scores[best]
	if confidence > 1.0 {
		confidence = 1.0
	}

	c.log.Debug().
		Str("content_type", string(best)).
		Float64("confidence", confidence).
		Str("language", language).
		Msg("Content type detected")

	return Result{
		ContentType: best,
		Confidence:  confidence,
		Language:    language,
		Indicators:  indicators,
	}
}

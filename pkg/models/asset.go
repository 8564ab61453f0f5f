package models

import (
	"github.com/google/uuid"
)

// ContentType is a coarse classification of an image's origin, used to steer
// engine selection and extraction emphasis. It is a hint, never a hard gate.
type ContentType string

const (
	ContentSocialMedia      ContentType = "social_media"
	ContentTravelItinerary  ContentType = "travel_itinerary"
	ContentMapScreenshot    ContentType = "map_screenshot"
	ContentRestaurantReview ContentType = "restaurant_review"
	ContentBusinessListing  ContentType = "business_listing"
	ContentMixed            ContentType = "mixed_content"
)

// Asset is one uploaded image moving through the pipeline. Assets are
// immutable after creation; nothing is persisted beyond the geocode cache.
type Asset struct {
	ID           string      `json:"id"`
	Filename     string      `json:"filename"`
	Data         []byte      `json:"-"`
	ContentType  ContentType `json:"content_type,omitempty"` // declared by caller or detected
	LanguageHint string      `json:"language_hint,omitempty"`
}

// NewAsset creates an asset with a generated identifier.
func NewAsset(filename string, data []byte) Asset {
	return Asset{
		ID:       uuid.NewString(),
		Filename: filename,
		Data:     data,
	}
}

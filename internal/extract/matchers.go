package extract

import (
	"regexp"

	"llmap/pkg/models"
)

// Matcher is one named extraction rule. Matchers are independent: each
// declares the kind of location it finds and the base confidence of a match,
// so rules can be tested and tuned in isolation.
type Matcher struct {
	Name    string
	Kind    models.LocationKind
	Weight  float64
	Pattern *regexp.Regexp
}

// knownChains are businesses recognized by name alone. A candidate that
// contains one of these (or is contained by one) gets a confidence boost on
// top of the chain_business matcher weight.
var knownChains = []string{
	"McDonald's",
	"Starbucks",
	"KFC",
	"Subway",
	"Pizza Hut",
	"Burger King",
	"Taco Bell",
	"Dunkin",
	"Chipotle",
	"Dave's Hot Chicken",
	"Acme Bread",
	"Funky Elephant",
	"Eunice Gourmet",
	"Albany Ao Sen",
}

// DefaultMatchers returns the standard rule registry in evaluation order.
// Capitalization is load-bearing for name-shaped rules; only the suffix
// vocabularies are case-insensitive.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{
			Name:    "full_address",
			Kind:    models.KindAddress,
			Weight:  0.9,
			Pattern: regexp.MustCompile(`\d{1,5}\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3}\s+(?i:Street|St\.?|Avenue|Ave\.?|Road|Rd\.?|Boulevard|Blvd\.?|Drive|Dr\.?|Lane|Ln\.?|Way|Place|Pl\.?)`),
		},
		{
			Name:    "chain_business",
			Kind:    models.KindBusiness,
			Weight:  0.95,
			Pattern: regexp.MustCompile(`(?i:McDonald's|Starbucks|KFC|Subway|Pizza Hut|Burger King|Taco Bell|Dunkin|Chipotle|Dave's Hot Chicken|Acme Bread|Funky Elephant|Eunice Gourmet|Albany Ao Sen)`),
		},
		{
			Name:    "business_category",
			Kind:    models.KindBusiness,
			Weight:  0.8,
			Pattern: regexp.MustCompile(`[A-Z][a-zA-Z'&\-\s]{2,40}(?i:Restaurant|Cafe|Coffee|Bar|Grill|Bistro|Deli|Pizza|Sushi|Bakery|Market|Store|Shop|Eatery|Kitchen|House|Chicken|Thai|Chinese|Mexican|Italian|BBQ|Burgers?|Noodles?|Ramen)`),
		},
		{
			Name:    "landmark",
			Kind:    models.KindLandmark,
			Weight:  0.7,
			Pattern: regexp.MustCompile(`[A-Z][a-z\-]+(?:\s+[A-Z][a-z\-]+)*\s+(?i:Plaza|Center|Centre|Mall|Park|Square)`),
		},
		{
			Name:    "city_state",
			Kind:    models.KindCity,
			Weight:  0.85,
			Pattern: regexp.MustCompile(`[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*,\s*(?:[A-Z]{2}\b|[A-Z][a-z]+)(?:\s+\d{5})?`),
		},
		{
			Name:    "street",
			Kind:    models.KindAddress,
			Weight:  0.6,
			Pattern: regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2}\s+(?i:Street|St\.?|Avenue|Ave\.?|Road|Rd\.?|Boulevard|Blvd\.?|Drive|Dr\.?|Lane|Ln\.?|Way)`),
		},
		{
			Name:    "location_business",
			Kind:    models.KindBusiness,
			Weight:  0.8,
			Pattern: regexp.MustCompile(`[A-Z][a-zA-Z\s&']{3,30}(?:Oakland|Berkeley|San Francisco|NYC|Manhattan|Brooklyn)`),
		},
		{
			Name:    "potential_business",
			Kind:    models.KindBusiness,
			Weight:  0.5,
			Pattern: regexp.MustCompile(`[A-Z][a-z']+(?:\s+[A-Z][a-z']+){1,4}`),
		},
		{
			Name:    "chinese_address",
			Kind:    models.KindAddress,
			Weight:  0.8,
			Pattern: regexp.MustCompile(`\p{Han}+(?:路|街|巷|道|大道|广场|中心|商场|酒店|餐厅|咖啡厅|公园|医院|学校|大学|车站)\d*号?`),
		},
		{
			Name:    "chinese_business",
			Kind:    models.KindBusiness,
			Weight:  0.8,
			Pattern: regexp.MustCompile(`\p{Han}+(?:餐厅|饭店|酒店|咖啡厅|茶楼|火锅店|烧烤店|小吃店|商场|超市|银行)`),
		},
		{
			Name:    "chinese_area",
			Kind:    models.KindArea,
			Weight:  0.4,
			Pattern: regexp.MustCompile(`\p{Han}{2,}(?:市|区|县|镇|村|街道|社区)`),
		},
		{
			Name:    "chinese_landmark",
			Kind:    models.KindLandmark,
			Weight:  0.4,
			Pattern: regexp.MustCompile(`\p{Han}+(?:公园|广场|大厦|中心|商城|购物中心|地铁站|火车站|机场)`),
		},
		{
			Name:    "mixed_script",
			Kind:    models.KindBusiness,
			Weight:  0.4,
			Pattern: regexp.MustCompile(`\p{Han}+\s*[A-Za-z]+|[A-Za-z]+\s*\p{Han}+`),
		},
	}
}

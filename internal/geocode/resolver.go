package geocode

import (
	"context"
	"database/sql"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"llmap/internal/logger"
	"llmap/internal/spatial"
	"llmap/pkg/models"
)

// Options tune the resolver. Zero values are replaced by DefaultOptions.
type Options struct {
	// ExtractionWeight and ProviderWeight blend the extraction confidence
	// with the provider confidence into the final score.
	ExtractionWeight float64
	ProviderWeight   float64

	// PrimaryAccept and FallbackAccept are the minimum provider confidences
	// required to take a result.
	PrimaryAccept  float64
	FallbackAccept float64

	// PrimaryInterval paces primary provider calls. FallbackInterval paces
	// the fallback; the public Nominatim instance requires at least one
	// second between requests.
	PrimaryInterval  time.Duration
	FallbackInterval time.Duration

	// EnableEnhancement allows an LLM retry for queries both providers miss.
	EnableEnhancement bool
}

// DefaultOptions returns the standard resolver tuning.
func DefaultOptions() Options {
	return Options{
		ExtractionWeight:  0.4,
		ProviderWeight:    0.6,
		PrimaryAccept:     0.6,
		FallbackAccept:    0.4,
		PrimaryInterval:   100 * time.Millisecond,
		FallbackInterval:  time.Second,
		EnableEnhancement: true,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ExtractionWeight == 0 && o.ProviderWeight == 0 {
		o.ExtractionWeight = def.ExtractionWeight
		o.ProviderWeight = def.ProviderWeight
	}
	if o.PrimaryAccept == 0 {
		o.PrimaryAccept = def.PrimaryAccept
	}
	if o.FallbackAccept == 0 {
		o.FallbackAccept = def.FallbackAccept
	}
	if o.PrimaryInterval == 0 {
		o.PrimaryInterval = def.PrimaryInterval
	}
	if o.FallbackInterval == 0 {
		o.FallbackInterval = def.FallbackInterval
	}
	return o
}

// ResolverConfig carries the external endpoints and credentials the resolver
// needs. CacheDB is optional; when set the caller owns driver registration
// and the resolver owns the handle from then on.
type ResolverConfig struct {
	GoogleAPIKey       string
	NominatimBaseURL   string
	NominatimUserAgent string
	OpenAIAPIKey       string
	OpenAIModel        string
	CacheDB            *sql.DB
}

// Resolver turns extracted location candidates into coordinates via a
// primary/fallback provider chain. It holds the long-lived pieces (providers,
// enhancer, cache); per-batch pacing state lives in a Session.
type Resolver struct {
	primary  Provider
	fallback Provider
	enhancer *Enhancer
	cache    *Cache
	opts     Options
	log      zerolog.Logger
}

// NewResolver creates a resolver from configuration. Google is used as the
// primary provider only when an API key is present; Nominatim always serves
// as the fallback.
func NewResolver(cfg ResolverConfig, opts Options) (*Resolver, error) {
	var primary Provider
	if cfg.GoogleAPIKey != "" {
		primary = NewGoogleGeocoder(cfg.GoogleAPIKey)
	}

	fallback := NewNominatimGeocoder()
	if cfg.NominatimBaseURL != "" {
		fallback.baseURL = strings.TrimRight(cfg.NominatimBaseURL, "/") + "/search"
	}
	if cfg.NominatimUserAgent != "" {
		fallback.userAgent = cfg.NominatimUserAgent
	}

	cache := NewMemoryCache()
	if cfg.CacheDB != nil {
		var err error
		cache, err = NewPersistentCache(cfg.CacheDB)
		if err != nil {
			return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "initializing persistent cache", Err: err}
		}
	}

	return &Resolver{
		primary:  primary,
		fallback: fallback,
		enhancer: NewEnhancer(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		cache:    cache,
		opts:     opts.withDefaults(),
		log:      logger.WithComponent("geocode-resolver"),
	}, nil
}

// NewResolverWithProviders creates a resolver with explicit providers and
// cache (for testing).
func NewResolverWithProviders(primary, fallback Provider, enhancer *Enhancer, cache *Cache, opts Options) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if enhancer == nil {
		enhancer = NewEnhancer("", "")
	}
	return &Resolver{
		primary:  primary,
		fallback: fallback,
		enhancer: enhancer,
		cache:    cache,
		opts:     opts.withDefaults(),
		log:      logger.WithComponent("geocode-resolver"),
	}
}

// Close releases the resolver's cache resources.
func (r *Resolver) Close() error {
	return r.cache.Close()
}

// Resolve geocodes candidates in a fresh single-use session. Batch callers
// should create one Session and reuse it so rate limits hold across assets.
func (r *Resolver) Resolve(ctx context.Context, candidates []models.CandidateLocation, regionHint string) ([]models.GeocodedLocation, []models.CandidateLocation) {
	return r.NewSession().Resolve(ctx, candidates, regionHint)
}

// Session carries the pacing state for one batch run: rate limiters shared
// by every asset in the batch and a singleflight group so concurrent workers
// resolve each unique query once. The cache is the resolver's and outlives
// the session.
type Session struct {
	resolver        *Resolver
	primaryLimiter  *rate.Limiter
	fallbackLimiter *rate.Limiter
	flight          singleflight.Group
}

// NewSession creates the per-batch pacing state.
func (r *Resolver) NewSession() *Session {
	return &Session{
		resolver:        r,
		primaryLimiter:  rate.NewLimiter(rate.Every(r.opts.PrimaryInterval), 1),
		fallbackLimiter: rate.NewLimiter(rate.Every(r.opts.FallbackInterval), 1),
	}
}

// Resolve geocodes the candidates. The second return value holds everything
// that could not be resolved, each with a Reason; candidates are never
// silently dropped. When the context is cancelled, unattempted candidates are
// returned un-geocoded with a cancellation reason.
func (s *Session) Resolve(ctx context.Context, candidates []models.CandidateLocation, regionHint string) ([]models.GeocodedLocation, []models.CandidateLocation) {
	r := s.resolver
	var resolved []models.GeocodedLocation
	var ungeocoded []models.CandidateLocation

	for i, cand := range candidates {
		if ctx.Err() != nil {
			for _, rest := range candidates[i:] {
				rest.Reason = "geocoding cancelled"
				ungeocoded = append(ungeocoded, rest)
			}
			break
		}

		if !geocodableKind(cand.Kind) {
			cand.Reason = "kind not geocodable"
			ungeocoded = append(ungeocoded, cand)
			continue
		}

		result, err := s.lookup(ctx, buildQuery(cand.Text, regionHint))

		// Retry once with the fuzzy correction table, then once with the
		// LLM, but only for genuine misses.
		retryable := result == nil && (err == nil || IsNotFoundError(err))
		if retryable {
			if corrected, ok := FuzzyCorrect(cand.Text); ok {
				result, err = s.lookup(ctx, buildQuery(corrected, regionHint))
			}
		}
		if retryable && result == nil && r.opts.EnableEnhancement && r.enhancer.Enabled() && ctx.Err() == nil {
			enhanced, enhanceErr := r.enhancer.Enhance(ctx, cand.Text, regionHint)
			if enhanceErr == nil && !strings.EqualFold(enhanced, cand.Text) {
				result, err = s.lookup(ctx, buildQuery(enhanced, regionHint))
			}
		}

		if result == nil {
			cand.Reason = missReason(err)
			ungeocoded = append(ungeocoded, cand)
			continue
		}

		if !result.Valid() {
			r.log.Warn().
				Str("candidate", cand.Text).
				Float64("latitude", result.Latitude).
				Float64("longitude", result.Longitude).
				Str("provider", result.Provider).
				Msg("Dropping result with out-of-range coordinates")
			cand.Reason = "provider returned invalid coordinates"
			ungeocoded = append(ungeocoded, cand)
			continue
		}

		point := spatial.Point{Lat: result.Latitude, Lng: result.Longitude}
		resolved = append(resolved, models.GeocodedLocation{
			CandidateLocation: cand,
			Longitude:         result.Longitude,
			Latitude:          result.Latitude,
			DisplayName:       result.DisplayName,
			GeoConfidence:     clamp01(r.opts.ExtractionWeight*cand.Confidence + r.opts.ProviderWeight*result.Confidence),
			Provider:          result.Provider,
			Cell:              point.CellToken(),
		})
	}

	resolved = mergeByCell(resolved)
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].GeoConfidence > resolved[j].GeoConfidence
	})

	r.log.Debug().
		Int("candidates", len(candidates)).
		Int("resolved", len(resolved)).
		Int("ungeocoded", len(ungeocoded)).
		Msg("Geocoding pass completed")

	return resolved, ungeocoded
}

// lookup serves a query from the cache when possible, otherwise collapses
// concurrent identical queries into one provider round trip. A (nil, nil)
// return is a remembered miss. Provider errors are never cached.
func (s *Session) lookup(ctx context.Context, query string) (*ProviderResult, error) {
	key := normalizeQuery(query)
	if key == "" {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "empty query"}
	}

	if result, ok := s.resolver.cache.Get(key); ok {
		return result, nil
	}

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if result, ok := s.resolver.cache.Get(key); ok {
			return result, nil
		}

		result, err := s.queryProviders(ctx, query)
		if err != nil {
			if IsNotFoundError(err) {
				s.resolver.cache.Put(key, nil)
				return (*ProviderResult)(nil), nil
			}
			return nil, err
		}

		s.resolver.cache.Put(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	result, _ := v.(*ProviderResult)
	return result, nil
}

// queryProviders walks the provider chain under the session's rate limits.
func (s *Session) queryProviders(ctx context.Context, query string) (*ProviderResult, error) {
	r := s.resolver

	if r.primary != nil {
		if err := s.primaryLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		result, err := r.primary.Geocode(ctx, query)
		switch {
		case err == nil && result.Confidence > r.opts.PrimaryAccept:
			return result, nil
		case err == nil:
			r.log.Debug().
				Str("query", query).
				Float64("confidence", result.Confidence).
				Msg("Primary result below accept threshold, trying fallback")
		case !IsNotFoundError(err):
			r.log.Debug().Err(err).Str("query", query).Msg("Primary geocoder failed, trying fallback")
		}
	}

	if r.fallback == nil {
		return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: "no provider produced a result"}
	}

	if err := s.fallbackLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := r.fallback.Geocode(ctx, query)
	if err != nil {
		return nil, err
	}
	if result.Confidence > r.opts.FallbackAccept {
		return result, nil
	}
	return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: "no result above confidence threshold"}
}

var (
	stateSuffixPattern = regexp.MustCompile(`,\s*[A-Z]{2}\b`)
	zipPattern         = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	coordinatePattern  = regexp.MustCompile(`-?\d{1,3}\.\d+\s*,\s*-?\d{1,3}\.\d+`)
	countryPattern     = regexp.MustCompile(`(?i)\b(?:USA|United States|Canada|Mexico|China|Japan|United Kingdom|France|Germany|Spain|Italy|Australia)\b`)
)

// hasLocationContext reports whether a query already pins down a region, so
// appending the batch hint would only mislead the providers.
func hasLocationContext(query string) bool {
	return stateSuffixPattern.MatchString(query) ||
		zipPattern.MatchString(query) ||
		coordinatePattern.MatchString(query) ||
		countryPattern.MatchString(query)
}

func buildQuery(text, regionHint string) string {
	query := strings.TrimSpace(text)
	if regionHint != "" && !hasLocationContext(query) {
		query = query + ", " + regionHint
	}
	return query
}

var querySpaces = regexp.MustCompile(`\s+`)

// normalizeQuery folds a query to its cache identity: accents stripped,
// lowercased, whitespace collapsed.
func normalizeQuery(query string) string {
	folded, _, _ := transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(query)),
	)
	return querySpaces.ReplaceAllString(folded, " ")
}

func geocodableKind(kind models.LocationKind) bool {
	switch kind {
	case models.KindAddress, models.KindBusiness, models.KindLandmark, models.KindCity, models.KindArea:
		return true
	}
	return false
}

func missReason(err error) string {
	if err == nil {
		return "no geocoding result"
	}
	if IsRateLimitError(err) {
		return "provider rate limited"
	}
	if IsTimeoutError(err) {
		return "provider timed out"
	}
	if IsNotFoundError(err) {
		return "no geocoding result"
	}
	return "geocoding failed: " + err.Error()
}

// mergeByCell collapses results that land in the same H3 cell. Same cell
// means same place: the higher-confidence entry survives and chunk
// references are unioned.
func mergeByCell(locations []models.GeocodedLocation) []models.GeocodedLocation {
	if len(locations) < 2 {
		return locations
	}

	byCell := make(map[string]int)
	out := locations[:0]
	for _, loc := range locations {
		if loc.Cell == "" {
			out = append(out, loc)
			continue
		}
		if i, ok := byCell[loc.Cell]; ok {
			kept := &out[i]
			refs := unionChunkRefs(kept.ChunkRefs, loc.ChunkRefs)
			if loc.GeoConfidence > kept.GeoConfidence {
				*kept = loc
			}
			kept.ChunkRefs = refs
			continue
		}
		byCell[loc.Cell] = len(out)
		out = append(out, loc)
	}
	return out
}

func unionChunkRefs(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, ref := range a {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	for _, ref := range b {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	sort.Ints(out)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

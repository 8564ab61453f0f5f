package geocode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"llmap/internal/logger"
)

// fuzzyCorrections maps common OCR truncation fragments to the full word.
// Applied only when a whole token equals the fragment, so intact words are
// never rewritten.
var fuzzyCorrections = []struct {
	fragment   string
	correction string
}{
	{"natio", "national"},
	{"centr", "center"},
	{"restauran", "restaurant"},
	{"hote", "hotel"},
}

// FuzzyCorrect repairs truncated words in a query using a fixed correction
// table. Returns the corrected query and whether anything changed.
func FuzzyCorrect(query string) (string, bool) {
	lower := strings.ToLower(query)
	words := strings.Fields(query)
	changed := false

	for i, word := range words {
		wordLower := strings.ToLower(word)
		for _, c := range fuzzyCorrections {
			if wordLower != c.fragment {
				continue
			}
			// Skip when the full word already appears elsewhere in the query.
			if strings.Contains(lower, c.correction) {
				continue
			}
			words[i] = c.correction
			changed = true
			break
		}
	}

	if !changed {
		return query, false
	}
	return strings.Join(words, " "), true
}

const enhanceSystemPrompt = `You are a location name expert. Given a partial or OCR-corrupted location name, return the most likely complete, correct location name.

Examples:
- "Olympic natio" -> "Olympic National Park"
- "Quinault rain forest" -> "Quinault Rainforest"
- "Golden gate brid" -> "Golden Gate Bridge"
- "Time squ" -> "Times Square"

Return ONLY the corrected location name, nothing else. If the input already looks complete, return it unchanged.`

// Enhancer rewrites garbled or truncated location queries with an LLM before
// they are retried against the geocoding providers.
type Enhancer struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewEnhancer creates a query enhancer. An empty API key yields a disabled
// enhancer that callers can detect with Enabled.
func NewEnhancer(apiKey, model string) *Enhancer {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	e := &Enhancer{
		model: model,
		log:   logger.WithComponent("geocode-enhancer"),
	}
	if apiKey != "" {
		e.client = openai.NewClient(apiKey)
	}
	return e
}

// NewEnhancerWithClient creates an enhancer with an explicit client (for testing).
func NewEnhancerWithClient(client *openai.Client, model string) *Enhancer {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &Enhancer{
		client: client,
		model:  model,
		log:    logger.WithComponent("geocode-enhancer"),
	}
}

// Enabled reports whether the enhancer has an API client to work with.
func (e *Enhancer) Enabled() bool {
	return e.client != nil
}

// Enhance asks the LLM for a corrected version of the query. The regionHint
// gives the model geographic context when the batch has one.
func (e *Enhancer) Enhance(ctx context.Context, query, regionHint string) (string, error) {
	if e.client == nil {
		return "", fmt.Errorf("enhancer is not configured")
	}

	userPrompt := fmt.Sprintf("Location text: %s", query)
	if regionHint != "" {
		userPrompt += fmt.Sprintf("\nLikely region: %s", regionHint)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: enhanceSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		Temperature: 0.1,
		MaxTokens:   50,
	})
	if err != nil {
		return "", fmt.Errorf("enhancement request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices from enhancement model")
	}

	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	enhanced = strings.Trim(enhanced, `"'`)

	if enhanced == "" || len(enhanced) > 200 {
		return "", fmt.Errorf("enhancement produced unusable query")
	}

	if !strings.EqualFold(enhanced, query) {
		e.log.Debug().
			Str("original", query).
			Str("enhanced", enhanced).
			Msg("LLM enhanced location query")
	}

	return enhanced, nil
}

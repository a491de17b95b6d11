package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/gemini-image-orchestrator/internal/assets"
	"github.com/fpang/gemini-image-orchestrator/internal/jsonutil"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultPractices are the prompt-writing practices applied when the caller
// names none.
var DefaultPractices = []string{
	"hyper-specific-details",
	"camera-and-lens-language",
	"lighting-description",
	"narrative-scene-description",
	"semantic-positive-phrasing",
}

// Enhancer rewrites prompts with image-prompt best practices. It implements
// orchestrator.EnhancementEngine.
type Enhancer struct {
	gen   contentGenerator
	model string
}

// NewEnhancer creates an Enhancer on client. An empty model selects
// DefaultTextModel.
func NewEnhancer(client *genai.Client, model string) *Enhancer {
	return newEnhancer(client.Models, model)
}

func newEnhancer(gen contentGenerator, model string) *Enhancer {
	if model == "" {
		model = DefaultTextModel
	}
	return &Enhancer{gen: gen, model: model}
}

type enhancementResponse struct {
	EnhancedPrompt   string   `json:"enhancedPrompt"`
	AppliedPractices []string `json:"appliedPractices"`
}

// ApplyBestPractices asks the model to enhance text. When opts.MaxWords is
// set the enhanced prompt is cut to that many words.
func (e *Enhancer) ApplyBestPractices(ctx context.Context, text string, opts orchestrator.EnhancementOptions) (*orchestrator.EnhancementResult, error) {
	practices := opts.Practices
	if len(practices) == 0 {
		practices = DefaultPractices
	}
	request := assets.RenderEnhancementRequest(assets.EnhancementData{
		Text:      text,
		Practices: practices,
		MaxWords:  opts.MaxWords,
	})

	log.Debug().
		Str("model", e.model).
		Int("text_length", len(text)).
		Strs("practices", practices).
		Msg("Starting Gemini API call for prompt enhancement")

	start := time.Now()
	raw, err := generateText(ctx, e.gen, e.model, assets.EnhancementSystemPrompt, request)
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Failed to enhance prompt")
		return nil, fmt.Errorf("failed to enhance prompt: %w", err)
	}

	parsed, err := jsonutil.ParseJSON[enhancementResponse](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse enhancement response: %w", err)
	}
	enhanced := strings.TrimSpace(parsed.EnhancedPrompt)
	if enhanced == "" {
		return nil, fmt.Errorf("enhancement response has an empty enhancedPrompt")
	}

	truncated := false
	if opts.MaxWords > 0 {
		enhanced, truncated = limitWords(enhanced, opts.MaxWords)
	}

	return &orchestrator.EnhancementResult{
		EnhancedPrompt:   enhanced,
		AppliedPractices: nonNil(parsed.AppliedPractices),
		TransformationMeta: map[string]any{
			"model":       e.model,
			"inputWords":  len(strings.Fields(text)),
			"outputWords": len(strings.Fields(enhanced)),
			"truncated":   truncated,
			"durationMs":  duration.Milliseconds(),
		},
	}, nil
}

// limitWords keeps the first n whitespace-separated words of s.
func limitWords(s string, n int) (string, bool) {
	words := strings.Fields(s)
	if len(words) <= n {
		return s, false
	}
	return strings.Join(words[:n], " "), true
}

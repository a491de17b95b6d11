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

// TemplateEngine structures prompts with a Gemini text model. It implements
// orchestrator.TemplateEngine.
type TemplateEngine struct {
	gen   contentGenerator
	model string
}

// NewTemplateEngine creates a TemplateEngine on client. An empty model
// selects DefaultTextModel.
func NewTemplateEngine(client *genai.Client, model string) *TemplateEngine {
	return newTemplateEngine(client.Models, model)
}

func newTemplateEngine(gen contentGenerator, model string) *TemplateEngine {
	if model == "" {
		model = DefaultTextModel
	}
	return &TemplateEngine{gen: gen, model: model}
}

type structuringResponse struct {
	StructuredPrompt string   `json:"structuredPrompt"`
	AppliedFeatures  []string `json:"appliedFeatures"`
}

// ApplyTemplate asks the model to rewrite prompt into the template's
// structure and reports which template features it applied.
func (e *TemplateEngine) ApplyTemplate(ctx context.Context, prompt string, tpl orchestrator.Template, opts orchestrator.TemplateOptions) (*orchestrator.TemplateResult, error) {
	request := assets.RenderStructuringRequest(assets.StructuringData{
		Prompt:   prompt,
		Template: tpl.Body,
		Features: opts.Features,
	})

	log.Debug().
		Str("model", e.model).
		Str("template", tpl.Name).
		Int("prompt_length", len(prompt)).
		Strs("features", opts.Features).
		Msg("Starting Gemini API call for prompt structuring")

	start := time.Now()
	raw, err := generateText(ctx, e.gen, e.model, assets.TemplateSystemPrompt, request)
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Failed to structure prompt")
		return nil, fmt.Errorf("failed to structure prompt: %w", err)
	}

	parsed, err := jsonutil.ParseJSON[structuringResponse](raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse structuring response: %w", err)
	}
	structured := strings.TrimSpace(parsed.StructuredPrompt)
	if structured == "" {
		return nil, fmt.Errorf("structuring response has an empty structuredPrompt")
	}

	log.Debug().
		Int("structured_length", len(structured)).
		Strs("applied_features", parsed.AppliedFeatures).
		Dur("duration", duration).
		Msg("Prompt structured")

	return &orchestrator.TemplateResult{
		StructuredPrompt: structured,
		AppliedFeatures:  nonNil(parsed.AppliedFeatures),
		ProcessingMeta: map[string]any{
			"model":      e.model,
			"template":   tpl.Name,
			"durationMs": duration.Milliseconds(),
		},
	}, nil
}

// generateText sends one user turn with a system instruction and returns the
// response text.
func generateText(ctx context.Context, gen contentGenerator, model, system, request string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(system),
		ResponseMIMEType:  "application/json",
	}
	resp, err := gen.GenerateContent(ctx, model, userContents(&genai.Part{Text: request}), config)
	if err != nil {
		return "", err
	}
	if firstCandidate(resp) == nil {
		return "", fmt.Errorf("received empty response from Gemini API")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("received empty text from Gemini API")
	}
	return text, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

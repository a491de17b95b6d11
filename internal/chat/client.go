// Package chat adapts the Gemini API to the orchestration interfaces: the
// template and enhancement engines run on a text model and the image client
// on an image model.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// contentGenerator is the part of genai.Models the adapters call.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiClient creates a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Gemini client")
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// systemInstruction wraps text as a genai system instruction.
func systemInstruction(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

// userContents wraps parts as a single user turn.
func userContents(parts ...*genai.Part) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: parts}}
}

// firstCandidate returns the first candidate with content, or nil.
func firstCandidate(resp *genai.GenerateContentResponse) *genai.Candidate {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c != nil && c.Content != nil {
			return c
		}
	}
	return nil
}

// truncateString shortens s for log fields.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

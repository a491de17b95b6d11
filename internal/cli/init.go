// Package cli holds helpers shared by the imagegen commands.
package cli

import (
	"context"

	"github.com/fpang/gemini-image-orchestrator/internal/auth"
	"github.com/fpang/gemini-image-orchestrator/internal/chat"
	"github.com/fpang/gemini-image-orchestrator/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// InitGeminiClient creates a Gemini client and validates its key against
// probeModel. Exits fatally on failure.
func InitGeminiClient(ctx context.Context, probeModel string, em *metrics.Emitter) *genai.Client {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		HandleValidationError(err)
	}

	client, err := chat.NewGeminiClient(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini client")
	}

	if err := auth.ValidateAPIKey(ctx, client.Models, probeModel, em); err != nil {
		HandleValidationError(err)
	}

	log.Info().Msg("API key validation complete - ready for operations")
	return client
}

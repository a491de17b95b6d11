package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/gemini-image-orchestrator/internal/auth"
	"github.com/rs/zerolog/log"
)

// ResolveOutputDirectory creates dirPath if needed and returns its absolute
// path. It fails when the path exists but is not a directory.
func ResolveOutputDirectory(dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("access output directory: %w", err)
	case !info.IsDir():
		return "", fmt.Errorf("output path %s is not a directory", dirPath)
	}

	if abs, err := filepath.Abs(dirPath); err == nil {
		dirPath = abs
	}
	return dirPath, nil
}

// HandleValidationError logs auth.ValidationError with user-facing guidance and exits.
func HandleValidationError(err error) {
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		log.Fatal().Err(err).Msg("unexpected error during API key validation")
		return
	}
	switch validationErr.Type {
	case auth.ErrTypeNoKey:
		log.Fatal().Msg("No API key configured. Set GEMINI_API_KEY or IMAGEGEN_CREDENTIALS_FILE")
	case auth.ErrTypeInvalidKey:
		log.Fatal().Err(err).Msg("Invalid API key. Please check your API key and try again")
	case auth.ErrTypeNetworkError:
		log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
	case auth.ErrTypeQuotaExceeded:
		log.Fatal().Err(err).Msg("API quota exceeded. Please try again later or check your usage limits")
	default:
		log.Fatal().Err(err).Msg("API key validation failed")
	}
}

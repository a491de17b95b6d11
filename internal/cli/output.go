package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/imaging"
	"github.com/rs/zerolog/log"
)

// WriteImage saves img as <dir>/<name><ext> and returns the file path.
func WriteImage(dir, name string, img *domain.GeneratedImage) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", errors.New("no image data to write")
	}
	p := filepath.Join(dir, name+imaging.Extension(img.MIMEType))
	if err := os.WriteFile(p, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	log.Info().Str("path", p).Int("bytes", len(img.Data)).Msg("Image written")
	return p, nil
}

// LoadImage reads an input image from disk, detecting its MIME type from
// the decoded header.
func LoadImage(path string) (*domain.ImageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	_, _, format, err := imaging.Dimensions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &domain.ImageData{Data: data, MIMEType: imaging.MIMEType(format)}, nil
}

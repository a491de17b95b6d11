package domain

import (
	"context"
	"time"
)

// ImageRequest is the single call shape of the generation client.
type ImageRequest struct {
	Prompt                       string
	AspectRatio                  string
	Quality                      Quality
	Style                        Style
	InputImage                   *ImageData
	BlendImages                  []ImageData
	MaintainCharacterConsistency bool
	UseWorldKnowledge            bool
}

// NewImageRequest builds the client request for a prompt and its final parameters.
func NewImageRequest(prompt string, p ImageParameters) ImageRequest {
	req := ImageRequest{
		Prompt:                       prompt,
		Quality:                      p.Quality,
		Style:                        p.Style,
		InputImage:                   p.InputImage,
		BlendImages:                  p.BlendImages,
		MaintainCharacterConsistency: p.MaintainCharacterConsistency,
		UseWorldKnowledge:            p.UseWorldKnowledge,
	}
	if p.AspectRatio != nil {
		req.AspectRatio = p.AspectRatio.Ratio
	}
	return req
}

// ImageMetadata describes a generated image.
type ImageMetadata struct {
	Model       string        `json:"model"`
	AspectRatio string        `json:"aspectRatio,omitempty"`
	Width       int           `json:"width,omitempty"`
	Height      int           `json:"height,omitempty"`
	Format      string        `json:"format,omitempty"`
	Text        string        `json:"text,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// GeneratedImage is the output of one generation call.
type GeneratedImage struct {
	Data     []byte        `json:"-"`
	MIMEType string        `json:"mimeType"`
	Metadata ImageMetadata `json:"metadata"`
}

// GenerationClient renders one image from a prompt.
type GenerationClient interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*GeneratedImage, error)
}

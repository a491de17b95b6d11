package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/gemini-image-orchestrator/internal/assets"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/imaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// imageOnlyReminder is appended when a first attempt returned text only.
const imageOnlyReminder = "Return the result as an image. Do not answer with text alone."

// ErrNoImage is returned when the model finished without an image part.
var ErrNoImage = errors.New("model returned no image")

// ImageClient renders images through a Gemini image model. It implements
// domain.GenerationClient.
type ImageClient struct {
	gen   contentGenerator
	model string
}

// NewImageClient creates an ImageClient on client. An empty model selects
// DefaultImageModel.
func NewImageClient(client *genai.Client, model string) *ImageClient {
	return newImageClient(client.Models, model)
}

func newImageClient(gen contentGenerator, model string) *ImageClient {
	if model == "" {
		model = DefaultImageModel
	}
	return &ImageClient{gen: gen, model: model}
}

// Model returns the model ID requests are sent to.
func (c *ImageClient) Model() string {
	return c.model
}

// GenerateImage sends req to the image model and returns the first inline
// image in the response.
func (c *ImageClient) GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.GeneratedImage, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("image prompt is empty")
	}

	start := time.Now()
	config := c.buildConfig(req)
	prompt := buildImagePrompt(req)

	log.Info().
		Str("model", c.model).
		Str("aspect_ratio", req.AspectRatio).
		Str("quality", string(req.Quality)).
		Int("blend_images", len(req.BlendImages)).
		Bool("input_image", req.InputImage != nil).
		Bool("world_knowledge", req.UseWorldKnowledge).
		Msg("Sending prompt to Gemini for image generation")

	img, err := c.generate(ctx, buildImageParts(req, prompt), config)
	if errors.Is(err, ErrNoImage) && ctx.Err() == nil {
		log.Warn().Str("model", c.model).Msg("No image in response, retrying once with image-only reminder")
		img, err = c.generate(ctx, buildImageParts(req, prompt+"\n\n"+imageOnlyReminder), config)
	}
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Image generation failed")
		return nil, err
	}

	img.Metadata.Model = c.model
	img.Metadata.AspectRatio = req.AspectRatio
	img.Metadata.Duration = time.Since(start)
	if w, h, format, derr := imaging.Dimensions(img.Data); derr == nil {
		img.Metadata.Width, img.Metadata.Height, img.Metadata.Format = w, h, format
	} else {
		log.Warn().Err(derr).Str("mime_type", img.MIMEType).Msg("Could not read generated image dimensions")
	}

	log.Info().
		Int("bytes", len(img.Data)).
		Int("width", img.Metadata.Width).
		Int("height", img.Metadata.Height).
		Dur("duration", img.Metadata.Duration).
		Msg("Image generated")

	return img, nil
}

func (c *ImageClient) buildConfig(req domain.ImageRequest) *genai.GenerateContentConfig {
	system := assets.ImageSystemPrompt
	if req.MaintainCharacterConsistency {
		system += "\n\n" + assets.CharacterConsistencyPrompt
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction:  systemInstruction(system),
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	if req.AspectRatio != "" || supportsImageSize(c.model) {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
		if supportsImageSize(c.model) {
			config.ImageConfig.ImageSize = req.Quality.ImageSize()
		}
	}

	if req.UseWorldKnowledge {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return config
}

// buildImagePrompt appends the style hint to the prompt text.
func buildImagePrompt(req domain.ImageRequest) string {
	prompt := strings.TrimSpace(req.Prompt)
	if req.Style != "" {
		prompt += fmt.Sprintf("\n\nRendering style: %s.", req.Style)
	}
	return prompt
}

// buildImageParts orders the input image first, then labelled blend images,
// then the prompt text.
func buildImageParts(req domain.ImageRequest, prompt string) []*genai.Part {
	var parts []*genai.Part
	if req.InputImage != nil && len(req.InputImage.Data) > 0 {
		parts = append(parts,
			&genai.Part{Text: "Image to edit:"},
			&genai.Part{InlineData: &genai.Blob{MIMEType: req.InputImage.MIMEType, Data: req.InputImage.Data}},
		)
	}
	for i, b := range req.BlendImages {
		if len(b.Data) == 0 {
			continue
		}
		parts = append(parts,
			&genai.Part{Text: fmt.Sprintf("Reference image #%d:", i+1)},
			&genai.Part{InlineData: &genai.Blob{MIMEType: b.MIMEType, Data: b.Data}},
		)
	}
	return append(parts, &genai.Part{Text: prompt})
}

func (c *ImageClient) generate(ctx context.Context, parts []*genai.Part, config *genai.GenerateContentConfig) (*domain.GeneratedImage, error) {
	resp, err := c.gen.GenerateContent(ctx, c.model, userContents(parts...), config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	return extractImage(resp)
}

// extractImage returns the first inline image part of the response together
// with any text the model sent alongside it.
func extractImage(resp *genai.GenerateContentResponse) (*domain.GeneratedImage, error) {
	cand := firstCandidate(resp)
	if cand == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("received empty response from Gemini API")
	}

	var text strings.Builder
	var img *domain.GeneratedImage
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && img == nil {
			img = &domain.GeneratedImage{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}

	if img == nil {
		if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop {
			return nil, fmt.Errorf("image generation stopped: %s", cand.FinishReason)
		}
		return nil, fmt.Errorf("%w (text: %s)", ErrNoImage, truncateString(text.String(), 200))
	}
	if img.MIMEType == "" {
		if _, _, format, err := imaging.Dimensions(img.Data); err == nil {
			img.MIMEType = imaging.MIMEType(format)
		}
	}
	img.Metadata.Text = strings.TrimSpace(text.String())
	return img, nil
}

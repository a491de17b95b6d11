package chat

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/gemini-image-orchestrator/internal/assets"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

// fakeGenerator replays responses in order and records every call.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	err       error
	calls     []generateCall
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{model: model, contents: contents, config: config})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func response(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return response(&genai.Part{Text: text})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func partText(parts []*genai.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func TestImageClient_GenerateImage(t *testing.T) {
	data := pngBytes(t, 32, 18)
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{
		response(
			&genai.Part{Text: "Here is your harbor."},
			&genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
		),
	}}
	client := newImageClient(gen, "")

	img, err := client.GenerateImage(context.Background(), domain.ImageRequest{
		Prompt:            "a harbor at dawn",
		AspectRatio:       "16:9",
		Quality:           domain.QualityHigh,
		Style:             domain.StyleVivid,
		UseWorldKnowledge: true,
	})
	require.NoError(t, err)

	assert.Equal(t, data, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, DefaultImageModel, img.Metadata.Model)
	assert.Equal(t, "16:9", img.Metadata.AspectRatio)
	assert.Equal(t, 32, img.Metadata.Width)
	assert.Equal(t, 18, img.Metadata.Height)
	assert.Equal(t, "png", img.Metadata.Format)
	assert.Equal(t, "Here is your harbor.", img.Metadata.Text)

	require.Len(t, gen.calls, 1)
	call := gen.calls[0]
	assert.Equal(t, DefaultImageModel, call.model)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, call.config.ResponseModalities)
	require.NotNil(t, call.config.ImageConfig)
	assert.Equal(t, "16:9", call.config.ImageConfig.AspectRatio)
	assert.Empty(t, call.config.ImageConfig.ImageSize, "flash image model takes no image size")
	require.Len(t, call.config.Tools, 1)
	assert.NotNil(t, call.config.Tools[0].GoogleSearch)

	text := partText(call.contents[0].Parts)
	assert.Contains(t, text, "a harbor at dawn")
	assert.Contains(t, text, "Rendering style: vivid.")
}

func TestImageClient_ImageSizeOnProModel(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{
		response(&genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: pngBytes(t, 4, 4)}}),
	}}
	client := newImageClient(gen, ModelGemini3ProImage)

	_, err := client.GenerateImage(context.Background(), domain.ImageRequest{Prompt: "x", Quality: domain.QualityUltra})
	require.NoError(t, err)
	require.NotNil(t, gen.calls[0].config.ImageConfig)
	assert.Equal(t, "4K", gen.calls[0].config.ImageConfig.ImageSize)
	assert.Nil(t, gen.calls[0].config.Tools)
}

func TestImageClient_CharacterConsistencyAndImages(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{
		response(&genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: pngBytes(t, 4, 4)}}),
	}}
	client := newImageClient(gen, "")

	_, err := client.GenerateImage(context.Background(), domain.ImageRequest{
		Prompt:                       "the same knight, now riding",
		MaintainCharacterConsistency: true,
		InputImage:                   &domain.ImageData{Data: []byte{1}, MIMEType: "image/png"},
		BlendImages:                  []domain.ImageData{{Data: []byte{2}, MIMEType: "image/jpeg"}},
	})
	require.NoError(t, err)

	call := gen.calls[0]
	system := partText(call.config.SystemInstruction.Parts)
	assert.Contains(t, system, assets.CharacterConsistencyPrompt)

	parts := call.contents[0].Parts
	require.Len(t, parts, 5)
	assert.Equal(t, "Image to edit:", parts[0].Text)
	assert.Equal(t, []byte{1}, parts[1].InlineData.Data)
	assert.Equal(t, "Reference image #1:", parts[2].Text)
	assert.Equal(t, "image/jpeg", parts[3].InlineData.MIMEType)
	assert.Equal(t, "the same knight, now riding", parts[4].Text)
}

func TestImageClient_RetriesOnceWhenTextOnly(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{
		textResponse("I can describe it instead."),
		response(&genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: pngBytes(t, 4, 4)}}),
	}}
	client := newImageClient(gen, "")

	img, err := client.GenerateImage(context.Background(), domain.ImageRequest{Prompt: "a fox"})
	require.NoError(t, err)
	assert.NotEmpty(t, img.Data)
	require.Len(t, gen.calls, 2)
	assert.Contains(t, partText(gen.calls[1].contents[0].Parts), imageOnlyReminder)
}

func TestImageClient_Errors(t *testing.T) {
	t.Run("text only twice", func(t *testing.T) {
		gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{textResponse("no"), textResponse("still no")}}
		_, err := newImageClient(gen, "").GenerateImage(context.Background(), domain.ImageRequest{Prompt: "a fox"})
		assert.ErrorIs(t, err, ErrNoImage)
	})

	t.Run("safety stop", func(t *testing.T) {
		resp := textResponse("")
		resp.Candidates[0].FinishReason = genai.FinishReasonSafety
		gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{resp}}
		_, err := newImageClient(gen, "").GenerateImage(context.Background(), domain.ImageRequest{Prompt: "a fox"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SAFETY")
		assert.Len(t, gen.calls, 1)
	})

	t.Run("api error", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("quota")}
		_, err := newImageClient(gen, "").GenerateImage(context.Background(), domain.ImageRequest{Prompt: "a fox"})
		assert.ErrorContains(t, err, "quota")
	})

	t.Run("empty prompt", func(t *testing.T) {
		gen := &fakeGenerator{}
		_, err := newImageClient(gen, "").GenerateImage(context.Background(), domain.ImageRequest{Prompt: "  "})
		assert.Error(t, err)
		assert.Empty(t, gen.calls)
	})
}

func TestTemplateEngine_ApplyTemplate(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{
		textResponse("```json\n{\"structuredPrompt\": \"Subject: a lighthouse. Setting: stormy coast.\", \"appliedFeatures\": [\"subject\", \"setting\"]}\n```"),
	}}
	engine := newTemplateEngine(gen, "")

	res, err := engine.ApplyTemplate(context.Background(), "a lighthouse in a storm", orchestrator.DefaultTemplate,
		orchestrator.TemplateOptions{Features: []string{"lighting"}})
	require.NoError(t, err)

	assert.Equal(t, "Subject: a lighthouse. Setting: stormy coast.", res.StructuredPrompt)
	assert.Equal(t, []string{"subject", "setting"}, res.AppliedFeatures)
	assert.Equal(t, DefaultTextModel, res.ProcessingMeta["model"])
	assert.Equal(t, orchestrator.DefaultTemplate.Name, res.ProcessingMeta["template"])

	call := gen.calls[0]
	assert.Equal(t, DefaultTextModel, call.model)
	assert.Equal(t, "application/json", call.config.ResponseMIMEType)
	request := partText(call.contents[0].Parts)
	assert.Contains(t, request, "a lighthouse in a storm")
	assert.Contains(t, request, "lighting")
}

func TestTemplateEngine_Failures(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"not json", textResponse("sorry, I cannot help")},
		{"empty prompt", textResponse(`{"structuredPrompt": "  ", "appliedFeatures": []}`)},
		{"no candidates", &genai.GenerateContentResponse{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{tt.resp}}
			_, err := newTemplateEngine(gen, "").ApplyTemplate(context.Background(), "x", orchestrator.DefaultTemplate, orchestrator.TemplateOptions{})
			assert.Error(t, err)
		})
	}
}

func TestEnhancer_ApplyBestPractices(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{
		textResponse(`{"enhancedPrompt": "A weathered lighthouse on a basalt cliff, storm light, 35mm lens", "appliedPractices": ["lighting-description"]}`),
	}}
	enhancer := newEnhancer(gen, "custom-text")

	res, err := enhancer.ApplyBestPractices(context.Background(), "Subject: a lighthouse.", orchestrator.EnhancementOptions{})
	require.NoError(t, err)
	assert.Equal(t, "A weathered lighthouse on a basalt cliff, storm light, 35mm lens", res.EnhancedPrompt)
	assert.Equal(t, []string{"lighting-description"}, res.AppliedPractices)
	assert.Equal(t, false, res.TransformationMeta["truncated"])
	assert.Equal(t, "custom-text", gen.calls[0].model)

	request := partText(gen.calls[0].contents[0].Parts)
	for _, p := range DefaultPractices {
		assert.Contains(t, request, p)
	}
}

func TestEnhancer_MaxWords(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{
		textResponse(`{"enhancedPrompt": "one two three four five", "appliedPractices": null}`),
	}}
	res, err := newEnhancer(gen, "").ApplyBestPractices(context.Background(), "x", orchestrator.EnhancementOptions{MaxWords: 3})
	require.NoError(t, err)
	assert.Equal(t, "one two three", res.EnhancedPrompt)
	assert.Equal(t, []string{}, res.AppliedPractices)
	assert.Equal(t, true, res.TransformationMeta["truncated"])
}

func TestLimitWords(t *testing.T) {
	out, cut := limitWords("a  b c", 5)
	assert.Equal(t, "a  b c", out)
	assert.False(t, cut)

	out, cut = limitWords("a b c", 2)
	assert.Equal(t, "a b", out)
	assert.True(t, cut)
}

package main

import (
	"context"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/gemini-image-orchestrator/internal/config"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/fpang/gemini-image-orchestrator/internal/pipeline"
)

type stubTemplates struct{}

func (stubTemplates) ApplyTemplate(_ context.Context, prompt string, _ orchestrator.Template, _ orchestrator.TemplateOptions) (*orchestrator.TemplateResult, error) {
	return &orchestrator.TemplateResult{StructuredPrompt: "Subject: " + prompt, AppliedFeatures: []string{"subject"}}, nil
}

type stubEnhancer struct{}

func (stubEnhancer) ApplyBestPractices(_ context.Context, text string, _ orchestrator.EnhancementOptions) (*orchestrator.EnhancementResult, error) {
	return &orchestrator.EnhancementResult{EnhancedPrompt: text + ", golden hour", AppliedPractices: []string{"lighting-description"}}, nil
}

type stubClient struct {
	mu       sync.Mutex
	requests []domain.ImageRequest
}

func (c *stubClient) GenerateImage(_ context.Context, req domain.ImageRequest) (*domain.GeneratedImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return &domain.GeneratedImage{Data: []byte("png"), MIMEType: "image/png"}, nil
}

func newTestTools(t *testing.T) (*mcpTools, *stubClient) {
	t.Helper()
	client := &stubClient{}
	p, err := pipeline.New(config.Default(), pipeline.Deps{
		Templates: stubTemplates{},
		Enhancer:  stubEnhancer{},
		Client:    client,
	})
	require.NoError(t, err)
	return &mcpTools{pipeline: p}, client
}

func TestNewMCPServer(t *testing.T) {
	tools, _ := newTestTools(t)
	assert.NotNil(t, newMCPServer(tools))
}

func TestMCP_StructurePrompt(t *testing.T) {
	tools, _ := newTestTools(t)

	res, out, err := tools.structurePrompt(context.Background(), nil, structureInput{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, "Subject: a fox, golden hour", out.StructuredPrompt)
	assert.Len(t, out.Stages, 2)
	assert.Equal(t, 1.0, out.SuccessRate)
	require.Len(t, res.Content, 1)
	assert.Equal(t, out.StructuredPrompt, res.Content[0].(*mcp.TextContent).Text)

	skip := true
	_, out, err = tools.structurePrompt(context.Background(), nil, structureInput{
		Prompt:  "a fox",
		Options: &promptOptions{SkipStructuring: &skip},
	})
	require.NoError(t, err)
	assert.Equal(t, "a fox, golden hour", out.StructuredPrompt)
}

func TestMCP_GenerateImage(t *testing.T) {
	tools, client := newTestTools(t)

	res, out, err := tools.generateImage(context.Background(), nil, imageInput{
		Prompt:      "a fox in the snow",
		AspectRatio: "16:9",
		Quality:     "high",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.SessionID)
	assert.Contains(t, out.FinalPrompt, "golden hour")
	assert.Equal(t, "16:9", out.AspectRatio)
	assert.False(t, out.FallbackUsed)

	require.Len(t, res.Content, 2)
	img, ok := res.Content[0].(*mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	require.Len(t, client.requests, 1)
	assert.Equal(t, "16:9", client.requests[0].AspectRatio)
}

func TestMCP_GenerateImageRejectsBadParameters(t *testing.T) {
	tools, client := newTestTools(t)

	_, _, err := tools.generateImage(context.Background(), nil, imageInput{
		Prompt:      "a fox",
		AspectRatio: "5:4",
		Style:       "smudgy",
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.ErrorContains(t, err, "5:4")
	assert.ErrorContains(t, err, "smudgy")
	assert.Empty(t, client.requests)
}

func TestMCP_CoordinateImages(t *testing.T) {
	tools, client := newTestTools(t)

	_, out, err := tools.coordinateImages(context.Background(), nil, batchInput{
		BasePrompt: "a knight in a red cloak crossing a misty valley",
		Requirements: []batchRequirement{
			{ID: "wide", Prompt: "establishing shot", AspectRatio: "16:9", Priority: 2, Character: true, Style: true},
			{ID: "close", Prompt: "close-up portrait", Priority: 1, Character: true, Style: true},
		},
		ConsistencyLevel: "strict",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.BatchID)
	assert.Len(t, out.Images, 2)
	assert.Empty(t, out.Failures)
	assert.Len(t, client.requests, 2)
}

func TestMCP_CoordinateImagesRejectsUnknownRatio(t *testing.T) {
	tools, client := newTestTools(t)

	_, _, err := tools.coordinateImages(context.Background(), nil, batchInput{
		BasePrompt:   "a lighthouse",
		Requirements: []batchRequirement{{ID: "a", AspectRatio: "11:2"}},
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, client.requests)
}

func TestImageFlags_Parameters(t *testing.T) {
	p, err := imageFlags{aspectRatio: "3:4", quality: "ultra", style: "cinematic", character: true}.parameters()
	require.NoError(t, err)
	require.NotNil(t, p.AspectRatio)
	assert.Equal(t, domain.RatioPortrait, *p.AspectRatio)
	assert.Equal(t, domain.QualityUltra, p.Quality)
	assert.Equal(t, domain.StyleCinematic, p.Style)
	assert.True(t, p.MaintainCharacterConsistency)

	_, err = imageFlags{inputImage: "/does/not/exist.png"}.parameters()
	assert.True(t, domain.IsValidation(err))
}

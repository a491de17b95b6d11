package pipeline

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/gemini-image-orchestrator/internal/config"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/multiimage"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/fpang/gemini-image-orchestrator/internal/twostage"
)

type fakeTemplates struct{}

func (fakeTemplates) ApplyTemplate(_ context.Context, prompt string, tpl orchestrator.Template, _ orchestrator.TemplateOptions) (*orchestrator.TemplateResult, error) {
	return &orchestrator.TemplateResult{StructuredPrompt: "Subject: " + prompt, AppliedFeatures: []string{"subject"}}, nil
}

type fakeEnhancer struct{}

func (fakeEnhancer) ApplyBestPractices(_ context.Context, text string, _ orchestrator.EnhancementOptions) (*orchestrator.EnhancementResult, error) {
	return &orchestrator.EnhancementResult{EnhancedPrompt: text + ", soft window light", AppliedPractices: []string{"lighting-description"}}, nil
}

type fakeClient struct {
	mu       sync.Mutex
	requests []domain.ImageRequest
}

func (f *fakeClient) GenerateImage(_ context.Context, req domain.ImageRequest) (*domain.GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return &domain.GeneratedImage{Data: []byte("img"), MIMEType: "image/png"}, nil
}

func testDeps(client *fakeClient) Deps {
	return Deps{Templates: fakeTemplates{}, Enhancer: fakeEnhancer{}, Client: client}
}

func TestNew_Validation(t *testing.T) {
	cfg := config.Default()
	cfg.Processor.Timeout = 0
	_, err := New(cfg, testDeps(&fakeClient{}))
	assert.ErrorContains(t, err, "processor.timeout")

	_, err = New(config.Default(), Deps{Templates: fakeTemplates{}})
	assert.Error(t, err)
}

func TestPipeline_TwoStageEndToEnd(t *testing.T) {
	var emf bytes.Buffer
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	deps := testDeps(&fakeClient{})
	deps.MetricsOut = &emf

	p, err := New(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, p.ValidateConfiguration())

	res, err := p.Processor.GenerateImageWithStructuredPrompt(context.Background(), twostage.Request{
		OriginalPrompt: "an old fisherman mending nets",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Subject: an old fisherman mending nets, soft window light", res.FinalPrompt)
	assert.NotNil(t, res.FinalParameters.AspectRatio)
	assert.True(t, res.Session.Sealed)

	got, err := p.Processor.GetProcessingMetadata(context.Background(), res.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.Session.SessionID, got.SessionID)
	assert.Contains(t, emf.String(), "TwoStageTotalMs")

	m, ok := p.Orchestrator.LastMetrics()
	require.True(t, ok)
	assert.Equal(t, 1.0, m.SuccessRate)
}

func TestPipeline_BatchUsesConfiguredConcurrency(t *testing.T) {
	cfg := config.Default()
	cfg.Coordinator.MaxConcurrentImages = 2
	client := &fakeClient{}
	p, err := New(cfg, testDeps(client))
	require.NoError(t, err)

	opts := p.ProcessingOptions()
	assert.True(t, opts.EnableParallelProcessing)
	assert.Equal(t, 2, opts.MaxConcurrentImages)

	flags := &multiimage.ConsistencyFlags{Character: true, Style: true}
	res, err := p.Coordinator.CoordinateMultipleImages(context.Background(), multiimage.Request{
		BasePrompt: "a red fox in a snowy forest",
		ImageRequirements: []multiimage.ImageRequirement{
			{ID: "a", SpecificPrompt: "sleeping", Priority: 1, Consistency: flags},
			{ID: "b", SpecificPrompt: "hunting", Priority: 1, Consistency: flags},
			{ID: "c", SpecificPrompt: "running", Priority: 1, Consistency: flags},
		},
		ProcessingOptions: opts,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.ProcessedImages, 3)
	assert.Equal(t, 2, res.ProcessingMetadata.ConcurrentImages)
	assert.Len(t, client.requests, 3)
	assert.Len(t, p.Sessions.List(context.Background()), 3)
}

func TestPipeline_StageTimeoutFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.StageTimeout = 5 * time.Second
	p, err := New(cfg, testDeps(&fakeClient{}))
	require.NoError(t, err)
	assert.NoError(t, p.Orchestrator.ValidateConfiguration())
}

package multiimage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/optimizer"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/fpang/gemini-image-orchestrator/internal/store"
	"github.com/fpang/gemini-image-orchestrator/internal/twostage"
)

type fakeProcessor struct {
	mu       sync.Mutex
	requests []twostage.Request
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    func(prompt string) time.Duration
	fail     func(prompt string) bool
	size     [2]int
}

func (f *fakeProcessor) GenerateImageWithStructuredPrompt(_ context.Context, req twostage.Request) (*twostage.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay != nil {
		time.Sleep(f.delay(req.OriginalPrompt))
	}
	if f.fail != nil && f.fail(req.OriginalPrompt) {
		return nil, domain.Collaborator("fake", "generation failed", errors.New("boom"))
	}
	img := &domain.GeneratedImage{Data: []byte("img"), MIMEType: "image/png"}
	img.Metadata.Width, img.Metadata.Height = f.size[0], f.size[1]
	return &twostage.Result{
		Success:         true,
		Image:           img,
		FinalPrompt:     req.OriginalPrompt,
		FinalParameters: req.ImageParameters,
		Session:         &store.ProcessingSession{SessionID: "sess-" + req.OriginalPrompt[:3], Sealed: true},
	}, nil
}

func flags() *ConsistencyFlags {
	return &ConsistencyFlags{Character: true, Style: true, Environment: true, Lighting: true, Mood: true}
}

func requirements(n int) []ImageRequirement {
	out := make([]ImageRequirement, n)
	for i := range out {
		out[i] = ImageRequirement{
			ID:             string(rune('a' + i)),
			SpecificPrompt: "scene number " + string(rune('a'+i)),
			Priority:       1,
			Consistency:    flags(),
		}
	}
	return out
}

func TestCoordinate_InvalidRequest(t *testing.T) {
	c := New(&fakeProcessor{}, nil)
	_, err := c.CoordinateMultipleImages(context.Background(), Request{BasePrompt: "", ImageRequirements: nil})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "Invalid request")
}

func TestCoordinate_RequirementValidation(t *testing.T) {
	reqs := []ImageRequirement{
		{ID: "a", Priority: 1, Consistency: flags()},
		{ID: "a", Priority: 0},
	}
	_, err := New(&fakeProcessor{}, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:          "a knight",
		ImageRequirements:   reqs,
		AspectRatioStrategy: "sideways",
		ProcessingOptions:   &ProcessingOptions{},
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `duplicate id "a"`)
	assert.Contains(t, msg, "consistency is required")
	assert.Contains(t, msg, "priority must be at least 1")
	assert.Contains(t, msg, "unknown aspect ratio strategy")
}

func TestCoordinate_WindowedConcurrency(t *testing.T) {
	proc := &fakeProcessor{delay: func(string) time.Duration { return 20 * time.Millisecond }}
	c := New(proc, nil)

	res, err := c.CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:        "a knight in a red cloak",
		ImageRequirements: requirements(5),
		ProcessingOptions: &ProcessingOptions{EnableParallelProcessing: true, MaxConcurrentImages: 3},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	md := res.ProcessingMetadata
	assert.LessOrEqual(t, md.ConcurrentImages, 3)
	assert.LessOrEqual(t, int(proc.peak.Load()), 3)
	assert.LessOrEqual(t, md.PeakConcurrency, 3)
	assert.Equal(t, 2, md.Windows)
	assert.True(t, md.ParallelProcessing)
	assert.GreaterOrEqual(t, len(res.ProcessedImages), 1)
	assert.LessOrEqual(t, len(res.ProcessedImages), 5)
	assert.True(t, strings.HasPrefix(md.SessionID, "batch-"))
}

func TestCoordinate_PreservesInputOrder(t *testing.T) {
	// Earlier items take longer so completion order is reversed.
	proc := &fakeProcessor{delay: func(p string) time.Duration {
		switch {
		case strings.Contains(p, "number a"):
			return 60 * time.Millisecond
		case strings.Contains(p, "number b"):
			return 30 * time.Millisecond
		default:
			return 0
		}
	}}
	res, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:        "a knight",
		ImageRequirements: requirements(3),
		ProcessingOptions: &ProcessingOptions{EnableParallelProcessing: true, MaxConcurrentImages: 3},
	})
	require.NoError(t, err)
	var ids []string
	for _, img := range res.ProcessedImages {
		ids = append(ids, img.RequirementID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestCoordinate_SequentialWhenParallelDisabled(t *testing.T) {
	proc := &fakeProcessor{delay: func(string) time.Duration { return 5 * time.Millisecond }}
	res, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:        "a knight",
		ImageRequirements: requirements(4),
		ProcessingOptions: &ProcessingOptions{EnableParallelProcessing: false, MaxConcurrentImages: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), proc.peak.Load())
	assert.False(t, res.ProcessingMetadata.ParallelProcessing)
	assert.Equal(t, 1, res.ProcessingMetadata.ConcurrentImages)
	assert.Equal(t, 4, res.ProcessingMetadata.Windows)
}

func TestCoordinate_PartialFailure(t *testing.T) {
	proc := &fakeProcessor{fail: func(p string) bool { return strings.Contains(p, "number b") }}
	res, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:        "a knight",
		ImageRequirements: requirements(3),
		ProcessingOptions: &ProcessingOptions{EnableParallelProcessing: true, MaxConcurrentImages: 2},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.ProcessedImages, 2)
	assert.Equal(t, "a", res.ProcessedImages[0].RequirementID)
	assert.Equal(t, "c", res.ProcessedImages[1].RequirementID)
	assert.Equal(t, 1, res.ProcessingMetadata.FailedImages)
	assert.Equal(t, "b", res.ProcessingMetadata.Failures[0].RequirementID)
}

func TestCoordinate_AllFailed(t *testing.T) {
	proc := &fakeProcessor{fail: func(string) bool { return true }}
	_, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:        "a knight",
		ImageRequirements: requirements(3),
		ProcessingOptions: &ProcessingOptions{EnableParallelProcessing: true},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindAggregate, domain.KindOf(err))
	assert.Contains(t, err.Error(), "all 3 images failed")
}

func TestCoordinate_LastImageStrategy(t *testing.T) {
	square, wide := domain.RatioSquare, domain.RatioWidescreen
	proc := &fakeProcessor{}
	res, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt: "a lighthouse keeper",
		ImageRequirements: []ImageRequirement{
			{ID: "a", AspectRatio: &square, Priority: 1, Consistency: flags()},
			{ID: "b", AspectRatio: &wide, Priority: 1, Consistency: flags()},
		},
		AspectRatioStrategy: "LAST_IMAGE",
		ProcessingOptions:   &ProcessingOptions{EnableParallelProcessing: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "LAST_IMAGE", res.AspectRatioSource)
	for _, img := range res.ProcessedImages {
		assert.Equal(t, "16:9", img.AspectRatio.OptimizedRatio.Ratio)
		assert.Equal(t, "16:9", img.FinalParameters.AspectRatio.Ratio)
	}
}

func TestCoordinate_ConsistencyRulesAppliedToPrompts(t *testing.T) {
	proc := &fakeProcessor{}
	res, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:        "a watercolor of a fox in a forest at dusk",
		ImageRequirements: requirements(2),
		ConsistencyLevel:  "STRICT",
		ProcessingOptions: &ProcessingOptions{},
	})
	require.NoError(t, err)
	p := res.ProcessedImages[0].EnhancedPrompt
	assert.Contains(t, p, "maintaining consistent character (fox)")
	assert.Contains(t, p, "maintaining consistent style (watercolor)")
	assert.Contains(t, p, "maintaining consistent environment (forest)")
	assert.Contains(t, p, "maintaining consistent lighting (dusk)")
	assert.True(t, proc.requests[0].ImageParameters.MaintainCharacterConsistency)

	m := res.ConsistencyMetrics
	for _, v := range []float64{m.OverallScore, m.PromptConsistency, m.CharacterConsistency, m.StyleConsistency,
		m.EnvironmentConsistency, m.LightingConsistency, m.MoodConsistency} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, m.OverallScore >= CoherenceThreshold, m.IsCoherent)
	assert.True(t, m.IsCoherent)
}

func TestCoordinate_AspectFidelityReported(t *testing.T) {
	proc := &fakeProcessor{size: [2]int{1024, 1024}}
	wide := domain.RatioWidescreen
	reqs := requirements(1)
	reqs[0].AspectRatio = &wide
	res, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt:          "a harbour",
		ImageRequirements:   reqs,
		AspectRatioStrategy: "LAST_IMAGE",
		ProcessingOptions:   &ProcessingOptions{},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ConsistencyMetrics.FailedValidations)
	assert.Contains(t, res.ConsistencyMetrics.FailedValidations[len(res.ConsistencyMetrics.FailedValidations)-1], "off the requested 16:9")
	assert.Equal(t, 1.0, res.ConsistencyMetrics.OverallScore)
}

type echoOrchestrator struct{}

func (echoOrchestrator) GenerateStructuredPrompt(_ context.Context, prompt string, _ *orchestrator.Options) (*orchestrator.OrchestrationResult, error) {
	return &orchestrator.OrchestrationResult{OriginalPrompt: prompt, StructuredPrompt: prompt}, nil
}

func (echoOrchestrator) ValidateConfiguration() error { return nil }

type pngClient struct{}

func (pngClient) GenerateImage(_ context.Context, _ domain.ImageRequest) (*domain.GeneratedImage, error) {
	return &domain.GeneratedImage{Data: []byte("img"), MIMEType: "image/png"}, nil
}

func TestCoordinate_UniformRatioSurvivesParameterOptimization(t *testing.T) {
	proc := twostage.New(echoOrchestrator{}, optimizer.New(), pngClient{}, store.NewMemoryStore(), twostage.DefaultConfig())
	res, err := New(proc, nil).CoordinateMultipleImages(context.Background(), Request{
		BasePrompt: "a quiet morning",
		ImageRequirements: []ImageRequirement{
			{ID: "a", SpecificPrompt: "mountain valley at dawn", Priority: 1, Consistency: &ConsistencyFlags{}},
			{ID: "b", SpecificPrompt: "ocean horizon", Priority: 1, Consistency: &ConsistencyFlags{}},
			{ID: "c", SpecificPrompt: "a woman reading", Priority: 1, Consistency: &ConsistencyFlags{}},
		},
		AspectRatioStrategy: "UNIFORM",
		ProcessingOptions:   &ProcessingOptions{},
	})
	require.NoError(t, err)
	require.Len(t, res.ProcessedImages, 3)
	for _, img := range res.ProcessedImages {
		require.NotNil(t, img.FinalParameters.AspectRatio, img.RequirementID)
		assert.Equal(t, "16:9", img.AspectRatio.OptimizedRatio.Ratio, img.RequirementID)
		assert.Equal(t, "16:9", img.FinalParameters.AspectRatio.Ratio, img.RequirementID)
	}
	for _, msg := range res.ConsistencyMetrics.FailedValidations {
		assert.NotContains(t, msg, "instead of the resolved")
	}
}

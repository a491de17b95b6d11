package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/gemini-image-orchestrator/internal/config"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/multiimage"
)

func TestResolveRatio(t *testing.T) {
	r, err := ResolveRatio(&domain.AspectRatio{Ratio: "16:9"})
	require.NoError(t, err)
	assert.Equal(t, domain.RatioWidescreen, *r)

	r, err = ResolveRatio(nil)
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = ResolveRatio(&domain.AspectRatio{Ratio: "5:1"})
	assert.Error(t, err)
}

func TestPrepareBatch(t *testing.T) {
	p, err := New(config.Default(), testDeps(&fakeClient{}))
	require.NoError(t, err)

	t.Run("fills options and ratios", func(t *testing.T) {
		req := multiimage.Request{
			BasePrompt: "a lighthouse",
			ImageRequirements: []multiimage.ImageRequirement{
				{ID: "a", AspectRatio: &domain.AspectRatio{Ratio: "9:16"}},
				{ID: "b", ImageParameters: &domain.ImageParameters{Quality: domain.QualityHigh}},
			},
		}
		require.NoError(t, p.PrepareBatch(&req))
		require.NotNil(t, req.ProcessingOptions)
		assert.Equal(t, p.Config.Coordinator.MaxConcurrentImages, req.ProcessingOptions.MaxConcurrentImages)
		assert.Equal(t, domain.RatioTall.Width, req.ImageRequirements[0].AspectRatio.Width)
	})

	t.Run("collects every problem", func(t *testing.T) {
		req := multiimage.Request{
			BasePrompt: "a lighthouse",
			ImageRequirements: []multiimage.ImageRequirement{
				{ID: "a", AspectRatio: &domain.AspectRatio{Ratio: "7:3"}},
				{ID: "b", ImageParameters: &domain.ImageParameters{Style: "blurry"}},
			},
		}
		err := p.PrepareBatch(&req)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
		assert.ErrorContains(t, err, "imageRequirements[0].aspectRatio")
		assert.ErrorContains(t, err, "imageRequirements[1].imageParameters")
	})
}

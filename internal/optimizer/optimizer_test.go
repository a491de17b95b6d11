package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

func ratio(r domain.AspectRatio) *domain.AspectRatio {
	return &r
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text       string
		content    ContentType
		complexity Complexity
	}{
		{"A headshot of a violinist", ContentPortrait, ComplexityModerate},
		{"A simple clean product shot of a perfume bottle", ContentProduct, ComplexitySimple},
		{"An intricate detailed cathedral facade", ContentArchitecture, ComplexityComplex},
		{"Sunset over the ocean", ContentLandscape, ComplexityModerate},
		{"An abstract watercolor", ContentArtistic, ComplexityModerate},
		{"Two cats arguing", ContentScene, ComplexityModerate},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a := Classify(tt.text)
			assert.Equal(t, tt.content, a.ContentType)
			assert.Equal(t, tt.complexity, a.Complexity)
		})
	}
}

func TestOptimize_FillsMissingParameters(t *testing.T) {
	out, err := New().OptimizeForStructuredPrompt("a portrait of a fisherman", domain.ImageParameters{})
	require.NoError(t, err)
	assert.Equal(t, "3:4", out.AspectRatio.Ratio)
	assert.Equal(t, domain.QualityHigh, out.Quality)
	assert.Equal(t, domain.StyleNatural, out.Style)
	assert.Equal(t, []string{
		"aspect ratio set to 3:4 for portrait content",
		"quality raised to high for moderate portrait content",
		"style set to natural for portrait content",
	}, out.OptimizationReasons)
}

func TestOptimize_RatioOverridePolicy(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		given domain.AspectRatio
		want  string
	}{
		{"portrait with wide ratio overridden", "portrait of a chef", domain.RatioWidescreen, "3:4"},
		{"landscape with tall ratio overridden", "a mountain lake", domain.RatioTall, "16:9"},
		{"portrait with square kept", "portrait of a chef", domain.RatioSquare, "1:1"},
		{"product with wide kept", "a product shot of headphones", domain.RatioWidescreen, "16:9"},
		{"architecture with tall kept", "a skyscraper", domain.RatioTall, "9:16"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New().OptimizeForStructuredPrompt(tt.text, domain.ImageParameters{AspectRatio: ratio(tt.given)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.AspectRatio.Ratio)
		})
	}
}

func TestOptimize_StyleIsCallerAuthoritative(t *testing.T) {
	texts := []string{
		"a portrait of a dancer",
		"macro close-up of a dewdrop",
		"an abstract oil painting",
		"cinematic epic battle",
		"",
	}
	for _, text := range texts {
		for _, style := range []domain.Style{domain.StyleNatural, domain.StyleVivid, domain.StyleCinematic} {
			out, err := New().OptimizeForStructuredPrompt(text, domain.ImageParameters{Style: style})
			require.NoError(t, err)
			assert.Equal(t, style, out.Style, "text %q", text)
		}
	}
}

func TestOptimize_QualityNeverDowngraded(t *testing.T) {
	out, err := New().OptimizeForStructuredPrompt("a simple abstract sketch", domain.ImageParameters{Quality: domain.QualityUltra})
	require.NoError(t, err)
	assert.Equal(t, domain.QualityUltra, out.Quality)
	assert.Contains(t, out.OptimizationReasons, "kept requested quality ultra")
}

func TestOptimize_FlagsOnlyEnabled(t *testing.T) {
	base := domain.ImageParameters{UseWorldKnowledge: true, MaintainCharacterConsistency: true}
	out, err := New().OptimizeForStructuredPrompt("a cat", base)
	require.NoError(t, err)
	assert.True(t, out.UseWorldKnowledge)
	assert.True(t, out.MaintainCharacterConsistency)

	out, err = New().OptimizeForStructuredPrompt("the famous landmark with the same character", domain.ImageParameters{})
	require.NoError(t, err)
	assert.True(t, out.UseWorldKnowledge)
	assert.True(t, out.MaintainCharacterConsistency)
}

func TestOptimize_SecondaryPasses(t *testing.T) {
	out, err := New().OptimizeForStructuredPrompt("a cinematic still life painting", domain.ImageParameters{})
	require.NoError(t, err)
	assert.Equal(t, "16:9", out.AspectRatio.Ratio)
	assert.Equal(t, "cinematic content: square ratio widened to 16:9", out.OptimizationReasons[len(out.OptimizationReasons)-1])

	out, err = New().OptimizeForStructuredPrompt("macro shot of a beetle", domain.ImageParameters{})
	require.NoError(t, err)
	assert.Equal(t, domain.QualityHigh, out.Quality)
	assert.Equal(t, domain.StyleEnhanced, out.Style)
}

func TestOptimize_DoesNotMutateBase(t *testing.T) {
	base := domain.ImageParameters{AspectRatio: ratio(domain.RatioWidescreen)}
	_, err := New().OptimizeForStructuredPrompt("portrait of a chef", base)
	require.NoError(t, err)
	assert.Equal(t, "16:9", base.AspectRatio.Ratio)
}

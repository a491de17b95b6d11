package optimizer

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

// recommendation is the parameter set suggested for a content type.
type recommendation struct {
	ratio   domain.AspectRatio
	quality domain.Quality
	style   domain.Style
}

var recommendations = map[ContentType]recommendation{
	ContentPortrait:     {domain.RatioPortrait, domain.QualityHigh, domain.StyleNatural},
	ContentProduct:      {domain.RatioSquare, domain.QualityHigh, domain.StyleEnhanced},
	ContentLandscape:    {domain.RatioWidescreen, domain.QualityHigh, domain.StyleVivid},
	ContentArchitecture: {domain.RatioLandscape, domain.QualityHigh, domain.StyleNatural},
	ContentArtistic:     {domain.RatioSquare, domain.QualityStandard, domain.StyleArtistic},
	ContentScene:        {domain.RatioWidescreen, domain.QualityStandard, domain.StyleNatural},
}

// OptimizedParameters are the caller's parameters after optimization, plus
// the ordered reasons for every decision taken.
type OptimizedParameters struct {
	domain.ImageParameters
	Analysis            Analysis `json:"analysis"`
	OptimizationReasons []string `json:"optimizationReasons"`
}

// Optimizer derives generation parameters from prompt content. It is
// stateless and safe for concurrent use.
type Optimizer struct{}

// New returns an Optimizer.
func New() *Optimizer {
	return &Optimizer{}
}

// OptimizeForStructuredPrompt adapts base to the content of text. The
// caller's style is never replaced, quality only moves up and feature flags
// are only ever switched on. The only error is a recovered internal failure,
// in which case callers should continue with base unchanged.
func (o *Optimizer) OptimizeForStructuredPrompt(text string, base domain.ImageParameters) (result *OptimizedParameters, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = domain.Recovered("optimizer.OptimizeForStructuredPrompt", r)
			log.Error().Err(err).Msg("Parameter optimization panicked")
		}
	}()

	a := Classify(text)
	rec := recommendations[a.ContentType]
	out := &OptimizedParameters{ImageParameters: base.Clone(), Analysis: a}
	reason := func(format string, args ...any) {
		out.OptimizationReasons = append(out.OptimizationReasons, fmt.Sprintf(format, args...))
	}

	// Aspect ratio
	switch {
	case base.AspectRatio == nil || base.AspectRatio.IsZero():
		r := rec.ratio
		out.AspectRatio = &r
		reason("aspect ratio set to %s for %s content", r.Ratio, a.ContentType)
	case inappropriateRatio(a.ContentType, *base.AspectRatio):
		r := rec.ratio
		out.AspectRatio = &r
		reason("aspect ratio changed from %s to %s: %s content does not suit the requested orientation",
			base.AspectRatio.Ratio, r.Ratio, a.ContentType)
	default:
		reason("kept requested aspect ratio %s", base.AspectRatio.Ratio)
	}

	// Quality
	wantQuality := rec.quality
	if a.Complexity == ComplexityComplex && wantQuality.Rank() < domain.QualityHigh.Rank() {
		wantQuality = domain.QualityHigh
	}
	if wantQuality.Rank() > base.Quality.Rank() {
		out.Quality = wantQuality
		reason("quality raised to %s for %s %s content", wantQuality, a.Complexity, a.ContentType)
	} else {
		reason("kept requested quality %s", base.Quality)
	}

	// Style
	if base.Style != "" {
		reason("kept requested style %s", base.Style)
	} else {
		out.Style = rec.style
		reason("style set to %s for %s content", rec.style, a.ContentType)
	}

	// Feature flags
	if a.WorldKnowledge && !out.UseWorldKnowledge {
		out.UseWorldKnowledge = true
		reason("world knowledge enabled for factual or real-world references")
	}
	if a.CharacterContinuity && !out.MaintainCharacterConsistency {
		out.MaintainCharacterConsistency = true
		reason("character consistency enabled for recurring characters")
	}

	// Secondary passes
	if a.Cinematic && out.AspectRatio != nil && out.AspectRatio.Ratio == domain.RatioSquare.Ratio {
		r := domain.RatioWidescreen
		out.AspectRatio = &r
		reason("cinematic content: square ratio widened to %s", r.Ratio)
	}
	if a.Macro {
		if out.Quality.Rank() < domain.QualityHigh.Rank() {
			out.Quality = domain.QualityHigh
		}
		if base.Style == "" {
			out.Style = domain.StyleEnhanced
		}
		reason("macro content: quality %s, style %s", out.Quality, out.Style)
	}

	log.Debug().
		Str("content_type", string(a.ContentType)).
		Str("complexity", string(a.Complexity)).
		Int("reasons", len(out.OptimizationReasons)).
		Msg("Parameters optimized")

	return out, nil
}

// inappropriateRatio reports the two content/ratio pairs that override a
// caller-supplied ratio.
func inappropriateRatio(ct ContentType, r domain.AspectRatio) bool {
	switch ct {
	case ContentPortrait:
		return r.IsWide()
	case ContentLandscape:
		return r.IsPortrait()
	default:
		return false
	}
}

package aspect

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/keywords"
)

const (
	// fallbackConfidence is used whenever a ratio could not be derived from content.
	fallbackConfidence = 0.3
	// lastImageConfidence is fixed for a propagated explicit ratio.
	lastImageConfidence = 0.8
	// coherenceBonus rewards batches that resolve to at most two ratios.
	coherenceBonus       = 0.1
	coherentRatioCeiling = 2

	maxLengthBoost      = 0.1
	specificityStep     = 0.05
	maxSpecificityBoost = 0.15
)

var specificityKeywords = []string{
	"detailed", "specific", "exactly", "precise", "close-up", "wide shot", "composition",
	"framed", "rule of thirds", "foreground", "background", "angle",
}

// Item is one image to resolve a ratio for.
type Item struct {
	ID          string
	Prompt      string
	AspectRatio *domain.AspectRatio
}

// Optimization is the scored decision for one item.
type Optimization struct {
	Strategy         string             `json:"strategy"`
	ContentAnalysis  *ContentAnalysis   `json:"contentAnalysis,omitempty"`
	RecommendedRatio domain.AspectRatio `json:"recommendedRatio"`
	ConfidenceScore  float64            `json:"confidenceScore"`
}

// OptimizationResult pairs the item's original ratio with the resolved one.
type OptimizationResult struct {
	ID             string              `json:"id"`
	OriginalRatio  *domain.AspectRatio `json:"originalRatio,omitempty"`
	OptimizedRatio domain.AspectRatio  `json:"optimizedRatio"`
	Optimization   Optimization        `json:"optimization"`
	Reasoning      string              `json:"reasoning"`
}

// BatchResult is the outcome of OptimizeAspectRatios.
type BatchResult struct {
	Optimizations    []OptimizationResult `json:"optimizations"`
	Strategy         string               `json:"strategy"`
	OverallCoherence float64              `json:"overallCoherence"`
}

// ByID returns the optimization for an item id.
func (b *BatchResult) ByID(id string) (OptimizationResult, bool) {
	for _, o := range b.Optimizations {
		if o.ID == id {
			return o, true
		}
	}
	return OptimizationResult{}, false
}

// Controller resolves aspect ratios. It holds no state; all strategies are pure.
type Controller struct{}

// NewController returns a Controller.
func NewController() *Controller {
	return &Controller{}
}

// AnalyzeContentForAspectRatio classifies one prompt.
func (c *Controller) AnalyzeContentForAspectRatio(prompt string) (ContentAnalysis, error) {
	return AnalyzeContent(prompt)
}

// SelectOptimalRatio maps an analysis onto a ratio.
func (c *Controller) SelectOptimalRatio(a ContentAnalysis) domain.AspectRatio {
	return SelectOptimalRatio(a)
}

// OptimizeAspectRatios resolves a ratio for every item under strategy. It
// fails only for an empty item list; a single item's analysis failure falls
// back per item.
func (c *Controller) OptimizeAspectRatios(items []Item, strategy Strategy) (*BatchResult, error) {
	const op = "aspect.OptimizeAspectRatios"
	if len(items) == 0 {
		return nil, domain.Validation(op, "at least one image requirement is required")
	}
	if strategy == nil {
		strategy = Adaptive{}
	}

	var results []OptimizationResult
	switch strategy.(type) {
	case Adaptive:
		results = resolveAdaptive(items)
	case Uniform:
		results = resolveUniform(items)
	case ContentDriven:
		results = resolveContentDriven(items)
	case LastImage:
		results = resolveLastImage(items)
	default:
		return nil, domain.Validation(op, "unknown aspect ratio strategy %T", strategy)
	}

	batch := &BatchResult{
		Optimizations:    results,
		Strategy:         strategy.Name(),
		OverallCoherence: overallCoherence(results),
	}

	log.Debug().
		Str("strategy", batch.Strategy).
		Int("items", len(items)).
		Int("distinct_ratios", distinctRatios(results)).
		Float64("coherence", batch.OverallCoherence).
		Msg("Aspect ratios resolved")

	return batch, nil
}

func newResult(item Item, strategy Strategy, analysis *ContentAnalysis, ratio domain.AspectRatio, confidence float64, reasoning string) OptimizationResult {
	var original *domain.AspectRatio
	if item.AspectRatio != nil {
		r := *item.AspectRatio
		original = &r
	}
	return OptimizationResult{
		ID:             item.ID,
		OriginalRatio:  original,
		OptimizedRatio: ratio,
		Optimization: Optimization{
			Strategy:         strategy.Name(),
			ContentAnalysis:  analysis,
			RecommendedRatio: ratio,
			ConfidenceScore:  domain.Clamp01(confidence),
		},
		Reasoning: reasoning,
	}
}

func describe(a ContentAnalysis, ratio domain.AspectRatio) string {
	return fmt.Sprintf("%s subject with %s composition suggests %s", a.PrimarySubject, a.Composition, ratio.Ratio)
}

func resolveAdaptive(items []Item) []OptimizationResult {
	out := make([]OptimizationResult, 0, len(items))
	for _, item := range items {
		a, err := AnalyzeContent(item.Prompt)
		if err != nil {
			ratio := domain.RatioSquare
			if item.AspectRatio != nil && !item.AspectRatio.IsZero() {
				ratio = *item.AspectRatio
			}
			out = append(out, newResult(item, Adaptive{}, nil, ratio, fallbackConfidence,
				fmt.Sprintf("content analysis failed (%v); kept %s", err, ratio.Ratio)))
			continue
		}
		ratio := SelectOptimalRatio(a)
		out = append(out, newResult(item, Adaptive{}, &a, ratio, a.Confidence, describe(a, ratio)))
	}
	return out
}

func resolveContentDriven(items []Item) []OptimizationResult {
	out := make([]OptimizationResult, 0, len(items))
	for _, item := range items {
		a, err := AnalyzeContent(item.Prompt)
		if err != nil {
			out = append(out, newResult(item, ContentDriven{}, nil, domain.RatioLandscape, fallbackConfidence,
				fmt.Sprintf("content analysis failed (%v); defaulted to landscape %s", err, domain.RatioLandscape.Ratio)))
			continue
		}
		ratio := SelectOptimalRatio(a)
		confidence := a.Confidence + contentBoost(item.Prompt)
		out = append(out, newResult(item, ContentDriven{}, &a, ratio, confidence,
			describe(a, ratio)+"; confidence weighted by prompt detail"))
	}
	return out
}

// contentBoost rewards longer prompts and explicit framing vocabulary.
func contentBoost(prompt string) float64 {
	length := float64(len(strings.Fields(prompt))) / 200
	if length > maxLengthBoost {
		length = maxLengthBoost
	}
	specificity := specificityStep * float64(keywords.Normalize(prompt).Count(specificityKeywords))
	if specificity > maxSpecificityBoost {
		specificity = maxSpecificityBoost
	}
	return length + specificity
}

// plurality returns the most frequent value and its count. Ties go to the
// value seen first.
func plurality[T comparable](values []T) (T, int) {
	counts := make(map[T]int)
	var order []T
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	var best T
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best, bestCount
}

func resolveUniform(items []Item) []OptimizationResult {
	analyses := make([]*ContentAnalysis, len(items))
	var subjects []Subject
	var compositions []Composition
	for i, item := range items {
		a, err := AnalyzeContent(item.Prompt)
		if err != nil {
			continue
		}
		analyses[i] = &a
		subjects = append(subjects, a.PrimarySubject)
		compositions = append(compositions, a.Composition)
	}

	out := make([]OptimizationResult, 0, len(items))
	if len(subjects) == 0 {
		for _, item := range items {
			out = append(out, newResult(item, Uniform{}, nil, domain.RatioSquare, fallbackConfidence,
				"no prompt in the batch could be analysed; applied square to all images"))
		}
		return out
	}

	subject, subjectCount := plurality(subjects)
	composition, compositionCount := plurality(compositions)
	n := float64(len(items))
	confidence := (float64(subjectCount)/n + float64(compositionCount)/n) / 2
	ratio := SelectOptimalRatio(ContentAnalysis{PrimarySubject: subject, Composition: composition})
	reasoning := fmt.Sprintf("batch plurality: %s subject (%d/%d), %s composition (%d/%d); applied %s to all images",
		subject, subjectCount, len(items), composition, compositionCount, len(items), ratio.Ratio)

	for i, item := range items {
		out = append(out, newResult(item, Uniform{}, analyses[i], ratio, confidence, reasoning))
	}
	return out
}

func resolveLastImage(items []Item) []OptimizationResult {
	ratio, confidence, reasoning, analysis := lastImageRatio(items)
	out := make([]OptimizationResult, 0, len(items))
	for _, item := range items {
		out = append(out, newResult(item, LastImage{}, analysis, ratio, confidence, reasoning))
	}
	return out
}

func lastImageRatio(items []Item) (domain.AspectRatio, float64, string, *ContentAnalysis) {
	for i := len(items) - 1; i >= 0; i-- {
		if r := items[i].AspectRatio; r != nil && !r.IsZero() {
			return *r, lastImageConfidence,
				fmt.Sprintf("propagated explicit ratio %s from requirement %q", r.Ratio, items[i].ID), nil
		}
	}

	last := items[len(items)-1]
	a, err := AnalyzeContent(last.Prompt)
	if err != nil {
		return domain.RatioSquare, fallbackConfidence,
			fmt.Sprintf("no explicit ratio and last requirement %q could not be analysed (%v); applied square", last.ID, err), nil
	}
	ratio := SelectOptimalRatio(a)
	return ratio, a.Confidence,
		fmt.Sprintf("no explicit ratio; derived from last requirement %q: %s", last.ID, describe(a, ratio)), &a
}

func distinctRatios(results []OptimizationResult) int {
	seen := make(map[string]struct{})
	for _, r := range results {
		seen[r.OptimizedRatio.Ratio] = struct{}{}
	}
	return len(seen)
}

func overallCoherence(results []OptimizationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Optimization.ConfidenceScore
	}
	score := sum / float64(len(results))
	if distinctRatios(results) <= coherentRatioCeiling {
		score += coherenceBonus
	}
	return domain.Clamp01(score)
}

package multiimage

import (
	"fmt"

	"github.com/fpang/gemini-image-orchestrator/internal/aspect"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

// CoherenceThreshold is the minimum score for a coherent image set.
const CoherenceThreshold = 0.7

// CoherenceReport is the outcome of ValidateImageSetCoherence.
type CoherenceReport struct {
	Score             float64             `json:"score"`
	IsCoherent        bool                `json:"isCoherent"`
	Aspects           map[Element]float64 `json:"aspects"`
	FailedValidations []string            `json:"failedValidations,omitempty"`
}

// ValidateImageSetCoherence scores agreement across images on each shared
// element. An element scores the mean pairwise overlap of its terms in the
// images' final prompts; the set scores the mean of the five elements.
// Images generated at a ratio other than the resolved one, or whose rendered
// size misses the requested ratio, are reported as failed validations without
// affecting the score.
func ValidateImageSetCoherence(images []ProcessedImage) CoherenceReport {
	terms := make([]map[Element][]string, len(images))
	for i, img := range images {
		terms[i] = extractElements(img.FinalPrompt)
	}

	report := CoherenceReport{Aspects: make(map[Element]float64, len(Elements))}
	sum := 0.0
	for _, e := range Elements {
		score := domain.Clamp01(meanPairwiseOverlap(terms, e))
		report.Aspects[e] = score
		sum += score
		if score < CoherenceThreshold {
			report.FailedValidations = append(report.FailedValidations,
				fmt.Sprintf("%s consistency %.2f is below %.2f", e, score, CoherenceThreshold))
		}
	}
	report.Score = domain.Clamp01(sum / float64(len(Elements)))
	report.IsCoherent = report.Score >= CoherenceThreshold

	for _, img := range images {
		if msg, ok := ratioDrift(img); ok {
			report.FailedValidations = append(report.FailedValidations, msg)
		}
		if msg, ok := fidelityFailure(img); ok {
			report.FailedValidations = append(report.FailedValidations, msg)
		}
	}
	return report
}

func meanPairwiseOverlap(terms []map[Element][]string, e Element) float64 {
	if len(terms) < 2 {
		return 1
	}
	total, pairs := 0.0, 0
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			total += jaccard(terms[i][e], terms[j][e])
			pairs++
		}
	}
	return total / float64(pairs)
}

// jaccard of two term lists. Two empty lists agree fully.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]int, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	both := 0
	for _, v := range set {
		if v == 3 {
			both++
		}
	}
	return float64(both) / float64(len(set))
}

// ratioDrift reports an image generated at a ratio other than the one the
// aspect ratio phase resolved for it.
func ratioDrift(img ProcessedImage) (string, bool) {
	planned := img.AspectRatio.OptimizedRatio
	final := img.FinalParameters.AspectRatio
	if planned.IsZero() || final == nil || final.Ratio == planned.Ratio {
		return "", false
	}
	return fmt.Sprintf("image %s generated at %s instead of the resolved %s",
		img.RequirementID, final.Ratio, planned.Ratio), true
}

func fidelityFailure(img ProcessedImage) (string, bool) {
	if img.Image == nil || img.FinalParameters.AspectRatio == nil {
		return "", false
	}
	w, h := img.Image.Metadata.Width, img.Image.Metadata.Height
	requested := *img.FinalParameters.AspectRatio
	if w == 0 || h == 0 || aspect.Matches(requested, w, h) {
		return "", false
	}
	return fmt.Sprintf("image %s rendered at %dx%d, %.0f%% off the requested %s",
		img.RequirementID, w, h, aspect.Deviation(requested, w, h)*100, requested.Ratio), true
}

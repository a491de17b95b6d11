package aspect

import (
	"math"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

// FidelityTolerance is the largest relative deviation between a requested
// ratio and a rendered image that still counts as matching.
const FidelityTolerance = 0.05

// Deviation returns the relative difference between the requested ratio and
// the rendered width/height. Unknown dimensions report zero.
func Deviation(requested domain.AspectRatio, width, height int) float64 {
	want := requested.Value()
	if want <= 0 || width <= 0 || height <= 0 {
		return 0
	}
	got := float64(width) / float64(height)
	return math.Abs(got-want) / want
}

// Matches reports whether a rendered image is within FidelityTolerance of the
// requested ratio.
func Matches(requested domain.AspectRatio, width, height int) bool {
	return Deviation(requested, width, height) <= FidelityTolerance
}

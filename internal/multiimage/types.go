// Package multiimage coordinates batches of related images: one shared
// consistency profile, bounded concurrent windows of two-stage generations,
// per-item failure isolation and cross-image coherence scoring.
package multiimage

import (
	"fmt"
	"strings"
	"time"

	"github.com/fpang/gemini-image-orchestrator/internal/aspect"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
)

// ConsistencyLevel scales how many consistency rules a batch enforces.
type ConsistencyLevel string

const (
	LevelStrict   ConsistencyLevel = "STRICT"
	LevelModerate ConsistencyLevel = "MODERATE"
	LevelLoose    ConsistencyLevel = "LOOSE"
)

// ParseConsistencyLevel resolves a level name; empty selects MODERATE.
func ParseConsistencyLevel(s string) (ConsistencyLevel, error) {
	switch l := ConsistencyLevel(strings.ToUpper(strings.TrimSpace(s))); l {
	case "":
		return LevelModerate, nil
	case LevelStrict, LevelModerate, LevelLoose:
		return l, nil
	default:
		return "", fmt.Errorf("unknown consistency level %q", s)
	}
}

// ConsistencyFlags select which shared elements a requirement must keep.
type ConsistencyFlags struct {
	Character   bool `json:"character"`
	Style       bool `json:"style"`
	Environment bool `json:"environment"`
	Lighting    bool `json:"lighting"`
	Mood        bool `json:"mood"`
}

func (f ConsistencyFlags) enabled(e Element) bool {
	switch e {
	case ElementCharacter:
		return f.Character
	case ElementStyle:
		return f.Style
	case ElementEnvironment:
		return f.Environment
	case ElementLighting:
		return f.Lighting
	case ElementMood:
		return f.Mood
	default:
		return false
	}
}

// ImageRequirement is one image of a batch.
type ImageRequirement struct {
	ID              string                  `json:"id"`
	SpecificPrompt  string                  `json:"specificPrompt,omitempty"`
	AspectRatio     *domain.AspectRatio     `json:"aspectRatio,omitempty"`
	Priority        int                     `json:"priority"`
	Consistency     *ConsistencyFlags       `json:"consistency"`
	ImageParameters *domain.ImageParameters `json:"imageParameters,omitempty"`
}

// ProcessingOptions control batch execution.
type ProcessingOptions struct {
	EnableParallelProcessing bool                   `json:"enableParallelProcessing"`
	MaxConcurrentImages      int                    `json:"maxConcurrentImages,omitempty"`
	OrchestrationOptions     *orchestrator.Options  `json:"orchestrationOptions,omitempty"`
	ImageParameters          domain.ImageParameters `json:"imageParameters"`
}

// Request is the input of CoordinateMultipleImages.
type Request struct {
	BasePrompt          string             `json:"basePrompt"`
	ImageRequirements   []ImageRequirement `json:"imageRequirements"`
	ConsistencyLevel    string             `json:"consistencyLevel,omitempty"`
	AspectRatioStrategy string             `json:"aspectRatioStrategy,omitempty"`
	ProcessingOptions   *ProcessingOptions `json:"processingOptions"`
}

// ImageGenerationContext is the per-requirement working state. Its
// EnhancedPrompt is written only by rule application.
type ImageGenerationContext struct {
	BasePrompt              string                    `json:"basePrompt"`
	EnhancedPrompt          string                    `json:"enhancedPrompt"`
	Requirement             ImageRequirement          `json:"requirement"`
	ConsistencyProfile      *ConsistencyProfile       `json:"-"`
	AspectRatioOptimization aspect.OptimizationResult `json:"aspectRatioOptimization"`
	RelatedContexts         []string                  `json:"relatedContexts"`
	// PinAspectRatio is set when the batch strategy fixes the ratio.
	PinAspectRatio bool `json:"pinAspectRatio"`
}

// ProcessedImage is one successfully generated image.
type ProcessedImage struct {
	RequirementID   string                    `json:"requirementId"`
	Image           *domain.GeneratedImage    `json:"image"`
	EnhancedPrompt  string                    `json:"enhancedPrompt"`
	FinalPrompt     string                    `json:"finalPrompt"`
	FinalParameters domain.ImageParameters    `json:"finalParameters"`
	AspectRatio     aspect.OptimizationResult `json:"aspectRatio"`
	SessionID       string                    `json:"sessionId"`
	FallbackUsed    bool                      `json:"fallbackUsed"`
	ProcessingTime  time.Duration             `json:"processingTime"`
}

// ItemFailure records an excluded requirement.
type ItemFailure struct {
	RequirementID string `json:"requirementId"`
	Error         string `json:"error"`
}

// ConsistencyMetrics summarise consistency and coherence for a batch.
type ConsistencyMetrics struct {
	OverallScore           float64  `json:"overallScore"`
	PromptConsistency      float64  `json:"promptConsistency"`
	CharacterConsistency   float64  `json:"characterConsistency"`
	StyleConsistency       float64  `json:"styleConsistency"`
	EnvironmentConsistency float64  `json:"environmentConsistency"`
	LightingConsistency    float64  `json:"lightingConsistency"`
	MoodConsistency        float64  `json:"moodConsistency"`
	IsCoherent             bool     `json:"isCoherent"`
	FailedValidations      []string `json:"failedValidations,omitempty"`
}

// PhaseTimings are per-phase wall-clock durations.
type PhaseTimings struct {
	Validation  time.Duration `json:"validation"`
	AspectRatio time.Duration `json:"aspectRatio"`
	Consistency time.Duration `json:"consistency"`
	Execution   time.Duration `json:"execution"`
	Coherence   time.Duration `json:"coherence"`
	Total       time.Duration `json:"total"`
}

// ProcessingMetadata describes how a batch was executed.
type ProcessingMetadata struct {
	SessionID           string           `json:"sessionId"`
	TotalImages         int              `json:"totalImages"`
	ProcessedImages     int              `json:"processedImages"`
	FailedImages        int              `json:"failedImages"`
	Failures            []ItemFailure    `json:"failures,omitempty"`
	ParallelProcessing  bool             `json:"parallelProcessing"`
	ConcurrentImages    int              `json:"concurrentImages"`
	PeakConcurrency     int              `json:"peakConcurrency"`
	Windows             int              `json:"windows"`
	ConsistencyLevel    ConsistencyLevel `json:"consistencyLevel"`
	AspectRatioStrategy string           `json:"aspectRatioStrategy"`
	Timings             PhaseTimings     `json:"timings"`
}

// MultiImageResult is the successful output of CoordinateMultipleImages.
type MultiImageResult struct {
	BasePrompt         string              `json:"basePrompt"`
	ProcessedImages    []ProcessedImage    `json:"processedImages"`
	ConsistencyMetrics ConsistencyMetrics  `json:"consistencyMetrics"`
	ProcessingMetadata ProcessingMetadata  `json:"processingMetadata"`
	AspectRatioSource  string              `json:"aspectRatioSource"`
	AspectRatios       *aspect.BatchResult `json:"aspectRatios"`
	Success            bool                `json:"success"`
}

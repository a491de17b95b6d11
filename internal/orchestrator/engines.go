package orchestrator

import (
	"context"

	"github.com/fpang/gemini-image-orchestrator/internal/assets"
)

// Template is a named markup template applied by the TemplateEngine.
type Template struct {
	Name string
	Body string
}

// DefaultTemplate is the single built-in structuring template.
var DefaultTemplate = Template{Name: assets.StructuringTemplateName, Body: assets.StructuringTemplate}

// TemplateOptions tune template application.
type TemplateOptions struct {
	// Features are extra feature names the engine should try to apply.
	Features []string `json:"features,omitempty"`
}

// TemplateResult is the output of Stage 1.
type TemplateResult struct {
	StructuredPrompt string         `json:"structuredPrompt"`
	AppliedFeatures  []string       `json:"appliedFeatures"`
	ProcessingMeta   map[string]any `json:"processingMeta,omitempty"`
}

// TemplateEngine structures a raw prompt with a template.
type TemplateEngine interface {
	ApplyTemplate(ctx context.Context, prompt string, tpl Template, opts TemplateOptions) (*TemplateResult, error)
}

// EnhancementOptions tune best-practice enhancement.
type EnhancementOptions struct {
	// Practices restricts the engine to the named practices. Empty means all.
	Practices []string `json:"practices,omitempty"`
	// MaxWords bounds the enhanced prompt length. Zero means unbounded.
	MaxWords int `json:"maxWords,omitempty"`
}

// EnhancementResult is the output of Stage 2.
type EnhancementResult struct {
	EnhancedPrompt     string         `json:"enhancedPrompt"`
	AppliedPractices   []string       `json:"appliedPractices"`
	TransformationMeta map[string]any `json:"transformationMeta,omitempty"`
}

// EnhancementEngine applies prompt-writing best practices to text.
type EnhancementEngine interface {
	ApplyBestPractices(ctx context.Context, text string, opts EnhancementOptions) (*EnhancementResult, error)
}

// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.

package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// --- Static prompts (no dynamic data) ---

// TemplateSystemPrompt instructs the text model to act as the template engine.
//
//go:embed prompts/template-system.txt
var TemplateSystemPrompt string

// EnhancementSystemPrompt instructs the text model to apply prompt-writing
// best practices.
//
//go:embed prompts/enhancement-system.txt
var EnhancementSystemPrompt string

// ImageSystemPrompt is the system instruction for image generation calls.
//
//go:embed prompts/image-system.txt
var ImageSystemPrompt string

// CharacterConsistencyPrompt is appended to ImageSystemPrompt when a request
// asks for character consistency across related images.
//
//go:embed prompts/character-consistency.txt
var CharacterConsistencyPrompt string

// --- Dynamic prompt templates ---

//go:embed prompts/structuring-request.txt
var structuringRequestTemplate string

//go:embed prompts/enhancement-request.txt
var enhancementRequestTemplate string

// Pre-parsed templates for efficiency. template.Must panics on malformed templates,
// catching errors at program startup rather than at call time.
var (
	structuringRequestTmpl = template.Must(template.New("structuring").Parse(structuringRequestTemplate))
	enhancementRequestTmpl = template.Must(template.New("enhancement").Parse(enhancementRequestTemplate))
)

// StructuringData holds the dynamic data injected into the structuring request.
type StructuringData struct {
	Prompt   string
	Template string
	Features []string
}

// EnhancementData holds the dynamic data injected into the enhancement request.
type EnhancementData struct {
	Text      string
	Practices []string
	MaxWords  int
}

// RenderStructuringRequest renders the Stage 1 request for the text model.
func RenderStructuringRequest(d StructuringData) string {
	return renderTemplate(structuringRequestTmpl, d)
}

// RenderEnhancementRequest renders the Stage 2 request for the text model.
func RenderEnhancementRequest(d EnhancementData) string {
	return renderTemplate(enhancementRequestTmpl, d)
}

// renderTemplate executes a pre-parsed template with the given data.
func renderTemplate(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// Template execution errors are not expected with our simple templates,
	// but we handle them gracefully by returning whatever was rendered.
	_ = tmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}

// Package assets provides embedded static assets for the application.
package assets

import (
	_ "embed"
)

// StructuringTemplateName identifies the built-in structuring template in
// stage records and applied strategies.
const StructuringTemplateName = "scene-structure-v1"

// StructuringTemplate is the markup template Stage 1 applies to every prompt.
// Sections are delimited by [SECTION] headers; the template engine fills each
// section from the user's prompt and drops sections it cannot fill.
//
//go:embed prompts/structuring-template.txt
var StructuringTemplate string

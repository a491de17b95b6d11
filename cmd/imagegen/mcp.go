package main

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/multiimage"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/fpang/gemini-image-orchestrator/internal/pipeline"
	"github.com/fpang/gemini-image-orchestrator/internal/twostage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the orchestration tools over MCP on stdio",
	Long: `MCP starts a Model Context Protocol server on stdin/stdout exposing
generate_structured_prompt, generate_image_with_structured_prompt and
coordinate_multiple_images. Logs go to stderr as JSON.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	server := newMCPServer(&mcpTools{pipeline: a.pipeline})
	log.Info().Msg("MCP server listening on stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

func newMCPServer(t *mcpTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "imagegen", Version: commitHash}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_structured_prompt",
		Description: "Structure a prompt with the scene template and prompt-writing best practices without rendering an image.",
	}, t.structurePrompt)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_image_with_structured_prompt",
		Description: "Structure a prompt, optimize the image parameters and render one image. Falls back to the original prompt if enhancement fails.",
	}, t.generateImage)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "coordinate_multiple_images",
		Description: "Render a set of related images that share characters, style and lighting, with coordinated aspect ratios.",
	}, t.coordinateImages)
	return server
}

type mcpTools struct {
	pipeline *pipeline.Pipeline
}

type promptOptions struct {
	SkipStructuring *bool    `json:"skipStructuring,omitempty" jsonschema:"skip template structuring and only apply best practices; omit to use the server default"`
	Features        []string `json:"features,omitempty" jsonschema:"template features to apply"`
	Practices       []string `json:"practices,omitempty" jsonschema:"best practices to apply, default all"`
	MaxWords        int      `json:"maxWords,omitempty" jsonschema:"cap on the enhanced prompt length in words"`
}

func (o *promptOptions) options() *orchestrator.Options {
	if o == nil || o.SkipStructuring == nil && len(o.Features) == 0 && len(o.Practices) == 0 && o.MaxWords == 0 {
		return nil
	}
	return &orchestrator.Options{
		SkipStructuring: o.SkipStructuring,
		Template:        orchestrator.TemplateOptions{Features: o.Features},
		Enhancement:     orchestrator.EnhancementOptions{Practices: o.Practices, MaxWords: o.MaxWords},
	}
}

type structureInput struct {
	Prompt  string         `json:"prompt" jsonschema:"the prompt to structure"`
	Options *promptOptions `json:"options,omitempty" jsonschema:"orchestration options"`
}

type stageSummary struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

func summarizeStages(stages []domain.StageRecord) []stageSummary {
	out := make([]stageSummary, 0, len(stages))
	for _, s := range stages {
		out = append(out, stageSummary{
			Name:       s.Name,
			Status:     string(s.Status),
			DurationMs: s.Duration().Milliseconds(),
			Error:      s.Error,
		})
	}
	return out
}

type structureOutput struct {
	StructuredPrompt  string         `json:"structuredPrompt"`
	AppliedStrategies []string       `json:"appliedStrategies"`
	SuccessRate       float64        `json:"successRate"`
	Stages            []stageSummary `json:"stages"`
}

func (t *mcpTools) structurePrompt(ctx context.Context, _ *mcp.CallToolRequest, in structureInput) (*mcp.CallToolResult, structureOutput, error) {
	res, err := t.pipeline.Orchestrator.GenerateStructuredPrompt(ctx, in.Prompt, in.Options.options())
	if err != nil {
		return nil, structureOutput{}, err
	}
	out := structureOutput{
		StructuredPrompt:  res.StructuredPrompt,
		AppliedStrategies: res.AppliedStrategies,
		SuccessRate:       res.Metrics.SuccessRate,
		Stages:            summarizeStages(res.Stages),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.StructuredPrompt}},
	}, out, nil
}

type imageInput struct {
	Prompt                       string         `json:"prompt" jsonschema:"the prompt to render"`
	AspectRatio                  string         `json:"aspectRatio,omitempty" jsonschema:"one of 1:1, 3:4, 4:3, 2:3, 3:2, 9:16, 16:9, 21:9"`
	Quality                      string         `json:"quality,omitempty" jsonschema:"standard, high or ultra"`
	Style                        string         `json:"style,omitempty" jsonschema:"natural, vivid, enhanced, artistic, photographic or cinematic"`
	MaintainCharacterConsistency bool           `json:"maintainCharacterConsistency,omitempty" jsonschema:"keep characters consistent with reference images"`
	UseWorldKnowledge            bool           `json:"useWorldKnowledge,omitempty" jsonschema:"ground the image with Google Search"`
	InputImagePath               string         `json:"inputImagePath,omitempty" jsonschema:"local path of an image to edit"`
	Options                      *promptOptions `json:"options,omitempty" jsonschema:"orchestration options"`
}

func (in imageInput) parameters() (domain.ImageParameters, error) {
	f := imageFlags{
		aspectRatio:    in.AspectRatio,
		quality:        in.Quality,
		style:          in.Style,
		inputImage:     in.InputImagePath,
		character:      in.MaintainCharacterConsistency,
		worldKnowledge: in.UseWorldKnowledge,
	}
	return f.parameters()
}

type imageOutput struct {
	SessionID            string         `json:"sessionId"`
	FinalPrompt          string         `json:"finalPrompt"`
	AspectRatio          string         `json:"aspectRatio,omitempty"`
	Quality              string         `json:"quality,omitempty"`
	Style                string         `json:"style,omitempty"`
	FallbackUsed         bool           `json:"fallbackUsed"`
	AppliedOptimizations []string       `json:"appliedOptimizations,omitempty"`
	Stages               []stageSummary `json:"stages"`
	TotalMs              int64          `json:"totalMs"`
}

func (t *mcpTools) generateImage(ctx context.Context, _ *mcp.CallToolRequest, in imageInput) (*mcp.CallToolResult, imageOutput, error) {
	params, err := in.parameters()
	if err != nil {
		return nil, imageOutput{}, err
	}
	res, err := t.pipeline.Processor.GenerateImageWithStructuredPrompt(ctx, twostage.Request{
		OriginalPrompt:       in.Prompt,
		OrchestrationOptions: in.Options.options(),
		ImageParameters:      params,
	})
	if err != nil {
		return nil, imageOutput{}, err
	}

	s := res.Session
	out := imageOutput{
		SessionID:            s.SessionID,
		FinalPrompt:          res.FinalPrompt,
		Quality:              string(res.FinalParameters.Quality),
		Style:                string(res.FinalParameters.Style),
		FallbackUsed:         s.FallbackUsed,
		AppliedOptimizations: s.AppliedOptimizations,
		Stages:               summarizeStages(s.Stages),
		TotalMs:              s.TotalProcessingTime.Milliseconds(),
	}
	if r := res.FinalParameters.AspectRatio; r != nil {
		out.AspectRatio = r.Ratio
	}
	return &mcp.CallToolResult{Content: imageContent(res.Image, res.FinalPrompt)}, out, nil
}

type batchRequirement struct {
	ID          string `json:"id" jsonschema:"unique requirement id"`
	Prompt      string `json:"prompt,omitempty" jsonschema:"what this image adds to the base prompt"`
	AspectRatio string `json:"aspectRatio,omitempty" jsonschema:"preferred aspect ratio"`
	Priority    int    `json:"priority,omitempty" jsonschema:"higher priorities are rendered first, default 1"`
	Character   bool   `json:"character,omitempty" jsonschema:"keep the shared character"`
	Style       bool   `json:"style,omitempty" jsonschema:"keep the shared style"`
	Environment bool   `json:"environment,omitempty" jsonschema:"keep the shared environment"`
	Lighting    bool   `json:"lighting,omitempty" jsonschema:"keep the shared lighting"`
	Mood        bool   `json:"mood,omitempty" jsonschema:"keep the shared mood"`
}

type batchInput struct {
	BasePrompt          string             `json:"basePrompt" jsonschema:"description shared by every image"`
	Requirements        []batchRequirement `json:"requirements" jsonschema:"the images to render"`
	ConsistencyLevel    string             `json:"consistencyLevel,omitempty" jsonschema:"STRICT, MODERATE or LOOSE"`
	AspectRatioStrategy string             `json:"aspectRatioStrategy,omitempty" jsonschema:"ADAPTIVE, UNIFORM, CONTENT_DRIVEN or LAST_IMAGE"`
	Quality             string             `json:"quality,omitempty" jsonschema:"standard, high or ultra"`
	Style               string             `json:"style,omitempty" jsonschema:"rendering style for every image"`
}

func (in batchInput) request(defaults *multiimage.ProcessingOptions) multiimage.Request {
	opts := *defaults
	opts.ImageParameters.Quality = domain.Quality(in.Quality)
	opts.ImageParameters.Style = domain.Style(in.Style)
	req := multiimage.Request{
		BasePrompt:          in.BasePrompt,
		ConsistencyLevel:    in.ConsistencyLevel,
		AspectRatioStrategy: in.AspectRatioStrategy,
		ProcessingOptions:   &opts,
	}
	for _, r := range in.Requirements {
		if r.Priority < 1 {
			r.Priority = 1
		}
		ir := multiimage.ImageRequirement{
			ID:             r.ID,
			SpecificPrompt: r.Prompt,
			Priority:       r.Priority,
			Consistency: &multiimage.ConsistencyFlags{
				Character:   r.Character,
				Style:       r.Style,
				Environment: r.Environment,
				Lighting:    r.Lighting,
				Mood:        r.Mood,
			},
		}
		if r.AspectRatio != "" {
			ir.AspectRatio = &domain.AspectRatio{Ratio: r.AspectRatio}
		}
		req.ImageRequirements = append(req.ImageRequirements, ir)
	}
	return req
}

type batchImage struct {
	RequirementID string `json:"requirementId"`
	SessionID     string `json:"sessionId"`
	AspectRatio   string `json:"aspectRatio"`
	FinalPrompt   string `json:"finalPrompt"`
	FallbackUsed  bool   `json:"fallbackUsed"`
}

type batchOutput struct {
	BatchID           string                   `json:"batchId"`
	Success           bool                     `json:"success"`
	Images            []batchImage             `json:"images"`
	Failures          []multiimage.ItemFailure `json:"failures,omitempty"`
	OverallScore      float64                  `json:"overallScore"`
	IsCoherent        bool                     `json:"isCoherent"`
	FailedValidations []string                 `json:"failedValidations,omitempty"`
	TotalMs           int64                    `json:"totalMs"`
}

func (t *mcpTools) coordinateImages(ctx context.Context, _ *mcp.CallToolRequest, in batchInput) (*mcp.CallToolResult, batchOutput, error) {
	req := in.request(t.pipeline.ProcessingOptions())
	if err := t.pipeline.PrepareBatch(&req); err != nil {
		return nil, batchOutput{}, err
	}
	res, err := t.pipeline.Coordinator.CoordinateMultipleImages(ctx, req)
	if err != nil {
		return nil, batchOutput{}, err
	}

	meta := res.ProcessingMetadata
	out := batchOutput{
		BatchID:           meta.SessionID,
		Success:           res.Success,
		Failures:          meta.Failures,
		OverallScore:      res.ConsistencyMetrics.OverallScore,
		IsCoherent:        res.ConsistencyMetrics.IsCoherent,
		FailedValidations: res.ConsistencyMetrics.FailedValidations,
		TotalMs:           meta.Timings.Total.Milliseconds(),
	}
	var content []mcp.Content
	for _, img := range res.ProcessedImages {
		out.Images = append(out.Images, batchImage{
			RequirementID: img.RequirementID,
			SessionID:     img.SessionID,
			AspectRatio:   img.AspectRatio.OptimizedRatio.Ratio,
			FinalPrompt:   img.FinalPrompt,
			FallbackUsed:  img.FallbackUsed,
		})
		content = append(content, imageContent(img.Image, fmt.Sprintf("%s: %s", img.RequirementID, img.FinalPrompt))...)
	}
	return &mcp.CallToolResult{Content: content}, out, nil
}

// imageContent returns the image followed by its caption.
func imageContent(img *domain.GeneratedImage, caption string) []mcp.Content {
	var out []mcp.Content
	if img != nil && len(img.Data) > 0 {
		out = append(out, &mcp.ImageContent{Data: img.Data, MIMEType: img.MIMEType})
	}
	return append(out, &mcp.TextContent{Text: caption})
}

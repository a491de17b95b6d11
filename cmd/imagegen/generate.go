package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpang/gemini-image-orchestrator/internal/cli"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/twostage"
)

// imageFlags are the caller-facing generation parameters.
type imageFlags struct {
	aspectRatio    string
	quality        string
	style          string
	inputImage     string
	blendImages    []string
	character      bool
	worldKnowledge bool
}

var genFlags imageFlags

var generateCmd = &cobra.Command{
	Use:   "generate [prompt...]",
	Short: "Structure a prompt, optimize parameters and render one image",
	Long: `Generate runs the full two-stage workflow: prompt structuring and
enhancement, parameter optimization, then image generation. If any enhanced
step fails the original prompt is rendered with the untouched parameters.`,
	RunE: runGenerate,
}

func init() {
	addPromptFlags(generateCmd)
	f := generateCmd.Flags()
	f.StringVarP(&genFlags.aspectRatio, "aspect-ratio", "a", "", "Aspect ratio (1:1, 3:4, 4:3, 2:3, 3:2, 9:16, 16:9, 21:9)")
	f.StringVarP(&genFlags.quality, "quality", "q", "", "Quality (standard, high, ultra)")
	f.StringVarP(&genFlags.style, "style", "s", "", "Style (natural, vivid, enhanced, artistic, photographic, cinematic)")
	f.StringVar(&genFlags.inputImage, "input-image", "", "Image file to edit")
	f.StringSliceVar(&genFlags.blendImages, "blend", nil, "Reference image file to blend (repeatable)")
	f.BoolVar(&genFlags.character, "character-consistency", false, "Keep characters consistent with the reference images")
	f.BoolVar(&genFlags.worldKnowledge, "world-knowledge", false, "Ground the image with Google Search")
	f.StringVarP(&outDirFlag, "out", "o", "", "Directory to write the image to (defaults to the images bucket when configured)")
}

// parameters validates the flags into ImageParameters, loading image files.
func (f imageFlags) parameters() (domain.ImageParameters, error) {
	var p domain.ImageParameters
	var problems []string

	if f.aspectRatio != "" {
		r, err := domain.ParseAspectRatio(f.aspectRatio)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			p.AspectRatio = &r
		}
	}
	q, err := domain.ParseQuality(f.quality)
	if err != nil {
		problems = append(problems, err.Error())
	}
	s, err := domain.ParseStyle(f.style)
	if err != nil {
		problems = append(problems, err.Error())
	}
	p.Quality, p.Style = q, s
	p.MaintainCharacterConsistency = f.character
	p.UseWorldKnowledge = f.worldKnowledge

	if f.inputImage != "" {
		img, err := cli.LoadImage(f.inputImage)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			p.InputImage = img
		}
	}
	for _, path := range f.blendImages {
		img, err := cli.LoadImage(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		p.BlendImages = append(p.BlendImages, *img)
	}

	if len(problems) > 0 {
		return domain.ImageParameters{}, domain.Validation("imagegen.generate", "invalid flags: %s", strings.Join(problems, "; "))
	}
	return p, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt, err := cli.ReadPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	params, err := genFlags.parameters()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	res, err := a.pipeline.Processor.GenerateImageWithStructuredPrompt(ctx, twostage.Request{
		OriginalPrompt:       prompt,
		OrchestrationOptions: orchestrationOptions(),
		ImageParameters:      params,
	})
	if err != nil {
		return err
	}

	saved, err := a.saveImage(ctx, outDirFlag, res.Session.SessionID, "image", res.Image)
	if err != nil {
		return err
	}

	if jsonFlag {
		return cli.WriteJSON(os.Stdout, struct {
			*twostage.Result
			SavedTo string `json:"savedTo,omitempty"`
		}{res, saved})
	}
	printGenerateResult(res, saved)
	return nil
}

func printGenerateResult(res *twostage.Result, saved string) {
	s := res.Session
	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("Image Generation")
	fmt.Println("============================================")
	fmt.Printf("Session: %s\n", s.SessionID)
	fmt.Printf("Prompt: %s\n", res.FinalPrompt)
	if r := res.FinalParameters.AspectRatio; r != nil {
		fmt.Printf("Aspect ratio: %s (%dx%d)\n", r.Ratio, r.Width, r.Height)
	}
	if res.FinalParameters.Quality != "" {
		fmt.Printf("Quality: %s\n", res.FinalParameters.Quality)
	}
	if res.FinalParameters.Style != "" {
		fmt.Printf("Style: %s\n", res.FinalParameters.Style)
	}
	if s.FallbackUsed {
		fmt.Println("Mode: FALLBACK (original prompt)")
	}
	fmt.Println("--------------------------------------------")
	for _, st := range s.Stages {
		line := fmt.Sprintf("%-30s %-10s %s", st.Name, st.Status, cli.FormatDurationShort(st.Duration()))
		if st.Error != "" {
			line += "  " + st.Error
		}
		fmt.Println(line)
	}
	for _, o := range s.AppliedOptimizations {
		fmt.Printf("  - %s\n", o)
	}
	for _, n := range s.Notes {
		fmt.Printf("Note: %s\n", n)
	}
	fmt.Printf("Total: %s\n", cli.FormatDurationShort(s.TotalProcessingTime))
	if saved != "" {
		fmt.Printf("Saved: %s\n", saved)
	}
}

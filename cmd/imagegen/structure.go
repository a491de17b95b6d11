package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpang/gemini-image-orchestrator/internal/cli"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
)

var (
	skipStructuringFlag bool
	featuresFlag        []string
	practicesFlag       []string
	maxWordsFlag        int
)

var structureCmd = &cobra.Command{
	Use:   "structure [prompt...]",
	Short: "Run the two prompt stages and print the structured prompt",
	Long: `Structure applies the scene template and prompt-writing best practices to a
prompt without generating an image. Pass "-" or no arguments to read the
prompt from stdin.`,
	RunE: runStructure,
}

func init() {
	addPromptFlags(structureCmd)
}

// addPromptFlags registers the orchestration flags shared by structure and generate.
func addPromptFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&skipStructuringFlag, "skip-structuring", false, "Skip template structuring and only enhance")
	cmd.Flags().StringSliceVar(&featuresFlag, "feature", nil, "Template feature to apply (repeatable)")
	cmd.Flags().StringSliceVar(&practicesFlag, "practice", nil, "Best practice to apply (repeatable, default all)")
	cmd.Flags().IntVar(&maxWordsFlag, "max-words", 0, "Cap the enhanced prompt at this many words (0 = no cap)")
}

// orchestrationOptions returns caller options from the flags, or nil when
// none were set. Without --skip-structuring the configured default applies.
func orchestrationOptions() *orchestrator.Options {
	if !skipStructuringFlag && len(featuresFlag) == 0 && len(practicesFlag) == 0 && maxWordsFlag == 0 {
		return nil
	}
	opts := &orchestrator.Options{
		Template:    orchestrator.TemplateOptions{Features: featuresFlag},
		Enhancement: orchestrator.EnhancementOptions{Practices: practicesFlag, MaxWords: maxWordsFlag},
	}
	if skipStructuringFlag {
		skip := true
		opts.SkipStructuring = &skip
	}
	return opts
}

func runStructure(cmd *cobra.Command, args []string) error {
	prompt, err := cli.ReadPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	res, err := a.pipeline.Orchestrator.GenerateStructuredPrompt(ctx, prompt, orchestrationOptions())
	if err != nil {
		return err
	}
	if jsonFlag {
		return cli.WriteJSON(os.Stdout, res)
	}

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("Structured Prompt")
	fmt.Println("============================================")
	fmt.Println(res.StructuredPrompt)
	fmt.Println("--------------------------------------------")
	for _, s := range res.Stages {
		fmt.Printf("%-28s %-10s %s\n", s.Name, s.Status, cli.FormatDurationShort(s.Duration()))
	}
	fmt.Printf("Strategies: %s\n", strings.Join(res.AppliedStrategies, ", "))
	fmt.Printf("Success rate: %.0f%%  Total: %s\n", res.Metrics.SuccessRate*100, cli.FormatDurationShort(res.Metrics.TotalProcessingTime))
	return nil
}

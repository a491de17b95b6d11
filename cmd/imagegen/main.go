// Command imagegen structures prompts and generates images with Gemini.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/gemini-image-orchestrator/internal/logging"
)

// commitHash is overridden at build time with -ldflags "-X main.commitHash=...".
var commitHash = "dev"

// CLI flags shared by several commands
var (
	outDirFlag string
	jsonFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "imagegen",
	Short: "Two-stage prompt orchestration and image generation with Gemini",
	Long: `imagegen turns a short prompt into a structured, best-practice prompt and
renders it with a Gemini image model. Batches of related images share a
consistency profile and a coordinated aspect-ratio strategy.

Configuration is read from ~/.config/imagegen/config.toml (or IMAGEGEN_CONFIG)
and IMAGEGEN_* environment variables. The API key comes from GEMINI_API_KEY.

Examples:
  imagegen structure "a lighthouse in a storm"
  imagegen generate --aspect-ratio 16:9 -o ./out "a lighthouse in a storm"
  imagegen batch --file storyboard.json -o ./out
  imagegen sessions sess-0d6f...
  imagegen mcp`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if cmd.Name() == "mcp" {
			// stdout carries the MCP protocol.
			logging.InitJSON(os.Stderr)
			return
		}
		logging.Init()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
	rootCmd.AddCommand(structureCmd, generateCmd, batchCmd, sessionsCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/gemini-image-orchestrator/internal/cli"
	"github.com/fpang/gemini-image-orchestrator/internal/multiimage"
)

var batchFileFlag string

var batchCmd = &cobra.Command{
	Use:   "batch --file request.json",
	Short: "Generate a coordinated set of images from a JSON request",
	Long: `Batch reads a multi-image request (basePrompt, imageRequirements,
consistencyLevel, aspectRatioStrategy, processingOptions) and renders every
requirement with a shared consistency profile. Use --file - to read stdin.

Requirements that fail are listed in the summary; the batch succeeds as long
as one image was produced.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchFileFlag, "file", "f", "", "Path to the JSON request (- for stdin)")
	batchCmd.Flags().StringVarP(&outDirFlag, "out", "o", "", "Directory to write images to (defaults to the images bucket when configured)")
	_ = batchCmd.MarkFlagRequired("file")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	req, err := cli.ReadJSONFile[multiimage.Request](batchFileFlag, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if err := a.pipeline.PrepareBatch(&req); err != nil {
		return err
	}

	res, err := a.pipeline.Coordinator.CoordinateMultipleImages(ctx, req)
	if err != nil {
		return err
	}

	saved := make(map[string]string, len(res.ProcessedImages))
	for _, img := range res.ProcessedImages {
		where, err := a.saveImage(ctx, outDirFlag, res.ProcessingMetadata.SessionID, img.RequirementID, img.Image)
		if err != nil {
			log.Error().Err(err).Str("requirement", img.RequirementID).Msg("Failed to save image")
			continue
		}
		saved[img.RequirementID] = where
	}

	if jsonFlag {
		return cli.WriteJSON(os.Stdout, struct {
			*multiimage.MultiImageResult
			SavedTo map[string]string `json:"savedTo,omitempty"`
		}{res, saved})
	}
	printBatchResult(res, saved)
	return nil
}

func printBatchResult(res *multiimage.MultiImageResult, saved map[string]string) {
	meta := res.ProcessingMetadata
	cm := res.ConsistencyMetrics

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("Multi-Image Batch")
	fmt.Println("============================================")
	fmt.Printf("Batch: %s\n", meta.SessionID)
	fmt.Printf("Images: %d/%d processed, %d failed\n", meta.ProcessedImages, meta.TotalImages, meta.FailedImages)
	fmt.Printf("Consistency: %s  Aspect ratios: %s (%s)\n", meta.ConsistencyLevel, meta.AspectRatioStrategy, res.AspectRatioSource)
	if meta.ParallelProcessing {
		fmt.Printf("Parallel: %d concurrent, peak %d\n", meta.ConcurrentImages, meta.PeakConcurrency)
	}
	fmt.Println("--------------------------------------------")
	for _, img := range res.ProcessedImages {
		line := fmt.Sprintf("%-16s %-6s %s", img.RequirementID, img.AspectRatio.OptimizedRatio.Ratio, cli.FormatDurationShort(img.ProcessingTime))
		if img.FallbackUsed {
			line += "  fallback"
		}
		if where := saved[img.RequirementID]; where != "" {
			line += "  " + where
		}
		fmt.Println(line)
	}
	for _, f := range meta.Failures {
		fmt.Printf("%-16s FAILED %s\n", f.RequirementID, f.Error)
	}
	fmt.Println("--------------------------------------------")
	fmt.Printf("Coherence: %.2f (coherent: %t)\n", cm.OverallScore, cm.IsCoherent)
	for _, v := range cm.FailedValidations {
		fmt.Printf("  - %s\n", v)
	}
	fmt.Printf("Total: %s  Success: %t\n", cli.FormatDurationShort(meta.Timings.Total), res.Success)
}

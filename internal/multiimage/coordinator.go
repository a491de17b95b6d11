package multiimage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/gemini-image-orchestrator/internal/aspect"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/jobs"
	"github.com/fpang/gemini-image-orchestrator/internal/metrics"
	"github.com/fpang/gemini-image-orchestrator/internal/twostage"
)

// DefaultMaxConcurrentImages is the window size when a request sets none.
const DefaultMaxConcurrentImages = 3

// ImageProcessor is the Two-Stage Processor as seen by the coordinator.
type ImageProcessor interface {
	GenerateImageWithStructuredPrompt(ctx context.Context, req twostage.Request) (*twostage.Result, error)
}

// Coordinator runs multi-image batches.
type Coordinator struct {
	processor     ImageProcessor
	aspects       *aspect.Controller
	metrics       *metrics.Emitter
	maxConcurrent int
	now           func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics emits one EMF document per batch.
func WithMetrics(e *metrics.Emitter) Option {
	return func(c *Coordinator) { c.metrics = e }
}

// WithDefaultConcurrency sets the window size used when a request leaves
// MaxConcurrentImages unset.
func WithDefaultConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// New creates a Coordinator.
func New(processor ImageProcessor, aspects *aspect.Controller, opts ...Option) *Coordinator {
	if aspects == nil {
		aspects = aspect.NewController()
	}
	c := &Coordinator{
		processor:     processor,
		aspects:       aspects,
		maxConcurrent: DefaultMaxConcurrentImages,
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// itemResult is the explicit per-requirement outcome of execution.
type itemResult struct {
	image *ProcessedImage
	err   error
}

// CoordinateMultipleImages generates every requirement of req. Individual
// failures are excluded from the result; the call fails only for an invalid
// request or when no image could be generated.
func (c *Coordinator) CoordinateMultipleImages(ctx context.Context, req Request) (result *MultiImageResult, err error) {
	const op = "multiimage.CoordinateMultipleImages"
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = domain.Recovered(op, r)
			log.Error().Err(err).Msg("Batch coordination panicked")
		}
	}()

	start := c.now()
	var timings PhaseTimings

	// 1. Validate
	level, strategy, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	timings.Validation = c.now().Sub(start)

	batchID := jobs.NewBatchID()
	logger := log.With().Str("batch_id", batchID).Logger()
	logger.Info().
		Int("images", len(req.ImageRequirements)).
		Str("level", string(level)).
		Str("strategy", strategy.Name()).
		Msg("Batch started")

	// 2. Aspect ratios
	phase := c.now()
	items := make([]aspect.Item, len(req.ImageRequirements))
	for i, r := range req.ImageRequirements {
		items[i] = aspect.Item{ID: r.ID, Prompt: requirementPrompt(req.BasePrompt, r), AspectRatio: r.AspectRatio}
	}
	ratios, err := c.aspects.OptimizeAspectRatios(items, strategy)
	if err != nil {
		return nil, err
	}
	timings.AspectRatio = c.now().Sub(phase)

	// 3 + 4. Consistency profile and contexts
	phase = c.now()
	profile := BuildConsistencyProfile(req.BasePrompt, level)
	contexts := make([]*ImageGenerationContext, len(req.ImageRequirements))
	for i, r := range req.ImageRequirements {
		ctxItem := newContext(req.BasePrompt, r, profile)
		ctxItem.AspectRatioOptimization = ratios.Optimizations[i]
		ctxItem.PinAspectRatio = aspect.PinsRatio(strategy)
		for _, sibling := range req.ImageRequirements {
			if sibling.ID != r.ID {
				ctxItem.RelatedContexts = append(ctxItem.RelatedContexts, sibling.ID)
			}
		}
		contexts[i] = ctxItem
	}
	promptScore := MaintainConsistencyAcrossImages(contexts)
	timings.Consistency = c.now().Sub(phase)

	// 5. Execute
	phase = c.now()
	opts := req.ProcessingOptions
	window := opts.MaxConcurrentImages
	if window <= 0 {
		window = c.maxConcurrent
	}
	parallel := opts.EnableParallelProcessing && len(contexts) > 1
	if !parallel {
		window = 1
	}
	if window > len(contexts) {
		window = len(contexts)
	}
	results, windows, peak := c.execute(ctx, contexts, level, opts, window)
	timings.Execution = c.now().Sub(phase)

	var processed []ProcessedImage
	var failures []ItemFailure
	var errs []error
	for i, r := range results {
		id := contexts[i].Requirement.ID
		if r.err != nil {
			failures = append(failures, ItemFailure{RequirementID: id, Error: r.err.Error()})
			errs = append(errs, fmt.Errorf("image %s: %w", id, r.err))
			continue
		}
		processed = append(processed, *r.image)
	}
	if len(processed) == 0 {
		logger.Error().Int("failed", len(failures)).Msg("Every image in the batch failed")
		return nil, domain.Aggregate(op, fmt.Sprintf("all %d images failed", len(contexts)), errs...)
	}

	// 6. Coherence
	phase = c.now()
	report := ValidateImageSetCoherence(processed)
	timings.Coherence = c.now().Sub(phase)
	timings.Total = c.now().Sub(start)

	// 7. Aggregate
	res := &MultiImageResult{
		BasePrompt:      req.BasePrompt,
		ProcessedImages: processed,
		ConsistencyMetrics: ConsistencyMetrics{
			OverallScore:           report.Score,
			PromptConsistency:      domain.Clamp01(promptScore),
			CharacterConsistency:   report.Aspects[ElementCharacter],
			StyleConsistency:       report.Aspects[ElementStyle],
			EnvironmentConsistency: report.Aspects[ElementEnvironment],
			LightingConsistency:    report.Aspects[ElementLighting],
			MoodConsistency:        report.Aspects[ElementMood],
			IsCoherent:             report.IsCoherent,
			FailedValidations:      report.FailedValidations,
		},
		ProcessingMetadata: ProcessingMetadata{
			SessionID:           batchID,
			TotalImages:         len(contexts),
			ProcessedImages:     len(processed),
			FailedImages:        len(failures),
			Failures:            failures,
			ParallelProcessing:  parallel,
			ConcurrentImages:    window,
			PeakConcurrency:     peak,
			Windows:             windows,
			ConsistencyLevel:    level,
			AspectRatioStrategy: strategy.Name(),
			Timings:             timings,
		},
		AspectRatioSource: strategy.Name(),
		AspectRatios:      ratios,
		Success:           true,
	}

	c.metrics.Batch(metrics.BatchStats{
		BatchID:   batchID,
		Size:      len(contexts),
		Processed: len(processed),
		Failed:    len(failures),
		Coherence: report.Score,
		Total:     timings.Total,
		Parallel:  parallel,
	})
	logger.Info().
		Int("processed", len(processed)).
		Int("failed", len(failures)).
		Float64("coherence", report.Score).
		Bool("coherent", report.IsCoherent).
		Dur("duration", timings.Total).
		Msg("Batch completed")

	return res, nil
}

// execute runs contexts in fixed windows of size window, one window after
// another. Results are index-addressed so output order matches input order
// whatever the completion order.
func (c *Coordinator) execute(ctx context.Context, contexts []*ImageGenerationContext, level ConsistencyLevel, opts *ProcessingOptions, window int) ([]itemResult, int, int) {
	results := make([]itemResult, len(contexts))

	// Within a batch, lower priority numbers run first.
	order := make([]int, len(contexts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return contexts[order[a]].Requirement.Priority < contexts[order[b]].Requirement.Priority
	})

	var inFlight, peak atomic.Int32
	windows := 0
	for lo := 0; lo < len(order); lo += window {
		hi := lo + window
		if hi > len(order) {
			hi = len(order)
		}
		windows++
		log.Debug().Int("window", windows).Int("size", hi-lo).Msg("Processing window")

		var g errgroup.Group
		for _, idx := range order[lo:hi] {
			g.Go(func() error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				results[idx] = c.runOne(ctx, contexts[idx], level, opts)
				return nil
			})
		}
		_ = g.Wait()
	}
	return results, windows, int(peak.Load())
}

// runOne generates one context. It never panics and never returns an error
// to the group; failures are carried in the itemResult.
func (c *Coordinator) runOne(ctx context.Context, ic *ImageGenerationContext, level ConsistencyLevel, opts *ProcessingOptions) (out itemResult) {
	id := ic.Requirement.ID
	defer func() {
		if r := recover(); r != nil {
			out = itemResult{err: domain.Recovered("multiimage.runOne", r)}
		}
		if out.err != nil {
			log.Warn().Err(out.err).Str("requirement_id", id).Msg("Image failed, excluding it from the batch")
		}
	}()

	start := c.now()
	params := opts.ImageParameters.Clone()
	if ic.Requirement.ImageParameters != nil {
		params = overlay(params, *ic.Requirement.ImageParameters)
	}
	ratio := ic.AspectRatioOptimization.OptimizedRatio
	params.AspectRatio = &ratio
	if ic.Requirement.Consistency != nil && ic.Requirement.Consistency.Character && level != LevelLoose {
		params.MaintainCharacterConsistency = true
	}

	res, err := c.processor.GenerateImageWithStructuredPrompt(ctx, twostage.Request{
		OriginalPrompt:       ic.EnhancedPrompt,
		OrchestrationOptions: opts.OrchestrationOptions,
		ImageParameters:      params,
		PinAspectRatio:       ic.PinAspectRatio,
	})
	if err != nil {
		return itemResult{err: err}
	}
	if res == nil || res.Image == nil {
		return itemResult{err: errors.New("processor returned no image")}
	}

	img := &ProcessedImage{
		RequirementID:   id,
		Image:           res.Image,
		EnhancedPrompt:  ic.EnhancedPrompt,
		FinalPrompt:     res.FinalPrompt,
		FinalParameters: res.FinalParameters,
		AspectRatio:     ic.AspectRatioOptimization,
		ProcessingTime:  c.now().Sub(start),
	}
	if res.Session != nil {
		img.SessionID = res.Session.SessionID
		img.FallbackUsed = res.Session.FallbackUsed
	}
	return itemResult{image: img}
}

// overlay applies the requirement's non-zero parameters over the batch
// defaults.
func overlay(base, over domain.ImageParameters) domain.ImageParameters {
	out := base
	if over.Quality != "" {
		out.Quality = over.Quality
	}
	if over.Style != "" {
		out.Style = over.Style
	}
	if over.InputImage != nil {
		img := *over.InputImage
		out.InputImage = &img
	}
	if len(over.BlendImages) > 0 {
		out.BlendImages = append([]domain.ImageData(nil), over.BlendImages...)
	}
	out.MaintainCharacterConsistency = base.MaintainCharacterConsistency || over.MaintainCharacterConsistency
	out.UseWorldKnowledge = base.UseWorldKnowledge || over.UseWorldKnowledge
	return out
}

func requirementPrompt(base string, r ImageRequirement) string {
	if sp := strings.TrimSpace(r.SpecificPrompt); sp != "" {
		return sp
	}
	return base
}

// validateRequest checks every gate-1 condition and reports all violations
// at once.
func validateRequest(req Request) (ConsistencyLevel, aspect.Strategy, error) {
	const op = "multiimage.CoordinateMultipleImages"
	var problems []string

	if strings.TrimSpace(req.BasePrompt) == "" {
		problems = append(problems, "basePrompt is required")
	}
	if len(req.ImageRequirements) == 0 {
		problems = append(problems, "at least one image requirement is required")
	}
	if req.ProcessingOptions == nil {
		problems = append(problems, "processingOptions is required")
	} else if req.ProcessingOptions.MaxConcurrentImages < 0 {
		problems = append(problems, "processingOptions.maxConcurrentImages must not be negative")
	}

	seen := make(map[string]bool, len(req.ImageRequirements))
	for i, r := range req.ImageRequirements {
		switch {
		case strings.TrimSpace(r.ID) == "":
			problems = append(problems, fmt.Sprintf("imageRequirements[%d]: id is required", i))
		case seen[r.ID]:
			problems = append(problems, fmt.Sprintf("imageRequirements[%d]: duplicate id %q", i, r.ID))
		default:
			seen[r.ID] = true
		}
		if r.Consistency == nil {
			problems = append(problems, fmt.Sprintf("imageRequirements[%d]: consistency is required", i))
		}
		if r.Priority < 1 {
			problems = append(problems, fmt.Sprintf("imageRequirements[%d]: priority must be at least 1", i))
		}
	}

	level, err := ParseConsistencyLevel(req.ConsistencyLevel)
	if err != nil {
		problems = append(problems, err.Error())
	}
	strategy, err := aspect.ParseStrategy(req.AspectRatioStrategy)
	if err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return "", nil, domain.Validation(op, "Invalid request: %s", strings.Join(problems, "; "))
	}
	return level, strategy, nil
}

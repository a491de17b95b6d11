// Package orchestrator runs the two-stage prompt enhancement pipeline:
// template structuring followed by best-practice enhancement, with a
// full-pipeline fallback to the original prompt.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

// Stage names recorded in OrchestrationResult.Stages.
const (
	StageStructuring = "Template Structuring"
	StageEnhancement = "Best Practice Enhancement"
	// StageFallback is recorded when a stage fails. Its output is the last
	// completed stage output, or the original prompt when no stage completed.
	StageFallback    = "Fallback Processing"
)

// Metrics summarise one orchestration call.
type Metrics struct {
	TotalProcessingTime time.Duration `json:"totalProcessingTime"`
	StageCount          int           `json:"stageCount"`
	SuccessRate         float64       `json:"successRate"`
	FailureCount        int           `json:"failureCount"`
	FallbacksUsed       int           `json:"fallbacksUsed"`
	Timestamp           time.Time     `json:"timestamp"`
}

// OrchestrationResult is the output of GenerateStructuredPrompt.
type OrchestrationResult struct {
	OriginalPrompt    string               `json:"originalPrompt"`
	StructuredPrompt  string               `json:"structuredPrompt"`
	Stages            []domain.StageRecord `json:"stages"`
	AppliedStrategies []string             `json:"appliedStrategies"`
	Metrics           Metrics              `json:"metrics"`
}

// Orchestrator runs the enhancement pipeline. It is safe for concurrent use;
// the only shared state is the metrics of the most recent call.
type Orchestrator struct {
	templates TemplateEngine
	enhancer  EnhancementEngine
	template  Template
	defaults  Options
	now       func() time.Time

	mu   sync.RWMutex
	last *Metrics
}

// New creates an Orchestrator. A zero defaults.StageTimeout is replaced by
// DefaultStageTimeout.
func New(templates TemplateEngine, enhancer EnhancementEngine, defaults Options) *Orchestrator {
	if defaults.StageTimeout == 0 {
		defaults.StageTimeout = DefaultStageTimeout
	}
	return &Orchestrator{
		templates: templates,
		enhancer:  enhancer,
		template:  DefaultTemplate,
		defaults:  defaults,
		now:       time.Now,
	}
}

// ValidateConfiguration fails when a collaborator is missing or the stage
// timeout is not positive.
func (o *Orchestrator) ValidateConfiguration() error {
	const op = "orchestrator.ValidateConfiguration"
	var errs []error
	if o.templates == nil {
		errs = append(errs, errors.New("template engine is not configured"))
	}
	if o.enhancer == nil {
		errs = append(errs, errors.New("enhancement engine is not configured"))
	}
	if o.defaults.StageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stage timeout must be positive, got %s", o.defaults.StageTimeout))
	}
	if strings.TrimSpace(o.template.Body) == "" {
		errs = append(errs, errors.New("structuring template is empty"))
	}
	if len(errs) > 0 {
		return domain.Validation(op, "invalid configuration: %v", errors.Join(errs...))
	}
	return nil
}

// LastMetrics returns the metrics of the most recent completed call.
func (o *Orchestrator) LastMetrics() (Metrics, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return Metrics{}, false
	}
	return *o.last, true
}

// GenerateStructuredPrompt runs structuring and enhancement over prompt.
// Only a blank prompt or an invalid timeout is an error: collaborator
// failures end in the fallback stage and still return a result.
func (o *Orchestrator) GenerateStructuredPrompt(ctx context.Context, prompt string, opts *Options) (result *OrchestrationResult, err error) {
	const op = "orchestrator.GenerateStructuredPrompt"
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = domain.Recovered(op, r)
			log.Error().Err(err).Msg("Orchestration panicked")
		}
	}()

	if strings.TrimSpace(prompt) == "" {
		return nil, domain.Validation(op, "prompt must not be blank")
	}
	cfg := o.defaults.merge(opts)
	if cfg.StageTimeout <= 0 {
		return nil, domain.Validation(op, "stage timeout must be positive, got %s", cfg.StageTimeout)
	}

	start := o.now()
	res := &OrchestrationResult{OriginalPrompt: prompt}
	current := prompt
	failed := false

	if cfg.skipsStructuring() {
		log.Debug().Msg("Template structuring skipped")
	} else {
		out, ok := o.runStructuring(ctx, res, current, cfg)
		if ok {
			current = out
		} else {
			failed = true
		}
	}

	if !failed {
		out, ok := o.runEnhancement(ctx, res, current, cfg)
		if ok {
			current = out
		} else {
			failed = true
		}
	}

	fallbacks := 0
	if failed {
		// current still holds the last completed stage output, or the
		// original prompt when no stage completed.
		fallbacks = 1
		fb := domain.NewStage(StageFallback)
		now := o.now()
		fb.Start(now)
		fb.Complete(now, current)
		res.Stages = append(res.Stages, *fb)
		if current == prompt {
			res.AppliedStrategies = append(res.AppliedStrategies, "fallback:original-prompt")
		} else {
			res.AppliedStrategies = append(res.AppliedStrategies, "fallback:structured-prompt")
		}
		log.Warn().Bool("original_prompt", current == prompt).Msg("Enhancement pipeline failed, continuing with last good prompt")
	}

	res.StructuredPrompt = current
	res.Metrics = o.metrics(res.Stages, fallbacks, start)
	o.mu.Lock()
	m := res.Metrics
	o.last = &m
	o.mu.Unlock()

	log.Info().
		Int("stages", res.Metrics.StageCount).
		Int("failures", res.Metrics.FailureCount).
		Int("fallbacks", fallbacks).
		Dur("duration", res.Metrics.TotalProcessingTime).
		Msg("Structured prompt generated")

	return res, nil
}

// runStructuring records and runs Stage 1. It reports false on failure.
func (o *Orchestrator) runStructuring(ctx context.Context, res *OrchestrationResult, prompt string, cfg Options) (string, bool) {
	stage := domain.NewStage(StageStructuring)
	stage.Start(o.now())

	stageCtx, cancel := context.WithTimeout(ctx, cfg.StageTimeout)
	defer cancel()

	if o.templates == nil {
		return "", o.failStage(res, stage, errors.New("template engine is not configured"))
	}
	out, err := o.templates.ApplyTemplate(stageCtx, prompt, o.template, cfg.Template)
	if err == nil && (out == nil || strings.TrimSpace(out.StructuredPrompt) == "") {
		err = errors.New("template engine returned an empty prompt")
	}
	if err != nil {
		return "", o.failStage(res, stage, domain.Collaborator("orchestrator.structuring", "template engine failed", err))
	}

	stage.Complete(o.now(), out.StructuredPrompt)
	res.Stages = append(res.Stages, *stage)
	res.AppliedStrategies = append(res.AppliedStrategies, "template:"+o.template.Name)
	for _, f := range out.AppliedFeatures {
		res.AppliedStrategies = append(res.AppliedStrategies, "feature:"+f)
	}
	log.Debug().
		Str("stage", stage.Name).
		Dur("duration", stage.Duration()).
		Int("features", len(out.AppliedFeatures)).
		Msg("Stage completed")
	return out.StructuredPrompt, true
}

// runEnhancement records and runs Stage 2. It reports false on failure.
func (o *Orchestrator) runEnhancement(ctx context.Context, res *OrchestrationResult, text string, cfg Options) (string, bool) {
	stage := domain.NewStage(StageEnhancement)
	stage.Start(o.now())

	stageCtx, cancel := context.WithTimeout(ctx, cfg.StageTimeout)
	defer cancel()

	if o.enhancer == nil {
		return "", o.failStage(res, stage, errors.New("enhancement engine is not configured"))
	}
	out, err := o.enhancer.ApplyBestPractices(stageCtx, text, cfg.Enhancement)
	if err == nil && (out == nil || strings.TrimSpace(out.EnhancedPrompt) == "") {
		err = errors.New("enhancement engine returned an empty prompt")
	}
	if err != nil {
		return "", o.failStage(res, stage, domain.Collaborator("orchestrator.enhancement", "enhancement engine failed", err))
	}

	stage.Complete(o.now(), out.EnhancedPrompt)
	res.Stages = append(res.Stages, *stage)
	res.AppliedStrategies = append(res.AppliedStrategies, "best-practices")
	for _, p := range out.AppliedPractices {
		res.AppliedStrategies = append(res.AppliedStrategies, "practice:"+p)
	}
	log.Debug().
		Str("stage", stage.Name).
		Dur("duration", stage.Duration()).
		Int("practices", len(out.AppliedPractices)).
		Msg("Stage completed")
	return out.EnhancedPrompt, true
}

func (o *Orchestrator) failStage(res *OrchestrationResult, stage *domain.StageRecord, err error) bool {
	stage.Fail(o.now(), err)
	res.Stages = append(res.Stages, *stage)
	log.Warn().Err(err).Str("stage", stage.Name).Msg("Stage failed")
	return false
}

func (o *Orchestrator) metrics(stages []domain.StageRecord, fallbacks int, start time.Time) Metrics {
	completed, failed := 0, 0
	for _, s := range stages {
		switch s.Status {
		case domain.StageCompleted:
			completed++
		case domain.StageFailed:
			failed++
		}
	}
	m := Metrics{
		TotalProcessingTime: o.now().Sub(start),
		StageCount:          len(stages),
		FailureCount:        failed,
		FallbacksUsed:       fallbacks,
		Timestamp:           o.now(),
	}
	if len(stages) > 0 {
		m.SuccessRate = domain.Clamp01(float64(completed) / float64(len(stages)))
	}
	return m
}

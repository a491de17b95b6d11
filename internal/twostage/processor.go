// Package twostage puts prompt orchestration, parameter optimization and
// image generation behind one timeout-bounded call with an outer fallback to
// the caller's untouched prompt.
package twostage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/metrics"
	"github.com/fpang/gemini-image-orchestrator/internal/optimizer"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/fpang/gemini-image-orchestrator/internal/store"
)

// Session stage names.
const (
	StagePrompt            = "Structured Prompt Generation"
	StageOptimization      = "Parameter Optimization"
	StageGeneration        = "Image Generation"
	StageFallbackGenerator = "Fallback Image Generation"
	// StageWorkflow is recorded as failed when the enhanced workflow as a
	// whole exceeds the processor timeout.
	StageWorkflow          = "Enhanced Workflow"
)

// ErrSessionNotFound is wrapped by GetProcessingMetadata for unknown ids and
// sessions that have not been sealed yet.
var ErrSessionNotFound = errors.New("session not found")

// PromptOrchestrator is the Stage Orchestrator as seen by the processor.
type PromptOrchestrator interface {
	GenerateStructuredPrompt(ctx context.Context, prompt string, opts *orchestrator.Options) (*orchestrator.OrchestrationResult, error)
	ValidateConfiguration() error
}

// ParameterOptimizer is the Parameter Optimizer as seen by the processor.
type ParameterOptimizer interface {
	OptimizeForStructuredPrompt(text string, base domain.ImageParameters) (*optimizer.OptimizedParameters, error)
}

// Config bounds and tunes the processor.
type Config struct {
	// Timeout bounds the full enhanced workflow.
	Timeout time.Duration
	// FallbackTimeout bounds the raw-prompt fallback call. Defaults to Timeout.
	FallbackTimeout time.Duration
	// TargetProcessingTime adds a session note when exceeded.
	TargetProcessingTime time.Duration
	EnableOptimization   bool
	// SessionRetention is how long sealed sessions stay retrievable in memory.
	SessionRetention time.Duration
}

// DefaultConfig returns the processor defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:              120 * time.Second,
		TargetProcessingTime: 45 * time.Second,
		EnableOptimization:   true,
		SessionRetention:     time.Hour,
	}
}

// Request is one image generation request.
type Request struct {
	OriginalPrompt       string                 `json:"originalPrompt"`
	OrchestrationOptions *orchestrator.Options  `json:"orchestrationOptions,omitempty"`
	ImageParameters      domain.ImageParameters `json:"imageParameters"`
	// PinAspectRatio keeps ImageParameters.AspectRatio through parameter
	// optimization.
	PinAspectRatio bool `json:"pinAspectRatio,omitempty"`
}

// Result is the successful outcome of GenerateImageWithStructuredPrompt.
type Result struct {
	Success         bool                              `json:"success"`
	Image           *domain.GeneratedImage            `json:"image"`
	FinalPrompt     string                            `json:"finalPrompt"`
	FinalParameters domain.ImageParameters            `json:"finalParameters"`
	Orchestration   *orchestrator.OrchestrationResult `json:"orchestration,omitempty"`
	Optimization    *optimizer.OptimizedParameters    `json:"optimization,omitempty"`
	Session         *store.ProcessingSession          `json:"session"`
}

// Processor runs the two-stage workflow. It is safe for concurrent use.
type Processor struct {
	orchestrator PromptOrchestrator
	optimizer    ParameterOptimizer
	client       domain.GenerationClient
	sessions     store.SessionStore
	metrics      *metrics.Emitter
	cfg          Config
	now          func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics emits per-call EMF metrics.
func WithMetrics(e *metrics.Emitter) Option {
	return func(p *Processor) { p.metrics = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor.
func New(orch PromptOrchestrator, opt ParameterOptimizer, client domain.GenerationClient, sessions store.SessionStore, cfg Config, opts ...Option) *Processor {
	if cfg.FallbackTimeout == 0 {
		cfg.FallbackTimeout = cfg.Timeout
	}
	p := &Processor{
		orchestrator: orch,
		optimizer:    opt,
		client:       client,
		sessions:     sessions,
		cfg:          cfg,
		now:          time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ValidateConfiguration fails when a collaborator is missing or a timeout is
// not positive.
func (p *Processor) ValidateConfiguration() error {
	const op = "twostage.ValidateConfiguration"
	var errs []error
	if p.orchestrator == nil {
		errs = append(errs, errors.New("orchestrator is not configured"))
	} else if err := p.orchestrator.ValidateConfiguration(); err != nil {
		errs = append(errs, err)
	}
	if p.optimizer == nil && p.cfg.EnableOptimization {
		errs = append(errs, errors.New("optimization is enabled but no optimizer is configured"))
	}
	if p.client == nil {
		errs = append(errs, errors.New("generation client is not configured"))
	}
	if p.sessions == nil {
		errs = append(errs, errors.New("session store is not configured"))
	}
	if p.cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", p.cfg.Timeout))
	}
	if p.cfg.FallbackTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fallback timeout must be positive, got %s", p.cfg.FallbackTimeout))
	}
	if p.cfg.TargetProcessingTime <= 0 {
		errs = append(errs, fmt.Errorf("target processing time must be positive, got %s", p.cfg.TargetProcessingTime))
	}
	if p.cfg.SessionRetention <= 0 {
		errs = append(errs, fmt.Errorf("session retention must be positive, got %s", p.cfg.SessionRetention))
	}
	if len(errs) > 0 {
		return domain.Validation(op, "invalid configuration: %v", errors.Join(errs...))
	}
	return nil
}

// GetProcessingMetadata returns the sealed session for id.
func (p *Processor) GetProcessingMetadata(ctx context.Context, sessionID string) (*store.ProcessingSession, error) {
	const op = "twostage.GetProcessingMetadata"
	s, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, domain.Internal(op, "session lookup failed", err)
	}
	if s == nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Op: op, Message: fmt.Sprintf("no sealed session %q", sessionID), Err: ErrSessionNotFound}
	}
	return s, nil
}

// draft collects everything the enhanced workflow produces. It is owned by
// the workflow goroutine and read only after that goroutine has reported.
type draft struct {
	stages            []domain.StageRecord
	reasons           []string
	notes             []string
	orchestration     *orchestrator.OrchestrationResult
	optimization      *optimizer.OptimizedParameters
	prompt            string
	params            domain.ImageParameters
	image             *domain.GeneratedImage
	orchestrationTime time.Duration
	optimizationTime  time.Duration
	generationTime    time.Duration
}

type outcome struct {
	d   *draft
	err error
}

// GenerateImageWithStructuredPrompt runs the enhanced workflow under the
// configured timeout and falls back to generating from the original prompt
// and parameters. It fails only for invalid input or when both paths fail.
func (p *Processor) GenerateImageWithStructuredPrompt(ctx context.Context, req Request) (result *Result, err error) {
	const op = "twostage.GenerateImageWithStructuredPrompt"
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = domain.Recovered(op, r)
			log.Error().Err(err).Msg("Two-stage processing panicked")
		}
	}()

	if strings.TrimSpace(req.OriginalPrompt) == "" {
		return nil, domain.Validation(op, "originalPrompt must not be blank")
	}
	if p.cfg.Timeout <= 0 {
		return nil, domain.Validation(op, "timeout must be positive, got %s", p.cfg.Timeout)
	}

	if _, err := p.sessions.EvictOlderThan(ctx, p.now().Add(-p.cfg.SessionRetention)); err != nil {
		log.Warn().Err(err).Msg("Session eviction failed, continuing")
	}
	session, err := p.sessions.Create(ctx, req.OriginalPrompt)
	if err != nil {
		return nil, domain.Internal(op, "create session", err)
	}
	start := p.now()
	logger := log.With().Str("session_id", session.SessionID).Logger()
	logger.Info().Dur("timeout", p.cfg.Timeout).Msg("Two-stage processing started")

	wctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		d := &draft{}
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: domain.Recovered(op, r)}
			}
		}()
		err := p.runWorkflow(wctx, req, d)
		done <- outcome{d: d, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-wctx.Done():
		// The workflow goroutine keeps its draft; nothing it produces from
		// here on is read.
		out = outcome{err: domain.Timeout(op, fmt.Sprintf("workflow exceeded %s", p.cfg.Timeout), wctx.Err())}
		logger.Warn().Dur("timeout", p.cfg.Timeout).Msg("Enhanced workflow timed out, abandoning it")
	}

	res := &Result{Success: true}
	if out.d != nil {
		p.merge(session, out.d, res)
	} else if domain.IsTimeout(out.err) {
		stage := domain.NewStage(StageWorkflow)
		stage.Start(start)
		stage.Fail(p.now(), out.err)
		_ = session.AddStage(*stage)
	}

	if out.err != nil {
		if domain.IsValidation(out.err) {
			p.finalize(ctx, session, start)
			return nil, out.err
		}
		if ferr := p.fallback(ctx, req, session, res, out.err); ferr != nil {
			p.finalize(ctx, session, start)
			logger.Error().Err(ferr).Msg("Enhanced and fallback generation both failed")
			return nil, ferr
		}
	}

	p.finalize(ctx, session, start)
	res.Session = session.Clone()

	logger.Info().
		Bool("fallback_used", session.FallbackUsed).
		Dur("duration", session.TotalProcessingTime).
		Msg("Two-stage processing completed")
	return res, nil
}

// runWorkflow executes orchestration, optional optimization and generation,
// writing only to d.
func (p *Processor) runWorkflow(ctx context.Context, req Request, d *draft) error {
	const op = "twostage.workflow"
	d.params = req.ImageParameters.Clone()

	// (a) Structured prompt
	stage := domain.NewStage(StagePrompt)
	stage.Start(p.now())
	orch, err := p.orchestrator.GenerateStructuredPrompt(ctx, req.OriginalPrompt, req.OrchestrationOptions)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		stage.Fail(p.now(), err)
		d.stages = append(d.stages, *stage)
		if domain.IsValidation(err) {
			return err
		}
		return domain.Collaborator(op, "structured prompt generation failed", err)
	}
	stage.Complete(p.now(), orch.StructuredPrompt)
	d.stages = append(d.stages, *stage)
	d.orchestration = orch
	d.prompt = orch.StructuredPrompt
	d.orchestrationTime = stage.Duration()
	if orch.Metrics.FallbacksUsed > 0 {
		d.notes = append(d.notes, "prompt orchestration used its internal fallback")
	}

	// (b) Parameter optimization
	if p.cfg.EnableOptimization && p.optimizer != nil {
		stage := domain.NewStage(StageOptimization)
		stage.Start(p.now())
		opt, err := p.optimizer.OptimizeForStructuredPrompt(d.prompt, d.params)
		if err != nil {
			stage.Fail(p.now(), err)
			d.notes = append(d.notes, fmt.Sprintf("parameter optimization failed, using original parameters: %v", err))
			log.Warn().Err(err).Msg("Parameter optimization failed, continuing with original parameters")
		} else {
			stage.Complete(p.now(), strings.Join(opt.OptimizationReasons, "; "))
			d.optimization = opt
			d.params = opt.ImageParameters.Clone()
			d.reasons = append(d.reasons, opt.OptimizationReasons...)
			if pinned := req.ImageParameters.AspectRatio; req.PinAspectRatio && pinned != nil &&
				(d.params.AspectRatio == nil || d.params.AspectRatio.Ratio != pinned.Ratio) {
				suggested := "none"
				if d.params.AspectRatio != nil {
					suggested = d.params.AspectRatio.Ratio
				}
				r := *pinned
				d.params.AspectRatio = &r
				d.reasons = append(d.reasons, fmt.Sprintf("kept pinned aspect ratio %s over suggested %s", r.Ratio, suggested))
			}
		}
		d.stages = append(d.stages, *stage)
		d.optimizationTime = stage.Duration()
	}

	// (c) Image generation
	stage = domain.NewStage(StageGeneration)
	stage.Start(p.now())
	img, err := p.client.GenerateImage(ctx, domain.NewImageRequest(d.prompt, d.params))
	if err == nil && img == nil {
		err = errors.New("generation client returned no image")
	}
	if err != nil {
		stage.Fail(p.now(), err)
		d.stages = append(d.stages, *stage)
		return domain.Collaborator(op, "image generation failed", err)
	}
	stage.Complete(p.now(), fmt.Sprintf("%s, %d bytes", img.MIMEType, len(img.Data)))
	d.stages = append(d.stages, *stage)
	d.image = img
	d.generationTime = stage.Duration()
	return nil
}

// merge copies a finished draft into the session and result.
func (p *Processor) merge(s *store.ProcessingSession, d *draft, res *Result) {
	for _, st := range d.stages {
		_ = s.AddStage(st)
	}
	_ = s.AddOptimizations(d.reasons...)
	for _, n := range d.notes {
		_ = s.AddNote(n)
	}
	s.OrchestrationTime = d.orchestrationTime
	s.OptimizationTime = d.optimizationTime
	s.GenerationTime = d.generationTime

	res.Orchestration = d.orchestration
	res.Optimization = d.optimization
	res.Image = d.image
	res.FinalPrompt = d.prompt
	res.FinalParameters = d.params
}

// fallback regenerates from the caller's original prompt and parameters.
func (p *Processor) fallback(ctx context.Context, req Request, s *store.ProcessingSession, res *Result, cause error) error {
	const op = "twostage.fallback"
	_ = s.MarkFallback()
	log.Warn().Err(cause).Str("session_id", s.SessionID).Msg("Enhanced workflow failed, generating from original prompt")

	fctx, cancel := context.WithTimeout(ctx, p.cfg.FallbackTimeout)
	defer cancel()

	stage := domain.NewStage(StageFallbackGenerator)
	stage.Start(p.now())
	img, err := p.client.GenerateImage(fctx, domain.NewImageRequest(req.OriginalPrompt, req.ImageParameters))
	if err == nil && img == nil {
		err = errors.New("generation client returned no image")
	}
	if err != nil {
		stage.Fail(p.now(), err)
		_ = s.AddStage(*stage)
		return domain.Collaborator(op, "image generation failed for both the enhanced and the original prompt", errors.Join(cause, err))
	}
	stage.Complete(p.now(), fmt.Sprintf("%s, %d bytes", img.MIMEType, len(img.Data)))
	_ = s.AddStage(*stage)
	s.GenerationTime = stage.Duration()
	_ = s.AddNote(fmt.Sprintf("fallback generation used: %v", cause))

	res.Image = img
	res.FinalPrompt = req.OriginalPrompt
	res.FinalParameters = req.ImageParameters.Clone()
	return nil
}

// finalize notes slow calls, seals the session and emits metrics.
func (p *Processor) finalize(ctx context.Context, s *store.ProcessingSession, start time.Time) {
	if elapsed := p.now().Sub(start); p.cfg.TargetProcessingTime > 0 && elapsed > p.cfg.TargetProcessingTime {
		_ = s.AddNote(fmt.Sprintf("processing took %s, above the %s target", elapsed.Round(time.Millisecond), p.cfg.TargetProcessingTime))
	}
	if err := p.sessions.Seal(ctx, s); err != nil {
		log.Warn().Err(err).Str("session_id", s.SessionID).Msg("Failed to seal session")
	}
	p.metrics.TwoStage(s.SessionID, s.TotalProcessingTime, s.FallbackUsed)
}

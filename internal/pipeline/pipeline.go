// Package pipeline assembles the orchestration graph from configuration.
package pipeline

import (
	"errors"
	"io"

	"github.com/fpang/gemini-image-orchestrator/internal/aspect"
	"github.com/fpang/gemini-image-orchestrator/internal/chat"
	"github.com/fpang/gemini-image-orchestrator/internal/config"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/metrics"
	"github.com/fpang/gemini-image-orchestrator/internal/multiimage"
	"github.com/fpang/gemini-image-orchestrator/internal/optimizer"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/fpang/gemini-image-orchestrator/internal/store"
	"github.com/fpang/gemini-image-orchestrator/internal/twostage"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Deps are the external collaborators. Archive and MetricsOut are optional.
type Deps struct {
	Templates orchestrator.TemplateEngine
	Enhancer  orchestrator.EnhancementEngine
	Client    domain.GenerationClient
	Archive   store.Archive
	// MetricsOut receives EMF lines when metrics are enabled (stdout when nil).
	MetricsOut io.Writer
}

// GeminiDeps returns Deps backed by client, using the configured models.
func GeminiDeps(client *genai.Client, cfg config.Config) Deps {
	return Deps{
		Templates: chat.NewTemplateEngine(client, cfg.Gemini.TextModel),
		Enhancer:  chat.NewEnhancer(client, cfg.Gemini.TextModel),
		Client:    chat.NewImageClient(client, cfg.Gemini.ImageModel),
	}
}

// Pipeline holds the wired components.
type Pipeline struct {
	Config       config.Config
	Orchestrator *orchestrator.Orchestrator
	Optimizer    *optimizer.Optimizer
	Aspects      *aspect.Controller
	Sessions     *store.MemoryStore
	Processor    *twostage.Processor
	Coordinator  *multiimage.Coordinator
	Metrics      *metrics.Emitter
}

// New validates cfg and wires the components around deps.
func New(cfg config.Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Templates == nil || deps.Enhancer == nil || deps.Client == nil {
		return nil, errors.New("pipeline requires a template engine, an enhancement engine and a generation client")
	}

	var em *metrics.Emitter
	if cfg.Metrics.Enabled {
		em = metrics.NewEmitter(cfg.Metrics.Namespace, deps.MetricsOut)
	}

	var storeOpts []store.MemoryOption
	if deps.Archive != nil {
		storeOpts = append(storeOpts, store.WithArchive(deps.Archive))
	}
	sessions := store.NewMemoryStore(storeOpts...)

	orch := orchestrator.New(deps.Templates, deps.Enhancer, orchestrator.Options{
		StageTimeout: cfg.Orchestrator.StageTimeout,
	})
	opt := optimizer.New()
	aspects := aspect.NewController()

	processor := twostage.New(orch, opt, deps.Client, sessions, twostage.Config{
		Timeout:              cfg.Processor.Timeout,
		TargetProcessingTime: cfg.Processor.TargetProcessingTime,
		EnableOptimization:   cfg.Processor.EnableOptimization,
		SessionRetention:     cfg.Processor.SessionRetention,
	}, twostage.WithMetrics(em))

	coordinator := multiimage.New(processor, aspects,
		multiimage.WithMetrics(em),
		multiimage.WithDefaultConcurrency(cfg.Coordinator.MaxConcurrentImages),
	)

	log.Debug().
		Bool("archive", deps.Archive != nil).
		Bool("metrics", em != nil).
		Int("max_concurrent_images", cfg.Coordinator.MaxConcurrentImages).
		Msg("Pipeline wired")

	return &Pipeline{
		Config:       cfg,
		Orchestrator: orch,
		Optimizer:    opt,
		Aspects:      aspects,
		Sessions:     sessions,
		Processor:    processor,
		Coordinator:  coordinator,
		Metrics:      em,
	}, nil
}

// ValidateConfiguration checks every stage of the graph.
func (p *Pipeline) ValidateConfiguration() error {
	return p.Processor.ValidateConfiguration()
}

// ProcessingOptions returns batch options from configuration, for requests
// that leave them out.
func (p *Pipeline) ProcessingOptions() *multiimage.ProcessingOptions {
	return &multiimage.ProcessingOptions{
		EnableParallelProcessing: p.Config.Coordinator.EnableParallel,
		MaxConcurrentImages:      p.Config.Coordinator.MaxConcurrentImages,
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/cli"
	"github.com/fpang/gemini-image-orchestrator/internal/config"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/lambdaboot"
	"github.com/fpang/gemini-image-orchestrator/internal/logging"
	"github.com/fpang/gemini-image-orchestrator/internal/metrics"
	"github.com/fpang/gemini-image-orchestrator/internal/pipeline"
	"github.com/fpang/gemini-image-orchestrator/internal/s3util"
	"github.com/fpang/gemini-image-orchestrator/internal/store"
)

// app is the per-invocation component graph.
type app struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	archive  *store.DynamoArchive
	sink     *s3util.Sink
}

// newApp loads configuration, optional AWS collaborators and the Gemini
// client, then wires the pipeline.
func newApp(ctx context.Context) (*app, error) {
	start := time.Now()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if err := a.initAWS(ctx); err != nil {
		return nil, err
	}

	var em *metrics.Emitter
	if cfg.Metrics.Enabled {
		em = metrics.NewEmitter(cfg.Metrics.Namespace, nil)
	}
	client := cli.InitGeminiClient(ctx, cfg.Gemini.TextModel, em)

	deps := pipeline.GeminiDeps(client, cfg)
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.pipeline, err = pipeline.New(cfg, deps); err != nil {
		return nil, err
	}

	logging.NewStartupLogger("imagegen").
		CommitHash(commitHash).
		Model("image", cfg.Gemini.ImageModel).
		Model("text", cfg.Gemini.TextModel).
		Resource("sessionsTable", cfg.AWS.SessionsTable).
		Resource("imagesBucket", cfg.AWS.ImagesBucket).
		Feature("metrics", cfg.Metrics.Enabled).
		Feature("optimization", cfg.Processor.EnableOptimization).
		Feature("parallel", cfg.Coordinator.EnableParallel).
		InitDuration(time.Since(start)).
		Log()
	return a, nil
}

// initAWS connects the session archive and image bucket when configured.
func (a *app) initAWS(ctx context.Context) error {
	if a.cfg.AWS.SessionsTable == "" && a.cfg.AWS.ImagesBucket == "" {
		return nil
	}
	awsCfg, err := lambdaboot.LoadAWSConfig(ctx)
	if err != nil {
		return err
	}
	if a.archive, err = lambdaboot.NewArchive(awsCfg, a.cfg.AWS.SessionsTable); err != nil {
		return err
	}
	a.sink = lambdaboot.NewSink(awsCfg, a.cfg.AWS.ImagesBucket)
	return nil
}

// saveImage writes img to outDir when set, otherwise uploads it to the
// configured bucket. It returns where the image went, or "" when neither is
// configured.
func (a *app) saveImage(ctx context.Context, outDir, prefix, name string, img *domain.GeneratedImage) (string, error) {
	if img == nil {
		return "", nil
	}
	switch {
	case outDir != "":
		dir, err := cli.ResolveOutputDirectory(outDir)
		if err != nil {
			return "", err
		}
		return cli.WriteImage(dir, name, img)
	case a.sink != nil:
		stored, err := a.sink.Store(ctx, prefix, name, img)
		if err != nil {
			return "", err
		}
		if stored.URL != "" {
			return stored.URL, nil
		}
		return fmt.Sprintf("s3://%s/%s", a.sink.Bucket(), stored.Key), nil
	default:
		log.Warn().Msg("No output directory or images bucket configured; image not saved")
		return "", nil
	}
}

// Package main provides the Lambda entry point for the image orchestration API.
//
// It serves the same pipeline as the imagegen CLI behind API Gateway, reading
// input images from and writing generated images to the images bucket.
//
// Endpoints:
//
//	GET  /api/health                    health check
//	POST /api/structure                 structure and enhance a prompt
//	POST /api/generate                  two-stage generation of one image
//	POST /api/batch                     coordinated multi-image generation
//	GET  /api/sessions/{id}/metadata    processing session metadata
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/cli"
	"github.com/fpang/gemini-image-orchestrator/internal/config"
	"github.com/fpang/gemini-image-orchestrator/internal/lambdaboot"
	"github.com/fpang/gemini-image-orchestrator/internal/logging"
	"github.com/fpang/gemini-image-orchestrator/internal/metrics"
	"github.com/fpang/gemini-image-orchestrator/internal/pipeline"
)

// commitHash is overridden at build time with -ldflags "-X main.commitHash=...".
var commitHash = "dev"

// bootstrap runs the cold-start wiring. Failures are fatal.
func bootstrap() *server {
	initStart := time.Now()
	logging.InitJSON(os.Stdout)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	awsCfg, err := lambdaboot.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	if err := lambdaboot.LoadGeminiKey(ctx, lambdaboot.NewSSM(awsCfg)); err != nil {
		log.Fatal().Err(err).Msg("Failed to load Gemini API key")
	}

	p, err := pipeline.New(cfg, geminiDeps(ctx, cfg, awsCfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	srv := &server{
		pipeline:     p,
		metrics:      p.Metrics,
		originSecret: os.Getenv("ORIGIN_VERIFY_SECRET"),
	}
	if sink := lambdaboot.NewSink(awsCfg, cfg.AWS.ImagesBucket); sink != nil {
		srv.images = sink
	}
	if srv.originSecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}

	logging.NewStartupLogger("imagegen-lambda").
		CommitHash(commitHash).
		Model("image", cfg.Gemini.ImageModel).
		Model("text", cfg.Gemini.TextModel).
		Resource("sessionsTable", cfg.AWS.SessionsTable).
		Resource("imagesBucket", cfg.AWS.ImagesBucket).
		Feature("metrics", cfg.Metrics.Enabled).
		Feature("originVerify", srv.originSecret != "").
		Config("stageTimeout", cfg.Orchestrator.StageTimeout.String()).
		Config("processorTimeout", cfg.Processor.Timeout.String()).
		InitDuration(time.Since(initStart)).
		Log()
	return srv
}

// geminiDeps validates the API key, then builds the Gemini-backed
// collaborators and the optional session archive.
func geminiDeps(ctx context.Context, cfg config.Config, awsCfg aws.Config) pipeline.Deps {
	var em *metrics.Emitter
	if cfg.Metrics.Enabled {
		em = metrics.NewEmitter(cfg.Metrics.Namespace, nil)
	}
	client := cli.InitGeminiClient(ctx, cfg.Gemini.TextModel, em)
	deps := pipeline.GeminiDeps(client, cfg)

	archive, err := lambdaboot.NewArchive(awsCfg, cfg.AWS.SessionsTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session archive")
	}
	if archive != nil {
		deps.Archive = archive
	}
	return deps
}

func main() {
	adapter := httpadapter.NewV2(bootstrap().handler())
	lambda.Start(adapter.ProxyWithContext)
}

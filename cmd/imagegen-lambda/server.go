package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/jobs"
	"github.com/fpang/gemini-image-orchestrator/internal/metrics"
	"github.com/fpang/gemini-image-orchestrator/internal/multiimage"
	"github.com/fpang/gemini-image-orchestrator/internal/orchestrator"
	"github.com/fpang/gemini-image-orchestrator/internal/pipeline"
	"github.com/fpang/gemini-image-orchestrator/internal/s3util"
	"github.com/fpang/gemini-image-orchestrator/internal/twostage"
)

const sessionsPrefix = "/api/sessions/"

// imageStore is the bucket side of the API: inputs are read by key and
// outputs are stored under the session or batch id.
type imageStore interface {
	Store(ctx context.Context, prefix, name string, img *domain.GeneratedImage) (*s3util.StoredImage, error)
	Load(ctx context.Context, key string) (*domain.ImageData, error)
}

type server struct {
	pipeline     *pipeline.Pipeline
	images       imageStore // nil when no bucket is configured
	metrics      *metrics.Emitter
	originSecret string
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/structure", s.handleStructure)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/batch", s.handleBatch)
	mux.HandleFunc("GET "+sessionsPrefix, s.handleSessionRoutes)
	return s.withMetrics(s.withOriginVerify(mux))
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if err := s.pipeline.ValidateConfiguration(); err != nil {
		log.Error().Err(err).Msg("Pipeline configuration invalid")
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "gemini-image-orchestrator",
		"version": commitHash,
	})
}

type structureRequest struct {
	Prompt  string                `json:"prompt"`
	Options *orchestrator.Options `json:"options,omitempty"`
}

// POST /api/structure
func (s *server) handleStructure(w http.ResponseWriter, r *http.Request) {
	var req structureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.pipeline.Orchestrator.GenerateStructuredPrompt(r.Context(), req.Prompt, req.Options)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type generateRequest struct {
	Prompt          string                 `json:"prompt"`
	Options         *orchestrator.Options  `json:"options,omitempty"`
	ImageParameters domain.ImageParameters `json:"imageParameters"`
	InputImageKey   string                 `json:"inputImageKey,omitempty"`
	BlendImageKeys  []string               `json:"blendImageKeys,omitempty"`
}

type generateResponse struct {
	*twostage.Result
	StoredImage *s3util.StoredImage `json:"storedImage,omitempty"`
	ImageData   []byte              `json:"imageData,omitempty"`
}

// POST /api/generate
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := s.resolveImages(ctx, &req); err != nil {
		respondError(w, err)
		return
	}

	res, err := s.pipeline.Processor.GenerateImageWithStructuredPrompt(ctx, twostage.Request{
		OriginalPrompt:       req.Prompt,
		OrchestrationOptions: req.Options,
		ImageParameters:      req.ImageParameters,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	out := generateResponse{Result: res}
	out.StoredImage, out.ImageData = s.storeImage(ctx, res.Session.SessionID, "image", res.Image)
	respondJSON(w, http.StatusOK, out)
}

// resolveImages validates the parameters and replaces bucket keys with the
// images they name.
func (s *server) resolveImages(ctx context.Context, req *generateRequest) error {
	const op = "api.generate"
	p := &req.ImageParameters
	if p.InputImage != nil || len(p.BlendImages) > 0 {
		return domain.Validation(op, "images must be passed as inputImageKey or blendImageKeys")
	}
	if err := pipeline.ResolveParameters(p); err != nil {
		return domain.Validation(op, "%v", err)
	}
	if req.InputImageKey == "" && len(req.BlendImageKeys) == 0 {
		return nil
	}
	if s.images == nil {
		return domain.Validation(op, "image keys require an images bucket")
	}

	load := func(key string) (*domain.ImageData, error) {
		if err := validateKey(key); err != nil {
			return nil, domain.Validation(op, "%v", err)
		}
		img, err := s.images.Load(ctx, key)
		if err != nil {
			return nil, domain.Validation(op, "cannot load %s: %v", key, err)
		}
		return img, nil
	}
	if req.InputImageKey != "" {
		img, err := load(req.InputImageKey)
		if err != nil {
			return err
		}
		p.InputImage = img
	}
	for _, key := range req.BlendImageKeys {
		img, err := load(key)
		if err != nil {
			return err
		}
		p.BlendImages = append(p.BlendImages, *img)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid image key %q", key)
	}
	return nil
}

// storeImage uploads img when a bucket is configured; otherwise the bytes are
// returned inline.
func (s *server) storeImage(ctx context.Context, prefix, name string, img *domain.GeneratedImage) (*s3util.StoredImage, []byte) {
	if img == nil {
		return nil, nil
	}
	if s.images == nil {
		return nil, img.Data
	}
	stored, err := s.images.Store(ctx, prefix, name, img)
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Str("name", name).Msg("Failed to store image, returning inline")
		return nil, img.Data
	}
	return stored, nil
}

type batchResponse struct {
	*multiimage.MultiImageResult
	StoredImages map[string]*s3util.StoredImage `json:"storedImages,omitempty"`
	ImageData    map[string][]byte              `json:"imageData,omitempty"`
}

// POST /api/batch
func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req multiimage.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.pipeline.PrepareBatch(&req); err != nil {
		respondError(w, err)
		return
	}
	ctx := r.Context()
	res, err := s.pipeline.Coordinator.CoordinateMultipleImages(ctx, req)
	if err != nil {
		respondError(w, err)
		return
	}

	out := batchResponse{MultiImageResult: res}
	for _, img := range res.ProcessedImages {
		stored, data := s.storeImage(ctx, res.ProcessingMetadata.SessionID, img.RequirementID, img.Image)
		if stored != nil {
			if out.StoredImages == nil {
				out.StoredImages = make(map[string]*s3util.StoredImage)
			}
			out.StoredImages[img.RequirementID] = stored
		}
		if data != nil {
			if out.ImageData == nil {
				out.ImageData = make(map[string][]byte)
			}
			out.ImageData[img.RequirementID] = data
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/sessions/{id}/metadata
func (s *server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	id, action, ok := jobs.ParseRoute(r.URL.Path, sessionsPrefix, jobs.SessionPrefix)
	if !ok || action != "metadata" {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	sess, err := s.pipeline.Sessions.Get(r.Context(), id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load session", err.Error())
		return
	}
	if sess == nil {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

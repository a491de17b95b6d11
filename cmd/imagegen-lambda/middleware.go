package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/jobs"
)

// withOriginVerify rejects requests lacking the x-origin-verify header that
// CloudFront injects, so the API Gateway URL cannot be called directly.
func (s *server) withOriginVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.originSecret == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("x-origin-verify") != s.originSecret {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			httpError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// withMetrics emits one EMF request document per call.
func (s *server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		elapsed := time.Since(start)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.statusCode).
			Dur("elapsed", elapsed).
			Msg("Request handled")
		s.metrics.Request(normalizeEndpoint(r.URL.Path), r.Method, sr.statusCode, elapsed)
	})
}

// normalizeEndpoint collapses session ids so the Endpoint dimension stays
// low-cardinality.
func normalizeEndpoint(path string) string {
	if _, action, ok := jobs.ParseRoute(path, sessionsPrefix, jobs.SessionPrefix); ok {
		return sessionsPrefix + "*/" + action
	}
	if strings.HasPrefix(path, "/api/") {
		return path
	}
	return "other"
}

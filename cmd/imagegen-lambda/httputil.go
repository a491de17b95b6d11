package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

// maxBodyBytes bounds JSON request bodies. Images travel as bucket keys.
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write JSON response")
	}
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// respondError maps a pipeline error onto a status code. Validation messages
// are safe to return; anything else is logged and replaced.
func respondError(w http.ResponseWriter, err error) {
	var de *domain.Error
	switch domain.KindOf(err) {
	case domain.KindValidation:
		msg := err.Error()
		if errors.As(err, &de) {
			msg = de.Message
		}
		httpError(w, http.StatusBadRequest, msg)
	case domain.KindCollaborator, domain.KindAggregate:
		httpError(w, http.StatusBadGateway, "image generation failed", err.Error())
	case domain.KindTimeout:
		httpError(w, http.StatusGatewayTimeout, "processing timed out", err.Error())
	default:
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

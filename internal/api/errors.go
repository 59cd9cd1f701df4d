package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"gwi.com/rag-orchestrator/internal/apperrors"
)

type ErrorBody struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// StatusFor maps an error kind to the HTTP status it is reported with.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidRequest, apperrors.KindInvalidConfig:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindGenerationFailed:
		return http.StatusBadGateway
	case apperrors.KindIndexUnavailable, apperrors.KindRetrievalFailed, apperrors.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := StatusFor(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).
			Str("kind", string(kind)).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request failed")
		if kind == apperrors.KindInternal {
			message = "internal error"
		}
	}
	h.writeJSON(w, status, ErrorResponse{Error: ErrorBody{Kind: kind, Message: message}})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"gwi.com/rag-orchestrator/internal/auth"
)

type contextKey string

const subjectKey contextKey = "subject"

// Subject returns the token subject stored by the auth middleware.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// RequestLogger logs one line per request with its outcome and duration.
func (h *APIHandler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// JWTAuthMiddleware rejects requests without a valid bearer token.
func (h *APIHandler) JWTAuthMiddleware(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				h.writeUnauthorized(w, "Authorization header is required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			subject, err := issuer.ValidateJWT(tokenString)
			if err != nil {
				h.logger.Debug().Err(err).Msg("Rejected bearer token")
				h.writeUnauthorized(w, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *APIHandler) writeUnauthorized(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorBody{Kind: "unauthorized", Message: message}})
}


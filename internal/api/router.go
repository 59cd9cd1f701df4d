package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gwi.com/rag-orchestrator/internal/auth"
)

// NewRouter wires the handlers. A nil issuer leaves the API open; no
// allowed origins turns CORS handling off.
func NewRouter(apiHandler *APIHandler, issuer *auth.Issuer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(apiHandler.RequestLogger)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.StripSlashes)

	r.NotFound(apiHandler.NotFoundHandler)
	r.MethodNotAllowed(apiHandler.MethodNotAllowedHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Group(func(r chi.Router) {
			if issuer != nil {
				r.Use(apiHandler.JWTAuthMiddleware(issuer))
			}

			r.Post("/documents", apiHandler.DocumentsHandler)
			r.Post("/upload", apiHandler.UploadHandler)
			r.Get("/collections", apiHandler.ListCollectionsHandler)

			r.Post("/retrieve", apiHandler.RetrieveHandler)
			r.Post("/generate", apiHandler.GenerateHandler)

			r.Post("/ask", apiHandler.AskHandler)
			r.Post("/ask/{conversationID}", apiHandler.AskHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
		})
	})

	return r
}

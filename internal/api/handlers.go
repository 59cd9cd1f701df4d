package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/core"
	"gwi.com/rag-orchestrator/internal/gateway"
	"gwi.com/rag-orchestrator/internal/models"
)

const defaultRetrieveK = 3

type Asker interface {
	Ask(ctx context.Context, req core.AskRequest) (*core.AskResult, error)
	Conversation(ctx context.Context, id string) (*models.Conversation, error)
}

type Ingester interface {
	IngestText(ctx context.Context, collectionID, text string) (*core.IngestResult, error)
	IngestFile(ctx context.Context, name string, r io.Reader, collectionID string) (*core.IngestResult, error)
}

type CollectionLister interface {
	ListCollections(ctx context.Context) ([]models.Collection, error)
}

// Services are the components the handlers delegate to.
type Services struct {
	Orchestrator Asker
	Ingestor     Ingester
	Collections  CollectionLister
	Retriever    gateway.Retriever
	Generator    gateway.Generator
}

type APIHandler struct {
	services       Services
	validate       *validator.Validate
	logger         arbor.ILogger
	maxUploadBytes int64
}

func NewAPIHandler(services Services, maxUploadBytes int64, logger arbor.ILogger) *APIHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &APIHandler{
		services:       services,
		validate:       validator.New(),
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

type DocumentRequest struct {
	CollectionID string `json:"collection_id"`
	DocumentText string `json:"document_text" validate:"required"`
}

type IngestResponse struct {
	CollectionID string `json:"collection_id"`
	ChunkCount   int    `json:"chunk_count"`
}

func (h *APIHandler) DocumentsHandler(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.services.Ingestor.IngestText(r.Context(), req.CollectionID, req.DocumentText)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, IngestResponse{CollectionID: res.CollectionID, ChunkCount: res.ChunkCount})
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload"
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(w, r, apperrors.New(apperrors.KindInvalidRequest, op, "invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, apperrors.New(apperrors.KindInvalidRequest, op, "form field \"file\" is required"))
		return
	}
	defer file.Close()

	res, err := h.services.Ingestor.IngestFile(r.Context(), header.Filename, file, r.FormValue("collection_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, IngestResponse{CollectionID: res.CollectionID, ChunkCount: res.ChunkCount})
}

func (h *APIHandler) ListCollectionsHandler(w http.ResponseWriter, r *http.Request) {
	cols, err := h.services.Collections.ListCollections(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if cols == nil {
		cols = []models.Collection{}
	}
	h.writeJSON(w, http.StatusOK, cols)
}

func (h *APIHandler) RetrieveHandler(w http.ResponseWriter, r *http.Request) {
	var req gateway.RetrieveRequest
	if !h.decodeWith(w, r, &req, func() {
		if req.K == 0 {
			req.K = defaultRetrieveK
		}
	}) {
		return
	}
	chunks, err := h.services.Retriever.Retrieve(r.Context(), req.CollectionID, req.Query, req.K)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := gateway.RetrieveResponse{Chunks: make([]gateway.ChunkPayload, len(chunks))}
	for i, c := range chunks {
		resp.Chunks[i] = gateway.NewChunkPayload(c)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	var req gateway.GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	answer, err := h.services.Generator.Generate(r.Context(), req.Question, req.Context)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gateway.GenerateResponse{Answer: answer})
}

type AskRequest struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question" validate:"required"`
	CollectionID   string `json:"collection_id"`
}

type AskResponse struct {
	ConversationID string           `json:"conversation_id"`
	Answer         string           `json:"answer"`
	Conversation   []models.Message `json:"conversation"`
}

// AskHandler serves both /ask/{conversationID} and /ask, where the id
// comes from the body instead.
func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := conversationParam(r)

	var req AskRequest
	if !h.decode(w, r, &req) {
		return
	}
	bodyID := strings.TrimSpace(req.ConversationID)
	switch {
	case conversationID == "":
		conversationID = bodyID
	case bodyID != "" && bodyID != conversationID:
		h.writeError(w, r, apperrors.New(apperrors.KindInvalidRequest, "api.ask",
			"conversation_id %q does not match the path", req.ConversationID))
		return
	}

	res, err := h.services.Orchestrator.Ask(r.Context(), core.AskRequest{
		ConversationID: conversationID,
		Question:       req.Question,
		CollectionID:   req.CollectionID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AskResponse{
		ConversationID: res.ConversationID,
		Answer:         res.Answer,
		Conversation:   res.Conversation.Messages,
	})
}

type ConversationResponse struct {
	ConversationID string           `json:"conversation_id"`
	Conversation   []models.Message `json:"conversation"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.services.Orchestrator.Conversation(r.Context(), conversationParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ConversationResponse{ConversationID: conv.ID, Conversation: conv.Messages})
}

// conversationParam returns the trimmed {conversationID} path segment.
// chi hands back the escaped form when the request carries a raw path.
func conversationParam(r *http.Request) string {
	id := chi.URLParam(r, "conversationID")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
	}
	return strings.TrimSpace(id)
}

// NotFoundHandler and MethodNotAllowedHandler keep unmatched requests on
// the JSON error format.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, apperrors.New(apperrors.KindNotFound, "api", "no route for %s %s", r.Method, r.URL.Path))
}

func (h *APIHandler) MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: ErrorBody{
		Kind:    apperrors.KindInvalidRequest,
		Message: "method " + r.Method + " is not allowed on " + r.URL.Path,
	}})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeWith(w, r, dst, nil)
}

// decodeWith reads a JSON body into dst, applies defaults and validates it.
// It writes the error response itself and reports whether to continue.
func (h *APIHandler) decodeWith(w http.ResponseWriter, r *http.Request, dst any, defaults func()) bool {
	const op = "api.decode"
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, apperrors.New(apperrors.KindInvalidRequest, op, "invalid request body: %v", err))
		return false
	}
	if defaults != nil {
		defaults()
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, apperrors.New(apperrors.KindInvalidRequest, op, "%s", validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		default:
			msgs = append(msgs, fe.Field()+" must satisfy "+fe.Tag()+"="+fe.Param())
		}
	}
	return strings.Join(msgs, "; ")
}

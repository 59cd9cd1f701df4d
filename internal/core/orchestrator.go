// Package core sequences retrieval, generation and persistence for a chat
// turn, and runs the document ingestion path.
package core

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/gateway"
	"gwi.com/rag-orchestrator/internal/models"
)

// FallbackAnswer is stored and returned when generation fails.
const FallbackAnswer = "I am sorry, there was an error processing your request."

const (
	DefaultTopK            = 3
	DefaultMaxContextChars = 4000
)

// ConversationStore is the part of the conversation store the orchestrator
// needs.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, id string) (*models.Conversation, error)
	Append(ctx context.Context, id string, msgs ...models.Message) (*models.Conversation, error)
}

type OrchestratorOptions struct {
	TopK            int
	MaxContextChars int
}

type Orchestrator struct {
	retriever gateway.Retriever
	generator gateway.Generator
	store     ConversationStore
	opts      OrchestratorOptions
	logger    arbor.ILogger
}

func NewOrchestrator(r gateway.Retriever, g gateway.Generator, s ConversationStore, opts OrchestratorOptions, logger arbor.ILogger) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Orchestrator{
		retriever: r,
		generator: g,
		store:     s,
		opts:      opts,
		logger:    logger,
	}
}

type AskRequest struct {
	ConversationID string
	Question       string
	// CollectionID scopes retrieval; empty means the conversation id.
	CollectionID string
}

type AskResult struct {
	ConversationID     string
	Answer             string
	Conversation       *models.Conversation
	Context            []models.Chunk
	RetrievalDegraded  bool
	GenerationDegraded bool
}

// Ask answers one question. Retrieval and generation failures degrade the
// answer but never fail the call; store failures do.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	const op = "core.ask"
	id := strings.TrimSpace(req.ConversationID)
	question := strings.TrimSpace(req.Question)
	if id == "" {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "conversation id is required")
	}
	if question == "" {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "question is required")
	}
	collection := strings.TrimSpace(req.CollectionID)
	if collection == "" {
		collection = id
	}

	res := &AskResult{ConversationID: id}

	chunks, err := o.retriever.Retrieve(ctx, collection, question, o.opts.TopK)
	if err != nil {
		o.logger.Warn().Err(err).
			Str("conversation_id", id).
			Str("collection", collection).
			Msg("Retrieval failed, answering without context")
		chunks = nil
		res.RetrievalDegraded = true
	}
	res.Context = chunks

	docs := FormatContext(chunks, o.opts.MaxContextChars)

	answer, err := o.generator.Generate(ctx, question, docs)
	if err != nil {
		o.logger.Error().Err(err).
			Str("conversation_id", id).
			Msg("Generation failed, returning fallback answer")
		answer = FallbackAnswer
		res.GenerationDegraded = true
	}
	res.Answer = answer

	if _, err := o.store.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}
	conv, err := o.store.Append(ctx, id,
		models.Message{Role: models.RoleUser, Content: question},
		models.Message{Role: models.RoleAssistant, Content: answer},
	)
	if err != nil {
		return nil, err
	}
	res.Conversation = conv

	o.logger.Info().
		Str("conversation_id", id).
		Str("collection", collection).
		Int("context_chunks", len(chunks)).
		Int("messages", len(conv.Messages)).
		Bool("retrieval_degraded", res.RetrievalDegraded).
		Bool("generation_degraded", res.GenerationDegraded).
		Msg("Answered question")
	return res, nil
}

// Conversation returns the stored history for id.
func (o *Orchestrator) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	return o.store.Get(ctx, id)
}

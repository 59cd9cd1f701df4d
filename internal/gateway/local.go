package gateway

import (
	"context"
	"time"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/llm"
	"gwi.com/rag-orchestrator/internal/models"
)

// Searcher is the part of the embedding index the retriever needs.
type Searcher interface {
	Query(ctx context.Context, collectionID, text string, k int) ([]models.Chunk, error)
}

// LocalRetriever queries an in-process index.
type LocalRetriever struct {
	searcher Searcher
	timeout  time.Duration
}

func NewLocalRetriever(s Searcher, timeout time.Duration) *LocalRetriever {
	if timeout <= 0 {
		timeout = DefaultRetrievalTimeout
	}
	return &LocalRetriever{searcher: s, timeout: timeout}
}

func (r *LocalRetriever) Retrieve(ctx context.Context, collectionID, query string, k int) ([]models.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		chunks []models.Chunk
		err    error
	}
	// the index may not honour ctx everywhere, so the deadline is enforced here too
	done := make(chan result, 1)
	go func() {
		chunks, err := r.searcher.Query(ctx, collectionID, query, k)
		done <- result{chunks, err}
	}()

	select {
	case <-ctx.Done():
		return nil, failure(apperrors.KindRetrievalFailed, "gateway.retrieve", r.timeout, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, failure(apperrors.KindRetrievalFailed, "gateway.retrieve", r.timeout, res.err)
		}
		return res.chunks, nil
	}
}

// LocalGenerator calls an in-process language model.
type LocalGenerator struct {
	model   llm.Model
	timeout time.Duration
}

func NewLocalGenerator(m llm.Model, timeout time.Duration) *LocalGenerator {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &LocalGenerator{model: m, timeout: timeout}
}

func (g *LocalGenerator) Generate(ctx context.Context, question, docs string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		answer string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		answer, err := g.model.Complete(ctx, llm.Prompt{Question: question, Context: docs})
		done <- result{answer, err}
	}()

	select {
	case <-ctx.Done():
		return "", failure(apperrors.KindGenerationFailed, "gateway.generate", g.timeout, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", failure(apperrors.KindGenerationFailed, "gateway.generate", g.timeout, res.err)
		}
		if res.answer == "" {
			return "", apperrors.New(apperrors.KindGenerationFailed, "gateway.generate", "%s returned an empty answer", g.model.Name())
		}
		return res.answer, nil
	}
}

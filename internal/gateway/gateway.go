// Package gateway gives the orchestrator timeout-bounded access to retrieval
// and generation, either in-process or through another instance's HTTP API.
//
// Every failure, including a timeout, is reported as RetrievalFailed or
// GenerationFailed so callers can degrade instead of aborting.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/models"
)

const (
	DefaultRetrievalTimeout  = 5 * time.Second
	DefaultGenerationTimeout = 8 * time.Second
)

type Retriever interface {
	Retrieve(ctx context.Context, collectionID, query string, k int) ([]models.Chunk, error)
}

type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// Wire records shared with the HTTP API.

type RetrieveRequest struct {
	CollectionID string `json:"collection_id" validate:"required"`
	Query        string `json:"query" validate:"required"`
	K            int    `json:"k" validate:"gte=1,lte=100"`
}

type ChunkMetadata struct {
	ChunkID      int     `json:"chunk_id"`
	TotalChunks  int     `json:"total_chunks"`
	CollectionID string  `json:"collection_id"`
	Score        float32 `json:"score"`
}

type ChunkPayload struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

type RetrieveResponse struct {
	Chunks []ChunkPayload `json:"chunks"`
}

type GenerateRequest struct {
	Question string `json:"question" validate:"required"`
	Context  string `json:"context"`
}

type GenerateResponse struct {
	Answer string `json:"answer"`
}

func NewChunkPayload(c models.Chunk) ChunkPayload {
	return ChunkPayload{
		Text: c.Text,
		Metadata: ChunkMetadata{
			ChunkID:      c.Index,
			TotalChunks:  c.Total,
			CollectionID: c.CollectionID,
			Score:        c.Score,
		},
	}
}

func (p ChunkPayload) Chunk() models.Chunk {
	return models.Chunk{
		Text:         p.Text,
		Index:        p.Metadata.ChunkID,
		Total:        p.Metadata.TotalChunks,
		CollectionID: p.Metadata.CollectionID,
		Score:        p.Metadata.Score,
	}
}

// failure tags err with kind, naming the timeout when the deadline expired.
func failure(kind apperrors.Kind, op string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return apperrors.Wrap(kind, op, err)
}

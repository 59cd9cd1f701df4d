package core

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/chunker"
	"gwi.com/rag-orchestrator/internal/models"
)

// Upserter is the write side of the embedding index.
type Upserter interface {
	Upsert(ctx context.Context, collectionID string, chunks []models.Chunk) ([]string, error)
}

type Ingestor struct {
	index    Upserter
	chunking chunker.Config
	logger   arbor.ILogger
}

func NewIngestor(index Upserter, chunking chunker.Config, logger arbor.ILogger) (*Ingestor, error) {
	if err := chunking.Validate(); err != nil {
		return nil, err
	}
	return &Ingestor{index: index, chunking: chunking, logger: logger}, nil
}

type IngestResult struct {
	CollectionID string
	ChunkCount   int
	RecordIDs    []string
}

// IngestText chunks and indexes text. An empty collectionID gets a fresh
// random id.
func (in *Ingestor) IngestText(ctx context.Context, collectionID, text string) (*IngestResult, error) {
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		collectionID = uuid.NewString()
	}
	return in.ingest(ctx, collectionID, text)
}

// IngestFile indexes a plain-text file. An empty collectionID defaults to
// the file name.
func (in *Ingestor) IngestFile(ctx context.Context, name string, r io.Reader, collectionID string) (*IngestResult, error) {
	const op = "core.ingest_file"
	base := filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(base), ".txt") {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "only .txt files are supported, got %q", base)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, op, err)
	}
	if !utf8.Valid(data) {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "%q is not valid UTF-8 text", base)
	}

	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		collectionID = base
	}
	return in.ingest(ctx, collectionID, string(data))
}

// ingest indexes text. Documents with nothing but whitespace are accepted
// and produce no chunks.
func (in *Ingestor) ingest(ctx context.Context, collectionID, text string) (*IngestResult, error) {
	res := &IngestResult{CollectionID: collectionID}
	if strings.TrimSpace(text) == "" {
		in.logger.Warn().Str("collection", collectionID).Msg("Document has no text, nothing to index")
		return res, nil
	}
	chunks, err := chunker.Chunk(collectionID, text, in.chunking)
	if err != nil {
		return nil, err
	}
	res.ChunkCount = len(chunks)

	ids, err := in.index.Upsert(ctx, collectionID, chunks)
	if err != nil {
		return nil, err
	}
	res.RecordIDs = ids

	in.logger.Info().
		Str("collection", collectionID).
		Int("chunks", len(chunks)).
		Int("records", len(ids)).
		Msg("Ingested document")
	return res, nil
}

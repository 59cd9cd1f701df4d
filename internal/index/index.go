// Package index stores chunk embeddings per collection and answers
// similarity queries over them.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/embedding"
	"gwi.com/rag-orchestrator/internal/models"
	"gwi.com/rag-orchestrator/internal/utils"
)

// Record is one embedded chunk as persisted by a Backend.
type Record struct {
	ID          string
	Collection  string
	Chunk       models.Chunk
	Vector      []float32
	ContentHash string
	CreatedAt   time.Time
}

// Backend persists records. Insert must be all-or-nothing and must register
// the collection on first write. Records returns a collection's records in
// insertion order.
type Backend interface {
	Insert(ctx context.Context, collection string, recs []Record) error
	Records(ctx context.Context, collection string) ([]Record, error)
	Collections(ctx context.Context) ([]models.Collection, error)
	Close() error
}

type Options struct {
	// Concurrency bounds the number of chunks embedded at once.
	Concurrency int
	// RatePerSecond throttles embedding calls; zero means unlimited.
	RatePerSecond float64
	Burst         int
	// MinSimilarity drops results scoring below it when positive.
	MinSimilarity float32
	// Dedupe skips chunks whose text is already stored in the collection.
	Dedupe bool
}

func DefaultOptions() Options {
	return Options{Concurrency: 4, Burst: 1}
}

type Index struct {
	embedder embedding.Embedder
	backend  Backend
	limiter  *rate.Limiter
	opts     Options
	logger   arbor.ILogger
}

func New(embedder embedding.Embedder, backend Backend, opts Options, logger arbor.ILogger) *Index {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		if opts.Burst <= 0 {
			opts.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst)
	}
	return &Index{
		embedder: embedder,
		backend:  backend,
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
	}
}

// Upsert embeds chunks and stores them under collectionID. Either every
// chunk is stored or none is. It returns the ids of the new records.
func (ix *Index) Upsert(ctx context.Context, collectionID string, chunks []models.Chunk) ([]string, error) {
	const op = "index.upsert"
	if strings.TrimSpace(collectionID) == "" {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "collection id is required")
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	if ix.opts.Dedupe {
		var err error
		if chunks, err = ix.withoutStored(ctx, collectionID, chunks); err != nil {
			return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, op, err)
		}
		if len(chunks) == 0 {
			ix.logger.Debug().Str("collection", collectionID).Msg("All chunks already indexed")
			return nil, nil
		}
	}

	vectors, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, op, err)
	}

	now := time.Now().UTC()
	recs := make([]Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		c.CollectionID = collectionID
		c.Score = 0
		recs[i] = Record{
			ID:          uuid.NewString(),
			Collection:  collectionID,
			Chunk:       c,
			Vector:      vectors[i],
			ContentHash: contentHash(c.Text),
			CreatedAt:   now,
		}
		ids[i] = recs[i].ID
	}

	if err := ix.backend.Insert(ctx, collectionID, recs); err != nil {
		return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, op, err)
	}

	ix.logger.Info().
		Str("collection", collectionID).
		Int("records", len(recs)).
		Str("embedder", ix.embedder.Name()).
		Msg("Indexed chunks")
	return ids, nil
}

func (ix *Index) embedAll(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			if err := ix.limiter.Wait(gctx); err != nil {
				return err
			}
			vec, err := ix.embedder.Embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", c.Index, err)
			}
			if !utils.Valid(vec) {
				return fmt.Errorf("embed chunk %d: malformed vector", c.Index)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return nil, fmt.Errorf("embedding dimension mismatch (%d != %d)", len(vectors[i]), len(vectors[0]))
		}
	}
	return vectors, nil
}

func (ix *Index) withoutStored(ctx context.Context, collectionID string, chunks []models.Chunk) ([]models.Chunk, error) {
	existing, err := ix.backend.Records(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.ContentHash] = struct{}{}
	}
	out := chunks[:0:0]
	for _, c := range chunks {
		h := contentHash(c.Text)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Query returns up to k chunks of collectionID ranked by cosine similarity to
// text, best first. Equal scores keep insertion order. An unknown collection
// yields an empty result.
func (ix *Index) Query(ctx context.Context, collectionID, text string, k int) ([]models.Chunk, error) {
	const op = "index.query"
	if k <= 0 {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "k must be positive, got %d", k)
	}

	if err := ix.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, op, err)
	}
	query, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, op, err)
	}
	if !utils.Valid(query) {
		return nil, apperrors.New(apperrors.KindIndexUnavailable, op, "query embedding is malformed")
	}

	recs, err := ix.backend.Records(ctx, collectionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, op, err)
	}

	type scored struct {
		rec   Record
		score float32
	}
	results := make([]scored, 0, len(recs))
	for _, r := range recs {
		if r.Collection != collectionID {
			continue
		}
		s, err := utils.CosineSimilarity(query, r.Vector)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, op, fmt.Errorf("record %s: %w", r.ID, err))
		}
		if ix.opts.MinSimilarity > 0 && s < ix.opts.MinSimilarity {
			continue
		}
		results = append(results, scored{rec: r, score: s})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > k {
		results = results[:k]
	}

	chunks := make([]models.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.rec.Chunk
		chunks[i].Score = r.score
	}
	return chunks, nil
}

func (ix *Index) ListCollections(ctx context.Context) ([]models.Collection, error) {
	cols, err := ix.backend.Collections(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIndexUnavailable, "index.collections", err)
	}
	return cols, nil
}

func (ix *Index) Close() error {
	return ix.backend.Close()
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

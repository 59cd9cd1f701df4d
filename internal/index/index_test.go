package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/embedding"
	"gwi.com/rag-orchestrator/internal/models"
	"gwi.com/rag-orchestrator/internal/store"
)

// fixedEmbedder maps known texts to fixed vectors.
type fixedEmbedder struct {
	vectors map[string][]float32
	fail    map[string]bool
}

func (f *fixedEmbedder) Name() string { return "fixed" }

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail[text] {
		return nil, errors.New("embedder unreachable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newEmbedder() *fixedEmbedder {
	return &fixedEmbedder{
		vectors: map[string][]float32{
			"alpha":      {1, 0, 0},
			"alpha-ish":  {0.9, 0.1, 0},
			"half":       {1, 1, 0},
			"beta":       {0, 1, 0},
			"also alpha": {1, 0, 0},
			"wide":       {1, 0, 0, 0},
		},
		fail: map[string]bool{},
	}
}

func backends(t *testing.T) map[string]func() Backend {
	return map[string]func() Backend{
		"memory": func() Backend { return NewMemoryBackend() },
		"sqlite": func() Backend {
			db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			b, err := NewSQLiteBackend(db)
			require.NoError(t, err)
			return b
		},
		"badger": func() Backend {
			b, err := NewBadgerBackend(filepath.Join(t.TempDir(), "badger"), arbor.NewLogger())
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
}

func chunks(collection string, texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, s := range texts {
		out[i] = models.Chunk{Text: s, Index: i, Total: len(texts), CollectionID: collection}
	}
	return out
}

func texts(cs []models.Chunk) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Text
	}
	return out
}

func TestIndex_Backends(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("ranks by similarity", func(t *testing.T) {
				ix := New(newEmbedder(), open(), DefaultOptions(), arbor.NewLogger())
				ids, err := ix.Upsert(ctx, "c1", chunks("c1", "beta", "half", "alpha-ish"))
				require.NoError(t, err)
				assert.Len(t, ids, 3)

				got, err := ix.Query(ctx, "c1", "alpha", 3)
				require.NoError(t, err)
				assert.Equal(t, []string{"alpha-ish", "half", "beta"}, texts(got))
				assert.Greater(t, got[0].Score, got[1].Score)
				assert.Equal(t, 2, got[0].Index)
				assert.Equal(t, 3, got[0].Total)
				assert.Equal(t, "c1", got[0].CollectionID)

				top, err := ix.Query(ctx, "c1", "alpha", 1)
				require.NoError(t, err)
				assert.Equal(t, []string{"alpha-ish"}, texts(top))
			})

			t.Run("ties keep insertion order", func(t *testing.T) {
				ix := New(newEmbedder(), open(), DefaultOptions(), arbor.NewLogger())
				_, err := ix.Upsert(ctx, "c1", chunks("c1", "alpha", "beta", "also alpha"))
				require.NoError(t, err)

				got, err := ix.Query(ctx, "c1", "alpha", 2)
				require.NoError(t, err)
				assert.Equal(t, []string{"alpha", "also alpha"}, texts(got))
			})

			t.Run("collections are isolated", func(t *testing.T) {
				ix := New(newEmbedder(), open(), DefaultOptions(), arbor.NewLogger())
				_, err := ix.Upsert(ctx, "c1", chunks("c1", "beta"))
				require.NoError(t, err)
				_, err = ix.Upsert(ctx, "c2", chunks("c2", "alpha", "also alpha"))
				require.NoError(t, err)

				got, err := ix.Query(ctx, "c1", "alpha", 10)
				require.NoError(t, err)
				assert.Equal(t, []string{"beta"}, texts(got))

				none, err := ix.Query(ctx, "missing", "alpha", 10)
				require.NoError(t, err)
				assert.Empty(t, none)

				cols, err := ix.ListCollections(ctx)
				require.NoError(t, err)
				require.Len(t, cols, 2)
				assert.Equal(t, "c1", cols[0].Name)
				assert.Equal(t, "c2", cols[1].Name)
				assert.NotEmpty(t, cols[0].ID)
				assert.NotEqual(t, cols[0].ID, cols[1].ID)
			})

			t.Run("failed embedding writes nothing", func(t *testing.T) {
				emb := newEmbedder()
				emb.fail["beta"] = true
				ix := New(emb, open(), DefaultOptions(), arbor.NewLogger())

				_, err := ix.Upsert(ctx, "c1", chunks("c1", "alpha", "beta", "half"))
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

				got, err := ix.Query(ctx, "c1", "alpha", 10)
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("repeated upsert appends unless dedupe is on", func(t *testing.T) {
				b := open()
				ix := New(newEmbedder(), b, DefaultOptions(), arbor.NewLogger())
				_, err := ix.Upsert(ctx, "c1", chunks("c1", "alpha"))
				require.NoError(t, err)
				_, err = ix.Upsert(ctx, "c1", chunks("c1", "alpha"))
				require.NoError(t, err)
				got, err := ix.Query(ctx, "c1", "alpha", 10)
				require.NoError(t, err)
				assert.Len(t, got, 2)

				opts := DefaultOptions()
				opts.Dedupe = true
				dedup := New(newEmbedder(), b, opts, arbor.NewLogger())
				ids, err := dedup.Upsert(ctx, "c1", chunks("c1", "alpha", "beta", "beta"))
				require.NoError(t, err)
				assert.Len(t, ids, 1)
				got, err = dedup.Query(ctx, "c1", "alpha", 10)
				require.NoError(t, err)
				assert.Len(t, got, 3)
			})
		})
	}
}

func TestIndex_MinSimilarity(t *testing.T) {
	opts := DefaultOptions()
	opts.MinSimilarity = 0.5
	ix := New(newEmbedder(), NewMemoryBackend(), opts, arbor.NewLogger())
	ctx := context.Background()

	_, err := ix.Upsert(ctx, "c1", chunks("c1", "alpha", "beta", "half"))
	require.NoError(t, err)

	got, err := ix.Query(ctx, "c1", "alpha", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "half"}, texts(got))
}

func TestIndex_QueryErrors(t *testing.T) {
	ctx := context.Background()
	emb := newEmbedder()
	ix := New(emb, NewMemoryBackend(), DefaultOptions(), arbor.NewLogger())
	_, err := ix.Upsert(ctx, "c1", chunks("c1", "alpha"))
	require.NoError(t, err)

	_, err = ix.Query(ctx, "c1", "alpha", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = ix.Query(ctx, "c1", "wide", 1)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable, "dimension mismatch")

	emb.fail["down"] = true
	_, err = ix.Query(ctx, "c1", "down", 1)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestIndex_UpsertRejectsMixedDimensions(t *testing.T) {
	ix := New(newEmbedder(), NewMemoryBackend(), DefaultOptions(), arbor.NewLogger())
	_, err := ix.Upsert(context.Background(), "c1", chunks("c1", "alpha", "wide"))
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	_, err = ix.Upsert(context.Background(), " ", chunks("c1", "alpha"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestIndex_RateLimitedUpsert(t *testing.T) {
	opts := Options{Concurrency: 2, RatePerSecond: 1000, Burst: 2}
	ix := New(newEmbedder(), NewMemoryBackend(), opts, arbor.NewLogger())
	ids, err := ix.Upsert(context.Background(), "c1", chunks("c1", "alpha", "beta", "half", "alpha-ish"))
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

// bigChunks returns n chunks of at most size runes, chunk i repeating the
// single word "term<i>".
func bigChunks(collection string, n, size int) []models.Chunk {
	out := make([]models.Chunk, n)
	for i := range out {
		word := fmt.Sprintf("term%d ", i)
		out[i] = models.Chunk{
			Text:         strings.Repeat(word, size/len(word)),
			Index:        i,
			Total:        n,
			CollectionID: collection,
		}
	}
	return out
}

func newBadger(t *testing.T) *BadgerBackend {
	b, err := NewBadgerBackend(filepath.Join(t.TempDir(), "badger"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBadgerBackend_LargeDocument(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	ix := New(embedding.NewHashing(512), b, DefaultOptions(), arbor.NewLogger())

	// well past what a single Badger transaction accepts
	docs := bigChunks("big", 8000, 1500)
	ids, err := ix.Upsert(ctx, "big", docs)
	require.NoError(t, err)
	assert.Len(t, ids, len(docs))

	recs, err := b.Records(ctx, "big")
	require.NoError(t, err)
	require.Len(t, recs, len(docs))
	for i, r := range recs {
		require.Equal(t, i, r.Chunk.Index, "records keep insertion order")
	}

	// other terms share the hashed bucket, so look among the tied best
	got, err := ix.Query(ctx, "big", "term4321", len(docs))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.InDelta(t, 1, got[0].Score, 1e-5)
	found := false
	for _, c := range got {
		if c.Score < got[0].Score-1e-5 {
			break
		}
		found = found || c.Index == 4321
	}
	assert.True(t, found, "chunk 4321 ranks among the best matches")

	cols, err := ix.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "big", cols[0].Name)
}

func TestBadgerBackend_FailedInsertRemovesCommittedBatches(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	now := time.Now().UTC()

	require.NoError(t, b.Insert(ctx, "other", []Record{{
		ID:         "taken",
		Collection: "other",
		Chunk:      models.Chunk{Text: "kept", Total: 1, CollectionID: "other"},
		Vector:     []float32{1, 0},
		CreatedAt:  now,
	}}))

	docs := bigChunks("big", 8000, 1500)
	recs := make([]Record, len(docs))
	for i, c := range docs {
		vec := make([]float32, 512)
		for j := range vec {
			vec[j] = float32(i*j%97) / 97
		}
		recs[i] = Record{ID: fmt.Sprintf("rec-%d", i), Collection: "big", Chunk: c, Vector: vec, CreatedAt: now}
	}
	// the last id collides after earlier batches were committed
	recs[len(recs)-1].ID = "taken"

	err := b.Insert(ctx, "big", recs)
	require.Error(t, err)

	left, err := b.Records(ctx, "big")
	require.NoError(t, err)
	assert.Empty(t, left)

	kept, err := b.Records(ctx, "other")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "kept", kept[0].Chunk.Text)

	cols, err := b.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "other", cols[0].Name)
}

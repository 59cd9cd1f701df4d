package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/rag-orchestrator/internal/utils"
)

func TestHashing_Deterministic(t *testing.T) {
	h := NewHashing(0)
	assert.Equal(t, DefaultHashingDimensions, h.Dimensions())

	a, err := h.Embed(context.Background(), "Alpha Beta")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "alpha, beta!")
	require.NoError(t, err)
	assert.Equal(t, a, b, "case and punctuation are ignored")
}

func TestHashing_SimilarTextScoresHigher(t *testing.T) {
	h := NewHashing(256)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "what is alpha")
	near, _ := h.Embed(ctx, "alpha is the first letter")
	far, _ := h.Embed(ctx, "gamma delta")

	sNear, err := utils.CosineSimilarity(q, near)
	require.NoError(t, err)
	sFar, err := utils.CosineSimilarity(q, far)
	require.NoError(t, err)
	assert.Greater(t, sNear, sFar)
}

func TestHashing_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashing(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.5, -0.25}})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "test-model", time.Second)
	vec, err := o.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, vec)
	assert.Equal(t, "ollama:test-model", o.Name())
}

func TestOllama_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-200", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}},
		{"empty vector", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewOllama(srv.URL, "", time.Second).Embed(context.Background(), "x")
			assert.Error(t, err)
		})
	}
}

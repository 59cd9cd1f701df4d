package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/rag-orchestrator/internal/apperrors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 5*time.Second, cfg.Gateways.RetrievalTimeout.Duration)
	assert.Equal(t, 8*time.Second, cfg.Gateways.GenerationTimeout.Duration)
	assert.Equal(t, 5, cfg.Conversations.MaxRetries)
	assert.False(t, cfg.Index.Dedupe)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "ragd.toml", `
[server]
port = "9090"
read_timeout = "3s"

[chunker]
size = 500
overlap = 50

[index]
type = "badger"
path = "/tmp/idx"
dedupe = true
min_similarity = 0.25

[gateways]
retrieval_timeout = "750ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout.Duration, "unset keys keep defaults")
	assert.Equal(t, 500, cfg.Chunker.Size)
	assert.Equal(t, "badger", cfg.Index.Type)
	assert.True(t, cfg.Index.Dedupe)
	assert.InDelta(t, 0.25, cfg.Index.MinSimilarity, 1e-6)
	assert.Equal(t, 750*time.Millisecond, cfg.Gateways.RetrievalTimeout.Duration)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ragd.yaml", `
conversations:
  type: bolt
  path: /tmp/conv.bolt
  max_retries: 9
  backoff: 2ms
orchestrator:
  top_k: 5
  max_context_chars: 1200
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Conversations.Type)
	assert.Equal(t, 9, cfg.Conversations.MaxRetries)
	assert.Equal(t, 2*time.Millisecond, cfg.Conversations.Backoff.Duration)
	assert.Equal(t, 5, cfg.Orchestrator.TopK)
	assert.Equal(t, 1200, cfg.Orchestrator.MaxContextChars)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "ragd.toml", "[server]\nport = \"9090\"\n")
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RAG_GENERATOR", "gemini")
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("RAG_TOP_K", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "gemini", cfg.Generation.Type)
	assert.Equal(t, "key-123", cfg.Generation.APIKey)
	assert.Empty(t, cfg.Embedder.APIKey, "hashing embedder needs no key")
	assert.Equal(t, 4, cfg.Orchestrator.TopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"overlap too large", func(c *Config) { c.Chunker.Overlap = c.Chunker.Size }},
		{"unknown index", func(c *Config) { c.Index.Type = "postgres" }},
		{"unknown conversations", func(c *Config) { c.Conversations.Type = "redis" }},
		{"unknown embedder", func(c *Config) { c.Embedder.Type = "word2vec" }},
		{"gemini embedder without key", func(c *Config) { c.Embedder.Type = "gemini" }},
		{"anthropic without key", func(c *Config) { c.Generation.Type = "anthropic" }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"zero top k", func(c *Config) { c.Orchestrator.TopK = 0 }},
		{"similarity out of range", func(c *Config) { c.Index.MinSimilarity = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "ragd.json", "{}"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "[server]\nread_timeout = \"soon\"\n"))
	assert.Error(t, err)
}

func TestCORSOrigins(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)

	t.Setenv("RAG_CORS_ORIGINS", "https://a.example, https://b.example ,")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	t.Setenv("RAG_CORS_ORIGINS", "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.CORSOrigins)
}

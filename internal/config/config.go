// Package config loads service configuration: defaults, then an optional
// TOML or YAML file, then a .env file and the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/chunker"
)

// Duration reads "5s"-style strings from TOML and YAML files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server        ServerConfig        `toml:"server" yaml:"server"`
	Logging       LoggingConfig       `toml:"logging" yaml:"logging"`
	Auth          AuthConfig          `toml:"auth" yaml:"auth"`
	Database      DatabaseConfig      `toml:"database" yaml:"database"`
	Chunker       ChunkerConfig       `toml:"chunker" yaml:"chunker"`
	Embedder      EmbedderConfig      `toml:"embedder" yaml:"embedder"`
	Index         IndexConfig         `toml:"index" yaml:"index"`
	Conversations ConversationsConfig `toml:"conversations" yaml:"conversations"`
	Generation    GenerationConfig    `toml:"generation" yaml:"generation"`
	Gateways      GatewaysConfig      `toml:"gateways" yaml:"gateways"`
	Orchestrator  OrchestratorConfig  `toml:"orchestrator" yaml:"orchestrator"`
}

type ServerConfig struct {
	Port            string   `toml:"port" yaml:"port"`
	ReadTimeout     Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	// CORSOrigins are the browser origins allowed to call the API. Empty
	// disables CORS headers.
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"`
	// File additionally writes logs to this path when set.
	File string `toml:"file" yaml:"file"`
}

type AuthConfig struct {
	Enabled   bool     `toml:"enabled" yaml:"enabled"`
	JWTSecret string   `toml:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl" yaml:"token_ttl"`
}

type DatabaseConfig struct {
	// URL is the SQLite data source used by the sqlite backends.
	URL string `toml:"url" yaml:"url"`
}

type ChunkerConfig struct {
	Size    int `toml:"size" yaml:"size"`
	Overlap int `toml:"overlap" yaml:"overlap"`
}

type EmbedderConfig struct {
	Type          string   `toml:"type" yaml:"type"` // gemini, ollama or hashing
	Model         string   `toml:"model" yaml:"model"`
	URL           string   `toml:"url" yaml:"url"`
	APIKey        string   `toml:"api_key" yaml:"api_key"`
	Dimensions    int      `toml:"dimensions" yaml:"dimensions"`
	Timeout       Duration `toml:"timeout" yaml:"timeout"`
	Concurrency   int      `toml:"concurrency" yaml:"concurrency"`
	RatePerSecond float64  `toml:"rate_per_second" yaml:"rate_per_second"`
	Burst         int      `toml:"burst" yaml:"burst"`
}

type IndexConfig struct {
	Type          string  `toml:"type" yaml:"type"` // sqlite, badger or memory
	Path          string  `toml:"path" yaml:"path"` // badger directory
	MinSimilarity float32 `toml:"min_similarity" yaml:"min_similarity"`
	Dedupe        bool    `toml:"dedupe" yaml:"dedupe"`
}

type ConversationsConfig struct {
	Type         string   `toml:"type" yaml:"type"` // sqlite, bolt or memory
	Path         string   `toml:"path" yaml:"path"` // bolt file
	SystemPrompt string   `toml:"system_prompt" yaml:"system_prompt"`
	MaxRetries   int      `toml:"max_retries" yaml:"max_retries"`
	Backoff      Duration `toml:"backoff" yaml:"backoff"`
}

type GenerationConfig struct {
	Type        string   `toml:"type" yaml:"type"` // offline, gemini, ollama or anthropic
	Model       string   `toml:"model" yaml:"model"`
	URL         string   `toml:"url" yaml:"url"`
	APIKey      string   `toml:"api_key" yaml:"api_key"`
	Temperature float32  `toml:"temperature" yaml:"temperature"`
	MaxTokens   int      `toml:"max_tokens" yaml:"max_tokens"`
	Timeout     Duration `toml:"timeout" yaml:"timeout"`
}

// GatewaysConfig points retrieval and generation at remote instances.
// Empty URLs mean in-process.
type GatewaysConfig struct {
	RetrievalURL      string   `toml:"retrieval_url" yaml:"retrieval_url"`
	GenerationURL     string   `toml:"generation_url" yaml:"generation_url"`
	Token             string   `toml:"token" yaml:"token"`
	RetrievalTimeout  Duration `toml:"retrieval_timeout" yaml:"retrieval_timeout"`
	GenerationTimeout Duration `toml:"generation_timeout" yaml:"generation_timeout"`
}

type OrchestratorConfig struct {
	TopK            int `toml:"top_k" yaml:"top_k"`
	MaxContextChars int `toml:"max_context_chars" yaml:"max_context_chars"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{60 * time.Second},
			IdleTimeout:     Duration{120 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
			MaxUploadBytes:  10 << 20,
			CORSOrigins:     []string{"*"},
		},
		Logging:  LoggingConfig{Level: "info"},
		Auth:     AuthConfig{TokenTTL: Duration{24 * time.Hour}},
		Database: DatabaseConfig{URL: "rag.db"},
		Chunker:  ChunkerConfig{Size: chunker.DefaultSize, Overlap: chunker.DefaultOverlap},
		Embedder: EmbedderConfig{
			Type:        "hashing",
			Dimensions:  512,
			Timeout:     Duration{30 * time.Second},
			Concurrency: 4,
			Burst:       1,
		},
		Index:         IndexConfig{Type: "sqlite", Path: "data/index"},
		Conversations: ConversationsConfig{Type: "sqlite", Path: "data/conversations.bolt", MaxRetries: 5, Backoff: Duration{10 * time.Millisecond}},
		Generation:    GenerationConfig{Type: "offline", Timeout: Duration{60 * time.Second}},
		Gateways: GatewaysConfig{
			RetrievalTimeout:  Duration{5 * time.Second},
			GenerationTimeout: Duration{8 * time.Second},
		},
		Orchestrator: OrchestratorConfig{TopK: 3, MaxContextChars: 4000},
	}
}

// Load builds the configuration. path may be empty; otherwise its extension
// selects the format. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			err = toml.Unmarshal(data, cfg)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			return nil, apperrors.New(apperrors.KindInvalidConfig, "config.load", "unsupported config format %q", filepath.Ext(path))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// a missing .env is normal; the process environment is used as is
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnv("HTTP_PORT", cfg.Server.Port)
	cfg.Server.CORSOrigins = getEnvAsList("RAG_CORS_ORIGINS", cfg.Server.CORSOrigins)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Enabled = getEnvAsBool("RAG_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)

	cfg.Chunker.Size = getEnvAsInt("RAG_CHUNK_SIZE", cfg.Chunker.Size)
	cfg.Chunker.Overlap = getEnvAsInt("RAG_CHUNK_OVERLAP", cfg.Chunker.Overlap)

	cfg.Embedder.Type = getEnv("RAG_EMBEDDER", cfg.Embedder.Type)
	cfg.Index.Type = getEnv("RAG_INDEX", cfg.Index.Type)
	cfg.Conversations.Type = getEnv("RAG_CONVERSATIONS", cfg.Conversations.Type)
	cfg.Generation.Type = getEnv("RAG_GENERATOR", cfg.Generation.Type)

	if url, ok := os.LookupEnv("RAG_OLLAMA_URL"); ok {
		cfg.Embedder.URL = url
		cfg.Generation.URL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if cfg.Embedder.Type == "gemini" && cfg.Embedder.APIKey == "" {
			cfg.Embedder.APIKey = key
		}
		if cfg.Generation.Type == "gemini" && cfg.Generation.APIKey == "" {
			cfg.Generation.APIKey = key
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Generation.Type == "anthropic" && cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = key
	}

	cfg.Gateways.RetrievalURL = getEnv("RAG_RETRIEVAL_URL", cfg.Gateways.RetrievalURL)
	cfg.Gateways.GenerationURL = getEnv("RAG_GENERATION_URL", cfg.Gateways.GenerationURL)
	cfg.Gateways.Token = getEnv("RAG_GATEWAY_TOKEN", cfg.Gateways.Token)
	cfg.Orchestrator.TopK = getEnvAsInt("RAG_TOP_K", cfg.Orchestrator.TopK)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.New(apperrors.KindInvalidConfig, "config", format, args...)
	}

	if c.Server.Port == "" {
		return invalid("server.port is required")
	}
	if err := (chunker.Config{Size: c.Chunker.Size, Overlap: c.Chunker.Overlap}).Validate(); err != nil {
		return err
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return invalid("auth is enabled but JWT_SECRET is not set")
	}

	switch c.Embedder.Type {
	case "hashing", "ollama":
	case "gemini":
		if c.Embedder.APIKey == "" {
			return invalid("embedder type gemini needs GEMINI_API_KEY")
		}
	default:
		return invalid("unknown embedder type %q", c.Embedder.Type)
	}

	switch c.Index.Type {
	case "sqlite", "badger", "memory":
	default:
		return invalid("unknown index type %q", c.Index.Type)
	}
	if c.Index.MinSimilarity < -1 || c.Index.MinSimilarity > 1 {
		return invalid("index.min_similarity must be within [-1, 1], got %v", c.Index.MinSimilarity)
	}

	switch c.Conversations.Type {
	case "sqlite", "bolt", "memory":
	default:
		return invalid("unknown conversations type %q", c.Conversations.Type)
	}
	if c.Conversations.MaxRetries < 0 {
		return invalid("conversations.max_retries must not be negative")
	}

	switch c.Generation.Type {
	case "offline", "ollama":
	case "gemini", "anthropic":
		if c.Generation.APIKey == "" && c.Gateways.GenerationURL == "" {
			return invalid("generation type %s needs an API key", c.Generation.Type)
		}
	default:
		return invalid("unknown generation type %q", c.Generation.Type)
	}

	if c.Orchestrator.TopK < 1 {
		return invalid("orchestrator.top_k must be at least 1, got %d", c.Orchestrator.TopK)
	}
	if c.Orchestrator.MaxContextChars < 0 {
		return invalid("orchestrator.max_context_chars must not be negative")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value. A set but empty variable
// yields an empty list.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var list []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

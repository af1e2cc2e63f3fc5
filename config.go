package ragcore

import (
	"encoding/json"
	"os"
	"strconv"
)

// Config holds all configuration for the RAG service.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `json:"addr"`

	// CORSOrigins, when non-empty, enables the CORS middleware for the
	// listed origins. Empty means the middleware is a no-op.
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// OperatorAPIKey, when set, is required (as a bearer token) on every
	// request. Empty means the auth middleware is a no-op.
	OperatorAPIKey string `json:"operator_api_key,omitempty"`

	// FallbackAPIKey is used for embedding/chat calls when a request does
	// not supply its own api_key. Sourced from OPENAI_API_KEY by default.
	FallbackAPIKey string `json:"-"`

	Embedding LLMConfig `json:"embedding"`
	Chat      LLMConfig `json:"chat"`

	// Chunker tuning.
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`

	// EmbedBatchSize records the embedding batch size (1024 by default).
	// The embedding client uses its own fixed batch size of 1024 and does
	// not read this field.
	EmbedBatchSize int `json:"embed_batch_size"`
	// EmbedConcurrency bounds the number of in-flight embedding batch calls.
	EmbedConcurrency int `json:"embed_concurrency"`

	// RetrievalK is the default number of chunks retrieved per query.
	RetrievalK int `json:"retrieval_k"`

	// UploadCachePath, when non-empty, enables the optional on-disk raw
	// upload cache at this sqlite file path.
	UploadCachePath string `json:"upload_cache_path,omitempty"`
}

// LLMConfig configures a single OpenAI-compatible provider endpoint.
type LLMConfig struct {
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults, matching the
// chunk_size/overlap and batch/fan-out figures this spec fixes.
func DefaultConfig() Config {
	return Config{
		Addr: ":8080",
		Embedding: LLMConfig{
			Model:   "text-embedding-3-small",
			BaseURL: "https://api.openai.com",
		},
		Chat: LLMConfig{
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com",
		},
		ChunkSize:        800,
		ChunkOverlap:     50,
		EmbedBatchSize:   1024,
		EmbedConcurrency: 8,
		RetrievalK:       5,
	}
}

// LoadConfigFile overlays cfg with values from a JSON config file. A
// missing path is not an error; the caller only passes a path that was
// explicitly configured.
func LoadConfigFile(cfg Config, path string) (Config, error) {
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays cfg with RAGCORE_* and OPENAI_API_KEY/PORT environment
// variables. Environment variables take precedence over a config file but
// not over explicit command-line flags (applied by the caller afterward).
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.FallbackAPIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("RAGCORE_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("RAGCORE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("RAGCORE_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("RAGCORE_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("RAGCORE_UPLOAD_CACHE_PATH"); v != "" {
		cfg.UploadCachePath = v
	}
	if v := os.Getenv("RAGCORE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("RAGCORE_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkOverlap = n
		}
	}
	if v := os.Getenv("RAGCORE_EMBED_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbedConcurrency = n
		}
	}
	return cfg
}

package ragcore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigMatchesFixedFigures(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ChunkSize != 800 || cfg.ChunkOverlap != 50 {
		t.Errorf("chunk size/overlap = %d/%d, want 800/50", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.EmbedBatchSize != 1024 || cfg.EmbedConcurrency != 8 {
		t.Errorf("embed batch/concurrency = %d/%d, want 1024/8", cfg.EmbedBatchSize, cfg.EmbedConcurrency)
	}
	if cfg.RetrievalK != 5 {
		t.Errorf("retrieval k = %d, want 5", cfg.RetrievalK)
	}
}

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data, _ := json.Marshal(map[string]interface{}{
		"addr":       ":9090",
		"chunk_size": 1200,
	})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(DefaultConfig(), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Addr)
	}
	if cfg.ChunkSize != 1200 {
		t.Errorf("chunk size = %d, want 1200", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 50 {
		t.Errorf("overlap = %d, want unchanged default 50", cfg.ChunkOverlap)
	}
}

func TestLoadConfigFileEmptyPathIsNoop(t *testing.T) {
	want := DefaultConfig()
	cfg, err := LoadConfigFile(want, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != want.Addr || cfg.ChunkSize != want.ChunkSize {
		t.Errorf("expected unchanged default config, got %+v", cfg)
	}
}

func TestApplyEnvOverridesFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	t.Setenv("PORT", "9999")
	t.Setenv("RAGCORE_CHAT_MODEL", "gpt-4o")
	t.Setenv("RAGCORE_CHUNK_SIZE", "500")

	cfg := ApplyEnv(DefaultConfig())
	if cfg.FallbackAPIKey != "sk-test-123" {
		t.Errorf("fallback api key = %q", cfg.FallbackAPIKey)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("addr = %q, want :9999", cfg.Addr)
	}
	if cfg.Chat.Model != "gpt-4o" {
		t.Errorf("chat model = %q, want gpt-4o", cfg.Chat.Model)
	}
	if cfg.ChunkSize != 500 {
		t.Errorf("chunk size = %d, want 500", cfg.ChunkSize)
	}
}

func TestApplyEnvIgnoresInvalidIntegers(t *testing.T) {
	t.Setenv("RAGCORE_CHUNK_SIZE", "not-a-number")
	cfg := ApplyEnv(DefaultConfig())
	if cfg.ChunkSize != 800 {
		t.Errorf("chunk size = %d, want unchanged default 800", cfg.ChunkSize)
	}
}

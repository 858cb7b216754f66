package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.RAG.WindowSentences != 3 {
		t.Errorf("WindowSentences = %d, want 3", cfg.RAG.WindowSentences)
	}
	if cfg.RAG.SearchLimit != 20 {
		t.Errorf("SearchLimit = %d, want 20", cfg.RAG.SearchLimit)
	}
	if cfg.RAG.CertaintyFloor != 0.9 {
		t.Errorf("CertaintyFloor = %v, want 0.9", cfg.RAG.CertaintyFloor)
	}
	if cfg.RAG.HistoryThreshold != 10 {
		t.Errorf("HistoryThreshold = %d, want 10", cfg.RAG.HistoryThreshold)
	}
	if cfg.RAG.MaxUploadBytes != 5*1024*1024 {
		t.Errorf("MaxUploadBytes = %d, want 5MiB", cfg.RAG.MaxUploadBytes)
	}
	if cfg.VectorStore.Type != StoreChromem {
		t.Errorf("VectorStore.Type = %q, want %q", cfg.VectorStore.Type, StoreChromem)
	}
	if !cfg.RAG.FormatAllowed(".pdf") || cfg.RAG.FormatAllowed("docx") {
		t.Errorf("default formats = %v, want only pdf", cfg.RAG.AllowedFormats)
	}
}

func TestLoadConfig_FileOverridesAndEnvKey(t *testing.T) {
	t.Setenv("TEST_INFERENCE_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embed_llm:
  provider: hash
  dimension: 64
inference_llm:
  provider: openai
  model: gpt-4o-mini
  key_env: TEST_INFERENCE_KEY
  timeout: 5s
rag:
  certainty_floor: 0.75
  allowed_formats: [pdf, md]
vector_store:
  type: chromem
  in_memory: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.EmbedLLM.Provider != ProviderHash || cfg.EmbedLLM.Dimension != 64 {
		t.Errorf("EmbedLLM = %+v", cfg.EmbedLLM)
	}
	if cfg.InferenceLLM.Key != "sk-test" {
		t.Errorf("InferenceLLM.Key = %q, want sk-test", cfg.InferenceLLM.Key)
	}
	if cfg.InferenceLLM.Timeout != 5*time.Second {
		t.Errorf("InferenceLLM.Timeout = %v, want 5s", cfg.InferenceLLM.Timeout)
	}
	if cfg.RAG.CertaintyFloor != 0.75 {
		t.Errorf("CertaintyFloor = %v, want 0.75", cfg.RAG.CertaintyFloor)
	}
	if !cfg.RAG.FormatAllowed("MD") {
		t.Error("FormatAllowed(MD) = false, want true")
	}
	if !cfg.VectorStore.InMemory {
		t.Error("InMemory = false, want true")
	}
}

func TestLoadConfig_ExplicitZerosKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
inference_llm:
  max_retries: 0
  timeout: 0s
rag:
  certainty_floor: 0
  max_context_tokens: 0
  max_upload_bytes: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.RAG.CertaintyFloor != 0 {
		t.Errorf("CertaintyFloor = %v, want 0", cfg.RAG.CertaintyFloor)
	}
	if cfg.RAG.MaxContextTokens != 0 || cfg.RAG.MaxUploadBytes != 0 {
		t.Errorf("MaxContextTokens = %d, MaxUploadBytes = %d, want 0 and 0", cfg.RAG.MaxContextTokens, cfg.RAG.MaxUploadBytes)
	}
	if cfg.InferenceLLM.MaxRetries != 0 || cfg.InferenceLLM.Timeout != 0 {
		t.Errorf("inference retries = %d, timeout = %v, want 0 and 0", cfg.InferenceLLM.MaxRetries, cfg.InferenceLLM.Timeout)
	}
	if cfg.EmbedLLM.MaxRetries != 3 || cfg.EmbedLLM.Timeout != 60*time.Second {
		t.Errorf("embed retries = %d, timeout = %v, want defaults", cfg.EmbedLLM.MaxRetries, cfg.EmbedLLM.Timeout)
	}
	if cfg.InferenceLLM.RetryDelay != 2*time.Second {
		t.Errorf("inference RetryDelay = %v, want default 2s", cfg.InferenceLLM.RetryDelay)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"certainty above one", func(c *Config) { c.RAG.CertaintyFloor = 1.5 }, true},
		{"negative certainty", func(c *Config) { c.RAG.CertaintyFloor = -0.1 }, true},
		{"zero window", func(c *Config) { c.RAG.WindowSentences = 0 }, true},
		{"unknown embedder", func(c *Config) { c.EmbedLLM.Provider = "bert" }, true},
		{"hash generator", func(c *Config) { c.InferenceLLM.Provider = ProviderHash }, true},
		{"pgvector without dsn", func(c *Config) { c.VectorStore.Type = StorePgvector }, true},
		{"pgvector with dsn", func(c *Config) {
			c.VectorStore.Type = StorePgvector
			c.Database.DSN = "postgres://localhost/papers"
		}, false},
		{"too many retries", func(c *Config) { c.EmbedLLM.MaxRetries = 11 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

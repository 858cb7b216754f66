package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"

	StoreChromem  = "chromem"
	StorePgvector = "pgvector"
)

type Config struct {
	Database     DatabaseConfig    `yaml:"database"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	RAG          RAGConfig         `yaml:"rag"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Logging      LoggingConfig     `yaml:"logging"`

	// keys present in the loaded file, dotted ("rag.certainty_floor")
	set map[string]bool
}

// DatabaseConfig holds the Postgres connection used by the pgvector store.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

// LLMConfig describes one model endpoint. Key may be left empty and read
// from the variable named by KeyEnv instead.
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Key        string        `yaml:"key"`
	KeyEnv     string        `yaml:"key_env"`
	Dimension  int           `yaml:"dimension"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type RAGConfig struct {
	WindowSentences  int      `yaml:"window_sentences"`
	SearchLimit      int      `yaml:"search_limit"`
	CertaintyFloor   float64  `yaml:"certainty_floor"`
	HistoryThreshold int      `yaml:"history_threshold"`
	MaxContextTokens int      `yaml:"max_context_tokens"`
	MaxUploadBytes   int64    `yaml:"max_upload_bytes"`
	AllowedFormats   []string `yaml:"allowed_formats"`
	EncryptionKey    string   `yaml:"encryption_key"`
}

type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
	Compress   bool   `yaml:"compress"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	defaultWindowSentences  = 3
	defaultSearchLimit      = 20
	defaultCertaintyFloor   = 0.9
	defaultHistoryThreshold = 10
	defaultMaxContextTokens = 3000
	defaultMaxUploadBytes   = 5 * 1024 * 1024
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultRetryDelay       = 2 * time.Second
	defaultDimension        = 768
)

// LoadConfig reads the YAML file at path. A missing file is not an error:
// the defaults are returned instead.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := root.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.set = map[string]bool{}
		collectKeys(&root, "", cfg.set)
	}
	cfg.ApplyDefaults()
	cfg.resolveKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// collectKeys records the dotted path of every mapping key under n.
func collectKeys(n *yaml.Node, prefix string, out map[string]bool) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, child := range n.Content {
			collectKeys(child, prefix, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			out[key] = true
			collectKeys(n.Content[i+1], key, out)
		}
	}
}

// unset reports whether key was absent from the loaded file. Numeric fields
// where zero is meaningful only get a default when unset.
func (c *Config) unset(key string) bool {
	return !c.set[key]
}

// ApplyDefaults fills empty fields. An explicit zero in the loaded file is
// kept for the certainty floor, the context budget, the upload limit and the
// retry and timeout settings.
func (c *Config) ApplyDefaults() {
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = ProviderOllama
	}
	if c.EmbedLLM.Provider == ProviderOllama && c.EmbedLLM.BaseURL == "" {
		c.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = "nomic-embed-text"
	}
	if c.EmbedLLM.Dimension == 0 {
		c.EmbedLLM.Dimension = defaultDimension
	}
	if c.InferenceLLM.Provider == "" {
		c.InferenceLLM.Provider = ProviderOpenAI
	}
	if c.InferenceLLM.Model == "" {
		c.InferenceLLM.Model = "gpt-3.5-turbo"
	}
	if c.InferenceLLM.KeyEnv == "" {
		c.InferenceLLM.KeyEnv = "OPENAI_API_KEY"
	}
	for prefix, llm := range map[string]*LLMConfig{"embed_llm": &c.EmbedLLM, "inference_llm": &c.InferenceLLM} {
		if llm.Timeout == 0 && c.unset(prefix+".timeout") {
			llm.Timeout = defaultTimeout
		}
		if llm.MaxRetries == 0 && c.unset(prefix+".max_retries") {
			llm.MaxRetries = defaultMaxRetries
		}
		if llm.RetryDelay == 0 && c.unset(prefix+".retry_delay") {
			llm.RetryDelay = defaultRetryDelay
		}
	}

	if c.RAG.WindowSentences == 0 {
		c.RAG.WindowSentences = defaultWindowSentences
	}
	if c.RAG.SearchLimit == 0 {
		c.RAG.SearchLimit = defaultSearchLimit
	}
	if c.RAG.CertaintyFloor == 0 && c.unset("rag.certainty_floor") {
		c.RAG.CertaintyFloor = defaultCertaintyFloor
	}
	if c.RAG.HistoryThreshold == 0 {
		c.RAG.HistoryThreshold = defaultHistoryThreshold
	}
	if c.RAG.MaxContextTokens == 0 && c.unset("rag.max_context_tokens") {
		c.RAG.MaxContextTokens = defaultMaxContextTokens
	}
	if c.RAG.MaxUploadBytes == 0 && c.unset("rag.max_upload_bytes") {
		c.RAG.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(c.RAG.AllowedFormats) == 0 {
		c.RAG.AllowedFormats = []string{"pdf"}
	}

	if c.VectorStore.Type == "" {
		c.VectorStore.Type = StoreChromem
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "./chromemdb"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "paper_chunks"
	}
	if c.Database.Table == "" {
		c.Database.Table = "paper_chunks"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// resolveKeys fills empty keys from the environment.
func (c *Config) resolveKeys() {
	for _, llm := range []*LLMConfig{&c.EmbedLLM, &c.InferenceLLM} {
		if llm.Key == "" && llm.KeyEnv != "" {
			llm.Key = os.Getenv(llm.KeyEnv)
		}
	}
}

func (c *Config) Validate() error {
	if c.RAG.CertaintyFloor < 0 || c.RAG.CertaintyFloor > 1 {
		return fmt.Errorf("rag.certainty_floor must be 0-1, got %f", c.RAG.CertaintyFloor)
	}
	if c.RAG.WindowSentences < 1 {
		return fmt.Errorf("rag.window_sentences must be >= 1, got %d", c.RAG.WindowSentences)
	}
	if c.RAG.SearchLimit < 1 {
		return fmt.Errorf("rag.search_limit must be >= 1, got %d", c.RAG.SearchLimit)
	}
	if c.RAG.MaxUploadBytes < 0 {
		return fmt.Errorf("rag.max_upload_bytes must not be negative")
	}
	switch c.EmbedLLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderHash:
	default:
		return fmt.Errorf("unsupported embed_llm.provider %q", c.EmbedLLM.Provider)
	}
	switch c.InferenceLLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported inference_llm.provider %q", c.InferenceLLM.Provider)
	}
	switch c.VectorStore.Type {
	case StoreChromem:
	case StorePgvector:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the pgvector store")
		}
	default:
		return fmt.Errorf("unsupported vector_store.type %q", c.VectorStore.Type)
	}
	for _, llm := range []*LLMConfig{&c.EmbedLLM, &c.InferenceLLM} {
		if llm.MaxRetries < 0 || llm.MaxRetries > 10 {
			return fmt.Errorf("max_retries must be 0-10, got %d", llm.MaxRetries)
		}
	}
	return nil
}

// FormatAllowed reports whether a file extension (with or without the dot)
// is accepted for upload.
func (c *RAGConfig) FormatAllowed(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, f := range c.AllowedFormats {
		if strings.TrimPrefix(strings.ToLower(f), ".") == ext {
			return true
		}
	}
	return false
}

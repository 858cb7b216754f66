package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"paper-rag/internal/apperr"
	"paper-rag/internal/config"
	"paper-rag/internal/helper"
)

// Gateway is the single embedding entry point shared by ingestion and
// queries, so chunks and questions always land in the same vector space.
type Gateway struct {
	embedder   embeddings.Embedder
	model      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

type Option func(*Gateway)

func WithTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(g *Gateway) {
		g.maxRetries = maxRetries
		g.retryDelay = delay
	}
}

func NewGateway(embedder embeddings.Embedder, model string, opts ...Option) *Gateway {
	g := &Gateway{embedder: embedder, model: model}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New builds the gateway for the configured provider.
func New(cfg *config.LLMConfig) (*Gateway, error) {
	var (
		embedder embeddings.Embedder
		err      error
	)
	switch cfg.Provider {
	case config.ProviderHash:
		embedder = NewHashEmbedder(cfg.Dimension)
	case config.ProviderOpenAI:
		embedder, err = NewEmbedder(cfg.Key, cfg.BaseURL, cfg.Model)
	case config.ProviderOllama:
		embedder, err = NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Embedding gateway ready")

	return NewGateway(embedder, cfg.Provider+"/"+cfg.Model,
		WithTimeout(cfg.Timeout),
		WithRetries(cfg.MaxRetries, cfg.RetryDelay),
	), nil
}

// NewEmbedder creates an embedder for an OpenAI compatible endpoint
// such as OpenRouter.
func NewEmbedder(apiKey, baseURL, embeddingModel string) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing openai embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// new ollama embedder
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing ollama embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// Model identifies the embedding model. Vectors from different models are
// not comparable; changing it requires reindexing.
func (g *Gateway) Model() string {
	return g.model
}

// Embed converts one text into a vector.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InputRejected("embed", "text is empty")
	}
	vec, err := helper.Retry(ctx, g.maxRetries, g.retryDelay, g.timeout, func(ctx context.Context) ([]float32, error) {
		vec, err := g.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, errors.New("no embedding returned")
		}
		return vec, nil
	})
	if err != nil {
		return nil, apperr.Provider("embed", err)
	}
	return vec, nil
}

// EmbedBatch embeds texts one by one in order. It stops at the first failure
// and returns the vectors computed so far.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := g.Embed(ctx, text)
		if err != nil {
			return vecs, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

package llmservice

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"paper-rag/internal/apperr"
	"paper-rag/internal/config"
	"paper-rag/internal/helper"
	"paper-rag/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Credentials are supplied by the caller on every request. An empty Model
// keeps the configured one.
type Credentials struct {
	APIKey string
	Model  string
}

// Generator produces text from a structured prompt.
type Generator interface {
	Generate(ctx context.Context, creds Credentials, messages []models.Message) (string, error)
}

// ModelFactory builds a chat model for one request.
type ModelFactory func(cfg config.LLMConfig) (llms.Model, error)

// LangchainGenerator calls an openai compatible or ollama chat model through
// langchaingo. The client is rebuilt per call so keys never outlive a request.
type LangchainGenerator struct {
	cfg      config.LLMConfig
	newModel ModelFactory
}

func NewGenerator(cfg config.LLMConfig) *LangchainGenerator {
	return &LangchainGenerator{cfg: cfg, newModel: NewModel}
}

// NewGeneratorWithFactory is NewGenerator with a custom model constructor.
func NewGeneratorWithFactory(cfg config.LLMConfig, factory ModelFactory) *LangchainGenerator {
	return &LangchainGenerator{cfg: cfg, newModel: factory}
}

// NewModel builds the langchaingo client described by cfg.
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	default:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	}
}

func (g *LangchainGenerator) Generate(ctx context.Context, creds Credentials, messages []models.Message) (string, error) {
	if len(messages) == 0 {
		return "", apperr.InputRejected("generate", "no messages")
	}
	cfg := g.cfg
	if creds.APIKey != "" {
		cfg.Key = creds.APIKey
	}
	if creds.Model != "" {
		cfg.Model = creds.Model
	}
	if cfg.Provider != config.ProviderOllama && cfg.Key == "" {
		return "", apperr.InputRejected("generate", "an API key is required for provider %q", cfg.Provider)
	}

	llm, err := g.newModel(cfg)
	if err != nil {
		return "", apperr.Provider("generate", err)
	}

	content := toMessageContent(messages)
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Int("messages", len(content)).Msg("Generating content")

	text, err := helper.Retry(ctx, cfg.MaxRetries, cfg.RetryDelay, cfg.Timeout, func(ctx context.Context) (string, error) {
		resp, err := llm.GenerateContent(ctx, content)
		if err != nil {
			return "", err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return "", errors.New("no choices returned")
		}
		return resp.Choices[0].Content, nil
	})
	if err != nil {
		return "", apperr.Provider("generate", err)
	}

	text = CleanOutput(text)
	if text == "" {
		return "", apperr.Provider("generate", errors.New("model returned an empty answer"))
	}
	return text, nil
}

// CleanOutput drops reasoning blocks and surrounding whitespace.
func CleanOutput(text string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(text, ""))
}

func toMessageContent(messages []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := schema.ChatMessageTypeHuman
		if m.Role == models.MessageSystem {
			role = schema.ChatMessageTypeSystem
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"paper-rag/internal/apperr"
	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

type fakeModel struct {
	replies []string
	errs    []error
	calls   int
	got     []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	i := f.calls
	f.calls++
	f.got = messages
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{Provider: config.ProviderOpenAI, Model: "default-model", MaxRetries: 1}
}

var prompt = []models.Message{
	{Role: models.MessageSystem, Content: "be helpful"},
	{Role: models.MessageUser, Content: "hello"},
}

func TestGenerate_UsesCallerCredentials(t *testing.T) {
	model := &fakeModel{replies: []string{"<think>plan</think>\n  Answer text. "}}
	var seen config.LLMConfig
	g := NewGeneratorWithFactory(testConfig(), func(cfg config.LLMConfig) (llms.Model, error) {
		seen = cfg
		return model, nil
	})

	got, err := g.Generate(context.Background(), Credentials{APIKey: "sk-caller", Model: "override"}, prompt)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Answer text." {
		t.Errorf("Generate() = %q, want %q", got, "Answer text.")
	}
	if seen.Key != "sk-caller" || seen.Model != "override" {
		t.Errorf("factory cfg = %+v, want caller key and model", seen)
	}
	if len(model.got) != 2 || model.got[0].Role != schema.ChatMessageTypeSystem || model.got[1].Role != schema.ChatMessageTypeHuman {
		t.Errorf("messages = %+v", model.got)
	}
}

func TestGenerate_MissingKey(t *testing.T) {
	g := NewGeneratorWithFactory(testConfig(), func(config.LLMConfig) (llms.Model, error) {
		t.Fatal("factory must not be called without a key")
		return nil, nil
	})
	_, err := g.Generate(context.Background(), Credentials{}, prompt)
	if !apperr.Is(err, apperr.KindInputRejected) {
		t.Errorf("Generate() error = %v, want input rejected", err)
	}
}

func TestGenerate_RetriesThenFails(t *testing.T) {
	boom := errors.New("503 upstream")
	model := &fakeModel{errs: []error{boom, boom}}
	g := NewGeneratorWithFactory(testConfig(), func(config.LLMConfig) (llms.Model, error) { return model, nil })

	_, err := g.Generate(context.Background(), Credentials{APIKey: "k"}, prompt)
	if !apperr.Is(err, apperr.KindProvider) || !errors.Is(err, boom) {
		t.Errorf("Generate() error = %v, want provider failure wrapping %v", err, boom)
	}
	if model.calls != 2 {
		t.Errorf("calls = %d, want 2", model.calls)
	}
}

func TestGenerate_EmptyAnswer(t *testing.T) {
	model := &fakeModel{replies: []string{"<think>only thoughts</think>"}}
	cfg := testConfig()
	cfg.MaxRetries = 0
	g := NewGeneratorWithFactory(cfg, func(config.LLMConfig) (llms.Model, error) { return model, nil })

	_, err := g.Generate(context.Background(), Credentials{APIKey: "k"}, prompt)
	if !apperr.Is(err, apperr.KindProvider) {
		t.Errorf("Generate() error = %v, want provider failure", err)
	}
}

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"<think>a\nb</think>Result", "Result"},
		{"x <think>1</think> y <think>2</think> z", "x  y  z"},
		{"  \n", ""},
	}
	for _, tt := range tests {
		if got := CleanOutput(tt.in); got != tt.want {
			t.Errorf("CleanOutput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

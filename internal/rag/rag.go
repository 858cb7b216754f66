package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"paper-rag/internal/apperr"
	"paper-rag/internal/config"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"
)

type Retriever interface {
	Retrieve(ctx context.Context, queryText string, floor float64) ([]models.RetrievedMatch, error)
}

// TokenCounter returns the number of tokens text occupies in a prompt.
type TokenCounter func(text string) int

// RAG composes grounded answers from retrieved chunks.
type RAG struct {
	retriever        Retriever
	generator        llmservice.Generator
	floor            float64
	maxContextTokens int
	countTokens      TokenCounter
}

type Option func(*RAG)

func WithTokenCounter(fn TokenCounter) Option {
	return func(r *RAG) { r.countTokens = fn }
}

// NewRAG wires a retriever and a generator. model names the generation model
// for token counting.
func NewRAG(retriever Retriever, generator llmservice.Generator, cfg config.RAGConfig, model string, opts ...Option) *RAG {
	r := &RAG{
		retriever:        retriever,
		generator:        generator,
		floor:            cfg.CertaintyFloor,
		maxContextTokens: cfg.MaxContextTokens,
		countTokens: func(text string) int {
			return llms.CountTokens(model, text)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate answers a standalone query.
func (r *RAG) Generate(ctx context.Context, creds llmservice.Credentials, query string) (models.Answer, error) {
	matches, err := r.retrieve(ctx, "generate", query)
	if err != nil {
		return models.Answer{}, err
	}

	var msg strings.Builder
	msg.WriteString("Context: \n")
	msg.WriteString(r.contextBlock(matches))
	msg.WriteString("\nQuery: \n")
	msg.WriteString(query)

	return r.answer(ctx, creds, models.AnswerSystemPrompt, msg.String(), matches)
}

// Continue answers a query inside a conversation. Only the last threshold
// turns are used, both to retrieve context and in the prompt. A threshold
// <= 0 means the default of 10.
func (r *RAG) Continue(ctx context.Context, creds llmservice.Credentials, query string, history []models.ConversationTurn, threshold int) (models.Answer, error) {
	transcript := FoldHistory(history, threshold)

	retrievalText := transcript
	if strings.TrimSpace(retrievalText) == "" {
		retrievalText = query
	}
	matches, err := r.retrieve(ctx, "continue", retrievalText)
	if err != nil {
		return models.Answer{}, err
	}

	var msg strings.Builder
	msg.WriteString("Context: \n")
	msg.WriteString(r.contextBlock(matches))
	msg.WriteString("\nChat History:\n")
	msg.WriteString(transcript)
	msg.WriteString("\nQuery:\n")
	msg.WriteString(query)

	return r.answer(ctx, creds, models.ContinuousSystemPrompt, msg.String(), matches)
}

// Title asks the model for a conversation title. The output is returned as is.
func (r *RAG) Title(ctx context.Context, creds llmservice.Credentials, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", apperr.InputRejected("title", "query is empty")
	}
	return r.generator.Generate(ctx, creds, []models.Message{
		{Role: models.MessageSystem, Content: models.TitlePrompt},
		{Role: models.MessageUser, Content: query},
	})
}

// Search starts a new conversation: a title and the first answer. Either
// failing fails the whole call.
func (r *RAG) Search(ctx context.Context, creds llmservice.Credentials, query string) (models.SearchOutcome, error) {
	title, err := r.Title(ctx, creds, query)
	if err != nil {
		return models.SearchOutcome{}, fmt.Errorf("generating title: %w", err)
	}
	answer, err := r.Generate(ctx, creds, query)
	if err != nil {
		return models.SearchOutcome{}, err
	}
	return models.SearchOutcome{Title: title, Answer: answer}, nil
}

// FoldHistory renders the last threshold turns as "ROLE: content" lines.
func FoldHistory(history []models.ConversationTurn, threshold int) string {
	if threshold <= 0 {
		threshold = models.DefaultHistoryThreshold
	}
	if len(history) > threshold {
		history = history[len(history)-threshold:]
	}
	var b strings.Builder
	for _, turn := range history {
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (r *RAG) retrieve(ctx context.Context, op, text string) ([]models.RetrievedMatch, error) {
	matches, err := r.retriever.Retrieve(ctx, text, r.floor)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		log.Info().Str("op", op).Float64("floor", r.floor).Msg("No context cleared the certainty floor")
		return nil, apperr.Grounding(op)
	}
	return matches, nil
}

func (r *RAG) answer(ctx context.Context, creds llmservice.Credentials, system, user string, matches []models.RetrievedMatch) (models.Answer, error) {
	text, err := r.generator.Generate(ctx, creds, []models.Message{
		{Role: models.MessageSystem, Content: system},
		{Role: models.MessageUser, Content: user},
	})
	if err != nil {
		return models.Answer{}, err
	}
	return models.Answer{Text: text, Matches: matches}, nil
}

// contextBlock enumerates matches in rank order. Once the token budget is
// spent the remaining lower ranked matches are dropped; the first one is
// always kept.
func (r *RAG) contextBlock(matches []models.RetrievedMatch) string {
	var b strings.Builder
	used := 0
	for i, m := range matches {
		block := formatMatch(i+1, m)
		if r.maxContextTokens > 0 {
			n := r.countTokens(block)
			if i > 0 && used+n > r.maxContextTokens {
				log.Debug().Int("kept", i).Int("dropped", len(matches)-i).Msg("Context token budget reached")
				break
			}
			used += n
		}
		b.WriteString(block)
	}
	return b.String()
}

func formatMatch(n int, m models.RetrievedMatch) string {
	return fmt.Sprintf("%d) %s\nSource: %s\nTitle of Paper: %s\nAuthors: %s\n",
		n, m.Text, m.SourceRef, m.PaperName, strings.Join(m.Authors, ", "))
}

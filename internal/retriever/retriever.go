package retriever

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/apperr"
	"paper-rag/internal/models"
)

// Retriever turns a query into the chunks that clear a certainty floor.
type Retriever struct {
	embedder models.Embedder
	index    models.VectorIndex
	limit    int
}

func New(embedder models.Embedder, index models.VectorIndex, limit int) *Retriever {
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	return &Retriever{embedder: embedder, index: index, limit: limit}
}

// Retrieve embeds queryText, searches the index and keeps the matches with
// certainty >= floor in the order the index returned them. An empty result
// is not an error, and blank query text matches nothing.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, floor float64) ([]models.RetrievedMatch, error) {
	if floor < 0 || floor > 1 {
		return nil, apperr.InputRejected("retrieve", "certainty floor must be 0-1, got %f", floor)
	}
	if strings.TrimSpace(queryText) == "" {
		return []models.RetrievedMatch{}, nil
	}
	vec, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	matches, err := r.index.Search(ctx, vec, r.limit)
	if err != nil {
		return nil, err
	}

	kept := make([]models.RetrievedMatch, 0, len(matches))
	for _, m := range matches {
		if m.Certainty >= floor {
			kept = append(kept, m)
		}
	}
	log.Debug().
		Int("candidates", len(matches)).
		Int("kept", len(kept)).
		Float64("floor", floor).
		Msg("Retrieved context")
	return kept, nil
}

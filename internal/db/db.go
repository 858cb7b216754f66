package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"paper-rag/internal/apperr"
	"paper-rag/internal/config"
	"paper-rag/internal/helper"
	"paper-rag/internal/models"
)

// ChunkRecord is one row of the chunk table.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:paper_chunks,alias:c"`

	ID             string          `bun:"id,pk,type:uuid"`
	Text           string          `bun:"text,notnull"`
	Source         string          `bun:"source"`
	Page           string          `bun:"page"`
	Title          string          `bun:"title,notnull"`
	Authors        pq.StringArray  `bun:"authors,type:text[]"`
	Embedding      pgvector.Vector `bun:"embedding,type:vector"`
	EmbeddingModel string          `bun:"embedding_model"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
}

type searchRow struct {
	ID             string         `bun:"id"`
	Text           string         `bun:"text"`
	Source         string         `bun:"source"`
	Page           string         `bun:"page"`
	Title          string         `bun:"title"`
	Authors        pq.StringArray `bun:"authors"`
	EmbeddingModel string         `bun:"embedding_model"`
	Distance       float64        `bun:"distance"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return sqldb, nil
}

// Store is a models.VectorIndex on Postgres with the pgvector extension.
type Store struct {
	db        *bun.DB
	embedder  models.Embedder
	table     string
	dimension int
}

func NewStore(db *bun.DB, embedder models.Embedder, table string, dimension int) *Store {
	if table == "" {
		table = "paper_chunks"
	}
	return &Store{db: db, embedder: embedder, table: table, dimension: dimension}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the extension, the table and the title index when
// missing. Safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{"CREATE EXTENSION IF NOT EXISTS vector", nil},
		{`CREATE TABLE IF NOT EXISTS ? (
	id uuid PRIMARY KEY,
	text text NOT NULL,
	source text,
	page text,
	title text NOT NULL,
	authors text[],
	embedding vector(?) NOT NULL,
	embedding_model text,
	created_at timestamptz NOT NULL DEFAULT now()
)`, []interface{}{bun.Ident(s.table), s.dimension}},
		{"CREATE INDEX IF NOT EXISTS ? ON ? (title)", []interface{}{bun.Ident(s.table + "_title_idx"), bun.Ident(s.table)}},
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return apperr.Index("ensure schema", err)
		}
	}
	return nil
}

// Upsert inserts one row per chunk. Rows written before a failure stay.
func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vecs, embedErr := s.embedder.EmbedBatch(ctx, texts)

	inserted := 0
	for i, vec := range vecs {
		chunk := chunks[i]
		if s.dimension > 0 && len(vec) != s.dimension {
			return inserted, apperr.InputRejected("upsert", "embedding has %d dimensions, table expects %d", len(vec), s.dimension)
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return inserted, err
		}
		rec := &ChunkRecord{
			ID:             id,
			Text:           chunk.Text,
			Source:         chunk.SourceRef,
			Page:           chunk.Page,
			Title:          chunk.PaperName,
			Authors:        pq.StringArray(chunk.Authors),
			Embedding:      pgvector.NewVector(vec),
			EmbeddingModel: s.embedder.Model(),
			CreatedAt:      time.Now().UTC(),
		}
		if _, err := s.db.NewInsert().Model(rec).ModelTableExpr("?", bun.Ident(s.table)).Exec(ctx); err != nil {
			return inserted, apperr.Index("upsert", err)
		}
		inserted++
	}
	if embedErr != nil {
		return inserted, embedErr
	}
	return inserted, nil
}

// Search orders rows by cosine distance. Certainty is 1 - distance/2,
// the same scale as (1 + cosine) / 2.
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]models.RetrievedMatch, error) {
	if len(queryVector) == 0 {
		return nil, apperr.InputRejected("search", "query embedding is empty")
	}
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	vec := pgvector.NewVector(queryVector)

	var rows []searchRow
	err := s.db.NewRaw(`SELECT id, text, source, page, title, authors, embedding_model, embedding <=> ?::vector AS distance
FROM ?
ORDER BY embedding <=> ?::vector
LIMIT ?`, vec, bun.Ident(s.table), vec, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, apperr.Index("search", err)
	}

	matches := make([]models.RetrievedMatch, 0, len(rows))
	mismatched := 0
	for _, r := range rows {
		if r.EmbeddingModel != "" && r.EmbeddingModel != s.embedder.Model() {
			mismatched++
		}
		matches = append(matches, models.RetrievedMatch{
			Chunk: models.Chunk{
				Text:      r.Text,
				PaperName: r.Title,
				Authors:   []string(r.Authors),
				Page:      r.Page,
				SourceRef: r.Source,
			},
			Certainty: certainty(r.Distance),
		})
	}
	if mismatched > 0 {
		log.Warn().Int("records", mismatched).Str("model", s.embedder.Model()).Msg("Matches were embedded with a different model, reindex the table")
	}
	return matches, nil
}

// DeleteByTitle removes every row whose title matches exactly.
func (s *Store) DeleteByTitle(ctx context.Context, title string) (models.DeleteResult, error) {
	res, err := s.db.NewDelete().
		TableExpr("?", bun.Ident(s.table)).
		Where("title = ?", title).
		Exec(ctx)
	if err != nil {
		return models.DeleteResult{}, apperr.Index("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.DeleteResult{}, apperr.Index("delete", err)
	}
	if n == 0 {
		return models.DeleteResult{Message: "Could not find any items in Vector Store"}, nil
	}
	return models.DeleteResult{
		Success:      true,
		DeletedCount: int(n),
		Message:      fmt.Sprintf("Deleted %d items from the Vector Store", n),
	}, nil
}

// DropTable removes the chunk table and everything in it.
func (s *Store) DropTable(ctx context.Context) error {
	if _, err := s.db.NewDropTable().TableExpr("?", bun.Ident(s.table)).IfExists().Exec(ctx); err != nil {
		return apperr.Index("drop table", err)
	}
	return nil
}

func certainty(distance float64) float64 {
	c := 1 - distance/2
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/apperr"
	"paper-rag/internal/chunker"
	"paper-rag/internal/config"
	"paper-rag/internal/models"
	"paper-rag/internal/parser"
)

// contentTypes lists the accepted MIME types per extension. An empty
// ContentType on an upload skips the check.
var contentTypes = map[string][]string{
	"pdf":      {"application/pdf"},
	"docx":     {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"xlsx":     {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	"ods":      {"application/vnd.oasis.opendocument.spreadsheet"},
	"pptx":     {"application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	"md":       {"text/markdown", "text/x-markdown", "text/plain"},
	"markdown": {"text/markdown", "text/x-markdown", "text/plain"},
	"txt":      {"text/plain"},
}

// Upload is a document handed over by the caller together with its citation
// metadata. Data is never persisted, only the chunks derived from it.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Title       string
	Authors     []string
	SourceRef   string
}

type Result struct {
	Chunks   int `json:"chunks"`
	Inserted int `json:"inserted"`
}

// Service runs the ingestion path: validate, parse, chunk and upsert.
type Service struct {
	chunker *chunker.Chunker
	index   models.VectorIndex
	cfg     config.RAGConfig
}

func NewService(index models.VectorIndex, cfg config.RAGConfig) *Service {
	return &Service{chunker: chunker.New(cfg.WindowSentences), index: index, cfg: cfg}
}

func (s *Service) Ingest(ctx context.Context, up Upload) (Result, error) {
	ext, err := s.validate(up)
	if err != nil {
		return Result{}, err
	}

	chunks, err := s.chunker.Chunk(up.Data, "."+ext, chunker.Metadata{
		Title:     strings.TrimSpace(up.Title),
		Authors:   up.Authors,
		SourceRef: up.SourceRef,
	})
	if err != nil {
		return Result{}, apperr.New(apperr.KindInputRejected, "ingest", err)
	}
	if len(chunks) == 0 {
		log.Warn().Str("title", up.Title).Msg("Document produced no chunks")
		return Result{}, nil
	}

	inserted, err := s.index.Upsert(ctx, chunks)
	log.Info().
		Str("title", up.Title).
		Int("chunks", len(chunks)).
		Int("inserted", inserted).
		Err(err).
		Msg("Ingested document")
	return Result{Chunks: len(chunks), Inserted: inserted}, err
}

// Delete removes every chunk of the paper with the given title.
func (s *Service) Delete(ctx context.Context, title string) (models.DeleteResult, error) {
	if strings.TrimSpace(title) == "" {
		return models.DeleteResult{}, apperr.InputRejected("delete", "title is empty")
	}
	return s.index.DeleteByTitle(ctx, title)
}

func (s *Service) validate(up Upload) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(up.Filename)), ".")
	if !s.cfg.FormatAllowed(ext) {
		return "", apperr.InputRejected("ingest", "file format %q is not accepted", ext)
	}
	if _, err := parser.ForExtension(ext); err != nil {
		return "", apperr.New(apperr.KindInputRejected, "ingest", err)
	}
	if up.ContentType != "" && !contentTypeMatches(ext, up.ContentType) {
		return "", apperr.InputRejected("ingest", "content type %q does not match .%s", up.ContentType, ext)
	}
	if len(up.Data) == 0 {
		return "", apperr.InputRejected("ingest", "file is empty")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(up.Data)) > s.cfg.MaxUploadBytes {
		return "", apperr.InputRejected("ingest", "file is %d bytes, limit is %d", len(up.Data), s.cfg.MaxUploadBytes)
	}
	if strings.TrimSpace(up.Title) == "" {
		return "", apperr.InputRejected("ingest", "title is required")
	}
	return ext, nil
}

func contentTypeMatches(ext, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, want := range contentTypes[ext] {
		if ct == want {
			return true
		}
	}
	return false
}

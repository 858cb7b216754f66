package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"paper-rag/internal/apperr"
	"paper-rag/internal/helper"
	"paper-rag/internal/models"
)

// Options configures where the chromem database lives.
type Options struct {
	Path          string
	Collection    string
	InMemory      bool
	Compress      bool
	EncryptionKey string
}

// Index is a models.VectorIndex backed by a chromem-go collection.
type Index struct {
	db            *chromem.DB
	embedder      models.Embedder
	name          string
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

var errNoCollection = errors.New("collection does not exist, run EnsureSchema first")

// New opens (or creates) the database. The collection itself is created by EnsureSchema.
func New(opts Options, embedder models.Embedder) (*Index, error) {
	var db *chromem.DB
	var err error
	if opts.InMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(opts.Path); err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	return &Index{
		db:            db,
		embedder:      embedder,
		name:          opts.Collection,
		dbPath:        opts.Path,
		compress:      opts.Compress,
		encryptionKey: opts.EncryptionKey,
		filePath:      filepath.Join(opts.Path, opts.Collection+".chromem"),
	}, nil
}

// EnsureSchema creates the collection if it does not exist yet.
func (m *Index) EnsureSchema(ctx context.Context) error {
	_, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return apperr.Index("ensure schema", fmt.Errorf("failed to create/get collection: %v", err))
	}
	return nil
}

func (m *Index) collection() (*chromem.Collection, error) {
	c := m.db.GetCollection(m.name, nil)
	if c == nil {
		return nil, errNoCollection
	}
	return c, nil
}

// Upsert embeds and adds every chunk as a new record. Records added before a
// failure are kept; the number added is returned either way.
func (m *Index) Upsert(ctx context.Context, chunks []models.Chunk) (int, error) {
	c, err := m.collection()
	if err != nil {
		return 0, apperr.Index("upsert", err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vecs, embedErr := m.embedder.EmbedBatch(ctx, texts)

	inserted := 0
	for i, vec := range vecs {
		id, err := helper.GenerateUUID()
		if err != nil {
			return inserted, err
		}
		doc := chromem.Document{
			ID:        id,
			Content:   chunks[i].Text,
			Metadata:  m.metadata(chunks[i]),
			Embedding: vec,
		}
		if err := c.AddDocument(ctx, doc); err != nil {
			return inserted, apperr.Index("upsert", fmt.Errorf("failed to add document: %v", err))
		}
		inserted++
	}
	if embedErr != nil {
		return inserted, embedErr
	}
	log.Debug().Int("inserted", inserted).Str("collection", m.name).Msg("Upserted chunks")
	return inserted, nil
}

// Search returns up to limit nearest records, most similar first.
func (m *Index) Search(ctx context.Context, queryVector []float32, limit int) ([]models.RetrievedMatch, error) {
	if len(queryVector) == 0 {
		return nil, apperr.InputRejected("search", "query embedding is empty")
	}
	c, err := m.collection()
	if err != nil {
		return nil, apperr.Index("search", err)
	}
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	// chromem rejects nResults larger than the collection
	if n := c.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, queryVector, limit, nil, nil)
	if err != nil {
		return nil, apperr.Index("search", fmt.Errorf("failed to query by similarity: %v", err))
	}

	matches := make([]models.RetrievedMatch, 0, len(results))
	mismatched := 0
	for _, r := range results {
		if model := r.Metadata[models.MetaEmbeddingModel]; model != "" && model != m.embedder.Model() {
			mismatched++
		}
		matches = append(matches, models.RetrievedMatch{
			Chunk:     chunkFromMetadata(r.Content, r.Metadata),
			Certainty: Certainty(float64(r.Similarity)),
		})
	}
	if mismatched > 0 {
		log.Warn().
			Int("records", mismatched).
			Str("model", m.embedder.Model()).
			Msg("Matches were embedded with a different model, reindex the collection")
	}
	return matches, nil
}

// DeleteByTitle removes every record whose title equals title exactly.
func (m *Index) DeleteByTitle(ctx context.Context, title string) (models.DeleteResult, error) {
	c, err := m.collection()
	if err != nil {
		return models.DeleteResult{}, apperr.Index("delete", err)
	}

	before := c.Count()
	if err := c.Delete(ctx, map[string]string{models.MetaTitle: title}, nil); err != nil {
		return models.DeleteResult{}, apperr.Index("delete", fmt.Errorf("failed to delete documents: %v", err))
	}
	deleted := before - c.Count()
	if deleted <= 0 {
		return models.DeleteResult{
			Success: false,
			Message: "Could not find any items in Vector Store",
		}, nil
	}
	return models.DeleteResult{
		Success:      true,
		DeletedCount: deleted,
		Message:      fmt.Sprintf("Deleted %d items from the Vector Store", deleted),
	}, nil
}

// Count returns the number of records, or 0 without a collection.
func (m *Index) Count() int {
	c, err := m.collection()
	if err != nil {
		return 0
	}
	return c.Count()
}

// DeleteCollection drops the collection and every record in it.
// EnsureSchema creates it again.
func (m *Index) DeleteCollection() error {
	err := m.db.DeleteCollection(m.name)
	if err != nil {
		return apperr.Index("delete collection", fmt.Errorf("failed to drop collection: %v", err))
	}
	return nil
}

// Export writes the collection to an encrypted file next to the database.
func (m *Index) Export(ctx context.Context) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}
	if _, err := m.collection(); err != nil {
		return err
	}

	log.Debug().
		Str("collection", m.name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import loads the collection from the file written by Export.
func (m *Index) Import(ctx context.Context) error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	return nil
}

// Certainty maps cosine similarity in [-1,1] onto [0,1].
func Certainty(similarity float64) float64 {
	c := (1 + similarity) / 2
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func (m *Index) metadata(chunk models.Chunk) map[string]string {
	authors, _ := json.Marshal(chunk.Authors)
	return map[string]string{
		models.MetaSource:         chunk.SourceRef,
		models.MetaPage:           chunk.Page,
		models.MetaTitle:          chunk.PaperName,
		models.MetaAuthors:        string(authors),
		models.MetaEmbeddingModel: m.embedder.Model(),
	}
}

func chunkFromMetadata(text string, meta map[string]string) models.Chunk {
	var authors []string
	if raw := meta[models.MetaAuthors]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &authors); err != nil {
			log.Warn().Err(err).Msg("Malformed authors metadata")
		}
	}
	return models.Chunk{
		Text:      text,
		PaperName: meta[models.MetaTitle],
		Authors:   authors,
		Page:      meta[models.MetaPage],
		SourceRef: meta[models.MetaSource],
	}
}

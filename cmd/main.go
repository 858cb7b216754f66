package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"paper-rag/internal/chromemdb"
	"paper-rag/internal/chunker"
	"paper-rag/internal/config"
	"paper-rag/internal/db"
	"paper-rag/internal/embedding"
	"paper-rag/internal/helper"
	"paper-rag/internal/ingest"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"
	"paper-rag/internal/parser"
	"paper-rag/internal/rag"
	"paper-rag/internal/retriever"
)

const configFilePath = "./configs/config.yaml"

type flags struct {
	configPath  string
	filePath    string
	title       string
	authors     string
	source      string
	query       string
	historyPath string
	newChat     bool
	deleteTitle string
	export      bool
	importDB    bool
	reset       bool
	dryRun      bool
	debug       bool
	apiKey      string
	model       string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", configFilePath, "Path to the config file")
	flag.StringVar(&f.filePath, "file", "", "Path to the paper to ingest")
	flag.StringVar(&f.title, "title", "", "Title of the paper being ingested")
	flag.StringVar(&f.authors, "authors", "", "Comma separated authors of the paper being ingested")
	flag.StringVar(&f.source, "source", "", "Source reference stored with every chunk (defaults to the file path)")
	flag.StringVar(&f.query, "query", "", "Query to be answered")
	flag.StringVar(&f.historyPath, "history", "", "YAML file with the chat history for a follow-up query")
	flag.BoolVar(&f.newChat, "new-chat", false, "Generate a title along with the first answer")
	flag.StringVar(&f.deleteTitle, "delete", "", "Delete every chunk of the paper with this title")
	flag.BoolVar(&f.export, "export", false, "Export the chromem collection to an encrypted file")
	flag.BoolVar(&f.importDB, "import", false, "Import the chromem collection from the encrypted file")
	flag.BoolVar(&f.reset, "reset", false, "Drop every indexed chunk and recreate the empty collection or table")
	flag.BoolVar(&f.dryRun, "dry-run", false, "Dry run, parse and chunk without storing")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&f.apiKey, "api-key", "", "API key for the inference model (defaults to the configured key)")
	flag.StringVar(&f.model, "model", "", "Override the inference model")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "could not load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Logging.Level, f.debug)
	log.Debug().Str("store", cfg.VectorStore.Type).Str("embed_model", cfg.EmbedLLM.Model).Msg("Loaded config")

	if f.filePath != "" && f.query != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	ctx := context.Background()
	switch {
	case f.filePath != "" && f.dryRun:
		chunkFile(cfg, f)
	case f.filePath != "":
		storeFile(ctx, cfg, f)
	case f.query != "":
		answerQuery(ctx, cfg, f)
	case f.deleteTitle != "":
		deletePaper(ctx, cfg, f.deleteTitle)
	case f.export || f.importDB:
		transferCollection(ctx, cfg, f.export)
	case f.reset:
		resetIndex(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func setupLogger(level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

type closer func()

// openIndex builds the configured vector index and makes sure its schema exists.
func openIndex(ctx context.Context, cfg *config.Config, gw *embedding.Gateway) (models.VectorIndex, closer) {
	var (
		index models.VectorIndex
		done  closer = func() {}
	)
	switch cfg.VectorStore.Type {
	case config.StorePgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		store := db.NewStore(db.NewDB(sqldb, cfg.Database.Debug), gw, cfg.Database.Table, cfg.EmbedLLM.Dimension)
		index, done = store, func() { store.Close() }
	default:
		idx, err := chromemdb.New(chromemOptions(cfg), gw)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating vector database")
		}
		index = idx
	}

	if err := index.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("Could not ensure vector index schema")
	}
	return index, done
}

func chromemOptions(cfg *config.Config) chromemdb.Options {
	return chromemdb.Options{
		Path:          cfg.VectorStore.Path,
		Collection:    cfg.VectorStore.Collection,
		InMemory:      cfg.VectorStore.InMemory,
		Compress:      cfg.VectorStore.Compress,
		EncryptionKey: cfg.RAG.EncryptionKey,
	}
}

func newGateway(cfg *config.Config) *embedding.Gateway {
	gw, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	return gw
}

func metadata(f flags) chunker.Metadata {
	source := f.source
	if source == "" {
		source = filepath.Base(f.filePath)
	}
	return chunker.Metadata{Title: f.title, Authors: splitAuthors(f.authors), SourceRef: source}
}

func splitAuthors(s string) []string {
	var authors []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}

func chunkFile(cfg *config.Config, f flags) {
	p, err := parser.ForFile(f.filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error picking parser")
	}
	chunks, err := chunker.New(cfg.RAG.WindowSentences).ChunkDocument(p, f.filePath, metadata(f))
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	log.Info().Int("chunks", len(chunks)).Msg("Parsed content")
	helper.PrettyPrint(chunks)
}

func storeFile(ctx context.Context, cfg *config.Config, f flags) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}
	gw := newGateway(cfg)
	index, done := openIndex(ctx, cfg, gw)
	defer done()

	meta := metadata(f)
	res, err := ingest.NewService(index, cfg.RAG).Ingest(ctx, ingest.Upload{
		Filename:  filepath.Base(f.filePath),
		Data:      data,
		Title:     meta.Title,
		Authors:   meta.Authors,
		SourceRef: meta.SourceRef,
	})
	if err != nil {
		log.Error().Err(err).Int("inserted", res.Inserted).Msg("Error storing document")
		helper.PrettyPrint(models.ErrorResponse(err))
		os.Exit(1)
	}
	helper.PrettyPrint(res)
}

func answerQuery(ctx context.Context, cfg *config.Config, f flags) {
	gw := newGateway(cfg)
	index, done := openIndex(ctx, cfg, gw)
	defer done()

	r := rag.NewRAG(
		retriever.New(gw, index, cfg.RAG.SearchLimit),
		llmservice.NewGenerator(cfg.InferenceLLM),
		cfg.RAG,
		cfg.InferenceLLM.Model,
	)
	creds := llmservice.Credentials{APIKey: f.apiKey, Model: f.model}

	var resp models.Response
	switch {
	case f.historyPath != "":
		history, err := loadHistory(f.historyPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Error loading chat history")
		}
		resp = models.NewResponse(r.Continue(ctx, creds, f.query, history, cfg.RAG.HistoryThreshold))
	case f.newChat:
		resp = models.NewSearchResponse(r.Search(ctx, creds, f.query))
	default:
		resp = models.NewResponse(r.Generate(ctx, creds, f.query))
	}
	helper.PrettyPrint(resp)
	if resp.Error {
		os.Exit(1)
	}
}

func deletePaper(ctx context.Context, cfg *config.Config, title string) {
	gw := newGateway(cfg)
	index, done := openIndex(ctx, cfg, gw)
	defer done()

	res, err := ingest.NewService(index, cfg.RAG).Delete(ctx, title)
	if err != nil {
		log.Fatal().Err(err).Msg("Error deleting paper")
	}
	helper.PrettyPrint(res)
}

// resetIndex drops the chromem collection or the pgvector table, then
// recreates it empty.
func resetIndex(ctx context.Context, cfg *config.Config) {
	gw := newGateway(cfg)
	index, done := openIndex(ctx, cfg, gw)
	defer done()

	var err error
	switch idx := index.(type) {
	case *db.Store:
		err = idx.DropTable(ctx)
	case *chromemdb.Index:
		err = idx.DeleteCollection()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error dropping vector index")
	}
	if err := index.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error recreating vector index")
	}
	log.Info().Str("store", cfg.VectorStore.Type).Msg("Vector index reset")
}

func transferCollection(ctx context.Context, cfg *config.Config, export bool) {
	if cfg.VectorStore.Type != config.StoreChromem {
		log.Fatal().Str("store", cfg.VectorStore.Type).Msg("Export and import are only available for the chromem store")
	}
	idx, err := chromemdb.New(chromemOptions(cfg), newGateway(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating vector database")
	}
	if export {
		err = idx.Export(ctx)
	} else {
		err = idx.Import(ctx)
	}
	if err != nil {
		log.Fatal().Err(err).Bool("export", export).Msg("Error transferring collection")
	}
	log.Info().Int("documents", idx.Count()).Msg("Collection transferred")
}

func loadHistory(path string) ([]models.ConversationTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var history []models.ConversationTurn
	if err := yaml.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return history, nil
}

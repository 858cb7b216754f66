package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/helper"
	"paper-rag/internal/models"
	"paper-rag/internal/parser"
)

const DefaultWindow = 3

var (
	wrappedWordRe = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{L})`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// Metadata is the caller supplied provenance copied onto every chunk.
type Metadata struct {
	Title     string
	Authors   []string
	SourceRef string
}

// Chunker turns pages into overlapping windows of consecutive sentences.
type Chunker struct {
	window int
}

func New(window int) *Chunker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Chunker{window: window}
}

// Chunk parses a raw document of the given extension and chunks it.
// The payload only lives on disk for the duration of the parse.
func (c *Chunker) Chunk(data []byte, ext string, meta Metadata) ([]models.Chunk, error) {
	p, err := parser.ForExtension(ext)
	if err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	err = helper.WithTempFile(data, ext, func(path string) error {
		chunks, err = c.ChunkDocument(p, path, meta)
		return err
	})
	return chunks, err
}

// ChunkDocument parses the file at path and chunks every page.
func (c *Chunker) ChunkDocument(p parser.DocumentParser, path string, meta Metadata) ([]models.Chunk, error) {
	pages, err := p.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return c.ChunkPages(pages, meta), nil
}

// ChunkPages produces max(0, n-window+1) chunks for a page of n sentences.
func (c *Chunker) ChunkPages(pages []parser.Page, meta Metadata) []models.Chunk {
	var chunks []models.Chunk
	for _, page := range pages {
		sentences := SplitSentences(NormalizeText(page.Blocks))
		if len(sentences) < c.window {
			if len(sentences) > 0 {
				log.Warn().
					Str("title", meta.Title).
					Int("page", page.Number).
					Int("sentences", len(sentences)).
					Msg("Page too short for a chunk window, its text is not indexed")
			}
			continue
		}
		for start := 0; start+c.window <= len(sentences); start++ {
			chunks = append(chunks, models.Chunk{
				Text:      strings.Join(sentences[start:start+c.window], " "),
				PaperName: meta.Title,
				Authors:   meta.Authors,
				Page:      strconv.Itoa(page.Number),
				SourceRef: meta.SourceRef,
			})
		}
	}
	return chunks
}

// NormalizeText joins the text blocks of a page in order, rejoins words
// hyphenated across a line break and collapses all whitespace.
func NormalizeText(blocks []parser.Block) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type != parser.BlockText {
			continue
		}
		b.WriteString(block.Text)
		b.WriteString("\n")
	}
	text := wrappedWordRe.ReplaceAllString(b.String(), "$1$2")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitSentences splits after '.', '?' or '!' when followed by whitespace.
// Empty segments are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '?', '!':
		default:
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

type BlockType int

const (
	BlockText BlockType = iota
	BlockImage
)

func (t BlockType) String() string {
	if t == BlockImage {
		return "image"
	}
	return "text"
}

// Block is a run of content on a page in reading order.
type Block struct {
	Type BlockType
	Text string
}

// Page holds the blocks of one page. Number is 1-indexed.
type Page struct {
	Number int
	Blocks []Block
}

// DocumentParser extracts pages from a document on disk.
type DocumentParser interface {
	Parse(filePath string) ([]Page, error)
}

// UnsupportedFormatError is returned for extensions without a parser.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Ext)
}

// ForExtension returns the parser registered for a file extension.
func ForExtension(ext string) (DocumentParser, error) {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	switch ext {
	case ".pdf":
		return PDFParser{}, nil
	case ".docx":
		return DOCXParser{}, nil
	case ".xlsx":
		return XLSXParser{}, nil
	case ".ods":
		return ODSParser{}, nil
	case ".pptx":
		return PPTXParser{}, nil
	case ".md", ".markdown":
		return MarkdownParser{}, nil
	case ".txt":
		return TextParser{}, nil
	default:
		return nil, &UnsupportedFormatError{Ext: ext}
	}
}

// ForFile picks the parser from the file name's extension.
func ForFile(filePath string) (DocumentParser, error) {
	return ForExtension(filepath.Ext(filePath))
}

// textPage builds a page from non-empty lines, one text block each.
func textPage(number int, lines []string) Page {
	page := Page{Number: number}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		page.Blocks = append(page.Blocks, Block{Type: BlockText, Text: line})
	}
	return page
}

package parser

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// TextParser treats a plain text file as a single page.
type TextParser struct{}

func (TextParser) Parse(filePath string) ([]Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []Page{textPage(1, strings.Split(string(data), "\n"))}, nil
}

// MarkdownParser walks the goldmark AST. Paragraphs and headings become text
// blocks; images become image blocks so their alt text stays out of chunks.
type MarkdownParser struct{}

func (MarkdownParser) Parse(filePath string) ([]Page, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []Page{parseMarkdown(src)}, nil
}

func parseMarkdown(src []byte) Page {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	page := Page{Number: 1}
	var current strings.Builder
	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			page.Blocks = append(page.Blocks, Block{Type: BlockText, Text: current.String()})
		}
		current.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				flush()
			}
		case *ast.Image:
			if entering {
				page.Blocks = append(page.Blocks, Block{Type: BlockImage})
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				current.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					current.WriteString("\n")
				}
			}
		}
		return ast.WalkContinue, nil
	})
	flush()
	return page
}

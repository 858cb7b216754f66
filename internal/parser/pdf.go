package parser

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// PDFParser reads PDFs with ledongthuc/pdf. Every text row becomes a text
// block and every image XObject on the page an image block.
type PDFParser struct{}

func (PDFParser) Parse(filePath string) (pages []Page, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// the pdf package panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf %s: %v", filePath, r)
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			return nil, fmt.Errorf("page %d of %d is unreadable", i, numPages)
		}
		parsed, err := parsePDFPage(page, i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, parsed)
	}
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Msg("Parsed pdf")
	return pages, nil
}

// wordGap is the horizontal gap, as a fraction of the font size, above which
// two glyphs on a row belong to different words.
const wordGap = 0.15

type glyphRow struct {
	y      float64
	glyphs []pdf.Text
}

func parsePDFPage(page pdf.Page, number int) (Page, error) {
	out := Page{Number: number}
	for _, line := range textLines(page.Content().Text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out.Blocks = append(out.Blocks, Block{Type: BlockText, Text: line})
	}

	xobjects := page.Resources().Key("XObject")
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			out.Blocks = append(out.Blocks, Block{Type: BlockImage})
		}
	}
	return out, nil
}

// textLines groups positioned glyphs into rows, top to bottom, and rebuilds
// each row left to right. Spaces are not emitted as glyphs by the pdf
// package, so a space is inserted wherever the gap to the previous glyph
// exceeds wordGap of the font size. This covers word spacing done with TJ
// offsets or separate Td moves as well as literal spaces.
func textLines(glyphs []pdf.Text) []string {
	var rows []*glyphRow
	for _, g := range glyphs {
		tol := math.Max(g.FontSize*0.3, 1)
		var row *glyphRow
		for _, r := range rows {
			if math.Abs(r.y-g.Y) <= tol {
				row = r
				break
			}
		}
		if row == nil {
			row = &glyphRow{y: g.Y}
			rows = append(rows, row)
		}
		row.glyphs = append(row.glyphs, g)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		sort.SliceStable(r.glyphs, func(i, j int) bool { return r.glyphs[i].X < r.glyphs[j].X })
		var b strings.Builder
		for i, g := range r.glyphs {
			if i > 0 {
				prev := r.glyphs[i-1]
				gap := g.X - (prev.X + prev.W)
				if gap > wordGap*math.Max(g.FontSize, 1) && !strings.HasSuffix(prev.S, " ") {
					b.WriteByte(' ')
				}
			}
			b.WriteString(g.S)
		}
		lines = append(lines, b.String())
	}
	return lines
}

package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

var (
	docxParagraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxTextRe      = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
	docxDrawingRe   = regexp.MustCompile(`<w:drawing>|<w:pict>`)

	pptxSlideRe     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxParagraphRe = regexp.MustCompile(`(?s)<a:p>.*?</a:p>|<a:p/>`)
	pptxTextRe      = regexp.MustCompile(`(?s)<a:t>(.*?)</a:t>`)
	pptxPictureRe   = regexp.MustCompile(`<p:pic[ >/]`)
)

// DOCXParser returns the whole document as page 1, one block per paragraph.
type DOCXParser struct{}

func (DOCXParser) Parse(filePath string) ([]Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	page := Page{Number: 1}
	for _, para := range docxParagraphRe.FindAllString(content, -1) {
		if docxDrawingRe.MatchString(para) {
			page.Blocks = append(page.Blocks, Block{Type: BlockImage})
		}
		var text strings.Builder
		for _, m := range docxTextRe.FindAllStringSubmatch(para, -1) {
			text.WriteString(html.UnescapeString(m[1]))
		}
		if strings.TrimSpace(text.String()) != "" {
			page.Blocks = append(page.Blocks, Block{Type: BlockText, Text: text.String()})
		}
	}
	return []Page{page}, nil
}

// XLSXParser maps every sheet to a page and every row to a block.
type XLSXParser struct{}

func (XLSXParser) Parse(filePath string) ([]Page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []Page
	for sheetNum, sheet := range f.Sheets {
		var lines []string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			lines = append(lines, strings.Join(cells, "\t"))
		}
		pages = append(pages, textPage(sheetNum+1, lines))
	}
	return pages, nil
}

// ODSParser reads spreadsheets through excelize, one page per sheet.
type ODSParser struct{}

func (ODSParser) Parse(filePath string) ([]Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		pages = append(pages, textPage(sheetNum+1, lines))
	}
	return pages, nil
}

// PPTXParser maps every slide to a page, numbered by its slide file, and
// every text paragraph to a block.
type PPTXParser struct{}

func (PPTXParser) Parse(filePath string) ([]Page, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var pages []Page
	for _, file := range r.File {
		m := pptxSlideRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", num, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", num, err)
		}
		pages = append(pages, parseSlide(num, string(data)))
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func parseSlide(number int, xml string) Page {
	page := Page{Number: number}
	for _, para := range pptxParagraphRe.FindAllString(xml, -1) {
		var text strings.Builder
		for _, m := range pptxTextRe.FindAllStringSubmatch(para, -1) {
			text.WriteString(html.UnescapeString(m[1]))
		}
		if strings.TrimSpace(text.String()) != "" {
			page.Blocks = append(page.Blocks, Block{Type: BlockText, Text: text.String()})
		}
	}
	for range pptxPictureRe.FindAllStringIndex(xml, -1) {
		page.Blocks = append(page.Blocks, Block{Type: BlockImage})
	}
	return page
}

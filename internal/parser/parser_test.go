package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paper-rag/internal/testutil"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func textOf(page Page) []string {
	var out []string
	for _, b := range page.Blocks {
		if b.Type == BlockText {
			out = append(out, b.Text)
		}
	}
	return out
}

func TestForExtension(t *testing.T) {
	tests := []struct {
		ext     string
		want    DocumentParser
		wantErr bool
	}{
		{".pdf", PDFParser{}, false},
		{"PDF", PDFParser{}, false},
		{".docx", DOCXParser{}, false},
		{".xlsx", XLSXParser{}, false},
		{".ods", ODSParser{}, false},
		{".pptx", PPTXParser{}, false},
		{".md", MarkdownParser{}, false},
		{".txt", TextParser{}, false},
		{".exe", nil, true},
		{"", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, err := ForExtension(tt.ext)
			if tt.wantErr {
				var unsupported *UnsupportedFormatError
				if !errors.As(err, &unsupported) {
					t.Fatalf("ForExtension(%q) error = %v, want UnsupportedFormatError", tt.ext, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForExtension(%q) error = %v", tt.ext, err)
			}
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %T, want %T", tt.ext, got, tt.want)
			}
		})
	}
}

func TestPDFParser_Pages(t *testing.T) {
	data := testutil.BuildPDF([][]string{
		{"First line of page one.", "Second line."},
		{"Only line on page two."},
	})
	path := writeFile(t, "paper.pdf", data)

	pages, err := PDFParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("len(pages) = %d, want 2", len(pages))
	}
	if pages[0].Number != 1 || pages[1].Number != 2 {
		t.Errorf("page numbers = %d, %d, want 1, 2", pages[0].Number, pages[1].Number)
	}

	got := textOf(pages[0])
	want := []string{"First line of page one.", "Second line."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("page 1 text = %q, want %q", got, want)
	}
	if got := textOf(pages[1]); len(got) != 1 || got[0] != "Only line on page two." {
		t.Errorf("page 2 text = %q", got)
	}
}

func TestPDFParser_WordSpacing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "TJ offsets between words",
			content: "BT /F1 12 Tf 72 700 Td [(One) -333 (is.) -333 (Two) -333 (is.) -333 (Three) -333 (is.) -333 (Four) -333 (is.)] TJ ET\n",
			want:    "One is. Two is. Three is. Four is.",
		},
		{
			name:    "TJ kerning inside a word",
			content: "BT /F1 12 Tf 72 700 Td [(W) 80 (ord) -333 (split.)] TJ ET\n",
			want:    "Word split.",
		},
		{
			name:    "separate Tj with Td moves",
			content: "BT /F1 12 Tf 72 700 Td (The) Tj 30 0 Td (model) Tj 40 0 Td (works.) Tj ET\n",
			want:    "The model works.",
		},
		{
			name:    "literal spaces",
			content: "BT /F1 12 Tf 72 700 Td (Plain text line.) Tj ET\n",
			want:    "Plain text line.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "spacing.pdf", testutil.BuildPDFStreams([]string{tt.content}))
			pages, err := PDFParser{}.Parse(path)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got := textOf(pages[0])
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPDFParser_Malformed(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("this is not a pdf"))
	if _, err := (PDFParser{}).Parse(path); err == nil {
		t.Error("Parse() error = nil, want error for malformed pdf")
	}
}

func TestMarkdownParser_SkipsImages(t *testing.T) {
	src := "# Results\n\nThe model converges quickly.\nIt beats the baseline.\n\n![loss curve](loss.png)\n\n- item one\n- item two\n"
	path := writeFile(t, "notes.md", []byte(src))

	pages, err := MarkdownParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("len(pages) = %d, want 1", len(pages))
	}

	var images int
	var texts []string
	for _, b := range pages[0].Blocks {
		if b.Type == BlockImage {
			images++
			continue
		}
		texts = append(texts, b.Text)
	}
	if images != 1 {
		t.Errorf("image blocks = %d, want 1", images)
	}
	joined := strings.Join(texts, "|")
	for _, want := range []string{"Results", "The model converges quickly.\nIt beats the baseline.", "item one", "item two"} {
		if !strings.Contains(joined, want) {
			t.Errorf("text blocks %q missing %q", texts, want)
		}
	}
	if strings.Contains(joined, "loss curve") {
		t.Errorf("image alt text leaked into text blocks: %q", texts)
	}
}

func TestTextParser_SkipsBlankLines(t *testing.T) {
	path := writeFile(t, "abstract.txt", []byte("Line one.\n\n   \nLine two.\n"))
	pages, err := TextParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := textOf(pages[0]); len(got) != 2 {
		t.Errorf("blocks = %q, want 2 lines", got)
	}
}

func buildPPTX(t *testing.T, slides map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range slides {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPPTXParser_SlidesInOrder(t *testing.T) {
	slide := func(paras ...string) string {
		var b strings.Builder
		b.WriteString(`<p:sld><p:cSld><p:spTree><p:sp><p:txBody>`)
		for _, p := range paras {
			b.WriteString(`<a:p><a:r><a:rPr lang="en-US"/><a:t>` + p + `</a:t></a:r></a:p>`)
		}
		b.WriteString(`</p:txBody></p:sp><p:pic/></p:spTree></p:cSld></p:sld>`)
		return b.String()
	}
	data := buildPPTX(t, map[string]string{
		"ppt/slides/slide10.xml":           slide("Closing remarks."),
		"ppt/slides/slide2.xml":            slide("Method &amp; data.", "Results follow."),
		"ppt/slides/_rels/slide2.xml.rels": "<Relationships/>",
		"ppt/presentation.xml":             "<p:presentation/>",
	})
	path := writeFile(t, "talk.pptx", data)

	pages, err := PPTXParser{}.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(pages) != 2 || pages[0].Number != 2 || pages[1].Number != 10 {
		t.Fatalf("pages = %+v, want slides 2 and 10", pages)
	}
	if got := textOf(pages[0]); strings.Join(got, "|") != "Method & data.|Results follow." {
		t.Errorf("slide 2 text = %q", got)
	}
	if got := textOf(pages[1]); len(got) != 1 || got[0] != "Closing remarks." {
		t.Errorf("slide 10 text = %q", got)
	}
}

package epub

import (
	"archive/zip"
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/types"
)

func sampleChapter() types.ProcessedChapter {
	return types.ProcessedChapter{
		Title:      "The Boy Who Lived",
		TotalWords: 6,
		Paragraphs: []types.Paragraph{
			{ID: 1, Content: []types.Segment{
				{Type: "character", Text: "Harry"},
				{Type: types.SegmentNarrative, Text: " said, "},
				{Type: types.SegmentDialogue, Text: `"Fish & <chips>"`},
			}},
			{ID: 2, Content: []types.Segment{
				{Type: types.SegmentNarrative, Text: "Off to "},
				{Type: "place", Text: "Hogwarts"},
			}},
		},
	}
}

func TestRenderParagraphs(t *testing.T) {
	got := RenderParagraphs(sampleChapter())
	want := `<p id="p1"><span class="seg-character">Harry</span> said, <span class="seg-dialogue">&quot;Fish &amp; &lt;chips&gt;&quot;</span></p>
<p id="p2">Off to <span class="seg-place">Hogwarts</span></p>
`
	if got != want {
		t.Errorf("RenderParagraphs() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderParagraphs_Empty(t *testing.T) {
	if got := RenderParagraphs(types.ProcessedChapter{}); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestSegmentClass(t *testing.T) {
	tests := []struct {
		in   types.SegmentType
		want string
	}{
		{types.SegmentDialogue, "seg-dialogue"},
		{"character", "seg-character"},
		{"Magic Item", "seg-magic-item"},
		{`x"><script`, "seg-x---script"},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := SegmentClass(tt.in); got != tt.want {
				t.Errorf("SegmentClass(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChapterXHTML(t *testing.T) {
	doc := ChapterXHTML("One & Two", sampleChapter(), "")
	for _, want := range []string{
		"<title>One &amp; Two</title>",
		`<h1 class="chapter-title">One &amp; Two</h1>`,
		`<span class="seg-place">Hogwarts</span>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if strings.Contains(doc, "stylesheet") {
		t.Error("no stylesheet link expected")
	}
}

func readZip(t *testing.T, data []byte) (map[string]string, []*zip.File) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = string(b)
	}
	return files, zr.File
}

func TestBuilder_WriteTo(t *testing.T) {
	book := Book{ID: "bae-123", Title: "Stone", Author: "J. K.", UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	chapters := []Chapter{
		{ID: "ch_001", Number: 1, Title: "The Boy Who Lived", Content: sampleChapter()},
		{ID: "ch_002", Number: 2, Content: types.ProcessedChapter{}},
	}
	builder := NewBuilder(book, chapters)

	buf, err := builder.BuildToBuffer()
	if err != nil {
		t.Fatalf("BuildToBuffer() error = %v", err)
	}
	files, ordered := readZip(t, buf.Bytes())

	if ordered[0].Name != "mimetype" || ordered[0].Method != zip.Store {
		t.Errorf("mimetype must be first and stored, got %s method %d", ordered[0].Name, ordered[0].Method)
	}
	if files["mimetype"] != "application/epub+zip" {
		t.Errorf("unexpected mimetype %q", files["mimetype"])
	}

	for _, name := range []string{
		"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/nav.xhtml",
		"OEBPS/toc.ncx", "OEBPS/styles/style.css",
		"OEBPS/chapters/ch_001.xhtml", "OEBPS/chapters/ch_002.xhtml",
	} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}

	id := builder.Identifier()
	if !strings.Contains(files["OEBPS/content.opf"], id) || !strings.Contains(files["OEBPS/toc.ncx"], id) {
		t.Error("package and NCX must share the identifier")
	}
	if !strings.Contains(files["OEBPS/content.opf"], "2024-05-01T00:00:00Z") {
		t.Error("modified timestamp should come from the book")
	}
	if !strings.Contains(files["OEBPS/nav.xhtml"], "Chapter 1: The Boy Who Lived") {
		t.Error("nav should number chapters")
	}
	if !strings.Contains(files["OEBPS/chapters/ch_002.xhtml"], "<title>Chapter 2</title>") {
		t.Error("untitled chapter should fall back to its number")
	}
	if !strings.Contains(files["OEBPS/styles/style.css"], ".seg-character") {
		t.Error("stylesheet should style entity segments")
	}
}

func TestBuilder_StableIdentifier(t *testing.T) {
	a := NewBuilder(Book{ID: "bae-1"}, nil).Identifier()
	b := NewBuilder(Book{ID: "bae-1"}, nil).Identifier()
	c := NewBuilder(Book{ID: "bae-2"}, nil).Identifier()
	if a != b {
		t.Errorf("same book should keep its identifier: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different books should differ")
	}
	if !strings.HasPrefix(a, "urn:uuid:") {
		t.Errorf("unexpected identifier %s", a)
	}
}

func TestBuilder_Build(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "book.epub")
	if err := NewBuilder(Book{Title: "x"}, nil).Build(path); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
}

func TestChapterTitle(t *testing.T) {
	tests := []struct {
		number int
		title  string
		want   string
	}{
		{1, "The Boy Who Lived", "Chapter 1: The Boy Who Lived"},
		{2, "", "Chapter 2"},
		{3, "Chapter 3", "Chapter 3"},
		{0, "Prologue", "Prologue"},
		{0, "", "Untitled"},
	}
	for _, tt := range tests {
		if got := ChapterTitle(tt.number, tt.title); got != tt.want {
			t.Errorf("ChapterTitle(%d, %q) = %q, want %q", tt.number, tt.title, got, tt.want)
		}
	}
}

// Package epub renders annotated chapters as XHTML and packages them as ePub 3.0.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/types"
)

// Book contains the metadata needed for epub generation.
type Book struct {
	ID          string
	Title       string
	Author      string
	Language    string // ISO 639-1 code (e.g., "en")
	Description string
	UpdatedAt   time.Time
}

// Chapter is one annotated chapter of the book.
type Chapter struct {
	ID      string // File identifier (e.g., "ch_001")
	Number  int
	Title   string
	Content types.ProcessedChapter
}

// Builder creates ePub 3.0 files.
type Builder struct {
	book       Book
	chapters   []Chapter
	identifier string
	modified   time.Time
}

// NewBuilder creates a new epub builder. Chapters are written in the order given.
func NewBuilder(book Book, chapters []Chapter) *Builder {
	modified := book.UpdatedAt
	if modified.IsZero() {
		modified = time.Now()
	}
	return &Builder{
		book:       book,
		chapters:   chapters,
		identifier: bookIdentifier(book),
		modified:   modified.UTC(),
	}
}

// bookIdentifier derives a stable URN for the book so re-exports of the same
// book are recognised as the same publication by readers.
func bookIdentifier(book Book) string {
	if book.ID == "" {
		return "urn:uuid:" + uuid.New().String()
	}
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("folio:book:"+book.ID)).String()
}

// Identifier returns the publication identifier written to the package and NCX.
func (b *Builder) Identifier() string {
	return b.identifier
}

// Build generates the epub and writes it to the specified path.
func (b *Builder) Build(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	return b.WriteTo(f)
}

// WriteTo writes the epub to a writer.
func (b *Builder) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)

	// mimetype must be first and uncompressed
	if err := b.writeMimetype(zw); err != nil {
		return err
	}

	files := []struct {
		name    string
		content func() string
	}{
		{"META-INF/container.xml", func() string { return containerXML }},
		{"OEBPS/content.opf", b.generatePackage},
		{"OEBPS/nav.xhtml", b.generateNavigation},
		{"OEBPS/toc.ncx", b.generateNCX},
		{"OEBPS/styles/style.css", func() string { return defaultStylesheet }},
	}
	for _, f := range files {
		if err := writeFile(zw, f.name, f.content()); err != nil {
			return err
		}
	}

	for _, ch := range b.chapters {
		name := fmt.Sprintf("OEBPS/chapters/%s.xhtml", ch.ID)
		if err := writeFile(zw, name, b.generateChapterXHTML(ch)); err != nil {
			return fmt.Errorf("failed to write chapter %s: %w", ch.ID, err)
		}
	}

	return zw.Close()
}

// BuildToBuffer generates the epub and returns it as a byte buffer.
func (b *Builder) BuildToBuffer() (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *Builder) writeMimetype(zw *zip.Writer) error {
	header := &zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

func writeFile(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	_, err = io.WriteString(w, content)
	return err
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const defaultStylesheet = `/* Folio ePub Stylesheet */

body {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 1em;
  line-height: 1.6;
  margin: 1em;
  text-align: justify;
}

h1 {
  font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
  font-size: 1.8em;
  font-weight: bold;
  margin-top: 1.5em;
  margin-bottom: 0.5em;
  text-align: left;
}

p {
  margin: 0.5em 0;
  text-indent: 1.5em;
}

h1 + p {
  text-indent: 0;
}

.chapter-title {
  text-align: center;
  margin-top: 3em;
  margin-bottom: 2em;
}

.seg-dialogue {
  font-style: italic;
}

.seg-character {
  font-weight: bold;
}

.seg-place {
  font-variant: small-caps;
}

.seg-spell {
  font-style: italic;
  letter-spacing: 0.05em;
}

.seg-special {
  text-decoration: underline dotted;
}
`

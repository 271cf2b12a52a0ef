package epub

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/folio/internal/types"
)

// RenderParagraphs renders annotated paragraphs as XHTML <p> elements.
// Narrative text is written as-is; every other segment is wrapped in a span
// whose class names its type (e.g. "seg-dialogue", "seg-character").
func RenderParagraphs(pc types.ProcessedChapter) string {
	var sb strings.Builder
	for _, p := range pc.Paragraphs {
		fmt.Fprintf(&sb, "<p id=\"p%d\">", p.ID)
		for _, seg := range p.Content {
			if seg.Type == types.SegmentNarrative || seg.Type == "" {
				sb.WriteString(escapeXML(seg.Text))
				continue
			}
			sb.WriteString(`<span class="`)
			sb.WriteString(SegmentClass(seg.Type))
			sb.WriteString(`">`)
			sb.WriteString(escapeXML(seg.Text))
			sb.WriteString("</span>")
		}
		sb.WriteString("</p>\n")
	}
	return sb.String()
}

// SegmentClass returns the CSS class for a segment type. Characters outside
// [a-z0-9-] are replaced with '-'.
func SegmentClass(t types.SegmentType) string {
	var sb strings.Builder
	sb.WriteString("seg-")
	for _, r := range strings.ToLower(string(t)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// ChapterXHTML renders a standalone XHTML document for one chapter.
func ChapterXHTML(title string, pc types.ProcessedChapter, stylesheet string) string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`)
	sb.WriteString(escapeXML(title))
	sb.WriteString("</title>\n")
	if stylesheet != "" {
		fmt.Fprintf(&sb, "  <link rel=\"stylesheet\" type=\"text/css\" href=\"%s\"/>\n", escapeXML(stylesheet))
	}
	sb.WriteString("</head>\n<body>\n")

	if title != "" {
		fmt.Fprintf(&sb, "<h1 class=\"chapter-title\">%s</h1>\n", escapeXML(title))
	}
	sb.WriteString(RenderParagraphs(pc))

	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// generateChapterXHTML renders a chapter file inside the package.
func (b *Builder) generateChapterXHTML(ch Chapter) string {
	return ChapterXHTML(b.formatTitle(ch), ch.Content, "../styles/style.css")
}

// escapeXML escapes special XML characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

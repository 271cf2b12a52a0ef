package epub

import (
	"fmt"
	"strings"
)

// generateNavigation creates the nav.xhtml navigation document.
func (b *Builder) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Table of Contents</title>
  <link rel="stylesheet" type="text/css" href="styles/style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
`)

	for _, ch := range b.chapters {
		fmt.Fprintf(&sb, "      <li><a href=\"chapters/%s.xhtml\">%s</a></li>\n",
			ch.ID, escapeXML(b.formatTitle(ch)))
	}

	sb.WriteString(`    </ol>
  </nav>
</body>
</html>
`)

	return sb.String()
}

// ChapterTitle formats a chapter heading: "Chapter N: Title", "Chapter N",
// the bare title, or "Untitled".
func ChapterTitle(number int, title string) string {
	switch {
	case number > 0 && title == "":
		return fmt.Sprintf("Chapter %d", number)
	case number > 0 && title != fmt.Sprintf("Chapter %d", number):
		return fmt.Sprintf("Chapter %d: %s", number, title)
	case title == "":
		return "Untitled"
	}
	return title
}

func (b *Builder) formatTitle(ch Chapter) string {
	return ChapterTitle(ch.Number, ch.Title)
}

// generateNCX creates the toc.ncx for ePub 2 compatibility.
func (b *Builder) generateNCX() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="`)
	sb.WriteString(b.identifier)
	sb.WriteString(`"/>
    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle>
    <text>`)
	sb.WriteString(escapeXML(b.book.Title))
	sb.WriteString(`</text>
  </docTitle>
  <navMap>
`)

	for i, ch := range b.chapters {
		fmt.Fprintf(&sb, "    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", i+1, i+1)
		fmt.Fprintf(&sb, "      <navLabel><text>%s</text></navLabel>\n", escapeXML(b.formatTitle(ch)))
		fmt.Fprintf(&sb, "      <content src=\"chapters/%s.xhtml\"/>\n", ch.ID)
		sb.WriteString("    </navPoint>\n")
	}

	sb.WriteString(`  </navMap>
</ncx>
`)

	return sb.String()
}

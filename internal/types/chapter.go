// Package types provides shared types used across multiple packages.
// This package has no dependencies on other folio packages to avoid import cycles.
package types

import "strings"

// SegmentType classifies a span of paragraph text.
// Values other than the structural ones are entity categories in singular form
// (e.g. "character", "place", "spell", "special").
type SegmentType string

const (
	// SegmentNarrative is prose outside quotation marks.
	SegmentNarrative SegmentType = "narrative"
	// SegmentDialogue is quoted speech, including the quote glyphs themselves.
	SegmentDialogue SegmentType = "dialogue"
)

// IsEntity reports whether the segment type names an entity category.
func (t SegmentType) IsEntity() bool {
	return t != SegmentNarrative && t != SegmentDialogue && t != ""
}

// Segment is a contiguous span of paragraph text tagged with a single type.
type Segment struct {
	Type SegmentType `json:"type" yaml:"type"`
	Text string      `json:"text" yaml:"text"`
}

// Paragraph is one non-blank line of chapter text broken into segments.
type Paragraph struct {
	ID      int       `json:"id" yaml:"id"` // 1-based, blank lines are not numbered
	Content []Segment `json:"content" yaml:"content"`
}

// ProcessedChapter is the annotated form of a chapter.
// It is persisted verbatim next to the chapter record and rendered by clients.
type ProcessedChapter struct {
	Title      string      `json:"title" yaml:"title"`
	TotalWords int         `json:"totalWords" yaml:"totalWords"`
	Paragraphs []Paragraph `json:"paragraphs" yaml:"paragraphs"`
}

// Text returns the concatenated segment text of the paragraph with the given ID.
// Returns false if no such paragraph exists.
func (pc ProcessedChapter) Text(paragraphID int) (string, bool) {
	for _, p := range pc.Paragraphs {
		if p.ID != paragraphID {
			continue
		}
		var sb strings.Builder
		for _, seg := range p.Content {
			sb.WriteString(seg.Text)
		}
		return sb.String(), true
	}
	return "", false
}

// EntityCounts returns how many entity segments of each category the chapter holds.
func (pc ProcessedChapter) EntityCounts() map[SegmentType]int {
	counts := make(map[SegmentType]int)
	for _, p := range pc.Paragraphs {
		for _, seg := range p.Content {
			if seg.Type.IsEntity() {
				counts[seg.Type]++
			}
		}
	}
	return counts
}

// Dictionary maps a plural entity category (e.g. "characters") to the entity
// strings registered for a book.
type Dictionary map[string][]string

package annotate

import (
	"strings"

	"github.com/jackzampolin/folio/internal/types"
)

// ProcessChapterContent annotates a chapter. The dictionary is first narrowed
// to entries that actually occur in text, then indexed, then every non-blank
// line is segmented as one paragraph.
func ProcessChapterContent(text, title string, dict types.Dictionary) types.ProcessedChapter {
	idx := BuildIndex(FilterPresent(dict, strings.ToLower(text)))
	return ProcessWithIndex(text, title, idx)
}

// ProcessWithIndex annotates a chapter against a prebuilt index.
// Indexing entities absent from text changes nothing, since they can never
// match, so an index built from a book's whole dictionary gives the same
// result as the per-chapter filtered one.
func ProcessWithIndex(text, title string, idx *Index) types.ProcessedChapter {
	pc := types.ProcessedChapter{
		Title:      title,
		TotalWords: CountWords(text),
		Paragraphs: []types.Paragraph{},
	}

	id := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		id++
		pc.Paragraphs = append(pc.Paragraphs, types.Paragraph{
			ID:      id,
			Content: segmentParagraph(line, idx),
		})
	}
	return pc
}

// CountWords counts whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// MergeSegments joins adjacent segments that share a type.
func MergeSegments(segs []types.Segment) []types.Segment {
	merged := make([]types.Segment, 0, len(segs))
	for _, seg := range segs {
		if n := len(merged); n > 0 && merged[n-1].Type == seg.Type {
			merged[n-1].Text += seg.Text
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

func isQuote(r rune) bool {
	return r == '"' || r == '“' || r == '”'
}

// closingQuote pairs a curly opener with a curly closer; anything else closes
// with a straight quote.
func closingQuote(open rune) string {
	if open == '“' {
		return "”"
	}
	return `"`
}

func indexQuote(text []rune, from int) int {
	for i := from; i < len(text); i++ {
		if isQuote(text[i]) {
			return i
		}
	}
	return -1
}

// segmentParagraph splits a paragraph into narrative and dialogue spans, each
// further split on entity matches, and merges same-type neighbours.
// Quote glyphs are not told apart when searching: a stray closing quote opens
// dialogue just like an opening one.
func segmentParagraph(paragraph string, idx *Index) []types.Segment {
	var out []types.Segment
	remaining := []rune(paragraph)
	maxIterations := 2 * len(remaining)

	for i := 0; len(remaining) > 0 && i < maxIterations; i++ {
		q := indexQuote(remaining, 0)
		if q < 0 {
			out = appendTextSegments(out, remaining, idx, types.SegmentNarrative)
			break
		}
		if q > 0 {
			out = appendTextSegments(out, remaining[:q], idx, types.SegmentNarrative)
		}

		open := remaining[q]
		out = append(out, types.Segment{Type: types.SegmentDialogue, Text: string(open)})

		end := indexQuote(remaining, q+1)
		if end < 0 {
			// Unterminated: the rest of the paragraph is dialogue.
			out = appendTextSegments(out, remaining[q+1:], idx, types.SegmentDialogue)
			break
		}

		out = appendTextSegments(out, remaining[q+1:end], idx, types.SegmentDialogue)
		out = append(out, types.Segment{Type: types.SegmentDialogue, Text: closingQuote(open)})
		remaining = remaining[end+1:]
	}

	return MergeSegments(out)
}

// appendTextSegments splits a quote-free span on entity matches. Text between
// entities keeps the base type; entities are emitted with their canonical
// casing and singular category.
func appendTextSegments(out []types.Segment, text []rune, idx *Index, base types.SegmentType) []types.Segment {
	for len(text) > 0 {
		pos, m, ok := earliestMatch(text, idx)
		if !ok {
			return append(out, types.Segment{Type: base, Text: string(text)})
		}
		if pos > 0 {
			out = append(out, types.Segment{Type: base, Text: string(text[:pos])})
		}
		out = append(out, types.Segment{Type: types.SegmentType(m.Category), Text: m.Text})
		text = text[pos+m.Length:]
	}
	return out
}

// earliestMatch finds the first offset whose longest match sits on word
// boundaries. Only the longest match at an offset is considered; a shorter
// entity is not tried when the longest one fails the boundary check.
func earliestMatch(text []rune, idx *Index) (int, Match, bool) {
	if idx.Len() == 0 {
		return 0, Match{}, false
	}
	for i := range text {
		m, ok := idx.LongestMatch(text, i)
		if ok && onWordBoundary(text, i, m.Length) {
			return i, m, true
		}
	}
	return 0, Match{}, false
}

func onWordBoundary(text []rune, start, length int) bool {
	if start > 0 && isASCIIAlnum(text[start-1]) {
		return false
	}
	if end := start + length; end < len(text) && isASCIIAlnum(text[end]) {
		return false
	}
	return true
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

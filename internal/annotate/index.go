// Package annotate segments chapter prose into narrative, dialogue, and
// entity-tagged spans using a book's entity dictionary.
//
// Everything here is pure: no I/O, no shared mutable state. Each call to
// ProcessChapterContent builds its own Index, so concurrent calls need no
// coordination. An Index that has finished building is never mutated again and
// may be shared read-only between goroutines (see IndexCache).
package annotate

import (
	"strings"
	"unicode"
)

// node is a prefix-tree node keyed by lowercase rune.
type node struct {
	children map[rune]*node
	terminal bool
	category string // singular, e.g. "character"
	text     string // original-case entity text
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Index is a case-insensitive prefix tree of entity strings.
type Index struct {
	root *node
	size int
}

// Match is the longest entity found at a text offset.
type Match struct {
	Text     string // canonical (original-case) entity text
	Category string // singular category
	Length   int    // match length in runes
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{root: newNode()}
}

// Insert adds word under category. Matching is case-insensitive but the
// original casing of word is what LongestMatch reports.
// Inserting a word that lowercases to an existing entry overwrites its
// category and text. Blank words are ignored.
func (idx *Index) Insert(word, category string) {
	if category == "" || strings.TrimSpace(word) == "" {
		return
	}
	n := idx.root
	for _, r := range word {
		r = unicode.ToLower(r)
		child, ok := n.children[r]
		if !ok {
			child = newNode()
			n.children[r] = child
		}
		n = child
	}
	if !n.terminal {
		idx.size++
	}
	n.terminal = true
	n.category = category
	n.text = word
}

// LongestMatch walks the tree from text[start] and returns the longest entity
// whose every rune matches. The walk continues past terminal nodes, so
// "Harry Potter" wins over "Harry" when both are indexed.
func (idx *Index) LongestMatch(text []rune, start int) (Match, bool) {
	if idx == nil || idx.size == 0 || start < 0 {
		return Match{}, false
	}

	var (
		best  Match
		found bool
		n     = idx.root
	)
	for i := start; i < len(text); i++ {
		child, ok := n.children[unicode.ToLower(text[i])]
		if !ok {
			break
		}
		n = child
		if n.terminal {
			best = Match{Text: n.text, Category: n.category, Length: i - start + 1}
			found = true
		}
	}
	return best, found
}

// Len returns the number of distinct entities in the index.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return idx.size
}

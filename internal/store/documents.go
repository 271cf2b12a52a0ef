package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/types"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func bookDocument(b Book) (map[string]any, error) {
	dict, err := json.Marshal(b.Dictionary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dictionary: %w", err)
	}
	return map[string]any{
		"title":              b.Title,
		"description":        b.Description,
		"language":           b.Language,
		"genre":              b.Genre,
		"tags":               nonNil(b.Tags),
		"authors":            nonNil(b.Authors),
		"status":             b.Status,
		"is_completed":       b.IsCompleted,
		"is_premium":         b.IsPremium,
		"dictionary":         string(dict),
		"dictionary_version": b.DictionaryVersion,
		"created_at":         formatTime(b.CreatedAt),
		"updated_at":         formatTime(b.UpdatedAt),
	}, nil
}

// ChapterDocument converts a chapter into DefraDB input fields. The
// annotated content is stored as a JSON string alongside its summary counts.
func ChapterDocument(ch Chapter) (map[string]any, error) {
	if ch.Content.Paragraphs == nil {
		ch.Content.Paragraphs = []types.Paragraph{}
	}
	content, err := json.Marshal(ch.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode processed content: %w", err)
	}
	return map[string]any{
		"book_id":            ch.BookID,
		"title":              ch.Title,
		"text":               ch.Text,
		"number":             ch.Number,
		"processed_content":  string(content),
		"dictionary_version": ch.DictionaryVersion,
		"total_words":        ch.Content.TotalWords,
		"paragraph_count":    len(ch.Content.Paragraphs),
		"is_completed":       ch.IsCompleted,
		"image_urls":         nonNil(ch.ImageURLs),
		"authors":            nonNil(ch.Authors),
		"created_at":         formatTime(ch.CreatedAt),
		"updated_at":         formatTime(ch.UpdatedAt),
	}, nil
}

// AnnotationDocument holds only the fields a re-annotation run owns, so it
// never overwrites text or metadata edited while the run was in flight.
func AnnotationDocument(ch Chapter) (map[string]any, error) {
	if ch.Content.Paragraphs == nil {
		ch.Content.Paragraphs = []types.Paragraph{}
	}
	content, err := json.Marshal(ch.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode processed content: %w", err)
	}
	return map[string]any{
		"processed_content":  string(content),
		"dictionary_version": ch.DictionaryVersion,
		"total_words":        ch.Content.TotalWords,
		"paragraph_count":    len(ch.Content.Paragraphs),
		"updated_at":         formatTime(ch.UpdatedAt),
	}, nil
}

func bookFromDoc(doc map[string]any) (*Book, error) {
	dict, err := annotate.DecodeDictionary([]byte(str(doc, "dictionary")))
	if err != nil {
		return nil, fmt.Errorf("book %s: %w", str(doc, "_docID"), err)
	}
	status := str(doc, "status")
	if status == "" {
		status = StatusDraft
	}
	return &Book{
		ID:                str(doc, "_docID"),
		Title:             str(doc, "title"),
		Description:       str(doc, "description"),
		Language:          str(doc, "language"),
		Genre:             str(doc, "genre"),
		Tags:              strSlice(doc, "tags"),
		Authors:           strSlice(doc, "authors"),
		Status:            status,
		IsCompleted:       boolVal(doc, "is_completed"),
		IsPremium:         boolVal(doc, "is_premium"),
		Dictionary:        dict,
		DictionaryVersion: str(doc, "dictionary_version"),
		CreatedAt:         timeVal(doc, "created_at"),
		UpdatedAt:         timeVal(doc, "updated_at"),
	}, nil
}

func chapterFromDoc(doc map[string]any) (*Chapter, error) {
	ch := &Chapter{
		ID:                str(doc, "_docID"),
		BookID:            str(doc, "book_id"),
		Title:             str(doc, "title"),
		Text:              str(doc, "text"),
		Number:            intVal(doc, "number"),
		DictionaryVersion: str(doc, "dictionary_version"),
		IsCompleted:       boolVal(doc, "is_completed"),
		ImageURLs:         strSlice(doc, "image_urls"),
		Authors:           strSlice(doc, "authors"),
		CreatedAt:         timeVal(doc, "created_at"),
		UpdatedAt:         timeVal(doc, "updated_at"),
	}
	if raw := str(doc, "processed_content"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ch.Content); err != nil {
			return nil, fmt.Errorf("chapter %s: failed to decode processed content: %w", ch.ID, err)
		}
	}
	if ch.Content.Paragraphs == nil {
		ch.Content.Paragraphs = []types.Paragraph{}
	}
	return ch, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func str(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func intVal(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func boolVal(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func strSlice(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeVal(doc map[string]any, key string) time.Time {
	t, err := time.Parse(timeLayout, str(doc, key))
	if err != nil {
		return time.Time{}
	}
	return t
}

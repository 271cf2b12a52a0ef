// Package store persists books and annotated chapters in DefraDB.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/types"
)

// Collection names, matching internal/schema.
const (
	BookCollection    = "Book"
	ChapterCollection = "Chapter"
)

// Book lifecycle states.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for IDs that are unsafe to put in a query.
	ErrInvalidID = errors.New("invalid id")
)

// Book is a manuscript and the entity dictionary used to annotate its chapters.
type Book struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description,omitempty"`
	Language          string           `json:"language,omitempty"`
	Genre             string           `json:"genre,omitempty"`
	Tags              []string         `json:"tags"`
	Authors           []string         `json:"authors"`
	Status            string           `json:"status"`
	IsCompleted       bool             `json:"is_completed"`
	IsPremium         bool             `json:"is_premium"`
	Dictionary        types.Dictionary `json:"dictionary"`
	DictionaryVersion string           `json:"dictionary_version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// HasAuthor reports whether authorID is one of the book's authors.
func (b *Book) HasAuthor(authorID string) bool {
	for _, a := range b.Authors {
		if a == authorID {
			return true
		}
	}
	return false
}

// Chapter is a chapter's source text and its annotated form.
type Chapter struct {
	ID                string                 `json:"id"`
	BookID            string                 `json:"book_id"`
	Title             string                 `json:"title"`
	Text              string                 `json:"text"`
	Number            int                    `json:"number"`
	Content           types.ProcessedChapter `json:"processed_content"`
	DictionaryVersion string                 `json:"dictionary_version"`
	IsCompleted       bool                   `json:"is_completed"`
	ImageURLs         []string               `json:"image_urls"`
	Authors           []string               `json:"authors"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

var bookFields = []string{
	"_docID", "title", "description", "language", "genre", "tags", "authors",
	"status", "is_completed", "is_premium",
	"dictionary", "dictionary_version", "created_at", "updated_at",
}

// BookFilter narrows a book listing. Zero fields match everything.
type BookFilter struct {
	Title       string // case-insensitive substring
	Author      string
	Status      string
	Genre       string
	IsCompleted *bool
	IsPremium   *bool
	Offset      int
	Limit       int
}

func (f BookFilter) apply(q *defra.QueryBuilder) *defra.QueryBuilder {
	if f.Title != "" {
		q.FilterILike("title", "%"+f.Title+"%")
	}
	if f.Author != "" {
		q.FilterContains("authors", f.Author)
	}
	if f.Status != "" {
		q.Filter("status", f.Status)
	}
	if f.Genre != "" {
		q.Filter("genre", f.Genre)
	}
	if f.IsCompleted != nil {
		q.Filter("is_completed", *f.IsCompleted)
	}
	if f.IsPremium != nil {
		q.Filter("is_premium", *f.IsPremium)
	}
	return q
}

var chapterFields = []string{
	"_docID", "book_id", "title", "text", "number", "processed_content",
	"dictionary_version", "is_completed", "image_urls", "authors",
	"created_at", "updated_at",
}

// DefraStore implements book and chapter persistence over a DefraDB client.
type DefraStore struct {
	client *defra.Client
	now    func() time.Time
}

// New creates a DefraDB-backed store.
func New(client *defra.Client) *DefraStore {
	return &DefraStore{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func checkID(id string) error {
	if err := defra.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return nil
}

// CreateBook stores a new book and returns it with ID and timestamps set.
func (s *DefraStore) CreateBook(ctx context.Context, b Book) (*Book, error) {
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Status == "" {
		b.Status = StatusDraft
	}
	if b.Dictionary == nil {
		b.Dictionary = types.Dictionary{}
	}
	b.DictionaryVersion = annotate.DictionaryVersion(b.Dictionary)

	doc, err := bookDocument(b)
	if err != nil {
		return nil, err
	}
	id, err := s.client.Create(ctx, BookCollection, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	b.ID = id
	return &b, nil
}

// GetBook loads a book by ID.
func (s *DefraStore) GetBook(ctx context.Context, id string) (*Book, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	docs, err := defra.NewQuery(BookCollection).
		Filter("_docID", id).
		Fields(bookFields...).
		Docs(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to query book %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return bookFromDoc(docs[0])
}

// ListBooks returns one page of the books matching filter, newest first,
// along with the total number of matches.
func (s *DefraStore) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	total, err := s.CountBooks(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	q := filter.apply(defra.NewQuery(BookCollection)).
		Fields(bookFields...).
		OrderBy("created_at", "DESC")
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q.Offset(filter.Offset)
	}
	docs, err := q.Docs(ctx, s.client)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}

	books := make([]Book, 0, len(docs))
	for _, doc := range docs {
		b, err := bookFromDoc(doc)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, *b)
	}
	sort.SliceStable(books, func(i, j int) bool {
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})
	return books, total, nil
}

// CountBooks returns the number of books matching filter, ignoring paging.
func (s *DefraStore) CountBooks(ctx context.Context, filter BookFilter) (int, error) {
	docs, err := filter.apply(defra.NewQuery(BookCollection)).Docs(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return len(docs), nil
}

// UpdateBook writes a book's editable metadata and bumps updated_at. Authors,
// status and dictionary have their own writers.
func (s *DefraStore) UpdateBook(ctx context.Context, b *Book) error {
	if err := checkID(b.ID); err != nil {
		return err
	}
	b.UpdatedAt = s.now()

	err := s.client.Update(ctx, BookCollection, b.ID, map[string]any{
		"title":        b.Title,
		"description":  b.Description,
		"language":     b.Language,
		"genre":        b.Genre,
		"tags":         nonNil(b.Tags),
		"is_completed": b.IsCompleted,
		"is_premium":   b.IsPremium,
		"updated_at":   formatTime(b.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to update book %s: %w", b.ID, err)
	}
	return nil
}

// SetBookStatus moves a book to status.
func (s *DefraStore) SetBookStatus(ctx context.Context, id, status string) error {
	if err := checkID(id); err != nil {
		return err
	}
	err := s.client.Update(ctx, BookCollection, id, map[string]any{
		"status":     status,
		"updated_at": formatTime(s.now()),
	})
	if err != nil {
		return fmt.Errorf("failed to set status of book %s: %w", id, err)
	}
	return nil
}

// UpdateDictionary replaces a book's dictionary and returns the new version.
func (s *DefraStore) UpdateDictionary(ctx context.Context, id string, dict types.Dictionary) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	if dict == nil {
		dict = types.Dictionary{}
	}
	data, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("failed to encode dictionary: %w", err)
	}
	version := annotate.DictionaryVersion(dict)

	err = s.client.Update(ctx, BookCollection, id, map[string]any{
		"dictionary":         string(data),
		"dictionary_version": version,
		"updated_at":         formatTime(s.now()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to update dictionary for book %s: %w", id, err)
	}
	return version, nil
}

// DeleteBook removes a book. Its chapters are left for the caller to remove.
func (s *DefraStore) DeleteBook(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.client.Delete(ctx, BookCollection, id); err != nil {
		return fmt.Errorf("failed to delete book %s: %w", id, err)
	}
	return nil
}

// CreateChapter stores a new chapter and returns it with ID and timestamps set.
func (s *DefraStore) CreateChapter(ctx context.Context, ch Chapter) (*Chapter, error) {
	if err := checkID(ch.BookID); err != nil {
		return nil, err
	}
	now := s.now()
	ch.CreatedAt, ch.UpdatedAt = now, now

	doc, err := ChapterDocument(ch)
	if err != nil {
		return nil, err
	}
	id, err := s.client.Create(ctx, ChapterCollection, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create chapter: %w", err)
	}
	ch.ID = id
	return &ch, nil
}

// GetChapter loads a chapter by ID.
func (s *DefraStore) GetChapter(ctx context.Context, id string) (*Chapter, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	docs, err := defra.NewQuery(ChapterCollection).
		Filter("_docID", id).
		Fields(chapterFields...).
		Docs(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapter %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("chapter %s: %w", id, ErrNotFound)
	}
	return chapterFromDoc(docs[0])
}

// ListChapters returns a book's chapters ordered by number, then creation time.
func (s *DefraStore) ListChapters(ctx context.Context, bookID string) ([]Chapter, error) {
	if err := checkID(bookID); err != nil {
		return nil, err
	}
	docs, err := defra.NewQuery(ChapterCollection).
		Filter("book_id", bookID).
		Fields(chapterFields...).
		OrderBy("number", "ASC").
		Docs(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters for book %s: %w", bookID, err)
	}

	chapters := make([]Chapter, 0, len(docs))
	for _, doc := range docs {
		ch, err := chapterFromDoc(doc)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, *ch)
	}
	SortChapters(chapters)
	return chapters, nil
}

// UpdateChapter writes every mutable chapter field and bumps updated_at.
func (s *DefraStore) UpdateChapter(ctx context.Context, ch *Chapter) error {
	if err := checkID(ch.ID); err != nil {
		return err
	}
	ch.UpdatedAt = s.now()

	doc, err := ChapterDocument(*ch)
	if err != nil {
		return err
	}
	delete(doc, "created_at")
	if err := s.client.Update(ctx, ChapterCollection, ch.ID, doc); err != nil {
		return fmt.Errorf("failed to update chapter %s: %w", ch.ID, err)
	}
	return nil
}

// UpdateAnnotation writes a chapter's annotated content and dictionary
// version, leaving its text and metadata untouched.
func (s *DefraStore) UpdateAnnotation(ctx context.Context, ch *Chapter) error {
	if err := checkID(ch.ID); err != nil {
		return err
	}
	ch.UpdatedAt = s.now()

	doc, err := AnnotationDocument(*ch)
	if err != nil {
		return err
	}
	if err := s.client.Update(ctx, ChapterCollection, ch.ID, doc); err != nil {
		return fmt.Errorf("failed to update annotation for chapter %s: %w", ch.ID, err)
	}
	return nil
}

// DeleteChapter removes a chapter.
func (s *DefraStore) DeleteChapter(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.client.Delete(ctx, ChapterCollection, id); err != nil {
		return fmt.Errorf("failed to delete chapter %s: %w", id, err)
	}
	return nil
}

// SortChapters orders chapters by number, then creation time.
func SortChapters(chapters []Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		if chapters[i].Number != chapters[j].Number {
			return chapters[i].Number < chapters[j].Number
		}
		return chapters[i].CreatedAt.Before(chapters[j].CreatedAt)
	})
}

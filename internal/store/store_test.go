package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/types"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type gqlServer struct {
	mu       sync.Mutex
	requests []defra.GQLRequest
}

func (g *gqlServer) Requests() []defra.GQLRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]defra.GQLRequest(nil), g.requests...)
}

// newTestStore returns a store whose DefraDB answers every request with respond.
func newTestStore(t *testing.T, respond func(req defra.GQLRequest) any) (*DefraStore, *gqlServer) {
	t.Helper()
	g := &gqlServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req defra.GQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(respond(req))
	}))
	t.Cleanup(server.Close)

	s := New(defra.NewClient(server.URL, defra.WithRetry(1, 0)))
	s.now = func() time.Time { return fixedNow }
	return s, g
}

func data(key string, docs ...map[string]any) map[string]any {
	list := make([]any, len(docs))
	for i, d := range docs {
		list[i] = d
	}
	return map[string]any{"data": map[string]any{key: list}}
}

func TestCreateBook(t *testing.T) {
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		return data("create_Book", map[string]any{"_docID": "bae-book1"})
	})

	dict := types.Dictionary{"characters": {"Alice"}}
	b, err := s.CreateBook(context.Background(), Book{Title: "Wonderland", Authors: []string{"u1"}, Dictionary: dict})
	if err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	if b.ID != "bae-book1" {
		t.Errorf("ID = %q, want bae-book1", b.ID)
	}
	if b.DictionaryVersion != annotate.DictionaryVersion(dict) {
		t.Errorf("DictionaryVersion = %q, want %q", b.DictionaryVersion, annotate.DictionaryVersion(dict))
	}
	if !b.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", b.CreatedAt, fixedNow)
	}

	q := g.Requests()[0].Query
	if b.Status != StatusDraft {
		t.Errorf("Status = %q, want draft", b.Status)
	}
	for _, want := range []string{"create_Book", `title: "Wonderland"`, `authors: ["u1"]`, `status: "draft"`, `dictionary_version: "` + b.DictionaryVersion + `"`} {
		if !strings.Contains(q, want) {
			t.Errorf("mutation missing %q: %s", want, q)
		}
	}
}

func TestGetBook(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s, g := newTestStore(t, func(req defra.GQLRequest) any {
			return data("Book", map[string]any{
				"_docID":             "bae-book1",
				"title":              "Wonderland",
				"authors":            []any{"u1", "u2"},
				"dictionary":         `{"places":["Oz"]}`,
				"dictionary_version": "abcd",
				"created_at":         fixedNow.Format(time.RFC3339Nano),
			})
		})

		b, err := s.GetBook(context.Background(), "bae-book1")
		if err != nil {
			t.Fatalf("GetBook() error = %v", err)
		}
		if b.Title != "Wonderland" || len(b.Authors) != 2 {
			t.Errorf("unexpected book %+v", b)
		}
		if got := b.Dictionary["places"]; len(got) != 1 || got[0] != "Oz" {
			t.Errorf("dictionary not decoded: %v", b.Dictionary)
		}
		if !b.HasAuthor("u2") || b.HasAuthor("u3") {
			t.Error("HasAuthor mismatch")
		}
		if !b.CreatedAt.Equal(fixedNow) {
			t.Errorf("CreatedAt = %v", b.CreatedAt)
		}

		req := g.Requests()[0]
		if req.Variables["v0"] != "bae-book1" {
			t.Errorf("expected ID as variable, got %v", req.Variables)
		}
	})

	t.Run("missing", func(t *testing.T) {
		s, _ := newTestStore(t, func(req defra.GQLRequest) any {
			return data("Book")
		})
		_, err := s.GetBook(context.Background(), "bae-none")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unsafe id", func(t *testing.T) {
		s, g := newTestStore(t, func(req defra.GQLRequest) any { return data("Book") })
		_, err := s.GetBook(context.Background(), `x"}) { _docID } }`)
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("expected ErrInvalidID, got %v", err)
		}
		if len(g.Requests()) != 0 {
			t.Error("unsafe id must not reach the database")
		}
	})

	t.Run("query error", func(t *testing.T) {
		s, _ := newTestStore(t, func(req defra.GQLRequest) any {
			return map[string]any{"errors": []any{map[string]any{"message": "boom"}}}
		})
		_, err := s.GetBook(context.Background(), "bae-book1")
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("expected query error, got %v", err)
		}
	})
}

func TestListBooks_NewestFirst(t *testing.T) {
	s, _ := newTestStore(t, func(req defra.GQLRequest) any {
		return data("Book",
			map[string]any{"_docID": "old", "created_at": fixedNow.Add(-time.Hour).Format(time.RFC3339Nano)},
			map[string]any{"_docID": "new", "created_at": fixedNow.Format(time.RFC3339Nano), "status": "published"},
		)
	})

	books, total, err := s.ListBooks(context.Background(), BookFilter{})
	if err != nil {
		t.Fatalf("ListBooks() error = %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(books) != 2 || books[0].ID != "new" {
		t.Errorf("unexpected order %+v", books)
	}
	if books[1].Dictionary == nil {
		t.Error("missing dictionary should decode to an empty map")
	}
	if books[0].Status != StatusPublished || books[1].Status != StatusDraft {
		t.Errorf("status = %q, %q; missing status should read as draft", books[0].Status, books[1].Status)
	}
}

func TestListBooks_Filters(t *testing.T) {
	completed := true
	tests := []struct {
		name      string
		filter    BookFilter
		wantQuery []string
		wantVars  map[string]any
	}{
		{
			name:      "title is a case-insensitive substring",
			filter:    BookFilter{Title: "rabbit"},
			wantQuery: []string{"title: {_ilike: $v0}"},
			wantVars:  map[string]any{"v0": "%rabbit%"},
		},
		{
			name:      "author matches any array element",
			filter:    BookFilter{Author: "alice"},
			wantQuery: []string{"authors: {_any: {_eq: $v0}}"},
			wantVars:  map[string]any{"v0": "alice"},
		},
		{
			name:      "status and completion",
			filter:    BookFilter{Status: StatusPublished, IsCompleted: &completed},
			wantQuery: []string{"status: {_eq: $v0}", "is_completed: {_eq: $v1}", "$v1: Boolean"},
			wantVars:  map[string]any{"v0": "published", "v1": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, g := newTestStore(t, func(req defra.GQLRequest) any { return data("Book") })
			if _, _, err := s.ListBooks(context.Background(), tt.filter); err != nil {
				t.Fatalf("ListBooks() error = %v", err)
			}
			reqs := g.Requests()
			if len(reqs) != 2 {
				t.Fatalf("expected count and page queries, got %d", len(reqs))
			}
			for _, req := range reqs {
				for _, want := range tt.wantQuery {
					if !strings.Contains(req.Query, want) {
						t.Errorf("query missing %q: %s", want, req.Query)
					}
				}
				for k, v := range tt.wantVars {
					if req.Variables[k] != v {
						t.Errorf("var %s = %v, want %v", k, req.Variables[k], v)
					}
				}
			}
		})
	}
}

func TestListBooks_Paging(t *testing.T) {
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		docs := []map[string]any{{"_docID": "a"}, {"_docID": "b"}, {"_docID": "c"}}
		if strings.Contains(req.Query, "limit:") {
			docs = docs[1:2]
		}
		return data("Book", docs...)
	})

	books, total, err := s.ListBooks(context.Background(), BookFilter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListBooks() error = %v", err)
	}
	if total != 3 || len(books) != 1 || books[0].ID != "b" {
		t.Errorf("total=%d books=%+v", total, books)
	}

	reqs := g.Requests()
	if strings.Contains(reqs[0].Query, "limit") || strings.Contains(reqs[0].Query, "offset") {
		t.Errorf("count query must not page: %s", reqs[0].Query)
	}
	if !strings.Contains(reqs[1].Query, "limit: 1, offset: 1") || !strings.Contains(reqs[1].Query, "order: {created_at: DESC}") {
		t.Errorf("unexpected page query %s", reqs[1].Query)
	}
}

func TestUpdateBookAndStatus(t *testing.T) {
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		return data("update_Book", map[string]any{"_docID": "bae-book1"})
	})
	ctx := context.Background()

	b := &Book{ID: "bae-book1", Title: "Renamed", Genre: "fantasy", IsPremium: true, Authors: []string{"u1"}}
	if err := s.UpdateBook(ctx, b); err != nil {
		t.Fatalf("UpdateBook() error = %v", err)
	}
	if !b.UpdatedAt.Equal(fixedNow) {
		t.Errorf("UpdatedAt = %v", b.UpdatedAt)
	}
	q := g.Requests()[0].Query
	for _, want := range []string{`update_Book(docID: "bae-book1"`, `title: "Renamed"`, `genre: "fantasy"`, "is_premium: true", "tags: []"} {
		if !strings.Contains(q, want) {
			t.Errorf("mutation missing %q: %s", want, q)
		}
	}
	for _, field := range []string{"authors", "dictionary", "status"} {
		if strings.Contains(q, field+":") {
			t.Errorf("metadata update must not write %s: %s", field, q)
		}
	}

	if err := s.SetBookStatus(ctx, "bae-book1", StatusPublished); err != nil {
		t.Fatalf("SetBookStatus() error = %v", err)
	}
	if q := g.Requests()[1].Query; !strings.Contains(q, `status: "published"`) {
		t.Errorf("unexpected mutation %s", q)
	}

	if err := s.SetBookStatus(ctx, `bad"id`, StatusPublished); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

func TestDeleteBook(t *testing.T) {
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		return data("delete_Book", map[string]any{"_docID": "bae-book1"})
	})
	if err := s.DeleteBook(context.Background(), "bae-book1"); err != nil {
		t.Fatalf("DeleteBook() error = %v", err)
	}
	if q := g.Requests()[0].Query; !strings.Contains(q, `delete_Book(docID: "bae-book1")`) {
		t.Errorf("unexpected mutation %s", q)
	}
}

func TestUpdateDictionary(t *testing.T) {
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		return data("update_Book", map[string]any{"_docID": "bae-book1"})
	})

	dict := types.Dictionary{"items": {"Sword"}}
	version, err := s.UpdateDictionary(context.Background(), "bae-book1", dict)
	if err != nil {
		t.Fatalf("UpdateDictionary() error = %v", err)
	}
	if version != annotate.DictionaryVersion(dict) {
		t.Errorf("version = %q", version)
	}
	q := g.Requests()[0].Query
	if !strings.Contains(q, `update_Book(docID: "bae-book1"`) {
		t.Errorf("unexpected mutation %s", q)
	}
	if !strings.Contains(q, `dictionary: "{\"items\":[\"Sword\"]}"`) {
		t.Errorf("dictionary not stored as JSON string: %s", q)
	}
}

func TestListChapters_Sorted(t *testing.T) {
	content := `{"title":"One","totalWords":2,"paragraphs":[{"id":1,"content":[{"type":"narrative","text":"Hi there"}]}]}`
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		return data("Chapter",
			map[string]any{"_docID": "c3", "number": float64(2), "created_at": fixedNow.Format(time.RFC3339Nano)},
			map[string]any{"_docID": "c2", "number": float64(1), "created_at": fixedNow.Add(time.Minute).Format(time.RFC3339Nano)},
			map[string]any{"_docID": "c1", "number": float64(1), "created_at": fixedNow.Format(time.RFC3339Nano), "processed_content": content},
		)
	})

	chapters, err := s.ListChapters(context.Background(), "bae-book1")
	if err != nil {
		t.Fatalf("ListChapters() error = %v", err)
	}
	var ids []string
	for _, ch := range chapters {
		ids = append(ids, ch.ID)
	}
	if strings.Join(ids, ",") != "c1,c2,c3" {
		t.Errorf("order = %v, want c1,c2,c3", ids)
	}
	if chapters[0].Content.TotalWords != 2 || len(chapters[0].Content.Paragraphs) != 1 {
		t.Errorf("processed content not decoded: %+v", chapters[0].Content)
	}
	if chapters[1].Content.Paragraphs == nil {
		t.Error("paragraphs should never be nil")
	}

	req := g.Requests()[0]
	if !strings.Contains(req.Query, "book_id: {_eq: $v0}") || req.Variables["v0"] != "bae-book1" {
		t.Errorf("unexpected query %s %v", req.Query, req.Variables)
	}
}

func TestGetChapter_BadContent(t *testing.T) {
	s, _ := newTestStore(t, func(req defra.GQLRequest) any {
		return data("Chapter", map[string]any{"_docID": "c1", "processed_content": "{not json"})
	})
	if _, err := s.GetChapter(context.Background(), "c1"); err == nil {
		t.Error("expected decode error")
	}
}

func TestCreateAndUpdateChapter(t *testing.T) {
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		if strings.Contains(req.Query, "create_Chapter") {
			return data("create_Chapter", map[string]any{"_docID": "bae-ch1"})
		}
		return data("update_Chapter", map[string]any{"_docID": "bae-ch1"})
	})
	ctx := context.Background()

	ch, err := s.CreateChapter(ctx, Chapter{
		BookID: "bae-book1",
		Title:  "One",
		Text:   "Alice ran.",
		Number: 1,
		Content: types.ProcessedChapter{
			Title:      "One",
			TotalWords: 2,
			Paragraphs: []types.Paragraph{{ID: 1, Content: []types.Segment{{Type: "character", Text: "Alice"}, {Type: types.SegmentNarrative, Text: " ran."}}}},
		},
	})
	if err != nil {
		t.Fatalf("CreateChapter() error = %v", err)
	}
	if ch.ID != "bae-ch1" {
		t.Errorf("ID = %q", ch.ID)
	}
	create := g.Requests()[0].Query
	for _, want := range []string{"total_words: 2", "paragraph_count: 1", `book_id: "bae-book1"`, `image_urls: []`} {
		if !strings.Contains(create, want) {
			t.Errorf("create mutation missing %q: %s", want, create)
		}
	}

	ch.Title = "Renamed"
	if err := s.UpdateChapter(ctx, ch); err != nil {
		t.Fatalf("UpdateChapter() error = %v", err)
	}
	update := g.Requests()[1].Query
	if strings.Contains(update, "created_at") {
		t.Errorf("update must not rewrite created_at: %s", update)
	}
	if !strings.Contains(update, `title: "Renamed"`) {
		t.Errorf("update missing new title: %s", update)
	}
}

func TestUpdateAnnotation(t *testing.T) {
	s, g := newTestStore(t, func(req defra.GQLRequest) any {
		return data("update_Chapter", map[string]any{"_docID": "bae-ch1"})
	})

	ch := &Chapter{
		ID:                "bae-ch1",
		Title:             "Stale title",
		Text:              "Stale text",
		DictionaryVersion: "v2",
		Content: types.ProcessedChapter{
			TotalWords: 1,
			Paragraphs: []types.Paragraph{{ID: 1, Content: []types.Segment{{Type: "character", Text: "Alice"}}}},
		},
	}
	if err := s.UpdateAnnotation(context.Background(), ch); err != nil {
		t.Fatalf("UpdateAnnotation() error = %v", err)
	}
	q := g.Requests()[0].Query
	for _, want := range []string{"processed_content:", `dictionary_version: "v2"`, "total_words: 1", "paragraph_count: 1", "updated_at:"} {
		if !strings.Contains(q, want) {
			t.Errorf("mutation missing %q: %s", want, q)
		}
	}
	for _, field := range []string{"title:", "text:", "number:", "authors:", "is_completed:", "created_at:"} {
		if strings.Contains(q, field) {
			t.Errorf("annotation write must not touch %s %s", field, q)
		}
	}
}

func TestCreateChapter_RequiresBookID(t *testing.T) {
	s, _ := newTestStore(t, func(req defra.GQLRequest) any { return nil })
	if _, err := s.CreateChapter(context.Background(), Chapter{Title: "x"}); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

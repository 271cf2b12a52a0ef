package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/chapters"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

const created = "2024-03-01T12:00:00Z"

// fakeDefra answers the queries the store issues from fixed fixtures and
// records every mutation.
type fakeDefra struct {
	mu        sync.Mutex
	books     map[string]map[string]any
	chapters  map[string]map[string]any
	mutations []string
}

func chapterFixture(id, bookID string, number int, title, text string, dict types.Dictionary) map[string]any {
	content, _ := json.Marshal(annotate.ProcessChapterContent(text, title, dict))
	return map[string]any{
		"_docID": id, "book_id": bookID, "title": title, "text": text,
		"number": number, "processed_content": string(content),
		"authors": []any{"alice"}, "image_urls": []any{},
		"created_at": created, "updated_at": created,
	}
}

func newFakeDefra() *fakeDefra {
	dict := types.Dictionary{"characters": {"Alice", "Queen"}}
	dictJSON, _ := json.Marshal(dict)
	return &fakeDefra{
		books: map[string]map[string]any{
			"bae-book1": {
				"_docID":             "bae-book1",
				"title":              "Wonderland",
				"language":           "en",
				"authors":            []any{"alice"},
				"status":             "draft",
				"dictionary":         string(dictJSON),
				"dictionary_version": annotate.DictionaryVersion(dict),
				"created_at":         created,
				"updated_at":         created,
			},
			"bae-book2": {
				"_docID":       "bae-book2",
				"title":        "Through the Looking-Glass",
				"authors":      []any{"bob"},
				"status":       "published",
				"is_completed": true,
				"created_at":   "2024-03-02T12:00:00Z",
				"updated_at":   "2024-03-02T12:00:00Z",
			},
		},
		chapters: map[string]map[string]any{
			"bae-ch2": chapterFixture("bae-ch2", "bae-book1", 2, "The Pool of Tears", "The Queen wept.", dict),
			"bae-ch1": chapterFixture("bae-ch1", "bae-book1", 1, "Down the Rabbit-Hole", "Alice was tired.", dict),
		},
	}
}

func (f *fakeDefra) Mutations(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.mutations {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeDefra) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health-check" {
		w.WriteHeader(http.StatusOK)
		return
	}
	var req defra.GQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(req.Query, "mutation") {
		op := strings.Fields(strings.TrimPrefix(req.Query, "mutation {"))[0]
		op = op[:strings.Index(op, "(")]
		f.mutations = append(f.mutations, op)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			op: []any{map[string]any{"_docID": "bae-new"}},
		}})
		return
	}

	var key string
	var docs []map[string]any
	switch {
	case strings.Contains(req.Query, "{ Book"):
		key = "Book"
		for _, b := range f.books {
			if matchesFilter(req, b) {
				docs = append(docs, b)
			}
		}
		sort.Slice(docs, func(i, j int) bool { return docs[i]["created_at"].(string) > docs[j]["created_at"].(string) })
		docs = page(req.Query, docs)
	case strings.Contains(req.Query, "_docID: {_eq"):
		key = "Chapter"
		if ch, ok := f.chapters[req.Variables["v0"].(string)]; ok {
			docs = append(docs, ch)
		}
	default:
		key = "Chapter"
		for _, ch := range f.chapters {
			if ch["book_id"] == req.Variables["v0"] {
				docs = append(docs, ch)
			}
		}
		sort.Slice(docs, func(i, j int) bool { return docs[i]["_docID"].(string) > docs[j]["_docID"].(string) })
	}
	list := make([]any, len(docs))
	for i, d := range docs {
		list[i] = d
	}
	json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{key: list}})
}

var (
	filterTerm = regexp.MustCompile(`(\w+): \{(?:(_any): \{)?(_eq|_ilike): \$(v\d+)\}`)
	limitTerm  = regexp.MustCompile(`limit: (\d+)`)
	offsetTerm = regexp.MustCompile(`offset: (\d+)`)
)

// matchesFilter evaluates the equality, pattern and array filters the store
// builds against a fixture document.
func matchesFilter(req defra.GQLRequest, doc map[string]any) bool {
	for _, m := range filterTerm.FindAllStringSubmatch(req.Query, -1) {
		field, list, op, want := m[1], m[2], m[3], req.Variables[m[4]]
		switch {
		case list == "_any":
			items, _ := doc[field].([]any)
			found := false
			for _, item := range items {
				found = found || item == want
			}
			if !found {
				return false
			}
		case op == "_ilike":
			got, _ := doc[field].(string)
			if !strings.Contains(strings.ToLower(got), strings.ToLower(strings.Trim(want.(string), "%"))) {
				return false
			}
		default:
			got := doc[field]
			if _, ok := want.(bool); ok && got == nil {
				got = false
			}
			if got != want {
				return false
			}
		}
	}
	return true
}

func page(query string, docs []map[string]any) []map[string]any {
	if m := offsetTerm.FindStringSubmatch(query); m != nil {
		n, _ := strconv.Atoi(m[1])
		docs = docs[min(n, len(docs)):]
	}
	if m := limitTerm.FindStringSubmatch(query); m != nil {
		n, _ := strconv.Atoi(m[1])
		docs = docs[:min(n, len(docs))]
	}
	return docs
}

type harness struct {
	handler  http.Handler
	defra    *fakeDefra
	chapters *chapters.Service
	home     *home.Dir
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := newFakeDefra()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	client := defra.NewClient(server.URL, defra.WithRetry(1, 0))

	sink := defra.NewSink(defra.SinkConfig{Client: client, FlushInterval: 10 * time.Millisecond})
	sink.Start(ctx)
	pool := jobs.NewCPUWorkerPool(jobs.CPUWorkerPoolConfig{WorkerCount: 2})
	go pool.Start(ctx)

	cache, err := annotate.NewIndexCache(4)
	if err != nil {
		t.Fatal(err)
	}
	processor := annotate.NewProcessor(cache)
	st := store.New(client)
	svc := chapters.New(chapters.Config{Store: st, Writer: sink, Pool: pool, Processor: processor})

	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		svc.Wait()
		cancel()
		<-pool.Done()
		sink.Stop()
	})

	services := &svcctx.Services{
		DefraClient: client,
		DefraSink:   sink,
		Store:       st,
		Chapters:    svc,
		Processor:   processor,
		Pool:        pool,
		Home:        homeDir,
	}
	return &harness{
		handler:  withTestServices(services),
		defra:    fake,
		chapters: svc,
		home:     homeDir,
	}
}

func withTestServices(services *svcctx.Services) http.Handler {
	registry := api.NewRegistry()
	for _, ep := range All(Config{}) {
		registry.Register(ep)
	}
	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *harness) do(t *testing.T, method, path, author, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if author != "" {
		req.Header.Set(api.AuthorHeader, author)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, "GET", "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	rec := h.do(t, "GET", "/ready", "", "")
	if rec.Code != http.StatusOK || decode[HealthResponse](t, rec).Defra != "ok" {
		t.Errorf("/ready = %d %s", rec.Code, rec.Body.String())
	}

	bare := withTestServices(nil)
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable || decode[HealthResponse](t, rec).Defra != "not_initialized" {
		t.Errorf("/ready without services = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.do(t, "POST", "/api/chapters/preview", "", `{"book_id":"bae-book1","text":"Alice."}`)

	rec := h.do(t, "GET", "/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d", rec.Code)
	}
	resp := decode[StatusResponse](t, rec)
	if resp.Defra.Health != "healthy" || resp.Defra.Container != "not_initialized" {
		t.Errorf("unexpected defra status %+v", resp.Defra)
	}
	if resp.Pool == nil || resp.Pool.Workers != 2 {
		t.Errorf("unexpected pool status %+v", resp.Pool)
	}
	if resp.Sink == nil {
		t.Error("expected sink stats")
	}
	if resp.Annotate.CachedIndexes != 1 {
		t.Errorf("cached_indexes = %d, want 1", resp.Annotate.CachedIndexes)
	}
}

func TestCreateBook(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		author string
		body   string
		want   int
	}{
		{"no author", "", `{"title":"x"}`, http.StatusForbidden},
		{"no title", "alice", `{}`, http.StatusBadRequest},
		{"unknown field", "alice", `{"title":"x","colour":"red"}`, http.StatusBadRequest},
		{"bad dictionary", "alice", `{"title":"x","dictionary":{"":["a"]}}`, http.StatusBadRequest},
		{"created", "alice", `{"title":"Looking-Glass","co_authors":["bob","alice"],"dictionary":{"characters":["Alice"]}}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, "POST", "/api/books", tt.author, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusCreated {
				return
			}
			book := decode[store.Book](t, rec)
			if book.ID != "bae-new" || strings.Join(book.Authors, ",") != "alice,bob" {
				t.Errorf("unexpected book %+v", book)
			}
			if book.DictionaryVersion == "" {
				t.Error("expected dictionary version")
			}
		})
	}
	if n := h.defra.Mutations("create_Book"); n != 1 {
		t.Errorf("create_Book mutations = %d, want 1", n)
	}
}

func TestGetBook(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/books/bae-book1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	if book := decode[store.Book](t, rec); len(book.Dictionary["characters"]) != 2 {
		t.Errorf("unexpected dictionary %v", book.Dictionary)
	}

	if rec := h.do(t, "GET", "/api/books/bae-missing", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing book = %d", rec.Code)
	}
	if rec := h.do(t, "GET", "/api/books/bad%20id", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id = %d", rec.Code)
	}

}

func TestListBooks(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name      string
		path      string
		wantTotal int
		wantIDs   string
	}{
		{"all newest first", "/api/books", 2, "bae-book2,bae-book1"},
		{"title ignores case", "/api/books?title=LOOKING", 1, "bae-book2"},
		{"completed", "/api/books?completed=true", 1, "bae-book2"},
		{"not completed", "/api/books?completed=false", 1, "bae-book1"},
		{"status", "/api/books?status=draft", 1, "bae-book1"},
		{"author", "/api/books?author=alice", 1, "bae-book1"},
		{"page", "/api/books?skip=1&limit=1", 2, "bae-book1"},
		{"author path", "/api/authors/bob/books", 1, "bae-book2"},
		{"author path with filter", "/api/authors/bob/books?completed=false", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, "GET", tt.path, "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
			}
			list := decode[ListBooksResponse](t, rec)
			var ids []string
			for _, b := range list.Books {
				ids = append(ids, b.ID)
			}
			if list.Total != tt.wantTotal || strings.Join(ids, ",") != tt.wantIDs {
				t.Errorf("total=%d ids=%v, want total=%d ids=%s", list.Total, ids, tt.wantTotal, tt.wantIDs)
			}
		})
	}

	list := decode[ListBooksResponse](t, h.do(t, "GET", "/api/books", "", ""))
	if list.Limit != defaultBookLimit || list.Books[1].Status != "draft" || !list.Books[0].IsCompleted {
		t.Errorf("unexpected listing %+v", list)
	}

	for _, bad := range []string{"?completed=maybe", "?limit=-1", "?skip=x", "?status=lost"} {
		if rec := h.do(t, "GET", "/api/books"+bad, "", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", bad, rec.Code)
		}
	}
}

func TestEditBook(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		author string
		body   string
		want   int
	}{
		{"no author", "", `{"title":"x"}`, http.StatusForbidden},
		{"not an author", "bob", `{"title":"x"}`, http.StatusForbidden},
		{"unknown field", "alice", `{"status":"published"}`, http.StatusBadRequest},
		{"empty title", "alice", `{"title":""}`, http.StatusBadRequest},
		{"edited", "alice", `{"genre":"nonsense","is_premium":true}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, "PATCH", "/api/books/bae-book1", tt.author, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			book := decode[store.Book](t, rec)
			if book.Title != "Wonderland" || book.Genre != "nonsense" || !book.IsPremium {
				t.Errorf("unexpected book %+v", book)
			}
		})
	}
	if n := h.defra.Mutations("update_Book"); n != 1 {
		t.Errorf("update_Book mutations = %d, want 1", n)
	}
	if rec := h.do(t, "PATCH", "/api/books/bae-missing", "alice", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing book = %d", rec.Code)
	}
}

func TestPublishBook(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, "POST", "/api/books/bae-book1/publish", "bob", ""); rec.Code != http.StatusForbidden {
		t.Errorf("publish by non-author = %d", rec.Code)
	}

	rec := h.do(t, "POST", "/api/books/bae-book1/publish", "alice", "")
	if rec.Code != http.StatusOK || decode[store.Book](t, rec).Status != store.StatusPublished {
		t.Fatalf("publish = %d %s", rec.Code, rec.Body.String())
	}
	if n := h.defra.Mutations("update_Book"); n != 1 {
		t.Errorf("update_Book mutations = %d, want 1", n)
	}

	h.defra.mu.Lock()
	h.defra.books["bae-book1"]["is_premium"] = true
	h.defra.mu.Unlock()
	rec = h.do(t, "POST", "/api/books/bae-book1/publish", "alice", "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "completed") {
		t.Errorf("unfinished premium publish = %d %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteBook(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, "DELETE", "/api/books/bae-book1", "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("delete without author = %d", rec.Code)
	}
	if rec := h.do(t, "DELETE", "/api/books/bae-book1", "bob", ""); rec.Code != http.StatusForbidden {
		t.Errorf("delete by non-author = %d", rec.Code)
	}
	if h.defra.Mutations("delete_") != 0 {
		t.Fatal("rejected deletes must not write")
	}

	if rec := h.do(t, "DELETE", "/api/books/bae-book1", "alice", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}
	if n := h.defra.Mutations("delete_Chapter"); n != 2 {
		t.Errorf("delete_Chapter mutations = %d, want 2", n)
	}
	if n := h.defra.Mutations("delete_Book"); n != 1 {
		t.Errorf("delete_Book mutations = %d, want 1", n)
	}
	if rec := h.do(t, "DELETE", "/api/books/bae-missing", "alice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing book = %d", rec.Code)
	}
}

func TestSetDictionary(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		author string
		body   string
		want   int
	}{
		{"no author", "", `{"characters":["Alice"]}`, http.StatusForbidden},
		{"not an author", "bob", `{"characters":["Alice"]}`, http.StatusForbidden},
		{"invalid", "alice", `{"characters":"Alice"}`, http.StatusBadRequest},
		{"not json", "alice", `characters`, http.StatusBadRequest},
		{"accepted", "alice", `{"characters":["Alice","Hatter"]}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, "PUT", "/api/books/bae-book1/dictionary", tt.author, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusAccepted {
				return
			}
			resp := decode[SetDictionaryResponse](t, rec)
			want := annotate.DictionaryVersion(types.Dictionary{"characters": {"Alice", "Hatter"}})
			if resp.ChaptersQueued != 2 || resp.DictionaryVersion != want {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}

	h.chapters.Wait()
	if n := h.defra.Mutations("update_Book"); n != 1 {
		t.Errorf("update_Book mutations = %d, want 1", n)
	}
	if n := h.defra.Mutations("update_Chapter"); n != 2 {
		t.Errorf("update_Chapter mutations = %d, want 2", n)
	}
	if rec := h.do(t, "PUT", "/api/books/bae-missing/dictionary", "alice", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing book = %d", rec.Code)
	}
}

func TestCreateChapter(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		author string
		body   string
		want   int
	}{
		{"no author", "", `{"book_id":"bae-book1","text":"x"}`, http.StatusForbidden},
		{"not a book author", "bob", `{"book_id":"bae-book1","text":"x"}`, http.StatusForbidden},
		{"missing book id", "alice", `{"text":"x"}`, http.StatusBadRequest},
		{"unknown book", "alice", `{"book_id":"bae-nope","text":"x"}`, http.StatusNotFound},
		{"malformed", "alice", `{"book_id":`, http.StatusBadRequest},
		{"created", "alice", `{"book_id":"bae-book1","title":"Tea","number":3,"text":"\"Tea?\" asked Alice."}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, "POST", "/api/chapters", tt.author, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusCreated {
				return
			}
			ch := decode[store.Chapter](t, rec)
			segs := ch.Content.Paragraphs[0].Content
			if len(segs) != 4 || segs[0].Type != types.SegmentDialogue || segs[2] != (types.Segment{Type: "character", Text: "Alice"}) {
				t.Errorf("unexpected segments %+v", segs)
			}
			if strings.Join(ch.Authors, ",") != "alice" {
				t.Errorf("authors = %v", ch.Authors)
			}
		})
	}
}

func TestPreviewChapter(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/chapters/preview", "", `{"book_id":"bae-book1","title":"T","text":"The Queen.\n\nAlice."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview = %d %s", rec.Code, rec.Body.String())
	}
	pc := decode[types.ProcessedChapter](t, rec)
	if len(pc.Paragraphs) != 2 || pc.Paragraphs[1].ID != 2 {
		t.Errorf("unexpected preview %+v", pc)
	}
	if h.defra.Mutations("") != 0 {
		t.Error("preview must not write")
	}
}

func TestGetChapterAndXHTML(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/chapters/bae-ch1", "", "")
	if rec.Code != http.StatusOK || decode[store.Chapter](t, rec).Number != 1 {
		t.Fatalf("get = %d %s", rec.Code, rec.Body.String())
	}
	if rec := h.do(t, "GET", "/api/chapters/bae-none", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing chapter = %d", rec.Code)
	}

	rec = h.do(t, "GET", "/api/chapters/bae-ch1/xhtml", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("xhtml = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xhtml+xml") {
		t.Errorf("content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<title>Chapter 1: Down the Rabbit-Hole</title>",
		`<p id="p1"><span class="seg-character">Alice</span> was tired.</p>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("xhtml missing %q", want)
		}
	}
}

func TestUpdateAndDeleteChapter(t *testing.T) {
	h := newHarness(t)

	if rec := h.do(t, "PATCH", "/api/chapters/bae-ch1", "bob", `{"title":"x"}`); rec.Code != http.StatusForbidden {
		t.Errorf("update by non-author = %d", rec.Code)
	}
	if rec := h.do(t, "PATCH", "/api/chapters/bae-ch1", "alice", `{"title":5}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d", rec.Code)
	}

	rec := h.do(t, "PATCH", "/api/chapters/bae-ch1", "alice", `{"title":"Renamed","text":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}
	ch := decode[store.Chapter](t, rec)
	if ch.Title != "Renamed" || ch.Text != "Alice was tired." {
		t.Errorf("empty text should keep the stored text: %+v", ch)
	}

	if rec := h.do(t, "DELETE", "/api/chapters/bae-ch1", "bob", ""); rec.Code != http.StatusForbidden {
		t.Errorf("delete by non-author = %d", rec.Code)
	}
	if rec := h.do(t, "DELETE", "/api/chapters/bae-ch1", "alice", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if h.defra.Mutations("delete_Chapter") != 1 || h.defra.Mutations("update_Chapter") != 1 {
		t.Errorf("unexpected mutations %v", h.defra.mutations)
	}
}

func TestListBookChapters(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/books/bae-book1/chapters", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	list := decode[[]ChapterSummary](t, rec)
	if len(list) != 2 || list[0].Number != 1 || list[1].Number != 2 {
		t.Errorf("chapters not in reading order: %+v", list)
	}
	if list[0].TotalWords != 3 || list[0].Paragraphs != 1 || list[0].Excerpt != "Alice was tired." {
		t.Errorf("unexpected summary %+v", list[0])
	}

	if rec := h.do(t, "GET", "/api/books/bae-missing/chapters", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing book = %d", rec.Code)
	}
}

func TestReprocessBook(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/books/bae-book1/reprocess", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reprocess = %d %s", rec.Code, rec.Body.String())
	}
	result := decode[chapters.ReprocessResult](t, rec)
	if result.Total != 2 || result.Updated != 2 || result.Failed != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if n := h.defra.Mutations("update_Chapter"); n != 2 {
		t.Errorf("update_Chapter mutations = %d, want 2", n)
	}
}

func TestExportEpub(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/books/bae-book1/export/epub", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/epub+zip" {
		t.Errorf("content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="Wonderland.epub"`) {
		t.Errorf("content disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("body is not a zip archive")
	}
	kept, err := os.ReadFile(h.home.ExportPath("bae-book1"))
	if err != nil || len(kept) != rec.Body.Len() {
		t.Errorf("export copy not kept: %v", err)
	}

	if rec := h.do(t, "GET", "/api/books/bae-missing/export/epub", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing book = %d", rec.Code)
	}
}

func TestAnnotate(t *testing.T) {
	h := withTestServices(nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"with dictionary", `{"text":"Harry waved.","dictionary":{"characters":["Harry"]}}`, http.StatusOK},
		{"without dictionary", `{"text":"Harry waved."}`, http.StatusOK},
		{"invalid dictionary", `{"text":"x","dictionary":{"characters":[1]}}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/annotate", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/annotate", strings.NewReader(`{"text":"Harry waved.","dictionary":{"characters":["Harry"]}}`)))
	pc := decode[types.ProcessedChapter](t, rec)
	if pc.Paragraphs[0].Content[0] != (types.Segment{Type: "character", Text: "Harry"}) {
		t.Errorf("unexpected annotation %+v", pc)
	}
}

func TestSwagger(t *testing.T) {
	rec := httptest.NewRecorder()
	withTestServices(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/swagger.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("swagger = %d", rec.Code)
	}
	var doc struct {
		Info  map[string]any            `json:"info"`
		Paths map[string]map[string]any `json:"paths"`
	}
	body, _ := io.ReadAll(rec.Body)
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("invalid swagger JSON: %v", err)
	}
	if doc.Info["title"] != "Folio API" {
		t.Errorf("title = %v", doc.Info["title"])
	}
	for _, ep := range All(Config{}) {
		method, path, _ := ep.Route()
		if _, ok := doc.Paths[path][strings.ToLower(method)]; !ok && path != "/swagger.json" {
			t.Errorf("swagger is missing %s %s", method, path)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: title", chapters.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: x y", store.ErrInvalidID), http.StatusBadRequest},
		{fmt.Errorf("%w: book b", chapters.ErrUnauthorized), http.StatusForbidden},
		{fmt.Errorf("%w: premium", chapters.ErrNotPublishable), http.StatusBadRequest},
		{fmt.Errorf("%w: b", chapters.ErrBookNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: c", chapters.ErrChapterNotFound), http.StatusNotFound},
		{fmt.Errorf("book b: %w", store.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCommands(t *testing.T) {
	registry := api.NewRegistry()
	for _, ep := range All(Config{}) {
		registry.Register(ep)
	}
	root := registry.BuildCommands(func() string { return "http://localhost:0" })

	seen := make(map[string]bool)
	for _, cmd := range root.Commands() {
		if seen[cmd.Name()] {
			t.Errorf("duplicate command %q", cmd.Name())
		}
		seen[cmd.Name()] = true
	}
	for _, name := range []string{"create-book", "edit-book", "publish-book", "delete-book", "author-books", "set-dictionary", "create-chapter", "export-epub", "annotate"} {
		if !seen[name] {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("é", excerptRunes-1) + " tail"
	tests := []struct {
		name string
		pc   types.ProcessedChapter
		want string
	}{
		{"empty", types.ProcessedChapter{}, ""},
		{"first paragraph", annotate.ProcessChapterContent("The Queen wept.\nAlice ran.", "T", types.Dictionary{"characters": {"Queen"}}), "The Queen wept."},
		{"cut on runes", annotate.ProcessChapterContent(long, "T", nil), strings.Repeat("é", excerptRunes-1) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := excerpt(tt.pc); got != tt.want {
				t.Errorf("excerpt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Alice in Wonderland": "Alice_in_Wonderland",
		"../../etc/passwd":    "etcpasswd",
		"":                    "book",
		"¿?":                  "book",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

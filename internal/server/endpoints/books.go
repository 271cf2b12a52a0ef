package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/chapters"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// maxDictionaryBytes bounds dictionary uploads.
const maxDictionaryBytes = 4 << 20

// Book listing page sizes.
const (
	defaultBookLimit = 20
	maxBookLimit     = 100
)

// CreateBookRequest is the request body for creating a book.
type CreateBookRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Language    string           `json:"language,omitempty"`
	Genre       string           `json:"genre,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	IsPremium   bool             `json:"is_premium,omitempty"`
	CoAuthors   []string         `json:"co_authors,omitempty"`
	Dictionary  types.Dictionary `json:"dictionary,omitempty"`
}

// BookSummary is a book without its dictionary.
type BookSummary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Genre             string    `json:"genre,omitempty"`
	Authors           []string  `json:"authors"`
	Status            string    `json:"status"`
	IsCompleted       bool      `json:"is_completed"`
	IsPremium         bool      `json:"is_premium"`
	DictionaryVersion string    `json:"dictionary_version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ListBooksResponse is one page of a book listing. Total counts every match.
type ListBooksResponse struct {
	Books  []BookSummary `json:"books"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// SetDictionaryResponse reports a dictionary replacement.
type SetDictionaryResponse struct {
	BookID            string `json:"book_id"`
	DictionaryVersion string `json:"dictionary_version"`
	ChaptersQueued    int    `json:"chapters_queued"`
}

// CreateBookEndpoint handles POST /api/books.
type CreateBookEndpoint struct{}

func (e *CreateBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books", e.handler
}

func (e *CreateBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Create a book
//	@Description	Create a book owned by the acting author
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			X-Author-ID	header		string				true	"Acting author"
//	@Param			request		body		CreateBookRequest	true	"Book"
//	@Success		201			{object}	store.Book
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/books [post]
func (e *CreateBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	var req CreateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Dictionary != nil {
		data, _ := json.Marshal(req.Dictionary)
		if err := annotate.ValidateDictionaryJSON(data); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	authors := []string{author}
	for _, a := range req.CoAuthors {
		if a != "" && !slices.Contains(authors, a) {
			authors = append(authors, a)
		}
	}

	book, err := st.CreateBook(r.Context(), store.Book{
		Title:       req.Title,
		Description: req.Description,
		Language:    req.Language,
		Genre:       req.Genre,
		Tags:        req.Tags,
		IsPremium:   req.IsPremium,
		Authors:     authors,
		Dictionary:  req.Dictionary,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	svcctx.LoggerFrom(r.Context()).Info("book created", "book_id", book.ID, "author", author)
	writeJSON(w, http.StatusCreated, book)
}

func (e *CreateBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req CreateBookRequest
	var dictFile string
	cmd := &cobra.Command{
		Use:   "create-book <title>",
		Short: "Create a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Title = args[0]
			if dictFile != "" {
				dict, err := annotate.ReadDictionaryFile(dictFile)
				if err != nil {
					return err
				}
				req.Dictionary = dict
			}
			var book store.Book
			if err := newClient(cmd, getServerURL).Post(cmd.Context(), "/api/books", req, &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
	cmd.Flags().StringVar(&req.Description, "description", "", "Book description")
	cmd.Flags().StringVar(&req.Language, "language", "", "Language code (e.g. en)")
	cmd.Flags().StringVar(&req.Genre, "genre", "", "Genre")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Tags (repeatable)")
	cmd.Flags().BoolVar(&req.IsPremium, "premium", false, "Premium book (must be completed before publishing)")
	cmd.Flags().StringSliceVar(&req.CoAuthors, "co-author", nil, "Additional author IDs")
	cmd.Flags().StringVar(&dictFile, "dictionary", "", "YAML or JSON dictionary file")
	return cmd
}

// parseBookFilter reads listing filters and paging from query parameters.
func parseBookFilter(q url.Values) (store.BookFilter, error) {
	f := store.BookFilter{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Status: q.Get("status"),
		Genre:  q.Get("genre"),
		Limit:  defaultBookLimit,
	}
	switch f.Status {
	case "", store.StatusDraft, store.StatusPublished, store.StatusArchived:
	default:
		return f, fmt.Errorf("unknown status %q", f.Status)
	}
	for name, dst := range map[string]**bool{"completed": &f.IsCompleted, "premium": &f.IsPremium} {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return f, fmt.Errorf("%s must be a boolean", name)
			}
			*dst = &b
		}
	}
	for name, dst := range map[string]*int{"skip": &f.Offset, "limit": &f.Limit} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, fmt.Errorf("%s must be a non-negative integer", name)
			}
			*dst = n
		}
	}
	if f.Limit == 0 || f.Limit > maxBookLimit {
		f.Limit = maxBookLimit
	}
	return f, nil
}

// bookFilterQuery encodes filter flags as query parameters.
func bookFilterQuery(f store.BookFilter) string {
	q := url.Values{}
	for name, v := range map[string]string{"title": f.Title, "author": f.Author, "status": f.Status, "genre": f.Genre} {
		if v != "" {
			q.Set(name, v)
		}
	}
	if f.IsCompleted != nil {
		q.Set("completed", strconv.FormatBool(*f.IsCompleted))
	}
	if f.IsPremium != nil {
		q.Set("premium", strconv.FormatBool(*f.IsPremium))
	}
	if f.Offset > 0 {
		q.Set("skip", strconv.Itoa(f.Offset))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func summarizeBook(b store.Book) BookSummary {
	return BookSummary{
		ID:                b.ID,
		Title:             b.Title,
		Genre:             b.Genre,
		Authors:           b.Authors,
		Status:            b.Status,
		IsCompleted:       b.IsCompleted,
		IsPremium:         b.IsPremium,
		DictionaryVersion: b.DictionaryVersion,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func listBooks(w http.ResponseWriter, r *http.Request, filter store.BookFilter) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	books, total, err := st.ListBooks(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := ListBooksResponse{
		Books:  make([]BookSummary, 0, len(books)),
		Total:  total,
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}
	for _, b := range books {
		resp.Books = append(resp.Books, summarizeBook(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// bookFilterFlags registers listing flags. Boolean filters only apply when set.
func bookFilterFlags(cmd *cobra.Command, f *store.BookFilter) func() {
	var completed, premium bool
	cmd.Flags().StringVar(&f.Title, "title", "", "Case-insensitive title substring")
	cmd.Flags().StringVar(&f.Status, "status", "", "Status: draft, published or archived")
	cmd.Flags().StringVar(&f.Genre, "genre", "", "Genre")
	cmd.Flags().BoolVar(&completed, "completed", false, "Only completed (or, with =false, unfinished) books")
	cmd.Flags().BoolVar(&premium, "premium", false, "Only premium (or, with =false, free) books")
	cmd.Flags().IntVar(&f.Offset, "skip", 0, "Number of books to skip")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "Page size (server default when 0)")
	return func() {
		if cmd.Flags().Changed("completed") {
			f.IsCompleted = &completed
		}
		if cmd.Flags().Changed("premium") {
			f.IsPremium = &premium
		}
	}
}

// ListBooksEndpoint handles GET /api/books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List books
//	@Description	Newest first, filtered and paged
//	@Tags			books
//	@Produce		json
//	@Param			title		query		string	false	"Case-insensitive title substring"
//	@Param			author		query		string	false	"Author ID"
//	@Param			status		query		string	false	"draft, published or archived"
//	@Param			genre		query		string	false	"Genre"
//	@Param			completed	query		bool	false	"Completion filter"
//	@Param			premium		query		bool	false	"Premium filter"
//	@Param			skip		query		int		false	"Books to skip"
//	@Param			limit		query		int		false	"Page size (max 100)"
//	@Success		200			{object}	ListBooksResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/books [get]
func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listBooks(w, r, filter)
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var filter store.BookFilter
	cmd := &cobra.Command{
		Use:   "list-books",
		Short: "List books",
	}
	resolve := bookFilterFlags(cmd, &filter)
	cmd.Flags().StringVar(&filter.Author, "by", "", "Author ID")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		resolve()
		var resp ListBooksResponse
		if err := newClient(cmd, getServerURL).Get(cmd.Context(), "/api/books"+bookFilterQuery(filter), &resp); err != nil {
			return err
		}
		return api.Output(resp)
	}
	return cmd
}

// AuthorBooksEndpoint handles GET /api/authors/{author}/books.
type AuthorBooksEndpoint struct{}

func (e *AuthorBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/authors/{author}/books", e.handler
}

func (e *AuthorBooksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List an author's books
//	@Tags		books
//	@Produce	json
//	@Param		author	path		string	true	"Author ID"
//	@Param		status	query		string	false	"draft, published or archived"
//	@Param		skip	query		int		false	"Books to skip"
//	@Param		limit	query		int		false	"Page size (max 100)"
//	@Success	200		{object}	ListBooksResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	503		{object}	ErrorResponse
//	@Router		/api/authors/{author}/books [get]
func (e *AuthorBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Author = r.PathValue("author")
	listBooks(w, r, filter)
}

func (e *AuthorBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var filter store.BookFilter
	cmd := &cobra.Command{
		Use:   "author-books <author>",
		Short: "List the books an author writes",
		Args:  cobra.ExactArgs(1),
	}
	resolve := bookFilterFlags(cmd, &filter)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		resolve()
		var resp ListBooksResponse
		path := "/api/authors/" + url.PathEscape(args[0]) + "/books" + bookFilterQuery(filter)
		if err := newClient(cmd, getServerURL).Get(cmd.Context(), path, &resp); err != nil {
			return err
		}
		return api.Output(resp)
	}
	return cmd
}

// GetBookEndpoint handles GET /api/books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get book by ID
//	@Tags		books
//	@Produce	json
//	@Param		id	path		string	true	"Book ID"
//	@Success	200	{object}	store.Book
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/books/{id} [get]
func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	book, err := st.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get-book <id>",
		Short: "Get a book, including its dictionary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var book store.Book
			if err := newClient(cmd, getServerURL).Get(cmd.Context(), "/api/books/"+args[0], &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}

// SetDictionaryEndpoint handles PUT /api/books/{id}/dictionary.
type SetDictionaryEndpoint struct{}

func (e *SetDictionaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/books/{id}/dictionary", e.handler
}

func (e *SetDictionaryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Replace a book's dictionary
//	@Description	Validates the dictionary, stores it and re-annotates every chapter in the background
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Book ID"
//	@Param			X-Author-ID	header		string				true	"Acting author"
//	@Param			request		body		types.Dictionary	true	"Category to entity names"
//	@Success		202			{object}	SetDictionaryResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/books/{id}/dictionary [put]
func (e *SetDictionaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDictionaryBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	dict, err := annotate.ParseDictionary(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	bookID := r.PathValue("id")
	queued, err := svc.SetDictionary(r.Context(), author, bookID, dict)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SetDictionaryResponse{
		BookID:            bookID,
		DictionaryVersion: annotate.DictionaryVersion(dict),
		ChaptersQueued:    queued,
	})
}

func (e *SetDictionaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-dictionary <book_id> <file>",
		Short: "Replace a book's dictionary from a YAML or JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dict, err := annotate.ReadDictionaryFile(args[1])
			if err != nil {
				return err
			}
			var resp SetDictionaryResponse
			path := fmt.Sprintf("/api/books/%s/dictionary", args[0])
			if err := newClient(cmd, getServerURL).Put(cmd.Context(), path, dict, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ReprocessBookEndpoint handles POST /api/books/{id}/reprocess.
type ReprocessBookEndpoint struct{}

func (e *ReprocessBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/reprocess", e.handler
}

func (e *ReprocessBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Re-annotate every chapter of a book
//	@Description	Runs the book's chapters through the worker pool and waits for the writes
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	chapters.ReprocessResult
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/reprocess [post]
func (e *ReprocessBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	result, err := svc.Reprocess(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *ReprocessBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <book_id>",
		Short: "Re-annotate every chapter of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result chapters.ReprocessResult
			path := fmt.Sprintf("/api/books/%s/reprocess", args[0])
			if err := newClient(cmd, getServerURL).Post(cmd.Context(), path, nil, &result); err != nil {
				return err
			}
			return api.Output(result)
		},
	}
}

// EditBookEndpoint handles PATCH /api/books/{id}.
type EditBookEndpoint struct{}

func (e *EditBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/books/{id}", e.handler
}

func (e *EditBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Edit book metadata
//	@Description	Omitted fields keep their stored values
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Book ID"
//	@Param			X-Author-ID	header		string					true	"Acting author"
//	@Param			request		body		chapters.EditBookInput	true	"Changes"
//	@Success		200			{object}	store.Book
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/books/{id} [patch]
func (e *EditBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	var req chapters.EditBookInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	book, err := svc.EditBook(r.Context(), author, r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *EditBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, description, language, genre string
	var tags []string
	var completed, premium bool
	cmd := &cobra.Command{
		Use:   "edit-book <id>",
		Short: "Edit a book's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req chapters.EditBookInput
			flags := cmd.Flags()
			if flags.Changed("title") {
				req.Title = &title
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("language") {
				req.Language = &language
			}
			if flags.Changed("genre") {
				req.Genre = &genre
			}
			if flags.Changed("tag") {
				req.Tags = &tags
			}
			if flags.Changed("completed") {
				req.IsCompleted = &completed
			}
			if flags.Changed("premium") {
				req.IsPremium = &premium
			}
			var book store.Book
			if err := newClient(cmd, getServerURL).Patch(cmd.Context(), "/api/books/"+args[0], req, &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&language, "language", "", "New language code")
	cmd.Flags().StringVar(&genre, "genre", "", "New genre")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replace tags (repeatable)")
	cmd.Flags().BoolVar(&completed, "completed", false, "Mark the book completed")
	cmd.Flags().BoolVar(&premium, "premium", false, "Mark the book premium")
	return cmd
}

// PublishBookEndpoint handles POST /api/books/{id}/publish.
type PublishBookEndpoint struct{}

func (e *PublishBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/publish", e.handler
}

func (e *PublishBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Publish a book
//	@Description	Premium books must be completed first
//	@Tags			books
//	@Produce		json
//	@Param			id			path		string	true	"Book ID"
//	@Param			X-Author-ID	header		string	true	"Acting author"
//	@Success		200			{object}	store.Book
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/books/{id}/publish [post]
func (e *PublishBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	book, err := svc.PublishBook(r.Context(), author, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *PublishBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "publish-book <id>",
		Short: "Publish a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var book store.Book
			path := fmt.Sprintf("/api/books/%s/publish", args[0])
			if err := newClient(cmd, getServerURL).Post(cmd.Context(), path, nil, &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}

// DeleteBookEndpoint handles DELETE /api/books/{id}.
type DeleteBookEndpoint struct{}

func (e *DeleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/books/{id}", e.handler
}

func (e *DeleteBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Delete a book
//	@Description	Deletes the book's chapters, then the book
//	@Tags			books
//	@Param			id			path	string	true	"Book ID"
//	@Param			X-Author-ID	header	string	true	"Acting author"
//	@Success		204
//	@Failure		403	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id} [delete]
func (e *DeleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	if _, err := svc.DeleteBook(r.Context(), author, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-book <id>",
		Short: "Delete a book and its chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(cmd, getServerURL).Delete(cmd.Context(), "/api/books/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted book %s\n", args[0])
			return nil
		},
	}
}

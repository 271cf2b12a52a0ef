package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/chapters"
	"github.com/jackzampolin/folio/internal/epub"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// excerptRunes bounds the opening text shown in chapter listings.
const excerptRunes = 160

// ChapterSummary is a chapter without its full text or annotated content.
type ChapterSummary struct {
	ID                string    `json:"id"`
	BookID            string    `json:"book_id"`
	Number            int       `json:"number"`
	Title             string    `json:"title"`
	Excerpt           string    `json:"excerpt"`
	TotalWords        int       `json:"total_words"`
	Paragraphs        int       `json:"paragraphs"`
	IsCompleted       bool      `json:"is_completed"`
	DictionaryVersion string    `json:"dictionary_version"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// excerpt returns the chapter's first paragraph, cut to excerptRunes.
func excerpt(pc types.ProcessedChapter) string {
	if len(pc.Paragraphs) == 0 {
		return ""
	}
	text, _ := pc.Text(pc.Paragraphs[0].ID)
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return strings.TrimRightFunc(string(runes[:excerptRunes]), unicode.IsSpace) + "…"
}

func summarize(ch store.Chapter) ChapterSummary {
	return ChapterSummary{
		ID:                ch.ID,
		BookID:            ch.BookID,
		Number:            ch.Number,
		Title:             ch.Title,
		Excerpt:           excerpt(ch.Content),
		TotalWords:        ch.Content.TotalWords,
		Paragraphs:        len(ch.Content.Paragraphs),
		IsCompleted:       ch.IsCompleted,
		DictionaryVersion: ch.DictionaryVersion,
		UpdatedAt:         ch.UpdatedAt,
	}
}

// readText returns the --text flag or the contents of --file.
func readText(text, file string) (string, error) {
	if file == "" {
		return text, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read chapter text: %w", err)
	}
	return string(data), nil
}

// CreateChapterEndpoint handles POST /api/chapters.
type CreateChapterEndpoint struct{}

func (e *CreateChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/chapters", e.handler
}

func (e *CreateChapterEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Create a chapter
//	@Description	Annotates the text with the book's dictionary and stores both
//	@Tags			chapters
//	@Accept			json
//	@Produce		json
//	@Param			X-Author-ID	header		string					true	"Acting author"
//	@Param			request		body		chapters.CreateInput	true	"Chapter"
//	@Success		201			{object}	store.Chapter
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/chapters [post]
func (e *CreateChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	var in chapters.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	ch, err := svc.Create(r.Context(), author, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (e *CreateChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	var in chapters.CreateInput
	var file string
	cmd := &cobra.Command{
		Use:   "create-chapter <book_id>",
		Short: "Create a chapter from --text or --file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(in.Text, file)
			if err != nil {
				return err
			}
			in.BookID, in.Text = args[0], text
			var ch store.Chapter
			if err := newClient(cmd, getServerURL).Post(cmd.Context(), "/api/chapters", in, &ch); err != nil {
				return err
			}
			return api.Output(summarize(ch))
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Chapter title")
	cmd.Flags().IntVar(&in.Number, "number", 0, "Chapter number")
	cmd.Flags().StringVar(&in.Text, "text", "", "Chapter text")
	cmd.Flags().StringVar(&file, "file", "", "Read chapter text from a file")
	cmd.Flags().StringSliceVar(&in.ImageURLs, "image-url", nil, "Image URLs")
	return cmd
}

// PreviewChapterEndpoint handles POST /api/chapters/preview.
type PreviewChapterEndpoint struct{}

func (e *PreviewChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/chapters/preview", e.handler
}

func (e *PreviewChapterEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Preview chapter annotation
//	@Description	Annotates the text with the book's dictionary without storing anything
//	@Tags			chapters
//	@Accept			json
//	@Produce		json
//	@Param			request	body		chapters.CreateInput	true	"Chapter"
//	@Success		200		{object}	types.ProcessedChapter
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/chapters/preview [post]
func (e *PreviewChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var in chapters.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	pc, err := svc.Preview(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

func (e *PreviewChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	var in chapters.CreateInput
	var file string
	cmd := &cobra.Command{
		Use:   "preview-chapter <book_id>",
		Short: "Annotate text with a book's dictionary without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(in.Text, file)
			if err != nil {
				return err
			}
			in.BookID, in.Text = args[0], text
			var pc types.ProcessedChapter
			if err := newClient(cmd, getServerURL).Post(cmd.Context(), "/api/chapters/preview", in, &pc); err != nil {
				return err
			}
			return api.Output(pc)
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "Chapter title")
	cmd.Flags().StringVar(&in.Text, "text", "", "Chapter text")
	cmd.Flags().StringVar(&file, "file", "", "Read chapter text from a file")
	return cmd
}

// GetChapterEndpoint handles GET /api/chapters/{id}.
type GetChapterEndpoint struct{}

func (e *GetChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/chapters/{id}", e.handler
}

func (e *GetChapterEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a chapter with its annotated content
//	@Tags		chapters
//	@Produce	json
//	@Param		id	path		string	true	"Chapter ID"
//	@Success	200	{object}	store.Chapter
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/chapters/{id} [get]
func (e *GetChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	ch, err := svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (e *GetChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get-chapter <id>",
		Short: "Get a chapter with its annotated content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch store.Chapter
			if err := newClient(cmd, getServerURL).Get(cmd.Context(), "/api/chapters/"+args[0], &ch); err != nil {
				return err
			}
			return api.Output(ch)
		},
	}
}

// UpdateChapterEndpoint handles PATCH /api/chapters/{id}.
type UpdateChapterEndpoint struct{}

func (e *UpdateChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/chapters/{id}", e.handler
}

func (e *UpdateChapterEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update a chapter
//	@Description	Omitted or empty title and text keep their stored values; the chapter is re-annotated
//	@Tags			chapters
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Chapter ID"
//	@Param			X-Author-ID	header		string					true	"Acting author"
//	@Param			request		body		chapters.UpdateInput	true	"Changes"
//	@Success		200			{object}	store.Chapter
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/chapters/{id} [patch]
func (e *UpdateChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	var in chapters.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	ch, err := svc.Update(r.Context(), author, r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (e *UpdateChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, text, file string
	var number int
	var completed bool
	cmd := &cobra.Command{
		Use:   "update-chapter <id>",
		Short: "Update a chapter's title, text, number or completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in chapters.UpdateInput
			flags := cmd.Flags()
			if flags.Changed("title") {
				in.Title = &title
			}
			if flags.Changed("text") || flags.Changed("file") {
				body, err := readText(text, file)
				if err != nil {
					return err
				}
				in.Text = &body
			}
			if flags.Changed("number") {
				in.Number = &number
			}
			if flags.Changed("completed") {
				in.IsCompleted = &completed
			}
			var ch store.Chapter
			if err := newClient(cmd, getServerURL).Patch(cmd.Context(), "/api/chapters/"+args[0], in, &ch); err != nil {
				return err
			}
			return api.Output(summarize(ch))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&text, "text", "", "New text")
	cmd.Flags().StringVar(&file, "file", "", "Read new text from a file")
	cmd.Flags().IntVar(&number, "number", 0, "New chapter number")
	cmd.Flags().BoolVar(&completed, "completed", false, "Mark the chapter completed")
	return cmd
}

// DeleteChapterEndpoint handles DELETE /api/chapters/{id}.
type DeleteChapterEndpoint struct{}

func (e *DeleteChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/chapters/{id}", e.handler
}

func (e *DeleteChapterEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Delete a chapter
//	@Tags		chapters
//	@Param		id			path	string	true	"Chapter ID"
//	@Param		X-Author-ID	header	string	true	"Acting author"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/chapters/{id} [delete]
func (e *DeleteChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	author, ok := requireAuthor(w, r)
	if !ok {
		return
	}

	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	if err := svc.Delete(r.Context(), author, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-chapter <id>",
		Short: "Delete a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(cmd, getServerURL).Delete(cmd.Context(), "/api/chapters/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted chapter %s\n", args[0])
			return nil
		},
	}
}

// ListBookChaptersEndpoint handles GET /api/books/{id}/chapters.
type ListBookChaptersEndpoint struct{}

func (e *ListBookChaptersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/chapters", e.handler
}

func (e *ListBookChaptersEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List a book's chapters
//	@Tags		books,chapters
//	@Produce	json
//	@Param		id	path		string	true	"Book ID"
//	@Success	200	{array}		ChapterSummary
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/books/{id}/chapters [get]
func (e *ListBookChaptersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	list, err := svc.ListByBook(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]ChapterSummary, 0, len(list))
	for _, ch := range list {
		out = append(out, summarize(ch))
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *ListBookChaptersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-chapters <book_id>",
		Short: "List a book's chapters in reading order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []ChapterSummary
			path := fmt.Sprintf("/api/books/%s/chapters", args[0])
			if err := newClient(cmd, getServerURL).Get(cmd.Context(), path, &out); err != nil {
				return err
			}
			return api.Output(out)
		},
	}
}

// ChapterXHTMLEndpoint handles GET /api/chapters/{id}/xhtml.
type ChapterXHTMLEndpoint struct{}

func (e *ChapterXHTMLEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/chapters/{id}/xhtml", e.handler
}

func (e *ChapterXHTMLEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Render a chapter as XHTML
//	@Tags		chapters
//	@Produce	application/xhtml+xml
//	@Param		id	path		string	true	"Chapter ID"
//	@Success	200	{string}	string
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/chapters/{id}/xhtml [get]
func (e *ChapterXHTMLEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := svcctx.ChaptersFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "chapter service not initialized")
		return
	}

	ch, err := svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xhtml+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(epub.ChapterXHTML(epub.ChapterTitle(ch.Number, ch.Title), ch.Content, "")))
}

func (e *ChapterXHTMLEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "chapter-xhtml <id>",
		Short: "Render a chapter as XHTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := os.Stdout
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			path := fmt.Sprintf("/api/chapters/%s/xhtml", args[0])
			_, err := newClient(cmd, getServerURL).Download(cmd.Context(), path, out)
			return err
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write to a file instead of stdout")
	return cmd
}

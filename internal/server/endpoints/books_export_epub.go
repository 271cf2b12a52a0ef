package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/epub"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// ExportEpubEndpoint handles GET /api/books/{id}/export/epub.
type ExportEpubEndpoint struct{}

func (e *ExportEpubEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/export/epub", e.handler
}

func (e *ExportEpubEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Export book as ePub
//	@Description	Package every annotated chapter as an ePub 3.0 file. A copy is kept in the folio exports directory.
//	@Tags			books,export
//	@Produce		application/epub+zip
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{file}		file
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/export/epub [get]
func (e *ExportEpubEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	svc := svcctx.ChaptersFrom(ctx)
	if st == nil || svc == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	bookID := r.PathValue("id")
	book, err := st.GetBook(ctx, bookID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	list, err := svc.ListByBook(ctx, bookID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if len(list) == 0 {
		writeError(w, http.StatusBadRequest, "book has no chapters")
		return
	}

	chapters := make([]epub.Chapter, 0, len(list))
	for i, ch := range list {
		chapters = append(chapters, epub.Chapter{
			ID:      fmt.Sprintf("ch_%03d", i+1),
			Number:  ch.Number,
			Title:   ch.Title,
			Content: ch.Content,
		})
	}

	builder := epub.NewBuilder(epub.Book{
		ID:          book.ID,
		Title:       book.Title,
		Author:      strings.Join(book.Authors, ", "),
		Language:    book.Language,
		Description: book.Description,
		UpdatedAt:   book.UpdatedAt,
	}, chapters)

	buf, err := builder.BuildToBuffer()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to generate epub: %v", err))
		return
	}

	logger := svcctx.LoggerFrom(ctx)
	if homeDir := svcctx.HomeFrom(ctx); homeDir != nil {
		if err := keepExport(homeDir.ExportsDir(), homeDir.ExportPath(book.ID), buf.Bytes()); err != nil {
			logger.Warn("failed to keep epub export", "book_id", book.ID, "error", err)
		}
	}
	logger.Info("epub exported", "book_id", book.ID, "chapters", len(chapters), "bytes", buf.Len())

	w.Header().Set("Content-Type", "application/epub+zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.epub"`, sanitizeFilename(book.Title)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (e *ExportEpubEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export-epub <book_id>",
		Short: "Export a book as ePub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID := args[0]
			if outputPath == "" {
				outputPath = bookID + ".epub"
			}
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outputPath, err)
			}
			defer f.Close()

			n, err := newClient(cmd, getServerURL).Download(cmd.Context(), fmt.Sprintf("/api/books/%s/export/epub", bookID), f)
			if err != nil {
				os.Remove(outputPath)
				return err
			}
			fmt.Printf("Wrote %s (%d bytes)\n", outputPath, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "file", "f", "", "Output path (default <book_id>.epub)")
	return cmd
}

func keepExport(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// sanitizeFilename keeps letters, digits, dashes and underscores.
func sanitizeFilename(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "book"
	}
	return sb.String()
}

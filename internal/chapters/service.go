// Package chapters manages chapter lifecycle on top of the annotation engine:
// every stored chapter carries the annotated form of its text, computed
// against its book's dictionary.
package chapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// TaskAnnotateChapter is the pool task that re-annotates and writes one chapter.
const TaskAnnotateChapter = "annotate_chapter"

var (
	// ErrBookNotFound is returned when the referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrChapterNotFound is returned when the referenced chapter does not exist.
	ErrChapterNotFound = errors.New("chapter not found")

	// ErrUnauthorized is returned when the acting author may not modify the target.
	ErrUnauthorized = errors.New("author not authorized")

	// ErrInvalidInput is returned for malformed create/update requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotPublishable is returned when a book cannot move to published.
	ErrNotPublishable = errors.New("book cannot be published")

	// errSuperseded marks a re-annotation dropped because the book's
	// dictionary changed or the chapter was deleted mid-run.
	errSuperseded = errors.New("reprocess superseded")
)

// Store is the persistence the service needs.
type Store interface {
	GetBook(ctx context.Context, id string) (*store.Book, error)
	UpdateDictionary(ctx context.Context, id string, dict types.Dictionary) (string, error)
	UpdateBook(ctx context.Context, b *store.Book) error
	SetBookStatus(ctx context.Context, id, status string) error
	DeleteBook(ctx context.Context, id string) error
	CreateChapter(ctx context.Context, ch store.Chapter) (*store.Chapter, error)
	GetChapter(ctx context.Context, id string) (*store.Chapter, error)
	ListChapters(ctx context.Context, bookID string) ([]store.Chapter, error)
	UpdateChapter(ctx context.Context, ch *store.Chapter) error
	UpdateAnnotation(ctx context.Context, ch *store.Chapter) error
	DeleteChapter(ctx context.Context, id string) error
}

// Writer applies document writes, typically a *defra.Sink.
type Writer interface {
	SendSync(ctx context.Context, op defra.WriteOp) (defra.WriteResult, error)
}

// Pool runs batches of CPU work, typically a *jobs.CPUWorkerPool.
type Pool interface {
	RegisterHandler(taskName string, handler jobs.CPUTaskHandler)
	RunBatch(ctx context.Context, task string, inputs []any) ([]jobs.WorkResult, error)
}

// CreateInput describes a new chapter.
type CreateInput struct {
	BookID    string   `json:"book_id"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Number    int      `json:"number"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// UpdateInput carries optional chapter changes. Nil fields keep stored values.
type UpdateInput struct {
	Title       *string `json:"title,omitempty"`
	Text        *string `json:"text,omitempty"`
	Number      *int    `json:"number,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
}

// ReprocessResult summarises a re-annotation run.
type ReprocessResult struct {
	BookID            string `json:"book_id"`
	DictionaryVersion string `json:"dictionary_version"`
	Total             int    `json:"total"`
	Updated           int    `json:"updated"`
	Skipped           int    `json:"skipped"`
	Failed            int    `json:"failed"`
}

// Config holds the service's collaborators. Writer and Pool are optional:
// without a Writer chapters are updated through the Store, without a Pool
// they are re-annotated inline.
type Config struct {
	Store     Store
	Writer    Writer
	Pool      Pool
	Processor *annotate.Processor
	Logger    *slog.Logger
}

// Service implements chapter operations.
type Service struct {
	store     Store
	writer    Writer
	pool      Pool
	processor *annotate.Processor
	logger    *slog.Logger

	background sync.WaitGroup
}

// New creates a chapter service and registers its pool task.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     cfg.Store,
		writer:    cfg.Writer,
		pool:      cfg.Pool,
		processor: cfg.Processor,
		logger:    logger.With("component", "chapters"),
	}
	if s.pool != nil {
		s.pool.RegisterHandler(TaskAnnotateChapter, s.handleAnnotateChapter)
	}
	return s
}

// Wait blocks until background re-annotation started by SetDictionary finishes.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) loadBook(ctx context.Context, bookID string) (*store.Book, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
		}
		return nil, err
	}
	return book, nil
}

func (s *Service) loadChapter(ctx context.Context, id string) (*store.Chapter, error) {
	ch, err := s.store.GetChapter(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrChapterNotFound, id)
		}
		return nil, err
	}
	return ch, nil
}

func hasAuthor(authors []string, authorID string) bool {
	for _, a := range authors {
		if a == authorID {
			return true
		}
	}
	return false
}

func (s *Service) annotate(book *store.Book, text, title string) types.ProcessedChapter {
	return s.processor.Process(book.ID, text, title, book.Dictionary)
}

// Create annotates and stores a new chapter written by authorID.
func (s *Service) Create(ctx context.Context, authorID string, in CreateInput) (*store.Chapter, error) {
	if in.BookID == "" {
		return nil, fmt.Errorf("%w: book_id is required", ErrInvalidInput)
	}
	book, err := s.loadBook(ctx, in.BookID)
	if err != nil {
		return nil, err
	}
	if authorID == "" || !book.HasAuthor(authorID) {
		return nil, fmt.Errorf("%w: book %s", ErrUnauthorized, book.ID)
	}

	ch, err := s.store.CreateChapter(ctx, store.Chapter{
		BookID:            book.ID,
		Title:             in.Title,
		Text:              in.Text,
		Number:            in.Number,
		Content:           s.annotate(book, in.Text, in.Title),
		DictionaryVersion: book.DictionaryVersion,
		ImageURLs:         in.ImageURLs,
		Authors:           []string{authorID},
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("chapter created", "chapter_id", ch.ID, "book_id", book.ID, "paragraphs", len(ch.Content.Paragraphs))
	return ch, nil
}

// Get returns a chapter by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Chapter, error) {
	return s.loadChapter(ctx, id)
}

// ListByBook returns a book's chapters ordered by number, then creation time.
func (s *Service) ListByBook(ctx context.Context, bookID string) ([]store.Chapter, error) {
	if _, err := s.loadBook(ctx, bookID); err != nil {
		return nil, err
	}
	chapters, err := s.store.ListChapters(ctx, bookID)
	if err != nil {
		return nil, err
	}
	store.SortChapters(chapters)
	return chapters, nil
}

// Update applies changes to a chapter and re-annotates it with the book's
// current dictionary.
func (s *Service) Update(ctx context.Context, authorID, id string, in UpdateInput) (*store.Chapter, error) {
	ch, err := s.loadChapter(ctx, id)
	if err != nil {
		return nil, err
	}
	if authorID == "" || !hasAuthor(ch.Authors, authorID) {
		return nil, fmt.Errorf("%w: chapter %s", ErrUnauthorized, id)
	}
	book, err := s.loadBook(ctx, ch.BookID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil && *in.Title != "" {
		ch.Title = *in.Title
	}
	if in.Text != nil && *in.Text != "" {
		ch.Text = *in.Text
	}
	if in.Number != nil {
		ch.Number = *in.Number
	}
	if in.IsCompleted != nil {
		ch.IsCompleted = *in.IsCompleted
	}
	ch.Content = s.annotate(book, ch.Text, ch.Title)
	ch.DictionaryVersion = book.DictionaryVersion

	if err := s.store.UpdateChapter(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// Delete removes a chapter written by authorID.
func (s *Service) Delete(ctx context.Context, authorID, id string) error {
	ch, err := s.loadChapter(ctx, id)
	if err != nil {
		return err
	}
	if authorID == "" || !hasAuthor(ch.Authors, authorID) {
		return fmt.Errorf("%w: chapter %s", ErrUnauthorized, id)
	}
	return s.store.DeleteChapter(ctx, id)
}

// Preview annotates text against a book's dictionary without storing anything.
func (s *Service) Preview(ctx context.Context, in CreateInput) (types.ProcessedChapter, error) {
	if in.BookID == "" {
		return types.ProcessedChapter{}, fmt.Errorf("%w: book_id is required", ErrInvalidInput)
	}
	book, err := s.loadBook(ctx, in.BookID)
	if err != nil {
		return types.ProcessedChapter{}, err
	}
	return s.annotate(book, in.Text, in.Title), nil
}

// SetDictionary replaces a book's dictionary and re-annotates its chapters in
// the background. It returns the number of chapters queued.
func (s *Service) SetDictionary(ctx context.Context, authorID, bookID string, dict types.Dictionary) (int, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	if authorID == "" || !book.HasAuthor(authorID) {
		return 0, fmt.Errorf("%w: book %s", ErrUnauthorized, bookID)
	}

	version, err := s.store.UpdateDictionary(ctx, bookID, dict)
	if err != nil {
		return 0, err
	}
	s.processor.Invalidate(bookID)

	chapters, err := s.store.ListChapters(ctx, bookID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("dictionary updated", "book_id", bookID, "version", version, "chapters", len(chapters))

	if len(chapters) > 0 {
		bgCtx := context.WithoutCancel(ctx)
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			if _, err := s.Reprocess(bgCtx, bookID); err != nil {
				s.logger.Error("background reprocess failed", "book_id", bookID, "error", err)
			}
		}()
	}
	return len(chapters), nil
}

type reprocessJob struct {
	book      *store.Book
	chapterID string
}

// Reprocess re-annotates every chapter of a book with its current dictionary
// and waits for the writes to land.
func (s *Service) Reprocess(ctx context.Context, bookID string) (*ReprocessResult, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	chapters, err := s.store.ListChapters(ctx, bookID)
	if err != nil {
		return nil, err
	}

	result := &ReprocessResult{
		BookID:            bookID,
		DictionaryVersion: book.DictionaryVersion,
		Total:             len(chapters),
	}

	errs := make([]error, len(chapters))
	if s.pool != nil {
		inputs := make([]any, len(chapters))
		for i, ch := range chapters {
			inputs[i] = &reprocessJob{book: book, chapterID: ch.ID}
		}
		results, err := s.pool.RunBatch(ctx, TaskAnnotateChapter, inputs)
		if err != nil {
			return nil, fmt.Errorf("reprocess book %s: %w", bookID, err)
		}
		for i, r := range results {
			errs[i] = r.Error
		}
	} else {
		for i, ch := range chapters {
			errs[i] = s.rewrite(ctx, book, ch.ID)
		}
	}

	for i, err := range errs {
		if errors.Is(err, errSuperseded) {
			result.Skipped++
			s.logger.Debug("chapter reprocess skipped", "book_id", bookID, "chapter_id", chapters[i].ID, "reason", err)
			continue
		}
		if err != nil {
			result.Failed++
			s.logger.Warn("chapter reprocess failed", "book_id", bookID, "chapter_id", chapters[i].ID, "error", err)
			continue
		}
		result.Updated++
	}
	s.logger.Info("book reprocessed", "book_id", bookID, "updated", result.Updated, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

func (s *Service) handleAnnotateChapter(ctx context.Context, req *jobs.CPUWorkRequest) (*jobs.CPUWorkResult, error) {
	job, ok := req.Data.(*reprocessJob)
	if !ok {
		return nil, fmt.Errorf("unexpected %s input %T", TaskAnnotateChapter, req.Data)
	}
	if err := s.rewrite(ctx, job.book, job.chapterID); err != nil {
		return nil, err
	}
	return &jobs.CPUWorkResult{Data: job.chapterID}, nil
}

// rewrite re-annotates the stored text of one chapter with book's dictionary
// and persists only the annotation fields. The chapter is re-read so edits
// made after the run started are annotated rather than reverted, and the
// write is dropped if the book has since moved to another dictionary.
func (s *Service) rewrite(ctx context.Context, book *store.Book, chapterID string) error {
	current, err := s.store.GetBook(ctx, book.ID)
	if err != nil {
		return err
	}
	if current.DictionaryVersion != book.DictionaryVersion {
		return fmt.Errorf("%w: book %s now at dictionary %s", errSuperseded, book.ID, current.DictionaryVersion)
	}
	ch, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: chapter %s deleted", errSuperseded, chapterID)
		}
		return err
	}

	ch.Content = s.annotate(book, ch.Text, ch.Title)
	ch.DictionaryVersion = book.DictionaryVersion
	ch.UpdatedAt = time.Now().UTC()

	if s.writer == nil {
		return s.store.UpdateAnnotation(ctx, ch)
	}

	doc, err := store.AnnotationDocument(*ch)
	if err != nil {
		return err
	}
	_, err = s.writer.SendSync(ctx, defra.WriteOp{
		Collection: store.ChapterCollection,
		DocID:      ch.ID,
		Document:   doc,
		Op:         defra.OpUpdate,
	})
	return err
}

package chapters

import (
	"context"
	"fmt"

	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/store"
)

// EditBookInput carries optional book metadata changes. Nil fields keep
// stored values.
type EditBookInput struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Language    *string   `json:"language,omitempty"`
	Genre       *string   `json:"genre,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	IsCompleted *bool     `json:"is_completed,omitempty"`
	IsPremium   *bool     `json:"is_premium,omitempty"`
}

func (s *Service) authorBook(ctx context.Context, authorID, bookID string) (*store.Book, error) {
	book, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if authorID == "" || !book.HasAuthor(authorID) {
		return nil, fmt.Errorf("%w: book %s", ErrUnauthorized, bookID)
	}
	return book, nil
}

// EditBook applies metadata changes to a book written by authorID.
func (s *Service) EditBook(ctx context.Context, authorID, bookID string, in EditBookInput) (*store.Book, error) {
	book, err := s.authorBook(ctx, authorID, bookID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if *in.Title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		book.Title = *in.Title
	}
	if in.Description != nil {
		book.Description = *in.Description
	}
	if in.Language != nil {
		book.Language = *in.Language
	}
	if in.Genre != nil {
		book.Genre = *in.Genre
	}
	if in.Tags != nil {
		book.Tags = *in.Tags
	}
	if in.IsCompleted != nil {
		book.IsCompleted = *in.IsCompleted
	}
	if in.IsPremium != nil {
		book.IsPremium = *in.IsPremium
	}

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	s.logger.Info("book edited", "book_id", bookID, "author", authorID)
	return book, nil
}

// PublishBook moves a book written by authorID to published. Premium books
// must be completed first.
func (s *Service) PublishBook(ctx context.Context, authorID, bookID string) (*store.Book, error) {
	book, err := s.authorBook(ctx, authorID, bookID)
	if err != nil {
		return nil, err
	}
	if book.IsPremium && !book.IsCompleted {
		return nil, fmt.Errorf("%w: premium books must be completed before publishing", ErrNotPublishable)
	}
	if book.Status == store.StatusPublished {
		return book, nil
	}

	if err := s.store.SetBookStatus(ctx, bookID, store.StatusPublished); err != nil {
		return nil, err
	}
	book.Status = store.StatusPublished
	s.logger.Info("book published", "book_id", bookID, "author", authorID)
	return book, nil
}

// DeleteBook removes a book written by authorID together with its chapters.
// The book is kept if any chapter fails to delete so a retry can finish. It
// returns the number of chapters deleted.
func (s *Service) DeleteBook(ctx context.Context, authorID, bookID string) (int, error) {
	if _, err := s.authorBook(ctx, authorID, bookID); err != nil {
		return 0, err
	}
	chapters, err := s.store.ListChapters(ctx, bookID)
	if err != nil {
		return 0, err
	}

	for i, ch := range chapters {
		if err := s.deleteChapter(ctx, ch.ID); err != nil {
			return i, fmt.Errorf("delete book %s: chapter %s: %w", bookID, ch.ID, err)
		}
	}
	if err := s.store.DeleteBook(ctx, bookID); err != nil {
		return len(chapters), err
	}
	s.processor.Invalidate(bookID)

	s.logger.Info("book deleted", "book_id", bookID, "author", authorID, "chapters", len(chapters))
	return len(chapters), nil
}

func (s *Service) deleteChapter(ctx context.Context, id string) error {
	if s.writer == nil {
		return s.store.DeleteChapter(ctx, id)
	}
	_, err := s.writer.SendSync(ctx, defra.WriteOp{
		Collection: store.ChapterCollection,
		DocID:      id,
		Op:         defra.OpDelete,
	})
	return err
}

package catalog

import (
	"context"
	"database/sql"
	"strings"

	"libris-backend/internal/platform/apperr"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (*BookResponse, error) {
	isbn := strings.TrimSpace(req.ISBN)
	title := strings.TrimSpace(req.Title)
	if isbn == "" || title == "" {
		return nil, apperr.Invalid("isbn and title are required")
	}

	existing, err := s.store.GetBookByISBN(ctx, isbn)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("isbn already exists")
	}

	b := &Book{ISBN: isbn, Title: title}
	applyOptional(b, req.Publisher, req.PublishedYear, req.Description)

	if err := s.store.InsertBook(ctx, b, cleanNames(req.Authors), cleanNames(req.Categories)); err != nil {
		return nil, err
	}
	return s.bookResponse(ctx, b)
}

func (s *Service) GetBook(ctx context.Context, bookID int64) (*BookResponse, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NotFound("book not found")
	}
	return s.bookResponse(ctx, b)
}

func (s *Service) ListBooks(ctx context.Context) ([]BookResponse, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	return s.bookResponses(ctx, books)
}

func (s *Service) SearchBooks(ctx context.Context, q SearchQuery) ([]BookResponse, error) {
	if q.Empty() {
		return s.ListBooks(ctx)
	}
	books, err := s.store.SearchBooks(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.bookResponses(ctx, books)
}

// UpdateBook applies a partial patch: fields absent from the request keep
// their stored values.
func (s *Service) UpdateBook(ctx context.Context, bookID int64, req UpdateBookRequest) (*BookResponse, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NotFound("book not found")
	}

	if req.ISBN != nil {
		isbn := strings.TrimSpace(*req.ISBN)
		if isbn == "" {
			return nil, apperr.Invalid("isbn must not be empty")
		}
		b.ISBN = isbn
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, apperr.Invalid("title must not be empty")
		}
		b.Title = title
	}
	applyOptional(b, req.Publisher, req.PublishedYear, req.Description)

	var authors, categories *[]string
	if req.Authors != nil {
		v := cleanNames(*req.Authors)
		authors = &v
	}
	if req.Categories != nil {
		v := cleanNames(*req.Categories)
		categories = &v
	}

	if err := s.store.UpdateBook(ctx, b, authors, categories); err != nil {
		return nil, err
	}
	return s.bookResponse(ctx, b)
}

func (s *Service) DeleteBook(ctx context.Context, bookID int64) error {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if b == nil {
		return apperr.NotFound("book not found")
	}
	blocked, err := s.store.HasOutstandingLoans(ctx, bookID)
	if err != nil {
		return err
	}
	if blocked {
		return apperr.Conflict("book has active or overdue loans")
	}
	return s.store.DeleteBook(ctx, bookID)
}

func (s *Service) AddCopy(ctx context.Context, bookID int64) (*CopyResponse, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NotFound("book not found")
	}
	cp, err := s.store.AddCopy(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return &CopyResponse{CopyID: cp.CopyID, BookID: cp.BookID, Available: cp.Available}, nil
}

func (s *Service) ListCopies(ctx context.Context, bookID int64) ([]CopyResponse, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NotFound("book not found")
	}
	copies, err := s.store.ListCopies(ctx, bookID)
	if err != nil {
		return nil, err
	}
	out := make([]CopyResponse, 0, len(copies))
	for _, cp := range copies {
		out = append(out, CopyResponse{CopyID: cp.CopyID, BookID: cp.BookID, Available: cp.Available})
	}
	return out, nil
}

func (s *Service) RemoveCopy(ctx context.Context, bookID, copyID int64) error {
	cp, err := s.store.GetCopy(ctx, copyID)
	if err != nil {
		return err
	}
	if cp == nil || cp.BookID != bookID {
		return apperr.NotFound("copy not found")
	}
	onLoan, err := s.store.CopyHasOutstandingLoan(ctx, copyID)
	if err != nil {
		return err
	}
	if onLoan {
		return apperr.Conflict("copy has an active or overdue loan")
	}
	return s.store.RemoveCopy(ctx, copyID)
}

// ---------- helpers ----------

func applyOptional(b *Book, publisher *string, year *int, description *string) {
	if publisher != nil {
		b.Publisher = sql.NullString{String: *publisher, Valid: *publisher != ""}
	}
	if year != nil {
		b.PublishedYear = sql.NullInt64{Int64: int64(*year), Valid: *year != 0}
	}
	if description != nil {
		b.Description = sql.NullString{String: *description, Valid: *description != ""}
	}
}

func cleanNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *Service) bookResponse(ctx context.Context, b *Book) (*BookResponse, error) {
	authors, err := s.store.AuthorsOf(ctx, b.BookID)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.CategoriesOf(ctx, b.BookID)
	if err != nil {
		return nil, err
	}
	resp := buildBookResponse(b, authors, categories)
	return &resp, nil
}

func (s *Service) bookResponses(ctx context.Context, books []Book) ([]BookResponse, error) {
	out := make([]BookResponse, 0, len(books))
	for i := range books {
		resp, err := s.bookResponse(ctx, &books[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}

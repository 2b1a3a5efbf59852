package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql" // dialect import
	"github.com/jmoiron/sqlx"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/db"
)

// Store is the persistence port the catalog service talks to. Get methods
// return (nil, nil) when the record is absent.
type Store interface {
	InsertBook(ctx context.Context, b *Book, authors, categories []string) error
	GetBook(ctx context.Context, bookID int64) (*Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	SearchBooks(ctx context.Context, q SearchQuery) ([]Book, error)
	AuthorsOf(ctx context.Context, bookID int64) ([]string, error)
	CategoriesOf(ctx context.Context, bookID int64) ([]string, error)
	UpdateBook(ctx context.Context, b *Book, authors, categories *[]string) error
	HasOutstandingLoans(ctx context.Context, bookID int64) (bool, error)
	DeleteBook(ctx context.Context, bookID int64) error
	AddCopy(ctx context.Context, bookID int64) (*Copy, error)
	GetCopy(ctx context.Context, copyID int64) (*Copy, error)
	ListCopies(ctx context.Context, bookID int64) ([]Copy, error)
	CopyHasOutstandingLoan(ctx context.Context, copyID int64) (bool, error)
	RemoveCopy(ctx context.Context, copyID int64) error
}

var dialect = goqu.Dialect("mysql")

type MySQLStore struct{ db *sqlx.DB }

func NewStore(conn *sqlx.DB) *MySQLStore { return &MySQLStore{db: conn} }

const bookColumns = `book_id, isbn, title, publisher, published_year, description, created_at`

func (s *MySQLStore) InsertBook(ctx context.Context, b *Book, authors, categories []string) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO books (isbn, title, publisher, published_year, description)
VALUES (?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, q, b.ISBN, b.Title, b.Publisher, b.PublishedYear, b.Description)
		if err != nil {
			if db.IsDuplicateKey(err) {
				return apperr.Conflict("isbn already exists")
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		b.BookID = id

		if err := replaceAuthors(ctx, tx, id, authors); err != nil {
			return err
		}
		return replaceCategories(ctx, tx, id, categories)
	})
}

// replaceAuthors rewrites the ordered author links for a book,
// creating author rows on first sight.
func replaceAuthors(ctx context.Context, tx *sql.Tx, bookID int64, authors []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM book_authors WHERE book_id = ?`, bookID); err != nil {
		return err
	}
	for i, name := range authors {
		if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO authors (full_name) VALUES (?)`, name); err != nil {
			return err
		}
		var authorID int64
		if err := tx.QueryRowContext(ctx, `SELECT author_id FROM authors WHERE full_name = ?`, name).Scan(&authorID); err != nil {
			return err
		}
		const link = `INSERT INTO book_authors (book_id, author_id, position) VALUES (?, ?, ?)`
		if _, err := tx.ExecContext(ctx, link, bookID, authorID, i); err != nil {
			if db.IsDuplicateKey(err) {
				// Same author listed twice; keep the first position.
				continue
			}
			return err
		}
	}
	return nil
}

func replaceCategories(ctx context.Context, tx *sql.Tx, bookID int64, categories []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM book_categories WHERE book_id = ?`, bookID); err != nil {
		return err
	}
	for _, name := range categories {
		if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO categories (name) VALUES (?)`, name); err != nil {
			return err
		}
		var categoryID int64
		if err := tx.QueryRowContext(ctx, `SELECT category_id FROM categories WHERE name = ?`, name).Scan(&categoryID); err != nil {
			return err
		}
		const link = `INSERT IGNORE INTO book_categories (book_id, category_id) VALUES (?, ?)`
		if _, err := tx.ExecContext(ctx, link, bookID, categoryID); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) GetBook(ctx context.Context, bookID int64) (*Book, error) {
	var b Book
	err := s.db.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE book_id = ?`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *MySQLStore) GetBookByISBN(ctx context.Context, isbn string) (*Book, error) {
	var b Book
	err := s.db.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE isbn = ?`, isbn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *MySQLStore) ListBooks(ctx context.Context) ([]Book, error) {
	var out []Book
	err := s.db.SelectContext(ctx, &out, `SELECT `+bookColumns+` FROM books ORDER BY book_id`)
	return out, err
}

// SearchBooks builds the filter query dynamically. Text matches rely on the
// case-insensitive utf8mb4 collation; ISBN matches exactly.
func (s *MySQLStore) SearchBooks(ctx context.Context, q SearchQuery) ([]Book, error) {
	ds := dialect.From(goqu.T("books").As("b")).
		Select(
			goqu.I("b.book_id"), goqu.I("b.isbn"), goqu.I("b.title"),
			goqu.I("b.publisher"), goqu.I("b.published_year"),
			goqu.I("b.description"), goqu.I("b.created_at"),
		).
		Order(goqu.I("b.book_id").Asc())

	if q.ISBN != "" {
		ds = ds.Where(goqu.I("b.isbn").Eq(q.ISBN))
	}
	if q.Title != "" {
		ds = ds.Where(goqu.I("b.title").Like("%" + q.Title + "%"))
	}
	if q.Author != "" {
		ds = ds.Where(goqu.L(
			`EXISTS (SELECT 1 FROM book_authors ba JOIN authors a ON a.author_id = ba.author_id
			 WHERE ba.book_id = b.book_id AND a.full_name LIKE ?)`,
			"%"+q.Author+"%",
		))
	}
	if q.Category != "" {
		ds = ds.Where(goqu.L(
			`EXISTS (SELECT 1 FROM book_categories bc JOIN categories c ON c.category_id = bc.category_id
			 WHERE bc.book_id = b.book_id AND c.name LIKE ?)`,
			"%"+q.Category+"%",
		))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	var out []Book
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MySQLStore) AuthorsOf(ctx context.Context, bookID int64) ([]string, error) {
	const q = `
SELECT a.full_name
FROM book_authors ba
JOIN authors a ON a.author_id = ba.author_id
WHERE ba.book_id = ?
ORDER BY ba.position`
	var out []string
	err := s.db.SelectContext(ctx, &out, q, bookID)
	return out, err
}

func (s *MySQLStore) CategoriesOf(ctx context.Context, bookID int64) ([]string, error) {
	const q = `
SELECT c.name
FROM book_categories bc
JOIN categories c ON c.category_id = bc.category_id
WHERE bc.book_id = ?
ORDER BY c.name`
	var out []string
	err := s.db.SelectContext(ctx, &out, q, bookID)
	return out, err
}

func (s *MySQLStore) UpdateBook(ctx context.Context, b *Book, authors, categories *[]string) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE books
SET isbn = ?, title = ?, publisher = ?, published_year = ?, description = ?
WHERE book_id = ?`
		if _, err := tx.ExecContext(ctx, q, b.ISBN, b.Title, b.Publisher, b.PublishedYear, b.Description, b.BookID); err != nil {
			if db.IsDuplicateKey(err) {
				return apperr.Conflict("isbn already exists")
			}
			return err
		}
		if authors != nil {
			if err := replaceAuthors(ctx, tx, b.BookID, *authors); err != nil {
				return err
			}
		}
		if categories != nil {
			if err := replaceCategories(ctx, tx, b.BookID, *categories); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MySQLStore) HasOutstandingLoans(ctx context.Context, bookID int64) (bool, error) {
	const q = `
SELECT EXISTS (
	SELECT 1 FROM loans l
	JOIN copies c ON c.copy_id = l.copy_id
	WHERE c.book_id = ? AND l.status IN ('active','overdue')
)`
	var exists bool
	err := s.db.GetContext(ctx, &exists, q, bookID)
	return exists, err
}

func (s *MySQLStore) DeleteBook(ctx context.Context, bookID int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Re-check inside the transaction so a concurrent issue cannot
		// slip between the service's guard and the delete.
		const guard = `
SELECT COUNT(*) FROM loans l
JOIN copies c ON c.copy_id = l.copy_id
WHERE c.book_id = ? AND l.status IN ('active','overdue')
FOR UPDATE`
		var blocked int
		if err := tx.QueryRowContext(ctx, guard, bookID).Scan(&blocked); err != nil {
			return err
		}
		if blocked > 0 {
			return apperr.Conflict("book has active or overdue loans")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE book_id = ?`, bookID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("book not found")
		}
		return nil
	})
}

func (s *MySQLStore) AddCopy(ctx context.Context, bookID int64) (*Copy, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO copies (book_id) VALUES (?)`, bookID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, apperr.NotFound("book not found")
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Copy{CopyID: id, BookID: bookID, Available: true}, nil
}

const copySelect = `
SELECT c.copy_id, c.book_id,
	NOT EXISTS (
		SELECT 1 FROM loans l
		WHERE l.copy_id = c.copy_id AND l.status IN ('active','overdue')
	) AS available
FROM copies c`

func (s *MySQLStore) GetCopy(ctx context.Context, copyID int64) (*Copy, error) {
	var cp Copy
	err := s.db.GetContext(ctx, &cp, copySelect+` WHERE c.copy_id = ?`, copyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MySQLStore) ListCopies(ctx context.Context, bookID int64) ([]Copy, error) {
	var out []Copy
	err := s.db.SelectContext(ctx, &out, copySelect+` WHERE c.book_id = ? ORDER BY c.copy_id`, bookID)
	return out, err
}

func (s *MySQLStore) CopyHasOutstandingLoan(ctx context.Context, copyID int64) (bool, error) {
	const q = `
SELECT EXISTS (
	SELECT 1 FROM loans WHERE copy_id = ? AND status IN ('active','overdue')
)`
	var exists bool
	err := s.db.GetContext(ctx, &exists, q, copyID)
	return exists, err
}

func (s *MySQLStore) RemoveCopy(ctx context.Context, copyID int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const guard = `
SELECT COUNT(*) FROM loans
WHERE copy_id = ? AND status IN ('active','overdue')
FOR UPDATE`
		var blocked int
		if err := tx.QueryRowContext(ctx, guard, copyID).Scan(&blocked); err != nil {
			return err
		}
		if blocked > 0 {
			return apperr.Conflict("copy has an active or overdue loan")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM copies WHERE copy_id = ?`, copyID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("copy not found")
		}
		return nil
	})
}

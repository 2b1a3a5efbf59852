package catalog

import (
	"database/sql"
	"time"
)

// Book is one row of the books table. Authors and categories live in
// their own tables and are joined in by the store.
type Book struct {
	BookID        int64          `db:"book_id"`
	ISBN          string         `db:"isbn"`
	Title         string         `db:"title"`
	Publisher     sql.NullString `db:"publisher"`
	PublishedYear sql.NullInt64  `db:"published_year"`
	Description   sql.NullString `db:"description"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Copy is one lend-able unit of a book. Available is derived state: no
// active or overdue loan references the copy.
type Copy struct {
	CopyID    int64 `db:"copy_id"`
	BookID    int64 `db:"book_id"`
	Available bool  `db:"available"`
}

// SearchQuery combines optional filters. ISBN matches exactly, the text
// fields match partially and case-insensitively.
type SearchQuery struct {
	ISBN     string
	Title    string
	Author   string
	Category string
}

func (q SearchQuery) Empty() bool {
	return q.ISBN == "" && q.Title == "" && q.Author == "" && q.Category == ""
}

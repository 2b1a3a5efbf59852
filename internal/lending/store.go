package lending

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"libris-backend/internal/platform/db"
	"libris-backend/internal/reservation"
)

// Store is the persistence port for the lending engine. Issue and return run
// inside InTx so every row they touch is covered by one transaction.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetLoan(ctx context.Context, loanID int64) (*Loan, error)
	List(ctx context.Context) ([]Loan, error)
	ListByStatus(ctx context.Context, status Status) ([]Loan, error)
	ListByMember(ctx context.Context, memberID int64) ([]Loan, error)
	// SweepOverdue flips active loans past due to overdue and reports how
	// many changed.
	SweepOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Tx is the slice of the store visible inside a lending transaction. Row
// locks taken through it are held until InTx returns.
type Tx interface {
	MemberForUpdate(ctx context.Context, memberID int64) (*MemberStanding, error)
	OutstandingLoans(ctx context.Context, memberID int64) (int, error)
	BookExists(ctx context.Context, bookID int64) (bool, error)
	// AvailableCopies locks and returns the book's candidate copies in
	// ascending id order. The availability filter may be stale relative
	// to concurrently committed loans, so callers must confirm each
	// candidate with CopyOnLoan before issuing against it.
	AvailableCopies(ctx context.Context, bookID int64) ([]int64, error)
	// CopyOnLoan reports whether the copy has an outstanding loan, read
	// at latest committed state.
	CopyOnLoan(ctx context.Context, copyID int64) (bool, error)
	InsertLoan(ctx context.Context, l *Loan) error
	LoanForUpdate(ctx context.Context, loanID int64) (*Loan, error)
	MarkReturned(ctx context.Context, loanID int64, at time.Time) error
	BookOfCopy(ctx context.Context, copyID int64) (int64, error)
	ExpireReservations(ctx context.Context, bookID int64, now time.Time) (int64, error)
	ReservationQueue(ctx context.Context, bookID int64) ([]reservation.Head, error)
	ConvertReservation(ctx context.Context, reservationID int64) (bool, error)
}

type MySQLStore struct{ db *sqlx.DB }

func NewStore(conn *sqlx.DB) *MySQLStore { return &MySQLStore{db: conn} }

const loanColumns = `loan_id, loan_ulid, member_id, copy_id, librarian_id, issue_date, due_date, return_date, status`

func (s *MySQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &mysqlTx{tx: tx})
	})
}

func (s *MySQLStore) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	var l Loan
	err := s.db.GetContext(ctx, &l, `SELECT `+loanColumns+` FROM loans WHERE loan_id = ?`, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *MySQLStore) List(ctx context.Context) ([]Loan, error) {
	var out []Loan
	err := s.db.SelectContext(ctx, &out, `SELECT `+loanColumns+` FROM loans ORDER BY loan_id`)
	return out, err
}

func (s *MySQLStore) ListByStatus(ctx context.Context, status Status) ([]Loan, error) {
	var out []Loan
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+loanColumns+` FROM loans WHERE status = ? ORDER BY loan_id`, status)
	return out, err
}

func (s *MySQLStore) ListByMember(ctx context.Context, memberID int64) ([]Loan, error) {
	var out []Loan
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+loanColumns+` FROM loans WHERE member_id = ? ORDER BY loan_id`, memberID)
	return out, err
}

func (s *MySQLStore) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE loans SET status = 'overdue' WHERE status = 'active' AND due_date < ?`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type mysqlTx struct{ tx *sql.Tx }

func (t *mysqlTx) MemberForUpdate(ctx context.Context, memberID int64) (*MemberStanding, error) {
	const q = `SELECT member_id, status = 'suspended' AS suspended FROM members WHERE member_id = ? FOR UPDATE`
	var st MemberStanding
	err := t.tx.QueryRowContext(ctx, q, memberID).Scan(&st.MemberID, &st.Suspended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (t *mysqlTx) OutstandingLoans(ctx context.Context, memberID int64) (int, error) {
	// Locking read: a consistent-snapshot count could miss loans committed
	// after this transaction's snapshot was pinned, letting a member slip
	// past the cap.
	const q = `SELECT COUNT(*) FROM loans WHERE member_id = ? AND status IN ('active', 'overdue') FOR UPDATE`
	var n int
	err := t.tx.QueryRowContext(ctx, q, memberID).Scan(&n)
	return n, err
}

func (t *mysqlTx) BookExists(ctx context.Context, bookID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE book_id = ?)`, bookID).Scan(&exists)
	return exists, err
}

func (t *mysqlTx) AvailableCopies(ctx context.Context, bookID int64) ([]int64, error) {
	// The NOT EXISTS prefilter runs against the transaction snapshot even
	// though FOR UPDATE locks the copy rows at latest version; it can list
	// a copy whose loan committed after the snapshot was pinned. CopyOnLoan
	// is the authoritative check.
	const q = `
SELECT c.copy_id FROM copies c
WHERE c.book_id = ?
  AND NOT EXISTS (
    SELECT 1 FROM loans l
    WHERE l.copy_id = c.copy_id AND l.status IN ('active', 'overdue')
  )
ORDER BY c.copy_id
FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var copyID int64
		if err := rows.Scan(&copyID); err != nil {
			return nil, err
		}
		out = append(out, copyID)
	}
	return out, rows.Err()
}

func (t *mysqlTx) CopyOnLoan(ctx context.Context, copyID int64) (bool, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE copy_id = ? AND status IN ('active', 'overdue') FOR UPDATE`
	var n int
	err := t.tx.QueryRowContext(ctx, q, copyID).Scan(&n)
	return n > 0, err
}

func (t *mysqlTx) InsertLoan(ctx context.Context, l *Loan) error {
	const q = `
INSERT INTO loans (loan_ulid, member_id, copy_id, librarian_id, issue_date, due_date, status)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q,
		l.LoanULID, l.MemberID, l.CopyID, l.LibrarianID, l.IssueDate, l.DueDate, l.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.LoanID = id
	return nil
}

func (t *mysqlTx) LoanForUpdate(ctx context.Context, loanID int64) (*Loan, error) {
	const q = `SELECT ` + loanColumns + ` FROM loans WHERE loan_id = ? FOR UPDATE`
	var l Loan
	err := t.tx.QueryRowContext(ctx, q, loanID).Scan(
		&l.LoanID, &l.LoanULID, &l.MemberID, &l.CopyID, &l.LibrarianID,
		&l.IssueDate, &l.DueDate, &l.ReturnDate, &l.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *mysqlTx) MarkReturned(ctx context.Context, loanID int64, at time.Time) error {
	const q = `UPDATE loans SET status = 'returned', return_date = ? WHERE loan_id = ?`
	_, err := t.tx.ExecContext(ctx, q, at, loanID)
	return err
}

func (t *mysqlTx) BookOfCopy(ctx context.Context, copyID int64) (int64, error) {
	var bookID int64
	err := t.tx.QueryRowContext(ctx, `SELECT book_id FROM copies WHERE copy_id = ?`, copyID).Scan(&bookID)
	return bookID, err
}

func (t *mysqlTx) ExpireReservations(ctx context.Context, bookID int64, now time.Time) (int64, error) {
	return reservation.ExpireForBookTx(ctx, t.tx, bookID, now)
}

func (t *mysqlTx) ReservationQueue(ctx context.Context, bookID int64) ([]reservation.Head, error) {
	return reservation.QueueForBookTx(ctx, t.tx, bookID)
}

func (t *mysqlTx) ConvertReservation(ctx context.Context, reservationID int64) (bool, error) {
	return reservation.ConvertTx(ctx, t.tx, reservationID)
}

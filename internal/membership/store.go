package membership

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/db"
)

// Store is the persistence port for members. Get methods return (nil, nil)
// when the record is absent. The loan/reservation lookups are read-only
// views used to guard deletion.
type Store interface {
	Insert(ctx context.Context, m *Member) error
	Get(ctx context.Context, memberID int64) (*Member, error)
	GetByEmail(ctx context.Context, email string) (*Member, error)
	List(ctx context.Context) ([]Member, error)
	Update(ctx context.Context, m *Member) error
	SetStatus(ctx context.Context, memberID int64, status Status) (int64, error)
	HasOutstandingLoans(ctx context.Context, memberID int64) (bool, error)
	HasActiveReservations(ctx context.Context, memberID int64) (bool, error)
	Delete(ctx context.Context, memberID int64) error
}

type MySQLStore struct{ db *sqlx.DB }

func NewStore(conn *sqlx.DB) *MySQLStore { return &MySQLStore{db: conn} }

const memberColumns = `member_id, name, email, phone, status, join_date`

func (s *MySQLStore) Insert(ctx context.Context, m *Member) error {
	const q = `
INSERT INTO members (name, email, phone, status, join_date)
VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, m.Name, m.Email, m.Phone, m.Status, m.JoinDate)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return apperr.Conflict("email already registered")
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.MemberID = id
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, memberID int64) (*Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE member_id = ?`, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MySQLStore) GetByEmail(ctx context.Context, email string) (*Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MySQLStore) List(ctx context.Context) ([]Member, error) {
	var out []Member
	err := s.db.SelectContext(ctx, &out, `SELECT `+memberColumns+` FROM members ORDER BY member_id`)
	return out, err
}

func (s *MySQLStore) Update(ctx context.Context, m *Member) error {
	const q = `
UPDATE members SET name = ?, email = ?, phone = ? WHERE member_id = ?`
	_, err := s.db.ExecContext(ctx, q, m.Name, m.Email, m.Phone, m.MemberID)
	if err != nil && db.IsDuplicateKey(err) {
		return apperr.Conflict("email already registered")
	}
	return err
}

func (s *MySQLStore) SetStatus(ctx context.Context, memberID int64, status Status) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE members SET status = ? WHERE member_id = ?`, status, memberID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *MySQLStore) HasOutstandingLoans(ctx context.Context, memberID int64) (bool, error) {
	const q = `
SELECT EXISTS (
	SELECT 1 FROM loans WHERE member_id = ? AND status IN ('active','overdue')
)`
	var exists bool
	err := s.db.GetContext(ctx, &exists, q, memberID)
	return exists, err
}

func (s *MySQLStore) HasActiveReservations(ctx context.Context, memberID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM reservations WHERE member_id = ? AND active = 1)`
	var exists bool
	err := s.db.GetContext(ctx, &exists, q, memberID)
	return exists, err
}

func (s *MySQLStore) Delete(ctx context.Context, memberID int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Same guard the service applies, re-run under row locks so a
		// concurrent issue/reserve cannot race the delete.
		const loanGuard = `
SELECT COUNT(*) FROM loans
WHERE member_id = ? AND status IN ('active','overdue')
FOR UPDATE`
		const resGuard = `
SELECT COUNT(*) FROM reservations
WHERE member_id = ? AND active = 1
FOR UPDATE`
		var loanCount, resCount int
		if err := tx.QueryRowContext(ctx, loanGuard, memberID).Scan(&loanCount); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, resGuard, memberID).Scan(&resCount); err != nil {
			return err
		}
		if loanCount > 0 {
			return apperr.Conflict("member has active or overdue loans")
		}
		if resCount > 0 {
			return apperr.Conflict("member has active reservations")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE member_id = ?`, memberID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("member not found")
		}
		return nil
	})
}

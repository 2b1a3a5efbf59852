package reservation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store is the persistence port for the reservation queue. The queue reads
// member and book state but never writes it.
type Store interface {
	MemberStanding(ctx context.Context, memberID int64) (*Standing, error)
	BookExists(ctx context.Context, bookID int64) (bool, error)
	Insert(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, reservationID int64) (*Reservation, error)
	List(ctx context.Context) ([]Reservation, error)
	ListByMember(ctx context.Context, memberID int64) ([]Reservation, error)
	// Deactivate flips active to false with the given reason; returns the
	// number of rows changed (zero when the reservation was already
	// inactive).
	Deactivate(ctx context.Context, reservationID int64, reason Reason) (int64, error)
	// ExpireAll deactivates every active reservation whose expiry has
	// passed and reports how many changed.
	ExpireAll(ctx context.Context, now time.Time) (int64, error)
}

type MySQLStore struct{ db *sqlx.DB }

func NewStore(conn *sqlx.DB) *MySQLStore { return &MySQLStore{db: conn} }

const reservationColumns = `reservation_id, reservation_ulid, member_id, book_id, created_at, expires_at, active, reason`

func (s *MySQLStore) MemberStanding(ctx context.Context, memberID int64) (*Standing, error) {
	const q = `SELECT member_id, status = 'suspended' AS suspended FROM members WHERE member_id = ?`
	var st Standing
	err := s.db.GetContext(ctx, &st, q, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MySQLStore) BookExists(ctx context.Context, bookID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE book_id = ?)`, bookID)
	return exists, err
}

func (s *MySQLStore) Insert(ctx context.Context, r *Reservation) error {
	const q = `
INSERT INTO reservations (reservation_ulid, member_id, book_id, created_at, expires_at, active)
VALUES (?, ?, ?, ?, ?, 1)`
	res, err := s.db.ExecContext(ctx, q, r.ReservationULID, r.MemberID, r.BookID, r.CreatedAt, r.ExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ReservationID = id
	r.Active = true
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, reservationID int64) (*Reservation, error) {
	var r Reservation
	err := s.db.GetContext(ctx, &r, `SELECT `+reservationColumns+` FROM reservations WHERE reservation_id = ?`, reservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *MySQLStore) List(ctx context.Context) ([]Reservation, error) {
	var out []Reservation
	err := s.db.SelectContext(ctx, &out, `SELECT `+reservationColumns+` FROM reservations ORDER BY reservation_id`)
	return out, err
}

func (s *MySQLStore) ListByMember(ctx context.Context, memberID int64) ([]Reservation, error) {
	var out []Reservation
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+reservationColumns+` FROM reservations WHERE member_id = ? ORDER BY reservation_id`, memberID)
	return out, err
}

func (s *MySQLStore) Deactivate(ctx context.Context, reservationID int64, reason Reason) (int64, error) {
	const q = `UPDATE reservations SET active = 0, reason = ? WHERE reservation_id = ? AND active = 1`
	res, err := s.db.ExecContext(ctx, q, reason, reservationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *MySQLStore) ExpireAll(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE reservations SET active = 0, reason = 'expired'
WHERE active = 1 AND expires_at <= ?`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

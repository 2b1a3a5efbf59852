package reservation

import (
	"context"
	"database/sql"
	"time"
)

// Transaction-scoped helpers for callers that mutate the queue as part of a
// larger unit of work, such as promoting the head of the queue when a copy
// is returned. All queue writes stay in this package.

// ExpireForBookTx deactivates the lapsed reservations of one book so an
// expired entry can never be promoted.
func ExpireForBookTx(ctx context.Context, tx *sql.Tx, bookID int64, now time.Time) (int64, error) {
	const q = `
UPDATE reservations SET active = 0, reason = 'expired'
WHERE book_id = ? AND active = 1 AND expires_at <= ?`
	res, err := tx.ExecContext(ctx, q, bookID, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// QueueForBookTx returns the active reservations for a book in promotion
// order, locking the rows for the duration of the transaction.
func QueueForBookTx(ctx context.Context, tx *sql.Tx, bookID int64) ([]Head, error) {
	const q = `
SELECT reservation_id, member_id FROM reservations
WHERE book_id = ? AND active = 1
ORDER BY created_at, reservation_id
FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heads []Head
	for rows.Next() {
		var h Head
		if err := rows.Scan(&h.ReservationID, &h.MemberID); err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}
	return heads, rows.Err()
}

// ConvertTx marks a reservation as fulfilled by a loan. Reports whether the
// row actually changed.
func ConvertTx(ctx context.Context, tx *sql.Tx, reservationID int64) (bool, error) {
	const q = `UPDATE reservations SET active = 0, reason = 'converted' WHERE reservation_id = ? AND active = 1`
	res, err := tx.ExecContext(ctx, q, reservationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

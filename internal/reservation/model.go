package reservation

import (
	"database/sql"
	"time"
)

// Reason records why a reservation was deactivated.
type Reason string

const (
	ReasonCancelled Reason = "cancelled"
	ReasonExpired   Reason = "expired"
	ReasonConverted Reason = "converted"
)

type Reservation struct {
	ReservationID   int64          `db:"reservation_id"`
	ReservationULID string         `db:"reservation_ulid"`
	MemberID        int64          `db:"member_id"`
	BookID          int64          `db:"book_id"`
	CreatedAt       time.Time      `db:"created_at"`
	ExpiresAt       time.Time      `db:"expires_at"`
	Active          bool           `db:"active"`
	Reason          sql.NullString `db:"reason"`
}

// Head is one entry of the promotion queue for a book, ordered by
// created_at then reservation id.
type Head struct {
	ReservationID int64 `db:"reservation_id"`
	MemberID      int64 `db:"member_id"`
}

// Standing is the slice of member state the queue needs for eligibility.
type Standing struct {
	MemberID  int64 `db:"member_id"`
	Suspended bool  `db:"suspended"`
}

package reservation

import "time"

type CreateReservationRequest struct {
	MemberID  int64 `json:"member_id" binding:"required"`
	BookID    int64 `json:"book_id" binding:"required"`
	DaysValid *int  `json:"days_valid,omitempty"`
}

type ReservationResponse struct {
	ReservationID   int64     `json:"reservation_id"`
	ReservationULID string    `json:"reservation_ulid"`
	MemberID        int64     `json:"member_id"`
	BookID          int64     `json:"book_id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Active          bool      `json:"active"`
	Reason          *string   `json:"reason,omitempty"`
}

func buildReservationResponse(r *Reservation) ReservationResponse {
	resp := ReservationResponse{
		ReservationID:   r.ReservationID,
		ReservationULID: r.ReservationULID,
		MemberID:        r.MemberID,
		BookID:          r.BookID,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
		Active:          r.Active,
	}
	if r.Reason.Valid {
		v := r.Reason.String
		resp.Reason = &v
	}
	return resp
}

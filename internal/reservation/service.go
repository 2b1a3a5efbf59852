package reservation

import (
	"context"

	"github.com/oklog/ulid/v2"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/clockwork"
)

type Service struct {
	store       Store
	clock       clockwork.Clock
	defaultDays int
}

func NewService(store Store, clock clockwork.Clock, defaultDaysValid int) *Service {
	return &Service{store: store, clock: clock, defaultDays: defaultDaysValid}
}

func (s *Service) Create(ctx context.Context, req CreateReservationRequest) (*ReservationResponse, error) {
	if req.MemberID <= 0 || req.BookID <= 0 {
		return nil, apperr.Invalid("member_id and book_id are required")
	}
	// Non-positive day counts fall back to the configured default.
	days := s.defaultDays
	if req.DaysValid != nil && *req.DaysValid > 0 {
		days = *req.DaysValid
	}

	standing, err := s.store.MemberStanding(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if standing == nil {
		return nil, apperr.NotFound("member not found")
	}
	if standing.Suspended {
		return nil, apperr.Forbidden("member is suspended")
	}

	exists, err := s.store.BookExists(ctx, req.BookID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("book not found")
	}

	now := s.clock.Now()
	r := &Reservation{
		ReservationULID: ulid.Make().String(),
		MemberID:        req.MemberID,
		BookID:          req.BookID,
		CreatedAt:       now,
		ExpiresAt:       now.AddDate(0, 0, days),
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}
	resp := buildReservationResponse(r)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, reservationID int64) (*ReservationResponse, error) {
	r, err := s.store.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("reservation not found")
	}
	resp := buildReservationResponse(r)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]ReservationResponse, error) {
	rs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return buildReservationResponses(rs), nil
}

func (s *Service) ListByMember(ctx context.Context, memberID int64) ([]ReservationResponse, error) {
	rs, err := s.store.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return buildReservationResponses(rs), nil
}

// Cancel deactivates an active reservation. Cancelling one that already
// lapsed, converted or was cancelled is a conflict, not a repeatable no-op.
func (s *Service) Cancel(ctx context.Context, reservationID int64) error {
	r, err := s.store.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if r == nil {
		return apperr.NotFound("reservation not found")
	}
	if !r.Active {
		return apperr.Conflict("reservation is not active")
	}
	n, err := s.store.Deactivate(ctx, reservationID, ReasonCancelled)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Conflict("reservation is not active")
	}
	return nil
}

// ExpireSweep deactivates every reservation that lapsed before now. Safe to
// run repeatedly; a second sweep at the same instant changes nothing.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	return s.store.ExpireAll(ctx, s.clock.Now())
}

func buildReservationResponses(rs []Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(rs))
	for i := range rs {
		out = append(out, buildReservationResponse(&rs[i]))
	}
	return out
}

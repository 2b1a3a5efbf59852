package membership

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/clockwork"
)

type Service struct {
	store Store
	clock clockwork.Clock
}

func NewService(store Store, clock clockwork.Clock) *Service {
	return &Service{store: store, clock: clock}
}

func (s *Service) Register(ctx context.Context, req RegisterMemberRequest) (*MemberResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, apperr.Invalid("name and email are required")
	}

	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("email already registered")
	}

	m := &Member{
		Name:     name,
		Email:    email,
		Status:   StatusActive,
		JoinDate: s.clock.Now().Truncate(24 * time.Hour),
	}
	if req.Phone != nil && *req.Phone != "" {
		m.Phone = sql.NullString{String: *req.Phone, Valid: true}
	}

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	resp := buildMemberResponse(m)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, memberID int64) (*MemberResponse, error) {
	m, err := s.store.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound("member not found")
	}
	resp := buildMemberResponse(m)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]MemberResponse, error) {
	members, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MemberResponse, 0, len(members))
	for i := range members {
		out = append(out, buildMemberResponse(&members[i]))
	}
	return out, nil
}

// Update applies a partial patch; absent fields keep their stored values.
func (s *Service) Update(ctx context.Context, memberID int64, req UpdateMemberRequest) (*MemberResponse, error) {
	m, err := s.store.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound("member not found")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Invalid("name must not be empty")
		}
		m.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" {
			return nil, apperr.Invalid("email must not be empty")
		}
		m.Email = email
	}
	if req.Phone != nil {
		m.Phone = sql.NullString{String: *req.Phone, Valid: *req.Phone != ""}
	}

	if err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}
	resp := buildMemberResponse(m)
	return &resp, nil
}

// Suspend is idempotent: suspending an already-suspended member succeeds
// without change. Loans already in progress are unaffected.
func (s *Service) Suspend(ctx context.Context, memberID int64) error {
	m, err := s.store.Get(ctx, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return apperr.NotFound("member not found")
	}
	if m.Status == StatusSuspended {
		return nil
	}
	_, err = s.store.SetStatus(ctx, memberID, StatusSuspended)
	return err
}

func (s *Service) Delete(ctx context.Context, memberID int64) error {
	m, err := s.store.Get(ctx, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return apperr.NotFound("member not found")
	}
	hasLoans, err := s.store.HasOutstandingLoans(ctx, memberID)
	if err != nil {
		return err
	}
	if hasLoans {
		return apperr.Conflict("member has active or overdue loans")
	}
	hasRes, err := s.store.HasActiveReservations(ctx, memberID)
	if err != nil {
		return err
	}
	if hasRes {
		return apperr.Conflict("member has active reservations")
	}
	return s.store.Delete(ctx, memberID)
}

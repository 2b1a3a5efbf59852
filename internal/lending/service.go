package lending

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/clockwork"
)

type Service struct {
	store           Store
	clock           clockwork.Clock
	maxActiveLoans  int
	defaultLoanDays int
}

func NewService(store Store, clock clockwork.Clock, maxActiveLoans, defaultLoanDays int) *Service {
	return &Service{
		store:           store,
		clock:           clock,
		maxActiveLoans:  maxActiveLoans,
		defaultLoanDays: defaultLoanDays,
	}
}

// Issue lends the lowest-id available copy of a book to a member. The member
// row is locked first so concurrent issues for the same member serialize on
// the loan limit.
func (s *Service) Issue(ctx context.Context, req IssueRequest, librarianID int64) (*LoanResponse, error) {
	if req.MemberID <= 0 || req.BookID <= 0 {
		return nil, apperr.Invalid("member_id and book_id are required")
	}
	// Non-positive day counts fall back to the configured default.
	days := s.defaultLoanDays
	if req.Days != nil && *req.Days > 0 {
		days = *req.Days
	}

	var loan *Loan
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		standing, err := tx.MemberForUpdate(ctx, req.MemberID)
		if err != nil {
			return err
		}
		if standing == nil {
			return apperr.NotFound("member not found")
		}
		if standing.Suspended {
			return apperr.Forbidden("member is suspended")
		}

		outstanding, err := tx.OutstandingLoans(ctx, req.MemberID)
		if err != nil {
			return err
		}
		if outstanding >= s.maxActiveLoans {
			return apperr.Conflict("loan limit reached")
		}

		exists, err := tx.BookExists(ctx, req.BookID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("book not found")
		}

		copyID, err := pickCopy(ctx, tx, req.BookID)
		if err != nil {
			return err
		}
		if copyID == 0 {
			return apperr.Unavailable("no copies available")
		}

		loan = s.newLoan(req.MemberID, copyID, librarianID, days)
		return tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}
	resp := buildLoanResponse(loan)
	return &resp, nil
}

// pickCopy returns the lowest-id copy of the book that is confirmed free.
// The candidate list may include copies whose loans committed after the
// transaction snapshot was pinned, so each one is re-checked with a locking
// read before it is issued; two concurrent issues of the last copy serialize
// on the copy row lock and the loser sees the new loan here.
func pickCopy(ctx context.Context, tx Tx, bookID int64) (int64, error) {
	candidates, err := tx.AvailableCopies(ctx, bookID)
	if err != nil {
		return 0, err
	}
	for _, copyID := range candidates {
		onLoan, err := tx.CopyOnLoan(ctx, copyID)
		if err != nil {
			return 0, err
		}
		if !onLoan {
			return copyID, nil
		}
	}
	return 0, nil
}

// Return closes a loan and, in the same transaction, promotes the first
// eligible reservation for the returned copy's book. Either both the close
// and the promotion land or neither does.
func (s *Service) Return(ctx context.Context, req ReturnRequest, librarianID int64) (*ReturnResponse, error) {
	if req.LoanID <= 0 {
		return nil, apperr.Invalid("loan_id is required")
	}

	var result ReturnResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		loan, err := tx.LoanForUpdate(ctx, req.LoanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return apperr.NotFound("loan not found")
		}
		if loan.Status == StatusReturned {
			return apperr.Conflict("loan already returned")
		}

		now := s.clock.Now()
		if err := tx.MarkReturned(ctx, loan.LoanID, now); err != nil {
			return err
		}
		loan.Status = StatusReturned
		loan.ReturnDate.Time = now
		loan.ReturnDate.Valid = true
		result.Loan = loan

		bookID, err := tx.BookOfCopy(ctx, loan.CopyID)
		if err != nil {
			return err
		}
		if _, err := tx.ExpireReservations(ctx, bookID, now); err != nil {
			return err
		}
		return s.promote(ctx, tx, bookID, loan.CopyID, librarianID, &result)
	})
	if err != nil {
		return nil, err
	}

	resp := &ReturnResponse{Loan: buildLoanResponse(result.Loan)}
	if result.Promoted != nil {
		p := buildLoanResponse(result.Promoted)
		resp.Promoted = &p
		id := result.ConvertedReservation
		resp.ConvertedReservation = &id
	}
	return resp, nil
}

// promote walks the book's queue in order and issues the freed copy to the
// first member who could borrow it right now. Ineligible heads keep their
// reservations and their place in line.
func (s *Service) promote(ctx context.Context, tx Tx, bookID, copyID, librarianID int64, result *ReturnResult) error {
	heads, err := tx.ReservationQueue(ctx, bookID)
	if err != nil {
		return err
	}
	for _, head := range heads {
		standing, err := tx.MemberForUpdate(ctx, head.MemberID)
		if err != nil {
			return err
		}
		if standing == nil || standing.Suspended {
			continue
		}
		outstanding, err := tx.OutstandingLoans(ctx, head.MemberID)
		if err != nil {
			return err
		}
		if outstanding >= s.maxActiveLoans {
			continue
		}

		converted, err := tx.ConvertReservation(ctx, head.ReservationID)
		if err != nil {
			return err
		}
		if !converted {
			continue
		}

		promoted := s.newLoan(head.MemberID, copyID, librarianID, s.defaultLoanDays)
		if err := tx.InsertLoan(ctx, promoted); err != nil {
			return err
		}
		result.Promoted = promoted
		result.ConvertedReservation = head.ReservationID
		return nil
	}
	return nil
}

// Sweep marks active loans past their due date overdue. A loan due today is
// not yet overdue. Running it twice at the same instant is a no-op the
// second time.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	today := s.clock.Now().Truncate(24 * time.Hour)
	return s.store.SweepOverdue(ctx, today)
}

func (s *Service) Get(ctx context.Context, loanID int64) (*LoanResponse, error) {
	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperr.NotFound("loan not found")
	}
	resp := buildLoanResponse(l)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]LoanResponse, error) {
	ls, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return buildLoanResponses(ls), nil
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]LoanResponse, error) {
	ls, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return buildLoanResponses(ls), nil
}

func (s *Service) ListByMember(ctx context.Context, memberID int64) ([]LoanResponse, error) {
	ls, err := s.store.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return buildLoanResponses(ls), nil
}

func (s *Service) newLoan(memberID, copyID, librarianID int64, days int) *Loan {
	today := s.clock.Now().Truncate(24 * time.Hour)
	return &Loan{
		LoanULID:    ulid.Make().String(),
		MemberID:    memberID,
		CopyID:      copyID,
		LibrarianID: librarianID,
		IssueDate:   today,
		DueDate:     today.AddDate(0, 0, days),
		Status:      StatusActive,
	}
}

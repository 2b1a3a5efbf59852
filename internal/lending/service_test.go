package lending

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/clockwork"
	"libris-backend/internal/reservation"
)

type fakeMember struct {
	id        int64
	suspended bool
}

type fakeReservation struct {
	id        int64
	memberID  int64
	bookID    int64
	createdAt time.Time
	expiresAt time.Time
	active    bool
	reason    string
}

type fakeState struct {
	members      map[int64]*fakeMember
	books        map[int64]bool
	copies       map[int64]int64
	loans        map[int64]*Loan
	nextLoan     int64
	reservations map[int64]*fakeReservation
}

func (s *fakeState) clone() *fakeState {
	cp := &fakeState{
		members:      map[int64]*fakeMember{},
		books:        map[int64]bool{},
		copies:       map[int64]int64{},
		loans:        map[int64]*Loan{},
		nextLoan:     s.nextLoan,
		reservations: map[int64]*fakeReservation{},
	}
	for k, v := range s.members {
		m := *v
		cp.members[k] = &m
	}
	for k, v := range s.books {
		cp.books[k] = v
	}
	for k, v := range s.copies {
		cp.copies[k] = v
	}
	for k, v := range s.loans {
		l := *v
		cp.loans[k] = &l
	}
	for k, v := range s.reservations {
		r := *v
		cp.reservations[k] = &r
	}
	return cp
}

// fakeStore runs each InTx body against a copy of the state and swaps the
// copy in only when the body returns nil, mirroring commit and rollback.
// With staleAvailability set, AvailableCopies ignores loans entirely, the
// way a consistent-read prefilter misses loans committed after the
// transaction snapshot was pinned; CopyOnLoan always answers from latest
// state.
type fakeStore struct {
	state             *fakeState
	failInsert        bool
	staleAvailability bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: &fakeState{
		members:      map[int64]*fakeMember{},
		books:        map[int64]bool{},
		copies:       map[int64]int64{},
		loans:        map[int64]*Loan{},
		nextLoan:     1,
		reservations: map[int64]*fakeReservation{},
	}}
}

func (f *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	working := f.state.clone()
	if err := fn(ctx, &fakeTx{state: working, store: f}); err != nil {
		return err
	}
	f.state = working
	return nil
}

func (f *fakeStore) GetLoan(_ context.Context, loanID int64) (*Loan, error) {
	l, ok := f.state.loans[loanID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) List(_ context.Context) ([]Loan, error) {
	return f.listWhere(func(*Loan) bool { return true }), nil
}

func (f *fakeStore) ListByStatus(_ context.Context, status Status) ([]Loan, error) {
	return f.listWhere(func(l *Loan) bool { return l.Status == status }), nil
}

func (f *fakeStore) ListByMember(_ context.Context, memberID int64) ([]Loan, error) {
	return f.listWhere(func(l *Loan) bool { return l.MemberID == memberID }), nil
}

func (f *fakeStore) listWhere(keep func(*Loan) bool) []Loan {
	var out []Loan
	for id := int64(1); id < f.state.nextLoan; id++ {
		if l, ok := f.state.loans[id]; ok && keep(l) {
			out = append(out, *l)
		}
	}
	return out
}

func (f *fakeStore) SweepOverdue(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, l := range f.state.loans {
		if l.Status == StatusActive && l.DueDate.Before(now) {
			l.Status = StatusOverdue
			n++
		}
	}
	return n, nil
}

type fakeTx struct {
	state *fakeState
	store *fakeStore
}

func (t *fakeTx) MemberForUpdate(_ context.Context, memberID int64) (*MemberStanding, error) {
	m, ok := t.state.members[memberID]
	if !ok {
		return nil, nil
	}
	return &MemberStanding{MemberID: m.id, Suspended: m.suspended}, nil
}

func (t *fakeTx) OutstandingLoans(_ context.Context, memberID int64) (int, error) {
	n := 0
	for _, l := range t.state.loans {
		if l.MemberID == memberID && l.Status != StatusReturned {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) BookExists(_ context.Context, bookID int64) (bool, error) {
	return t.state.books[bookID], nil
}

func (t *fakeTx) AvailableCopies(_ context.Context, bookID int64) ([]int64, error) {
	onLoan := map[int64]bool{}
	if !t.store.staleAvailability {
		for _, l := range t.state.loans {
			if l.Status != StatusReturned {
				onLoan[l.CopyID] = true
			}
		}
	}
	var out []int64
	for copyID, b := range t.state.copies {
		if b == bookID && !onLoan[copyID] {
			out = append(out, copyID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *fakeTx) CopyOnLoan(_ context.Context, copyID int64) (bool, error) {
	for _, l := range t.state.loans {
		if l.CopyID == copyID && l.Status != StatusReturned {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) InsertLoan(_ context.Context, l *Loan) error {
	if t.store.failInsert {
		return errors.New("insert failed")
	}
	l.LoanID = t.state.nextLoan
	t.state.nextLoan++
	cp := *l
	t.state.loans[l.LoanID] = &cp
	return nil
}

func (t *fakeTx) LoanForUpdate(_ context.Context, loanID int64) (*Loan, error) {
	l, ok := t.state.loans[loanID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (t *fakeTx) MarkReturned(_ context.Context, loanID int64, at time.Time) error {
	l := t.state.loans[loanID]
	l.Status = StatusReturned
	l.ReturnDate.Time = at
	l.ReturnDate.Valid = true
	return nil
}

func (t *fakeTx) BookOfCopy(_ context.Context, copyID int64) (int64, error) {
	return t.state.copies[copyID], nil
}

func (t *fakeTx) ExpireReservations(_ context.Context, bookID int64, now time.Time) (int64, error) {
	var n int64
	for _, r := range t.state.reservations {
		if r.bookID == bookID && r.active && !r.expiresAt.After(now) {
			r.active = false
			r.reason = string(reservation.ReasonExpired)
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) ReservationQueue(_ context.Context, bookID int64) ([]reservation.Head, error) {
	var pending []*fakeReservation
	for _, r := range t.state.reservations {
		if r.bookID == bookID && r.active {
			pending = append(pending, r)
		}
	}
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			a, b := pending[i], pending[j]
			if b.createdAt.Before(a.createdAt) ||
				(b.createdAt.Equal(a.createdAt) && b.id < a.id) {
				pending[i], pending[j] = pending[j], pending[i]
			}
		}
	}
	heads := make([]reservation.Head, 0, len(pending))
	for _, r := range pending {
		heads = append(heads, reservation.Head{ReservationID: r.id, MemberID: r.memberID})
	}
	return heads, nil
}

func (t *fakeTx) ConvertReservation(_ context.Context, reservationID int64) (bool, error) {
	r, ok := t.state.reservations[reservationID]
	if !ok || !r.active {
		return false, nil
	}
	r.active = false
	r.reason = string(reservation.ReasonConverted)
	return true, nil
}

const (
	maxLoans    = 3
	loanDays    = 14
	librarianID = int64(900)
)

func newTestService(t *testing.T) (*Service, *fakeStore, *clockwork.Fixed) {
	t.Helper()
	store := newFakeStore()
	clock := clockwork.NewFixed(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewService(store, clock, maxLoans, loanDays), store, clock
}

func (f *fakeStore) addMember(id int64, suspended bool) {
	f.state.members[id] = &fakeMember{id: id, suspended: suspended}
}

func (f *fakeStore) addBook(bookID int64, copyIDs ...int64) {
	f.state.books[bookID] = true
	for _, c := range copyIDs {
		f.state.copies[c] = bookID
	}
}

func (f *fakeStore) addReservation(id, memberID, bookID int64, createdAt, expiresAt time.Time) {
	f.state.reservations[id] = &fakeReservation{
		id: id, memberID: memberID, bookID: bookID,
		createdAt: createdAt, expiresAt: expiresAt, active: true,
	}
}

func issueLoan(t *testing.T, svc *Service, memberID, bookID int64) *LoanResponse {
	t.Helper()
	l, err := svc.Issue(context.Background(), IssueRequest{MemberID: memberID, BookID: bookID}, librarianID)
	require.NoError(t, err)
	return l
}

func TestService_Issue(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101)

	l := issueLoan(t, svc, 1, 10)
	assert.Equal(t, int64(101), l.CopyID)
	assert.Equal(t, librarianID, l.LibrarianID)
	assert.Equal(t, StatusActive, l.Status)
	assert.Equal(t, "2025-03-01", l.IssueDate)
	assert.Equal(t, "2025-03-15", l.DueDate)
	assert.NotEmpty(t, l.LoanULID)
}

func TestService_IssueNonPositiveDaysFallsBack(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101, 102)
	ctx := context.Background()

	bad := -3
	l, err := svc.Issue(ctx, IssueRequest{MemberID: 1, BookID: 10, Days: &bad}, librarianID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", l.DueDate)

	short := 2
	l, err = svc.Issue(ctx, IssueRequest{MemberID: 1, BookID: 10, Days: &short}, librarianID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", l.DueDate)
}

func TestService_IssuePicksLowestCopyID(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addBook(10, 7, 3, 9)

	first := issueLoan(t, svc, 1, 10)
	assert.Equal(t, int64(3), first.CopyID)

	second := issueLoan(t, svc, 2, 10)
	assert.Equal(t, int64(7), second.CopyID)
}

func TestService_IssueRejections(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, true)
	store.addBook(10, 101)
	store.addBook(20)
	ctx := context.Background()

	_, err := svc.Issue(ctx, IssueRequest{MemberID: 99, BookID: 10}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = svc.Issue(ctx, IssueRequest{MemberID: 2, BookID: 10}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = svc.Issue(ctx, IssueRequest{MemberID: 1, BookID: 99}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = svc.Issue(ctx, IssueRequest{MemberID: 1, BookID: 20}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeUnavailable))

	_, err = svc.Issue(ctx, IssueRequest{}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestService_IssueSkipsStaleCandidate(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addBook(10, 101, 102)

	first := issueLoan(t, svc, 2, 10)
	require.Equal(t, int64(101), first.CopyID)

	// The candidate filter no longer sees member 2's loan; the confirmed
	// per-copy check still must keep copy 101 off limits.
	store.staleAvailability = true
	second := issueLoan(t, svc, 1, 10)
	assert.Equal(t, int64(102), second.CopyID)

	onLoan := map[int64]int{}
	for _, l := range store.state.loans {
		if l.Status != StatusReturned {
			onLoan[l.CopyID]++
		}
	}
	for copyID, n := range onLoan {
		assert.Equal(t, 1, n, "copy %d", copyID)
	}
}

func TestService_IssueStaleCandidateExhausted(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addBook(10, 101)

	issueLoan(t, svc, 2, 10)

	store.staleAvailability = true
	_, err := svc.Issue(context.Background(), IssueRequest{MemberID: 1, BookID: 10}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeUnavailable))
}

func TestService_IssueExhaustsCopies(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addBook(10, 101)

	issueLoan(t, svc, 1, 10)

	_, err := svc.Issue(context.Background(), IssueRequest{MemberID: 2, BookID: 10}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeUnavailable))
}

func TestService_IssueEnforcesLoanLimit(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101, 102, 103, 104)

	for i := 0; i < maxLoans; i++ {
		issueLoan(t, svc, 1, 10)
	}

	_, err := svc.Issue(context.Background(), IssueRequest{MemberID: 1, BookID: 10}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestService_OverdueLoansCountTowardLimit(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101, 102, 103, 104)

	for i := 0; i < maxLoans; i++ {
		issueLoan(t, svc, 1, 10)
	}
	clock.Advance(30 * 24 * time.Hour)
	_, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), IssueRequest{MemberID: 1, BookID: 10}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestService_Return(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101)
	l := issueLoan(t, svc, 1, 10)

	res, err := svc.Return(context.Background(), ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, res.Loan.Status)
	assert.NotNil(t, res.Loan.ReturnDate)
	assert.Nil(t, res.Promoted)
}

func TestService_ReturnTwiceConflicts(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101)
	l := issueLoan(t, svc, 1, 10)
	ctx := context.Background()

	_, err := svc.Return(ctx, ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.NoError(t, err)

	_, err = svc.Return(ctx, ReturnRequest{LoanID: l.LoanID}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestService_ReturnUnknownLoan(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Return(context.Background(), ReturnRequest{LoanID: 42}, librarianID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestService_ReturnPromotesEarliestReservation(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addMember(3, false)
	store.addBook(10, 101)
	l := issueLoan(t, svc, 1, 10)

	now := clock.Now()
	later := now.AddDate(0, 0, 14)
	store.addReservation(5, 3, 10, now.Add(time.Minute), later)
	store.addReservation(6, 2, 10, now, later)

	res, err := svc.Return(context.Background(), ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, int64(2), res.Promoted.MemberID)
	assert.Equal(t, int64(101), res.Promoted.CopyID)
	assert.Equal(t, StatusActive, res.Promoted.Status)
	require.NotNil(t, res.ConvertedReservation)
	assert.Equal(t, int64(6), *res.ConvertedReservation)

	assert.Equal(t, string(reservation.ReasonConverted), store.state.reservations[6].reason)
	assert.True(t, store.state.reservations[5].active)
}

func TestService_ReturnTieBreaksOnReservationID(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addMember(3, false)
	store.addBook(10, 101)
	l := issueLoan(t, svc, 1, 10)

	now := clock.Now()
	later := now.AddDate(0, 0, 14)
	store.addReservation(8, 3, 10, now, later)
	store.addReservation(4, 2, 10, now, later)

	res, err := svc.Return(context.Background(), ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.NoError(t, err)
	require.NotNil(t, res.ConvertedReservation)
	assert.Equal(t, int64(4), *res.ConvertedReservation)
}

func TestService_ReturnSkipsIneligibleHeads(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, true)
	store.addMember(3, false)
	store.addMember(4, false)
	store.addBook(10, 101)
	store.addBook(20, 201, 202, 203)
	l := issueLoan(t, svc, 1, 10)

	// Member 3 is at the loan limit, member 2 is suspended; member 4 wins.
	for i := 0; i < maxLoans; i++ {
		issueLoan(t, svc, 3, 20)
	}

	now := clock.Now()
	later := now.AddDate(0, 0, 14)
	store.addReservation(1, 2, 10, now, later)
	store.addReservation(2, 3, 10, now.Add(time.Second), later)
	store.addReservation(3, 4, 10, now.Add(2*time.Second), later)

	res, err := svc.Return(context.Background(), ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, int64(4), res.Promoted.MemberID)

	// Skipped members keep their reservations and their place in line.
	assert.True(t, store.state.reservations[1].active)
	assert.True(t, store.state.reservations[2].active)
	assert.False(t, store.state.reservations[3].active)
}

func TestService_ReturnExpiresLapsedReservations(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addBook(10, 101)
	l := issueLoan(t, svc, 1, 10)

	now := clock.Now()
	store.addReservation(1, 2, 10, now.Add(-48*time.Hour), now.Add(-time.Hour))

	res, err := svc.Return(context.Background(), ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.NoError(t, err)
	assert.Nil(t, res.Promoted)
	assert.Equal(t, string(reservation.ReasonExpired), store.state.reservations[1].reason)
}

func TestService_ReturnIsAtomicWithPromotion(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addMember(2, false)
	store.addBook(10, 101)
	l := issueLoan(t, svc, 1, 10)

	now := clock.Now()
	store.addReservation(1, 2, 10, now, now.AddDate(0, 0, 14))

	store.failInsert = true
	_, err := svc.Return(context.Background(), ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.Error(t, err)

	// Nothing from the failed transaction is visible.
	loan, err := store.GetLoan(context.Background(), l.LoanID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, loan.Status)
	assert.True(t, store.state.reservations[1].active)
}

func TestService_SweepIsIdempotent(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101, 102)
	issueLoan(t, svc, 1, 10)
	ctx := context.Background()

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Due today is not overdue yet.
	clock.Advance(loanDays * 24 * time.Hour)
	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(6 * 24 * time.Hour)

	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	overdue, err := svc.ListByStatus(ctx, StatusOverdue)
	require.NoError(t, err)
	assert.Len(t, overdue, 1)
}

func TestService_ReturnAfterSweepStillWorks(t *testing.T) {
	svc, store, clock := newTestService(t)
	store.addMember(1, false)
	store.addBook(10, 101)
	l := issueLoan(t, svc, 1, 10)
	ctx := context.Background()

	clock.Advance(20 * 24 * time.Hour)
	_, err := svc.Sweep(ctx)
	require.NoError(t, err)

	res, err := svc.Return(ctx, ReturnRequest{LoanID: l.LoanID}, librarianID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, res.Loan.Status)
}

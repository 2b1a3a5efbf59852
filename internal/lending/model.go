package lending

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusOverdue  Status = "overdue"
	StatusReturned Status = "returned"
)

type Loan struct {
	LoanID      int64        `db:"loan_id"`
	LoanULID    string       `db:"loan_ulid"`
	MemberID    int64        `db:"member_id"`
	CopyID      int64        `db:"copy_id"`
	LibrarianID int64        `db:"librarian_id"`
	IssueDate   time.Time    `db:"issue_date"`
	DueDate     time.Time    `db:"due_date"`
	ReturnDate  sql.NullTime `db:"return_date"`
	Status      Status       `db:"status"`
}

// MemberStanding is the member state the engine checks before issuing.
type MemberStanding struct {
	MemberID  int64 `db:"member_id"`
	Suspended bool  `db:"suspended"`
}

// ReturnResult carries the closed loan plus the promotion outcome, when the
// returned copy went straight to the head of the reservation queue.
type ReturnResult struct {
	Loan                 *Loan
	Promoted             *Loan
	ConvertedReservation int64
}

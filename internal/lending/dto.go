package lending

import "time"

type IssueRequest struct {
	MemberID int64 `json:"member_id" binding:"required"`
	BookID   int64 `json:"book_id" binding:"required"`
	Days     *int  `json:"days,omitempty"`
}

type ReturnRequest struct {
	LoanID int64 `json:"loan_id" binding:"required"`
}

type LoanResponse struct {
	LoanID      int64      `json:"loan_id"`
	LoanULID    string     `json:"loan_ulid"`
	MemberID    int64      `json:"member_id"`
	CopyID      int64      `json:"copy_id"`
	LibrarianID int64      `json:"librarian_id"`
	IssueDate   string     `json:"issue_date"`
	DueDate     string     `json:"due_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty"`
	Status      Status     `json:"status"`
}

type ReturnResponse struct {
	Loan                 LoanResponse  `json:"loan"`
	Promoted             *LoanResponse `json:"promoted_loan,omitempty"`
	ConvertedReservation *int64        `json:"converted_reservation_id,omitempty"`
}

func buildLoanResponse(l *Loan) LoanResponse {
	resp := LoanResponse{
		LoanID:      l.LoanID,
		LoanULID:    l.LoanULID,
		MemberID:    l.MemberID,
		CopyID:      l.CopyID,
		LibrarianID: l.LibrarianID,
		IssueDate:   l.IssueDate.Format(time.DateOnly),
		DueDate:     l.DueDate.Format(time.DateOnly),
		Status:      l.Status,
	}
	if l.ReturnDate.Valid {
		v := l.ReturnDate.Time
		resp.ReturnDate = &v
	}
	return resp
}

func buildLoanResponses(ls []Loan) []LoanResponse {
	out := make([]LoanResponse, 0, len(ls))
	for i := range ls {
		out = append(out, buildLoanResponse(&ls[i]))
	}
	return out
}

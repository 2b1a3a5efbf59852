package membership

import "time"

type RegisterMemberRequest struct {
	Name  string  `json:"name" binding:"required"`
	Email string  `json:"email" binding:"required"`
	Phone *string `json:"phone,omitempty"`
}

// Partial patch: absent fields are left unchanged.
type UpdateMemberRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type MemberResponse struct {
	MemberID int64   `json:"member_id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Status   Status  `json:"status"`
	JoinDate string  `json:"join_date"`
}

func buildMemberResponse(m *Member) MemberResponse {
	resp := MemberResponse{
		MemberID: m.MemberID,
		Name:     m.Name,
		Email:    m.Email,
		Status:   m.Status,
		JoinDate: m.JoinDate.Format(time.DateOnly),
	}
	if m.Phone.Valid {
		v := m.Phone.String
		resp.Phone = &v
	}
	return resp
}

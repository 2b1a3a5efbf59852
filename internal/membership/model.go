package membership

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

type Member struct {
	MemberID int64          `db:"member_id"`
	Name     string         `db:"name"`
	Email    string         `db:"email"`
	Phone    sql.NullString `db:"phone"`
	Status   Status         `db:"status"`
	JoinDate time.Time      `db:"join_date"`
}

package auth

import "time"

// Role is the closed set of caller roles. Access checks go through the
// capability predicates below, not string comparison at call sites.
type Role string

const (
	RoleMember        Role = "member"
	RoleLibrarian     Role = "librarian"
	RoleAdministrator Role = "administrator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleLibrarian, RoleAdministrator:
		return true
	}
	return false
}

// CanManageCatalog covers book/copy create, update and delete.
func (r Role) CanManageCatalog() bool {
	return r == RoleLibrarian || r == RoleAdministrator
}

// CanManageMembers covers member create, update, suspend and delete.
func (r Role) CanManageMembers() bool {
	return r == RoleLibrarian || r == RoleAdministrator
}

// CanCirculate covers issuing and returning loans and the overdue sweep.
func (r Role) CanCirculate() bool {
	return r == RoleLibrarian || r == RoleAdministrator
}

func (r Role) CanAdminister() bool {
	return r == RoleAdministrator
}

// User is one row of the users table.
type User struct {
	UserID       int64     `db:"user_id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

// Identity is the resolved caller passed into gated operations.
type Identity struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.UserID, Name: u.Name, Email: u.Email, Role: u.Role}
}

package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type UserStore interface {
	// GetByEmail returns (nil, nil) when no user carries the email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
}

type Store struct{ db *sqlx.DB }

func NewStore(conn *sqlx.DB) *Store { return &Store{db: conn} }

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
SELECT user_id, name, email, password_hash, role, created_at
FROM users
WHERE email = ?
LIMIT 1`
	var u User
	err := s.db.GetContext(ctx, &u, q, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
INSERT INTO users (name, email, password_hash, role)
VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, u.Name, u.Email, u.PasswordHash, u.Role)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.UserID = id
	return nil
}

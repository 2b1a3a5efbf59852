package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaDDL is applied in order by EnsureSchema. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS) so migrate can be re-run safely.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id       BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('member','librarian','administrator') NOT NULL DEFAULT 'member',
		created_at    DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (user_id),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS books (
		book_id        BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		isbn           VARCHAR(32) NOT NULL,
		title          VARCHAR(512) NOT NULL,
		publisher      VARCHAR(255) NULL,
		published_year INT NULL,
		description    TEXT NULL,
		created_at     DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (book_id),
		UNIQUE KEY uq_books_isbn (isbn)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS authors (
		author_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		full_name VARCHAR(255) NOT NULL,
		PRIMARY KEY (author_id),
		UNIQUE KEY uq_authors_name (full_name)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS categories (
		category_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		name        VARCHAR(255) NOT NULL,
		PRIMARY KEY (category_id),
		UNIQUE KEY uq_categories_name (name)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS book_authors (
		book_id   BIGINT UNSIGNED NOT NULL,
		author_id BIGINT UNSIGNED NOT NULL,
		position  INT NOT NULL DEFAULT 0,
		PRIMARY KEY (book_id, author_id),
		CONSTRAINT fk_ba_book FOREIGN KEY (book_id) REFERENCES books (book_id) ON DELETE CASCADE,
		CONSTRAINT fk_ba_author FOREIGN KEY (author_id) REFERENCES authors (author_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS book_categories (
		book_id     BIGINT UNSIGNED NOT NULL,
		category_id BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (book_id, category_id),
		CONSTRAINT fk_bc_book FOREIGN KEY (book_id) REFERENCES books (book_id) ON DELETE CASCADE,
		CONSTRAINT fk_bc_category FOREIGN KEY (category_id) REFERENCES categories (category_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS copies (
		copy_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		book_id BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (copy_id),
		KEY idx_copies_book (book_id),
		CONSTRAINT fk_copies_book FOREIGN KEY (book_id) REFERENCES books (book_id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS members (
		member_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		name      VARCHAR(255) NOT NULL,
		email     VARCHAR(255) NOT NULL,
		phone     VARCHAR(64) NULL,
		status    ENUM('active','suspended') NOT NULL DEFAULT 'active',
		join_date DATE NOT NULL,
		PRIMARY KEY (member_id),
		UNIQUE KEY uq_members_email (email)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS loans (
		loan_id      BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		loan_ulid    CHAR(26) NOT NULL,
		member_id    BIGINT UNSIGNED NOT NULL,
		copy_id      BIGINT UNSIGNED NOT NULL,
		librarian_id BIGINT UNSIGNED NOT NULL,
		issue_date   DATE NOT NULL,
		due_date     DATE NOT NULL,
		return_date  DATE NULL,
		status       ENUM('active','overdue','returned') NOT NULL DEFAULT 'active',
		PRIMARY KEY (loan_id),
		UNIQUE KEY uq_loans_ulid (loan_ulid),
		KEY idx_loans_member_status (member_id, status),
		KEY idx_loans_copy_status (copy_id, status),
		KEY idx_loans_status_due (status, due_date),
		CONSTRAINT fk_loans_member FOREIGN KEY (member_id) REFERENCES members (member_id) ON DELETE CASCADE,
		CONSTRAINT fk_loans_copy FOREIGN KEY (copy_id) REFERENCES copies (copy_id) ON DELETE CASCADE,
		CONSTRAINT fk_loans_librarian FOREIGN KEY (librarian_id) REFERENCES users (user_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reservations (
		reservation_id   BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		reservation_ulid CHAR(26) NOT NULL,
		member_id        BIGINT UNSIGNED NOT NULL,
		book_id          BIGINT UNSIGNED NOT NULL,
		created_at       DATETIME(6) NOT NULL,
		expires_at       DATETIME(6) NOT NULL,
		active           TINYINT(1) NOT NULL DEFAULT 1,
		reason           ENUM('cancelled','expired','converted') NULL,
		PRIMARY KEY (reservation_id),
		UNIQUE KEY uq_reservations_ulid (reservation_ulid),
		KEY idx_reservations_book_active (book_id, active, created_at),
		KEY idx_reservations_member (member_id),
		CONSTRAINT fk_res_member FOREIGN KEY (member_id) REFERENCES members (member_id) ON DELETE CASCADE,
		CONSTRAINT fk_res_book FOREIGN KEY (book_id) REFERENCES books (book_id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

func EnsureSchema(ctx context.Context, conn *sqlx.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

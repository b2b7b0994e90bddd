// ABOUTME: SQLite implementation for dashboard user accounts
// ABOUTME: Users own agent tokens and devices; passwords stored as bcrypt hashes

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateUser creates a new dashboard user.
// Returns ErrDuplicateUser if the username is already taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.DisplayName,
		formatTime(user.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Info("created user", "id", user.ID, "username", user.Username)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, display_name, created_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, display_name, created_at
		FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var createdAt string

	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.DisplayName, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user row: %w", err)
	}

	user.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

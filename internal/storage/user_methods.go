package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

// CreateUser creates a user account
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
        INSERT INTO users (
            id, created_at, updated_at, email, username,
            password_hash, is_admin, is_active, settings
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.UpdatedAt, user.Email, user.Username,
		user.PasswordHash, user.IsAdmin, user.IsActive, user.Settings,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDuplicateKey
	}

	return err
}

// GetUserByUsername fetches a user account by username
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, email, username,
                password_hash, is_admin, is_active, last_login_at, settings
         FROM users WHERE username = $1`,
		username,
	).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Email, &user.Username,
		&user.PasswordHash, &user.IsAdmin, &user.IsActive, &user.LastLoginAt, &user.Settings,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateUserLastLogin records a successful login
func (s *PostgresStore) UpdateUserLastLogin(ctx context.Context, username string, at time.Time) error {
	result, err := s.getDB().ExecContext(ctx,
		"UPDATE users SET last_login_at = $2, updated_at = $2 WHERE username = $1",
		username, at,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// userRepo implements the user record repository
type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new user repository on db
func NewUserRepo(db *sql.DB) (repo.UserRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			command_count INTEGER NOT NULL DEFAULT 0,
			rate_count INTEGER NOT NULL DEFAULT 0,
			rate_expires_at INTEGER NOT NULL DEFAULT 0,
			limited INTEGER NOT NULL DEFAULT 0,
			limited_until INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}
	return &userRepo{db: db}, nil
}

// Get gets a user record by ID
func (r *userRepo) Get(ctx context.Context, userID string) (*domain.UserRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, name, command_count, rate_count, rate_expires_at, limited, limited_until, created_at, updated_at
		FROM users WHERE user_id = ?
	`, userID)

	var u domain.UserRecord
	var expiresAt, limitedUntil, createdAt, updatedAt int64
	var limited int
	err := row.Scan(&u.UserID, &u.Name, &u.CommandCount, &u.Rate.Count, &expiresAt, &limited, &limitedUntil, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	u.Rate.ExpiresAt = fromUnixMilli(expiresAt)
	u.Rate.Limited = limited != 0
	u.Rate.LimitedUntil = fromUnixMilli(limitedUntil)
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

// Ensure creates the record on first contact
func (r *userRepo) Ensure(ctx context.Context, userID, name string) (*domain.UserRecord, error) {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return r.Get(ctx, userID)
}

// SetName updates the display name
func (r *userRepo) SetName(ctx context.Context, userID, name string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET name = ?, updated_at = ? WHERE user_id = ?`,
		name, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user name: %w", err)
	}
	return nil
}

// SaveRate stores the command-rate window
func (r *userRepo) SaveRate(ctx context.Context, userID string, rate domain.RateWindow) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET rate_count = ?, rate_expires_at = ?, limited = ?, limited_until = ?, updated_at = ?
		WHERE user_id = ?
	`, rate.Count, toUnixMilli(rate.ExpiresAt), boolToInt(rate.Limited), toUnixMilli(rate.LimitedUntil),
		time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to save rate window: %w", err)
	}
	return nil
}

// IncrementCommands bumps the user command counter
func (r *userRepo) IncrementCommands(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET command_count = command_count + 1, updated_at = ? WHERE user_id = ?`,
		time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to increment user commands: %w", err)
	}
	return nil
}

// Rate timestamps are stored in milliseconds so window boundaries survive a round trip
func toUnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

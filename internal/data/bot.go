package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// botRepo implements the bot state repository as a single row
type botRepo struct {
	db *sql.DB
}

// NewBotRepo creates a new bot state repository on db
func NewBotRepo(db *sql.DB) (repo.BotRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			owner_id TEXT NOT NULL DEFAULT '',
			blocked TEXT NOT NULL DEFAULT '[]',
			private_commands INTEGER NOT NULL DEFAULT 0,
			command_count INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot_state table: %w", err)
	}

	_, err = db.Exec(`INSERT INTO bot_state (id) VALUES (1) ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("failed to seed bot_state: %w", err)
	}

	return &botRepo{db: db}, nil
}

// Get gets the bot state
func (r *botRepo) Get(ctx context.Context) (*domain.BotState, error) {
	var b domain.BotState
	var blocked string
	var private int
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id, blocked, private_commands, command_count, updated_at FROM bot_state WHERE id = 1
	`).Scan(&b.OwnerID, &blocked, &private, &b.CommandCount, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query bot state: %w", err)
	}
	if err := json.Unmarshal([]byte(blocked), &b.Blocked); err != nil {
		return nil, fmt.Errorf("failed to decode blocked list: %w", err)
	}
	b.PrivateCommands = private != 0
	b.UpdatedAt = time.Unix(updatedAt, 0)
	return &b, nil
}

// ClaimOwner sets the owner only while none is set
func (r *botRepo) ClaimOwner(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE bot_state SET owner_id = ?, updated_at = ? WHERE id = 1 AND owner_id = ''`,
		userID, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to claim owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

// SetBlocked adds or removes a globally blocked contact
func (r *botRepo) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	b, err := r.Get(ctx)
	if err != nil {
		return err
	}
	if blocked {
		b.Blocked = domain.AddUnique(b.Blocked, userID)
	} else {
		b.Blocked = domain.RemoveID(b.Blocked, userID)
	}
	encoded, err := json.Marshal(nonNil(b.Blocked))
	if err != nil {
		return fmt.Errorf("failed to encode blocked list: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE bot_state SET blocked = ?, updated_at = ? WHERE id = 1`,
		string(encoded), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save blocked list: %w", err)
	}
	return nil
}

// SetPrivateCommands toggles private-chat commands for non-owners
func (r *botRepo) SetPrivateCommands(ctx context.Context, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bot_state SET private_commands = ?, updated_at = ? WHERE id = 1`,
		boolToInt(enabled), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set private commands: %w", err)
	}
	return nil
}

// IncrementCommands bumps the bot command counter
func (r *botRepo) IncrementCommands(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bot_state SET command_count = command_count + 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to increment bot commands: %w", err)
	}
	return nil
}

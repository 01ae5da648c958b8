package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// execLogRepo implements the append-only execution log
type execLogRepo struct {
	db *sql.DB
}

// NewExecLogRepo creates a new execution log repository on db
func NewExecLogRepo(db *sql.DB) (repo.ExecLogRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS exec_log (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			command TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '',
			chat_id TEXT NOT NULL,
			success INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			fuzzy INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec_log table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_exec_log_created ON exec_log(created_at)`)

	return &execLogRepo{db: db}, nil
}

// Append appends one record
func (r *execLogRepo) Append(ctx context.Context, rec *domain.ExecRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exec_log (id, actor, command, args, chat_id, success, error, fuzzy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Actor, rec.Command, rec.Args, rec.ChatID, boolToInt(rec.Success), rec.Error,
		boolToInt(rec.Fuzzy), rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append exec log: %w", err)
	}
	return nil
}

// Recent lists the latest records, newest first
func (r *execLogRepo) Recent(ctx context.Context, limit int) ([]*domain.ExecRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, command, args, chat_id, success, error, fuzzy, created_at
		FROM exec_log ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exec log: %w", err)
	}
	defer rows.Close()

	var records []*domain.ExecRecord
	for rows.Next() {
		var rec domain.ExecRecord
		var success, fuzzy int
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Command, &rec.Args, &rec.ChatID, &success, &rec.Error, &fuzzy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan exec log: %w", err)
		}
		rec.Success = success != 0
		rec.Fuzzy = fuzzy != 0
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

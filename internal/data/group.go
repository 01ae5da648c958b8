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

// groupSettings is the JSON-encoded moderation part of a group policy
type groupSettings struct {
	CommandMute     bool                    `json:"command_mute"`
	MutedMembers    []string                `json:"muted_members"`
	AntiLink        domain.AntiLinkConfig   `json:"antilink"`
	AntiFlood       domain.AntiFloodConfig  `json:"antiflood"`
	AntiFake        domain.AntiFakeConfig   `json:"antifake"`
	WordFilter      domain.WordFilterConfig `json:"wordfilter"`
	Blacklist       []string                `json:"blacklist"`
	BlockedCommands []string                `json:"blocked_commands"`
	Welcome         domain.WelcomeConfig    `json:"welcome"`
	AutoReplies     []domain.AutoReply      `json:"auto_replies"`
}

// groupRepo implements the group policy repository
type groupRepo struct {
	db *sql.DB
}

// NewGroupRepo creates a new group policy repository on db
func NewGroupRepo(db *sql.DB) (repo.GroupRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS group_policies (
			group_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL DEFAULT '',
			admins TEXT NOT NULL DEFAULT '[]',
			restricted INTEGER NOT NULL DEFAULT 0,
			settings TEXT NOT NULL DEFAULT '{}',
			command_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create group_policies table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS group_activity (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			messages INTEGER NOT NULL DEFAULT 0,
			text_count INTEGER NOT NULL DEFAULT 0,
			image_count INTEGER NOT NULL DEFAULT 0,
			media_count INTEGER NOT NULL DEFAULT 0,
			other_count INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create group_activity table: %w", err)
	}

	return &groupRepo{db: db}, nil
}

const groupColumns = `group_id, name, owner_id, admins, restricted, settings, command_count, created_at, updated_at`

// Get gets a group policy by ID
func (r *groupRepo) Get(ctx context.Context, groupID string) (*domain.GroupPolicy, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM group_policies WHERE group_id = ?`, groupID)
	policy, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group: %w", err)
	}
	return policy, nil
}

// Save saves a group policy. The command counter is owned by IncrementCommands and left alone.
func (r *groupRepo) Save(ctx context.Context, p *domain.GroupPolicy) error {
	admins, err := json.Marshal(nonNil(p.Admins))
	if err != nil {
		return fmt.Errorf("failed to encode admins: %w", err)
	}
	settings, err := json.Marshal(groupSettings{
		CommandMute:     p.CommandMute,
		MutedMembers:    nonNil(p.MutedMembers),
		AntiLink:        p.AntiLink,
		AntiFlood:       p.AntiFlood,
		AntiFake:        p.AntiFake,
		WordFilter:      p.WordFilter,
		Blacklist:       nonNil(p.Blacklist),
		BlockedCommands: nonNil(p.BlockedCommands),
		Welcome:         p.Welcome,
		AutoReplies:     p.AutoReplies,
	})
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO group_policies (group_id, name, owner_id, admins, restricted, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			admins = excluded.admins,
			restricted = excluded.restricted,
			settings = excluded.settings,
			updated_at = excluded.updated_at
	`, p.GroupID, p.Name, p.OwnerID, string(admins), boolToInt(p.Restricted), string(settings),
		created.Unix(), updated.Unix())
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

// List lists all groups
func (r *groupRepo) List(ctx context.Context) ([]*domain.GroupPolicy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM group_policies ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.GroupPolicy
	for rows.Next() {
		policy, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, policy)
	}
	return groups, rows.Err()
}

// IncrementCommands bumps the group command counter, creating the row if needed
func (r *groupRepo) IncrementCommands(ctx context.Context, groupID string) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_policies (group_id, command_count, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET command_count = command_count + 1
	`, groupID, now, now)
	if err != nil {
		return fmt.Errorf("failed to increment group commands: %w", err)
	}
	return nil
}

// IncrementActivity bumps a participant's counters
func (r *groupRepo) IncrementActivity(ctx context.Context, groupID, userID, activityType string) error {
	column := "other_count"
	switch activityType {
	case "text":
		column = "text_count"
	case "image":
		column = "image_count"
	case "media":
		column = "media_count"
	}

	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_activity (group_id, user_id, messages, `+column+`, last_seen)
		VALUES (?, ?, 1, 1, ?)
		ON CONFLICT(group_id, user_id) DO UPDATE SET
			messages = messages + 1,
			`+column+` = `+column+` + 1,
			last_seen = excluded.last_seen
	`, groupID, userID, now)
	if err != nil {
		return fmt.Errorf("failed to increment activity: %w", err)
	}
	return nil
}

// GetActivity gets a participant's counters
func (r *groupRepo) GetActivity(ctx context.Context, groupID, userID string) (*domain.Activity, error) {
	var a domain.Activity
	var lastSeen int64
	err := r.db.QueryRowContext(ctx, `
		SELECT group_id, user_id, messages, text_count, image_count, media_count, other_count, last_seen
		FROM group_activity WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&a.GroupID, &a.UserID, &a.Messages, &a.Text, &a.Image, &a.Media, &a.Other, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	a.LastSeen = time.Unix(lastSeen, 0)
	return &a, nil
}

// ClearActivity removes a participant's counters
func (r *groupRepo) ClearActivity(ctx context.Context, groupID, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_activity WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to clear activity: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*domain.GroupPolicy, error) {
	var p domain.GroupPolicy
	var admins, settings string
	var restricted int
	var createdAt, updatedAt int64
	if err := row.Scan(&p.GroupID, &p.Name, &p.OwnerID, &admins, &restricted, &settings, &p.CommandCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(admins), &p.Admins); err != nil {
		return nil, fmt.Errorf("failed to decode admins: %w", err)
	}
	var s groupSettings
	if err := json.Unmarshal([]byte(settings), &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	p.Restricted = restricted != 0
	p.CommandMute = s.CommandMute
	p.MutedMembers = s.MutedMembers
	p.AntiLink = s.AntiLink
	p.AntiFlood = s.AntiFlood
	p.AntiFake = s.AntiFake
	p.WordFilter = s.WordFilter
	p.Blacklist = s.Blacklist
	p.BlockedCommands = s.BlockedCommands
	p.Welcome = s.Welcome
	p.AutoReplies = s.AutoReplies
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	// Rows created by IncrementCommands have empty settings
	if p.AntiFlood.MaxMessages == 0 && p.AntiFlood.Interval == 0 {
		p.AntiFlood.MaxMessages = domain.DefaultAntiFlood.MaxMessages
		p.AntiFlood.Interval = domain.DefaultAntiFlood.Interval
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

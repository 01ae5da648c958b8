package repo

import (
	"context"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
)

// GroupRepo is the group policy repository interface
// Responsible for group policy and activity persistence (SQLite)
type GroupRepo interface {
	// Get gets a group policy, nil if the group was never seen
	Get(ctx context.Context, groupID string) (*domain.GroupPolicy, error)

	// Save saves a group policy (create or update)
	Save(ctx context.Context, policy *domain.GroupPolicy) error

	// List lists all known groups
	List(ctx context.Context) ([]*domain.GroupPolicy, error)

	// IncrementCommands bumps the group command counter
	IncrementCommands(ctx context.Context, groupID string) error

	// IncrementActivity bumps a participant's message counters
	IncrementActivity(ctx context.Context, groupID, userID, activityType string) error

	// GetActivity gets a participant's counters, nil if none
	GetActivity(ctx context.Context, groupID, userID string) (*domain.Activity, error)

	// ClearActivity removes a participant's counters
	ClearActivity(ctx context.Context, groupID, userID string) error
}

// UserRepo is the user record repository interface
type UserRepo interface {
	// Get gets a user record, nil if absent
	Get(ctx context.Context, userID string) (*domain.UserRecord, error)

	// Ensure creates the record on first contact and returns it
	Ensure(ctx context.Context, userID, name string) (*domain.UserRecord, error)

	// SetName updates the display name
	SetName(ctx context.Context, userID, name string) error

	// SaveRate stores the command-rate window
	SaveRate(ctx context.Context, userID string, rate domain.RateWindow) error

	// IncrementCommands bumps the user command counter
	IncrementCommands(ctx context.Context, userID string) error
}

// BotRepo is the bot-wide state repository interface
type BotRepo interface {
	// Get gets the bot state
	Get(ctx context.Context) (*domain.BotState, error)

	// ClaimOwner sets the owner if none exists. Returns false if already claimed.
	ClaimOwner(ctx context.Context, userID string) (bool, error)

	// SetBlocked adds or removes a globally blocked contact
	SetBlocked(ctx context.Context, userID string, blocked bool) error

	// SetPrivateCommands toggles private-chat commands for non-owners
	SetPrivateCommands(ctx context.Context, enabled bool) error

	// IncrementCommands bumps the bot command counter
	IncrementCommands(ctx context.Context) error
}

// ExecLogRepo is the append-only command execution log
type ExecLogRepo interface {
	// Append appends one record
	Append(ctx context.Context, rec *domain.ExecRecord) error

	// Recent lists the latest records, newest first
	Recent(ctx context.Context, limit int) ([]*domain.ExecRecord, error)
}

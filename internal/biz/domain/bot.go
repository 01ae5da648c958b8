package domain

import "time"

// BotState is the bot-wide record
type BotState struct {
	OwnerID         string
	Blocked         []string // Globally blocked contacts
	PrivateCommands bool     // Non-owners may run commands in private chats
	CommandCount    int64
	UpdatedAt       time.Time
}

// HasOwner reports whether ownership has been claimed
func (b *BotState) HasOwner() bool {
	return CanonicalID(b.OwnerID) != ""
}

// IsBlocked reports whether userID is globally blocked
func (b *BotState) IsBlocked(userID string) bool {
	return containsID(b.Blocked, userID)
}

// ExecRecord is one command execution outcome
type ExecRecord struct {
	ID        string
	Actor     string
	Command   string
	Args      string
	ChatID    string
	Success   bool
	Error     string
	Fuzzy     bool // Resolved through the fuzzy path
	CreatedAt time.Time
}

package repo

import (
	"context"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
)

// PlatformRepo is the messaging platform interface
// Responsible for outbound calls to the Feishu API
type PlatformRepo interface {
	// BotID returns the bot's own user ID, empty before the connection is open
	BotID() string

	// SendText sends a text message to a chat
	SendText(ctx context.Context, chatID, text string) error

	// SendTextWithMentions sends a text message with @ mentions
	SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Participant) error

	// DeleteMessage recalls a message
	DeleteMessage(ctx context.Context, msgID string) error

	// RemoveMembers removes users from a group
	RemoveMembers(ctx context.Context, groupID string, userIDs []string) error

	// FetchProfile gets a user's profile
	FetchProfile(ctx context.Context, userID string) (*domain.Participant, error)

	// FetchGroupMetadata gets a group's owner, admins and posting restriction
	FetchGroupMetadata(ctx context.Context, groupID string) (*domain.GroupMetadata, error)

	// MarkRead marks a message as read, best effort
	MarkRead(ctx context.Context, msgID string) error
}

// AssistantRequest is the input for an assistant suggestion
type AssistantRequest struct {
	Text     string
	Role     domain.Role
	Prefix   string
	Commands []string
}

// AssistantRepo produces help text when no command matches
type AssistantRepo interface {
	Suggest(ctx context.Context, req AssistantRequest) (string, error)
}

// CredentialRepo is the credential store interface.
// Every call is serialized with all others.
type CredentialRepo interface {
	// Read returns domain.ErrCredentialNotFound for absent keys
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores blob durably before returning
	Write(ctx context.Context, key string, blob []byte) error

	// Remove deletes key durably; absent keys are not an error
	Remove(ctx context.Context, key string) error

	Close() error
}

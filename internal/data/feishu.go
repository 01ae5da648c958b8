package data

import (
	"context"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
	"github.com/devricklin/feishu-guard-bot/internal/infra/feishu"
)

// FeishuAPI is the part of the Feishu client the platform repository needs
type FeishuAPI interface {
	BotOpenID() string
	SendText(ctx context.Context, chatID, text string) error
	SendTextWithMentions(ctx context.Context, chatID, text string, mentions []feishu.Mention) error
	DeleteMessage(ctx context.Context, msgID string) error
	RemoveMembers(ctx context.Context, chatID string, openIDs []string) error
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
	GetUser(ctx context.Context, openID string) (*feishu.UserInfo, error)
}

// feishuRepo implements the platform repository on Feishu
type feishuRepo struct {
	client FeishuAPI
}

// NewFeishuRepo creates a new Feishu platform repository
func NewFeishuRepo(client FeishuAPI) repo.PlatformRepo {
	return &feishuRepo{client: client}
}

// BotID returns the bot's open_id
func (r *feishuRepo) BotID() string {
	return r.client.BotOpenID()
}

// SendText sends a text message
func (r *feishuRepo) SendText(ctx context.Context, chatID, text string) error {
	return r.client.SendText(ctx, chatID, text)
}

// SendTextWithMentions sends a text message with @ mentions
func (r *feishuRepo) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Participant) error {
	feishuMentions := make([]feishu.Mention, 0, len(mentions))
	for _, m := range mentions {
		feishuMentions = append(feishuMentions, feishu.Mention{
			UserID:   m.UserID,
			UserName: m.Name,
		})
	}
	return r.client.SendTextWithMentions(ctx, chatID, text, feishuMentions)
}

// DeleteMessage recalls a message
func (r *feishuRepo) DeleteMessage(ctx context.Context, msgID string) error {
	return r.client.DeleteMessage(ctx, msgID)
}

// RemoveMembers removes users from a group
func (r *feishuRepo) RemoveMembers(ctx context.Context, groupID string, userIDs []string) error {
	return r.client.RemoveMembers(ctx, groupID, userIDs)
}

// FetchProfile gets a user's display name
func (r *feishuRepo) FetchProfile(ctx context.Context, userID string) (*domain.Participant, error) {
	info, err := r.client.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.Participant{UserID: info.OpenID, Name: info.Name}, nil
}

// FetchGroupMetadata gets the group owner, managers and posting restriction
func (r *feishuRepo) FetchGroupMetadata(ctx context.Context, groupID string) (*domain.GroupMetadata, error) {
	info, err := r.client.GetChatInfo(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &domain.GroupMetadata{
		GroupID:    groupID,
		Name:       info.Name,
		OwnerID:    info.OwnerID,
		Admins:     append([]string(nil), info.Managers...),
		Restricted: info.Restricted,
	}, nil
}

// MarkRead is a no-op: Feishu bots have no read receipts
func (r *feishuRepo) MarkRead(ctx context.Context, msgID string) error {
	return nil
}

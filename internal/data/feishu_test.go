package data

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/infra/feishu"
)

type fakeFeishu struct {
	mentions []feishu.Mention
	chat     *feishu.ChatInfo
	chatErr  error
}

func (f *fakeFeishu) BotOpenID() string { return "ou_bot" }
func (f *fakeFeishu) SendText(ctx context.Context, chatID, text string) error {
	return nil
}
func (f *fakeFeishu) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []feishu.Mention) error {
	f.mentions = mentions
	return nil
}
func (f *fakeFeishu) DeleteMessage(ctx context.Context, msgID string) error { return nil }
func (f *fakeFeishu) RemoveMembers(ctx context.Context, chatID string, openIDs []string) error {
	return nil
}
func (f *fakeFeishu) GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error) {
	return f.chat, f.chatErr
}
func (f *fakeFeishu) GetUser(ctx context.Context, openID string) (*feishu.UserInfo, error) {
	return &feishu.UserInfo{OpenID: openID, Name: "Alice"}, nil
}

func TestFeishuRepo_FetchGroupMetadata(t *testing.T) {
	client := &fakeFeishu{chat: &feishu.ChatInfo{
		ChatID:     "oc_1",
		Name:       "devs",
		OwnerID:    "ou_owner",
		Managers:   []string{"ou_mod", "ou_bot"},
		Restricted: true,
	}}
	r := NewFeishuRepo(client)

	meta, err := r.FetchGroupMetadata(context.Background(), "oc_1")
	require.NoError(t, err)
	assert.Equal(t, &domain.GroupMetadata{
		GroupID:    "oc_1",
		Name:       "devs",
		OwnerID:    "ou_owner",
		Admins:     []string{"ou_mod", "ou_bot"},
		Restricted: true,
	}, meta)
	assert.Equal(t, "ou_bot", r.BotID())

	client.chatErr = errors.New("no permission")
	_, err = r.FetchGroupMetadata(context.Background(), "oc_1")
	assert.Error(t, err)
}

func TestFeishuRepo_MentionsAndProfile(t *testing.T) {
	client := &fakeFeishu{}
	r := NewFeishuRepo(client)
	ctx := context.Background()

	err := r.SendTextWithMentions(ctx, "oc_1", "welcome {user}", []domain.Participant{{UserID: "ou_a", Name: "Alice"}})
	require.NoError(t, err)
	assert.Equal(t, []feishu.Mention{{UserID: "ou_a", UserName: "Alice"}}, client.mentions)

	p, err := r.FetchProfile(ctx, "ou_a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	assert.NoError(t, r.MarkRead(ctx, "om_1"))
}

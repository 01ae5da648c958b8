package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Mention represents a user to be mentioned in a message
type Mention struct {
	UserID   string // open_id (ou_xxx)
	UserName string
}

// ChatInfo is the moderation-relevant view of a chat
type ChatInfo struct {
	ChatID     string
	Name       string
	OwnerID    string
	Managers   []string // User and bot managers
	Restricted bool     // Only the owner or moderators may post
}

// UserInfo is a contact profile
type UserInfo struct {
	OpenID string
	Name   string
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	return c.sendText(ctx, chatID, text)
}

// SendTextWithMentions sends a text message with @ mentions.
// A {user} placeholder in text is replaced by the mention tags; otherwise they are prepended.
func (c *Client) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []Mention) error {
	tags := make([]string, 0, len(mentions))
	for _, m := range mentions {
		name := m.UserName
		if name == "" {
			name = m.UserID
		}
		tags = append(tags, mentionTag(m.UserID, name))
	}
	joined := strings.Join(tags, " ")

	switch {
	case joined == "":
	case strings.Contains(text, "{user}"):
		text = strings.ReplaceAll(text, "{user}", joined)
	default:
		text = joined + " " + text
	}
	return c.sendText(ctx, chatID, text)
}

func (c *Client) sendText(ctx context.Context, chatID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	contentJSON, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}

	c.logger.Debug("message sent", zap.String("chat_id", chatID))
	return nil
}

// DeleteMessage recalls a message. The bot must be a chat manager to recall other users' messages.
func (c *Client) DeleteMessage(ctx context.Context, msgID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(msgID).
		Build()

	resp, err := c.larkCli.Im.Message.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("delete message error: %s", resp.Msg)
	}

	c.logger.Debug("message deleted", zap.String("message_id", msgID))
	return nil
}

// RemoveMembers removes users from a chat
func (c *Client) RemoveMembers(ctx context.Context, chatID string, openIDs []string) error {
	if len(openIDs) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := larkim.NewDeleteChatMembersReqBuilder().
		ChatId(chatID).
		MemberIdType("open_id").
		Body(larkim.NewDeleteChatMembersReqBodyBuilder().
			IdList(openIDs).
			Build()).
		Build()

	resp, err := c.larkCli.Im.ChatMembers.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("remove members failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("remove members error: %s", resp.Msg)
	}

	c.logger.Info("members removed", zap.String("chat_id", chatID), zap.Strings("members", openIDs))
	return nil
}

// GetChatInfo retrieves a chat's owner, managers and posting restriction
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat info error: %s", resp.Msg)
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data == nil {
		return info, nil
	}
	if resp.Data.Name != nil {
		info.Name = *resp.Data.Name
	}
	if resp.Data.OwnerId != nil {
		info.OwnerID = *resp.Data.OwnerId
	}
	info.Managers = append(info.Managers, resp.Data.UserManagerIdList...)
	info.Managers = append(info.Managers, resp.Data.BotManagerIdList...)
	if resp.Data.ModerationPermission != nil {
		switch *resp.Data.ModerationPermission {
		case "only_owner", "moderator_list":
			info.Restricted = true
		}
	}

	c.logger.Debug("chat info", zap.String("chat_id", chatID), zap.String("name", info.Name),
		zap.Int("managers", len(info.Managers)), zap.Bool("restricted", info.Restricted))
	return info, nil
}

// ListChats lists the IDs of every chat the bot is a member of
func (c *Client) ListChats(ctx context.Context) ([]string, error) {
	var chats []string
	var pageToken string

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return chats, err
		}

		reqBuilder := larkim.NewListChatReqBuilder().PageSize(100)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Chat.List(ctx, reqBuilder.Build())
		if err != nil {
			return chats, fmt.Errorf("list chats failed: %w", err)
		}
		if !resp.Success() {
			return chats, fmt.Errorf("list chats error: %s", resp.Msg)
		}
		if resp.Data == nil {
			break
		}

		for _, item := range resp.Data.Items {
			if item.ChatId != nil {
				chats = append(chats, *item.ChatId)
			}
		}

		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	return chats, nil
}

// GetUser retrieves a contact profile by open_id
func (c *Client) GetUser(ctx context.Context, openID string) (*UserInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Contact.User.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get user error: %s", resp.Msg)
	}

	info := &UserInfo{OpenID: openID}
	if resp.Data != nil && resp.Data.User != nil && resp.Data.User.Name != nil {
		info.Name = *resp.Data.User.Name
	}
	return info, nil
}

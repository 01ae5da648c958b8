package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Message represents a received Feishu message
type Message struct {
	ChatID      string
	MsgID       string
	MsgType     string // text, image, post, file, audio, media, sticker
	ChatType    string // p2p (private), group
	Content     string // Text content (extracted from text and post messages)
	ImageKeys   []string
	ParentID    string // Replied-to message
	Sender      *Sender
	Mentions    []string // Mentioned open_ids, bot excluded
	MentionsBot bool
	CreateTime  int64 // Milliseconds
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// MemberAction is the kind of chat membership change
type MemberAction string

const (
	MemberAdded     MemberAction = "added"
	MemberDeleted   MemberAction = "deleted"
	MemberWithdrawn MemberAction = "withdrawn"
)

// Member is a user affected by a membership event
type Member struct {
	OpenID    string
	Name      string
	TenantKey string
}

// MemberEvent reports users joining or leaving a chat
type MemberEvent struct {
	ChatID     string
	Action     MemberAction
	Members    []Member
	OperatorID string
}

// ChatEvent reports that a chat's settings changed
type ChatEvent struct {
	ChatID string
}

// UserEvent reports an updated contact profile
type UserEvent struct {
	OpenID string
	Name   string
}

// State is a connection lifecycle state
type State string

const (
	StateConnecting  State = "connecting"
	StateOpen        State = "open"
	StateFullySynced State = "fully_synced"
	StateClosed      State = "closed"
)

// Handlers receives inbound events. Nil handlers are skipped.
// Handlers are called from SDK goroutines and must not block.
type Handlers struct {
	OnMessage     func(*Message)
	OnMembers     func(*MemberEvent)
	OnChatUpdated func(*ChatEvent)
	OnUserUpdated func(*UserEvent)
	OnState       func(State)
}

// Options configures the client
type Options struct {
	AppID      string
	AppSecret  string
	TokenCache larkcore.Cache // Optional persistent token cache
	RPS        float64        // Outbound API calls per second
	Debug      bool
}

// Client is the Feishu API client
type Client struct {
	opts     Options
	larkCli  *lark.Client
	wsCli    *larkws.Client
	limiter  *rate.Limiter
	handlers Handlers
	logger   *zap.Logger

	mu        sync.RWMutex
	botOpenID string
	cancel    context.CancelFunc
}

// NewClient creates a new Feishu client
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.RPS <= 0 {
		opts.RPS = 5
	}

	larkOpts := []lark.ClientOptionFunc{lark.WithLogLevel(larkcore.LogLevelWarn)}
	if opts.Debug {
		larkOpts = []lark.ClientOptionFunc{lark.WithLogLevel(larkcore.LogLevelDebug)}
	}
	if opts.TokenCache != nil {
		larkOpts = append(larkOpts, lark.WithTokenCache(opts.TokenCache))
	}

	return &Client{
		opts:    opts,
		larkCli: lark.NewClient(opts.AppID, opts.AppSecret, larkOpts...),
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), int(opts.RPS)+1),
		logger:  logger.Named("feishu"),
	}
}

// SetHandlers sets the inbound event handlers. Must be called before Start.
func (c *Client) SetHandlers(h Handlers) {
	c.handlers = h
}

// BotOpenID returns the bot's own open_id, empty until the connection is open
func (c *Client) BotOpenID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botOpenID
}

// Start connects to Feishu via WebSocket and blocks until ctx is done or the connection fails.
// States are reported in order: connecting, open, fully_synced.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.emitState(StateConnecting)

	// Note: handlers must return quickly so the SDK can ACK, otherwise Feishu redelivers
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			c.handleMessage(event)
			return nil
		}).
		OnP2ChatMemberUserAddedV1(func(ctx context.Context, event *larkim.P2ChatMemberUserAddedV1) error {
			if event.Event != nil {
				c.emitMembers(MemberAdded, event.Event.ChatId, event.Event.OperatorId, event.Event.Users)
			}
			return nil
		}).
		OnP2ChatMemberUserDeletedV1(func(ctx context.Context, event *larkim.P2ChatMemberUserDeletedV1) error {
			if event.Event != nil {
				c.emitMembers(MemberDeleted, event.Event.ChatId, event.Event.OperatorId, event.Event.Users)
			}
			return nil
		}).
		OnP2ChatMemberUserWithdrawnV1(func(ctx context.Context, event *larkim.P2ChatMemberUserWithdrawnV1) error {
			if event.Event != nil {
				c.emitMembers(MemberWithdrawn, event.Event.ChatId, event.Event.OperatorId, event.Event.Users)
			}
			return nil
		}).
		OnP2ChatUpdatedV1(func(ctx context.Context, event *larkim.P2ChatUpdatedV1) error {
			if event.Event != nil && event.Event.ChatId != nil && c.handlers.OnChatUpdated != nil {
				c.handlers.OnChatUpdated(&ChatEvent{ChatID: *event.Event.ChatId})
			}
			return nil
		}).
		OnP2UserUpdatedV3(func(ctx context.Context, event *larkcontact.P2UserUpdatedV3) error {
			c.handleUserUpdated(event)
			return nil
		})

	logLevel := larkcore.LogLevelInfo
	if c.opts.Debug {
		logLevel = larkcore.LogLevelDebug
	}
	c.wsCli = larkws.NewClient(c.opts.AppID, c.opts.AppSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(logLevel),
	)

	c.logger.Info("starting websocket connection")

	// larkws.Client.Start blocks for the life of the process
	wsErr := make(chan error, 1)
	go func() {
		wsErr <- c.wsCli.Start(ctx)
	}()

	if err := c.fetchBotOpenID(ctx); err != nil {
		c.logger.Warn("failed to fetch bot open_id", zap.Error(err))
	}
	c.emitState(StateOpen)

	if err := c.syncChats(ctx); err != nil {
		c.logger.Warn("initial chat sweep incomplete", zap.Error(err))
	}
	c.emitState(StateFullySynced)

	select {
	case <-ctx.Done():
		c.emitState(StateClosed)
		return nil
	case err := <-wsErr:
		c.emitState(StateClosed)
		if err != nil {
			return fmt.Errorf("websocket: %w", err)
		}
		return nil
	}
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// syncChats reports every chat the bot is in as updated, so metadata is refreshed before going live
func (c *Client) syncChats(ctx context.Context) error {
	if c.handlers.OnChatUpdated == nil {
		return nil
	}
	chats, err := c.ListChats(ctx)
	for _, chatID := range chats {
		c.handlers.OnChatUpdated(&ChatEvent{ChatID: chatID})
	}
	c.logger.Info("initial chat sweep", zap.Int("chats", len(chats)))
	return err
}

// fetchBotOpenID fetches the bot's own open_id through the SDK's authenticated transport
func (c *Client) fetchBotOpenID(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.larkCli.Get(ctx, "/open-apis/bot/v3/info", nil, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.Unmarshal(resp.RawBody, &botResult); err != nil {
		return fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return fmt.Errorf("API error: %s", botResult.Msg)
	}

	c.mu.Lock()
	c.botOpenID = botResult.Bot.OpenID
	c.mu.Unlock()
	c.logger.Info("bot identity", zap.String("open_id", botResult.Bot.OpenID), zap.String("name", botResult.Bot.AppName))
	return nil
}

func (c *Client) emitState(s State) {
	c.logger.Debug("connection state", zap.String("state", string(s)))
	if c.handlers.OnState != nil {
		c.handlers.OnState(s)
	}
}

func (c *Client) emitMembers(action MemberAction, chatID *string, operator *larkim.UserId, users []*larkim.ChatMemberUser) {
	if chatID == nil || c.handlers.OnMembers == nil {
		return
	}
	ev := &MemberEvent{ChatID: *chatID, Action: action}
	if operator != nil && operator.OpenId != nil {
		ev.OperatorID = *operator.OpenId
	}
	for _, u := range users {
		if u == nil || u.UserId == nil || u.UserId.OpenId == nil {
			continue
		}
		m := Member{OpenID: *u.UserId.OpenId}
		if u.Name != nil {
			m.Name = *u.Name
		}
		if u.TenantKey != nil {
			m.TenantKey = *u.TenantKey
		}
		ev.Members = append(ev.Members, m)
	}
	if len(ev.Members) == 0 {
		return
	}
	c.handlers.OnMembers(ev)
}

func (c *Client) handleUserUpdated(event *larkcontact.P2UserUpdatedV3) {
	if event.Event == nil || event.Event.Object == nil || c.handlers.OnUserUpdated == nil {
		return
	}
	obj := event.Event.Object
	if obj.OpenId == nil {
		return
	}
	ev := &UserEvent{OpenID: *obj.OpenId}
	if obj.Name != nil {
		ev.Name = *obj.Name
	}
	c.handlers.OnUserUpdated(ev)
}

// handleMessage converts a receive event. Messages sent by apps, including ourselves, are flagged
// through Sender.SenderType rather than dropped here.
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil || c.handlers.OnMessage == nil {
		return
	}
	rawMsg := event.Event.Message
	if rawMsg.ChatId == nil || rawMsg.MessageId == nil || rawMsg.MessageType == nil {
		return
	}

	msg := &Message{
		ChatID:  *rawMsg.ChatId,
		MsgID:   *rawMsg.MessageId,
		MsgType: *rawMsg.MessageType,
	}
	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}
	if rawMsg.ChatType != nil {
		msg.ChatType = *rawMsg.ChatType
	}
	if rawMsg.ParentId != nil {
		msg.ParentID = *rawMsg.ParentId
	}

	if s := event.Event.Sender; s != nil {
		msg.Sender = &Sender{}
		if s.SenderId != nil && s.SenderId.OpenId != nil {
			msg.Sender.SenderID = *s.SenderId.OpenId
		}
		if s.SenderType != nil {
			msg.Sender.SenderType = *s.SenderType
		}
		if s.TenantKey != nil {
			msg.Sender.TenantKey = *s.TenantKey
		}
	}

	// Mention keys (@_user_1) map to real names for placeholder replacement
	botID := c.BotOpenID()
	mentionMap := make(map[string]string)
	for _, mention := range rawMsg.Mentions {
		if mention.Id != nil && mention.Id.OpenId != nil {
			openID := *mention.Id.OpenId
			if botID != "" && openID == botID {
				msg.MentionsBot = true
			} else {
				msg.Mentions = append(msg.Mentions, openID)
			}
		}
		if mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = *mention.Name
		}
	}

	content := ""
	if rawMsg.Content != nil {
		content = *rawMsg.Content
	}
	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(content, mentionMap)
	case "image":
		msg.ImageKeys = parseImageContent(content)
	case "post":
		msg.Content, msg.ImageKeys = parsePostContent(content, mentionMap)
	}

	c.logger.Debug("received message",
		zap.String("type", msg.MsgType),
		zap.String("chat_type", msg.ChatType),
		zap.String("chat_id", msg.ChatID),
		zap.String("content", truncate(msg.Content, 50)))

	c.handlers.OnMessage(msg)
}

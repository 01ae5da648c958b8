package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/infra/feishu"
)

// seenTTL is how long a message ID is remembered for redelivery dedup
const seenTTL = 5 * time.Minute

// Connector is the platform connection the server listens on
type Connector interface {
	SetHandlers(h feishu.Handlers)
	Start(ctx context.Context) error
	Stop()
}

// EventSink receives translated events and connection signals
type EventSink interface {
	Submit(ev domain.InboundEvent) bool
	Signal(sig domain.ConnectionSignal) bool
}

// FeishuServer translates Feishu callbacks into inbound events
type FeishuServer struct {
	conn   Connector
	sink   EventSink
	logger *zap.Logger
	now    func() time.Time

	// Message deduplication cache, Feishu redelivers when an ACK is late
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> first seen
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(conn Connector, sink EventSink, logger *zap.Logger) *FeishuServer {
	s := &FeishuServer{
		conn:     conn,
		sink:     sink,
		logger:   logger.Named("server"),
		now:      time.Now,
		seenMsgs: make(map[string]time.Time),
	}
	conn.SetHandlers(feishu.Handlers{
		OnMessage:     s.handleMessage,
		OnMembers:     s.handleMembers,
		OnChatUpdated: s.handleChatUpdated,
		OnUserUpdated: s.handleUserUpdated,
		OnState:       s.handleState,
	})
	return s
}

// Start connects and blocks until ctx is done or the connection fails
func (s *FeishuServer) Start(ctx context.Context) error {
	return s.conn.Start(ctx)
}

// Stop disconnects
func (s *FeishuServer) Stop() {
	s.conn.Stop()
}

func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	if s.seen(msg.MsgID) {
		s.logger.Debug("duplicate message ignored", zap.String("message_id", msg.MsgID))
		return
	}

	raw := toRawMessage(msg)
	s.logger.Debug("message received",
		zap.String("chat_id", raw.ChatID),
		zap.String("chat_type", string(raw.ChatType)),
		zap.String("sender", raw.SenderID),
		zap.String("msg_type", raw.MsgType))
	s.submit(domain.NewMessageEvent(raw))
}

func (s *FeishuServer) handleMembers(ev *feishu.MemberEvent) {
	s.submit(domain.NewParticipantEvent(toParticipantChange(ev)))
}

func (s *FeishuServer) handleChatUpdated(ev *feishu.ChatEvent) {
	// Metadata is fetched by the handler, so a queued sweep and a live update collapse into one fetch
	s.submit(domain.NewGroupEvent(&domain.GroupMetadataChange{GroupID: ev.ChatID}))
}

func (s *FeishuServer) handleUserUpdated(ev *feishu.UserEvent) {
	s.submit(domain.NewContactEvent(&domain.ContactChange{UserID: ev.OpenID, Name: ev.Name}))
}

func (s *FeishuServer) handleState(state feishu.State) {
	var sig domain.ConnectionSignal
	switch state {
	case feishu.StateConnecting:
		sig = domain.SignalConnecting
	case feishu.StateOpen:
		sig = domain.SignalOpen
	case feishu.StateFullySynced:
		sig = domain.SignalFullySynced
	case feishu.StateClosed:
		sig = domain.SignalClosed
	default:
		s.logger.Warn("unknown connection state", zap.String("state", string(state)))
		return
	}
	if !s.sink.Signal(sig) {
		s.logger.Warn("connection signal dropped, pipeline stopped", zap.String("signal", string(sig)))
	}
}

func (s *FeishuServer) submit(ev domain.InboundEvent) {
	if !s.sink.Submit(ev) {
		s.logger.Warn("event dropped, pipeline stopped", zap.String("kind", string(ev.Kind)), zap.String("chat_id", ev.ChatID))
	}
}

// seen records msgID and reports whether it was already recorded
func (s *FeishuServer) seen(msgID string) bool {
	if msgID == "" {
		return false
	}
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := s.now()
	if ts, ok := s.seenMsgs[msgID]; ok && now.Sub(ts) < seenTTL {
		return true
	}
	s.seenMsgs[msgID] = now

	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
	return false
}

func toRawMessage(msg *feishu.Message) *domain.RawMessage {
	raw := &domain.RawMessage{
		ID:          msg.MsgID,
		ChatID:      msg.ChatID,
		ChatType:    domain.ChatTypeP2P,
		MsgType:     msg.MsgType,
		Text:        msg.Content,
		ParentID:    msg.ParentID,
		ImageKeys:   msg.ImageKeys,
		Mentions:    msg.Mentions,
		MentionsBot: msg.MentionsBot,
	}
	if msg.ChatType == "group" {
		raw.ChatType = domain.ChatTypeGroup
	}
	if msg.Sender != nil {
		raw.SenderID = msg.Sender.SenderID
		raw.SenderTenant = msg.Sender.TenantKey
		raw.FromBot = msg.Sender.SenderType == "app"
	}
	if msg.CreateTime > 0 {
		raw.CreateTime = time.UnixMilli(msg.CreateTime)
	}
	return raw
}

func toParticipantChange(ev *feishu.MemberEvent) *domain.ParticipantChange {
	change := &domain.ParticipantChange{
		GroupID:    ev.ChatID,
		Action:     domain.ParticipantRemove,
		OperatorID: ev.OperatorID,
	}
	if ev.Action == feishu.MemberAdded {
		change.Action = domain.ParticipantAdd
	}
	for _, m := range ev.Members {
		change.Participants = append(change.Participants, domain.Participant{
			UserID:    m.OpenID,
			Name:      m.Name,
			TenantKey: m.TenantKey,
		})
	}
	return change
}

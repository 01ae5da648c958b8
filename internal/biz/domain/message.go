package domain

import (
	"strings"
	"time"
)

// ChatType represents the chat type
type ChatType string

const (
	ChatTypeGroup ChatType = "group"
	ChatTypeP2P   ChatType = "p2p"
)

// MediaDescriptor describes the media attached to a message
type MediaDescriptor struct {
	Type string // image, file, audio, video, sticker
	Keys []string
}

// NormalizedMessage is the pipeline's view of one inbound message.
// Built once per event by NewNormalizedMessage and never mutated afterwards.
type NormalizedMessage struct {
	ID         string
	ChatID     string
	SenderID   string
	SenderName string
	Tenant     string
	MsgType    string
	Body       string
	Prefix     string
	Command    string // Lowercased, prefix stripped; empty when not a command
	Args       string
	Quoted     string // Quoted message ID, if any
	Media      *MediaDescriptor
	Mentions   []string
	CreateTime time.Time

	IsGroup      bool
	IsCommand    bool
	IsBotOwner   bool
	IsGroupAdmin bool
	IsBotMessage bool
}

// MessageContext carries the facts needed to classify a raw message
type MessageContext struct {
	Prefix  string
	BotID   string
	OwnerID string
	Admins  []string // Current group admins, empty for private chats
}

// NewNormalizedMessage builds the immutable pipeline view of raw
func NewNormalizedMessage(raw *RawMessage, mc MessageContext) *NormalizedMessage {
	sender := CanonicalID(raw.SenderID)
	body := strings.TrimSpace(raw.Text)

	msg := &NormalizedMessage{
		ID:           raw.ID,
		ChatID:       raw.ChatID,
		SenderID:     sender,
		SenderName:   raw.SenderName,
		Tenant:       raw.SenderTenant,
		MsgType:      raw.MsgType,
		Body:         body,
		Prefix:       mc.Prefix,
		Quoted:       raw.ParentID,
		Mentions:     append([]string(nil), raw.Mentions...),
		CreateTime:   raw.CreateTime,
		IsGroup:      raw.ChatType == ChatTypeGroup,
		IsBotOwner:   sender != "" && sender == CanonicalID(mc.OwnerID),
		IsBotMessage: raw.FromBot || (mc.BotID != "" && sender == CanonicalID(mc.BotID)),
	}

	if len(raw.ImageKeys) > 0 || isMediaType(raw.MsgType) {
		msg.Media = &MediaDescriptor{Type: raw.MsgType, Keys: append([]string(nil), raw.ImageKeys...)}
	}

	if msg.IsGroup {
		for _, admin := range mc.Admins {
			if CanonicalID(admin) == sender {
				msg.IsGroupAdmin = true
				break
			}
		}
	}

	token, args := splitFirstWord(body)
	if mc.Prefix != "" && len(token) > len(mc.Prefix) && strings.HasPrefix(token, mc.Prefix) {
		msg.IsCommand = true
		msg.Command = strings.ToLower(strings.TrimPrefix(token, mc.Prefix))
		msg.Args = args
	}

	return msg
}

// CanonicalID normalizes a platform user ID for comparisons
func CanonicalID(id string) string {
	return strings.TrimSpace(id)
}

// IsFrom reports whether the message was sent by userID
func (m *NormalizedMessage) IsFrom(userID string) bool {
	return m.SenderID == CanonicalID(userID)
}

// ActivityType buckets the message for participant activity counters
func (m *NormalizedMessage) ActivityType() string {
	switch m.MsgType {
	case "text", "post":
		return "text"
	case "image":
		return "image"
	case "audio", "media", "video", "file", "sticker":
		return "media"
	default:
		return "other"
	}
}

func isMediaType(msgType string) bool {
	switch msgType {
	case "image", "file", "audio", "media", "video", "sticker":
		return true
	}
	return false
}

func splitFirstWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t\n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

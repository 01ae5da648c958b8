package domain

import "time"

// EventKind identifies which payload an InboundEvent carries
type EventKind string

const (
	EventMessage             EventKind = "message"
	EventParticipantChange   EventKind = "participant_change"
	EventGroupMetadataChange EventKind = "group_metadata_change"
	EventContactChange       EventKind = "contact_change"
)

// ParticipantAction is the membership transition reported by the platform
type ParticipantAction string

const (
	ParticipantAdd     ParticipantAction = "add"
	ParticipantRemove  ParticipantAction = "remove"
	ParticipantPromote ParticipantAction = "promote"
	ParticipantDemote  ParticipantAction = "demote"
)

// InboundEvent is a platform event on its way into the pipeline.
// Exactly one payload pointer is set, matching Kind.
type InboundEvent struct {
	Kind       EventKind
	Seq        uint64 // Assigned by the lifecycle worker in handling order
	ReceivedAt time.Time
	ChatID     string

	Message      *RawMessage
	Participants *ParticipantChange
	Group        *GroupMetadataChange
	Contact      *ContactChange
}

// RawMessage is a message as delivered by the connector, before normalization
type RawMessage struct {
	ID           string
	ChatID       string
	ChatType     ChatType
	SenderID     string
	SenderName   string
	SenderTenant string
	FromBot      bool // Sent by an app (including ourselves)
	MsgType      string
	Text         string
	ParentID     string   // Quoted/replied message
	ImageKeys    []string // Media keys for image/post messages
	Mentions     []string // Mentioned user IDs, bot excluded
	MentionsBot  bool
	CreateTime   time.Time
}

// Participant is a user affected by a membership change
type Participant struct {
	UserID    string
	Name      string
	TenantKey string
}

// ParticipantChange reports users joining, leaving, or changing role in a group
type ParticipantChange struct {
	GroupID      string
	Action       ParticipantAction
	Participants []Participant
	OperatorID   string
}

// ParticipantIDs returns the affected user IDs
func (p *ParticipantChange) ParticipantIDs() []string {
	ids := make([]string, 0, len(p.Participants))
	for _, part := range p.Participants {
		ids = append(ids, part.UserID)
	}
	return ids
}

// Overlaps reports whether both changes target the same group and share a participant
func (p *ParticipantChange) Overlaps(other *ParticipantChange) bool {
	if p == nil || other == nil || p.GroupID != other.GroupID {
		return false
	}
	seen := make(map[string]struct{}, len(p.Participants))
	for _, part := range p.Participants {
		seen[part.UserID] = struct{}{}
	}
	for _, part := range other.Participants {
		if _, ok := seen[part.UserID]; ok {
			return true
		}
	}
	return false
}

// GroupMetadataChange reports that a group's settings changed.
// Metadata is nil when the platform only sent a notification; the handler fetches it.
type GroupMetadataChange struct {
	GroupID  string
	Metadata *GroupMetadata
}

// GroupMetadata is the platform's view of a group
type GroupMetadata struct {
	GroupID    string
	Name       string
	OwnerID    string
	Admins     []string
	Restricted bool // Only admins may post
}

// ContactChange reports an updated user profile
type ContactChange struct {
	UserID string
	Name   string
}

// NewMessageEvent wraps a raw message
func NewMessageEvent(msg *RawMessage) InboundEvent {
	return InboundEvent{Kind: EventMessage, ChatID: msg.ChatID, Message: msg}
}

// NewParticipantEvent wraps a participant change
func NewParticipantEvent(change *ParticipantChange) InboundEvent {
	return InboundEvent{Kind: EventParticipantChange, ChatID: change.GroupID, Participants: change}
}

// NewGroupEvent wraps a group metadata change
func NewGroupEvent(change *GroupMetadataChange) InboundEvent {
	return InboundEvent{Kind: EventGroupMetadataChange, ChatID: change.GroupID, Group: change}
}

// NewContactEvent wraps a contact change
func NewContactEvent(change *ContactChange) InboundEvent {
	return InboundEvent{Kind: EventContactChange, ChatID: change.UserID, Contact: change}
}

// ConnectionSignal is a connection lifecycle notification from the platform connector
type ConnectionSignal string

const (
	SignalConnecting  ConnectionSignal = "connecting"
	SignalOpen        ConnectionSignal = "open"
	SignalFullySynced ConnectionSignal = "fully_synced"
	SignalClosed      ConnectionSignal = "closed"
)

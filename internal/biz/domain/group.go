package domain

import (
	"strings"
	"time"
)

// AntiLinkConfig controls link moderation
type AntiLinkConfig struct {
	Enabled    bool     `json:"enabled"`
	Exceptions []string `json:"exceptions"` // Allowed hosts or substrings, e.g. "feishu.cn"
}

// AntiFloodConfig controls per-participant message flood moderation
type AntiFloodConfig struct {
	Enabled     bool          `json:"enabled"`
	MaxMessages int           `json:"max_messages"`
	Interval    time.Duration `json:"interval"`
}

// AntiFakeConfig controls removal of joiners from unknown tenants
type AntiFakeConfig struct {
	Enabled bool     `json:"enabled"`
	Allowed []string `json:"allowed"` // Tenant keys allowed to join
}

// WordFilterConfig controls filtered-word moderation
type WordFilterConfig struct {
	Enabled bool     `json:"enabled"`
	Words   []string `json:"words"`
}

// WelcomeConfig controls the welcome message for new participants
type WelcomeConfig struct {
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
}

// AutoReply answers plain messages containing Trigger
type AutoReply struct {
	Trigger string `json:"trigger"`
	Reply   string `json:"reply"`
}

// GroupPolicy is the per-group moderation state
type GroupPolicy struct {
	GroupID string
	Name    string

	// Platform metadata, refreshed on group metadata changes
	OwnerID    string
	Admins     []string
	Restricted bool

	CommandMute     bool // Only admins may use commands
	MutedMembers    []string
	AntiLink        AntiLinkConfig
	AntiFlood       AntiFloodConfig
	AntiFake        AntiFakeConfig
	WordFilter      WordFilterConfig
	Blacklist       []string
	BlockedCommands []string
	Welcome         WelcomeConfig
	AutoReplies     []AutoReply

	CommandCount int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DefaultAntiFlood is applied when a group enables anti-flood without limits
var DefaultAntiFlood = AntiFloodConfig{MaxMessages: 10, Interval: 10 * time.Second}

// NewGroupPolicy returns the default policy for a group seen for the first time
func NewGroupPolicy(groupID string) *GroupPolicy {
	now := time.Now()
	return &GroupPolicy{
		GroupID:   groupID,
		AntiFlood: AntiFloodConfig{MaxMessages: DefaultAntiFlood.MaxMessages, Interval: DefaultAntiFlood.Interval},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin reports whether userID is a group admin or the group owner
func (g *GroupPolicy) IsAdmin(userID string) bool {
	id := CanonicalID(userID)
	if id == "" {
		return false
	}
	if CanonicalID(g.OwnerID) == id {
		return true
	}
	return containsID(g.Admins, id)
}

// IsMuted reports whether userID is in the muted-member set
func (g *GroupPolicy) IsMuted(userID string) bool {
	return containsID(g.MutedMembers, userID)
}

// IsBlacklisted reports whether userID is banned from the group
func (g *GroupPolicy) IsBlacklisted(userID string) bool {
	return containsID(g.Blacklist, userID)
}

// IsCommandBlocked reports whether command is blocked in this group
func (g *GroupPolicy) IsCommandBlocked(command string) bool {
	command = strings.ToLower(command)
	for _, c := range g.BlockedCommands {
		if strings.ToLower(c) == command {
			return true
		}
	}
	return false
}

// AdminList returns the owner and admins without duplicates
func (g *GroupPolicy) AdminList() []string {
	out := make([]string, 0, len(g.Admins)+1)
	if g.OwnerID != "" {
		out = append(out, g.OwnerID)
	}
	for _, a := range g.Admins {
		if !containsID(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// ApplyMetadata copies platform metadata into the policy
func (g *GroupPolicy) ApplyMetadata(meta *GroupMetadata) {
	if meta.Name != "" {
		g.Name = meta.Name
	}
	g.OwnerID = meta.OwnerID
	g.Admins = append([]string(nil), meta.Admins...)
	g.Restricted = meta.Restricted
	g.UpdatedAt = time.Now()
}

// MatchAutoReply returns the reply for the first trigger found in body
func (g *GroupPolicy) MatchAutoReply(body string) (string, bool) {
	lower := strings.ToLower(body)
	for _, ar := range g.AutoReplies {
		if ar.Trigger != "" && strings.Contains(lower, strings.ToLower(ar.Trigger)) {
			return ar.Reply, true
		}
	}
	return "", false
}

// AddUnique appends id to list unless already present
func AddUnique(list []string, id string) []string {
	if containsID(list, id) {
		return list
	}
	return append(list, CanonicalID(id))
}

// RemoveID returns list without id
func RemoveID(list []string, id string) []string {
	id = CanonicalID(id)
	out := list[:0:0]
	for _, v := range list {
		if CanonicalID(v) != id {
			out = append(out, v)
		}
	}
	return out
}

func containsID(list []string, id string) bool {
	id = CanonicalID(id)
	if id == "" {
		return false
	}
	for _, v := range list {
		if CanonicalID(v) == id {
			return true
		}
	}
	return false
}

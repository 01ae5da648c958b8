// Package mcp exposes group policy administration as MCP tools over stdio
package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
)

// PolicyServer serves policy tools backed by the bot's policy store
type PolicyServer struct {
	server  *mcpsdk.Server
	policy  *usecase.PolicyUsecase
	groups  repo.GroupRepo
	execLog repo.ExecLogRepo
	status  *StatusClient // Optional, nil when the bot's HTTP port is unknown
	logger  *zap.Logger
}

// NewPolicyServer creates the server and registers its tools
func NewPolicyServer(policy *usecase.PolicyUsecase, groups repo.GroupRepo, execLog repo.ExecLogRepo, status *StatusClient, logger *zap.Logger) *PolicyServer {
	s := &PolicyServer{
		server: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "feishu-guard",
			Version: "v1.0.0",
		}, nil),
		policy:  policy,
		groups:  groups,
		execLog: execLog,
		status:  status,
		logger:  logger.Named("mcp"),
	}
	s.registerTools()
	return s
}

// Server returns the underlying MCP server
func (s *PolicyServer) Server() *mcpsdk.Server {
	return s.server
}

// Run serves over stdin/stdout until the client disconnects or ctx is done
func (s *PolicyServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *PolicyServer) registerTools() {
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_list_groups",
		Description: "List every group the bot has seen with a one-line moderation summary.",
	}, s.listGroups)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_get_group",
		Description: "Show the full moderation policy of one group.",
	}, s.getGroup)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_anti_link",
		Description: "Turn link removal on or off for a group. Exceptions are allowed hosts; omit to keep the current list.",
	}, s.setAntiLink)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_anti_flood",
		Description: "Turn flood warnings on or off for a group. Zero limits keep the current values.",
	}, s.setAntiFlood)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_anti_fake",
		Description: "Turn removal of joiners from other tenants on or off. Allowed tenants omitted keeps the current list.",
	}, s.setAntiFake)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_word_filter",
		Description: "Turn the word filter on or off, optionally adding or removing words.",
	}, s.setWordFilter)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_member",
		Description: "Mute, unmute, blacklist or unblacklist a member of a group.",
	}, s.setMember)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_commands",
		Description: "Block or unblock a command in a group, or limit all commands to admins.",
	}, s.setCommands)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_welcome",
		Description: "Set the welcome message for new members. {user} and {group} are replaced.",
	}, s.setWelcome)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_auto_reply",
		Description: "Add or replace an auto-reply for a trigger. An empty reply removes the trigger.",
	}, s.setAutoReply)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_user_blocked",
		Description: "Block or unblock a user everywhere. Takes effect in the running bot within a minute.",
	}, s.setUserBlocked)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_set_private_commands",
		Description: "Allow or forbid commands from non-owners in private chats.",
	}, s.setPrivateCommands)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_recent_commands",
		Description: "Show the most recent command executions, newest first.",
	}, s.recentCommands)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "guard_bot_status",
		Description: "Show the running bot's connection state and bot-wide settings.",
	}, s.botStatus)
}

// Result is the output of mutating tools
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// requireGroup rejects group IDs the bot has never seen, so typos do not create empty policies
func (s *PolicyServer) requireGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return fmt.Errorf("group_id is required")
	}
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("unknown group %s", groupID)
	}
	return nil
}

// GroupSummary is one row of guard_list_groups
type GroupSummary struct {
	GroupID      string `json:"group_id"`
	Name         string `json:"name,omitempty"`
	Admins       int    `json:"admins"`
	Muted        int    `json:"muted"`
	Blacklisted  int    `json:"blacklisted"`
	AntiLink     bool   `json:"anti_link"`
	AntiFlood    bool   `json:"anti_flood"`
	AntiFake     bool   `json:"anti_fake"`
	WordFilter   bool   `json:"word_filter"`
	CommandMute  bool   `json:"command_mute"`
	CommandCount int64  `json:"command_count"`
}

// ListGroupsInput takes no arguments
type ListGroupsInput struct{}

// ListGroupsOutput lists known groups
type ListGroupsOutput struct {
	Groups []GroupSummary `json:"groups"`
	Error  string         `json:"error,omitempty"`
}

func (s *PolicyServer) listGroups(ctx context.Context, req *mcpsdk.CallToolRequest, input ListGroupsInput) (*mcpsdk.CallToolResult, ListGroupsOutput, error) {
	groups, err := s.policy.Groups(ctx)
	if err != nil {
		return nil, ListGroupsOutput{Error: err.Error()}, nil
	}
	out := ListGroupsOutput{Groups: make([]GroupSummary, 0, len(groups))}
	for _, g := range groups {
		out.Groups = append(out.Groups, GroupSummary{
			GroupID:      g.GroupID,
			Name:         g.Name,
			Admins:       len(g.Admins),
			Muted:        len(g.MutedMembers),
			Blacklisted:  len(g.Blacklist),
			AntiLink:     g.AntiLink.Enabled,
			AntiFlood:    g.AntiFlood.Enabled,
			AntiFake:     g.AntiFake.Enabled,
			WordFilter:   g.WordFilter.Enabled,
			CommandMute:  g.CommandMute,
			CommandCount: g.CommandCount,
		})
	}
	return nil, out, nil
}

// GroupInput identifies a group
type GroupInput struct {
	GroupID string `json:"group_id" jsonschema:"the chat_id of the group (oc_...)"`
}

// GroupView is the full policy of a group
type GroupView struct {
	GroupID         string             `json:"group_id"`
	Name            string             `json:"name,omitempty"`
	OwnerID         string             `json:"owner_id,omitempty"`
	Admins          []string           `json:"admins"`
	Restricted      bool               `json:"restricted"`
	CommandMute     bool               `json:"command_mute"`
	MutedMembers    []string           `json:"muted_members"`
	Blacklist       []string           `json:"blacklist"`
	BlockedCommands []string           `json:"blocked_commands"`
	AntiLink        bool               `json:"anti_link"`
	LinkExceptions  []string           `json:"link_exceptions"`
	AntiFlood       bool               `json:"anti_flood"`
	FloodMax        int                `json:"flood_max_messages"`
	FloodSeconds    int                `json:"flood_interval_seconds"`
	AntiFake        bool               `json:"anti_fake"`
	AllowedTenants  []string           `json:"allowed_tenants"`
	WordFilter      bool               `json:"word_filter"`
	FilteredWords   []string           `json:"filtered_words"`
	Welcome         bool               `json:"welcome"`
	WelcomeText     string             `json:"welcome_text,omitempty"`
	AutoReplies     []domain.AutoReply `json:"auto_replies"`
	CommandCount    int64              `json:"command_count"`
}

// GetGroupOutput holds one group's policy
type GetGroupOutput struct {
	Group *GroupView `json:"group,omitempty"`
	Error string     `json:"error,omitempty"`
}

func (s *PolicyServer) getGroup(ctx context.Context, req *mcpsdk.CallToolRequest, input GroupInput) (*mcpsdk.CallToolResult, GetGroupOutput, error) {
	if err := s.requireGroup(ctx, input.GroupID); err != nil {
		return nil, GetGroupOutput{Error: err.Error()}, nil
	}
	g, err := s.policy.Group(ctx, input.GroupID)
	if err != nil {
		return nil, GetGroupOutput{Error: err.Error()}, nil
	}
	return nil, GetGroupOutput{Group: viewOf(g)}, nil
}

func viewOf(g *domain.GroupPolicy) *GroupView {
	return &GroupView{
		GroupID:         g.GroupID,
		Name:            g.Name,
		OwnerID:         g.OwnerID,
		Admins:          g.Admins,
		Restricted:      g.Restricted,
		CommandMute:     g.CommandMute,
		MutedMembers:    g.MutedMembers,
		Blacklist:       g.Blacklist,
		BlockedCommands: g.BlockedCommands,
		AntiLink:        g.AntiLink.Enabled,
		LinkExceptions:  g.AntiLink.Exceptions,
		AntiFlood:       g.AntiFlood.Enabled,
		FloodMax:        g.AntiFlood.MaxMessages,
		FloodSeconds:    int(g.AntiFlood.Interval / time.Second),
		AntiFake:        g.AntiFake.Enabled,
		AllowedTenants:  g.AntiFake.Allowed,
		WordFilter:      g.WordFilter.Enabled,
		FilteredWords:   g.WordFilter.Words,
		Welcome:         g.Welcome.Enabled,
		WelcomeText:     g.Welcome.Text,
		AutoReplies:     g.AutoReplies,
		CommandCount:    g.CommandCount,
	}
}

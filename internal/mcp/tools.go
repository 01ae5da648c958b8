package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// AntiLinkInput configures link removal
type AntiLinkInput struct {
	GroupID    string   `json:"group_id" jsonschema:"the chat_id of the group"`
	Enabled    bool     `json:"enabled" jsonschema:"whether links are removed"`
	Exceptions []string `json:"exceptions,omitempty" jsonschema:"allowed hosts such as feishu.cn"`
}

func (s *PolicyServer) setAntiLink(ctx context.Context, req *mcpsdk.CallToolRequest, input AntiLinkInput) (*mcpsdk.CallToolResult, Result, error) {
	return s.mutate(ctx, "anti_link", input.GroupID, func() error {
		return s.policy.SetAntiLink(ctx, input.GroupID, input.Enabled, input.Exceptions)
	})
}

// AntiFloodInput configures flood warnings
type AntiFloodInput struct {
	GroupID         string `json:"group_id" jsonschema:"the chat_id of the group"`
	Enabled         bool   `json:"enabled" jsonschema:"whether flooding members are warned"`
	MaxMessages     int    `json:"max_messages,omitempty" jsonschema:"messages allowed per interval"`
	IntervalSeconds int    `json:"interval_seconds,omitempty" jsonschema:"length of the interval in seconds"`
}

func (s *PolicyServer) setAntiFlood(ctx context.Context, req *mcpsdk.CallToolRequest, input AntiFloodInput) (*mcpsdk.CallToolResult, Result, error) {
	if input.MaxMessages < 0 || input.IntervalSeconds < 0 {
		return nil, Result{Error: "limits must not be negative"}, nil
	}
	return s.mutate(ctx, "anti_flood", input.GroupID, func() error {
		return s.policy.SetAntiFlood(ctx, input.GroupID, input.Enabled, input.MaxMessages, time.Duration(input.IntervalSeconds)*time.Second)
	})
}

// AntiFakeInput configures tenant checks on join
type AntiFakeInput struct {
	GroupID        string   `json:"group_id" jsonschema:"the chat_id of the group"`
	Enabled        bool     `json:"enabled" jsonschema:"whether joiners from other tenants are removed"`
	AllowedTenants []string `json:"allowed_tenants,omitempty" jsonschema:"tenant keys allowed to join"`
}

func (s *PolicyServer) setAntiFake(ctx context.Context, req *mcpsdk.CallToolRequest, input AntiFakeInput) (*mcpsdk.CallToolResult, Result, error) {
	return s.mutate(ctx, "anti_fake", input.GroupID, func() error {
		return s.policy.SetAntiFake(ctx, input.GroupID, input.Enabled, input.AllowedTenants)
	})
}

// WordFilterInput configures the word filter
type WordFilterInput struct {
	GroupID string   `json:"group_id" jsonschema:"the chat_id of the group"`
	Enabled bool     `json:"enabled" jsonschema:"whether messages with filtered words are removed"`
	Add     []string `json:"add,omitempty" jsonschema:"words to add"`
	Remove  []string `json:"remove,omitempty" jsonschema:"words to remove"`
}

func (s *PolicyServer) setWordFilter(ctx context.Context, req *mcpsdk.CallToolRequest, input WordFilterInput) (*mcpsdk.CallToolResult, Result, error) {
	return s.mutate(ctx, "word_filter", input.GroupID, func() error {
		for _, w := range input.Add {
			if err := s.policy.SetFilteredWord(ctx, input.GroupID, w, true); err != nil {
				return err
			}
		}
		for _, w := range input.Remove {
			if err := s.policy.SetFilteredWord(ctx, input.GroupID, w, false); err != nil {
				return err
			}
		}
		return s.policy.SetWordFilter(ctx, input.GroupID, input.Enabled)
	})
}

// MemberInput changes a member's standing in a group
type MemberInput struct {
	GroupID string `json:"group_id" jsonschema:"the chat_id of the group"`
	UserID  string `json:"user_id" jsonschema:"the member's open_id (ou_...)"`
	Action  string `json:"action" jsonschema:"one of mute, unmute, blacklist, unblacklist"`
}

func (s *PolicyServer) setMember(ctx context.Context, req *mcpsdk.CallToolRequest, input MemberInput) (*mcpsdk.CallToolResult, Result, error) {
	if input.UserID == "" {
		return nil, Result{Error: "user_id is required"}, nil
	}
	var apply func() error
	switch input.Action {
	case "mute", "unmute":
		apply = func() error {
			return s.policy.SetMemberMuted(ctx, input.GroupID, input.UserID, input.Action == "mute")
		}
	case "blacklist", "unblacklist":
		apply = func() error {
			return s.policy.SetBlacklisted(ctx, input.GroupID, input.UserID, input.Action == "blacklist")
		}
	default:
		return nil, Result{Error: fmt.Sprintf("unknown action %q", input.Action)}, nil
	}
	return s.mutate(ctx, "member_"+input.Action, input.GroupID, apply)
}

// CommandsInput changes command availability in a group
type CommandsInput struct {
	GroupID     string `json:"group_id" jsonschema:"the chat_id of the group"`
	Block       string `json:"block,omitempty" jsonschema:"command to block for members"`
	Unblock     string `json:"unblock,omitempty" jsonschema:"command to unblock"`
	CommandMute *bool  `json:"command_mute,omitempty" jsonschema:"limit all commands to admins"`
}

func (s *PolicyServer) setCommands(ctx context.Context, req *mcpsdk.CallToolRequest, input CommandsInput) (*mcpsdk.CallToolResult, Result, error) {
	return s.mutate(ctx, "commands", input.GroupID, func() error {
		if input.Block != "" {
			if err := s.policy.SetCommandBlocked(ctx, input.GroupID, input.Block, true); err != nil {
				return err
			}
		}
		if input.Unblock != "" {
			if err := s.policy.SetCommandBlocked(ctx, input.GroupID, input.Unblock, false); err != nil {
				return err
			}
		}
		if input.CommandMute != nil {
			return s.policy.SetCommandMute(ctx, input.GroupID, *input.CommandMute)
		}
		return nil
	})
}

// WelcomeInput configures the welcome message
type WelcomeInput struct {
	GroupID string `json:"group_id" jsonschema:"the chat_id of the group"`
	Enabled bool   `json:"enabled" jsonschema:"whether new members are greeted"`
	Text    string `json:"text,omitempty" jsonschema:"greeting text, empty keeps the current text"`
}

func (s *PolicyServer) setWelcome(ctx context.Context, req *mcpsdk.CallToolRequest, input WelcomeInput) (*mcpsdk.CallToolResult, Result, error) {
	return s.mutate(ctx, "welcome", input.GroupID, func() error {
		return s.policy.SetWelcome(ctx, input.GroupID, input.Enabled, input.Text)
	})
}

// AutoReplyInput configures one auto-reply
type AutoReplyInput struct {
	GroupID string `json:"group_id" jsonschema:"the chat_id of the group"`
	Trigger string `json:"trigger" jsonschema:"text that triggers the reply, case-insensitive"`
	Reply   string `json:"reply,omitempty" jsonschema:"reply text, empty removes the trigger"`
}

func (s *PolicyServer) setAutoReply(ctx context.Context, req *mcpsdk.CallToolRequest, input AutoReplyInput) (*mcpsdk.CallToolResult, Result, error) {
	if input.Trigger == "" {
		return nil, Result{Error: "trigger is required"}, nil
	}
	return s.mutate(ctx, "auto_reply", input.GroupID, func() error {
		return s.policy.SetAutoReply(ctx, input.GroupID, input.Trigger, input.Reply)
	})
}

// UserBlockedInput blocks or unblocks a user
type UserBlockedInput struct {
	UserID  string `json:"user_id" jsonschema:"the user's open_id (ou_...)"`
	Blocked bool   `json:"blocked" jsonschema:"whether the bot ignores this user"`
}

func (s *PolicyServer) setUserBlocked(ctx context.Context, req *mcpsdk.CallToolRequest, input UserBlockedInput) (*mcpsdk.CallToolResult, Result, error) {
	if input.UserID == "" {
		return nil, Result{Error: "user_id is required"}, nil
	}
	if err := s.policy.SetBlocked(ctx, input.UserID, input.Blocked); err != nil {
		return nil, failed(err), nil
	}
	s.logger.Info("user block changed", zap.String("user_id", input.UserID), zap.Bool("blocked", input.Blocked))
	return nil, Result{Success: true}, nil
}

// PrivateCommandsInput toggles private-chat commands
type PrivateCommandsInput struct {
	Enabled bool `json:"enabled" jsonschema:"whether non-owners may use commands in private chats"`
}

func (s *PolicyServer) setPrivateCommands(ctx context.Context, req *mcpsdk.CallToolRequest, input PrivateCommandsInput) (*mcpsdk.CallToolResult, Result, error) {
	if err := s.policy.SetPrivateCommands(ctx, input.Enabled); err != nil {
		return nil, failed(err), nil
	}
	return nil, Result{Success: true}, nil
}

// RecentCommandsInput limits the execution log listing
type RecentCommandsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of records (default 20)"`
}

// ExecEntry is one execution log record
type ExecEntry struct {
	Command string `json:"command"`
	Args    string `json:"args,omitempty"`
	Actor   string `json:"actor"`
	ChatID  string `json:"chat_id"`
	Success bool   `json:"success"`
	Fuzzy   bool   `json:"fuzzy,omitempty"`
	Error   string `json:"error,omitempty"`
	At      string `json:"at"`
}

// RecentCommandsOutput lists recent executions
type RecentCommandsOutput struct {
	Records []ExecEntry `json:"records"`
	Error   string      `json:"error,omitempty"`
}

func (s *PolicyServer) recentCommands(ctx context.Context, req *mcpsdk.CallToolRequest, input RecentCommandsInput) (*mcpsdk.CallToolResult, RecentCommandsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := s.execLog.Recent(ctx, limit)
	if err != nil {
		return nil, RecentCommandsOutput{Error: err.Error()}, nil
	}

	out := RecentCommandsOutput{Records: make([]ExecEntry, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, ExecEntry{
			Command: r.Command,
			Args:    r.Args,
			Actor:   r.Actor,
			ChatID:  r.ChatID,
			Success: r.Success,
			Fuzzy:   r.Fuzzy,
			Error:   r.Error,
			At:      r.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// BotStatusInput takes no arguments
type BotStatusInput struct{}

// BotStatusOutput combines stored bot state with the live process status
type BotStatusOutput struct {
	OwnerID         string     `json:"owner_id,omitempty"`
	Blocked         []string   `json:"blocked"`
	PrivateCommands bool       `json:"private_commands"`
	CommandCount    int64      `json:"command_count"`
	Live            *BotStatus `json:"live,omitempty"`
	LiveError       string     `json:"live_error,omitempty"`
	Error           string     `json:"error,omitempty"`
}

func (s *PolicyServer) botStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input BotStatusInput) (*mcpsdk.CallToolResult, BotStatusOutput, error) {
	bot, err := s.policy.Bot(ctx)
	if err != nil {
		return nil, BotStatusOutput{Error: err.Error()}, nil
	}
	out := BotStatusOutput{
		OwnerID:         bot.OwnerID,
		Blocked:         bot.Blocked,
		PrivateCommands: bot.PrivateCommands,
		CommandCount:    bot.CommandCount,
	}
	if s.status != nil {
		live, err := s.status.Status(ctx)
		if err != nil {
			out.LiveError = err.Error()
		} else {
			out.Live = live
		}
	}
	return nil, out, nil
}

// mutate checks the group exists, applies change and logs the outcome
func (s *PolicyServer) mutate(ctx context.Context, what, groupID string, change func() error) (*mcpsdk.CallToolResult, Result, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return nil, failed(err), nil
	}
	if err := change(); err != nil {
		s.logger.Warn("policy change failed", zap.String("change", what), zap.String("group_id", groupID), zap.Error(err))
		return nil, failed(err), nil
	}
	s.logger.Info("policy changed", zap.String("change", what), zap.String("group_id", groupID))
	return nil, Result{Success: true}, nil
}

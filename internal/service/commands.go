package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
)

// Commands are the built-in governance commands: info, group moderation and bot administration
type Commands struct {
	policy   *usecase.PolicyUsecase
	limiter  *usecase.RateLimitUsecase
	platform repo.PlatformRepo
	usage    map[string]string
	started  time.Time

	catalog *domain.Catalog
}

// NewCommands creates the built-in commands. usage overrides the built-in usage guides by command name.
func NewCommands(policy *usecase.PolicyUsecase, limiter *usecase.RateLimitUsecase, platform repo.PlatformRepo, usage map[string]string) *Commands {
	return &Commands{
		policy:   policy,
		limiter:  limiter,
		platform: platform,
		usage:    usage,
		started:  time.Now(),
	}
}

// BuildCatalog validates the built-in registries plus extra and returns the catalog
func (c *Commands) BuildCatalog(extra ...domain.Registry) (*domain.Catalog, error) {
	registries := append([]domain.Registry{c.infoRegistry(), c.groupRegistry(), c.adminRegistry()}, extra...)
	for i := range registries {
		for j := range registries[i].Commands {
			spec := &registries[i].Commands[j]
			if u, ok := c.usage[strings.ToLower(spec.Name)]; ok && u != "" {
				spec.Usage = u
			}
		}
	}

	catalog, err := domain.NewCatalog(registries...)
	if err != nil {
		return nil, err
	}
	c.catalog = catalog
	return catalog, nil
}

func (c *Commands) infoRegistry() domain.Registry {
	return domain.Registry{
		Name: "info",
		Commands: []domain.CommandSpec{
			{Name: "menu", Description: "Show the commands you can use", Usage: "{prefix}menu", Handler: c.menu},
			{Name: "ping", Description: "Check that the bot is alive", Usage: "{prefix}ping", Handler: c.ping},
		},
	}
}

func (c *Commands) groupRegistry() domain.Registry {
	mod := []domain.Role{domain.RoleGroupModerator}
	cmd := func(name, desc, usage string, h domain.CommandHandler) domain.CommandSpec {
		return domain.CommandSpec{Name: name, Description: desc, Usage: usage, RequiredRoles: mod, GroupOnly: true, Handler: h}
	}
	return domain.Registry{
		Name: "group",
		Commands: []domain.CommandSpec{
			cmd("mute", "Delete every message from a member", "{prefix}mute [off] @user", c.mute),
			cmd("silence", "Only admins may use commands", "{prefix}silence", c.silence(true)),
			cmd("unsilence", "Everyone may use commands again", "{prefix}unsilence", c.silence(false)),
			cmd("antilink", "Remove messages with links", "{prefix}antilink on|off [allowed-domain ...]", c.antiLink),
			cmd("antiflood", "Warn members who post too fast", "{prefix}antiflood on|off [max] [seconds]", c.antiFlood),
			cmd("antifake", "Remove joiners from other tenants", "{prefix}antifake on|off [tenant-key ...]", c.antiFake),
			cmd("filter", "Remove messages with filtered words", "{prefix}filter on|off|list | {prefix}filter add|del <word>", c.filter),
			cmd("blacklist", "Ban a member from the group", "{prefix}blacklist add|del @user", c.blacklist),
			cmd("blockcmd", "Disable a command for members", "{prefix}blockcmd <command>", c.blockCommand(true)),
			cmd("unblockcmd", "Enable a blocked command", "{prefix}unblockcmd <command>", c.blockCommand(false)),
			cmd("welcome", "Greet new members, {user} and {group} are replaced", "{prefix}welcome on|off [text]", c.welcome),
			cmd("autoreply", "Answer messages containing a trigger", "{prefix}autoreply <trigger> = <reply> | {prefix}autoreply del <trigger>", c.autoReply),
			cmd("status", "Show this group's moderation settings", "{prefix}status", c.status),
		},
	}
}

func (c *Commands) adminRegistry() domain.Registry {
	owner := []domain.Role{domain.RoleOwner}
	return domain.Registry{
		Name: "admin",
		Commands: []domain.CommandSpec{
			{Name: "block", Description: "Ignore a user everywhere", Usage: "{prefix}block @user|open_id", RequiredRoles: owner, Handler: c.block(true)},
			{Name: "unblock", Description: "Stop ignoring a user", Usage: "{prefix}unblock @user|open_id", RequiredRoles: owner, Handler: c.block(false)},
			{Name: "pvcmds", Description: "Allow commands in private chats", Usage: "{prefix}pvcmds on|off", RequiredRoles: owner, Handler: c.privateCommands},
			{Name: "limiter", Description: "Configure the command rate limiter", Usage: "{prefix}limiter [on|off] [max-per-minute] [block-seconds]", RequiredRoles: owner, Handler: c.rateLimiter},
		},
	}
}

func (c *Commands) menu(ctx context.Context, req *domain.CommandRequest) (string, error) {
	prefix := req.Message.Prefix
	var b strings.Builder
	for _, reg := range c.catalog.Registries() {
		var lines []string
		for _, spec := range reg.Commands {
			if len(spec.RequiredRoles) > 0 && !req.Roles.Intersects(spec.RequiredRoles) {
				continue
			}
			if spec.GroupOnly && !req.Message.IsGroup {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s%s - %s", prefix, strings.ToLower(spec.Name), spec.Description))
		}
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[" + reg.Name + "]\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String(), nil
}

func (c *Commands) ping(ctx context.Context, req *domain.CommandRequest) (string, error) {
	return "pong (up " + time.Since(c.started).Round(time.Second).String() + ")", nil
}

func (c *Commands) mute(ctx context.Context, req *domain.CommandRequest) (string, error) {
	word, _ := splitWord(req.Args)
	muted := true
	if strings.EqualFold(word, "off") {
		muted = false
	}

	targets := targetIDs(req)
	if len(targets) == 0 {
		return "", domain.UsageError("mention at least one member")
	}
	for _, id := range targets {
		if muted {
			if err := c.checkSanctionTarget(ctx, req, "mute", id); err != nil {
				return "", err
			}
		}
		if err := c.policy.SetMemberMuted(ctx, req.Message.ChatID, id, muted); err != nil {
			return "", err
		}
	}
	if muted {
		return fmt.Sprintf("Muted %d member(s).", len(targets)), nil
	}
	return fmt.Sprintf("Unmuted %d member(s).", len(targets)), nil
}

// checkSanctionTarget refuses sanctions against the bot owner and group admins
func (c *Commands) checkSanctionTarget(ctx context.Context, req *domain.CommandRequest, action, id string) error {
	ownerID, err := c.policy.OwnerID(ctx)
	if err != nil {
		return err
	}
	if ownerID != "" && id == ownerID {
		return fmt.Errorf("cannot %s the bot owner", action)
	}
	if req.Policy.IsAdmin(id) {
		return fmt.Errorf("cannot %s a group admin", action)
	}
	return nil
}

func (c *Commands) silence(on bool) domain.CommandHandler {
	return func(ctx context.Context, req *domain.CommandRequest) (string, error) {
		if err := c.policy.SetCommandMute(ctx, req.Message.ChatID, on); err != nil {
			return "", err
		}
		if on {
			return "Commands are now limited to admins.", nil
		}
		return "Commands are open to everyone again.", nil
	}
}

func (c *Commands) antiLink(ctx context.Context, req *domain.CommandRequest) (string, error) {
	enabled, rest, err := parseToggle(req.Args)
	if err != nil {
		return "", err
	}
	var exceptions []string
	if len(rest) > 0 {
		exceptions = rest
	}
	if err := c.policy.SetAntiLink(ctx, req.Message.ChatID, enabled, exceptions); err != nil {
		return "", err
	}
	return "Anti-link " + onOff(enabled) + ".", nil
}

func (c *Commands) antiFlood(ctx context.Context, req *domain.CommandRequest) (string, error) {
	enabled, rest, err := parseToggle(req.Args)
	if err != nil {
		return "", err
	}
	nums, err := parseInts(rest, 2)
	if err != nil {
		return "", err
	}
	if err := c.policy.SetAntiFlood(ctx, req.Message.ChatID, enabled, nums[0], time.Duration(nums[1])*time.Second); err != nil {
		return "", err
	}
	return "Anti-flood " + onOff(enabled) + ".", nil
}

func (c *Commands) antiFake(ctx context.Context, req *domain.CommandRequest) (string, error) {
	enabled, rest, err := parseToggle(req.Args)
	if err != nil {
		return "", err
	}
	if enabled && !req.Policy.IsAdmin(c.platform.BotID()) {
		return "", fmt.Errorf("the bot must be a group admin to remove joiners")
	}
	var allowed []string
	if len(rest) > 0 {
		allowed = rest
	}
	if err := c.policy.SetAntiFake(ctx, req.Message.ChatID, enabled, allowed); err != nil {
		return "", err
	}
	return "Anti-fake " + onOff(enabled) + ".", nil
}

func (c *Commands) filter(ctx context.Context, req *domain.CommandRequest) (string, error) {
	action, rest := splitWord(req.Args)
	groupID := req.Message.ChatID

	switch strings.ToLower(action) {
	case "on", "off":
		enabled := strings.EqualFold(action, "on")
		if err := c.policy.SetWordFilter(ctx, groupID, enabled); err != nil {
			return "", err
		}
		return "Word filter " + onOff(enabled) + ".", nil
	case "add", "del":
		if rest == "" {
			return "", domain.UsageError("missing word")
		}
		if err := c.policy.SetFilteredWord(ctx, groupID, rest, strings.EqualFold(action, "add")); err != nil {
			return "", err
		}
		return "Filtered words updated.", nil
	case "list":
		if len(req.Policy.WordFilter.Words) == 0 {
			return "No filtered words.", nil
		}
		return "Filtered words: " + strings.Join(req.Policy.WordFilter.Words, ", "), nil
	default:
		return "", domain.UsageError("unknown action %q", action)
	}
}

func (c *Commands) blacklist(ctx context.Context, req *domain.CommandRequest) (string, error) {
	action, _ := splitWord(req.Args)
	add := strings.EqualFold(action, "add")
	if !add && !strings.EqualFold(action, "del") {
		return "", domain.UsageError("unknown action %q", action)
	}
	targets := targetIDs(req)
	if len(targets) == 0 {
		return "", domain.UsageError("mention at least one member")
	}

	groupID := req.Message.ChatID
	for _, id := range targets {
		if add {
			if err := c.checkSanctionTarget(ctx, req, "blacklist", id); err != nil {
				return "", err
			}
		}
		if err := c.policy.SetBlacklisted(ctx, groupID, id, add); err != nil {
			return "", err
		}
	}
	if !add {
		return fmt.Sprintf("Removed %d member(s) from the blacklist.", len(targets)), nil
	}
	if req.Policy.IsAdmin(c.platform.BotID()) {
		if err := c.platform.RemoveMembers(ctx, groupID, targets); err != nil {
			return "", fmt.Errorf("blacklisted but could not remove: %w", err)
		}
	}
	return fmt.Sprintf("Blacklisted %d member(s).", len(targets)), nil
}

func (c *Commands) blockCommand(blocked bool) domain.CommandHandler {
	return func(ctx context.Context, req *domain.CommandRequest) (string, error) {
		name, _ := splitWord(req.Args)
		name = strings.TrimPrefix(strings.ToLower(name), req.Message.Prefix)
		if name == "" {
			return "", domain.UsageError("missing command")
		}
		if _, ok := c.catalog.Lookup(name); !ok {
			return "", domain.UsageError("unknown command %q", name)
		}
		if err := c.policy.SetCommandBlocked(ctx, req.Message.ChatID, name, blocked); err != nil {
			return "", err
		}
		if blocked {
			return req.Message.Prefix + name + " is now blocked for members.", nil
		}
		return req.Message.Prefix + name + " is available again.", nil
	}
}

func (c *Commands) welcome(ctx context.Context, req *domain.CommandRequest) (string, error) {
	word, text := splitWord(req.Args)
	var enabled bool
	switch strings.ToLower(word) {
	case "on":
		enabled = true
	case "off":
	default:
		return "", domain.UsageError("expected on or off")
	}
	if err := c.policy.SetWelcome(ctx, req.Message.ChatID, enabled, text); err != nil {
		return "", err
	}
	return "Welcome message " + onOff(enabled) + ".", nil
}

func (c *Commands) autoReply(ctx context.Context, req *domain.CommandRequest) (string, error) {
	if action, trigger := splitWord(req.Args); strings.EqualFold(action, "del") {
		if trigger == "" {
			return "", domain.UsageError("missing trigger")
		}
		if err := c.policy.SetAutoReply(ctx, req.Message.ChatID, trigger, ""); err != nil {
			return "", err
		}
		return "Auto-reply removed.", nil
	}

	trigger, reply, ok := strings.Cut(req.Args, "=")
	trigger, reply = strings.TrimSpace(trigger), strings.TrimSpace(reply)
	if !ok || trigger == "" || reply == "" {
		return "", domain.UsageError("expected <trigger> = <reply>")
	}
	if err := c.policy.SetAutoReply(ctx, req.Message.ChatID, trigger, reply); err != nil {
		return "", err
	}
	return "Auto-reply saved.", nil
}

func (c *Commands) status(ctx context.Context, req *domain.CommandRequest) (string, error) {
	p := req.Policy
	lines := []string{
		"Group: " + firstNonEmpty(p.Name, p.GroupID),
		"Bot is admin: " + yesNo(p.IsAdmin(c.platform.BotID())),
		"Commands limited to admins: " + yesNo(p.CommandMute),
		fmt.Sprintf("Muted members: %d", len(p.MutedMembers)),
		"Anti-link: " + onOff(p.AntiLink.Enabled),
		fmt.Sprintf("Anti-flood: %s (%d messages / %s)", onOff(p.AntiFlood.Enabled), p.AntiFlood.MaxMessages, p.AntiFlood.Interval),
		"Anti-fake: " + onOff(p.AntiFake.Enabled),
		fmt.Sprintf("Word filter: %s (%d words)", onOff(p.WordFilter.Enabled), len(p.WordFilter.Words)),
		fmt.Sprintf("Blacklist: %d", len(p.Blacklist)),
		"Blocked commands: " + firstNonEmpty(strings.Join(p.BlockedCommands, ", "), "none"),
		"Welcome: " + onOff(p.Welcome.Enabled),
		fmt.Sprintf("Auto-replies: %d", len(p.AutoReplies)),
		fmt.Sprintf("Commands run here: %d", p.CommandCount),
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Commands) block(blocked bool) domain.CommandHandler {
	return func(ctx context.Context, req *domain.CommandRequest) (string, error) {
		targets := targetIDs(req)
		if len(targets) == 0 {
			return "", domain.UsageError("mention a user or give an open_id")
		}
		for _, id := range targets {
			if blocked && req.Message.IsFrom(id) {
				return "", fmt.Errorf("cannot block yourself")
			}
			if err := c.policy.SetBlocked(ctx, id, blocked); err != nil {
				return "", err
			}
		}
		if blocked {
			return fmt.Sprintf("Blocked %d user(s).", len(targets)), nil
		}
		return fmt.Sprintf("Unblocked %d user(s).", len(targets)), nil
	}
}

func (c *Commands) privateCommands(ctx context.Context, req *domain.CommandRequest) (string, error) {
	enabled, _, err := parseToggle(req.Args)
	if err != nil {
		return "", err
	}
	if err := c.policy.SetPrivateCommands(ctx, enabled); err != nil {
		return "", err
	}
	return "Private commands " + onOff(enabled) + ".", nil
}

func (c *Commands) rateLimiter(ctx context.Context, req *domain.CommandRequest) (string, error) {
	cfg := c.limiter.Config()
	if strings.TrimSpace(req.Args) != "" {
		enabled, rest, err := parseToggle(req.Args)
		if err != nil {
			return "", err
		}
		nums, err := parseInts(rest, 2)
		if err != nil {
			return "", err
		}
		cfg.Enabled = enabled
		if nums[0] > 0 {
			cfg.MaxPerMinute = nums[0]
		}
		if nums[1] > 0 {
			cfg.BlockTime = time.Duration(nums[1]) * time.Second
		}
		c.limiter.SetConfig(cfg)
	}
	return fmt.Sprintf("Rate limiter %s: %d commands per minute, %s block.", onOff(cfg.Enabled), cfg.MaxPerMinute, cfg.BlockTime), nil
}

// targetIDs returns the mentioned users plus any open_ids typed in the arguments
func targetIDs(req *domain.CommandRequest) []string {
	var ids []string
	for _, id := range req.Message.Mentions {
		ids = domain.AddUnique(ids, id)
	}
	for _, field := range strings.Fields(req.Args) {
		if strings.HasPrefix(field, "ou_") {
			ids = domain.AddUnique(ids, field)
		}
	}
	return ids
}

func parseToggle(args string) (bool, []string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return false, nil, domain.UsageError("expected on or off")
	}
	switch strings.ToLower(fields[0]) {
	case "on", "enable":
		return true, fields[1:], nil
	case "off", "disable":
		return false, fields[1:], nil
	default:
		return false, nil, domain.UsageError("expected on or off, got %q", fields[0])
	}
}

// parseInts parses up to n positive integers; missing ones are zero
func parseInts(fields []string, n int) ([]int, error) {
	out := make([]int, n)
	if len(fields) > n {
		return nil, domain.UsageError("too many arguments")
	}
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v <= 0 {
			return nil, domain.UsageError("%q is not a positive number", f)
		}
		out[i] = v
	}
	return out, nil
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	word, rest, _ := strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

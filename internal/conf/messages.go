package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
)

// MessagesConfig contains all user-facing texts loaded from YAML
type MessagesConfig struct {
	Guard   GuardTexts        `yaml:"guard"`
	Replies ReplyTexts        `yaml:"replies"`
	Usage   map[string]string `yaml:"usage"` // Command name -> usage guide, {prefix} placeholder
}

// GuardTexts are sanction and ownership notices. {user} is the sender.
type GuardTexts struct {
	AntiLink     string `yaml:"antilink"`
	WordFilter   string `yaml:"wordfilter"`
	AntiFlood    string `yaml:"antiflood"`
	OwnerClaimed string `yaml:"owner_claimed"`
}

// ReplyTexts are pipeline and dispatcher replies
type ReplyTexts struct {
	CommandFailed    string `yaml:"command_failed"`    // {command} {error} {usage}
	Usage            string `yaml:"usage"`             // {command} {usage}
	Unknown          string `yaml:"unknown"`           // {prefix}
	RateLimited      string `yaml:"rate_limited"`      // {seconds}
	PermissionDenied string `yaml:"permission_denied"` // {command}
	GroupOnly        string `yaml:"group_only"`        // {command}
	CommandBlocked   string `yaml:"command_blocked"`   // {command}
}

// LoadMessagesConfig loads texts from YAML, falling back to defaults for missing files and fields
func LoadMessagesConfig(configPath string) (*MessagesConfig, string, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/messages.yaml",
			"/etc/feishu-guard-bot/messages.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "messages.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		if raw, err := os.ReadFile(p); err == nil {
			data = raw
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, "", fmt.Errorf("messages file not found: %s", configPath)
		}
		return DefaultMessagesConfig(), "", nil
	}

	var config MessagesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	config.fillDefaults()
	return &config, loadedPath, nil
}

// fillDefaults fills in default values for empty fields
func (c *MessagesConfig) fillDefaults() {
	defaults := DefaultMessagesConfig()

	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&c.Guard.AntiLink, defaults.Guard.AntiLink)
	fill(&c.Guard.WordFilter, defaults.Guard.WordFilter)
	fill(&c.Guard.AntiFlood, defaults.Guard.AntiFlood)
	fill(&c.Guard.OwnerClaimed, defaults.Guard.OwnerClaimed)

	fill(&c.Replies.CommandFailed, defaults.Replies.CommandFailed)
	fill(&c.Replies.Usage, defaults.Replies.Usage)
	fill(&c.Replies.Unknown, defaults.Replies.Unknown)
	fill(&c.Replies.RateLimited, defaults.Replies.RateLimited)
	fill(&c.Replies.PermissionDenied, defaults.Replies.PermissionDenied)
	fill(&c.Replies.GroupOnly, defaults.Replies.GroupOnly)
	fill(&c.Replies.CommandBlocked, defaults.Replies.CommandBlocked)

	if c.Usage == nil {
		c.Usage = map[string]string{}
	}
}

// GuardMessages converts to the guard usecase texts
func (c *MessagesConfig) GuardMessages() usecase.GuardMessages {
	return usecase.GuardMessages{
		AntiLink:     c.Guard.AntiLink,
		WordFilter:   c.Guard.WordFilter,
		AntiFlood:    c.Guard.AntiFlood,
		OwnerClaimed: c.Guard.OwnerClaimed,
	}
}

// DispatcherMessages converts to the dispatcher usecase texts
func (c *MessagesConfig) DispatcherMessages() usecase.DispatcherMessages {
	return usecase.DispatcherMessages{
		CommandFailed: c.Replies.CommandFailed,
		Usage:         c.Replies.Usage,
	}
}

// DefaultMessagesConfig returns the built-in texts
func DefaultMessagesConfig() *MessagesConfig {
	return &MessagesConfig{
		Guard: GuardTexts{
			AntiLink:     "{user} links are not allowed in this group.",
			WordFilter:   "{user} your message contained a filtered word and was removed.",
			AntiFlood:    "{user} you are sending messages too fast. Please slow down.",
			OwnerClaimed: "You are now the owner of this bot.",
		},
		Replies: ReplyTexts{
			CommandFailed:    "Command {command} failed: {error}\n\nUsage: {usage}",
			Usage:            "Usage: {usage}",
			Unknown:          "Unknown command. Send {prefix}menu to see what I can do.",
			RateLimited:      "You are sending commands too fast. Try again in {seconds}s.",
			PermissionDenied: "You don't have permission to use {command}.",
			GroupOnly:        "{command} can only be used in groups.",
			CommandBlocked:   "{command} is disabled in this group.",
		},
		Usage: map[string]string{},
	}
}

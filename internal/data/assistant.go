package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
	"github.com/devricklin/feishu-guard-bot/internal/infra/openai"
)

const assistantPrompt = `You help users of a group moderation bot on Feishu.
The user typed something that is not a known command. Commands start with the prefix "%s".
The user's role is %s. Commands available to the bot:
%s

Reply in one or two short sentences in the user's language. If one of the commands fits what the user
wanted, name it with its prefix. Never invent commands that are not listed.`

// assistantRepo implements the assistant on an OpenAI-compatible endpoint
type assistantRepo struct {
	client *openai.Client
}

// NewAssistantRepo creates an assistant repository; a nil client yields a nil repo
func NewAssistantRepo(client *openai.Client) repo.AssistantRepo {
	if client == nil {
		return nil
	}
	return &assistantRepo{client: client}
}

// Suggest asks the model for help text about an unknown command
func (r *assistantRepo) Suggest(ctx context.Context, req repo.AssistantRequest) (string, error) {
	commands := make([]string, 0, len(req.Commands))
	for _, name := range req.Commands {
		commands = append(commands, "- "+req.Prefix+name)
	}
	system := fmt.Sprintf(assistantPrompt, req.Prefix, req.Role, strings.Join(commands, "\n"))
	return r.client.Chat(ctx, system, req.Text)
}

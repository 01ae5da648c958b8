package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/conf"
	"github.com/devricklin/feishu-guard-bot/internal/infra/feishu"
)

func main() {
	mentions := pflag.StringSlice("mention", nil, "open_id to @mention, repeatable; {user} in the message marks where")
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: send-message [--mention ou_xxx] <chat_id> <message>")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() < 2 {
		pflag.Usage()
		os.Exit(1)
	}
	chatID, text := pflag.Arg(0), pflag.Arg(1)

	_ = godotenv.Load()
	cfg := conf.LoadFromEnv()
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
		os.Exit(1)
	}

	client := feishu.NewClient(feishu.Options{
		AppID:     cfg.Feishu.AppID,
		AppSecret: cfg.Feishu.AppSecret,
		RPS:       cfg.Feishu.OutboundRPS,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	targets := make([]feishu.Mention, 0, len(*mentions))
	for _, id := range *mentions {
		m := feishu.Mention{UserID: id}
		if user, err := client.GetUser(ctx, id); err == nil {
			m.UserName = user.Name
		}
		targets = append(targets, m)
	}

	if err := client.SendTextWithMentions(ctx, chatID, text, targets); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Message sent.")
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/conf"
	"github.com/devricklin/feishu-guard-bot/internal/infra/feishu"
)

// Prints what the bot sees through the Feishu API: the chats it is in,
// or one chat's owner, managers and posting restriction.
func main() {
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: debug-api [chat_id]")
	}
	pflag.Parse()

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
		Debug:     cfg.Debug,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if pflag.NArg() == 0 {
		chats, err := client.ListChats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list chats: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("=== %d chats ===\n", len(chats))
		for _, id := range chats {
			fmt.Println(id)
		}
		return
	}

	info, err := client.GetChatInfo(ctx, pflag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get chat: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Chat:       %s (%s)\n", info.Name, info.ChatID)
	fmt.Printf("Owner:      %s\n", info.OwnerID)
	fmt.Printf("Managers:   %s\n", strings.Join(info.Managers, ", "))
	fmt.Printf("Restricted: %v\n", info.Restricted)
}

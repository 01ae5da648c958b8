// guard-mcp serves group policy administration tools over MCP stdio.
// It opens the bot's policy database directly; stdout is reserved for the protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
	"github.com/devricklin/feishu-guard-bot/internal/conf"
	"github.com/devricklin/feishu-guard-bot/internal/data"
	"github.com/devricklin/feishu-guard-bot/internal/mcp"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	dbPath := pflag.String("db", "", "policy database (default: $DATA_DIR/guard.db)")
	statusURL := pflag.String("status-url", "", "running bot's status server (default: http://127.0.0.1:$HTTP_PORT)")
	noStatus := pflag.Bool("no-status", false, "disable the guard_bot_status live check")
	pflag.Parse()

	_ = godotenv.Load(*envFile)
	cfg := conf.LoadFromEnv()

	logger := newStderrLogger(cfg.Debug)
	defer logger.Sync()

	if *dbPath == "" {
		*dbPath = cfg.DBPath()
	}
	if *statusURL == "" {
		*statusURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTP.Port)
	}

	repos, err := data.NewPolicyRepositories(*dbPath)
	if err != nil {
		logger.Fatal("open policy store", zap.String("path", *dbPath), zap.Error(err))
	}
	defer repos.Close()

	var status *mcp.StatusClient
	if !*noStatus {
		status = mcp.NewStatusClient(*statusURL)
	}

	policy := usecase.NewPolicyUsecase(repos.Group, repos.Bot, repos.User)
	srv := mcp.NewPolicyServer(policy, repos.Group, repos.ExecLog, status, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("guard-mcp serving", zap.String("db", *dbPath), zap.Bool("status", status != nil))
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("mcp server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// newStderrLogger keeps stdout clean for MCP framing
func newStderrLogger(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

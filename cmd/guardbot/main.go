package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
	"github.com/devricklin/feishu-guard-bot/internal/conf"
	"github.com/devricklin/feishu-guard-bot/internal/data"
	"github.com/devricklin/feishu-guard-bot/internal/infra/feishu"
	"github.com/devricklin/feishu-guard-bot/internal/infra/openai"
	"github.com/devricklin/feishu-guard-bot/internal/server"
	"github.com/devricklin/feishu-guard-bot/internal/service"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	messagesPath := pflag.String("messages", "", "messages YAML file (default: search configs/messages.yaml)")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "No %s file found, using environment variables\n", *envFile)
	}

	cfg := conf.LoadFromEnv()
	if *debug {
		cfg.Debug = true
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	msgs, loadedFrom, err := conf.LoadMessagesConfig(*messagesPath)
	if err != nil {
		logger.Fatal("load messages", zap.Error(err))
	}
	cfg.Messages = msgs
	if loadedFrom != "" {
		logger.Info("messages loaded", zap.String("path", loadedFrom))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("guard bot stopped", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *conf.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := data.NewRepositories(cfg.Bot.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir %s: %w", cfg.Bot.DataDir, err)
	}
	defer repos.Close()
	logger.Info("policy store opened", zap.String("path", cfg.DBPath()))

	creds := usecase.NewCredentialUsecase(repos.Credential, logger)
	if _, err := creds.LoadAuthState(ctx); err != nil {
		return fmt.Errorf("load auth state: %w", err)
	}

	client := feishu.NewClient(feishu.Options{
		AppID:      cfg.Feishu.AppID,
		AppSecret:  cfg.Feishu.AppSecret,
		TokenCache: data.NewTokenCache(creds),
		RPS:        cfg.Feishu.OutboundRPS,
		Debug:      cfg.Debug,
	}, logger)
	platform := data.NewFeishuRepo(client)

	var assistantClient *openai.Client
	if cfg.Assistant.APIKey != "" {
		assistantClient = openai.NewClient(cfg.Assistant.APIKey, cfg.Assistant.BaseURL, cfg.Assistant.Model)
		logger.Info("assistant enabled for unknown commands")
	}
	assistant := data.NewAssistantRepo(assistantClient)

	msgs := cfg.Messages
	policy := usecase.NewPolicyUsecase(repos.Group, repos.Bot, repos.User)
	guard := usecase.NewGuardUsecase(policy, platform, usecase.GuardConfig{
		OwnerClaimToken: cfg.OwnerClaimToken(),
		Messages:        msgs.GuardMessages(),
	}, logger)
	limiter := usecase.NewRateLimitUsecase(repos.User, cfg.Limiter.ToRateLimitConfig())

	commands := service.NewCommands(policy, limiter, platform, msgs.Usage)
	catalog, err := commands.BuildCatalog()
	if err != nil {
		return fmt.Errorf("build command catalog: %w", err)
	}

	fallback := strings.ReplaceAll(msgs.Replies.Unknown, "{prefix}", cfg.Bot.Prefix)
	resolver := usecase.NewResolverUsecase(catalog, assistant, cfg.Bot.FuzzyThreshold, fallback, logger)
	dispatcher := usecase.NewDispatcherUsecase(repos.User, repos.Bot, repos.Group, repos.ExecLog, platform, catalog, msgs.DispatcherMessages(), logger)
	membership := usecase.NewMembershipUsecase(policy, guard, platform, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	pipeline := service.NewPipeline(policy, guard, limiter, resolver, dispatcher, membership, platform, cfg.Bot.Prefix,
		service.PipelineReplies{
			RateLimited:      msgs.Replies.RateLimited,
			PermissionDenied: msgs.Replies.PermissionDenied,
			GroupOnly:        msgs.Replies.GroupOnly,
			CommandBlocked:   msgs.Replies.CommandBlocked,
		}, metrics, logger)

	lifecycle := service.NewLifecycle(pipeline.Handle, service.NewEventQueue(metrics.QueueSuperseded), logger)
	feishuSrv := server.NewFeishuServer(client, lifecycle, logger)
	httpSrv := server.NewHTTPServer(lifecycle, client.BotOpenID, reg, cfg.HTTP.Port, logger)

	lifecycle.Start(ctx)
	defer lifecycle.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpSrv.Start()
	})
	g.Go(func() error {
		logger.Info("connecting to Feishu",
			zap.String("prefix", cfg.Bot.Prefix),
			zap.Int("commands", len(catalog.Names())))
		err := feishuSrv.Start(gctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err == nil && gctx.Err() == nil:
			return errors.New("feishu connection closed")
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		feishuSrv.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Stop(shutdownCtx)
	})

	return g.Wait()
}

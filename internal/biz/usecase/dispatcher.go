package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// DispatcherMessages are the reply templates used by the dispatcher.
// Placeholders: {command} {error} {usage} {prefix}
type DispatcherMessages struct {
	CommandFailed string
	Usage         string
}

// DispatcherUsecase invokes resolved commands and records the outcome
type DispatcherUsecase struct {
	userRepo  repo.UserRepo
	botRepo   repo.BotRepo
	groupRepo repo.GroupRepo
	execLog   repo.ExecLogRepo
	platform  repo.PlatformRepo
	catalog   *domain.Catalog
	messages  DispatcherMessages
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcherUsecase creates a new dispatcher
func NewDispatcherUsecase(
	userRepo repo.UserRepo,
	botRepo repo.BotRepo,
	groupRepo repo.GroupRepo,
	execLog repo.ExecLogRepo,
	platform repo.PlatformRepo,
	catalog *domain.Catalog,
	messages DispatcherMessages,
	logger *zap.Logger,
) *DispatcherUsecase {
	return &DispatcherUsecase{
		userRepo:  userRepo,
		botRepo:   botRepo,
		groupRepo: groupRepo,
		execLog:   execLog,
		platform:  platform,
		catalog:   catalog,
		messages:  messages,
		logger:    logger.Named("dispatcher"),
		now:       time.Now,
	}
}

// Invoke runs the handler for res. Handler errors and panics never escape:
// they come back as *domain.HandlerFailure after the sender has been told.
func (uc *DispatcherUsecase) Invoke(ctx context.Context, res Resolution, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) error {
	req := &domain.CommandRequest{
		Command: res.Name,
		Args:    msg.Args,
		Message: msg,
		Policy:  policy,
		Roles:   RolesOf(msg),
	}

	reply, err := uc.run(ctx, res.Entry.Spec.Handler, req)

	rec := &domain.ExecRecord{
		ID:        uuid.NewString(),
		Actor:     msg.SenderID,
		Command:   res.Name,
		Args:      msg.Args,
		ChatID:    msg.ChatID,
		Success:   err == nil,
		Fuzzy:     res.Fuzzy,
		CreatedAt: uc.now(),
	}

	if err != nil {
		rec.Error = err.Error()
		uc.record(ctx, rec)
		uc.reportFailure(ctx, res.Name, msg, err)
		return &domain.HandlerFailure{Command: res.Name, Err: err}
	}

	uc.bumpCounters(ctx, msg)
	uc.record(ctx, rec)

	if reply != "" {
		if err := uc.platform.SendText(ctx, msg.ChatID, reply); err != nil {
			uc.logger.Warn("failed to send command reply", zap.String("command", res.Name), zap.Error(err))
		}
	}
	return nil
}

// run calls handler, turning a panic into an error
func (uc *DispatcherUsecase) run(ctx context.Context, handler domain.CommandHandler, req *domain.CommandRequest) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("command panicked",
				zap.String("command", req.Command),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, req)
}

func (uc *DispatcherUsecase) bumpCounters(ctx context.Context, msg *domain.NormalizedMessage) {
	if _, err := uc.userRepo.Ensure(ctx, msg.SenderID, msg.SenderName); err != nil {
		uc.logger.Warn("failed to ensure user", zap.String("user_id", msg.SenderID), zap.Error(err))
	}
	if err := uc.userRepo.IncrementCommands(ctx, msg.SenderID); err != nil {
		uc.logger.Warn("failed to bump user counter", zap.String("user_id", msg.SenderID), zap.Error(err))
	}
	if err := uc.botRepo.IncrementCommands(ctx); err != nil {
		uc.logger.Warn("failed to bump bot counter", zap.Error(err))
	}
	if msg.IsGroup {
		if err := uc.groupRepo.IncrementCommands(ctx, msg.ChatID); err != nil {
			uc.logger.Warn("failed to bump group counter", zap.String("chat_id", msg.ChatID), zap.Error(err))
		}
	}
}

func (uc *DispatcherUsecase) record(ctx context.Context, rec *domain.ExecRecord) {
	fields := []zap.Field{
		zap.String("exec_id", rec.ID),
		zap.String("actor", rec.Actor),
		zap.String("command", rec.Command),
		zap.String("args", rec.Args),
		zap.String("chat_id", rec.ChatID),
		zap.Bool("success", rec.Success),
		zap.Bool("fuzzy", rec.Fuzzy),
	}
	if rec.Error != "" {
		fields = append(fields, zap.String("error", rec.Error))
	}
	uc.logger.Info("command executed", fields...)

	if err := uc.execLog.Append(ctx, rec); err != nil {
		uc.logger.Warn("failed to append exec log", zap.String("exec_id", rec.ID), zap.Error(err))
	}
}

func (uc *DispatcherUsecase) reportFailure(ctx context.Context, command string, msg *domain.NormalizedMessage, err error) {
	usage := uc.catalog.UsageFor(command, msg.Prefix)

	var text string
	if errors.Is(err, domain.ErrUsage) {
		uc.logger.Info("command usage error", zap.String("command", command), zap.Error(err))
		text = uc.messages.Usage
	} else {
		uc.logger.Error("command failed", zap.String("command", command), zap.Error(err))
		text = uc.messages.CommandFailed
	}

	text = strings.NewReplacer(
		"{command}", msg.Prefix+command,
		"{error}", err.Error(),
		"{usage}", usage,
		"{prefix}", msg.Prefix,
	).Replace(text)

	if sendErr := uc.platform.SendText(ctx, msg.ChatID, text); sendErr != nil {
		uc.logger.Warn("failed to report command failure", zap.String("command", command), zap.Error(sendErr))
	}
}

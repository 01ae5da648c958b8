package service

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
)

// PipelineReplies are the texts the pipeline answers with before a command runs
type PipelineReplies struct {
	RateLimited      string // {seconds}
	PermissionDenied string // {command}
	GroupOnly        string // {command}
	CommandBlocked   string // {command}
}

// Pipeline turns inbound events into guarded, authorized, rate-limited command executions
type Pipeline struct {
	policy     *usecase.PolicyUsecase
	guard      *usecase.GuardUsecase
	limiter    *usecase.RateLimitUsecase
	resolver   *usecase.ResolverUsecase
	dispatcher *usecase.DispatcherUsecase
	membership *usecase.MembershipUsecase
	platform   repo.PlatformRepo

	prefix  string
	replies PipelineReplies
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewPipeline creates a pipeline. metrics may be nil.
func NewPipeline(
	policy *usecase.PolicyUsecase,
	guard *usecase.GuardUsecase,
	limiter *usecase.RateLimitUsecase,
	resolver *usecase.ResolverUsecase,
	dispatcher *usecase.DispatcherUsecase,
	membership *usecase.MembershipUsecase,
	platform repo.PlatformRepo,
	prefix string,
	replies PipelineReplies,
	metrics *Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		policy:     policy,
		guard:      guard,
		limiter:    limiter,
		resolver:   resolver,
		dispatcher: dispatcher,
		membership: membership,
		platform:   platform,
		prefix:     prefix,
		replies:    replies,
		metrics:    metrics,
		logger:     logger.Named("pipeline"),
		now:        time.Now,
	}
}

// Handle processes one event. It never panics and never returns an error:
// failures are logged and the event is dropped.
func (p *Pipeline) Handle(ctx context.Context, ev domain.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.failure("panic")
			p.logger.Error("event processing panicked",
				zap.Any("panic", r),
				zap.String("kind", string(ev.Kind)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	p.metrics.event(string(ev.Kind))

	var err error
	switch ev.Kind {
	case domain.EventMessage:
		err = p.handleMessage(ctx, ev.Message)
	case domain.EventParticipantChange:
		err = p.membership.HandleParticipants(ctx, ev.Participants)
	case domain.EventGroupMetadataChange:
		err = p.membership.SyncGroup(ctx, ev.Group)
	case domain.EventContactChange:
		err = p.membership.UpdateContact(ctx, ev.Contact)
	default:
		p.logger.Warn("unknown event kind", zap.String("kind", string(ev.Kind)))
		return
	}
	if err == nil {
		return
	}

	var infra *domain.InfrastructureFailure
	if errors.As(err, &infra) {
		p.metrics.failure(infra.Op)
	}
	p.logger.Error("event dropped",
		zap.String("kind", string(ev.Kind)),
		zap.String("chat_id", ev.ChatID),
		zap.Uint64("seq", ev.Seq),
		zap.Error(err))
}

func (p *Pipeline) handleMessage(ctx context.Context, raw *domain.RawMessage) error {
	if raw == nil || raw.FromBot {
		return nil
	}

	var policy *domain.GroupPolicy
	if raw.ChatType == domain.ChatTypeGroup {
		var err error
		if policy, err = p.policy.Group(ctx, raw.ChatID); err != nil {
			return domain.Infra("load policy", err)
		}
	}
	ownerID, err := p.policy.OwnerID(ctx)
	if err != nil {
		return domain.Infra("load owner", err)
	}

	mc := domain.MessageContext{Prefix: p.prefix, BotID: p.platform.BotID(), OwnerID: ownerID}
	if policy != nil {
		mc.Admins = policy.AdminList()
	}
	msg := domain.NewNormalizedMessage(raw, mc)
	if msg.IsBotMessage {
		return nil
	}

	result, err := p.guard.Evaluate(ctx, msg, policy)
	if result.Verdict == usecase.VerdictDrop {
		p.metrics.guardDrop(result.Guard)
	}
	if err != nil {
		return err
	}
	if result.Verdict == usecase.VerdictDrop {
		p.logger.Debug("message dropped", zap.String("guard", result.Guard), zap.String("message_id", msg.ID))
		return nil
	}

	if !msg.IsCommand {
		return p.autoReply(ctx, msg, policy)
	}
	return p.handleCommand(ctx, msg, policy)
}

func (p *Pipeline) autoReply(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) error {
	if policy == nil {
		return nil
	}
	reply, ok := policy.MatchAutoReply(msg.Body)
	if !ok {
		return nil
	}
	if err := p.platform.SendText(ctx, msg.ChatID, reply); err != nil {
		p.logger.Warn("failed to send auto-reply", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
	return nil
}

func (p *Pipeline) handleCommand(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) error {
	// Owner and moderators are exempt from the rate limit
	if !usecase.HasPermission(msg, domain.RoleOwner, domain.RoleGroupModerator) {
		decision, err := p.limiter.CheckAndConsume(ctx, msg.SenderID, p.now())
		if err != nil {
			return domain.Infra("rate limit", err)
		}
		if !decision.Allowed {
			p.metrics.limited()
			if decision.JustLimited {
				seconds := strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds())))
				p.reply(ctx, msg, strings.ReplaceAll(p.replies.RateLimited, "{seconds}", seconds))
			}
			p.logger.Info("command rate limited",
				zap.String("user_id", msg.SenderID),
				zap.Duration("retry_after", decision.RetryAfter),
				zap.Bool("notified", decision.JustLimited))
			return nil
		}
	}

	res, ok := p.resolver.Resolve(msg.Prefix, msg.Command)
	if !ok {
		p.logger.Info("unknown command", zap.String("command", msg.Command), zap.String("user_id", msg.SenderID))
		p.reply(ctx, msg, p.resolver.Suggest(ctx, msg))
		return nil
	}
	if res.Fuzzy {
		p.metrics.fuzzy()
	}

	spec := res.Entry.Spec
	display := msg.Prefix + res.Name
	if !usecase.HasPermission(msg, spec.RequiredRoles...) {
		p.logger.Info("permission denied", zap.String("command", res.Name), zap.String("user_id", msg.SenderID))
		p.reply(ctx, msg, strings.ReplaceAll(p.replies.PermissionDenied, "{command}", display))
		return nil
	}
	if spec.GroupOnly && !msg.IsGroup {
		p.reply(ctx, msg, strings.ReplaceAll(p.replies.GroupOnly, "{command}", display))
		return nil
	}
	if policy != nil && policy.IsCommandBlocked(res.Name) && !usecase.HasPermission(msg, domain.RoleGroupModerator) {
		p.reply(ctx, msg, strings.ReplaceAll(p.replies.CommandBlocked, "{command}", display))
		return nil
	}

	err := p.dispatcher.Invoke(ctx, res, msg, policy)
	p.metrics.command(res.Name, err == nil)

	var failure *domain.HandlerFailure
	if errors.As(err, &failure) {
		// Already reported to the sender and the exec log
		return nil
	}
	return err
}

func (p *Pipeline) reply(ctx context.Context, msg *domain.NormalizedMessage, text string) {
	if text == "" {
		return
	}
	if err := p.platform.SendText(ctx, msg.ChatID, text); err != nil {
		p.logger.Warn("failed to send reply", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
}

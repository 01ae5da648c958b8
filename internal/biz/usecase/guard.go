package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// Verdict is the guard chain outcome for one message
type Verdict int

const (
	VerdictContinue Verdict = iota
	VerdictDrop
)

func (v Verdict) String() string {
	if v == VerdictDrop {
		return "drop"
	}
	return "continue"
}

// Guard names, also used as metric labels
const (
	GuardMutedMember = "muted_member"
	GuardRestricted  = "restricted"
	GuardAntiLink    = "antilink"
	GuardWordFilter  = "wordfilter"
	GuardAntiFlood   = "antiflood"
	GuardOwnerClaim  = "owner_claim"
	GuardActivity    = "activity"
	GuardCommandMute = "command_mute"
	GuardGlobalBlock = "global_block"
	GuardPrivate     = "private_commands"
	GuardMarkRead    = "mark_read"
)

var errNoPolicy = errors.New("group message without policy")

// GuardResult reports which guard, if any, stopped the message
type GuardResult struct {
	Verdict Verdict
	Guard   string
}

// GuardMessages are the user-facing sanction texts. {user} is the sender's name.
type GuardMessages struct {
	AntiLink     string
	WordFilter   string
	AntiFlood    string
	OwnerClaimed string
}

// GuardConfig configures the guard chain
type GuardConfig struct {
	// OwnerClaimToken is the full message body that claims ownership, e.g. "!admin"
	OwnerClaimToken string
	Messages        GuardMessages
}

type guardCheck func(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error)

type guardStep struct {
	name string
	// failClosed steps drop the message when they cannot be evaluated
	failClosed bool
	check      guardCheck
}

// GuardUsecase is the fixed moderation chain run before any command handling
type GuardUsecase struct {
	policy   *PolicyUsecase
	platform repo.PlatformRepo
	flood    *FloodTracker
	config   GuardConfig
	logger   *zap.Logger

	groupChain   []guardStep
	privateChain []guardStep
}

// NewGuardUsecase creates the guard chain
func NewGuardUsecase(policy *PolicyUsecase, platform repo.PlatformRepo, config GuardConfig, logger *zap.Logger) *GuardUsecase {
	uc := &GuardUsecase{
		policy:   policy,
		platform: platform,
		flood:    NewFloodTracker(),
		config:   config,
		logger:   logger.Named("guard"),
	}

	uc.groupChain = []guardStep{
		{GuardMutedMember, true, uc.checkMutedMember},
		{GuardRestricted, true, uc.checkRestricted},
		{GuardAntiLink, true, uc.checkAntiLink},
		{GuardWordFilter, true, uc.checkWordFilter},
		{GuardAntiFlood, true, uc.checkAntiFlood},
		{GuardOwnerClaim, true, uc.checkOwnerClaim},
		{GuardActivity, false, uc.countActivity},
		{GuardCommandMute, true, uc.checkCommandMute},
		{GuardGlobalBlock, true, uc.checkGlobalBlock},
		{GuardMarkRead, false, uc.markRead},
	}
	uc.privateChain = []guardStep{
		{GuardOwnerClaim, true, uc.checkOwnerClaim},
		{GuardGlobalBlock, true, uc.checkGlobalBlock},
		{GuardPrivate, true, uc.checkPrivateCommands},
		{GuardMarkRead, false, uc.markRead},
	}
	return uc
}

// Evaluate runs the chain for msg. policy is nil for private chats.
// A non-nil error is an InfrastructureFailure from a fail-closed step and always comes with VerdictDrop.
func (uc *GuardUsecase) Evaluate(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (GuardResult, error) {
	chain := uc.privateChain
	if msg.IsGroup {
		if policy == nil {
			return GuardResult{Verdict: VerdictDrop}, domain.Infra("guard", errNoPolicy)
		}
		chain = uc.groupChain
	}

	for _, step := range chain {
		verdict, err := step.check(ctx, msg, policy)
		if err != nil {
			if step.failClosed {
				return GuardResult{Verdict: VerdictDrop, Guard: step.name}, domain.Infra("guard "+step.name, err)
			}
			uc.logger.Warn("guard step failed, continuing",
				zap.String("guard", step.name),
				zap.String("msg_id", msg.ID),
				zap.Error(err))
			continue
		}
		if verdict == VerdictDrop {
			uc.logger.Debug("message dropped",
				zap.String("guard", step.name),
				zap.String("msg_id", msg.ID),
				zap.String("sender", msg.SenderID))
			return GuardResult{Verdict: VerdictDrop, Guard: step.name}, nil
		}
	}
	return GuardResult{Verdict: VerdictContinue}, nil
}

// ForgetParticipant drops flood state for a participant who left
func (uc *GuardUsecase) ForgetParticipant(groupID, userID string) {
	uc.flood.Forget(groupID, userID)
}

func (uc *GuardUsecase) botIsAdmin(policy *domain.GroupPolicy) bool {
	return policy.IsAdmin(uc.platform.BotID())
}

// exempt reports whether the sender is above moderation in this group
func exempt(msg *domain.NormalizedMessage) bool {
	return msg.IsBotOwner || msg.IsGroupAdmin
}

func (uc *GuardUsecase) checkMutedMember(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error) {
	if !policy.IsMuted(msg.SenderID) {
		return VerdictContinue, nil
	}
	if !uc.botIsAdmin(policy) {
		// Cannot enforce without moderator privileges
		return VerdictContinue, nil
	}
	if err := uc.platform.DeleteMessage(ctx, msg.ID); err != nil {
		return VerdictDrop, err
	}
	return VerdictDrop, nil
}

func (uc *GuardUsecase) checkRestricted(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error) {
	if policy.Restricted && !uc.botIsAdmin(policy) {
		return VerdictDrop, nil
	}
	return VerdictContinue, nil
}

var linkPattern = regexp.MustCompile(`(?i)(https?://[^\s]+|www\.[^\s]+|\b[a-z0-9][a-z0-9-]*\.(?:com|net|org|io|cn|me|gg|ly|co|app|xyz|link)(?:/[^\s]*)?)`)

// findLinks returns links in body not covered by any exception
func findLinks(body string, exceptions []string) []string {
	var out []string
	for _, link := range linkPattern.FindAllString(body, -1) {
		lower := strings.ToLower(link)
		allowed := false
		for _, ex := range exceptions {
			if ex != "" && strings.Contains(lower, strings.ToLower(ex)) {
				allowed = true
				break
			}
		}
		if !allowed {
			out = append(out, link)
		}
	}
	return out
}

func (uc *GuardUsecase) checkAntiLink(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error) {
	if !policy.AntiLink.Enabled || exempt(msg) {
		return VerdictContinue, nil
	}
	if len(findLinks(msg.Body, policy.AntiLink.Exceptions)) == 0 {
		return VerdictContinue, nil
	}
	return VerdictDrop, uc.sanction(ctx, msg, policy, uc.config.Messages.AntiLink)
}

func (uc *GuardUsecase) checkWordFilter(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error) {
	if !policy.WordFilter.Enabled || exempt(msg) || len(policy.WordFilter.Words) == 0 {
		return VerdictContinue, nil
	}
	body := strings.ToLower(msg.Body)
	for _, w := range policy.WordFilter.Words {
		if w != "" && strings.Contains(body, strings.ToLower(w)) {
			return VerdictDrop, uc.sanction(ctx, msg, policy, uc.config.Messages.WordFilter)
		}
	}
	return VerdictContinue, nil
}

func (uc *GuardUsecase) checkAntiFlood(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error) {
	if !policy.AntiFlood.Enabled || exempt(msg) {
		return VerdictContinue, nil
	}
	cfg := policy.AntiFlood
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = domain.DefaultAntiFlood.MaxMessages
	}
	if cfg.Interval <= 0 {
		cfg.Interval = domain.DefaultAntiFlood.Interval
	}

	flooding, first := uc.flood.Hit(policy.GroupID, msg.SenderID, time.Now(), cfg)
	if !flooding {
		return VerdictContinue, nil
	}
	if !first {
		// Already warned in this window, just clean up
		if uc.botIsAdmin(policy) {
			return VerdictDrop, uc.platform.DeleteMessage(ctx, msg.ID)
		}
		return VerdictDrop, nil
	}
	return VerdictDrop, uc.sanction(ctx, msg, policy, uc.config.Messages.AntiFlood)
}

// sanction deletes the message when possible and warns the sender
func (uc *GuardUsecase) sanction(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy, warning string) error {
	if uc.botIsAdmin(policy) {
		if err := uc.platform.DeleteMessage(ctx, msg.ID); err != nil {
			return err
		}
	}
	if warning == "" {
		return nil
	}
	text := strings.ReplaceAll(warning, "{user}", displayName(msg))
	sender := []domain.Participant{{UserID: msg.SenderID, Name: msg.SenderName}}
	if err := uc.platform.SendTextWithMentions(ctx, msg.ChatID, text, sender); err != nil {
		uc.logger.Warn("failed to send sanction warning", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
	return nil
}

func (uc *GuardUsecase) checkOwnerClaim(ctx context.Context, msg *domain.NormalizedMessage, _ *domain.GroupPolicy) (Verdict, error) {
	token := strings.ToLower(strings.TrimSpace(uc.config.OwnerClaimToken))
	if token == "" || strings.ToLower(msg.Body) != token {
		return VerdictContinue, nil
	}

	owner, err := uc.policy.OwnerID(ctx)
	if err != nil {
		return VerdictDrop, err
	}
	if owner != "" {
		// Later claims are no-ops
		return VerdictDrop, nil
	}

	claimed, err := uc.policy.ClaimOwner(ctx, msg.SenderID)
	if err != nil {
		return VerdictDrop, err
	}
	if claimed {
		uc.logger.Info("owner registered", zap.String("user_id", msg.SenderID))
		if reply := uc.config.Messages.OwnerClaimed; reply != "" {
			if err := uc.platform.SendText(ctx, msg.ChatID, strings.ReplaceAll(reply, "{user}", displayName(msg))); err != nil {
				uc.logger.Warn("failed to confirm owner claim", zap.Error(err))
			}
		}
	}
	return VerdictDrop, nil
}

func (uc *GuardUsecase) countActivity(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error) {
	return VerdictContinue, uc.policy.IncrementActivity(ctx, policy.GroupID, msg.SenderID, msg.ActivityType())
}

func (uc *GuardUsecase) checkCommandMute(ctx context.Context, msg *domain.NormalizedMessage, policy *domain.GroupPolicy) (Verdict, error) {
	if msg.IsCommand && policy.CommandMute && !exempt(msg) {
		return VerdictDrop, nil
	}
	return VerdictContinue, nil
}

func (uc *GuardUsecase) checkGlobalBlock(ctx context.Context, msg *domain.NormalizedMessage, _ *domain.GroupPolicy) (Verdict, error) {
	if msg.IsBotOwner {
		return VerdictContinue, nil
	}
	blocked, err := uc.policy.IsBlocked(ctx, msg.SenderID)
	if err != nil {
		return VerdictDrop, err
	}
	if blocked {
		return VerdictDrop, nil
	}
	return VerdictContinue, nil
}

func (uc *GuardUsecase) checkPrivateCommands(ctx context.Context, msg *domain.NormalizedMessage, _ *domain.GroupPolicy) (Verdict, error) {
	if msg.IsBotOwner {
		return VerdictContinue, nil
	}
	enabled, err := uc.policy.PrivateCommands(ctx)
	if err != nil {
		return VerdictDrop, err
	}
	if !enabled {
		return VerdictDrop, nil
	}
	return VerdictContinue, nil
}

func (uc *GuardUsecase) markRead(ctx context.Context, msg *domain.NormalizedMessage, _ *domain.GroupPolicy) (Verdict, error) {
	return VerdictContinue, uc.platform.MarkRead(ctx, msg.ID)
}

func displayName(msg *domain.NormalizedMessage) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID
}

// floodSweepEvery bounds how often Hit scans for idle windows
const floodSweepEvery = time.Minute

// FloodTracker keeps per-participant message timestamps for anti-flood.
// Windows of idle senders are evicted during Hit.
type FloodTracker struct {
	mu        sync.Mutex
	windows   map[string]*floodWindow
	lastSweep time.Time
}

type floodWindow struct {
	hits     []time.Time
	interval time.Duration
	warned   bool
}

// NewFloodTracker creates an empty tracker
func NewFloodTracker() *FloodTracker {
	return &FloodTracker{windows: make(map[string]*floodWindow)}
}

// Hit records a message at now and reports whether the sender exceeds cfg.
// first is true only for the message that crossed the threshold.
func (f *FloodTracker) Hit(groupID, userID string, now time.Time, cfg domain.AntiFloodConfig) (flooding, first bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if now.Sub(f.lastSweep) >= floodSweepEvery {
		f.sweep(now)
	}

	key := groupID + "|" + userID
	w, ok := f.windows[key]
	if !ok {
		w = &floodWindow{}
		f.windows[key] = w
	}
	w.interval = cfg.Interval

	cutoff := now.Add(-cfg.Interval)
	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = append(kept, now)

	if len(w.hits) <= cfg.MaxMessages {
		w.warned = false
		return false, false
	}
	first = !w.warned
	w.warned = true
	return true, first
}

// sweep drops windows whose newest hit is older than their interval. Caller holds mu.
func (f *FloodTracker) sweep(now time.Time) {
	for key, w := range f.windows {
		if len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(now.Add(-w.interval)) {
			delete(f.windows, key)
		}
	}
	f.lastSweep = now
}

// Len returns the number of tracked windows
func (f *FloodTracker) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

// Forget drops the tracker state for a participant
func (f *FloodTracker) Forget(groupID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, groupID+"|"+userID)
}

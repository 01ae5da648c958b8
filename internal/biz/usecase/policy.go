package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

const botStateCacheTTL = 5 * time.Minute

// PolicyUsecase is the only writer of group policy and bot state
type PolicyUsecase struct {
	groupRepo repo.GroupRepo
	botRepo   repo.BotRepo
	userRepo  repo.UserRepo

	ownerCache   *domain.TTLCache[string]
	blockedCache *domain.TTLCache[[]string]
}

// NewPolicyUsecase creates a new policy usecase
func NewPolicyUsecase(groupRepo repo.GroupRepo, botRepo repo.BotRepo, userRepo repo.UserRepo) *PolicyUsecase {
	return &PolicyUsecase{
		groupRepo:    groupRepo,
		botRepo:      botRepo,
		userRepo:     userRepo,
		ownerCache:   domain.NewTTLCache[string](botStateCacheTTL),
		blockedCache: domain.NewTTLCache[[]string](botStateCacheTTL),
	}
}

// Group returns the policy for groupID, creating defaults on first sight
func (uc *PolicyUsecase) Group(ctx context.Context, groupID string) (*domain.GroupPolicy, error) {
	policy, err := uc.groupRepo.Get(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}
	if policy != nil {
		return policy, nil
	}

	policy = domain.NewGroupPolicy(groupID)
	if err := uc.groupRepo.Save(ctx, policy); err != nil {
		return nil, fmt.Errorf("create group %s: %w", groupID, err)
	}
	return policy, nil
}

// Groups lists every known group
func (uc *PolicyUsecase) Groups(ctx context.Context) ([]*domain.GroupPolicy, error) {
	return uc.groupRepo.List(ctx)
}

// UpdateGroup loads, mutates and saves a group policy
func (uc *PolicyUsecase) UpdateGroup(ctx context.Context, groupID string, mutate func(*domain.GroupPolicy) error) (*domain.GroupPolicy, error) {
	policy, err := uc.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := mutate(policy); err != nil {
		return nil, err
	}
	policy.UpdatedAt = time.Now()
	if err := uc.groupRepo.Save(ctx, policy); err != nil {
		return nil, fmt.Errorf("save group %s: %w", groupID, err)
	}
	return policy, nil
}

// ApplyMetadata stores platform metadata for a group
func (uc *PolicyUsecase) ApplyMetadata(ctx context.Context, meta *domain.GroupMetadata) (*domain.GroupPolicy, error) {
	return uc.UpdateGroup(ctx, meta.GroupID, func(p *domain.GroupPolicy) error {
		p.ApplyMetadata(meta)
		return nil
	})
}

// SetAdmin adds or removes userID from the cached admin list
func (uc *PolicyUsecase) SetAdmin(ctx context.Context, groupID, userID string, admin bool) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		if admin {
			p.Admins = domain.AddUnique(p.Admins, userID)
		} else {
			p.Admins = domain.RemoveID(p.Admins, userID)
		}
		return nil
	})
	return err
}

// SetCommandMute restricts command usage to admins
func (uc *PolicyUsecase) SetCommandMute(ctx context.Context, groupID string, muted bool) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		p.CommandMute = muted
		return nil
	})
	return err
}

// SetMemberMuted adds or removes userID from the muted-member set
func (uc *PolicyUsecase) SetMemberMuted(ctx context.Context, groupID, userID string, muted bool) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		if muted {
			p.MutedMembers = domain.AddUnique(p.MutedMembers, userID)
		} else {
			p.MutedMembers = domain.RemoveID(p.MutedMembers, userID)
		}
		return nil
	})
	return err
}

// SetAntiLink toggles link moderation; a nil exceptions list keeps the current one
func (uc *PolicyUsecase) SetAntiLink(ctx context.Context, groupID string, enabled bool, exceptions []string) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		p.AntiLink.Enabled = enabled
		if exceptions != nil {
			p.AntiLink.Exceptions = normalizeList(exceptions)
		}
		return nil
	})
	return err
}

// SetAntiFlood toggles flood moderation; zero limits keep the current values
func (uc *PolicyUsecase) SetAntiFlood(ctx context.Context, groupID string, enabled bool, maxMessages int, interval time.Duration) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		p.AntiFlood.Enabled = enabled
		if maxMessages > 0 {
			p.AntiFlood.MaxMessages = maxMessages
		}
		if interval > 0 {
			p.AntiFlood.Interval = interval
		}
		return nil
	})
	return err
}

// SetAntiFake toggles tenant moderation; a nil allowed list keeps the current one
func (uc *PolicyUsecase) SetAntiFake(ctx context.Context, groupID string, enabled bool, allowed []string) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		p.AntiFake.Enabled = enabled
		if allowed != nil {
			p.AntiFake.Allowed = normalizeList(allowed)
		}
		return nil
	})
	return err
}

// SetWordFilter toggles the word filter
func (uc *PolicyUsecase) SetWordFilter(ctx context.Context, groupID string, enabled bool) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		p.WordFilter.Enabled = enabled
		return nil
	})
	return err
}

// SetFilteredWord adds or removes a filtered word
func (uc *PolicyUsecase) SetFilteredWord(ctx context.Context, groupID, word string, add bool) error {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return domain.UsageError("empty word")
	}
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		if add {
			p.WordFilter.Words = domain.AddUnique(p.WordFilter.Words, word)
		} else {
			p.WordFilter.Words = domain.RemoveID(p.WordFilter.Words, word)
		}
		return nil
	})
	return err
}

// SetBlacklisted adds or removes userID from the group blacklist
func (uc *PolicyUsecase) SetBlacklisted(ctx context.Context, groupID, userID string, banned bool) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		if banned {
			p.Blacklist = domain.AddUnique(p.Blacklist, userID)
		} else {
			p.Blacklist = domain.RemoveID(p.Blacklist, userID)
		}
		return nil
	})
	return err
}

// SetCommandBlocked adds or removes a command from the group's blocked set
func (uc *PolicyUsecase) SetCommandBlocked(ctx context.Context, groupID, command string, blocked bool) error {
	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		return domain.UsageError("empty command")
	}
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		if blocked {
			p.BlockedCommands = domain.AddUnique(p.BlockedCommands, command)
		} else {
			p.BlockedCommands = domain.RemoveID(p.BlockedCommands, command)
		}
		return nil
	})
	return err
}

// SetWelcome toggles the welcome message; empty text keeps the current one
func (uc *PolicyUsecase) SetWelcome(ctx context.Context, groupID string, enabled bool, text string) error {
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		p.Welcome.Enabled = enabled
		if text != "" {
			p.Welcome.Text = text
		}
		return nil
	})
	return err
}

// SetAutoReply adds or replaces a trigger; an empty reply removes it
func (uc *PolicyUsecase) SetAutoReply(ctx context.Context, groupID, trigger, reply string) error {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return domain.UsageError("empty trigger")
	}
	_, err := uc.UpdateGroup(ctx, groupID, func(p *domain.GroupPolicy) error {
		kept := p.AutoReplies[:0:0]
		for _, ar := range p.AutoReplies {
			if !strings.EqualFold(ar.Trigger, trigger) {
				kept = append(kept, ar)
			}
		}
		if reply != "" {
			kept = append(kept, domain.AutoReply{Trigger: trigger, Reply: reply})
		}
		p.AutoReplies = kept
		return nil
	})
	return err
}

// IncrementActivity bumps a participant's counters
func (uc *PolicyUsecase) IncrementActivity(ctx context.Context, groupID, userID, activityType string) error {
	return uc.groupRepo.IncrementActivity(ctx, groupID, userID, activityType)
}

// ClearActivity drops a participant's counters
func (uc *PolicyUsecase) ClearActivity(ctx context.Context, groupID, userID string) error {
	return uc.groupRepo.ClearActivity(ctx, groupID, userID)
}

// Bot returns the bot-wide state
func (uc *PolicyUsecase) Bot(ctx context.Context) (*domain.BotState, error) {
	return uc.botRepo.Get(ctx)
}

// OwnerID returns the bot owner, empty if unclaimed
func (uc *PolicyUsecase) OwnerID(ctx context.Context) (string, error) {
	if id, ok := uc.ownerCache.Get(); ok {
		return id, nil
	}
	bot, err := uc.botRepo.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot state: %w", err)
	}
	uc.ownerCache.Set(bot.OwnerID)
	return bot.OwnerID, nil
}

// ClaimOwner registers userID as owner if nobody has claimed it yet
func (uc *PolicyUsecase) ClaimOwner(ctx context.Context, userID string) (bool, error) {
	claimed, err := uc.botRepo.ClaimOwner(ctx, userID)
	uc.ownerCache.Invalidate()
	if err != nil {
		return false, fmt.Errorf("claim owner: %w", err)
	}
	return claimed, nil
}

// IsBlocked reports whether userID is globally blocked
func (uc *PolicyUsecase) IsBlocked(ctx context.Context, userID string) (bool, error) {
	blocked, ok := uc.blockedCache.Get()
	if !ok {
		bot, err := uc.botRepo.Get(ctx)
		if err != nil {
			return false, fmt.Errorf("get bot state: %w", err)
		}
		blocked = bot.Blocked
		uc.blockedCache.Set(blocked)
	}
	state := domain.BotState{Blocked: blocked}
	return state.IsBlocked(userID), nil
}

// SetBlocked adds or removes a global block
func (uc *PolicyUsecase) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	err := uc.botRepo.SetBlocked(ctx, userID, blocked)
	uc.blockedCache.Invalidate()
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	return nil
}

// PrivateCommands reports whether non-owners may use commands in private chats
func (uc *PolicyUsecase) PrivateCommands(ctx context.Context) (bool, error) {
	bot, err := uc.botRepo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("get bot state: %w", err)
	}
	return bot.PrivateCommands, nil
}

// SetPrivateCommands toggles private-chat commands for non-owners
func (uc *PolicyUsecase) SetPrivateCommands(ctx context.Context, enabled bool) error {
	return uc.botRepo.SetPrivateCommands(ctx, enabled)
}

// SetUserName records a user's display name
func (uc *PolicyUsecase) SetUserName(ctx context.Context, userID, name string) error {
	if _, err := uc.userRepo.Ensure(ctx, userID, name); err != nil {
		return err
	}
	return uc.userRepo.SetName(ctx, userID, name)
}

// User returns a user record, nil if never seen
func (uc *PolicyUsecase) User(ctx context.Context, userID string) (*domain.UserRecord, error) {
	return uc.userRepo.Get(ctx, userID)
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it != "" {
			out = domain.AddUnique(out, it)
		}
	}
	return out
}

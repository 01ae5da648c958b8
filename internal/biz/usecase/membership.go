package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// MembershipUsecase applies group policy to participant, group and contact changes
type MembershipUsecase struct {
	policy   *PolicyUsecase
	guard    *GuardUsecase
	platform repo.PlatformRepo
	logger   *zap.Logger
}

// NewMembershipUsecase creates a new membership usecase
func NewMembershipUsecase(policy *PolicyUsecase, guard *GuardUsecase, platform repo.PlatformRepo, logger *zap.Logger) *MembershipUsecase {
	return &MembershipUsecase{
		policy:   policy,
		guard:    guard,
		platform: platform,
		logger:   logger.Named("membership"),
	}
}

// HandleParticipants reacts to users joining, leaving or changing role
func (uc *MembershipUsecase) HandleParticipants(ctx context.Context, change *domain.ParticipantChange) error {
	switch change.Action {
	case domain.ParticipantAdd:
		return uc.onJoin(ctx, change)
	case domain.ParticipantRemove:
		for _, p := range change.Participants {
			if err := uc.policy.ClearActivity(ctx, change.GroupID, p.UserID); err != nil {
				uc.logger.Warn("failed to clear activity", zap.String("group_id", change.GroupID), zap.String("user_id", p.UserID), zap.Error(err))
			}
			if uc.guard != nil {
				uc.guard.ForgetParticipant(change.GroupID, p.UserID)
			}
		}
		return nil
	case domain.ParticipantPromote, domain.ParticipantDemote:
		admin := change.Action == domain.ParticipantPromote
		for _, p := range change.Participants {
			if err := uc.policy.SetAdmin(ctx, change.GroupID, p.UserID, admin); err != nil {
				return domain.Infra("update admins", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown participant action %q", change.Action)
	}
}

func (uc *MembershipUsecase) onJoin(ctx context.Context, change *domain.ParticipantChange) error {
	policy, err := uc.policy.Group(ctx, change.GroupID)
	if err != nil {
		return domain.Infra("load group", err)
	}

	botID := uc.platform.BotID()
	botAdmin := policy.IsAdmin(botID)

	antiFake := policy.AntiFake.Enabled
	if antiFake && !botAdmin {
		// The bot cannot remove anyone, so the feature is switched off for this group
		uc.logger.Warn("anti-fake disabled, bot is not a group admin", zap.String("group_id", change.GroupID))
		if err := uc.policy.SetAntiFake(ctx, change.GroupID, false, nil); err != nil {
			uc.logger.Warn("failed to disable anti-fake", zap.String("group_id", change.GroupID), zap.Error(err))
		}
		antiFake = false
	}

	var remove []string
	var welcome []domain.Participant
	for _, p := range change.Participants {
		if botID != "" && p.UserID == botID {
			continue
		}
		if p.Name != "" {
			if err := uc.policy.SetUserName(ctx, p.UserID, p.Name); err != nil {
				uc.logger.Warn("failed to record participant", zap.String("user_id", p.UserID), zap.Error(err))
			}
		}

		switch {
		case policy.IsBlacklisted(p.UserID):
			if !botAdmin {
				uc.logger.Warn("blacklisted participant joined, bot is not a group admin",
					zap.String("group_id", change.GroupID), zap.String("user_id", p.UserID))
				continue
			}
			uc.logger.Info("removing blacklisted participant", zap.String("group_id", change.GroupID), zap.String("user_id", p.UserID))
			remove = append(remove, p.UserID)
		case antiFake && !tenantAllowed(policy.AntiFake.Allowed, p.TenantKey):
			uc.logger.Info("removing participant from unknown tenant",
				zap.String("group_id", change.GroupID),
				zap.String("user_id", p.UserID),
				zap.String("tenant", p.TenantKey))
			remove = append(remove, p.UserID)
		default:
			welcome = append(welcome, p)
		}
	}

	if len(remove) > 0 {
		if err := uc.platform.RemoveMembers(ctx, change.GroupID, remove); err != nil {
			return fmt.Errorf("remove members: %w", err)
		}
	}

	if policy.Welcome.Enabled && policy.Welcome.Text != "" && len(welcome) > 0 {
		names := make([]string, 0, len(welcome))
		for _, p := range welcome {
			names = append(names, p.Name)
		}
		text := strings.NewReplacer(
			"{user}", strings.Join(names, ", "),
			"{group}", policy.Name,
		).Replace(policy.Welcome.Text)
		if err := uc.platform.SendTextWithMentions(ctx, change.GroupID, text, welcome); err != nil {
			uc.logger.Warn("failed to send welcome", zap.String("group_id", change.GroupID), zap.Error(err))
		}
	}
	return nil
}

// tenantAllowed reports whether tenant may join. With no allowed tenants configured everyone may.
func tenantAllowed(allowed []string, tenant string) bool {
	if len(allowed) == 0 {
		return true
	}
	tenant = strings.ToLower(strings.TrimSpace(tenant))
	for _, a := range allowed {
		if a == tenant {
			return true
		}
	}
	return false
}

// SyncGroup refreshes a group's platform metadata.
// change.Metadata is fetched from the platform when the event did not carry it.
func (uc *MembershipUsecase) SyncGroup(ctx context.Context, change *domain.GroupMetadataChange) error {
	meta := change.Metadata
	if meta == nil {
		var err error
		meta, err = uc.platform.FetchGroupMetadata(ctx, change.GroupID)
		if err != nil {
			return domain.Infra("fetch group metadata", err)
		}
	}
	if meta.GroupID == "" {
		meta.GroupID = change.GroupID
	}

	policy, err := uc.policy.ApplyMetadata(ctx, meta)
	if err != nil {
		return domain.Infra("apply group metadata", err)
	}
	uc.logger.Debug("group metadata synced",
		zap.String("group_id", policy.GroupID),
		zap.String("owner", policy.OwnerID),
		zap.Int("admins", len(policy.Admins)),
		zap.Bool("restricted", policy.Restricted))
	return nil
}

// UpdateContact records a changed display name
func (uc *MembershipUsecase) UpdateContact(ctx context.Context, change *domain.ContactChange) error {
	name := change.Name
	if name == "" {
		profile, err := uc.platform.FetchProfile(ctx, change.UserID)
		if err != nil {
			return fmt.Errorf("fetch profile: %w", err)
		}
		name = profile.Name
	}
	if name == "" {
		return nil
	}
	if err := uc.policy.SetUserName(ctx, change.UserID, name); err != nil {
		return domain.Infra("update contact", err)
	}
	return nil
}

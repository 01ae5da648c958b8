package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
	"github.com/devricklin/feishu-guard-bot/internal/conf"
	"github.com/devricklin/feishu-guard-bot/internal/data"
)

type fakePlatform struct {
	mu      sync.Mutex
	botID   string
	sent    []string
	deleted []string
	removed map[string][]string
}

func newFakePlatform(botID string) *fakePlatform {
	return &fakePlatform{botID: botID, removed: map[string][]string{}}
}

func (f *fakePlatform) BotID() string { return f.botID }

func (f *fakePlatform) SendText(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakePlatform) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Participant) error {
	return f.SendText(ctx, chatID, text)
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msgID)
	return nil
}

func (f *fakePlatform) RemoveMembers(ctx context.Context, groupID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[groupID] = append(f.removed[groupID], userIDs...)
	return nil
}

func (f *fakePlatform) FetchProfile(ctx context.Context, userID string) (*domain.Participant, error) {
	return &domain.Participant{UserID: userID}, nil
}

func (f *fakePlatform) FetchGroupMetadata(ctx context.Context, groupID string) (*domain.GroupMetadata, error) {
	return &domain.GroupMetadata{GroupID: groupID, Admins: []string{f.botID}}, nil
}

func (f *fakePlatform) MarkRead(ctx context.Context, msgID string) error { return nil }

func (f *fakePlatform) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakePlatform) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

// botFixture wires the full pipeline over real SQLite stores and a fake platform
type botFixture struct {
	repos    *data.Repositories
	platform *fakePlatform
	policy   *usecase.PolicyUsecase
	limiter  *usecase.RateLimitUsecase
	pipeline *Pipeline
	audio    int
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	repos, err := data.NewPolicyRepositories(filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	f := &botFixture{repos: repos, platform: newFakePlatform("ou_bot")}
	logger := zap.NewNop()
	msgs := conf.DefaultMessagesConfig()

	f.policy = usecase.NewPolicyUsecase(repos.Group, repos.Bot, repos.User)
	guard := usecase.NewGuardUsecase(f.policy, f.platform, usecase.GuardConfig{
		OwnerClaimToken: "!admin",
		Messages:        msgs.GuardMessages(),
	}, logger)
	f.limiter = usecase.NewRateLimitUsecase(repos.User, usecase.RateLimitConfig{
		Enabled:      true,
		MaxPerMinute: 2,
		BlockTime:    time.Minute,
	})

	commands := NewCommands(f.policy, f.limiter, f.platform, map[string]string{"audio": "{prefix}audio <text>"})
	catalog, err := commands.BuildCatalog(domain.Registry{
		Name: "media",
		Commands: []domain.CommandSpec{{
			Name:        "audio",
			Description: "Speak the text",
			Handler: func(ctx context.Context, req *domain.CommandRequest) (string, error) {
				f.audio++
				if req.Args == "" {
					return "", domain.UsageError("missing text")
				}
				return "", nil
			},
		}},
	})
	require.NoError(t, err)

	resolver := usecase.NewResolverUsecase(catalog, nil, 0, "unknown command", logger)
	dispatcher := usecase.NewDispatcherUsecase(repos.User, repos.Bot, repos.Group, repos.ExecLog, f.platform, catalog, msgs.DispatcherMessages(), logger)
	membership := usecase.NewMembershipUsecase(f.policy, guard, f.platform, logger)

	f.pipeline = NewPipeline(f.policy, guard, f.limiter, resolver, dispatcher, membership, f.platform, "!", PipelineReplies{
		RateLimited:      "too many commands, wait {seconds}s",
		PermissionDenied: "{command} is not for you",
		GroupOnly:        "{command} only works in groups",
		CommandBlocked:   "{command} is blocked here",
	}, NewMetrics(prometheus.NewRegistry()), logger)
	return f
}

func (f *botFixture) send(chatID, sender, text string) {
	chatType := domain.ChatTypeGroup
	if chatID == "" {
		chatID = "oc_p2p_" + sender
		chatType = domain.ChatTypeP2P
	}
	f.pipeline.Handle(context.Background(), domain.NewMessageEvent(&domain.RawMessage{
		ID:         "om_" + sender + "_" + text,
		ChatID:     chatID,
		ChatType:   chatType,
		SenderID:   sender,
		SenderName: sender,
		MsgType:    "text",
		Text:       text,
		CreateTime: time.Now(),
	}))
}

func (f *botFixture) sendMentioning(chatID, sender, text string, mentions ...string) {
	f.pipeline.Handle(context.Background(), domain.NewMessageEvent(&domain.RawMessage{
		ID:         "om_" + sender + "_" + text,
		ChatID:     chatID,
		ChatType:   domain.ChatTypeGroup,
		SenderID:   sender,
		SenderName: sender,
		MsgType:    "text",
		Text:       text,
		Mentions:   mentions,
		CreateTime: time.Now(),
	}))
}

// setGroup seeds group metadata as the platform would report it
func (f *botFixture) setGroup(t *testing.T, groupID string, mutate func(*domain.GroupPolicy)) {
	t.Helper()
	_, err := f.policy.UpdateGroup(context.Background(), groupID, func(p *domain.GroupPolicy) error {
		mutate(p)
		return nil
	})
	require.NoError(t, err)
}

func (f *botFixture) group(t *testing.T, groupID string) *domain.GroupPolicy {
	t.Helper()
	g, err := f.policy.Group(context.Background(), groupID)
	require.NoError(t, err)
	return g
}

func (f *botFixture) claimOwner(t *testing.T, userID string) {
	t.Helper()
	ok, err := f.policy.ClaimOwner(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, ok)
}

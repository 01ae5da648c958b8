package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
	"github.com/devricklin/feishu-guard-bot/internal/data"
)

func newTestServer(t *testing.T, status *StatusClient) (*PolicyServer, *data.Repositories) {
	t.Helper()
	repos, err := data.NewPolicyRepositories(filepath.Join(t.TempDir(), "guard.db"))
	if err != nil {
		t.Fatalf("Failed to open repositories: %v", err)
	}
	t.Cleanup(func() { repos.Close() })

	policy := usecase.NewPolicyUsecase(repos.Group, repos.Bot, repos.User)
	if _, err := policy.Group(context.Background(), "oc_1"); err != nil {
		t.Fatalf("Failed to seed group: %v", err)
	}
	return NewPolicyServer(policy, repos.Group, repos.ExecLog, status, zap.NewNop()), repos
}

func TestPolicyServer_SetAntiLink(t *testing.T) {
	s, repos := newTestServer(t, nil)
	ctx := context.Background()

	_, res, err := s.setAntiLink(ctx, nil, AntiLinkInput{GroupID: "oc_1", Enabled: true, Exceptions: []string{"Feishu.cn"}})
	if err != nil || !res.Success {
		t.Fatalf("Expected success, got %+v %v", res, err)
	}

	g, _ := repos.Group.Get(ctx, "oc_1")
	if !g.AntiLink.Enabled {
		t.Error("Expected anti-link enabled")
	}
	if len(g.AntiLink.Exceptions) != 1 || g.AntiLink.Exceptions[0] != "feishu.cn" {
		t.Errorf("Unexpected exceptions %v", g.AntiLink.Exceptions)
	}
}

func TestPolicyServer_UnknownGroupRejected(t *testing.T) {
	s, repos := newTestServer(t, nil)
	ctx := context.Background()

	_, res, _ := s.setWelcome(ctx, nil, WelcomeInput{GroupID: "oc_typo", Enabled: true, Text: "hi"})
	if res.Success || res.Error == "" {
		t.Fatalf("Expected failure for unknown group, got %+v", res)
	}

	g, _ := repos.Group.Get(ctx, "oc_typo")
	if g != nil {
		t.Error("Expected no policy to be created for an unknown group")
	}
}

func TestPolicyServer_SetMember(t *testing.T) {
	s, repos := newTestServer(t, nil)
	ctx := context.Background()

	for _, action := range []string{"mute", "blacklist"} {
		if _, res, _ := s.setMember(ctx, nil, MemberInput{GroupID: "oc_1", UserID: "ou_a", Action: action}); !res.Success {
			t.Fatalf("%s failed: %s", action, res.Error)
		}
	}
	g, _ := repos.Group.Get(ctx, "oc_1")
	if !g.IsMuted("ou_a") || !g.IsBlacklisted("ou_a") {
		t.Errorf("Expected ou_a muted and blacklisted, got %+v", g)
	}

	_, res, _ := s.setMember(ctx, nil, MemberInput{GroupID: "oc_1", UserID: "ou_a", Action: "kick"})
	if res.Success {
		t.Error("Expected unknown action to fail")
	}
}

func TestPolicyServer_SetCommands(t *testing.T) {
	s, repos := newTestServer(t, nil)
	ctx := context.Background()
	on := true

	_, res, _ := s.setCommands(ctx, nil, CommandsInput{GroupID: "oc_1", Block: "Audio", CommandMute: &on})
	if !res.Success {
		t.Fatalf("Expected success, got %s", res.Error)
	}

	g, _ := repos.Group.Get(ctx, "oc_1")
	if !g.IsCommandBlocked("audio") || !g.CommandMute {
		t.Errorf("Unexpected command settings %+v", g)
	}
}

func TestPolicyServer_WordFilterAndGetGroup(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx := context.Background()

	s.setWordFilter(ctx, nil, WordFilterInput{GroupID: "oc_1", Enabled: true, Add: []string{"darn", "heck"}})
	s.setWordFilter(ctx, nil, WordFilterInput{GroupID: "oc_1", Enabled: true, Remove: []string{"heck"}})
	s.setAntiFlood(ctx, nil, AntiFloodInput{GroupID: "oc_1", Enabled: true, MaxMessages: 4, IntervalSeconds: 30})

	_, out, _ := s.getGroup(ctx, nil, GroupInput{GroupID: "oc_1"})
	if out.Group == nil {
		t.Fatalf("Expected group, got error %s", out.Error)
	}
	if !out.Group.WordFilter || len(out.Group.FilteredWords) != 1 || out.Group.FilteredWords[0] != "darn" {
		t.Errorf("Unexpected word filter %+v", out.Group)
	}
	if out.Group.FloodMax != 4 || out.Group.FloodSeconds != 30 {
		t.Errorf("Unexpected flood settings %d/%d", out.Group.FloodMax, out.Group.FloodSeconds)
	}
}

func TestPolicyServer_ListGroups(t *testing.T) {
	s, _ := newTestServer(t, nil)

	_, out, _ := s.listGroups(context.Background(), nil, ListGroupsInput{})
	if len(out.Groups) != 1 || out.Groups[0].GroupID != "oc_1" {
		t.Errorf("Unexpected groups %+v", out.Groups)
	}
}

func TestPolicyServer_RecentCommands(t *testing.T) {
	s, repos := newTestServer(t, nil)
	ctx := context.Background()
	repos.ExecLog.Append(ctx, &domain.ExecRecord{ID: "e1", Actor: "ou_a", Command: "ping", ChatID: "oc_1", Success: true, CreatedAt: time.Now()})

	_, out, _ := s.recentCommands(ctx, nil, RecentCommandsInput{})
	if len(out.Records) != 1 || out.Records[0].Command != "ping" {
		t.Errorf("Unexpected records %+v", out.Records)
	}
}

func TestPolicyServer_BotStatusIncludesLiveState(t *testing.T) {
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(BotStatus{State: "live", Queued: 0, BotID: "ou_bot"})
	}))
	defer bot.Close()

	s, _ := newTestServer(t, NewStatusClient(bot.URL+"/"))
	ctx := context.Background()
	s.setUserBlocked(ctx, nil, UserBlockedInput{UserID: "ou_spam", Blocked: true})

	_, out, _ := s.botStatus(ctx, nil, BotStatusInput{})
	if out.Live == nil || out.Live.State != "live" {
		t.Fatalf("Expected live status, got %+v", out)
	}
	if len(out.Blocked) != 1 || out.Blocked[0] != "ou_spam" {
		t.Errorf("Unexpected blocked list %v", out.Blocked)
	}
}

func TestPolicyServer_BotStatusWhenBotDown(t *testing.T) {
	s, _ := newTestServer(t, NewStatusClient("http://127.0.0.1:1"))

	_, out, _ := s.botStatus(context.Background(), nil, BotStatusInput{})
	if out.Live != nil || out.LiveError == "" {
		t.Errorf("Expected a live error when the bot is unreachable, got %+v", out)
	}
}

func TestPolicyServer_ToolsListed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	ss, err := s.Server().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	defer ss.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"guard_list_groups", "guard_set_anti_link", "guard_set_member", "guard_bot_status"} {
		if !names[want] {
			t.Errorf("Expected tool %s to be registered", want)
		}
	}
}

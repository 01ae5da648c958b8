package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
)

func noopHandler(ctx context.Context, req *domain.CommandRequest) (string, error) { return "", nil }

func newTestCatalog(t *testing.T, names ...string) *domain.Catalog {
	t.Helper()
	specs := make([]domain.CommandSpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, domain.CommandSpec{Name: n, Handler: noopHandler})
	}
	c, err := domain.NewCatalog(domain.Registry{Name: "test", Commands: specs})
	require.NoError(t, err)
	return c
}

func TestResolve_Exact(t *testing.T) {
	uc := NewResolverUsecase(newTestCatalog(t, "ssf", "save", "s"), nil, 0, "", zap.NewNop())

	res, ok := uc.Resolve("!", "!ssf")
	require.True(t, ok)
	assert.Equal(t, "ssf", res.Name)
	assert.False(t, res.Fuzzy)

	res, ok = uc.Resolve("!", "SAVE")
	require.True(t, ok)
	assert.Equal(t, "save", res.Name)
}

func TestResolve_FuzzyAcceptance(t *testing.T) {
	uc := NewResolverUsecase(newTestCatalog(t, "ssf", "save", "s"), nil, 0, "", zap.NewNop())

	res, ok := uc.Resolve("!", "sav")
	require.True(t, ok, "sav should resolve to save")
	assert.Equal(t, "save", res.Name)
	assert.True(t, res.Fuzzy)

	_, ok = NewResolverUsecase(newTestCatalog(t, "s"), nil, 0, "", zap.NewNop()).Resolve("!", "d")
	assert.False(t, ok, "d must not resolve to s")
}

func TestResolve_LengthRules(t *testing.T) {
	tests := []struct {
		name     string
		commands []string
		typed    string
		want     string
	}{
		{"two-char short typo", []string{"ai"}, "aii", "ai"},
		{"two-char long token rejected", []string{"ai"}, "aiii", ""},
		{"transposition", []string{"sticker"}, "stciker", "sticker"},
		{"missing letter", []string{"sticker"}, "sticer", "sticker"},
		{"empty token", []string{"menu"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewResolverUsecase(newTestCatalog(t, tt.commands...), nil, 0, "", zap.NewNop())
			res, ok := uc.Resolve("!", tt.typed)
			if tt.want == "" {
				assert.False(t, ok, "unexpected resolution %q", res.Name)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Name)
		})
	}
}

func TestResolve_OverlapRejectsWithLooseThreshold(t *testing.T) {
	uc := NewResolverUsecase(newTestCatalog(t, "mute"), nil, 0.5, "", zap.NewNop())

	// Two substitutions pass a 0.5 edit score but share only half the characters
	_, ok := uc.Resolve("!", "mabe")
	assert.False(t, ok)

	res, ok := uc.Resolve("!", "mtue")
	require.True(t, ok)
	assert.Equal(t, "mute", res.Name)
}

func TestOverlapSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, overlapSimilarity("sticker", "stciker"))
	assert.InDelta(t, 0.5, overlapSimilarity("mabe", "mute"), 1e-9)
	assert.Zero(t, overlapSimilarity("", "mute"))
}

func TestResolve_TieKeepsRegistryOrder(t *testing.T) {
	uc := NewResolverUsecase(newTestCatalog(t, "mute", "mutt"), nil, 0, "", zap.NewNop())

	res, ok := uc.Resolve("!", "mutx")
	require.True(t, ok)
	assert.Equal(t, "mute", res.Name)
}

func TestSuggest_FallbackOnAssistantError(t *testing.T) {
	assistant := &mockAssistant{err: errors.New("upstream down")}
	uc := NewResolverUsecase(newTestCatalog(t, "menu"), assistant, 0, "try !menu", zap.NewNop())

	msg := &domain.NormalizedMessage{Body: "!what", Command: "what", Prefix: "!", IsGroupAdmin: true}
	assert.Equal(t, "try !menu", uc.Suggest(context.Background(), msg))
	assert.Equal(t, domain.RoleGroupModerator, assistant.last.Role)
	assert.Equal(t, []string{"menu"}, assistant.last.Commands)
}

func TestSuggest_AssistantReply(t *testing.T) {
	uc := NewResolverUsecase(newTestCatalog(t, "menu"), &mockAssistant{reply: "Use !menu"}, 0, "fallback", zap.NewNop())

	got := uc.Suggest(context.Background(), &domain.NormalizedMessage{Body: "!help"})
	assert.Equal(t, "Use !menu", got)
}

func TestSuggest_NoAssistant(t *testing.T) {
	uc := NewResolverUsecase(newTestCatalog(t, "menu"), nil, 0, "fallback", zap.NewNop())
	assert.Equal(t, "fallback", uc.Suggest(context.Background(), &domain.NormalizedMessage{}))
}

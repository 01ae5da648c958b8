package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
)

func TestLoadAuthState_GeneratesOnceThenReloads(t *testing.T) {
	store := newMockCredentialRepo()
	uc := NewCredentialUsecase(store, zap.NewNop())
	ctx := context.Background()

	first, err := uc.LoadAuthState(ctx)
	require.NoError(t, err)
	assert.Len(t, first.NoiseKey.Public, 32)
	assert.Len(t, first.IdentityKey.Private, 32)
	assert.Len(t, first.AdvSecretKey, 32)
	assert.NotEmpty(t, first.SignedPreKey.Signature)
	assert.LessOrEqual(t, first.RegistrationID, uint16(16383))
	assert.Equal(t, 1, store.writes)

	second, err := uc.LoadAuthState(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.writes, "existing creds are not regenerated")
}

func TestKeyStoreSet_ConcurrentBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMockCredentialRepo()
	uc := NewCredentialUsecase(store, zap.NewNop())
	ctx := context.Background()

	batch := domain.KeyBatch{"pre-key": {}, "session": {}}
	for i := 0; i < 50; i++ {
		batch["pre-key"][fmt.Sprint(i)] = []byte(fmt.Sprintf("pre-%d", i))
		batch["session"][fmt.Sprint(i)] = []byte(fmt.Sprintf("sess-%d", i))
	}
	require.NoError(t, uc.Set(ctx, batch))

	for i := 0; i < 50; i++ {
		got, err := uc.Get(ctx, "pre-key", []string{fmt.Sprint(i)})
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("pre-%d", i)), got[fmt.Sprint(i)])
	}

	// nil removes
	require.NoError(t, uc.Set(ctx, domain.KeyBatch{"session": {"3": nil}}))
	got, err := uc.Get(ctx, "session", []string{"3", "4"})
	require.NoError(t, err)
	assert.NotContains(t, got, "3")
	assert.Equal(t, []byte("sess-4"), got["4"])
}

func TestKeyStoreSet_PartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMockCredentialRepo()
	store.failKey = domain.KeyName("session", "bad")
	uc := NewCredentialUsecase(store, zap.NewNop())
	ctx := context.Background()

	err := uc.Set(ctx, domain.KeyBatch{"session": {"bad": []byte("x"), "good": []byte("y")}})

	var infra *domain.InfrastructureFailure
	require.ErrorAs(t, err, &infra)
	got, err := uc.Get(ctx, "session", []string{"good"})
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), got["good"], "other keys in the batch still land")
}

package data

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
)

func openTestCredentials(t *testing.T) repo.CredentialRepo {
	t.Helper()
	store, err := NewCredentialRepo(filepath.Join(t.TempDir(), "creds"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCredentialRepo_ReadWriteRemove(t *testing.T) {
	store := openTestCredentials(t)
	ctx := context.Background()

	_, err := store.Read(ctx, "creds")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	require.NoError(t, store.Write(ctx, "creds", []byte{1, 2, 3}))
	blob, err := store.Read(ctx, "creds")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, blob)

	require.NoError(t, store.Remove(ctx, "creds"))
	_, err = store.Read(ctx, "creds")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	// Removing an absent key is not an error
	require.NoError(t, store.Remove(ctx, "creds"))
}

func TestCredentialRepo_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "creds")
	ctx := context.Background()

	store, err := NewCredentialRepo(dir)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, "pre-key-1", []byte("secret")))
	require.NoError(t, store.Close())

	store, err = NewCredentialRepo(dir)
	require.NoError(t, err)
	defer store.Close()

	blob, err := store.Read(ctx, "pre-key-1")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(blob))
}

func TestCredentialRepo_ConcurrentWriters(t *testing.T) {
	store := openTestCredentials(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("session-%d", i%5)
			assert.NoError(t, store.Write(ctx, key, []byte(key)))
			blob, err := store.Read(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, key, string(blob))
		}()
	}
	wg.Wait()
}

func TestCredentialRepo_CanceledContext(t *testing.T) {
	store := openTestCredentials(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Write(ctx, "k", []byte("v")), context.Canceled)
}

func TestTokenCache_Expiry(t *testing.T) {
	store := openTestCredentials(t)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	cache := NewTokenCache(usecase.NewCredentialUsecase(store, zap.NewNop()))
	cache.now = func() time.Time { return now }

	got, err := cache.Get(ctx, "tenant")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, cache.Set(ctx, "tenant", "t-123", time.Hour))
	got, err = cache.Get(ctx, "tenant")
	require.NoError(t, err)
	assert.Equal(t, "t-123", got)

	now = now.Add(time.Hour)
	got, err = cache.Get(ctx, "tenant")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTokenCache_CorruptEntryIsMiss(t *testing.T) {
	store := openTestCredentials(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, domain.KeyName(tokenCategory, "tenant"), []byte{0xff, 0x00}))
	got, err := NewTokenCache(usecase.NewCredentialUsecase(store, zap.NewNop())).Get(ctx, "tenant")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTokenCache_StoresUnderCredentialKey(t *testing.T) {
	store := openTestCredentials(t)
	ctx := context.Background()

	cache := NewTokenCache(usecase.NewCredentialUsecase(store, zap.NewNop()))
	require.NoError(t, cache.Set(ctx, "app", "a-1", time.Hour))

	blob, err := store.Read(ctx, domain.KeyName(tokenCategory, "app"))
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
}

package data

import (
	"context"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/infra/codec"
)

const tokenCategory = "lark-token"

// KeyStore is the batched key access the token cache goes through
type KeyStore interface {
	Get(ctx context.Context, category string, ids []string) (map[string][]byte, error)
	Set(ctx context.Context, batch domain.KeyBatch) error
}

type cachedToken struct {
	Value     string `cbor:"1,keyasint"`
	ExpiresAt int64  `cbor:"2,keyasint"`
}

// TokenCache persists Feishu access tokens in the credential store so they survive restarts.
// It satisfies larkcore.Cache.
type TokenCache struct {
	keys KeyStore
	now  func() time.Time
}

// NewTokenCache creates a token cache over the credential key store
func NewTokenCache(keys KeyStore) *TokenCache {
	return &TokenCache{keys: keys, now: time.Now}
}

// Set stores value until expire elapses
func (c *TokenCache) Set(ctx context.Context, key string, value string, expire time.Duration) error {
	blob, err := codec.Marshal(cachedToken{Value: value, ExpiresAt: c.now().Add(expire).UnixMilli()})
	if err != nil {
		return err
	}
	return c.keys.Set(ctx, domain.KeyBatch{tokenCategory: {key: blob}})
}

// Get returns the cached value, empty when absent or expired
func (c *TokenCache) Get(ctx context.Context, key string) (string, error) {
	found, err := c.keys.Get(ctx, tokenCategory, []string{key})
	if err != nil {
		return "", err
	}
	blob, ok := found[key]
	if !ok {
		return "", nil
	}

	var tok cachedToken
	if err := codec.Unmarshal(blob, &tok); err != nil {
		// Unreadable entries are treated as a miss and overwritten on the next Set
		return "", nil
	}
	if c.now().UnixMilli() >= tok.ExpiresAt {
		return "", nil
	}
	return tok.Value, nil
}

package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// credentialRepo implements the credential store on pebble.
// One mutex serializes every call, independent of key.
type credentialRepo struct {
	mu sync.Mutex
	db *pebble.DB
}

// NewCredentialRepo opens the credential store at dir
func NewCredentialRepo(dir string) (repo.CredentialRepo, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return &credentialRepo{db: db}, nil
}

// Read returns a copy of the stored blob
func (r *credentialRepo) Read(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, closer, err := r.db.Get([]byte(key))
	if closer != nil {
		defer closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	// Pebble data is only valid until closer is called
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write stores blob and syncs before returning
func (r *credentialRepo) Write(ctx context.Context, key string, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.db.Set([]byte(key), blob, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes key and syncs before returning
func (r *credentialRepo) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying store
func (r *credentialRepo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

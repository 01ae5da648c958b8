package usecase

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/sync/errgroup"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
	"github.com/devricklin/feishu-guard-bot/internal/infra/codec"
)

// CredentialUsecase loads and persists session material through the credential store
type CredentialUsecase struct {
	store  repo.CredentialRepo
	logger *zap.Logger
}

// NewCredentialUsecase creates a new credential usecase
func NewCredentialUsecase(store repo.CredentialRepo, logger *zap.Logger) *CredentialUsecase {
	return &CredentialUsecase{store: store, logger: logger.Named("credentials")}
}

// LoadAuthState reads the creds entry, synthesizing and persisting defaults if absent
func (uc *CredentialUsecase) LoadAuthState(ctx context.Context) (*domain.Creds, error) {
	blob, err := uc.store.Read(ctx, domain.CredsKey)
	switch {
	case err == nil:
		var creds domain.Creds
		if err := codec.Unmarshal(blob, &creds); err != nil {
			return nil, fmt.Errorf("decode creds: %w", err)
		}
		return &creds, nil
	case errors.Is(err, domain.ErrCredentialNotFound):
	default:
		return nil, domain.Infra("read creds", err)
	}

	creds, err := InitCreds()
	if err != nil {
		return nil, fmt.Errorf("init creds: %w", err)
	}
	if err := uc.SaveCreds(ctx, creds); err != nil {
		return nil, err
	}
	uc.logger.Info("generated new credentials", zap.Uint16("registration_id", creds.RegistrationID))
	return creds, nil
}

// SaveCreds persists creds
func (uc *CredentialUsecase) SaveCreds(ctx context.Context, creds *domain.Creds) error {
	blob, err := codec.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode creds: %w", err)
	}
	if err := uc.store.Write(ctx, domain.CredsKey, blob); err != nil {
		return domain.Infra("write creds", err)
	}
	return nil
}

// Get reads the keys of one category. Absent keys are left out of the result.
func (uc *CredentialUsecase) Get(ctx context.Context, category string, ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		blob, err := uc.store.Read(ctx, domain.KeyName(category, id))
		if errors.Is(err, domain.ErrCredentialNotFound) {
			continue
		}
		if err != nil {
			return nil, domain.Infra("read key "+domain.KeyName(category, id), err)
		}
		out[id] = blob
	}
	return out, nil
}

// Set applies a batch of writes and removals concurrently.
// Each key is its own store call; there is no cross-key transaction.
// Set waits for every call and returns the first error.
func (uc *CredentialUsecase) Set(ctx context.Context, batch domain.KeyBatch) error {
	var g errgroup.Group

	for category, entries := range batch {
		for id, value := range entries {
			key := domain.KeyName(category, id)
			g.Go(func() error {
				if value == nil {
					return uc.store.Remove(ctx, key)
				}
				return uc.store.Write(ctx, key, value)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return domain.Infra("set keys", err)
	}
	return nil
}

// InitCreds synthesizes fresh session material
func InitCreds() (*domain.Creds, error) {
	noise, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	identity, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	preKey, err := newKeyPair()
	if err != nil {
		return nil, err
	}

	// Pre-key signature from an Ed25519 key seeded by the identity private key
	signer := ed25519.NewKeyFromSeed(identity.Private)
	signature := ed25519.Sign(signer, preKey.Public)

	var regBuf [2]byte
	if _, err := rand.Read(regBuf[:]); err != nil {
		return nil, fmt.Errorf("registration id: %w", err)
	}

	adv := make([]byte, 32)
	if _, err := rand.Read(adv); err != nil {
		return nil, fmt.Errorf("adv secret: %w", err)
	}

	return &domain.Creds{
		NoiseKey:       noise,
		IdentityKey:    identity,
		SignedPreKey:   domain.SignedKeyPair{KeyPair: preKey, Signature: signature, KeyID: 1},
		RegistrationID: binary.BigEndian.Uint16(regBuf[:]) & 16383,
		AdvSecretKey:   adv,
		CreatedAt:      time.Now().Unix(),
	}, nil
}

func newKeyPair() (domain.KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate private key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("derive public key: %w", err)
	}
	return domain.KeyPair{Private: priv, Public: pub}, nil
}

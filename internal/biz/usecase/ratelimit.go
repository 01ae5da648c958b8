package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// RateLimitConfig configures the command rate limiter
type RateLimitConfig struct {
	Enabled      bool
	MaxPerMinute int
	BlockTime    time.Duration
}

// RateLimitUsecase enforces per-user command rates
type RateLimitUsecase struct {
	userRepo repo.UserRepo

	mu     sync.RWMutex
	config RateLimitConfig
}

// NewRateLimitUsecase creates a rate limiter
func NewRateLimitUsecase(userRepo repo.UserRepo, config RateLimitConfig) *RateLimitUsecase {
	return &RateLimitUsecase{userRepo: userRepo, config: config}
}

// CheckAndConsume counts one command attempt by userID at now
func (uc *RateLimitUsecase) CheckAndConsume(ctx context.Context, userID string, now time.Time) (domain.RateDecision, error) {
	cfg := uc.Config()
	if !cfg.Enabled {
		return domain.RateDecision{Allowed: true}, nil
	}

	user, err := uc.userRepo.Ensure(ctx, userID, "")
	if err != nil {
		return domain.RateDecision{}, fmt.Errorf("load user: %w", err)
	}

	window, decision := user.Rate.Consume(now, domain.RateLimit{
		MaxPerMinute: cfg.MaxPerMinute,
		BlockTime:    cfg.BlockTime,
	})

	// A rejected attempt while limited leaves the window untouched
	if window != user.Rate {
		if err := uc.userRepo.SaveRate(ctx, userID, window); err != nil {
			return domain.RateDecision{}, fmt.Errorf("save rate window: %w", err)
		}
	}
	return decision, nil
}

// Config returns the limiter settings
func (uc *RateLimitUsecase) Config() RateLimitConfig {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.config
}

// SetConfig replaces the limiter settings at runtime
func (uc *RateLimitUsecase) SetConfig(config RateLimitConfig) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.config = config
}

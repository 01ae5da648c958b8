package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// DefaultFuzzyThreshold is the maximum normalized edit distance for 3+ character commands
const DefaultFuzzyThreshold = 0.4

// Resolution is a command token mapped to a registered command
type Resolution struct {
	Name  string // Canonical command name
	Typed string // Token as typed, prefix stripped
	Entry *domain.CatalogEntry
	Fuzzy bool
}

// ResolverUsecase maps command tokens to registered commands
type ResolverUsecase struct {
	catalog       *domain.Catalog
	assistant     repo.AssistantRepo
	threshold     float64
	fallback      string
	assistTimeout time.Duration
	logger        *zap.Logger
}

// NewResolverUsecase creates a resolver over catalog.
// assistant may be nil, in which case misses always get the fallback text.
func NewResolverUsecase(
	catalog *domain.Catalog,
	assistant repo.AssistantRepo,
	threshold float64,
	fallback string,
	logger *zap.Logger,
) *ResolverUsecase {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &ResolverUsecase{
		catalog:       catalog,
		assistant:     assistant,
		threshold:     threshold,
		fallback:      fallback,
		assistTimeout: 20 * time.Second,
		logger:        logger.Named("resolver"),
	}
}

// Catalog returns the command catalog
func (uc *ResolverUsecase) Catalog() *domain.Catalog {
	return uc.catalog
}

// Resolve looks up rawToken exactly, then fuzzily.
// A fuzzy hit is returned as if the canonical name had been typed.
func (uc *ResolverUsecase) Resolve(prefix, rawToken string) (Resolution, bool) {
	typed := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(rawToken, prefix)))
	if typed == "" {
		return Resolution{}, false
	}

	if entry, ok := uc.catalog.Lookup(typed); ok {
		return Resolution{Name: entry.Spec.Name, Typed: typed, Entry: entry}, true
	}

	bestName := ""
	bestScore := 2.0
	for _, name := range uc.catalog.Names() {
		score := fuzzyScore(typed, name)
		if !acceptFuzzy(typed, name, score, uc.threshold) {
			continue
		}
		// Strictly lower wins so ties keep registry order
		if score < bestScore {
			bestName, bestScore = name, score
		}
	}
	if bestName == "" {
		return Resolution{}, false
	}

	entry, _ := uc.catalog.Lookup(bestName)
	uc.logger.Debug("fuzzy resolution",
		zap.String("typed", typed),
		zap.String("command", bestName),
		zap.Float64("score", bestScore))
	return Resolution{Name: bestName, Typed: typed, Entry: entry, Fuzzy: true}, true
}

// Suggest asks the assistant for help text after a miss.
// Any assistant failure degrades to the static fallback.
func (uc *ResolverUsecase) Suggest(ctx context.Context, msg *domain.NormalizedMessage) string {
	if uc.assistant == nil {
		return uc.fallback
	}

	ctx, cancel := context.WithTimeout(ctx, uc.assistTimeout)
	defer cancel()

	text, err := uc.assistant.Suggest(ctx, repo.AssistantRequest{
		Text:     msg.Body,
		Role:     RolesOf(msg).Highest(),
		Prefix:   msg.Prefix,
		Commands: uc.catalog.Names(),
	})
	if err != nil {
		uc.logger.Warn("assistant failed, using fallback", zap.String("command", msg.Command), zap.Error(err))
		return uc.fallback
	}
	if strings.TrimSpace(text) == "" {
		return uc.fallback
	}
	return text
}

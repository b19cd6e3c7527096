package services

import (
	"context"
	"log/slog"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/devilmonastery/fedmet/internal/config"
	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
)

// TopFederatedService answers "which entities belong to the most
// federations". The underlying query joins the whole membership table,
// so results are cached per requested limit with a TTL; a refresh run
// landing mid-TTL serves slightly stale counts, which is acceptable for
// a popularity listing.
type TopFederatedService struct {
	entityRepo repositories.EntityRepository
	cache      *expirable.LRU[int, []*entities.Entity]
	log        *slog.Logger
}

// NewTopFederatedService creates a new most-federated listing service
func NewTopFederatedService(
	entityRepo repositories.EntityRepository,
	cfg config.TopCacheConfig,
	log *slog.Logger,
) *TopFederatedService {
	return &TopFederatedService{
		entityRepo: entityRepo,
		cache:      expirable.NewLRU[int, []*entities.Entity](cfg.Size, nil, cfg.TTL),
		log:        log,
	}
}

// MostFederated returns up to limit entities ordered by federation
// count, most first.
func (s *TopFederatedService) MostFederated(ctx context.Context, limit int) ([]*entities.Entity, error) {
	if cached, ok := s.cache.Get(limit); ok {
		return cached, nil
	}

	top, err := s.entityRepo.MostFederated(ctx, limit)
	if err != nil {
		return nil, err
	}

	s.cache.Add(limit, top)
	s.log.Debug("most-federated listing computed", slog.Int("limit", limit), slog.Int("results", len(top)))
	return top, nil
}

// Invalidate drops all cached listings. Called after operations that
// change memberships in bulk, like deleting a federation.
func (s *TopFederatedService) Invalidate() {
	s.cache.Purge()
}

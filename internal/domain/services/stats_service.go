package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/devilmonastery/fedmet/internal/config"
	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
	"github.com/devilmonastery/fedmet/internal/pkg/idgen"
)

// StatsService records the per-federation feature counts once per
// refresh run. A feature counts entities carrying a descriptor type,
// optionally narrowed to entities that also speak a given protocol.
type StatsService struct {
	entityRepo repositories.EntityRepository
	statRepo   repositories.EntityStatRepository
	features   map[string]config.FeatureConfig
	log        *slog.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(
	entityRepo repositories.EntityRepository,
	statRepo repositories.EntityStatRepository,
	features map[string]config.FeatureConfig,
	log *slog.Logger,
) *StatsService {
	return &StatsService{
		entityRepo: entityRepo,
		statRepo:   statRepo,
		features:   features,
		log:        log,
	}
}

// Record counts every configured feature over the federation's current
// entity set and appends one stat row per feature, all stamped with the
// same run timestamp.
func (s *StatsService) Record(ctx context.Context, fed *entities.Federation, at time.Time) error {
	members, err := s.entityRepo.ListByFederation(ctx, fed.ID)
	if err != nil {
		return fmt.Errorf("failed to list federation entities: %w", err)
	}

	counts := s.Count(members)

	rows := make([]*entities.EntityStat, 0, len(counts))
	for _, feature := range orderedFeatures(counts) {
		rows = append(rows, &entities.EntityStat{
			ID:           idgen.GenerateID(),
			FederationID: fed.ID,
			Feature:      feature,
			Value:        counts[feature],
			Time:         at,
		})
	}

	if err := s.statRepo.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("failed to store statistics: %w", err)
	}

	s.log.Debug("statistics recorded",
		slog.String("federation", fed.Slug),
		slog.Int("features", len(rows)),
		slog.Int("entities", len(members)))
	return nil
}

// Count computes the feature counts over an entity set without
// touching the database.
func (s *StatsService) Count(members []*entities.Entity) map[string]int64 {
	counts := make(map[string]int64, len(s.features))
	for name, feature := range s.features {
		var n int64
		for _, e := range members {
			if !e.HasType(feature.Type) {
				continue
			}
			if feature.Protocol != "" && !e.HasProtocol(feature.Protocol) {
				continue
			}
			n++
		}
		counts[name] = n
	}
	return counts
}

func orderedFeatures(counts map[string]int64) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
	"github.com/devilmonastery/fedmet/internal/metadata"
	"github.com/devilmonastery/fedmet/internal/pkg/idgen"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

// ReconcileService diffs a freshly parsed entity set against the
// persisted catalog for one federation: detach entities that left the
// document, create or update entities present in it, and flag orphans.
type ReconcileService struct {
	entityRepo repositories.EntityRepository
	typeRepo   repositories.EntityTypeRepository
	log        *slog.Logger
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(
	entityRepo repositories.EntityRepository,
	typeRepo repositories.EntityTypeRepository,
	log *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		entityRepo: entityRepo,
		typeRepo:   typeRepo,
		log:        log,
	}
}

// ReconcileResult reports the outcome of one federation reconciliation
type ReconcileResult struct {
	Removed int
	Updated int
	Orphans []string // entityIDs that now belong to zero federations
}

// Reconcile brings the persisted entity set of fed in line with the
// parsed document. The removal pass always runs before the add/update
// pass so an entity dropped from the document is never re-evaluated
// through a stale membership.
func (s *ReconcileService) Reconcile(ctx context.Context, fed *entities.Federation, doc *metadata.DocumentParser) (*ReconcileResult, error) {
	currentIDs, err := doc.EntityIDs()
	if err != nil {
		return nil, err
	}
	idSet := make(map[string]bool, len(currentIDs))
	for _, id := range currentIDs {
		idSet[id] = true
	}

	result := &ReconcileResult{}

	if err := s.removeDeparted(ctx, fed, idSet, result); err != nil {
		return nil, err
	}
	if err := s.addAndUpdate(ctx, fed, doc, currentIDs, result); err != nil {
		return nil, err
	}

	metrics.EntitiesReconciled.WithLabelValues(fed.Slug, "removed").Add(float64(result.Removed))
	metrics.EntitiesReconciled.WithLabelValues(fed.Slug, "updated").Add(float64(result.Updated))

	return result, nil
}

// removeDeparted detaches stored entities that are no longer present in
// the document. The entity row itself stays; an entity left with zero
// memberships is only flagged as orphan, hard deletion is a separate
// administrative action.
func (s *ReconcileService) removeDeparted(ctx context.Context, fed *entities.Federation, currentIDs map[string]bool, result *ReconcileResult) error {
	stored, err := s.entityRepo.ListByFederation(ctx, fed.ID)
	if err != nil {
		return fmt.Errorf("failed to list federation entities: %w", err)
	}

	for _, entity := range stored {
		if currentIDs[entity.EntityID] {
			continue
		}
		if err := s.entityRepo.RemoveFederation(ctx, entity.ID, fed.ID); err != nil {
			return fmt.Errorf("failed to detach entity %s: %w", entity.EntityID, err)
		}
		result.Removed++

		memberships, err := s.entityRepo.FederationIDs(ctx, entity.ID)
		if err != nil {
			return fmt.Errorf("failed to check memberships of %s: %w", entity.EntityID, err)
		}
		if len(memberships) == 0 {
			result.Orphans = append(result.Orphans, entity.EntityID)
			s.log.Warn("orphan entity",
				slog.String("entityid", entity.EntityID),
				slog.String("federation", fed.Slug))
		}
	}

	return nil
}

// addAndUpdate walks every entityID in the document, pulling full
// detail only for entities that exist in it, and persists entities that
// are new or whose identity triple (entityID, display name,
// registration authority) changed.
func (s *ReconcileService) addAndUpdate(ctx context.Context, fed *entities.Federation, doc *metadata.DocumentParser, currentIDs []string, result *ReconcileResult) error {
	existing, err := s.entityRepo.GetByEntityIDs(ctx, currentIDs)
	if err != nil {
		return fmt.Errorf("failed to prefetch entities: %w", err)
	}
	byEntityID := make(map[string]*entities.Entity, len(existing))
	for _, e := range existing {
		byEntityID[e.EntityID] = e
	}

	typeCache, err := s.loadTypeCache(ctx)
	if err != nil {
		return err
	}

	for _, id := range currentIDs {
		parsed, err := doc.Entity(id, true)
		if errors.Is(err, metadata.ErrEntityNotFound) {
			// listed a moment ago but gone from the stream; treat as
			// absent from this document
			s.log.Warn("entity vanished between passes", slog.String("entityid", id))
			continue
		}
		if err != nil {
			return err
		}

		entity, created := byEntityID[id], false
		if entity == nil {
			entity = &entities.Entity{
				ID:        idgen.GenerateID(),
				EntityID:  id,
				CreatedAt: time.Now(),
			}
			created = true
		}

		changed := s.applyParsed(entity, parsed)

		if created {
			if err := s.entityRepo.Create(ctx, entity); err != nil {
				return fmt.Errorf("failed to create entity %s: %w", id, err)
			}
			// documents occasionally list an entityID twice; the second
			// occurrence must see the row created for the first
			byEntityID[id] = entity
		} else if changed {
			if err := s.entityRepo.Update(ctx, entity); err != nil {
				return fmt.Errorf("failed to update entity %s: %w", id, err)
			}
		}
		if created || changed {
			result.Updated++
		}

		// the row exists now, type tags can reference it
		if err := s.attachTypes(ctx, entity, parsed, typeCache); err != nil {
			return err
		}

		if err := s.entityRepo.AddFederation(ctx, entity.ID, fed.ID); err != nil {
			return fmt.Errorf("failed to attach entity %s to federation: %w", id, err)
		}
	}

	return nil
}

// applyParsed folds parsed descriptor fields into the stored entity and
// reports whether the identity triple changed. Display name and
// registration authority only move forward: an absent value in the
// document never erases a previously observed one.
func (s *ReconcileService) applyParsed(entity *entities.Entity, parsed *entities.ParsedEntity) bool {
	changed := entity.EntityID != parsed.EntityID

	if len(parsed.DisplayName) > 0 && !stringMapsEqual(entity.Name, parsed.DisplayName) {
		entity.Name = parsed.DisplayName
		changed = true
	}
	if parsed.RegistrationAuthority != "" && entity.RegistrationAuthority != parsed.RegistrationAuthority {
		entity.RegistrationAuthority = parsed.RegistrationAuthority
		changed = true
	}

	// carried for statistics; not part of the change test
	entity.Protocols = parsed.Protocols
	entity.Scopes = parsed.Scopes
	if parsed.RegistrationInstant != "" {
		entity.RegistrationInstant = parsed.RegistrationInstant
	}
	if changed {
		entity.UpdatedAt = time.Now()
	}
	return changed
}

func (s *ReconcileService) attachTypes(ctx context.Context, entity *entities.Entity, parsed *entities.ParsedEntity, typeCache map[string]*entities.EntityType) error {
	if len(parsed.Types) == 0 {
		return nil
	}

	var typeIDs []string
	for _, xmlName := range parsed.Types {
		etype, ok := typeCache[xmlName]
		if !ok {
			var err error
			etype, err = s.typeRepo.GetOrCreate(ctx, xmlName, metadata.DescriptorTypeDisplay(xmlName))
			if err != nil {
				return fmt.Errorf("failed to get or create type %s: %w", xmlName, err)
			}
			typeCache[xmlName] = etype
		}
		typeIDs = append(typeIDs, etype.ID)
		if !entity.HasType(xmlName) {
			entity.Types = append(entity.Types, xmlName)
		}
	}

	if err := s.entityRepo.AttachTypes(ctx, entity.ID, typeIDs); err != nil {
		return fmt.Errorf("failed to attach types to %s: %w", entity.EntityID, err)
	}
	return nil
}

func (s *ReconcileService) loadTypeCache(ctx context.Context) (map[string]*entities.EntityType, error) {
	known, err := s.typeRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	cache := make(map[string]*entities.EntityType, len(known))
	for _, t := range known {
		cache[t.XMLName] = t
	}
	return cache, nil
}

func stringMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

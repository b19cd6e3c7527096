package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gosimple/slug"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
	"github.com/devilmonastery/fedmet/internal/pkg/idgen"
)

const maxSlugLength = 200

// FederationSlug derives the URL- and filename-safe identifier from a
// federation name.
func FederationSlug(name string) string {
	s := slug.Make(name)
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	return s
}

// FederationService manages the federation catalog: create, update,
// delete, and the administrative orphan purge. Document processing is
// the refresh service's job; here a created or updated federation is
// simply handed to it.
type FederationService struct {
	fedRepo    repositories.FederationRepository
	entityRepo repositories.EntityRepository
	refresh    *RefreshService
	log        *slog.Logger
}

// NewFederationService creates a new federation service
func NewFederationService(
	fedRepo repositories.FederationRepository,
	entityRepo repositories.EntityRepository,
	refresh *RefreshService,
	log *slog.Logger,
) *FederationService {
	return &FederationService{
		fedRepo:    fedRepo,
		entityRepo: entityRepo,
		refresh:    refresh,
		log:        log,
	}
}

// FederationInput carries the operator-editable federation fields. A
// zero value means "leave unchanged" on update; IsInterfederation is a
// pointer for the same reason, nil meaning the flag was not given.
type FederationInput struct {
	Name                  string
	Type                  string
	URL                   string
	MetadataURL           string
	RegistrationAuthority string
	Country               string
	IsInterfederation     *bool
}

// Create registers a federation and immediately refreshes it so the
// catalog reflects its entities without waiting for the next run. The
// row is saved first; a failing initial refresh leaves the federation
// in place for the next run to retry.
func (s *FederationService) Create(ctx context.Context, input FederationInput) (*entities.Federation, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("federation name is required")
	}

	now := time.Now()
	fed := &entities.Federation{
		ID:                    idgen.GenerateID(),
		Name:                  input.Name,
		Slug:                  FederationSlug(input.Name),
		Type:                  input.Type,
		URL:                   input.URL,
		MetadataURL:           input.MetadataURL,
		RegistrationAuthority: input.RegistrationAuthority,
		Country:               input.Country,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if input.IsInterfederation != nil {
		fed.IsInterfederation = *input.IsInterfederation
	}

	if err := s.fedRepo.Create(ctx, fed); err != nil {
		return nil, err
	}
	s.log.Info("federation created",
		slog.String("federation", fed.Slug),
		slog.String("metadata_url", fed.MetadataURL))

	s.refreshNew(ctx, fed)
	return fed, nil
}

// Update applies operator edits to a federation. A name change
// recomputes the slug; a metadata URL change clears the fingerprint so
// the next refresh processes the new source unconditionally.
func (s *FederationService) Update(ctx context.Context, slugName string, input FederationInput) (*entities.Federation, error) {
	fed, err := s.fedRepo.GetBySlug(ctx, slugName)
	if err != nil {
		return nil, err
	}

	if input.Name != "" && input.Name != fed.Name {
		fed.Name = input.Name
		fed.Slug = FederationSlug(input.Name)
	}
	if input.Type != "" {
		fed.Type = input.Type
	}
	if input.URL != "" {
		fed.URL = input.URL
	}
	if input.MetadataURL != "" && input.MetadataURL != fed.MetadataURL {
		fed.MetadataURL = input.MetadataURL
		fed.Fingerprint = ""
	}
	if input.RegistrationAuthority != "" {
		fed.RegistrationAuthority = input.RegistrationAuthority
	}
	if input.Country != "" {
		fed.Country = input.Country
	}
	if input.IsInterfederation != nil {
		fed.IsInterfederation = *input.IsInterfederation
	}
	fed.UpdatedAt = time.Now()

	if err := s.fedRepo.Update(ctx, fed); err != nil {
		return nil, err
	}
	s.log.Info("federation updated", slog.String("federation", fed.Slug))

	s.refreshNew(ctx, fed)
	return fed, nil
}

func (s *FederationService) refreshNew(ctx context.Context, fed *entities.Federation) {
	if s.refresh == nil || fed.MetadataURL == "" {
		return
	}
	if _, err := s.refresh.RefreshFederation(ctx, fed, time.Now().UTC(), true); err != nil {
		s.log.Error("initial refresh failed",
			slog.String("federation", fed.Slug),
			slog.String("error", err.Error()))
	}
}

// Delete removes a federation and hard-deletes any entities orphaned by
// its removal. Entities that still belong to other federations are
// untouched.
func (s *FederationService) Delete(ctx context.Context, slugName string) error {
	fed, err := s.fedRepo.GetBySlug(ctx, slugName)
	if err != nil {
		return err
	}

	if err := s.fedRepo.Delete(ctx, fed.ID); err != nil {
		return err
	}
	s.log.Info("federation deleted", slog.String("federation", fed.Slug))

	purged, err := s.PurgeOrphans(ctx)
	if err != nil {
		return fmt.Errorf("federation deleted but orphan purge failed: %w", err)
	}
	if purged > 0 {
		s.log.Info("orphaned entities purged",
			slog.String("federation", fed.Slug),
			slog.Int("count", purged))
	}
	return nil
}

// PurgeOrphans hard-deletes every entity that belongs to zero
// federations and returns the number removed. This is the only code
// path that deletes entity rows.
func (s *FederationService) PurgeOrphans(ctx context.Context) (int, error) {
	orphans, err := s.entityRepo.ListOrphans(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphans: %w", err)
	}

	for _, entity := range orphans {
		if err := s.entityRepo.Delete(ctx, entity.ID); err != nil {
			return 0, fmt.Errorf("failed to delete orphan %s: %w", entity.EntityID, err)
		}
		s.log.Debug("orphan entity deleted", slog.String("entityid", entity.EntityID))
	}
	return len(orphans), nil
}

// Get retrieves a federation by slug
func (s *FederationService) Get(ctx context.Context, slugName string) (*entities.Federation, error) {
	return s.fedRepo.GetBySlug(ctx, slugName)
}

// List lists all federations
func (s *FederationService) List(ctx context.Context) ([]*entities.Federation, error) {
	return s.fedRepo.List(ctx)
}

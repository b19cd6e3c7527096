package repositories

import (
	"context"
	"time"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
)

// FederationRepository defines operations for federation persistence
type FederationRepository interface {
	// Create creates a new federation
	Create(ctx context.Context, fed *entities.Federation) error

	// GetByID retrieves a federation by ID
	GetByID(ctx context.Context, id string) (*entities.Federation, error)

	// GetBySlug retrieves a federation by its slug
	GetBySlug(ctx context.Context, slug string) (*entities.Federation, error)

	// Update updates an existing federation
	Update(ctx context.Context, fed *entities.Federation) error

	// Delete removes a federation; membership edges cascade
	Delete(ctx context.Context, id string) error

	// List lists all federations ordered by name
	List(ctx context.Context) ([]*entities.Federation, error)

	// UpdateDocumentState records a successfully reconciled document:
	// fingerprint, document root ID, and the refresh timestamp
	UpdateDocumentState(ctx context.Context, id, fingerprint, fileID string, metadataUpdate time.Time) error
}

// EntityRepository defines operations for entity persistence
type EntityRepository interface {
	// Create creates a new entity
	Create(ctx context.Context, entity *entities.Entity) error

	// GetByEntityID retrieves an entity by its entityID URI
	GetByEntityID(ctx context.Context, entityID string) (*entities.Entity, error)

	// GetByEntityIDs retrieves all catalog entities whose entityID is in the set
	GetByEntityIDs(ctx context.Context, entityIDs []string) ([]*entities.Entity, error)

	// Update updates an existing entity's descriptive fields
	Update(ctx context.Context, entity *entities.Entity) error

	// Delete hard-deletes an entity. Only used by the explicit
	// administrative orphan purge, never by reconciliation.
	Delete(ctx context.Context, id string) error

	// ListByFederation lists entities belonging to a federation
	ListByFederation(ctx context.Context, federationID string) ([]*entities.Entity, error)

	// AddFederation adds a membership edge (no-op if already present).
	// id is the entity row ID, not the entityID URI.
	AddFederation(ctx context.Context, id, federationID string) error

	// RemoveFederation removes a membership edge
	RemoveFederation(ctx context.Context, id, federationID string) error

	// FederationIDs returns the entity's memberships in stable order
	// (edge creation order)
	FederationIDs(ctx context.Context, id string) ([]string, error)

	// AttachTypes attaches descriptor type tags to an entity (union,
	// not replacement)
	AttachTypes(ctx context.Context, id string, typeIDs []string) error

	// MostFederated returns up to limit entities ordered by how many
	// federations they belong to, most first
	MostFederated(ctx context.Context, limit int) ([]*entities.Entity, error)

	// ListOrphans lists entities that belong to zero federations
	ListOrphans(ctx context.Context) ([]*entities.Entity, error)
}

// EntityTypeRepository defines operations for descriptor type tags
type EntityTypeRepository interface {
	// GetOrCreate returns the tag with the given xml name, creating it
	// on first sight. The create is an idempotent upsert so concurrent
	// callers cannot produce duplicates.
	GetOrCreate(ctx context.Context, xmlName, name string) (*entities.EntityType, error)

	// List lists all known descriptor type tags
	List(ctx context.Context) ([]*entities.EntityType, error)
}

// EntityStatRepository defines operations for the statistics time series
type EntityStatRepository interface {
	// CreateBatch bulk-inserts stat rows; the series is append-only
	CreateBatch(ctx context.Context, stats []*entities.EntityStat) error

	// ListByFeature lists a federation's series for one feature,
	// oldest first
	ListByFeature(ctx context.Context, federationID, feature string) ([]*entities.EntityStat, error)
}

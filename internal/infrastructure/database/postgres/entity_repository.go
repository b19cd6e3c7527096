package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
	"github.com/devilmonastery/fedmet/internal/pkg/idgen"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

type entityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository creates a new PostgreSQL entity repository
func NewEntityRepository(db *sqlx.DB) repositories.EntityRepository {
	return &entityRepository{db: db}
}

// entitySelect pulls the entity row together with its type tags and
// memberships, both aggregated in a deterministic order.
const entitySelect = `
	SELECT e.id, e.entityid, e.name, e.registration_authority,
	       e.registration_instant, e.protocols, e.scopes,
	       COALESCE((SELECT array_agg(t.xml_name ORDER BY t.xml_name)
	                 FROM entity_entity_types ett
	                 JOIN entity_types t ON t.id = ett.type_id
	                 WHERE ett.entity_id = e.id), '{}') AS types,
	       COALESCE((SELECT array_agg(ef.federation_id ORDER BY ef.added_at)
	                 FROM entity_federations ef
	                 WHERE ef.entity_id = e.id), '{}') AS federations,
	       e.created_at, e.updated_at
	FROM entities e`

func (r *entityRepository) Create(ctx context.Context, entity *entities.Entity) error {
	start := time.Now()

	if entity.ID == "" {
		entity.ID = idgen.GenerateID()
	}
	now := time.Now()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now

	name, err := marshalName(entity.Name)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entities (id, entityid, name, registration_authority,
			registration_instant, protocols, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		entity.ID, entity.EntityID, name, nullString(entity.RegistrationAuthority),
		nullString(entity.RegistrationInstant), pq.Array(entity.Protocols),
		pq.Array(entity.Scopes), entity.CreatedAt, entity.UpdatedAt,
	)
	metrics.RecordDBOperation("entity", "create", time.Since(start), err)
	return err
}

func (r *entityRepository) GetByEntityID(ctx context.Context, entityID string) (*entities.Entity, error) {
	start := time.Now()

	row := r.db.QueryRowContext(ctx, entitySelect+` WHERE e.entityid = $1`, entityID)
	entity, err := scanEntity(row)
	metrics.RecordDBOperation("entity", "get_by_entityid", time.Since(start), err)

	if err == sql.ErrNoRows {
		return nil, repositories.ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *entityRepository) GetByEntityIDs(ctx context.Context, entityIDs []string) ([]*entities.Entity, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	start := time.Now()

	query := entitySelect + ` WHERE e.entityid = ANY($1)`
	out, err := r.listQuery(ctx, query, pq.Array(entityIDs))
	metrics.RecordDBOperation("entity", "get_by_entityids", time.Since(start), err)
	return out, err
}

func (r *entityRepository) Update(ctx context.Context, entity *entities.Entity) error {
	start := time.Now()
	entity.UpdatedAt = time.Now()

	name, err := marshalName(entity.Name)
	if err != nil {
		return err
	}

	query := `
		UPDATE entities
		SET name = $2, registration_authority = $3, registration_instant = $4,
		    protocols = $5, scopes = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		entity.ID, name, nullString(entity.RegistrationAuthority),
		nullString(entity.RegistrationInstant), pq.Array(entity.Protocols),
		pq.Array(entity.Scopes), entity.UpdatedAt,
	)
	metrics.RecordDBOperation("entity", "update", time.Since(start), err)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repositories.ErrEntityNotFound
	}
	return nil
}

func (r *entityRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()

	result, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE id = $1`, id)
	metrics.RecordDBOperation("entity", "delete", time.Since(start), err)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repositories.ErrEntityNotFound
	}
	return nil
}

func (r *entityRepository) ListByFederation(ctx context.Context, federationID string) ([]*entities.Entity, error) {
	start := time.Now()

	query := entitySelect + `
		JOIN entity_federations ef ON ef.entity_id = e.id
		WHERE ef.federation_id = $1
		ORDER BY e.entityid`
	out, err := r.listQuery(ctx, query, federationID)
	metrics.RecordDBOperation("entity", "list_by_federation", time.Since(start), err)
	return out, err
}

func (r *entityRepository) AddFederation(ctx context.Context, id, federationID string) error {
	start := time.Now()

	query := `
		INSERT INTO entity_federations (entity_id, federation_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, federation_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, id, federationID, time.Now())
	metrics.RecordDBOperation("entity", "add_federation", time.Since(start), err)
	return err
}

func (r *entityRepository) RemoveFederation(ctx context.Context, id, federationID string) error {
	start := time.Now()

	query := `DELETE FROM entity_federations WHERE entity_id = $1 AND federation_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, federationID)
	metrics.RecordDBOperation("entity", "remove_federation", time.Since(start), err)
	return err
}

func (r *entityRepository) FederationIDs(ctx context.Context, id string) ([]string, error) {
	start := time.Now()

	query := `
		SELECT federation_id FROM entity_federations
		WHERE entity_id = $1
		ORDER BY added_at
	`
	var ids []string
	err := r.db.SelectContext(ctx, &ids, query, id)
	metrics.RecordDBOperation("entity", "federation_ids", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *entityRepository) AttachTypes(ctx context.Context, id string, typeIDs []string) error {
	if len(typeIDs) == 0 {
		return nil
	}
	start := time.Now()

	query := `
		INSERT INTO entity_entity_types (entity_id, type_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (entity_id, type_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, id, pq.Array(typeIDs))
	metrics.RecordDBOperation("entity", "attach_types", time.Since(start), err)
	return err
}

func (r *entityRepository) MostFederated(ctx context.Context, limit int) ([]*entities.Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	start := time.Now()

	// entityid is the tie-break so equal counts list deterministically
	query := entitySelect + `
		JOIN entity_federations ef ON ef.entity_id = e.id
		GROUP BY e.id
		ORDER BY COUNT(ef.federation_id) DESC, e.entityid
		LIMIT $1`
	out, err := r.listQuery(ctx, query, limit)
	metrics.RecordDBOperation("entity", "most_federated", time.Since(start), err)
	return out, err
}

func (r *entityRepository) ListOrphans(ctx context.Context) ([]*entities.Entity, error) {
	start := time.Now()

	query := entitySelect + `
		WHERE NOT EXISTS (
			SELECT 1 FROM entity_federations ef WHERE ef.entity_id = e.id
		)
		ORDER BY e.entityid`
	out, err := r.listQuery(ctx, query)
	metrics.RecordDBOperation("entity", "list_orphans", time.Since(start), err)
	return out, err
}

func (r *entityRepository) listQuery(ctx context.Context, query string, args ...interface{}) ([]*entities.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entities.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func scanEntity(row rowScanner) (*entities.Entity, error) {
	entity := &entities.Entity{}
	var name []byte
	var regAuthority, regInstant sql.NullString
	var protocols, scopes, types, federations pq.StringArray

	err := row.Scan(
		&entity.ID, &entity.EntityID, &name, &regAuthority, &regInstant,
		&protocols, &scopes, &types, &federations,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entity.RegistrationAuthority = regAuthority.String
	entity.RegistrationInstant = regInstant.String
	entity.Protocols = protocols
	entity.Scopes = scopes
	entity.Types = types
	entity.Federations = federations

	if len(name) > 0 {
		if err := json.Unmarshal(name, &entity.Name); err != nil {
			return nil, fmt.Errorf("failed to decode entity name: %w", err)
		}
	}
	return entity, nil
}

func marshalName(name map[string]string) (interface{}, error) {
	if len(name) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(name)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity name: %w", err)
	}
	return data, nil
}

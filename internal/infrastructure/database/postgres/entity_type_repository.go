package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
	"github.com/devilmonastery/fedmet/internal/pkg/idgen"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

type entityTypeRepository struct {
	db *sqlx.DB
}

// NewEntityTypeRepository creates a new PostgreSQL entity type repository
func NewEntityTypeRepository(db *sqlx.DB) repositories.EntityTypeRepository {
	return &entityTypeRepository{db: db}
}

func (r *entityTypeRepository) GetOrCreate(ctx context.Context, xmlName, name string) (*entities.EntityType, error) {
	start := time.Now()

	// the no-op update makes RETURNING yield the row on conflict too,
	// so concurrent first sightings all get the same tag
	query := `
		INSERT INTO entity_types (id, xml_name, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (xml_name) DO UPDATE SET name = entity_types.name
		RETURNING id, xml_name, name
	`
	etype := &entities.EntityType{}
	err := r.db.QueryRowContext(ctx, query, idgen.GenerateID(), xmlName, name).
		Scan(&etype.ID, &etype.XMLName, &etype.Name)
	metrics.RecordDBOperation("entity_type", "get_or_create", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return etype, nil
}

func (r *entityTypeRepository) List(ctx context.Context) ([]*entities.EntityType, error) {
	start := time.Now()

	query := `SELECT id, xml_name, name FROM entity_types ORDER BY xml_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		metrics.RecordDBOperation("entity_type", "list", time.Since(start), err)
		return nil, err
	}
	defer rows.Close()

	var types []*entities.EntityType
	for rows.Next() {
		etype := &entities.EntityType{}
		if err := rows.Scan(&etype.ID, &etype.XMLName, &etype.Name); err != nil {
			metrics.RecordDBOperation("entity_type", "list", time.Since(start), err)
			return nil, err
		}
		types = append(types, etype)
	}
	err = rows.Err()
	metrics.RecordDBOperation("entity_type", "list", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return types, nil
}

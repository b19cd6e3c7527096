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

type entityStatRepository struct {
	db *sqlx.DB
}

// NewEntityStatRepository creates a new PostgreSQL entity stat repository
func NewEntityStatRepository(db *sqlx.DB) repositories.EntityStatRepository {
	return &entityStatRepository{db: db}
}

func (r *entityStatRepository) CreateBatch(ctx context.Context, stats []*entities.EntityStat) error {
	if len(stats) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		metrics.RecordDBOperation("entity_stat", "create_batch", time.Since(start), err)
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO entity_stats (id, federation_id, feature, value, at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, stat := range stats {
		if stat.ID == "" {
			stat.ID = idgen.GenerateID()
		}
		if _, err := tx.ExecContext(ctx, query,
			stat.ID, stat.FederationID, stat.Feature, stat.Value, stat.Time); err != nil {
			metrics.RecordDBOperation("entity_stat", "create_batch", time.Since(start), err)
			return err
		}
	}

	err = tx.Commit()
	metrics.RecordDBOperation("entity_stat", "create_batch", time.Since(start), err)
	return err
}

func (r *entityStatRepository) ListByFeature(ctx context.Context, federationID, feature string) ([]*entities.EntityStat, error) {
	start := time.Now()

	query := `
		SELECT id, federation_id, feature, value, at
		FROM entity_stats
		WHERE federation_id = $1 AND feature = $2
		ORDER BY at
	`
	rows, err := r.db.QueryContext(ctx, query, federationID, feature)
	if err != nil {
		metrics.RecordDBOperation("entity_stat", "list_by_feature", time.Since(start), err)
		return nil, err
	}
	defer rows.Close()

	var stats []*entities.EntityStat
	for rows.Next() {
		stat := &entities.EntityStat{}
		if err := rows.Scan(&stat.ID, &stat.FederationID, &stat.Feature, &stat.Value, &stat.Time); err != nil {
			metrics.RecordDBOperation("entity_stat", "list_by_feature", time.Since(start), err)
			return nil, err
		}
		stats = append(stats, stat)
	}
	err = rows.Err()
	metrics.RecordDBOperation("entity_stat", "list_by_feature", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
	"github.com/devilmonastery/fedmet/internal/pkg/idgen"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

type federationRepository struct {
	db *sqlx.DB
}

// NewFederationRepository creates a new PostgreSQL federation repository
func NewFederationRepository(db *sqlx.DB) repositories.FederationRepository {
	return &federationRepository{db: db}
}

const federationColumns = `
	id, name, slug, type, url, metadata_url, file_id, fingerprint,
	registration_authority, country, is_interfederation, metadata_update,
	created_at, updated_at`

func (r *federationRepository) Create(ctx context.Context, fed *entities.Federation) error {
	start := time.Now()

	if fed.ID == "" {
		fed.ID = idgen.GenerateID()
	}
	now := time.Now()
	if fed.CreatedAt.IsZero() {
		fed.CreatedAt = now
	}
	fed.UpdatedAt = now

	query := `
		INSERT INTO federations (` + federationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		fed.ID, fed.Name, fed.Slug, nullString(fed.Type), nullString(fed.URL),
		nullString(fed.MetadataURL), nullString(fed.FileID), nullString(fed.Fingerprint),
		nullString(fed.RegistrationAuthority), nullString(fed.Country),
		fed.IsInterfederation, fed.MetadataUpdate, fed.CreatedAt, fed.UpdatedAt,
	)
	metrics.RecordDBOperation("federation", "create", time.Since(start), err)

	if isUniqueViolation(err) {
		return repositories.ErrDuplicateFederation
	}
	return err
}

func (r *federationRepository) GetByID(ctx context.Context, id string) (*entities.Federation, error) {
	return r.getWhere(ctx, "get_by_id", "id = $1", id)
}

func (r *federationRepository) GetBySlug(ctx context.Context, slug string) (*entities.Federation, error) {
	return r.getWhere(ctx, "get_by_slug", "slug = $1", slug)
}

func (r *federationRepository) getWhere(ctx context.Context, operation, where string, arg interface{}) (*entities.Federation, error) {
	start := time.Now()

	query := `SELECT ` + federationColumns + ` FROM federations WHERE ` + where
	row := r.db.QueryRowContext(ctx, query, arg)

	fed, err := scanFederation(row)
	metrics.RecordDBOperation("federation", operation, time.Since(start), err)

	if err == sql.ErrNoRows {
		return nil, repositories.ErrFederationNotFound
	}
	if err != nil {
		return nil, err
	}
	return fed, nil
}

func (r *federationRepository) Update(ctx context.Context, fed *entities.Federation) error {
	start := time.Now()
	fed.UpdatedAt = time.Now()

	query := `
		UPDATE federations
		SET name = $2, slug = $3, type = $4, url = $5, metadata_url = $6,
		    registration_authority = $7, country = $8, is_interfederation = $9,
		    fingerprint = $10, updated_at = $11
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		fed.ID, fed.Name, fed.Slug, nullString(fed.Type), nullString(fed.URL),
		nullString(fed.MetadataURL), nullString(fed.RegistrationAuthority),
		nullString(fed.Country), fed.IsInterfederation, nullString(fed.Fingerprint),
		fed.UpdatedAt,
	)
	metrics.RecordDBOperation("federation", "update", time.Since(start), err)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repositories.ErrFederationNotFound
	}
	return nil
}

func (r *federationRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()

	result, err := r.db.ExecContext(ctx, `DELETE FROM federations WHERE id = $1`, id)
	metrics.RecordDBOperation("federation", "delete", time.Since(start), err)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repositories.ErrFederationNotFound
	}
	return nil
}

func (r *federationRepository) List(ctx context.Context) ([]*entities.Federation, error) {
	start := time.Now()

	query := `SELECT ` + federationColumns + ` FROM federations ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		metrics.RecordDBOperation("federation", "list", time.Since(start), err)
		return nil, err
	}
	defer rows.Close()

	var feds []*entities.Federation
	for rows.Next() {
		fed, err := scanFederation(rows)
		if err != nil {
			metrics.RecordDBOperation("federation", "list", time.Since(start), err)
			return nil, err
		}
		feds = append(feds, fed)
	}
	err = rows.Err()
	metrics.RecordDBOperation("federation", "list", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return feds, nil
}

func (r *federationRepository) UpdateDocumentState(ctx context.Context, id, fingerprint, fileID string, metadataUpdate time.Time) error {
	start := time.Now()

	query := `
		UPDATE federations
		SET fingerprint = $2, file_id = $3, metadata_update = $4, updated_at = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, nullString(fingerprint), nullString(fileID), metadataUpdate)
	metrics.RecordDBOperation("federation", "update_document_state", time.Since(start), err)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repositories.ErrFederationNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFederation(row rowScanner) (*entities.Federation, error) {
	fed := &entities.Federation{}
	var fedType, url, metadataURL, fileID, fingerprint, regAuthority, country sql.NullString
	var metadataUpdate sql.NullTime

	err := row.Scan(
		&fed.ID, &fed.Name, &fed.Slug, &fedType, &url, &metadataURL,
		&fileID, &fingerprint, &regAuthority, &country,
		&fed.IsInterfederation, &metadataUpdate, &fed.CreatedAt, &fed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fed.Type = fedType.String
	fed.URL = url.String
	fed.MetadataURL = metadataURL.String
	fed.FileID = fileID.String
	fed.Fingerprint = fingerprint.String
	fed.RegistrationAuthority = regAuthority.String
	fed.Country = country.String
	if metadataUpdate.Valid {
		fed.MetadataUpdate = &metadataUpdate.Time
	}
	return fed, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

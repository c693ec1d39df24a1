package feature

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository persists the feature catalog.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*Feature, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Feature, error)
	List(ctx context.Context) ([]Feature, error)
	// Upsert writes f keyed by code and returns the stored row.
	Upsert(ctx context.Context, f *Feature) (*Feature, error)
	// InsertIfAbsent writes f unless its code exists and reports whether it was inserted.
	InsertIfAbsent(ctx context.Context, f *Feature) (bool, error)
	SetActive(ctx context.Context, code string, active bool, at time.Time) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the PostgreSQL catalog store.
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const featureColumns = `id, code, name, description, category, is_active, is_public, created_at, updated_at`

func (r *repository) GetByCode(ctx context.Context, code string) (*Feature, error) {
	return r.getOne(ctx, `SELECT `+featureColumns+` FROM features WHERE code = $1`, code)
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Feature, error) {
	return r.getOne(ctx, `SELECT `+featureColumns+` FROM features WHERE id = $1`, id)
}

func (r *repository) getOne(ctx context.Context, query string, arg interface{}) (*Feature, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var f Feature
	if err := r.db.GetContext(ctx, &f, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get feature: %w", err)
	}
	return &f, nil
}

func (r *repository) List(ctx context.Context) ([]Feature, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	features := make([]Feature, 0)
	if err := r.db.SelectContext(ctx, &features, `SELECT `+featureColumns+` FROM features ORDER BY category, code`); err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	return features, nil
}

func (r *repository) Upsert(ctx context.Context, f *Feature) (*Feature, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var stored Feature
	err := r.db.GetContext(ctx, &stored, `
		INSERT INTO features (id, code, name, description, category, is_active, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			is_active = EXCLUDED.is_active,
			is_public = EXCLUDED.is_public,
			updated_at = EXCLUDED.updated_at
		RETURNING `+featureColumns,
		f.ID, f.Code, f.Name, f.Description, string(f.Category), f.IsActive, f.IsPublic, f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert feature %s: %w", f.Code, err)
	}
	return &stored, nil
}

func (r *repository) InsertIfAbsent(ctx context.Context, f *Feature) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO features (id, code, name, description, category, is_active, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (code) DO NOTHING
	`, f.ID, f.Code, f.Name, f.Description, string(f.Category), f.IsActive, f.IsPublic, f.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("seed feature %s: %w", f.Code, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed feature %s rows affected: %w", f.Code, err)
	}
	return rows == 1, nil
}

func (r *repository) SetActive(ctx context.Context, code string, active bool, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE features SET is_active = $2, updated_at = $3 WHERE code = $1
	`, code, active, at)
	if err != nil {
		return fmt.Errorf("set feature %s active: %w", code, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set feature %s active rows affected: %w", code, err)
	}
	if rows == 0 {
		return ErrFeatureNotFound
	}
	return nil
}

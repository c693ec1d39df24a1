package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/worksuite/worksuite-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Repository stores workspace features keyed by (workspace, feature).
type Repository interface {
	Get(ctx context.Context, workspaceID, featureID uuid.UUID) (*WorkspaceFeature, error)
	// Save writes wf if the stored version still equals wf.Version (zero inserts a new
	// pair) and advances wf.Version. A lost race returns ErrVersionConflict.
	Save(ctx context.Context, wf *WorkspaceFeature) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]WorkspaceFeature, error)
	// Disable sets enabled=false on every row of the pair and returns how many changed.
	Disable(ctx context.Context, workspaceID, featureID uuid.UUID, at time.Time) (int64, error)
	// ExpireDue disables every enabled row whose expiry is at or before now and returns
	// the affected workspaces.
	ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the PostgreSQL entitlement store.
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const workspaceFeatureColumns = `id, workspace_id, feature_id, source, enabled, enabled_at, expires_at, version, updated_at`

func (r *repository) Get(ctx context.Context, workspaceID, featureID uuid.UUID) (*WorkspaceFeature, error) {
	if !database.InTx(ctx) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, queryTimeout)
		defer cancel()
	}

	var wf WorkspaceFeature
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &wf, `
		SELECT `+workspaceFeatureColumns+`
		FROM workspace_features
		WHERE workspace_id = $1 AND feature_id = $2
	`, workspaceID, featureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get workspace feature: %w", err)
	}
	return &wf, nil
}

func (r *repository) Save(ctx context.Context, wf *WorkspaceFeature) error {
	exec := database.Executor(ctx, r.db)

	var (
		result sql.Result
		err    error
	)
	if wf.Version == 0 {
		result, err = exec.ExecContext(ctx, `
			INSERT INTO workspace_features (
				id, workspace_id, feature_id, source, enabled, enabled_at, expires_at, version, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
			ON CONFLICT (workspace_id, feature_id) DO NOTHING
		`, wf.ID, wf.WorkspaceID, wf.FeatureID, string(wf.Source), wf.Enabled, wf.EnabledAt, wf.ExpiresAt, wf.UpdatedAt)
	} else {
		result, err = exec.ExecContext(ctx, `
			UPDATE workspace_features
			SET source = $3, enabled = $4, enabled_at = $5, expires_at = $6,
				updated_at = $7, version = version + 1
			WHERE id = $1 AND version = $2
		`, wf.ID, wf.Version, string(wf.Source), wf.Enabled, wf.EnabledAt, wf.ExpiresAt, wf.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("save workspace feature: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save workspace feature rows affected: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	wf.Version++
	return nil
}

func (r *repository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]WorkspaceFeature, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]WorkspaceFeature, 0)
	err := sqlx.SelectContext(ctx2, database.Executor(ctx, r.db), &rows, `
		SELECT `+workspaceFeatureColumns+`
		FROM workspace_features
		WHERE workspace_id = $1
		ORDER BY enabled_at DESC, id
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace features: %w", err)
	}
	return rows, nil
}

func (r *repository) Disable(ctx context.Context, workspaceID, featureID uuid.UUID, at time.Time) (int64, error) {
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		UPDATE workspace_features
		SET enabled = false, updated_at = $3, version = version + 1
		WHERE workspace_id = $1 AND feature_id = $2 AND enabled
	`, workspaceID, featureID, at)
	if err != nil {
		return 0, fmt.Errorf("disable workspace feature: %w", err)
	}
	return result.RowsAffected()
}

func (r *repository) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	workspaces := make([]uuid.UUID, 0)
	err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &workspaces, `
		UPDATE workspace_features
		SET enabled = false, updated_at = $1, version = version + 1
		WHERE enabled AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING workspace_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("expire workspace features: %w", err)
	}
	return workspaces, nil
}

package entitlement

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/worksuite/worksuite-api/internal/pkg/database"
)

type pairKey struct {
	workspaceID uuid.UUID
	featureID   uuid.UUID
}

// memoryRepository is a keyed map of entitlement rows. It shares the MemoryTransactor
// with the wallet store so a purchase commits or rolls back both together.
type memoryRepository struct {
	tx   *database.MemoryTransactor
	rows map[pairKey]WorkspaceFeature
}

func NewMemoryRepository(tx *database.MemoryTransactor) Repository {
	return &memoryRepository{tx: tx, rows: make(map[pairKey]WorkspaceFeature)}
}

func (m *memoryRepository) Get(ctx context.Context, workspaceID, featureID uuid.UUID) (*WorkspaceFeature, error) {
	var found *WorkspaceFeature
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if wf, ok := m.rows[pairKey{workspaceID, featureID}]; ok {
			found = &wf
		}
		return nil
	})
	return found, err
}

func (m *memoryRepository) Save(ctx context.Context, wf *WorkspaceFeature) error {
	return m.tx.WithinTx(ctx, func(ctx context.Context) error {
		key := pairKey{wf.WorkspaceID, wf.FeatureID}
		prev, exists := m.rows[key]

		switch {
		case wf.Version == 0 && exists:
			return ErrVersionConflict
		case wf.Version != 0 && (!exists || prev.Version != wf.Version || prev.ID != wf.ID):
			return ErrVersionConflict
		}

		stored := *wf
		stored.Version = wf.Version + 1
		m.rows[key] = stored
		wf.Version = stored.Version

		database.OnRollback(ctx, func() {
			if exists {
				m.rows[key] = prev
			} else {
				delete(m.rows, key)
			}
		})
		return nil
	})
}

func (m *memoryRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]WorkspaceFeature, error) {
	out := make([]WorkspaceFeature, 0)
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		for key, wf := range m.rows {
			if key.workspaceID == workspaceID {
				out = append(out, wf)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnabledAt.Equal(out[j].EnabledAt) {
			return out[i].EnabledAt.After(out[j].EnabledAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (m *memoryRepository) Disable(ctx context.Context, workspaceID, featureID uuid.UUID, at time.Time) (int64, error) {
	var changed int64
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		key := pairKey{workspaceID, featureID}
		if m.disable(ctx, key, at) {
			changed++
		}
		return nil
	})
	return changed, err
}

func (m *memoryRepository) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	workspaces := make([]uuid.UUID, 0)
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		for key, wf := range m.rows {
			if wf.Enabled && wf.ExpiresAt != nil && !wf.ExpiresAt.After(now) {
				m.disable(ctx, key, now)
				workspaces = append(workspaces, key.workspaceID)
			}
		}
		return nil
	})
	return workspaces, err
}

// disable must run inside a unit.
func (m *memoryRepository) disable(ctx context.Context, key pairKey, at time.Time) bool {
	prev, ok := m.rows[key]
	if !ok || !prev.Enabled {
		return false
	}
	next := prev
	next.Enabled = false
	next.UpdatedAt = at
	next.Version++
	m.rows[key] = next
	database.OnRollback(ctx, func() { m.rows[key] = prev })
	return true
}

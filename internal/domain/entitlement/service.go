package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/worksuite/worksuite-api/internal/domain/feature"
	"github.com/worksuite/worksuite-api/internal/pkg/clock"
	"github.com/worksuite/worksuite-api/internal/pkg/database"
	"github.com/worksuite/worksuite-api/internal/pkg/metrics"
)

const maxSaveAttempts = 3

// Catalog is the part of the feature catalog the manager reads.
type Catalog interface {
	GetByCode(ctx context.Context, code string) (*feature.Feature, error)
	GetByID(ctx context.Context, id uuid.UUID) (*feature.Feature, error)
	Available(ctx context.Context, category *feature.Category) ([]feature.Feature, error)
}

// PlanAccess grants features included in a workspace's billing plan.
type PlanAccess interface {
	HasPlanAccess(ctx context.Context, workspaceID uuid.UUID, featureCode string) (bool, error)
}

type Config struct {
	// CacheTTL bounds how long an access decision is reused. Zero disables caching.
	CacheTTL time.Duration
}

// FeatureStatus is the access view of one feature for one workspace.
type FeatureStatus struct {
	Code       string     `json:"code"`
	Enabled    bool       `json:"enabled"`
	State      string     `json:"state"`
	Source     *Source    `json:"source,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	PlanAccess bool       `json:"plan_access"`
}

// Manager owns the workspace feature lifecycle. It is the only writer of
// workspace feature rows.
type Manager struct {
	repo    Repository
	catalog Catalog
	tx      database.Transactor
	cache   Cache
	clock   clock.Clock
	cfg     Config
	plan    PlanAccess
}

// NewManager creates the entitlement manager. cache may be nil.
func NewManager(repo Repository, catalog Catalog, tx database.Transactor, cache Cache, clk clock.Clock, cfg Config) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{repo: repo, catalog: catalog, tx: tx, cache: cache, clock: clk, cfg: cfg}
}

// SetPlanAccess wires the billing collaborator consulted by CanAccessFeature.
func (m *Manager) SetPlanAccess(plan PlanAccess) {
	m.plan = plan
}

// CheckFeature evaluates the entitlement without writing anything.
func (m *Manager) CheckFeature(ctx context.Context, workspaceID uuid.UUID, featureCode string) (State, *WorkspaceFeature, error) {
	f, err := m.catalog.GetByCode(ctx, featureCode)
	if err != nil {
		if errors.Is(err, feature.ErrFeatureNotFound) {
			return StateInactive, nil, nil
		}
		return StateInactive, nil, err
	}

	wf, err := m.repo.Get(ctx, workspaceID, f.ID)
	if err != nil {
		return StateInactive, nil, err
	}
	return Evaluate(wf, m.clock.Now()), wf, nil
}

// IsFeatureEnabled reports whether the workspace may use the feature now. A trial found
// past its expiry is persisted as disabled before false is returned.
func (m *Manager) IsFeatureEnabled(ctx context.Context, workspaceID uuid.UUID, featureCode string) (bool, error) {
	code := normalizeCode(featureCode)
	if d, ok := m.cached(ctx, workspaceID, code); ok {
		return d.Enabled, nil
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		// The generation is read before the store so a concurrent invalidation voids the fill.
		gen, cacheable := m.generation(ctx, workspaceID)
		state, wf, err := m.CheckFeature(ctx, workspaceID, code)
		if err != nil {
			return false, err
		}

		switch state {
		case StateActive:
			if cacheable {
				m.remember(ctx, workspaceID, code, Decision{Enabled: true, ExpiresAt: wf.ExpiresAt}, gen)
			}
			return true, nil
		case StateInactive:
			if cacheable {
				m.remember(ctx, workspaceID, code, Decision{Enabled: false}, gen)
			}
			return false, nil
		}

		err = m.expire(ctx, wf, code)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return false, nil
	}
	return false, fmt.Errorf("expire %s for workspace %s: %w", code, workspaceID, ErrVersionConflict)
}

// CanAccessFeature is IsFeatureEnabled or, when wired, plan-derived access.
func (m *Manager) CanAccessFeature(ctx context.Context, workspaceID uuid.UUID, featureCode string) (bool, error) {
	enabled, err := m.IsFeatureEnabled(ctx, workspaceID, featureCode)
	if err != nil || enabled {
		return enabled, err
	}
	if m.plan == nil {
		return false, nil
	}
	return m.plan.HasPlanAccess(ctx, workspaceID, normalizeCode(featureCode))
}

// Status combines the access decision with the stored entitlement details.
func (m *Manager) Status(ctx context.Context, workspaceID uuid.UUID, featureCode string) (*FeatureStatus, error) {
	code := normalizeCode(featureCode)
	if _, err := m.catalog.GetByCode(ctx, code); err != nil {
		if errors.Is(err, feature.ErrFeatureNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, code)
		}
		return nil, err
	}

	enabled, err := m.IsFeatureEnabled(ctx, workspaceID, code)
	if err != nil {
		return nil, err
	}
	state, wf, err := m.CheckFeature(ctx, workspaceID, code)
	if err != nil {
		return nil, err
	}

	status := &FeatureStatus{Code: code, Enabled: enabled, State: state.String()}
	if wf != nil {
		source := wf.Source
		status.Source = &source
		status.ExpiresAt = wf.ExpiresAt
	}
	if !enabled && m.plan != nil {
		status.PlanAccess, err = m.plan.HasPlanAccess(ctx, workspaceID, code)
		if err != nil {
			return nil, err
		}
		status.Enabled = status.PlanAccess
	}
	return status, nil
}

// GetActiveFeatures lists usable entitlements, newest activation first. It never writes.
func (m *Manager) GetActiveFeatures(ctx context.Context, workspaceID uuid.UUID) ([]Entitlement, error) {
	now := m.clock.Now()
	return m.list(ctx, workspaceID, func(wf *WorkspaceFeature) bool {
		return Evaluate(wf, now) == StateActive
	})
}

// GetExpiringFeatures lists usable trials that end within daysAhead days, soonest first.
func (m *Manager) GetExpiringFeatures(ctx context.Context, workspaceID uuid.UUID, daysAhead int) ([]Entitlement, error) {
	if daysAhead < 0 {
		return nil, ErrInvalidWindow
	}
	now := m.clock.Now()
	horizon := now.AddDate(0, 0, daysAhead)

	// The window is (now, horizon]: a trial expiring exactly at now is already expired
	// under Evaluate, so the lower endpoint is excluded.
	out, err := m.list(ctx, workspaceID, func(wf *WorkspaceFeature) bool {
		return wf.ExpiresAt != nil && Evaluate(wf, now) == StateActive && !wf.ExpiresAt.After(horizon)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
	})
	return out, nil
}

func (m *Manager) list(ctx context.Context, workspaceID uuid.UUID, keep func(*WorkspaceFeature) bool) ([]Entitlement, error) {
	rows, err := m.repo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	out := make([]Entitlement, 0, len(rows))
	for i := range rows {
		if !keep(&rows[i]) {
			continue
		}
		f, err := m.catalog.GetByID(ctx, rows[i].FeatureID)
		if errors.Is(err, feature.ErrFeatureNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, joined(rows[i], f))
	}
	return out, nil
}

// GetAvailableFeatures lists active public catalog features, optionally by category.
func (m *Manager) GetAvailableFeatures(ctx context.Context, category *feature.Category) ([]feature.Feature, error) {
	return m.catalog.Available(ctx, category)
}

// ActivateFeature grants the feature. An enabled, unexpired entitlement activated again
// without an expiry is returned unchanged, trial or not; every other case (re)writes the
// row with enabledAt=now and the given expiry, nil meaning permanent. A trial found past
// its expiry counts as disabled and is re-activated.
func (m *Manager) ActivateFeature(ctx context.Context, workspaceID uuid.UUID, featureCode string, source Source, expiresAt *time.Time) (*WorkspaceFeature, error) {
	if expiresAt != nil && !expiresAt.After(m.clock.Now()) {
		return nil, ErrInvalidExpiry
	}
	code := normalizeCode(featureCode)
	f, err := m.activatable(ctx, workspaceID, code, source)
	if err != nil {
		return nil, err
	}

	var (
		result  *WorkspaceFeature
		changed bool
	)
	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		for attempt := 0; attempt < maxSaveAttempts; attempt++ {
			now := m.clock.Now()
			current, err := m.repo.Get(ctx, workspaceID, f.ID)
			if err != nil {
				return err
			}

			if current != nil && expiresAt == nil && Evaluate(current, now) == StateActive {
				result = current
				return nil
			}

			next := WorkspaceFeature{
				ID:          uuid.New(),
				WorkspaceID: workspaceID,
				FeatureID:   f.ID,
			}
			if current != nil {
				next = *current
			}
			next.Source = source
			next.Enabled = true
			next.EnabledAt = now
			next.ExpiresAt = copyTime(expiresAt)
			next.UpdatedAt = now

			err = m.repo.Save(ctx, &next)
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			if err != nil {
				return err
			}

			result, changed = &next, true
			m.invalidateAfterCommit(ctx, workspaceID)
			return nil
		}
		return fmt.Errorf("activate %s for workspace %s: %w", code, workspaceID, ErrVersionConflict)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.EntitlementActivations.WithLabelValues(string(source)).Inc()
		event := log.Info().
			Str("workspace_id", workspaceID.String()).
			Str("feature_code", code).
			Str("source", string(source))
		if expiresAt != nil {
			event = event.Time("expires_at", *expiresAt)
		}
		event.Msg("feature activated")
	}
	return result, nil
}

// PromoteTrial makes a running trial permanent under source, keeping its enabledAt.
// Without a running trial it behaves like ActivateFeature with no expiry.
func (m *Manager) PromoteTrial(ctx context.Context, workspaceID uuid.UUID, featureCode string, source Source) (*WorkspaceFeature, error) {
	code := normalizeCode(featureCode)
	f, err := m.activatable(ctx, workspaceID, code, source)
	if err != nil {
		return nil, err
	}

	var (
		result   *WorkspaceFeature
		promoted bool
	)
	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		for attempt := 0; attempt < maxSaveAttempts; attempt++ {
			now := m.clock.Now()
			current, err := m.repo.Get(ctx, workspaceID, f.ID)
			if err != nil {
				return err
			}
			if current == nil || !current.IsTrial() || Evaluate(current, now) != StateActive {
				result, err = m.ActivateFeature(ctx, workspaceID, code, source, nil)
				return err
			}

			next := *current
			next.Source = source
			next.ExpiresAt = nil
			next.UpdatedAt = now

			err = m.repo.Save(ctx, &next)
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			if err != nil {
				return err
			}

			result, promoted = &next, true
			m.invalidateAfterCommit(ctx, workspaceID)
			return nil
		}
		return fmt.Errorf("promote %s for workspace %s: %w", code, workspaceID, ErrVersionConflict)
	})
	if err != nil {
		return nil, err
	}

	if promoted {
		metrics.EntitlementActivations.WithLabelValues(string(source)).Inc()
		log.Info().
			Str("workspace_id", workspaceID.String()).
			Str("feature_code", code).
			Str("source", string(source)).
			Msg("trial promoted to permanent")
	}
	return result, nil
}

// activatable validates an activation request and resolves an active catalog feature.
func (m *Manager) activatable(ctx context.Context, workspaceID uuid.UUID, code string, source Source) (*feature.Feature, error) {
	if workspaceID == uuid.Nil {
		return nil, ErrInvalidWorkspace
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	f, err := m.catalog.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, feature.ErrFeatureNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, code)
		}
		return nil, err
	}
	if !f.IsActive {
		log.Warn().Str("workspace_id", workspaceID.String()).Str("feature_code", code).Msg("activation of inactive feature refused")
		return nil, &feature.InactiveFeatureError{Code: code}
	}
	return f, nil
}

// DeactivateFeature disables the workspace's entitlement to the feature.
func (m *Manager) DeactivateFeature(ctx context.Context, workspaceID uuid.UUID, featureCode string) error {
	code := normalizeCode(featureCode)
	f, err := m.catalog.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, feature.ErrFeatureNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownFeature, code)
		}
		return err
	}

	var changed int64
	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		changed, err = m.repo.Disable(ctx, workspaceID, f.ID, m.clock.Now())
		if err != nil {
			return err
		}
		m.invalidateAfterCommit(ctx, workspaceID)
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("workspace_id", workspaceID.String()).
		Str("feature_code", code).
		Int64("rows", changed).
		Msg("feature deactivated")
	return nil
}

// ExpireDue disables every trial past its expiry. It performs the same transition as
// the lazy check in IsFeatureEnabled, for all workspaces at once.
func (m *Manager) ExpireDue(ctx context.Context) (int, error) {
	var workspaces []uuid.UUID
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		workspaces, err = m.repo.ExpireDue(ctx, m.clock.Now())
		if err != nil {
			return err
		}

		seen := make(map[uuid.UUID]struct{}, len(workspaces))
		for _, ws := range workspaces {
			if _, ok := seen[ws]; ok {
				continue
			}
			seen[ws] = struct{}{}
			m.invalidateAfterCommit(ctx, ws)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(workspaces) > 0 {
		metrics.EntitlementExpirations.WithLabelValues(metrics.ExpirySweep).Add(float64(len(workspaces)))
	}
	return len(workspaces), nil
}

// expire persists the disabled state of a trial found past its expiry.
func (m *Manager) expire(ctx context.Context, wf *WorkspaceFeature, code string) error {
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		next := *wf
		next.Enabled = false
		next.UpdatedAt = m.clock.Now()
		if err := m.repo.Save(ctx, &next); err != nil {
			return err
		}
		m.invalidateAfterCommit(ctx, wf.WorkspaceID)
		return nil
	})
	if err != nil {
		return err
	}

	metrics.EntitlementExpirations.WithLabelValues(metrics.ExpiryLazy).Inc()
	log.Info().
		Str("workspace_id", wf.WorkspaceID.String()).
		Str("feature_code", code).
		Time("expired_at", *wf.ExpiresAt).
		Msg("trial feature expired")
	return nil
}

func (m *Manager) cached(ctx context.Context, workspaceID uuid.UUID, code string) (Decision, bool) {
	if m.cache == nil || m.cfg.CacheTTL <= 0 {
		return Decision{}, false
	}

	d, ok, err := m.cache.Get(ctx, workspaceID, code)
	switch {
	case err != nil:
		metrics.EntitlementCacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("workspace_id", workspaceID.String()).Msg("entitlement cache read failed")
		return Decision{}, false
	case !ok:
		metrics.EntitlementCacheLookups.WithLabelValues("miss").Inc()
		return Decision{}, false
	}

	// A cached grant never outlives its trial; the store path persists the expiry.
	if d.Enabled && d.ExpiresAt != nil && !m.clock.Now().Before(*d.ExpiresAt) {
		metrics.EntitlementCacheLookups.WithLabelValues("miss").Inc()
		return Decision{}, false
	}
	metrics.EntitlementCacheLookups.WithLabelValues("hit").Inc()
	return d, true
}

func (m *Manager) generation(ctx context.Context, workspaceID uuid.UUID) (uint64, bool) {
	if m.cache == nil || m.cfg.CacheTTL <= 0 || database.InTx(ctx) {
		return 0, false
	}
	gen, err := m.cache.Generation(ctx, workspaceID)
	if err != nil {
		log.Warn().Err(err).Str("workspace_id", workspaceID.String()).Msg("entitlement cache generation read failed")
		return 0, false
	}
	return gen, true
}

func (m *Manager) remember(ctx context.Context, workspaceID uuid.UUID, code string, d Decision, gen uint64) {

	ttl := m.cfg.CacheTTL
	if d.ExpiresAt != nil {
		if left := d.ExpiresAt.Sub(m.clock.Now()); left < ttl {
			ttl = left
		}
	}
	stored, err := m.cache.Set(ctx, workspaceID, code, d, ttl, gen)
	if err != nil {
		log.Warn().Err(err).Str("workspace_id", workspaceID.String()).Msg("entitlement cache write failed")
		return
	}
	if !stored {
		metrics.EntitlementCacheLookups.WithLabelValues("stale_fill").Inc()
	}
}

// invalidateAfterCommit drops cached decisions once the enclosing unit commits.
func (m *Manager) invalidateAfterCommit(ctx context.Context, workspaceID uuid.UUID) {
	if m.cache == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	database.AfterCommit(ctx, func() {
		if err := m.cache.InvalidateWorkspace(bg, workspaceID); err != nil {
			log.Warn().Err(err).Str("workspace_id", workspaceID.String()).Msg("entitlement cache invalidation failed")
		}
	})
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

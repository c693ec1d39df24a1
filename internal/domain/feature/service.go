package feature

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/worksuite/worksuite-api/internal/pkg/clock"
	"github.com/worksuite/worksuite-api/internal/pkg/validator"
)

const snapshotKey = "catalog"

// snapshot is an immutable copy of the whole catalog.
type snapshot struct {
	ordered  []Feature
	byCode   map[string]int
	byID     map[uuid.UUID]int
	loadedAt time.Time
}

// Service is the read-mostly feature catalog. Reads are served from a snapshot that
// is reloaded after ttl through a singleflight group; writes drop the snapshot.
type Service struct {
	repo  Repository
	clock clock.Clock
	ttl   time.Duration

	loads    singleflight.Group
	mu       sync.RWMutex
	snap     *snapshot
	gen      uint64
	notifier Notifier
}

// NewService creates the catalog. A ttl of zero disables snapshot reuse.
func NewService(repo Repository, clk clock.Clock, ttl time.Duration) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{repo: repo, clock: clk, ttl: ttl}
}

// SetNotifier wires cross-instance change announcements.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// GetByCode returns a catalog entry by its unique code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Feature, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := snap.byCode[normalizeCode(code)]
	if !ok {
		return nil, ErrFeatureNotFound
	}
	f := snap.ordered[i]
	return &f, nil
}

// GetByID returns a catalog entry by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Feature, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := snap.byID[id]
	if !ok {
		return nil, ErrFeatureNotFound
	}
	f := snap.ordered[i]
	return &f, nil
}

// List returns catalog entries matching filter, ordered by category then code.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Feature, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Feature, 0, len(snap.ordered))
	for i := range snap.ordered {
		if filter.matches(&snap.ordered[i]) {
			out = append(out, snap.ordered[i])
		}
	}
	return out, nil
}

// Available lists active public features, optionally narrowed to one category.
func (s *Service) Available(ctx context.Context, category *Category) ([]Feature, error) {
	return s.List(ctx, ListFilter{Category: category, ActiveOnly: true, PublicOnly: true})
}

// Upsert creates or replaces the catalog entry with f.Code.
func (s *Service) Upsert(ctx context.Context, f Feature) (*Feature, error) {
	f.Code = normalizeCode(f.Code)
	if err := validateFeature(&f); err != nil {
		return nil, err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.UpdatedAt = s.clock.Now()

	stored, err := s.repo.Upsert(ctx, &f)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, stored.Code)

	log.Info().
		Str("feature_code", stored.Code).
		Bool("is_active", stored.IsActive).
		Bool("is_public", stored.IsPublic).
		Msg("feature catalog entry saved")
	return stored, nil
}

// SetActive soft-enables or soft-disables a catalog entry.
func (s *Service) SetActive(ctx context.Context, code string, active bool) error {
	code = normalizeCode(code)
	if err := s.repo.SetActive(ctx, code, active, s.clock.Now()); err != nil {
		return err
	}
	s.changed(ctx, code)

	log.Info().Str("feature_code", code).Bool("is_active", active).Msg("feature activity changed")
	return nil
}

// Seed inserts every missing default. Existing entries are left untouched.
func (s *Service) Seed(ctx context.Context, defaults []Feature) (int, error) {
	inserted := 0
	now := s.clock.Now()
	for _, f := range defaults {
		f.Code = normalizeCode(f.Code)
		if err := validateFeature(&f); err != nil {
			return inserted, err
		}
		f.ID = uuid.New()
		f.CreatedAt = now
		f.UpdatedAt = now

		ok, err := s.repo.InsertIfAbsent(ctx, &f)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	if inserted > 0 {
		s.changed(ctx, "*")
	}

	log.Info().Int("inserted", inserted).Int("defaults", len(defaults)).Msg("feature catalog seeded")
	return inserted, nil
}

// Invalidate drops the cached snapshot; the next read reloads it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.snap = nil
	s.gen++
	s.mu.Unlock()
	s.loads.Forget(snapshotKey)
}

// changed drops the local snapshot and tells other instances to do the same.
func (s *Service) changed(ctx context.Context, code string) {
	s.Invalidate()
	if s.notifier == nil {
		return
	}
	if err := s.notifier.CatalogChanged(ctx, code); err != nil {
		log.Warn().Err(err).Str("feature_code", code).Msg("catalog change not broadcast")
	}
}

func (s *Service) snapshot(ctx context.Context) (*snapshot, error) {
	s.mu.RLock()
	snap, gen := s.snap, s.gen
	s.mu.RUnlock()

	if snap != nil && s.ttl > 0 && s.clock.Now().Sub(snap.loadedAt) < s.ttl {
		return snap, nil
	}

	v, err, _ := s.loads.Do(snapshotKey, func() (interface{}, error) {
		features, err := s.repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("load feature catalog: %w", err)
		}

		fresh := &snapshot{
			ordered:  features,
			byCode:   make(map[string]int, len(features)),
			byID:     make(map[uuid.UUID]int, len(features)),
			loadedAt: s.clock.Now(),
		}
		for i, f := range features {
			fresh.byCode[f.Code] = i
			fresh.byID[f.ID] = i
		}

		s.mu.Lock()
		if s.gen == gen {
			s.snap = fresh
		}
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateFeature(f *Feature) error {
	if err := validator.ValidateVar(f.Code, "required,feature_code"); err != nil {
		return fmt.Errorf("%w: code %q", ErrInvalidFeature, f.Code)
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFeature)
	}
	if !f.Category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvalidFeature, f.Category)
	}
	return nil
}

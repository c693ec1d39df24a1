package feature

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepository is the in-process catalog. It keeps its own lock instead of
// joining a unit of work: catalog writes are single-row and never part of a purchase.
type memoryRepository struct {
	mu     sync.RWMutex
	byCode map[string]Feature
}

func NewMemoryRepository() Repository {
	return &memoryRepository{byCode: make(map[string]Feature)}
}

func (m *memoryRepository) GetByCode(_ context.Context, code string) (*Feature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.byCode[code]; ok {
		return &f, nil
	}
	return nil, nil
}

func (m *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Feature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, f := range m.byCode {
		if f.ID == id {
			f := f
			return &f, nil
		}
	}
	return nil, nil
}

func (m *memoryRepository) List(_ context.Context) ([]Feature, error) {
	m.mu.RLock()
	out := make([]Feature, 0, len(m.byCode))
	for _, f := range m.byCode {
		out = append(out, f)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (m *memoryRepository) Upsert(_ context.Context, f *Feature) (*Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *f
	if existing, ok := m.byCode[f.Code]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = f.UpdatedAt
	}
	m.byCode[f.Code] = stored
	return &stored, nil
}

func (m *memoryRepository) InsertIfAbsent(_ context.Context, f *Feature) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byCode[f.Code]; ok {
		return false, nil
	}
	m.byCode[f.Code] = *f
	return true, nil
}

func (m *memoryRepository) SetActive(_ context.Context, code string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.byCode[code]
	if !ok {
		return ErrFeatureNotFound
	}
	f.IsActive = active
	f.UpdatedAt = at
	m.byCode[code] = f
	return nil
}

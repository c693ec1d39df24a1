package feature

import (
	"time"

	"github.com/google/uuid"
)

// Category groups catalog features for the store and onboarding screens.
type Category string

const (
	CategoryCore        Category = "core"
	CategoryCRM         Category = "crm"
	CategoryFinance     Category = "finance"
	CategoryOperations  Category = "operations"
	CategoryAI          Category = "ai"
	CategoryIntegration Category = "integration"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCore, CategoryCRM, CategoryFinance, CategoryOperations, CategoryAI, CategoryIntegration:
		return true
	}
	return false
}

// Feature is a global catalog entry. Features are soft-disabled through IsActive
// and never deleted.
type Feature struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Category    Category  `db:"category" json:"category"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	IsPublic    bool      `db:"is_public" json:"is_public"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Available reports whether the feature may be offered to workspaces.
func (f *Feature) Available() bool {
	return f.IsActive && f.IsPublic
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Category   *Category
	ActiveOnly bool
	PublicOnly bool
}

func (lf ListFilter) matches(f *Feature) bool {
	if lf.Category != nil && f.Category != *lf.Category {
		return false
	}
	if lf.ActiveOnly && !f.IsActive {
		return false
	}
	if lf.PublicOnly && !f.IsPublic {
		return false
	}
	return true
}

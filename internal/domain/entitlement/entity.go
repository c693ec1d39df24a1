package entitlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/worksuite/worksuite-api/internal/domain/feature"
)

// Source is the reason an entitlement exists.
type Source string

const (
	SourcePlan       Source = "plan"
	SourceStore      Source = "store"
	SourcePromotion  Source = "promotion"
	SourceOnboarding Source = "onboarding"
)

func (s Source) Valid() bool {
	switch s {
	case SourcePlan, SourceStore, SourcePromotion, SourceOnboarding:
		return true
	}
	return false
}

// WorkspaceFeature is the entitlement row of one (workspace, feature) pair.
// Version is bumped by every write and guards compare-and-swap updates; zero means
// the row has not been stored yet.
type WorkspaceFeature struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	WorkspaceID uuid.UUID  `db:"workspace_id" json:"workspace_id"`
	FeatureID   uuid.UUID  `db:"feature_id" json:"feature_id"`
	Source      Source     `db:"source" json:"source"`
	Enabled     bool       `db:"enabled" json:"enabled"`
	EnabledAt   time.Time  `db:"enabled_at" json:"enabled_at"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Version     int64      `db:"version" json:"-"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTrial reports whether the entitlement ends on its own.
func (wf *WorkspaceFeature) IsTrial() bool {
	return wf.ExpiresAt != nil
}

// State is the outcome of evaluating an entitlement at an instant.
type State int

const (
	// StateInactive covers a missing row, an unknown feature and a disabled row.
	StateInactive State = iota
	StateActive
	// StateExpiredNow is an enabled row whose expiry has passed but has not been persisted yet.
	StateExpiredNow
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpiredNow:
		return "expired"
	default:
		return "inactive"
	}
}

// Evaluate classifies wf at now. An entitlement is usable strictly before its expiry.
// It is the single predicate behind every entitlement read.
func Evaluate(wf *WorkspaceFeature, now time.Time) State {
	if wf == nil || !wf.Enabled {
		return StateInactive
	}
	if wf.ExpiresAt != nil && !now.Before(*wf.ExpiresAt) {
		return StateExpiredNow
	}
	return StateActive
}

// Entitlement is a workspace feature joined with its catalog entry.
type Entitlement struct {
	WorkspaceFeature
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Category feature.Category `json:"category"`
}

func joined(wf WorkspaceFeature, f *feature.Feature) Entitlement {
	return Entitlement{WorkspaceFeature: wf, Code: f.Code, Name: f.Name, Category: f.Category}
}

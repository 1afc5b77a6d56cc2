// Package entity provides base types shared by all persisted records.
package entity

import (
	"context"
	"time"

	"listino/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// BaseEntity contains common fields for all persisted entities.
type BaseEntity struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	return BaseEntity{
		ID:      id.New(),
		Version: 1,
	}
}

// Touch increments version (for optimistic locking).
func (b *BaseEntity) Touch() {
	b.Version++
}

// SetVersion updates the version number (used by repository after sync).
func (b *BaseEntity) SetVersion(v int) {
	b.Version = v
}

// Audited extends BaseEntity with timestamps and actor fields.
// Price lists are never hard-deleted, so there is no deletion mark here;
// lifecycle is an explicit status on the entity itself.
type Audited struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewAudited creates a new Audited base with generated ID and timestamps.
func NewAudited() Audited {
	now := time.Now().UTC()
	return Audited{
		BaseEntity: NewBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch updates the UpdatedAt timestamp and increments version.
func (a *Audited) Touch() {
	a.UpdatedAt = time.Now().UTC()
	a.BaseEntity.Touch()
}

// SetUpdatedAt updates the updated_at timestamp (used by repository).
func (a *Audited) SetUpdatedAt(t time.Time) {
	a.UpdatedAt = t
}

// SetCreatedBy records the creating actor (used by audit enrichment).
func (a *Audited) SetCreatedBy(userID string) {
	a.CreatedBy = userID
}

// SetUpdatedBy records the updating actor (used by audit enrichment).
func (a *Audited) SetUpdatedBy(userID string) {
	a.UpdatedBy = userID
}

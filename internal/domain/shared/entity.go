package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity is the identity and the timestamps every stored record carries
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity stamps a fresh id
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch records a modification. UpdatedAt never moves backwards.
func (e *BaseEntity) Touch() {
	if now := time.Now(); now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
}

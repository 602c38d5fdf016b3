package models

import (
	"encoding/json"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
)

// SyncCursorModel holds the last successful pull of one delta feed per account.
type SyncCursorModel struct {
	AccountID    uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Kind         delta.SyncKind `gorm:"type:varchar(40);primaryKey"`
	LastSyncedAt time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncCursorModel) TableName() string {
	return "sync_cursors"
}

// ToDomain converts the persistence model to a domain SyncCursor.
func (m *SyncCursorModel) ToDomain() *delta.SyncCursor {
	return &delta.SyncCursor{
		AccountID:    m.AccountID,
		Kind:         m.Kind,
		LastSyncedAt: m.LastSyncedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// TaskModel is the persistence model for a side-effect task.
type TaskModel struct {
	ID             uuid.UUID    `gorm:"type:uuid;primary_key"`
	Kind           task.Kind    `gorm:"type:varchar(40);not null"`
	AccountID      uuid.UUID    `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID    `gorm:"type:uuid"`
	RequestID      string       `gorm:"type:varchar(64)"`
	EntityType     string       `gorm:"type:varchar(50);index:idx_tasks_entity,priority:1"`
	EntityID       uuid.UUID    `gorm:"type:uuid;index:idx_tasks_entity,priority:2"`
	IdempotencyKey *string      `gorm:"type:varchar(255);uniqueIndex"`
	Payload        *string      `gorm:"type:jsonb"`
	Stage          task.Stage   `gorm:"type:varchar(20);not null"`
	Status         task.Status  `gorm:"type:varchar(20);not null;index:idx_tasks_due,priority:1"`
	Attempt        int          `gorm:"not null;default:0"`
	Outcome        task.Outcome `gorm:"type:varchar(20);not null"`
	LastError      string       `gorm:"type:text"`
	NextRunAt      time.Time    `gorm:"not null;index:idx_tasks_due,priority:2"`
	LockedUntil    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
	CompletedAt    *time.Time
}

// TableName returns the table name for GORM
func (TaskModel) TableName() string {
	return "tasks"
}

// ToDomain converts the persistence model to a domain Task.
func (m *TaskModel) ToDomain() *task.Task {
	t := &task.Task{
		ID:             m.ID,
		Kind:           m.Kind,
		AccountID:      m.AccountID,
		UserID:         m.UserID,
		RequestID:      m.RequestID,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		IdempotencyKey: m.IdempotencyKey,
		Stage:          m.Stage,
		Status:         m.Status,
		Attempt:        m.Attempt,
		Outcome:        m.Outcome,
		LastError:      m.LastError,
		NextRunAt:      m.NextRunAt,
		LockedUntil:    m.LockedUntil,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		CompletedAt:    m.CompletedAt,
	}
	if m.Payload != nil {
		t.Payload = json.RawMessage(*m.Payload)
	}
	return t
}

// FromDomain populates the persistence model from a domain Task.
func (m *TaskModel) FromDomain(t *task.Task) {
	m.ID = t.ID
	m.Kind = t.Kind
	m.AccountID = t.AccountID
	m.UserID = t.UserID
	m.RequestID = t.RequestID
	m.EntityType = t.EntityType
	m.EntityID = t.EntityID
	m.IdempotencyKey = t.IdempotencyKey
	m.Payload = nil
	if len(t.Payload) > 0 {
		p := string(t.Payload)
		m.Payload = &p
	}
	m.Stage = t.Stage
	m.Status = t.Status
	m.Attempt = t.Attempt
	m.Outcome = t.Outcome
	m.LastError = t.LastError
	m.NextRunAt = t.NextRunAt
	m.LockedUntil = t.LockedUntil
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
	m.CompletedAt = t.CompletedAt
}

// TaskModelFromDomain creates a new persistence model from a domain Task.
func TaskModelFromDomain(t *task.Task) *TaskModel {
	m := &TaskModel{}
	m.FromDomain(t)
	return m
}

// All lists every model of the sync schema, in dependency order.
func All() []any {
	return []any{
		&AccountModel{},
		&CatalogProductModel{},
		&PublishableItemModel{},
		&DirtyMarkModel{},
		&SyncCursorModel{},
		&OrderModel{},
		&OrderLineItemModel{},
		&OrderReturnModel{},
		&TaskModel{},
	}
}

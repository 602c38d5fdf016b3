// Package task models persisted side effects. A task runs the stages
// initialize, execute and finalize in order, each with its own bounded retry
// policy. Finalize always runs, also after the earlier stages failed.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
)

// Kind names the side effect a task performs
type Kind string

const (
	KindPublish               Kind = "publish"
	KindUnpublish             Kind = "unpublish"
	KindListingRevise         Kind = "listing_revise"
	KindMarketplaceStatusPush Kind = "marketplace_status_push"
	KindMarketplaceEvent      Kind = "marketplace_event"
	KindCoreOrderPush         Kind = "core_order_push"
	KindMarketplaceRefund     Kind = "marketplace_refund"
)

// Stage is one step of the task chain
type Stage string

const (
	StageInitialize Stage = "initialize"
	StageExecute    Stage = "execute"
	StageFinalize   Stage = "finalize"
)

// Status is the dispatch state of a task
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusDead       Status = "dead"
)

// Outcome is what finalize gets told about the earlier stages
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Entity types referenced by tasks
const (
	EntityItem    = "publishable_item"
	EntityOrder   = "order"
	EntityProduct = "catalog_product"
)

// Spec describes a task to enqueue
type Spec struct {
	Kind       Kind
	EntityType string
	EntityID   uuid.UUID
	// IdempotencyKey drops the enqueue when a task with the same key exists
	IdempotencyKey string
	Payload        any
}

// Task is a persisted side effect
type Task struct {
	ID             uuid.UUID
	Kind           Kind
	AccountID      uuid.UUID
	UserID         uuid.UUID
	RequestID      string
	EntityType     string
	EntityID       uuid.UUID
	IdempotencyKey *string
	Payload        json.RawMessage
	Stage          Stage
	Status         Status
	Attempt        int
	Outcome        Outcome
	LastError      string
	NextRunAt      time.Time
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// New creates a pending task carrying the execution context
func New(exec shared.ExecutionContext, spec Spec) (*Task, error) {
	if spec.Kind == "" {
		return nil, shared.NewDomainError("TASK_INVALID_KIND", "task kind cannot be empty")
	}
	var payload json.RawMessage
	if spec.Payload != nil {
		b, err := json.Marshal(spec.Payload)
		if err != nil {
			return nil, fmt.Errorf("task: marshal %s payload: %w", spec.Kind, err)
		}
		payload = b
	}
	now := time.Now()
	t := &Task{
		ID:         uuid.New(),
		Kind:       spec.Kind,
		AccountID:  exec.AccountID,
		UserID:     exec.UserID,
		RequestID:  exec.RequestID,
		EntityType: spec.EntityType,
		EntityID:   spec.EntityID,
		Payload:    payload,
		Stage:      StageInitialize,
		Status:     StatusPending,
		Outcome:    OutcomeNone,
		NextRunAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if spec.IdempotencyKey != "" {
		key := spec.IdempotencyKey
		t.IdempotencyKey = &key
	}
	return t, nil
}

// Execution restores the context the task was enqueued under
func (t *Task) Execution() shared.ExecutionContext {
	return shared.ExecutionContext{AccountID: t.AccountID, UserID: t.UserID, RequestID: t.RequestID}
}

// DecodePayload unmarshals the payload into v
func (t *Task) DecodePayload(v any) error {
	if len(t.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return Permanent(fmt.Errorf("task: decode %s payload: %w", t.Kind, err))
	}
	return nil
}

// Claim leases the task to a worker
func (t *Task) Claim(now time.Time, lease time.Duration) {
	until := now.Add(lease)
	t.Status = StatusProcessing
	t.LockedUntil = &until
	t.UpdatedAt = now
}

// CompleteStage moves the task past its current stage
func (t *Task) CompleteStage(now time.Time) {
	t.Attempt = 0
	t.LastError = ""
	t.LockedUntil = nil
	t.UpdatedAt = now
	switch t.Stage {
	case StageInitialize:
		t.Stage = StageExecute
		t.Status = StatusPending
		t.NextRunAt = now
	case StageExecute:
		t.Stage = StageFinalize
		t.Outcome = OutcomeSucceeded
		t.Status = StatusPending
		t.NextRunAt = now
	case StageFinalize:
		t.Status = StatusDone
		t.CompletedAt = &now
	}
}

// FailureResult says what a stage failure led to
type FailureResult int

const (
	// FailureRetry schedules another attempt of the same stage
	FailureRetry FailureResult = iota
	// FailureEscalated gave up the stage and moved on to finalize
	FailureEscalated
	// FailureDead gave up finalize; nothing runs any more
	FailureDead
)

// FailStage records a failed attempt of the current stage
func (t *Task) FailStage(err error, policy StagePolicy, now time.Time) FailureResult {
	t.Attempt++
	t.LastError = err.Error()
	t.LockedUntil = nil
	t.UpdatedAt = now

	if !IsPermanent(err) && t.Attempt < policy.MaxAttempts {
		t.Status = StatusPending
		t.NextRunAt = now.Add(policy.Delay(t.Attempt))
		return FailureRetry
	}
	if t.Stage == StageFinalize {
		t.Status = StatusDead
		t.CompletedAt = &now
		return FailureDead
	}
	t.Stage = StageFinalize
	t.Outcome = OutcomeFailed
	t.Attempt = 0
	t.Status = StatusPending
	t.NextRunAt = now
	return FailureEscalated
}

// IsFinished returns true once nothing more will run
func (t *Task) IsFinished() bool {
	return t.Status == StatusDone || t.Status == StatusDead
}

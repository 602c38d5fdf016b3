package shared

import (
	"context"

	"github.com/google/uuid"
)

// ExecutionContext identifies on whose behalf a unit of work runs. It travels
// with every scheduled side effect so retries execute as the original actor.
type ExecutionContext struct {
	AccountID uuid.UUID `json:"account_id"`
	// UserID is uuid.Nil for work started by the system (scheduled runs)
	UserID    uuid.UUID `json:"user_id"`
	RequestID string    `json:"request_id,omitempty"`
}

// IsSystem returns true when no acting user is attached
func (e ExecutionContext) IsSystem() bool {
	return e.UserID == uuid.Nil
}

type executionKey struct{}

// WithExecution attaches the execution context to ctx
func WithExecution(ctx context.Context, exec ExecutionContext) context.Context {
	return context.WithValue(ctx, executionKey{}, exec)
}

// ExecutionFromContext returns the execution context stored in ctx, if any
func ExecutionFromContext(ctx context.Context) (ExecutionContext, bool) {
	exec, ok := ctx.Value(executionKey{}).(ExecutionContext)
	return exec, ok
}

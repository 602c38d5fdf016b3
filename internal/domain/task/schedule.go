package task

import (
	"context"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
)

// Schedule enqueues a task through repo, which must belong to the caller's
// transaction so the task commits together with the state change that
// caused it. The execution context is taken from ctx. It returns false when
// the idempotency key was already used.
func Schedule(ctx context.Context, repo Repository, spec Spec) (bool, error) {
	exec, _ := shared.ExecutionFromContext(ctx)
	t, err := New(exec, spec)
	if err != nil {
		return false, err
	}
	inserted, err := repo.Enqueue(ctx, t)
	if err != nil {
		return false, fmt.Errorf("task: enqueue %s: %w", spec.Kind, err)
	}
	return inserted, nil
}

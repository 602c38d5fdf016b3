// Package sideeffect executes persisted tasks. Every task runs initialize,
// execute and finalize through the Handler registered for its kind, with
// bounded retries per stage. Finalize always runs, so a handler can record
// the terminal outcome of its entity even when the remote call never
// succeeded.
package sideeffect

import (
	"context"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/domain/task"
)

// Handler performs the stages of one task kind
type Handler interface {
	Kind() task.Kind
	// Initialize checks that the task still makes sense and loads what it
	// needs. A permanent error skips straight to finalize.
	Initialize(ctx context.Context, t *task.Task) error
	// Execute performs the remote side effect
	Execute(ctx context.Context, t *task.Task) error
	// Finalize records the outcome of the earlier stages
	Finalize(ctx context.Context, t *task.Task, outcome task.Outcome) error
}

// noopStages gives handlers empty Initialize and Finalize stages
type noopStages struct{}

func (noopStages) Initialize(ctx context.Context, t *task.Task) error {
	return nil
}

func (noopStages) Finalize(ctx context.Context, t *task.Task, outcome task.Outcome) error {
	return nil
}

// Registry maps task kinds to handlers
type Registry struct {
	handlers map[task.Kind]Handler
}

// NewRegistry creates a registry from handlers
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[task.Kind]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds or replaces the handler of its kind
func (r *Registry) Register(h Handler) {
	r.handlers[h.Kind()] = h
}

// Get returns the handler of kind
func (r *Registry) Get(kind task.Kind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, task.Permanent(fmt.Errorf("sideeffect: no handler for task kind %q", kind))
	}
	return h, nil
}

// Kinds lists the registered kinds
func (r *Registry) Kinds() []task.Kind {
	kinds := make([]task.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// runStage dispatches the task's current stage to h
func runStage(ctx context.Context, h Handler, t *task.Task) error {
	switch t.Stage {
	case task.StageInitialize:
		return h.Initialize(ctx, t)
	case task.StageExecute:
		return h.Execute(ctx, t)
	case task.StageFinalize:
		return h.Finalize(ctx, t, t.Outcome)
	}
	return task.Permanent(fmt.Errorf("sideeffect: unknown stage %q", t.Stage))
}

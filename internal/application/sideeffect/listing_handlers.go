package sideeffect

import (
	"context"
	"errors"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher is the part of the publishing service the listing handlers use
type Publisher interface {
	Publish(ctx context.Context, itemID uuid.UUID) error
	Unpublish(ctx context.Context, itemID uuid.UUID) error
	Revise(ctx context.Context, itemID uuid.UUID) error
	Fail(ctx context.Context, itemID uuid.UUID, details listing.FailureDetails) error
}

func loadItem(ctx context.Context, store ports.Store, id uuid.UUID) (*listing.PublishableItem, error) {
	item, err := store.Items().FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, task.Permanent(err)
	}
	return item, err
}

// PublishHandler runs publish tasks
type PublishHandler struct {
	store     ports.Store
	publisher Publisher
	pusher    *StatePusher
	logger    *zap.Logger
}

// NewPublishHandler creates a PublishHandler
func NewPublishHandler(store ports.Store, publisher Publisher, pusher *StatePusher, logger *zap.Logger) *PublishHandler {
	return &PublishHandler{store: store, publisher: publisher, pusher: pusher, logger: logger}
}

// Kind implements Handler
func (h *PublishHandler) Kind() task.Kind { return task.KindPublish }

// Initialize implements Handler
func (h *PublishHandler) Initialize(ctx context.Context, t *task.Task) error {
	item, err := loadItem(ctx, h.store, t.EntityID)
	if err != nil {
		return err
	}
	if item.Status.IsTerminal() {
		return task.Permanent(fmt.Errorf("%w: item %s is %s", listing.ErrInvalidTransition, item.ID, item.Status))
	}
	return nil
}

// Execute implements Handler
func (h *PublishHandler) Execute(ctx context.Context, t *task.Task) error {
	err := h.publisher.Publish(ctx, t.EntityID)
	if errors.Is(err, listing.ErrConcurrentPublishRejected) {
		// someone else holds the product right now; try again later
		return fmt.Errorf("publish item %s: product busy", t.EntityID)
	}
	return err
}

// Finalize implements Handler
func (h *PublishHandler) Finalize(ctx context.Context, t *task.Task, outcome task.Outcome) error {
	return h.FinalizeItem(ctx, t.EntityID, outcome, t.LastError)
}

// FinalizeItem records the terminal state of a publish and reports it to
// core. It is also called for items the stuck sweep gave up on.
func (h *PublishHandler) FinalizeItem(ctx context.Context, itemID uuid.UUID, outcome task.Outcome, lastError string) error {
	if outcome == task.OutcomeFailed {
		details := listing.FailureDetails{Reason: listing.ReasonRetryExhausted}
		if lastError != "" {
			details.Messages = []listing.FailureMessage{{Code: "task", Severity: "Error", Message: lastError}}
		}
		if err := h.publisher.Fail(ctx, itemID, details); err != nil {
			return err
		}
	}
	item, err := h.pusher.PushItem(ctx, itemID)
	if err != nil {
		return err
	}
	logger.WithLogger(ctx, h.logger).Info("Publish finalized",
		zap.String("item_id", itemID.String()),
		zap.String("outcome", string(outcome)),
		zap.String("status", item.Status.String()),
	)
	return nil
}

// UnpublishHandler runs unpublish tasks
type UnpublishHandler struct {
	store     ports.Store
	publisher Publisher
	pusher    *StatePusher
	logger    *zap.Logger
}

// NewUnpublishHandler creates an UnpublishHandler
func NewUnpublishHandler(store ports.Store, publisher Publisher, pusher *StatePusher, logger *zap.Logger) *UnpublishHandler {
	return &UnpublishHandler{store: store, publisher: publisher, pusher: pusher, logger: logger}
}

// Kind implements Handler
func (h *UnpublishHandler) Kind() task.Kind { return task.KindUnpublish }

// Initialize implements Handler
func (h *UnpublishHandler) Initialize(ctx context.Context, t *task.Task) error {
	item, err := loadItem(ctx, h.store, t.EntityID)
	if err != nil {
		return err
	}
	if !item.IsPublished() && item.Status != listing.StatusUnpublished {
		return task.Permanent(fmt.Errorf("%w: item %s is %s", listing.ErrNotPublished, item.ID, item.Status))
	}
	return nil
}

// Execute implements Handler
func (h *UnpublishHandler) Execute(ctx context.Context, t *task.Task) error {
	return h.publisher.Unpublish(ctx, t.EntityID)
}

// Finalize implements Handler
func (h *UnpublishHandler) Finalize(ctx context.Context, t *task.Task, outcome task.Outcome) error {
	if outcome == task.OutcomeFailed {
		logger.WithLogger(ctx, h.logger).Error("Unpublish gave up, listing may still be live",
			zap.String("item_id", t.EntityID.String()),
			zap.String("last_error", t.LastError),
		)
	}
	_, err := h.pusher.PushItem(ctx, t.EntityID)
	return err
}

// ReviseHandler runs listing_revise tasks
type ReviseHandler struct {
	noopStages
	publisher Publisher
}

// NewReviseHandler creates a ReviseHandler
func NewReviseHandler(publisher Publisher) *ReviseHandler {
	return &ReviseHandler{publisher: publisher}
}

// Kind implements Handler
func (h *ReviseHandler) Kind() task.Kind { return task.KindListingRevise }

// Execute implements Handler
func (h *ReviseHandler) Execute(ctx context.Context, t *task.Task) error {
	return h.publisher.Revise(ctx, t.EntityID)
}

var (
	_ Handler = (*PublishHandler)(nil)
	_ Handler = (*UnpublishHandler)(nil)
	_ Handler = (*ReviseHandler)(nil)
)

package handler

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/dto"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListingService is what the listing endpoints need from publishing
type ListingService interface {
	Validate(ctx context.Context, accountID uuid.UUID, coreProductID string) error
	RequestPublish(ctx context.Context, accountID uuid.UUID, coreProductID string) (*listing.PublishableItem, error)
	RequestUnpublish(ctx context.Context, accountID, itemID uuid.UUID) error
}

// ListingHandler handles validate, publish and unpublish requests
type ListingHandler struct {
	BaseHandler
	service ListingService
}

// NewListingHandler creates a new ListingHandler
func NewListingHandler(service ListingService) *ListingHandler {
	return &ListingHandler{service: service}
}

// ValidationResponse is returned when a product passes every precondition
type ValidationResponse struct {
	ProductID   string `json:"product_id"`
	Publishable bool   `json:"publishable"`
}

// PublishResponse describes the item a publish request started
type PublishResponse struct {
	ItemID    uuid.UUID             `json:"item_id"`
	AccountID uuid.UUID             `json:"account_id"`
	ProductID string                `json:"product_id"`
	Status    listing.PublishStatus `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
}

// UnpublishResponse acknowledges a scheduled unpublish
type UnpublishResponse struct {
	ItemID uuid.UUID `json:"item_id"`
	Status string    `json:"status"`
}

// Validate checks the publish preconditions of a core product.
// POST /api/v1/accounts/:account_id/products/:product_id/validate
func (h *ListingHandler) Validate(c *gin.Context) {
	var path dto.ProductPath
	if err := c.ShouldBindUri(&path); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	accountID := uuid.MustParse(path.AccountID)

	if err := h.service.Validate(c.Request.Context(), accountID, path.ProductID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ValidationResponse{ProductID: path.ProductID, Publishable: true})
}

// Publish starts publishing a core product. The marketplace call runs in a
// background task; the answer carries the InProgress item.
// POST /api/v1/accounts/:account_id/products/:product_id/publish
func (h *ListingHandler) Publish(c *gin.Context) {
	var path dto.ProductPath
	if err := c.ShouldBindUri(&path); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	accountID := uuid.MustParse(path.AccountID)

	item, err := h.service.RequestPublish(c.Request.Context(), accountID, path.ProductID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, PublishResponse{
		ItemID:    item.ID,
		AccountID: item.AccountID,
		ProductID: path.ProductID,
		Status:    item.Status,
		CreatedAt: item.CreatedAt,
	})
}

// Unpublish schedules ending the listing of a published item.
// DELETE /api/v1/accounts/:account_id/listings/:item_id
func (h *ListingHandler) Unpublish(c *gin.Context) {
	var path dto.ListingPath
	if err := c.ShouldBindUri(&path); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	accountID := uuid.MustParse(path.AccountID)
	itemID := uuid.MustParse(path.ItemID)

	if err := h.service.RequestUnpublish(c.Request.Context(), accountID, itemID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, UnpublishResponse{ItemID: itemID, Status: "unpublish_scheduled"})
}

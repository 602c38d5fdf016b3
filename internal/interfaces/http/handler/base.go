package handler

import (
	"errors"
	"net/http"

	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/scheduler"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDKey)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work that continues in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// PublishValidationError sends a 422 listing every unmet publish precondition
func (h *BaseHandler) PublishValidationError(c *gin.Context, verr *listing.ValidationError) {
	details := make([]dto.ValidationDetail, 0, len(verr.Failures))
	for _, f := range verr.Failures {
		details = append(details, dto.ValidationDetail{Field: f.Code, Message: f.Message})
	}
	c.JSON(http.StatusUnprocessableEntity, dto.NewValidationErrorResponse(
		dto.ErrCodePublishPreconditions,
		"Publish preconditions not met",
		getRequestID(c),
		details,
	))
}

// HandleError converts application errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var verr *listing.ValidationError
	if errors.As(err, &verr) {
		h.PublishValidationError(c, verr)
		return
	}

	switch {
	case errors.Is(err, scheduler.ErrJobAlreadyQueued):
		h.ErrorWithCode(c, dto.ErrCodeRunInProgress, err.Error())
		return
	case errors.Is(err, scheduler.ErrJobQueueFull), errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.ErrorWithCode(c, dto.ErrCodeQueueFull, "Sync queue cannot accept the run")
		return
	case errors.Is(err, core.ErrCoreUnavailable), errors.Is(err, marketplace.ErrMarketplaceUnavailable):
		logger.L(c.Request.Context()).Warn("Upstream unavailable", zap.Error(err))
		h.ErrorWithCode(c, dto.ErrCodeUnavailable, "Upstream system unavailable")
		return
	case errors.Is(err, core.ErrCoreRejected):
		h.ErrorWithCode(c, dto.ErrCodeBusinessRule, err.Error())
		return
	}

	// Check for domain error using errors.As for wrapped error support
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	logger.L(c.Request.Context()).Error("Unhandled request error", zap.Error(err))
	h.InternalError(c, "An unexpected error occurred")
}

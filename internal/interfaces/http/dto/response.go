package dto

import "time"

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one failed check. For publish preconditions Field
// carries the precondition code.
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return NewErrorResponseWithRequestID(code, message, "")
}

// NewErrorResponseWithRequestID creates an error response tagged with the request id
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	}
}

// NewValidationErrorResponse creates an error response listing every failed check
func NewValidationErrorResponse(code, message, requestID string, details []ValidationDetail) Response {
	resp := NewErrorResponseWithRequestID(code, message, requestID)
	resp.Error.Details = details
	return resp
}

// AccountPath binds the account of a route
type AccountPath struct {
	AccountID string `uri:"account_id" binding:"required,uuid"`
}

// ProductPath binds a core product of an account
type ProductPath struct {
	AccountID string `uri:"account_id" binding:"required,uuid"`
	ProductID string `uri:"product_id" binding:"required,max=128"`
}

// ListingPath binds a publishable item of an account
type ListingPath struct {
	AccountID string `uri:"account_id" binding:"required,uuid"`
	ItemID    string `uri:"item_id" binding:"required,uuid"`
}

// SyncPath binds a sync run request
type SyncPath struct {
	AccountID string `uri:"account_id" binding:"required,uuid"`
	Kind      string `uri:"kind" binding:"required"`
}

// SyncQuery selects between queueing a run and running it inline
type SyncQuery struct {
	Wait bool `form:"wait"`
}

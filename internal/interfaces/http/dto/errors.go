package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a remote system cannot be reached
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for request validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodePublishPreconditions is used when a product cannot be published
	ErrCodePublishPreconditions = "ERR_PUBLISH_PRECONDITIONS"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Sync and publishing error codes
const (
	// ErrCodeConcurrentPublish is used when another publish of the product holds the guard
	ErrCodeConcurrentPublish = "ERR_CONCURRENT_PUBLISH"
	// ErrCodeRunInProgress is used when a run of the kind is already active or queued
	ErrCodeRunInProgress = "ERR_RUN_IN_PROGRESS"
	// ErrCodeUnknownSyncKind is used for an unsupported sync kind
	ErrCodeUnknownSyncKind = "ERR_UNKNOWN_SYNC_KIND"
	// ErrCodeAccountInactive is used when the account is deactivated
	ErrCodeAccountInactive = "ERR_ACCOUNT_INACTIVE"
	// ErrCodeNotPublished is used when unpublishing an item that is not listed
	ErrCodeNotPublished = "ERR_NOT_PUBLISHED"
	// ErrCodeMalformedResponse is used when a delta feed answer fails validation
	ErrCodeMalformedResponse = "ERR_MALFORMED_RESPONSE"
	// ErrCodeQueueFull is used when the run queue cannot take more jobs
	ErrCodeQueueFull = "ERR_QUEUE_FULL"
)

// Business rule error codes
const (
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusBadGateway,

	// Validation errors
	ErrCodeValidation:           http.StatusBadRequest,
	ErrCodePublishPreconditions: http.StatusUnprocessableEntity,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Sync and publishing
	ErrCodeConcurrentPublish: http.StatusConflict,
	ErrCodeRunInProgress:     http.StatusConflict,
	ErrCodeUnknownSyncKind:   http.StatusBadRequest,
	ErrCodeAccountInactive:   http.StatusUnprocessableEntity,
	ErrCodeNotPublished:      http.StatusUnprocessableEntity,
	ErrCodeMalformedResponse: http.StatusBadGateway,
	ErrCodeQueueFull:         http.StatusServiceUnavailable,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeBusinessRule: http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                   ErrCodeNotFound,
	"ALREADY_EXISTS":              ErrCodeAlreadyExists,
	"INVALID_INPUT":               ErrCodeInvalidInput,
	"INVALID_STATE":               ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT":        ErrCodeConcurrencyConflict,
	"CONCURRENT_PUBLISH_REJECTED": ErrCodeConcurrentPublish,
	"INVALID_PUBLISH_TRANSITION":  ErrCodeInvalidState,
	"ITEM_NOT_PUBLISHED":          ErrCodeNotPublished,
	"RUN_IN_PROGRESS":             ErrCodeRunInProgress,
	"ACCOUNT_INACTIVE":            ErrCodeAccountInactive,
	"UNKNOWN_SYNC_KIND":           ErrCodeUnknownSyncKind,
	"MALFORMED_RESPONSE":          ErrCodeMalformedResponse,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Domain codes without a mapping become ERR_BUSINESS_RULE; codes already in
// the API format are returned as is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	if _, ok := ErrorCodeHTTPStatus[code]; ok {
		return code
	}
	return ErrCodeBusinessRule
}

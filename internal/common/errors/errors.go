// Package errors provides standardized error handling for the provisioning workflow.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Provisioning workflow errors, one per failing step plus the
// idempotency-guard rejections.
const (
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeTenantNotFound ErrorCode = "TENANT_NOT_FOUND"

	ErrCodeStoreUnavailable       ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeEmbeddingProviderError ErrorCode = "EMBEDDING_PROVIDER_ERROR"
	ErrCodeLaunchError            ErrorCode = "LAUNCH_ERROR"

	ErrCodeAlreadyProvisioned  ErrorCode = "ALREADY_PROVISIONED"
	ErrCodeProvisionInProgress ErrorCode = "PROVISION_IN_PROGRESS"
	ErrCodeCompensationFailed  ErrorCode = "COMPENSATION_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidRequestError creates a non-retryable request validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid provisioning request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTenantNotFoundError creates a non-retryable not-found error.
func NewTenantNotFoundError(clinicID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTenantNotFound,
		Message:   "Clinic not found in profile store",
		Details:   fmt.Sprintf("clinicId: %s", clinicID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable profile store transport error.
func NewStoreUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Profile store request failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmbeddingProviderError creates a retryable embedding provider error.
func NewEmbeddingProviderError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingProviderError,
		Message:   "Embedding provider request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLaunchError creates a retryable launcher error carrying the launcher's
// raw status code and response body. Never swallow these: a launch failure
// after a successful commit leaves the store saying live with no agent.
func NewLaunchError(statusCode int, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLaunchError,
		Message:   "Compute launcher rejected instance creation",
		Details:   fmt.Sprintf("status: %d, body: %s", statusCode, body),
		Retryable: true,
		Metadata: map[string]interface{}{
			"launcherStatus": statusCode,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewLaunchTransportError creates a retryable launcher transport error
// (connection failure or timeout, no HTTP status available).
func NewLaunchTransportError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLaunchError,
		Message:   "Compute launcher request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyProvisionedError creates a non-retryable duplicate-provision error.
func NewAlreadyProvisionedError(clinicID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyProvisioned,
		Message:   "Clinic is already live",
		Details:   fmt.Sprintf("clinicId: %s", clinicID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProvisionInProgressError creates a non-retryable lock-contention error.
// Retryable is false because the concurrent run will finish the work.
func NewProvisionInProgressError(clinicID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProvisionInProgress,
		Message:   "A provisioning run for this clinic is already in progress",
		Details:   fmt.Sprintf("clinicId: %s", clinicID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompensationFailedError records a failed status rollback after a launch
// failure. The clinic is marked live in the store with no running agent.
func NewCompensationFailedError(clinicID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompensationFailed,
		Message:   "Failed to roll back clinic status after launch failure",
		Details:   fmt.Sprintf("clinicId: %s, error: %s", clinicID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatusMapping maps internal error codes to HTTP response statuses.
// Client mistakes are 4xx, downstream failures are 5xx so callers can decide
// whether to retry the whole request.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeInvalidRequest:         http.StatusBadRequest,
	ErrCodeTenantNotFound:         http.StatusNotFound,
	ErrCodeAlreadyProvisioned:     http.StatusConflict,
	ErrCodeProvisionInProgress:    http.StatusConflict,
	ErrCodeStoreUnavailable:       http.StatusBadGateway,
	ErrCodeEmbeddingProviderError: http.StatusBadGateway,
	ErrCodeLaunchError:            http.StatusBadGateway,
	ErrCodeCompensationFailed:     http.StatusBadGateway,
	ErrCodeInternal:               http.StatusInternalServerError,
}

// HTTPStatus returns the response status for an error code.
func HTTPStatus(code ErrorCode) int {
	if status, exists := HTTPStatusMapping[code]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// ==========================
// 4. Utility Functions
// ==========================

// IsClientError reports whether the code maps to a 4xx response.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatus(code)
	return status >= 400 && status < 500
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "REQUEST") || strings.Contains(codeStr, "NOT_FOUND"):
		return "CLIENT"
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "EMBEDDING"):
		return "EMBEDDING"
	case strings.Contains(codeStr, "LAUNCH") || strings.Contains(codeStr, "COMPENSATION"):
		return "LAUNCHER"
	case strings.Contains(codeStr, "PROVISION"):
		return "GUARD"
	default:
		return "OTHER"
	}
}

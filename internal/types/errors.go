package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Components MUST use these constants instead of
// hardcoded strings; the pipeline routes failures by prefix.
const (
	// Data source (fatal for the run - no partial data is trustworthy)
	ErrCodeDataSourceUnreachable ErrorCode = "data_source_unreachable"
	ErrCodeDataSourceQuery       ErrorCode = "data_source_query_failed"

	// Recommendation (per-customer, non-fatal)
	ErrCodeRecommendationTimeout  ErrorCode = "recommendation_timeout"
	ErrCodeRecommendationRejected ErrorCode = "recommendation_request_rejected"
	ErrCodeRecommendationInvalid  ErrorCode = "recommendation_no_valid_items"

	// Upstream AI provider transport
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"

	// Composition (per-customer, treated as skip)
	ErrCodeCompositionFailed ErrorCode = "composition_failed"

	// Delivery (per-recipient, retried per policy)
	ErrCodeDeliveryTransient ErrorCode = "delivery_transient_failure"
	ErrCodeDeliveryRejected  ErrorCode = "delivery_rejected"
	ErrCodeDeliveryAuth      ErrorCode = "delivery_auth_failed"

	// Internal
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// IsFatal reports whether an error code aborts the whole run. Only data
// source failures qualify; everything else is contained at the customer
// boundary.
func (c ErrorCode) IsFatal() bool {
	return strings.HasPrefix(string(c), "data_source_")
}

// IsRetryable reports whether retrying the operation may succeed.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrCodeUpstreamRateLimited, ErrCodeUpstreamUnavailable,
		ErrCodeRecommendationTimeout, ErrCodeDeliveryTransient:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type. All component errors are
// expressed as AppError so the orchestrator can classify them (fatal vs
// per-customer, retryable vs terminal) without string matching.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates an AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Unclassified errors map
// to ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsRetryableError reports whether the error chain carries a retryable code.
func IsRetryableError(err error) bool {
	return CodeOf(err).IsRetryable()
}

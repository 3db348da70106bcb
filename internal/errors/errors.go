// Package errors provides a standardized error handling framework for the
// delay service. It defines the outcome taxonomy (cancelled, timeout,
// transport, validation, internal), wrapping functions, and classification
// methods so that a cancelled request is never conflated with a failed one.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// StatusClientClosedRequest is the non-standard HTTP status code used for
// "client closed request / cancelled". It is distinct from every 2xx/4xx/5xx
// code used for other outcomes.
const StatusClientClosedRequest = 499

// Standard error types for the application
var (
	ErrCancelled  = errors.New("cancelled")
	ErrTimeout    = errors.New("timeout error")
	ErrTransport  = errors.New("transport error")
	ErrValidation = errors.New("validation error")
	ErrInternal   = errors.New("internal error")
)

// errorType is a custom error with a specific type
type errorType struct {
	baseErr error
	msg     string
	cause   error
	details map[string]interface{}
}

type ErrorWithDetails interface {
	Error() string
	Details() map[string]interface{}
}

// Error implements the error interface
func (e *errorType) Error() string {
	if e == nil {
		return ""
	}

	base := fmt.Sprintf("%s: %s", e.baseErr.Error(), e.msg)

	if len(e.details) > 0 {
		detailsJSON, err := json.Marshal(e.details)
		if err == nil {
			base += fmt.Sprintf(" - details: %s", detailsJSON)
		}
	}

	if e.cause != nil {
		base += fmt.Sprintf(" - caused by: %v", e.cause)
	}

	return base
}

// Unwrap returns the underlying cause of the error
func (e *errorType) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether the error is of the specified type
func (e *errorType) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	return errors.Is(e.baseErr, target)
}

// Details implements ErrorWithDetails
func (e *errorType) Details() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.details
}

// NewCancelledError creates a new cancellation error. The cause is typically
// context.Canceled or the cause reported by a cancellation signal.
func NewCancelledError(msg string, cause error) error {
	return &errorType{
		baseErr: ErrCancelled,
		msg:     msg,
		cause:   cause,
	}
}

// NewTimeoutError creates a new protocol-level timeout error, distinct from
// an intentional cancellation.
func NewTimeoutError(msg string, cause error) error {
	return &errorType{
		baseErr: ErrTimeout,
		msg:     msg,
		cause:   cause,
	}
}

// NewTransportError creates a new transport error (connection refused, reset,
// host down) unrelated to cancellation.
func NewTransportError(msg string, cause error) error {
	return &errorType{
		baseErr: ErrTransport,
		msg:     msg,
		cause:   cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &errorType{
		baseErr: ErrValidation,
		msg:     msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(msg string) error {
	return &errorType{
		baseErr: ErrInternal,
		msg:     msg,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Check if it's our custom type
	if customErr, ok := err.(*errorType); ok {
		return &errorType{
			baseErr: customErr.baseErr,
			msg:     msg + ": " + customErr.msg,
			cause:   customErr.cause,
			details: customErr.details,
		}
	}

	// If it's a standard error, wrap it as an internal error
	return &errorType{
		baseErr: ErrInternal,
		msg:     msg,
		cause:   err,
	}
}

// Unwrap returns the wrapped error, following Go 1.13 error unwrapping convention
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// WithDetails adds detail information to an error
func WithDetails(err error, details map[string]interface{}) error {
	if err == nil {
		return nil
	}

	if customErr, ok := err.(*errorType); ok {
		return &errorType{
			baseErr: customErr.baseErr,
			msg:     customErr.msg,
			cause:   customErr.cause,
			details: details,
		}
	}

	return &errorType{
		baseErr: ErrInternal,
		msg:     err.Error(),
		details: details,
	}
}

// FromContext classifies a context error into the outcome taxonomy.
// context.Canceled maps to a cancellation, context.DeadlineExceeded to a
// protocol-level timeout. Any other error passes through unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return NewCancelledError("request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("deadline exceeded", err)
	default:
		return err
	}
}

// IsCancelled checks if the error is a cancellation. A raw context.Canceled
// counts: cancellation must be recognized wherever it surfaces.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsTimeout checks if the error is a protocol-level timeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransport checks if the error is a transport error
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransport)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrValidation)
}

// IsInternalError checks if the error is an internal error
func IsInternalError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInternal)
}

// Format returns a properly formatted error string
func Format(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// GetDetails returns error details if available, nil otherwise
func GetDetails(err error) map[string]interface{} {
	if err == nil {
		return nil
	}

	if detailedErr, ok := err.(ErrorWithDetails); ok {
		return detailedErr.Details()
	}

	return nil
}

// StatusCode returns the HTTP status code for an error outcome
func StatusCode(err error) int {
	switch {
	case err == nil:
		return 200
	case IsCancelled(err):
		return StatusClientClosedRequest
	case IsValidationError(err):
		return 400
	case IsTimeout(err):
		return 504
	case IsTransport(err):
		return 503
	default:
		return 500
	}
}

// ErrorResponse provides a consistent structure for error responses
type ErrorResponse struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	ErrorType string                 `json:"error_type"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToErrorResponse converts an error to a standardized ErrorResponse
func ToErrorResponse(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{
			Status:  "error",
			Message: "Unknown error",
		}
	}

	response := ErrorResponse{
		Status:  "error",
		Message: Format(err),
		Details: GetDetails(err),
	}

	switch {
	case IsCancelled(err):
		response.ErrorType = "cancelled"
	case IsTimeout(err):
		response.ErrorType = "timeout"
	case IsTransport(err):
		response.ErrorType = "transport"
	case IsValidationError(err):
		response.ErrorType = "validation"
	default:
		response.ErrorType = "internal"
	}

	return response
}

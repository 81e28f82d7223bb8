package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Synapse error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"   // 401
	ErrIdentityResolution ErrorCode = "IDENTITY_RESOLUTION" // 401
	ErrForbidden          ErrorCode = "FORBIDDEN"           // 403
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrEmptyStore         ErrorCode = "EMPTY_STORE"         // 409
	ErrContentTooLarge    ErrorCode = "CONTENT_TOO_LARGE"   // 413
	ErrCancelled          ErrorCode = "CANCELLED"           // 499
	ErrPersistence        ErrorCode = "PERSISTENCE"         // 500
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrSyncFailure        ErrorCode = "SYNC_FAILURE"        // 502
	ErrNetworkTimeout     ErrorCode = "NETWORK_TIMEOUT"     // 504
)

// SynapseError represents a structured error with code, status, and details.
type SynapseError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is the underlying error, if any. Not exposed to clients.
	cause error
}

// Error implements the error interface.
func (e *SynapseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause so errors.Is/As can see through.
func (e *SynapseError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SynapseError {
	return &SynapseError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotAuthenticated creates a 401 error for when no credential is available.
func NewNotAuthenticated() *SynapseError {
	return &SynapseError{
		Code:    ErrNotAuthenticated,
		Status:  401,
		Message: "not authenticated; set a token with 'synapse auth set-token' or log in to the web app",
	}
}

// NewIdentityResolution creates a 401 error for a credential whose identity cannot be determined.
func NewIdentityResolution(err error) *SynapseError {
	msg := "could not resolve user identity from credential"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &SynapseError{
		Code:    ErrIdentityResolution,
		Status:  401,
		Message: msg,
		cause:   err,
	}
}

// NewForbidden creates a 403 error for a request from a caller that may not use the endpoint.
func NewForbidden(msg string) *SynapseError {
	return &SynapseError{
		Code:    ErrForbidden,
		Status:  403,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a capture or queue entry cannot be found.
func NewNotFound(identifier string) *SynapseError {
	return &SynapseError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewEmptyStore creates a 409 error when exporting a store with no entries.
func NewEmptyStore(store string) *SynapseError {
	return &SynapseError{
		Code:    ErrEmptyStore,
		Status:  409,
		Message: "no captures to export",
		Details: map[string]any{"store": store},
	}
}

// NewContentTooLarge creates a 413 error when captured content exceeds the size limit.
func NewContentTooLarge(max, actual int) *SynapseError {
	return &SynapseError{
		Code:    ErrContentTooLarge,
		Status:  413,
		Message: fmt.Sprintf("content exceeds maximum size: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled via context.
func NewCancelled(operation string) *SynapseError {
	return &SynapseError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewPersistence creates a 500 error for durable-store read/write failures.
func NewPersistence(op string, err error) *SynapseError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &SynapseError{
		Code:    ErrPersistence,
		Status:  500,
		Message: msg,
		Details: map[string]any{"operation": op},
		cause:   err,
	}
}

// NewSyncFailure creates a 502 error for a failed remote write.
func NewSyncFailure(reason string) *SynapseError {
	return &SynapseError{
		Code:    ErrSyncFailure,
		Status:  502,
		Message: reason,
	}
}

// NewNetworkTimeout creates a 504 error for a remote write that exceeded its deadline.
func NewNetworkTimeout(err error) *SynapseError {
	msg := "remote request timed out"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &SynapseError{
		Code:    ErrNetworkTimeout,
		Status:  504,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SynapseError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SynapseError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a SynapseError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SynapseError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the SynapseError carried by err, if any.
func As(err error) (*SynapseError, bool) {
	var sErr *SynapseError
	ok := stderrors.As(err, &sErr)
	return sErr, ok
}

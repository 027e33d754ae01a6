package errors

import "fmt"

// ErrorCode represents a ticketsync error code.
type ErrorCode string

const (
	ErrTransientFetch  ErrorCode = "TRANSIENT_FETCH"  // rate-limited or network blip; retried
	ErrFatalFetch      ErrorCode = "FATAL_FETCH"      // auth rejected, bad query, retries exhausted
	ErrMalformedRecord ErrorCode = "MALFORMED_RECORD" // per-record; skipped, never aborts a batch
	ErrSinkWrite       ErrorCode = "SINK_WRITE"       // destination unreachable or rejected a flush
	ErrCredential      ErrorCode = "CREDENTIAL"       // token refresh failed; reauthorize required
	ErrNotConnected    ErrorCode = "NOT_CONNECTED"    // no delegated identity connected
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // bad trigger parameters
	ErrInternal        ErrorCode = "INTERNAL"         // unexpected internal error
)

// SyncError represents a structured error with a code, message, and details.
type SyncError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// NewTransientFetch creates a retryable fetch error (rate limit, timeout).
func NewTransientFetch(msg string, cause error) *SyncError {
	return &SyncError{
		Code:    ErrTransientFetch,
		Message: msg,
		Cause:   cause,
	}
}

// NewFatalFetch creates a fetch error that aborts the run. Rows already
// yielded before the failure are kept by the caller.
func NewFatalFetch(msg string, cause error) *SyncError {
	return &SyncError{
		Code:    ErrFatalFetch,
		Message: msg,
		Cause:   cause,
	}
}

// NewMalformedRecord creates a per-record error for records missing their
// unique identifier.
func NewMalformedRecord(msg string) *SyncError {
	return &SyncError{
		Code:    ErrMalformedRecord,
		Message: msg,
	}
}

// NewSinkWrite creates an error for a failed destination flush.
func NewSinkWrite(destination string, cause error) *SyncError {
	return &SyncError{
		Code:    ErrSinkWrite,
		Message: fmt.Sprintf("write to %s failed", destination),
		Details: map[string]any{"destination": destination},
		Cause:   cause,
	}
}

// NewCredential creates an error for a rejected token refresh.
func NewCredential(msg string, cause error) *SyncError {
	return &SyncError{
		Code:    ErrCredential,
		Message: msg,
		Cause:   cause,
	}
}

// NewNotConnected creates an error for operations requiring a connected
// Google identity when none is present.
func NewNotConnected() *SyncError {
	return &SyncError{
		Code:    ErrNotConnected,
		Message: "no Google account connected; run 'ticketsync connect' first",
	}
}

// NewInvalidRequest creates an error for invalid trigger parameters.
func NewInvalidRequest(msg string) *SyncError {
	return &SyncError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *SyncError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SyncError{
		Code:    ErrInternal,
		Message: msg,
		Cause:   err,
	}
}

// Is checks if an error is a SyncError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := err.(*SyncError); ok {
		return sErr.Code == code
	}
	return false
}

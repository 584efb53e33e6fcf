// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown          = "UNKNOWN_ERROR"
	CodeInvalidIndex     = "INVALID_INDEX"
	CodeBadDistribution  = "BAD_DISTRIBUTION"
	CodeIoFailure        = "IO_FAILURE"
	CodeTransportFailure = "TRANSPORT_FAILURE"
	CodeUsageError       = "USAGE_ERROR"
	CodeConfigError      = "CONFIG_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeDownloadError    = "DOWNLOAD_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrInvalidIndex     = New(CodeInvalidIndex, "invalid index")
	ErrBadDistribution  = New(CodeBadDistribution, "bad distribution")
	ErrIoFailure        = New(CodeIoFailure, "io failure")
	ErrTransportFailure = New(CodeTransportFailure, "transport failure")
	ErrUsageError       = New(CodeUsageError, "usage error")
	ErrConfigError      = New(CodeConfigError, "configuration error")
	ErrDatabaseError    = New(CodeDatabaseError, "database error")
	ErrDownloadError    = New(CodeDownloadError, "download error")
)

// IsInvalidIndex checks if the error is an invalid index error.
func IsInvalidIndex(err error) bool {
	return errors.Is(err, ErrInvalidIndex)
}

// IsBadDistribution checks if the error is a bad distribution error.
func IsBadDistribution(err error) bool {
	return errors.Is(err, ErrBadDistribution)
}

// IsIoFailure checks if the error is an io failure.
func IsIoFailure(err error) bool {
	return errors.Is(err, ErrIoFailure)
}

// IsTransportFailure checks if the error is a transport failure.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}

// IsUsageError checks if the error is a usage error.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrUsageError)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

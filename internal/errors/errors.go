package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"counterfact/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code of a wrapped AppError
// is kept; domain errors are classified.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    Classify(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeSpecValidation = "SPEC_VALIDATION"
	CodeDataContract   = "DATA_CONTRACT"
	CodeEstimation     = "ESTIMATION_ERROR"
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeDatabaseError  = "DATABASE_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeInvalidInput   = "INVALID_INPUT"
)

// Classify maps domain sentinels to error codes
func Classify(err error) string {
	var appErr *AppError
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &appErr):
		return appErr.Code
	case stderrors.Is(err, core.ErrSpecValidation):
		return CodeSpecValidation
	case stderrors.Is(err, core.ErrDataContract):
		return CodeDataContract
	case stderrors.Is(err, core.ErrEstimation):
		return CodeEstimation
	case stderrors.Is(err, core.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternalError
	}
}

// HTTPStatus maps an error code to the response status the API layer uses
func HTTPStatus(code string) int {
	switch code {
	case CodeSpecValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeDataContract, CodeEstimation:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

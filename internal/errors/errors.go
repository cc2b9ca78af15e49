package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Selection-time validation
	ErrorTypeUnsupportedType ErrorType = "unsupported_type"
	ErrorTypeFileTooLarge    ErrorType = "file_too_large"

	// Controller misuse guards
	ErrorTypeNoFileSelected    ErrorType = "no_file_selected"
	ErrorTypeAlreadySubmitting ErrorType = "already_submitting"

	// Submission outcomes
	ErrorTypeTransport          ErrorType = "transport"
	ErrorTypeTimeout            ErrorType = "timeout"
	ErrorTypeServer             ErrorType = "server"
	ErrorTypeInvalidResultShape ErrorType = "invalid_result_shape"

	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// GenericFailureMessage is shown when neither the server nor the transport
// supplied any usable text.
const GenericFailureMessage = "An unexpected error occurred. Please try again."

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewUnsupportedTypeError creates an error for a content type outside the accepted set
func NewUnsupportedTypeError(contentType string) *AppError {
	e := newError(ErrorTypeUnsupportedType, http.StatusUnsupportedMediaType,
		"Unsupported file type. Please choose a JPEG, PNG or WEBP image, or an MP4, WEBM, MOV or MKV video.", nil)
	e.Details = contentType
	return e
}

// NewFileTooLargeError creates an error for a file above its kind's size bound
func NewFileTooLargeError(size, limit int64) *AppError {
	e := newError(ErrorTypeFileTooLarge, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("File size must not exceed %dMB.", limit/(1024*1024)), nil)
	e.Details = fmt.Sprintf("size=%d limit=%d", size, limit)
	return e
}

// NewNoFileSelectedError creates the error returned by submit without a selection
func NewNoFileSelectedError() *AppError {
	return newError(ErrorTypeNoFileSelected, http.StatusConflict, "Please select a file first.", nil)
}

// NewAlreadySubmittingError creates the error returned by submit while a request is in flight
func NewAlreadySubmittingError() *AppError {
	return newError(ErrorTypeAlreadySubmitting, http.StatusConflict, "An analysis is already in progress.", nil)
}

// NewTransportError creates a new network error
func NewTransportError(message string, cause error) *AppError {
	return newError(ErrorTypeTransport, http.StatusBadGateway, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewServerError creates an error for a non-2xx response from the detection service
func NewServerError(statusCode int, message string) *AppError {
	e := newError(ErrorTypeServer, http.StatusBadGateway, message, nil)
	e.Details = fmt.Sprintf("upstream status %d", statusCode)
	return e
}

// NewInvalidResultShapeError creates an error for a 2xx body that breaks the result contract
func NewInvalidResultShapeError(message string, cause error) *AppError {
	return newError(ErrorTypeInvalidResultShape, http.StatusBadGateway, message, cause)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// As extracts the *AppError from err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// IsTransport reports transport failures, timeouts included.
func IsTransport(err error) bool {
	return IsType(err, ErrorTypeTransport) || IsType(err, ErrorTypeTimeout)
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// UserMessage returns the text to show for a failure. It prefers the
// structured message, then the raw error text, then GenericFailureMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	if text := err.Error(); text != "" {
		return text
	}
	return GenericFailureMessage
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Caller errors
	ErrorTypeUnauthenticated ErrorType = "UNAUTHENTICATED"
	ErrorTypeInvalidArgument ErrorType = "INVALID_ARGUMENT"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeConflict        ErrorType = "CONFLICT"

	// Upstream and infrastructure errors
	ErrorTypeEmbedding ErrorType = "EMBEDDING"
	ErrorTypeStorage   ErrorType = "STORAGE"
	ErrorTypeInternal  ErrorType = "INTERNAL"
)

// Error codes shared across packages.
const (
	CodeMissingIdentity    = "missing-identity"
	CodeEmptyVector        = "empty-vector"
	CodeVectorTooLong      = "vector-too-long"
	CodeNonFiniteVector    = "non-finite-vector"
	CodeMissingTopicTitle  = "missing-topic-title"
	CodeEmptyContent       = "empty-content"
	CodeInvalidTag         = "invalid-tag"
	CodeSelfLink           = "self-link"
	CodeEmbeddingFailed    = "embedding-failed"
	CodeMalformedEmbedding = "malformed-embedding"
	CodeStorageRead        = "storage-read"
	CodeStorageWrite       = "storage-write"
	CodeVersionConflict    = "version-conflict"
)

// Sentinels for errors.Is checks. Matching compares Type and Code only.
var (
	ErrMissingTopicTitle = &AppError{Type: ErrorTypeInvalidArgument, Code: CodeMissingTopicTitle}
	ErrVectorTooLong     = &AppError{Type: ErrorTypeInvalidArgument, Code: CodeVectorTooLong}
	ErrEmptyVector       = &AppError{Type: ErrorTypeInvalidArgument, Code: CodeEmptyVector}
	ErrEmptyContent      = &AppError{Type: ErrorTypeInvalidArgument, Code: CodeEmptyContent}
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
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

// Is reports whether target is an AppError of the same type and code.
// A target without a code matches on type alone.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

// NewUnauthenticated creates an error for a request without caller identity
func NewUnauthenticated(message string) *AppError {
	if message == "" {
		message = "caller identity is required"
	}
	return &AppError{
		Type:       ErrorTypeUnauthenticated,
		Message:    message,
		Code:       CodeMissingIdentity,
		HTTPStatus: http.StatusUnauthorized,
		StackTrace: captureStackTrace(),
	}
}

// NewInvalidArgument creates an invalid argument error
func NewInvalidArgument(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidArgument,
		Message:    message,
		Code:       code,
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewMissingTopicTitle is returned when a new topic is requested without a title.
func NewMissingTopicTitle() *AppError {
	return NewInvalidArgument(CodeMissingTopicTitle, "a topic title is required to link two prayers")
}

// NewNotFound creates a not found error
func NewNotFound(resource, id string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s %q not found", resource, id),
		Code:       resource + "-not-found",
		HTTPStatus: http.StatusNotFound,
		StackTrace: captureStackTrace(),
	}
}

// NewConflict creates a conflict error
func NewConflict(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		Code:       CodeVersionConflict,
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
	}
}

// NewEmbeddingError creates an error for a failed or malformed embedding call
func NewEmbeddingError(code, message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeEmbedding,
		Message:    message,
		Code:       code,
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
		StackTrace: captureStackTrace(),
	}
}

// NewStorageError creates a storage error
func NewStorageError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Message:    fmt.Sprintf("storage operation '%s' failed", operation),
		Code:       CodeStorageWrite,
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
		StackTrace: captureStackTrace(),
	}
}

// NewStorageReadError creates a storage error for a failed read
func NewStorageReadError(operation string, err error) *AppError {
	e := NewStorageError(operation, err)
	e.Code = CodeStorageRead
	return e
}

// NewInternal creates an internal error
func NewInternal(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		StackTrace: captureStackTrace(),
	}
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsInvalidArgument checks if an error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return IsType(err, ErrorTypeInvalidArgument)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsEmbedding checks if an error came from the embedding layer
func IsEmbedding(err error) bool {
	return IsType(err, ErrorTypeEmbedding)
}

// IsStorage checks if an error came from the storage layer
func IsStorage(err error) bool {
	return IsType(err, ErrorTypeStorage)
}

// Wrap adds context to an error. AppErrors keep their type and code;
// anything else becomes an internal error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		wrapped := *appErr
		wrapped.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return &wrapped
	}

	return NewInternal(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// CallableStatus maps an error to the status string returned to API callers.
// Storage failures surface as "internal".
func CallableStatus(err error) string {
	appErr := GetAppError(err)
	if appErr == nil {
		return "internal"
	}
	switch appErr.Type {
	case ErrorTypeUnauthenticated:
		return "unauthenticated"
	case ErrorTypeInvalidArgument:
		return "invalid-argument"
	case ErrorTypeNotFound:
		return "not-found"
	case ErrorTypeConflict:
		return "aborted"
	case ErrorTypeEmbedding:
		return "unavailable"
	default:
		return "internal"
	}
}

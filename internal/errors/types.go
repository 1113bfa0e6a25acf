// Package errors defines the error taxonomy shared by the render pipeline.
//
// Every failure the pipeline reports is an *Error carrying a Type (render,
// template, filesystem, ...) and a stable Code. Callers branch on the type
// with the Is* predicates or errors.As; the request boundary and the build
// command use the type to pick a response. Hydration mismatches are not
// failures and have their own HydrationMismatchWarning type.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeFileSystem ErrorType = "filesystem"
	ErrorTypeHydration  ErrorType = "hydration"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error is a structured error with a category, a stable code and context.
type Error struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Path != "" {
		parts = append(parts, "at:"+e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same type and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent records the component the error originated in.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component

	return e
}

// WithPath records a location: a file path or a node path in the tree.
func (e *Error) WithPath(path string) *Error {
	e.Path = path

	return e
}

// NewRenderError creates an error for a failed tree evaluation.
func NewRenderError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeRender,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewTemplateError creates an error for a malformed shell or a marker collision.
func NewTemplateError(code, message string) *Error {
	return &Error{
		Type:        ErrorTypeTemplate,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewFileSystemError creates an error for a directory or file operation.
func NewFileSystemError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeFileSystem,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewHydrationError creates an error for a hydration precondition failure.
// Mismatches are reported as HydrationMismatchWarning instead.
func NewHydrationError(code, message string) *Error {
	return &Error{
		Type:        ErrorTypeHydration,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *Error {
	return &Error{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *Error {
	return &Error{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// TypeOf returns the ErrorType of err, or the empty string for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}

	return ""
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}

	return false
}

// IsRenderError checks if an error came from tree evaluation.
func IsRenderError(err error) bool {
	return TypeOf(err) == ErrorTypeRender
}

// IsTemplateError checks if an error came from shell processing.
func IsTemplateError(err error) bool {
	return TypeOf(err) == ErrorTypeTemplate
}

// IsFileSystemError checks if an error came from the output directory lifecycle.
func IsFileSystemError(err error) bool {
	return TypeOf(err) == ErrorTypeFileSystem
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level chosen by its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var e *Error
	if !errors.As(err, &e) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch e.Type {
	case ErrorTypeRender:
		h.logger.Error(ctx, err, "Render failed",
			"type", e.Type,
			"code", e.Code,
			"component", e.Component,
			"path", e.Path)
	case ErrorTypeTemplate:
		h.logger.Error(ctx, err, "Shell template rejected",
			"type", e.Type,
			"code", e.Code,
			"path", e.Path)
	case ErrorTypeFileSystem:
		h.logger.Error(ctx, err, "Filesystem operation failed",
			"type", e.Type,
			"code", e.Code,
			"path", e.Path)
	case ErrorTypeHydration, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Recoverable error occurred",
			"type", e.Type,
			"code", e.Code)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", e.Type,
			"code", e.Code)
	}
}

// Common error codes.
const (
	ErrCodeCapabilityMissing = "ERR_CAPABILITY_MISSING"
	ErrCodeComponentPanic    = "ERR_COMPONENT_PANIC"
	ErrCodeComponentFailed   = "ERR_COMPONENT_FAILED"
	ErrCodeInvalidNode       = "ERR_INVALID_NODE"
	ErrCodeInvalidTag        = "ERR_INVALID_TAG"
	ErrCodeInvalidAttribute  = "ERR_INVALID_ATTRIBUTE"
	ErrCodeVoidChildren      = "ERR_VOID_CHILDREN"
	ErrCodeRawTextEscape     = "ERR_RAW_TEXT_ESCAPE"
	ErrCodeMaxDepth          = "ERR_MAX_DEPTH"
	ErrCodeReservedToken     = "ERR_RESERVED_TOKEN"
	ErrCodeEmbedFailed       = "ERR_EMBED_FAILED"
	ErrCodeFactoryFailed     = "ERR_FACTORY_FAILED"

	ErrCodeMarkerMissing   = "ERR_MARKER_MISSING"
	ErrCodeMarkerDuplicate = "ERR_MARKER_DUPLICATE"
	ErrCodeMarkerCollision = "ERR_MARKER_COLLISION"
	ErrCodeShellUnreadable = "ERR_SHELL_UNREADABLE"

	ErrCodeUnsafeOutputDir = "ERR_UNSAFE_OUTPUT_DIR"
	ErrCodeNotADirectory   = "ERR_NOT_A_DIRECTORY"
	ErrCodeCreateFailed    = "ERR_CREATE_FAILED"
	ErrCodeClearFailed     = "ERR_CLEAR_FAILED"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"

	ErrCodeRootNotFound   = "ERR_ROOT_NOT_FOUND"
	ErrCodeUnknownHandler = "ERR_UNKNOWN_HANDLER"

	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

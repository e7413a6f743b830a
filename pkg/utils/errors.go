package utils

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory represents the category of an error
type ErrorCategory int

const (
	CategorySystem ErrorCategory = iota
	CategoryNetwork
	CategoryConfiguration
	CategoryTimeout
)

// Error codes for the failures the ask pipeline absorbs.
const (
	CodeSearchBackend     = "SEARCH_BACKEND"
	CodeExtractionFailure = "EXTRACTION_FAILURE"
	CodeExtractionTimeout = "EXTRACTION_TIMEOUT"
	CodeChatEndpoint      = "CHAT_ENDPOINT"
	CodeConfigInvalid     = "CONFIG_INVALID"
)

// ErrorContext provides additional context for errors
type ErrorContext struct {
	Component string
	Operation string
	Resource  string
}

// StructuredError represents a standardized error with rich context
type StructuredError struct {
	Code      string
	Message   string
	Category  ErrorCategory
	Context   *ErrorContext
	RootCause error
	Timestamp int64
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.RootCause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.RootCause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As
func (e *StructuredError) Unwrap() error {
	return e.RootCause
}

// NewStructuredError creates a new structured error
func NewStructuredError(code, message string, category ErrorCategory, rootCause error) *StructuredError {
	return &StructuredError{
		Code:      code,
		Message:   message,
		Category:  category,
		RootCause: rootCause,
		Timestamp: time.Now().Unix(),
	}
}

// NewSearchBackendError wraps a failure reaching or decoding the search service.
func NewSearchBackendError(endpoint string, rootCause error) *StructuredError {
	return NewStructuredError(
		CodeSearchBackend,
		"search backend request failed",
		CategoryNetwork,
		rootCause,
	).WithContext(&ErrorContext{Component: "webcontent", Operation: "search", Resource: endpoint})
}

// NewExtractionError wraps a fetch or parse failure for one URL.
func NewExtractionError(url string, rootCause error) *StructuredError {
	return NewStructuredError(
		CodeExtractionFailure,
		"content extraction failed",
		CategoryNetwork,
		rootCause,
	).WithContext(&ErrorContext{Component: "webcontent", Operation: "extract", Resource: url})
}

// NewExtractionTimeoutError reports that collection stopped after waited.
func NewExtractionTimeoutError(url string, waited time.Duration) *StructuredError {
	return NewStructuredError(
		CodeExtractionTimeout,
		fmt.Sprintf("extraction did not finish within %s", waited),
		CategoryTimeout,
		nil,
	).WithContext(&ErrorContext{Component: "webcontent", Operation: "collect", Resource: url})
}

// NewChatEndpointError wraps a failure talking to the language model endpoint.
func NewChatEndpointError(endpoint string, rootCause error) *StructuredError {
	return NewStructuredError(
		CodeChatEndpoint,
		"chat endpoint failed",
		CategoryNetwork,
		rootCause,
	).WithContext(&ErrorContext{Component: "llm", Operation: "chat", Resource: endpoint})
}

// NewConfigError creates a configuration-related error
func NewConfigError(key string, rootCause error) *StructuredError {
	return NewStructuredError(
		CodeConfigInvalid,
		fmt.Sprintf("Configuration error for %s", key),
		CategoryConfiguration,
		rootCause,
	).WithContext(&ErrorContext{Resource: key})
}

// WithContext adds context to the error
func (e *StructuredError) WithContext(ctx *ErrorContext) *StructuredError {
	e.Context = ctx
	return e
}

// HasCode reports whether err or anything it wraps is a StructuredError with code.
func HasCode(err error, code string) bool {
	var structuredErr *StructuredError
	for err != nil {
		if !errors.As(err, &structuredErr) {
			return false
		}
		if structuredErr.Code == code {
			return true
		}
		err = structuredErr.RootCause
	}
	return false
}

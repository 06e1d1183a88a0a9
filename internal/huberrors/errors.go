// Package huberrors provides sentinel and custom error types for the application.
package huberrors

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrUpstreamUnavailable marks failures of optional upstream enrichment (embedding provider,
// vector index). Callers log and degrade; it never reaches an HTTP response.
var ErrUpstreamUnavailable = &UpstreamUnavailableError{}

// UpstreamUnavailableError wraps an upstream failure with the name of the dependency.
type UpstreamUnavailableError struct {
	Upstream string
	Err      error
}

// NewUpstreamUnavailableError creates an UpstreamUnavailableError.
func NewUpstreamUnavailableError(upstream string, err error) *UpstreamUnavailableError {
	return &UpstreamUnavailableError{Upstream: upstream, Err: err}
}

// Error implements the error interface.
func (e *UpstreamUnavailableError) Error() string {
	name := e.Upstream
	if name == "" {
		name = "upstream"
	}

	if e.Err != nil {
		return name + " unavailable: " + e.Err.Error()
	}

	return name + " unavailable"
}

// Unwrap returns the underlying cause.
func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *UpstreamUnavailableError) Is(target error) bool {
	_, ok := target.(*UpstreamUnavailableError)

	return ok
}

// Package errors provides custom error types for the quantmap system.
// Every failure surfaced by the sync engine resolves to one of five
// categories (network, rate_limit, schema, partial_failure, fatal); the
// types here carry enough structure for the recovery manager to classify
// them without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's tree matches target.
// Alias for the standard library errors.Is.
var Is = errors.Is

// As finds the first error in err's tree that matches target.
// Alias for the standard library errors.As.
var As = errors.As

// Common sentinel errors for the quantmap system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that the hub rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrHubUnavailable indicates that the hub is temporarily unavailable
	ErrHubUnavailable = errors.New("hub unavailable")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrRetriesExhausted indicates that the scheduler gave up retrying
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrMustNotCommit indicates the validator vetoed catalog replacement
	ErrMustNotCommit = errors.New("must not commit")
)

// Category is the sync engine's failure taxonomy. Every error that crosses
// a component boundary maps to exactly one category via Categorize.
type Category string

// Failure categories, in increasing order of severity.
const (
	CategoryNetwork        Category = "network"
	CategoryRateLimit      Category = "rate_limit"
	CategorySchema         Category = "schema"
	CategoryPartialFailure Category = "partial_failure"
	CategoryFatal          Category = "fatal"
)

// String returns the string representation of a Category.
func (c Category) String() string { return string(c) }

// Transient reports whether failures of this category are retried by the
// scheduler rather than surfaced to the caller.
func (c Category) Transient() bool {
	return c == CategoryNetwork || c == CategoryRateLimit
}

// Categorize maps an arbitrary error onto the failure taxonomy.
// Unknown errors are treated as network failures: the hub is the only
// thing we talk to, and an unrecognized failure there is transient until
// retries prove otherwise.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}
	var categorized interface{ Category() Category }
	if errors.As(err, &categorized) {
		return categorized.Category()
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimit
	case errors.Is(err, ErrInvalidInput):
		return CategorySchema
	case errors.Is(err, ErrCanceled), errors.Is(err, ErrMustNotCommit):
		return CategoryFatal
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrHubUnavailable), errors.Is(err, ErrRetriesExhausted):
		return CategoryNetwork
	default:
		return CategoryNetwork
	}
}

// HubError represents an error response from the hub API.
type HubError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *HubError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("hub error from %s (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hub error from %s: %s", e.Endpoint, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *HubError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *HubError) Is(target error) bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 {
		return target == ErrHubUnavailable
	}
	return false
}

// Category implements the failure taxonomy for hub responses.
func (e *HubError) Category() Category {
	if e.StatusCode == http.StatusTooManyRequests {
		return CategoryRateLimit
	}
	return CategoryNetwork
}

// Retryable reports whether the scheduler should retry this response.
func (e *HubError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// NewHubError creates a new HubError
func NewHubError(endpoint string, statusCode int, message string) *HubError {
	return &HubError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ValidationError represents a schema or input validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Category implements the failure taxonomy.
func (e *ValidationError) Category() Category { return CategorySchema }

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// StrategyError represents a discovery strategy that failed entirely.
// The run tolerates these and continues with the remaining strategies.
type StrategyError struct {
	Strategy string
	Err      error
}

// Error implements the error interface
func (e *StrategyError) Error() string {
	return fmt.Sprintf("discovery strategy %s failed: %v", e.Strategy, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StrategyError) Unwrap() error {
	return e.Err
}

// Category implements the failure taxonomy.
func (e *StrategyError) Category() Category { return CategoryPartialFailure }

// NewStrategyError creates a new StrategyError
func NewStrategyError(strategy string, err error) *StrategyError {
	return &StrategyError{Strategy: strategy, Err: err}
}

// RecordError represents a single catalog record that could not be
// materialized after the scheduler exhausted its retries.
type RecordError struct {
	ModelID  string
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s failed after %d attempts: %v", e.ModelID, e.Attempts, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *RecordError) Unwrap() error {
	return e.Err
}

// Category implements the failure taxonomy. A lost record is a bounded
// partial failure unless the underlying cause is itself fatal.
func (e *RecordError) Category() Category {
	if Categorize(e.Err) == CategoryFatal {
		return CategoryFatal
	}
	return CategoryPartialFailure
}

// NewRecordError creates a new RecordError
func NewRecordError(modelID string, attempts int, err error) *RecordError {
	return &RecordError{ModelID: modelID, Attempts: attempts, Err: err}
}

// ConfigError represents an invalid run configuration. Always fatal:
// a run with a bad configuration never starts fetching.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Category implements the failure taxonomy.
func (e *ConfigError) Category() Category { return CategoryFatal }

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// FatalError wraps any error whose presence invalidates the whole run,
// such as the hub being globally unreachable.
type FatalError struct {
	Reason string
	Err    error
}

// Error implements the error interface
func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal: %s", e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Category implements the failure taxonomy.
func (e *FatalError) Category() Category { return CategoryFatal }

// NewFatalError creates a new FatalError
func NewFatalError(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml"
	Source  string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("parse error in %s %s: %s", e.Format, e.Source, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Category implements the failure taxonomy. Unparseable upstream payloads
// are schema defects, not transport failures.
func (e *ParseError) Category() Category { return CategorySchema }

// NewParseError creates a new ParseError
func NewParseError(format, source, message string, err error) *ParseError {
	return &ParseError{Format: format, Source: source, Message: message, Err: err}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "rename", "open", "close"
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("IO error during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// Helper functions for error checking

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsFatal checks if an error invalidates the whole run
func IsFatal(err error) bool {
	return Categorize(err) == CategoryFatal
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, source string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, source, err.Error(), err)
}

// WrapHub wraps an error as a HubError
func WrapHub(endpoint string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &HubError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    err.Error(),
		Err:        err,
	}
}

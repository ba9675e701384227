// Package errors provides custom error types for the meterwatch system.
// These errors enable programmatic error checking across the catalog,
// aggregation, and persistence layers, and carry enough context to tell
// a failed partition apart from an unreachable catalog.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the meterwatch system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrCatalogUnavailable indicates the remote data catalog could not be reached
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrUntestable indicates an asset lacks the identity needed to query readings
	ErrUntestable = errors.New("asset untestable")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
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

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// CatalogError represents a failure talking to the remote data catalog.
// It is returned for dataset resolution and metadata loads, where failure
// is fatal to a run.
type CatalogError struct {
	Dataset    string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog error for dataset %s (status %d): %s", e.Dataset, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("catalog error for dataset %s: %s", e.Dataset, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *CatalogError) Is(target error) bool {
	return target == ErrCatalogUnavailable
}

// NewCatalogError creates a new CatalogError
func NewCatalogError(dataset string, statusCode int, message string, err error) *CatalogError {
	return &CatalogError{
		Dataset:    dataset,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// PartitionError represents a failed query against a single reading
// partition. Partition failures are isolated: they are counted and
// skipped, never fatal to an aggregation.
type PartitionError struct {
	Partition string
	DeviceID  string
	Channel   string
	Attempts  int
	Err       error
}

// Error implements the error interface
func (e *PartitionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("partition %s query failed for device %s/%s after %d attempts: %v",
			e.Partition, e.DeviceID, e.Channel, e.Attempts, e.Err)
	}
	return fmt.Sprintf("partition %s query failed for device %s/%s: %v",
		e.Partition, e.DeviceID, e.Channel, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PartitionError) Unwrap() error {
	return e.Err
}

// NewPartitionError creates a new PartitionError
func NewPartitionError(partition, deviceID, channel string, attempts int, err error) *PartitionError {
	return &PartitionError{
		Partition: partition,
		DeviceID:  deviceID,
		Channel:   channel,
		Attempts:  attempts,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml", "timestamp", "decimal"
	Input   string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%s parse error for %q: %s", e.Format, e.Input, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, input, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		Input:   input,
		Message: message,
		Err:     err,
	}
}

// PersistenceError represents a failed write to the quality store.
// Writes are best-effort during a run: callers log and continue.
type PersistenceError struct {
	Operation string // "insert", "upsert", "query"
	Table     string
	Err       error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s on %s: %v", e.Operation, e.Table, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError
func NewPersistenceError(operation, table string, err error) *PersistenceError {
	return &PersistenceError{
		Operation: operation,
		Table:     table,
		Err:       err,
	}
}

// UntestableError indicates an asset that cannot be evaluated because
// it lacks the identity fields needed to query readings.
type UntestableError struct {
	IdentityCode string
	Reason       string
}

// Error implements the error interface
func (e *UntestableError) Error() string {
	if e.IdentityCode != "" {
		return fmt.Sprintf("asset %s untestable: %s", e.IdentityCode, e.Reason)
	}
	return fmt.Sprintf("asset untestable: %s", e.Reason)
}

// Is implements errors.Is support
func (e *UntestableError) Is(target error) bool {
	return target == ErrUntestable
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCatalogUnavailable checks if an error indicates the catalog is unreachable
func IsCatalogUnavailable(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable)
}

// IsUntestable checks if an error marks an asset as untestable
func IsUntestable(err error) bool {
	return errors.Is(err, ErrUntestable)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Helper wrapping functions for common patterns

// WrapCatalog wraps an error as a CatalogError
func WrapCatalog(dataset string, err error) error {
	if err == nil {
		return nil
	}
	return &CatalogError{Dataset: dataset, Message: err.Error(), Err: err}
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, input string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, input, err.Error(), err)
}

// WrapPersistence wraps an error as a PersistenceError
func WrapPersistence(operation, table string, err error) error {
	if err == nil {
		return nil
	}
	return NewPersistenceError(operation, table, err)
}

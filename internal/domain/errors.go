package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types (sentinel errors).
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInternal     = errors.New("internal error")
)

// Specific errors.
var (
	ErrUnsupportedFormat = fmt.Errorf("format: %w", ErrUnsupported)
	ErrFormatNotWritable = fmt.Errorf("output format: %w", ErrUnsupported)
	ErrDispatcherClosed  = fmt.Errorf("dispatcher: %w", ErrUnavailable)
	ErrEngineFailure     = errors.New("conversion engine failure")
	ErrCrsResolution     = errors.New("crs resolution failed")
	ErrMetadataParse     = errors.New("metadata parse failed")
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// BboxError reports a malformed bounding box.
type BboxError struct {
	Values  []float64
	Message string
}

// Error implements the error interface.
func (e *BboxError) Error() string {
	return fmt.Sprintf("invalid bbox %v: %s", e.Values, e.Message)
}

// Unwrap returns the underlying error type.
func (e *BboxError) Unwrap() error {
	return ErrInvalidInput
}

// EngineError carries the opaque error text returned by the conversion engine.
type EngineError struct {
	Dataset string // Dataset name, when known
	Op      string // "convert" or "describe"
	Message string // Raw engine error text
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("engine %s failed for %s: %s", e.Op, e.Dataset, e.Message)
	}
	return fmt.Sprintf("engine %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return ErrEngineFailure
}

// ResolveError reports that every registry endpoint failed for a CRS code.
type ResolveError struct {
	Code     string
	Attempts []error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	msgs := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		msgs[i] = a.Error()
	}
	return fmt.Sprintf("resolving EPSG:%s: all endpoints failed: %s",
		e.Code, strings.Join(msgs, "; "))
}

// Unwrap returns the underlying error.
func (e *ResolveError) Unwrap() error {
	return ErrCrsResolution
}

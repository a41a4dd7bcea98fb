/*
errors.go - Centralized error types for the materials ledger

ERROR CATEGORIES:
  1. NotFound          - referenced material or project does not exist
  2. InsufficientStock - withdraw quantity exceeds current stock
  3. Validation        - missing or malformed input
  4. Store             - persistence failure (unreachable store, constraint violation)

The first three are expected, reportable conditions. Store errors are
infrastructure failures: callers report them generically and log the cause.

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var ise *inventory.InsufficientStockError
      errors.As(err, &ise)
      ...
  }
*/
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrStore             = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing row.
type NotFoundError struct {
	Kind string // "material" or "project"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func materialNotFound(id MaterialID) error {
	return &NotFoundError{Kind: "material", ID: int64(id)}
}

func projectNotFound(id ProjectID) error {
	return &NotFoundError{Kind: "project", ID: int64(id)}
}

// MaterialNotFound is the error stores return for an unknown material id.
func MaterialNotFound(id MaterialID) error { return materialNotFound(id) }

// ProjectNotFound is the error stores return for an unknown project id.
func ProjectNotFound(id ProjectID) error { return projectNotFound(id) }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	MaterialID MaterialID
	Available  int64
	Requested  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for material %d: available %d, requested %d",
		e.MaterialID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ValidationError lists every offending field with a short reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidField(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// wrapStore passes domain errors through untouched and marks anything else
// as a store failure.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrValidation)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing material or project.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

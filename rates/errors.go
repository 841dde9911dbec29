/*
errors.go - Centralized error types for reconciliation

ERROR CATEGORIES:
  1. NotFound - a referenced shipment or upload key does not exist
  2. Validation - input that cannot be coerced or acted on
  3. PartialFailure - per-item failures collected from a batch step
  4. ConcurrentModification - a compare-and-swap write lost a race

SoftFailures (auto-balance, status derivation) are logged, never returned,
so they have no type here.

USAGE:
  if errors.Is(err, rates.ErrNotFound) { ... }

  var pf *rates.PartialFailure
  if errors.As(err, &pf) {
      for _, f := range pf.Failures { ... }
  }
*/
package rates

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound = errors.New("not found")

	ErrValidation = errors.New("validation failed")

	ErrPartialFailure = errors.New("partial failure")

	// ErrConcurrentModification is returned when a write's expected revision
	// no longer matches the stored record.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names what was missing.
type NotFoundError struct {
	Kind string // "shipment", "upload", "item"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func ShipmentNotFound(key string) error { return &NotFoundError{Kind: "shipment", Key: key} }

// ValidationError carries the reason and, where relevant, how many inputs
// were affected.
type ValidationError struct {
	Reason string
	Count  int
}

func (e *ValidationError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("%s (%d)", e.Reason, e.Count)
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ItemFailure attributes one failure to one batch member.
type ItemFailure struct {
	ItemID      string `json:"itemId"`
	ShipmentKey string `json:"shipmentKey,omitempty"`
	Reason      string `json:"reason"`
}

// PartialFailure collects every per-item failure of a batch step.
type PartialFailure struct {
	Step     string
	Failures []ItemFailure
}

func (e *PartialFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.ItemID+": "+f.Reason)
	}
	return fmt.Sprintf("%s failed for %d item(s): %s", e.Step, len(e.Failures), strings.Join(parts, "; "))
}

func (e *PartialFailure) Unwrap() error { return ErrPartialFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

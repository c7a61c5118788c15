/*
errors.go - Centralized error taxonomy for the traceability engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is/errors.As and the predicate
  helpers at the bottom; the HTTP layer maps classes to status codes.

ERROR CATEGORIES:
  1. Validation errors  - malformed input or a business rule violated
  2. Conservation errors - the quantity invariant, a validation subtype
     carrying the three quantities involved
  3. Not-found errors   - unknown record/batch/tracking code
  4. Illegal-state errors - operation forbidden by record state
     (e.g. completing an already-completed stage)

Storage-layer failures are NOT represented here: the store returns its own
wrapped errors, which the engine passes through untouched so the caller can
distinguish infrastructure failure from a business rejection.

SEE ALSO:
  - conservation.go: Produces ConservationError
  - transition.go: Produces validation/not-found/illegal-state errors
*/
package trace

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all business-rule rejections.
	ErrValidation = errors.New("validation failed")

	// ErrConservation marks quantity mass-balance violations.
	// Wraps ErrValidation: every conservation error is a validation error.
	ErrConservation = fmt.Errorf("%w: conservation invariant violated", ErrValidation)

	// ErrRecordNotFound is returned when a referenced stage record is unknown.
	ErrRecordNotFound = errors.New("stage record not found")

	// ErrIllegalState is returned when a record's state forbids an operation.
	ErrIllegalState = errors.New("operation not allowed in current state")

	// ErrDuplicateTrackingCode is returned when a tracking code is already taken.
	ErrDuplicateTrackingCode = errors.New("tracking code already exists")

	// ErrDuplicateTransactionID is returned when a transaction id is already taken.
	ErrDuplicateTransactionID = errors.New("transaction id already exists")

	// ErrDuplicateStageOrder is returned when a batch already has a record
	// at the requested stage order.
	ErrDuplicateStageOrder = errors.New("stage order already exists for batch")

	// ErrInsufficientData is returned by trend-style analyses that cannot
	// produce a meaningful result from the available records. Summaries
	// never return it - they degrade to zeroed output instead.
	ErrInsufficientData = errors.New("insufficient data")
)

// =============================================================================
// STRUCTURED ERRORS - Carry offending values for precise messages
// =============================================================================

// ValidationError reports a business-rule violation on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a field-scoped validation error.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConservationError reports a mass-balance violation. It carries the full
// quantity triple so the caller can render a precise message.
type ConservationError struct {
	QuantityIn   decimal.Decimal
	QuantityOut  decimal.Decimal
	LossQuantity decimal.Decimal

	// Rule names the specific check that failed:
	// "out_exceeds_in", "loss_exceeds_in", or "sum_exceeds_in".
	Rule string
}

func (e *ConservationError) Error() string {
	switch e.Rule {
	case "out_exceeds_in":
		return fmt.Sprintf("quantity out (%s) cannot exceed quantity in (%s)",
			e.QuantityOut, e.QuantityIn)
	case "loss_exceeds_in":
		return fmt.Sprintf("loss quantity (%s) cannot exceed quantity in (%s)",
			e.LossQuantity, e.QuantityIn)
	default:
		return fmt.Sprintf("quantity out (%s) + loss (%s) = %s exceeds quantity in (%s)",
			e.QuantityOut, e.LossQuantity, e.QuantityOut.Add(e.LossQuantity), e.QuantityIn)
	}
}

func (e *ConservationError) Unwrap() error { return ErrConservation }

// IllegalStateError reports an operation attempted against a record whose
// state forbids it.
type IllegalStateError struct {
	RecordID RecordID
	Reason   string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("record %s: %s", e.RecordID, e.Reason)
}

func (e *IllegalStateError) Unwrap() error { return ErrIllegalState }

// NotFoundError reports a missing record with the identifier that was used
// to look it up.
type NotFoundError struct {
	Key   string // "id", "tracking_code", "transaction_id", "batch_id"
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("stage record not found with %s: %s", e.Key, e.Value)
}

func (e *NotFoundError) Unwrap() error { return ErrRecordNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsConflict reports whether err indicates a duplicate-identity or
// illegal-state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrIllegalState) ||
		errors.Is(err, ErrDuplicateTrackingCode) ||
		errors.Is(err, ErrDuplicateTransactionID) ||
		errors.Is(err, ErrDuplicateStageOrder)
}

// IsClientError reports whether err should surface as a client-side
// rejection rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientData) ||
		IsNotFound(err) ||
		IsConflict(err)
}

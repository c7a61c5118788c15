/*
conservation.go - The mass-balance validator

PURPOSE:
  Enforces the binding invariant of the whole engine: quantity leaving a
  stage, plus quantity lost at the stage, never exceeds quantity entering
  it. Checked on every create and on every update that touches any of the
  three quantity fields.

CONTRACT:
  ValidateConservation(in, out, loss) -> nil | error

  Rejects, with a ConservationError naming the offending quantities:
    - any negative quantity          (validation error, not conservation)
    - out  > in                      ("out_exceeds_in")
    - loss > in                      ("loss_exceeds_in")
    - out + loss > in                ("sum_exceeds_in")

  The pairwise checks are implied by the sum check but run first so the
  caller gets the most precise message.

  Deterministic and side-effect-free: no storage or clock access, which
  keeps it unit-testable in isolation.

SEE ALSO:
  - transition.go: Calls this on create, update, and completion
  - quality.go: Calls this on loss updates
*/
package trace

import "github.com/shopspring/decimal"

// ValidateConservation checks the quantity triple against the mass-balance
// invariant. Absent quantities must be passed as zero.
func ValidateConservation(in, out, loss decimal.Decimal) error {
	if in.IsNegative() {
		return NewValidationError("quantityIn", "must not be negative, got %s", in)
	}
	if out.IsNegative() {
		return NewValidationError("quantityOut", "must not be negative, got %s", out)
	}
	if loss.IsNegative() {
		return NewValidationError("lossQuantity", "must not be negative, got %s", loss)
	}

	if out.GreaterThan(in) {
		return &ConservationError{QuantityIn: in, QuantityOut: out, LossQuantity: loss, Rule: "out_exceeds_in"}
	}
	if loss.GreaterThan(in) {
		return &ConservationError{QuantityIn: in, QuantityOut: out, LossQuantity: loss, Rule: "loss_exceeds_in"}
	}
	if out.Add(loss).GreaterThan(in) {
		return &ConservationError{QuantityIn: in, QuantityOut: out, LossQuantity: loss, Rule: "sum_exceeds_in"}
	}
	return nil
}

// ValidateRecordConservation applies the validator to a record's stored
// quantities, defaulting unset quantityOut to zero.
func ValidateRecordConservation(r *StageRecord) error {
	return ValidateConservation(r.QuantityIn, r.OutOrZero(), r.LossQuantity)
}

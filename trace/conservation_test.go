package trace_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritrace/trace-engine/trace"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// CONSERVATION INVARIANT TESTS
// =============================================================================

func TestValidateConservation_ExactBalance_Accepted(t *testing.T) {
	// GIVEN: quantityOut + lossQuantity equals quantityIn exactly
	// WHEN: Validating the triple
	// THEN: No error - the boundary itself is legal

	err := trace.ValidateConservation(d("100"), d("95"), d("5"))
	assert.NoError(t, err)
}

func TestValidateConservation_SumExceedsIn_Rejected(t *testing.T) {
	// GIVEN: out 95 + loss 6 = 101 against in 100
	// WHEN: Validating the triple
	// THEN: ConservationError, and it satisfies the validation predicate

	err := trace.ValidateConservation(d("100"), d("95"), d("6"))
	require.Error(t, err)

	var consErr *trace.ConservationError
	require.ErrorAs(t, err, &consErr)
	assert.Equal(t, "sum_exceeds_in", consErr.Rule)
	assert.ErrorIs(t, err, trace.ErrConservation)
	assert.ErrorIs(t, err, trace.ErrValidation, "conservation violations are validation failures")
}

func TestValidateConservation_ErrorNamesAllThreeQuantities(t *testing.T) {
	// The error message must let an operator reconstruct the arithmetic
	// without looking anything up: out, loss, their sum, and in.

	err := trace.ValidateConservation(d("50"), d("40"), d("15"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40")
	assert.Contains(t, err.Error(), "15")
	assert.Contains(t, err.Error(), "55")
	assert.Contains(t, err.Error(), "50")
}

func TestValidateConservation_OutAloneExceedsIn_Rejected(t *testing.T) {
	err := trace.ValidateConservation(d("100"), d("101"), d("0"))
	require.Error(t, err)

	var consErr *trace.ConservationError
	require.ErrorAs(t, err, &consErr)
	assert.Equal(t, "out_exceeds_in", consErr.Rule)
}

func TestValidateConservation_LossAloneExceedsIn_Rejected(t *testing.T) {
	err := trace.ValidateConservation(d("100"), d("0"), d("100.01"))
	require.Error(t, err)

	var consErr *trace.ConservationError
	require.ErrorAs(t, err, &consErr)
	assert.Equal(t, "loss_exceeds_in", consErr.Rule)
}

func TestValidateConservation_NegativeQuantities_Rejected(t *testing.T) {
	cases := map[string]struct {
		in, out, loss string
	}{
		"negative in":   {"-1", "0", "0"},
		"negative out":  {"100", "-1", "0"},
		"negative loss": {"100", "50", "-0.5"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := trace.ValidateConservation(d(tc.in), d(tc.out), d(tc.loss))
			require.Error(t, err)
			assert.ErrorIs(t, err, trace.ErrValidation)

			// Negative inputs are plain validation errors, not conservation ones.
			assert.NotErrorIs(t, err, trace.ErrConservation)
		})
	}
}

func TestValidateConservation_FractionalQuantities_Exact(t *testing.T) {
	// 0.1 + 0.2 must compare exactly against 0.3 - this is the reason
	// quantities are decimals, not floats.

	assert.NoError(t, trace.ValidateConservation(d("0.3"), d("0.1"), d("0.2")))
	assert.Error(t, trace.ValidateConservation(d("0.3"), d("0.1"), d("0.2000001")))
}

// =============================================================================
// DERIVED RECORD FIGURES
// =============================================================================

func TestStageRecord_LossPercent(t *testing.T) {
	r := &trace.StageRecord{QuantityIn: d("200"), LossQuantity: d("5")}

	pct, ok := r.LossPercent()
	require.True(t, ok)
	assert.True(t, pct.Equal(d("2.5")), "got %s", pct)
}

func TestStageRecord_LossPercent_ZeroIn(t *testing.T) {
	r := &trace.StageRecord{QuantityIn: decimal.Zero, LossQuantity: d("5")}

	_, ok := r.LossPercent()
	assert.False(t, ok, "loss percent is undefined with zero input")
}

func TestStageRecord_EfficiencyRate_RequiresQuantityOut(t *testing.T) {
	r := &trace.StageRecord{QuantityIn: d("100")}

	_, ok := r.EfficiencyRate()
	assert.False(t, ok, "open stage has no efficiency yet")

	r.QuantityOut = decimal.NullDecimal{Decimal: d("95"), Valid: true}
	eff, ok := r.EfficiencyRate()
	require.True(t, ok)
	assert.True(t, eff.Equal(d("95")), "got %s", eff)
}

func TestStage_PipelineOrdering(t *testing.T) {
	// STORAGE is the immediate successor of HARVEST; RETAIL is terminal.

	next, ok := trace.StageHarvest.Next()
	require.True(t, ok)
	assert.Equal(t, trace.StageStorage, next)

	_, ok = trace.StageRetail.Next()
	assert.False(t, ok)
	assert.True(t, trace.StageRetail.Terminal())

	assert.Equal(t, 1, trace.StageHarvest.Order())
	assert.Equal(t, 6, trace.StageRetail.Order())
	assert.False(t, trace.Stage("PACKAGING").Valid())
}

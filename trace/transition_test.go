package trace_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritrace/trace-engine/trace"
	"github.com/agritrace/trace-engine/trace/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) *trace.Engine {
	t.Helper()
	return trace.NewEngine(store.NewTxMemory())
}

func harvestRequest(batch string, in string) trace.NewStageRequest {
	return trace.NewStageRequest{
		BatchID:          trace.BatchID(batch),
		Stage:            trace.StageHarvest,
		Location:         "North Field",
		ResponsibleParty: "Crew A",
		QuantityIn:       d(in),
	}
}

func mustRegister(t *testing.T, e *trace.Engine, req trace.NewStageRequest) *trace.StageRecord {
	t.Helper()
	r, err := e.RegisterStage(context.Background(), req)
	require.NoError(t, err)
	return r
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegisterStage_AppliesDefaults(t *testing.T) {
	// GIVEN: A minimal harvest request
	// WHEN: Registering it
	// THEN: Identity, tracking code, unit, quality, and order are defaulted

	e := newTestEngine(t)
	r := mustRegister(t, e, harvestRequest("batch-1", "500"))

	assert.NotEmpty(t, r.ID)
	assert.True(t, len(r.TrackingCode) > 3 && r.TrackingCode[:3] == "TRK")
	assert.Equal(t, "KG", r.Unit)
	assert.Equal(t, trace.QualityPending, r.QualityStatus)
	assert.Equal(t, 1, r.StageOrder, "stage order defaults to the pipeline rank")
	assert.False(t, r.Completed())
	assert.False(t, r.QuantityOut.Valid, "quantity out stays unset until completion")
}

func TestRegisterStage_MissingFields_Rejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cases := map[string]func(*trace.NewStageRequest){
		"batch":             func(r *trace.NewStageRequest) { r.BatchID = "" },
		"stage":             func(r *trace.NewStageRequest) { r.Stage = "WASHING" },
		"location":          func(r *trace.NewStageRequest) { r.Location = "" },
		"responsible party": func(r *trace.NewStageRequest) { r.ResponsibleParty = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := harvestRequest("batch-1", "500")
			mutate(&req)
			_, err := e.RegisterStage(ctx, req)
			assert.ErrorIs(t, err, trace.ErrValidation)
		})
	}
}

func TestRegisterStage_ConservationCheckedAtCreation(t *testing.T) {
	e := newTestEngine(t)

	req := harvestRequest("batch-1", "100")
	req.LossQuantity = d("101")
	_, err := e.RegisterStage(context.Background(), req)
	assert.ErrorIs(t, err, trace.ErrConservation)
}

func TestRegisterStage_DuplicateIdentity_Rejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first := harvestRequest("batch-1", "100")
	first.TrackingCode = "TRK000001AAAAA"
	first.TransactionID = "txn-1"
	mustRegister(t, e, first)

	t.Run("tracking code", func(t *testing.T) {
		dup := harvestRequest("batch-2", "100")
		dup.TrackingCode = "TRK000001AAAAA"
		_, err := e.RegisterStage(ctx, dup)
		assert.ErrorIs(t, err, trace.ErrDuplicateTrackingCode)
	})

	t.Run("transaction id", func(t *testing.T) {
		dup := harvestRequest("batch-3", "100")
		dup.TransactionID = "txn-1"
		_, err := e.RegisterStage(ctx, dup)
		assert.ErrorIs(t, err, trace.ErrDuplicateTransactionID)
	})

	t.Run("batch stage order", func(t *testing.T) {
		_, err := e.RegisterStage(ctx, harvestRequest("batch-1", "100"))
		assert.ErrorIs(t, err, trace.ErrDuplicateStageOrder)
	})
}

func TestRegisterStages_AtomicOnFailure(t *testing.T) {
	// GIVEN: A bulk request whose second entry is invalid at uniqueness level
	// WHEN: Registering the batch
	// THEN: Nothing is persisted

	e := newTestEngine(t)
	ctx := context.Background()

	good := harvestRequest("bulk-1", "100")
	clash := harvestRequest("bulk-1", "200") // same batch, same default order

	_, err := e.RegisterStages(ctx, []trace.NewStageRequest{good, clash})
	require.ErrorIs(t, err, trace.ErrDuplicateStageOrder)

	n, err := e.Store().Count(ctx, trace.RecordFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "failed bulk registration must leave no records behind")
}

// =============================================================================
// COMPLETION
// =============================================================================

func TestCompleteStage_SetsOutAndEndDate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "100"))

	done, err := e.CompleteStage(ctx, r.ID, trace.CompletionRequest{
		QuantityOut:   d("95"),
		QualityStatus: trace.QualityPassed,
	})
	require.NoError(t, err)

	assert.True(t, done.Completed())
	require.True(t, done.QuantityOut.Valid)
	assert.True(t, done.QuantityOut.Decimal.Equal(d("95")))
	assert.Equal(t, trace.QualityPassed, done.QualityStatus)
}

func TestCompleteStage_Twice_IllegalState(t *testing.T) {
	// Re-completion is deliberately NOT idempotent: a second completion
	// means two actors reported closure.

	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "100"))

	_, err := e.CompleteStage(ctx, r.ID, trace.CompletionRequest{QuantityOut: d("95")})
	require.NoError(t, err)

	_, err = e.CompleteStage(ctx, r.ID, trace.CompletionRequest{QuantityOut: d("95")})
	require.Error(t, err)

	var stateErr *trace.IllegalStateError
	assert.ErrorAs(t, err, &stateErr)
	assert.ErrorIs(t, err, trace.ErrIllegalState)
}

func TestCompleteStage_ConservationAgainstStoredLoss(t *testing.T) {
	// GIVEN: A stage with loss 10 already on record against in 100
	// WHEN: Completing with out 95 (95 + 10 > 100)
	// THEN: Conservation rejects the completion, record stays open

	e := newTestEngine(t)
	ctx := context.Background()

	req := harvestRequest("batch-1", "100")
	req.LossQuantity = d("10")
	r := mustRegister(t, e, req)

	_, err := e.CompleteStage(ctx, r.ID, trace.CompletionRequest{QuantityOut: d("95")})
	require.ErrorIs(t, err, trace.ErrConservation)

	stored, err := e.Store().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed(), "rejected completion must not close the stage")
}

func TestCompleteStage_Missing_NotFound(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CompleteStage(context.Background(), "SC000000XXXXXX",
		trace.CompletionRequest{QuantityOut: d("1")})
	assert.True(t, trace.IsNotFound(err))
}

// =============================================================================
// ADVANCEMENT
// =============================================================================

func TestCreateNextStage_CarriesQuantityForward(t *testing.T) {
	// GIVEN: A completed HARVEST with out 100
	// WHEN: Advancing the batch
	// THEN: An open STORAGE record exists with in 100, order 2, same unit

	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "120"))
	_, err := e.CompleteStage(ctx, r.ID, trace.CompletionRequest{QuantityOut: d("100")})
	require.NoError(t, err)

	next, err := e.CreateNextStage(ctx, "batch-1", trace.NextStageRequest{
		Location:         "Cold Store 1",
		ResponsibleParty: "Depot Ops",
	})
	require.NoError(t, err)

	assert.Equal(t, trace.StageStorage, next.Stage)
	assert.Equal(t, 2, next.StageOrder)
	assert.True(t, next.QuantityIn.Equal(d("100")), "quantity in carries the predecessor's quantity out")
	assert.Equal(t, "KG", next.Unit)
	assert.False(t, next.Completed())
	assert.False(t, next.QuantityOut.Valid)
}

func TestCreateNextStage_IncompletePredecessor_Rejected(t *testing.T) {
	e := newTestEngine(t)
	mustRegister(t, e, harvestRequest("batch-1", "100"))

	_, err := e.CreateNextStage(context.Background(), "batch-1", trace.NextStageRequest{
		Location:         "Cold Store 1",
		ResponsibleParty: "Depot Ops",
	})
	assert.ErrorIs(t, err, trace.ErrValidation)
}

func TestCreateNextStage_UnknownBatch_Rejected(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateNextStage(context.Background(), "no-such-batch", trace.NextStageRequest{
		Location:         "Somewhere",
		ResponsibleParty: "Someone",
	})
	assert.ErrorIs(t, err, trace.ErrValidation)
}

func TestCreateNextStage_TerminalStage_Rejected(t *testing.T) {
	// A batch whose furthest record is a completed RETAIL stage cannot
	// advance further.

	e := newTestEngine(t)
	ctx := context.Background()

	req := trace.NewStageRequest{
		BatchID:          "batch-1",
		Stage:            trace.StageRetail,
		Location:         "Market Street Store",
		ResponsibleParty: "Store Receiving",
		QuantityIn:       d("50"),
	}
	r := mustRegister(t, e, req)
	_, err := e.CompleteStage(ctx, r.ID, trace.CompletionRequest{QuantityOut: d("50")})
	require.NoError(t, err)

	_, err = e.CreateNextStage(ctx, "batch-1", trace.NextStageRequest{
		Location:         "Nowhere",
		ResponsibleParty: "Nobody",
	})
	assert.ErrorIs(t, err, trace.ErrValidation)
}

func TestCreateNextStage_FullPipelineWalk(t *testing.T) {
	// Walk one batch through every stage to RETAIL.

	e := newTestEngine(t)
	ctx := context.Background()

	r := mustRegister(t, e, harvestRequest("walk-1", "1000"))
	quantity := d("1000")

	for {
		quantity = quantity.Sub(d("10"))
		_, err := e.CompleteStage(ctx, r.ID, trace.CompletionRequest{QuantityOut: quantity})
		require.NoError(t, err)

		if r.Stage.Terminal() {
			break
		}
		next, err := e.CreateNextStage(ctx, "walk-1", trace.NextStageRequest{
			Location:         "Step " + string(r.Stage),
			ResponsibleParty: "Handler",
		})
		require.NoError(t, err)
		r = next
	}

	records, err := e.Store().ListByBatch(ctx, "walk-1")
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, trace.StageRetail, records[5].Stage)
	assert.True(t, records[5].Completed())
	assert.True(t, records[5].QuantityIn.Equal(d("950")), "50 lost over five hops of 10")
}

// =============================================================================
// UPDATES
// =============================================================================

func TestUpdateStage_QuantityPatchRevalidates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "100"))

	bad := d("150")
	_, err := e.UpdateStage(ctx, r.ID, trace.StageUpdate{QuantityOut: &bad})
	assert.ErrorIs(t, err, trace.ErrConservation)

	good := d("90")
	loss := d("10")
	updated, err := e.UpdateStage(ctx, r.ID, trace.StageUpdate{QuantityOut: &good, LossQuantity: &loss})
	require.NoError(t, err)
	assert.True(t, updated.QuantityOut.Decimal.Equal(d("90")))
	assert.True(t, updated.LossQuantity.Equal(d("10")))
}

func TestUpdateStage_NonQuantityPatchSkipsConservation(t *testing.T) {
	// GIVEN: A record whose stored triple is at the boundary
	// WHEN: Patching only descriptive fields
	// THEN: The patch succeeds without re-running the validator

	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "100"))

	notes := "crates restacked"
	updated, err := e.UpdateStage(ctx, r.ID, trace.StageUpdate{HandlingNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "crates restacked", updated.HandlingNotes)
}

func TestUpdateStage_EndBeforeStart_Rejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "100"))

	out := d("95")
	end := r.StageStartDate.Add(-time.Hour)
	_, err := e.UpdateStage(ctx, r.ID, trace.StageUpdate{QuantityOut: &out, StageEndDate: &end})
	assert.ErrorIs(t, err, trace.ErrValidation)
}

func TestUpdateStage_EndDateWithoutQuantityOut_Rejected(t *testing.T) {
	// GIVEN: An open stage with no quantity out recorded
	// WHEN: Patching only the end date
	// THEN: The patch is rejected and the stage stays open; closing a
	//       stage always requires a quantity out

	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "100"))

	end := r.StageStartDate.Add(time.Hour)
	_, err := e.UpdateStage(ctx, r.ID, trace.StageUpdate{StageEndDate: &end})
	require.ErrorIs(t, err, trace.ErrValidation)

	stored, err := e.Store().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed())
	assert.False(t, stored.QuantityOut.Valid)
}

func TestUpdateStage_EndDateWithQuantityOut_Accepted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r := mustRegister(t, e, harvestRequest("batch-1", "100"))

	out := d("95")
	end := r.StageStartDate.Add(time.Hour)
	updated, err := e.UpdateStage(ctx, r.ID, trace.StageUpdate{QuantityOut: &out, StageEndDate: &end})
	require.NoError(t, err)
	assert.True(t, updated.Completed())
	assert.True(t, updated.QuantityOut.Decimal.Equal(d("95")))
}

func TestUpdateStages_EndDateWithoutQuantityOut_Atomic(t *testing.T) {
	// A bulk patch closing one record without its quantity out fails the
	// whole batch; the sibling's clean patch must not stick.

	e := newTestEngine(t)
	ctx := context.Background()
	a := mustRegister(t, e, harvestRequest("batch-a", "100"))
	b := mustRegister(t, e, harvestRequest("batch-b", "100"))

	notes := "restacked"
	end := b.StageStartDate.Add(time.Hour)
	_, err := e.UpdateStages(ctx, []trace.BulkStageUpdate{
		{ID: a.ID, Update: trace.StageUpdate{HandlingNotes: &notes}},
		{ID: b.ID, Update: trace.StageUpdate{StageEndDate: &end}},
	})
	require.ErrorIs(t, err, trace.ErrValidation)

	storedA, err := e.Store().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, storedA.HandlingNotes)
	storedB, err := e.Store().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, storedB.Completed())
}

// =============================================================================
// RETENTION CLEANUP
// =============================================================================

func TestCleanupCompleted_RemovesOnlyOldCompleted(t *testing.T) {
	// GIVEN: An old completed record, a fresh completed record, and an
	//        old record that is still open
	// WHEN: Cleaning with a 30 day window
	// THEN: Only the old completed record goes

	mem := store.NewTxMemory()
	base := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	e := trace.NewEngine(mem).WithClock(func() time.Time { return base.AddDate(0, 0, -90) })
	ctx := context.Background()

	oldDone := mustRegister(t, e, harvestRequest("old-done", "100"))
	_, err := e.CompleteStage(ctx, oldDone.ID, trace.CompletionRequest{QuantityOut: d("100")})
	require.NoError(t, err)

	mustRegister(t, e, harvestRequest("old-open", "100"))

	e.WithClock(func() time.Time { return base })
	freshDone := mustRegister(t, e, harvestRequest("fresh-done", "100"))
	_, err = e.CompleteStage(ctx, freshDone.ID, trace.CompletionRequest{QuantityOut: d("100")})
	require.NoError(t, err)

	deleted, err := e.CleanupCompleted(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = e.Store().Get(ctx, oldDone.ID)
	assert.True(t, trace.IsNotFound(err))
	_, err = e.Store().Get(ctx, freshDone.ID)
	assert.NoError(t, err)
}

func TestCleanupCompleted_NonPositiveWindow_Rejected(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CleanupCompleted(context.Background(), 0)
	assert.ErrorIs(t, err, trace.ErrValidation)
}

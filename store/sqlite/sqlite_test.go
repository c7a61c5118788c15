package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritrace/trace-engine/store/sqlite"
	"github.com/agritrace/trace-engine/trace"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var recSeq int

// testRecord builds a minimal open harvest-style record. Identity fields
// get a per-test sequence number so unique indexes never collide by
// accident.
func testRecord(batch string, order int) *trace.StageRecord {
	recSeq++
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &trace.StageRecord{
		ID:               trace.RecordID(fmt.Sprintf("SC%06d", recSeq)),
		BatchID:          trace.BatchID(batch),
		TrackingCode:     fmt.Sprintf("TRK%06d", recSeq),
		Stage:            trace.StageHarvest,
		StageOrder:       order,
		StageStartDate:   now,
		Location:         "North Field",
		ResponsibleParty: "Crew A",
		QuantityIn:       d("100"),
		Unit:             "KG",
		QualityStatus:    trace.QualityPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// =============================================================================
// SAVE / GET
// =============================================================================

func TestSaveGet_RoundTrip(t *testing.T) {
	// GIVEN: A fully populated, completed record
	// WHEN: Saving and reading it back
	// THEN: Every field survives, decimals exactly

	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-rt", 1)
	r.TransactionID = "txn-rt-1"
	r.FacilityName = "Pack House 2"
	r.QuantityIn = d("123.456")
	r.QuantityOut = decimal.NullDecimal{Decimal: d("120.001"), Valid: true}
	r.LossQuantity = d("3.455")
	r.LossReason = "Spillage"
	r.QualityStatus = trace.QualityPassed
	r.QualityTests = "Moisture 12%"
	r.StorageConditions = "Cool, dry"
	r.TransportMethod = "Reefer truck"
	r.HandlingNotes = "Handle gently"
	r.NextStageLocation = "Central Depot"
	r.Cost = d("45.5")
	end := r.StageStartDate.Add(6 * time.Hour)
	r.StageEndDate = &end

	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.BatchID, got.BatchID)
	assert.Equal(t, r.TransactionID, got.TransactionID)
	assert.Equal(t, r.TrackingCode, got.TrackingCode)
	assert.Equal(t, r.Stage, got.Stage)
	assert.Equal(t, r.StageOrder, got.StageOrder)
	assert.True(t, got.StageStartDate.Equal(r.StageStartDate))
	require.NotNil(t, got.StageEndDate)
	assert.True(t, got.StageEndDate.Equal(end))
	assert.Equal(t, r.FacilityName, got.FacilityName)
	assert.True(t, got.QuantityIn.Equal(r.QuantityIn))
	require.True(t, got.QuantityOut.Valid)
	assert.True(t, got.QuantityOut.Decimal.Equal(r.QuantityOut.Decimal))
	assert.True(t, got.LossQuantity.Equal(r.LossQuantity))
	assert.Equal(t, r.LossReason, got.LossReason)
	assert.Equal(t, r.QualityStatus, got.QualityStatus)
	assert.Equal(t, r.QualityTests, got.QualityTests)
	assert.Equal(t, r.StorageConditions, got.StorageConditions)
	assert.Equal(t, r.TransportMethod, got.TransportMethod)
	assert.Equal(t, r.HandlingNotes, got.HandlingNotes)
	assert.Equal(t, r.NextStageLocation, got.NextStageLocation)
	assert.True(t, got.Cost.Equal(r.Cost))
}

func TestSaveGet_OpenRecord_NullableFieldsStayUnset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-open", 1)
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got.StageEndDate)
	assert.False(t, got.QuantityOut.Valid)
	assert.Empty(t, got.TransactionID)
	assert.True(t, got.LossQuantity.IsZero())
}

func TestSave_Upsert_ReplacesMutableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-up", 1)
	require.NoError(t, s.Save(ctx, r))

	r.Location = "South Field"
	r.LossQuantity = d("2")
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "South Field", got.Location)
	assert.True(t, got.LossQuantity.Equal(d("2")))

	n, err := s.Count(ctx, trace.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "upsert must not create a second row")
}

func TestGet_Missing_ReturnsTypedNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "SC-missing")
	require.Error(t, err)
	assert.True(t, trace.IsNotFound(err))

	var nf *trace.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "id", nf.Key)
	assert.Equal(t, "SC-missing", nf.Value)
}

func TestGetByTrackingCode_And_TransactionID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-lk", 1)
	r.TransactionID = "txn-lk-1"
	require.NoError(t, s.Save(ctx, r))

	byCode, err := s.GetByTrackingCode(ctx, r.TrackingCode)
	require.NoError(t, err)
	assert.Equal(t, r.ID, byCode.ID)

	byTxn, err := s.GetByTransactionID(ctx, "txn-lk-1")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byTxn.ID)

	_, err = s.GetByTrackingCode(ctx, "TRK-nope")
	var nf *trace.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "trackingCode", nf.Key)
}

// =============================================================================
// UNIQUE INDEXES
// =============================================================================

func TestSave_DuplicateIdentity_TypedSentinels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testRecord("batch-dup", 1)
	first.TransactionID = "txn-dup-1"
	require.NoError(t, s.Save(ctx, first))

	t.Run("tracking code", func(t *testing.T) {
		dup := testRecord("batch-other", 1)
		dup.TrackingCode = first.TrackingCode
		err := s.Save(ctx, dup)
		assert.ErrorIs(t, err, trace.ErrDuplicateTrackingCode)
	})

	t.Run("transaction id", func(t *testing.T) {
		dup := testRecord("batch-other", 2)
		dup.TransactionID = "txn-dup-1"
		err := s.Save(ctx, dup)
		assert.ErrorIs(t, err, trace.ErrDuplicateTransactionID)
	})

	t.Run("batch stage order", func(t *testing.T) {
		dup := testRecord("batch-dup", 1)
		err := s.Save(ctx, dup)
		assert.ErrorIs(t, err, trace.ErrDuplicateStageOrder)
	})

	t.Run("empty transaction ids do not collide", func(t *testing.T) {
		a := testRecord("batch-empty-txn", 1)
		b := testRecord("batch-empty-txn", 2)
		require.NoError(t, s.Save(ctx, a))
		require.NoError(t, s.Save(ctx, b))
	})
}

// =============================================================================
// LISTING AND FILTERING
// =============================================================================

func TestListByBatch_OrdersByStageOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	third := testRecord("batch-ord", 3)
	third.Stage = trace.StageTransport
	first := testRecord("batch-ord", 1)
	second := testRecord("batch-ord", 2)
	second.Stage = trace.StageStorage

	// Insert deliberately out of order.
	require.NoError(t, s.Save(ctx, third))
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	records, err := s.ListByBatch(ctx, "batch-ord")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 1, records[0].StageOrder)
	assert.Equal(t, 2, records[1].StageOrder)
	assert.Equal(t, 3, records[2].StageOrder)

	empty, err := s.ListByBatch(ctx, "batch-nope")
	require.NoError(t, err, "an unknown batch is an empty list, not an error")
	assert.Empty(t, empty)
}

func TestFind_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	harvest := testRecord("batch-f", 1)
	harvest.Cost = d("10")

	storage := testRecord("batch-f", 2)
	storage.Stage = trace.StageStorage
	storage.Location = "Silo 4, Nakuru"
	storage.LossQuantity = d("5")
	storage.QualityStatus = trace.QualityFlagged
	storage.Cost = d("30")
	end := storage.StageStartDate.Add(time.Hour)
	storage.StageEndDate = &end
	storage.QuantityOut = decimal.NullDecimal{Decimal: d("95"), Valid: true}

	other := testRecord("batch-g", 1)
	other.Location = "Mombasa Port"

	for _, r := range []*trace.StageRecord{harvest, storage, other} {
		require.NoError(t, s.Save(ctx, r))
	}

	t.Run("by stage", func(t *testing.T) {
		stage := trace.StageStorage
		got, err := s.Find(ctx, trace.RecordFilter{Stage: &stage})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, storage.ID, got[0].ID)
	})

	t.Run("by batch", func(t *testing.T) {
		batch := trace.BatchID("batch-f")
		got, err := s.Find(ctx, trace.RecordFilter{BatchID: &batch})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("location substring is case insensitive", func(t *testing.T) {
		got, err := s.Find(ctx, trace.RecordFilter{Location: "nakuru"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, storage.ID, got[0].ID)
	})

	t.Run("free text term", func(t *testing.T) {
		got, err := s.Find(ctx, trace.RecordFilter{Term: "mombasa"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, other.ID, got[0].ID)
	})

	t.Run("cost range", func(t *testing.T) {
		min, max := d("20"), d("40")
		got, err := s.Find(ctx, trace.RecordFilter{MinCost: &min, MaxCost: &max})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, storage.ID, got[0].ID)
	})

	t.Run("completed only", func(t *testing.T) {
		got, err := s.Find(ctx, trace.RecordFilter{OnlyCompleted: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, storage.ID, got[0].ID)
	})

	t.Run("incomplete only", func(t *testing.T) {
		got, err := s.Find(ctx, trace.RecordFilter{OnlyIncomplete: true})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("with losses", func(t *testing.T) {
		got, err := s.Find(ctx, trace.RecordFilter{WithLosses: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, storage.ID, got[0].ID)
	})

	t.Run("quality issues", func(t *testing.T) {
		got, err := s.Find(ctx, trace.RecordFilter{QualityIssues: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, storage.ID, got[0].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		page1, err := s.Find(ctx, trace.RecordFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page1, 2)

		page2, err := s.Find(ctx, trace.RecordFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, page2, 1)
	})
}

func TestCountGrouped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testRecord("batch-c", 1)
	b := testRecord("batch-c", 2)
	b.Stage = trace.StageStorage
	b.QualityStatus = trace.QualityRejected
	c := testRecord("batch-d", 1)

	for _, r := range []*trace.StageRecord{a, b, c} {
		require.NoError(t, s.Save(ctx, r))
	}

	byStage, err := s.CountByStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byStage[trace.StageHarvest])
	assert.Equal(t, int64(1), byStage[trace.StageStorage])

	byQuality, err := s.CountByQuality(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byQuality[trace.QualityPending])
	assert.Equal(t, int64(1), byQuality[trace.QualityRejected])
}

func TestExistsChecks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-ex", 1)
	r.TransactionID = "txn-ex-1"
	require.NoError(t, s.Save(ctx, r))

	ok, err := s.ExistsTrackingCode(ctx, r.TrackingCode)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ExistsTransactionID(ctx, "txn-ex-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ExistsBatchStageOrder(ctx, "batch-ex", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ExistsBatchStageOrder(ctx, "batch-ex", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// DELETION AND RETENTION
// =============================================================================

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-del", 1)
	require.NoError(t, s.Save(ctx, r))
	require.NoError(t, s.Delete(ctx, r.ID))

	_, err := s.Get(ctx, r.ID)
	assert.True(t, trace.IsNotFound(err))

	err = s.Delete(ctx, r.ID)
	assert.True(t, trace.IsNotFound(err), "deleting a missing record is an error, not a no-op")
}

func TestDeleteCompletedBefore(t *testing.T) {
	// GIVEN: An old completed record, a fresh completed one, and an old
	//        open one
	// WHEN: Sweeping with a cutoff between old and fresh
	// THEN: Only the old completed record goes; open records are immune

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldDone := testRecord("batch-ret", 1)
	oldEnd := now.AddDate(0, 0, -90)
	oldDone.StageEndDate = &oldEnd

	freshDone := testRecord("batch-ret", 2)
	freshEnd := now.AddDate(0, 0, -1)
	freshDone.StageEndDate = &freshEnd

	oldOpen := testRecord("batch-ret", 3)
	oldOpen.StageStartDate = now.AddDate(0, 0, -120)

	for _, r := range []*trace.StageRecord{oldDone, freshDone, oldOpen} {
		require.NoError(t, s.Save(ctx, r))
	}

	removed, err := s.DeleteCompletedBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Get(ctx, oldDone.ID)
	assert.True(t, trace.IsNotFound(err))
	_, err = s.Get(ctx, freshDone.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, oldOpen.ID)
	assert.NoError(t, err)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-tx", 1)
	sentinel := fmt.Errorf("boom")

	err := s.WithTx(ctx, func(st trace.RecordStore) error {
		if err := st.Save(ctx, r); err != nil {
			return err
		}
		// The write must be visible inside the unit of work.
		if _, err := st.Get(ctx, r.ID); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel, "the callback error comes back unchanged")

	_, err = s.Get(ctx, r.ID)
	assert.True(t, trace.IsNotFound(err), "rolled-back write must not be visible")
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRecord("batch-tx2", 1)
	err := s.WithTx(ctx, func(st trace.RecordStore) error {
		return st.Save(ctx, r)
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

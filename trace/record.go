/*
record.go - Record construction, identity generation, and patch updates

PURPOSE:
  Builds new StageRecords with generated identity (record id and tracking
  code), applies defaults, and defines the typed patch struct used by
  partial updates. The dynamic map-shaped payloads of ad-hoc callers are
  rejected by design: every mutable field has a typed slot here.

IDENTITY SCHEME:
  Record ids:      "SC" + last 6 digits of unix-millis + 6 random chars
  Tracking codes:  "TRK" + last 6 digits of unix-millis + 5 random chars
  Both are externally visible, so they stay short and human-quotable.
  Uniqueness is enforced by the store, not by the generator.

SEE ALSO:
  - transition.go: Uses NewStageRecord / ApplyUpdate
*/
package trace

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultUnit is assumed when a caller does not specify one.
	DefaultUnit = "KG"

	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}

func timestampSuffix(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return ms
}

// NewRecordID generates a fresh stage record identifier.
func NewRecordID(now time.Time) RecordID {
	return RecordID("SC" + timestampSuffix(now) + randomSuffix(6))
}

// NewTrackingCode generates a fresh externally visible tracking code.
func NewTrackingCode(now time.Time) string {
	return "TRK" + timestampSuffix(now) + randomSuffix(5)
}

// =============================================================================
// CREATION REQUEST
// =============================================================================

// NewStageRequest carries the caller-supplied fields for registering a
// stage record. Identity, tracking code, and audit timestamps are assigned
// by the engine.
type NewStageRequest struct {
	BatchID          BatchID
	Stage            Stage
	StageOrder       int
	Location         string
	FacilityName     string
	ResponsibleParty string
	QuantityIn       decimal.Decimal
	QuantityOut      decimal.NullDecimal
	LossQuantity     decimal.Decimal
	Unit             string
	QualityStatus    QualityStatus
	QualityTests     string
	LossReason       string

	StorageConditions string
	TransportMethod   string
	HandlingNotes     string
	NextStageLocation string

	Cost          decimal.Decimal
	TransactionID string
	TrackingCode  string
	StageStart    *time.Time // defaults to now
}

// newStageRecord materializes a request into a record with identity and
// defaults applied. Validation happens in the engine, not here.
func newStageRecord(req NewStageRequest, now time.Time) *StageRecord {
	start := now
	if req.StageStart != nil {
		start = *req.StageStart
	}
	unit := req.Unit
	if unit == "" {
		unit = DefaultUnit
	}
	quality := req.QualityStatus
	if quality == "" {
		quality = QualityPending
	}
	tracking := req.TrackingCode
	if tracking == "" {
		tracking = NewTrackingCode(now)
	}

	return &StageRecord{
		ID:                NewRecordID(now),
		BatchID:           req.BatchID,
		TransactionID:     req.TransactionID,
		TrackingCode:      tracking,
		Stage:             req.Stage,
		StageOrder:        req.StageOrder,
		StageStartDate:    start,
		Location:          req.Location,
		FacilityName:      req.FacilityName,
		ResponsibleParty:  req.ResponsibleParty,
		QuantityIn:        req.QuantityIn,
		QuantityOut:       req.QuantityOut,
		LossQuantity:      req.LossQuantity,
		Unit:              unit,
		LossReason:        req.LossReason,
		QualityStatus:     quality,
		QualityTests:      req.QualityTests,
		StorageConditions: req.StorageConditions,
		TransportMethod:   req.TransportMethod,
		HandlingNotes:     req.HandlingNotes,
		NextStageLocation: req.NextStageLocation,
		Cost:              req.Cost,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// =============================================================================
// PATCH UPDATE
// =============================================================================

// StageUpdate is a typed patch: nil fields are left untouched.
// Identity, BatchID, Stage, and StageOrder are deliberately absent -
// they are immutable after creation.
type StageUpdate struct {
	Location         *string
	FacilityName     *string
	ResponsibleParty *string

	QuantityIn   *decimal.Decimal
	QuantityOut  *decimal.Decimal
	LossQuantity *decimal.Decimal
	Unit         *string

	LossReason    *string
	QualityStatus *QualityStatus
	QualityTests  *string

	StorageConditions *string
	TransportMethod   *string
	HandlingNotes     *string
	NextStageLocation *string

	Cost         *decimal.Decimal
	StageEndDate *time.Time
}

// TouchesQuantities reports whether the patch changes any field covered by
// the conservation invariant. Patches that do not touch quantities skip
// re-validation.
func (u StageUpdate) TouchesQuantities() bool {
	return u.QuantityIn != nil || u.QuantityOut != nil || u.LossQuantity != nil
}

// apply copies the set fields of the patch onto the record and refreshes
// the audit timestamp. Conservation is the engine's responsibility.
func (u StageUpdate) apply(r *StageRecord, now time.Time) {
	if u.Location != nil {
		r.Location = *u.Location
	}
	if u.FacilityName != nil {
		r.FacilityName = *u.FacilityName
	}
	if u.ResponsibleParty != nil {
		r.ResponsibleParty = *u.ResponsibleParty
	}
	if u.QuantityIn != nil {
		r.QuantityIn = *u.QuantityIn
	}
	if u.QuantityOut != nil {
		r.QuantityOut = decimal.NullDecimal{Decimal: *u.QuantityOut, Valid: true}
	}
	if u.LossQuantity != nil {
		r.LossQuantity = *u.LossQuantity
	}
	if u.Unit != nil {
		r.Unit = *u.Unit
	}
	if u.LossReason != nil {
		r.LossReason = *u.LossReason
	}
	if u.QualityStatus != nil {
		r.QualityStatus = *u.QualityStatus
	}
	if u.QualityTests != nil {
		r.QualityTests = *u.QualityTests
	}
	if u.StorageConditions != nil {
		r.StorageConditions = *u.StorageConditions
	}
	if u.TransportMethod != nil {
		r.TransportMethod = *u.TransportMethod
	}
	if u.HandlingNotes != nil {
		r.HandlingNotes = *u.HandlingNotes
	}
	if u.NextStageLocation != nil {
		r.NextStageLocation = *u.NextStageLocation
	}
	if u.Cost != nil {
		r.Cost = *u.Cost
	}
	if u.StageEndDate != nil {
		end := *u.StageEndDate
		r.StageEndDate = &end
	}
	r.UpdatedAt = now
}

// Clone returns a deep copy of the record. Stores hand out clones so
// callers can never mutate persisted state behind the engine's back.
func (r *StageRecord) Clone() *StageRecord {
	cp := *r
	if r.StageEndDate != nil {
		end := *r.StageEndDate
		cp.StageEndDate = &end
	}
	return &cp
}

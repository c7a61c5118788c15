/*
Package trace provides the core supply-chain stage traceability engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking a
  harvested batch of produce through the fixed handling pipeline
  (harvest -> storage -> transport -> processing -> distribution -> retail).
  It enforces the mass-conservation invariant at every stage, advances
  batches through the pipeline, and derives loss/quality analytics from
  the recorded history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Stage: A closed, ordered enumeration with an explicit successor function
  - QualityStatus: Quality gate state for a stage record
  - StageRecord: One batch occupying one stage, with quantities and timing
  - RecordID/BatchID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all quantities - no float drift
  2. Closed ordering: The stage sequence is fixed at compile time; "next"
     is always the immediate successor, never string comparison
  3. Conservation: quantityOut + lossQuantity never exceeds quantityIn
     (enforced in conservation.go, checked on every create/update)
  4. Derived values: loss percentage, efficiency, and durations are always
     computed from the record - never stored where they could drift

SEE ALSO:
  - conservation.go: The mass-balance validator
  - transition.go: Stage completion and next-stage creation
  - analytics.go: Chain summaries and fleet statistics
*/
package trace

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// RecordID identifies a single stage record.
type RecordID string

// BatchID groups all stage records belonging to one harvested lot.
// Opaque: supplied by the crop-production subsystem, never validated
// beyond "has at least one stage record" where relevant.
type BatchID string

// =============================================================================
// STAGE - Fixed pipeline ordering with explicit successor function
// =============================================================================

type Stage string

const (
	StageHarvest      Stage = "HARVEST"
	StageStorage      Stage = "STORAGE"
	StageTransport    Stage = "TRANSPORT"
	StageProcessing   Stage = "PROCESSING"
	StageDistribution Stage = "DISTRIBUTION"
	StageRetail       Stage = "RETAIL"
)

// stageOrder fixes the pipeline sequence. Appending a new stage here is the
// only way to extend the pipeline; the successor function derives from it.
var stageOrder = []Stage{
	StageHarvest,
	StageStorage,
	StageTransport,
	StageProcessing,
	StageDistribution,
	StageRetail,
}

var stageIndex = func() map[Stage]int {
	m := make(map[Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		m[s] = i
	}
	return m
}()

// Stages returns the pipeline in order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Valid reports whether s is a known pipeline stage.
func (s Stage) Valid() bool {
	_, ok := stageIndex[s]
	return ok
}

// Order returns the 1-based rank of the stage in the pipeline.
// Returns 0 for unknown stages.
func (s Stage) Order() int {
	i, ok := stageIndex[s]
	if !ok {
		return 0
	}
	return i + 1
}

// Next returns the immediate successor stage. ok is false at the terminal
// stage (RETAIL) and for unknown stages.
func (s Stage) Next() (Stage, bool) {
	i, known := stageIndex[s]
	if !known || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// Previous returns the immediate predecessor stage. ok is false at HARVEST.
func (s Stage) Previous() (Stage, bool) {
	i, known := stageIndex[s]
	if !known || i == 0 {
		return "", false
	}
	return stageOrder[i-1], true
}

// Terminal reports whether s is the last stage of the pipeline.
func (s Stage) Terminal() bool {
	return s == stageOrder[len(stageOrder)-1]
}

// DisplayName returns a human-readable stage name, e.g. "Harvest".
func (s Stage) DisplayName() string {
	if len(s) == 0 {
		return "Unknown"
	}
	name := string(s)
	return name[:1] + toLower(name[1:])
}

func toLower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// =============================================================================
// QUALITY STATUS
// =============================================================================

type QualityStatus string

const (
	QualityPending  QualityStatus = "PENDING"
	QualityPassed   QualityStatus = "PASSED"
	QualityFlagged  QualityStatus = "FLAGGED"
	QualityRejected QualityStatus = "REJECTED"
)

var qualityStatuses = map[QualityStatus]bool{
	QualityPending:  true,
	QualityPassed:   true,
	QualityFlagged:  true,
	QualityRejected: true,
}

// Valid reports whether q is a known quality status.
func (q QualityStatus) Valid() bool { return qualityStatuses[q] }

// Issue reports whether q counts as a quality issue (gated out of the chain
// or needing review).
func (q QualityStatus) Issue() bool {
	return q == QualityFlagged || q == QualityRejected
}

// =============================================================================
// STAGE RECORD - One batch occupying one stage
// =============================================================================

// StageRecord records one batch occupying one stage of the pipeline.
//
// IMMUTABILITY:
//   ID, BatchID, Stage, and StageOrder never change after creation.
//   Only measurable/quality/audit fields mutate, and every quantity
//   mutation re-runs the conservation validator.
//
// COMPLETION:
//   A record is complete iff StageEndDate is non-nil. Completion requires
//   QuantityOut to be set (QuantityOut.Valid).
type StageRecord struct {
	ID            RecordID
	BatchID       BatchID
	TransactionID string
	TrackingCode  string

	Stage      Stage
	StageOrder int

	StageStartDate time.Time
	StageEndDate   *time.Time

	Location         string
	FacilityName     string
	ResponsibleParty string

	QuantityIn   decimal.Decimal
	QuantityOut  decimal.NullDecimal // unset until the stage is completed
	LossQuantity decimal.Decimal
	Unit         string

	LossReason    string
	QualityStatus QualityStatus
	QualityTests  string

	StorageConditions string
	TransportMethod   string
	HandlingNotes     string
	NextStageLocation string

	Cost decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completed reports whether the stage has been closed out.
func (r *StageRecord) Completed() bool { return r.StageEndDate != nil }

// InProgress reports whether the stage is open.
func (r *StageRecord) InProgress() bool { return r.StageEndDate == nil }

// HasLosses reports whether any loss was recorded at this stage.
func (r *StageRecord) HasLosses() bool { return r.LossQuantity.IsPositive() }

// HasQualityIssue reports whether the record is quality-gated.
func (r *StageRecord) HasQualityIssue() bool { return r.QualityStatus.Issue() }

// OutOrZero returns QuantityOut, defaulting to zero when unset.
// This is the value the conservation validator uses.
func (r *StageRecord) OutOrZero() decimal.Decimal {
	if r.QuantityOut.Valid {
		return r.QuantityOut.Decimal
	}
	return decimal.Zero
}

// LossPercent returns lossQuantity/quantityIn as a percentage rounded to
// two decimal places. ok is false when quantityIn is zero.
func (r *StageRecord) LossPercent() (decimal.Decimal, bool) {
	if !r.QuantityIn.IsPositive() {
		return decimal.Zero, false
	}
	pct := r.LossQuantity.Div(r.QuantityIn).Mul(hundred).Round(2)
	return pct, true
}

// EfficiencyRate returns quantityOut/quantityIn as a percentage rounded to
// two decimal places. ok is false when quantityOut is unset or quantityIn
// is zero.
func (r *StageRecord) EfficiencyRate() (decimal.Decimal, bool) {
	if !r.QuantityOut.Valid || !r.QuantityIn.IsPositive() {
		return decimal.Zero, false
	}
	return r.QuantityOut.Decimal.Div(r.QuantityIn).Mul(hundred).Round(2), true
}

// CostPerUnit returns cost/quantityIn. ok is false when quantityIn is zero.
func (r *StageRecord) CostPerUnit() (decimal.Decimal, bool) {
	if !r.QuantityIn.IsPositive() {
		return decimal.Zero, false
	}
	return r.Cost.Div(r.QuantityIn).Round(4), true
}

// Duration returns the stage lifetime. ok is false while the stage is open.
func (r *StageRecord) Duration() (time.Duration, bool) {
	if r.StageEndDate == nil {
		return 0, false
	}
	return r.StageEndDate.Sub(r.StageStartDate), true
}

var hundred = decimal.NewFromInt(100)

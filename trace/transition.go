/*
transition.go - Stage lifecycle: registration, completion, advancement

PURPOSE:
  The transition engine owns every write path for stage records. It
  validates business rules and the conservation invariant, closes stages
  out, and advances a batch to its next pipeline stage carrying the
  correct input quantity forward.

OPERATIONS:
  RegisterStage(s)     Create record(s) for reported handling events
  UpdateStage(s)       Typed patch updates on mutable fields
  CompleteStage        Set quantityOut + stageEndDate, re-check conservation
  CreateNextStage      Synthesize the immediate successor stage for a batch
  DeleteStage(s)       Explicit removal (maintenance only)
  CleanupCompleted     Retention cleanup of old completed records

TRANSACTION BOUNDARIES:
  Every read-then-write runs inside store.WithTx. CreateNextStage in
  particular must read the predecessor's quantityOut atomically with
  respect to a concurrent CompleteStage; an open predecessor at read time
  is a validation failure, never a partial read.

RE-COMPLETION:
  Completing an already-completed stage fails with IllegalState. It is
  deliberately NOT idempotent - a second completion means two actors
  reported closure and someone must reconcile.

SEE ALSO:
  - conservation.go: The quantity validator called throughout
  - quality.go: Quality/loss mutations (separate concern)
*/
package trace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine coordinates all stage-record writes against the store.
type Engine struct {
	store TxRecordStore
	now   func() time.Time
}

// NewEngine creates a transition engine over the given store.
func NewEngine(store TxRecordStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock overrides the engine clock. Tests use this to pin timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Store exposes the underlying store for read-only collaborators.
func (e *Engine) Store() TxRecordStore { return e.store }

// =============================================================================
// REGISTRATION
// =============================================================================

// RegisterStage creates a stage record for a reported handling event.
// Identity and tracking code are generated when absent; uniqueness of
// tracking code, transaction id, and (batch, stageOrder) is enforced.
func (e *Engine) RegisterStage(ctx context.Context, req NewStageRequest) (*StageRecord, error) {
	if err := e.validateNew(&req); err != nil {
		return nil, err
	}

	var created *StageRecord
	err := e.store.WithTx(ctx, func(s RecordStore) error {
		if err := e.checkUniqueness(ctx, s, &req); err != nil {
			return err
		}
		created = newStageRecord(req, e.now())
		return s.Save(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RegisterStages creates several records atomically: every request is
// validated before any record is written.
func (e *Engine) RegisterStages(ctx context.Context, reqs []NewStageRequest) ([]*StageRecord, error) {
	for i := range reqs {
		if err := e.validateNew(&reqs[i]); err != nil {
			return nil, err
		}
	}

	var created []*StageRecord
	err := e.store.WithTx(ctx, func(s RecordStore) error {
		records := make([]*StageRecord, 0, len(reqs))
		for i := range reqs {
			if err := e.checkUniqueness(ctx, s, &reqs[i]); err != nil {
				return err
			}
			records = append(records, newStageRecord(reqs[i], e.now()))
		}
		if err := s.SaveAll(ctx, records); err != nil {
			return err
		}
		created = records
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (e *Engine) validateNew(req *NewStageRequest) error {
	if req.BatchID == "" {
		return NewValidationError("batchId", "is required")
	}
	if !req.Stage.Valid() {
		return NewValidationError("stage", "unknown stage %q", string(req.Stage))
	}
	if req.StageOrder == 0 {
		// Default to the stage's pipeline rank.
		req.StageOrder = req.Stage.Order()
	}
	if req.StageOrder < 1 {
		return NewValidationError("stageOrder", "must be at least 1, got %d", req.StageOrder)
	}
	if req.Location == "" {
		return NewValidationError("location", "is required")
	}
	if req.ResponsibleParty == "" {
		return NewValidationError("responsibleParty", "is required")
	}
	if req.QualityStatus != "" && !req.QualityStatus.Valid() {
		return NewValidationError("qualityStatus", "unknown status %q", string(req.QualityStatus))
	}
	if req.Cost.IsNegative() {
		return NewValidationError("cost", "must not be negative, got %s", req.Cost)
	}
	out := decimal.Zero
	if req.QuantityOut.Valid {
		out = req.QuantityOut.Decimal
	}
	return ValidateConservation(req.QuantityIn, out, req.LossQuantity)
}

func (e *Engine) checkUniqueness(ctx context.Context, s RecordStore, req *NewStageRequest) error {
	if req.TrackingCode != "" {
		taken, err := s.ExistsTrackingCode(ctx, req.TrackingCode)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateTrackingCode
		}
	}
	if req.TransactionID != "" {
		taken, err := s.ExistsTransactionID(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateTransactionID
		}
	}
	taken, err := s.ExistsBatchStageOrder(ctx, req.BatchID, req.StageOrder)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateStageOrder
	}
	return nil
}

// =============================================================================
// UPDATES
// =============================================================================

// UpdateStage applies a typed patch to a record. Quantity-touching patches
// re-validate the full conservation triple against the resulting values;
// patches that leave all three quantities alone skip the re-check.
func (e *Engine) UpdateStage(ctx context.Context, id RecordID, upd StageUpdate) (*StageRecord, error) {
	var updated *StageRecord
	err := e.store.WithTx(ctx, func(s RecordStore) error {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		upd.apply(r, e.now())
		if err := validatePatched(r, upd); err != nil {
			return err
		}
		if err := s.Save(ctx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// validatePatched checks a record after a patch has been applied. A record
// with an end date must carry a quantityOut: completion without it would
// sidestep the CompleteStage gate.
func validatePatched(r *StageRecord, upd StageUpdate) error {
	if upd.TouchesQuantities() {
		if err := ValidateRecordConservation(r); err != nil {
			return err
		}
	}
	if upd.QualityStatus != nil && !upd.QualityStatus.Valid() {
		return NewValidationError("qualityStatus", "unknown status %q", string(*upd.QualityStatus))
	}
	if r.StageEndDate != nil {
		if !r.QuantityOut.Valid {
			return NewValidationError("stageEndDate", "cannot set an end date without a quantity out")
		}
		if r.StageEndDate.Before(r.StageStartDate) {
			return NewValidationError("stageEndDate", "must not precede stage start date")
		}
	}
	return nil
}

// BulkStageUpdate pairs a record id with its patch.
type BulkStageUpdate struct {
	ID     RecordID
	Update StageUpdate
}

// UpdateStages applies several patches atomically.
func (e *Engine) UpdateStages(ctx context.Context, updates []BulkStageUpdate) ([]*StageRecord, error) {
	var updated []*StageRecord
	err := e.store.WithTx(ctx, func(s RecordStore) error {
		records := make([]*StageRecord, 0, len(updates))
		for _, u := range updates {
			r, err := s.Get(ctx, u.ID)
			if err != nil {
				return err
			}
			u.Update.apply(r, e.now())
			if err := validatePatched(r, u.Update); err != nil {
				return err
			}
			records = append(records, r)
		}
		if err := s.SaveAll(ctx, records); err != nil {
			return err
		}
		updated = records
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// COMPLETION
// =============================================================================

// CompletionRequest carries the fields for closing a stage out.
type CompletionRequest struct {
	QuantityOut   decimal.Decimal
	HandlingNotes string
	QualityStatus QualityStatus // optional: empty leaves the status untouched
}

// CompleteStage closes a stage: re-validates conservation with the given
// quantityOut against the stored quantityIn/lossQuantity, sets the end
// date, and persists. Completing a completed stage fails with
// IllegalState - never silently succeeds.
func (e *Engine) CompleteStage(ctx context.Context, id RecordID, req CompletionRequest) (*StageRecord, error) {
	if req.QualityStatus != "" && !req.QualityStatus.Valid() {
		return nil, NewValidationError("qualityStatus", "unknown status %q", string(req.QualityStatus))
	}

	var completed *StageRecord
	err := e.store.WithTx(ctx, func(s RecordStore) error {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if r.Completed() {
			return &IllegalStateError{RecordID: id, Reason: "stage already completed"}
		}
		if err := ValidateConservation(r.QuantityIn, req.QuantityOut, r.LossQuantity); err != nil {
			return err
		}

		now := e.now()
		r.QuantityOut = decimal.NullDecimal{Decimal: req.QuantityOut, Valid: true}
		if req.HandlingNotes != "" {
			r.HandlingNotes = req.HandlingNotes
		}
		if req.QualityStatus != "" {
			r.QualityStatus = req.QualityStatus
		}
		end := now
		r.StageEndDate = &end
		r.UpdatedAt = now

		if err := s.Save(ctx, r); err != nil {
			return err
		}
		completed = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// =============================================================================
// ADVANCEMENT
// =============================================================================

// NextStageRequest carries the caller-supplied fields for the synthesized
// successor record. Quantities and stage identity come from the
// predecessor, never from the caller.
type NextStageRequest struct {
	Location         string
	ResponsibleParty string
	FacilityName     string
}

// CreateNextStage advances a batch: finds its furthest stage record,
// requires it to be completed, and creates an open record for the
// immediate successor stage with quantityIn carried from the
// predecessor's quantityOut.
//
// The predecessor read and the successor write share one unit of work so
// a concurrent CompleteStage can never leak a partial quantityOut in.
func (e *Engine) CreateNextStage(ctx context.Context, batch BatchID, req NextStageRequest) (*StageRecord, error) {
	if req.Location == "" {
		return nil, NewValidationError("location", "is required")
	}
	if req.ResponsibleParty == "" {
		return nil, NewValidationError("responsibleParty", "is required")
	}

	var created *StageRecord
	err := e.store.WithTx(ctx, func(s RecordStore) error {
		records, err := s.ListByBatch(ctx, batch)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return NewValidationError("batchId", "no stage records exist for batch %s", batch)
		}

		// ListByBatch orders by stage order, so the furthest stage is last.
		pred := records[len(records)-1]
		if !pred.Completed() {
			return NewValidationError("batchId",
				"cannot create next stage: current stage %s is not completed", pred.Stage.DisplayName())
		}
		if !pred.QuantityOut.Valid {
			return NewValidationError("quantityOut",
				"predecessor stage %s has no quantity out recorded", pred.Stage.DisplayName())
		}

		next, ok := pred.Stage.Next()
		if !ok {
			return NewValidationError("stage",
				"no stage follows %s: the chain is complete", pred.Stage.DisplayName())
		}

		now := e.now()
		created = newStageRecord(NewStageRequest{
			BatchID:          batch,
			Stage:            next,
			StageOrder:       pred.StageOrder + 1,
			Location:         req.Location,
			ResponsibleParty: req.ResponsibleParty,
			FacilityName:     req.FacilityName,
			QuantityIn:       pred.QuantityOut.Decimal,
			Unit:             pred.Unit,
		}, now)

		taken, err := s.ExistsBatchStageOrder(ctx, batch, created.StageOrder)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateStageOrder
		}
		return s.Save(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// DELETION & RETENTION
// =============================================================================

// DeleteStage removes a record. Normal operation never deletes; this
// exists for explicit maintenance.
func (e *Engine) DeleteStage(ctx context.Context, id RecordID) error {
	return e.store.Delete(ctx, id)
}

// DeleteStages removes several records atomically; all must exist.
func (e *Engine) DeleteStages(ctx context.Context, ids []RecordID) error {
	return e.store.WithTx(ctx, func(s RecordStore) error {
		for _, id := range ids {
			if err := s.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// CleanupCompleted deletes completed records whose stage end date is older
// than the retention window, returning how many were removed.
func (e *Engine) CleanupCompleted(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, NewValidationError("retentionDays", "must be at least 1, got %d", retentionDays)
	}
	cutoff := e.now().AddDate(0, 0, -retentionDays)
	return e.store.DeleteCompletedBefore(ctx, cutoff)
}

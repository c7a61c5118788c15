/*
quality.go - Quality gating and loss bookkeeping

PURPOSE:
  Manages quality-status transitions and loss-reason bookkeeping per
  stage. Quality is orthogonal to quantity: a status change never touches
  the conservation triple, so it skips the validator. A loss update does
  touch it, so the triple is re-validated against the stored
  quantityIn/quantityOut before anything is committed.

QUERY SURFACE:
  FindQualityIssues       status FLAGGED or REJECTED
  FindStagesWithLosses    lossQuantity > 0
  FindStagesWithHighLosses lossQuantity/quantityIn >= threshold percent

SEE ALSO:
  - conservation.go: Re-run on loss updates
  - analytics.go: Aggregated quality/loss statistics
*/
package trace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QualityTracker manages per-stage quality and loss state.
type QualityTracker struct {
	store TxRecordStore
	now   func() time.Time
}

// NewQualityTracker creates a tracker over the given store.
func NewQualityTracker(store TxRecordStore) *QualityTracker {
	return &QualityTracker{store: store, now: time.Now}
}

// WithClock overrides the tracker clock for tests.
func (t *QualityTracker) WithClock(now func() time.Time) *QualityTracker {
	t.now = now
	return t
}

// =============================================================================
// MUTATIONS
// =============================================================================

// UpdateQualityStatus sets a record's quality status and, optionally, its
// test annotations. No conservation re-check: quality is orthogonal to
// quantity.
func (t *QualityTracker) UpdateQualityStatus(ctx context.Context, id RecordID, status QualityStatus, qualityTests string) (*StageRecord, error) {
	if !status.Valid() {
		return nil, NewValidationError("qualityStatus", "unknown status %q", string(status))
	}

	var updated *StageRecord
	err := t.store.WithTx(ctx, func(s RecordStore) error {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		r.QualityStatus = status
		if qualityTests != "" {
			r.QualityTests = qualityTests
		}
		r.UpdatedAt = t.now()
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

// LossUpdateRequest carries a loss mutation. A nil LossQuantity updates
// only the reason text and skips re-validation.
type LossUpdateRequest struct {
	LossQuantity *decimal.Decimal
	LossReason   string
}

// UpdateLossInformation records loss at a stage. When a quantity is
// supplied the conservation validator runs against the stored
// quantityIn/quantityOut before anything is committed.
func (t *QualityTracker) UpdateLossInformation(ctx context.Context, id RecordID, req LossUpdateRequest) (*StageRecord, error) {
	var updated *StageRecord
	err := t.store.WithTx(ctx, func(s RecordStore) error {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.LossQuantity != nil {
			if err := ValidateConservation(r.QuantityIn, r.OutOrZero(), *req.LossQuantity); err != nil {
				return err
			}
			r.LossQuantity = *req.LossQuantity
		}
		if req.LossReason != "" {
			r.LossReason = req.LossReason
		}
		r.UpdatedAt = t.now()
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

// =============================================================================
// QUERIES
// =============================================================================

// FindQualityIssues returns all records gated FLAGGED or REJECTED.
func (t *QualityTracker) FindQualityIssues(ctx context.Context) ([]*StageRecord, error) {
	return t.store.Find(ctx, RecordFilter{QualityIssues: true})
}

// FindQualityIssuesByBatch narrows quality issues to one batch.
func (t *QualityTracker) FindQualityIssuesByBatch(ctx context.Context, batch BatchID) ([]*StageRecord, error) {
	return t.store.Find(ctx, RecordFilter{BatchID: &batch, QualityIssues: true})
}

// FindStagesWithLosses returns all records with recorded loss.
func (t *QualityTracker) FindStagesWithLosses(ctx context.Context) ([]*StageRecord, error) {
	return t.store.Find(ctx, RecordFilter{WithLosses: true})
}

// FindStagesWithHighLosses returns records whose loss percentage meets or
// exceeds the threshold (in percent, e.g. 5 for 5%).
func (t *QualityTracker) FindStagesWithHighLosses(ctx context.Context, thresholdPercent decimal.Decimal) ([]*StageRecord, error) {
	if thresholdPercent.IsNegative() {
		return nil, NewValidationError("thresholdPercent", "must not be negative, got %s", thresholdPercent)
	}

	lossy, err := t.store.Find(ctx, RecordFilter{WithLosses: true})
	if err != nil {
		return nil, err
	}

	var high []*StageRecord
	for _, r := range lossy {
		pct, ok := r.LossPercent()
		if ok && pct.GreaterThanOrEqual(thresholdPercent) {
			high = append(high, r)
		}
	}
	return high, nil
}

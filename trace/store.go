/*
store.go - Persistence contract for stage records

PURPOSE:
  Defines the interface between the engine and the database. The engine
  treats the store as a generic keyed collection with filter/sort/paginate
  capability; the exact query language is an implementation detail.

KEY INTERFACES:
  RecordStore:   Keyed record persistence and querying
  TxRecordStore: RecordStore plus atomic multi-step units of work

TRANSACTION CONTRACT:
  CompleteStage and CreateNextStage are read-then-write sequences: they
  must observe a predecessor's quantityOut transactionally with respect to
  concurrent completion calls. Implementations provide WithTx for that;
  the engine never issues a cross-record read-modify-write outside it.

ISOLATION ASSUMPTIONS:
  - Atomic single-record read-modify-write
  - At least read-committed isolation for cross-record reads

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - trace/store:  In-memory store for tests and dev

SEE ALSO:
  - transition.go: The main consumer of WithTx
  - analytics.go: Read-only consumer of the query surface
*/
package trace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUERY FILTER
// =============================================================================

// RecordFilter narrows Find/Count queries. Nil/zero fields are ignored.
// Results are ordered by (batch, stageOrder) and paginated by Limit/Offset
// when Limit > 0.
type RecordFilter struct {
	BatchID       *BatchID
	Stage         *Stage
	QualityStatus *QualityStatus

	Location         string // substring match
	ResponsibleParty string // substring match
	Term             string // free-text: tracking code, location, facility, notes

	MinCost *decimal.Decimal
	MaxCost *decimal.Decimal

	StartedAfter  *time.Time
	StartedBefore *time.Time

	OnlyCompleted  bool
	OnlyIncomplete bool
	WithLosses     bool // lossQuantity > 0
	QualityIssues  bool // status FLAGGED or REJECTED

	Limit  int
	Offset int
}

// =============================================================================
// RECORD STORE - Keyed persistence with filter/sort/paginate
// =============================================================================

// RecordStore is the persistence collaborator for stage records.
//
// Lookup methods return a wrapped ErrRecordNotFound when the record does
// not exist; list methods return empty slices, never an error, for a
// legitimately empty result. Implementations must return clones - a
// caller mutating a returned record must not affect stored state until
// Save is called.
type RecordStore interface {
	// Save inserts or replaces a record by ID.
	Save(ctx context.Context, r *StageRecord) error

	// SaveAll persists several records atomically.
	SaveAll(ctx context.Context, rs []*StageRecord) error

	// Get returns the record with the given id.
	Get(ctx context.Context, id RecordID) (*StageRecord, error)

	// GetByTrackingCode returns the record carrying the tracking code.
	GetByTrackingCode(ctx context.Context, code string) (*StageRecord, error)

	// GetByTransactionID returns the record carrying the transaction id.
	GetByTransactionID(ctx context.Context, txID string) (*StageRecord, error)

	// ListByBatch returns all records of a batch ordered by stage order.
	ListByBatch(ctx context.Context, batch BatchID) ([]*StageRecord, error)

	// Find returns records matching the filter.
	Find(ctx context.Context, f RecordFilter) ([]*StageRecord, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, f RecordFilter) (int64, error)

	// CountByStage returns record counts grouped by stage (fleet-wide).
	CountByStage(ctx context.Context) (map[Stage]int64, error)

	// CountByQuality returns record counts grouped by quality status.
	CountByQuality(ctx context.Context) (map[QualityStatus]int64, error)

	// ExistsTrackingCode reports whether any record carries the code.
	ExistsTrackingCode(ctx context.Context, code string) (bool, error)

	// ExistsTransactionID reports whether any record carries the id.
	ExistsTransactionID(ctx context.Context, txID string) (bool, error)

	// ExistsBatchStageOrder reports whether the batch already occupies
	// the given stage order.
	ExistsBatchStageOrder(ctx context.Context, batch BatchID, order int) (bool, error)

	// Delete removes a record. Returns wrapped ErrRecordNotFound when absent.
	Delete(ctx context.Context, id RecordID) error

	// DeleteCompletedBefore removes completed records whose stage end date
	// precedes the cutoff, returning how many were removed. Retention
	// cleanup only - never used in normal operation.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxRecordStore adds atomic units of work. The engine uses it for every
// read-then-write sequence so conservation checks never race a concurrent
// mutation of the same record.
type TxRecordStore interface {
	RecordStore

	// WithTx executes fn atomically. If fn returns an error the unit of
	// work is rolled back and the error returned unchanged.
	WithTx(ctx context.Context, fn func(RecordStore) error) error
}

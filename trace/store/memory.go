// Package store provides RecordStore implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agritrace/trace-engine/trace"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[trace.RecordID]*trace.StageRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[trace.RecordID]*trace.StageRecord)}
}

// Save inserts or replaces a record by ID.
func (m *Memory) Save(_ context.Context, r *trace.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(r)
}

// SaveAll persists several records atomically: uniqueness is checked for
// the whole batch before anything is written.
func (m *Memory) SaveAll(_ context.Context, rs []*trace.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rs {
		if err := m.checkUniqueLocked(r); err != nil {
			return err
		}
	}
	for _, r := range rs {
		if err := m.saveLocked(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) saveLocked(r *trace.StageRecord) error {
	if err := m.checkUniqueLocked(r); err != nil {
		return err
	}
	m.records[r.ID] = r.Clone()
	return nil
}

// checkUniqueLocked mirrors the sqlite store's unique indexes on tracking
// code, transaction id, and (batch, stage order). An existing record may
// keep its own values on update.
func (m *Memory) checkUniqueLocked(r *trace.StageRecord) error {
	for id, other := range m.records {
		if id == r.ID {
			continue
		}
		if r.TrackingCode != "" && other.TrackingCode == r.TrackingCode {
			return trace.ErrDuplicateTrackingCode
		}
		if r.TransactionID != "" && other.TransactionID == r.TransactionID {
			return trace.ErrDuplicateTransactionID
		}
		if other.BatchID == r.BatchID && other.StageOrder == r.StageOrder {
			return trace.ErrDuplicateStageOrder
		}
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id trace.RecordID) (*trace.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id trace.RecordID) (*trace.StageRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, &trace.NotFoundError{Key: "id", Value: string(id)}
	}
	return r.Clone(), nil
}

func (m *Memory) GetByTrackingCode(_ context.Context, code string) (*trace.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.TrackingCode == code {
			return r.Clone(), nil
		}
	}
	return nil, &trace.NotFoundError{Key: "trackingCode", Value: code}
}

func (m *Memory) GetByTransactionID(_ context.Context, txID string) (*trace.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.TransactionID == txID {
			return r.Clone(), nil
		}
	}
	return nil, &trace.NotFoundError{Key: "transactionId", Value: txID}
}

func (m *Memory) ListByBatch(_ context.Context, batch trace.BatchID) ([]*trace.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*trace.StageRecord
	for _, r := range m.records {
		if r.BatchID == batch {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StageOrder < result[j].StageOrder
	})
	return result, nil
}

func (m *Memory) Find(_ context.Context, f trace.RecordFilter) ([]*trace.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(f), nil
}

func (m *Memory) findLocked(f trace.RecordFilter) []*trace.StageRecord {
	var result []*trace.StageRecord
	for _, r := range m.records {
		if matches(r, f) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BatchID != result[j].BatchID {
			return result[i].BatchID < result[j].BatchID
		}
		return result[i].StageOrder < result[j].StageOrder
	})
	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result
}

func matches(r *trace.StageRecord, f trace.RecordFilter) bool {
	if f.BatchID != nil && r.BatchID != *f.BatchID {
		return false
	}
	if f.Stage != nil && r.Stage != *f.Stage {
		return false
	}
	if f.QualityStatus != nil && r.QualityStatus != *f.QualityStatus {
		return false
	}
	if f.Location != "" && !containsFold(r.Location, f.Location) {
		return false
	}
	if f.ResponsibleParty != "" && !containsFold(r.ResponsibleParty, f.ResponsibleParty) {
		return false
	}
	if f.Term != "" {
		hit := containsFold(r.TrackingCode, f.Term) ||
			containsFold(r.Location, f.Term) ||
			containsFold(r.FacilityName, f.Term) ||
			containsFold(r.HandlingNotes, f.Term)
		if !hit {
			return false
		}
	}
	if f.MinCost != nil && r.Cost.LessThan(*f.MinCost) {
		return false
	}
	if f.MaxCost != nil && r.Cost.GreaterThan(*f.MaxCost) {
		return false
	}
	if f.StartedAfter != nil && r.StageStartDate.Before(*f.StartedAfter) {
		return false
	}
	if f.StartedBefore != nil && !r.StageStartDate.Before(*f.StartedBefore) {
		return false
	}
	if f.OnlyCompleted && !r.Completed() {
		return false
	}
	if f.OnlyIncomplete && r.Completed() {
		return false
	}
	if f.WithLosses && !r.HasLosses() {
		return false
	}
	if f.QualityIssues && !r.HasQualityIssue() {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (m *Memory) Count(_ context.Context, f trace.RecordFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f.Limit, f.Offset = 0, 0
	var n int64
	for _, r := range m.records {
		if matches(r, f) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountByStage(_ context.Context) (map[trace.Stage]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[trace.Stage]int64)
	for _, r := range m.records {
		counts[r.Stage]++
	}
	return counts, nil
}

func (m *Memory) CountByQuality(_ context.Context) (map[trace.QualityStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[trace.QualityStatus]int64)
	for _, r := range m.records {
		counts[r.QualityStatus]++
	}
	return counts, nil
}

func (m *Memory) ExistsTrackingCode(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.TrackingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ExistsTransactionID(_ context.Context, txID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.TransactionID == txID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ExistsBatchStageOrder(_ context.Context, batch trace.BatchID, order int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.BatchID == batch && r.StageOrder == order {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Delete(_ context.Context, id trace.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return &trace.NotFoundError{Key: "id", Value: string(id)}
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, r := range m.records {
		if r.Completed() && r.StageEndDate.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(trace.RecordStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshotLocked()
	txStore := &txMemoryView{parent: tm}

	if err := fn(txStore); err != nil {
		tm.records = snapshot
		return err
	}
	return nil
}

func (tm *TxMemory) snapshotLocked() map[trace.RecordID]*trace.StageRecord {
	cp := make(map[trace.RecordID]*trace.StageRecord, len(tm.records))
	for id, r := range tm.records {
		cp[id] = r.Clone()
	}
	return cp
}

// txMemoryView exposes the parent's state without re-locking; the parent
// holds the write lock for the whole unit of work.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Save(_ context.Context, r *trace.StageRecord) error {
	return tv.parent.saveLocked(r)
}

func (tv *txMemoryView) SaveAll(_ context.Context, rs []*trace.StageRecord) error {
	for _, r := range rs {
		if err := tv.parent.checkUniqueLocked(r); err != nil {
			return err
		}
	}
	for _, r := range rs {
		if err := tv.parent.saveLocked(r); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Get(_ context.Context, id trace.RecordID) (*trace.StageRecord, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) GetByTrackingCode(_ context.Context, code string) (*trace.StageRecord, error) {
	for _, r := range tv.parent.records {
		if r.TrackingCode == code {
			return r.Clone(), nil
		}
	}
	return nil, &trace.NotFoundError{Key: "trackingCode", Value: code}
}

func (tv *txMemoryView) GetByTransactionID(_ context.Context, txID string) (*trace.StageRecord, error) {
	for _, r := range tv.parent.records {
		if r.TransactionID == txID {
			return r.Clone(), nil
		}
	}
	return nil, &trace.NotFoundError{Key: "transactionId", Value: txID}
}

func (tv *txMemoryView) ListByBatch(_ context.Context, batch trace.BatchID) ([]*trace.StageRecord, error) {
	var result []*trace.StageRecord
	for _, r := range tv.parent.records {
		if r.BatchID == batch {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StageOrder < result[j].StageOrder
	})
	return result, nil
}

func (tv *txMemoryView) Find(_ context.Context, f trace.RecordFilter) ([]*trace.StageRecord, error) {
	return tv.parent.findLocked(f), nil
}

func (tv *txMemoryView) Count(_ context.Context, f trace.RecordFilter) (int64, error) {
	f.Limit, f.Offset = 0, 0
	var n int64
	for _, r := range tv.parent.records {
		if matches(r, f) {
			n++
		}
	}
	return n, nil
}

func (tv *txMemoryView) CountByStage(_ context.Context) (map[trace.Stage]int64, error) {
	counts := make(map[trace.Stage]int64)
	for _, r := range tv.parent.records {
		counts[r.Stage]++
	}
	return counts, nil
}

func (tv *txMemoryView) CountByQuality(_ context.Context) (map[trace.QualityStatus]int64, error) {
	counts := make(map[trace.QualityStatus]int64)
	for _, r := range tv.parent.records {
		counts[r.QualityStatus]++
	}
	return counts, nil
}

func (tv *txMemoryView) ExistsTrackingCode(_ context.Context, code string) (bool, error) {
	for _, r := range tv.parent.records {
		if r.TrackingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (tv *txMemoryView) ExistsTransactionID(_ context.Context, txID string) (bool, error) {
	for _, r := range tv.parent.records {
		if r.TransactionID == txID {
			return true, nil
		}
	}
	return false, nil
}

func (tv *txMemoryView) ExistsBatchStageOrder(_ context.Context, batch trace.BatchID, order int) (bool, error) {
	for _, r := range tv.parent.records {
		if r.BatchID == batch && r.StageOrder == order {
			return true, nil
		}
	}
	return false, nil
}

func (tv *txMemoryView) Delete(_ context.Context, id trace.RecordID) error {
	if _, ok := tv.parent.records[id]; !ok {
		return &trace.NotFoundError{Key: "id", Value: string(id)}
	}
	delete(tv.parent.records, id)
	return nil
}

func (tv *txMemoryView) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, r := range tv.parent.records {
		if r.Completed() && r.StageEndDate.Before(cutoff) {
			delete(tv.parent.records, id)
			n++
		}
	}
	return n, nil
}

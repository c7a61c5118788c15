/*
Package sqlite provides the SQLite-backed stage record store.

PURPOSE:
  Implements trace.RecordStore and trace.TxRecordStore on a single
  stage_records table. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLE:
  stage_records: One row per batch-occupies-stage record. Quantities and
  cost are stored as decimal strings to avoid float drift; timestamps as
  RFC3339 text.

UNIQUENESS:
  Three unique indexes back the engine's duplicate checks:
  - idx_records_tracking:    one tracking code per record
  - idx_records_transaction: one external transaction id per record
  - idx_records_batch_order: one record per (batch, stage order)
  Violations surface as the typed trace.ErrDuplicate* sentinels so
  callers never parse SQLite error strings.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/trace.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := trace.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - trace/store.go: Interface definitions
  - trace/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agritrace/trace-engine/trace"
)

// Store implements trace.TxRecordStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stage_records (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		transaction_id TEXT,
		tracking_code TEXT NOT NULL,
		stage TEXT NOT NULL,
		stage_order INTEGER NOT NULL,
		stage_start_date TEXT NOT NULL,
		stage_end_date TEXT,
		location TEXT NOT NULL,
		facility_name TEXT,
		responsible_party TEXT NOT NULL,
		quantity_in TEXT NOT NULL,
		quantity_out TEXT,
		loss_quantity TEXT NOT NULL DEFAULT '0',
		unit TEXT NOT NULL,
		loss_reason TEXT,
		quality_status TEXT NOT NULL,
		quality_tests TEXT,
		storage_conditions TEXT,
		transport_method TEXT,
		handling_notes TEXT,
		next_stage_location TEXT,
		cost TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One record per pipeline slot per batch; the engine's next-stage
	-- creation relies on this to serialize concurrent advances. Also
	-- serves the per-batch chain reads, which order by stage_order.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_batch_order
		ON stage_records(batch_id, stage_order);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_tracking
		ON stage_records(tracking_code);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_transaction
		ON stage_records(transaction_id) WHERE transaction_id IS NOT NULL;

	-- Fleet statistics and quality gate scans
	CREATE INDEX IF NOT EXISTS idx_records_stage
		ON stage_records(stage);
	CREATE INDEX IF NOT EXISTS idx_records_quality
		ON stage_records(quality_status);

	-- Retention cleanup scans completed records by end date
	CREATE INDEX IF NOT EXISTS idx_records_end_date
		ON stage_records(stage_end_date) WHERE stage_end_date IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so every query runs identically
// inside and outside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const recordColumns = `id, batch_id, transaction_id, tracking_code, stage, stage_order,
	stage_start_date, stage_end_date, location, facility_name, responsible_party,
	quantity_in, quantity_out, loss_quantity, unit, loss_reason,
	quality_status, quality_tests, storage_conditions, transport_method,
	handling_notes, next_stage_location, cost, created_at, updated_at`

// =============================================================================
// WRITE PATH
// =============================================================================

// Save inserts or replaces a record by ID.
func (s *Store) Save(ctx context.Context, r *trace.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveRecord(ctx, s.db, r)
}

// SaveAll persists several records atomically.
func (s *Store) SaveAll(ctx context.Context, rs []*trace.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, r := range rs {
		if err := saveRecord(ctx, sqlTx, r); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func saveRecord(ctx context.Context, db dbtx, r *trace.StageRecord) error {
	query := `
		INSERT INTO stage_records
		(id, batch_id, transaction_id, tracking_code, stage, stage_order,
		 stage_start_date, stage_end_date, location, facility_name, responsible_party,
		 quantity_in, quantity_out, loss_quantity, unit, loss_reason,
		 quality_status, quality_tests, storage_conditions, transport_method,
		 handling_notes, next_stage_location, cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage_end_date = excluded.stage_end_date,
			location = excluded.location,
			facility_name = excluded.facility_name,
			responsible_party = excluded.responsible_party,
			quantity_in = excluded.quantity_in,
			quantity_out = excluded.quantity_out,
			loss_quantity = excluded.loss_quantity,
			unit = excluded.unit,
			loss_reason = excluded.loss_reason,
			quality_status = excluded.quality_status,
			quality_tests = excluded.quality_tests,
			storage_conditions = excluded.storage_conditions,
			transport_method = excluded.transport_method,
			handling_notes = excluded.handling_notes,
			next_stage_location = excluded.next_stage_location,
			cost = excluded.cost,
			updated_at = excluded.updated_at
	`

	var endDate *string
	if r.StageEndDate != nil {
		t := r.StageEndDate.UTC().Format(time.RFC3339Nano)
		endDate = &t
	}
	var quantityOut *string
	if r.QuantityOut.Valid {
		v := r.QuantityOut.Decimal.String()
		quantityOut = &v
	}

	_, err := db.ExecContext(ctx, query,
		r.ID,
		r.BatchID,
		nullString(r.TransactionID),
		r.TrackingCode,
		r.Stage,
		r.StageOrder,
		r.StageStartDate.UTC().Format(time.RFC3339Nano),
		endDate,
		r.Location,
		r.FacilityName,
		r.ResponsibleParty,
		r.QuantityIn.String(),
		quantityOut,
		r.LossQuantity.String(),
		r.Unit,
		r.LossReason,
		r.QualityStatus,
		r.QualityTests,
		r.StorageConditions,
		r.TransportMethod,
		r.HandlingNotes,
		r.NextStageLocation,
		r.Cost.String(),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		if dup := mapUniqueError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to save stage record: %w", err)
	}
	return nil
}

// mapUniqueError translates unique index violations into the typed
// duplicate sentinels. Returns nil for anything else.
func mapUniqueError(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "tracking_code"):
		return trace.ErrDuplicateTrackingCode
	case strings.Contains(msg, "transaction_id"):
		return trace.ErrDuplicateTransactionID
	case strings.Contains(msg, "batch_id") && strings.Contains(msg, "stage_order"):
		return trace.ErrDuplicateStageOrder
	}
	return nil
}

// =============================================================================
// READ PATH
// =============================================================================

func (s *Store) Get(ctx context.Context, id trace.RecordID) (*trace.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOne(ctx, s.db, "id", string(id))
}

func (s *Store) GetByTrackingCode(ctx context.Context, code string) (*trace.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOne(ctx, s.db, "tracking_code", code)
}

func (s *Store) GetByTransactionID(ctx context.Context, txID string) (*trace.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOne(ctx, s.db, "transaction_id", txID)
}

func getOne(ctx context.Context, db dbtx, column, value string) (*trace.StageRecord, error) {
	query := "SELECT " + recordColumns + " FROM stage_records WHERE " + column + " = ?"

	rows, err := db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		key := lookupKey(column)
		return nil, &trace.NotFoundError{Key: key, Value: value}
	}
	return scanRecord(rows)
}

func lookupKey(column string) string {
	switch column {
	case "tracking_code":
		return "trackingCode"
	case "transaction_id":
		return "transactionId"
	default:
		return "id"
	}
}

func (s *Store) ListByBatch(ctx context.Context, batch trace.BatchID) ([]*trace.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + recordColumns + ` FROM stage_records
		WHERE batch_id = ? ORDER BY stage_order ASC`
	return queryRecords(ctx, s.db, query, batch)
}

func (s *Store) Find(ctx context.Context, f trace.RecordFilter) ([]*trace.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRecords(ctx, s.db, f)
}

func findRecords(ctx context.Context, db dbtx, f trace.RecordFilter) ([]*trace.StageRecord, error) {
	where, args := buildFilter(f)
	query := "SELECT " + recordColumns + " FROM stage_records" + where +
		" ORDER BY batch_id ASC, stage_order ASC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	return queryRecords(ctx, db, query, args...)
}

// buildFilter translates a RecordFilter into a WHERE clause. Cost bounds
// compare as numbers via CAST; decimal strings are not lexically ordered.
func buildFilter(f trace.RecordFilter) (string, []any) {
	var conds []string
	var args []any

	if f.BatchID != nil {
		conds = append(conds, "batch_id = ?")
		args = append(args, *f.BatchID)
	}
	if f.Stage != nil {
		conds = append(conds, "stage = ?")
		args = append(args, *f.Stage)
	}
	if f.QualityStatus != nil {
		conds = append(conds, "quality_status = ?")
		args = append(args, *f.QualityStatus)
	}
	if f.Location != "" {
		conds = append(conds, "LOWER(location) LIKE ?")
		args = append(args, likePattern(f.Location))
	}
	if f.ResponsibleParty != "" {
		conds = append(conds, "LOWER(responsible_party) LIKE ?")
		args = append(args, likePattern(f.ResponsibleParty))
	}
	if f.Term != "" {
		conds = append(conds, `(LOWER(tracking_code) LIKE ? OR LOWER(location) LIKE ?
			OR LOWER(facility_name) LIKE ? OR LOWER(handling_notes) LIKE ?)`)
		p := likePattern(f.Term)
		args = append(args, p, p, p, p)
	}
	if f.MinCost != nil {
		conds = append(conds, "CAST(cost AS REAL) >= ?")
		args = append(args, f.MinCost.InexactFloat64())
	}
	if f.MaxCost != nil {
		conds = append(conds, "CAST(cost AS REAL) <= ?")
		args = append(args, f.MaxCost.InexactFloat64())
	}
	if f.StartedAfter != nil {
		conds = append(conds, "stage_start_date >= ?")
		args = append(args, f.StartedAfter.UTC().Format(time.RFC3339Nano))
	}
	if f.StartedBefore != nil {
		conds = append(conds, "stage_start_date < ?")
		args = append(args, f.StartedBefore.UTC().Format(time.RFC3339Nano))
	}
	if f.OnlyCompleted {
		conds = append(conds, "stage_end_date IS NOT NULL")
	}
	if f.OnlyIncomplete {
		conds = append(conds, "stage_end_date IS NULL")
	}
	if f.WithLosses {
		conds = append(conds, "CAST(loss_quantity AS REAL) > 0")
	}
	if f.QualityIssues {
		conds = append(conds, "quality_status IN ('FLAGGED', 'REJECTED')")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func likePattern(term string) string {
	return "%" + strings.ToLower(term) + "%"
}

func (s *Store) Count(ctx context.Context, f trace.RecordFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countRecords(ctx, s.db, f)
}

func countRecords(ctx context.Context, db dbtx, f trace.RecordFilter) (int64, error) {
	where, args := buildFilter(f)
	var n int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stage_records"+where, args...).Scan(&n)
	return n, err
}

func (s *Store) CountByStage(ctx context.Context) (map[trace.Stage]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return countGrouped[trace.Stage](ctx, s.db, "stage")
}

func (s *Store) CountByQuality(ctx context.Context) (map[trace.QualityStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return countGrouped[trace.QualityStatus](ctx, s.db, "quality_status")
}

func countGrouped[K ~string](ctx context.Context, db dbtx, column string) (map[K]int64, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM stage_records GROUP BY "+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[K]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[K(key)] = n
	}
	return counts, rows.Err()
}

func (s *Store) ExistsTrackingCode(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exists(ctx, s.db, "SELECT COUNT(*) FROM stage_records WHERE tracking_code = ?", code)
}

func (s *Store) ExistsTransactionID(ctx context.Context, txID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exists(ctx, s.db, "SELECT COUNT(*) FROM stage_records WHERE transaction_id = ?", txID)
}

func (s *Store) ExistsBatchStageOrder(ctx context.Context, batch trace.BatchID, order int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exists(ctx, s.db,
		"SELECT COUNT(*) FROM stage_records WHERE batch_id = ? AND stage_order = ?", batch, order)
}

func exists(ctx context.Context, db dbtx, query string, args ...any) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count > 0, err
}

// =============================================================================
// DELETE PATH
// =============================================================================

func (s *Store) Delete(ctx context.Context, id trace.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRecord(ctx, s.db, id)
}

func deleteRecord(ctx context.Context, db dbtx, id trace.RecordID) error {
	res, err := db.ExecContext(ctx, "DELETE FROM stage_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete stage record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &trace.NotFoundError{Key: "id", Value: string(id)}
	}
	return nil
}

// DeleteCompletedBefore removes completed records whose stage end date
// precedes the cutoff. Retention cleanup only.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteCompletedBefore(ctx, s.db, cutoff)
}

func deleteCompletedBefore(ctx context.Context, db dbtx, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM stage_records WHERE stage_end_date IS NOT NULL AND stage_end_date < ?",
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed records: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

func queryRecords(ctx context.Context, db dbtx, query string, args ...any) ([]*trace.StageRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage records: %w", err)
	}
	defer rows.Close()

	var records []*trace.StageRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*trace.StageRecord, error) {
	var (
		r             trace.StageRecord
		transactionID sql.NullString
		startDate     string
		endDate       sql.NullString
		quantityIn    string
		quantityOut   sql.NullString
		lossQuantity  string
		facility      sql.NullString
		lossReason    sql.NullString
		qualityTests  sql.NullString
		storage       sql.NullString
		transport     sql.NullString
		notes         sql.NullString
		nextLocation  sql.NullString
		cost          string
		createdAt     string
		updatedAt     string
	)

	err := rows.Scan(
		&r.ID, &r.BatchID, &transactionID, &r.TrackingCode, &r.Stage, &r.StageOrder,
		&startDate, &endDate, &r.Location, &facility, &r.ResponsibleParty,
		&quantityIn, &quantityOut, &lossQuantity, &r.Unit, &lossReason,
		&r.QualityStatus, &qualityTests, &storage, &transport,
		&notes, &nextLocation, &cost, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan stage record: %w", err)
	}

	r.TransactionID = transactionID.String
	r.FacilityName = facility.String
	r.LossReason = lossReason.String
	r.QualityTests = qualityTests.String
	r.StorageConditions = storage.String
	r.TransportMethod = transport.String
	r.HandlingNotes = notes.String
	r.NextStageLocation = nextLocation.String

	if r.StageStartDate, err = time.Parse(time.RFC3339Nano, startDate); err != nil {
		return nil, fmt.Errorf("bad stage_start_date %q: %w", startDate, err)
	}
	if endDate.Valid {
		t, err := time.Parse(time.RFC3339Nano, endDate.String)
		if err != nil {
			return nil, fmt.Errorf("bad stage_end_date %q: %w", endDate.String, err)
		}
		r.StageEndDate = &t
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}

	if r.QuantityIn, err = decimal.NewFromString(quantityIn); err != nil {
		return nil, fmt.Errorf("bad quantity_in %q: %w", quantityIn, err)
	}
	if quantityOut.Valid {
		v, err := decimal.NewFromString(quantityOut.String)
		if err != nil {
			return nil, fmt.Errorf("bad quantity_out %q: %w", quantityOut.String, err)
		}
		r.QuantityOut = decimal.NullDecimal{Decimal: v, Valid: true}
	}
	if r.LossQuantity, err = decimal.NewFromString(lossQuantity); err != nil {
		return nil, fmt.Errorf("bad loss_quantity %q: %w", lossQuantity, err)
	}
	if r.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("bad cost %q: %w", cost, err)
	}

	return &r, nil
}

// =============================================================================
// TRANSACTIONAL STORE (trace.TxRecordStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store trace.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation against the open sql.Tx so reads inside
// WithTx observe the unit of work's own writes.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Save(ctx context.Context, r *trace.StageRecord) error {
	return saveRecord(ctx, ts.tx, r)
}

func (ts *txStore) SaveAll(ctx context.Context, rs []*trace.StageRecord) error {
	for _, r := range rs {
		if err := saveRecord(ctx, ts.tx, r); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Get(ctx context.Context, id trace.RecordID) (*trace.StageRecord, error) {
	return getOne(ctx, ts.tx, "id", string(id))
}

func (ts *txStore) GetByTrackingCode(ctx context.Context, code string) (*trace.StageRecord, error) {
	return getOne(ctx, ts.tx, "tracking_code", code)
}

func (ts *txStore) GetByTransactionID(ctx context.Context, txID string) (*trace.StageRecord, error) {
	return getOne(ctx, ts.tx, "transaction_id", txID)
}

func (ts *txStore) ListByBatch(ctx context.Context, batch trace.BatchID) ([]*trace.StageRecord, error) {
	query := "SELECT " + recordColumns + ` FROM stage_records
		WHERE batch_id = ? ORDER BY stage_order ASC`
	return queryRecords(ctx, ts.tx, query, batch)
}

func (ts *txStore) Find(ctx context.Context, f trace.RecordFilter) ([]*trace.StageRecord, error) {
	return findRecords(ctx, ts.tx, f)
}

func (ts *txStore) Count(ctx context.Context, f trace.RecordFilter) (int64, error) {
	return countRecords(ctx, ts.tx, f)
}

func (ts *txStore) CountByStage(ctx context.Context) (map[trace.Stage]int64, error) {
	return countGrouped[trace.Stage](ctx, ts.tx, "stage")
}

func (ts *txStore) CountByQuality(ctx context.Context) (map[trace.QualityStatus]int64, error) {
	return countGrouped[trace.QualityStatus](ctx, ts.tx, "quality_status")
}

func (ts *txStore) ExistsTrackingCode(ctx context.Context, code string) (bool, error) {
	return exists(ctx, ts.tx, "SELECT COUNT(*) FROM stage_records WHERE tracking_code = ?", code)
}

func (ts *txStore) ExistsTransactionID(ctx context.Context, txID string) (bool, error) {
	return exists(ctx, ts.tx, "SELECT COUNT(*) FROM stage_records WHERE transaction_id = ?", txID)
}

func (ts *txStore) ExistsBatchStageOrder(ctx context.Context, batch trace.BatchID, order int) (bool, error) {
	return exists(ctx, ts.tx,
		"SELECT COUNT(*) FROM stage_records WHERE batch_id = ? AND stage_order = ?", batch, order)
}

func (ts *txStore) Delete(ctx context.Context, id trace.RecordID) error {
	return deleteRecord(ctx, ts.tx, id)
}

func (ts *txStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteCompletedBefore(ctx, ts.tx, cutoff)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM stage_records")
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

/*
handlers.go - HTTP API handlers for the traceability engine

PURPOSE:
  Exposes the stage traceability engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Stages:
    POST   /api/stages                  Register a stage record
    POST   /api/stages/bulk             Register several records atomically
    GET    /api/stages                  Filtered search
    GET    /api/stages/{id}             Get one record
    PUT    /api/stages/{id}             Partial update
    PUT    /api/stages/bulk             Bulk partial update
    DELETE /api/stages/{id}             Delete one record
    POST   /api/stages/{id}/complete    Close out a stage
    POST   /api/stages/{id}/quality     Set quality status
    POST   /api/stages/{id}/loss        Record loss
    GET    /api/stages/transaction/{txId}  Lookup by external transaction id

  Batches:
    GET    /api/batches/{batchId}             All records of a batch
    POST   /api/batches/{batchId}/next-stage  Advance the pipeline
    GET    /api/batches/{batchId}/summary     Chain summary
    GET    /api/batches/{batchId}/metrics     Production metrics
    GET    /api/batches/{batchId}/performance Performance analysis

  Tracking:
    GET    /api/tracking/{code}         Journey by tracking code

  Quality & losses:
    GET    /api/quality/issues          FLAGGED/REJECTED records
    GET    /api/losses                  Records with recorded loss
    GET    /api/losses/high             Loss percent over a threshold

  Stats & admin:
    GET    /api/stats/stages            Fleet counts per stage
    GET    /api/stats/quality           Fleet counts per quality status
    POST   /api/admin/cleanup           Retention cleanup run

ERROR HANDLING:
  Domain errors map to HTTP statuses via the trace predicates:
  - 400: Validation errors (conservation violations included)
  - 404: Record not found
  - 409: Illegal state, duplicate tracking code/transaction/stage order
  - 422: Not enough data for an analysis
  - 500: Storage failures (details logged, never sent to clients)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo batch loaders
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agritrace/trace-engine/trace"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *trace.Engine
	Quality   *trace.QualityTracker
	Analytics *trace.Analytics
	Log       *zap.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over a transactional store.
func NewHandler(store trace.TxRecordStore, log *zap.Logger) *Handler {
	return &Handler{
		Engine:    trace.NewEngine(store),
		Quality:   trace.NewQualityTracker(store),
		Analytics: trace.NewAnalytics(store),
		Log:       log,
	}
}

// =============================================================================
// STAGE HANDLERS
// =============================================================================

// CreateStage registers a new stage record.
// POST /api/stages
func (h *Handler) CreateStage(w http.ResponseWriter, r *http.Request) {
	var req CreateStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	domainReq, err := toNewStageRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stage request", err)
		return
	}

	record, err := h.Engine.RegisterStage(r.Context(), domainReq)
	if err != nil {
		h.writeDomainError(w, "Failed to register stage", err)
		return
	}

	writeJSON(w, http.StatusCreated, toStageRecordDTO(record))
}

// CreateStagesBulk registers several records atomically.
// POST /api/stages/bulk
func (h *Handler) CreateStagesBulk(w http.ResponseWriter, r *http.Request) {
	var reqs []CreateStageRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "Empty batch", nil)
		return
	}

	domainReqs := make([]trace.NewStageRequest, len(reqs))
	for i, req := range reqs {
		dr, err := toNewStageRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid stage request", err)
			return
		}
		domainReqs[i] = dr
	}

	records, err := h.Engine.RegisterStages(r.Context(), domainReqs)
	if err != nil {
		h.writeDomainError(w, "Failed to register stages", err)
		return
	}

	writeJSON(w, http.StatusCreated, toStageRecordDTOs(records))
}

// GetStage returns a single record.
// GET /api/stages/{id}
func (h *Handler) GetStage(w http.ResponseWriter, r *http.Request) {
	id := trace.RecordID(chi.URLParam(r, "id"))

	record, err := h.Engine.Store().Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get stage record", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTO(record))
}

// GetStageByTransaction returns a record by external transaction id.
// GET /api/stages/transaction/{txId}
func (h *Handler) GetStageByTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")

	record, err := h.Engine.Store().GetByTransactionID(r.Context(), txID)
	if err != nil {
		h.writeDomainError(w, "Failed to get stage record", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTO(record))
}

// SearchStages runs a filtered search over all records.
// GET /api/stages
func (h *Handler) SearchStages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	records, err := h.Engine.Store().Find(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to search stage records", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTOs(records))
}

// UpdateStage applies a partial update to a record.
// PUT /api/stages/{id}
func (h *Handler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	id := trace.RecordID(chi.URLParam(r, "id"))

	var req UpdateStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd, err := toStageUpdate(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid update", err)
		return
	}

	record, err := h.Engine.UpdateStage(r.Context(), id, upd)
	if err != nil {
		h.writeDomainError(w, "Failed to update stage", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTO(record))
}

// UpdateStagesBulk applies several partial updates atomically.
// PUT /api/stages/bulk
func (h *Handler) UpdateStagesBulk(w http.ResponseWriter, r *http.Request) {
	var entries []BulkUpdateEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusBadRequest, "Empty batch", nil)
		return
	}

	updates := make([]trace.BulkStageUpdate, len(entries))
	for i, entry := range entries {
		upd, err := toStageUpdate(entry.Update)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid update", err)
			return
		}
		updates[i] = trace.BulkStageUpdate{ID: trace.RecordID(entry.ID), Update: upd}
	}

	records, err := h.Engine.UpdateStages(r.Context(), updates)
	if err != nil {
		h.writeDomainError(w, "Failed to update stages", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTOs(records))
}

// DeleteStage removes a record.
// DELETE /api/stages/{id}
func (h *Handler) DeleteStage(w http.ResponseWriter, r *http.Request) {
	id := trace.RecordID(chi.URLParam(r, "id"))

	if err := h.Engine.DeleteStage(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete stage", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteStage closes out a stage record.
// POST /api/stages/{id}/complete
func (h *Handler) CompleteStage(w http.ResponseWriter, r *http.Request) {
	id := trace.RecordID(chi.URLParam(r, "id"))

	var req CompleteStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record, err := h.Engine.CompleteStage(r.Context(), id, trace.CompletionRequest{
		QuantityOut:   req.QuantityOut,
		HandlingNotes: req.HandlingNotes,
		QualityStatus: trace.QualityStatus(req.QualityStatus),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to complete stage", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTO(record))
}

// UpdateQuality sets a record's quality gate.
// POST /api/stages/{id}/quality
func (h *Handler) UpdateQuality(w http.ResponseWriter, r *http.Request) {
	id := trace.RecordID(chi.URLParam(r, "id"))

	var req QualityUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record, err := h.Quality.UpdateQualityStatus(r.Context(), id,
		trace.QualityStatus(req.QualityStatus), req.QualityTests)
	if err != nil {
		h.writeDomainError(w, "Failed to update quality status", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTO(record))
}

// UpdateLoss records loss at a stage.
// POST /api/stages/{id}/loss
func (h *Handler) UpdateLoss(w http.ResponseWriter, r *http.Request) {
	id := trace.RecordID(chi.URLParam(r, "id"))

	var req LossUpdateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record, err := h.Quality.UpdateLossInformation(r.Context(), id, trace.LossUpdateRequest{
		LossQuantity: req.LossQuantity,
		LossReason:   req.LossReason,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to update loss information", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTO(record))
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// ListBatchStages returns all records of a batch in pipeline order.
// GET /api/batches/{batchId}
func (h *Handler) ListBatchStages(w http.ResponseWriter, r *http.Request) {
	batch := trace.BatchID(chi.URLParam(r, "batchId"))

	records, err := h.Engine.Store().ListByBatch(r.Context(), batch)
	if err != nil {
		h.writeDomainError(w, "Failed to list batch stages", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTOs(records))
}

// CreateNextStage advances a batch to its next pipeline stage.
// POST /api/batches/{batchId}/next-stage
func (h *Handler) CreateNextStage(w http.ResponseWriter, r *http.Request) {
	batch := trace.BatchID(chi.URLParam(r, "batchId"))

	var req NextStageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record, err := h.Engine.CreateNextStage(r.Context(), batch, trace.NextStageRequest{
		Location:         req.Location,
		ResponsibleParty: req.ResponsibleParty,
		FacilityName:     req.FacilityName,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create next stage", err)
		return
	}

	writeJSON(w, http.StatusCreated, toStageRecordDTO(record))
}

// GetChainSummary returns the chain summary for a batch.
// GET /api/batches/{batchId}/summary
func (h *Handler) GetChainSummary(w http.ResponseWriter, r *http.Request) {
	batch := trace.BatchID(chi.URLParam(r, "batchId"))

	summary, err := h.Analytics.GetSupplyChainSummary(r.Context(), batch)
	if err != nil {
		h.writeDomainError(w, "Failed to build chain summary", err)
		return
	}

	dto := ChainSummaryDTO{
		BatchID:               string(summary.BatchID),
		TotalStages:           summary.TotalStages,
		CompletedStages:       summary.CompletedStages,
		IncompleteStages:      summary.IncompleteStages,
		TotalQuantityIn:       summary.TotalQuantityIn,
		TotalLoss:             summary.TotalLoss,
		TotalCost:             summary.TotalCost,
		CumulativeLossPercent: summary.CumulativeLossPercent,
		CurrentStage:          string(summary.CurrentStage),
		StageDurations:        make([]StageTimingDTO, len(summary.StageDurations)),
		StageDistribution:     make(map[string]int64, len(summary.StageDistribution)),
		QualityIssueCount:     summary.QualityIssueCount,
		ChainComplete:         summary.ChainComplete,
	}
	for i, t := range summary.StageDurations {
		dto.StageDurations[i] = toStageTimingDTO(t)
	}
	for stage, n := range summary.StageDistribution {
		dto.StageDistribution[string(stage)] = n
	}

	writeJSON(w, http.StatusOK, dto)
}

// GetProductionMetrics returns cost/quantity/timeline metrics for a batch.
// GET /api/batches/{batchId}/metrics
func (h *Handler) GetProductionMetrics(w http.ResponseWriter, r *http.Request) {
	batch := trace.BatchID(chi.URLParam(r, "batchId"))

	m, err := h.Analytics.GetCropProductionMetrics(r.Context(), batch)
	if err != nil {
		h.writeDomainError(w, "Failed to compute production metrics", err)
		return
	}

	writeJSON(w, http.StatusOK, ProductionMetricsDTO{
		BatchID:                 string(m.BatchID),
		TotalStages:             m.TotalStages,
		CompletedStages:         m.CompletedStages,
		StagesWithLosses:        m.StagesWithLosses,
		StagesWithQualityIssues: m.StagesWithQualityIssues,
		TotalQuantityIn:         m.TotalQuantityIn,
		TotalQuantityOut:        m.TotalQuantityOut,
		TotalLoss:               m.TotalLoss,
		TotalCost:               m.TotalCost,
		AverageCostPerStage:     m.AverageCostPerStage,
		CostPerUnit:             m.CostPerUnit,
		OverallLossPercent:      m.OverallLossPercent,
		TotalElapsedSeconds:     m.TotalElapsed.Seconds(),
		InProgress:              m.InProgress,
	})
}

// GetPerformanceAnalysis returns bottleneck and loss-alert analysis.
// GET /api/batches/{batchId}/performance
func (h *Handler) GetPerformanceAnalysis(w http.ResponseWriter, r *http.Request) {
	batch := trace.BatchID(chi.URLParam(r, "batchId"))

	analysis, err := h.Analytics.GetPerformanceAnalysis(r.Context(), batch)
	if err != nil {
		h.writeDomainError(w, "Failed to analyse performance", err)
		return
	}

	dto := PerformanceAnalysisDTO{
		BatchID:           string(analysis.BatchID),
		Alerts:            make([]LossAlertDTO, len(analysis.Alerts)),
		AverageEfficiency: nullDecimalPtr(analysis.AverageEfficiency),
		MinEfficiency:     nullDecimalPtr(analysis.MinEfficiency),
		MaxEfficiency:     nullDecimalPtr(analysis.MaxEfficiency),
	}
	if analysis.Bottleneck != nil {
		dto.Bottleneck = &StageLossStatDTO{
			RecordID:    string(analysis.Bottleneck.RecordID),
			Stage:       string(analysis.Bottleneck.Stage),
			StageOrder:  analysis.Bottleneck.StageOrder,
			LossPercent: analysis.Bottleneck.LossPercent,
		}
	}
	if analysis.LongestStage != nil {
		t := toStageTimingDTO(*analysis.LongestStage)
		dto.LongestStage = &t
	}
	for i, a := range analysis.Alerts {
		dto.Alerts[i] = LossAlertDTO{
			RecordID:    string(a.RecordID),
			Stage:       string(a.Stage),
			LossPercent: a.LossPercent,
			Threshold:   a.Threshold,
		}
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// TRACKING HANDLER
// =============================================================================

// GetTrackingInfo returns the journey for a tracking code.
// GET /api/tracking/{code}
func (h *Handler) GetTrackingInfo(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	info, err := h.Analytics.GetTrackingInfo(r.Context(), code)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve tracking code", err)
		return
	}

	dto := TrackingInfoDTO{
		TrackingCode:    info.TrackingCode,
		BatchID:         string(info.BatchID),
		CurrentStage:    toJourneyStopDTO(info.CurrentStage),
		Journey:         make([]JourneyStopDTO, len(info.Journey)),
		TotalStages:     info.TotalStages,
		CompletedStages: info.CompletedStages,
		ProgressPercent: info.ProgressPercent,
		NextStage:       string(info.NextStage),
	}
	for i, stop := range info.Journey {
		dto.Journey[i] = toJourneyStopDTO(stop)
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// QUALITY & LOSS HANDLERS
// =============================================================================

// ListQualityIssues returns FLAGGED/REJECTED records, optionally per batch.
// GET /api/quality/issues?batch_id=...
func (h *Handler) ListQualityIssues(w http.ResponseWriter, r *http.Request) {
	var (
		records []*trace.StageRecord
		err     error
	)
	if batch := r.URL.Query().Get("batch_id"); batch != "" {
		records, err = h.Quality.FindQualityIssuesByBatch(r.Context(), trace.BatchID(batch))
	} else {
		records, err = h.Quality.FindQualityIssues(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, "Failed to list quality issues", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTOs(records))
}

// ListLosses returns all records with recorded loss.
// GET /api/losses
func (h *Handler) ListLosses(w http.ResponseWriter, r *http.Request) {
	records, err := h.Quality.FindStagesWithLosses(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list losses", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTOs(records))
}

// ListHighLosses returns records over a loss-percent threshold.
// GET /api/losses/high?threshold=5
func (h *Handler) ListHighLosses(w http.ResponseWriter, r *http.Request) {
	threshold := trace.DefaultLossAlertPercent
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid threshold", err)
			return
		}
		threshold = parsed
	}

	records, err := h.Quality.FindStagesWithHighLosses(r.Context(), threshold)
	if err != nil {
		h.writeDomainError(w, "Failed to list high losses", err)
		return
	}

	writeJSON(w, http.StatusOK, toStageRecordDTOs(records))
}

// =============================================================================
// STATS & ADMIN HANDLERS
// =============================================================================

// GetStageStats returns fleet-wide counts per stage.
// GET /api/stats/stages
func (h *Handler) GetStageStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Analytics.GetStageStatistics(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to compute stage statistics", err)
		return
	}

	out := make(map[string]int64, len(counts))
	for stage, n := range counts {
		out[string(stage)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

// GetQualityStats returns fleet-wide counts per quality status.
// GET /api/stats/quality
func (h *Handler) GetQualityStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Analytics.GetQualityStatistics(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to compute quality statistics", err)
		return
	}

	out := make(map[string]int64, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

// TriggerCleanup runs a retention cleanup immediately.
// POST /api/admin/cleanup
func (h *Handler) TriggerCleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	runID := uuid.NewString()
	deleted, err := h.Engine.CleanupCompleted(r.Context(), req.RetentionDays)
	if err != nil {
		h.writeDomainError(w, "Cleanup failed", err)
		return
	}

	h.Log.Info("retention cleanup run",
		zap.String("run_id", runID),
		zap.Int("retention_days", req.RetentionDays),
		zap.Int64("deleted", deleted))

	writeJSON(w, http.StatusOK, CleanupResultDTO{
		RunID:         runID,
		RetentionDays: req.RetentionDays,
		Deleted:       deleted,
		RanAt:         time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

func toNewStageRequest(req CreateStageRequest) (trace.NewStageRequest, error) {
	out := trace.NewStageRequest{
		BatchID:          trace.BatchID(req.BatchID),
		Stage:            trace.Stage(req.Stage),
		StageOrder:       req.StageOrder,
		Location:         req.Location,
		FacilityName:     req.FacilityName,
		ResponsibleParty: req.ResponsibleParty,
		QuantityIn:       req.QuantityIn,
		LossQuantity:     req.LossQuantity,
		Unit:             req.Unit,
		QualityStatus:    trace.QualityStatus(req.QualityStatus),
		QualityTests:     req.QualityTests,
		LossReason:       req.LossReason,

		StorageConditions: req.StorageConditions,
		TransportMethod:   req.TransportMethod,
		HandlingNotes:     req.HandlingNotes,
		NextStageLocation: req.NextStageLocation,

		Cost:          req.Cost,
		TransactionID: req.TransactionID,
		TrackingCode:  req.TrackingCode,
	}
	if req.StageStartDate != nil {
		t, err := time.Parse(time.RFC3339, *req.StageStartDate)
		if err != nil {
			return out, err
		}
		out.StageStart = &t
	}
	return out, nil
}

func toStageUpdate(req UpdateStageRequest) (trace.StageUpdate, error) {
	upd := trace.StageUpdate{
		Location:         req.Location,
		FacilityName:     req.FacilityName,
		ResponsibleParty: req.ResponsibleParty,
		QuantityIn:       req.QuantityIn,
		QuantityOut:      req.QuantityOut,
		LossQuantity:     req.LossQuantity,
		Unit:             req.Unit,
		LossReason:       req.LossReason,
		QualityTests:     req.QualityTests,

		StorageConditions: req.StorageConditions,
		TransportMethod:   req.TransportMethod,
		HandlingNotes:     req.HandlingNotes,
		NextStageLocation: req.NextStageLocation,

		Cost: req.Cost,
	}
	if req.QualityStatus != nil {
		status := trace.QualityStatus(*req.QualityStatus)
		upd.QualityStatus = &status
	}
	if req.StageEndDate != nil {
		t, err := time.Parse(time.RFC3339, *req.StageEndDate)
		if err != nil {
			return upd, err
		}
		upd.StageEndDate = &t
	}
	return upd, nil
}

func parseFilter(r *http.Request) (trace.RecordFilter, error) {
	q := r.URL.Query()
	var f trace.RecordFilter

	if v := q.Get("batch_id"); v != "" {
		batch := trace.BatchID(v)
		f.BatchID = &batch
	}
	if v := q.Get("stage"); v != "" {
		stage := trace.Stage(v)
		f.Stage = &stage
	}
	if v := q.Get("quality_status"); v != "" {
		status := trace.QualityStatus(v)
		f.QualityStatus = &status
	}
	f.Location = q.Get("location")
	f.ResponsibleParty = q.Get("responsible_party")
	f.Term = q.Get("q")

	if v := q.Get("min_cost"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, err
		}
		f.MinCost = &d
	}
	if v := q.Get("max_cost"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, err
		}
		f.MaxCost = &d
	}
	if v := q.Get("started_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.StartedAfter = &t
	}
	if v := q.Get("started_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.StartedBefore = &t
	}

	f.OnlyCompleted = q.Get("completed") == "true"
	f.OnlyIncomplete = q.Get("incomplete") == "true"
	f.WithLosses = q.Get("with_losses") == "true"
	f.QualityIssues = q.Get("quality_issues") == "true"

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Offset = n
	}
	return f, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps trace errors onto HTTP statuses. Storage failures
// are logged in full but surface to clients as an opaque 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case trace.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case trace.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, trace.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, trace.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		h.Log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}

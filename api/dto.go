/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  All quantities and costs travel as decimal strings ("120.5"), never as
  floats. shopspring/decimal marshals quoted by default; clients doing
  arithmetic on these values are expected to use exact decimal types too.

VALIDATION:
  Structural validation (parseable decimals, known stages) happens in the
  handlers; domain validation (conservation, pipeline ordering) happens in
  the trace engine. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - trace/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/agritrace/trace-engine/trace"
)

// =============================================================================
// STAGE RECORD TYPES
// =============================================================================

// StageRecordDTO represents a stage record in API responses.
type StageRecordDTO struct {
	ID            string `json:"id"`
	BatchID       string `json:"batch_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	TrackingCode  string `json:"tracking_code"`

	Stage      string `json:"stage"`
	StageName  string `json:"stage_name"`
	StageOrder int    `json:"stage_order"`

	StageStartDate string  `json:"stage_start_date"`
	StageEndDate   *string `json:"stage_end_date,omitempty"`
	Completed      bool    `json:"completed"`

	Location         string `json:"location"`
	FacilityName     string `json:"facility_name,omitempty"`
	ResponsibleParty string `json:"responsible_party"`

	QuantityIn   decimal.Decimal  `json:"quantity_in"`
	QuantityOut  *decimal.Decimal `json:"quantity_out,omitempty"`
	LossQuantity decimal.Decimal  `json:"loss_quantity"`
	Unit         string           `json:"unit"`

	LossReason    string `json:"loss_reason,omitempty"`
	QualityStatus string `json:"quality_status"`
	QualityTests  string `json:"quality_tests,omitempty"`

	StorageConditions string `json:"storage_conditions,omitempty"`
	TransportMethod   string `json:"transport_method,omitempty"`
	HandlingNotes     string `json:"handling_notes,omitempty"`
	NextStageLocation string `json:"next_stage_location,omitempty"`

	Cost decimal.Decimal `json:"cost"`

	// Derived figures, computed on the way out, never stored.
	LossPercent    *decimal.Decimal `json:"loss_percent,omitempty"`
	EfficiencyRate *decimal.Decimal `json:"efficiency_rate,omitempty"`
	CostPerUnit    *decimal.Decimal `json:"cost_per_unit,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CreateStageRequest is the request to register a stage record.
type CreateStageRequest struct {
	BatchID          string          `json:"batch_id"`
	Stage            string          `json:"stage"`
	StageOrder       int             `json:"stage_order,omitempty"`
	Location         string          `json:"location"`
	FacilityName     string          `json:"facility_name,omitempty"`
	ResponsibleParty string          `json:"responsible_party"`
	QuantityIn       decimal.Decimal `json:"quantity_in"`
	LossQuantity     decimal.Decimal `json:"loss_quantity,omitempty"`
	Unit             string          `json:"unit,omitempty"`
	QualityStatus    string          `json:"quality_status,omitempty"`
	QualityTests     string          `json:"quality_tests,omitempty"`
	LossReason       string          `json:"loss_reason,omitempty"`

	StorageConditions string `json:"storage_conditions,omitempty"`
	TransportMethod   string `json:"transport_method,omitempty"`
	HandlingNotes     string `json:"handling_notes,omitempty"`
	NextStageLocation string `json:"next_stage_location,omitempty"`

	Cost           decimal.Decimal `json:"cost,omitempty"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	TrackingCode   string          `json:"tracking_code,omitempty"`
	StageStartDate *string         `json:"stage_start_date,omitempty"` // RFC3339, defaults to now
}

// UpdateStageRequest is a partial update: absent fields are left unchanged.
type UpdateStageRequest struct {
	Location         *string `json:"location,omitempty"`
	FacilityName     *string `json:"facility_name,omitempty"`
	ResponsibleParty *string `json:"responsible_party,omitempty"`

	QuantityIn   *decimal.Decimal `json:"quantity_in,omitempty"`
	QuantityOut  *decimal.Decimal `json:"quantity_out,omitempty"`
	LossQuantity *decimal.Decimal `json:"loss_quantity,omitempty"`
	Unit         *string          `json:"unit,omitempty"`

	LossReason    *string `json:"loss_reason,omitempty"`
	QualityStatus *string `json:"quality_status,omitempty"`
	QualityTests  *string `json:"quality_tests,omitempty"`

	StorageConditions *string `json:"storage_conditions,omitempty"`
	TransportMethod   *string `json:"transport_method,omitempty"`
	HandlingNotes     *string `json:"handling_notes,omitempty"`
	NextStageLocation *string `json:"next_stage_location,omitempty"`

	Cost         *decimal.Decimal `json:"cost,omitempty"`
	StageEndDate *string          `json:"stage_end_date,omitempty"` // RFC3339
}

// BulkUpdateEntry pairs a record id with its patch for bulk updates.
type BulkUpdateEntry struct {
	ID     string             `json:"id"`
	Update UpdateStageRequest `json:"update"`
}

// CompleteStageRequest closes out a stage.
type CompleteStageRequest struct {
	QuantityOut   decimal.Decimal `json:"quantity_out"`
	HandlingNotes string          `json:"handling_notes,omitempty"`
	QualityStatus string          `json:"quality_status,omitempty"`
}

// NextStageRequestDTO advances a batch to the next pipeline stage.
type NextStageRequestDTO struct {
	Location         string `json:"location"`
	ResponsibleParty string `json:"responsible_party"`
	FacilityName     string `json:"facility_name,omitempty"`
}

// QualityUpdateRequest sets the quality gate of a record.
type QualityUpdateRequest struct {
	QualityStatus string `json:"quality_status"`
	QualityTests  string `json:"quality_tests,omitempty"`
}

// LossUpdateRequestDTO records loss at a stage.
type LossUpdateRequestDTO struct {
	LossQuantity *decimal.Decimal `json:"loss_quantity,omitempty"`
	LossReason   string           `json:"loss_reason,omitempty"`
}

// =============================================================================
// ANALYTICS TYPES
// =============================================================================

// StageTimingDTO is one stage's timing within a chain summary.
type StageTimingDTO struct {
	RecordID        string  `json:"record_id"`
	Stage           string  `json:"stage"`
	StageOrder      int     `json:"stage_order"`
	DurationSeconds float64 `json:"duration_seconds"`
	Open            bool    `json:"open"`
}

// ChainSummaryDTO is the per-batch chain summary response.
type ChainSummaryDTO struct {
	BatchID               string           `json:"batch_id"`
	TotalStages           int              `json:"total_stages"`
	CompletedStages       int              `json:"completed_stages"`
	IncompleteStages      int              `json:"incomplete_stages"`
	TotalQuantityIn       decimal.Decimal  `json:"total_quantity_in"`
	TotalLoss             decimal.Decimal  `json:"total_loss"`
	TotalCost             decimal.Decimal  `json:"total_cost"`
	CumulativeLossPercent decimal.Decimal  `json:"cumulative_loss_percent"`
	CurrentStage          string           `json:"current_stage,omitempty"`
	StageDurations        []StageTimingDTO `json:"stage_durations"`
	StageDistribution     map[string]int64 `json:"stage_distribution"`
	QualityIssueCount     int              `json:"quality_issue_count"`
	ChainComplete         bool             `json:"chain_complete"`
}

// ProductionMetricsDTO is the per-batch metrics response.
type ProductionMetricsDTO struct {
	BatchID                 string          `json:"batch_id"`
	TotalStages             int             `json:"total_stages"`
	CompletedStages         int             `json:"completed_stages"`
	StagesWithLosses        int             `json:"stages_with_losses"`
	StagesWithQualityIssues int             `json:"stages_with_quality_issues"`
	TotalQuantityIn         decimal.Decimal `json:"total_quantity_in"`
	TotalQuantityOut        decimal.Decimal `json:"total_quantity_out"`
	TotalLoss               decimal.Decimal `json:"total_loss"`
	TotalCost               decimal.Decimal `json:"total_cost"`
	AverageCostPerStage     decimal.Decimal `json:"average_cost_per_stage"`
	CostPerUnit             decimal.Decimal `json:"cost_per_unit"`
	OverallLossPercent      decimal.Decimal `json:"overall_loss_percent"`
	TotalElapsedSeconds     float64         `json:"total_elapsed_seconds"`
	InProgress              bool            `json:"in_progress"`
}

// StageLossStatDTO names a record and its loss share.
type StageLossStatDTO struct {
	RecordID    string          `json:"record_id"`
	Stage       string          `json:"stage"`
	StageOrder  int             `json:"stage_order"`
	LossPercent decimal.Decimal `json:"loss_percent"`
}

// LossAlertDTO flags a stage over the loss alert threshold.
type LossAlertDTO struct {
	RecordID    string          `json:"record_id"`
	Stage       string          `json:"stage"`
	LossPercent decimal.Decimal `json:"loss_percent"`
	Threshold   decimal.Decimal `json:"threshold"`
}

// PerformanceAnalysisDTO is the per-batch performance response.
type PerformanceAnalysisDTO struct {
	BatchID           string            `json:"batch_id"`
	Bottleneck        *StageLossStatDTO `json:"bottleneck,omitempty"`
	LongestStage      *StageTimingDTO   `json:"longest_stage,omitempty"`
	Alerts            []LossAlertDTO    `json:"alerts"`
	AverageEfficiency *decimal.Decimal  `json:"average_efficiency,omitempty"`
	MinEfficiency     *decimal.Decimal  `json:"min_efficiency,omitempty"`
	MaxEfficiency     *decimal.Decimal  `json:"max_efficiency,omitempty"`
}

// JourneyStopDTO is one stop of a tracked batch's journey.
type JourneyStopDTO struct {
	RecordID         string  `json:"record_id"`
	Stage            string  `json:"stage"`
	StageOrder       int     `json:"stage_order"`
	Location         string  `json:"location"`
	FacilityName     string  `json:"facility_name,omitempty"`
	ResponsibleParty string  `json:"responsible_party"`
	QualityStatus    string  `json:"quality_status"`
	Completed        bool    `json:"completed"`
	StartDate        string  `json:"start_date"`
	EndDate          *string `json:"end_date,omitempty"`
}

// TrackingInfoDTO is the tracking-code journey response.
type TrackingInfoDTO struct {
	TrackingCode    string           `json:"tracking_code"`
	BatchID         string           `json:"batch_id"`
	CurrentStage    JourneyStopDTO   `json:"current_stage"`
	Journey         []JourneyStopDTO `json:"journey"`
	TotalStages     int              `json:"total_stages"`
	CompletedStages int              `json:"completed_stages"`
	ProgressPercent decimal.Decimal  `json:"progress_percent"`
	NextStage       string           `json:"next_stage,omitempty"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// CleanupRequest triggers a retention cleanup run.
type CleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

// CleanupResultDTO reports a retention cleanup run.
type CleanupResultDTO struct {
	RunID         string `json:"run_id"`
	RetentionDays int    `json:"retention_days"`
	Deleted       int64  `json:"deleted"`
	RanAt         string `json:"ran_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toStageRecordDTO(r *trace.StageRecord) StageRecordDTO {
	dto := StageRecordDTO{
		ID:               string(r.ID),
		BatchID:          string(r.BatchID),
		TransactionID:    r.TransactionID,
		TrackingCode:     r.TrackingCode,
		Stage:            string(r.Stage),
		StageName:        r.Stage.DisplayName(),
		StageOrder:       r.StageOrder,
		StageStartDate:   r.StageStartDate.Format(time.RFC3339),
		Completed:        r.Completed(),
		Location:         r.Location,
		FacilityName:     r.FacilityName,
		ResponsibleParty: r.ResponsibleParty,
		QuantityIn:       r.QuantityIn,
		LossQuantity:     r.LossQuantity,
		Unit:             r.Unit,
		LossReason:       r.LossReason,
		QualityStatus:    string(r.QualityStatus),
		QualityTests:     r.QualityTests,

		StorageConditions: r.StorageConditions,
		TransportMethod:   r.TransportMethod,
		HandlingNotes:     r.HandlingNotes,
		NextStageLocation: r.NextStageLocation,

		Cost:      r.Cost,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}

	if r.StageEndDate != nil {
		end := r.StageEndDate.Format(time.RFC3339)
		dto.StageEndDate = &end
	}
	if r.QuantityOut.Valid {
		out := r.QuantityOut.Decimal
		dto.QuantityOut = &out
	}
	if pct, ok := r.LossPercent(); ok {
		dto.LossPercent = &pct
	}
	if eff, ok := r.EfficiencyRate(); ok {
		dto.EfficiencyRate = &eff
	}
	if cpu, ok := r.CostPerUnit(); ok {
		dto.CostPerUnit = &cpu
	}
	return dto
}

func toStageRecordDTOs(rs []*trace.StageRecord) []StageRecordDTO {
	dtos := make([]StageRecordDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toStageRecordDTO(r)
	}
	return dtos
}

func toStageTimingDTO(t trace.StageTiming) StageTimingDTO {
	return StageTimingDTO{
		RecordID:        string(t.RecordID),
		Stage:           string(t.Stage),
		StageOrder:      t.StageOrder,
		DurationSeconds: t.Duration.Seconds(),
		Open:            t.Open,
	}
}

func toJourneyStopDTO(s trace.JourneyStop) JourneyStopDTO {
	dto := JourneyStopDTO{
		RecordID:         string(s.RecordID),
		Stage:            string(s.Stage),
		StageOrder:       s.StageOrder,
		Location:         s.Location,
		FacilityName:     s.FacilityName,
		ResponsibleParty: s.ResponsibleParty,
		QualityStatus:    string(s.QualityStatus),
		Completed:        s.Completed,
		StartDate:        s.StartDate.Format(time.RFC3339),
	}
	if s.EndDate != nil {
		end := s.EndDate.Format(time.RFC3339)
		dto.EndDate = &end
	}
	return dto
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

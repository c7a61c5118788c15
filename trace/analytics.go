/*
analytics.go - Chain summaries and fleet-wide statistics

PURPOSE:
  Read-only derivations over recorded stage history: per-batch chain
  summaries, production metrics, performance analysis (bottlenecks, loss
  hot-spots, duration outliers), tracking-code journeys, and fleet-wide
  stage/quality distributions.

DEGRADATION CONTRACT:
  Summaries and metrics tolerate empty or single-record batches - they
  return zeroed/partial results, never "not enough data" errors.
  PerformanceAnalysis is trend-style and declines an empty batch with
  ErrInsufficientData instead of fabricating a bottleneck.

  Nothing in this file mutates a StageRecord.

SCALING NOTE:
  Fleet statistics are a single grouped scan over the store. Data volume
  is small; if that changes these need incremental computation or a cache
  with explicit invalidation on writes.

SEE ALSO:
  - store.go: The query surface all of this reads through
*/
package trace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLossAlertPercent is the fixed alerting threshold for
// PerformanceAnalysis: stages losing at least this share of their input
// are flagged.
var DefaultLossAlertPercent = decimal.NewFromInt(5)

// Analytics derives summaries and statistics from stored stage history.
type Analytics struct {
	store RecordStore
}

// NewAnalytics creates an analytics engine over the given store.
func NewAnalytics(store RecordStore) *Analytics {
	return &Analytics{store: store}
}

// =============================================================================
// CHAIN SUMMARY (per batch)
// =============================================================================

// StageTiming describes one stage's position and lifetime in a chain.
type StageTiming struct {
	RecordID   RecordID
	Stage      Stage
	StageOrder int
	Duration   time.Duration
	Open       bool // still in progress; Duration is zero
}

// ChainSummary aggregates all stage records of one batch.
type ChainSummary struct {
	BatchID          BatchID
	TotalStages      int
	CompletedStages  int
	IncompleteStages int

	// TotalQuantityIn is the quantity entering the chain: the quantityIn
	// of the first (lowest stage order) record.
	TotalQuantityIn decimal.Decimal
	TotalLoss       decimal.Decimal
	TotalCost       decimal.Decimal

	// CumulativeLossPercent is TotalLoss relative to TotalQuantityIn.
	CumulativeLossPercent decimal.Decimal

	// CurrentStage is the latest incomplete stage, or the most recently
	// completed one when nothing is open. Empty for an empty batch.
	CurrentStage Stage

	StageDurations    []StageTiming
	StageDistribution map[Stage]int64
	QualityIssueCount int

	// ChainComplete is true iff the batch reached the terminal stage and
	// that stage is completed.
	ChainComplete bool
}

// GetSupplyChainSummary builds the chain summary for a batch. An unknown
// or empty batch yields a zeroed summary, not an error.
func (a *Analytics) GetSupplyChainSummary(ctx context.Context, batch BatchID) (*ChainSummary, error) {
	records, err := a.store.ListByBatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	summary := &ChainSummary{
		BatchID:           batch,
		TotalStages:       len(records),
		StageDistribution: make(map[Stage]int64),
	}
	if len(records) == 0 {
		return summary, nil
	}

	summary.TotalQuantityIn = records[0].QuantityIn

	var currentOpen *StageRecord
	var lastCompleted *StageRecord

	for _, r := range records {
		summary.StageDistribution[r.Stage]++
		summary.TotalLoss = summary.TotalLoss.Add(r.LossQuantity)
		summary.TotalCost = summary.TotalCost.Add(r.Cost)
		if r.HasQualityIssue() {
			summary.QualityIssueCount++
		}

		timing := StageTiming{RecordID: r.ID, Stage: r.Stage, StageOrder: r.StageOrder}
		if d, ok := r.Duration(); ok {
			timing.Duration = d
		} else {
			timing.Open = true
		}
		summary.StageDurations = append(summary.StageDurations, timing)

		if r.Completed() {
			summary.CompletedStages++
			if lastCompleted == nil || r.StageEndDate.After(*lastCompleted.StageEndDate) {
				lastCompleted = r
			}
			if r.Stage.Terminal() {
				summary.ChainComplete = true
			}
		} else {
			summary.IncompleteStages++
			currentOpen = r // records are ordered, so the last open one wins
		}
	}

	switch {
	case currentOpen != nil:
		summary.CurrentStage = currentOpen.Stage
	case lastCompleted != nil:
		summary.CurrentStage = lastCompleted.Stage
	}

	if summary.TotalQuantityIn.IsPositive() {
		summary.CumulativeLossPercent = summary.TotalLoss.
			Div(summary.TotalQuantityIn).Mul(hundred).Round(2)
	}
	return summary, nil
}

// =============================================================================
// PRODUCTION METRICS (per batch)
// =============================================================================

// ProductionMetrics aggregates cost, quantity, and timeline figures for
// one batch.
type ProductionMetrics struct {
	BatchID                 BatchID
	TotalStages             int
	CompletedStages         int
	StagesWithLosses        int
	StagesWithQualityIssues int

	TotalQuantityIn  decimal.Decimal // summed over all stages
	TotalQuantityOut decimal.Decimal
	TotalLoss        decimal.Decimal

	TotalCost           decimal.Decimal
	AverageCostPerStage decimal.Decimal
	CostPerUnit         decimal.Decimal

	OverallLossPercent decimal.Decimal

	// TotalElapsed spans the first stage start to the latest stage end.
	// Zero when no stage has completed yet. InProgress is true while any
	// stage of the batch remains open.
	TotalElapsed time.Duration
	InProgress   bool
}

// GetCropProductionMetrics computes batch metrics. Tolerates empty and
// single-record batches.
func (a *Analytics) GetCropProductionMetrics(ctx context.Context, batch BatchID) (*ProductionMetrics, error) {
	records, err := a.store.ListByBatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	m := &ProductionMetrics{BatchID: batch, TotalStages: len(records)}
	if len(records) == 0 {
		return m, nil
	}

	firstStart := records[0].StageStartDate
	var lastEnd *time.Time

	for _, r := range records {
		if r.StageStartDate.Before(firstStart) {
			firstStart = r.StageStartDate
		}
		if r.Completed() {
			m.CompletedStages++
			if lastEnd == nil || r.StageEndDate.After(*lastEnd) {
				lastEnd = r.StageEndDate
			}
		} else {
			m.InProgress = true
		}
		if r.HasLosses() {
			m.StagesWithLosses++
		}
		if r.HasQualityIssue() {
			m.StagesWithQualityIssues++
		}

		m.TotalQuantityIn = m.TotalQuantityIn.Add(r.QuantityIn)
		m.TotalQuantityOut = m.TotalQuantityOut.Add(r.OutOrZero())
		m.TotalLoss = m.TotalLoss.Add(r.LossQuantity)
		m.TotalCost = m.TotalCost.Add(r.Cost)
	}

	m.AverageCostPerStage = m.TotalCost.Div(decimal.NewFromInt(int64(len(records)))).Round(4)
	if m.TotalQuantityIn.IsPositive() {
		m.OverallLossPercent = m.TotalLoss.Div(m.TotalQuantityIn).Mul(hundred).Round(2)
		m.CostPerUnit = m.TotalCost.Div(m.TotalQuantityIn).Round(4)
	}
	if lastEnd != nil {
		m.TotalElapsed = lastEnd.Sub(firstStart)
	}
	return m, nil
}

// =============================================================================
// PERFORMANCE ANALYSIS (per batch)
// =============================================================================

// StageLossStat names a stage record and its loss share.
type StageLossStat struct {
	RecordID    RecordID
	Stage       Stage
	StageOrder  int
	LossPercent decimal.Decimal
}

// LossAlert flags a stage whose loss share breached the alert threshold.
type LossAlert struct {
	RecordID    RecordID
	Stage       Stage
	LossPercent decimal.Decimal
	Threshold   decimal.Decimal
}

// PerformanceAnalysis identifies the weak points of one batch's chain.
type PerformanceAnalysis struct {
	BatchID BatchID

	// Bottleneck is the stage with the highest loss percentage.
	// Nil when no stage recorded any loss.
	Bottleneck *StageLossStat

	// LongestStage is the completed stage with the longest duration.
	// Nil when no stage has completed.
	LongestStage *StageTiming

	Alerts []LossAlert

	AverageEfficiency decimal.NullDecimal
	MinEfficiency     decimal.NullDecimal
	MaxEfficiency     decimal.NullDecimal
}

// GetPerformanceAnalysis analyses loss and duration across a batch's
// stages. Declines an empty batch with ErrInsufficientData.
func (a *Analytics) GetPerformanceAnalysis(ctx context.Context, batch BatchID) (*PerformanceAnalysis, error) {
	records, err := a.store.ListByBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrInsufficientData
	}

	analysis := &PerformanceAnalysis{BatchID: batch}
	var efficiencies []decimal.Decimal

	for _, r := range records {
		if pct, ok := r.LossPercent(); ok && pct.IsPositive() {
			if analysis.Bottleneck == nil || pct.GreaterThan(analysis.Bottleneck.LossPercent) {
				analysis.Bottleneck = &StageLossStat{
					RecordID: r.ID, Stage: r.Stage, StageOrder: r.StageOrder, LossPercent: pct,
				}
			}
			if pct.GreaterThanOrEqual(DefaultLossAlertPercent) {
				analysis.Alerts = append(analysis.Alerts, LossAlert{
					RecordID: r.ID, Stage: r.Stage, LossPercent: pct, Threshold: DefaultLossAlertPercent,
				})
			}
		}

		if d, ok := r.Duration(); ok {
			if analysis.LongestStage == nil || d > analysis.LongestStage.Duration {
				analysis.LongestStage = &StageTiming{
					RecordID: r.ID, Stage: r.Stage, StageOrder: r.StageOrder, Duration: d,
				}
			}
		}

		if eff, ok := r.EfficiencyRate(); ok {
			efficiencies = append(efficiencies, eff)
		}
	}

	if len(efficiencies) > 0 {
		sum, min, max := decimal.Zero, efficiencies[0], efficiencies[0]
		for _, e := range efficiencies {
			sum = sum.Add(e)
			if e.LessThan(min) {
				min = e
			}
			if e.GreaterThan(max) {
				max = e
			}
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(efficiencies)))).Round(2)
		analysis.AverageEfficiency = decimal.NullDecimal{Decimal: avg, Valid: true}
		analysis.MinEfficiency = decimal.NullDecimal{Decimal: min, Valid: true}
		analysis.MaxEfficiency = decimal.NullDecimal{Decimal: max, Valid: true}
	}
	return analysis, nil
}

// =============================================================================
// TRACKING JOURNEY (by tracking code)
// =============================================================================

// JourneyStop is one stage of a tracked batch's journey.
type JourneyStop struct {
	RecordID         RecordID
	Stage            Stage
	StageOrder       int
	Location         string
	FacilityName     string
	ResponsibleParty string
	QualityStatus    QualityStatus
	Completed        bool
	StartDate        time.Time
	EndDate          *time.Time
}

// TrackingInfo describes the complete journey of the batch a tracking
// code belongs to, anchored at the stage carrying the code.
type TrackingInfo struct {
	TrackingCode    string
	BatchID         BatchID
	CurrentStage    JourneyStop
	Journey         []JourneyStop
	TotalStages     int
	CompletedStages int
	ProgressPercent decimal.Decimal

	// NextStage predicts the pipeline successor of the tracked stage.
	// Empty when the tracked stage is open or terminal.
	NextStage Stage
}

// GetTrackingInfo resolves a tracking code to its record and assembles
// the full journey of that record's batch.
func (a *Analytics) GetTrackingInfo(ctx context.Context, code string) (*TrackingInfo, error) {
	tracked, err := a.store.GetByTrackingCode(ctx, code)
	if err != nil {
		return nil, err
	}

	records, err := a.store.ListByBatch(ctx, tracked.BatchID)
	if err != nil {
		return nil, err
	}

	info := &TrackingInfo{
		TrackingCode: code,
		BatchID:      tracked.BatchID,
		CurrentStage: journeyStop(tracked),
		TotalStages:  len(records),
	}
	for _, r := range records {
		info.Journey = append(info.Journey, journeyStop(r))
		if r.Completed() {
			info.CompletedStages++
		}
	}
	if len(records) > 0 {
		info.ProgressPercent = decimal.NewFromInt(int64(info.CompletedStages)).
			Div(decimal.NewFromInt(int64(len(records)))).Mul(hundred).Round(1)
	}
	if tracked.Completed() {
		if next, ok := tracked.Stage.Next(); ok {
			info.NextStage = next
		}
	}
	return info, nil
}

func journeyStop(r *StageRecord) JourneyStop {
	return JourneyStop{
		RecordID:         r.ID,
		Stage:            r.Stage,
		StageOrder:       r.StageOrder,
		Location:         r.Location,
		FacilityName:     r.FacilityName,
		ResponsibleParty: r.ResponsibleParty,
		QualityStatus:    r.QualityStatus,
		Completed:        r.Completed(),
		StartDate:        r.StageStartDate,
		EndDate:          r.StageEndDate,
	}
}

// =============================================================================
// FLEET-WIDE STATISTICS
// =============================================================================

// GetStageStatistics counts records per stage across the whole store.
func (a *Analytics) GetStageStatistics(ctx context.Context) (map[Stage]int64, error) {
	return a.store.CountByStage(ctx)
}

// GetQualityStatistics counts records per quality status across the
// whole store.
func (a *Analytics) GetQualityStatistics(ctx context.Context) (map[QualityStatus]int64, error) {
	return a.store.CountByQuality(ctx)
}

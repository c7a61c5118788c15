/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the store with recognizable demo batches so the API can be
  explored without hand-crafting records. Each scenario drives the real
  engine operations (register, complete, advance) instead of inserting
  rows directly, so seeded data always satisfies the conservation and
  pipeline invariants.

SCENARIOS:
  fresh-harvest  One batch, just harvested, still open
  mid-chain      One batch advanced to TRANSPORT with storage losses
  full-chain     One batch through the whole pipeline, one quality flag

RESET:
  Loading a scenario resets the store first when the store supports it
  (the SQLite store does). The memory store is simply rebuilt by the
  caller in tests.

SEE ALSO:
  - handlers.go: LoadScenario/ListScenarios endpoints
  - trace/transition.go: The operations scenarios drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agritrace/trace-engine/trace"
)

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// Resetter is implemented by stores that can wipe all data (dev only).
type Resetter interface {
	Reset(ctx context.Context) error
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-harvest",
		Name:        "Fresh Harvest",
		Description: "A single batch just registered at the harvest stage, still open.",
	},
	{
		ID:          "mid-chain",
		Name:        "Mid-Chain Batch",
		Description: "A batch advanced to transport, with losses recorded in storage.",
	},
	{
		ID:          "full-chain",
		Name:        "Complete Chain",
		Description: "A batch through the whole pipeline with one quality flag on the way.",
	},
}

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario wipes the store (when supported) and seeds a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if resetter, ok := h.Engine.Store().(Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			h.writeDomainError(w, "Failed to reset store", err)
			return
		}
	}

	var err error
	switch req.ScenarioID {
	case "fresh-harvest":
		err = h.loadFreshHarvest(ctx)
	case "mid-chain":
		err = h.loadMidChain(ctx)
	case "full-chain":
		err = h.loadFullChain(ctx)
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

func demoBatchID(suffix string) trace.BatchID {
	return trace.BatchID("DEMO-" + suffix + "-" + time.Now().Format("20060102150405"))
}

func (h *Handler) loadFreshHarvest(ctx context.Context) error {
	_, err := h.Engine.RegisterStage(ctx, trace.NewStageRequest{
		BatchID:          demoBatchID("HARVEST"),
		Stage:            trace.StageHarvest,
		Location:         "North Field, Valley Farm",
		FacilityName:     "Valley Farm",
		ResponsibleParty: "Harvest Crew A",
		QuantityIn:       decimal.NewFromInt(500),
		Cost:             decimal.NewFromInt(250),
		HandlingNotes:    "Morning harvest, dry conditions",
	})
	return err
}

// loadMidChain walks a batch to TRANSPORT: harvest completes cleanly,
// storage loses 15 of 480 to spoilage.
func (h *Handler) loadMidChain(ctx context.Context) error {
	batch := demoBatchID("MID")

	harvest, err := h.Engine.RegisterStage(ctx, trace.NewStageRequest{
		BatchID:          batch,
		Stage:            trace.StageHarvest,
		Location:         "East Field, Hillside Farm",
		FacilityName:     "Hillside Farm",
		ResponsibleParty: "Harvest Crew B",
		QuantityIn:       decimal.NewFromInt(500),
		Cost:             decimal.NewFromInt(300),
	})
	if err != nil {
		return err
	}
	if _, err = h.Engine.CompleteStage(ctx, harvest.ID, trace.CompletionRequest{
		QuantityOut:   decimal.NewFromInt(480),
		QualityStatus: trace.QualityPassed,
	}); err != nil {
		return err
	}

	storage, err := h.Engine.CreateNextStage(ctx, batch, trace.NextStageRequest{
		Location:         "Cold Store 3, Regional Depot",
		ResponsibleParty: "Depot Operations",
		FacilityName:     "Regional Depot",
	})
	if err != nil {
		return err
	}
	loss := decimal.NewFromInt(15)
	if _, err = h.Quality.UpdateLossInformation(ctx, storage.ID, trace.LossUpdateRequest{
		LossQuantity: &loss,
		LossReason:   "Spoilage during cold storage",
	}); err != nil {
		return err
	}
	if _, err = h.Engine.CompleteStage(ctx, storage.ID, trace.CompletionRequest{
		QuantityOut:   decimal.NewFromInt(465),
		QualityStatus: trace.QualityPassed,
	}); err != nil {
		return err
	}

	_, err = h.Engine.CreateNextStage(ctx, batch, trace.NextStageRequest{
		Location:         "Refrigerated Truck 12",
		ResponsibleParty: "Logistics Partner",
	})
	return err
}

// loadFullChain drives a batch through every stage to RETAIL, flagging
// quality during processing and clearing it before distribution.
func (h *Handler) loadFullChain(ctx context.Context) error {
	batch := demoBatchID("FULL")

	record, err := h.Engine.RegisterStage(ctx, trace.NewStageRequest{
		BatchID:          batch,
		Stage:            trace.StageHarvest,
		Location:         "South Field, Riverbend Farm",
		FacilityName:     "Riverbend Farm",
		ResponsibleParty: "Harvest Crew C",
		QuantityIn:       decimal.NewFromInt(1000),
		Cost:             decimal.NewFromInt(600),
	})
	if err != nil {
		return err
	}

	type step struct {
		out              int64
		loss             int64
		lossReason       string
		location         string
		responsibleParty string
		flagQuality      bool
	}
	steps := []step{
		{out: 980, loss: 20, lossReason: "Field culls", location: "Cold Store 1, Riverbend", responsibleParty: "Farm Storage Team"},
		{out: 970, loss: 10, lossReason: "Moisture damage", location: "Refrigerated Truck 4", responsibleParty: "Logistics Partner"},
		{out: 965, loss: 5, lossReason: "Transit bruising", location: "Processing Plant A", responsibleParty: "Plant Shift 2", flagQuality: true},
		{out: 915, loss: 50, lossReason: "Trim and grading rejects", location: "Distribution Center West", responsibleParty: "DC Operations"},
		{out: 910, loss: 5, lossReason: "Handling damage", location: "Market Street Store", responsibleParty: "Store Receiving"},
	}

	for _, st := range steps {
		if st.loss > 0 {
			loss := decimal.NewFromInt(st.loss)
			if _, err = h.Quality.UpdateLossInformation(ctx, record.ID, trace.LossUpdateRequest{
				LossQuantity: &loss,
				LossReason:   st.lossReason,
			}); err != nil {
				return err
			}
		}
		if st.flagQuality {
			if _, err = h.Quality.UpdateQualityStatus(ctx, record.ID,
				trace.QualityFlagged, "Pesticide residue retest pending"); err != nil {
				return err
			}
			if _, err = h.Quality.UpdateQualityStatus(ctx, record.ID,
				trace.QualityPassed, "Retest clear"); err != nil {
				return err
			}
		}
		if _, err = h.Engine.CompleteStage(ctx, record.ID, trace.CompletionRequest{
			QuantityOut:   decimal.NewFromInt(st.out),
			QualityStatus: trace.QualityPassed,
		}); err != nil {
			return err
		}

		record, err = h.Engine.CreateNextStage(ctx, batch, trace.NextStageRequest{
			Location:         st.location,
			ResponsibleParty: st.responsibleParty,
		})
		if err != nil {
			return err
		}
	}

	// Close out the retail stage so the chain reads complete.
	_, err = h.Engine.CompleteStage(ctx, record.ID, trace.CompletionRequest{
		QuantityOut:   decimal.NewFromInt(905),
		QualityStatus: trace.QualityPassed,
	})
	return err
}

/*
scenarios_test.go - Demo scenario loader tests

Verifies that each scenario seeds the store through the real engine
operations, so the seeded chains always satisfy the conservation and
pipeline invariants.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/scenarios/load",
		`{"scenario_id": "`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func allStages(t *testing.T, router http.Handler) []StageRecordDTO {
	t.Helper()
	rec := doRequest(t, router, http.MethodGet, "/api/stages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []StageRecordDTO
	decodeBody(t, rec, &records)
	return records
}

func TestListScenarios(t *testing.T) {
	router := newTestAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []ScenarioDTO
	decodeBody(t, rec, &list)
	require.Len(t, list, 3)
	assert.Equal(t, "fresh-harvest", list[0].ID)
}

func TestLoadScenario_Unknown_BadRequest(t *testing.T) {
	router := newTestAPI(t)

	rec := doRequest(t, router, http.MethodPost, "/api/scenarios/load",
		`{"scenario_id": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadScenario_FreshHarvest(t *testing.T) {
	router := newTestAPI(t)
	loadScenario(t, router, "fresh-harvest")

	records := allStages(t, router)
	require.Len(t, records, 1)
	assert.Equal(t, "HARVEST", records[0].Stage)
	assert.False(t, records[0].Completed)

	rec := doRequest(t, router, http.MethodGet, "/api/scenarios/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fresh-harvest")
}

func TestLoadScenario_MidChain(t *testing.T) {
	// The mid-chain batch sits open at TRANSPORT with storage losses behind it.
	router := newTestAPI(t)
	loadScenario(t, router, "mid-chain")

	records := allStages(t, router)
	require.Len(t, records, 3)
	assert.Equal(t, "HARVEST", records[0].Stage)
	assert.True(t, records[0].Completed)
	assert.Equal(t, "STORAGE", records[1].Stage)
	assert.True(t, records[1].Completed)
	assert.Equal(t, "TRANSPORT", records[2].Stage)
	assert.False(t, records[2].Completed)

	rec := doRequest(t, router, http.MethodGet, "/api/losses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lossy []StageRecordDTO
	decodeBody(t, rec, &lossy)
	require.Len(t, lossy, 1)
	assert.Equal(t, "STORAGE", lossy[0].Stage)
	assert.Equal(t, "15", lossy[0].LossQuantity.String())
}

func TestLoadScenario_FullChain(t *testing.T) {
	router := newTestAPI(t)
	loadScenario(t, router, "full-chain")

	records := allStages(t, router)
	require.Len(t, records, 6)
	for _, r := range records {
		assert.True(t, r.Completed, "stage %s should be closed", r.Stage)
	}

	rec := doRequest(t, router, http.MethodGet,
		"/api/batches/"+records[0].BatchID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary ChainSummaryDTO
	decodeBody(t, rec, &summary)
	assert.True(t, summary.ChainComplete)
	assert.Equal(t, "1000", summary.TotalQuantityIn.String())
	assert.Equal(t, "90", summary.TotalLoss.String())
	assert.Equal(t, "9", summary.CumulativeLossPercent.String())
	assert.Equal(t, 0, summary.QualityIssueCount, "the processing flag was cleared")
}

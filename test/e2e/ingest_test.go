//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManualEntry_Accumulates adds two entries for the same key
func TestManualEntry_Accumulates(t *testing.T) {
	env := NewTestEnv()
	env.WaitForServer(t, env.TestTimeout)

	entry := map[string]interface{}{
		"date": "2024-02-10", "model_name": "e2e-manual", "cost_usd": "1.00",
		"input_tokens": 100, "output_tokens": 50, "num_requests": 1,
	}
	status, body := env.Post(t, "/api/v1/spend/anthropic/manual", entry)
	require.Equal(t, http.StatusOK, status, string(body))

	entry["cost_usd"] = 2
	status, body = env.Post(t, "/api/v1/spend/anthropic/manual", entry)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp ManualEntryResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "anthropic", resp.Data.Provider)
	assert.Equal(t, "3", resp.Data.CostUSD.String())
	assert.Equal(t, int64(300), resp.Data.TotalTokens)
	assert.Equal(t, "manual_input", resp.Data.Metadata["source"])

	status, body = env.Get(t, fmt.Sprintf("/api/v1/spend/%d", resp.Data.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
}

// TestManualEntry_MissingFields rejects incomplete entries
func TestManualEntry_MissingFields(t *testing.T) {
	env := NewTestEnv()

	status, body := env.Post(t, "/api/v1/spend/anthropic/manual", map[string]string{"model_name": "e2e-missing"})
	assert.Equal(t, http.StatusBadRequest, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Contains(t, errResp.Error, "Missing required fields")
}

// TestBulkImport_PartialSuccess imports valid records and reports the rest
func TestBulkImport_PartialSuccess(t *testing.T) {
	env := NewTestEnv()

	records := []map[string]interface{}{
		{"provider": "anthropic", "date": "2024-02-11", "model_name": "e2e-bulk", "cost_usd": 1},
		{"provider": "anthropic", "date": "2024-02-12", "model_name": "e2e-bulk", "cost_usd": "0.5"},
		{"provider": "anthropic", "date": "2024-02-13", "model_name": "e2e-bulk"},
		{"provider": "openai", "date": "2024-02-11", "model_name": "e2e-bulk", "cost_usd": 4, "project_id": "proj_bulk"},
	}

	status, body := env.Post(t, "/api/v1/spend/manual/bulk", map[string]interface{}{"records": records})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp BulkImportResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 3, resp.SuccessCount)
	assert.Equal(t, 1, resp.ErrorCount)
	assert.Equal(t, 4, resp.TotalRecords)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "Record missing required fields")

	page := env.ListSpend(t, url.Values{"model": {"e2e-bulk"}, "provider": {"anthropic"}})
	assert.Len(t, page.Data, 2)

	page = env.ListSpend(t, url.Values{"model": {"e2e-bulk"}, "projectId": {"proj_bulk"}})
	require.Len(t, page.Data, 1)
	assert.Equal(t, "bulk_import", page.Data[0].Metadata["source"])
}

// TestBulkImport_NoRecords rejects an empty import
func TestBulkImport_NoRecords(t *testing.T) {
	env := NewTestEnv()

	status, _ := env.Post(t, "/api/v1/spend/manual/bulk", map[string]interface{}{"records": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, status)
}

// TestDashboardSummary_IncludesManualSpend checks aggregation over imported rows
func TestDashboardSummary_IncludesManualSpend(t *testing.T) {
	env := NewTestEnv()

	status, body := env.Post(t, "/api/v1/spend/anthropic/manual", map[string]interface{}{
		"date": "2024-02-20", "model_name": "e2e-summary", "cost_usd": 7,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = env.Get(t, "/api/v1/dashboard/summary",
		url.Values{"startDate": {"2024-02-20"}, "endDate": {"2024-02-20"}, "provider": {"anthropic"}})
	require.Equal(t, http.StatusOK, status, string(body))

	var summary struct {
		TotalSpend json.Number `json:"totalSpend"`
	}
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, "7", summary.TotalSpend.String())
}

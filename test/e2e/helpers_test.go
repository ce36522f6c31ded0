//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huegott/ai-spend-dashboard/test/mockprovider"
)

// Environment variables for test configuration
const (
	EnvServerURL       = "SERVER_URL"
	EnvMockProviderURL = "MOCK_PROVIDER_URL"
	EnvTestTimeout     = "TEST_TIMEOUT"
)

// Default URLs for local testing
const (
	DefaultServerURL       = "http://localhost:3001"
	DefaultMockProviderURL = "http://localhost:8888"
	DefaultTestTimeout     = 60 * time.Second
)

// TestEnv holds the test environment configuration
type TestEnv struct {
	ServerURL       string
	MockProviderURL string
	TestTimeout     time.Duration
	HTTPClient      *http.Client
}

// NewTestEnv creates a new test environment from env vars or defaults
func NewTestEnv() *TestEnv {
	env := &TestEnv{
		ServerURL:       getEnvOrDefault(EnvServerURL, DefaultServerURL),
		MockProviderURL: getEnvOrDefault(EnvMockProviderURL, DefaultMockProviderURL),
		TestTimeout:     DefaultTestTimeout,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	if timeout := os.Getenv(EnvTestTimeout); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			env.TestTimeout = d
		}
	}

	return env
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// WaitForServer waits for the server to be healthy
func (e *TestEnv) WaitForServer(t *testing.T, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := e.HTTPClient.Get(e.ServerURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}

		select {
		case <-ctx.Done():
			t.Fatalf("Server did not become healthy within %v", timeout)
		case <-ticker.C:
		}
	}
}

// ResetMockProvider clears mock data, fault injection and counters
func (e *TestEnv) ResetMockProvider(t *testing.T) {
	t.Helper()

	resp, err := e.HTTPClient.Post(e.MockProviderURL+"/_test/reset", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// ConfigureMockProvider configures the mock provider behavior
func (e *TestEnv) ConfigureMockProvider(t *testing.T, config mockprovider.TestConfig) {
	t.Helper()
	e.postMock(t, "/_test/config", config)
}

// SeedUsage adds usage buckets to the mock provider
func (e *TestEnv) SeedUsage(t *testing.T, buckets ...mockprovider.UsageBucket) {
	t.Helper()
	e.postMock(t, "/_test/usage", buckets)
}

// SeedCosts adds cost line items to the mock provider
func (e *TestEnv) SeedCosts(t *testing.T, items ...mockprovider.CostLineItem) {
	t.Helper()
	e.postMock(t, "/_test/costs", items)
}

// MockStats returns the traffic the mock provider observed
func (e *TestEnv) MockStats(t *testing.T) mockprovider.Stats {
	t.Helper()

	resp, err := e.HTTPClient.Get(e.MockProviderURL + "/_test/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats mockprovider.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	return stats
}

func (e *TestEnv) postMock(t *testing.T, path string, body interface{}) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := e.HTTPClient.Post(e.MockProviderURL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// API Request/Response types

// SyncResponse is the response from a provider sync
type SyncResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	UsageRecords int    `json:"usageRecords"`
	CostRecords  int    `json:"costRecords"`
	TotalRecords int    `json:"totalRecords"`
}

// SpendRecord is a ledger row
type SpendRecord struct {
	ID           int64                  `json:"id"`
	Provider     string                 `json:"provider"`
	ModelName    string                 `json:"model_name"`
	Date         string                 `json:"date"`
	CostUSD      json.Number            `json:"cost_usd"`
	InputTokens  int64                  `json:"input_tokens"`
	OutputTokens int64                  `json:"output_tokens"`
	TotalTokens  int64                  `json:"total_tokens"`
	NumRequests  int64                  `json:"num_requests"`
	ProjectID    *string                `json:"project_id"`
	APIKeyID     *string                `json:"api_key_id"`
	UserID       *string                `json:"user_id"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// SpendPage is a page of ledger rows
type SpendPage struct {
	Data       []SpendRecord `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
}

// BulkImportResponse is the response from a bulk import
type BulkImportResponse struct {
	Success      bool     `json:"success"`
	SuccessCount int      `json:"successCount"`
	ErrorCount   int      `json:"errorCount"`
	TotalRecords int      `json:"totalRecords"`
	Errors       []string `json:"errors"`
}

// ManualEntryResponse is the response from a manual entry
type ManualEntryResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    SpendRecord `json:"data"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// API Methods

// Post sends a JSON body and returns the status code and raw response
func (e *TestEnv) Post(t *testing.T, path string, body interface{}) (int, []byte) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := e.HTTPClient.Post(e.ServerURL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

// Get issues a GET and returns the status code and raw response
func (e *TestEnv) Get(t *testing.T, path string, params url.Values) (int, []byte) {
	t.Helper()

	reqURL := e.ServerURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	resp, err := e.HTTPClient.Get(reqURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBody
}

// Sync triggers a provider sync and requires success
func (e *TestEnv) Sync(t *testing.T, provider string, days int) *SyncResponse {
	t.Helper()

	status, body := e.Post(t, "/api/v1/spend/sync/"+provider, map[string]int{"days": days})
	if status != http.StatusOK {
		t.Fatalf("Sync failed: status=%d body=%s", status, string(body))
	}

	var result SyncResponse
	require.NoError(t, json.Unmarshal(body, &result))
	return &result
}

// ListSpend lists ledger rows with the given filters
func (e *TestEnv) ListSpend(t *testing.T, params url.Values) *SpendPage {
	t.Helper()

	status, body := e.Get(t, "/api/v1/spend", params)
	if status != http.StatusOK {
		t.Fatalf("ListSpend failed: status=%d body=%s", status, string(body))
	}

	var page SpendPage
	require.NoError(t, json.Unmarshal(body, &page))
	return &page
}

// yesterday returns midnight UTC of the previous day
func yesterday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

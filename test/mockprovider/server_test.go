package mockprovider

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sk-test")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestState_NewState(t *testing.T) {
	state := NewState()

	assert.NotEmpty(t, state.Usage(0, 0), "should have default usage")
	assert.NotEmpty(t, state.Costs(0, 0), "should have default costs")
}

func TestState_UsageRange(t *testing.T) {
	state := NewEmptyState()
	state.AddUsage(
		UsageBucket{Timestamp: 300, Model: "c"},
		UsageBucket{Timestamp: 100, Model: "a"},
		UsageBucket{Timestamp: 200, Model: "b"},
	)

	all := state.Usage(0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Model, "should be ordered by timestamp")

	ranged := state.Usage(150, 300)
	require.Len(t, ranged, 1)
	assert.Equal(t, "b", ranged[0].Model)
}

func TestState_RateLimit(t *testing.T) {
	state := NewEmptyState()
	state.SetRateLimit(2, "0")

	for i := 0; i < 2; i++ {
		retryAfter, limited := state.takeRateLimit()
		assert.True(t, limited)
		assert.Equal(t, "0", retryAfter)
	}
	_, limited := state.takeRateLimit()
	assert.False(t, limited)
	assert.Equal(t, 2, state.Stats().RateLimited)
}

func TestState_Reset(t *testing.T) {
	state := NewState()
	state.SetRateLimit(1, "1")
	state.SetFailure(http.StatusInternalServerError, "boom")
	state.Usage(0, 0)

	state.Reset()

	assert.Empty(t, state.Usage(0, 0))
	assert.Empty(t, state.Costs(0, 0))
	_, limited := state.takeRateLimit()
	assert.False(t, limited)
	status, _ := state.failure()
	assert.Zero(t, status)
	assert.Equal(t, 1, state.Stats().UsageRequests, "counter restarts after reset")
}

func TestServer_Usage(t *testing.T) {
	state := NewEmptyState()
	project := "proj_1"
	state.AddUsage(UsageBucket{Timestamp: 1704067200, Model: "gpt-4o", InputTokens: 10, OutputTokens: 5, NumModelRequests: 1, ProjectID: &project})
	server := NewServer(state)

	w := doRequest(t, server, http.MethodGet, "/v1/organization/usage?start_time=1704067200&interval=1d", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Object string        `json:"object"`
		Data   []UsageBucket `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "page", resp.Object)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "gpt-4o", resp.Data[0].Model)
	assert.Equal(t, "proj_1", *resp.Data[0].ProjectID)
	assert.Nil(t, resp.Data[0].UserID)

	assert.Equal(t, "Bearer sk-test", state.Stats().LastAuth)
}

func TestServer_UsageModelFilter(t *testing.T) {
	state := NewEmptyState()
	state.AddUsage(
		UsageBucket{Timestamp: 1, Model: "gpt-4o"},
		UsageBucket{Timestamp: 1, Model: "gpt-4o-mini"},
	)
	server := NewServer(state)

	w := doRequest(t, server, http.MethodGet, "/v1/organization/usage?models=gpt-4o-mini", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gpt-4o-mini")
	assert.NotContains(t, w.Body.String(), `"model":"gpt-4o"`)
}

func TestServer_Costs(t *testing.T) {
	state := NewEmptyState()
	state.AddCosts(CostLineItem{Timestamp: 1704067200, LineItem: "gpt-4o, input", Amount: CostAmount{Value: 1.5, Currency: "usd"}})
	server := NewServer(state)

	w := doRequest(t, server, http.MethodGet, "/v1/organization/costs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"line_item":"gpt-4o, input"`)
	assert.Contains(t, w.Body.String(), `"value":1.5`)
}

func TestServer_APIKeyRequired(t *testing.T) {
	server := NewServer(NewEmptyState(), WithAPIKey("sk-other"))

	w := doRequest(t, server, http.MethodGet, "/v1/organization/usage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_InjectedRateLimit(t *testing.T) {
	server := NewServer(NewEmptyState())

	w := doRequest(t, server, http.MethodPost, "/_test/config", TestConfig{RateLimitCount: 1, RetryAfter: "2"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, http.MethodGet, "/v1/organization/usage", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	w = doRequest(t, server, http.MethodGet, "/v1/organization/usage", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_InjectedFailure(t *testing.T) {
	server := NewServer(NewEmptyState())

	w := doRequest(t, server, http.MethodPost, "/_test/config", TestConfig{FailStatus: http.StatusBadGateway, FailMessage: "upstream down"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, http.MethodGet, "/v1/organization/costs", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream down")
}

func TestServer_SeedAndStats(t *testing.T) {
	server := NewServer(NewEmptyState())

	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix()
	w := doRequest(t, server, http.MethodPost, "/_test/usage", []UsageBucket{{Timestamp: ts, Model: "gpt-4o"}})
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(t, server, http.MethodPost, "/_test/costs", []CostLineItem{{Timestamp: ts, LineItem: "gpt-4o"}})
	require.Equal(t, http.StatusOK, w.Code)

	doRequest(t, server, http.MethodGet, "/v1/organization/usage", nil)
	doRequest(t, server, http.MethodGet, "/v1/organization/costs", nil)

	w = doRequest(t, server, http.MethodGet, "/_test/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.UsageRequests)
	assert.Equal(t, 1, stats.CostRequests)
}

func TestServer_Reset(t *testing.T) {
	server := NewServer(NewState())

	w := doRequest(t, server, http.MethodPost, "/_test/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, server.State().Usage(0, 0))
}

func TestServer_Health(t *testing.T) {
	server := NewServer(nil)

	w := doRequest(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mock-openai-provider")
}

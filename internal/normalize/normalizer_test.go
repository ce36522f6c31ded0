package normalize

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

const jan1 = 1704067200 // 2024-01-01T00:00:00Z

func TestNormalizeUsage(t *testing.T) {
	payload := []byte(`{"data":[
		{"timestamp":1704067200,"model":"gpt-4o","input_tokens":1000,"output_tokens":500,
		 "num_model_requests":3,"project_id":"proj_1","api_key_id":"key_1","user_id":null},
		{"timestamp":1704153600,"input_tokens":10}
	]}`)

	records := New().NormalizeUsage(payload)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, models.ProviderOpenAI, first.Provider)
	assert.Equal(t, "gpt-4o", first.ModelName)
	assert.Equal(t, "2024-01-01", first.Date.String())
	assert.Equal(t, int64(1000), first.InputTokens)
	assert.Equal(t, int64(500), first.OutputTokens)
	assert.Equal(t, int64(1500), first.TotalTokens)
	assert.Equal(t, int64(3), first.NumRequests)
	require.NotNil(t, first.ProjectID)
	assert.Equal(t, "proj_1", *first.ProjectID)
	require.NotNil(t, first.APIKeyID)
	assert.Equal(t, "key_1", *first.APIKeyID)
	assert.Nil(t, first.UserID)
	// 1000 * 0.000001 + 500 * 0.000002
	assert.True(t, decimal.RequireFromString("0.002").Equal(first.CostUSD), first.CostUSD.String())
	assert.Equal(t, models.SourceOpenAISync, first.Source())
	assert.Equal(t, int64(jan1), first.Metadata["timestamp"])
	assert.Equal(t, true, first.Metadata["cost_estimated"])

	second := records[1]
	assert.Equal(t, "unknown", second.ModelName)
	assert.Equal(t, "2024-01-02", second.Date.String())
	assert.Equal(t, int64(10), second.TotalTokens)
	assert.Equal(t, int64(0), second.NumRequests)
	assert.Nil(t, second.ProjectID)
}

func TestNormalizeUsage_StatedCostWins(t *testing.T) {
	payload := []byte(`{"data":[{"timestamp":1704067200,"model":"gpt-4o","input_tokens":1000000,"output_tokens":0,"cost":0.25}]}`)

	records := New().NormalizeUsage(payload)
	require.Len(t, records, 1)
	assert.True(t, decimal.RequireFromString("0.25").Equal(records[0].CostUSD))
	assert.Equal(t, false, records[0].Metadata["cost_estimated"])
}

func TestNormalizeUsage_RateTableOverride(t *testing.T) {
	table := DefaultRateTable()
	table.Models["gpt-4o"] = Rates{
		Input:  decimal.RequireFromString("0.0000025"),
		Output: decimal.RequireFromString("0.00001"),
	}
	payload := []byte(`{"data":[
		{"timestamp":1704067200,"model":"gpt-4o","input_tokens":1000,"output_tokens":100},
		{"timestamp":1704067200,"model":"gpt-3.5","input_tokens":1000,"output_tokens":100}
	]}`)

	records := New(WithRateTable(table)).NormalizeUsage(payload)
	require.Len(t, records, 2)
	assert.True(t, decimal.RequireFromString("0.0035").Equal(records[0].CostUSD), records[0].CostUSD.String())
	assert.True(t, decimal.RequireFromString("0.0012").Equal(records[1].CostUSD), records[1].CostUSD.String())
}

func TestNormalizeUsage_TotalTokensInvariant(t *testing.T) {
	payload := []byte(`{"data":[
		{"timestamp":1704067200,"model":"a","input_tokens":7,"output_tokens":5},
		{"timestamp":1704067200,"model":"b","input_tokens":"12","output_tokens":null},
		{"timestamp":1704067200,"model":"c","input_tokens":-4,"output_tokens":9},
		{"timestamp":1704067200,"model":"d"}
	]}`)

	records := New().NormalizeUsage(payload)
	require.Len(t, records, 4)
	for _, r := range records {
		assert.GreaterOrEqual(t, r.InputTokens, int64(0), r.ModelName)
		assert.GreaterOrEqual(t, r.OutputTokens, int64(0), r.ModelName)
		assert.Equal(t, r.InputTokens+r.OutputTokens, r.TotalTokens, r.ModelName)
	}
	assert.Equal(t, int64(12), records[1].InputTokens)
}

func TestNormalize_EmptyOrMissingData(t *testing.T) {
	n := New()
	payloads := map[string]string{
		"empty body":     ``,
		"invalid json":   `{"data":`,
		"no data":        `{"object":"page"}`,
		"null data":      `{"data":null}`,
		"object data":    `{"data":{"timestamp":1}}`,
		"empty data":     `{"data":[]}`,
		"non-object row": `{"data":[1,"two",null]}`,
	}

	for name, p := range payloads {
		t.Run(name, func(t *testing.T) {
			usage := n.NormalizeUsage([]byte(p))
			costs := n.NormalizeCost([]byte(p))
			assert.NotNil(t, usage)
			assert.Empty(t, usage)
			assert.NotNil(t, costs)
			assert.Empty(t, costs)
		})
	}
}

func TestNormalizeUsage_SkipsItemsWithoutDay(t *testing.T) {
	payload := []byte(`{"data":[
		{"model":"no-ts"},
		{"timestamp":"yesterday","model":"bad-ts"},
		{"timestamp":1704067200,"model":"ok"}
	]}`)

	records := New().NormalizeUsage(payload)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].ModelName)
}

func TestNormalizeUsage_PreservesOrder(t *testing.T) {
	payload := []byte(`{"data":[
		{"timestamp":1704153600,"model":"z"},
		{"timestamp":1704067200,"model":"a"},
		{"timestamp":1704240000,"model":"m"}
	]}`)

	records := New().NormalizeUsage(payload)
	require.Len(t, records, 3)
	assert.Equal(t, "z", records[0].ModelName)
	assert.Equal(t, "a", records[1].ModelName)
	assert.Equal(t, "m", records[2].ModelName)
}

func TestNormalizeCost(t *testing.T) {
	payload := []byte(`{"data":[
		{"timestamp":1704067200,"line_item":"gpt-4o","cost":"1.234567","project_id":"proj_1"},
		{"timestamp":1704067200,"line_item":"fine-tuning","amount":{"value":2.5,"currency":"usd"}},
		{"timestamp":1704067200}
	]}`)

	records := New().NormalizeCost(payload)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "gpt-4o", first.ModelName)
	assert.True(t, decimal.RequireFromString("1.234567").Equal(first.CostUSD))
	assert.Zero(t, first.InputTokens)
	assert.Zero(t, first.OutputTokens)
	assert.Zero(t, first.TotalTokens)
	assert.Zero(t, first.NumRequests)
	require.NotNil(t, first.ProjectID)
	assert.Equal(t, "proj_1", *first.ProjectID)
	assert.Nil(t, first.APIKeyID)
	assert.Nil(t, first.UserID)
	assert.Equal(t, "gpt-4o", first.Metadata["line_item"])
	assert.Equal(t, models.SourceOpenAISync, first.Source())

	assert.Equal(t, "fine-tuning", records[1].ModelName)
	assert.True(t, decimal.RequireFromString("2.5").Equal(records[1].CostUSD))

	assert.Equal(t, "unknown", records[2].ModelName)
	assert.True(t, records[2].CostUSD.IsZero())
}

func TestNormalizeCost_SkipsNegativeCost(t *testing.T) {
	payload := []byte(`{"data":[
		{"timestamp":1704067200,"line_item":"credit","cost":-5},
		{"timestamp":1704067200,"line_item":"gpt-4o","cost":1}
	]}`)

	records := New().NormalizeCost(payload)
	require.Len(t, records, 1)
	assert.Equal(t, "gpt-4o", records[0].ModelName)
}

func TestNormalize_RawDataRoundTrips(t *testing.T) {
	payload := []byte(`{"data":[{"timestamp":1704067200,"line_item":"gpt-4o","cost":1}]}`)

	records := New().NormalizeCost(payload)
	require.Len(t, records, 1)

	encoded, err := json.Marshal(records[0].Metadata)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"raw_data":{"timestamp":1704067200,"line_item":"gpt-4o","cost":1}`)
}

func TestRateTable_Estimate(t *testing.T) {
	table := DefaultRateTable()
	assert.True(t, decimal.RequireFromString("0.000003").Equal(table.Estimate("any", 1, 1)))
	assert.True(t, table.Estimate("any", 0, 0).IsZero())
	assert.True(t, decimal.RequireFromString("3").Equal(table.Estimate("any", 1_000_000, 1_000_000)))
}

func TestParseRates(t *testing.T) {
	r, err := ParseRates("0.0000025", "0.00001")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.0000025").Equal(r.Input))
	assert.True(t, decimal.RequireFromString("0.00001").Equal(r.Output))

	_, err = ParseRates("abc", "0")
	assert.Error(t, err)
	_, err = ParseRates("0", "-1")
	assert.Error(t, err)
}

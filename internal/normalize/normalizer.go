// Package normalize maps provider usage and cost payloads onto SpendRecords.
//
// Parsing is deliberately tolerant: a payload whose data collection is
// missing, empty, or not an array yields zero records instead of an error,
// and individual items that cannot be placed on a calendar day are skipped.
package normalize

import (
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

const unknownModel = "unknown"

// Normalizer converts raw OpenAI organization usage/cost payloads
type Normalizer struct {
	provider models.Provider
	rates    RateTable
	logger   *slog.Logger
}

// Option configures the normalizer
type Option func(*Normalizer)

// WithRateTable sets the table used to estimate usage cost
func WithRateTable(t RateTable) Option {
	return func(n *Normalizer) {
		n.rates = t
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// New creates a normalizer for OpenAI-shaped payloads
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		provider: models.ProviderOpenAI,
		rates:    DefaultRateTable(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// NormalizeUsage maps a usage payload to spend records in payload order
func (n *Normalizer) NormalizeUsage(payload []byte) []models.SpendRecord {
	items := dataItems(payload)
	records := make([]models.SpendRecord, 0, len(items))

	for _, item := range items {
		ts, ok := timestamp(item)
		if !ok {
			n.logger.Debug("skipping usage item without timestamp", slog.String("item", item.Raw))
			continue
		}

		model := stringOr(item.Get("model"), unknownModel)
		usage := models.Usage{
			InputTokens:  count(item.Get("input_tokens")),
			OutputTokens: count(item.Get("output_tokens")),
			NumRequests:  count(item.Get("num_model_requests")),
		}

		cost, stated := parseDecimal(item.Get("cost"))
		if !stated {
			cost = n.rates.Estimate(model, usage.InputTokens, usage.OutputTokens)
		}
		if cost.IsNegative() {
			n.logger.Warn("skipping usage item with negative cost",
				slog.String("model", model),
				slog.String("cost", cost.String()))
			continue
		}

		rec := models.NewSpendRecord(n.provider, model, models.DateFromUnix(ts), cost, usage).
			WithScope(
				item.Get("project_id").String(),
				item.Get("api_key_id").String(),
				item.Get("user_id").String(),
			)
		rec.Metadata = models.Metadata{
			"source":         string(models.SourceOpenAISync),
			"timestamp":      ts,
			"raw_data":       json.RawMessage(item.Raw),
			"cost_estimated": !stated,
		}

		records = append(records, rec)
	}

	return records
}

// NormalizeCost maps a cost payload to spend records in payload order.
// Cost items carry no token breakdown, so all token counts are zero.
func (n *Normalizer) NormalizeCost(payload []byte) []models.SpendRecord {
	items := dataItems(payload)
	records := make([]models.SpendRecord, 0, len(items))

	for _, item := range items {
		ts, ok := timestamp(item)
		if !ok {
			n.logger.Debug("skipping cost item without timestamp", slog.String("item", item.Raw))
			continue
		}

		lineItem := item.Get("line_item")
		cost, stated := parseDecimal(item.Get("cost"))
		if !stated {
			cost, _ = parseDecimal(item.Get("amount.value"))
		}
		if cost.IsNegative() {
			n.logger.Warn("skipping cost item with negative cost",
				slog.String("line_item", lineItem.String()),
				slog.String("cost", cost.String()))
			continue
		}

		rec := models.NewSpendRecord(n.provider, stringOr(lineItem, unknownModel),
			models.DateFromUnix(ts), cost, models.Usage{}).
			WithScope(item.Get("project_id").String(), "", "")
		rec.Metadata = models.Metadata{
			"source":    string(models.SourceOpenAISync),
			"line_item": lineItem.Value(),
			"timestamp": ts,
			"raw_data":  json.RawMessage(item.Raw),
		}

		records = append(records, rec)
	}

	return records
}

// dataItems returns the object elements of the payload's data array
func dataItems(payload []byte) []gjson.Result {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return nil
	}

	data := gjson.GetBytes(payload, "data")
	if !data.IsArray() {
		return nil
	}

	var items []gjson.Result
	for _, item := range data.Array() {
		if item.IsObject() {
			items = append(items, item)
		}
	}
	return items
}

func timestamp(item gjson.Result) (int64, bool) {
	ts := item.Get("timestamp")
	if !ts.Exists() || ts.Type == gjson.Null {
		// newer payloads bucket by start_time
		ts = item.Get("start_time")
	}
	if ts.Type != gjson.Number {
		return 0, false
	}
	return ts.Int(), true
}

// count reads a non-negative integer, defaulting to 0
func count(r gjson.Result) int64 {
	if v := r.Int(); v > 0 {
		return v
	}
	return 0
}

func stringOr(r gjson.Result, fallback string) string {
	if s := r.String(); s != "" && r.Type != gjson.Null {
		return s
	}
	return fallback
}

// parseDecimal reads a number or numeric string without going through float64
func parseDecimal(r gjson.Result) (decimal.Decimal, bool) {
	switch r.Type {
	case gjson.Number:
		if d, err := decimal.NewFromString(r.Raw); err == nil {
			return d, true
		}
		return decimal.NewFromFloat(r.Float()), true
	case gjson.String:
		if d, err := decimal.NewFromString(r.Str); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// costPrecision is the number of decimal places kept for estimated costs
const costPrecision = 6

// Rates are per-token USD prices
type Rates struct {
	Input  decimal.Decimal
	Output decimal.Decimal
}

// RateTable estimates cost from token counts when a usage item carries no
// cost of its own. The figures are a rough approximation used to give
// dashboards a non-zero number; they are not authoritative pricing, and the
// cost endpoint remains the source of truth for billed amounts.
type RateTable struct {
	Default Rates
	Models  map[string]Rates
}

// DefaultRateTable returns the flat fallback rates: $1 per million input
// tokens and $2 per million output tokens for every model.
func DefaultRateTable() RateTable {
	return RateTable{
		Default: Rates{
			Input:  decimal.New(1, -6),
			Output: decimal.New(2, -6),
		},
		Models: map[string]Rates{},
	}
}

// Lookup returns the rates for a model, falling back to the default
func (t RateTable) Lookup(model string) Rates {
	if r, ok := t.Models[model]; ok {
		return r
	}
	return t.Default
}

// Estimate returns the approximate cost of the given token counts
func (t RateTable) Estimate(model string, inputTokens, outputTokens int64) decimal.Decimal {
	r := t.Lookup(model)
	cost := r.Input.Mul(decimal.NewFromInt(inputTokens)).
		Add(r.Output.Mul(decimal.NewFromInt(outputTokens)))
	return cost.Round(costPrecision)
}

// ParseRates builds Rates from decimal strings such as "0.000001"
func ParseRates(input, output string) (Rates, error) {
	in, err := decimal.NewFromString(input)
	if err != nil {
		return Rates{}, fmt.Errorf("invalid input rate %q: %w", input, err)
	}
	out, err := decimal.NewFromString(output)
	if err != nil {
		return Rates{}, fmt.Errorf("invalid output rate %q: %w", output, err)
	}
	if in.IsNegative() || out.IsNegative() {
		return Rates{}, fmt.Errorf("rates must not be negative")
	}
	return Rates{Input: in, Output: out}, nil
}

package ingest

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Entry is one manually supplied spend line, as sent by the dashboard form
// or a CSV import.
type Entry struct {
	Provider     string          `json:"provider,omitempty"`
	Date         string          `json:"date" validate:"required"`
	ModelName    string          `json:"model_name" validate:"required"`
	CostUSD      *Amount         `json:"cost_usd" validate:"required"`
	InputTokens  Count           `json:"input_tokens,omitempty" validate:"gte=0"`
	OutputTokens Count           `json:"output_tokens,omitempty" validate:"gte=0"`
	NumRequests  Count           `json:"num_requests,omitempty" validate:"gte=0"`
	ProjectID    string          `json:"project_id,omitempty"`
	APIKeyID     string          `json:"api_key_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// Amount is a USD figure given either as a JSON number or a numeric string.
// Unparseable text is kept so validation can report it.
type Amount struct {
	Value decimal.Decimal
	Raw   string
	Valid bool
}

// NewAmount wraps a decimal
func NewAmount(d decimal.Decimal) *Amount {
	return &Amount{Value: d, Raw: d.String(), Valid: true}
}

// ParseAmount parses a numeric string, keeping invalid input for reporting
func ParseAmount(s string) *Amount {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	return &Amount{Value: d, Raw: s, Valid: err == nil}
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = *ParseAmount(s)
		return nil
	}
	*a = *ParseAmount(string(b))
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Valid {
		return []byte(a.Value.String()), nil
	}
	return json.Marshal(a.Raw)
}

// Count is a non-negative integer that tolerates numeric strings and
// floats; anything unparseable counts as 0.
type Count int64

func (c *Count) UnmarshalJSON(b []byte) error {
	*c = ParseCount(strings.Trim(string(bytes.TrimSpace(b)), `"`))
	return nil
}

// ParseCount parses an integer, truncating fractions and falling back to 0.
// Values beyond int64 also count as 0, except negative ones, which stay
// negative so validation rejects them.
func ParseCount(s string) Count {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Count(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
		switch {
		case f < math.MinInt64:
			return Count(math.MinInt64)
		case f >= math.MaxInt64:
			return 0
		}
		return Count(int64(f))
	}
	return 0
}

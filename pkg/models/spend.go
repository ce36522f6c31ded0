package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies the upstream vendor a spend record belongs to
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ParseProvider normalizes a provider name and reports whether it is known
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// Valid reports whether p is one of the modeled providers
func (p Provider) Valid() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

func (p Provider) String() string {
	return string(p)
}

// Source tags how a record entered the ledger (stored in metadata.source)
type Source string

const (
	SourceOpenAISync  Source = "openai_sync"
	SourceManualInput Source = "manual_input"
	SourceBulkImport  Source = "bulk_import"
)

// SpendRecord is one normalized row of provider usage/cost for a day and scope.
//
// ProjectID, APIKeyID and UserID are optional scope keys. A nil scope key is
// stored as an empty-string sentinel so that rows without scoping collapse onto
// one ledger row per provider/model/date.
type SpendRecord struct {
	ID           int64           `json:"id,omitempty"`
	Provider     Provider        `json:"provider"`
	ModelName    string          `json:"model_name"`
	Date         Date            `json:"date"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	TotalTokens  int64           `json:"total_tokens"`
	NumRequests  int64           `json:"num_requests"`
	ProjectID    *string         `json:"project_id"`
	APIKeyID     *string         `json:"api_key_id"`
	UserID       *string         `json:"user_id"`
	Metadata     Metadata        `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at,omitempty"`
}

// Usage holds the countable part of a spend record
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	NumRequests  int64
}

// NewSpendRecord builds a record with TotalTokens derived from the token breakdown
func NewSpendRecord(provider Provider, model string, date Date, cost decimal.Decimal, usage Usage) SpendRecord {
	return SpendRecord{
		Provider:     provider,
		ModelName:    model,
		Date:         date,
		CostUSD:      cost,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.InputTokens + usage.OutputTokens,
		NumRequests:  usage.NumRequests,
		Metadata:     Metadata{},
	}
}

// WithScope sets the optional scope keys; empty strings are treated as absent
func (r SpendRecord) WithScope(projectID, apiKeyID, userID string) SpendRecord {
	r.ProjectID = optional(projectID)
	r.APIKeyID = optional(apiKeyID)
	r.UserID = optional(userID)
	return r
}

// Source returns the metadata source tag, if any
func (r SpendRecord) Source() Source {
	if s, ok := r.Metadata["source"].(string); ok {
		return Source(s)
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences an optional scope key
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

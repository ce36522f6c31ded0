package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpendQuery filters ledger rows for listing and aggregation
type SpendQuery struct {
	StartDate Date
	EndDate   Date
	Provider  Provider
	Model     string
	ProjectID string
	APIKeyID  string
	Page      int
	Limit     int
}

// SpendPage is one page of ledger rows
type SpendPage struct {
	Data       []SpendRecord `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// Pagination describes the position of a page in the full result
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ProviderSpend is a spend total for one provider
type ProviderSpend struct {
	Provider   Provider        `json:"provider"`
	TotalSpend decimal.Decimal `json:"total_spend"`
}

// ModelSpend is a spend total for one provider/model pair
type ModelSpend struct {
	Provider      Provider        `json:"provider"`
	ModelName     string          `json:"model_name"`
	TotalSpend    decimal.Decimal `json:"total_spend"`
	TotalTokens   int64           `json:"total_tokens"`
	TotalRequests int64           `json:"total_requests"`
}

// DailySpend is the spend total for one calendar day
type DailySpend struct {
	Date       Date            `json:"date"`
	DailySpend decimal.Decimal `json:"daily_spend"`
}

// DashboardSummary aggregates the ledger for the dashboard landing view
type DashboardSummary struct {
	TotalSpend      decimal.Decimal `json:"totalSpend"`
	SpendByProvider []ProviderSpend `json:"spendByProvider"`
	SpendByModel    []ModelSpend    `json:"spendByModel"`
	DailyTrend      []DailySpend    `json:"dailyTrend"`
}

// ProviderStatus summarizes what the ledger holds for one provider
type ProviderStatus struct {
	Provider     Provider        `json:"provider"`
	TotalRecords int64           `json:"total_records"`
	LatestDate   Date            `json:"latest_date"`
	TotalSpend   decimal.Decimal `json:"total_spend"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// ProviderModel is a distinct provider/model pair seen in the ledger
type ProviderModel struct {
	Provider  Provider `json:"provider"`
	ModelName string   `json:"model_name"`
}

// SyncResult reports how many records one sync cycle processed
type SyncResult struct {
	UsageRecords int `json:"usageRecords"`
	CostRecords  int `json:"costRecords"`
	TotalRecords int `json:"totalRecords"`
}

// BulkResult reports the outcome of a best-effort bulk import
type BulkResult struct {
	SuccessCount int      `json:"successCount"`
	ErrorCount   int      `json:"errorCount"`
	TotalRecords int      `json:"totalRecords"`
	Errors       []string `json:"errors"`
}

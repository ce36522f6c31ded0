package cmd

import "github.com/huegott/ai-spend-dashboard/pkg/models"

// Re-export ledger types from models for CLI use
type (
	SpendRecord    = models.SpendRecord
	SpendPage      = models.SpendPage
	Summary        = models.DashboardSummary
	ProviderStatus = models.ProviderStatus
	ProviderModel  = models.ProviderModel
	SyncResult     = models.SyncResult
	BulkResult     = models.BulkResult
)

// SyncResponse is the response from a provider sync
type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	SyncResult
}

// SyncStatus is the response from the sync status endpoint
type SyncStatus struct {
	Providers        []ProviderStatus `json:"providers"`
	OpenAIConfigured bool             `json:"openaiConfigured"`
	LastSyncCheck    string           `json:"lastSyncCheck"`
}

// ManualEntryResponse is the response from adding a manual entry
type ManualEntryResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *SpendRecord `json:"data"`
}

// BulkImportResponse is the response from a bulk import
type BulkImportResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	BulkResult
}

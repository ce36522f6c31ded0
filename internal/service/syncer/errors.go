package syncer

import (
	"errors"
	"fmt"

	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

// Sentinel errors for sync operations
var (
	ErrProviderNotSupported = errors.New("provider does not support automatic sync")
	ErrSyncInProgress       = errors.New("sync already in progress")
	ErrInvalidWindow        = errors.New("sync window must be at least one day")
)

// Stage names the step of a sync cycle that failed
type Stage string

const (
	StageValidate   Stage = "validate"
	StageFetchUsage Stage = "fetch_usage"
	StageFetchCosts Stage = "fetch_costs"
	StageStoreUsage Stage = "store_usage"
	StageStoreCosts Stage = "store_costs"
)

// SyncError wraps a failure with the provider and stage it happened in
type SyncError struct {
	Provider models.Provider
	Stage    Stage
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s sync failed during %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsSyncInProgress checks if a sync was rejected because one is already running
func IsSyncInProgress(err error) bool {
	return errors.Is(err, ErrSyncInProgress)
}

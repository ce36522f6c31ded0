package provider

import (
	"context"
	"time"

	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

// Window is the time range and optional filters for a usage/cost fetch
type Window struct {
	Start      time.Time
	End        time.Time
	ProjectIDs []string
	UserIDs    []string
	APIKeyIDs  []string
	Models     []string
}

// UsageSource fetches raw usage and cost payloads from a provider API.
// Payloads are returned undecoded; the normalizer owns their interpretation.
type UsageSource interface {
	// Name returns the provider identifier
	Name() models.Provider

	// Configured reports whether credentials are present
	Configured() bool

	// FetchUsage returns the raw usage payload for the window
	FetchUsage(ctx context.Context, w Window) ([]byte, error)

	// FetchCosts returns the raw cost payload for the window
	FetchCosts(ctx context.Context, w Window) ([]byte, error)
}

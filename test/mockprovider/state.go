package mockprovider

import (
	"sort"
	"sync"
	"time"
)

// UsageBucket is one daily usage bucket as served by the organization usage endpoint
type UsageBucket struct {
	Timestamp        int64    `json:"timestamp"`
	Model            string   `json:"model"`
	InputTokens      int64    `json:"input_tokens"`
	OutputTokens     int64    `json:"output_tokens"`
	NumModelRequests int64    `json:"num_model_requests"`
	ProjectID        *string  `json:"project_id"`
	APIKeyID         *string  `json:"api_key_id"`
	UserID           *string  `json:"user_id"`
	Cost             *float64 `json:"cost,omitempty"`
}

// CostAmount is a billed amount
type CostAmount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// CostLineItem is one daily line item as served by the organization costs endpoint
type CostLineItem struct {
	Timestamp int64      `json:"timestamp"`
	LineItem  string     `json:"line_item"`
	ProjectID *string    `json:"project_id"`
	Amount    CostAmount `json:"amount"`
}

// State manages the in-memory data and fault injection for the mock API
type State struct {
	mu    sync.RWMutex
	usage []UsageBucket
	costs []CostLineItem

	// Fault injection
	rateLimitRemaining int
	retryAfter         string
	failStatus         int
	failMessage        string

	// Observed traffic
	usageRequests int
	costRequests  int
	rateLimited   int
	lastAuth      string
}

// NewState creates a new mock state seeded with two days of data
func NewState() *State {
	s := &State{}
	s.seed(time.Now().UTC())
	return s
}

// NewEmptyState creates a mock state with no data
func NewEmptyState() *State {
	return &State{}
}

func (s *State) seed(now time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1).Unix()
	twoDaysAgo := today.AddDate(0, 0, -2).Unix()
	project := "proj_default"

	s.usage = []UsageBucket{
		{Timestamp: twoDaysAgo, Model: "gpt-4o", InputTokens: 120000, OutputTokens: 30000, NumModelRequests: 40, ProjectID: &project},
		{Timestamp: yesterday, Model: "gpt-4o", InputTokens: 80000, OutputTokens: 20000, NumModelRequests: 25, ProjectID: &project},
		{Timestamp: yesterday, Model: "gpt-4o-mini", InputTokens: 500000, OutputTokens: 100000, NumModelRequests: 300},
	}
	s.costs = []CostLineItem{
		{Timestamp: twoDaysAgo, LineItem: "gpt-4o, input", ProjectID: &project, Amount: CostAmount{Value: 0.3, Currency: "usd"}},
		{Timestamp: yesterday, LineItem: "gpt-4o, input", ProjectID: &project, Amount: CostAmount{Value: 0.2, Currency: "usd"}},
	}
}

// AddUsage appends usage buckets
func (s *State) AddUsage(buckets ...UsageBucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, buckets...)
}

// AddCosts appends cost line items
func (s *State) AddCosts(items ...CostLineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costs = append(s.costs, items...)
}

// Usage returns buckets with start <= timestamp < end, ordered by timestamp.
// A zero bound is open.
func (s *State) Usage(start, end int64) []UsageBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageRequests++

	out := make([]UsageBucket, 0, len(s.usage))
	for _, b := range s.usage {
		if inRange(b.Timestamp, start, end) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Costs returns line items with start <= timestamp < end, ordered by timestamp
func (s *State) Costs(start, end int64) []CostLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costRequests++

	out := make([]CostLineItem, 0, len(s.costs))
	for _, c := range s.costs {
		if inRange(c.Timestamp, start, end) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func inRange(ts, start, end int64) bool {
	if start > 0 && ts < start {
		return false
	}
	if end > 0 && ts >= end {
		return false
	}
	return true
}

// SetRateLimit makes the next n requests answer 429 with the given Retry-After
func (s *State) SetRateLimit(n int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitRemaining = n
	s.retryAfter = retryAfter
}

// SetFailure makes every request fail with status until cleared with 0
func (s *State) SetFailure(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
	s.failMessage = message
}

// takeRateLimit consumes one injected 429, reporting the Retry-After value
func (s *State) takeRateLimit() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateLimitRemaining <= 0 {
		return "", false
	}
	s.rateLimitRemaining--
	s.rateLimited++
	return s.retryAfter, true
}

func (s *State) failure() (int, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failStatus, s.failMessage
}

func (s *State) recordAuth(header string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAuth = header
}

// Stats reports the traffic the mock has observed
type Stats struct {
	UsageRequests int    `json:"usage_requests"`
	CostRequests  int    `json:"cost_requests"`
	RateLimited   int    `json:"rate_limited"`
	LastAuth      string `json:"last_auth"`
}

// Stats returns a snapshot of observed traffic
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		UsageRequests: s.usageRequests,
		CostRequests:  s.costRequests,
		RateLimited:   s.rateLimited,
		LastAuth:      s.lastAuth,
	}
}

// Reset clears data, fault injection and counters
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = nil
	s.costs = nil
	s.rateLimitRemaining = 0
	s.retryAfter = ""
	s.failStatus = 0
	s.failMessage = ""
	s.usageRequests = 0
	s.costRequests = 0
	s.rateLimited = 0
	s.lastAuth = ""
}

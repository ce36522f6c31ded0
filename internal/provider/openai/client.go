package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/huegott/ai-spend-dashboard/internal/metrics"
	"github.com/huegott/ai-spend-dashboard/internal/provider"
	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultTimeout    = 30 * time.Second
	defaultRetryAfter = 60 * time.Second
	maxRetryAfter     = 24 * time.Hour

	usagePath = "/organization/usage"
	costsPath = "/organization/costs"
)

// Client talks to the OpenAI organization usage and cost endpoints.
//
// A 429 response suspends the caller for the server-provided Retry-After
// duration and then re-issues the identical request. Each 429 costs one wait
// and one retry; retries are unbounded unless WithMaxRateLimitRetries is set.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// Outbound pacing
	limiter *rate.Limiter

	// 0 means unbounded
	maxRateLimitRetries int

	// For time mocking in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures the OpenAI client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the fixed per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the outbound request pacing
func WithRateLimit(r rate.Limit, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// WithMaxRateLimitRetries bounds how many consecutive 429s are retried
func WithMaxRateLimitRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRateLimitRetries = n
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSleepFunc replaces the backoff wait (for testing)
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// NewClient creates a new OpenAI client. An empty apiKey yields a disabled
// client whose calls fail with a ConfigurationError.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Limit(1), 2), // 1 request per second
		sleep:      sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	if apiKey == "" {
		c.logger.Warn("OpenAI client initialized without API key, sync is disabled")
	}

	return c
}

// Name returns the provider identifier
func (c *Client) Name() models.Provider {
	return models.ProviderOpenAI
}

// Configured reports whether the client holds an API key
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FetchUsage returns the raw usage payload for the window
func (c *Client) FetchUsage(ctx context.Context, w provider.Window) ([]byte, error) {
	params := windowParams(w)
	setList(params, "user_ids", w.UserIDs)
	setList(params, "api_key_ids", w.APIKeyIDs)
	setList(params, "models", w.Models)

	c.logger.Info("fetching OpenAI usage data",
		slog.Time("start", w.Start),
		slog.Time("end", w.End))

	body, err := c.do(ctx, "FetchUsage", http.MethodGet, usagePath, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OpenAI usage data: %w", err)
	}
	return body, nil
}

// FetchCosts returns the raw cost payload for the window
func (c *Client) FetchCosts(ctx context.Context, w provider.Window) ([]byte, error) {
	params := windowParams(w)

	c.logger.Info("fetching OpenAI cost data",
		slog.Time("start", w.Start),
		slog.Time("end", w.End))

	body, err := c.do(ctx, "FetchCosts", http.MethodGet, costsPath, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OpenAI cost data: %w", err)
	}
	return body, nil
}

// Request issues a request against the API and returns the response body
func (c *Client) Request(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, method+" "+path, method, path, params)
}

func (c *Client) do(ctx context.Context, operation, method, path string, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &provider.ConfigurationError{Provider: "openai", Setting: "OPENAI_API_KEY"}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	rateLimitRetries := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		start := time.Now()
		status, header, body, err := c.send(ctx, method, reqURL)
		metrics.RecordProviderAPIResponseTime("openai", operation, time.Since(start))
		if err != nil {
			metrics.RecordProviderAPICall("openai", operation, "network_error")
			return nil, &provider.NetworkError{Provider: "openai", Operation: operation, Err: err}
		}

		if status == http.StatusTooManyRequests {
			metrics.RecordProviderAPICall("openai", operation, "rate_limited")
			if c.maxRateLimitRetries > 0 && rateLimitRetries >= c.maxRateLimitRetries {
				return nil, provider.NewHTTPError("openai", operation, status, string(body))
			}
			rateLimitRetries++

			wait := parseRetryAfter(header.Get("Retry-After"))
			c.logger.Warn("rate limited by OpenAI, waiting before retry",
				slog.String("operation", operation),
				slog.Duration("retry_after", wait),
				slog.Int("attempt", rateLimitRetries))
			metrics.RecordRateLimitWait("openai", wait)

			if err := c.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("rate limit wait aborted: %w", err)
			}
			continue
		}

		if status < 200 || status >= 300 {
			metrics.RecordProviderAPICall("openai", operation, "error")
			c.logger.Error("OpenAI request failed",
				slog.String("operation", operation),
				slog.Int("status", status),
				slog.String("body", truncate(string(body), 512)))
			return nil, provider.NewHTTPError("openai", operation, status, string(body))
		}

		metrics.RecordProviderAPICall("openai", operation, "success")
		return body, nil
	}
}

// send performs one HTTP round trip and drains the body
func (c *Client) send(ctx context.Context, method, reqURL string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, resp.Header, body, nil
}

// parseRetryAfter reads a Retry-After header given in seconds (or as an
// HTTP date). Missing or unparseable values fall back to 60 seconds; waits
// are capped at maxRetryAfter.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		if secs >= maxRetryAfter.Seconds() {
			return maxRetryAfter
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		return min(max(time.Until(t), 0), maxRetryAfter)
	}
	return defaultRetryAfter
}

func windowParams(w provider.Window) url.Values {
	params := url.Values{}
	params.Set("interval", "1d")
	if !w.Start.IsZero() {
		params.Set("start_time", strconv.FormatInt(w.Start.Unix(), 10))
	}
	if !w.End.IsZero() {
		params.Set("end_time", strconv.FormatInt(w.End.Unix(), 10))
	}
	setList(params, "project_ids", w.ProjectIDs)
	return params
}

func setList(params url.Values, key string, values []string) {
	if len(values) > 0 {
		params.Set(key, strings.Join(values, ","))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

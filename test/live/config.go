//go:build live
// +build live

package live

import (
	"os"
	"strconv"
	"time"
)

// TestConfig holds live test configuration
type TestConfig struct {
	// OpenAI admin key with organization usage read access
	APIKey  string
	BaseURL string

	// Days of history to fetch
	WindowDays int

	// Upper bound for the whole suite
	MaxRuntime time.Duration

	// Outbound pacing
	RequestsPerSecond float64
}

// DefaultTestConfig returns the configuration for live tests from the environment
func DefaultTestConfig() *TestConfig {
	cfg := &TestConfig{
		APIKey:            os.Getenv("OPENAI_API_KEY"),
		BaseURL:           getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		WindowDays:        3,
		MaxRuntime:        5 * time.Minute,
		RequestsPerSecond: 1,
	}

	if v := os.Getenv("LIVE_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WindowDays = n
		}
	}

	return cfg
}

// Enabled reports whether credentials are present
func (c *TestConfig) Enabled() bool {
	return c.APIKey != ""
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

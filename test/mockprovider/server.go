package mockprovider

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Server is the mock OpenAI organization usage/costs API server
type Server struct {
	state  *State
	router *gin.Engine
	logger *slog.Logger
	apiKey string
}

// Option configures the mock server
type Option func(*Server)

// WithAPIKey requires requests to carry this bearer token
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// NewServer creates a new mock provider server
func NewServer(state *State, opts ...Option) *Server {
	if state == nil {
		state = NewState()
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		state:  state,
		router: router,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// State returns the underlying state for test manipulation
func (s *Server) State() *State {
	return s.state
}

func (s *Server) setupRoutes() {
	// OpenAI organization endpoints
	org := s.router.Group("/v1/organization", s.faultMiddleware())
	{
		org.GET("/usage", s.handleUsage)
		org.GET("/costs", s.handleCosts)
	}

	// Health check
	s.router.GET("/health", s.handleHealth)

	// Test control endpoints
	s.router.POST("/_test/reset", s.handleTestReset)
	s.router.POST("/_test/config", s.handleTestConfig)
	s.router.POST("/_test/usage", s.handleTestAddUsage)
	s.router.POST("/_test/costs", s.handleTestAddCosts)
	s.router.GET("/_test/stats", s.handleTestStats)
}

// ErrorResponse matches the OpenAI error envelope
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the inner OpenAI error object
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// faultMiddleware applies auth, injected failures and injected 429s
func (s *Server) faultMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		s.state.recordAuth(auth)

		if s.apiKey != "" && auth != "Bearer "+s.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: ErrorBody{Message: "Incorrect API key provided", Type: "invalid_request_error"},
			})
			return
		}

		if status, msg := s.state.failure(); status != 0 {
			c.AbortWithStatusJSON(status, ErrorResponse{
				Error: ErrorBody{Message: msg, Type: "server_error"},
			})
			return
		}

		if retryAfter, limited := s.state.takeRateLimit(); limited {
			if retryAfter != "" {
				c.Header("Retry-After", retryAfter)
			}
			s.logger.Debug("injecting rate limit", "path", c.Request.URL.Path, "retry_after", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: ErrorBody{Message: "Rate limit reached", Type: "rate_limit_exceeded"},
			})
			return
		}

		c.Next()
	}
}

// PageResponse matches the OpenAI paginated list envelope
type PageResponse struct {
	Object  string      `json:"object"`
	Data    interface{} `json:"data"`
	HasMore bool        `json:"has_more"`
}

func (s *Server) handleUsage(c *gin.Context) {
	start, end := timeRange(c)
	buckets := s.state.Usage(start, end)

	if models := c.Query("models"); models != "" {
		buckets = filterUsage(buckets, strings.Split(models, ","))
	}

	c.JSON(http.StatusOK, PageResponse{Object: "page", Data: buckets})
}

func (s *Server) handleCosts(c *gin.Context) {
	start, end := timeRange(c)
	c.JSON(http.StatusOK, PageResponse{Object: "page", Data: s.state.Costs(start, end)})
}

func timeRange(c *gin.Context) (int64, int64) {
	start, _ := strconv.ParseInt(c.Query("start_time"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_time"), 10, 64)
	return start, end
}

func filterUsage(buckets []UsageBucket, models []string) []UsageBucket {
	keep := make(map[string]bool, len(models))
	for _, m := range models {
		keep[strings.TrimSpace(m)] = true
	}
	out := buckets[:0]
	for _, b := range buckets {
		if keep[b.Model] {
			out = append(out, b)
		}
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "mock-openai-provider",
	})
}

// Test control handlers

func (s *Server) handleTestReset(c *gin.Context) {
	s.state.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// TestConfig is the configuration for test behavior
type TestConfig struct {
	RateLimitCount int    `json:"rate_limit_count"`
	RetryAfter     string `json:"retry_after"`
	FailStatus     int    `json:"fail_status"`
	FailMessage    string `json:"fail_message"`
}

func (s *Server) handleTestConfig(c *gin.Context) {
	var config TestConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.state.SetRateLimit(config.RateLimitCount, config.RetryAfter)
	s.state.SetFailure(config.FailStatus, config.FailMessage)

	c.JSON(http.StatusOK, gin.H{"status": "configured"})
}

func (s *Server) handleTestAddUsage(c *gin.Context) {
	var buckets []UsageBucket
	if err := c.ShouldBindJSON(&buckets); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.state.AddUsage(buckets...)
	c.JSON(http.StatusOK, gin.H{"added": len(buckets)})
}

func (s *Server) handleTestAddCosts(c *gin.Context) {
	var items []CostLineItem
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.state.AddCosts(items...)
	c.JSON(http.StatusOK, gin.H{"added": len(items)})
}

func (s *Server) handleTestStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Stats())
}

// Run starts the server on the specified address
func (s *Server) Run(addr string) error {
	s.logger.Info("starting mock provider server", "addr", addr)
	return s.router.Run(addr)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

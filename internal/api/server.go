package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huegott/ai-spend-dashboard/internal/logging"
	"github.com/huegott/ai-spend-dashboard/internal/metrics"
	"github.com/huegott/ai-spend-dashboard/internal/service/ingest"
	"github.com/huegott/ai-spend-dashboard/internal/service/syncer"
	"github.com/huegott/ai-spend-dashboard/internal/storage"
)

// EnvironmentProduction hides raw error details from API responses
const EnvironmentProduction = "production"

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	// Services
	db     *storage.DB
	store  *storage.SpendStore
	syncer *syncer.Service
	ingest *ingest.Service

	// Configuration
	host        string
	port        int
	environment string
	maxBodySize int64

	allowedOrigins []string
	apiLimiter     *clientLimiter

	// Readiness state (atomic for thread-safe access)
	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHost sets the server host
func WithHost(host string) Option {
	return func(s *Server) {
		s.host = host
	}
}

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithEnvironment sets the deployment environment name
func WithEnvironment(env string) Option {
	return func(s *Server) {
		s.environment = env
	}
}

// WithDB lets health checks ping the database
func WithDB(db *storage.DB) Option {
	return func(s *Server) {
		s.db = db
	}
}

// WithAllowedOrigins restricts CORS to the given origins
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAPIRateLimit caps each client IP at requests per window on /api routes.
// A non-positive value disables the limit.
func WithAPIRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		if requests > 0 && window > 0 {
			s.apiLimiter = newClientLimiter(requests, window)
		}
	}
}

// WithMaxBodySize limits request bodies; bulk imports are the largest
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// New creates a new API server
func New(store *storage.SpendStore, syncSvc *syncer.Service, ingestSvc *ingest.Service, opts ...Option) *Server {
	s := &Server{
		logger:      slog.Default(),
		store:       store,
		syncer:      syncSvc,
		ingest:      ingestSvc,
		host:        "0.0.0.0",
		port:        3001,
		environment: "development",
		maxBodySize: 10 << 20,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRouter()
	return s
}

// SetReady sets the server readiness state
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("server readiness changed", slog.Bool("ready", ready))
}

// IsReady returns whether the server is ready to accept traffic
func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// setupRouter configures the Gin router
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Add middleware
	router.Use(s.requestIDMiddleware())
	router.Use(s.metricsMiddleware())
	router.Use(s.bodySizeLimitMiddleware(s.maxBodySize))
	router.Use(s.loggingMiddleware())
	router.Use(s.recoveryMiddleware())
	router.Use(s.corsMiddleware())

	// Health and readiness endpoints
	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	if s.apiLimiter != nil {
		v1.Use(s.rateLimitMiddleware(s.apiLimiter))
	}
	{
		// Ingest
		v1.POST("/spend/sync/:provider", s.handleSync)
		v1.GET("/spend/sync/status", s.handleSyncStatus)
		v1.POST("/spend/anthropic/manual", s.handleManualEntry)
		v1.POST("/spend/manual/bulk", s.handleBulkImport)

		// Ledger queries
		v1.GET("/dashboard/summary", s.handleDashboardSummary)
		v1.GET("/spend", s.handleListSpend)
		v1.GET("/spend/:id", s.handleGetSpend)
		v1.GET("/models", s.handleListModels)
		v1.GET("/projects", s.handleListProjects)
		v1.GET("/api-keys", s.handleListAPIKeys)
	}

	s.router = router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	// syncs can take a while when the provider rate-limits us
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("starting API server", slog.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Middleware

// validRequestIDRegex allows alphanumeric, dots, underscores, and hyphens up to 128 chars.
var validRequestIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

func isValidRequestID(id string) bool {
	return id != "" && validRequestIDRegex.MatchString(id)
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !isValidRequestID(requestID) {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Use the matched route pattern for consistent path labels
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.InfoContext(c.Request.Context(), "request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.ErrorContext(c.Request.Context(), "panic recovered",
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:     "internal server error",
					RequestID: c.GetString("request_id"),
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (s *Server) bodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

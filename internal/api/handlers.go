package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/huegott/ai-spend-dashboard/internal/provider"
	"github.com/huegott/ai-spend-dashboard/internal/service/ingest"
	"github.com/huegott/ai-spend-dashboard/internal/service/syncer"
	"github.com/huegott/ai-spend-dashboard/internal/storage"
	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

// Request/Response types

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// ReadyResponse is the readiness check response
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRequest is the optional body of a sync call
type SyncRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=366"`
}

// SyncResponse reports a completed sync
type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	models.SyncResult
}

// SyncStatusResponse reports what the ledger holds per provider
type SyncStatusResponse struct {
	Providers        []models.ProviderStatus `json:"providers"`
	OpenAIConfigured bool                    `json:"openaiConfigured"`
	LastSyncCheck    time.Time               `json:"lastSyncCheck"`
}

// ManualEntryResponse returns the ledger row a manual entry landed in
type ManualEntryResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    *models.SpendRecord `json:"data"`
}

// BulkImportRequest carries raw records so one malformed record cannot
// reject the whole import
type BulkImportRequest struct {
	Records []json.RawMessage `json:"records"`
}

// BulkImportResponse reports a best-effort bulk import
type BulkImportResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	models.BulkResult
}

// SpendQueryParams defines query parameters for ledger listings
type SpendQueryParams struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	Provider  string `form:"provider"`
	Model     string `form:"model"`
	ProjectID string `form:"projectId"`
	APIKeyID  string `form:"apiKeyId"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			response.Services["database"] = "error"
		} else {
			response.Services["database"] = "ok"
		}
	}

	if s.syncer != nil && s.syncer.Configured(models.ProviderOpenAI) {
		response.Services["openai"] = "configured"
	} else {
		response.Services["openai"] = "not_configured"
	}

	// Return 503 if not ready (e.g., during startup migrations)
	if !s.ready.Load() || response.Services["database"] == "error" {
		response.Status = "unavailable"
		response.Services["ready"] = strconv.FormatBool(s.ready.Load())
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response.Services["ready"] = "true"
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleReady(c *gin.Context) {
	response := ReadyResponse{
		Ready:     s.ready.Load(),
		Timestamp: time.Now(),
	}

	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleSync(c *gin.Context) {
	p, ok := models.ParseProvider(c.Param("provider"))
	if !ok {
		s.writeError(c, http.StatusBadRequest, fmt.Sprintf("unsupported provider: %s", c.Param("provider")), nil)
		return
	}

	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(c, http.StatusBadRequest, sanitizeValidationError(err), nil)
		return
	}

	result, err := s.syncer.SyncData(c.Request.Context(), p, req.Days)
	if err != nil {
		s.writeServiceError(c, fmt.Sprintf("Failed to sync %s data", providerLabel(p)), err)
		return
	}

	c.JSON(http.StatusOK, SyncResponse{
		Success:    true,
		Message:    fmt.Sprintf("%s data synced successfully", providerLabel(p)),
		SyncResult: *result,
	})
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	statuses, err := s.store.Status(c.Request.Context())
	if err != nil {
		s.writeServiceError(c, "Failed to get sync status", err)
		return
	}

	c.JSON(http.StatusOK, SyncStatusResponse{
		Providers:        statuses,
		OpenAIConfigured: s.syncer.Configured(models.ProviderOpenAI),
		LastSyncCheck:    time.Now().UTC(),
	})
}

func (s *Server) handleManualEntry(c *gin.Context) {
	var entry ingest.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		s.writeError(c, http.StatusBadRequest, sanitizeValidationError(err), nil)
		return
	}

	rec, err := s.ingest.Manual(c.Request.Context(), entry)
	if err != nil {
		s.writeServiceError(c, "Failed to add Anthropic data", err)
		return
	}

	c.JSON(http.StatusOK, ManualEntryResponse{
		Success: true,
		Message: "Anthropic data added successfully",
		Data:    rec,
	})
}

func (s *Server) handleBulkImport(c *gin.Context) {
	var req BulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, sanitizeValidationError(err), nil)
		return
	}

	result, err := s.ingest.Bulk(c.Request.Context(), req.Records)
	if err != nil {
		s.writeServiceError(c, "Failed to process bulk import", err)
		return
	}

	c.JSON(http.StatusOK, BulkImportResponse{
		Success:    true,
		Message:    "Bulk data import completed",
		BulkResult: *result,
	})
}

func (s *Server) handleDashboardSummary(c *gin.Context) {
	q, ok := s.bindSpendQuery(c)
	if !ok {
		return
	}

	summary, err := s.store.Summary(c.Request.Context(), q)
	if err != nil {
		s.writeServiceError(c, "Failed to fetch dashboard summary", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleListSpend(c *gin.Context) {
	q, ok := s.bindSpendQuery(c)
	if !ok {
		return
	}

	page, err := s.store.List(c.Request.Context(), q)
	if err != nil {
		s.writeServiceError(c, "Failed to fetch spend data", err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetSpend(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		s.writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid id: %s", c.Param("id")), nil)
		return
	}

	rec, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		s.writeServiceError(c, "Failed to fetch spend record", err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListModels(c *gin.Context) {
	p, ok := s.providerFilter(c)
	if !ok {
		return
	}

	out, err := s.store.Models(c.Request.Context(), p)
	if err != nil {
		s.writeServiceError(c, "Failed to fetch models", err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListProjects(c *gin.Context) {
	out, err := s.store.Projects(c.Request.Context())
	if err != nil {
		s.writeServiceError(c, "Failed to fetch projects", err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListAPIKeys(c *gin.Context) {
	p, ok := s.providerFilter(c)
	if !ok {
		return
	}

	out, err := s.store.APIKeys(c.Request.Context(), p)
	if err != nil {
		s.writeServiceError(c, "Failed to fetch API keys", err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// bindSpendQuery parses listing filters, writing a 400 on bad input
func (s *Server) bindSpendQuery(c *gin.Context) (models.SpendQuery, bool) {
	var params SpendQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		s.writeError(c, http.StatusBadRequest, sanitizeValidationError(err), nil)
		return models.SpendQuery{}, false
	}

	q := models.SpendQuery{
		Model:     params.Model,
		ProjectID: params.ProjectID,
		APIKeyID:  params.APIKeyID,
		Page:      params.Page,
		Limit:     params.Limit,
	}

	var err error
	if params.StartDate != "" {
		if q.StartDate, err = models.ParseDate(params.StartDate); err != nil {
			s.writeError(c, http.StatusBadRequest,
				fmt.Sprintf("invalid startDate format, expected YYYY-MM-DD: %s", params.StartDate), nil)
			return q, false
		}
	}
	if params.EndDate != "" {
		if q.EndDate, err = models.ParseDate(params.EndDate); err != nil {
			s.writeError(c, http.StatusBadRequest,
				fmt.Sprintf("invalid endDate format, expected YYYY-MM-DD: %s", params.EndDate), nil)
			return q, false
		}
	}

	if q.Provider, err = parseProviderFilter(params.Provider); err != nil {
		s.writeError(c, http.StatusBadRequest, err.Error(), nil)
		return q, false
	}

	return q, true
}

func (s *Server) providerFilter(c *gin.Context) (models.Provider, bool) {
	p, err := parseProviderFilter(c.Query("provider"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err.Error(), nil)
		return "", false
	}
	return p, true
}

// parseProviderFilter treats "" and "all" as no filter
func parseProviderFilter(raw string) (models.Provider, error) {
	if raw == "" || strings.EqualFold(raw, "all") {
		return "", nil
	}
	p, ok := models.ParseProvider(raw)
	if !ok {
		return "", fmt.Errorf("unsupported provider: %s", raw)
	}
	return p, nil
}

// writeError writes the standard error body. Raw details are omitted in production.
func (s *Server) writeError(c *gin.Context, status int, msg string, err error) {
	resp := ErrorResponse{
		Error:     msg,
		RequestID: c.GetString("request_id"),
	}
	if err != nil && s.environment != EnvironmentProduction {
		resp.Details = err.Error()
	}
	c.JSON(status, resp)
}

// writeServiceError maps service and storage failures onto HTTP statuses
func (s *Server) writeServiceError(c *gin.Context, msg string, err error) {
	status := statusFor(err)

	var ve *ingest.ValidationError
	switch {
	case errors.As(err, &ve):
		msg = ve.Message
	case provider.IsConfigurationError(err):
		msg = "OpenAI service not configured"
	case errors.Is(err, syncer.ErrProviderNotSupported):
		msg = err.Error()
		var se *syncer.SyncError
		if errors.As(err, &se) {
			msg = fmt.Sprintf("%s sync not supported. Use manual input instead.", providerLabel(se.Provider))
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), msg, "error", err.Error())
	}

	s.writeError(c, status, msg, err)
}

func statusFor(err error) int {
	var ve *ingest.ValidationError
	switch {
	case errors.As(err, &ve),
		provider.IsConfigurationError(err),
		errors.Is(err, syncer.ErrProviderNotSupported),
		errors.Is(err, syncer.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict
	case provider.IsUpstreamError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func providerLabel(p models.Provider) string {
	switch p {
	case models.ProviderOpenAI:
		return "OpenAI"
	case models.ProviderAnthropic:
		return "Anthropic"
	default:
		return string(p)
	}
}

// sanitizeValidationError converts validator errors to user-friendly messages
func sanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Sprintf("invalid request: %s", err.Error())
	}

	var messages []string
	for _, fe := range validationErrs {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

// jsonFieldName maps struct field names to the names clients send
func jsonFieldName(field string) string {
	fieldMappings := map[string]string{
		"Days":  "days",
		"Page":  "page",
		"Limit": "limit",
	}
	if name, ok := fieldMappings[field]; ok {
		return name
	}
	return strings.ToLower(field)
}

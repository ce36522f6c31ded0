// Package ingest accepts spend data typed in by hand or imported in bulk.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/huegott/ai-spend-dashboard/internal/logging"
	"github.com/huegott/ai-spend-dashboard/internal/metrics"
	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

// MaxReportedErrors caps the diagnostics returned from a bulk import
const MaxReportedErrors = 10

// Ledger persists spend records
type Ledger interface {
	Upsert(ctx context.Context, records []models.SpendRecord) error
	UpsertOne(ctx context.Context, record models.SpendRecord) (*models.SpendRecord, error)
}

// Service validates and stores manually supplied spend data
type Service struct {
	ledger   Ledger
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures the ingest service
type Option func(*Service)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates an ingest service
func New(ledger Ledger, opts ...Option) *Service {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Service{
		ledger:   ledger,
		validate: v,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Manual stores one hand-entered Anthropic record and returns the resulting
// ledger row. Entries for an existing key add to it.
func (s *Service) Manual(ctx context.Context, e Entry) (*models.SpendRecord, error) {
	ctx = logging.WithProvider(ctx, string(models.ProviderAnthropic))

	if err := s.check(e); err != nil {
		metrics.RecordIngestRejected(string(models.SourceManualInput), "validation")
		return nil, err
	}

	rec, err := s.toRecord(e, models.ProviderAnthropic, models.SourceManualInput)
	if err != nil {
		metrics.RecordIngestRejected(string(models.SourceManualInput), "validation")
		return nil, err
	}

	stored, err := s.ledger.UpsertOne(context.WithoutCancel(ctx), rec)
	if err != nil {
		metrics.RecordIngestRejected(string(models.SourceManualInput), "storage")
		return nil, fmt.Errorf("failed to store manual entry: %w", err)
	}

	metrics.RecordRecordsIngested(string(models.ProviderAnthropic), string(models.SourceManualInput), 1)
	logging.Audit(ctx, "manual_entry",
		"model_name", rec.ModelName,
		"date", rec.Date.String(),
		"cost_usd", rec.CostUSD.String())

	return stored, nil
}

// Bulk imports records one at a time; each valid record is committed in its
// own transaction, so a bad record never blocks the rest. Only the first
// MaxReportedErrors diagnostics are returned.
func (s *Service) Bulk(ctx context.Context, records []json.RawMessage) (*models.BulkResult, error) {
	if len(records) == 0 {
		return nil, &ValidationError{Message: "no records provided"}
	}

	result := &models.BulkResult{
		TotalRecords: len(records),
		Errors:       []string{},
	}

	for i, raw := range records {
		if err := s.importOne(ctx, raw); err != nil {
			result.ErrorCount++
			if len(result.Errors) < MaxReportedErrors {
				result.Errors = append(result.Errors, err.Error())
			}
			s.logger.WarnContext(ctx, "bulk record rejected",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}
		result.SuccessCount++
	}

	if result.SuccessCount > 0 {
		metrics.RecordRecordsIngested("mixed", string(models.SourceBulkImport), result.SuccessCount)
	}
	logging.Audit(ctx, "bulk_import",
		"total_records", result.TotalRecords,
		"success_count", result.SuccessCount,
		"error_count", result.ErrorCount)

	return result, nil
}

// importOne validates and stores one bulk record, returning the diagnostic
// reported to the caller on failure.
func (s *Service) importOne(ctx context.Context, raw json.RawMessage) error {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		metrics.RecordIngestRejected(string(models.SourceBulkImport), "decode")
		return fmt.Errorf("Record error: invalid record: %v", err)
	}

	err := s.check(e)
	if strings.TrimSpace(e.Provider) == "" && (err == nil || isMissingFields(err)) {
		err = missingFieldsError([]string{"provider"})
	}
	if err != nil {
		if isMissingFields(err) {
			metrics.RecordIngestRejected(string(models.SourceBulkImport), "missing_fields")
			return fmt.Errorf("Record missing required fields: %s", compact(raw))
		}
		metrics.RecordIngestRejected(string(models.SourceBulkImport), "validation")
		return fmt.Errorf("Record error: %v", err)
	}

	p, ok := models.ParseProvider(e.Provider)
	if !ok {
		metrics.RecordIngestRejected(string(models.SourceBulkImport), "validation")
		return fmt.Errorf("Record error: unsupported provider %q", e.Provider)
	}

	rec, err := s.toRecord(e, p, models.SourceBulkImport)
	if err != nil {
		metrics.RecordIngestRejected(string(models.SourceBulkImport), "validation")
		return fmt.Errorf("Record error: %v", err)
	}

	if err := s.ledger.Upsert(context.WithoutCancel(ctx), []models.SpendRecord{rec}); err != nil {
		metrics.RecordIngestRejected(string(models.SourceBulkImport), "storage")
		return fmt.Errorf("Record error: %v", err)
	}

	return nil
}

// check enforces the struct tags on an entry. Blank text counts as missing.
func (s *Service) check(e Entry) error {
	e.Date = strings.TrimSpace(e.Date)
	e.ModelName = strings.TrimSpace(e.ModelName)
	err := s.validate.Struct(e)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Message: err.Error()}
	}

	var missing []string
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return missingFieldsError(missing)
	}

	fe := fieldErrs[0]
	return invalidFieldError(fe.Field(), "must not be negative")
}

// toRecord converts a checked entry into a spend record
func (s *Service) toRecord(e Entry, p models.Provider, source models.Source) (models.SpendRecord, error) {
	date, err := models.ParseDate(strings.TrimSpace(e.Date))
	if err != nil {
		return models.SpendRecord{}, invalidFieldError("date", "must be formatted YYYY-MM-DD")
	}

	if !e.CostUSD.Valid {
		return models.SpendRecord{}, invalidFieldError("cost_usd", fmt.Sprintf("must be a number, got %q", e.CostUSD.Raw))
	}
	if e.CostUSD.Value.IsNegative() {
		return models.SpendRecord{}, invalidFieldError("cost_usd", "must not be negative")
	}

	meta := models.Metadata{}
	if len(e.Metadata) > 0 && string(e.Metadata) != "null" {
		if err := json.Unmarshal(e.Metadata, &meta); err != nil {
			return models.SpendRecord{}, invalidFieldError("metadata", "must be a JSON object")
		}
	}
	// the source tag always reflects how the record arrived
	meta = meta.Merge(models.Metadata{"source": string(source)})

	rec := models.NewSpendRecord(p, strings.TrimSpace(e.ModelName), date, e.CostUSD.Value, models.Usage{
		InputTokens:  int64(e.InputTokens),
		OutputTokens: int64(e.OutputTokens),
		NumRequests:  int64(e.NumRequests),
	}).WithScope(e.ProjectID, e.APIKeyID, e.UserID)
	rec.Metadata = meta

	return rec, nil
}

// compact renders a record on one line for diagnostics
func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

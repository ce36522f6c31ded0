package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/huegott/ai-spend-dashboard/internal/metrics"
	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

const (
	// DefaultPageLimit is used when a listing does not ask for a page size
	DefaultPageLimit = 50
	// MaxPageLimit caps the page size of a listing
	MaxPageLimit = 1000

	topModelsLimit = 20
	trendDays      = 30
	costPrecision  = 6
)

const spendColumns = `id, provider, model_name, date, cost_usd, input_tokens, output_tokens,
	total_tokens, num_requests, project_id, api_key_id, user_id, metadata, created_at, updated_at`

// Numeric columns accumulate on conflict; metadata is replaced.
const upsertSpend = `
	INSERT INTO spend_data (provider, model_name, date, cost_usd, input_tokens, output_tokens,
		total_tokens, num_requests, project_id, api_key_id, user_id, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (provider, model_name, date, project_id, api_key_id, user_id) DO UPDATE SET
		cost_usd = spend_data.cost_usd + excluded.cost_usd,
		input_tokens = spend_data.input_tokens + excluded.input_tokens,
		output_tokens = spend_data.output_tokens + excluded.output_tokens,
		total_tokens = spend_data.total_tokens + excluded.total_tokens,
		num_requests = spend_data.num_requests + excluded.num_requests,
		metadata = excluded.metadata,
		updated_at = CURRENT_TIMESTAMP
`

// SpendStore handles ledger persistence
type SpendStore struct {
	db *DB
}

// NewSpendStore creates a new spend store
func NewSpendStore(db *DB) *SpendStore {
	return &SpendStore{db: db}
}

// Upsert merges records into the ledger in one transaction, in caller order.
// Either every record is applied or none is.
func (s *SpendStore) Upsert(ctx context.Context, records []models.SpendRecord) error {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.db.Rebind(upsertSpend))
		if err != nil {
			return &StorageError{Op: "upsert", Err: fmt.Errorf("failed to prepare upsert: %w", err)}
		}
		defer stmt.Close()

		for i := range records {
			r := &records[i]
			if err := validateRecord(r); err != nil {
				return &StorageError{Op: "upsert", Err: fmt.Errorf("record %d: %w", i, err)}
			}
			if _, err := stmt.ExecContext(ctx, upsertArgs(r)...); err != nil {
				return &StorageError{Op: "upsert", Err: fmt.Errorf("record %d (%s/%s/%s): %w",
					i, r.Provider, r.ModelName, r.Date, err)}
			}
		}
		return nil
	})
	metrics.RecordUpsert(time.Since(start), err != nil)

	return err
}

// UpsertOne merges a single record and returns the resulting ledger row
func (s *SpendStore) UpsertOne(ctx context.Context, record models.SpendRecord) (*models.SpendRecord, error) {
	if err := validateRecord(&record); err != nil {
		return nil, &StorageError{Op: "upsert", Err: err}
	}

	start := time.Now()
	var stored models.SpendRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.db.Rebind(upsertSpend+" RETURNING "+spendColumns), upsertArgs(&record)...)
		var err error
		stored, err = scanRecord(row)
		if err != nil {
			return &StorageError{Op: "upsert", Err: fmt.Errorf("record (%s/%s/%s): %w",
				record.Provider, record.ModelName, record.Date, err)}
		}
		return nil
	})
	metrics.RecordUpsert(time.Since(start), err != nil)
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

// Get returns a ledger row by id
func (s *SpendStore) Get(ctx context.Context, id int64) (*models.SpendRecord, error) {
	query := s.db.Rebind(`SELECT ` + spendColumns + ` FROM spend_data WHERE id = ?`)

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}

	return &r, nil
}

// List returns one page of ledger rows, newest first
func (s *SpendStore) List(ctx context.Context, q models.SpendQuery) (*models.SpendPage, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	where, args := buildWhere(q, true)

	var total int
	countQuery := s.db.Rebind(`SELECT COUNT(*) FROM spend_data WHERE ` + where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, &StorageError{Op: "list", Err: fmt.Errorf("failed to count spend rows: %w", err)}
	}

	query := s.db.Rebind(`
		SELECT ` + spendColumns + `
		FROM spend_data
		WHERE ` + where + `
		ORDER BY date DESC, created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: fmt.Errorf("failed to list spend rows: %w", err)}
	}
	defer rows.Close()

	data := []models.SpendRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		data = append(data, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	return &models.SpendPage{
		Data: data,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

// Summary aggregates spend for the dashboard. Only the date range and
// provider of the query are applied.
func (s *SpendStore) Summary(ctx context.Context, q models.SpendQuery) (*models.DashboardSummary, error) {
	where, args := buildWhere(q, false)
	summary := &models.DashboardSummary{
		SpendByProvider: []models.ProviderSpend{},
		SpendByModel:    []models.ModelSpend{},
		DailyTrend:      []models.DailySpend{},
	}

	var total decimal.NullDecimal
	totalQuery := s.db.Rebind(`SELECT SUM(cost_usd) FROM spend_data WHERE ` + where)
	if err := s.db.QueryRowContext(ctx, totalQuery, args...).Scan(&total); err != nil {
		return nil, &StorageError{Op: "summary", Err: fmt.Errorf("failed to total spend: %w", err)}
	}
	summary.TotalSpend = roundCost(total.Decimal)

	err := s.queryEach(ctx, `
		SELECT provider, COALESCE(SUM(cost_usd), 0) AS total_spend
		FROM spend_data
		WHERE `+where+`
		GROUP BY provider
		ORDER BY total_spend DESC
	`, args, func(rows *sql.Rows) error {
		var ps models.ProviderSpend
		if err := rows.Scan(&ps.Provider, &ps.TotalSpend); err != nil {
			return err
		}
		ps.TotalSpend = roundCost(ps.TotalSpend)
		summary.SpendByProvider = append(summary.SpendByProvider, ps)
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "summary", Err: fmt.Errorf("failed to group by provider: %w", err)}
	}

	err = s.queryEach(ctx, `
		SELECT provider, model_name, COALESCE(SUM(cost_usd), 0) AS total_spend,
			COALESCE(SUM(total_tokens), 0), COALESCE(SUM(num_requests), 0)
		FROM spend_data
		WHERE `+where+`
		GROUP BY provider, model_name
		ORDER BY total_spend DESC
		LIMIT ?
	`, append(args, topModelsLimit), func(rows *sql.Rows) error {
		var ms models.ModelSpend
		if err := rows.Scan(&ms.Provider, &ms.ModelName, &ms.TotalSpend, &ms.TotalTokens, &ms.TotalRequests); err != nil {
			return err
		}
		ms.TotalSpend = roundCost(ms.TotalSpend)
		summary.SpendByModel = append(summary.SpendByModel, ms)
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "summary", Err: fmt.Errorf("failed to group by model: %w", err)}
	}

	err = s.queryEach(ctx, `
		SELECT date, COALESCE(SUM(cost_usd), 0) AS daily_spend
		FROM spend_data
		WHERE `+where+`
		GROUP BY date
		ORDER BY date DESC
		LIMIT ?
	`, append(args, trendDays), func(rows *sql.Rows) error {
		var ds models.DailySpend
		if err := rows.Scan(&ds.Date, &ds.DailySpend); err != nil {
			return err
		}
		ds.DailySpend = roundCost(ds.DailySpend)
		summary.DailyTrend = append(summary.DailyTrend, ds)
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "summary", Err: fmt.Errorf("failed to build daily trend: %w", err)}
	}

	// chronological order for charting
	for i, j := 0, len(summary.DailyTrend)-1; i < j; i, j = i+1, j-1 {
		summary.DailyTrend[i], summary.DailyTrend[j] = summary.DailyTrend[j], summary.DailyTrend[i]
	}

	return summary, nil
}

// Status reports what the ledger holds per provider
func (s *SpendStore) Status(ctx context.Context) ([]models.ProviderStatus, error) {
	statuses := []models.ProviderStatus{}

	err := s.queryEach(ctx, `
		SELECT provider, COUNT(*), MAX(date), COALESCE(SUM(cost_usd), 0), MAX(updated_at)
		FROM spend_data
		GROUP BY provider
		ORDER BY provider
	`, nil, func(rows *sql.Rows) error {
		var (
			ps          models.ProviderStatus
			lastUpdated timestampValue
		)
		if err := rows.Scan(&ps.Provider, &ps.TotalRecords, &ps.LatestDate, &ps.TotalSpend, &lastUpdated); err != nil {
			return err
		}
		ps.TotalSpend = roundCost(ps.TotalSpend)
		ps.LastUpdated = lastUpdated.Time
		statuses = append(statuses, ps)
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "status", Err: err}
	}

	return statuses, nil
}

// Models lists the distinct provider/model pairs, optionally for one provider
func (s *SpendStore) Models(ctx context.Context, provider models.Provider) ([]models.ProviderModel, error) {
	where, args := buildWhere(models.SpendQuery{Provider: provider}, false)
	out := []models.ProviderModel{}

	err := s.queryEach(ctx, `
		SELECT DISTINCT provider, model_name
		FROM spend_data
		WHERE `+where+`
		ORDER BY provider, model_name
	`, args, func(rows *sql.Rows) error {
		var pm models.ProviderModel
		if err := rows.Scan(&pm.Provider, &pm.ModelName); err != nil {
			return err
		}
		out = append(out, pm)
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "models", Err: err}
	}

	return out, nil
}

// Projects lists the distinct OpenAI project ids
func (s *SpendStore) Projects(ctx context.Context) ([]string, error) {
	out, err := s.distinct(ctx, "project_id", models.ProviderOpenAI)
	if err != nil {
		return nil, &StorageError{Op: "projects", Err: err}
	}
	return out, nil
}

// APIKeys lists the distinct API key ids, optionally for one provider
func (s *SpendStore) APIKeys(ctx context.Context, provider models.Provider) ([]string, error) {
	out, err := s.distinct(ctx, "api_key_id", provider)
	if err != nil {
		return nil, &StorageError{Op: "api_keys", Err: err}
	}
	return out, nil
}

// distinct lists the non-sentinel values of a scope column
func (s *SpendStore) distinct(ctx context.Context, column string, provider models.Provider) ([]string, error) {
	where, args := buildWhere(models.SpendQuery{Provider: provider}, false)
	out := []string{}

	err := s.queryEach(ctx, `
		SELECT DISTINCT `+column+`
		FROM spend_data
		WHERE `+where+` AND `+column+` <> ''
		ORDER BY `+column,
		args, func(rows *sql.Rows) error {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})

	return out, err
}

func (s *SpendStore) queryEach(ctx context.Context, query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildWhere turns a query into a WHERE clause. Scope filters are applied
// only when withScope is set.
func buildWhere(q models.SpendQuery, withScope bool) (string, []any) {
	clauses := []string{"1=1"}
	var args []any

	if !q.StartDate.IsZero() {
		clauses = append(clauses, "date >= ?")
		args = append(args, q.StartDate)
	}
	if !q.EndDate.IsZero() {
		clauses = append(clauses, "date <= ?")
		args = append(args, q.EndDate)
	}
	if q.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, string(q.Provider))
	}

	if withScope {
		if q.Model != "" {
			clauses = append(clauses, "model_name = ?")
			args = append(args, q.Model)
		}
		if q.ProjectID != "" {
			clauses = append(clauses, "project_id = ?")
			args = append(args, q.ProjectID)
		}
		if q.APIKeyID != "" {
			clauses = append(clauses, "api_key_id = ?")
			args = append(args, q.APIKeyID)
		}
	}

	return strings.Join(clauses, " AND "), args
}

func validateRecord(r *models.SpendRecord) error {
	switch {
	case !r.Provider.Valid():
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidRecord, r.Provider)
	case strings.TrimSpace(r.ModelName) == "":
		return fmt.Errorf("%w: model_name is required", ErrInvalidRecord)
	case r.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidRecord)
	case r.CostUSD.IsNegative():
		return fmt.Errorf("%w: cost_usd must not be negative", ErrInvalidRecord)
	case r.InputTokens < 0 || r.OutputTokens < 0 || r.NumRequests < 0:
		return fmt.Errorf("%w: token and request counts must not be negative", ErrInvalidRecord)
	}
	return nil
}

func upsertArgs(r *models.SpendRecord) []any {
	meta := r.Metadata
	if meta == nil {
		meta = models.Metadata{}
	}

	return []any{
		string(r.Provider),
		r.ModelName,
		r.Date,
		r.CostUSD.Round(costPrecision),
		r.InputTokens,
		r.OutputTokens,
		// total is always derived so the stored row keeps total = input + output
		r.InputTokens + r.OutputTokens,
		r.NumRequests,
		models.StringValue(r.ProjectID),
		models.StringValue(r.APIKeyID),
		models.StringValue(r.UserID),
		meta,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.SpendRecord, error) {
	var (
		r                           models.SpendRecord
		projectID, apiKeyID, userID string
		createdAt, updatedAt        timestampValue
	)

	err := row.Scan(
		&r.ID,
		&r.Provider,
		&r.ModelName,
		&r.Date,
		&r.CostUSD,
		&r.InputTokens,
		&r.OutputTokens,
		&r.TotalTokens,
		&r.NumRequests,
		&projectID,
		&apiKeyID,
		&userID,
		&r.Metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return r, err
	}

	r = r.WithScope(projectID, apiKeyID, userID)
	r.CostUSD = roundCost(r.CostUSD)
	r.CreatedAt = createdAt.Time
	r.UpdatedAt = updatedAt.Time

	return r, nil
}

// roundCost strips float noise introduced by SQLite REAL arithmetic
func roundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(costPrecision)
}

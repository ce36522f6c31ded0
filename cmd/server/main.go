package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/huegott/ai-spend-dashboard/internal/api"
	"github.com/huegott/ai-spend-dashboard/internal/config"
	"github.com/huegott/ai-spend-dashboard/internal/logging"
	"github.com/huegott/ai-spend-dashboard/internal/normalize"
	"github.com/huegott/ai-spend-dashboard/internal/provider/openai"
	"github.com/huegott/ai-spend-dashboard/internal/service/ingest"
	"github.com/huegott/ai-spend-dashboard/internal/service/syncer"
	"github.com/huegott/ai-spend-dashboard/internal/storage"
	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize logging
	logger := logging.Setup(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	logger.Info("starting AI spend dashboard server",
		slog.String("version", version),
		slog.Int("port", cfg.Server.Port),
		slog.String("environment", cfg.Server.Environment))

	// Initialize database
	dsn := cfg.Database.Path
	if cfg.Database.Driver == string(storage.DialectPostgres) {
		dsn = cfg.Database.URL
	}
	db, err := storage.Open(storage.Options{
		Driver:          storage.Dialect(cfg.Database.Driver),
		DSN:             dsn,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := storage.NewSpendStore(db)

	// Initialize provider client
	oa := cfg.Providers.OpenAI
	openaiClient := openai.NewClient(
		openai.LoadAPIKey(oa.APIKeyFile, oa.APIKey),
		openai.WithBaseURL(oa.BaseURL),
		openai.WithTimeout(oa.Timeout),
		openai.WithRateLimit(rate.Limit(oa.RequestsPerSecond), oa.Burst),
		openai.WithMaxRateLimitRetries(oa.MaxRateLimitRetries),
		openai.WithLogger(logger),
	)
	if openaiClient.Configured() {
		logger.Info("initialized OpenAI provider", slog.String("base_url", oa.BaseURL))
	}

	rates, err := rateTable(cfg.Pricing)
	if err != nil {
		logger.Error("invalid pricing config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize services
	normalizer := normalize.New(
		normalize.WithRateTable(rates),
		normalize.WithLogger(logger))

	syncService := syncer.New(store, normalizer,
		syncer.WithSource(openaiClient),
		syncer.WithLogger(logger),
		syncer.WithDefaultWindowDays(cfg.Sync.WindowDays))

	ingestService := ingest.New(store, ingest.WithLogger(logger))

	var scheduled []models.Provider
	if openaiClient.Configured() {
		scheduled = append(scheduled, models.ProviderOpenAI)
	}
	scheduler := syncer.NewScheduler(syncService, scheduled, cfg.Sync.Interval,
		syncer.WithSchedulerLogger(logger),
		syncer.WithWindowDays(cfg.Sync.WindowDays))

	server := api.New(store, syncService, ingestService,
		api.WithLogger(logger),
		api.WithHost(cfg.Server.Host),
		api.WithPort(cfg.Server.Port),
		api.WithEnvironment(cfg.Server.Environment),
		api.WithDB(db),
		api.WithMaxBodySize(cfg.Server.MaxBodyBytes),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		api.WithAPIRateLimit(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow))

	server.SetReady(true)

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start sync scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Handle shutdown
	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")

		// Mark server as not ready to stop accepting new requests
		server.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		scheduler.Stop()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func rateTable(p config.PricingConfig) (normalize.RateTable, error) {
	def, err := normalize.ParseRates(p.InputPerToken, p.OutputPerToken)
	if err != nil {
		return normalize.RateTable{}, err
	}

	table := normalize.RateTable{Default: def, Models: make(map[string]normalize.Rates, len(p.Models))}
	for model, r := range p.Models {
		rates, err := normalize.ParseRates(r.InputPerToken, r.OutputPerToken)
		if err != nil {
			return normalize.RateTable{}, err
		}
		table.Models[model] = rates
	}
	return table, nil
}

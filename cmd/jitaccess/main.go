package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/jitaccess/jitaccess/internal/app"
	"github.com/jitaccess/jitaccess/internal/audit"
	"github.com/jitaccess/jitaccess/internal/catalog"
	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/eligibility"
	"github.com/jitaccess/jitaccess/internal/grants"
	"github.com/jitaccess/jitaccess/internal/observability"
	"github.com/jitaccess/jitaccess/internal/platform/cache"
	"github.com/jitaccess/jitaccess/internal/platform/db"
	"github.com/jitaccess/jitaccess/internal/reports"
	"github.com/jitaccess/jitaccess/internal/requests"
	"github.com/jitaccess/jitaccess/internal/teams"
	"github.com/jitaccess/jitaccess/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "jitaccess-api")

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	recorder := audit.NewRecorder(pool, logger)

	directoryRepo := directory.NewRepository(pool)
	directoryService := directory.NewService(directoryRepo, recorder)

	requestableCache := eligibility.NewCache(redisClient, cfg.RequestableCacheTTL, logger)
	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, recorder, requestableCache)
	eligibilityService := eligibility.NewService(catalogRepo, requestableCache)

	teamsRepo := teams.NewRepository(pool)
	teamsService := teams.NewService(teamsRepo, recorder, requestableCache)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	requestsRepo := requests.NewRepository(pool)
	requestsService := requests.NewService(requestsRepo, eligibilityService, recorder, jobsClient, logger)

	grantsRepo := grants.NewRepository(pool)
	grantsService := grants.NewService(grantsRepo, directoryRepo, eligibilityService, recorder, redisClient, logger)

	auditService := audit.NewService(pool)
	reportsService := reports.NewService(pool)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		DirectoryRepo:      directoryRepo,
		DirectoryHandler:   directory.NewHandler(logger, directoryService, validate),
		EligibilityHandler: eligibility.NewHandler(logger, eligibilityService),
		RequestsHandler:    requests.NewHandler(logger, requestsService, validate),
		GrantsHandler:      grants.NewHandler(logger, grantsService, validate),
		CatalogHandler:     catalog.NewHandler(logger, catalogService, validate),
		TeamsHandler:       teams.NewHandler(logger, teamsService, validate),
		AuditHandler:       audit.NewHandler(logger, auditService),
		ReportsHandler:     reports.NewHandler(logger, reportsService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

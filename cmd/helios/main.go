package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/helios-erp/helios-gl/internal/accounts"
	"github.com/helios-erp/helios-gl/internal/app"
	"github.com/helios-erp/helios-gl/internal/cashflow"
	"github.com/helios-erp/helios-gl/internal/closing"
	"github.com/helios-erp/helios-gl/internal/currency"
	"github.com/helios-erp/helios-gl/internal/ledger"
	"github.com/helios-erp/helios-gl/internal/observability"
	"github.com/helios-erp/helios-gl/internal/periods"
	"github.com/helios-erp/helios-gl/internal/platform/cache"
	"github.com/helios-erp/helios-gl/internal/platform/db"
	"github.com/helios-erp/helios-gl/internal/sequence"
	"github.com/helios-erp/helios-gl/internal/shared"
	"github.com/helios-erp/helios-gl/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Rate caching degrades to direct reads without Redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)

	sequenceRepo := sequence.NewRepository(pool)
	sequenceService := sequence.NewService(sequenceRepo, auditLogger)

	ledgerRepo := ledger.NewRepository(pool)
	entryNumbers := ledger.NewSequenceNumbers(sequenceService)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, entryNumbers)

	balances := ledger.NewBalanceAdapter(ledgerService, accountsService)
	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo, auditLogger, balances,
		periods.NewSubledgerBalances(pool), balances)
	// The posting gate and the period controller consume each other, so the
	// guard is installed after both services exist.
	ledgerService.WithPeriodGuard(ledger.NewPeriodGuardAdapter(periodsService))

	closingRepo := closing.NewRepository(pool)
	closingService := closing.NewService(closingRepo, auditLogger, accountsService,
		ledgerService, entryNumbers, periodsService)

	rateCache := currency.NewRateCache(redisClient, cfg.RateCacheTTL)
	currencyRepo := currency.NewRepository(pool)
	currencyService := currency.NewService(currencyRepo, auditLogger, rateCache,
		accountsService, ledgerService, entryNumbers, cfg.BaseCurrency)

	cashflowService := cashflow.NewService(ledgerService, accountsService,
		cashflow.DefaultCodeScheme(), cfg.BaseCurrency)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accountsService),
		SequenceHandler: sequence.NewHandler(logger, sequenceService),
		PeriodsHandler:  periods.NewHandler(logger, periodsService),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService),
		ClosingHandler:  closing.NewHandler(logger, closingService),
		CurrencyHandler: currency.NewHandler(logger, currencyService),
		CashflowHandler: cashflow.NewHandler(logger, cashflowService),
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

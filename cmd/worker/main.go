package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/helios-erp/helios-gl/internal/app"
	"github.com/helios-erp/helios-gl/internal/platform/db"
	"github.com/helios-erp/helios-gl/internal/sequence"
	"github.com/helios-erp/helios-gl/internal/shared"
	"github.com/helios-erp/helios-gl/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	auditLogger := shared.NewAuditLogger(pool)
	sequenceRepo := sequence.NewRepository(pool)
	sequenceService := sequence.NewService(sequenceRepo, auditLogger)

	integrityJob := jobs.NewIntegrityScanJob(pool, logger, nil)
	gapJob := jobs.NewSequenceGapScanJob(sequenceService, pool, logger, nil)
	revalJob := jobs.NewRevaluationReminderJob(pool, logger, nil)

	integrityTask, err := jobs.NewIntegrityScanTask(0)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	gapTask, err := jobs.NewGapScanTask(0, "")
	if err != nil {
		logger.Error("build gap task", slog.Any("error", err))
		os.Exit(1)
	}
	revalTask, err := jobs.NewRevaluationReminderTask(0, 30)
	if err != nil {
		logger.Error("build reval task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrityScan, Handler: integrityJob.Handle},
			{Type: jobs.TaskSequenceGapScan, Handler: gapJob.Handle},
			{Type: jobs.TaskRevaluationReminder, Handler: revalJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: gapTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * 1", Task: revalTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

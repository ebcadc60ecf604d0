package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/helios-erp/helios-gl/internal/jobs"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// RevaluationReminderJob flags foreign-currency positions that have not been
// revalued within the configured window. It only reminds; revaluation itself
// stays an explicit, audited operation.
type RevaluationReminderJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRevaluationReminderJob initialises the reminder handler.
func NewRevaluationReminderJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *RevaluationReminderJob {
	return &RevaluationReminderJob{Pool: pool, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the reminder scan.
func (j *RevaluationReminderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("reval reminder: handler not configured")
	}
	var payload RevaluationReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxAgeDays <= 0 {
		payload.MaxAgeDays = 30
	}

	tracker := j.metrics().Track(TaskRevaluationReminder)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	runID := uuid.NewString()
	logger := j.logger().With(slog.String("run_id", runID), slog.Int64("company_id", payload.CompanyID))
	start := j.now()
	cutoff := start.AddDate(0, 0, -payload.MaxAgeDays)

	rows, err := j.Pool.Query(ctx, `
SELECT company_id, account_id, currency, fcy_balance, last_revaluation_at
FROM fcy_balances
WHERE ABS(fcy_balance) > $1
  AND ($2 = 0 OR company_id = $2)
  AND (last_revaluation_at IS NULL OR last_revaluation_at < $3)
ORDER BY company_id, account_id, currency`,
		shared.CentEpsilon, payload.CompanyID, cutoff)
	if err != nil {
		resultErr = err
		logger.Error("reval reminder query", slog.Any("error", err))
		return resultErr
	}
	defer rows.Close()

	stale := 0
	for rows.Next() {
		var companyID, accountID int64
		var currency string
		var fcy float64
		var lastAt *time.Time
		if err := rows.Scan(&companyID, &accountID, &currency, &fcy, &lastAt); err != nil {
			resultErr = err
			return resultErr
		}
		stale++
		attrs := []any{
			slog.Int64("company_id", companyID),
			slog.Int64("account_id", accountID),
			slog.String("currency", currency),
			slog.Float64("fcy_balance", fcy),
		}
		if lastAt != nil {
			attrs = append(attrs, slog.Time("last_revaluation_at", *lastAt))
		}
		logger.Warn("fcy position overdue for revaluation", attrs...)
		j.metrics().AddFindings(TaskRevaluationReminder, "stale_position", companyID, 1)
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	logger.Info("completed revaluation reminder scan",
		slog.Int("stale_positions", stale),
		slog.Int("max_age_days", payload.MaxAgeDays),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *RevaluationReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRevaluationReminder))
	}
	return slog.Default().With(slog.String("job", TaskRevaluationReminder))
}

func (j *RevaluationReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RevaluationReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock().UTC()
	}
	return time.Now().UTC()
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/helios-erp/helios-gl/internal/jobs"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// IntegrityScanJob re-checks the double-entry invariant across posted
// entries. Balances are maintained transactionally, so any finding indicates
// out-of-band mutation and is logged for investigation rather than repaired.
type IntegrityScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Pool: pool, Logger: logger, Metrics: metrics}
}

type integrityFinding struct {
	CompanyID   int64
	EntryID     int64
	EntryNumber string
	Kind        string
	Detail      float64
}

// Handle executes the integrity scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	runID := uuid.NewString()
	logger := j.logger().With(slog.String("run_id", runID), slog.Int64("company_id", payload.CompanyID))
	logger.Info("starting ledger integrity scan")
	start := time.Now()

	findings, scanned, err := j.scan(ctx, payload.CompanyID)
	if err != nil {
		resultErr = err
		logger.Error("integrity scan failed", slog.Any("error", err))
		return resultErr
	}
	for _, f := range findings {
		logger.Warn("ledger integrity violation",
			slog.Int64("company_id", f.CompanyID),
			slog.Int64("entry_id", f.EntryID),
			slog.String("entry_number", f.EntryNumber),
			slog.String("kind", f.Kind),
			slog.Float64("delta", f.Detail),
		)
		j.metrics().AddFindings(TaskLedgerIntegrityScan, f.Kind, f.CompanyID, 1)
	}
	logger.Info("completed ledger integrity scan",
		slog.Int("entries", scanned),
		slog.Int("findings", len(findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *IntegrityScanJob) scan(ctx context.Context, companyID int64) ([]integrityFinding, int, error) {
	rows, err := j.Pool.Query(ctx, `
SELECT e.company_id, e.id, e.entry_number, e.total_debit, e.total_credit,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
WHERE e.status IN ('POSTED', 'REVERSED') AND ($1 = 0 OR e.company_id = $1)
GROUP BY e.company_id, e.id, e.entry_number, e.total_debit, e.total_credit
ORDER BY e.id`, companyID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var findings []integrityFinding
	scanned := 0
	for rows.Next() {
		var f integrityFinding
		var totalDebit, totalCredit, lineDebit, lineCredit float64
		if err := rows.Scan(&f.CompanyID, &f.EntryID, &f.EntryNumber, &totalDebit, &totalCredit, &lineDebit, &lineCredit); err != nil {
			return nil, 0, err
		}
		scanned++
		switch {
		case math.Abs(totalDebit-totalCredit) > shared.CentEpsilon:
			f.Kind = "unbalanced_entry"
			f.Detail = shared.Round2(totalDebit - totalCredit)
		case math.Abs(totalDebit-lineDebit) > shared.CentEpsilon || math.Abs(totalCredit-lineCredit) > shared.CentEpsilon:
			f.Kind = "total_line_mismatch"
			f.Detail = shared.Round2((totalDebit - lineDebit) + (totalCredit - lineCredit))
		default:
			continue
		}
		findings = append(findings, f)
	}
	return findings, scanned, rows.Err()
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrityScan))
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/helios-erp/helios-gl/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLedgerIntegrityScan verifies posted entries still satisfy the
	// double-entry invariant against their stored lines.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
	// TaskSequenceGapScan reports unexplained holes in document number ranges.
	TaskSequenceGapScan = "sequence:gap_scan"
	// TaskRevaluationReminder flags FCY positions that have gone too long
	// without a revaluation.
	TaskRevaluationReminder = "currency:reval_reminder"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityScanPayload scopes an integrity scan. CompanyID zero scans every
// company.
type IntegrityScanPayload struct {
	CompanyID int64 `json:"companyId"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(companyID int64) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityScanPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, data), nil
}

// GapScanPayload scopes a sequence gap scan.
type GapScanPayload struct {
	CompanyID    int64  `json:"companyId"`
	DocumentType string `json:"documentType,omitempty"`
}

// NewGapScanTask constructs an Asynq task.
func NewGapScanTask(companyID int64, docType string) (*asynq.Task, error) {
	data, err := json.Marshal(GapScanPayload{CompanyID: companyID, DocumentType: docType})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSequenceGapScan, data), nil
}

// RevaluationReminderPayload scopes the reminder scan. MaxAgeDays caps how
// long a position may sit unrevalued before it is flagged.
type RevaluationReminderPayload struct {
	CompanyID  int64 `json:"companyId"`
	MaxAgeDays int   `json:"maxAgeDays"`
}

// NewRevaluationReminderTask constructs an Asynq task.
func NewRevaluationReminderTask(companyID int64, maxAgeDays int) (*asynq.Task, error) {
	data, err := json.Marshal(RevaluationReminderPayload{CompanyID: companyID, MaxAgeDays: maxAgeDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRevaluationReminder, data), nil
}

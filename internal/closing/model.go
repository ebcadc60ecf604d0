package closing

import (
	"time"

	"github.com/helios-erp/helios-gl/internal/shared"
)

// Status tracks a year-end closing run.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusReversed   Status = "REVERSED"
)

// AccountClosing is a temporary account slated to be zeroed, with the signed
// balance it carried over the fiscal year.
type AccountClosing struct {
	AccountID int64   `json:"accountId"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Balance   float64 `json:"balance"`
}

// SnapshotLine is one row of the pre-closing trial balance.
type SnapshotLine struct {
	AccountID int64   `json:"accountId"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
}

// TrialBalanceSnapshot is captured at initiation so the closing run can be
// audited against the ledger state it was computed from.
type TrialBalanceSnapshot struct {
	AsOf        time.Time      `json:"asOf"`
	Lines       []SnapshotLine `json:"lines"`
	TotalDebit  float64        `json:"totalDebit"`
	TotalCredit float64        `json:"totalCredit"`
}

// IsBalanced reports whether the snapshot's sides agree to the cent.
func (s TrialBalanceSnapshot) IsBalanced() bool {
	return shared.AmountsEqual(s.TotalDebit, s.TotalCredit)
}

// YearEndClosing is the state of one fiscal year's close, unique per
// (company, fiscal year).
type YearEndClosing struct {
	ID                        int64                `json:"id"`
	CompanyID                 int64                `json:"companyId"`
	FiscalYear                string               `json:"fiscalYear"`
	StartDate                 time.Time            `json:"startDate"`
	EndDate                   time.Time            `json:"endDate"`
	RevenueClosings           []AccountClosing     `json:"revenueClosings"`
	ExpenseClosings           []AccountClosing     `json:"expenseClosings"`
	TotalRevenue              float64              `json:"totalRevenue"`
	TotalExpenses             float64              `json:"totalExpenses"`
	NetIncome                 float64              `json:"netIncome"`
	RetainedEarningsAccountID int64                `json:"retainedEarningsAccountId"`
	IncomeSummaryAccountID    int64                `json:"incomeSummaryAccountId"`
	ClosingJournalEntryIDs    []int64              `json:"closingJournalEntryIds"`
	Snapshot                  TrialBalanceSnapshot `json:"snapshot"`
	Status                    Status               `json:"status"`
	PeriodLocked              bool                 `json:"periodLocked"`
	InitiatedBy               int64                `json:"initiatedBy"`
	InitiatedAt               time.Time            `json:"initiatedAt"`
	ExecutedBy                *int64               `json:"executedBy,omitempty"`
	ExecutedAt                *time.Time           `json:"executedAt,omitempty"`
	CreatedAt                 time.Time            `json:"createdAt"`
	UpdatedAt                 time.Time            `json:"updatedAt"`
}

package periods

import "time"

// Status enumerates the period lifecycle. Transitions run strictly forward
// except for an explicit, reason-logged reopen.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusSoftClose Status = "SOFT_CLOSE"
	StatusHardClose Status = "HARD_CLOSE"
	StatusLocked    Status = "LOCKED"
)

var statusRank = map[Status]int{
	StatusOpen:      0,
	StatusSoftClose: 1,
	StatusHardClose: 2,
	StatusLocked:    3,
}

// Rank orders statuses along the lifecycle; unknown statuses rank lowest.
func (s Status) Rank() int {
	return statusRank[s]
}

// Valid reports whether the status is a known lifecycle stage.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Checklist carries the close-control booleans. Soft close needs the bank
// reconciliation and trial-balance review; hard close needs all of them.
type Checklist struct {
	BankReconciliationComplete   bool `json:"bankReconciliationComplete"`
	VendorReconciliationComplete bool `json:"vendorReconciliationComplete"`
	DepreciationPosted           bool `json:"depreciationPosted"`
	PayrollPosted                bool `json:"payrollPosted"`
	TrialBalanceReviewed         bool `json:"trialBalanceReviewed"`
}

// SoftCloseReady reports whether the soft-close gate is satisfied.
func (c Checklist) SoftCloseReady() bool {
	return c.BankReconciliationComplete && c.TrialBalanceReviewed
}

// HardCloseReady reports whether the full gate is satisfied.
func (c Checklist) HardCloseReady() bool {
	return c.BankReconciliationComplete &&
		c.VendorReconciliationComplete &&
		c.DepreciationPosted &&
		c.PayrollPosted &&
		c.TrialBalanceReviewed
}

// BalanceLine is one account row of a closing-balance snapshot.
type BalanceLine struct {
	AccountID int64   `json:"accountId"`
	Code      string  `json:"code"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
}

// ReconciliationResult records one subledger-versus-GL comparison.
type ReconciliationResult struct {
	Kind             string    `json:"kind"` // BANK or AP
	GLBalance        float64   `json:"glBalance"`
	SubledgerBalance float64   `json:"subledgerBalance"`
	Variance         float64   `json:"variance"`
	ComputedAt       time.Time `json:"computedAt"`
}

// Period is one calendar month of a company's fiscal year. Exactly one row
// covers any given date per company.
type Period struct {
	ID                    int64
	CompanyID             int64
	FiscalYear            string
	Month                 int
	Year                  int
	PeriodStart           time.Time
	PeriodEnd             time.Time
	Status                Status
	Checklist             Checklist
	ClosingBalances       []BalanceLine
	ReconciliationResults []ReconciliationResult
	SoftClosedBy          *int64
	SoftClosedAt          *time.Time
	HardClosedBy          *int64
	HardClosedAt          *time.Time
	LockedBy              *int64
	LockedAt              *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Covers reports whether the date falls inside the period.
func (p Period) Covers(date time.Time) bool {
	return !date.Before(p.PeriodStart) && !date.After(p.PeriodEnd)
}

// StatusSummary aggregates a fiscal year's period states.
type StatusSummary struct {
	FiscalYear string         `json:"fiscalYear"`
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"byStatus"`
}

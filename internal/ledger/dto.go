package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

var (
	ErrNotFound           = fmt.Errorf("ledger: journal entry not found: %w", httpx.ErrNotFound)
	ErrUnbalanced         = fmt.Errorf("ledger: entry debits and credits do not balance: %w", httpx.ErrValidation)
	ErrBothSides          = fmt.Errorf("ledger: line must carry exactly one of debit or credit: %w", httpx.ErrValidation)
	ErrTooFewLines        = fmt.Errorf("ledger: entry needs at least two lines: %w", httpx.ErrValidation)
	ErrAccountNotPostable = fmt.Errorf("ledger: account does not accept direct postings: %w", httpx.ErrPrecondition)
	ErrAccountInactive    = fmt.Errorf("ledger: account is not active: %w", httpx.ErrPrecondition)
	ErrNotReversible      = fmt.Errorf("ledger: only posted entries can be reversed: %w", httpx.ErrPrecondition)
	ErrOverrideForbidden  = fmt.Errorf("ledger: soft-close override needs a privileged role: %w", httpx.ErrForbidden)
)

// PostingLineInput is one leg of a posting request.
type PostingLineInput struct {
	AccountID   int64   `json:"accountId"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description"`
}

// PostingInput is the full posting request. AllowSoftClose lets privileged
// callers post into a soft-closed period.
type PostingInput struct {
	CompanyID      int64
	EntryDate      time.Time
	Memo           string
	Lines          []PostingLineInput
	ActorID        int64
	ActorRole      string
	AllowSoftClose bool
}

// Validate enforces the double-entry shape: two or more lines, one side per
// line, amounts at two decimal places, and equal totals.
func (in *PostingInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("ledger: company id required")
	}
	if in.EntryDate.IsZero() {
		return errors.New("ledger: entry date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var totalDebit, totalCredit float64
	for i := range in.Lines {
		l := &in.Lines[i]
		if l.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account: %w", i+1, httpx.ErrValidation)
		}
		if l.Debit < 0 || l.Credit < 0 {
			return fmt.Errorf("ledger: line %d carries a negative amount: %w", i+1, httpx.ErrValidation)
		}
		l.Debit = shared.Round2(l.Debit)
		l.Credit = shared.Round2(l.Credit)
		if (l.Debit > 0) == (l.Credit > 0) {
			return ErrBothSides
		}
		totalDebit += l.Debit
		totalCredit += l.Credit
	}
	if !shared.AmountsEqual(totalDebit, totalCredit) {
		return ErrUnbalanced
	}
	return nil
}

// Totals returns the rounded debit and credit sums of the input lines.
func (in PostingInput) Totals() (debit, credit float64) {
	for _, l := range in.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	return shared.Round2(debit), shared.Round2(credit)
}

// ReverseInput requests a compensating entry for a posted one.
type ReverseInput struct {
	CompanyID      int64
	EntryID        int64
	ReversalDate   time.Time
	Memo           string
	ActorID        int64
	ActorRole      string
	AllowSoftClose bool
}

// ListFilter narrows entry listings.
type ListFilter struct {
	CompanyID int64
	Status    EntryStatus
	From      time.Time
	To        time.Time
	AccountID int64
	Limit     int
}

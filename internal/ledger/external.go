package ledger

import (
	"context"
	"time"

	"github.com/helios-erp/helios-gl/internal/periods"
	"github.com/helios-erp/helios-gl/internal/sequence"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// JournalDocType is the document type journal entry numbers draw from.
const JournalDocType = "JE"

// SequenceNumbers backs EntryNumberPort with the document sequence allocator,
// keyed by the fiscal year the entry date falls in.
type SequenceNumbers struct {
	seq *sequence.Service
}

func NewSequenceNumbers(seq *sequence.Service) *SequenceNumbers {
	return &SequenceNumbers{seq: seq}
}

func (n *SequenceNumbers) NextEntryNumber(ctx context.Context, companyID int64, date time.Time, actorID int64) (string, error) {
	return n.seq.Next(ctx, companyID, JournalDocType, shared.FiscalYearForDate(date), actorID)
}

// PeriodGuardAdapter plugs the period controller into the posting path.
type PeriodGuardAdapter struct {
	periods *periods.Service
}

func NewPeriodGuardAdapter(p *periods.Service) *PeriodGuardAdapter {
	return &PeriodGuardAdapter{periods: p}
}

func (a *PeriodGuardAdapter) EnsureOpenForPosting(ctx context.Context, companyID int64, date time.Time, allowSoftClose bool) error {
	return a.periods.IsDateInOpenPeriod(ctx, companyID, date, allowSoftClose)
}

// BalanceAdapter serves the period controller's balance ports from the
// ledger: trial-balance snapshots at hard close and GL-side reconciliation
// sums by account category.
type BalanceAdapter struct {
	svc      *Service
	accounts CategoryAccounts
}

// CategoryAccounts resolves the accounts tagged with a category. The account
// registry implements it.
type CategoryAccounts interface {
	AccountIDsByCategory(ctx context.Context, companyID int64, category string) ([]int64, error)
}

func NewBalanceAdapter(svc *Service, accounts CategoryAccounts) *BalanceAdapter {
	return &BalanceAdapter{svc: svc, accounts: accounts}
}

func (a *BalanceAdapter) TrialBalance(ctx context.Context, companyID int64, asOf time.Time) ([]periods.BalanceLine, error) {
	rows, err := a.svc.TrialBalance(ctx, companyID, asOf)
	if err != nil {
		return nil, err
	}
	out := make([]periods.BalanceLine, 0, len(rows))
	for _, r := range rows {
		out = append(out, periods.BalanceLine{
			AccountID: r.AccountID,
			Code:      r.Code,
			Debit:     r.Debit,
			Credit:    r.Credit,
		})
	}
	return out, nil
}

func (a *BalanceAdapter) CategoryBalance(ctx context.Context, companyID int64, category string, asOf time.Time) (float64, error) {
	ids, err := a.accounts.AccountIDsByCategory(ctx, companyID, category)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, id := range ids {
		b, err := a.svc.BalanceAsOf(ctx, companyID, id, asOf)
		if err != nil {
			return 0, err
		}
		total += b
	}
	return shared.Round2(total), nil
}

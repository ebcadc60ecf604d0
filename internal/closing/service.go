package closing

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helios-erp/helios-gl/internal/accounts"
	"github.com/helios-erp/helios-gl/internal/ledger"
	"github.com/helios-erp/helios-gl/internal/periods"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// AccountsPort is the slice of the account registry the closing engine needs:
// locating the special equity accounts and creating Income Summary on demand.
type AccountsPort interface {
	FindByCategory(ctx context.Context, companyID int64, cat accounts.Category, namePattern string) (accounts.Account, error)
	Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error)
}

// LedgerPort covers fiscal-year aggregation and transactional posting.
type LedgerPort interface {
	PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.AccountActivity, error)
	TrialBalance(ctx context.Context, companyID int64, asOf time.Time) ([]ledger.TrialBalanceRow, error)
	PostTx(ctx context.Context, tx ledger.TxRepository, in ledger.PostingInput, number string) (ledger.JournalEntry, error)
}

// PeriodsPort locks the fiscal year's monthly periods alongside the closing
// run, so the two lock flags cannot drift apart.
type PeriodsPort interface {
	List(ctx context.Context, companyID int64, fiscalYear string) ([]periods.Period, error)
	Lock(ctx context.Context, in periods.TransitionInput) (periods.Period, error)
}

// Service orchestrates the year-end close: aggregate, draft, execute, lock.
type Service struct {
	repo     Repository
	audit    shared.AuditPort
	accounts AccountsPort
	ledger   LedgerPort
	numbers  ledger.EntryNumberPort
	periods  PeriodsPort
	now      func() time.Time
}

func NewService(repo Repository, audit shared.AuditPort, acc AccountsPort, led LedgerPort, numbers ledger.EntryNumberPort, per PeriodsPort) *Service {
	return &Service{repo: repo, audit: audit, accounts: acc, ledger: led, numbers: numbers, periods: per, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, companyID int64) ([]YearEndClosing, error) {
	return s.repo.List(ctx, companyID)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (YearEndClosing, error) {
	return s.repo.Get(ctx, companyID, id)
}

// ByFiscalYear returns the closing run of one fiscal year, if any.
func (s *Service) ByFiscalYear(ctx context.Context, companyID int64, fiscalYear string) (YearEndClosing, error) {
	return s.repo.GetByFiscalYear(ctx, companyID, fiscalYear)
}

// Initiate aggregates fiscal-year revenue and expense activity into a DRAFT
// closing run with a trial-balance snapshot. Accounts whose activity nets
// below a cent are left out.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (YearEndClosing, error) {
	start, end, err := shared.FiscalYearBounds(in.FiscalYear)
	if err != nil {
		return YearEndClosing{}, err
	}
	if _, err := s.repo.GetByFiscalYear(ctx, in.CompanyID, in.FiscalYear); err == nil {
		return YearEndClosing{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return YearEndClosing{}, err
	}

	retained, err := s.accounts.FindByCategory(ctx, in.CompanyID, accounts.CategoryRetainedEarnings, "Retained Earnings")
	if err != nil {
		return YearEndClosing{}, err
	}

	activity, err := s.ledger.PeriodActivity(ctx, in.CompanyID, start, end)
	if err != nil {
		return YearEndClosing{}, err
	}
	c := YearEndClosing{
		CompanyID:                 in.CompanyID,
		FiscalYear:                in.FiscalYear,
		StartDate:                 start,
		EndDate:                   end,
		RetainedEarningsAccountID: retained.ID,
		Status:                    StatusDraft,
		InitiatedBy:               in.ActorID,
		InitiatedAt:               s.now(),
	}
	for _, a := range activity {
		if math.Abs(a.Signed) <= shared.CentEpsilon {
			continue
		}
		closing := AccountClosing{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Balance: shared.Round2(a.Signed)}
		switch a.Type {
		case string(accounts.AccountTypeRevenue):
			c.RevenueClosings = append(c.RevenueClosings, closing)
			c.TotalRevenue += closing.Balance
		case string(accounts.AccountTypeExpense):
			c.ExpenseClosings = append(c.ExpenseClosings, closing)
			c.TotalExpenses += closing.Balance
		}
	}
	c.TotalRevenue = shared.Round2(c.TotalRevenue)
	c.TotalExpenses = shared.Round2(c.TotalExpenses)
	c.NetIncome = shared.Round2(c.TotalRevenue - c.TotalExpenses)

	snapshot, err := s.ledger.TrialBalance(ctx, in.CompanyID, end)
	if err != nil {
		return YearEndClosing{}, err
	}
	c.Snapshot = toSnapshot(snapshot, end)
	if !c.Snapshot.IsBalanced() {
		return YearEndClosing{}, ErrUnbalancedBooks
	}

	created, err := s.repo.Insert(ctx, c)
	if err != nil {
		return YearEndClosing{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "closing.initiated", created.ID, shared.AuditSeverityInfo, map[string]any{
		"fiscal_year": in.FiscalYear, "net_income": c.NetIncome,
	})
	return created, nil
}

// Execute posts the closing sequence of a DRAFT run in one transaction:
// revenue into Income Summary, Income Summary into expenses, and the net
// into Retained Earnings, direction chosen by the sign of net income.
// Active budgets of the fiscal year are deactivated in the same transaction.
func (s *Service) Execute(ctx context.Context, in ExecuteInput) (YearEndClosing, error) {
	c, err := s.repo.Get(ctx, in.CompanyID, in.ClosingID)
	if err != nil {
		return YearEndClosing{}, err
	}
	if c.Status != StatusDraft {
		return YearEndClosing{}, ErrWrongStatus
	}
	// Every monthly period of the year must already be hard closed, so the
	// balances the closing entries sweep can no longer move underneath it.
	if s.periods != nil {
		items, err := s.periods.List(ctx, in.CompanyID, c.FiscalYear)
		if err != nil {
			return YearEndClosing{}, err
		}
		for _, p := range items {
			if p.Status != periods.StatusHardClose && p.Status != periods.StatusLocked {
				return YearEndClosing{}, ErrPeriodsNotClosed
			}
		}
	}

	summary, err := s.incomeSummaryAccount(ctx, in.CompanyID, in.ActorID)
	if err != nil {
		return YearEndClosing{}, err
	}
	c.IncomeSummaryAccountID = summary.ID

	entries := s.buildEntries(c, in)
	numbers := make([]string, len(entries))
	for i := range entries {
		numbers[i], err = s.numbers.NextEntryNumber(ctx, in.CompanyID, c.EndDate, in.ActorID)
		if err != nil {
			return YearEndClosing{}, err
		}
	}

	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ltx := ledger.NewTxRepository(tx)
		for i, input := range entries {
			entry, err := s.ledger.PostTx(ctx, ltx, input, numbers[i])
			if err != nil {
				return err
			}
			c.ClosingJournalEntryIDs = append(c.ClosingJournalEntryIDs, entry.ID)
		}
		c.Status = StatusCompleted
		c.ExecutedBy = &in.ActorID
		c.ExecutedAt = &now
		if err := s.repo.UpdateExecutedTx(ctx, tx, c); err != nil {
			return err
		}
		_, err := s.repo.DeactivateBudgetsTx(ctx, tx, in.CompanyID, c.FiscalYear)
		return err
	})
	if err != nil {
		return YearEndClosing{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "closing.executed", c.ID, shared.AuditSeverityInfo, map[string]any{
		"fiscal_year": c.FiscalYear, "entries": len(c.ClosingJournalEntryIDs),
	})
	return c, nil
}

// Lock finalizes a COMPLETED run. It requires every monthly period of the
// fiscal year to already be hard closed (or locked), then locks them all.
func (s *Service) Lock(ctx context.Context, in LockInput) (YearEndClosing, error) {
	if !shared.Role(in.ActorRole).Privileged() {
		return YearEndClosing{}, ErrForbidden
	}
	c, err := s.repo.Get(ctx, in.CompanyID, in.ClosingID)
	if err != nil {
		return YearEndClosing{}, err
	}
	if c.Status != StatusCompleted {
		return YearEndClosing{}, ErrNotCompleted
	}
	if s.periods != nil {
		items, err := s.periods.List(ctx, in.CompanyID, c.FiscalYear)
		if err != nil {
			return YearEndClosing{}, err
		}
		for _, p := range items {
			if p.Status != periods.StatusHardClose && p.Status != periods.StatusLocked {
				return YearEndClosing{}, ErrPeriodsNotClosed
			}
		}
		for _, p := range items {
			if p.Status != periods.StatusHardClose {
				continue
			}
			if _, err := s.periods.Lock(ctx, periods.TransitionInput{
				CompanyID: in.CompanyID, PeriodID: p.ID, ActorID: in.ActorID, ActorRole: in.ActorRole,
			}); err != nil {
				return YearEndClosing{}, err
			}
		}
	}
	if err := s.repo.SetPeriodLocked(ctx, in.CompanyID, c.ID); err != nil {
		return YearEndClosing{}, err
	}
	c.PeriodLocked = true
	s.record(ctx, in.ActorID, in.CompanyID, "closing.locked", c.ID, shared.AuditSeverityCritical, map[string]any{
		"fiscal_year": c.FiscalYear,
	})
	return c, nil
}

// buildEntries assembles the closing entries that carry lines. A temporary
// account that drifted to the wrong side of zero is closed from the side it
// actually sits on.
func (s *Service) buildEntries(c YearEndClosing, in ExecuteInput) []ledger.PostingInput {
	base := ledger.PostingInput{
		CompanyID: c.CompanyID,
		EntryDate: c.EndDate,
		ActorID:   in.ActorID,
		ActorRole: in.ActorRole,
	}
	var entries []ledger.PostingInput

	if len(c.RevenueClosings) > 0 {
		revenue := base
		revenue.Memo = "Close revenue to Income Summary " + c.FiscalYear
		for _, rc := range c.RevenueClosings {
			revenue.Lines = append(revenue.Lines, closeLine(rc, true))
		}
		revenue.Lines = append(revenue.Lines, sideLine(c.IncomeSummaryAccountID, c.TotalRevenue, false))
		entries = append(entries, revenue)
	}
	if len(c.ExpenseClosings) > 0 {
		expense := base
		expense.Memo = "Close expenses to Income Summary " + c.FiscalYear
		expense.Lines = append(expense.Lines, sideLine(c.IncomeSummaryAccountID, c.TotalExpenses, true))
		for _, ec := range c.ExpenseClosings {
			expense.Lines = append(expense.Lines, closeLine(ec, false))
		}
		entries = append(entries, expense)
	}
	if math.Abs(c.NetIncome) > shared.CentEpsilon {
		net := base
		net.Memo = "Transfer net income to Retained Earnings " + c.FiscalYear
		if c.NetIncome > 0 {
			net.Lines = []ledger.PostingLineInput{
				{AccountID: c.IncomeSummaryAccountID, Debit: c.NetIncome},
				{AccountID: c.RetainedEarningsAccountID, Credit: c.NetIncome},
			}
		} else {
			loss := -c.NetIncome
			net.Lines = []ledger.PostingLineInput{
				{AccountID: c.RetainedEarningsAccountID, Debit: loss},
				{AccountID: c.IncomeSummaryAccountID, Credit: loss},
			}
		}
		entries = append(entries, net)
	}
	return entries
}

// closeLine zeroes one temporary account: revenue balances are debited away,
// expense balances credited away, flipped when the balance is negative.
func closeLine(ac AccountClosing, revenue bool) ledger.PostingLineInput {
	amount := ac.Balance
	debit := revenue
	if amount < 0 {
		amount = -amount
		debit = !debit
	}
	l := ledger.PostingLineInput{AccountID: ac.AccountID, Description: "Close " + ac.Code + " " + ac.Name}
	if debit {
		l.Debit = amount
	} else {
		l.Credit = amount
	}
	return l
}

func sideLine(accountID int64, amount float64, debit bool) ledger.PostingLineInput {
	if amount < 0 {
		amount = -amount
		debit = !debit
	}
	l := ledger.PostingLineInput{AccountID: accountID}
	if debit {
		l.Debit = shared.Round2(amount)
	} else {
		l.Credit = shared.Round2(amount)
	}
	return l
}

// incomeSummaryAccount finds the Income Summary account, creating it the
// first time a company executes a close.
func (s *Service) incomeSummaryAccount(ctx context.Context, companyID, actorID int64) (accounts.Account, error) {
	summary, err := s.accounts.FindByCategory(ctx, companyID, accounts.CategoryIncomeSummary, "Income Summary")
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, accounts.ErrNoMatch) {
		return accounts.Account{}, err
	}
	return s.accounts.Create(ctx, accounts.CreateInput{
		CompanyID:  companyID,
		Code:       "3999",
		Name:       "Income Summary",
		Type:       accounts.AccountTypeEquity,
		Category:   accounts.CategoryIncomeSummary,
		IsPostable: true,
		ActorID:    actorID,
	})
}

func toSnapshot(rows []ledger.TrialBalanceRow, asOf time.Time) TrialBalanceSnapshot {
	snap := TrialBalanceSnapshot{AsOf: asOf, Lines: make([]SnapshotLine, 0, len(rows))}
	for _, r := range rows {
		snap.Lines = append(snap.Lines, SnapshotLine{AccountID: r.AccountID, Code: r.Code, Name: r.Name, Debit: r.Debit, Credit: r.Credit})
		snap.TotalDebit += r.Debit
		snap.TotalCredit += r.Credit
	}
	snap.TotalDebit = shared.Round2(snap.TotalDebit)
	snap.TotalCredit = shared.Round2(snap.TotalCredit)
	return snap
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, sev shared.AuditSeverity, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "year_end_closing",
		EntityID:  strconv.FormatInt(entityID, 10),
		Severity:  sev,
		Meta:      meta,
		At:        s.now(),
	})
}

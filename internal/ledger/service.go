package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/helios-erp/helios-gl/internal/shared"
)

// PeriodGuard gates postings by accounting-period status. The period
// controller implements it; the interface breaks the import cycle.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, companyID int64, date time.Time, allowSoftClose bool) error
}

// EntryNumberPort hands out the next gap-free journal entry number.
type EntryNumberPort interface {
	NextEntryNumber(ctx context.Context, companyID int64, date time.Time, actorID int64) (string, error)
}

// Service owns posting and reversal. Entries are immutable once posted.
type Service struct {
	repo    Repository
	audit   shared.AuditPort
	numbers EntryNumberPort
	guard   PeriodGuard
	now     func() time.Time
}

func NewService(repo Repository, audit shared.AuditPort, numbers EntryNumberPort) *Service {
	return &Service{repo: repo, audit: audit, numbers: numbers, now: time.Now}
}

// WithPeriodGuard installs the posting gate. Wired after construction because
// the period controller in turn consumes this service's balances.
func (s *Service) WithPeriodGuard(guard PeriodGuard) {
	s.guard = guard
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]JournalEntry, error) {
	return s.repo.List(ctx, f)
}

// Post validates the double-entry invariant and writes the entry, its lines,
// and the per-account balance adjustments in one transaction.
func (s *Service) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if in.AllowSoftClose && !shared.Role(in.ActorRole).Privileged() {
		return JournalEntry{}, ErrOverrideForbidden
	}
	if s.guard != nil {
		if err := s.guard.EnsureOpenForPosting(ctx, in.CompanyID, in.EntryDate, in.AllowSoftClose); err != nil {
			return JournalEntry{}, err
		}
	}
	number, err := s.numbers.NextEntryNumber(ctx, in.CompanyID, in.EntryDate, in.ActorID)
	if err != nil {
		return JournalEntry{}, err
	}

	totalDebit, totalCredit := in.Totals()
	now := s.now()
	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := s.checkAccounts(ctx, tx, in.CompanyID, in.Lines)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			CompanyID:   in.CompanyID,
			EntryNumber: number,
			EntryDate:   in.EntryDate,
			Memo:        in.Memo,
			Status:      StatusPosted,
			TotalDebit:  totalDebit,
			TotalCredit: totalCredit,
			PostedBy:    in.ActorID,
			PostedAt:    now,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}
		if err := s.applyBalances(ctx, tx, in.CompanyID, in.Lines, accounts); err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = toLines(entry.ID, in.Lines)
	s.record(ctx, in.ActorID, in.CompanyID, "journal.posted", entry.ID, shared.AuditSeverityInfo, map[string]any{
		"entry_number": entry.EntryNumber, "total": totalDebit,
	})
	return entry, nil
}

// PostTx writes a validated entry, its lines, and its balance adjustments on
// the caller's transaction. Period gating and the entry number are the
// caller's responsibility; the closing engine uses this to keep its whole
// execution atomic.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, in PostingInput, number string) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	accounts, err := s.checkAccounts(ctx, tx, in.CompanyID, in.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	totalDebit, totalCredit := in.Totals()
	entry, err := tx.InsertEntry(ctx, JournalEntry{
		CompanyID:   in.CompanyID,
		EntryNumber: number,
		EntryDate:   in.EntryDate,
		Memo:        in.Memo,
		Status:      StatusPosted,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		PostedBy:    in.ActorID,
		PostedAt:    s.now(),
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, in.Lines); err != nil {
		return JournalEntry{}, err
	}
	if err := s.applyBalances(ctx, tx, in.CompanyID, in.Lines, accounts); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = toLines(entry.ID, in.Lines)
	return entry, nil
}

// Reverse posts a compensating entry with swapped sides at the reversal date
// and marks the original REVERSED. The original is never edited.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, ErrNotFound
	}
	date := in.ReversalDate
	if date.IsZero() {
		date = s.now()
	}
	if in.AllowSoftClose && !shared.Role(in.ActorRole).Privileged() {
		return JournalEntry{}, ErrOverrideForbidden
	}
	if s.guard != nil {
		if err := s.guard.EnsureOpenForPosting(ctx, in.CompanyID, date, in.AllowSoftClose); err != nil {
			return JournalEntry{}, err
		}
	}
	number, err := s.numbers.NextEntryNumber(ctx, in.CompanyID, date, in.ActorID)
	if err != nil {
		return JournalEntry{}, err
	}

	now := s.now()
	var reversal JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.CompanyID, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return ErrNotReversible
		}
		originalLines, err := tx.GetLines(ctx, original.ID)
		if err != nil {
			return err
		}
		swapped := make([]PostingLineInput, 0, len(originalLines))
		for _, l := range originalLines {
			swapped = append(swapped, PostingLineInput{
				AccountID:   l.AccountID,
				Debit:       l.Credit,
				Credit:      l.Debit,
				Description: l.Description,
			})
		}
		accounts, err := s.checkAccounts(ctx, tx, in.CompanyID, swapped)
		if err != nil {
			return err
		}
		memo := in.Memo
		if memo == "" {
			memo = "Reversal of JE " + original.EntryNumber
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			CompanyID:   in.CompanyID,
			EntryNumber: number,
			EntryDate:   date,
			Memo:        memo,
			Status:      StatusPosted,
			TotalDebit:  original.TotalCredit,
			TotalCredit: original.TotalDebit,
			ReversalOf:  &original.ID,
			PostedBy:    in.ActorID,
			PostedAt:    now,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, swapped); err != nil {
			return err
		}
		if err := s.applyBalances(ctx, tx, in.CompanyID, swapped, accounts); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, in.CompanyID, original.ID, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toLines(inserted.ID, swapped)
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "journal.reversed", in.EntryID, shared.AuditSeverityInfo, map[string]any{
		"reversal_id": reversal.ID, "reversal_number": reversal.EntryNumber,
	})
	return reversal, nil
}

// EntriesWithLines exposes the booked entries of a window with their lines,
// the raw material for derived reports.
func (s *Service) EntriesWithLines(ctx context.Context, companyID int64, from, to time.Time) ([]JournalEntry, error) {
	return s.repo.EntriesWithLines(ctx, companyID, from, to)
}

// BalanceAsOf reports the signed balance an account carried at a past date.
func (s *Service) BalanceAsOf(ctx context.Context, companyID, accountID int64, asOf time.Time) (float64, error) {
	b, err := s.repo.BalanceAsOf(ctx, companyID, accountID, asOf)
	if err != nil {
		return 0, err
	}
	return shared.Round2(b), nil
}

// PeriodActivity aggregates posted movement per account over a date window.
func (s *Service) PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]AccountActivity, error) {
	return s.repo.PeriodActivity(ctx, companyID, from, to)
}

// TrialBalanceRow presents an account's cumulative position on one side.
type TrialBalanceRow struct {
	AccountID int64   `json:"accountId"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
}

// TrialBalance lists cumulative balances through asOf, each shown on the side
// it naturally falls on. Accounts that net to zero are skipped.
func (s *Service) TrialBalance(ctx context.Context, companyID int64, asOf time.Time) ([]TrialBalanceRow, error) {
	activity, err := s.repo.PeriodActivity(ctx, companyID, time.Time{}, asOf)
	if err != nil {
		return nil, err
	}
	rows := make([]TrialBalanceRow, 0, len(activity))
	for _, a := range activity {
		net := shared.Round2(a.Debit - a.Credit)
		if shared.AmountsEqual(net, 0) {
			continue
		}
		row := TrialBalanceRow{AccountID: a.AccountID, Code: a.Code, Name: a.Name, Type: a.Type}
		if net > 0 {
			row.Debit = net
		} else {
			row.Credit = -net
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, companyID int64, lines []PostingLineInput) (map[int64]postingAccount, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			ids = append(ids, l.AccountID)
		}
	}
	accounts, err := tx.GetPostingAccounts(ctx, companyID, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		a, ok := accounts[id]
		if !ok {
			return nil, fmt.Errorf("ledger: account %d: %w", id, ErrNotFound)
		}
		if !a.IsPostable {
			return nil, fmt.Errorf("ledger: account %s: %w", a.Code, ErrAccountNotPostable)
		}
		if a.Lifecycle != "ACTIVE" {
			return nil, fmt.Errorf("ledger: account %s: %w", a.Code, ErrAccountInactive)
		}
	}
	return accounts, nil
}

// applyBalances moves each account in its natural direction: normal-debit
// accounts grow by debit minus credit, normal-credit by credit minus debit.
func (s *Service) applyBalances(ctx context.Context, tx TxRepository, companyID int64, lines []PostingLineInput, accounts map[int64]postingAccount) error {
	deltas := make(map[int64]float64, len(accounts))
	for _, l := range lines {
		if accounts[l.AccountID].NormalBalance == "DEBIT" {
			deltas[l.AccountID] += l.Debit - l.Credit
		} else {
			deltas[l.AccountID] += l.Credit - l.Debit
		}
	}
	for id, delta := range deltas {
		if err := tx.AdjustAccountBalance(ctx, companyID, id, shared.Round2(delta)); err != nil {
			return err
		}
	}
	return nil
}

func toLines(entryID int64, in []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(in))
	for _, l := range in {
		out = append(out, JournalLine{EntryID: entryID, AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Description: l.Description})
	}
	return out
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, sev shared.AuditSeverity, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  strconv.FormatInt(entityID, 10),
		Severity:  sev,
		Meta:      meta,
		At:        s.now(),
	})
}

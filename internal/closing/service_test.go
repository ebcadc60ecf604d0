package closing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-erp/helios-gl/internal/accounts"
	"github.com/helios-erp/helios-gl/internal/ledger"
	"github.com/helios-erp/helios-gl/internal/periods"
)

type stubRepo struct {
	closings map[int64]YearEndClosing
	budgets  int64
	nextID   int64
	beforeTx func()
}

func newStubRepo() *stubRepo {
	return &stubRepo{closings: map[int64]YearEndClosing{}, nextID: 1}
}

func (r *stubRepo) List(ctx context.Context, companyID int64) ([]YearEndClosing, error) {
	var out []YearEndClosing
	for _, c := range r.closings {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *stubRepo) Get(ctx context.Context, companyID, id int64) (YearEndClosing, error) {
	c, ok := r.closings[id]
	if !ok || c.CompanyID != companyID {
		return YearEndClosing{}, ErrNotFound
	}
	return c, nil
}

func (r *stubRepo) GetByFiscalYear(ctx context.Context, companyID int64, fy string) (YearEndClosing, error) {
	for _, c := range r.closings {
		if c.CompanyID == companyID && c.FiscalYear == fy {
			return c, nil
		}
	}
	return YearEndClosing{}, ErrNotFound
}

func (r *stubRepo) Insert(ctx context.Context, c YearEndClosing) (YearEndClosing, error) {
	for _, existing := range r.closings {
		if existing.CompanyID == c.CompanyID && existing.FiscalYear == c.FiscalYear {
			return YearEndClosing{}, ErrAlreadyExists
		}
	}
	c.ID = r.nextID
	r.nextID++
	r.closings[c.ID] = c
	return c, nil
}

func (r *stubRepo) SetPeriodLocked(ctx context.Context, companyID, id int64) error {
	c, ok := r.closings[id]
	if !ok {
		return ErrNotFound
	}
	c.PeriodLocked = true
	r.closings[id] = c
	return nil
}

func (r *stubRepo) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if r.beforeTx != nil {
		r.beforeTx()
	}
	return fn(ctx, nil)
}

func (r *stubRepo) UpdateExecutedTx(ctx context.Context, tx pgx.Tx, c YearEndClosing) error {
	stored, ok := r.closings[c.ID]
	if !ok {
		return ErrNotFound
	}
	// mirrors the DRAFT predicate on the UPDATE
	if stored.Status != StatusDraft {
		return ErrWrongStatus
	}
	r.closings[c.ID] = c
	return nil
}

func (r *stubRepo) DeactivateBudgetsTx(ctx context.Context, tx pgx.Tx, companyID int64, fy string) (int64, error) {
	deactivated := r.budgets
	r.budgets = 0
	return deactivated, nil
}

type stubAccounts struct {
	byCategory map[accounts.Category]accounts.Account
	created    []accounts.CreateInput
}

func (s *stubAccounts) FindByCategory(ctx context.Context, companyID int64, cat accounts.Category, namePattern string) (accounts.Account, error) {
	a, ok := s.byCategory[cat]
	if !ok {
		return accounts.Account{}, accounts.ErrNoMatch
	}
	return a, nil
}

func (s *stubAccounts) Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error) {
	s.created = append(s.created, in)
	a := accounts.Account{ID: int64(900 + len(s.created)), Code: in.Code, Name: in.Name, Category: in.Category}
	s.byCategory[in.Category] = a
	return a, nil
}

type stubLedger struct {
	activity []ledger.AccountActivity
	tb       []ledger.TrialBalanceRow
	posted   []ledger.PostingInput
	numbers  []string
	nextID   int64
}

func (s *stubLedger) PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.AccountActivity, error) {
	return s.activity, nil
}

func (s *stubLedger) TrialBalance(ctx context.Context, companyID int64, asOf time.Time) ([]ledger.TrialBalanceRow, error) {
	return s.tb, nil
}

func (s *stubLedger) PostTx(ctx context.Context, tx ledger.TxRepository, in ledger.PostingInput, number string) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	s.posted = append(s.posted, in)
	s.numbers = append(s.numbers, number)
	s.nextID++
	debit, credit := in.Totals()
	return ledger.JournalEntry{ID: s.nextID, EntryNumber: number, TotalDebit: debit, TotalCredit: credit}, nil
}

type stubNumbers struct{ n int }

func (s *stubNumbers) NextEntryNumber(ctx context.Context, companyID int64, date time.Time, actorID int64) (string, error) {
	s.n++
	return fmt.Sprintf("JE-2024-2025-%04d", s.n), nil
}

type stubPeriods struct {
	items  []periods.Period
	locked []int64
}

func (s *stubPeriods) List(ctx context.Context, companyID int64, fy string) ([]periods.Period, error) {
	return s.items, nil
}

func (s *stubPeriods) Lock(ctx context.Context, in periods.TransitionInput) (periods.Period, error) {
	s.locked = append(s.locked, in.PeriodID)
	for i := range s.items {
		if s.items[i].ID == in.PeriodID {
			s.items[i].Status = periods.StatusLocked
			return s.items[i], nil
		}
	}
	return periods.Period{}, periods.ErrNotFound
}

func fixtureAccounts() *stubAccounts {
	return &stubAccounts{byCategory: map[accounts.Category]accounts.Account{
		accounts.CategoryRetainedEarnings: {ID: 50, Code: "3900", Name: "Retained Earnings"},
	}}
}

func fixtureLedger() *stubLedger {
	return &stubLedger{
		activity: []ledger.AccountActivity{
			{AccountID: 1, Code: "4000", Name: "Sales", Type: "REVENUE", NormalBalance: "CREDIT", Credit: 500000, Signed: 500000},
			{AccountID: 2, Code: "6000", Name: "Salaries", Type: "EXPENSE", NormalBalance: "DEBIT", Debit: 300000, Signed: 300000},
			{AccountID: 3, Code: "1010", Name: "Cash", Type: "ASSET", NormalBalance: "DEBIT", Debit: 200000, Signed: 200000},
			{AccountID: 4, Code: "4100", Name: "Rebates", Type: "REVENUE", NormalBalance: "CREDIT", Signed: 0.004},
		},
		tb: []ledger.TrialBalanceRow{
			{AccountID: 3, Code: "1010", Debit: 200000},
			{AccountID: 1, Code: "4000", Credit: 500000},
			{AccountID: 2, Code: "6000", Debit: 300000},
		},
	}
}

func newTestService(repo *stubRepo, acc *stubAccounts, led *stubLedger, per *stubPeriods) *Service {
	var periodsPort PeriodsPort
	if per != nil {
		periodsPort = per
	}
	svc := NewService(repo, nil, acc, led, &stubNumbers{}, periodsPort)
	svc.WithNow(func() time.Time { return time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC) })
	return svc
}

func TestInitiateAggregatesFiscalYear(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, fixtureAccounts(), fixtureLedger(), nil)

	c, err := svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, c.Status)
	assert.InDelta(t, 500000.0, c.TotalRevenue, 0.001)
	assert.InDelta(t, 300000.0, c.TotalExpenses, 0.001)
	assert.InDelta(t, 200000.0, c.NetIncome, 0.001)
	assert.Equal(t, int64(50), c.RetainedEarningsAccountID)
	// sub-cent activity is not closed
	require.Len(t, c.RevenueClosings, 1)
	require.Len(t, c.ExpenseClosings, 1)
	assert.True(t, c.Snapshot.IsBalanced())

	_, err = svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInitiateRejectsUnbalancedBooks(t *testing.T) {
	led := fixtureLedger()
	led.tb = []ledger.TrialBalanceRow{{AccountID: 3, Code: "1010", Debit: 100}}
	svc := newTestService(newStubRepo(), fixtureAccounts(), led, nil)

	_, err := svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	assert.ErrorIs(t, err, ErrUnbalancedBooks)
}

func TestExecutePostsClosingSequence(t *testing.T) {
	repo := newStubRepo()
	acc := fixtureAccounts()
	led := fixtureLedger()
	svc := newTestService(repo, acc, led, nil)

	c, err := svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	require.NoError(t, err)

	executed, err := svc.Execute(context.Background(), ExecuteInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "controller"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, executed.Status)
	require.Len(t, executed.ClosingJournalEntryIDs, 3)
	require.Len(t, led.posted, 3)

	// Income Summary was created on demand
	require.Len(t, acc.created, 1)
	assert.Equal(t, accounts.CategoryIncomeSummary, acc.created[0].Category)
	summaryID := executed.IncomeSummaryAccountID

	revenue := led.posted[0]
	assert.InDelta(t, 500000.0, revenue.Lines[0].Debit, 0.001)
	assert.Equal(t, summaryID, revenue.Lines[len(revenue.Lines)-1].AccountID)

	expense := led.posted[1]
	assert.Equal(t, summaryID, expense.Lines[0].AccountID)
	assert.InDelta(t, 300000.0, expense.Lines[0].Debit, 0.001)

	net := led.posted[2]
	assert.Equal(t, summaryID, net.Lines[0].AccountID)
	assert.InDelta(t, 200000.0, net.Lines[0].Debit, 0.001)
	assert.Equal(t, int64(50), net.Lines[1].AccountID)
	assert.InDelta(t, 200000.0, net.Lines[1].Credit, 0.001)

	_, err = svc.Execute(context.Background(), ExecuteInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "controller"})
	assert.ErrorIs(t, err, ErrWrongStatus)
}

func TestExecuteNetLossFlipsDirection(t *testing.T) {
	repo := newStubRepo()
	led := fixtureLedger()
	led.activity = []ledger.AccountActivity{
		{AccountID: 1, Code: "4000", Name: "Sales", Type: "REVENUE", NormalBalance: "CREDIT", Signed: 100000},
		{AccountID: 2, Code: "6000", Name: "Salaries", Type: "EXPENSE", NormalBalance: "DEBIT", Signed: 150000},
	}
	led.tb = []ledger.TrialBalanceRow{
		{AccountID: 1, Code: "4000", Credit: 100000},
		{AccountID: 2, Code: "6000", Debit: 150000},
		{AccountID: 4, Code: "2000", Credit: 50000},
	}
	svc := newTestService(repo, fixtureAccounts(), led, nil)

	c, err := svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	require.NoError(t, err)
	assert.InDelta(t, -50000.0, c.NetIncome, 0.001)

	_, err = svc.Execute(context.Background(), ExecuteInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "controller"})
	require.NoError(t, err)

	net := led.posted[len(led.posted)-1]
	// loss: Retained Earnings debited, Income Summary credited
	assert.Equal(t, int64(50), net.Lines[0].AccountID)
	assert.InDelta(t, 50000.0, net.Lines[0].Debit, 0.001)
	assert.InDelta(t, 50000.0, net.Lines[1].Credit, 0.001)
}

func TestExecuteDetectsConcurrentCompletion(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, fixtureAccounts(), fixtureLedger(), nil)

	c, err := svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	require.NoError(t, err)

	// a competing execute completes the run between the status read and
	// the transaction; the guarded update refuses the second writer
	repo.beforeTx = func() {
		stored := repo.closings[c.ID]
		stored.Status = StatusCompleted
		repo.closings[c.ID] = stored
	}

	_, err = svc.Execute(context.Background(), ExecuteInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "controller"})
	assert.ErrorIs(t, err, ErrWrongStatus)
}

func TestExecuteRequiresHardClosedPeriods(t *testing.T) {
	repo := newStubRepo()
	led := fixtureLedger()
	per := &stubPeriods{items: []periods.Period{
		{ID: 1, Status: periods.StatusHardClose},
		{ID: 2, Status: periods.StatusSoftClose},
	}}
	svc := newTestService(repo, fixtureAccounts(), led, per)

	c, err := svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), ExecuteInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "controller"})
	assert.ErrorIs(t, err, ErrPeriodsNotClosed)
	assert.Empty(t, led.posted)

	got, err := svc.Get(context.Background(), 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)

	per.items[1].Status = periods.StatusHardClose
	executed, err := svc.Execute(context.Background(), ExecuteInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "controller"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, executed.Status)
}

func TestLockRequiresHardClosedPeriods(t *testing.T) {
	repo := newStubRepo()
	per := &stubPeriods{items: []periods.Period{
		{ID: 1, Status: periods.StatusHardClose},
		{ID: 2, Status: periods.StatusHardClose},
	}}
	svc := newTestService(repo, fixtureAccounts(), fixtureLedger(), per)

	c, err := svc.Initiate(context.Background(), InitiateInput{CompanyID: 1, FiscalYear: "2024-2025", ActorID: 9})
	require.NoError(t, err)

	_, err = svc.Lock(context.Background(), LockInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "cfo"})
	assert.ErrorIs(t, err, ErrNotCompleted)

	_, err = svc.Execute(context.Background(), ExecuteInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "cfo"})
	require.NoError(t, err)

	_, err = svc.Lock(context.Background(), LockInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "accountant"})
	assert.ErrorIs(t, err, ErrForbidden)

	// a period reopened between execute and lock blocks the lock
	per.items[1].Status = periods.StatusOpen
	_, err = svc.Lock(context.Background(), LockInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "cfo"})
	assert.ErrorIs(t, err, ErrPeriodsNotClosed)

	per.items[1].Status = periods.StatusHardClose
	locked, err := svc.Lock(context.Background(), LockInput{CompanyID: 1, ClosingID: c.ID, ActorID: 9, ActorRole: "cfo"})
	require.NoError(t, err)
	assert.True(t, locked.PeriodLocked)
	assert.ElementsMatch(t, []int64{1, 2}, per.locked)
}

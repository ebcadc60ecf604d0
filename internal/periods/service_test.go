package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	periods map[int64]Period
	nextID  int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{periods: map[int64]Period{}, nextID: 1}
}

func (r *stubRepo) List(ctx context.Context, companyID int64, fiscalYear string) ([]Period, error) {
	var out []Period
	for _, p := range r.periods {
		if p.CompanyID == companyID && (fiscalYear == "" || p.FiscalYear == fiscalYear) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubRepo) Get(ctx context.Context, companyID, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok || p.CompanyID != companyID {
		return Period{}, ErrNotFound
	}
	return p, nil
}

func (r *stubRepo) FindByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.Covers(date) {
			return p, nil
		}
	}
	return Period{}, ErrNotFound
}

func (r *stubRepo) Upsert(ctx context.Context, p Period) (Period, error) {
	for _, existing := range r.periods {
		if existing.CompanyID == p.CompanyID && existing.Year == p.Year && existing.Month == p.Month {
			return existing, nil
		}
	}
	p.ID = r.nextID
	r.nextID++
	r.periods[p.ID] = p
	return p, nil
}

func (r *stubRepo) UpdateStatus(ctx context.Context, p Period) error {
	if _, ok := r.periods[p.ID]; !ok {
		return ErrNotFound
	}
	r.periods[p.ID] = p
	return nil
}

func (r *stubRepo) UpdateChecklist(ctx context.Context, companyID, id int64, c Checklist) error {
	p, ok := r.periods[id]
	if !ok {
		return ErrNotFound
	}
	p.Checklist = c
	r.periods[id] = p
	return nil
}

func (r *stubRepo) UpdateReconciliation(ctx context.Context, companyID, id int64, results []ReconciliationResult) error {
	p, ok := r.periods[id]
	if !ok {
		return ErrNotFound
	}
	p.ReconciliationResults = results
	r.periods[id] = p
	return nil
}

type stubTB struct{ lines []BalanceLine }

func (s stubTB) TrialBalance(ctx context.Context, companyID int64, asOf time.Time) ([]BalanceLine, error) {
	return s.lines, nil
}

type stubSubledger struct{ bank, ap float64 }

func (s stubSubledger) BankBalance(ctx context.Context, companyID int64, asOf time.Time) (float64, error) {
	return s.bank, nil
}

func (s stubSubledger) APBalance(ctx context.Context, companyID int64, asOf time.Time) (float64, error) {
	return s.ap, nil
}

type stubGL struct{ balances map[string]float64 }

func (s stubGL) CategoryBalance(ctx context.Context, companyID int64, category string, asOf time.Time) (float64, error) {
	return s.balances[category], nil
}

func newTestService(repo *stubRepo) *Service {
	svc := NewService(repo, nil, stubTB{}, stubSubledger{}, stubGL{balances: map[string]float64{}})
	svc.WithNow(func() time.Time { return time.Date(2024, time.October, 15, 0, 0, 0, 0, time.UTC) })
	return svc
}

func initialized(t *testing.T, svc *Service) []Period {
	t.Helper()
	items, err := svc.Initialize(context.Background(), 1, "2024-2025", 9)
	require.NoError(t, err)
	require.Len(t, items, 12)
	return items
}

func TestInitializeIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	first := initialized(t, svc)
	second := initialized(t, svc)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Len(t, repo.periods, 12)
}

func TestSoftCloseRequiresChecklist(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	items := initialized(t, svc)
	id := items[0].ID

	_, err := svc.SoftClose(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9})
	assert.ErrorIs(t, err, ErrChecklistGate)

	_, err = svc.UpdateChecklist(context.Background(), ChecklistUpdateInput{
		CompanyID: 1, PeriodID: id,
		Checklist: Checklist{BankReconciliationComplete: true, TrialBalanceReviewed: true},
	})
	require.NoError(t, err)

	p, err := svc.SoftClose(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9})
	require.NoError(t, err)
	assert.Equal(t, StatusSoftClose, p.Status)
	assert.NotNil(t, p.SoftClosedAt)
}

func fullChecklist() Checklist {
	return Checklist{
		BankReconciliationComplete:   true,
		VendorReconciliationComplete: true,
		DepreciationPosted:           true,
		PayrollPosted:                true,
		TrialBalanceReviewed:         true,
	}
}

func hardClosed(t *testing.T, svc *Service, id int64) Period {
	t.Helper()
	_, err := svc.UpdateChecklist(context.Background(), ChecklistUpdateInput{CompanyID: 1, PeriodID: id, Checklist: fullChecklist()})
	require.NoError(t, err)
	_, err = svc.SoftClose(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9})
	require.NoError(t, err)
	p, err := svc.HardClose(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9})
	require.NoError(t, err)
	return p
}

func TestHardCloseSnapshotsBalances(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, stubTB{lines: []BalanceLine{{AccountID: 1, Code: "1000", Debit: 500}}}, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, time.October, 15, 0, 0, 0, 0, time.UTC) })
	items := initialized(t, svc)

	p := hardClosed(t, svc, items[0].ID)
	assert.Equal(t, StatusHardClose, p.Status)
	require.Len(t, p.ClosingBalances, 1)
	assert.Equal(t, "1000", p.ClosingBalances[0].Code)
}

func TestLockRequiresHardCloseAndPrivilege(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	items := initialized(t, svc)
	id := items[0].ID

	_, err := svc.Lock(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9, ActorRole: "accountant"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Lock(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9, ActorRole: "cfo"})
	assert.ErrorIs(t, err, ErrWrongStatus)

	hardClosed(t, svc, id)
	p, err := svc.Lock(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9, ActorRole: "cfo"})
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, p.Status)
}

func TestReopenControls(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	items := initialized(t, svc)
	id := items[0].ID
	hardClosed(t, svc, id)

	reason := "auditor requested adjustment to depreciation"

	_, err := svc.Reopen(context.Background(), ReopenInput{CompanyID: 1, PeriodID: id, Target: StatusOpen, Reason: reason, ActorRole: "accountant"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Reopen(context.Background(), ReopenInput{CompanyID: 1, PeriodID: id, Target: StatusOpen, Reason: "too short", ActorRole: "admin"})
	assert.Error(t, err)

	_, err = svc.Reopen(context.Background(), ReopenInput{CompanyID: 1, PeriodID: id, Target: StatusLocked, Reason: reason, ActorRole: "admin"})
	assert.ErrorIs(t, err, ErrNotEarlier)

	p, err := svc.Reopen(context.Background(), ReopenInput{CompanyID: 1, PeriodID: id, Target: StatusOpen, Reason: reason, ActorRole: "admin"})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, p.Status)
	assert.Nil(t, p.HardClosedAt)
	assert.Nil(t, p.SoftClosedAt)
}

func TestChecklistBlockedWhenLocked(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	items := initialized(t, svc)
	id := items[0].ID
	hardClosed(t, svc, id)
	_, err := svc.Lock(context.Background(), TransitionInput{CompanyID: 1, PeriodID: id, ActorID: 9, ActorRole: "admin"})
	require.NoError(t, err)

	_, err = svc.UpdateChecklist(context.Background(), ChecklistUpdateInput{CompanyID: 1, PeriodID: id, Checklist: Checklist{}})
	assert.ErrorIs(t, err, ErrLockedPeriod)
}

func TestIsDateInOpenPeriod(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	items := initialized(t, svc)

	inOctober := time.Date(2024, time.October, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.IsDateInOpenPeriod(context.Background(), 1, inOctober, false))

	// absent period row permits posting
	outside := time.Date(2030, time.January, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.IsDateInOpenPeriod(context.Background(), 1, outside, false))

	var october Period
	for _, p := range items {
		if p.Month == 10 {
			october = p
		}
	}
	_, err := svc.UpdateChecklist(context.Background(), ChecklistUpdateInput{CompanyID: 1, PeriodID: october.ID, Checklist: fullChecklist()})
	require.NoError(t, err)
	_, err = svc.SoftClose(context.Background(), TransitionInput{CompanyID: 1, PeriodID: october.ID, ActorID: 9})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.IsDateInOpenPeriod(context.Background(), 1, inOctober, false), ErrClosedPeriod)
	assert.NoError(t, svc.IsDateInOpenPeriod(context.Background(), 1, inOctober, true))
}

func TestReconcileStoresVariance(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil,
		stubSubledger{bank: 95000, ap: 40000},
		stubGL{balances: map[string]float64{"BANK": 100000, "AP": 40000}})
	svc.WithNow(func() time.Time { return time.Date(2024, time.October, 31, 0, 0, 0, 0, time.UTC) })
	items := initialized(t, svc)

	results, err := svc.Reconcile(context.Background(), 1, items[0].ID, 9)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 5000.0, results[0].Variance, 0.001)
	assert.InDelta(t, 0.0, results[1].Variance, 0.001)
}

func TestCurrentPeriodFallsBackToSuggestion(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	p, found, err := svc.CurrentPeriod(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "2024-2025", p.FiscalYear)
	assert.Equal(t, 10, p.Month)
	assert.Equal(t, StatusOpen, p.Status)
}

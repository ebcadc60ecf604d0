package cashflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-erp/helios-gl/internal/accounts"
	"github.com/helios-erp/helios-gl/internal/ledger"
)

type stubLedger struct {
	activity map[string][]ledger.AccountActivity // keyed by from date
	balances map[string]float64                  // keyed by accountID:asOf
	entries  []ledger.JournalEntry
}

func (s *stubLedger) PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.AccountActivity, error) {
	return s.activity[from.Format(time.DateOnly)], nil
}

func (s *stubLedger) BalanceAsOf(ctx context.Context, companyID, accountID int64, asOf time.Time) (float64, error) {
	return s.balances[fmt.Sprintf("%d:%s", accountID, asOf.Format(time.DateOnly))], nil
}

func (s *stubLedger) EntriesWithLines(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.JournalEntry, error) {
	return s.entries, nil
}

type stubAccounts struct {
	chart []accounts.Account
}

func (s *stubAccounts) List(ctx context.Context, companyID int64, filter accounts.ListFilter) ([]accounts.Account, error) {
	return s.chart, nil
}

func chartFixture() []accounts.Account {
	return []accounts.Account{
		{ID: 1, Code: "110", Name: "Main Bank", Type: accounts.AccountTypeAsset, Category: accounts.CategoryBank},
		{ID: 2, Code: "111", Name: "Petty Cash", Type: accounts.AccountTypeAsset, Category: accounts.CategoryCash},
		{ID: 3, Code: "120", Name: "Accounts Receivable", Type: accounts.AccountTypeAsset},
		{ID: 4, Code: "150", Name: "Equipment", Type: accounts.AccountTypeAsset},
		{ID: 5, Code: "210", Name: "Accounts Payable", Type: accounts.AccountTypeLiability},
		{ID: 6, Code: "250", Name: "Bank Loan", Type: accounts.AccountTypeLiability},
		{ID: 7, Code: "410", Name: "Sales", Type: accounts.AccountTypeRevenue},
		{ID: 8, Code: "510", Name: "Salaries", Type: accounts.AccountTypeExpense},
		{ID: 9, Code: "690", Name: "Depreciation", Type: accounts.AccountTypeExpense},
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
}

func TestIndirectReconciles(t *testing.T) {
	from := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)
	lg := &stubLedger{
		activity: map[string][]ledger.AccountActivity{
			"2024-10-01": {
				{AccountID: 7, Code: "410", Name: "Sales", Type: "REVENUE", Signed: 50000},
				{AccountID: 8, Code: "510", Name: "Salaries", Type: "EXPENSE", Signed: 28000},
				{AccountID: 9, Code: "690", Name: "Depreciation", Type: "EXPENSE", Signed: 2000},
				{AccountID: 3, Code: "120", Name: "Accounts Receivable", Type: "ASSET", Signed: 5000},
				{AccountID: 5, Code: "210", Name: "Accounts Payable", Type: "LIABILITY", Signed: 3000},
				{AccountID: 4, Code: "150", Name: "Equipment", Type: "ASSET", Signed: 5000},
				{AccountID: 6, Code: "250", Name: "Bank Loan", Type: "LIABILITY", Signed: 2000},
			},
		},
		balances: map[string]float64{
			"1:2024-09-30": 100000,
			"1:2024-10-31": 117000,
		},
	}
	svc := NewService(lg, &stubAccounts{chart: chartFixture()}, DefaultCodeScheme(), "PKR")
	svc.WithNow(fixedNow)

	st, err := svc.Indirect(context.Background(), 1, from, to)
	require.NoError(t, err)

	assert.InDelta(t, 20000, st.NetIncome, 0.001)
	assert.InDelta(t, 2000, st.DepreciationAddBack, 0.001)
	assert.InDelta(t, 20000, st.NetCashFromOperating, 0.001)
	assert.InDelta(t, -5000, st.NetCashFromInvesting, 0.001)
	assert.InDelta(t, 2000, st.NetCashFromFinancing, 0.001)
	assert.InDelta(t, 17000, st.NetChangeInCash, 0.001)
	assert.InDelta(t, 100000, st.OpeningCash, 0.001)
	assert.InDelta(t, 117000, st.ClosingCash, 0.001)
	assert.True(t, st.IsReconciled)
	assert.InDelta(t, 0, st.Variance, 0.001)
	assert.Equal(t, "PKR 17,000.00", st.FormattedNetChange)

	// AR build-up consumed cash, AP build-up released it.
	require.Len(t, st.WorkingCapitalDeltas, 2)
	for _, d := range st.WorkingCapitalDeltas {
		switch d.Code {
		case "120":
			assert.InDelta(t, -5000, d.Effect, 0.001)
		case "210":
			assert.InDelta(t, 3000, d.Effect, 0.001)
		default:
			t.Fatalf("unexpected working-capital code %s", d.Code)
		}
	}
}

func TestIndirectFlagsVariance(t *testing.T) {
	from := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)
	lg := &stubLedger{
		activity: map[string][]ledger.AccountActivity{
			"2024-10-01": {
				{AccountID: 7, Code: "410", Type: "REVENUE", Signed: 10000},
			},
		},
		balances: map[string]float64{
			"1:2024-09-30": 100000,
			"1:2024-10-31": 109000, // 1000 short of the derived change
		},
	}
	svc := NewService(lg, &stubAccounts{chart: chartFixture()}, DefaultCodeScheme(), "PKR")

	st, err := svc.Indirect(context.Background(), 1, from, to)
	require.NoError(t, err)
	assert.False(t, st.IsReconciled)
	assert.InDelta(t, -1000, st.Variance, 0.001)
}

func TestDirectClassifiesByContra(t *testing.T) {
	from := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)
	lg := &stubLedger{
		entries: []ledger.JournalEntry{
			{
				ID: 1, EntryNumber: "JE-2024-2025-0001", EntryDate: from, Memo: "Cash sale",
				Lines: []ledger.JournalLine{
					{AccountID: 1, Debit: 10000},
					{AccountID: 7, Credit: 10000},
				},
			},
			{
				ID: 2, EntryNumber: "JE-2024-2025-0002", EntryDate: from, Memo: "Equipment purchase",
				Lines: []ledger.JournalLine{
					{AccountID: 4, Debit: 4000},
					{AccountID: 1, Credit: 4000},
				},
			},
			{
				ID: 3, EntryNumber: "JE-2024-2025-0003", EntryDate: from, Memo: "Loan drawdown",
				Lines: []ledger.JournalLine{
					{AccountID: 1, Debit: 20000},
					{AccountID: 6, Credit: 20000},
				},
			},
			{
				// Bank to petty cash, no contra, must not appear anywhere.
				ID: 4, EntryNumber: "JE-2024-2025-0004", EntryDate: from, Memo: "Float top-up",
				Lines: []ledger.JournalLine{
					{AccountID: 2, Debit: 500},
					{AccountID: 1, Credit: 500},
				},
			},
		},
	}
	svc := NewService(lg, &stubAccounts{chart: chartFixture()}, DefaultCodeScheme(), "PKR")

	st, err := svc.Direct(context.Background(), 1, from, to)
	require.NoError(t, err)

	require.Len(t, st.Sections, 3)
	byCat := map[Category]DirectSection{}
	for _, sec := range st.Sections {
		byCat[sec.Category] = sec
	}
	assert.InDelta(t, 10000, byCat[CategoryOperating].Inflow, 0.001)
	assert.InDelta(t, 4000, byCat[CategoryInvesting].Outflow, 0.001)
	assert.InDelta(t, 20000, byCat[CategoryFinancing].Inflow, 0.001)
	assert.InDelta(t, 30000, st.TotalInflow, 0.001)
	assert.InDelta(t, 4000, st.TotalOutflow, 0.001)
	assert.InDelta(t, 26000, st.NetCashFlow, 0.001)
	require.Len(t, byCat[CategoryInvesting].Items, 1)
	assert.Equal(t, "150", byCat[CategoryInvesting].Items[0].ContraCode)
}

func TestForecastExtendsTrend(t *testing.T) {
	lg := &stubLedger{activity: map[string][]ledger.AccountActivity{}}
	// Six trailing months, April through September, net climbing 1000/month.
	for i := 0; i < 6; i++ {
		from := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		net := float64(1000 * (i + 1))
		lg.activity[from.Format(time.DateOnly)] = []ledger.AccountActivity{
			{AccountID: 1, Debit: net, Credit: 0},
		}
	}
	svc := NewService(lg, &stubAccounts{chart: chartFixture()}, DefaultCodeScheme(), "PKR")
	svc.WithNow(fixedNow)

	f, err := svc.ForecastMonths(context.Background(), 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 6, f.BasedOnMonths)
	assert.InDelta(t, 1000, f.Trend, 0.001)
	require.Len(t, f.Months, 3)
	assert.Equal(t, "2024-11", f.Months[0].Month)
	assert.InDelta(t, 7000, f.Months[0].ProjectedNet, 0.001)
	assert.InDelta(t, 8000, f.Months[1].ProjectedNet, 0.001)
	for _, m := range f.Months {
		assert.InDelta(t, m.ProjectedNet, m.ProjectedInflow-m.ProjectedOutflow, 0.001)
	}
}

func TestForecastClampsMonths(t *testing.T) {
	lg := &stubLedger{activity: map[string][]ledger.AccountActivity{}}
	svc := NewService(lg, &stubAccounts{chart: chartFixture()}, DefaultCodeScheme(), "PKR")
	svc.WithNow(fixedNow)

	f, err := svc.ForecastMonths(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Len(t, f.Months, 3)

	f, err = svc.ForecastMonths(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.Len(t, f.Months, 12)
}

package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-erp/helios-gl/internal/shared"
)

type stubRepo struct {
	entries  map[int64]JournalEntry
	lines    map[int64][]JournalLine
	accounts map[int64]postingAccount
	balances map[int64]float64
	nextID   int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		entries:  map[int64]JournalEntry{},
		lines:    map[int64][]JournalLine{},
		accounts: map[int64]postingAccount{},
		balances: map[int64]float64{},
		nextID:   1,
	}
}

func (r *stubRepo) addAccount(id int64, code, normal string) {
	r.accounts[id] = postingAccount{ID: id, Code: code, NormalBalance: normal, IsPostable: true, Lifecycle: "ACTIVE"}
}

func (r *stubRepo) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	e, ok := r.entries[id]
	if !ok || e.CompanyID != companyID {
		return JournalEntry{}, ErrNotFound
	}
	e.Lines = r.lines[id]
	return e, nil
}

func (r *stubRepo) List(ctx context.Context, f ListFilter) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range r.entries {
		if e.CompanyID != f.CompanyID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *stubRepo) BalanceAsOf(ctx context.Context, companyID, accountID int64, asOf time.Time) (float64, error) {
	var balance float64
	for id, e := range r.entries {
		if e.CompanyID != companyID || e.Status == StatusDraft || e.EntryDate.After(asOf) {
			continue
		}
		for _, l := range r.lines[id] {
			if l.AccountID != accountID {
				continue
			}
			if r.accounts[accountID].NormalBalance == "DEBIT" {
				balance += l.Debit - l.Credit
			} else {
				balance += l.Credit - l.Debit
			}
		}
	}
	return balance, nil
}

func (r *stubRepo) EntriesWithLines(ctx context.Context, companyID int64, from, to time.Time) ([]JournalEntry, error) {
	var out []JournalEntry
	for id, e := range r.entries {
		if e.CompanyID != companyID || e.Status == StatusDraft || e.EntryDate.Before(from) || e.EntryDate.After(to) {
			continue
		}
		e.Lines = r.lines[id]
		out = append(out, e)
	}
	return out, nil
}

func (r *stubRepo) PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]AccountActivity, error) {
	acc := map[int64]*AccountActivity{}
	for id, e := range r.entries {
		if e.CompanyID != companyID || e.Status == StatusDraft {
			continue
		}
		if (!from.IsZero() && e.EntryDate.Before(from)) || e.EntryDate.After(to) {
			continue
		}
		for _, l := range r.lines[id] {
			a, ok := acc[l.AccountID]
			if !ok {
				meta := r.accounts[l.AccountID]
				a = &AccountActivity{AccountID: l.AccountID, Code: meta.Code, NormalBalance: meta.NormalBalance}
				acc[l.AccountID] = a
			}
			a.Debit += l.Debit
			a.Credit += l.Credit
		}
	}
	var out []AccountActivity
	for _, a := range acc {
		if a.NormalBalance == "DEBIT" {
			a.Signed = a.Debit - a.Credit
		} else {
			a.Signed = a.Credit - a.Debit
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *stubRepo) GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	return r.Get(ctx, companyID, id)
}

func (r *stubRepo) GetLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	return r.lines[entryID], nil
}

func (r *stubRepo) GetPostingAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]postingAccount, error) {
	out := map[int64]postingAccount{}
	for _, id := range ids {
		if a, ok := r.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (r *stubRepo) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	e.ID = r.nextID
	r.nextID++
	r.entries[e.ID] = e
	return e, nil
}

func (r *stubRepo) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	r.lines[entryID] = toLines(entryID, lines)
	return nil
}

func (r *stubRepo) AdjustAccountBalance(ctx context.Context, companyID, accountID int64, delta float64) error {
	r.balances[accountID] += delta
	return nil
}

func (r *stubRepo) MarkReversed(ctx context.Context, companyID, entryID, reversedBy int64) error {
	e, ok := r.entries[entryID]
	if !ok || e.Status != StatusPosted {
		return ErrNotReversible
	}
	e.Status = StatusReversed
	e.ReversedBy = &reversedBy
	r.entries[entryID] = e
	return nil
}

type stubNumbers struct{ n int }

func (s *stubNumbers) NextEntryNumber(ctx context.Context, companyID int64, date time.Time, actorID int64) (string, error) {
	s.n++
	return fmt.Sprintf("JE-2024-2025-%04d", s.n), nil
}

type stubGuard struct{ err error }

func (g stubGuard) EnsureOpenForPosting(ctx context.Context, companyID int64, date time.Time, allowSoftClose bool) error {
	return g.err
}

func testDate() time.Time { return time.Date(2024, time.October, 15, 0, 0, 0, 0, time.UTC) }

func newTestService(repo *stubRepo) *Service {
	svc := NewService(repo, nil, &stubNumbers{})
	svc.WithNow(testDate)
	return svc
}

func balancedInput() PostingInput {
	return PostingInput{
		CompanyID: 1,
		EntryDate: testDate(),
		Memo:      "office rent",
		ActorID:   7,
		ActorRole: "accountant",
		Lines: []PostingLineInput{
			{AccountID: 10, Debit: 5000},
			{AccountID: 20, Credit: 5000},
		},
	}
}

func TestPostValidation(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount(10, "6100", "DEBIT")
	repo.addAccount(20, "1010", "DEBIT")
	svc := newTestService(repo)

	in := balancedInput()
	in.Lines[1].Credit = 4999
	_, err := svc.Post(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnbalanced)

	in = balancedInput()
	in.Lines[0].Credit = 100
	_, err = svc.Post(context.Background(), in)
	assert.ErrorIs(t, err, ErrBothSides)

	in = balancedInput()
	in.Lines = in.Lines[:1]
	_, err = svc.Post(context.Background(), in)
	assert.ErrorIs(t, err, ErrTooFewLines)
}

func TestPostMovesBalancesByNormalSide(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount(10, "6100", "DEBIT")  // expense
	repo.addAccount(20, "2100", "CREDIT") // payable
	svc := newTestService(repo)

	entry, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, entry.Status)
	assert.Equal(t, "JE-2024-2025-0001", entry.EntryNumber)
	assert.InDelta(t, 5000.0, repo.balances[10], 0.001)
	assert.InDelta(t, 5000.0, repo.balances[20], 0.001)
}

func TestPostRejectsBadAccounts(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount(10, "6100", "DEBIT")
	repo.accounts[20] = postingAccount{ID: 20, Code: "1000", NormalBalance: "DEBIT", IsPostable: false, Lifecycle: "ACTIVE"}
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), balancedInput())
	assert.ErrorIs(t, err, ErrAccountNotPostable)

	repo.accounts[20] = postingAccount{ID: 20, Code: "1000", NormalBalance: "DEBIT", IsPostable: true, Lifecycle: "INACTIVE"}
	_, err = svc.Post(context.Background(), balancedInput())
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestPostHonorsPeriodGuard(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount(10, "6100", "DEBIT")
	repo.addAccount(20, "2100", "CREDIT")
	svc := newTestService(repo)

	closed := fmt.Errorf("period closed")
	svc.WithPeriodGuard(stubGuard{err: closed})
	_, err := svc.Post(context.Background(), balancedInput())
	assert.ErrorIs(t, err, closed)

	in := balancedInput()
	in.AllowSoftClose = true
	_, err = svc.Post(context.Background(), in)
	assert.ErrorIs(t, err, ErrOverrideForbidden)

	in.ActorRole = "cfo"
	svc.WithPeriodGuard(stubGuard{})
	_, err = svc.Post(context.Background(), in)
	assert.NoError(t, err)
}

func TestReverseSwapsSidesAndMarksOriginal(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount(10, "6100", "DEBIT")
	repo.addAccount(20, "2100", "CREDIT")
	svc := newTestService(repo)

	original, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{
		CompanyID: 1, EntryID: original.ID, ActorID: 7, ActorRole: "accountant",
	})
	require.NoError(t, err)
	assert.Equal(t, "Reversal of JE "+original.EntryNumber, reversal.Memo)
	require.Len(t, reversal.Lines, 2)
	assert.InDelta(t, 5000.0, reversal.Lines[0].Credit, 0.001)
	assert.InDelta(t, 5000.0, reversal.Lines[1].Debit, 0.001)
	assert.Equal(t, &original.ID, reversal.ReversalOf)

	stored, err := svc.Get(context.Background(), 1, original.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, stored.Status)
	assert.Equal(t, &reversal.ID, stored.ReversedBy)

	// balances net back to zero
	assert.InDelta(t, 0.0, repo.balances[10], 0.001)
	assert.InDelta(t, 0.0, repo.balances[20], 0.001)

	_, err = svc.Reverse(context.Background(), ReverseInput{CompanyID: 1, EntryID: original.ID, ActorID: 7})
	assert.ErrorIs(t, err, ErrNotReversible)
}

func TestReversedEntriesStayInAggregates(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount(10, "1100", "DEBIT")
	repo.addAccount(20, "4100", "CREDIT")
	svc := newTestService(repo)

	original, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)
	_, err = svc.Reverse(context.Background(), ReverseInput{
		CompanyID: 1, EntryID: original.ID, ActorID: 7, ActorRole: "accountant",
	})
	require.NoError(t, err)

	// The reversed original must keep feeding the aggregates; only then do
	// the pair's lines cancel and the derived views agree with the
	// transactionally maintained account balances.
	asOf := testDate().AddDate(0, 0, 1)
	for _, id := range []int64{10, 20} {
		bal, err := svc.BalanceAsOf(context.Background(), 1, id, asOf)
		require.NoError(t, err)
		assert.InDelta(t, repo.balances[id], bal, 0.001)
		assert.InDelta(t, 0.0, bal, 0.001)
	}

	rows, err := svc.TrialBalance(context.Background(), 1, asOf)
	require.NoError(t, err)
	assert.Empty(t, rows)

	activity, err := svc.PeriodActivity(context.Background(), 1, testDate().AddDate(0, 0, -1), asOf)
	require.NoError(t, err)
	for _, a := range activity {
		assert.InDelta(t, 0.0, a.Signed, 0.001)
	}

	entries, err := svc.EntriesWithLines(context.Background(), 1, testDate().AddDate(0, 0, -1), asOf)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTrialBalancePresentsNaturalSide(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount(10, "1010", "DEBIT")
	repo.addAccount(20, "4000", "CREDIT")
	svc := newTestService(repo)

	in := balancedInput()
	in.Lines = []PostingLineInput{
		{AccountID: 10, Debit: 1200},
		{AccountID: 20, Credit: 1200},
	}
	_, err := svc.Post(context.Background(), in)
	require.NoError(t, err)

	rows, err := svc.TrialBalance(context.Background(), 1, testDate())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	var totalDebit, totalCredit float64
	for _, row := range rows {
		totalDebit += row.Debit
		totalCredit += row.Credit
	}
	assert.True(t, shared.AmountsEqual(totalDebit, totalCredit))
}

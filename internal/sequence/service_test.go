package sequence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqKey struct {
	company int64
	docType string
	fy      string
}

type stubRepo struct {
	mu          sync.Mutex
	sequences   map[seqKey]*DocumentSequence
	allocations map[int64][]Allocation
	nextID      int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		sequences:   map[seqKey]*DocumentSequence{},
		allocations: map[int64][]Allocation{},
		nextID:      1,
	}
}

func (r *stubRepo) WithTx(ctx context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *stubRepo) List(ctx context.Context, companyID int64) ([]DocumentSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DocumentSequence
	for _, s := range r.sequences {
		if s.CompanyID == companyID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *stubRepo) Get(ctx context.Context, companyID int64, docType, fiscalYear string) (DocumentSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[seqKey{companyID, docType, fiscalYear}]
	if !ok {
		return DocumentSequence{}, ErrNotFound
	}
	return *s, nil
}

func (r *stubRepo) Create(ctx context.Context, in CreateInput) (DocumentSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seqKey{in.CompanyID, in.DocumentType, in.FiscalYear}
	if _, dup := r.sequences[key]; dup {
		return DocumentSequence{}, ErrDuplicate
	}
	s := &DocumentSequence{
		ID:             r.nextID,
		CompanyID:      in.CompanyID,
		DocumentType:   in.DocumentType,
		FiscalYear:     in.FiscalYear,
		Prefix:         in.Prefix,
		Suffix:         in.Suffix,
		PaddingLength:  in.PaddingLength,
		Separator:      in.Separator,
		StartingNumber: in.StartingNumber,
		CurrentNumber:  in.StartingNumber,
	}
	r.nextID++
	r.sequences[key] = s
	return *s, nil
}

func (r *stubRepo) UpdateFormat(ctx context.Context, in UpdateInput) (DocumentSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[seqKey{in.CompanyID, in.DocumentType, in.FiscalYear}]
	if !ok {
		return DocumentSequence{}, ErrNotFound
	}
	if in.Prefix != nil {
		s.Prefix = *in.Prefix
	}
	if in.Suffix != nil {
		s.Suffix = *in.Suffix
	}
	if in.PaddingLength != nil {
		s.PaddingLength = *in.PaddingLength
	}
	if in.Separator != nil {
		s.Separator = *in.Separator
	}
	return *s, nil
}

func (r *stubRepo) IncrementAndGet(ctx context.Context, companyID int64, docType, fiscalYear string, by int64, defaults CreateInput) (DocumentSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seqKey{companyID, docType, fiscalYear}
	s, ok := r.sequences[key]
	if !ok {
		s = &DocumentSequence{
			ID:             r.nextID,
			CompanyID:      companyID,
			DocumentType:   docType,
			FiscalYear:     fiscalYear,
			Prefix:         defaults.Prefix,
			Suffix:         defaults.Suffix,
			PaddingLength:  defaults.PaddingLength,
			Separator:      defaults.Separator,
			StartingNumber: defaults.StartingNumber,
			CurrentNumber:  defaults.StartingNumber,
		}
		r.nextID++
		r.sequences[key] = s
	}
	s.CurrentNumber += by
	return *s, nil
}

func (r *stubRepo) RecordAllocation(ctx context.Context, a Allocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocations[a.SequenceID] = append(r.allocations[a.SequenceID], a)
	return nil
}

func (r *stubRepo) GetAllocation(ctx context.Context, sequenceID, number int64) (Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.allocations[sequenceID] {
		if a.Number == number {
			return a, nil
		}
	}
	return Allocation{}, ErrAllocationMissing
}

func (r *stubRepo) MarkVoided(ctx context.Context, sequenceID, number int64, reason string, actorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.allocations[sequenceID] {
		if a.Number == number && a.Status == AllocationAllocated {
			r.allocations[sequenceID][i].Status = AllocationVoided
			r.allocations[sequenceID][i].Reason = reason
			return nil
		}
	}
	return ErrNotVoidable
}

func (r *stubRepo) ListAllocations(ctx context.Context, sequenceID int64) ([]Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Allocation(nil), r.allocations[sequenceID]...), nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, time.October, 15, 12, 0, 0, 0, time.UTC) }
}

func TestNextFormatsAndIncrements(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock())

	_, err := svc.Create(context.Background(), CreateInput{
		CompanyID: 1, DocumentType: "SI", FiscalYear: "2024-2025",
		Prefix: "SI", PaddingLength: 4, Separator: "-",
	})
	require.NoError(t, err)

	first, err := svc.Next(context.Background(), 1, "SI", "2024-2025", 9)
	require.NoError(t, err)
	assert.Equal(t, "SI-2024-2025-0001", first)

	second, err := svc.Next(context.Background(), 1, "SI", "2024-2025", 9)
	require.NoError(t, err)
	assert.Equal(t, "SI-2024-2025-0002", second)
}

func TestNextResolvesFiscalYearFromClock(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock()) // October 2024 falls in FY 2024-2025

	_, err := svc.Next(context.Background(), 1, "JV", "", 9)
	require.NoError(t, err)

	seq, err := repo.Get(context.Background(), 1, "JV", "2024-2025")
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq.CurrentNumber)
}

func TestConcurrentNextNeverDuplicates(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock())

	const workers = 50
	results := make(chan string, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.Next(context.Background(), 1, "SI", "2024-2025", 9)
			if err != nil {
				errs <- err
				return
			}
			results <- n
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("next failed: %v", err)
	}
	seen := map[string]bool{}
	for n := range results {
		assert.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestAllocateReturnsConsecutiveBlock(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock())

	block, err := svc.Allocate(context.Background(), 1, "SI", "2024-2025", 5, 9)
	require.NoError(t, err)
	require.Len(t, block, 5)
	for i := 1; i < len(block); i++ {
		assert.Equal(t, block[i-1].Number+1, block[i].Number)
	}

	_, err = svc.Allocate(context.Background(), 1, "SI", "2024-2025", 101, 9)
	assert.Error(t, err)
}

func TestVoidRequiresReasonAndPrivilege(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock())

	_, err := svc.Allocate(context.Background(), 1, "SI", "2024-2025", 2, 9)
	require.NoError(t, err)

	err = svc.Void(context.Background(), VoidInput{
		CompanyID: 1, DocumentType: "SI", FiscalYear: "2024-2025",
		Number: 1, Reason: "duplicate invoice created", ActorID: 9, ActorRole: "accountant",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.Void(context.Background(), VoidInput{
		CompanyID: 1, DocumentType: "SI", FiscalYear: "2024-2025",
		Number: 1, Reason: "too short", ActorID: 9, ActorRole: "admin",
	})
	assert.Error(t, err)

	err = svc.Void(context.Background(), VoidInput{
		CompanyID: 1, DocumentType: "SI", FiscalYear: "2024-2025",
		Number: 1, Reason: "duplicate invoice created", ActorID: 9, ActorRole: "admin",
	})
	require.NoError(t, err)

	// voiding an already-voided number is rejected
	err = svc.Void(context.Background(), VoidInput{
		CompanyID: 1, DocumentType: "SI", FiscalYear: "2024-2025",
		Number: 1, Reason: "duplicate invoice created", ActorID: 9, ActorRole: "admin",
	})
	assert.ErrorIs(t, err, ErrNotVoidable)
}

func TestVoidDoesNotDecrementCounterAndClearsGap(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock())

	_, err := svc.Allocate(context.Background(), 1, "SI", "2024-2025", 5, 9)
	require.NoError(t, err)

	require.NoError(t, svc.Void(context.Background(), VoidInput{
		CompanyID: 1, DocumentType: "SI", FiscalYear: "2024-2025",
		Number: 3, Reason: "duplicate invoice created", ActorID: 9, ActorRole: "admin",
	}))

	seq, err := repo.Get(context.Background(), 1, "SI", "2024-2025")
	require.NoError(t, err)
	assert.EqualValues(t, 5, seq.CurrentNumber, "void must not decrement")

	gaps, err := svc.Gaps(context.Background(), 1, "SI", "2024-2025")
	require.NoError(t, err)
	assert.Empty(t, gaps, "voided numbers are accounted for, not gaps")
}

func TestGapsReportsUnaccountedNumbers(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock())

	// claim five numbers but lose the usage record for 2 and 4
	seq, err := repo.IncrementAndGet(context.Background(), 1, "SI", "2024-2025", 5, defaultsFor(1, "SI", "2024-2025"))
	require.NoError(t, err)
	for _, n := range []int64{1, 3, 5} {
		require.NoError(t, repo.RecordAllocation(context.Background(), Allocation{SequenceID: seq.ID, Number: n, Status: AllocationUsed}))
	}

	gaps, err := svc.Gaps(context.Background(), 1, "SI", "2024-2025")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, gaps)
}

func TestResetClonesFormatIntoNewFiscalYear(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil)
	svc.WithNow(fixedClock())

	_, err := svc.Create(context.Background(), CreateInput{
		CompanyID: 1, DocumentType: "SI", FiscalYear: "2024-2025",
		Prefix: "INV", Suffix: "X", PaddingLength: 6, Separator: "/", StartingNumber: 100,
	})
	require.NoError(t, err)

	fresh, err := svc.Reset(context.Background(), 1, "SI", "2024-2025", "2025-2026", 9)
	require.NoError(t, err)
	assert.Equal(t, "INV", fresh.Prefix)
	assert.Equal(t, "X", fresh.Suffix)
	assert.Equal(t, 6, fresh.PaddingLength)
	assert.Equal(t, "/", fresh.Separator)
	assert.EqualValues(t, 0, fresh.CurrentNumber)
}

package sequence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Service issues gap-free document numbers.
type Service struct {
	repo  Repository
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs the sequence allocator.
func NewService(repo Repository, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, companyID int64) ([]DocumentSequence, error) {
	return s.repo.List(ctx, companyID)
}

func (s *Service) Get(ctx context.Context, companyID int64, docType, fiscalYear string) (DocumentSequence, error) {
	return s.repo.Get(ctx, companyID, docType, fiscalYear)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (DocumentSequence, error) {
	if err := in.Validate(); err != nil {
		return DocumentSequence{}, err
	}
	if in.FiscalYear == "" {
		in.FiscalYear = shared.FiscalYearForDate(s.now())
	} else if _, err := shared.ParseFiscalYear(in.FiscalYear); err != nil {
		return DocumentSequence{}, fmt.Errorf("%s: %w", err.Error(), httpx.ErrValidation)
	}
	return s.repo.Create(ctx, in)
}

func (s *Service) UpdateFormat(ctx context.Context, in UpdateInput) (DocumentSequence, error) {
	return s.repo.UpdateFormat(ctx, in)
}

func (s *Service) resolveFiscalYear(fiscalYear string) (string, error) {
	if fiscalYear == "" {
		return shared.FiscalYearForDate(s.now()), nil
	}
	if _, err := shared.ParseFiscalYear(fiscalYear); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), httpx.ErrValidation)
	}
	return fiscalYear, nil
}

// Next claims the following number for the document type and returns it
// formatted. The claim is a single atomic increment; the usage-log row is
// written afterwards and a failure there leaves a diagnosable gap rather
// than a duplicate.
func (s *Service) Next(ctx context.Context, companyID int64, docType, fiscalYear string, actorID int64) (string, error) {
	fy, err := s.resolveFiscalYear(fiscalYear)
	if err != nil {
		return "", err
	}
	var formatted string
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		seq, err := tx.IncrementAndGet(ctx, companyID, docType, fy, 1, defaultsFor(companyID, docType, fy))
		if err != nil {
			return err
		}
		formatted = seq.Format(seq.CurrentNumber)
		return tx.RecordAllocation(ctx, Allocation{
			SequenceID: seq.ID,
			Number:     seq.CurrentNumber,
			Status:     AllocationUsed,
			Formatted:  formatted,
			ActorID:    actorID,
		})
	})
	if err != nil {
		return "", err
	}
	return formatted, nil
}

// Allocate reserves a contiguous block of numbers ahead of use.
func (s *Service) Allocate(ctx context.Context, companyID int64, docType, fiscalYear string, count int, actorID int64) ([]Allocation, error) {
	if count < 1 || count > MaxBatchSize {
		return nil, fmt.Errorf("sequence: batch size must be 1..%d: %w", MaxBatchSize, httpx.ErrValidation)
	}
	fy, err := s.resolveFiscalYear(fiscalYear)
	if err != nil {
		return nil, err
	}
	var out []Allocation
	var seqID, first, last int64
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		seq, err := tx.IncrementAndGet(ctx, companyID, docType, fy, int64(count), defaultsFor(companyID, docType, fy))
		if err != nil {
			return err
		}
		seqID = seq.ID
		first = seq.CurrentNumber - int64(count) + 1
		last = seq.CurrentNumber
		out = make([]Allocation, 0, count)
		for n := first; n <= last; n++ {
			a := Allocation{
				SequenceID: seq.ID,
				Number:     n,
				Status:     AllocationAllocated,
				Formatted:  seq.Format(n),
				ActorID:    actorID,
			}
			if err := tx.RecordAllocation(ctx, a); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, companyID, "sequence.allocated", seqID, map[string]any{
		"document_type": docType, "fiscal_year": fy, "from": first, "to": last,
	})
	return out, nil
}

// Void marks a reservation as intentionally skipped. The counter never moves
// backwards; the number stays on the books as VOIDED.
func (s *Service) Void(ctx context.Context, in VoidInput) error {
	if !shared.Role(in.ActorRole).Privileged() {
		return ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return err
	}
	fy, err := s.resolveFiscalYear(in.FiscalYear)
	if err != nil {
		return err
	}
	seq, err := s.repo.Get(ctx, in.CompanyID, in.DocumentType, fy)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetAllocation(ctx, seq.ID, in.Number); err != nil {
		return err
	}
	if err := s.repo.MarkVoided(ctx, seq.ID, in.Number, in.Reason, in.ActorID); err != nil {
		return err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "sequence.voided", seq.ID, map[string]any{
		"number": in.Number, "reason": in.Reason,
	})
	return nil
}

// Gaps reports every number in [starting, current] with no allocation record
// at all. Used, reserved, and voided numbers are all accounted for; a gap
// means the usage log lost track of an issued number. Diagnostic only.
func (s *Service) Gaps(ctx context.Context, companyID int64, docType, fiscalYear string) ([]int64, error) {
	fy, err := s.resolveFiscalYear(fiscalYear)
	if err != nil {
		return nil, err
	}
	seq, err := s.repo.Get(ctx, companyID, docType, fy)
	if err != nil {
		return nil, err
	}
	allocations, err := s.repo.ListAllocations(ctx, seq.ID)
	if err != nil {
		return nil, err
	}
	accounted := make(map[int64]bool, len(allocations))
	for _, a := range allocations {
		accounted[a.Number] = true
	}
	gaps := []int64{}
	for n := seq.StartingNumber + 1; n <= seq.CurrentNumber; n++ {
		if !accounted[n] {
			gaps = append(gaps, n)
		}
	}
	return gaps, nil
}

// Reset clones an existing sequence's format into a fresh sequence for a new
// fiscal year, starting the counter over.
func (s *Service) Reset(ctx context.Context, companyID int64, docType, fromFY, toFY string, actorID int64) (DocumentSequence, error) {
	if _, err := shared.ParseFiscalYear(toFY); err != nil {
		return DocumentSequence{}, fmt.Errorf("%s: %w", err.Error(), httpx.ErrValidation)
	}
	old, err := s.repo.Get(ctx, companyID, docType, fromFY)
	if err != nil {
		return DocumentSequence{}, err
	}
	created, err := s.repo.Create(ctx, CreateInput{
		CompanyID:      companyID,
		DocumentType:   docType,
		FiscalYear:     toFY,
		Prefix:         old.Prefix,
		Suffix:         old.Suffix,
		PaddingLength:  old.PaddingLength,
		Separator:      old.Separator,
		StartingNumber: 0,
	})
	if err != nil {
		return DocumentSequence{}, err
	}
	s.record(ctx, actorID, companyID, "sequence.reset", created.ID, map[string]any{
		"document_type": docType, "from": fromFY, "to": toFY,
	})
	return created, nil
}

func defaultsFor(companyID int64, docType, fy string) CreateInput {
	return CreateInput{
		CompanyID:      companyID,
		DocumentType:   docType,
		FiscalYear:     fy,
		Prefix:         docType,
		PaddingLength:  4,
		Separator:      "-",
		StartingNumber: 0,
	}
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "document_sequence",
		EntityID:  strconv.FormatInt(entityID, 10),
		Meta:      meta,
		At:        s.now(),
	})
}

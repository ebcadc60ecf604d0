package periods

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/helios-erp/helios-gl/internal/shared"
)

// TrialBalancePort supplies the balance snapshot captured at hard close. The
// ledger implements it; the port breaks the import cycle.
type TrialBalancePort interface {
	TrialBalance(ctx context.Context, companyID int64, asOf time.Time) ([]BalanceLine, error)
}

// SubledgerPort exposes aggregate balances of the external bank and vendor
// subledgers for reconciliation. Their internals are out of scope here.
type SubledgerPort interface {
	BankBalance(ctx context.Context, companyID int64, asOf time.Time) (float64, error)
	APBalance(ctx context.Context, companyID int64, asOf time.Time) (float64, error)
}

// GLBalancePort returns the general-ledger side of a reconciliation, summed
// over accounts carrying the given category.
type GLBalancePort interface {
	CategoryBalance(ctx context.Context, companyID int64, category string, asOf time.Time) (float64, error)
}

// Service owns the period lifecycle state machine.
type Service struct {
	repo      Repository
	audit     shared.AuditPort
	tb        TrialBalancePort
	subledger SubledgerPort
	gl        GLBalancePort
	now       func() time.Time
}

// NewService constructs the period controller.
func NewService(repo Repository, audit shared.AuditPort, tb TrialBalancePort, subledger SubledgerPort, gl GLBalancePort) *Service {
	return &Service{repo: repo, audit: audit, tb: tb, subledger: subledger, gl: gl, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, companyID int64, fiscalYear string) ([]Period, error) {
	return s.repo.List(ctx, companyID, fiscalYear)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Period, error) {
	return s.repo.Get(ctx, companyID, id)
}

// Initialize upserts the twelve monthly rows of a fiscal year. Re-running it
// leaves existing rows untouched, so it is safe to call at any point.
func (s *Service) Initialize(ctx context.Context, companyID int64, fiscalYear string, actorID int64) ([]Period, error) {
	months, err := shared.FiscalMonths(fiscalYear)
	if err != nil {
		return nil, err
	}
	out := make([]Period, 0, len(months))
	for _, m := range months {
		p, err := s.repo.Upsert(ctx, Period{
			CompanyID:   companyID,
			FiscalYear:  fiscalYear,
			Month:       m.Month,
			Year:        m.Year,
			PeriodStart: m.Start,
			PeriodEnd:   m.End,
			Status:      StatusOpen,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	s.record(ctx, actorID, companyID, "period.initialized", 0, shared.AuditSeverityInfo, map[string]any{"fiscal_year": fiscalYear})
	return out, nil
}

// SoftClose moves OPEN to SOFT_CLOSE once the preliminary checklist holds.
func (s *Service) SoftClose(ctx context.Context, in TransitionInput) (Period, error) {
	p, err := s.repo.Get(ctx, in.CompanyID, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	if p.Status != StatusOpen {
		return Period{}, ErrWrongStatus
	}
	if !p.Checklist.SoftCloseReady() {
		return Period{}, ErrChecklistGate
	}
	now := s.now()
	p.Status = StatusSoftClose
	p.SoftClosedBy = &in.ActorID
	p.SoftClosedAt = &now
	if err := s.repo.UpdateStatus(ctx, p); err != nil {
		return Period{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "period.soft_closed", p.ID, shared.AuditSeverityInfo, nil)
	return p, nil
}

// HardClose moves SOFT_CLOSE to HARD_CLOSE once all checklist items hold,
// capturing a trial-balance snapshot as the period's closing balances.
func (s *Service) HardClose(ctx context.Context, in TransitionInput) (Period, error) {
	p, err := s.repo.Get(ctx, in.CompanyID, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	if p.Status != StatusSoftClose {
		return Period{}, ErrWrongStatus
	}
	if !p.Checklist.HardCloseReady() {
		return Period{}, ErrChecklistGate
	}
	if s.tb != nil {
		snapshot, err := s.tb.TrialBalance(ctx, in.CompanyID, p.PeriodEnd)
		if err != nil {
			return Period{}, err
		}
		p.ClosingBalances = snapshot
	}
	now := s.now()
	p.Status = StatusHardClose
	p.HardClosedBy = &in.ActorID
	p.HardClosedAt = &now
	if err := s.repo.UpdateStatus(ctx, p); err != nil {
		return Period{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "period.hard_closed", p.ID, shared.AuditSeverityInfo, nil)
	return p, nil
}

// Lock is the terminal transition, reserved for privileged roles.
func (s *Service) Lock(ctx context.Context, in TransitionInput) (Period, error) {
	if !shared.Role(in.ActorRole).Privileged() {
		return Period{}, ErrForbidden
	}
	p, err := s.repo.Get(ctx, in.CompanyID, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	if p.Status != StatusHardClose {
		return Period{}, ErrWrongStatus
	}
	now := s.now()
	p.Status = StatusLocked
	p.LockedBy = &in.ActorID
	p.LockedAt = &now
	if err := s.repo.UpdateStatus(ctx, p); err != nil {
		return Period{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "period.locked", p.ID, shared.AuditSeverityInfo, nil)
	return p, nil
}

// Reopen moves a period back to an earlier status. It never undoes postings;
// it only reopens the gate. Always emits a critical audit event.
func (s *Service) Reopen(ctx context.Context, in ReopenInput) (Period, error) {
	if !shared.Role(in.ActorRole).Privileged() {
		return Period{}, ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	p, err := s.repo.Get(ctx, in.CompanyID, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	if in.Target.Rank() >= p.Status.Rank() {
		return Period{}, ErrNotEarlier
	}
	prev := p.Status
	p.Status = in.Target
	if in.Target.Rank() < StatusLocked.Rank() {
		p.LockedBy, p.LockedAt = nil, nil
	}
	if in.Target.Rank() < StatusHardClose.Rank() {
		p.HardClosedBy, p.HardClosedAt = nil, nil
	}
	if in.Target.Rank() < StatusSoftClose.Rank() {
		p.SoftClosedBy, p.SoftClosedAt = nil, nil
	}
	if err := s.repo.UpdateStatus(ctx, p); err != nil {
		return Period{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "period.reopened", p.ID, shared.AuditSeverityCritical, map[string]any{
		"from": string(prev), "to": string(in.Target), "reason": in.Reason,
	})
	return p, nil
}

// UpdateChecklist patches the close checklist; a locked period is immutable.
func (s *Service) UpdateChecklist(ctx context.Context, in ChecklistUpdateInput) (Period, error) {
	p, err := s.repo.Get(ctx, in.CompanyID, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	if p.Status == StatusLocked {
		return Period{}, ErrLockedPeriod
	}
	if err := s.repo.UpdateChecklist(ctx, in.CompanyID, in.PeriodID, in.Checklist); err != nil {
		return Period{}, err
	}
	p.Checklist = in.Checklist
	s.record(ctx, in.ActorID, in.CompanyID, "period.checklist_updated", p.ID, shared.AuditSeverityInfo, nil)
	return p, nil
}

// Reconcile compares GL balances against subledger aggregates as of the
// period end and stores the variances on the period.
func (s *Service) Reconcile(ctx context.Context, companyID, periodID, actorID int64) ([]ReconciliationResult, error) {
	p, err := s.repo.Get(ctx, companyID, periodID)
	if err != nil {
		return nil, err
	}
	if s.subledger == nil || s.gl == nil {
		return nil, errors.New("periods: reconciliation ports not configured")
	}
	now := s.now()
	results := make([]ReconciliationResult, 0, 2)

	glBank, err := s.gl.CategoryBalance(ctx, companyID, "BANK", p.PeriodEnd)
	if err != nil {
		return nil, err
	}
	slBank, err := s.subledger.BankBalance(ctx, companyID, p.PeriodEnd)
	if err != nil {
		return nil, err
	}
	results = append(results, ReconciliationResult{
		Kind: "BANK", GLBalance: glBank, SubledgerBalance: slBank,
		Variance: shared.Round2(glBank - slBank), ComputedAt: now,
	})

	glAP, err := s.gl.CategoryBalance(ctx, companyID, "AP", p.PeriodEnd)
	if err != nil {
		return nil, err
	}
	slAP, err := s.subledger.APBalance(ctx, companyID, p.PeriodEnd)
	if err != nil {
		return nil, err
	}
	results = append(results, ReconciliationResult{
		Kind: "AP", GLBalance: glAP, SubledgerBalance: slAP,
		Variance: shared.Round2(glAP - slAP), ComputedAt: now,
	})

	if err := s.repo.UpdateReconciliation(ctx, companyID, periodID, results); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, companyID, "period.reconciled", periodID, shared.AuditSeverityInfo, nil)
	return results, nil
}

// CurrentPeriod returns the period covering today. When no row exists it
// suggests the uninitialized period instead of failing, so callers can offer
// to initialize the fiscal year.
func (s *Service) CurrentPeriod(ctx context.Context, companyID int64) (Period, bool, error) {
	today := s.now()
	p, err := s.repo.FindByDate(ctx, companyID, today)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Period{}, false, err
	}
	fy := shared.FiscalYearForDate(today)
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		CompanyID:   companyID,
		FiscalYear:  fy,
		Month:       int(today.Month()),
		Year:        today.Year(),
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, -1),
		Status:      StatusOpen,
	}, false, nil
}

// Summary aggregates period statuses for a fiscal year.
func (s *Service) Summary(ctx context.Context, companyID int64, fiscalYear string) (StatusSummary, error) {
	items, err := s.repo.List(ctx, companyID, fiscalYear)
	if err != nil {
		return StatusSummary{}, err
	}
	summary := StatusSummary{FiscalYear: fiscalYear, Total: len(items), ByStatus: map[Status]int{}}
	for _, p := range items {
		summary.ByStatus[p.Status]++
	}
	return summary, nil
}

// IsDateInOpenPeriod is the posting gate consumed by the ledger. A date with
// no period row is permissively allowed: the period is not yet under control.
// An existing row blocks posting unless OPEN, or SOFT_CLOSE when the caller
// holds the override.
func (s *Service) IsDateInOpenPeriod(ctx context.Context, companyID int64, date time.Time, allowSoftClose bool) error {
	p, err := s.repo.FindByDate(ctx, companyID, date)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	switch p.Status {
	case StatusOpen:
		return nil
	case StatusSoftClose:
		if allowSoftClose {
			return nil
		}
		return ErrClosedPeriod
	default:
		return ErrClosedPeriod
	}
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, sev shared.AuditSeverity, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "accounting_period",
		EntityID:  strconv.FormatInt(entityID, 10),
		Severity:  sev,
		Meta:      meta,
		At:        s.now(),
	})
}

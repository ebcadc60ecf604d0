package periods

import (
	"fmt"
	"strings"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
)

// MinReopenReasonLen keeps reopen justifications audit-worthy.
const MinReopenReasonLen = 20

var (
	ErrNotFound      = fmt.Errorf("periods: period not found: %w", httpx.ErrNotFound)
	ErrClosedPeriod  = fmt.Errorf("periods: period does not accept postings: %w", httpx.ErrPrecondition)
	ErrWrongStatus   = fmt.Errorf("periods: period is not in the required status: %w", httpx.ErrPrecondition)
	ErrChecklistGate = fmt.Errorf("periods: closing checklist incomplete: %w", httpx.ErrPrecondition)
	ErrLockedPeriod  = fmt.Errorf("periods: period is locked: %w", httpx.ErrPrecondition)
	ErrForbidden     = fmt.Errorf("periods: privileged role required: %w", httpx.ErrForbidden)
	ErrNotEarlier    = fmt.Errorf("periods: reopen target must be an earlier status: %w", httpx.ErrValidation)
	ErrUnknownStatus = fmt.Errorf("periods: unknown status: %w", httpx.ErrValidation)
)

// TransitionInput identifies a period transition request.
type TransitionInput struct {
	CompanyID int64
	PeriodID  int64
	ActorID   int64
	ActorRole string
}

// ReopenInput moves a period back to an earlier status.
type ReopenInput struct {
	CompanyID int64
	PeriodID  int64
	Target    Status
	Reason    string
	ActorID   int64
	ActorRole string
}

// Validate enforces the reopen controls.
func (in ReopenInput) Validate() error {
	if !in.Target.Valid() {
		return ErrUnknownStatus
	}
	if len(strings.TrimSpace(in.Reason)) < MinReopenReasonLen {
		return fmt.Errorf("periods: reopen reason must be at least %d characters: %w", MinReopenReasonLen, httpx.ErrValidation)
	}
	return nil
}

// ChecklistUpdateInput patches checklist booleans.
type ChecklistUpdateInput struct {
	CompanyID int64
	PeriodID  int64
	Checklist Checklist
	ActorID   int64
}

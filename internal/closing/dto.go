package closing

import (
	"fmt"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
)

var (
	ErrNotFound         = fmt.Errorf("closing: year-end closing not found: %w", httpx.ErrNotFound)
	ErrAlreadyExists    = fmt.Errorf("closing: fiscal year already has a closing run: %w", httpx.ErrDuplicate)
	ErrWrongStatus      = fmt.Errorf("closing: run is not in the required status: %w", httpx.ErrPrecondition)
	ErrNotCompleted     = fmt.Errorf("closing: run must be completed before locking: %w", httpx.ErrPrecondition)
	ErrPeriodsNotClosed = fmt.Errorf("closing: all fiscal-year periods must be hard closed first: %w", httpx.ErrPrecondition)
	ErrUnbalancedBooks  = fmt.Errorf("closing: trial balance does not balance: %w", httpx.ErrPrecondition)
	ErrForbidden        = fmt.Errorf("closing: privileged role required: %w", httpx.ErrForbidden)
)

// InitiateInput starts a closing run for a fiscal year.
type InitiateInput struct {
	CompanyID  int64
	FiscalYear string
	ActorID    int64
}

// ExecuteInput posts the closing entries of a draft run.
type ExecuteInput struct {
	CompanyID int64
	ClosingID int64
	ActorID   int64
	ActorRole string
}

// LockInput finalizes a completed run and locks its periods.
type LockInput struct {
	CompanyID int64
	ClosingID int64
	ActorID   int64
	ActorRole string
}

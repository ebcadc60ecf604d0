package accounts

import (
	"fmt"
	"strings"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
)

// Sentinel errors wrap the httpx taxonomy so handlers map them with a single
// errors.Is chain.
var (
	ErrNotFound      = fmt.Errorf("accounts: account not found: %w", httpx.ErrNotFound)
	ErrDuplicateCode = fmt.Errorf("accounts: code already exists in company: %w", httpx.ErrDuplicate)
	ErrCycle         = fmt.Errorf("accounts: move would create a cycle: %w", httpx.ErrValidation)
	ErrLevelChange   = fmt.Errorf("accounts: move would change level of a posted account: %w", httpx.ErrPrecondition)
	ErrCodeImmutable = fmt.Errorf("accounts: code is immutable once referenced by postings: %w", httpx.ErrPrecondition)
	ErrHasChildren   = fmt.Errorf("accounts: account has child accounts: %w", httpx.ErrPrecondition)
	ErrAmbiguous     = fmt.Errorf("accounts: ambiguous classification match: %w", httpx.ErrPrecondition)
	ErrNoMatch       = fmt.Errorf("accounts: no account matches classification: %w", httpx.ErrNotFound)
)

// CreateInput carries fields for a new account.
type CreateInput struct {
	CompanyID      int64
	Code           string
	Name           string
	Type           AccountType
	NormalBalance  NormalBalance // optional, derived from Type when empty
	Category       Category
	ParentID       *int64
	IsPostable     bool
	OpeningBalance float64
	ActorID        int64
}

// Validate enforces structural rules; hierarchy rules need the repository and
// are checked by the service.
func (in CreateInput) Validate() error {
	if in.CompanyID == 0 {
		return fmt.Errorf("accounts: company id required: %w", httpx.ErrValidation)
	}
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("accounts: code required: %w", httpx.ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("accounts: name required: %w", httpx.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("accounts: unknown account type %q: %w", in.Type, httpx.ErrValidation)
	}
	if in.NormalBalance != "" && in.NormalBalance != NormalBalanceFor(in.Type) {
		return fmt.Errorf("accounts: normal balance %s contradicts type %s: %w", in.NormalBalance, in.Type, httpx.ErrValidation)
	}
	return nil
}

// UpdateInput carries mutable account fields. Code changes are rejected by
// the service once the account is referenced by postings.
type UpdateInput struct {
	CompanyID int64
	AccountID int64
	Code      *string
	Name      *string
	Category  *Category
	Postable  *bool
	ActorID   int64
}

// MoveInput reparents an account.
type MoveInput struct {
	CompanyID   int64
	AccountID   int64
	NewParentID *int64 // nil promotes to root
	Force       bool   // permit level change for accounts with postings
	ActorID     int64
}

// ImportRow is one record of a bulk import.
type ImportRow struct {
	Code       string
	Name       string
	Type       AccountType
	ParentCode string
	IsPostable bool
}

// ImportResult collects per-row outcomes; duplicates are skipped, not fatal.
type ImportResult struct {
	Created int
	Skipped int
	Errors  []ImportRowError
}

// ImportRowError ties a failure to its source row.
type ImportRowError struct {
	Row    int
	Code   string
	Reason string
}

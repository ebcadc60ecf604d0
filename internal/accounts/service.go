package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Service owns the chart of accounts rules.
type Service struct {
	repo  Repository
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs the account registry service.
func NewService(repo Repository, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]Account, error) {
	return s.repo.List(ctx, companyID, filter)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Account, error) {
	return s.repo.Get(ctx, companyID, id)
}

// Create inserts a new account. The normal balance is derived from the type
// when omitted; the level follows the parent.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	level := 1
	if in.ParentID != nil {
		parent, err := s.repo.Get(ctx, in.CompanyID, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		level = parent.Level + 1
		if level > maxLevel {
			return Account{}, fmt.Errorf("accounts: hierarchy deeper than %d levels: %w", maxLevel, httpx.ErrValidation)
		}
	}
	created, err := s.repo.Insert(ctx, in, NormalBalanceFor(in.Type), level)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, created.CompanyID, "account.created", created.ID, shared.AuditSeverityInfo, map[string]any{
		"code": created.Code, "type": string(created.Type),
	})
	return created, nil
}

// Update applies mutable fields. The code is frozen once the account has
// postings because issued documents reference it.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Account, error) {
	account, err := s.repo.Get(ctx, in.CompanyID, in.AccountID)
	if err != nil {
		return Account{}, err
	}
	if in.Code != nil && *in.Code != account.Code {
		posted, err := s.repo.HasPostings(ctx, in.CompanyID, in.AccountID)
		if err != nil {
			return Account{}, err
		}
		if posted {
			return Account{}, ErrCodeImmutable
		}
		account.Code = *in.Code
	}
	if in.Name != nil {
		account.Name = *in.Name
	}
	if in.Category != nil {
		account.Category = *in.Category
	}
	if in.Postable != nil {
		account.IsPostable = *in.Postable
	}
	if err := s.repo.Update(ctx, account); err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "account.updated", account.ID, shared.AuditSeverityInfo, nil)
	return account, nil
}

// Move reparents an account. Moves are rejected when they would create a
// cycle, and when they would change the level of an account that already has
// postings, unless forced.
func (s *Service) Move(ctx context.Context, in MoveInput) (Account, error) {
	account, err := s.repo.Get(ctx, in.CompanyID, in.AccountID)
	if err != nil {
		return Account{}, err
	}
	newLevel := 1
	if in.NewParentID != nil {
		if *in.NewParentID == in.AccountID {
			return Account{}, ErrCycle
		}
		parent, err := s.repo.Get(ctx, in.CompanyID, *in.NewParentID)
		if err != nil {
			return Account{}, err
		}
		if err := s.ensureNotDescendant(ctx, in.CompanyID, in.AccountID, parent); err != nil {
			return Account{}, err
		}
		newLevel = parent.Level + 1
	}
	if newLevel > maxLevel {
		return Account{}, fmt.Errorf("accounts: hierarchy deeper than %d levels: %w", maxLevel, httpx.ErrValidation)
	}
	if newLevel != account.Level && !in.Force {
		posted, err := s.repo.HasPostings(ctx, in.CompanyID, in.AccountID)
		if err != nil {
			return Account{}, err
		}
		if posted {
			return Account{}, ErrLevelChange
		}
	}
	delta := newLevel - account.Level
	if err := s.repo.SetParent(ctx, in.CompanyID, in.AccountID, in.NewParentID, newLevel); err != nil {
		return Account{}, err
	}
	if delta != 0 {
		if err := s.repo.ShiftSubtreeLevels(ctx, in.CompanyID, in.AccountID, delta); err != nil {
			return Account{}, err
		}
	}
	account.ParentID = in.NewParentID
	account.Level = newLevel
	s.record(ctx, in.ActorID, in.CompanyID, "account.moved", account.ID, shared.AuditSeverityInfo, map[string]any{
		"new_level": newLevel,
	})
	return account, nil
}

// ensureNotDescendant walks ancestors from the candidate parent towards the
// root, rejecting the move if it passes through the account itself.
func (s *Service) ensureNotDescendant(ctx context.Context, companyID, accountID int64, parent Account) error {
	cursor := parent
	for depth := 0; depth < maxLevel+1; depth++ {
		if cursor.ID == accountID {
			return ErrCycle
		}
		if cursor.ParentID == nil {
			return nil
		}
		next, err := s.repo.Get(ctx, companyID, *cursor.ParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// dangling parent reference, treated as a root
				return nil
			}
			return err
		}
		cursor = next
	}
	return ErrCycle
}

// Delete removes an account outright when nothing references it; otherwise
// it retires the account to INACTIVE so history stays intact.
func (s *Service) Delete(ctx context.Context, companyID, id, actorID int64) (Lifecycle, error) {
	if _, err := s.repo.Get(ctx, companyID, id); err != nil {
		return "", err
	}
	children, err := s.repo.HasChildren(ctx, companyID, id)
	if err != nil {
		return "", err
	}
	if children {
		return "", ErrHasChildren
	}
	posted, err := s.repo.HasPostings(ctx, companyID, id)
	if err != nil {
		return "", err
	}
	if posted {
		if err := s.repo.SetLifecycle(ctx, companyID, id, LifecycleInactive); err != nil {
			return "", err
		}
		s.record(ctx, actorID, companyID, "account.deactivated", id, shared.AuditSeverityInfo, nil)
		return LifecycleInactive, nil
	}
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return "", err
	}
	s.record(ctx, actorID, companyID, "account.deleted", id, shared.AuditSeverityInfo, nil)
	return "", nil
}

// BulkImport creates accounts row by row, skipping duplicates and collecting
// per-row errors instead of failing the batch.
func (s *Service) BulkImport(ctx context.Context, companyID, actorID int64, rows []ImportRow) (ImportResult, error) {
	var result ImportResult
	for i, row := range rows {
		var parentID *int64
		if row.ParentCode != "" {
			parent, err := s.repo.GetByCode(ctx, companyID, row.ParentCode)
			if err != nil {
				result.Errors = append(result.Errors, ImportRowError{Row: i, Code: row.Code, Reason: "parent code not found"})
				continue
			}
			parentID = &parent.ID
		}
		_, err := s.Create(ctx, CreateInput{
			CompanyID:  companyID,
			Code:       row.Code,
			Name:       row.Name,
			Type:       row.Type,
			ParentID:   parentID,
			IsPostable: row.IsPostable,
			ActorID:    actorID,
		})
		switch {
		case err == nil:
			result.Created++
		case errors.Is(err, ErrDuplicateCode):
			result.Skipped++
		default:
			result.Errors = append(result.Errors, ImportRowError{Row: i, Code: row.Code, Reason: err.Error()})
		}
	}
	return result, nil
}

// FindByCategory locates the single account carrying an explicit category.
// A name-pattern fallback covers charts imported before categories existed;
// an ambiguous fallback match is surfaced rather than silently picking one.
func (s *Service) FindByCategory(ctx context.Context, companyID int64, cat Category, namePattern string) (Account, error) {
	matches, err := s.repo.ListByCategory(ctx, companyID, cat)
	if err != nil {
		return Account{}, err
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return Account{}, fmt.Errorf("%w: %d accounts carry category %s", ErrAmbiguous, len(matches), cat)
	}
	if namePattern == "" {
		return Account{}, fmt.Errorf("%w: category %s", ErrNoMatch, cat)
	}
	candidates, err := s.repo.SearchByName(ctx, companyID, namePattern)
	if err != nil {
		return Account{}, err
	}
	switch len(candidates) {
	case 0:
		return Account{}, fmt.Errorf("%w: category %s", ErrNoMatch, cat)
	case 1:
		return candidates[0], nil
	default:
		return Account{}, fmt.Errorf("%w: %d name matches for %s", ErrAmbiguous, len(candidates), cat)
	}
}

// AccountIDsByCategory lists all accounts tagged with a category. Used by
// reconciliation to sum the GL side of a subledger comparison.
func (s *Service) AccountIDsByCategory(ctx context.Context, companyID int64, category string) ([]int64, error) {
	matches, err := s.repo.ListByCategory(ctx, companyID, Category(category))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(matches))
	for _, a := range matches {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, sev shared.AuditSeverity, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "account",
		EntityID:  strconv.FormatInt(entityID, 10),
		Severity:  sev,
		Meta:      meta,
		At:        s.now(),
	})
}

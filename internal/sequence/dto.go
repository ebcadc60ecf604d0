package sequence

import (
	"fmt"
	"strings"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
)

const (
	// MaxBatchSize caps one Allocate call.
	MaxBatchSize = 100
	// MinVoidReasonLen keeps void reasons audit-worthy.
	MinVoidReasonLen = 10
)

var (
	ErrNotFound          = fmt.Errorf("sequence: sequence not found: %w", httpx.ErrNotFound)
	ErrDuplicate         = fmt.Errorf("sequence: sequence already exists: %w", httpx.ErrDuplicate)
	ErrAllocationMissing = fmt.Errorf("sequence: allocation not found: %w", httpx.ErrNotFound)
	ErrNotVoidable       = fmt.Errorf("sequence: only unused reservations can be voided: %w", httpx.ErrPrecondition)
	ErrForbidden         = fmt.Errorf("sequence: privileged role required: %w", httpx.ErrForbidden)
)

// CreateInput configures a new sequence.
type CreateInput struct {
	CompanyID      int64
	DocumentType   string
	FiscalYear     string
	Prefix         string
	Suffix         string
	PaddingLength  int
	Separator      string
	StartingNumber int64
}

// Validate checks structural rules.
func (in CreateInput) Validate() error {
	if in.CompanyID == 0 {
		return fmt.Errorf("sequence: company id required: %w", httpx.ErrValidation)
	}
	if strings.TrimSpace(in.DocumentType) == "" {
		return fmt.Errorf("sequence: document type required: %w", httpx.ErrValidation)
	}
	if in.PaddingLength < 0 || in.PaddingLength > 12 {
		return fmt.Errorf("sequence: padding length out of range: %w", httpx.ErrValidation)
	}
	if in.StartingNumber < 0 {
		return fmt.Errorf("sequence: starting number cannot be negative: %w", httpx.ErrValidation)
	}
	return nil
}

// UpdateInput carries the non-destructive format fields. Counter fields are
// deliberately absent: numbers already issued must stay interpretable.
type UpdateInput struct {
	CompanyID     int64
	DocumentType  string
	FiscalYear    string
	Prefix        *string
	Suffix        *string
	PaddingLength *int
	Separator     *string
}

// VoidInput marks a reserved number as intentionally skipped.
type VoidInput struct {
	CompanyID    int64
	DocumentType string
	FiscalYear   string
	Number       int64
	Reason       string
	ActorID      int64
	ActorRole    string
}

// Validate enforces the audit-grade reason.
func (in VoidInput) Validate() error {
	if len(strings.TrimSpace(in.Reason)) < MinVoidReasonLen {
		return fmt.Errorf("sequence: void reason must be at least %d characters: %w", MinVoidReasonLen, httpx.ErrValidation)
	}
	return nil
}

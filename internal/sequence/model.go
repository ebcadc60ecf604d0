package sequence

import (
	"strconv"
	"strings"
	"time"
)

// DocumentSequence issues gap-free numbers for one (company, document type,
// fiscal year). CurrentNumber only ever increases; the atomic increment on
// this row is the single source of uniqueness.
type DocumentSequence struct {
	ID             int64
	CompanyID      int64
	DocumentType   string
	FiscalYear     string
	Prefix         string
	Suffix         string
	PaddingLength  int
	Separator      string
	StartingNumber int64
	CurrentNumber  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Format renders a raw number into the configured document number. Formatting
// is pure and derived; it never participates in uniqueness.
func (s DocumentSequence) Format(number int64) string {
	padded := strconv.FormatInt(number, 10)
	if s.PaddingLength > len(padded) {
		padded = strings.Repeat("0", s.PaddingLength-len(padded)) + padded
	}
	parts := make([]string, 0, 4)
	if s.Prefix != "" {
		parts = append(parts, s.Prefix)
	}
	if s.FiscalYear != "" {
		parts = append(parts, s.FiscalYear)
	}
	parts = append(parts, padded)
	if s.Suffix != "" {
		parts = append(parts, s.Suffix)
	}
	sep := s.Separator
	if sep == "" {
		sep = "-"
	}
	return strings.Join(parts, sep)
}

// AllocationStatus tracks what happened to an issued number.
type AllocationStatus string

const (
	// AllocationUsed marks a number issued directly by Next.
	AllocationUsed AllocationStatus = "USED"
	// AllocationAllocated marks a number reserved ahead of use.
	AllocationAllocated AllocationStatus = "ALLOCATED"
	// AllocationVoided marks a reservation intentionally skipped. The
	// counter is never decremented; the void preserves the audit trail.
	AllocationVoided AllocationStatus = "VOIDED"
)

// Allocation is the usage-log row for one issued number.
type Allocation struct {
	ID         int64
	SequenceID int64
	Number     int64
	Status     AllocationStatus
	Formatted  string
	Reason     string
	ActorID    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

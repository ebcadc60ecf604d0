package currency

import (
	"errors"
	"fmt"
	"time"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
)

var (
	ErrNotFound        = fmt.Errorf("currency: not found: %w", httpx.ErrNotFound)
	ErrRateNotFound    = fmt.Errorf("currency: no exchange rate on or before the date: %w", httpx.ErrPrecondition)
	ErrDuplicateRate   = fmt.Errorf("currency: rate already recorded for that date: %w", httpx.ErrDuplicate)
	ErrNoPosition      = fmt.Errorf("currency: account holds no position in that currency: %w", httpx.ErrPrecondition)
	ErrInsufficientFCY = fmt.Errorf("currency: settlement exceeds the foreign-currency balance: %w", httpx.ErrPrecondition)
)

// CreateRateInput records a new immutable exchange rate.
type CreateRateInput struct {
	CompanyID     int64
	Currency      string
	Rate          float64
	EffectiveDate time.Time
	ActorID       int64
}

func (in CreateRateInput) Validate() error {
	if len(in.Currency) != 3 {
		return errors.New("currency: code must be a 3-letter ISO code")
	}
	if in.Rate <= 0 {
		return errors.New("currency: rate must be positive")
	}
	if in.EffectiveDate.IsZero() {
		return errors.New("currency: effective date required")
	}
	return nil
}

// ConvertInput converts an amount between two currencies as of a date.
type ConvertInput struct {
	CompanyID int64
	Amount    float64
	From      string
	To        string
	AsOf      time.Time
}

// UpsertBalanceInput records or adjusts an account's foreign-currency
// position, typically fed by subledger integrations.
type UpsertBalanceInput struct {
	CompanyID   int64
	AccountID   int64
	Currency    string
	FCYBalance  float64
	BaseBalance float64
	ActorID     int64
}

// RevalueInput runs a revaluation over the company's foreign positions.
// Currencies narrows the run; empty means all held currencies.
type RevalueInput struct {
	CompanyID      int64
	Currencies     []string
	AsOf           time.Time
	PostAdjustment bool
	ActorID        int64
	ActorRole      string
}

// SettleInput converts part of a foreign position back to base currency.
// SettlementRate zero means the latest recorded rate.
type SettleInput struct {
	CompanyID      int64
	AccountID      int64
	Currency       string
	FCYAmount      float64
	SettlementRate float64
	BankAccountID  int64
	SettlementDate time.Time
	ActorID        int64
	ActorRole      string
}

func (in SettleInput) Validate() error {
	if in.AccountID == 0 || in.BankAccountID == 0 {
		return errors.New("currency: account and bank account required")
	}
	if len(in.Currency) != 3 {
		return errors.New("currency: code must be a 3-letter ISO code")
	}
	if in.FCYAmount <= 0 {
		return errors.New("currency: settlement amount must be positive")
	}
	if in.SettlementRate < 0 {
		return errors.New("currency: settlement rate cannot be negative")
	}
	return nil
}

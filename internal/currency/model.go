package currency

import "time"

// ExchangeRate is an immutable rate row: base-currency units per one unit of
// the foreign currency, effective from a date. Corrections add new rows.
type ExchangeRate struct {
	ID            int64     `json:"id"`
	CompanyID     int64     `json:"companyId"`
	Currency      string    `json:"currency"`
	Rate          float64   `json:"rate"`
	EffectiveDate time.Time `json:"effectiveDate"`
	CreatedBy     int64     `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FCYBalance tracks one account's position in a foreign currency alongside
// the base-currency amount it was last carried at.
type FCYBalance struct {
	ID                  int64      `json:"id"`
	CompanyID           int64      `json:"companyId"`
	AccountID           int64      `json:"accountId"`
	Currency            string     `json:"currency"`
	FCYBalance          float64    `json:"fcyBalance"`
	BaseBalance         float64    `json:"baseBalance"`
	LastRevaluationRate *float64   `json:"lastRevaluationRate,omitempty"`
	LastRevaluationAt   *time.Time `json:"lastRevaluationAt,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// RevaluationLine is one account's unrealized gain or loss at the new rate.
type RevaluationLine struct {
	AccountID  int64   `json:"accountId"`
	Currency   string  `json:"currency"`
	Rate       float64 `json:"rate"`
	FCYBalance float64 `json:"fcyBalance"`
	OldBase    float64 `json:"oldBase"`
	NewBase    float64 `json:"newBase"`
	Delta      float64 `json:"delta"`
}

// RevaluationResult summarizes one revaluation run.
type RevaluationResult struct {
	AsOf           time.Time         `json:"asOf"`
	Lines          []RevaluationLine `json:"lines"`
	TotalGainLoss  float64           `json:"totalGainLoss"`
	JournalEntryID *int64            `json:"journalEntryId,omitempty"`
}

// SettlementResult reports the realized side of converting a foreign-currency
// position back to base.
type SettlementResult struct {
	AccountID        int64   `json:"accountId"`
	Currency         string  `json:"currency"`
	FCYAmount        float64 `json:"fcyAmount"`
	WeightedRate     float64 `json:"weightedRate"`
	SettlementRate   float64 `json:"settlementRate"`
	HistoricalBase   float64 `json:"historicalBase"`
	SettlementBase   float64 `json:"settlementBase"`
	RealizedGainLoss float64 `json:"realizedGainLoss"`
	JournalEntryID   *int64  `json:"journalEntryId,omitempty"`
}

package cashflow

import "time"

// Category is the cash-flow section a movement belongs to.
type Category string

const (
	CategoryOperating Category = "OPERATING"
	CategoryInvesting Category = "INVESTING"
	CategoryFinancing Category = "FINANCING"
)

// WorkingCapitalDelta is one balance-sheet movement feeding the indirect
// operating section. Effect carries the cash impact: an asset build-up is
// negative, a liability build-up positive.
type WorkingCapitalDelta struct {
	AccountID int64   `json:"accountId"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Delta     float64 `json:"delta"`
	Effect    float64 `json:"effect"`
}

// IndirectStatement is the indirect-method cash-flow statement for a window.
type IndirectStatement struct {
	From                 time.Time             `json:"from"`
	To                   time.Time             `json:"to"`
	NetIncome            float64               `json:"netIncome"`
	DepreciationAddBack  float64               `json:"depreciationAddBack"`
	WorkingCapitalDeltas []WorkingCapitalDelta `json:"workingCapitalDeltas"`
	NetCashFromOperating float64               `json:"netCashFromOperating"`
	NetCashFromInvesting float64               `json:"netCashFromInvesting"`
	NetCashFromFinancing float64               `json:"netCashFromFinancing"`
	NetChangeInCash      float64               `json:"netChangeInCash"`
	OpeningCash          float64               `json:"openingCash"`
	ClosingCash          float64               `json:"closingCash"`
	Variance             float64               `json:"variance"`
	IsReconciled         bool                  `json:"isReconciled"`
	FormattedNetChange   string                `json:"formattedNetChange"`
}

// DirectItem is one itemized receipt or payment, classified by the contra
// account of the cash movement.
type DirectItem struct {
	EntryID     int64     `json:"entryId"`
	EntryNumber string    `json:"entryNumber"`
	Date        time.Time `json:"date"`
	Memo        string    `json:"memo"`
	ContraCode  string    `json:"contraCode"`
	Category    Category  `json:"category"`
	Inflow      float64   `json:"inflow"`
	Outflow     float64   `json:"outflow"`
}

// DirectSection aggregates one category of the direct-method statement.
type DirectSection struct {
	Category Category     `json:"category"`
	Items    []DirectItem `json:"items"`
	Inflow   float64      `json:"inflow"`
	Outflow  float64      `json:"outflow"`
	Net      float64      `json:"net"`
}

// DirectStatement is the direct-method cash-flow statement for a window.
type DirectStatement struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Sections     []DirectSection `json:"sections"`
	TotalInflow  float64         `json:"totalInflow"`
	TotalOutflow float64         `json:"totalOutflow"`
	NetCashFlow  float64         `json:"netCashFlow"`
	FormattedNet string          `json:"formattedNet"`
}

// ForecastMonth is one projected month of cash movement.
type ForecastMonth struct {
	Month            string  `json:"month"`
	ProjectedInflow  float64 `json:"projectedInflow"`
	ProjectedOutflow float64 `json:"projectedOutflow"`
	ProjectedNet     float64 `json:"projectedNet"`
}

// Forecast extrapolates a linear trend over the trailing months. It is a
// heuristic projection, not a bound.
type Forecast struct {
	BasedOnMonths int             `json:"basedOnMonths"`
	Trend         float64         `json:"trend"`
	Months        []ForecastMonth `json:"months"`
}

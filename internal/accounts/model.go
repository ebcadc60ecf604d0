package accounts

import "time"

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset           AccountType = "ASSET"
	AccountTypeLiability       AccountType = "LIABILITY"
	AccountTypeEquity          AccountType = "EQUITY"
	AccountTypeRevenue         AccountType = "REVENUE"
	AccountTypeExpense         AccountType = "EXPENSE"
	AccountTypeContraAsset     AccountType = "CONTRA_ASSET"
	AccountTypeContraLiability AccountType = "CONTRA_LIABILITY"
)

// Valid reports whether the type is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeRevenue, AccountTypeExpense,
		AccountTypeContraAsset, AccountTypeContraLiability:
		return true
	}
	return false
}

// NormalBalance is the side on which an account naturally increases.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// NormalBalanceFor derives the normal balance implied by an account type.
func NormalBalanceFor(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeContraLiability:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// Category is the explicit classification used by the closing and currency
// engines to locate special-purpose accounts. Name matching is only a
// fallback when no account carries the category.
type Category string

const (
	CategoryNone             Category = "NONE"
	CategoryRetainedEarnings Category = "RETAINED_EARNINGS"
	CategoryIncomeSummary    Category = "INCOME_SUMMARY"
	CategoryCash             Category = "CASH"
	CategoryBank             Category = "BANK"
	CategoryForexGain        Category = "FOREX_GAIN"
	CategoryForexLoss        Category = "FOREX_LOSS"
)

// Lifecycle is a tagged account state. INACTIVE means the account is retired
// but still referenced by postings; PENDING_DELETION marks an account queued
// for removal once its references age out.
type Lifecycle string

const (
	LifecycleActive          Lifecycle = "ACTIVE"
	LifecycleInactive        Lifecycle = "INACTIVE"
	LifecyclePendingDeletion Lifecycle = "PENDING_DELETION"
)

// Account models a chart of accounts node. Code is unique per company and
// ParentID forms a forest with Level = parent.Level + 1, capped at 5.
type Account struct {
	ID             int64
	CompanyID      int64
	Code           string
	Name           string
	Level          int
	ParentID       *int64
	Type           AccountType
	NormalBalance  NormalBalance
	Category       Category
	IsPostable     bool
	Lifecycle      Lifecycle
	OpeningBalance float64
	CurrentBalance float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the account may appear on new journal lines.
func (a Account) Active() bool {
	return a.Lifecycle == LifecycleActive
}

const maxLevel = 5

package ledger

import "time"

// EntryStatus tracks a journal entry through its immutable lifecycle. A
// posted entry is never edited; corrections go through Reverse.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "DRAFT"
	StatusPosted   EntryStatus = "POSTED"
	StatusReversed EntryStatus = "REVERSED"
)

// JournalEntry is the unit of posting. TotalDebit and TotalCredit are stored
// denormalized; the balance invariant is enforced before insert.
type JournalEntry struct {
	ID          int64         `json:"id"`
	CompanyID   int64         `json:"companyId"`
	EntryNumber string        `json:"entryNumber"`
	EntryDate   time.Time     `json:"entryDate"`
	Memo        string        `json:"memo"`
	Status      EntryStatus   `json:"status"`
	TotalDebit  float64       `json:"totalDebit"`
	TotalCredit float64       `json:"totalCredit"`
	ReversalOf  *int64        `json:"reversalOf,omitempty"`
	ReversedBy  *int64        `json:"reversedBy,omitempty"`
	PostedBy    int64         `json:"postedBy"`
	PostedAt    time.Time     `json:"postedAt"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	Lines       []JournalLine `json:"lines,omitempty"`
}

// JournalLine carries exactly one non-zero side.
type JournalLine struct {
	ID          int64   `json:"id"`
	EntryID     int64   `json:"entryId"`
	AccountID   int64   `json:"accountId"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description,omitempty"`
}

// AccountActivity is a per-account aggregate over posted lines in a window.
// Signed carries the movement in the account's natural direction.
type AccountActivity struct {
	AccountID     int64   `json:"accountId"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	NormalBalance string  `json:"normalBalance"`
	Debit         float64 `json:"debit"`
	Credit        float64 `json:"credit"`
	Signed        float64 `json:"signed"`
}

// postingAccount is the slice of account state the posting path needs.
type postingAccount struct {
	ID            int64
	Code          string
	NormalBalance string
	IsPostable    bool
	Lifecycle     string
}

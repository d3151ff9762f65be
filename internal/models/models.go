package models

import "time"

type TemplateID string

const (
	TemplateClassic  TemplateID = "classic"
	TemplateVibrant  TemplateID = "vibrant"
	TemplateMinimal  TemplateID = "minimal"
	TemplateAcademic TemplateID = "academic"
	TemplateSketch   TemplateID = "sketch"
)

// DefaultTemplate is the fallback for unknown template ids.
const DefaultTemplate = TemplateClassic

type TransactionKind string

const (
	TransactionDeduction TransactionKind = "deduction"
	TransactionBonus     TransactionKind = "bonus"
	TransactionRefund    TransactionKind = "refund"
)

// CoinAccount is the per-user coin balance. Owned by the ledger; callers only
// read it and request guarded updates, never mutate balance directly.
type CoinAccount struct {
	UserID         int64
	Balance        int
	TotalSpent     int
	TotalGenerated int
	MonthlyCount   int
	MonthlyLimit   *int
	MonthStart     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an append-only ledger entry. Amount is signed;
// NewBalance == PreviousBalance + Amount holds for every row.
type Transaction struct {
	ID              int64
	UserID          int64
	Amount          int
	Kind            TransactionKind
	PreviousBalance int
	NewBalance      int
	Description     string
	CreatedAt       time.Time
}

// Note is a generated document. UserID is nil for guest generations.
// Warning is non-empty when billing or persistence only partially succeeded.
type Note struct {
	ID          string
	UserID      *int64
	Title       string
	TemplateID  TemplateID
	PageCount   int
	CoinsSpent  int
	HTMLContent string
	Warning     string
	CreatedAt   time.Time
}

// NoteSummary is the history-listing projection of a Note, without the body.
type NoteSummary struct {
	ID         string
	Title      string
	TemplateID TemplateID
	PageCount  int
	CoinsSpent int
	CreatedAt  time.Time
}

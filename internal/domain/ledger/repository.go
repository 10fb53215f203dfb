package ledger

import (
	"context"
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Repository defines storage operations for accounts and journals.
type Repository interface {
	// Accounts

	CreateAccount(ctx context.Context, a *Account) error
	GetAccountByCode(ctx context.Context, code string) (*Account, error)
	GetAccountsByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)

	// Journals

	CreateJournal(ctx context.Context, j *Journal) error
	InsertLines(ctx context.Context, journalID id.ID, lines []Line) error
	GetJournal(ctx context.Context, journalID id.ID) (*Journal, error)

	// GetJournalForUpdate locks the journal header row for the duration of
	// the surrounding transaction, serializing post/reverse/void per journal.
	GetJournalForUpdate(ctx context.Context, journalID id.ID) (*Journal, error)

	GetLines(ctx context.Context, journalID id.ID) ([]Line, error)

	// UpdateJournalStatus persists status, posted_at/posted_by and
	// reversal linkage. Lines are never updated in place.
	UpdateJournalStatus(ctx context.Context, j *Journal) error

	// FindJournalByReference returns the journal recorded for a
	// (source, reference) pair, or nil. Business-reference dedup layer.
	FindJournalByReference(ctx context.Context, source, reference string) (*Journal, error)

	ListJournals(ctx context.Context, filter JournalFilter) ([]Journal, error)

	// Reporting

	// TrialBalance sums posted debits/credits per account.
	TrialBalance(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error)

	// SubledgerBalance sums posted debits minus credits for lines carrying
	// the given dimension value (e.g. entity = "AGENT:A0042").
	SubledgerBalance(ctx context.Context, dimension, value string) (types.Money, error)
}

// JournalFilter narrows journal listings.
type JournalFilter struct {
	Status   *JournalStatus
	Source   string
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// TrialBalanceRow is one account's posted totals.
type TrialBalanceRow struct {
	AccountID   id.ID       `db:"account_id" json:"accountId"`
	AccountCode string      `db:"account_code" json:"accountCode"`
	AccountName string      `db:"account_name" json:"accountName"`
	TotalDebit  types.Money `db:"total_debit" json:"totalDebit"`
	TotalCredit types.Money `db:"total_credit" json:"totalCredit"`
}

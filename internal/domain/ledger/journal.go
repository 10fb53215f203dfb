package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// JournalStatus is the journal lifecycle state.
// DRAFT → POSTED → REVERSED, or DRAFT → VOIDED. POSTED/VOIDED/REVERSED
// journals never have their lines mutated in place; corrections happen
// through a new reversing journal.
type JournalStatus string

const (
	JournalDraft    JournalStatus = "DRAFT"
	JournalPosted   JournalStatus = "POSTED"
	JournalVoided   JournalStatus = "VOIDED"
	JournalReversed JournalStatus = "REVERSED"
)

// Journal is a double-entry journal header.
type Journal struct {
	ID         id.ID         `db:"id" json:"id"`
	Number     string        `db:"number" json:"number"`
	Date       time.Time     `db:"date" json:"date"`
	Currency   string        `db:"currency" json:"currency"`
	FxRate     types.Money   `db:"fx_rate" json:"fxRate"`
	Source     string        `db:"source" json:"source"`
	Reference  string        `db:"reference" json:"reference,omitempty"`
	Memo       string        `db:"memo" json:"memo,omitempty"`
	Status     JournalStatus `db:"status" json:"status"`
	PostedAt   *time.Time    `db:"posted_at" json:"postedAt,omitempty"`
	PostedBy   string        `db:"posted_by" json:"postedBy,omitempty"`
	ReversalID *id.ID        `db:"reversal_id" json:"reversalId,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
	CreatedBy  string        `db:"created_by" json:"createdBy,omitempty"`

	Lines []Line `db:"-" json:"lines,omitempty"`
}

// Dimensions carries subledger metadata on a line (branch, cost center,
// project, customer, subledger entity such as "AGENT:A0042").
type Dimensions map[string]string

// Line is one side of a double entry. Exactly one of Debit/Credit is
// positive, the other zero.
type Line struct {
	ID         id.ID       `db:"id" json:"id"`
	JournalID  id.ID       `db:"journal_id" json:"journalId"`
	LineNo     int         `db:"line_no" json:"lineNo"`
	AccountID  id.ID       `db:"account_id" json:"accountId"`
	Debit      types.Money `db:"debit" json:"debit"`
	Credit     types.Money `db:"credit" json:"credit"`
	Memo       string      `db:"memo" json:"memo,omitempty"`
	Dimensions Dimensions  `db:"dimensions" json:"dimensions,omitempty"`
}

// NewJournal creates a DRAFT journal header.
func NewJournal(date time.Time, currency, source, reference, memo, createdBy string) *Journal {
	return &Journal{
		ID:        id.New(),
		Date:      date,
		Currency:  currency,
		FxRate:    decimal.NewFromInt(1),
		Source:    source,
		Reference: reference,
		Memo:      memo,
		Status:    JournalDraft,
		CreatedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}
}

// Validate checks the line carries exactly one positive side.
func (l *Line) Validate() error {
	debitSet := l.Debit.IsPositive()
	creditSet := l.Credit.IsPositive()

	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return apperror.NewValidation("journal line amounts cannot be negative").
			WithDetail("line_no", l.LineNo)
	}
	if debitSet == creditSet {
		return apperror.NewValidation("journal line must have exactly one of debit or credit set").
			WithDetail("line_no", l.LineNo).
			WithDetail("debit", l.Debit.String()).
			WithDetail("credit", l.Credit.String())
	}
	return nil
}

// TotalDebit sums the debit side of the given lines.
func TotalDebit(lines []Line) types.Money {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit side of the given lines.
func TotalCredit(lines []Line) types.Money {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Credit)
	}
	return total
}

// ValidateBalanced checks Σdebit = Σcredit across the lines.
func (j *Journal) ValidateBalanced(lines []Line) error {
	if len(lines) == 0 {
		return apperror.NewValidation("journal has no lines").
			WithDetail("journal_number", j.Number)
	}

	debit := TotalDebit(lines)
	credit := TotalCredit(lines)
	if !debit.Equal(credit) {
		return apperror.NewUnbalancedJournal(j.Number, debit.String(), credit.String())
	}
	return nil
}

// requireStatus fails unless the journal is in the wanted state.
func (j *Journal) requireStatus(wanted JournalStatus) error {
	if j.Status != wanted {
		return apperror.NewJournalState(j.Number, string(j.Status), string(wanted))
	}
	return nil
}

// DebitLine builds a debit line against an account.
func DebitLine(accountID id.ID, amount types.Money, memo string, dims Dimensions) Line {
	return Line{
		ID:         id.New(),
		AccountID:  accountID,
		Debit:      amount,
		Credit:     decimal.Zero,
		Memo:       memo,
		Dimensions: dims,
	}
}

// CreditLine builds a credit line against an account.
func CreditLine(accountID id.ID, amount types.Money, memo string, dims Dimensions) Line {
	return Line{
		ID:         id.New(),
		AccountID:  accountID,
		Debit:      decimal.Zero,
		Credit:     amount,
		Memo:       memo,
		Dimensions: dims,
	}
}

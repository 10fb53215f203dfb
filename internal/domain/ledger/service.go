package ledger

import (
	"context"
	"fmt"
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/security"
	"retailcore/internal/core/tx"
	"retailcore/internal/core/types"
	"retailcore/pkg/logger"
	"retailcore/pkg/numerator"
)

// Service is the GL posting engine. It owns the journal lifecycle
// (DRAFT → POSTED → REVERSED / DRAFT → VOIDED) and enforces the
// double-entry balance invariant inside the posting transaction.
type Service struct {
	repo      Repository
	txManager tx.Manager
	numerator *numerator.Service
	policy    security.PostingPolicy
}

// NewService creates the GL posting engine.
func NewService(repo Repository, txManager tx.Manager, numerator *numerator.Service, policy security.PostingPolicy) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		numerator: numerator,
		policy:    policy,
	}
}

// CreateJournal inserts a DRAFT journal with its initial lines.
// Line numbers are auto-assigned sequentially when not supplied.
func (s *Service) CreateJournal(ctx context.Context, j *Journal, lines []Line) error {
	if j.Currency == "" {
		return apperror.NewValidation("journal currency is required")
	}
	if j.Date.IsZero() {
		return apperror.NewValidation("journal date is required")
	}
	for i := range lines {
		if err := lines[i].Validate(); err != nil {
			return err
		}
	}

	if j.Number == "" {
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("JRN"), nil, j.Date)
		if err != nil {
			return fmt.Errorf("generate journal number: %w", err)
		}
		j.Number = number
	}

	assignLineNumbers(j.ID, lines)

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateJournal(ctx, j); err != nil {
			return err
		}
		if len(lines) > 0 {
			if err := s.repo.InsertLines(ctx, j.ID, lines); err != nil {
				return err
			}
		}
		j.Lines = lines
		return nil
	})
}

// AppendLines adds lines to a DRAFT journal.
func (s *Service) AppendLines(ctx context.Context, journalID id.ID, lines []Line) error {
	for i := range lines {
		if err := lines[i].Validate(); err != nil {
			return err
		}
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		j, err := s.repo.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		if err := j.requireStatus(JournalDraft); err != nil {
			return err
		}

		existing, err := s.repo.GetLines(ctx, journalID)
		if err != nil {
			return err
		}
		next := len(existing) + 1
		for i := range lines {
			lines[i].JournalID = journalID
			if lines[i].LineNo == 0 {
				lines[i].LineNo = next
				next++
			}
			if id.IsNil(lines[i].ID) {
				lines[i].ID = id.New()
			}
		}

		return s.repo.InsertLines(ctx, journalID, lines)
	})
}

// Post finalizes a DRAFT journal as an immutable, balanced financial fact.
// The journal row is locked; every line must carry exactly one positive
// side, Σdebit must equal Σcredit, and every account must be postable and
// active. The whole check runs inside the posting transaction so no code
// path can mark an unbalanced journal POSTED.
func (s *Service) Post(ctx context.Context, journalID id.ID, postedBy string) (*Journal, error) {
	var posted *Journal
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		j, err := s.repo.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		if err := j.requireStatus(JournalDraft); err != nil {
			return err
		}
		if err := s.policy.CanPost(ctx, j.Date); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, journalID)
		if err != nil {
			return err
		}
		if err := s.validateLines(ctx, j, lines); err != nil {
			return err
		}

		now := time.Now().UTC()
		j.Status = JournalPosted
		j.PostedAt = &now
		j.PostedBy = postedBy
		if err := s.repo.UpdateJournalStatus(ctx, j); err != nil {
			return err
		}

		j.Lines = lines
		posted = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "journal posted",
		"journal_id", posted.ID,
		"number", posted.Number,
		"total_debit", TotalDebit(posted.Lines).String(),
	)
	return posted, nil
}

// Reverse creates and posts a reversing journal for a POSTED journal and
// marks the original REVERSED. The original's lines are copied with
// debit/credit swapped; the new journal is dated today.
func (s *Service) Reverse(ctx context.Context, journalID id.ID, memo, actor string) (*Journal, error) {
	var reversal *Journal
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		original, err := s.repo.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		if err := original.requireStatus(JournalPosted); err != nil {
			return err
		}
		if err := s.policy.CanReverse(ctx, original.Date); err != nil {
			return err
		}

		originalLines, err := s.repo.GetLines(ctx, journalID)
		if err != nil {
			return err
		}

		rev := NewJournal(time.Now().UTC(), original.Currency, original.Source, original.Reference, "Reversal: "+memo, actor)
		rev.FxRate = original.FxRate

		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("JRN"), nil, rev.Date)
		if err != nil {
			return fmt.Errorf("generate reversal number: %w", err)
		}
		rev.Number = number

		revLines := make([]Line, len(originalLines))
		for i, l := range originalLines {
			revLines[i] = Line{
				ID:         id.New(),
				JournalID:  rev.ID,
				LineNo:     l.LineNo,
				AccountID:  l.AccountID,
				Debit:      l.Credit,
				Credit:     l.Debit,
				Memo:       "Reversal: " + l.Memo,
				Dimensions: l.Dimensions,
			}
		}

		if err := s.repo.CreateJournal(ctx, rev); err != nil {
			return err
		}
		if err := s.repo.InsertLines(ctx, rev.ID, revLines); err != nil {
			return err
		}

		if err := s.validateLines(ctx, rev, revLines); err != nil {
			return err
		}
		now := time.Now().UTC()
		rev.Status = JournalPosted
		rev.PostedAt = &now
		rev.PostedBy = actor
		if err := s.repo.UpdateJournalStatus(ctx, rev); err != nil {
			return err
		}

		original.Status = JournalReversed
		original.ReversalID = &rev.ID
		if err := s.repo.UpdateJournalStatus(ctx, original); err != nil {
			return err
		}

		rev.Lines = revLines
		reversal = rev
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "journal reversed",
		"original_id", journalID,
		"reversal_id", reversal.ID,
		"reversal_number", reversal.Number,
	)
	return reversal, nil
}

// Void cancels a journal. A DRAFT journal is marked VOIDED and returned;
// a POSTED journal (domain flows such as Telebirr voids) goes through the
// same reverse-and-mark sequence as Reverse, returning the reversal
// journal. Voiding a VOIDED or REVERSED journal fails.
func (s *Service) Void(ctx context.Context, journalID id.ID, memo, actor string) (*Journal, error) {
	var status JournalStatus
	var voided *Journal
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		j, err := s.repo.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		status = j.Status
		if status != JournalDraft {
			return nil
		}

		j.Status = JournalVoided
		if err := s.repo.UpdateJournalStatus(ctx, j); err != nil {
			return err
		}
		voided = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch status {
	case JournalDraft:
		return voided, nil
	case JournalPosted:
		return s.Reverse(ctx, journalID, memo, actor)
	default:
		j, getErr := s.repo.GetJournal(ctx, journalID)
		number := journalID.String()
		if getErr == nil {
			number = j.Number
		}
		return nil, apperror.NewJournalState(number, string(status), string(JournalDraft)+" or "+string(JournalPosted))
	}
}

// GetJournal loads a journal with its lines.
func (s *Service) GetJournal(ctx context.Context, journalID id.ID) (*Journal, error) {
	j, err := s.repo.GetJournal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, journalID)
	if err != nil {
		return nil, err
	}
	j.Lines = lines
	return j, nil
}

// AccountByCode resolves a chart-of-accounts node by its code.
// Orchestrators use it to turn posting-rule account codes into line accounts.
func (s *Service) AccountByCode(ctx context.Context, code string) (*Account, error) {
	return s.repo.GetAccountByCode(ctx, code)
}

// CreateAccount adds a chart-of-accounts node.
func (s *Service) CreateAccount(ctx context.Context, a *Account) error {
	if a.Code == "" {
		return apperror.NewValidation("account code is required")
	}
	if a.Name == "" {
		return apperror.NewValidation("account name is required")
	}
	if id.IsNil(a.ID) {
		a.ID = id.New()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = AccountActive
	}
	return s.repo.CreateAccount(ctx, a)
}

// ListAccounts returns the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// FindJournalByReference returns the journal recorded for a
// (source, reference) pair, or nil when none exists.
func (s *Service) FindJournalByReference(ctx context.Context, source, reference string) (*Journal, error) {
	return s.repo.FindJournalByReference(ctx, source, reference)
}

// ListJournals returns journal headers.
func (s *Service) ListJournals(ctx context.Context, filter JournalFilter) ([]Journal, error) {
	return s.repo.ListJournals(ctx, filter)
}

// TrialBalance sums posted debits/credits per account.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) ([]TrialBalanceRow, error) {
	return s.repo.TrialBalance(ctx, asOf)
}

// SubledgerBalance sums posted debits minus credits for lines carrying
// the given dimension value.
func (s *Service) SubledgerBalance(ctx context.Context, dimension, value string) (types.Money, error) {
	return s.repo.SubledgerBalance(ctx, dimension, value)
}

// validateLines applies the posting checks shared by Post and Reverse.
func (s *Service) validateLines(ctx context.Context, j *Journal, lines []Line) error {
	for i := range lines {
		if err := lines[i].Validate(); err != nil {
			return err
		}
	}
	if err := j.ValidateBalanced(lines); err != nil {
		return err
	}

	accountIDs := make([]id.ID, 0, len(lines))
	seen := make(map[id.ID]bool, len(lines))
	for _, l := range lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			accountIDs = append(accountIDs, l.AccountID)
		}
	}

	accounts, err := s.repo.GetAccountsByIDs(ctx, accountIDs)
	if err != nil {
		return err
	}
	for _, accountID := range accountIDs {
		account, ok := accounts[accountID]
		if !ok {
			return apperror.NewNotFound("account", accountID.String())
		}
		if err := account.CanReceiveLines(); err != nil {
			return err
		}
	}
	return nil
}

func assignLineNumbers(journalID id.ID, lines []Line) {
	for i := range lines {
		lines[i].JournalID = journalID
		if lines[i].LineNo == 0 {
			lines[i].LineNo = i + 1
		}
		if id.IsNil(lines[i].ID) {
			lines[i].ID = id.New()
		}
	}
}

// Package ledger_repo provides the PostgreSQL implementation of the GL
// repository: chart of accounts, journals, lines and reporting rollups.
package ledger_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/infrastructure/storage/postgres"
)

const (
	journalsTable = "gl_journals"
	linesTable    = "gl_journal_lines"
)

var _ ledger.Repository = (*Repo)(nil)

// Repo implements ledger.Repository.
type Repo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// New creates the ledger repository.
func New(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateAccount inserts a chart-of-accounts node.
func (r *Repo) CreateAccount(ctx context.Context, a *ledger.Account) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO gl_accounts (id, code, name, type, normal_balance, parent_id, postable, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.Code, a.Name, a.Type, a.NormalBalance, a.ParentID, a.Postable, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("create account: %w", err))
	}
	return nil
}

// GetAccountByCode resolves an account by its code.
func (r *Repo) GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	var a ledger.Account
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &a, `
		SELECT id, code, name, type, normal_balance, parent_id, postable, status, created_at, updated_at
		FROM gl_accounts
		WHERE code = $1
	`, code)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("account", code)
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get account: %w", err))
	}
	return &a, nil
}

// GetAccountsByIDs loads accounts keyed by id.
func (r *Repo) GetAccountsByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*ledger.Account, error) {
	if len(ids) == 0 {
		return map[id.ID]*ledger.Account{}, nil
	}

	var accounts []ledger.Account
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &accounts, `
		SELECT id, code, name, type, normal_balance, parent_id, postable, status, created_at, updated_at
		FROM gl_accounts
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("get accounts: %w", err))
	}

	result := make(map[id.ID]*ledger.Account, len(accounts))
	for i := range accounts {
		result[accounts[i].ID] = &accounts[i]
	}
	return result, nil
}

// ListAccounts returns the chart of accounts ordered by code.
func (r *Repo) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	var accounts []ledger.Account
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &accounts, `
		SELECT id, code, name, type, normal_balance, parent_id, postable, status, created_at, updated_at
		FROM gl_accounts
		ORDER BY code
	`)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("list accounts: %w", err))
	}
	return accounts, nil
}

// CreateJournal inserts a journal header.
func (r *Repo) CreateJournal(ctx context.Context, j *ledger.Journal) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO gl_journals (id, number, date, currency, fx_rate, source, reference, memo, status,
			posted_at, posted_by, reversal_id, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, j.ID, j.Number, j.Date, j.Currency, j.FxRate, j.Source, j.Reference, j.Memo, j.Status,
		j.PostedAt, j.PostedBy, j.ReversalID, j.CreatedAt, j.CreatedBy)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("create journal: %w", err))
	}
	return nil
}

// InsertLines bulk-inserts journal lines via COPY when inside a
// transaction, falling back to a multi-row INSERT otherwise.
func (r *Repo) InsertLines(ctx context.Context, journalID id.ID, lines []ledger.Line) error {
	if len(lines) == 0 {
		return nil
	}

	columns := []string{"id", "journal_id", "line_no", "account_id", "debit", "credit", "memo", "dimensions"}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		rows := make([][]any, 0, len(lines))
		for _, l := range lines {
			dims, err := marshalDimensions(l.Dimensions)
			if err != nil {
				return err
			}
			rows = append(rows, []any{l.ID, journalID, l.LineNo, l.AccountID, l.Debit, l.Credit, l.Memo, dims})
		}
		if _, err := r.inserter.CopyFromSlice(ctx, linesTable, columns, rows); err != nil {
			return apperror.NewDatabase(fmt.Errorf("copy journal lines: %w", err))
		}
		return nil
	}

	q := r.builder.Insert(linesTable).Columns(columns...)
	for _, l := range lines {
		dims, err := marshalDimensions(l.Dimensions)
		if err != nil {
			return err
		}
		q = q.Values(l.ID, journalID, l.LineNo, l.AccountID, l.Debit, l.Credit, l.Memo, dims)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase(fmt.Errorf("insert journal lines: %w", err))
	}
	return nil
}

func marshalDimensions(dims ledger.Dimensions) ([]byte, error) {
	if dims == nil {
		return nil, nil
	}
	b, err := json.Marshal(dims)
	if err != nil {
		return nil, fmt.Errorf("marshal dimensions: %w", err)
	}
	return b, nil
}

const journalColumns = `id, number, date, currency, fx_rate, source, reference, memo, status,
	posted_at, posted_by, reversal_id, created_at, created_by`

// GetJournal loads a journal header.
func (r *Repo) GetJournal(ctx context.Context, journalID id.ID) (*ledger.Journal, error) {
	var j ledger.Journal
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &j,
		`SELECT `+journalColumns+` FROM gl_journals WHERE id = $1`, journalID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("journal", journalID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get journal: %w", err))
	}
	return &j, nil
}

// GetJournalForUpdate locks the journal header row, serializing
// post/reverse/void per journal.
func (r *Repo) GetJournalForUpdate(ctx context.Context, journalID id.ID) (*ledger.Journal, error) {
	var j ledger.Journal
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &j,
		`SELECT `+journalColumns+` FROM gl_journals WHERE id = $1 FOR UPDATE`, journalID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("journal", journalID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("lock journal: %w", err))
	}
	return &j, nil
}

// GetLines loads a journal's lines in order.
func (r *Repo) GetLines(ctx context.Context, journalID id.ID) ([]ledger.Line, error) {
	var lines []ledger.Line
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, `
		SELECT id, journal_id, line_no, account_id, debit, credit, memo, dimensions
		FROM gl_journal_lines
		WHERE journal_id = $1
		ORDER BY line_no
	`, journalID)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("get journal lines: %w", err))
	}
	return lines, nil
}

// UpdateJournalStatus persists status, posting info and reversal linkage.
// Lines are never updated in place.
func (r *Repo) UpdateJournalStatus(ctx context.Context, j *ledger.Journal) error {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE gl_journals
		SET status = $1, posted_at = $2, posted_by = $3, reversal_id = $4
		WHERE id = $5
	`, j.Status, j.PostedAt, j.PostedBy, j.ReversalID, j.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update journal status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("journal", j.ID.String())
	}
	return nil
}

// FindJournalByReference returns the journal for a (source, reference)
// pair, or nil when none exists.
func (r *Repo) FindJournalByReference(ctx context.Context, source, reference string) (*ledger.Journal, error) {
	var j ledger.Journal
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &j,
		`SELECT `+journalColumns+` FROM gl_journals
		 WHERE source = $1 AND reference = $2 AND status <> 'VOIDED'
		 ORDER BY created_at DESC LIMIT 1`, source, reference)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, apperror.NewDatabase(fmt.Errorf("find journal by reference: %w", err))
	}
	return &j, nil
}

// ListJournals returns journal headers matching the filter.
func (r *Repo) ListJournals(ctx context.Context, filter ledger.JournalFilter) ([]ledger.Journal, error) {
	q := r.builder.Select(
		"id", "number", "date", "currency", "fx_rate", "source", "reference", "memo", "status",
		"posted_at", "posted_by", "reversal_id", "created_at", "created_by",
	).From(journalsTable)

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.Source != "" {
		q = q.Where(squirrel.Eq{"source": filter.Source})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.ToDate})
	}

	q = q.OrderBy("date DESC", "number DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var journals []ledger.Journal
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &journals, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select journals: %w", err))
	}
	return journals, nil
}

// TrialBalance sums posted debits/credits per account up to asOf.
func (r *Repo) TrialBalance(ctx context.Context, asOf time.Time) ([]ledger.TrialBalanceRow, error) {
	var rows []ledger.TrialBalanceRow
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, `
		SELECT a.id AS account_id, a.code AS account_code, a.name AS account_name,
		       COALESCE(SUM(l.debit), 0) AS total_debit,
		       COALESCE(SUM(l.credit), 0) AS total_credit
		FROM gl_accounts a
		JOIN gl_journal_lines l ON l.account_id = a.id
		JOIN gl_journals j ON j.id = l.journal_id
		WHERE j.status IN ('POSTED', 'REVERSED') AND j.date <= $1
		GROUP BY a.id, a.code, a.name
		ORDER BY a.code
	`, asOf)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("trial balance: %w", err))
	}
	return rows, nil
}

// SubledgerBalance sums posted debits minus credits for lines carrying
// the given dimension value.
func (r *Repo) SubledgerBalance(ctx context.Context, dimension, value string) (types.Money, error) {
	var balance decimal.Decimal
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(l.debit - l.credit), 0)
		FROM gl_journal_lines l
		JOIN gl_journals j ON j.id = l.journal_id
		WHERE j.status IN ('POSTED', 'REVERSED')
		  AND l.dimensions ->> $1 = $2
	`, dimension, value).Scan(&balance)
	if err != nil {
		return types.ZeroMoney(), apperror.NewDatabase(fmt.Errorf("subledger balance: %w", err))
	}
	return balance, nil
}

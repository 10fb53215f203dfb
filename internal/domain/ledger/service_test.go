package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/security"
	"retailcore/internal/core/types"
	"retailcore/pkg/numerator"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// seqRow / seqQuerier back the numerator with an in-memory counter.
type seqRow struct{ val int64 }

func (r *seqRow) Scan(dest ...any) error {
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = r.val
		}
	}
	return nil
}

type seqQuerier struct{ current int64 }

func (q *seqQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	q.current++
	return &seqRow{val: q.current}
}

// fakeLedgerRepo is an in-memory Repository.
type fakeLedgerRepo struct {
	accounts map[string]*Account
	journals map[id.ID]*Journal
	lines    map[id.ID][]Line
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		accounts: make(map[string]*Account),
		journals: make(map[id.ID]*Journal),
		lines:    make(map[id.ID][]Line),
	}
}

func (r *fakeLedgerRepo) CreateAccount(_ context.Context, a *Account) error {
	if _, ok := r.accounts[a.Code]; ok {
		return apperror.NewDuplicate("account", "code", a.Code)
	}
	copied := *a
	r.accounts[a.Code] = &copied
	return nil
}

func (r *fakeLedgerRepo) GetAccountByCode(_ context.Context, code string) (*Account, error) {
	if a, ok := r.accounts[code]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, apperror.NewNotFound("account", code)
}

func (r *fakeLedgerRepo) GetAccountsByIDs(_ context.Context, ids []id.ID) (map[id.ID]*Account, error) {
	out := make(map[id.ID]*Account, len(ids))
	for _, wanted := range ids {
		for _, a := range r.accounts {
			if a.ID == wanted {
				copied := *a
				out[wanted] = &copied
			}
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) ListAccounts(_ context.Context) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeLedgerRepo) CreateJournal(_ context.Context, j *Journal) error {
	copied := *j
	copied.Lines = nil
	r.journals[j.ID] = &copied
	return nil
}

func (r *fakeLedgerRepo) InsertLines(_ context.Context, journalID id.ID, lines []Line) error {
	r.lines[journalID] = append(r.lines[journalID], lines...)
	return nil
}

func (r *fakeLedgerRepo) GetJournal(_ context.Context, journalID id.ID) (*Journal, error) {
	if j, ok := r.journals[journalID]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, apperror.NewNotFound("journal", journalID.String())
}

func (r *fakeLedgerRepo) GetJournalForUpdate(ctx context.Context, journalID id.ID) (*Journal, error) {
	return r.GetJournal(ctx, journalID)
}

func (r *fakeLedgerRepo) GetLines(_ context.Context, journalID id.ID) ([]Line, error) {
	return append([]Line(nil), r.lines[journalID]...), nil
}

func (r *fakeLedgerRepo) UpdateJournalStatus(_ context.Context, j *Journal) error {
	stored, ok := r.journals[j.ID]
	if !ok {
		return apperror.NewNotFound("journal", j.ID.String())
	}
	stored.Status = j.Status
	stored.PostedAt = j.PostedAt
	stored.PostedBy = j.PostedBy
	stored.ReversalID = j.ReversalID
	return nil
}

func (r *fakeLedgerRepo) FindJournalByReference(_ context.Context, source, reference string) (*Journal, error) {
	for _, j := range r.journals {
		if j.Source == source && j.Reference == reference && j.Status != JournalVoided {
			copied := *j
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeLedgerRepo) ListJournals(_ context.Context, filter JournalFilter) ([]Journal, error) {
	var out []Journal
	for _, j := range r.journals {
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		if filter.Source != "" && j.Source != filter.Source {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (r *fakeLedgerRepo) TrialBalance(_ context.Context, _ time.Time) ([]TrialBalanceRow, error) {
	totals := make(map[id.ID]*TrialBalanceRow)
	for journalID, lines := range r.lines {
		j := r.journals[journalID]
		if j == nil || (j.Status != JournalPosted && j.Status != JournalReversed) {
			continue
		}
		for _, l := range lines {
			row, ok := totals[l.AccountID]
			if !ok {
				row = &TrialBalanceRow{AccountID: l.AccountID, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
				totals[l.AccountID] = row
			}
			row.TotalDebit = row.TotalDebit.Add(l.Debit)
			row.TotalCredit = row.TotalCredit.Add(l.Credit)
		}
	}
	var out []TrialBalanceRow
	for _, row := range totals {
		out = append(out, *row)
	}
	return out, nil
}

func (r *fakeLedgerRepo) SubledgerBalance(_ context.Context, dimension, value string) (types.Money, error) {
	total := decimal.Zero
	for journalID, lines := range r.lines {
		j := r.journals[journalID]
		if j == nil || (j.Status != JournalPosted && j.Status != JournalReversed) {
			continue
		}
		for _, l := range lines {
			if l.Dimensions[dimension] != value {
				continue
			}
			total = total.Add(l.Debit).Sub(l.Credit)
		}
	}
	return total, nil
}

func newTestLedger(repo Repository) *Service {
	return NewService(repo, fakeTxManager{}, numerator.New(&seqQuerier{}), security.OpenPolicy{})
}

func seedAccount(t *testing.T, repo *fakeLedgerRepo, code string, postable bool, status AccountStatus) *Account {
	t.Helper()
	a := &Account{
		ID:            id.New(),
		Code:          code,
		Name:          "Account " + code,
		Type:          AccountAsset,
		NormalBalance: NormalDebit,
		Postable:      postable,
		Status:        status,
	}
	if err := repo.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("seed account %s: %v", code, err)
	}
	return a
}

func money(s string) types.Money { return decimal.RequireFromString(s) }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, appErr.Code, err)
	}
}

func draftJournal(t *testing.T, svc *Service, lines []Line) *Journal {
	t.Helper()
	j := NewJournal(time.Now().UTC(), "ETB", "MANUAL", "", "test entry", "tester")
	if err := svc.CreateJournal(context.Background(), j, lines); err != nil {
		t.Fatalf("create journal: %v", err)
	}
	return j
}

func TestCreateJournalAssignsNumberAndLineNumbers(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)

	j := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("115"), "", nil),
		CreditLine(sales.ID, money("115"), "", nil),
	})

	if j.Number == "" {
		t.Error("expected auto-assigned journal number")
	}
	if j.Status != JournalDraft {
		t.Errorf("expected DRAFT, got %s", j.Status)
	}
	if j.Lines[0].LineNo != 1 || j.Lines[1].LineNo != 2 {
		t.Errorf("expected sequential line numbers, got %d / %d", j.Lines[0].LineNo, j.Lines[1].LineNo)
	}
	for _, l := range j.Lines {
		if l.JournalID != j.ID {
			t.Error("line not attached to journal")
		}
	}
}

func TestCreateJournalValidation(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	acc := seedAccount(t, repo, "1000", true, AccountActive)
	ctx := context.Background()

	j := NewJournal(time.Now().UTC(), "", "MANUAL", "", "", "tester")
	assertCode(t, svc.CreateJournal(ctx, j, nil), apperror.CodeValidation)

	j = NewJournal(time.Time{}, "ETB", "MANUAL", "", "", "tester")
	assertCode(t, svc.CreateJournal(ctx, j, nil), apperror.CodeValidation)

	// Line with both sides set.
	j = NewJournal(time.Now().UTC(), "ETB", "MANUAL", "", "", "tester")
	bad := Line{ID: id.New(), AccountID: acc.ID, Debit: money("10"), Credit: money("10")}
	assertCode(t, svc.CreateJournal(ctx, j, []Line{bad}), apperror.CodeValidation)

	// Line with neither side set.
	j = NewJournal(time.Now().UTC(), "ETB", "MANUAL", "", "", "tester")
	empty := Line{ID: id.New(), AccountID: acc.ID, Debit: decimal.Zero, Credit: decimal.Zero}
	assertCode(t, svc.CreateJournal(ctx, j, []Line{empty}), apperror.CodeValidation)
}

func TestPostBalancedJournal(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)
	ctx := context.Background()

	j := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("100.50"), "", nil),
		CreditLine(sales.ID, money("100.50"), "", nil),
	})

	posted, err := svc.Post(ctx, j.ID, "poster")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if posted.Status != JournalPosted {
		t.Errorf("expected POSTED, got %s", posted.Status)
	}
	if posted.PostedAt == nil || posted.PostedBy != "poster" {
		t.Errorf("expected posting metadata, got %v / %q", posted.PostedAt, posted.PostedBy)
	}

	// Posting again must fail: POSTED is terminal for Post.
	_, err = svc.Post(ctx, j.ID, "poster")
	assertCode(t, err, apperror.CodeJournalState)
}

func TestPostUnbalancedJournal(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)

	j := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("100"), "", nil),
		CreditLine(sales.ID, money("99.99"), "", nil),
	})

	_, err := svc.Post(context.Background(), j.ID, "poster")
	assertCode(t, err, apperror.CodeUnbalancedJournal)

	stored, _ := repo.GetJournal(context.Background(), j.ID)
	if stored.Status != JournalDraft {
		t.Errorf("failed post must leave journal DRAFT, got %s", stored.Status)
	}
}

func TestPostEmptyJournal(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)

	j := draftJournal(t, svc, nil)
	_, err := svc.Post(context.Background(), j.ID, "poster")
	assertCode(t, err, apperror.CodeValidation)
}

func TestPostRejectsNonPostableAccount(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	header := seedAccount(t, repo, "1", false, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)

	j := draftJournal(t, svc, []Line{
		DebitLine(header.ID, money("50"), "", nil),
		CreditLine(sales.ID, money("50"), "", nil),
	})

	_, err := svc.Post(context.Background(), j.ID, "poster")
	assertCode(t, err, apperror.CodeBusinessRule)
}

func TestPostRejectsArchivedAccount(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	old := seedAccount(t, repo, "1999", true, AccountArchived)
	sales := seedAccount(t, repo, "4000", true, AccountActive)

	j := draftJournal(t, svc, []Line{
		DebitLine(old.ID, money("50"), "", nil),
		CreditLine(sales.ID, money("50"), "", nil),
	})

	_, err := svc.Post(context.Background(), j.ID, "poster")
	assertCode(t, err, apperror.CodeBusinessRule)
}

func TestPostClosedPeriod(t *testing.T) {
	repo := newFakeLedgerRepo()
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)

	closedUntil := time.Now().UTC().AddDate(0, 1, 0)
	svc := NewService(repo, fakeTxManager{}, numerator.New(&seqQuerier{}), security.NewStrictPolicy(closedUntil))

	j := NewJournal(time.Now().UTC(), "ETB", "MANUAL", "", "", "tester")
	if err := svc.CreateJournal(context.Background(), j, []Line{
		DebitLine(cash.ID, money("10"), "", nil),
		CreditLine(sales.ID, money("10"), "", nil),
	}); err != nil {
		t.Fatalf("create journal: %v", err)
	}

	_, err := svc.Post(context.Background(), j.ID, "poster")
	assertCode(t, err, apperror.CodePeriodClosed)
}

func TestReverseSwapsSides(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)
	ctx := context.Background()

	dims := Dimensions{"entity": "AGENT:A0001"}
	j := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("200"), "cash in", dims),
		CreditLine(sales.ID, money("200"), "sale", dims),
	})
	if _, err := svc.Post(ctx, j.ID, "poster"); err != nil {
		t.Fatalf("post: %v", err)
	}

	rev, err := svc.Reverse(ctx, j.ID, "returned goods", "manager")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if rev.Status != JournalPosted {
		t.Errorf("reversal must be POSTED, got %s", rev.Status)
	}
	if rev.Memo != "Reversal: returned goods" {
		t.Errorf("unexpected reversal memo %q", rev.Memo)
	}
	if len(rev.Lines) != 2 {
		t.Fatalf("expected 2 reversal lines, got %d", len(rev.Lines))
	}
	if !rev.Lines[0].Credit.Equal(money("200")) || !rev.Lines[0].Debit.IsZero() {
		t.Errorf("expected debit/credit swap on line 1, got %s / %s", rev.Lines[0].Debit, rev.Lines[0].Credit)
	}
	if !rev.Lines[1].Debit.Equal(money("200")) || !rev.Lines[1].Credit.IsZero() {
		t.Errorf("expected debit/credit swap on line 2, got %s / %s", rev.Lines[1].Debit, rev.Lines[1].Credit)
	}
	if rev.Lines[0].Dimensions["entity"] != "AGENT:A0001" {
		t.Error("reversal must carry the original dimensions")
	}

	original, _ := repo.GetJournal(ctx, j.ID)
	if original.Status != JournalReversed {
		t.Errorf("expected original REVERSED, got %s", original.Status)
	}
	if original.ReversalID == nil || *original.ReversalID != rev.ID {
		t.Error("expected original linked to its reversal")
	}

	// The subledger nets to zero after reversal.
	balance, err := svc.SubledgerBalance(ctx, "entity", "AGENT:A0001")
	if err != nil {
		t.Fatalf("subledger balance: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("expected zero subledger balance after reversal, got %s", balance)
	}
}

func TestReverseRequiresPosted(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)

	j := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("10"), "", nil),
		CreditLine(sales.ID, money("10"), "", nil),
	})

	_, err := svc.Reverse(context.Background(), j.ID, "oops", "manager")
	assertCode(t, err, apperror.CodeJournalState)
}

func TestVoidLifecycle(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)
	ctx := context.Background()

	// DRAFT → VOIDED, no reversal journal; the voided journal comes back.
	draft := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("10"), "", nil),
		CreditLine(sales.ID, money("10"), "", nil),
	})
	rev, err := svc.Void(ctx, draft.ID, "mistake", "manager")
	if err != nil {
		t.Fatalf("void draft: %v", err)
	}
	if rev == nil {
		t.Fatal("voiding a draft must return the voided journal")
	}
	if rev.ID != draft.ID || rev.Status != JournalVoided {
		t.Errorf("expected the original journal VOIDED, got id %s status %s", rev.ID, rev.Status)
	}
	stored, _ := repo.GetJournal(ctx, draft.ID)
	if stored.Status != JournalVoided {
		t.Errorf("expected VOIDED, got %s", stored.Status)
	}

	// Voiding again fails.
	_, err = svc.Void(ctx, draft.ID, "again", "manager")
	assertCode(t, err, apperror.CodeJournalState)

	// POSTED → reversal journal.
	posted := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("25"), "", nil),
		CreditLine(sales.ID, money("25"), "", nil),
	})
	if _, err := svc.Post(ctx, posted.ID, "poster"); err != nil {
		t.Fatalf("post: %v", err)
	}
	rev, err = svc.Void(ctx, posted.ID, "cancelled", "manager")
	if err != nil {
		t.Fatalf("void posted: %v", err)
	}
	if rev == nil {
		t.Fatal("voiding a posted journal must create a reversal")
	}
	stored, _ = repo.GetJournal(ctx, posted.ID)
	if stored.Status != JournalReversed {
		t.Errorf("expected REVERSED, got %s", stored.Status)
	}
}

func TestAppendLinesOnlyOnDraft(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)
	ctx := context.Background()

	j := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("10"), "", nil),
	})

	// Appending to the draft continues the line numbering.
	if err := svc.AppendLines(ctx, j.ID, []Line{CreditLine(sales.ID, money("10"), "", nil)}); err != nil {
		t.Fatalf("append lines: %v", err)
	}
	lines, _ := repo.GetLines(ctx, j.ID)
	if len(lines) != 2 || lines[1].LineNo != 2 {
		t.Fatalf("expected 2 lines with sequential numbers, got %+v", lines)
	}

	if _, err := svc.Post(ctx, j.ID, "poster"); err != nil {
		t.Fatalf("post: %v", err)
	}

	err := svc.AppendLines(ctx, j.ID, []Line{DebitLine(cash.ID, money("1"), "", nil)})
	assertCode(t, err, apperror.CodeJournalState)
}

func TestCreateAccountDefaults(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	ctx := context.Background()

	assertCode(t, svc.CreateAccount(ctx, &Account{Name: "No Code"}), apperror.CodeValidation)
	assertCode(t, svc.CreateAccount(ctx, &Account{Code: "1000"}), apperror.CodeValidation)

	a := &Account{Code: "1000", Name: "Cash", Type: AccountAsset, NormalBalance: NormalDebit, Postable: true}
	if err := svc.CreateAccount(ctx, a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if id.IsNil(a.ID) {
		t.Error("expected assigned account id")
	}
	if a.Status != AccountActive {
		t.Errorf("expected default ACTIVE status, got %s", a.Status)
	}

	dup := &Account{Code: "1000", Name: "Cash Again", Type: AccountAsset, NormalBalance: NormalDebit}
	assertCode(t, svc.CreateAccount(ctx, dup), apperror.CodeDuplicate)
}

func TestFindJournalByReference(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)
	ctx := context.Background()

	j := NewJournal(time.Now().UTC(), "ETB", "TELEBIRR", "TLB-REF-42", "", "tester")
	if err := svc.CreateJournal(ctx, j, []Line{
		DebitLine(cash.ID, money("10"), "", nil),
		CreditLine(sales.ID, money("10"), "", nil),
	}); err != nil {
		t.Fatalf("create journal: %v", err)
	}

	found, err := svc.FindJournalByReference(ctx, "TELEBIRR", "TLB-REF-42")
	if err != nil {
		t.Fatalf("find by reference: %v", err)
	}
	if found == nil || found.ID != j.ID {
		t.Error("expected to find the journal by (source, reference)")
	}

	missing, err := svc.FindJournalByReference(ctx, "TELEBIRR", "TLB-REF-404")
	if err != nil {
		t.Fatalf("find by reference: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for an unknown reference")
	}
}

func TestTrialBalanceBalances(t *testing.T) {
	repo := newFakeLedgerRepo()
	svc := newTestLedger(repo)
	cash := seedAccount(t, repo, "1000", true, AccountActive)
	sales := seedAccount(t, repo, "4000", true, AccountActive)
	ctx := context.Background()

	j := draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("300"), "", nil),
		CreditLine(sales.ID, money("300"), "", nil),
	})
	if _, err := svc.Post(ctx, j.ID, "poster"); err != nil {
		t.Fatalf("post: %v", err)
	}

	// Drafts must not count.
	draftJournal(t, svc, []Line{
		DebitLine(cash.ID, money("999"), "", nil),
		CreditLine(sales.ID, money("999"), "", nil),
	})

	rows, err := svc.TrialBalance(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}

	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, row := range rows {
		totalDebit = totalDebit.Add(row.TotalDebit)
		totalCredit = totalCredit.Add(row.TotalCredit)
	}
	if !totalDebit.Equal(totalCredit) {
		t.Errorf("trial balance out of balance: %s vs %s", totalDebit, totalCredit)
	}
	if !totalDebit.Equal(money("300")) {
		t.Errorf("expected posted total 300, got %s", totalDebit)
	}
}

package receipt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/security"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/idempotency"
	"retailcore/internal/domain/inventory"
	"retailcore/internal/domain/ledger"
	"retailcore/pkg/numerator"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

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

// recordingGuard keeps completed results in memory so a replayed key
// short-circuits like the real guard, and counts Fail calls.
type recordingGuard struct {
	completed map[string]json.RawMessage
	failures  map[string]int
}

func newRecordingGuard() *recordingGuard {
	return &recordingGuard{
		completed: make(map[string]json.RawMessage),
		failures:  make(map[string]int),
	}
}

func (g *recordingGuard) Acquire(_ context.Context, scope, key, _ string) (*idempotency.Replay, error) {
	if result, ok := g.completed[scope+"|"+key]; ok {
		return &idempotency.Replay{Status: idempotency.StatusSucceeded, Result: result}, nil
	}
	return nil, nil
}

func (g *recordingGuard) Complete(_ context.Context, scope, key string, result any) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	g.completed[scope+"|"+key] = b
	return nil
}

func (g *recordingGuard) Fail(_ context.Context, scope, key string, _ any) error {
	g.failures[scope+"|"+key]++
	return nil
}

// --- in-memory inventory repository ---

type invKey struct {
	product id.ID
	branch  id.ID
}

type invRepo struct {
	items     map[invKey]*inventory.Item
	movements []inventory.Movement
}

func newInvRepo() *invRepo {
	return &invRepo{items: make(map[invKey]*inventory.Item)}
}

func (r *invRepo) GetItemForUpdate(_ context.Context, productID, branchID id.ID, createMissing bool) (*inventory.Item, error) {
	key := invKey{productID, branchID}
	if item, ok := r.items[key]; ok {
		copied := *item
		return &copied, nil
	}
	if !createMissing {
		return nil, apperror.NewNotFound("inventory item", productID.String())
	}
	item := &inventory.Item{ID: id.New(), ProductID: productID, BranchID: branchID}
	r.items[key] = item
	copied := *item
	return &copied, nil
}

func (r *invRepo) GetItem(_ context.Context, productID, branchID id.ID) (*inventory.Item, error) {
	if item, ok := r.items[invKey{productID, branchID}]; ok {
		copied := *item
		return &copied, nil
	}
	return &inventory.Item{ProductID: productID, BranchID: branchID}, nil
}

func (r *invRepo) UpdateQuantities(_ context.Context, item *inventory.Item) error {
	stored, ok := r.items[invKey{item.ProductID, item.BranchID}]
	if !ok {
		return apperror.NewNotFound("inventory item", item.ProductID.String())
	}
	stored.OnHand = item.OnHand
	stored.Reserved = item.Reserved
	return nil
}

func (r *invRepo) InsertMovement(_ context.Context, m *inventory.Movement) error {
	r.movements = append(r.movements, *m)
	return nil
}

func (r *invRepo) MovementExists(_ context.Context, ref string, productID, branchID id.ID, movementType inventory.MovementType) (bool, error) {
	for _, m := range r.movements {
		if m.Ref == ref && m.ProductID == productID && m.BranchID == branchID && m.Type == movementType {
			return true, nil
		}
	}
	return false, nil
}

func (r *invRepo) ListMovements(context.Context, inventory.MovementFilter) ([]inventory.Movement, error) {
	return append([]inventory.Movement(nil), r.movements...), nil
}

func (r *invRepo) ListOpenReservations(context.Context, time.Time) ([]inventory.OpenReservation, error) {
	return nil, nil
}

// --- in-memory ledger repository ---

type glRepo struct {
	accounts map[string]*ledger.Account
	journals map[id.ID]*ledger.Journal
	lines    map[id.ID][]ledger.Line
}

func newGLRepo() *glRepo {
	return &glRepo{
		accounts: make(map[string]*ledger.Account),
		journals: make(map[id.ID]*ledger.Journal),
		lines:    make(map[id.ID][]ledger.Line),
	}
}

func (r *glRepo) CreateAccount(_ context.Context, a *ledger.Account) error {
	copied := *a
	r.accounts[a.Code] = &copied
	return nil
}

func (r *glRepo) GetAccountByCode(_ context.Context, code string) (*ledger.Account, error) {
	if a, ok := r.accounts[code]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, apperror.NewNotFound("account", code)
}

func (r *glRepo) GetAccountsByIDs(_ context.Context, ids []id.ID) (map[id.ID]*ledger.Account, error) {
	out := make(map[id.ID]*ledger.Account, len(ids))
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

func (r *glRepo) ListAccounts(context.Context) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *glRepo) CreateJournal(_ context.Context, j *ledger.Journal) error {
	copied := *j
	copied.Lines = nil
	r.journals[j.ID] = &copied
	return nil
}

func (r *glRepo) InsertLines(_ context.Context, journalID id.ID, lines []ledger.Line) error {
	r.lines[journalID] = append(r.lines[journalID], lines...)
	return nil
}

func (r *glRepo) GetJournal(_ context.Context, journalID id.ID) (*ledger.Journal, error) {
	if j, ok := r.journals[journalID]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, apperror.NewNotFound("journal", journalID.String())
}

func (r *glRepo) GetJournalForUpdate(ctx context.Context, journalID id.ID) (*ledger.Journal, error) {
	return r.GetJournal(ctx, journalID)
}

func (r *glRepo) GetLines(_ context.Context, journalID id.ID) ([]ledger.Line, error) {
	return append([]ledger.Line(nil), r.lines[journalID]...), nil
}

func (r *glRepo) UpdateJournalStatus(_ context.Context, j *ledger.Journal) error {
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

func (r *glRepo) FindJournalByReference(_ context.Context, source, reference string) (*ledger.Journal, error) {
	for _, j := range r.journals {
		if j.Source == source && j.Reference == reference {
			copied := *j
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *glRepo) ListJournals(context.Context, ledger.JournalFilter) ([]ledger.Journal, error) {
	var out []ledger.Journal
	for _, j := range r.journals {
		out = append(out, *j)
	}
	return out, nil
}

func (r *glRepo) TrialBalance(context.Context, time.Time) ([]ledger.TrialBalanceRow, error) {
	return nil, nil
}

func (r *glRepo) SubledgerBalance(_ context.Context, dimension, value string) (types.Money, error) {
	total := decimal.Zero
	for journalID, lines := range r.lines {
		j := r.journals[journalID]
		if j == nil || (j.Status != ledger.JournalPosted && j.Status != ledger.JournalReversed) {
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

// --- in-memory receipt repository ---

type rcpRepo struct {
	receipts map[id.ID]*Receipt
	lines    map[id.ID][]Line
}

func newRcpRepo() *rcpRepo {
	return &rcpRepo{receipts: make(map[id.ID]*Receipt), lines: make(map[id.ID][]Line)}
}

func (r *rcpRepo) Create(_ context.Context, rcp *Receipt) error {
	copied := *rcp
	copied.Lines = nil
	r.receipts[rcp.ID] = &copied
	return nil
}

func (r *rcpRepo) InsertLines(_ context.Context, receiptID id.ID, lines []Line) error {
	r.lines[receiptID] = append(r.lines[receiptID], lines...)
	return nil
}

func (r *rcpRepo) Get(_ context.Context, receiptID id.ID) (*Receipt, error) {
	if rcp, ok := r.receipts[receiptID]; ok {
		copied := *rcp
		return &copied, nil
	}
	return nil, apperror.NewNotFound("receipt", receiptID.String())
}

func (r *rcpRepo) GetForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return r.Get(ctx, receiptID)
}

func (r *rcpRepo) GetByNumber(_ context.Context, number string) (*Receipt, error) {
	for _, rcp := range r.receipts {
		if rcp.Number == number {
			copied := *rcp
			return &copied, nil
		}
	}
	return nil, apperror.NewNotFound("receipt", number)
}

func (r *rcpRepo) GetLines(_ context.Context, receiptID id.ID) ([]Line, error) {
	return append([]Line(nil), r.lines[receiptID]...), nil
}

func (r *rcpRepo) UpdateStatus(_ context.Context, rcp *Receipt) error {
	stored, ok := r.receipts[rcp.ID]
	if !ok {
		return apperror.NewNotFound("receipt", rcp.ID.String())
	}
	stored.Status = rcp.Status
	stored.VoidedAt = rcp.VoidedAt
	stored.VoidedBy = rcp.VoidedBy
	return nil
}

func (r *rcpRepo) List(context.Context, Filter) ([]Receipt, error) {
	var out []Receipt
	for _, rcp := range r.receipts {
		out = append(out, *rcp)
	}
	return out, nil
}

// --- fixture wiring ---

type fixture struct {
	svc      *Service
	stock    *inventory.Service
	invRepo  *invRepo
	glRepo   *glRepo
	rcpRepo  *rcpRepo
	guard    *recordingGuard
	branchID id.ID
}

func newFixture(t *testing.T, checker security.Checker) *fixture {
	t.Helper()
	inv := newInvRepo()
	gl := newGLRepo()
	rcp := newRcpRepo()
	guard := newRecordingGuard()
	txm := fakeTxManager{}
	num := numerator.New(&seqQuerier{})
	ctx := context.Background()

	for _, seed := range []struct {
		code string
		typ  ledger.AccountType
		nb   ledger.NormalBalance
	}{
		{"1000", ledger.AccountAsset, ledger.NormalDebit},
		{"4000", ledger.AccountRevenue, ledger.NormalCredit},
		{"2100", ledger.AccountLiability, ledger.NormalCredit},
		{"4100", ledger.AccountContraRevenue, ledger.NormalDebit},
	} {
		if err := gl.CreateAccount(ctx, &ledger.Account{
			ID:            id.New(),
			Code:          seed.code,
			Name:          "Account " + seed.code,
			Type:          seed.typ,
			NormalBalance: seed.nb,
			Postable:      true,
			Status:        ledger.AccountActive,
		}); err != nil {
			t.Fatalf("seed account %s: %v", seed.code, err)
		}
	}

	rules := ledger.NewRules(map[string]ledger.PostingRule{
		RulePosSale:     {DebitAccount: "1000", CreditAccount: "4000", DimensionTemplate: "BRANCH:{branch_id}"},
		RulePosTax:      {DebitAccount: "1000", CreditAccount: "2100", DimensionTemplate: "BRANCH:{branch_id}"},
		RulePosDiscount: {DebitAccount: "4100", CreditAccount: "4000", DimensionTemplate: "BRANCH:{branch_id}"},
	})

	stock := inventory.NewService(inv, txm, security.AllowAll{})
	journals := ledger.NewService(gl, txm, num, security.OpenPolicy{})
	svc := NewService(rcp, stock, journals, rules, guard, txm, num, audit.Nop{}, checker)

	return &fixture{
		svc:      svc,
		stock:    stock,
		invRepo:  inv,
		glRepo:   gl,
		rcpRepo:  rcp,
		guard:    guard,
		branchID: id.New(),
	}
}

func (f *fixture) seedStock(t *testing.T, productID id.ID, units int64) {
	t.Helper()
	_, err := f.stock.OpeningBalance(context.Background(), inventory.Request{
		ProductID: productID,
		BranchID:  f.branchID,
		Quantity:  types.NewQuantityFromInt(units),
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
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

func TestProcessReceipt(t *testing.T) {
	f := newFixture(t, security.AllowAll{})
	ctx := context.Background()
	productA, productB := id.New(), id.New()
	f.seedStock(t, productA, 10)
	f.seedStock(t, productB, 5)

	rcp, err := f.svc.Process(ctx, ProcessRequest{
		IdempotencyKey: "key-1",
		BranchID:       f.branchID,
		CashierID:      "cashier-1",
		Tax:            money("13"),
		Discount:       money("3"),
		PaidTotal:      money("150"),
		Lines: []LineInput{
			{ProductID: productA, Quantity: types.NewQuantityFromInt(2), UnitPrice: money("50")},
			{ProductID: productB, Quantity: types.NewQuantityFromInt(1), UnitPrice: money("30")},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if rcp.Status != StatusPosted {
		t.Errorf("expected POSTED, got %s", rcp.Status)
	}
	if rcp.Number == "" {
		t.Error("expected assigned receipt number")
	}
	if !rcp.Subtotal.Equal(money("130")) {
		t.Errorf("expected subtotal 130, got %s", rcp.Subtotal)
	}
	if !rcp.GrandTotal.Equal(money("140")) {
		t.Errorf("expected grand total 140, got %s", rcp.GrandTotal)
	}

	// Stock was issued per line.
	itemA, _ := f.stock.GetItem(ctx, productA, f.branchID)
	if itemA.OnHand != types.NewQuantityFromInt(8) {
		t.Errorf("expected product A on hand 8, got %s", itemA.OnHand)
	}
	itemB, _ := f.stock.GetItem(ctx, productB, f.branchID)
	if itemB.OnHand != types.NewQuantityFromInt(4) {
		t.Errorf("expected product B on hand 4, got %s", itemB.OnHand)
	}

	// The sales journal was posted and is balanced.
	if rcp.JournalID == nil {
		t.Fatal("expected receipt linked to a journal")
	}
	journal, err := f.glRepo.GetJournal(ctx, *rcp.JournalID)
	if err != nil {
		t.Fatalf("load journal: %v", err)
	}
	if journal.Status != ledger.JournalPosted {
		t.Errorf("expected journal POSTED, got %s", journal.Status)
	}
	lines, _ := f.glRepo.GetLines(ctx, journal.ID)
	if len(lines) != 4 {
		t.Fatalf("expected 4 journal lines (cash, sales, tax, discount), got %d", len(lines))
	}
	if !ledger.TotalDebit(lines).Equal(ledger.TotalCredit(lines)) {
		t.Errorf("sales journal out of balance: %s vs %s", ledger.TotalDebit(lines), ledger.TotalCredit(lines))
	}
	if !ledger.TotalDebit(lines).Equal(money("143")) {
		t.Errorf("expected total debit 143, got %s", ledger.TotalDebit(lines))
	}

	// The outcome was recorded with the guard.
	if _, ok := f.guard.completed[Scope+"|key-1"]; !ok {
		t.Error("expected guard completion for the idempotency key")
	}
}

func TestProcessReplayReturnsCachedReceipt(t *testing.T) {
	f := newFixture(t, security.AllowAll{})
	ctx := context.Background()
	productID := id.New()
	f.seedStock(t, productID, 10)

	req := ProcessRequest{
		IdempotencyKey: "key-replay",
		BranchID:       f.branchID,
		CashierID:      "cashier-1",
		PaidTotal:      money("100"),
		Lines: []LineInput{
			{ProductID: productID, Quantity: types.NewQuantityFromInt(2), UnitPrice: money("50")},
		},
	}

	first, err := f.svc.Process(ctx, req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	second, err := f.svc.Process(ctx, req)
	if err != nil {
		t.Fatalf("replayed process: %v", err)
	}
	if second.ID != first.ID || second.Number != first.Number {
		t.Errorf("replay must return the original receipt: %s vs %s", second.Number, first.Number)
	}

	// No second stock issue happened.
	item, _ := f.stock.GetItem(ctx, productID, f.branchID)
	if item.OnHand != types.NewQuantityFromInt(8) {
		t.Errorf("replay must not re-issue stock, on hand = %s", item.OnHand)
	}
	if len(f.rcpRepo.receipts) != 1 {
		t.Errorf("expected a single stored receipt, got %d", len(f.rcpRepo.receipts))
	}
}

func TestProcessFailureMarksGuardFailed(t *testing.T) {
	f := newFixture(t, security.AllowAll{})
	ctx := context.Background()
	productID := id.New()
	f.seedStock(t, productID, 1)

	_, err := f.svc.Process(ctx, ProcessRequest{
		IdempotencyKey: "key-fail",
		BranchID:       f.branchID,
		CashierID:      "cashier-1",
		PaidTotal:      money("500"),
		Lines: []LineInput{
			{ProductID: productID, Quantity: types.NewQuantityFromInt(5), UnitPrice: money("100")},
		},
	})
	assertCode(t, err, apperror.CodeInsufficientStock)

	if f.guard.failures[Scope+"|key-fail"] != 1 {
		t.Error("expected guard failure recorded")
	}
	if len(f.rcpRepo.receipts) != 0 {
		t.Error("failed processing must not store a receipt")
	}
}

func TestProcessValidation(t *testing.T) {
	f := newFixture(t, security.AllowAll{})
	ctx := context.Background()
	productID := id.New()
	f.seedStock(t, productID, 10)

	// Missing idempotency key.
	_, err := f.svc.Process(ctx, ProcessRequest{
		BranchID:  f.branchID,
		PaidTotal: money("50"),
		Lines:     []LineInput{{ProductID: productID, Quantity: types.NewQuantityFromInt(1), UnitPrice: money("50")}},
	})
	assertCode(t, err, apperror.CodeValidation)

	// No lines.
	_, err = f.svc.Process(ctx, ProcessRequest{
		IdempotencyKey: "key-empty",
		BranchID:       f.branchID,
		PaidTotal:      money("0"),
	})
	assertCode(t, err, apperror.CodeValidation)

	// Paid total below grand total.
	_, err = f.svc.Process(ctx, ProcessRequest{
		IdempotencyKey: "key-short",
		BranchID:       f.branchID,
		PaidTotal:      money("40"),
		Lines:          []LineInput{{ProductID: productID, Quantity: types.NewQuantityFromInt(1), UnitPrice: money("50")}},
	})
	assertCode(t, err, apperror.CodeReceiptState)
}

func TestVoidReceipt(t *testing.T) {
	f := newFixture(t, security.AllowAll{})
	ctx := context.Background()
	productID := id.New()
	f.seedStock(t, productID, 10)

	rcp, err := f.svc.Process(ctx, ProcessRequest{
		IdempotencyKey: "key-void",
		BranchID:       f.branchID,
		CashierID:      "cashier-1",
		PaidTotal:      money("100"),
		Lines: []LineInput{
			{ProductID: productID, Quantity: types.NewQuantityFromInt(2), UnitPrice: money("50")},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	voided, err := f.svc.Void(ctx, rcp.ID, "manager-1")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != StatusVoided {
		t.Errorf("expected VOIDED, got %s", voided.Status)
	}
	if voided.VoidedAt == nil || voided.VoidedBy != "manager-1" {
		t.Errorf("expected void metadata, got %v / %q", voided.VoidedAt, voided.VoidedBy)
	}

	// Stock came back.
	item, _ := f.stock.GetItem(ctx, productID, f.branchID)
	if item.OnHand != types.NewQuantityFromInt(10) {
		t.Errorf("expected stock restored to 10, got %s", item.OnHand)
	}

	// The sales journal is REVERSED.
	journal, _ := f.glRepo.GetJournal(ctx, *rcp.JournalID)
	if journal.Status != ledger.JournalReversed {
		t.Errorf("expected journal REVERSED, got %s", journal.Status)
	}

	// Voiding twice fails.
	_, err = f.svc.Void(ctx, rcp.ID, "manager-1")
	assertCode(t, err, apperror.CodeReceiptState)
}

func TestVoidRequiresCapability(t *testing.T) {
	f := newFixture(t, security.AllowAll{})
	ctx := context.Background()
	productID := id.New()
	f.seedStock(t, productID, 10)

	rcp, err := f.svc.Process(ctx, ProcessRequest{
		IdempotencyKey: "key-deny",
		BranchID:       f.branchID,
		PaidTotal:      money("50"),
		Lines: []LineInput{
			{ProductID: productID, Quantity: types.NewQuantityFromInt(1), UnitPrice: money("50")},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// Rebuild the service with a denying checker over the same stores.
	txm := fakeTxManager{}
	num := numerator.New(&seqQuerier{current: 100})
	journals := ledger.NewService(f.glRepo, txm, num, security.OpenPolicy{})
	rules := ledger.NewRules(map[string]ledger.PostingRule{
		RulePosSale: {DebitAccount: "1000", CreditAccount: "4000"},
	})
	svc := NewService(f.rcpRepo, f.stock, journals, rules, f.guard, txm, num, audit.Nop{}, security.DenyAll{})

	_, err = svc.Void(ctx, rcp.ID, "intruder")
	assertCode(t, err, apperror.CodeForbidden)

	stored, _ := f.rcpRepo.Get(ctx, rcp.ID)
	if stored.Status != StatusPosted {
		t.Errorf("denied void must leave receipt POSTED, got %s", stored.Status)
	}
}

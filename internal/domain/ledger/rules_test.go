package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func testRules() *Rules {
	return NewRules(map[string]PostingRule{
		"telebirr_topup": {
			DebitAccount:      "1150",
			CreditAccount:     "1200",
			DimensionTemplate: "AGENT:{agent_code}",
		},
		"POS_SALE": {
			DebitAccount:      "1000",
			CreditAccount:     "4000",
			DimensionTemplate: "BRANCH:{branch_id}",
		},
	})
}

func TestRuleLookupIsCaseInsensitive(t *testing.T) {
	rules := testRules()

	for _, txType := range []string{"TELEBIRR_TOPUP", "telebirr_topup", "Telebirr_Topup"} {
		rule, err := rules.Rule(txType)
		if err != nil {
			t.Fatalf("rule %q: %v", txType, err)
		}
		if rule.DebitAccount != "1150" {
			t.Errorf("rule %q: expected debit 1150, got %s", txType, rule.DebitAccount)
		}
	}

	if _, err := rules.Rule("UNKNOWN_TYPE"); err == nil {
		t.Error("expected error for unconfigured transaction type")
	}
}

func TestExpandDimension(t *testing.T) {
	cases := []struct {
		template string
		vars     map[string]string
		want     string
	}{
		{"AGENT:{agent_code}", map[string]string{"agent_code": "A0042"}, "AGENT:A0042"},
		{"BRANCH:{branch_id}", map[string]string{"branch_id": "b-1", "agent_code": "A1"}, "BRANCH:b-1"},
		{"STATIC", map[string]string{"agent_code": "A1"}, "STATIC"},
		{"AGENT:{agent_code}", nil, "AGENT:{agent_code}"},
	}
	for _, tc := range cases {
		if got := ExpandDimension(tc.template, tc.vars); got != tc.want {
			t.Errorf("ExpandDimension(%q): expected %q, got %q", tc.template, tc.want, got)
		}
	}
}

func TestSubledgerSide(t *testing.T) {
	both := PostingRule{}
	if !both.TagsDebit() || !both.TagsCredit() {
		t.Error("empty subledger side must tag both lines")
	}

	debit := PostingRule{SubledgerSide: "debit"}
	if !debit.TagsDebit() || debit.TagsCredit() {
		t.Error("debit side must tag only the debit line")
	}

	credit := PostingRule{SubledgerSide: "CREDIT"}
	if credit.TagsDebit() || !credit.TagsCredit() {
		t.Error("credit side must tag only the credit line")
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := []byte(`posting_rules:
  TELEBIRR_TOPUP:
    debit_account: "1150"
    credit_account: "1200"
    dimension_template: "AGENT:{agent_code}"
    subledger_side: "credit"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	rule, err := rules.Rule("TELEBIRR_TOPUP")
	if err != nil {
		t.Fatalf("rule lookup: %v", err)
	}
	if rule.DebitAccount != "1150" || rule.CreditAccount != "1200" {
		t.Errorf("unexpected rule %+v", rule)
	}
	if rule.DimensionTemplate != "AGENT:{agent_code}" {
		t.Errorf("unexpected dimension template %q", rule.DimensionTemplate)
	}
	if !rule.TagsCredit() || rule.TagsDebit() {
		t.Errorf("expected credit-side subledger tag, got side %q", rule.SubledgerSide)
	}
}

func TestLoadRulesRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("posting_rules: {}\n"), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	if _, err := LoadRules(path); err == nil {
		t.Error("expected error for a rules file with no rules")
	}
}

func TestValidateRules(t *testing.T) {
	repo := newFakeLedgerRepo()
	seedAccount(t, repo, "1150", true, AccountActive)
	seedAccount(t, repo, "1200", true, AccountActive)
	seedAccount(t, repo, "1000", true, AccountActive)
	seedAccount(t, repo, "4000", true, AccountActive)
	ctx := context.Background()

	if err := testRules().Validate(ctx, repo); err != nil {
		t.Fatalf("validate: %v", err)
	}

	missing := NewRules(map[string]PostingRule{
		"BAD": {DebitAccount: "1150", CreditAccount: "9999"},
	})
	if err := missing.Validate(ctx, repo); err == nil {
		t.Error("expected error for unknown account code")
	}

	blank := NewRules(map[string]PostingRule{
		"BAD": {DebitAccount: "1150"},
	})
	if err := blank.Validate(ctx, repo); err == nil {
		t.Error("expected error for missing account code")
	}

	archivedRepo := newFakeLedgerRepo()
	seedAccount(t, archivedRepo, "1150", true, AccountArchived)
	seedAccount(t, archivedRepo, "1200", true, AccountActive)
	archived := NewRules(map[string]PostingRule{
		"BAD": {DebitAccount: "1150", CreditAccount: "1200"},
	})
	if err := archived.Validate(ctx, archivedRepo); err == nil {
		t.Error("expected error for archived account")
	}
}

package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"retailcore/internal/core/apperror"
)

// PostingRule maps a transaction type to the accounts it posts against.
// Account codes and the subledger dimension template live in configuration
// so finance can adjust the mapping without a deploy.
type PostingRule struct {
	DebitAccount      string `mapstructure:"debit_account"`
	CreditAccount     string `mapstructure:"credit_account"`
	DimensionTemplate string `mapstructure:"dimension_template"`

	// SubledgerSide restricts the dimension tag to one side ("debit" or
	// "credit"). Empty tags both sides; per-entity balance rollups need a
	// single tagged side or debits and credits net to zero.
	SubledgerSide string `mapstructure:"subledger_side"`
}

// TagsDebit reports whether the dimension tag applies to the debit line.
func (r PostingRule) TagsDebit() bool {
	return r.SubledgerSide == "" || strings.EqualFold(r.SubledgerSide, "debit")
}

// TagsCredit reports whether the dimension tag applies to the credit line.
func (r PostingRule) TagsCredit() bool {
	return r.SubledgerSide == "" || strings.EqualFold(r.SubledgerSide, "credit")
}

// Rules is the posting-rule table, loaded once at startup and injected
// into the orchestrators. Validate must be called before first use.
type Rules struct {
	byType map[string]PostingRule
}

// NewRules builds a rule table from an in-memory map (test fixtures, seed).
func NewRules(rules map[string]PostingRule) *Rules {
	byType := make(map[string]PostingRule, len(rules))
	for k, v := range rules {
		byType[strings.ToUpper(k)] = v
	}
	return &Rules{byType: byType}
}

// LoadRules reads the posting-rule table from a YAML/JSON file.
//
//	posting_rules:
//	  TELEBIRR_TOPUP:
//	    debit_account: "1100"
//	    credit_account: "2300"
//	    dimension_template: "AGENT:{agent_code}"
func LoadRules(path string) (*Rules, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read posting rules: %w", err)
	}

	var raw map[string]PostingRule
	if err := v.UnmarshalKey("posting_rules", &raw); err != nil {
		return nil, fmt.Errorf("parse posting rules: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("posting rules file %s defines no rules", path)
	}

	return NewRules(raw), nil
}

// Rule returns the posting rule for a transaction type.
func (r *Rules) Rule(txType string) (PostingRule, error) {
	rule, ok := r.byType[strings.ToUpper(txType)]
	if !ok {
		return PostingRule{}, apperror.NewValidation("no posting rule configured for transaction type").
			WithDetail("transaction_type", txType)
	}
	return rule, nil
}

// Types returns the configured transaction types.
func (r *Rules) Types() []string {
	types := make([]string, 0, len(r.byType))
	for k := range r.byType {
		types = append(types, k)
	}
	return types
}

// Validate checks every referenced account exists, is postable and active.
// Called once at startup rather than on every posting.
func (r *Rules) Validate(ctx context.Context, repo Repository) error {
	for txType, rule := range r.byType {
		for _, code := range []string{rule.DebitAccount, rule.CreditAccount} {
			if code == "" {
				return fmt.Errorf("posting rule %s: missing account code", txType)
			}
			account, err := repo.GetAccountByCode(ctx, code)
			if err != nil {
				return fmt.Errorf("posting rule %s: account %s: %w", txType, code, err)
			}
			if err := account.CanReceiveLines(); err != nil {
				return fmt.Errorf("posting rule %s: account %s: %w", txType, code, err)
			}
		}
	}
	return nil
}

// ExpandDimension substitutes {placeholder} variables in a dimension
// template, e.g. "AGENT:{agent_code}" with agent_code=A0042 → "AGENT:A0042".
func ExpandDimension(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

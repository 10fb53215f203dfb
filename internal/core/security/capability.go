// Package security provides authorization gates consumed by the domain engines.
// The engines never decide access themselves; they call a boolean gate.
package security

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	appctx "retailcore/internal/core/context"
	"retailcore/internal/core/id"
)

// Capability keys consumed by the core engines.
const (
	CapabilityInventoryAdjust = "inventory.adjust"
	CapabilityReceiptVoid     = "pos.receipt.void"
	CapabilityTelebirrVoid    = "telebirr.transaction.void"
)

// Checker decides whether the request user may perform a capability at a branch.
// Implementations read the authenticated user from context.
type Checker interface {
	HasCapability(ctx context.Context, capability string, branchID id.ID) bool
}

// CELChecker evaluates one CEL rule per capability key.
// Rules see the variables:
//
//	capability  string        requested capability key
//	branch      string        requested branch id ("" when not branch-scoped)
//	permissions list(string)  user permission claims
//	roles       list(string)  user roles
//	branches    list(string)  branch ids the user is assigned to
//	is_admin    bool
type CELChecker struct {
	programs map[string]cel.Program
}

// DefaultRules returns the rule set used when no override file is configured.
func DefaultRules() map[string]string {
	branchScoped := `capability in permissions && (branch == "" || branch in branches || is_admin)`
	return map[string]string{
		CapabilityInventoryAdjust: branchScoped,
		CapabilityReceiptVoid:     branchScoped,
		CapabilityTelebirrVoid:    `capability in permissions || "finance.manager" in roles`,
	}
}

// NewCELChecker compiles the given capability rules.
func NewCELChecker(rules map[string]string) (*CELChecker, error) {
	env, err := cel.NewEnv(
		cel.Variable("capability", cel.StringType),
		cel.Variable("branch", cel.StringType),
		cel.Variable("permissions", cel.ListType(cel.StringType)),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("branches", cel.ListType(cel.StringType)),
		cel.Variable("is_admin", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	programs := make(map[string]cel.Program, len(rules))
	for capability, expr := range rules {
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", capability, iss.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %q: %w", capability, err)
		}
		programs[capability] = prg
	}

	return &CELChecker{programs: programs}, nil
}

// HasCapability implements Checker.
// Unknown capabilities fall back to a plain permission-claim match.
func (c *CELChecker) HasCapability(ctx context.Context, capability string, branchID id.ID) bool {
	user := appctx.GetUser(ctx)
	if user == nil {
		return false
	}
	if user.IsAdmin {
		return true
	}

	branch := ""
	if !id.IsNil(branchID) {
		branch = branchID.String()
	}

	prg, ok := c.programs[capability]
	if !ok {
		return appctx.HasPermission(ctx, capability)
	}

	out, _, err := prg.Eval(map[string]any{
		"capability":  capability,
		"branch":      branch,
		"permissions": user.Permissions,
		"roles":       user.Roles,
		"branches":    user.BranchIDs,
		"is_admin":    user.IsAdmin,
	})
	if err != nil {
		return false
	}

	allowed, ok := out.Value().(bool)
	return ok && allowed
}

var _ Checker = (*CELChecker)(nil)

// AllowAll grants every capability. Test fixture only.
type AllowAll struct{}

func (AllowAll) HasCapability(context.Context, string, id.ID) bool { return true }

// DenyAll rejects every capability. Test fixture only.
type DenyAll struct{}

func (DenyAll) HasCapability(context.Context, string, id.ID) bool { return false }

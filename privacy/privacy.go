// Package privacy evaluates write policies before a mutation reaches the
// store. Rules return Allow, Deny or Skip; a policy runs its rules in order
// and stops at the first Allow or Deny.
//
//	store := sqlstore.New(drv, registry, sqlstore.WithPolicy(privacy.MutationPolicy{
//	    privacy.OnTypes(privacy.DenyIfNoViewer(), "Post", "Comment"),
//	    privacy.HasRole("admin"),
//	    privacy.OnMutationOperation(privacy.IsOwner("author_id"), model.OpUpdate),
//	    privacy.DenyMutationOperationRule(model.OpDelete),
//	}))
package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/beacon/model"
)

// Policy decision sentinel errors.
var (
	// Allow ends the evaluation with an allow decision.
	Allow = errors.New("beacon/privacy: allow rule")
	// Deny ends the evaluation with a deny decision.
	Deny = errors.New("beacon/privacy: deny rule")
	// Skip abstains and lets the next rule decide.
	Skip = errors.New("beacon/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

type (
	// MutationRule decides whether a write is allowed.
	MutationRule interface {
		EvalMutation(context.Context, model.Mutation) error
	}

	// MutationPolicy combines rules into a single rule.
	MutationPolicy []MutationRule
)

// MutationRuleFunc adapts a function to a MutationRule.
type MutationRuleFunc func(context.Context, model.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m model.Mutation) error {
	return f(ctx, m)
}

// AlwaysAllowRule returns a rule that always allows.
func AlwaysAllowRule() MutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always denies.
func AlwaysDenyRule() MutationRule {
	return fixedDecision{Deny}
}

// ContextMutationRule creates a rule from a function of the context only.
// Returning nil is equivalent to returning Skip.
func ContextMutationRule(eval func(context.Context) error) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, _ model.Mutation) error {
		return eval(ctx)
	})
}

// OnMutationOperation evaluates rule only for the given operation.
func OnMutationOperation(rule MutationRule, op model.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m model.Mutation) error {
		if m.Op == op {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// OnTypes evaluates rule only for mutations of the given model types.
func OnTypes(rule MutationRule, types ...string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m model.Mutation) error {
		if slices.Contains(types, m.Type()) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying the given operation.
func DenyMutationOperationRule(op model.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m model.Mutation) error {
		return Denyf("beacon/privacy: operation %s is not allowed", m.Op)
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing the given operation.
func AllowMutationOperationRule(op model.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, model.Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// EvalMutation evaluates the rules in order. A decision stored in the
// context with DecisionContext overrides the policy.
func (policy MutationPolicy) EvalMutation(ctx context.Context, m model.Mutation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range policy {
		switch decision := rule.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext returns a context whose decision short-circuits every
// policy, e.g. privacy.DecisionContext(ctx, privacy.Allow) for seeding.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the decision stored in ctx. An Allow
// decision is reported as nil.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalMutation(context.Context, model.Mutation) error {
	return f.decision
}

package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/schema/edge"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("linkage/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("linkage/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("linkage/privacy: skip rule")
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
	// MutationRule defines the interface deciding whether a
	// relationship mutation is allowed.
	MutationRule interface {
		EvalMutation(context.Context, linkage.Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule
)

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, linkage.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m linkage.Mutation) error {
	return f(ctx, m)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() MutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() MutationRule {
	return fixedDecision{Deny}
}

// ContextMutationRule creates a mutation rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextMutationRule(eval func(context.Context) error) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, _ linkage.Mutation) error {
		return eval(ctx)
	})
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op linkage.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m linkage.Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// OnRelationship evaluates the given rule only on the named relationships
// of typeName. With no names, every relationship of the type matches.
func OnRelationship(rule MutationRule, typeName string, names ...string) MutationRule {
	typeName = edge.NormalizeType(typeName)
	return MutationRuleFunc(func(ctx context.Context, m linkage.Mutation) error {
		if edge.NormalizeType(m.Owner().TypeName()) != typeName {
			return Skip
		}
		if len(names) > 0 && !slices.Contains(names, m.Relationship()) {
			return Skip
		}
		return rule.EvalMutation(ctx, m)
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op linkage.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m linkage.Mutation) error {
		return Denyf("linkage/privacy: operation %s is not allowed", m.Op())
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing specified mutation operation.
func AllowMutationOperationRule(op linkage.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, linkage.Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// DenyRelationshipRule returns a rule making a relationship read-only
// for local mutations.
func DenyRelationshipRule(typeName, name string) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m linkage.Mutation) error {
		return Denyf("linkage/privacy: %s.%s is read-only", m.Owner().TypeName(), m.Relationship())
	})
	return OnRelationship(rule, typeName, name)
}

// New returns a session policy evaluating rules in order. A mutation that
// no rule decides on is allowed.
//
//	sess := graph.NewSession(reg, graph.WithPolicy(privacy.New(
//	    privacy.DenyIfNoViewer(),
//	    privacy.DenyRelationshipRule("post", "author"),
//	)))
func New(rules ...MutationRule) linkage.Policy {
	return Policies{MutationPolicy(rules)}
}

// Policies combines multiple policies into a single policy. It is the
// value handed to graph.WithPolicy; Allow from any policy ends the
// evaluation with a nil error.
type Policies []linkage.Policy

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, m linkage.Mutation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m linkage.Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
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

func (f fixedDecision) EvalMutation(context.Context, linkage.Mutation) error {
	return f.decision
}

var (
	_ linkage.Policy = Policies(nil)
	_ linkage.Policy = MutationPolicy(nil)
	_ MutationRule   = MutationRuleFunc(nil)
)

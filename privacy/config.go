package privacy

import (
	"context"
	"slices"

	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/model"
)

var configOps = map[string]model.Op{
	"create": model.OpCreate,
	"update": model.OpUpdate,
	"delete": model.OpDelete,
}

// FromConfig returns the policy declared by the policy sections of models,
// nil when no model declares one.
func FromConfig(models map[string]config.Model) MutationRule {
	types := make([]string, 0, len(models))
	for typ, m := range models {
		if m.Policy != nil {
			types = append(types, typ)
		}
	}
	if len(types) == 0 {
		return nil
	}
	slices.Sort(types)
	policy := make(MutationPolicy, 0, len(types))
	for _, typ := range types {
		policy = append(policy, OnTypes(typePolicy(models[typ].Policy), typ))
	}
	return policy
}

// typePolicy evaluates to nil when the write is allowed, so the policies
// of other types never see a decision.
func typePolicy(p *config.Policy) MutationPolicy {
	var rules MutationPolicy
	if p.RequireViewer {
		rules = append(rules, DenyIfNoViewer())
	}
	for _, name := range p.Deny {
		if op, ok := configOps[name]; ok {
			rules = append(rules, DenyMutationOperationRule(op))
		}
	}
	if p.TenantColumn != "" {
		rules = append(rules, MutationPolicy{TenantRule(p.TenantColumn)})
	}
	if len(p.AdminRoles) > 0 {
		rules = append(rules, HasAnyRole(p.AdminRoles...))
	}
	if p.OwnerColumn != "" {
		owner := MutationPolicy{IsOwner(p.OwnerColumn), ownerRequired(p.OwnerColumn)}
		rules = append(rules,
			OnMutationOperation(owner, model.OpUpdate),
			OnMutationOperation(owner, model.OpDelete),
		)
	}
	return rules
}

func ownerRequired(column string) MutationRule {
	return ContextMutationRule(func(context.Context) error {
		return Denyf("beacon/privacy: only the owner (%s) may write", column)
	})
}

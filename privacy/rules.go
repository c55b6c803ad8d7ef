package privacy

import (
	"context"
	"slices"

	"github.com/syssam/beacon/model"
)

// Viewer is the authenticated user making a request.
type Viewer interface {
	GetID() string
	GetRoles() []string
	// GetTenantID returns the tenant for multi-tenant isolation, or "".
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a context carrying viewer.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the viewer stored in ctx, nil when absent.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a static Viewer.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string       { return v.UserID }
func (v *SimpleViewer) GetRoles() []string  { return v.Roles }
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer denies writes without a viewer in the context.
func DenyIfNoViewer() MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("beacon/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole allows writes by viewers holding role.
func HasRole(role string) MutationRule {
	return HasAnyRole(role)
}

// HasAnyRole allows writes by viewers holding any of roles.
func HasAnyRole(roles ...string) MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		if viewer := ViewerFromContext(ctx); viewer != nil && slices.ContainsFunc(viewer.GetRoles(), func(r string) bool {
			return slices.Contains(roles, r)
		}) {
			return Allow
		}
		return Skip
	})
}

// IsOwner allows writes to models whose column holds the viewer's ID.
func IsOwner(column string) MutationRule {
	return matchViewer(column, Viewer.GetID, Skip)
}

// TenantRule allows writes to models of the viewer's tenant and denies
// writes across tenants.
func TenantRule(column string) MutationRule {
	return matchViewer(column, Viewer.GetTenantID, Denyf("beacon/privacy: tenant mismatch"))
}

// matchViewer compares column with the viewer value picked by field.
// Models without the column and viewers without the value are skipped.
func matchViewer(column string, field func(Viewer) string, mismatch error) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m model.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		want := field(viewer)
		value := m.Model.Get(column)
		if want == "" || value == nil {
			return Skip
		}
		if model.KeyString(value) == want {
			return Allow
		}
		return mismatch
	})
}

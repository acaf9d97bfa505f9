package privacy

import (
	"context"
	"slices"

	"github.com/syssam/linkage"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

// viewerCtxKey is the context key for storing the viewer.
type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present in the context.
// This is typically used as the first rule in a policy to require authentication.
func DenyIfNoViewer() MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("linkage/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified role.
// Skips otherwise.
//
// Example:
//
//	privacy.New(
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	)
func HasRole(role string) MutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the specified roles.
func HasAnyRole(roles ...string) MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a rule that allows the mutation when the owner record of
// the relationship is the viewer, matched by type and id.
//
//	privacy.New(privacy.IsOwner("user"), privacy.AlwaysDenyRule())
func IsOwner(viewerType string) MutationRule {
	return OnRelationship(MutationRuleFunc(func(ctx context.Context, m linkage.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if id := m.Owner().ID(); id != "" && id == viewer.GetID() {
			return Allow
		}
		return Skip
	}), viewerType)
}

// Tenanted is implemented by records that belong to a tenant.
type Tenanted interface {
	TenantID() string
}

// TenantRule returns a rule denying mutations that would link records of
// another tenant than the viewer's. Records that are not Tenanted, and
// viewers without a tenant, are not checked.
func TenantRule() MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m linkage.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		tenant := viewer.GetTenantID()
		for _, rec := range append([]linkage.Record{m.Owner()}, m.Records()...) {
			if t, ok := rec.(Tenanted); ok && t.TenantID() != tenant {
				return Denyf("linkage/privacy: tenant mismatch for %s:%s", rec.TypeName(), rec.ID())
			}
		}
		return Skip
	})
}

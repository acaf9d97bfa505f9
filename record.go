package linkage

import "context"

// Record is an identity-mapped entity that can take part in relationships.
//
// Records are compared by interface equality, so implementations must be
// comparable. Pointer receivers are the usual choice.
type Record interface {
	// TypeName returns the normalized type name the record was registered with.
	TypeName() string
	// ID returns the remote identifier, or "" for records not yet saved.
	ID() string
}

// IdentityMap guarantees a single in-memory instance per remote identifier.
// The engine only holds references to the records it returns.
type IdentityMap interface {
	Resolve(ctx context.Context, typeName, id string) (Record, error)
}

// Loader materializes the members of a relationship from the remote source.
type Loader interface {
	Load(ctx context.Context, owner Record, relationship string) ([]Record, error)
}

// LoaderFunc type is an adapter to allow the use of ordinary
// functions as Loader.
type LoaderFunc func(ctx context.Context, owner Record, relationship string) ([]Record, error)

// Load calls f(ctx, owner, relationship).
func (f LoaderFunc) Load(ctx context.Context, owner Record, relationship string) ([]Record, error) {
	return f(ctx, owner, relationship)
}

type reloadKey struct{}

// WithReload marks the context of a load as a server-driven reload.
// Caching loaders must bypass their cache for such loads.
func WithReload(ctx context.Context) context.Context {
	return context.WithValue(ctx, reloadKey{}, true)
}

// IsReload reports whether the load context was created by WithReload.
func IsReload(ctx context.Context) bool {
	v, _ := ctx.Value(reloadKey{}).(bool)
	return v
}

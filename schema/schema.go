package schema

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/schema/edge"
)

// Edge is implemented by relationship builders.
type Edge interface {
	Descriptor() *edge.Descriptor
}

// Type holds the relationships declared on one record type.
type Type struct {
	// Name is the normalized type name.
	Name string
	// Relationships in declaration order.
	Relationships []*edge.Descriptor
	byName        map[string]*edge.Descriptor
}

// Relationship returns the named relationship.
func (t *Type) Relationship(name string) (*edge.Descriptor, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// Registry holds the declared types and resolves relationship inverses.
// Types are expected to be registered up front; the registry is safe for
// concurrent reads afterwards.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*Type
	inverses map[inverseKey]inverseResult
	logger   *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration warnings.
// Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		types:    make(map[string]*Type),
		inverses: make(map[inverseKey]inverseResult),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register declares a type and its relationships. It fails on invalid or
// duplicate declarations and warns once for every relationship that leaves
// its async option unset. Inverses are resolved lazily or by Validate.
func (r *Registry) Register(name string, edges ...Edge) error {
	typeName := edge.NormalizeType(name)
	if typeName == "" {
		return linkage.NewSchemaError(name, "", "empty type name", nil)
	}
	t := &Type{Name: typeName, byName: make(map[string]*edge.Descriptor, len(edges))}
	for _, e := range edges {
		d := e.Descriptor()
		if d.Err != nil {
			return linkage.NewSchemaError(typeName, d.Name, "invalid relationship", d.Err)
		}
		if d.Kind != edge.KindHasMany && d.Kind != edge.KindBelongsTo {
			return linkage.NewSchemaError(typeName, d.Name, fmt.Sprintf("unsupported kind %s", d.Kind), nil)
		}
		if _, ok := t.byName[d.Name]; ok {
			return linkage.NewSchemaError(typeName, d.Name, "declared twice", nil)
		}
		t.byName[d.Name] = d
		t.Relationships = append(t.Relationships, d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[typeName]; ok {
		return linkage.NewSchemaError(typeName, "", "registered twice", nil)
	}
	r.types[typeName] = t
	// New relationships may create or break inverse pairings.
	clear(r.inverses)
	for _, d := range t.Relationships {
		if !d.AsyncSet {
			r.logger.Warn("relationship async option not set, defaulting to async",
				"type", typeName, "relationship", d.Name, "related", d.Type)
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, edges ...Edge) {
	if err := r.Register(name, edges...); err != nil {
		panic(err)
	}
}

// Type returns the registered type.
func (r *Registry) Type(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[edge.NormalizeType(name)]
	return t, ok
}

// Types returns all registered types sorted by name.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// Relationship returns the descriptor of typeName's relationship.
func (r *Registry) Relationship(typeName, name string) (*edge.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationship(edge.NormalizeType(typeName), name)
}

func (r *Registry) relationship(typeName, name string) (*edge.Descriptor, error) {
	t, ok := r.types[typeName]
	if !ok {
		return nil, linkage.NewSchemaError(typeName, name, "", linkage.ErrUnknownType)
	}
	d, ok := t.byName[name]
	if !ok {
		return nil, linkage.NewSchemaError(typeName, name, "", linkage.ErrUnknownRelationship)
	}
	return d, nil
}

// Validate checks that every related type is registered and resolves every
// inverse. All failures are returned together.
func (r *Registry) Validate() error {
	var errs []error
	for _, t := range r.Types() {
		for _, d := range t.Relationships {
			if _, ok := r.Type(d.Type); !ok {
				errs = append(errs, linkage.NewSchemaError(t.Name, d.Name,
					fmt.Sprintf("related type %q is not registered", d.Type), linkage.ErrUnknownType))
				continue
			}
			if _, err := r.Inverse(t.Name, d.Name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return linkage.NewAggregateError(errs...)
}

package schema

import (
	"fmt"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/schema/edge"
)

type inverseKey struct {
	typ, name string
}

type inverseResult struct {
	desc *edge.Descriptor
	err  error
}

// Inverse returns the relationship mirroring typeName.name on the related
// type, or nil when the relationship is one-sided. Results, including
// failures, are cached until the next registration.
//
// Resolution rules:
//
//   - An explicit inverse must exist on the related type, point back to
//     typeName and not name a different inverse itself.
//   - Otherwise a related relationship that explicitly names this one wins.
//   - Otherwise the single implicit relationship pointing back is used. Two or
//     more candidates on either side make the inverse ambiguous.
func (r *Registry) Inverse(typeName, name string) (*edge.Descriptor, error) {
	key := inverseKey{typ: edge.NormalizeType(typeName), name: name}
	r.mu.RLock()
	res, ok := r.inverses[key]
	r.mu.RUnlock()
	if ok {
		return res.desc, res.err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.inverses[key]; ok {
		return res.desc, res.err
	}
	res.desc, res.err = r.resolveMutual(key.typ, key.name)
	r.inverses[key] = res
	return res.desc, res.err
}

// resolveMutual resolves the inverse and checks that it resolves back.
func (r *Registry) resolveMutual(typeName, name string) (*edge.Descriptor, error) {
	d, err := r.relationship(typeName, name)
	if err != nil {
		return nil, err
	}
	inv, err := r.resolve(typeName, d)
	if err != nil || inv == nil {
		return nil, err
	}
	back, err := r.resolve(d.Type, inv)
	if err != nil {
		return nil, err
	}
	if back != d {
		return nil, linkage.NewUnknownInverseError(typeName, name, d.Type, inv.Name,
			fmt.Sprintf("%s.%s resolves to a different inverse", d.Type, inv.Name))
	}
	return inv, nil
}

func (r *Registry) resolve(typeName string, d *edge.Descriptor) (*edge.Descriptor, error) {
	related, ok := r.types[d.Type]
	if !ok {
		return nil, linkage.NewSchemaError(typeName, d.Name,
			fmt.Sprintf("related type %q is not registered", d.Type), linkage.ErrUnknownType)
	}
	owner := r.types[typeName]

	if d.Inverse != "" {
		c, ok := related.byName[d.Inverse]
		switch {
		case !ok:
			return nil, linkage.NewUnknownInverseError(typeName, d.Name, d.Type, d.Inverse,
				fmt.Sprintf("%s does not declare %q", d.Type, d.Inverse))
		case c.Type != typeName:
			return nil, linkage.NewUnknownInverseError(typeName, d.Name, d.Type, d.Inverse,
				fmt.Sprintf("%s.%s points to %s", d.Type, c.Name, c.Type))
		case c.Inverse != "" && c.Inverse != d.Name:
			return nil, linkage.NewUnknownInverseError(typeName, d.Name, d.Type, d.Inverse,
				fmt.Sprintf("%s.%s declares inverse %q", d.Type, c.Name, c.Inverse))
		}
		return c, nil
	}

	var explicit, implicit []*edge.Descriptor
	for _, c := range related.Relationships {
		if c.Type != typeName {
			continue
		}
		switch {
		case c.Inverse == d.Name:
			explicit = append(explicit, c)
		case c.Inverse == "" && !claimed(owner, d.Type, c, d):
			implicit = append(implicit, c)
		}
	}
	switch {
	case len(explicit) == 1:
		return explicit[0], nil
	case len(explicit) > 1:
		return nil, linkage.NewAmbiguousInverseError(typeName, d.Name, d.Type, names(explicit))
	case len(implicit) == 0:
		return nil, nil
	case len(implicit) > 1:
		return nil, linkage.NewAmbiguousInverseError(typeName, d.Name, d.Type, names(implicit))
	}

	// The single candidate must not be wanted by another implicit
	// relationship of the owner type.
	c := implicit[0]
	rivals := []*edge.Descriptor{d}
	for _, s := range owner.Relationships {
		if s != d && s.Type == d.Type && s.Inverse == "" && !claimed(related, typeName, s, c) {
			rivals = append(rivals, s)
		}
	}
	if len(rivals) > 1 {
		return nil, linkage.NewAmbiguousInverseError(typeName, d.Name, d.Type, names(rivals))
	}
	return c, nil
}

// claimed reports whether a relationship of t other than except names c,
// declared on type cOwner, as its explicit inverse.
func claimed(t *Type, cOwner string, c, except *edge.Descriptor) bool {
	for _, s := range t.Relationships {
		if s != except && s.Type == cOwner && s.Inverse == c.Name {
			return true
		}
	}
	return false
}

func names(ds []*edge.Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

package edge

import (
	"errors"
	"fmt"

	"github.com/go-openapi/inflect"
)

// Kind is the cardinality of a relationship.
type Kind uint8

// Relationship kinds.
const (
	KindUnknown Kind = iota
	KindHasMany      // To-many: post.comments
	KindBelongsTo    // To-one: comment.post
)

// String returns the kind name as used in schema files.
func (k Kind) String() string {
	switch k {
	case KindHasMany:
		return "has-many"
	case KindBelongsTo:
		return "belongs-to"
	default:
		return "unknown"
	}
}

// ParseKind parses "has-many" or "belongs-to". The underscore and
// camel-cased spellings are accepted too.
func ParseKind(s string) (Kind, error) {
	switch inflect.Dasherize(s) {
	case "has-many":
		return KindHasMany, nil
	case "belongs-to":
		return KindBelongsTo, nil
	}
	return KindUnknown, fmt.Errorf("edge: unknown relationship kind %q", s)
}

// NormalizeType returns the canonical form of a type name: lower-cased and
// dasherized, so "BlogPost", "blog_post" and "blog-post" name the same type.
func NormalizeType(name string) string {
	return inflect.Dasherize(name)
}

// A Descriptor for relationship configuration. It is immutable once
// returned by Builder.Descriptor.
type Descriptor struct {
	Name    string // Relationship name on the owner type.
	Type    string // Normalized related type.
	Kind    Kind
	Async   bool
	Inverse string // Explicit inverse relationship name, if any.
	Comment string
	// AsyncSet reports whether Async was configured explicitly. When unset,
	// Async defaults to true.
	AsyncSet bool
	// TypeInferred reports whether Type was derived from the singularized Name.
	TypeInferred bool
	Err          error
}

// Unique reports whether the relationship holds at most one record.
func (d *Descriptor) Unique() bool {
	return d.Kind == KindBelongsTo
}

// String returns a short description used in logs and CLI output.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s(%s)", d.Kind, d.Name, d.Type)
}

// Builder for relationship declarations.
type Builder struct {
	desc *Descriptor
}

// HasMany returns a to-many relationship builder. The related type defaults
// to the singularized name:
//
//	edge.HasMany("comments") // related type "comment"
func HasMany(name string) *Builder {
	return newBuilder(name, KindHasMany)
}

// BelongsTo returns a to-one relationship builder. The related type defaults
// to the singularized name.
func BelongsTo(name string) *Builder {
	return newBuilder(name, KindBelongsTo)
}

func newBuilder(name string, kind Kind) *Builder {
	d := &Descriptor{Name: name, Kind: kind, Async: true}
	if name == "" {
		d.Err = errors.New("edge: missing relationship name")
	}
	return &Builder{desc: d}
}

// Type sets the related type explicitly.
func (b *Builder) Type(name string) *Builder {
	b.desc.Type = NormalizeType(name)
	if b.desc.Type == "" {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("edge %q: empty related type", b.desc.Name))
	}
	return b
}

// Async configures whether reads of an unloaded relationship trigger the
// loader (true) or require the members to be resident already (false).
func (b *Builder) Async(async bool) *Builder {
	b.desc.Async = async
	b.desc.AsyncSet = true
	return b
}

// Inverse names the relationship on the related type that mirrors this one.
// It is required when the related type has several relationships pointing
// back to this type.
func (b *Builder) Inverse(name string) *Builder {
	b.desc.Inverse = name
	return b
}

// Comment sets the comment of the relationship.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the schema.Edge interface by returning a copy of
// its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	d := *b.desc
	if d.Type == "" && d.Name != "" && d.Err == nil {
		d.Type = NormalizeType(inflect.Singularize(d.Name))
		d.TypeInferred = true
	}
	return &d
}

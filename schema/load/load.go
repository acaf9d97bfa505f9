// Package load reads declarative schema files.
//
// A schema file lists record types and their relationships in declaration
// order, with optional SQL storage mappings:
//
//	types:
//	  - name: post
//	    relationships:
//	      - name: comments
//	        kind: has-many
//	        async: true
//	        storage:
//	          table: comments
//	          owner_column: post_id
//	          target_column: id
//	          order_by: created_at
//	      - name: author
//	        kind: belongs-to
//	        type: user
//	        async: false
//	  - name: comment
//	    relationships:
//	      - {name: post, kind: belongs-to, async: false}
//	  - name: user
//	    relationships:
//	      - {name: posts, kind: has-many}
//
// Unknown keys are rejected.
package load

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/dialect/sql"
	"github.com/syssam/linkage/schema"
	"github.com/syssam/linkage/schema/edge"
)

// File is a decoded schema file.
type File struct {
	Types []*Type `yaml:"types"`
}

// Type is one record type of a schema file.
type Type struct {
	Name          string          `yaml:"name"`
	Relationships []*Relationship `yaml:"relationships,omitempty"`
}

// Relationship is one relationship declaration. Async is a pointer so an
// omitted key keeps the registry warning for unset async options.
type Relationship struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Type    string   `yaml:"type,omitempty"`
	Async   *bool    `yaml:"async,omitempty"`
	Inverse string   `yaml:"inverse,omitempty"`
	Comment string   `yaml:"comment,omitempty"`
	Storage *Storage `yaml:"storage,omitempty"`
}

// Storage is the SQL storage mapping of a relationship.
type Storage struct {
	Table        string `yaml:"table"`
	OwnerColumn  string `yaml:"owner_column"`
	TargetColumn string `yaml:"target_column"`
	OrderBy      string `yaml:"order_by,omitempty"`
}

// ParseError is returned for files that are not valid schema YAML.
type ParseError struct {
	Path string
	Err  error
}

// Error returns the error string.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load: invalid schema: %v", e.Err)
	}
	return fmt.Sprintf("load: invalid schema %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a schema file.
func Parse(data []byte) (*File, error) {
	return decode(bytes.NewReader(data), "")
}

// ReadFile reads and decodes the schema file at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f, path)
}

func decode(r io.Reader, path string) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &f, nil
}

// Edges returns the relationship builders of t.
func (t *Type) Edges() ([]schema.Edge, error) {
	edges := make([]schema.Edge, 0, len(t.Relationships))
	for _, r := range t.Relationships {
		kind, err := edge.ParseKind(r.Kind)
		if err != nil {
			return nil, linkage.NewSchemaError(t.Name, r.Name, "invalid relationship", err)
		}
		b := edge.HasMany(r.Name)
		if kind == edge.KindBelongsTo {
			b = edge.BelongsTo(r.Name)
		}
		if r.Type != "" {
			b.Type(r.Type)
		}
		if r.Async != nil {
			b.Async(*r.Async)
		}
		if r.Inverse != "" {
			b.Inverse(r.Inverse)
		}
		if r.Comment != "" {
			b.Comment(r.Comment)
		}
		edges = append(edges, b)
	}
	return edges, nil
}

// Declare registers every type of f in reg without resolving inverses.
func (f *File) Declare(reg *schema.Registry) error {
	for _, t := range f.Types {
		edges, err := t.Edges()
		if err != nil {
			return err
		}
		if err := reg.Register(t.Name, edges...); err != nil {
			return err
		}
	}
	return nil
}

// Register declares every type of f in reg, then validates the registry.
func (f *File) Register(reg *schema.Registry) error {
	if err := f.Declare(reg); err != nil {
		return err
	}
	return reg.Validate()
}

// Registry returns a new validated registry holding the types of f.
func (f *File) Registry(opts ...schema.Option) (*schema.Registry, error) {
	reg := schema.New(opts...)
	if err := f.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Map applies the storage mappings of f to the SQL loader. Relationships
// without storage keep the loader's default mapping.
func (f *File) Map(l *sql.Loader) error {
	for _, t := range f.Types {
		for _, r := range t.Relationships {
			if r.Storage == nil {
				continue
			}
			m := sql.Mapping{
				Table:        r.Storage.Table,
				OwnerColumn:  r.Storage.OwnerColumn,
				TargetColumn: r.Storage.TargetColumn,
				OrderBy:      r.Storage.OrderBy,
			}
			if err := l.Map(t.Name, r.Name, m); err != nil {
				return fmt.Errorf("load: %s.%s storage: %w", t.Name, r.Name, err)
			}
		}
	}
	return nil
}

// FromRegistry returns the schema file describing reg. Inferred related
// types are omitted so the file round-trips.
func FromRegistry(reg *schema.Registry) *File {
	f := &File{}
	for _, t := range reg.Types() {
		ft := &Type{Name: t.Name}
		for _, d := range t.Relationships {
			r := &Relationship{
				Name:    d.Name,
				Kind:    d.Kind.String(),
				Inverse: d.Inverse,
				Comment: d.Comment,
			}
			if !d.TypeInferred {
				r.Type = d.Type
			}
			if d.AsyncSet {
				async := d.Async
				r.Async = &async
			}
			ft.Relationships = append(ft.Relationships, r)
		}
		f.Types = append(f.Types, ft)
	}
	return f
}

// Marshal encodes f as YAML.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

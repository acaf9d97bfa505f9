// Package identity provides an in-memory identity map for linkage records.
//
// The map guarantees one record instance per (type, remote id). Records that
// do not exist remotely yet are created with a client-side UUID and get their
// remote id on Commit.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/schema/edge"
)

// Entity is the default record type created by the map.
type Entity struct {
	typ      string
	clientID uuid.UUID

	mu        sync.RWMutex
	id        string
	observers []func(relationship string)
}

// NewEntity returns an entity of the given type with a fresh client id.
func NewEntity(typeName, id string) *Entity {
	return &Entity{typ: edge.NormalizeType(typeName), id: id, clientID: uuid.New()}
}

// TypeName implements linkage.Record.
func (e *Entity) TypeName() string { return e.typ }

// ID implements linkage.Record.
func (e *Entity) ID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.id
}

// ClientID returns the client-side identifier assigned at creation.
func (e *Entity) ClientID() uuid.UUID { return e.clientID }

// ClientKey implements linkage.ClientKeyer.
func (e *Entity) ClientKey() string { return e.clientID.String() }

// String implements fmt.Stringer.
func (e *Entity) String() string {
	if id := e.ID(); id != "" {
		return e.typ + ":" + id
	}
	return e.typ + ":" + e.clientID.String()
}

// Observe registers fn to be called when a relationship of e changes.
func (e *Entity) Observe(fn func(relationship string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// NotifyRelationshipChange implements linkage.ChangeNotifiable.
func (e *Entity) NotifyRelationshipChange(relationship string) {
	e.mu.RLock()
	observers := e.observers
	e.mu.RUnlock()
	for _, fn := range observers {
		fn(relationship)
	}
}

// Factory builds the record for a remote id that is not in the map yet.
type Factory func(typeName, id string) linkage.Record

type key struct {
	typ, id string
}

// Map is a concurrency-safe identity map.
type Map struct {
	mu        sync.RWMutex
	records   map[key]linkage.Record
	factories map[string]Factory
}

// Option configures a Map.
type Option func(*Map)

// WithFactory sets the factory used for records of the given type.
// Types without a factory get an *Entity.
func WithFactory(typeName string, f Factory) Option {
	return func(m *Map) {
		m.factories[edge.NormalizeType(typeName)] = f
	}
}

// New returns an empty identity map.
func New(opts ...Option) *Map {
	m := &Map{
		records:   make(map[key]linkage.Record),
		factories: make(map[string]Factory),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve returns the record for (typeName, id), creating it on first use.
func (m *Map) Resolve(_ context.Context, typeName, id string) (linkage.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("identity: empty id for type %q", typeName)
	}
	k := key{edge.NormalizeType(typeName), id}
	m.mu.RLock()
	rec, ok := m.records[k]
	m.mu.RUnlock()
	if ok {
		return rec, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[k]; ok {
		return rec, nil
	}
	if f, ok := m.factories[k.typ]; ok {
		rec = f(k.typ, id)
		if rec == nil {
			return nil, fmt.Errorf("identity: factory for %q returned nil", k.typ)
		}
	} else {
		rec = NewEntity(k.typ, id)
	}
	m.records[k] = rec
	return rec, nil
}

// Lookup returns the record for (typeName, id) without creating it.
func (m *Map) Lookup(typeName, id string) (linkage.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key{edge.NormalizeType(typeName), id}]
	return rec, ok
}

// Create returns a new entity that does not exist remotely yet.
func (m *Map) Create(typeName string) *Entity {
	return NewEntity(typeName, "")
}

// Commit assigns the remote id to a created entity and registers it.
func (m *Map) Commit(e *Entity, id string) error {
	if id == "" {
		return fmt.Errorf("identity: empty id for %s", e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{e.typ, id}
	if other, ok := m.records[k]; ok && other != linkage.Record(e) {
		return fmt.Errorf("identity: %s:%s is already mapped", e.typ, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.id != "" && e.id != id {
		return fmt.Errorf("identity: %s:%s was already committed", e.typ, e.id)
	}
	e.id = id
	m.records[k] = e
	return nil
}

// Remove drops rec from the map.
func (m *Map) Remove(rec linkage.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{edge.NormalizeType(rec.TypeName()), rec.ID()}
	if m.records[k] == rec {
		delete(m.records, k)
	}
}

// Len returns the number of mapped records.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

var (
	_ linkage.IdentityMap      = (*Map)(nil)
	_ linkage.Record           = (*Entity)(nil)
	_ linkage.ChangeNotifiable = (*Entity)(nil)
	_ linkage.ClientKeyer      = (*Entity)(nil)
)

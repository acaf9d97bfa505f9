package graph

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/schema"
	"github.com/syssam/linkage/schema/edge"
)

type stateKey struct {
	rec  linkage.Record
	name string
}

// Session owns the relationship states of a set of records and keeps both
// sides of every paired relationship consistent.
//
// All membership changes happen under a single session lock. Loader calls
// and notifications run without it, so loaders and observers may read the
// session. Policies are evaluated under the lock and must not call back into
// the session.
type Session struct {
	mu       sync.Mutex
	schema   *schema.Registry
	states   map[stateKey]*State
	loader   linkage.Loader
	identity linkage.IdentityMap
	notifier linkage.Notifier
	policy   linkage.Policy
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLoader sets the loader used to materialize relationships.
func WithLoader(l linkage.Loader) Option {
	return func(s *Session) {
		s.loader = l
	}
}

// WithIdentityMap sets the identity map used by PushIDs.
func WithIdentityMap(m linkage.IdentityMap) Option {
	return func(s *Session) {
		s.identity = m
	}
}

// WithNotifier sets the change notifier. Default is linkage.RecordNotifier.
func WithNotifier(n linkage.Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithPolicy sets the policy consulted before every mutation.
func WithPolicy(p linkage.Policy) Option {
	return func(s *Session) {
		s.policy = p
	}
}

// WithLogger sets the session logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// NewSession returns a session over the relationships declared in reg.
//
// Example:
//
//	sess := graph.NewSession(reg,
//	    graph.WithLoader(loader),
//	    graph.WithIdentityMap(ids),
//	)
//	comments, err := sess.Relationship(post, "comments")
//	if err != nil {
//	    return err
//	}
//	records, err := comments.Get(ctx)
func NewSession(reg *schema.Registry, opts ...Option) *Session {
	s := &Session{
		schema:   reg,
		states:   make(map[stateKey]*State),
		notifier: linkage.RecordNotifier{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the registry the session was created with.
func (s *Session) Schema() *schema.Registry { return s.schema }

// state returns the state of owner's relationship, creating it on first
// access. Callers hold the lock.
func (s *Session) state(owner linkage.Record, name string) (*State, error) {
	key := stateKey{owner, name}
	if st, ok := s.states[key]; ok {
		return st, nil
	}
	desc, err := s.schema.Relationship(owner.TypeName(), name)
	if err != nil {
		return nil, err
	}
	st := newState(s, owner, desc)
	s.states[key] = st
	return st, nil
}

// State returns the live state of owner's relationship.
func (s *Session) State(owner linkage.Record, name string) (*State, error) {
	if owner == nil {
		return nil, errNilRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(owner, name)
}

// Relationship returns an accessor for owner's relationship.
func (s *Session) Relationship(owner linkage.Record, name string) (*Relationship, error) {
	st, err := s.State(owner, name)
	if err != nil {
		return nil, err
	}
	return &Relationship{s: s, owner: owner, desc: st.desc}, nil
}

// Push replaces the members of owner's relationship with records supplied
// by the server. The relationship becomes loaded and clean, and both sides
// are updated as with Set.
func (s *Session) Push(_ context.Context, owner linkage.Record, name string, records ...linkage.Record) error {
	if owner == nil {
		return errNilRecord
	}
	s.mu.Lock()
	st, err := s.state(owner, name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	inv, err := s.prepare(st, records)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	b := newBatch()
	s.set(st, inv, records, b)
	s.markPartnersLoaded(records, inv)
	st.loaded, st.dirty, st.err = true, false, nil
	if st.pending == nil {
		st.status = StatusLoaded
	}
	s.mu.Unlock()
	b.deliver(s.notifier)
	return nil
}

// PushIDs resolves ids through the identity map and pushes the records.
func (s *Session) PushIDs(ctx context.Context, owner linkage.Record, name string, ids ...string) error {
	if owner == nil {
		return errNilRecord
	}
	if s.identity == nil {
		return linkage.ErrNoIdentityMap
	}
	desc, err := s.schema.Relationship(owner.TypeName(), name)
	if err != nil {
		return err
	}
	records := make([]linkage.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.identity.Resolve(ctx, desc.Type, id)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return s.Push(ctx, owner, name, records...)
}

// Forget discards every state owned by rec and removes rec from the
// relationships of other records. Observers of those records are notified.
func (s *Session) Forget(rec linkage.Record) {
	if rec == nil {
		return
	}
	s.mu.Lock()
	b := newBatch()
	for key, st := range s.states {
		if key.rec == rec {
			delete(s.states, key)
			continue
		}
		if st.delete(rec) {
			b.touch(st)
		}
	}
	s.mu.Unlock()
	b.deliver(s.notifier)
}

// Len returns the number of relationship states held by the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Relationship is the accessor for one relationship of one record.
type Relationship struct {
	s     *Session
	owner linkage.Record
	desc  *edge.Descriptor
}

// Name returns the relationship name.
func (r *Relationship) Name() string { return r.desc.Name }

// Owner returns the owner record.
func (r *Relationship) Owner() linkage.Record { return r.owner }

// Descriptor returns the relationship descriptor.
func (r *Relationship) Descriptor() *edge.Descriptor { return r.desc }

// State returns the live state behind the accessor.
func (r *Relationship) State() (*State, error) {
	return r.s.State(r.owner, r.desc.Name)
}

// Get returns the members, loading them first when the relationship is async
// and not loaded yet. Concurrent calls during a load share one Pending.
// A sync relationship that was never loaded fails with NotLoadedError.
func (r *Relationship) Get(ctx context.Context) (*Pending, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.state(r.owner, r.desc.Name)
	if err != nil {
		return nil, err
	}
	return r.s.get(ctx, st)
}

// Records returns the resident members without loading. It fails with
// NotLoadedError when the relationship was never loaded. For an async
// relationship that error matches ErrNotLoaded but not
// ErrSynchronousRelationshipNotLoaded; Get loads it.
func (r *Relationship) Records() ([]linkage.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.state(r.owner, r.desc.Name)
	if err != nil {
		return nil, err
	}
	if !st.loaded {
		return nil, linkage.NewNotLoadedError(r.owner.TypeName(), r.desc.Name, r.desc.Async)
	}
	return slices.Clone(st.members), nil
}

// Record returns the single member of a belongs-to relationship, or nil.
func (r *Relationship) Record() (linkage.Record, error) {
	records, err := r.Records()
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Reload fetches the members again and replaces the resident ones. A load
// already in flight is shared.
func (r *Relationship) Reload(ctx context.Context) (*Pending, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, err := r.s.state(r.owner, r.desc.Name)
	if err != nil {
		return nil, err
	}
	if st.pending != nil {
		return st.pending, nil
	}
	return r.s.load(ctx, st, true), nil
}

// Add inserts records. Records already present are left in place.
func (r *Relationship) Add(ctx context.Context, records ...linkage.Record) error {
	return r.s.mutate(ctx, r.owner, r.desc.Name, linkage.OpAdd, records)
}

// Remove drops records. Records that are not members are ignored.
func (r *Relationship) Remove(ctx context.Context, records ...linkage.Record) error {
	return r.s.mutate(ctx, r.owner, r.desc.Name, linkage.OpRemove, records)
}

// Clear drops every member.
func (r *Relationship) Clear(ctx context.Context) error {
	return r.s.mutate(ctx, r.owner, r.desc.Name, linkage.OpClear, nil)
}

// Set replaces the members with records, in the given order.
func (r *Relationship) Set(ctx context.Context, records ...linkage.Record) error {
	return r.s.mutate(ctx, r.owner, r.desc.Name, linkage.OpSet, records)
}
